// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists a local snapshot of conversations and
// projects in SQLite, so the client starts instantly and works through
// backend outages. It also keeps the deletion ledger backing the
// recently-deleted view.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/skeinlabs/skein-tui/internal/logger"
	"github.com/skeinlabs/skein-tui/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrClosed        = errors.New("cache is closed")
	ErrDatabaseError = errors.New("database error")
)

// =============================================================================
// SCHEMA
// =============================================================================

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL DEFAULT '',
	title      TEXT NOT NULL,
	model      TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	is_deleted INTEGER NOT NULL DEFAULT 0,
	deleted_at INTEGER NOT NULL DEFAULT 0,
	payload    BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_updated
	ON conversations(updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_conversations_project
	ON conversations(project_id);

CREATE TABLE IF NOT EXISTS projects (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	is_deleted INTEGER NOT NULL DEFAULT 0,
	deleted_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS deletion_ledger (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_id  TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	title      TEXT NOT NULL,
	deleted_at INTEGER NOT NULL,
	permanent  INTEGER NOT NULL
);
`

// =============================================================================
// CACHE
// =============================================================================

// Cache is the local SQLite snapshot store. One writer at a time; the
// connection pool is pinned to a single connection.
type Cache struct {
	db *sql.DB
}

// DefaultCachePath returns the cache database location under the user's
// home.
func DefaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "skein-cache.db")
	}
	return filepath.Join(home, ".skein", "cache.db")
}

// Open opens (or creates) the cache database, applies the schema, and
// purges soft-deleted rows past retention.
func Open(path string, retention time.Duration) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	c := &Cache{db: db}
	if n, err := c.PurgeExpired(context.Background(), retention); err != nil {
		logger.Warn("storage: purge on open failed: %v", err)
	} else if n > 0 {
		logger.Info("storage: purged %d expired entities", n)
	}
	return c, nil
}

// Close closes the database.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// =============================================================================
// CONVERSATION SNAPSHOTS
// =============================================================================

// SaveConversation upserts one conversation snapshot. projectID is empty
// for top-level conversations.
func (c *Cache) SaveConversation(ctx context.Context, conv *model.Conversation, projectID string) error {
	if c.db == nil {
		return ErrClosed
	}

	payload, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to encode conversation %s: %w", conv.ID, err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO conversations
			(id, project_id, title, model, created_at, updated_at, is_deleted, deleted_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project_id = excluded.project_id,
			title      = excluded.title,
			model      = excluded.model,
			updated_at = excluded.updated_at,
			is_deleted = excluded.is_deleted,
			deleted_at = excluded.deleted_at,
			payload    = excluded.payload`,
		conv.ID, projectID, conv.Title, conv.Model,
		conv.CreatedAt.UnixMilli(), conv.UpdatedAt.UnixMilli(),
		boolToInt(conv.IsDeleted), timeToMilli(conv.DeletedAt), payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// DeleteConversation removes a conversation row permanently.
func (c *Cache) DeleteConversation(ctx context.Context, id string) error {
	if c.db == nil {
		return ErrClosed
	}
	if _, err := c.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// LoadConversations returns all cached conversations for a project
// (empty projectID for top-level), soft-deleted included, newest first.
func (c *Cache) LoadConversations(ctx context.Context, projectID string) ([]*model.Conversation, error) {
	if c.db == nil {
		return nil, ErrClosed
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT payload FROM conversations
		WHERE project_id = ?
		ORDER BY updated_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var out []*model.Conversation
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		var conv model.Conversation
		if err := json.Unmarshal(payload, &conv); err != nil {
			// One corrupt row shouldn't take down the whole load.
			logger.Warn("storage: skipping corrupt conversation row: %v", err)
			continue
		}
		out = append(out, &conv)
	}
	return out, rows.Err()
}

// =============================================================================
// PROJECT SNAPSHOTS
// =============================================================================

// SaveProject upserts one project row. Chats are stored as conversation
// rows keyed by the project ID.
func (c *Cache) SaveProject(ctx context.Context, proj *model.Project) error {
	if c.db == nil {
		return ErrClosed
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, created_at, updated_at, is_deleted, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name       = excluded.name,
			updated_at = excluded.updated_at,
			is_deleted = excluded.is_deleted,
			deleted_at = excluded.deleted_at`,
		proj.ID, proj.Name,
		proj.CreatedAt.UnixMilli(), proj.UpdatedAt.UnixMilli(),
		boolToInt(proj.IsDeleted), timeToMilli(proj.DeletedAt))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	for _, chat := range proj.Chats {
		if err := c.SaveConversation(ctx, &chat.Conversation, proj.ID); err != nil {
			return err
		}
	}
	return nil
}

// LoadProjects returns all cached projects with their chats, newest
// first.
func (c *Cache) LoadProjects(ctx context.Context) ([]*model.Project, error) {
	if c.db == nil {
		return nil, ErrClosed
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, name, created_at, updated_at, is_deleted, deleted_at
		FROM projects ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var out []*model.Project
	for rows.Next() {
		var (
			proj               model.Project
			created, updated   int64
			isDeleted, deleted int64
		)
		if err := rows.Scan(&proj.ID, &proj.Name, &created, &updated, &isDeleted, &deleted); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		proj.CreatedAt = time.UnixMilli(created)
		proj.UpdatedAt = time.UnixMilli(updated)
		proj.IsDeleted = isDeleted != 0
		if deleted != 0 {
			proj.DeletedAt = time.UnixMilli(deleted)
		}
		out = append(out, &proj)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, proj := range out {
		convs, err := c.LoadConversations(ctx, proj.ID)
		if err != nil {
			return nil, err
		}
		for _, conv := range convs {
			proj.Chats = append(proj.Chats, &model.ProjectChat{
				Conversation: *conv,
				ProjectID:    proj.ID,
			})
		}
	}
	return out, nil
}

// DeleteProject removes a project row and its chats permanently.
func (c *Cache) DeleteProject(ctx context.Context, id string) error {
	if c.db == nil {
		return ErrClosed
	}
	if _, err := c.db.ExecContext(ctx, `DELETE FROM conversations WHERE project_id = ?`, id); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if _, err := c.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// =============================================================================
// DELETION LEDGER
// =============================================================================

// LedgerEntry records one deletion for the recently-deleted view.
type LedgerEntry struct {
	Seq        int64
	EntityID   string
	EntityType string
	Title      string
	DeletedAt  time.Time
	Permanent  bool
}

// RecordDeletion appends a deletion to the ledger.
func (c *Cache) RecordDeletion(ctx context.Context, entityID, entityType, title string, permanent bool) error {
	if c.db == nil {
		return ErrClosed
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO deletion_ledger (entity_id, entity_type, title, deleted_at, permanent)
		VALUES (?, ?, ?, ?, ?)`,
		entityID, entityType, title, time.Now().UnixMilli(), boolToInt(permanent))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// RecentDeletions returns the newest ledger entries, most recent first.
func (c *Cache) RecentDeletions(ctx context.Context, limit int) ([]LedgerEntry, error) {
	if c.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT seq, entity_id, entity_type, title, deleted_at, permanent
		FROM deletion_ledger ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var out []LedgerEntry
	for rows.Next() {
		var (
			e         LedgerEntry
			deletedAt int64
			permanent int64
		)
		if err := rows.Scan(&e.Seq, &e.EntityID, &e.EntityType, &e.Title, &deletedAt, &permanent); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		e.DeletedAt = time.UnixMilli(deletedAt)
		e.Permanent = permanent != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

// PurgeExpired hard-deletes soft-deleted rows whose retention has
// lapsed, recording each purge in the ledger. Returns how many entities
// were purged.
func (c *Cache) PurgeExpired(ctx context.Context, retention time.Duration) (int, error) {
	if c.db == nil {
		return 0, ErrClosed
	}
	cutoff := time.Now().Add(-retention).UnixMilli()

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, title FROM conversations
		WHERE is_deleted = 1 AND deleted_at > 0 AND deleted_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	type doomed struct{ id, title string }
	var victims []doomed
	for rows.Next() {
		var d doomed
		if err := rows.Scan(&d.id, &d.title); err != nil {
			rows.Close()
			return 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		victims = append(victims, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, v := range victims {
		if err := c.DeleteConversation(ctx, v.id); err != nil {
			return 0, err
		}
		if err := c.RecordDeletion(ctx, v.id, "conversation", v.title, true); err != nil {
			return 0, err
		}
	}

	res, err := c.db.ExecContext(ctx, `
		DELETE FROM projects
		WHERE is_deleted = 1 AND deleted_at > 0 AND deleted_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	projPurged, _ := res.RowsAffected()

	return len(victims) + int(projPurged), nil
}

// =============================================================================
// HELPERS
// =============================================================================

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func timeToMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
