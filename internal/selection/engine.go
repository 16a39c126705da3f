// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package selection implements the sidebar's multi-select model: a
// selection set, an anchor, and a snapshot of the rendered order, with
// plain / modifier / shift click semantics and bulk delete.
package selection

import (
	"github.com/skeinlabs/skein-tui/internal/model"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine tracks which sidebar items are selected. Range semantics are
// defined over the rendered order, not creation order, so what the user
// sees selected is what they get.
//
// The engine is driven from the UI event loop; it is not safe for
// concurrent use.
type Engine struct {
	order    []string
	index    map[string]int
	selected map[string]struct{}
	anchor   string
}

// NewEngine creates an empty selection engine.
func NewEngine() *Engine {
	return &Engine{
		index:    make(map[string]int),
		selected: make(map[string]struct{}),
	}
}

// SetOrder snapshots the rendered order of sidebar items. Selected items
// that no longer exist are dropped; a vanished anchor resets.
func (e *Engine) SetOrder(ids []string) {
	e.order = append(e.order[:0], ids...)
	e.index = make(map[string]int, len(ids))
	for i, id := range ids {
		e.index[id] = i
	}

	for id := range e.selected {
		if _, ok := e.index[id]; !ok {
			delete(e.selected, id)
		}
	}
	if _, ok := e.index[e.anchor]; !ok {
		e.anchor = ""
	}
}

// =============================================================================
// CLICK SEMANTICS
// =============================================================================

// Click replaces the selection with the clicked item and moves the
// anchor there. Used internally for context-menu promotion and anchorless
// shift-clicks; plain sidebar clicks go through PlainClick.
func (e *Engine) Click(id string) {
	if _, ok := e.index[id]; !ok {
		return
	}
	e.selected = map[string]struct{}{id: {}}
	e.anchor = id
}

// PlainClick applies unmodified-click semantics. With a selection present,
// clicking a selected item deselects just that item; the set persists if
// non-empty, otherwise selection mode exits. Any other plain click exits
// selection mode, moves the anchor, and reports that the clicked item
// should become the active entity.
func (e *Engine) PlainClick(id string) bool {
	if _, ok := e.index[id]; !ok {
		return false
	}
	if len(e.selected) > 0 {
		if _, sel := e.selected[id]; sel {
			delete(e.selected, id)
			return false
		}
	}
	e.selected = make(map[string]struct{})
	e.anchor = id
	return true
}

// ModifierClick toggles the clicked item's membership and moves the
// anchor there.
func (e *Engine) ModifierClick(id string) {
	if _, ok := e.index[id]; !ok {
		return
	}
	if _, sel := e.selected[id]; sel {
		delete(e.selected, id)
	} else {
		e.selected[id] = struct{}{}
	}
	e.anchor = id
}

// ShiftClick replaces the selection with the contiguous rendered-order
// range between the anchor and the clicked item, inclusive. Without an
// anchor it degrades to a plain click. The anchor does not move, so
// successive shift-clicks re-range from the same origin.
func (e *Engine) ShiftClick(id string) {
	to, ok := e.index[id]
	if !ok {
		return
	}
	from, ok := e.index[e.anchor]
	if !ok {
		e.Click(id)
		return
	}

	if from > to {
		from, to = to, from
	}
	e.selected = make(map[string]struct{}, to-from+1)
	for _, rangeID := range e.order[from : to+1] {
		e.selected[rangeID] = struct{}{}
	}
}

// Clear empties the selection. Bound to escape.
func (e *Engine) Clear() {
	e.selected = make(map[string]struct{})
	e.anchor = ""
}

// =============================================================================
// QUERIES
// =============================================================================

// IsSelected reports whether an item is in the selection.
func (e *Engine) IsSelected(id string) bool {
	_, ok := e.selected[id]
	return ok
}

// Count returns the selection size.
func (e *Engine) Count() int {
	return len(e.selected)
}

// Selected returns the selected items in rendered order.
func (e *Engine) Selected() []string {
	out := make([]string, 0, len(e.selected))
	for _, id := range e.order {
		if _, ok := e.selected[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Anchor returns the current range anchor, or empty.
func (e *Engine) Anchor() string {
	return e.anchor
}

// =============================================================================
// BULK DELETE
// =============================================================================

// BulkDeleter is the slice of the store the engine deletes through.
type BulkDeleter interface {
	BulkSoftDelete(selectors []model.Selector) int
	BulkPermanentDelete(selectors []model.Selector) int
}

// Resolver maps a sidebar item ID to its store selector.
type Resolver func(id string) model.Selector

// ContextTargets resolves which items a context-menu action applies to:
// the selection when the clicked item is part of it, otherwise the
// clicked item is promoted to a fresh single-item selection first.
func (e *Engine) ContextTargets(clickedID string) []string {
	if _, ok := e.index[clickedID]; !ok {
		return nil
	}
	if !e.IsSelected(clickedID) {
		e.Click(clickedID)
	}
	return e.Selected()
}

// DeleteTargets deletes the context-menu targets for clickedID through
// the store, soft by default or permanently. The selection clears
// afterwards; the store re-resolves the active entity on its own.
// Returns how many items were deleted.
func (e *Engine) DeleteTargets(clickedID string, permanent bool, resolve Resolver, deleter BulkDeleter) int {
	targets := e.ContextTargets(clickedID)
	if len(targets) == 0 {
		return 0
	}

	selectors := make([]model.Selector, 0, len(targets))
	for _, id := range targets {
		if sel := resolve(id); !sel.IsZero() {
			selectors = append(selectors, sel)
		}
	}

	var n int
	if permanent {
		n = deleter.BulkPermanentDelete(selectors)
	} else {
		n = deleter.BulkSoftDelete(selectors)
	}
	e.Clear()
	return n
}
