// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures shared across the client:
// conversations, projects, project chats, messages, model descriptors and
// the tagged selector addressing exactly one message-holding entity.
//
// The types here are plain data with small invariant-preserving methods.
// Coordination (who mutates what, and when) lives in the store package;
// nothing in this package is safe for concurrent mutation on its own.
package model
