// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package selection

import (
	"reflect"
	"testing"

	"github.com/skeinlabs/skein-tui/internal/model"
)

func newOrderedEngine(ids ...string) *Engine {
	e := NewEngine()
	e.SetOrder(ids)
	return e
}

func TestEngine_ClickSemantics(t *testing.T) {
	e := newOrderedEngine("a", "b", "c", "d")

	e.Click("b")
	if !e.IsSelected("b") || e.Count() != 1 || e.Anchor() != "b" {
		t.Fatalf("plain click: selected=%v anchor=%s", e.Selected(), e.Anchor())
	}

	// Plain click replaces, not extends.
	e.Click("d")
	if e.IsSelected("b") || !e.IsSelected("d") {
		t.Error("plain click did not replace the selection")
	}

	// Unknown items are ignored.
	e.Click("zzz")
	if !e.IsSelected("d") {
		t.Error("unknown click cleared the selection")
	}
}

func TestEngine_PlainClickSemantics(t *testing.T) {
	e := newOrderedEngine("a", "b", "c", "d", "e")

	// With no selection active a plain click activates, it does not
	// start a singleton selection.
	if !e.PlainClick("a") {
		t.Fatal("plain click without a selection should activate")
	}
	if e.Count() != 0 {
		t.Fatalf("plain click created a selection: %v", e.Selected())
	}
	if e.Anchor() != "a" {
		t.Fatalf("anchor = %s, want a", e.Anchor())
	}
	// The anchor it leaves behind seeds a later range.
	e.ShiftClick("d")
	if got := e.Selected(); !reflect.DeepEqual(got, []string{"a", "b", "c", "d"}) {
		t.Fatalf("range from activated item = %v", got)
	}

	// With a selection present, clicking a selected item deselects just
	// that item; the rest of the set persists and nothing activates.
	e.Clear()
	e.ModifierClick("a")
	e.ModifierClick("b")
	e.ModifierClick("c")
	if e.PlainClick("b") {
		t.Error("plain click on a selected item should not activate")
	}
	if got := e.Selected(); !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Fatalf("after plain click on selected item: %v, want [a c]", got)
	}

	// Deselecting the last member exits selection mode, so the next
	// plain click activates again.
	e.PlainClick("a")
	e.PlainClick("c")
	if e.Count() != 0 {
		t.Fatalf("selection survived emptying: %v", e.Selected())
	}
	if !e.PlainClick("c") {
		t.Error("plain click after selection mode exited should activate")
	}

	// Clicking an unselected item while a selection is present exits
	// selection mode and activates.
	e.ModifierClick("a")
	e.ModifierClick("b")
	if !e.PlainClick("e") {
		t.Error("plain click outside the selection should activate")
	}
	if e.Count() != 0 {
		t.Errorf("selection survived activation: %v", e.Selected())
	}
}

func TestEngine_ModifierClickToggles(t *testing.T) {
	e := newOrderedEngine("a", "b", "c", "d")

	e.Click("a")
	e.ModifierClick("b")
	e.ModifierClick("c")
	e.ModifierClick("d")
	if got := e.Selected(); !reflect.DeepEqual(got, []string{"a", "b", "c", "d"}) {
		t.Fatalf("selection = %v", got)
	}

	// Toggling off leaves the rest intact.
	e.ModifierClick("b")
	if got := e.Selected(); !reflect.DeepEqual(got, []string{"a", "c", "d"}) {
		t.Errorf("after toggle off: %v", got)
	}
	if e.Anchor() != "b" {
		t.Errorf("anchor = %s, want b (modifier click always moves it)", e.Anchor())
	}
}

func TestEngine_ShiftClickRanges(t *testing.T) {
	e := newOrderedEngine("a", "b", "c", "d", "e")

	e.Click("b")
	e.ShiftClick("d")
	if got := e.Selected(); !reflect.DeepEqual(got, []string{"b", "c", "d"}) {
		t.Fatalf("range = %v, want [b c d]", got)
	}
	// The anchor does not move; a second shift-click re-ranges from it.
	if e.Anchor() != "b" {
		t.Fatalf("anchor moved to %s", e.Anchor())
	}
	e.ShiftClick("e")
	if got := e.Selected(); !reflect.DeepEqual(got, []string{"b", "c", "d", "e"}) {
		t.Errorf("re-range = %v, want [b c d e]", got)
	}

	// Backward ranges work too.
	e.ShiftClick("a")
	if got := e.Selected(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("backward range = %v, want [a b]", got)
	}
}

func TestEngine_ShiftClickWithoutAnchor(t *testing.T) {
	e := newOrderedEngine("a", "b", "c")

	e.ShiftClick("c")
	if got := e.Selected(); !reflect.DeepEqual(got, []string{"c"}) {
		t.Errorf("anchorless shift-click = %v, want plain click on [c]", got)
	}
	if e.Anchor() != "c" {
		t.Errorf("anchor = %s, want c", e.Anchor())
	}
}

func TestEngine_SetOrderPrunes(t *testing.T) {
	e := newOrderedEngine("a", "b", "c")
	e.Click("a")
	e.ModifierClick("b")

	// "b" disappears from the rendered order (deleted elsewhere).
	e.SetOrder([]string{"a", "c"})
	if e.IsSelected("b") {
		t.Error("vanished item still selected")
	}
	if e.Anchor() != "" {
		t.Errorf("anchor = %s, want reset (anchored item vanished)", e.Anchor())
	}
	if !e.IsSelected("a") {
		t.Error("surviving selection dropped")
	}
}

func TestEngine_ContextTargets(t *testing.T) {
	e := newOrderedEngine("a", "b", "c", "d")
	e.Click("a")
	e.ModifierClick("b")

	// Clicking inside the selection targets the whole selection.
	if got := e.ContextTargets("a"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("targets = %v, want [a b]", got)
	}

	// Clicking outside promotes the clicked item to a fresh selection.
	if got := e.ContextTargets("d"); !reflect.DeepEqual(got, []string{"d"}) {
		t.Errorf("targets = %v, want [d]", got)
	}
	if e.IsSelected("a") || e.IsSelected("b") {
		t.Error("old selection survived promotion")
	}
}

// recordingDeleter captures the selectors handed to the store.
type recordingDeleter struct {
	soft      [][]model.Selector
	permanent [][]model.Selector
}

func (r *recordingDeleter) BulkSoftDelete(sels []model.Selector) int {
	r.soft = append(r.soft, sels)
	return len(sels)
}

func (r *recordingDeleter) BulkPermanentDelete(sels []model.Selector) int {
	r.permanent = append(r.permanent, sels)
	return len(sels)
}

func TestEngine_DeleteTargets(t *testing.T) {
	e := newOrderedEngine("a", "b", "c")
	e.Click("a")
	e.ModifierClick("c")

	deleter := &recordingDeleter{}
	resolve := func(id string) model.Selector {
		if id == "c" {
			// Unresolvable rows (project headers) are skipped.
			return model.Selector{}
		}
		return model.ConversationSelector(id)
	}

	n := e.DeleteTargets("a", false, resolve, deleter)
	if n != 1 {
		t.Errorf("deleted = %d, want 1 resolvable target", n)
	}
	if len(deleter.soft) != 1 || len(deleter.soft[0]) != 1 {
		t.Fatalf("soft deletes = %v", deleter.soft)
	}
	if deleter.soft[0][0].ConversationID() != "a" {
		t.Errorf("deleted selector = %v", deleter.soft[0][0])
	}
	if e.Count() != 0 {
		t.Error("selection not cleared after delete")
	}

	// Permanent path.
	e.Click("b")
	e.DeleteTargets("b", true, resolve, deleter)
	if len(deleter.permanent) != 1 {
		t.Error("permanent delete did not go through BulkPermanentDelete")
	}
}
