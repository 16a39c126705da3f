// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package scroll

import (
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultTolerance is the bottom band, in pixels, inside which the
	// viewport still counts as "at bottom".
	DefaultTolerance = 50

	// intakeInterval throttles scroll and resize intake to roughly one
	// event per frame.
	intakeInterval = 16 * time.Millisecond
)

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller decides where the transcript viewport sits. It owns the
// auto-scroll invariant: the view sticks to the bottom until the user
// deliberately scrolls away, and returns when they come back within the
// tolerance band.
//
// The controller is driven from the UI event loop; it is not safe for
// concurrent use.
type Controller struct {
	tolerance int
	session   *SessionContext

	// Geometry, in pixels.
	offset         int
	contentHeight  int
	viewportHeight int

	// userHasScrolled is set the moment the user leaves the tolerance
	// band and cleared when they return, jump to bottom, or switch
	// entities.
	userHasScrolled bool

	// newMessageAffordance is raised when a message arrives while the
	// user is scrolled up, instead of yanking the view down.
	newMessageAffordance bool

	// Reply-mode freeze: offset is pinned and adjustments suppressed.
	replyFrozen  bool
	frozenOffset int

	entityID string
	limiter  *rate.Limiter

	// resizeLimiter paces render work after resize bursts. Geometry is
	// always recorded; only the render hint is coalesced.
	resizeLimiter *rate.Limiter
}

// NewController creates a controller with the given tolerance band.
// session must not be nil; last-seen bookkeeping is an explicit
// dependency, not hidden state.
func NewController(tolerance int, session *SessionContext) *Controller {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Controller{
		tolerance:     tolerance,
		session:       session,
		limiter:       rate.NewLimiter(rate.Every(intakeInterval), 1),
		resizeLimiter: rate.NewLimiter(rate.Every(intakeInterval), 1),
	}
}

// =============================================================================
// GEOMETRY
// =============================================================================

// Offset returns the current scroll offset from the top of the content.
func (c *Controller) Offset() int {
	return c.offset
}

// maxOffset is the offset at which the bottom of the content aligns with
// the bottom of the viewport.
func (c *Controller) maxOffset() int {
	max := c.contentHeight - c.viewportHeight
	if max < 0 {
		return 0
	}
	return max
}

// AtBottom reports whether the viewport sits within the tolerance band
// of the content's bottom edge.
func (c *Controller) AtBottom() bool {
	return c.maxOffset()-c.offset <= c.tolerance
}

// UserHasScrolled reports whether the user has deliberately left the
// bottom of the transcript.
func (c *Controller) UserHasScrolled() bool {
	return c.userHasScrolled
}

// NewMessageAffordance reports whether the jump-to-latest affordance
// should be visible.
func (c *Controller) NewMessageAffordance() bool {
	return c.newMessageAffordance
}

// SetViewportHeight records a viewport resize and re-anchors; the last
// height of a resize burst always sticks. The return value is a render
// hint, paced at the intake rate, so a burst coalesces into one redraw
// without leaving stale geometry behind.
func (c *Controller) SetViewportHeight(height int) bool {
	if height == c.viewportHeight {
		return false
	}
	c.viewportHeight = height
	c.reanchor()
	return c.resizeLimiter.Allow()
}

// SetContentHeight records new content height, typically after a chunk
// renders. A sticky viewport follows the bottom; a frozen one holds its
// pinned offset.
func (c *Controller) SetContentHeight(height int) {
	if height == c.contentHeight {
		return
	}
	c.contentHeight = height
	c.reanchor()
}

// reanchor re-asserts the controller's position after a geometry change.
func (c *Controller) reanchor() {
	if c.replyFrozen {
		c.offset = c.clamp(c.frozenOffset)
		return
	}
	if !c.userHasScrolled {
		c.offset = c.maxOffset()
		return
	}
	c.offset = c.clamp(c.offset)
}

func (c *Controller) clamp(offset int) int {
	if offset < 0 {
		return 0
	}
	if max := c.maxOffset(); offset > max {
		return max
	}
	return offset
}

// =============================================================================
// EVENT INTAKE
// =============================================================================

// HandleScroll processes a user scroll to the given offset. Intake is
// throttled to roughly one event per frame; dropped events return false.
// Scrolling out of the tolerance band sets userHasScrolled; scrolling
// back inside clears it and dismisses the affordance.
func (c *Controller) HandleScroll(offset int) bool {
	if c.replyFrozen {
		return false
	}
	if !c.limiter.Allow() {
		return false
	}

	c.offset = c.clamp(offset)
	if c.AtBottom() {
		c.userHasScrolled = false
		c.newMessageAffordance = false
	} else {
		c.userHasScrolled = true
	}
	return true
}

// HandleClick processes a click in the transcript. A plain click
// re-enables auto-scroll; a click that ends a text selection never does,
// so selecting text mid-stream doesn't snap the view away.
func (c *Controller) HandleClick(hasTextSelection bool) {
	if hasTextSelection || c.replyFrozen {
		return
	}
	c.userHasScrolled = false
	c.newMessageAffordance = false
	c.offset = c.maxOffset()
}

// ScrollToBottom jumps to the bottom and re-enables auto-scroll. Used by
// the jump-to-latest affordance.
func (c *Controller) ScrollToBottom() {
	c.offset = c.maxOffset()
	c.userHasScrolled = false
	c.newMessageAffordance = false
}

// =============================================================================
// MESSAGE ARRIVAL
// =============================================================================

// SwitchEntity re-targets the controller at another entity: jump to the
// bottom with auto-scroll re-enabled. The session context decides later
// whether arrivals on this entity are new or replayed.
func (c *Controller) SwitchEntity(entityID string, messageCount int) {
	c.entityID = entityID
	c.session.Observe(entityID, messageCount)
	c.userHasScrolled = false
	c.newMessageAffordance = false
	c.replyFrozen = false
	c.offset = c.maxOffset()
}

// ObserveMessageCount reconciles the entity's message count against the
// session's last-seen value. Genuinely new arrivals either keep the view
// pinned to the bottom (auto-scroll) or raise the affordance when the
// user is scrolled up. Reloads change nothing.
func (c *Controller) ObserveMessageCount(count int) {
	if c.entityID == "" {
		return
	}
	newMessages := c.session.Observe(c.entityID, count)
	if newMessages == 0 {
		return
	}
	if c.replyFrozen {
		// Arrivals during reply mode surface as the affordance once the
		// freeze lifts; never move a pinned view.
		c.newMessageAffordance = true
		return
	}
	if c.userHasScrolled {
		c.newMessageAffordance = true
		return
	}
	c.offset = c.maxOffset()
}

// =============================================================================
// REPLY MODE
// =============================================================================

// EnterReplyMode pins the viewport at its current offset. While pinned,
// geometry changes and scroll intake leave the view exactly where the
// user left it, so the message being replied to stays on screen.
func (c *Controller) EnterReplyMode() {
	if c.replyFrozen {
		return
	}
	c.replyFrozen = true
	c.frozenOffset = c.offset
}

// ExitReplyMode lifts the freeze and re-enables auto-scroll.
func (c *Controller) ExitReplyMode() {
	if !c.replyFrozen {
		return
	}
	c.replyFrozen = false
	c.userHasScrolled = false
	c.offset = c.maxOffset()
}

// ReplyFrozen reports whether reply mode has the viewport pinned.
func (c *Controller) ReplyFrozen() bool {
	return c.replyFrozen
}
