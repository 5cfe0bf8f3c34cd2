// Package scrub implements trim scrubbing: a transient, page-filling preview
// that shares a video clip's footage and plays it in isolation.
//
// The controller moves Idle -> Scrubbing(preview) -> Idle. Teardown is two
// explicit phases. PrepareTeardown leaves the scrubbing state and registers
// the preview with the synchronizer as pending teardown; CommitTeardown then
// destroys the block. The synchronizer swallows the resulting destroyed
// event instead of reloading.
package scrub

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/cutline/internal/clipsync"
	"github.com/roach88/cutline/internal/scene"
	"github.com/roach88/cutline/internal/timeline"
)

// Phase is the controller state.
type Phase int

const (
	Idle Phase = iota
	Scrubbing
)

func (p Phase) String() string {
	if p == Scrubbing {
		return "scrubbing"
	}
	return "idle"
}

const (
	opStart = "start scrubbing"
	opScrub = "scrub"
	opStop  = "stop scrubbing"
)

// Controller drives scrubbing. Its methods must run on the control
// goroutine.
type Controller struct {
	eng   scene.Engine
	sync  *clipsync.Synchronizer
	state *timeline.State

	phase    Phase
	clip     scene.BlockID
	preview  scene.BlockID
	fill     scene.BlockID
	footage  time.Duration
	position time.Duration

	// fill trim window before scrubbing started
	savedOffset, savedLength float64

	teardown scene.BlockID
}

// New creates an idle controller.
func New(eng scene.Engine, sync *clipsync.Synchronizer) *Controller {
	return &Controller{eng: eng, sync: sync, state: sync.State()}
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	return c.phase
}

// Preview returns the preview block while scrubbing.
func (c *Controller) Preview() scene.BlockID {
	return c.preview
}

// Position returns the last scrub position.
func (c *Controller) Position() time.Duration {
	return c.position
}

// Start begins scrubbing the footage of a trimmable video clip.
func (c *Controller) Start(ctx context.Context, id scene.BlockID) error {
	if err := ctx.Err(); err != nil {
		return timeline.Cancelled(opStart, id, err)
	}
	if c.phase == Scrubbing {
		return timeline.Validationf(opStart, id, "already scrubbing %s", c.clip)
	}
	clip, ok := c.state.Clip(id)
	switch {
	case !ok:
		return timeline.Validationf(opStart, id, "clip is not on the timeline")
	case clip.Kind != timeline.KindVideo || !clip.AllowsTrimming:
		return timeline.Validationf(opStart, id, "only video clips can be scrubbed, not %s", clip.Kind)
	case !clip.Fill.Valid():
		return timeline.Validationf(opStart, id, "clip has no footage")
	case !clip.FootageDuration.Valid:
		return timeline.Validationf(opStart, id, "footage duration unknown")
	}
	page := c.state.Page

	preview, err := c.eng.Create(scene.TypeGraphic)
	if err != nil {
		return timeline.Resource(opStart, id, err)
	}
	c.sync.MarkTransient(preview)
	if err := c.attach(page, preview, clip.Fill); err != nil {
		c.discard(preview)
		return timeline.Resource(opStart, id, err)
	}

	c.savedOffset = c.readOr(clip.Fill, scene.PropTrimOffset, 0)
	c.savedLength = c.readOr(clip.Fill, scene.PropTrimLength, 0)
	if err := c.openWindow(clip.Fill, clip.FootageDuration.Value); err != nil {
		c.restoreWindow(clip.Fill)
		c.discard(preview)
		return timeline.Resource(opStart, id, err)
	}

	c.phase = Scrubbing
	c.clip = id
	c.preview = preview
	c.fill = clip.Fill
	c.footage = clip.FootageDuration.Value
	c.position = 0
	c.state.SetScrubbing(preview)
	c.state.Notify()
	slog.Debug("scrubbing started", "block", id, "preview", preview)
	return nil
}

// attach gives preview the shared fill, sizes it to the page and adds it.
func (c *Controller) attach(page, preview, fill scene.BlockID) error {
	if err := c.eng.SetFill(preview, fill); err != nil {
		return err
	}
	for _, p := range []scene.Property{scene.PropWidth, scene.PropHeight} {
		if err := c.eng.SetFloat(preview, p, c.readOr(page, p, 0)); err != nil {
			return err
		}
	}
	return c.eng.AppendChild(page, preview)
}

// openWindow resets the shared fill's trim window to the whole footage and
// isolates its playback.
func (c *Controller) openWindow(fill scene.BlockID, footage time.Duration) error {
	if err := c.eng.SetFloat(fill, scene.PropTrimOffset, 0); err != nil {
		return err
	}
	if err := c.eng.SetFloat(fill, scene.PropTrimLength, scene.Seconds(footage)); err != nil {
		return err
	}
	return c.eng.SetBool(fill, scene.PropSoloPlayback, true)
}

func (c *Controller) restoreWindow(fill scene.BlockID) {
	if err := c.eng.SetBool(fill, scene.PropSoloPlayback, false); err != nil {
		slog.Warn("solo playback not disabled", "block", fill, "error", err)
	}
	if err := c.eng.SetFloat(fill, scene.PropTrimOffset, c.savedOffset); err != nil {
		slog.Warn("trim window not restored", "block", fill, "error", err)
	}
	if err := c.eng.SetFloat(fill, scene.PropTrimLength, c.savedLength); err != nil {
		slog.Warn("trim window not restored", "block", fill, "error", err)
	}
}

func (c *Controller) readOr(id scene.BlockID, p scene.Property, def float64) float64 {
	v, err := c.eng.Float(id, p)
	if err != nil {
		slog.Debug("property unreadable", "block", id, "property", p, "error", err)
		return def
	}
	return v
}

// discard tears down a preview that never became active.
func (c *Controller) discard(preview scene.BlockID) {
	c.sync.ExpectTeardown(preview)
	if err := c.eng.Destroy(preview); err != nil {
		slog.Warn("preview not destroyed", "block", preview, "error", err)
	}
}

// Scrub moves the preview to t, clamped to the footage.
func (c *Controller) Scrub(ctx context.Context, t time.Duration) error {
	if err := ctx.Err(); err != nil {
		return timeline.Cancelled(opScrub, c.clip, err)
	}
	if c.phase != Scrubbing {
		return timeline.Validationf(opScrub, scene.NoBlock, "not scrubbing")
	}
	t = max(0, min(t, c.footage))
	if err := c.eng.SetFloat(c.fill, scene.PropPlaybackTime, scene.Seconds(t)); err != nil {
		return timeline.Resource(opScrub, c.clip, err)
	}
	c.position = t
	return nil
}

// Stop ends scrubbing. Stopping while idle does nothing. Teardown runs even
// when ctx is already cancelled.
func (c *Controller) Stop(_ context.Context) error {
	if c.phase != Scrubbing {
		return nil
	}
	if err := c.PrepareTeardown(); err != nil {
		return err
	}
	return c.CommitTeardown()
}

// PrepareTeardown disables isolation, restores the fill's trim window,
// leaves the scrubbing state and registers the preview as pending teardown.
func (c *Controller) PrepareTeardown() error {
	if c.phase != Scrubbing {
		return timeline.Validationf(opStop, scene.NoBlock, "not scrubbing")
	}
	c.restoreWindow(c.fill)
	c.sync.ExpectTeardown(c.preview)
	c.teardown = c.preview

	c.phase = Idle
	c.preview = scene.NoBlock
	c.state.ClearScrubbing()
	c.state.Notify()
	return nil
}

// CommitTeardown destroys the preview registered by PrepareTeardown.
func (c *Controller) CommitTeardown() error {
	id := c.teardown
	if !id.Valid() {
		return timeline.Validationf(opStop, scene.NoBlock, "no teardown prepared")
	}
	c.teardown = scene.NoBlock
	if err := c.eng.Destroy(id); err != nil {
		return timeline.Resource(opStop, id, err)
	}
	slog.Debug("scrubbing stopped", "block", c.clip, "preview", id)
	return nil
}
