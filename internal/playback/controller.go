// Package playback drives the page playhead against the timeline model.
package playback

import (
	"context"
	"time"

	"github.com/roach88/cutline/internal/scene"
	"github.com/roach88/cutline/internal/timeline"
)

// DefaultTick is the smallest playhead step.
const DefaultTick = time.Millisecond

const (
	opPlay  = "play"
	opPause = "pause"
	opSeek  = "seek"
	opClamp = "clamp playhead"
)

// Option configures a Controller.
type Option func(*Controller)

// WithTick sets the minimal time unit used to keep a clamped playhead
// inside the selected clip.
func WithTick(d time.Duration) Option {
	return func(c *Controller) {
		c.tick = d
	}
}

// Controller plays, pauses and positions the current page.
type Controller struct {
	eng   scene.Engine
	state *timeline.State
	tick  time.Duration
}

// New creates a Controller reading the timeline from state.
func New(eng scene.Engine, state *timeline.State, opts ...Option) *Controller {
	c := &Controller{eng: eng, state: state, tick: DefaultTick}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) page(ctx context.Context, op string) (scene.BlockID, error) {
	if err := ctx.Err(); err != nil {
		return scene.NoBlock, timeline.Cancelled(op, scene.NoBlock, err)
	}
	page := c.state.Page
	if !page.Valid() || !c.eng.Exists(page) {
		return scene.NoBlock, timeline.Validationf(op, scene.NoBlock, "no current page")
	}
	return page, nil
}

// Position returns the playhead.
func (c *Controller) Position() (time.Duration, error) {
	page := c.state.Page
	v, err := c.eng.Float(page, scene.PropPlaybackTime)
	if err != nil {
		return 0, timeline.Resource("position", page, err)
	}
	return scene.Duration(v), nil
}

// Playing reports whether the page is playing.
func (c *Controller) Playing() (bool, error) {
	page := c.state.Page
	v, err := c.eng.Bool(page, scene.PropPlaying)
	if err != nil {
		return false, timeline.Resource("playing", page, err)
	}
	return v, nil
}

// Play starts playback, rewinding first when the playhead is at or past
// the end.
func (c *Controller) Play(ctx context.Context) error {
	page, err := c.page(ctx, opPlay)
	if err != nil {
		return err
	}
	pos, err := c.Position()
	if err != nil {
		return err
	}
	if pos >= c.state.TotalDuration {
		if err := c.eng.SetFloat(page, scene.PropPlaybackTime, 0); err != nil {
			return timeline.Resource(opPlay, page, err)
		}
	}
	if err := c.eng.SetBool(page, scene.PropPlaying, true); err != nil {
		return timeline.Resource(opPlay, page, err)
	}
	return nil
}

// Pause stops playback.
func (c *Controller) Pause(ctx context.Context) error {
	page, err := c.page(ctx, opPause)
	if err != nil {
		return err
	}
	if err := c.eng.SetBool(page, scene.PropPlaying, false); err != nil {
		return timeline.Resource(opPause, page, err)
	}
	return nil
}

// TogglePlay plays when paused and pauses when playing.
func (c *Controller) TogglePlay(ctx context.Context) error {
	playing, err := c.Playing()
	if err != nil {
		return err
	}
	if playing {
		return c.Pause(ctx)
	}
	return c.Play(ctx)
}

// Seek moves the playhead to t, clamped to the timeline.
func (c *Controller) Seek(ctx context.Context, t time.Duration) error {
	page, err := c.page(ctx, opSeek)
	if err != nil {
		return err
	}
	return c.seek(opSeek, page, max(0, min(t, c.state.TotalDuration)))
}

func (c *Controller) seek(op string, page scene.BlockID, t time.Duration) error {
	if err := c.eng.SetFloat(page, scene.PropPlaybackTime, scene.Seconds(t)); err != nil {
		return timeline.Resource(op, page, err)
	}
	return nil
}

// ClampPlayheadToSelectedClip snaps a playhead outside the selected clip to
// the nearer bound. The end bound is one tick early so the playhead stays in
// the clip instead of landing on the next one. Without a selection it does
// nothing.
func (c *Controller) ClampPlayheadToSelectedClip(ctx context.Context) error {
	page, err := c.page(ctx, opClamp)
	if err != nil {
		return err
	}
	clip, ok := c.state.Clip(c.state.Selected)
	if !ok {
		return nil
	}
	start := c.state.Start(clip)
	end := start + clip.Duration.Or(clip.DisplayDuration)
	pos, err := c.Position()
	if err != nil {
		return err
	}
	switch {
	case pos < start:
		return c.seek(opClamp, page, start)
	case pos >= end:
		return c.seek(opClamp, page, max(start, end-c.tick))
	}
	return nil
}
