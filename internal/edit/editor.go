// Package edit implements the editing commands that mutate the timeline.
//
// Every command validates before it touches the engine, applies its writes,
// refreshes the affected part of the projection synchronously and ends with
// one commit (undo boundary). A command returns nil or a *timeline.Error.
package edit

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/cutline/internal/clipsync"
	"github.com/roach88/cutline/internal/scene"
	"github.com/roach88/cutline/internal/timeline"
)

// DefaultMinClipDuration is the shortest piece Split may produce.
const DefaultMinClipDuration = 100 * time.Millisecond

// Commit labels, one per command.
const (
	OpSetTrim          = "set trim"
	OpSplit            = "split"
	OpToggleBackground = "toggle background"
	OpReorder          = "reorder background"
	OpMute             = "mute"
	OpVolume           = "volume"
	OpDelete           = "delete"
	OpSelect           = "select"
)

// Deferrer runs fn once pending engine events have been delivered.
type Deferrer interface {
	Defer(fn func())
}

// Journal records a snapshot for every commit.
type Journal interface {
	Record(ctx context.Context, label string, snap timeline.Snapshot) error
}

// Option configures an Editor.
type Option func(*Editor)

// WithMinClipDuration sets the split floor.
func WithMinClipDuration(d time.Duration) Option {
	return func(e *Editor) {
		e.minClip = d
	}
}

// WithDeferrer sets where post-settle work such as selecting a split's
// second piece runs. Without one it runs immediately.
func WithDeferrer(d Deferrer) Option {
	return func(e *Editor) {
		e.deferrer = d
	}
}

// WithJournal records every commit.
func WithJournal(j Journal) Option {
	return func(e *Editor) {
		e.journal = j
	}
}

// Editor applies editing commands. Its methods must run on the control
// goroutine.
type Editor struct {
	eng      scene.Engine
	sync     *clipsync.Synchronizer
	state    *timeline.State
	minClip  time.Duration
	deferrer Deferrer
	journal  Journal
}

// New creates an Editor over the synchronizer's projection.
func New(eng scene.Engine, sync *clipsync.Synchronizer, opts ...Option) *Editor {
	e := &Editor{
		eng:     eng,
		sync:    sync,
		state:   sync.State(),
		minClip: DefaultMinClipDuration,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MinClipDuration returns the split floor in effect.
func (e *Editor) MinClipDuration() time.Duration {
	return e.minClip
}

func (e *Editor) clip(ctx context.Context, op string, id scene.BlockID) (*timeline.Clip, error) {
	if err := ctx.Err(); err != nil {
		return nil, timeline.Cancelled(op, id, err)
	}
	c, ok := e.state.Clip(id)
	if !ok {
		return nil, timeline.Validationf(op, id, "clip is not on the timeline")
	}
	return c, nil
}

func (e *Editor) setFloat(op string, id scene.BlockID, p scene.Property, v float64) error {
	if err := e.eng.SetFloat(id, p, v); err != nil {
		return timeline.Resource(op, id, err)
	}
	return nil
}

func (e *Editor) setDuration(op string, id scene.BlockID, p scene.Property, d time.Duration) error {
	return e.setFloat(op, id, p, scene.Seconds(d))
}

// commit ends a command with an undo boundary and journals the result.
func (e *Editor) commit(ctx context.Context, op string, id scene.BlockID) error {
	if err := e.eng.Commit(op); err != nil {
		return timeline.Resource(op, id, err)
	}
	if e.journal != nil {
		if err := e.journal.Record(ctx, op, e.state.Snapshot()); err != nil {
			slog.Error("journal record failed", "op", op, "block", id, "error", err)
		}
	}
	slog.Debug("committed", "op", op, "block", id)
	return nil
}

// reload re-derives the projection after a structural change so the commit
// sees the new layout. The change's own batch still carries created or
// destroyed events and reloads once more when it is delivered; that second
// reload reads the same engine state.
func (e *Editor) reload(ctx context.Context, op string, id scene.BlockID) error {
	if err := e.sync.Reload(ctx); err != nil {
		return timeline.Resource(op, id, err)
	}
	return nil
}

// fitForeground pulls foreground clips that overhang the background total
// back inside it, shortening those longer than the total.
func (e *Editor) fitForeground(op string) error {
	overhang := e.state.Overhang()
	if len(overhang) == 0 {
		return nil
	}
	total := e.state.TotalDuration
	for _, c := range overhang {
		d := c.Duration.Or(0)
		if d > total {
			d = total
			if err := e.setDuration(op, c.ID, scene.PropDuration, d); err != nil {
				return err
			}
		}
		if err := e.setDuration(op, c.ID, scene.PropTimeOffset, total-d); err != nil {
			return err
		}
		slog.Debug("foreground clip fitted", "block", c.ID, "offset", total-d, "duration", d)
		e.sync.RefreshClip(c.ID)
	}
	return nil
}
