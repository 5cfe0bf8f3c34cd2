// Package thumbnail generates preview frames and waveform chunks for clips.
//
// Frames returns a lazy sequence. Each iteration registers a task for the
// clip that cancels any earlier one, so at most one generation runs per clip
// and a restarted sequence supersedes the old one. A sequence stops at the
// first error; cancellation ends it silently.
package thumbnail

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/roach88/cutline/internal/scene"
	"github.com/roach88/cutline/internal/tasks"
	"github.com/roach88/cutline/internal/timeline"
)

const op = "thumbnail"

// Range is a span of footage time.
type Range struct {
	Start, End time.Duration
}

// Request asks for Count frames of a clip across Range.
type Request struct {
	Clip  scene.BlockID
	Size  scene.Size
	Range Range
	Count int
}

// Frame is one generated item. Audio clips yield Samples, all others Image.
type Frame struct {
	Time    time.Duration
	Image   []byte
	Samples []float32
}

// Cache stores rendered images by key.
type Cache interface {
	GetThumbnail(ctx context.Context, key string) ([]byte, bool, error)
	PutThumbnail(ctx context.Context, key string, data []byte) error
}

// Option configures a Provider.
type Option func(*Provider)

// WithCache keeps rendered images in c.
func WithCache(c Cache) Option {
	return func(p *Provider) {
		p.cache = c
	}
}

// Provider renders thumbnails through the engine's Thumbnailer.
type Provider struct {
	thumbs scene.Thumbnailer
	state  *timeline.State
	cache  Cache
	tasks  tasks.Group[scene.BlockID]
}

// New creates a Provider resolving clips in state.
func New(thumbs scene.Thumbnailer, state *timeline.State, opts ...Option) *Provider {
	p := &Provider{thumbs: thumbs, state: state}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RequestFor builds a request covering the footage a clip shows.
func RequestFor(c timeline.Clip, size scene.Size, count int) Request {
	start := c.TrimOffset
	return Request{
		Clip:  c.ID,
		Size:  size,
		Range: Range{Start: start, End: start + c.Duration.Or(c.DisplayDuration)},
		Count: count,
	}
}

type target struct {
	id    scene.BlockID
	audio bool
}

// Frames returns the sequence for req. The clip is resolved when Frames is
// called, which must happen on the control goroutine; the sequence itself
// may be consumed anywhere.
func (p *Provider) Frames(ctx context.Context, req Request) iter.Seq2[Frame, error] {
	tgt, err := p.resolve(req)
	if err != nil {
		return func(yield func(Frame, error) bool) {
			yield(Frame{}, err)
		}
	}
	return func(yield func(Frame, error) bool) {
		ctx, done := p.tasks.Begin(ctx, req.Clip)
		defer done()

		span := req.Range.End - req.Range.Start
		step := span / time.Duration(req.Count)
		for i := range req.Count {
			from := req.Range.Start + step*time.Duration(i)
			frame, err := p.generate(ctx, tgt, req, from, from+step)
			if err != nil {
				if timeline.IsCancelled(err) || ctx.Err() != nil {
					slog.Debug("thumbnail generation cancelled", "block", req.Clip)
					return
				}
				yield(Frame{}, timeline.Resource(op, req.Clip, err))
				return
			}
			if !yield(frame, nil) {
				return
			}
		}
	}
}

func (p *Provider) resolve(req Request) (target, error) {
	c, ok := p.state.Clip(req.Clip)
	switch {
	case !ok:
		return target{}, timeline.Validationf(op, req.Clip, "clip is not on the timeline")
	case req.Count <= 0:
		return target{}, timeline.Validationf(op, req.Clip, "count %d must be positive", req.Count)
	case req.Range.End <= req.Range.Start:
		return target{}, timeline.Validationf(op, req.Clip, "empty range [%s, %s)", req.Range.Start, req.Range.End)
	case req.Size.Width <= 0 || req.Size.Height <= 0:
		return target{}, timeline.Validationf(op, req.Clip, "invalid size %dx%d", req.Size.Width, req.Size.Height)
	}
	if c.Kind.IsAudio() {
		return target{id: c.ID, audio: true}, nil
	}
	if c.Kind == timeline.KindVideo {
		return target{id: c.MediaTarget()}, nil
	}
	return target{id: c.ID}, nil
}

func (p *Provider) generate(ctx context.Context, tgt target, req Request, from, to time.Duration) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if tgt.audio {
		samples, err := p.thumbs.Samples(ctx, tgt.id, scene.Seconds(from), scene.Seconds(to), req.Size.Width)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Time: from, Samples: samples}, nil
	}

	key := cacheKey(tgt.id, req.Size, from)
	if p.cache != nil {
		if data, ok, err := p.cache.GetThumbnail(ctx, key); err != nil {
			slog.Warn("thumbnail cache read failed", "key", key, "error", err)
		} else if ok {
			return Frame{Time: from, Image: data}, nil
		}
	}
	img, err := p.thumbs.Frame(ctx, tgt.id, req.Size, scene.Seconds(from))
	if err != nil {
		return Frame{}, err
	}
	if p.cache != nil {
		if err := p.cache.PutThumbnail(ctx, key, img); err != nil {
			slog.Warn("thumbnail cache write failed", "key", key, "error", err)
		}
	}
	return Frame{Time: from, Image: img}, nil
}

func cacheKey(id scene.BlockID, size scene.Size, at time.Duration) string {
	return fmt.Sprintf("%d/%dx%d/%d", uint32(id), size.Width, size.Height, at.Microseconds())
}

// Cancel stops generation for a clip. The synchronizer calls it when a clip
// leaves the timeline.
func (p *Provider) Cancel(id scene.BlockID) {
	p.tasks.Cancel(id)
}

// CancelAll stops every generation.
func (p *Provider) CancelAll() {
	p.tasks.CancelAll()
}

// Active returns the number of running generations.
func (p *Provider) Active() int {
	return p.tasks.Len()
}
