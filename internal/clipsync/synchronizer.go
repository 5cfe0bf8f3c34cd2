package clipsync

import (
	"context"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/roach88/cutline/internal/scene"
	"github.com/roach88/cutline/internal/tasks"
	"github.com/roach88/cutline/internal/timeline"
)

// DefaultUnboundedThreshold is the duration, in seconds, at or above which an
// engine value is treated as the unbounded sentinel.
const DefaultUnboundedThreshold = 1e9

// Poster schedules fn on the control goroutine.
type Poster interface {
	Post(fn func())
}

// PosterFunc adapts a function to Poster.
type PosterFunc func(fn func())

// Post implements Poster.
func (f PosterFunc) Post(fn func()) { f(fn) }

// Stats counts how batches were classified.
type Stats struct {
	Reloads     int
	Incremental int
	Skipped     int
	Swallowed   int
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithUnboundedThreshold sets the sentinel threshold in seconds.
func WithUnboundedThreshold(seconds float64) Option {
	return func(s *Synchronizer) {
		s.unbounded = seconds
	}
}

// WithForceLoadTimeout bounds each force-load task. Zero means no timeout.
func WithForceLoadTimeout(d time.Duration) Option {
	return func(s *Synchronizer) {
		s.loadTimeout = d
	}
}

// WithPoster sets where force-load completions resume. Without one they
// queue up until Drain is called.
func WithPoster(p Poster) Option {
	return func(s *Synchronizer) {
		s.poster = p
	}
}

// OnRemoved registers fn to run for every clip id dropped from the
// projection.
func OnRemoved(fn func(scene.BlockID)) Option {
	return func(s *Synchronizer) {
		s.removed = append(s.removed, fn)
	}
}

// Synchronizer projects engine state into a timeline.State. All methods
// except Wait must run on the control goroutine.
type Synchronizer struct {
	eng   scene.Engine
	state *timeline.State

	unbounded   float64
	loadTimeout time.Duration
	poster      Poster
	removed     []func(scene.BlockID)

	ordering  []scene.BlockID
	transient map[scene.BlockID]bool
	teardown  map[scene.BlockID]bool

	mu     sync.Mutex
	posted []func()

	loads  tasks.Group[scene.BlockID]
	base   context.Context
	cancel context.CancelFunc
	stats  Stats
}

// New creates a Synchronizer that writes into state.
func New(eng scene.Engine, state *timeline.State, opts ...Option) *Synchronizer {
	base, cancel := context.WithCancel(context.Background())
	s := &Synchronizer{
		eng:       eng,
		state:     state,
		unbounded: DefaultUnboundedThreshold,
		transient: make(map[scene.BlockID]bool),
		teardown:  make(map[scene.BlockID]bool),
		base:      base,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.poster == nil {
		s.poster = PosterFunc(s.enqueue)
	}
	return s
}

// State returns the projection this synchronizer maintains.
func (s *Synchronizer) State() *timeline.State {
	return s.state
}

// Stats returns the classification counters.
func (s *Synchronizer) Stats() Stats {
	return s.stats
}

// MarkTransient excludes id from the projection and the ordering signature.
func (s *Synchronizer) MarkTransient(id scene.BlockID) {
	s.transient[id] = true
}

// ExpectTeardown registers id as about to be destroyed. Its destroyed event
// will be swallowed instead of forcing a reload.
func (s *Synchronizer) ExpectTeardown(id scene.BlockID) {
	s.transient[id] = true
	s.teardown[id] = true
}

// Close cancels outstanding force-load tasks.
func (s *Synchronizer) Close() {
	s.cancel()
	s.loads.CancelAll()
}

// Wait blocks until every force-load goroutine has returned. Completions
// they posted may still be queued.
func (s *Synchronizer) Wait() {
	s.loads.Wait()
}

func (s *Synchronizer) enqueue(fn func()) {
	s.mu.Lock()
	s.posted = append(s.posted, fn)
	s.mu.Unlock()
}

// Drain runs completions queued without a Poster. It returns how many ran.
func (s *Synchronizer) Drain() int {
	s.mu.Lock()
	fns := s.posted
	s.posted = nil
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

// Loading reports whether a force-load task is outstanding.
func (s *Synchronizer) Loading() bool {
	return s.loads.Len() > 0
}

// HandleBatch applies one event batch. It returns an error only when the
// current page cannot be read.
func (s *Synchronizer) HandleBatch(ctx context.Context, events []scene.Event) error {
	if err := ctx.Err(); err != nil {
		return timeline.Cancelled("sync", scene.NoBlock, err)
	}
	page, err := s.eng.CurrentPage()
	if err != nil {
		return timeline.Resource("sync", scene.NoBlock, err)
	}

	if s.isPlayheadTick(page, events) {
		s.stats.Skipped++
		return nil
	}

	events, swallowed := s.filterTransient(events)
	if len(events) == 0 {
		if swallowed {
			s.state.Notify()
		}
		return nil
	}

	dirty := page != s.state.Page
	for _, ev := range events {
		if ev.Type == scene.EventCreated || ev.Type == scene.EventDestroyed {
			dirty = true
			break
		}
	}
	if !dirty {
		sig, err := s.signature(page)
		if err != nil {
			return timeline.Resource("sync", page, err)
		}
		dirty = !slices.Equal(sig, s.ordering)
	}
	if dirty {
		return s.Reload(ctx)
	}

	s.stats.Incremental++
	seen := make(map[scene.BlockID]bool, len(events))
	for _, ev := range events {
		c, ok := s.state.Owner(ev.Block)
		if !ok || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		s.refresh(c)
	}
	s.layout()
	s.state.Notify()
	return nil
}

func (s *Synchronizer) isPlayheadTick(page scene.BlockID, events []scene.Event) bool {
	if len(events) == 0 || page != s.state.Page {
		return false
	}
	for _, ev := range events {
		if ev.Block != page || ev.Type != scene.EventUpdated {
			return false
		}
	}
	playing, err := s.eng.Bool(page, scene.PropPlaying)
	return err == nil && playing
}

// filterTransient drops events for transient blocks and consumes pending
// teardowns. It reports whether a teardown was consumed.
func (s *Synchronizer) filterTransient(events []scene.Event) ([]scene.Event, bool) {
	swallowed := false
	out := events[:0:0]
	for _, ev := range events {
		if !s.transient[ev.Block] {
			out = append(out, ev)
			continue
		}
		if ev.Type != scene.EventDestroyed {
			continue
		}
		delete(s.transient, ev.Block)
		if s.teardown[ev.Block] {
			delete(s.teardown, ev.Block)
			if s.state.ScrubbingPreview == ev.Block {
				s.state.ClearScrubbing()
			}
			s.stats.Swallowed++
			swallowed = true
			slog.Debug("teardown swallowed", "block", ev.Block)
		}
	}
	return out, swallowed
}

// signature is the page's children followed by the background track's
// children, transient blocks excluded.
func (s *Synchronizer) signature(page scene.BlockID) ([]scene.BlockID, error) {
	children, err := s.eng.Children(page)
	if err != nil {
		return nil, err
	}
	sig := slices.DeleteFunc(children, func(id scene.BlockID) bool { return s.transient[id] })
	if bg := s.findBackground(sig); bg.Valid() {
		bgChildren, err := s.eng.Children(bg)
		if err != nil {
			return nil, err
		}
		sig = append(sig, bgChildren...)
	}
	return sig, nil
}

func (s *Synchronizer) findBackground(children []scene.BlockID) scene.BlockID {
	for _, id := range children {
		if t, err := s.eng.Type(id); err == nil && t == scene.TypeTrack {
			return id
		}
	}
	return scene.NoBlock
}

// Reload discards the projection and rebuilds it from the engine.
func (s *Synchronizer) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return timeline.Cancelled("reload", scene.NoBlock, err)
	}
	page, err := s.eng.CurrentPage()
	if err != nil {
		return timeline.Resource("reload", scene.NoBlock, err)
	}
	children, err := s.eng.Children(page)
	if err != nil {
		return timeline.Resource("reload", page, err)
	}
	children = slices.DeleteFunc(children, func(id scene.BlockID) bool { return s.transient[id] })

	previous := make(map[scene.BlockID]*timeline.Clip, s.state.Len())
	for _, c := range s.state.Clips() {
		previous[c.ID] = c
	}
	s.state.Reset(page)
	s.stats.Reloads++

	bg := s.findBackground(children)
	s.state.BackgroundBlock = bg

	var foreground []*timeline.Clip
	for _, id := range children {
		if id == bg {
			continue
		}
		if c := s.build(id, previous[id], false); c != nil {
			foreground = append(foreground, c)
		}
	}
	for _, c := range relocateAudio(foreground) {
		s.state.AddForeground(c)
	}

	sig := slices.Clone(children)
	if bg.Valid() {
		bgChildren, err := s.eng.Children(bg)
		if err != nil {
			slog.Warn("background track children unreadable", "block", bg, "error", err)
		}
		for _, id := range bgChildren {
			if c := s.build(id, previous[id], true); c != nil {
				s.state.AddBackground(c)
			}
		}
		sig = append(sig, bgChildren...)
	}
	s.ordering = sig

	for id := range previous {
		if _, ok := s.state.Clip(id); !ok {
			s.dropped(id)
		}
	}
	if s.state.Selected.Valid() {
		if _, ok := s.state.Clip(s.state.Selected); !ok {
			s.state.Select(scene.NoBlock)
		}
	}

	s.layout()
	s.state.Notify()
	slog.Debug("timeline reloaded", "page", page, "clips", s.state.Len(), "total", s.state.TotalDuration)
	return nil
}

// relocateAudio moves audio clips ahead of the rest. They are removed back
// to front and each is reinserted at the front, which keeps their relative
// order.
func relocateAudio(clips []*timeline.Clip) []*timeline.Clip {
	var audio []*timeline.Clip
	for i := len(clips) - 1; i >= 0; i-- {
		if clips[i].Kind.IsAudio() {
			audio = append(audio, clips[i])
			clips = slices.Delete(clips, i, i+1)
		}
	}
	for _, c := range audio {
		clips = slices.Insert(clips, 0, c)
	}
	return clips
}

// RefreshClip re-reads one clip's fields from the engine and re-lays out
// the timeline. Editing operations use it to update the projection before
// the next batch arrives.
func (s *Synchronizer) RefreshClip(id scene.BlockID) bool {
	c, ok := s.state.Clip(id)
	if !ok {
		return false
	}
	s.refresh(c)
	s.layout()
	s.state.Notify()
	return true
}

func (s *Synchronizer) layout() {
	total, _ := s.state.Layout()
	page := s.state.Page
	if !page.Valid() {
		return
	}
	current, err := s.eng.Float(page, scene.PropDuration)
	if err == nil && scene.Duration(current) == total {
		return
	}
	if err := s.eng.SetFloat(page, scene.PropDuration, scene.Seconds(total)); err != nil {
		slog.Warn("page duration write failed", "page", page, "error", err)
	}
}

func (s *Synchronizer) dropped(id scene.BlockID) {
	s.loads.Cancel(id)
	for _, fn := range s.removed {
		fn(id)
	}
}

// isUnbounded reports whether an engine duration is the unbounded sentinel.
func (s *Synchronizer) isUnbounded(seconds float64) bool {
	return math.IsInf(seconds, 1) || seconds >= s.unbounded
}
