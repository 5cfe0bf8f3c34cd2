package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/cutline/internal/clipsync"
	"github.com/roach88/cutline/internal/config"
	"github.com/roach88/cutline/internal/edit"
	"github.com/roach88/cutline/internal/playback"
	"github.com/roach88/cutline/internal/scene"
	"github.com/roach88/cutline/internal/scrub"
	"github.com/roach88/cutline/internal/store"
	"github.com/roach88/cutline/internal/thumbnail"
	"github.com/roach88/cutline/internal/timeline"
)

// maxSettleRounds bounds Settle so a feedback loop between the engine and
// the synchronizer surfaces as an error instead of a hang.
const maxSettleRounds = 64

// ErrClosed is returned by Submit once the session is closed.
var ErrClosed = errors.New("session closed")

// ErrNotSettled is returned by Settle when work keeps arriving.
var ErrNotSettled = errors.New("session did not settle")

// Option configures a Session.
type Option func(*Session)

// WithConfig replaces config.Default().
func WithConfig(c config.Config) Option {
	return func(s *Session) {
		s.cfg = c
	}
}

// WithStore journals every commit and caches thumbnails in st.
func WithStore(st *store.Store) Option {
	return func(s *Session) {
		s.store = st
	}
}

// WithIDGenerator replaces UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Session) {
		s.ids = g
	}
}

// WithClock sets the journal clock. Without it the clock resumes from the
// store's last seq.
func WithClock(c *Clock) Option {
	return func(s *Session) {
		s.clock = c
	}
}

// WithThumbnailer sets the renderer used for thumbnails. Without it the
// engine itself must implement scene.Thumbnailer.
func WithThumbnailer(t scene.Thumbnailer) Option {
	return func(s *Session) {
		s.thumbs = t
	}
}

// WithFlushInterval makes Run flush engine events every d.
func WithFlushInterval(d time.Duration) Option {
	return func(s *Session) {
		s.flushEvery = d
	}
}

// Session is one open timeline.
type Session struct {
	id         string
	eng        scene.Engine
	cfg        config.Config
	store      *store.Store
	ids        IDGenerator
	clock      *Clock
	thumbs     scene.Thumbnailer
	flushEvery time.Duration

	queue       *workQueue
	unsubscribe func()
	history     []string

	state      *timeline.State
	sync       *clipsync.Synchronizer
	editor     *edit.Editor
	scrubber   *scrub.Controller
	player     *playback.Controller
	thumbnails *thumbnail.Provider
}

// New binds a session to eng's current page and loads the initial
// projection.
func New(ctx context.Context, eng scene.Engine, opts ...Option) (*Session, error) {
	s := &Session{
		eng:   eng,
		cfg:   config.Default(),
		ids:   UUIDv7Generator{},
		queue: newWorkQueue(),
		state: timeline.NewState(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.thumbs == nil {
		t, ok := eng.(scene.Thumbnailer)
		if !ok {
			return nil, fmt.Errorf("engine %T renders no thumbnails: use WithThumbnailer", eng)
		}
		s.thumbs = t
	}

	if s.clock == nil {
		var last int64
		if s.store != nil {
			var err error
			if last, err = s.store.LastSeq(ctx); err != nil {
				return nil, fmt.Errorf("resume clock: %w", err)
			}
		}
		s.clock = NewClockAt(last)
	}
	s.id = s.ids.Generate()

	var thumbOpts []thumbnail.Option
	if s.store != nil {
		thumbOpts = append(thumbOpts, thumbnail.WithCache(s.store))
	}
	s.thumbnails = thumbnail.New(s.thumbs, s.state, thumbOpts...)

	s.sync = clipsync.New(eng, s.state,
		clipsync.WithUnboundedThreshold(s.cfg.UnboundedThresholdSeconds),
		clipsync.WithForceLoadTimeout(s.cfg.ForceLoadTimeout()),
		clipsync.WithPoster(s),
		clipsync.OnRemoved(s.thumbnails.Cancel),
	)
	s.editor = edit.New(eng, s.sync,
		edit.WithMinClipDuration(s.cfg.MinClipDuration()),
		edit.WithDeferrer(s),
		edit.WithJournal(journal{s}),
	)
	s.scrubber = scrub.New(eng, s.sync)
	s.player = playback.New(eng, s.state, playback.WithTick(s.cfg.PlayheadTick()))

	s.unsubscribe = eng.Subscribe(func(events []scene.Event) {
		s.queue.Enqueue(item{batch: events})
	})

	if err := s.sync.Reload(ctx); err != nil {
		s.Close()
		return nil, err
	}

	slog.Debug("session opened", "session", s.id, "page", s.state.Page, "clips", s.state.Len())
	return s, nil
}

// ID returns the session id recorded with every journal entry.
func (s *Session) ID() string { return s.id }

// Config returns the effective configuration.
func (s *Session) Config() config.Config { return s.cfg }

// State returns the timeline projection.
func (s *Session) State() *timeline.State { return s.state }

// Synchronizer returns the clip synchronizer.
func (s *Session) Synchronizer() *clipsync.Synchronizer { return s.sync }

// Editor returns the editing operations.
func (s *Session) Editor() *edit.Editor { return s.editor }

// Scrubber returns the scrubbing controller.
func (s *Session) Scrubber() *scrub.Controller { return s.scrubber }

// Playback returns the playback controller.
func (s *Session) Playback() *playback.Controller { return s.player }

// Thumbnails returns the thumbnail provider.
func (s *Session) Thumbnails() *thumbnail.Provider { return s.thumbnails }

// ThumbnailRequest builds the configured request for a clip: the
// thumbnail size and count from the config, covering the footage the clip
// shows.
func (s *Session) ThumbnailRequest(id scene.BlockID) (thumbnail.Request, error) {
	c, ok := s.state.Clip(id)
	if !ok {
		return thumbnail.Request{}, timeline.Validationf("thumbnails", id, "clip is not on the timeline")
	}
	return thumbnail.RequestFor(*c, s.cfg.ThumbnailSize(), s.cfg.Thumbnail.Count), nil
}

// History returns the labels of the commits made in this session.
func (s *Session) History() []string {
	return append([]string(nil), s.history...)
}

// Post queues fn for the control goroutine. Safe from any goroutine.
func (s *Session) Post(fn func()) {
	if !s.queue.Enqueue(item{task: fn}) {
		slog.Debug("post after close dropped", "session", s.id)
	}
}

// Defer delivers pending engine events to the queue, then queues fn behind
// them.
func (s *Session) Defer(fn func()) {
	s.eng.Flush()
	s.Post(fn)
}

// Run processes queued work until ctx is cancelled or Close is called.
//
// Must be called from exactly one goroutine. A batch the synchronizer
// rejects is logged and processing continues.
func (s *Session) Run(ctx context.Context) error {
	slog.Info("session starting", "session", s.id)

	var tick <-chan time.Time
	if s.flushEvery > 0 {
		ticker := time.NewTicker(s.flushEvery)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if it, ok := s.queue.TryDequeue(); ok {
			s.process(ctx, it)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("session stopping: context cancelled", "session", s.id)
			s.queue.Close()
			return ctx.Err()

		case <-tick:
			s.eng.Flush()

		case <-s.queue.Wait():
			// The signal channel is closed with the queue.
			if s.queue.Len() == 0 && s.queue.Closed() {
				slog.Info("session stopping: queue closed", "session", s.id)
				return nil
			}
		}
	}
}

// Submit runs fn on the control goroutine driven by Run and waits for it.
// The engine is flushed afterwards so fn's events follow it in the queue.
func (s *Session) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	ok := s.queue.Enqueue(item{task: func() {
		err := fn(ctx)
		s.eng.Flush()
		done <- err
	}})
	if !ok {
		return ErrClosed
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn on the caller's goroutine and settles afterwards. fn's error
// is returned ahead of a settle error.
func (s *Session) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if serr := s.Settle(ctx); err == nil {
		err = serr
	}
	return err
}

// Settle flushes the engine and processes queued work on the caller's
// goroutine, waiting for background loads, until nothing is left.
func (s *Session) Settle(ctx context.Context) error {
	for range maxSettleRounds {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.eng.Flush()
		n := s.drain(ctx)
		if err := s.waitLoads(ctx); err != nil {
			return err
		}
		if n == 0 && s.queue.Len() == 0 {
			return nil
		}
	}
	return ErrNotSettled
}

func (s *Session) drain(ctx context.Context) int {
	n := 0
	for {
		it, ok := s.queue.TryDequeue()
		if !ok {
			return n
		}
		s.process(ctx, it)
		n++
	}
}

func (s *Session) waitLoads(ctx context.Context) error {
	if !s.sync.Loading() {
		return nil
	}
	done := make(chan struct{})
	go func() {
		s.sync.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// process handles one item. Runs only on the control goroutine.
func (s *Session) process(ctx context.Context, it item) {
	if it.task != nil {
		it.task()
		return
	}
	if err := s.sync.HandleBatch(ctx, it.batch); err != nil {
		slog.Error("event batch failed",
			"session", s.id,
			"events", len(it.batch),
			"error", err,
		)
	}
}

// Close stops background work and rejects further posts. It does not close
// the store.
func (s *Session) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.thumbnails.CancelAll()
	s.sync.Close()
	s.queue.Close()
	s.pruneThumbnails()
}

// pruneThumbnails bounds the store's thumbnail cache to
// thumbnail.cache_limit.
func (s *Session) pruneThumbnails() {
	limit := s.cfg.Thumbnail.CacheLimit
	if s.store == nil || limit == 0 {
		return
	}
	n, err := s.store.PruneThumbnails(context.Background(), limit)
	if err != nil {
		slog.Warn("thumbnail cache prune failed", "session", s.id, "error", err)
		return
	}
	if n > 0 {
		slog.Debug("thumbnail cache pruned", "session", s.id, "deleted", n, "limit", limit)
	}
}
