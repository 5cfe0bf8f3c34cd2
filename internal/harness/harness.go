package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/cutline/internal/config"
	"github.com/roach88/cutline/internal/scene"
	"github.com/roach88/cutline/internal/session"
	"github.com/roach88/cutline/internal/store"
	"github.com/roach88/cutline/internal/testutil"
	"github.com/roach88/cutline/internal/timeline"
)

// Harness executes one scenario.
type Harness struct {
	mem   *scene.Memory
	sess  *session.Session
	store *store.Store
	names map[string]scene.BlockID
}

// Run executes a scenario on a fresh engine with the default config.
func Run(ctx context.Context, s *Scenario) (*Result, error) {
	return RunWithConfig(ctx, s, config.Default())
}

// RunWithConfig executes a scenario with base as the config before the
// scenario's overrides. A failing step or assertion is reported in the
// result; the error is for scenarios that cannot be set up.
//
// Without a journal_path the journal is an in-memory database and ids and
// sequence numbers are deterministic. With one, commits are appended to that
// database under a fresh session id.
func RunWithConfig(ctx context.Context, s *Scenario, base config.Config) (*Result, error) {
	cfg := s.Config.Apply(base)
	opts := []session.Option{session.WithConfig(cfg)}

	path := cfg.JournalPath
	if path == "" {
		path = ":memory:"
		opts = append(opts,
			session.WithIDGenerator(testutil.NewSequenceGenerator(s.Name)),
			session.WithClock(session.NewClock()),
		)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer st.Close()

	h := &Harness{
		mem:   scene.NewMemory(),
		store: st,
		names: make(map[string]scene.BlockID),
	}
	if err := h.build(s.Scene); err != nil {
		return nil, err
	}

	sess, err := session.New(ctx, h.mem, append(opts, session.WithStore(st))...)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	defer sess.Close()
	h.sess = sess

	if err := sess.Settle(ctx); err != nil {
		return nil, fmt.Errorf("settle scene: %w", err)
	}

	result := NewResult(s.Name)
	for i, step := range s.Steps {
		err := sess.Do(ctx, func(ctx context.Context) error {
			return h.apply(ctx, step)
		})
		sr := StepResult{Index: i + 1, Op: step.Op, Clip: step.Clip, Code: errorCode(err)}
		if err != nil {
			sr.Error = err.Error()
			slog.Debug("step failed", "scenario", s.Name, "step", i+1, "op", step.Op, "error", err)
		}
		result.Steps = append(result.Steps, sr)
		checkExpectedError(result, sr, step.ExpectError)
	}

	if err := h.collect(ctx, result); err != nil {
		return nil, err
	}
	h.evaluate(result, s.Assertions)
	return result, nil
}

func (h *Harness) build(spec SceneSpec) error {
	if len(spec.Background) > 0 {
		track, err := h.mem.BackgroundTrack()
		if err != nil {
			return fmt.Errorf("build scene: %w", err)
		}
		for _, d := range spec.Background {
			if err := h.add(track, d); err != nil {
				return err
			}
		}
	}
	for _, d := range spec.Foreground {
		if err := h.add(h.mem.Page(), d); err != nil {
			return err
		}
	}
	return nil
}

func (h *Harness) add(parent scene.BlockID, d ClipDef) error {
	id, err := h.mem.AddClip(parent, d.Spec())
	if err != nil {
		return fmt.Errorf("build scene: %w", err)
	}
	h.names[d.Name] = id
	return nil
}

func (h *Harness) apply(ctx context.Context, step Step) error {
	id := h.names[step.Clip]
	ed := h.sess.Editor()
	pb := h.sess.Playback()
	sc := h.sess.Scrubber()

	switch step.Op {
	case OpSplit:
		dup, err := ed.Split(ctx, id, step.At.Duration)
		if err != nil {
			return err
		}
		if step.As != "" {
			h.names[step.As] = dup
			return h.mem.SetName(dup, step.As)
		}
		return nil
	case OpSetTrim:
		offset := time.Duration(0)
		if step.Offset != nil {
			offset = step.Offset.Duration
		} else if c, ok := h.sess.State().Clip(id); ok {
			offset = c.TimeOffset
		}
		return ed.SetTrim(ctx, id, offset, step.Trim.Duration, step.Duration.Duration)
	case OpToggleBackground:
		return ed.ToggleBackgroundTrack(ctx, id)
	case OpReorder:
		return ed.ReorderBackgroundTrack(ctx, id, *step.Index)
	case OpDelete:
		return ed.Delete(ctx, id)
	case OpSelect:
		return ed.Select(ctx, id)
	case OpMute:
		return ed.ToggleMute(ctx, id)
	case OpVolume:
		return ed.SetVolume(ctx, id, *step.Value)
	case OpPlay:
		return pb.Play(ctx)
	case OpPause:
		return pb.Pause(ctx)
	case OpSeek:
		return pb.Seek(ctx, step.At.Duration)
	case OpAdvance:
		h.mem.Advance(step.At.Duration)
		return nil
	case OpClamp:
		return pb.ClampPlayheadToSelectedClip(ctx)
	case OpScrubStart:
		return sc.Start(ctx, id)
	case OpScrub:
		return sc.Scrub(ctx, step.At.Duration)
	case OpScrubStop:
		return sc.Stop(ctx)
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
}

func (h *Harness) collect(ctx context.Context, r *Result) error {
	r.Snapshot = h.sess.State().Snapshot()
	pos, err := h.sess.Playback().Position()
	if err != nil {
		return fmt.Errorf("read playhead: %w", err)
	}
	r.Playhead = pos
	r.Phase = h.sess.Scrubber().Phase().String()

	commits, err := h.store.Commits(ctx, h.sess.ID())
	if err != nil {
		return err
	}
	r.Commits = make([]string, 0, len(commits))
	for _, c := range commits {
		r.Commits = append(r.Commits, c.Label)
	}
	return nil
}

func errorCode(err error) string {
	if err == nil {
		return ""
	}
	var te *timeline.Error
	if errors.As(err, &te) {
		return string(te.Code)
	}
	return "ERROR"
}

func checkExpectedError(r *Result, sr StepResult, expect string) {
	switch {
	case expect == "" && sr.Code != "":
		r.AddError(fmt.Sprintf("step %d %s: unexpected error: %s", sr.Index, sr.Op, sr.Error))
	case expect != "" && sr.Code == "":
		r.AddError(fmt.Sprintf("step %d %s: expected %s error, got none", sr.Index, sr.Op, expect))
	case expect != "" && !strings.EqualFold(expect, sr.Code):
		r.AddError(fmt.Sprintf("step %d %s: expected %s error, got %s", sr.Index, sr.Op, expect, sr.Code))
	}
}
