package harness

import (
	"fmt"
	"math"
	"slices"

	"github.com/roach88/cutline/internal/timeline"
)

// evaluate runs every assertion against the collected result.
func (h *Harness) evaluate(r *Result, assertions []Assertion) {
	for i, a := range assertions {
		if err := h.check(r, a); err != nil {
			r.AddError(fmt.Sprintf("assertions[%d] %s: %v", i, a.Type, err))
		}
	}
}

func (h *Harness) check(r *Result, a Assertion) error {
	snap := r.Snapshot
	switch a.Type {
	case AssertTotal:
		if snap.TotalDuration != a.Value.Duration {
			return fmt.Errorf("total %s, want %s", snap.TotalDuration, a.Value.Duration)
		}
	case AssertPlayhead:
		if r.Playhead != a.Value.Duration {
			return fmt.Errorf("playhead %s, want %s", r.Playhead, a.Value.Duration)
		}
	case AssertBackgroundOrder:
		got := titles(snap.Background)
		if !slices.Equal(got, a.Clips) {
			return fmt.Errorf("background %v, want %v", got, a.Clips)
		}
	case AssertForegroundOrder:
		var got []string
		for _, t := range snap.Foreground {
			got = append(got, titles(t)...)
		}
		if !slices.Equal(got, a.Clips) {
			return fmt.Errorf("foreground %v, want %v", got, a.Clips)
		}
	case AssertSelected:
		return h.checkSelected(snap, a.Clip)
	case AssertClip:
		id, ok := h.names[a.Clip]
		if !ok {
			return fmt.Errorf("unknown clip %q", a.Clip)
		}
		c, ok := snap.Clip(id)
		if !ok {
			return fmt.Errorf("clip %q is not on the timeline", a.Clip)
		}
		return checkClip(c, a.Expect)
	case AssertCommits:
		if !slices.Equal(r.Commits, a.Labels) {
			return fmt.Errorf("commits %v, want %v", r.Commits, a.Labels)
		}
	case AssertPhase:
		if r.Phase != a.Phase {
			return fmt.Errorf("phase %s, want %s", r.Phase, a.Phase)
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func (h *Harness) checkSelected(snap timeline.Snapshot, name string) error {
	if name == "" {
		if snap.Selected.Valid() {
			return fmt.Errorf("selection %s, want none", snap.Selected)
		}
		return nil
	}
	want, ok := h.names[name]
	if !ok {
		return fmt.Errorf("unknown clip %q", name)
	}
	if snap.Selected != want {
		return fmt.Errorf("selection %s, want %q (%s)", snap.Selected, name, want)
	}
	return nil
}

func checkClip(c timeline.Clip, want *ClipCheck) error {
	if want.Offset != nil && c.TimeOffset != want.Offset.Duration {
		return fmt.Errorf("offset %s, want %s", c.TimeOffset, want.Offset.Duration)
	}
	if want.Duration != nil && (!c.Duration.Valid || c.Duration.Value != want.Duration.Duration) {
		return fmt.Errorf("duration %s, want %s", c.Duration, want.Duration.Duration)
	}
	if want.Trim != nil && c.TrimOffset != want.Trim.Duration {
		return fmt.Errorf("trim %s, want %s", c.TrimOffset, want.Trim.Duration)
	}
	if want.Muted != nil && c.Muted != *want.Muted {
		return fmt.Errorf("muted %t, want %t", c.Muted, *want.Muted)
	}
	if want.Volume != nil && math.Abs(c.Volume-*want.Volume) > 1e-9 {
		return fmt.Errorf("volume %.3f, want %.3f", c.Volume, *want.Volume)
	}
	if want.Background != nil && c.InBackgroundTrack != *want.Background {
		return fmt.Errorf("background %t, want %t", c.InBackgroundTrack, *want.Background)
	}
	return nil
}

func titles(clips []timeline.Clip) []string {
	out := make([]string, 0, len(clips))
	for _, c := range clips {
		out = append(out, c.Title)
	}
	return out
}
