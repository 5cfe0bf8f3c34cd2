package timeline

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/roach88/cutline/internal/canonical"
	"github.com/roach88/cutline/internal/scene"
)

// SnapshotDomain separates snapshot hashes from other hashed content.
const SnapshotDomain = "cutline/timeline/v1"

// Snapshot is a read-only copy of the timeline handed to observers.
type Snapshot struct {
	Page             scene.BlockID
	TotalDuration    time.Duration
	Selected         scene.BlockID
	ScrubbingPreview scene.BlockID
	IsScrubbing      bool
	Background       []Clip
	Foreground       [][]Clip
}

// Snapshot copies the current state.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		Page:             s.Page,
		TotalDuration:    s.TotalDuration,
		Selected:         s.Selected,
		ScrubbingPreview: s.ScrubbingPreview,
		IsScrubbing:      s.IsScrubbing,
		Background:       make([]Clip, 0, s.Background.Len()),
		Foreground:       make([][]Clip, 0, len(s.Tracks)),
	}
	for _, c := range s.Background.Clips {
		snap.Background = append(snap.Background, *c.Clone())
	}
	for _, t := range s.Tracks {
		clips := make([]Clip, 0, len(t.Clips))
		for _, c := range t.Clips {
			clips = append(clips, *c.Clone())
		}
		snap.Foreground = append(snap.Foreground, clips)
	}
	return snap
}

// Clip finds a clip by id.
func (s Snapshot) Clip(id scene.BlockID) (Clip, bool) {
	for _, c := range s.Background {
		if c.ID == id {
			return c, true
		}
	}
	for _, t := range s.Foreground {
		for _, c := range t {
			if c.ID == id {
				return c, true
			}
		}
	}
	return Clip{}, false
}

// Canonical encodes the snapshot as canonical JSON. Durations are integer
// microseconds and volume is in permille so the encoding carries no floats.
func (s Snapshot) Canonical() ([]byte, error) {
	bg := make([]any, 0, len(s.Background))
	for _, c := range s.Background {
		bg = append(bg, clipValue(c))
	}
	fg := make([]any, 0, len(s.Foreground))
	for _, t := range s.Foreground {
		clips := make([]any, 0, len(t))
		for _, c := range t {
			clips = append(clips, clipValue(c))
		}
		fg = append(fg, clips)
	}
	return canonical.Marshal(map[string]any{
		"page":       int64(s.Page),
		"total_us":   s.TotalDuration.Microseconds(),
		"selected":   int64(s.Selected),
		"scrubbing":  s.IsScrubbing,
		"preview":    int64(s.ScrubbingPreview),
		"background": bg,
		"foreground": fg,
	})
}

// Hash returns the domain-separated hash of the canonical encoding.
func (s Snapshot) Hash() (string, error) {
	data, err := s.Canonical()
	if err != nil {
		return "", fmt.Errorf("canonical snapshot: %w", err)
	}
	return canonical.Hash(SnapshotDomain, data), nil
}

func clipValue(c Clip) map[string]any {
	effects := make([]any, 0, len(c.Effects))
	for _, e := range c.Effects {
		effects = append(effects, int64(e))
	}
	v := map[string]any{
		"id":         int64(c.ID),
		"kind":       c.Kind.String(),
		"title":      c.Title,
		"offset_us":  c.TimeOffset.Microseconds(),
		"display_us": c.DisplayDuration.Microseconds(),
		"trim_us":    c.TrimOffset.Microseconds(),
		"background": c.InBackgroundTrack,
		"trimmable":  c.AllowsTrimming,
		"muted":      c.Muted,
		"volume_pm":  int64(math.Round(c.Volume * 1000)),
		"loading":    c.Loading,
		"fill":       int64(c.Fill),
		"shape":      int64(c.Shape),
		"blur":       int64(c.Blur),
		"effects":    effects,
	}
	if c.Duration.Valid {
		v["duration_us"] = c.Duration.Value.Microseconds()
	}
	if c.FootageDuration.Valid {
		v["footage_us"] = c.FootageDuration.Value.Microseconds()
	}
	return v
}

// Render writes a plain text listing of the snapshot. Clips are named by
// title so the output does not depend on engine ids.
func (s Snapshot) Render(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "total %s\n", s.TotalDuration)
	b.WriteString("background\n")
	for i, c := range s.Background {
		fmt.Fprintf(&b, "  %d %s\n", i, RenderClip(c))
	}
	b.WriteString("foreground\n")
	for i, t := range s.Foreground {
		for _, c := range t {
			fmt.Fprintf(&b, "  %d %s\n", i, RenderClip(c))
		}
	}
	selected := "-"
	if c, ok := s.Clip(s.Selected); ok {
		selected = c.Title
	}
	fmt.Fprintf(&b, "selected %s\n", selected)
	if s.IsScrubbing {
		b.WriteString("scrubbing\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// RenderClip formats one clip on a single line.
func RenderClip(c Clip) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s start=%s", c.Title, c.Kind, c.TimeOffset)
	if c.Duration.Valid {
		fmt.Fprintf(&b, " dur=%s", c.Duration.Value)
	} else {
		fmt.Fprintf(&b, " dur=unbounded(%s)", c.DisplayDuration)
	}
	if c.AllowsTrimming {
		fmt.Fprintf(&b, " trim=%s", c.TrimOffset)
		if c.Volume != 1 {
			fmt.Fprintf(&b, " vol=%.2f", c.Volume)
		}
	}
	if c.Muted {
		b.WriteString(" muted")
	}
	if c.Loading {
		b.WriteString(" loading")
	}
	return b.String()
}
