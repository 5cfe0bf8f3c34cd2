package timeline

import (
	"slices"
	"time"

	"github.com/roach88/cutline/internal/scene"
)

// OptDuration is a duration that may be absent. An absent clip duration
// means the clip's resource is unbounded.
type OptDuration struct {
	Value time.Duration
	Valid bool
}

// Bounded returns a present duration.
func Bounded(d time.Duration) OptDuration {
	return OptDuration{Value: d, Valid: true}
}

// Unbounded is the absent duration.
var Unbounded = OptDuration{}

// Or returns the duration, or def when absent.
func (o OptDuration) Or(def time.Duration) time.Duration {
	if !o.Valid {
		return def
	}
	return o.Value
}

func (o OptDuration) String() string {
	if !o.Valid {
		return "unbounded"
	}
	return o.Value.String()
}

// Clip is the timeline projection of one engine block.
type Clip struct {
	ID   scene.BlockID
	Kind Kind

	TimeOffset time.Duration
	Duration   OptDuration
	// DisplayDuration is the length drawn on the timeline. It equals
	// Duration when bounded; an unbounded voiceover spans the whole timeline.
	DisplayDuration time.Duration
	TrimOffset      time.Duration
	FootageDuration OptDuration

	InBackgroundTrack bool
	AllowsTrimming    bool
	Muted             bool
	Volume            float64
	Loading           bool
	Title             string

	Fill    scene.BlockID
	Shape   scene.BlockID
	Blur    scene.BlockID
	Effects []scene.BlockID
}

// End is TimeOffset plus the bounded duration (absent counts as zero).
func (c *Clip) End() time.Duration {
	return c.TimeOffset + c.Duration.Or(0)
}

// MediaTarget is the block holding the clip's audio and footage: the clip
// itself for audio kinds, otherwise its fill. Mute, volume, footage duration
// and resource loading all go through this indirection.
func (c *Clip) MediaTarget() scene.BlockID {
	if c.Kind.IsAudio() || !c.Fill.Valid() {
		return c.ID
	}
	return c.Fill
}

// Clone returns a deep copy.
func (c *Clip) Clone() *Clip {
	cp := *c
	cp.Effects = slices.Clone(c.Effects)
	return &cp
}

// Track is an ordered sequence of clips.
type Track struct {
	Clips []*Clip
}

// Len returns the number of clips.
func (t *Track) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Clips)
}

// Index returns the position of id in the track, or -1.
func (t *Track) Index(id scene.BlockID) int {
	if t == nil {
		return -1
	}
	return slices.IndexFunc(t.Clips, func(c *Clip) bool { return c.ID == id })
}
