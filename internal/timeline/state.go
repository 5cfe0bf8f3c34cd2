package timeline

import (
	"slices"
	"time"

	"github.com/roach88/cutline/internal/scene"
)

// State is the timeline aggregate: the clip/track projection plus
// selection and scrubbing state.
//
// Only the synchronizer and the editing operations mutate a State, always on
// the control goroutine. Everything else observes it through Observe and
// receives Snapshot copies.
type State struct {
	Page            scene.BlockID
	Tracks          []*Track // foreground, one clip per track
	Background      *Track
	BackgroundBlock scene.BlockID
	TotalDuration   time.Duration

	Selected         scene.BlockID
	ScrubbingPreview scene.BlockID
	IsScrubbing      bool

	clips  map[scene.BlockID]*Clip
	owners map[scene.BlockID]scene.BlockID // sub-resource -> clip

	observers map[int]func(Snapshot)
	nextObs   int
}

// NewState returns an empty state.
func NewState() *State {
	return &State{
		Background: &Track{},
		clips:      make(map[scene.BlockID]*Clip),
		owners:     make(map[scene.BlockID]scene.BlockID),
		observers:  make(map[int]func(Snapshot)),
	}
}

// Reset discards all clips and tracks. Selection and scrubbing survive.
func (s *State) Reset(page scene.BlockID) {
	s.Page = page
	s.Tracks = nil
	s.Background = &Track{}
	s.BackgroundBlock = scene.NoBlock
	clear(s.clips)
	clear(s.owners)
}

// Clip returns the clip with id.
func (s *State) Clip(id scene.BlockID) (*Clip, bool) {
	c, ok := s.clips[id]
	return c, ok
}

// Owner returns the clip that id belongs to: the clip itself or the clip
// whose fill, shape, blur or effect id is.
func (s *State) Owner(id scene.BlockID) (*Clip, bool) {
	if c, ok := s.clips[id]; ok {
		return c, true
	}
	if owner, ok := s.owners[id]; ok {
		c, ok := s.clips[owner]
		return c, ok
	}
	return nil, false
}

// AddBackground appends c to the background track.
func (s *State) AddBackground(c *Clip) {
	c.InBackgroundTrack = true
	s.Background.Clips = append(s.Background.Clips, c)
	s.index(c)
}

// AddForeground appends c on its own foreground track.
func (s *State) AddForeground(c *Clip) {
	c.InBackgroundTrack = false
	s.Tracks = append(s.Tracks, &Track{Clips: []*Clip{c}})
	s.index(c)
}

// Remove drops the clip with id. It reports whether a clip was removed.
func (s *State) Remove(id scene.BlockID) bool {
	c, ok := s.clips[id]
	if !ok {
		return false
	}
	s.unindex(c)
	if i := s.Background.Index(id); i >= 0 {
		s.Background.Clips = slices.Delete(s.Background.Clips, i, i+1)
	}
	s.Tracks = slices.DeleteFunc(s.Tracks, func(t *Track) bool {
		t.Clips = slices.DeleteFunc(t.Clips, func(c *Clip) bool { return c.ID == id })
		return len(t.Clips) == 0
	})
	if s.Selected == id {
		s.Selected = scene.NoBlock
	}
	return true
}

// Reindex refreshes the sub-resource index after c's references changed.
func (s *State) Reindex(c *Clip) {
	s.unindex(c)
	s.index(c)
}

func (s *State) index(c *Clip) {
	s.clips[c.ID] = c
	for _, sub := range subResources(c) {
		s.owners[sub] = c.ID
	}
}

func (s *State) unindex(c *Clip) {
	delete(s.clips, c.ID)
	for sub, owner := range s.owners {
		if owner == c.ID {
			delete(s.owners, sub)
		}
	}
}

func subResources(c *Clip) []scene.BlockID {
	ids := make([]scene.BlockID, 0, 3+len(c.Effects))
	for _, id := range []scene.BlockID{c.Fill, c.Shape, c.Blur} {
		if id.Valid() {
			ids = append(ids, id)
		}
	}
	return append(ids, c.Effects...)
}

// Clips returns every clip: foreground tracks in order, then the background
// track.
func (s *State) Clips() []*Clip {
	out := make([]*Clip, 0, len(s.clips))
	for _, t := range s.Tracks {
		out = append(out, t.Clips...)
	}
	return append(out, s.Background.Clips...)
}

// Len returns the number of clips.
func (s *State) Len() int {
	return len(s.clips)
}

// Start returns where c begins on the timeline. Background members start
// where the previous member ends.
func (s *State) Start(c *Clip) time.Duration {
	if !c.InBackgroundTrack {
		return c.TimeOffset
	}
	var start time.Duration
	for _, bc := range s.Background.Clips {
		if bc.ID == c.ID {
			break
		}
		start += bc.Duration.Or(0)
	}
	return start
}

// Select sets the selected clip. NoBlock clears the selection.
func (s *State) Select(id scene.BlockID) {
	s.Selected = id
}

// SetScrubbing records an active scrub preview.
func (s *State) SetScrubbing(preview scene.BlockID) {
	s.ScrubbingPreview = preview
	s.IsScrubbing = true
}

// ClearScrubbing returns to the idle scrubbing state.
func (s *State) ClearScrubbing() {
	s.ScrubbingPreview = scene.NoBlock
	s.IsScrubbing = false
}

// Observe registers fn to receive a snapshot after every change. It is
// called once immediately with the current state.
func (s *State) Observe(fn func(Snapshot)) (cancel func()) {
	key := s.nextObs
	s.nextObs++
	s.observers[key] = fn
	fn(s.Snapshot())
	return func() { delete(s.observers, key) }
}

// Notify publishes the current state to all observers.
func (s *State) Notify() {
	if len(s.observers) == 0 {
		return
	}
	keys := make([]int, 0, len(s.observers))
	for k := range s.observers {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	snap := s.Snapshot()
	for _, k := range keys {
		if fn, ok := s.observers[k]; ok {
			fn(snap)
		}
	}
}
