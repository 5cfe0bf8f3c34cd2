package clipsync

import (
	"context"
	"log/slog"

	"github.com/roach88/cutline/internal/scene"
	"github.com/roach88/cutline/internal/timeline"
)

// classify maps a block's type, kind and fill type to a clip kind. ok is
// false for blocks that never become clips.
func (s *Synchronizer) classify(id scene.BlockID) (kind timeline.Kind, ok bool, err error) {
	typ, err := s.eng.Type(id)
	if err != nil {
		return 0, false, err
	}
	switch typ {
	case scene.TypeAudio:
		if k, _ := s.eng.Kind(id); k == scene.KindVoiceover {
			return timeline.KindVoiceover, true, nil
		}
		return timeline.KindAudio, true, nil
	case scene.TypeText:
		return timeline.KindText, true, nil
	case scene.TypeGraphic:
		k, err := s.eng.Kind(id)
		if err != nil {
			slog.Debug("kind unreadable, using fill type", "block", id, "error", err)
		}
		switch k {
		case scene.KindSticker, scene.KindAnimatedSticker:
			return timeline.KindSticker, true, nil
		case scene.KindShape:
			return timeline.KindShape, true, nil
		}
		fill, err := s.eng.FillType(id)
		if err != nil {
			return 0, false, err
		}
		switch fill {
		case scene.FillVideo:
			return timeline.KindVideo, true, nil
		case scene.FillImage:
			return timeline.KindImage, true, nil
		case scene.FillColor:
			return timeline.KindShape, true, nil
		}
	}
	return 0, false, nil
}

// build creates the clip for id, seeded from prev when the block was
// already projected. A new clip starts with a zero bounded duration so an
// unreadable duration never reads as unbounded. It returns nil for blocks
// that are not clips.
func (s *Synchronizer) build(id scene.BlockID, prev *timeline.Clip, background bool) *timeline.Clip {
	kind, ok, err := s.classify(id)
	if err != nil {
		slog.Warn("clip dropped: block type unreadable", "block", id, "error", err)
		return nil
	}
	if !ok {
		return nil
	}

	var c *timeline.Clip
	if prev != nil && prev.Kind == kind {
		c = prev.Clone()
	} else {
		c = &timeline.Clip{ID: id, Kind: kind, Volume: 1, Duration: timeline.Bounded(0)}
	}
	c.AllowsTrimming = kind.Trimmable()
	c.InBackgroundTrack = background
	s.refresh(c)
	return c
}

// refresh re-reads c's mutable fields. A failed read keeps the field's
// previous value.
func (s *Synchronizer) refresh(c *timeline.Clip) {
	id := c.ID
	if subs, err := s.eng.SubResources(id); err != nil {
		s.readFailed(c, "sub-resources", err)
	} else {
		c.Fill, c.Shape, c.Blur = subs.Fill, subs.Shape, subs.Blur
		c.Effects = subs.Effects
		s.state.Reindex(c)
	}

	if v, err := s.eng.Float(id, scene.PropDuration); err != nil {
		s.readFailed(c, "duration", err)
	} else {
		c.Duration = s.duration(v)
	}
	if !c.InBackgroundTrack {
		if v, err := s.eng.Float(id, scene.PropTimeOffset); err != nil {
			s.readFailed(c, "time offset", err)
		} else {
			c.TimeOffset = scene.Duration(v)
		}
	}
	if name, err := s.eng.Name(id); err != nil {
		s.readFailed(c, "name", err)
	} else if name != "" {
		c.Title = name
	} else if c.Title == "" {
		c.Title = c.Kind.String()
	}

	if !c.AllowsTrimming {
		return
	}
	media := c.MediaTarget()
	if v, err := s.eng.Float(id, scene.PropTrimOffset); err != nil {
		s.readFailed(c, "trim offset", err)
	} else {
		c.TrimOffset = scene.Duration(v)
	}
	if v, err := s.eng.Float(media, scene.PropFootageDuration); err != nil {
		s.readFailed(c, "footage duration", err)
	} else if v > 0 {
		c.FootageDuration = s.duration(v)
	} else {
		c.FootageDuration = timeline.Unbounded
	}
	if v, err := s.eng.Float(media, scene.PropVolume); err != nil {
		s.readFailed(c, "volume", err)
	} else {
		c.Volume = v
	}
	if v, err := s.eng.Bool(media, scene.PropMuted); err != nil {
		s.readFailed(c, "muted", err)
	} else {
		c.Muted = v
	}
	s.checkLoaded(c, media)
}

func (s *Synchronizer) duration(seconds float64) timeline.OptDuration {
	if s.isUnbounded(seconds) {
		return timeline.Unbounded
	}
	return timeline.Bounded(scene.Duration(seconds))
}

func (s *Synchronizer) readFailed(c *timeline.Clip, field string, err error) {
	slog.Warn("clip field unreadable, keeping previous value",
		"block", c.ID,
		"field", field,
		"error", err,
	)
}

// checkLoaded marks c as loading and starts a force-load when its media is
// not available. A load already running for the clip is left alone.
func (s *Synchronizer) checkLoaded(c *timeline.Clip, media scene.BlockID) {
	loaded, err := s.eng.ResourceLoaded(media)
	if err != nil {
		s.readFailed(c, "resource state", err)
		return
	}
	if loaded {
		c.Loading = false
		return
	}
	c.Loading = true
	if s.loads.Running(c.ID) {
		return
	}
	s.forceLoad(c.ID, media)
}

func (s *Synchronizer) forceLoad(id, media scene.BlockID) {
	timeout := s.loadTimeout
	s.loads.Go(s.base, id, func(ctx context.Context) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		err := s.eng.ForceLoadResource(ctx, media)
		if timeline.IsCancelled(err) {
			slog.Debug("force load cancelled", "block", id)
			return
		}
		s.poster.Post(func() { s.finishLoad(id, err) })
	})
}

func (s *Synchronizer) finishLoad(id scene.BlockID, err error) {
	c, ok := s.state.Clip(id)
	if !ok {
		return
	}
	if err != nil {
		slog.Warn("force load failed", "block", id, "error", err)
		c.Loading = false
		s.state.Notify()
		return
	}
	s.RefreshClip(id)
}
