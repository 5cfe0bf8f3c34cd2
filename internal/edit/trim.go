package edit

import (
	"context"
	"time"

	"github.com/roach88/cutline/internal/scene"
	"github.com/roach88/cutline/internal/timeline"
)

// SetTrim sets a clip's time offset, trim offset and duration. The time
// offset of a background member is implied by its position and not
// written.
func (e *Editor) SetTrim(ctx context.Context, id scene.BlockID, timeOffset, trimOffset, duration time.Duration) error {
	c, err := e.clip(ctx, OpSetTrim, id)
	if err != nil {
		return err
	}
	switch {
	case !c.AllowsTrimming:
		return timeline.Validationf(OpSetTrim, id, "%s clips cannot be trimmed", c.Kind)
	case timeOffset < 0 || trimOffset < 0:
		return timeline.Validationf(OpSetTrim, id, "negative offset")
	case duration < e.minClip:
		return timeline.Validationf(OpSetTrim, id, "duration %s below minimum %s", duration, e.minClip)
	case c.FootageDuration.Valid && trimOffset+duration > c.FootageDuration.Value:
		return timeline.Validationf(OpSetTrim, id, "trim window ends at %s past footage %s",
			trimOffset+duration, c.FootageDuration.Value)
	case !c.InBackgroundTrack && e.state.Background.Len() > 0 && timeOffset+duration > e.state.TotalDuration:
		return timeline.Validationf(OpSetTrim, id, "clip would end at %s past the timeline end %s",
			timeOffset+duration, e.state.TotalDuration)
	}

	if !c.InBackgroundTrack {
		if err := e.setDuration(OpSetTrim, id, scene.PropTimeOffset, timeOffset); err != nil {
			return err
		}
	}
	if err := e.setDuration(OpSetTrim, id, scene.PropTrimOffset, trimOffset); err != nil {
		return err
	}
	if err := e.setDuration(OpSetTrim, id, scene.PropDuration, duration); err != nil {
		return err
	}

	e.sync.RefreshClip(id)
	if err := e.fitForeground(OpSetTrim); err != nil {
		return err
	}
	return e.commit(ctx, OpSetTrim, id)
}

// Split cuts a clip at playhead into two pieces and returns the id of the
// second. The second piece is selected once the engine's events have been
// delivered.
func (e *Editor) Split(ctx context.Context, id scene.BlockID, playhead time.Duration) (scene.BlockID, error) {
	c, err := e.clip(ctx, OpSplit, id)
	if err != nil {
		return scene.NoBlock, err
	}
	start := e.state.Start(c)
	length := c.Duration.Or(c.DisplayDuration)
	if playhead <= start || playhead >= start+length {
		return scene.NoBlock, timeline.Validationf(OpSplit, id,
			"playhead %s outside clip [%s, %s)", playhead, start, start+length)
	}
	first := playhead - start
	second := length - first
	if first < e.minClip || second < e.minClip {
		return scene.NoBlock, timeline.Validationf(OpSplit, id,
			"pieces %s and %s must both be at least %s", first, second, e.minClip)
	}

	if err := e.setDuration(OpSplit, id, scene.PropDuration, first); err != nil {
		return scene.NoBlock, err
	}
	dup, err := e.eng.Duplicate(id)
	if err != nil {
		return scene.NoBlock, timeline.Resource(OpSplit, id, err)
	}
	if !c.InBackgroundTrack {
		if err := e.setDuration(OpSplit, dup, scene.PropTimeOffset, start+first); err != nil {
			return scene.NoBlock, err
		}
	}
	if err := e.setDuration(OpSplit, dup, scene.PropTrimOffset, c.TrimOffset+first); err != nil {
		return scene.NoBlock, err
	}
	remaining := scene.UnboundedSeconds
	if c.Duration.Valid {
		remaining = scene.Seconds(c.Duration.Value - first)
	}
	if err := e.setFloat(OpSplit, dup, scene.PropDuration, remaining); err != nil {
		return scene.NoBlock, err
	}

	if err := e.reload(ctx, OpSplit, id); err != nil {
		return scene.NoBlock, err
	}
	e.afterSettle(func() {
		if _, ok := e.state.Clip(dup); ok {
			e.state.Select(dup)
			e.state.Notify()
		}
	})
	return dup, e.commit(ctx, OpSplit, id)
}

func (e *Editor) afterSettle(fn func()) {
	if e.deferrer == nil {
		fn()
		return
	}
	e.deferrer.Defer(fn)
}
