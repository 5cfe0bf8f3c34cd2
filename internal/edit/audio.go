package edit

import (
	"context"

	"github.com/roach88/cutline/internal/scene"
	"github.com/roach88/cutline/internal/timeline"
)

// Mute and volume target the block that carries the audio: the clip itself
// for audio kinds, its fill otherwise (see timeline.Clip.MediaTarget).

func (e *Editor) audible(ctx context.Context, op string, id scene.BlockID) (*timeline.Clip, error) {
	c, err := e.clip(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if !c.Kind.Trimmable() {
		return nil, timeline.Validationf(op, id, "%s clips have no audio", c.Kind)
	}
	return c, nil
}

// SetMuted mutes or unmutes a clip.
func (e *Editor) SetMuted(ctx context.Context, id scene.BlockID, muted bool) error {
	c, err := e.audible(ctx, OpMute, id)
	if err != nil {
		return err
	}
	if err := e.eng.SetBool(c.MediaTarget(), scene.PropMuted, muted); err != nil {
		return timeline.Resource(OpMute, id, err)
	}
	e.sync.RefreshClip(id)
	return e.commit(ctx, OpMute, id)
}

// ToggleMute flips a clip's mute state.
func (e *Editor) ToggleMute(ctx context.Context, id scene.BlockID) error {
	c, err := e.audible(ctx, OpMute, id)
	if err != nil {
		return err
	}
	return e.SetMuted(ctx, id, !c.Muted)
}

// SetVolume sets a clip's volume in [0, 1].
func (e *Editor) SetVolume(ctx context.Context, id scene.BlockID, volume float64) error {
	c, err := e.audible(ctx, OpVolume, id)
	if err != nil {
		return err
	}
	if volume < 0 || volume > 1 {
		return timeline.Validationf(OpVolume, id, "volume %.2f outside [0, 1]", volume)
	}
	if err := e.setFloat(OpVolume, c.MediaTarget(), scene.PropVolume, volume); err != nil {
		return err
	}
	e.sync.RefreshClip(id)
	return e.commit(ctx, OpVolume, id)
}
