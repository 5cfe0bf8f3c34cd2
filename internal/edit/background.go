package edit

import (
	"context"
	"time"

	"github.com/roach88/cutline/internal/scene"
	"github.com/roach88/cutline/internal/timeline"
)

// ToggleBackgroundTrack moves a clip into the background track or back out
// onto the page.
func (e *Editor) ToggleBackgroundTrack(ctx context.Context, id scene.BlockID) error {
	c, err := e.clip(ctx, OpToggleBackground, id)
	if err != nil {
		return err
	}
	if c.InBackgroundTrack {
		err = e.moveOut(c)
	} else {
		err = e.moveIn(c)
	}
	if err != nil {
		return err
	}
	if err := e.reload(ctx, OpToggleBackground, id); err != nil {
		return err
	}
	if err := e.fitForeground(OpToggleBackground); err != nil {
		return err
	}
	return e.commit(ctx, OpToggleBackground, id)
}

// InsertionIndex returns where a clip at offset lands in the background
// track: before the first member whose window midpoint lies after offset.
func InsertionIndex(bg *timeline.Track, offset time.Duration) int {
	for i, c := range bg.Clips {
		mid := c.TimeOffset + c.Duration.Or(0)/2
		if mid > offset {
			return i
		}
	}
	return bg.Len()
}

func (e *Editor) moveIn(c *timeline.Clip) error {
	track, err := e.backgroundBlock()
	if err != nil {
		return err
	}
	index := InsertionIndex(e.state.Background, c.TimeOffset)
	if err := e.eng.InsertChild(track, c.ID, index); err != nil {
		return timeline.Resource(OpToggleBackground, c.ID, err)
	}
	return nil
}

// moveOut re-appends c to the page, keeping it where it played inside the
// shortened background when possible.
func (e *Editor) moveOut(c *timeline.Clip) error {
	page := e.state.Page
	if err := e.eng.AppendChild(page, c.ID); err != nil {
		return timeline.Resource(OpToggleBackground, c.ID, err)
	}
	d := c.Duration.Or(0)
	offset := c.TimeOffset
	if e.state.Background.Len() > 1 {
		remaining := e.state.TotalDuration - d
		offset = max(min(offset, remaining-d), 0)
	}
	return e.setDuration(OpToggleBackground, c.ID, scene.PropTimeOffset, offset)
}

// backgroundBlock returns the background track block, creating it at the
// bottom of the page when the page has none.
func (e *Editor) backgroundBlock() (scene.BlockID, error) {
	if id := e.state.BackgroundBlock; id.Valid() && e.eng.Exists(id) {
		return id, nil
	}
	track, err := e.eng.Create(scene.TypeTrack)
	if err != nil {
		return scene.NoBlock, timeline.Resource(OpToggleBackground, scene.NoBlock, err)
	}
	if err := e.eng.InsertChild(e.state.Page, track, 0); err != nil {
		return scene.NoBlock, timeline.Resource(OpToggleBackground, track, err)
	}
	e.state.BackgroundBlock = track
	return track, nil
}

// ReorderBackgroundTrack moves a background member to index.
func (e *Editor) ReorderBackgroundTrack(ctx context.Context, id scene.BlockID, index int) error {
	c, err := e.clip(ctx, OpReorder, id)
	if err != nil {
		return err
	}
	if !c.InBackgroundTrack {
		return timeline.Validationf(OpReorder, id, "clip is not in the background track")
	}
	if n := e.state.Background.Len(); index < 0 || index >= n {
		return timeline.Validationf(OpReorder, id, "index %d out of range [0, %d)", index, n)
	}
	if e.state.Background.Index(id) == index {
		return nil
	}
	if err := e.eng.InsertChild(e.state.BackgroundBlock, id, index); err != nil {
		return timeline.Resource(OpReorder, id, err)
	}
	if err := e.reload(ctx, OpReorder, id); err != nil {
		return err
	}
	return e.commit(ctx, OpReorder, id)
}

// Delete destroys a clip.
func (e *Editor) Delete(ctx context.Context, id scene.BlockID) error {
	if _, err := e.clip(ctx, OpDelete, id); err != nil {
		return err
	}
	if err := e.eng.Destroy(id); err != nil {
		return timeline.Resource(OpDelete, id, err)
	}
	if err := e.reload(ctx, OpDelete, id); err != nil {
		return err
	}
	if err := e.fitForeground(OpDelete); err != nil {
		return err
	}
	return e.commit(ctx, OpDelete, id)
}

// Select changes the selected clip. NoBlock clears the selection. Selection
// is not an undoable change and is not committed.
func (e *Editor) Select(ctx context.Context, id scene.BlockID) error {
	if err := ctx.Err(); err != nil {
		return timeline.Cancelled(OpSelect, id, err)
	}
	if id.Valid() {
		if _, ok := e.state.Clip(id); !ok {
			return timeline.Validationf(OpSelect, id, "clip is not on the timeline")
		}
	}
	e.state.Select(id)
	e.state.Notify()
	return nil
}
