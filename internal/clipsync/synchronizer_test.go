package clipsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cutline/internal/scene"
	"github.com/roach88/cutline/internal/testutil"
	"github.com/roach88/cutline/internal/timeline"
)

type fixture struct {
	t     *testing.T
	sc    *testutil.Scene
	state *timeline.State
	sync  *Synchronizer
	page  scene.BlockID
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	testutil.QuietLogs(t)
	sc := testutil.NewScene(t)
	state := timeline.NewState()
	s := New(sc.Memory, state, opts...)
	unsubscribe := sc.Subscribe(func(events []scene.Event) {
		require.NoError(t, s.HandleBatch(context.Background(), events))
	})
	t.Cleanup(func() {
		unsubscribe()
		s.Close()
	})
	return &fixture{t: t, sc: sc, state: state, sync: s, page: sc.Page()}
}

// settle delivers events until the engine has nothing pending.
func (f *fixture) settle() {
	f.t.Helper()
	for range 10 {
		if f.sc.PendingEvents() == 0 {
			return
		}
		f.sc.Flush()
	}
	f.t.Fatal("events did not settle")
}

func backgroundDurations(state *timeline.State) []time.Duration {
	var out []time.Duration
	for _, c := range state.Background.Clips {
		out = append(out, c.Duration.Or(0))
	}
	return out
}

func foregroundTitles(state *timeline.State) []string {
	var out []string
	for _, tr := range state.Tracks {
		for _, c := range tr.Clips {
			out = append(out, c.Title)
		}
	}
	return out
}

func TestBackgroundInsertion(t *testing.T) {
	f := newFixture(t)
	bg := f.sc.Background()
	f.sc.Video(bg, "a", 3*time.Second)
	f.sc.Video(bg, "b", 2*time.Second)
	f.sc.Video(bg, "c", 4*time.Second)
	f.settle()

	assert.Equal(t, 9*time.Second, f.state.TotalDuration)
	assert.Equal(t, []time.Duration{3 * time.Second, 2 * time.Second, 4 * time.Second}, backgroundDurations(f.state))
	assert.Equal(t, 9.0, f.sc.MustFloat(f.page, scene.PropDuration))

	inserted := f.sc.Video(bg, "d", time.Second)
	require.NoError(t, f.sc.InsertChild(bg, inserted, 1))
	f.settle()

	assert.Equal(t,
		[]time.Duration{3 * time.Second, time.Second, 2 * time.Second, 4 * time.Second},
		backgroundDurations(f.state))
	assert.Equal(t, 10*time.Second, f.state.TotalDuration)
	assert.Equal(t, 10.0, f.sc.MustFloat(f.page, scene.PropDuration))

	c, ok := f.state.Clip(inserted)
	require.True(t, ok)
	assert.True(t, c.InBackgroundTrack)
	assert.Equal(t, 3*time.Second, c.TimeOffset)
}

func TestReloadIdempotent(t *testing.T) {
	f := newFixture(t)
	bg := f.sc.Background()
	f.sc.Video(bg, "a", 3*time.Second)
	f.sc.Add(f.page, scene.ClipSpec{Name: "music", Kind: scene.KindAudio, Unbounded: true})
	f.sc.Add(f.page, scene.ClipSpec{Name: "title", Kind: scene.KindText, Offset: time.Second, Duration: time.Second})
	f.settle()

	require.NoError(t, f.sync.Reload(context.Background()))
	first := f.state.Snapshot()
	require.NoError(t, f.sync.Reload(context.Background()))
	second := f.state.Snapshot()

	assert.Equal(t, first, second)
	h1, err := first.Hash()
	require.NoError(t, err)
	h2, err := second.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Zero(t, f.sc.PendingEvents(), "unchanged total must not be written back")
}

func TestAudioRelocatedToFront(t *testing.T) {
	f := newFixture(t)
	f.sc.Add(f.page, scene.ClipSpec{Name: "title", Kind: scene.KindText, Duration: time.Second})
	f.sc.Add(f.page, scene.ClipSpec{Name: "music", Kind: scene.KindAudio, Duration: 5 * time.Second})
	f.sc.Add(f.page, scene.ClipSpec{Name: "shot", Kind: scene.KindVideo, Duration: 2 * time.Second})
	f.sc.Add(f.page, scene.ClipSpec{Name: "voice", Kind: scene.KindVoiceover, Duration: 3 * time.Second})
	f.settle()

	assert.Equal(t, []string{"music", "voice", "title", "shot"}, foregroundTitles(f.state))

	children, err := f.sc.Children(f.page)
	require.NoError(t, err)
	assert.Len(t, children, 4, "relocation does not touch the engine")
}

func TestClassification(t *testing.T) {
	f := newFixture(t)
	ids := map[string]scene.BlockID{}
	for _, kind := range []string{
		scene.KindImage, scene.KindVideo, scene.KindAudio, scene.KindVoiceover,
		scene.KindText, scene.KindShape, scene.KindSticker, scene.KindAnimatedSticker,
	} {
		ids[kind] = f.sc.Add(f.page, scene.ClipSpec{Name: kind, Kind: kind, Duration: time.Second})
	}
	stray, err := f.sc.Create(scene.TypeEffect)
	require.NoError(t, err)
	require.NoError(t, f.sc.AppendChild(f.page, stray))
	f.settle()

	want := map[string]timeline.Kind{
		scene.KindImage:           timeline.KindImage,
		scene.KindVideo:           timeline.KindVideo,
		scene.KindAudio:           timeline.KindAudio,
		scene.KindVoiceover:       timeline.KindVoiceover,
		scene.KindText:            timeline.KindText,
		scene.KindShape:           timeline.KindShape,
		scene.KindSticker:         timeline.KindSticker,
		scene.KindAnimatedSticker: timeline.KindSticker,
	}
	for name, kind := range want {
		c, ok := f.state.Clip(ids[name])
		require.True(t, ok, name)
		assert.Equal(t, kind, c.Kind, name)
		assert.Equal(t, kind.Trimmable(), c.AllowsTrimming, name)
	}
	_, ok := f.state.Clip(stray)
	assert.False(t, ok, "effects never become clips")
	assert.Equal(t, len(want), f.state.Len())
}

func TestIncrementalRefresh(t *testing.T) {
	f := newFixture(t)
	shot := f.sc.Add(f.page, scene.ClipSpec{Name: "shot", Kind: scene.KindVideo, Duration: 2 * time.Second})
	f.settle()
	before := f.sync.Stats()

	f.sc.MustSet(shot, scene.PropDuration, 3)
	f.sc.MustSet(f.sc.Fill(shot), scene.PropVolume, 0.5)
	f.settle()

	after := f.sync.Stats()
	assert.Equal(t, before.Reloads, after.Reloads)
	assert.Greater(t, after.Incremental, before.Incremental)

	c, ok := f.state.Clip(shot)
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, c.Duration.Value)
	assert.Equal(t, 0.5, c.Volume)
	assert.Equal(t, 3*time.Second, f.state.TotalDuration)
}

func TestPlayheadTickSkipped(t *testing.T) {
	f := newFixture(t)
	f.sc.Add(f.page, scene.ClipSpec{Name: "shot", Kind: scene.KindVideo, Duration: 5 * time.Second})
	f.settle()

	require.NoError(t, f.sc.SetBool(f.page, scene.PropPlaying, true))
	f.settle()
	before := f.sync.Stats()

	f.sc.Advance(100 * time.Millisecond)
	f.settle()

	after := f.sync.Stats()
	assert.Equal(t, before.Skipped+1, after.Skipped)
	assert.Equal(t, before.Reloads, after.Reloads)
	assert.Equal(t, before.Incremental, after.Incremental)
}

func TestUnboundedDurations(t *testing.T) {
	f := newFixture(t)
	bg := f.sc.Background()
	f.sc.Video(bg, "a", 6*time.Second)
	voice := f.sc.Add(f.page, scene.ClipSpec{Name: "voice", Kind: scene.KindVoiceover, Unbounded: true})
	huge := f.sc.Add(f.page, scene.ClipSpec{Name: "still", Kind: scene.KindImage, Duration: 1_000_000 * time.Second})
	f.settle()

	v, ok := f.state.Clip(voice)
	require.True(t, ok)
	assert.False(t, v.Duration.Valid)
	assert.Equal(t, 6*time.Second, v.DisplayDuration)

	// A background member shrinking updates the voiceover's display.
	f.sc.MustSet(f.state.Background.Clips[0].ID, scene.PropDuration, 4)
	f.settle()
	assert.Equal(t, 4*time.Second, v.DisplayDuration)

	h, ok := f.state.Clip(huge)
	require.True(t, ok)
	assert.True(t, h.Duration.Valid, "below the default threshold")
}

func TestUnboundedThresholdOption(t *testing.T) {
	f := newFixture(t, WithUnboundedThreshold(100))
	still := f.sc.Add(f.page, scene.ClipSpec{Name: "still", Kind: scene.KindImage, Duration: 500 * time.Second})
	f.settle()

	c, ok := f.state.Clip(still)
	require.True(t, ok)
	assert.False(t, c.Duration.Valid)
	assert.Equal(t, time.Duration(0), f.state.TotalDuration)
}

func TestNonEssentialReadFailureKeepsValue(t *testing.T) {
	f := newFixture(t)
	a := f.sc.Add(f.page, scene.ClipSpec{Name: "a", Kind: scene.KindVideo, Duration: 2 * time.Second, Trim: time.Second})
	b := f.sc.Add(f.page, scene.ClipSpec{Name: "b", Kind: scene.KindVideo, Duration: 2 * time.Second, Trim: time.Second})
	f.settle()

	f.sc.FailRead(a, scene.PropTrimOffset, errors.New("io"))
	f.sc.MustSet(a, scene.PropTrimOffset, 5)
	f.sc.MustSet(b, scene.PropTrimOffset, 5)
	f.settle()

	ca, _ := f.state.Clip(a)
	cb, _ := f.state.Clip(b)
	assert.Equal(t, time.Second, ca.TrimOffset, "failed read keeps the previous value")
	assert.Equal(t, 5*time.Second, cb.TrimOffset)

	// The previous value also survives a full reload.
	require.NoError(t, f.sync.Reload(context.Background()))
	ca, _ = f.state.Clip(a)
	assert.Equal(t, time.Second, ca.TrimOffset)
}

func TestEssentialReadFailureDropsOnlyThatClip(t *testing.T) {
	f := newFixture(t)
	a := f.sc.Add(f.page, scene.ClipSpec{Name: "a", Kind: scene.KindText, Duration: time.Second})
	b := f.sc.Add(f.page, scene.ClipSpec{Name: "b", Kind: scene.KindText, Duration: time.Second})
	f.sc.FailType(a, errors.New("io"))
	f.settle()

	_, ok := f.state.Clip(a)
	assert.False(t, ok)
	_, ok = f.state.Clip(b)
	assert.True(t, ok)
}

func TestDurationReadFailureOnNewClipStaysBounded(t *testing.T) {
	f := newFixture(t)
	a := f.sc.Add(f.page, scene.ClipSpec{Name: "a", Kind: scene.KindText, Duration: time.Second})
	f.sc.FailRead(a, scene.PropDuration, errors.New("io"))
	f.settle()

	c, ok := f.state.Clip(a)
	require.True(t, ok)
	assert.Equal(t, timeline.Bounded(0), c.Duration, "only unbounded resources lack a duration")
}

func TestTeardownSwallowed(t *testing.T) {
	f := newFixture(t)
	shot := f.sc.Add(f.page, scene.ClipSpec{Name: "shot", Kind: scene.KindVideo, Duration: 2 * time.Second})
	f.settle()
	reloads := f.sync.Stats().Reloads

	preview, err := f.sc.Create(scene.TypeGraphic)
	require.NoError(t, err)
	f.sync.MarkTransient(preview)
	require.NoError(t, f.sc.SetFill(preview, f.sc.Fill(shot)))
	require.NoError(t, f.sc.AppendChild(f.page, preview))
	f.state.SetScrubbing(preview)
	f.settle()

	assert.Equal(t, reloads, f.sync.Stats().Reloads, "transient blocks do not reload")
	_, ok := f.state.Clip(preview)
	assert.False(t, ok)

	f.sync.ExpectTeardown(preview)
	require.NoError(t, f.sc.Destroy(preview))
	f.settle()

	stats := f.sync.Stats()
	assert.Equal(t, reloads, stats.Reloads)
	assert.Equal(t, 1, stats.Swallowed)
	assert.False(t, f.state.IsScrubbing)
	assert.Equal(t, scene.NoBlock, f.state.ScrubbingPreview)
	_, ok = f.state.Clip(shot)
	assert.True(t, ok)
}

func TestDestroyReloadsAndNotifies(t *testing.T) {
	var removed []scene.BlockID
	f := newFixture(t, OnRemoved(func(id scene.BlockID) { removed = append(removed, id) }))
	a := f.sc.Add(f.page, scene.ClipSpec{Name: "a", Kind: scene.KindText, Duration: time.Second})
	f.sc.Add(f.page, scene.ClipSpec{Name: "b", Kind: scene.KindText, Duration: 2 * time.Second})
	f.settle()
	f.state.Select(a)
	reloads := f.sync.Stats().Reloads

	require.NoError(t, f.sc.Destroy(a))
	f.settle()

	assert.Equal(t, reloads+1, f.sync.Stats().Reloads)
	assert.Equal(t, []scene.BlockID{a}, removed)
	assert.Equal(t, scene.NoBlock, f.state.Selected)
	assert.Equal(t, []string{"b"}, foregroundTitles(f.state))
}

func TestForceLoad(t *testing.T) {
	f := newFixture(t)
	shot := f.sc.Add(f.page, scene.ClipSpec{Name: "shot", Kind: scene.KindVideo, Duration: 2 * time.Second, Unloaded: true})
	f.settle()

	c, ok := f.state.Clip(shot)
	require.True(t, ok)
	assert.True(t, c.Loading)

	f.sync.Wait()
	assert.Equal(t, 1, f.sync.Drain())
	c, _ = f.state.Clip(shot)
	assert.False(t, c.Loading)
	assert.False(t, f.sync.Loading())
}

func TestForceLoadFailure(t *testing.T) {
	f := newFixture(t)
	shot := f.sc.Add(f.page, scene.ClipSpec{Name: "shot", Kind: scene.KindVideo, Duration: 2 * time.Second, Unloaded: true})
	f.sc.FailLoad(f.sc.Fill(shot), errors.New("offline"))
	f.settle()

	f.sync.Wait()
	f.sync.Drain()
	c, ok := f.state.Clip(shot)
	require.True(t, ok)
	assert.False(t, c.Loading)
}

func TestForceLoadCancelledOnDestroy(t *testing.T) {
	f := newFixture(t)
	f.sc.LoadDelay = time.Hour
	shot := f.sc.Add(f.page, scene.ClipSpec{Name: "shot", Kind: scene.KindVideo, Duration: 2 * time.Second, Unloaded: true})
	f.settle()
	require.True(t, f.sync.Loading())

	require.NoError(t, f.sc.Destroy(shot))
	f.settle()

	f.sync.Wait()
	assert.False(t, f.sync.Loading())
	assert.Zero(t, f.sync.Drain(), "cancelled loads post nothing")
}
