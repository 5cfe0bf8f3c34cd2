package edit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cutline/internal/clipsync"
	"github.com/roach88/cutline/internal/scene"
	"github.com/roach88/cutline/internal/testutil"
	"github.com/roach88/cutline/internal/timeline"
)

type recordingJournal struct {
	labels []string
	totals []time.Duration
}

func (j *recordingJournal) Record(_ context.Context, label string, snap timeline.Snapshot) error {
	j.labels = append(j.labels, label)
	j.totals = append(j.totals, snap.TotalDuration)
	return nil
}

type queueDeferrer struct {
	fns []func()
}

func (d *queueDeferrer) Defer(fn func()) { d.fns = append(d.fns, fn) }

type fixture struct {
	t       *testing.T
	sc      *testutil.Scene
	state   *timeline.State
	sync    *clipsync.Synchronizer
	ed      *Editor
	journal *recordingJournal
	page    scene.BlockID
	ctx     context.Context
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	testutil.QuietLogs(t)
	sc := testutil.NewScene(t)
	state := timeline.NewState()
	s := clipsync.New(sc.Memory, state)
	unsubscribe := sc.Subscribe(func(events []scene.Event) {
		require.NoError(t, s.HandleBatch(context.Background(), events))
	})
	t.Cleanup(func() {
		unsubscribe()
		s.Close()
	})
	journal := &recordingJournal{}
	opts = append([]Option{WithMinClipDuration(time.Second), WithJournal(journal)}, opts...)
	return &fixture{
		t:       t,
		sc:      sc,
		state:   state,
		sync:    s,
		ed:      New(sc.Memory, s, opts...),
		journal: journal,
		page:    sc.Page(),
		ctx:     context.Background(),
	}
}

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

func (f *fixture) clip(id scene.BlockID) *timeline.Clip {
	f.t.Helper()
	c, ok := f.state.Clip(id)
	require.True(f.t, ok, "clip %s", id)
	return c
}

func (f *fixture) backgroundTitles() []string {
	var out []string
	for _, c := range f.state.Background.Clips {
		out = append(out, c.Title)
	}
	return out
}

// assertForegroundFits checks that no foreground clip ends past the total.
func (f *fixture) assertForegroundFits() {
	f.t.Helper()
	for _, tr := range f.state.Tracks {
		for _, c := range tr.Clips {
			assert.LessOrEqual(f.t, c.End(), f.state.TotalDuration, c.Title)
		}
	}
}

func TestSplit_Foreground(t *testing.T) {
	f := newFixture(t)
	id := f.sc.Add(f.page, scene.ClipSpec{
		Name: "shot", Kind: scene.KindVideo,
		Duration: 10 * time.Second, Trim: time.Second, Footage: 40 * time.Second,
	})
	f.settle()

	dup, err := f.ed.Split(f.ctx, id, 4*time.Second)
	require.NoError(t, err)
	f.settle()

	a, b := f.clip(id), f.clip(dup)
	assert.Equal(t, 4*time.Second, a.Duration.Value)
	assert.Equal(t, 6*time.Second, b.Duration.Value)
	assert.Equal(t, a.Duration.Value+b.Duration.Value, 10*time.Second)
	assert.Equal(t, 4*time.Second, b.TimeOffset)
	assert.Equal(t, 5*time.Second, b.TrimOffset, "second piece continues the footage")
	assert.Equal(t, a.TrimOffset+a.Duration.Value, b.TrimOffset)
	assert.Equal(t, dup, f.state.Selected)
	assert.Equal(t, []string{OpSplit}, f.sc.Commits())
	assert.Equal(t, []string{OpSplit}, f.journal.labels)
}

func TestSplit_Background(t *testing.T) {
	f := newFixture(t)
	bg := f.sc.Background()
	f.sc.Video(bg, "a", 3*time.Second)
	id := f.sc.Video(bg, "b", 10*time.Second)
	f.sc.Video(bg, "c", 2*time.Second)
	f.settle()

	dup, err := f.ed.Split(f.ctx, id, 7*time.Second)
	require.NoError(t, err)
	f.settle()

	assert.Equal(t, 15*time.Second, f.state.TotalDuration)
	require.Equal(t, 4, f.state.Background.Len())
	assert.Equal(t, dup, f.state.Background.Clips[2].ID)
	assert.Equal(t, 4*time.Second, f.clip(id).Duration.Value)
	assert.Equal(t, 6*time.Second, f.clip(dup).Duration.Value)
	assert.Equal(t, 7*time.Second, f.clip(dup).TimeOffset)
}

func TestSplit_Rejected(t *testing.T) {
	tests := []struct {
		name     string
		playhead time.Duration
	}{
		{"below minimum", 500 * time.Millisecond},
		{"at start", 0},
		{"at end", 10 * time.Second},
		{"past end", 12 * time.Second},
		{"second piece too short", 9500 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			id := f.sc.Add(f.page, scene.ClipSpec{Name: "shot", Kind: scene.KindVideo, Duration: 10 * time.Second})
			f.settle()
			before := f.state.Snapshot()

			dup, err := f.ed.Split(f.ctx, id, tt.playhead)
			require.Error(t, err)
			assert.True(t, timeline.IsValidation(err), err.Error())
			assert.Equal(t, scene.NoBlock, dup)

			assert.Zero(t, f.sc.PendingEvents(), "no engine mutation")
			assert.Empty(t, f.sc.Commits())
			assert.Equal(t, before, f.state.Snapshot())
		})
	}
}

func TestSplit_PiecesSumToOriginal(t *testing.T) {
	for _, playhead := range []time.Duration{2 * time.Second, 2500 * time.Millisecond, 5 * time.Second, 8 * time.Second} {
		f := newFixture(t)
		id := f.sc.Add(f.page, scene.ClipSpec{Name: "shot", Kind: scene.KindVideo, Offset: time.Second, Duration: 8 * time.Second, Footage: 20 * time.Second})
		f.settle()

		dup, err := f.ed.Split(f.ctx, id, playhead)
		require.NoError(t, err, playhead.String())
		f.settle()

		a, b := f.clip(id), f.clip(dup)
		assert.Equal(t, 8*time.Second, a.Duration.Value+b.Duration.Value)
		assert.Equal(t, a.End(), b.TimeOffset)
		assert.Equal(t, a.TrimOffset+a.Duration.Value, b.TrimOffset)
	}
}

func TestSplit_SelectsAfterSettle(t *testing.T) {
	d := &queueDeferrer{}
	f := newFixture(t, WithDeferrer(d))
	id := f.sc.Add(f.page, scene.ClipSpec{Name: "shot", Kind: scene.KindVideo, Duration: 10 * time.Second})
	f.settle()

	dup, err := f.ed.Split(f.ctx, id, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, scene.NoBlock, f.state.Selected)

	f.settle()
	require.Len(t, d.fns, 1)
	d.fns[0]()
	assert.Equal(t, dup, f.state.Selected)
}

func TestSetTrim_RoundTrip(t *testing.T) {
	f := newFixture(t)
	id := f.sc.Add(f.page, scene.ClipSpec{Name: "shot", Kind: scene.KindVideo, Duration: 10 * time.Second, Footage: 30 * time.Second})
	f.settle()

	require.NoError(t, f.ed.SetTrim(f.ctx, id, 2*time.Second, 1500*time.Millisecond, 3*time.Second))

	c := f.clip(id)
	assert.Equal(t, 2*time.Second, c.TimeOffset)
	assert.Equal(t, 1500*time.Millisecond, c.TrimOffset)
	assert.Equal(t, 3*time.Second, c.Duration.Value)
	assert.Equal(t, 5*time.Second, f.state.TotalDuration, "refreshed before the next batch")

	f.settle()
	c = f.clip(id)
	assert.Equal(t, 2*time.Second, c.TimeOffset)
	assert.Equal(t, 1500*time.Millisecond, c.TrimOffset)
	assert.Equal(t, 3*time.Second, c.Duration.Value)
	assert.Equal(t, 2.0, f.sc.MustFloat(id, scene.PropTimeOffset))
	assert.Equal(t, []string{OpSetTrim}, f.sc.Commits())
}

func TestSetTrim_BackgroundSkipsOffset(t *testing.T) {
	f := newFixture(t)
	bg := f.sc.Background()
	f.sc.Video(bg, "a", 3*time.Second)
	id := f.sc.Video(bg, "b", 4*time.Second)
	f.settle()

	require.NoError(t, f.ed.SetTrim(f.ctx, id, 99*time.Second, time.Second, 2*time.Second))
	f.settle()

	assert.Equal(t, 0.0, f.sc.MustFloat(id, scene.PropTimeOffset))
	assert.Equal(t, 3*time.Second, f.clip(id).TimeOffset)
	assert.Equal(t, 5*time.Second, f.state.TotalDuration)
}

func TestSetTrim_Rejected(t *testing.T) {
	f := newFixture(t)
	bg := f.sc.Background()
	f.sc.Video(bg, "a", 5*time.Second)
	text := f.sc.Add(f.page, scene.ClipSpec{Name: "title", Kind: scene.KindText, Duration: time.Second})
	shot := f.sc.Add(f.page, scene.ClipSpec{Name: "shot", Kind: scene.KindVideo, Duration: 2 * time.Second, Footage: 6 * time.Second})
	f.settle()

	tests := []struct {
		name                string
		id                  scene.BlockID
		offset, trim, width time.Duration
	}{
		{"not trimmable", text, 0, 0, time.Second},
		{"negative offset", shot, -time.Second, 0, 2 * time.Second},
		{"below minimum", shot, 0, 0, 500 * time.Millisecond},
		{"past footage", shot, 0, 5 * time.Second, 2 * time.Second},
		{"past timeline end", shot, 4 * time.Second, 0, 2 * time.Second},
		{"unknown clip", 999, 0, 0, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.ed.SetTrim(f.ctx, tt.id, tt.offset, tt.trim, tt.width)
			assert.True(t, timeline.IsValidation(err), "%v", err)
		})
	}
	assert.Zero(t, f.sc.PendingEvents())
	assert.Empty(t, f.sc.Commits())
}

func TestSetTrim_ShrinkingBackgroundFitsForeground(t *testing.T) {
	f := newFixture(t)
	bg := f.sc.Background()
	base := f.sc.Video(bg, "a", 10*time.Second)
	title := f.sc.Add(f.page, scene.ClipSpec{Name: "title", Kind: scene.KindText, Offset: 8 * time.Second, Duration: 2 * time.Second})
	long := f.sc.Add(f.page, scene.ClipSpec{Name: "long", Kind: scene.KindShape, Duration: 9 * time.Second})
	f.settle()

	require.NoError(t, f.ed.SetTrim(f.ctx, base, 0, 0, 6*time.Second))
	f.settle()

	assert.Equal(t, 6*time.Second, f.state.TotalDuration)
	assert.Equal(t, 4*time.Second, f.clip(title).TimeOffset)
	assert.Equal(t, 2*time.Second, f.clip(title).Duration.Value)
	assert.Equal(t, time.Duration(0), f.clip(long).TimeOffset)
	assert.Equal(t, 6*time.Second, f.clip(long).Duration.Value)
	f.assertForegroundFits()
	assert.Equal(t, []time.Duration{6 * time.Second}, f.journal.totals)
}

func TestToggleBackground_In(t *testing.T) {
	f := newFixture(t)
	bg := f.sc.Background()
	f.sc.Video(bg, "a", 3*time.Second)
	f.sc.Video(bg, "b", 2*time.Second)
	f.sc.Video(bg, "c", 4*time.Second)
	x := f.sc.Add(f.page, scene.ClipSpec{Name: "x", Kind: scene.KindVideo, Offset: 3500 * time.Millisecond, Duration: time.Second})
	f.settle()

	require.NoError(t, f.ed.ToggleBackgroundTrack(f.ctx, x))
	f.settle()

	assert.Equal(t, []string{"a", "x", "b", "c"}, f.backgroundTitles())
	assert.True(t, f.clip(x).InBackgroundTrack)
	assert.Equal(t, 10*time.Second, f.state.TotalDuration)
	assert.Equal(t, []string{OpToggleBackground}, f.sc.Commits())
}

func TestToggleBackground_CreatesTrack(t *testing.T) {
	f := newFixture(t)
	x := f.sc.Add(f.page, scene.ClipSpec{Name: "x", Kind: scene.KindVideo, Offset: 2 * time.Second, Duration: 3 * time.Second})
	title := f.sc.Add(f.page, scene.ClipSpec{Name: "title", Kind: scene.KindText, Offset: 2 * time.Second, Duration: 3 * time.Second})
	f.settle()
	require.Equal(t, scene.NoBlock, f.state.BackgroundBlock)

	require.NoError(t, f.ed.ToggleBackgroundTrack(f.ctx, x))
	f.settle()

	assert.True(t, f.state.BackgroundBlock.Valid())
	assert.Equal(t, []string{"x"}, f.backgroundTitles())
	assert.Equal(t, 3*time.Second, f.state.TotalDuration)
	assert.Equal(t, time.Duration(0), f.clip(title).TimeOffset)
	f.assertForegroundFits()
}

func TestToggleBackground_Out(t *testing.T) {
	f := newFixture(t)
	bg := f.sc.Background()
	f.sc.Video(bg, "a", 3*time.Second)
	b := f.sc.Video(bg, "b", 2*time.Second)
	f.settle()

	require.NoError(t, f.ed.ToggleBackgroundTrack(f.ctx, b))
	f.settle()

	c := f.clip(b)
	assert.False(t, c.InBackgroundTrack)
	assert.Equal(t, time.Second, c.TimeOffset)
	assert.Equal(t, 3*time.Second, f.state.TotalDuration)
	assert.Equal(t, []string{"a"}, f.backgroundTitles())
	f.assertForegroundFits()

	parent, err := f.sc.Parent(b)
	require.NoError(t, err)
	assert.Equal(t, f.page, parent)
}

func TestInsertionIndex(t *testing.T) {
	bg := &timeline.Track{}
	for i, d := range []time.Duration{3 * time.Second, 2 * time.Second, 4 * time.Second} {
		bg.Clips = append(bg.Clips, &timeline.Clip{ID: scene.BlockID(i + 1), Duration: timeline.Bounded(d)})
	}
	var start time.Duration
	for _, c := range bg.Clips {
		c.TimeOffset = start
		start += c.Duration.Value
	}

	assert.Equal(t, 0, InsertionIndex(bg, 0))
	assert.Equal(t, 1, InsertionIndex(bg, 1500*time.Millisecond))
	assert.Equal(t, 2, InsertionIndex(bg, 4*time.Second))
	assert.Equal(t, 3, InsertionIndex(bg, 8*time.Second))
	assert.Equal(t, 0, InsertionIndex(&timeline.Track{}, time.Second))
}

func TestReorderBackgroundTrack(t *testing.T) {
	f := newFixture(t)
	bg := f.sc.Background()
	f.sc.Video(bg, "a", 3*time.Second)
	f.sc.Video(bg, "b", 2*time.Second)
	c := f.sc.Video(bg, "c", 4*time.Second)
	fg := f.sc.Add(f.page, scene.ClipSpec{Name: "title", Kind: scene.KindText, Duration: time.Second})
	f.settle()

	require.NoError(t, f.ed.ReorderBackgroundTrack(f.ctx, c, 0))
	f.settle()
	assert.Equal(t, []string{"c", "a", "b"}, f.backgroundTitles())
	assert.Equal(t, time.Duration(0), f.clip(c).TimeOffset)
	assert.Equal(t, 9*time.Second, f.state.TotalDuration)

	assert.True(t, timeline.IsValidation(f.ed.ReorderBackgroundTrack(f.ctx, c, 3)))
	assert.True(t, timeline.IsValidation(f.ed.ReorderBackgroundTrack(f.ctx, c, -1)))
	assert.True(t, timeline.IsValidation(f.ed.ReorderBackgroundTrack(f.ctx, fg, 0)))
	assert.Equal(t, []string{OpReorder}, f.sc.Commits())
}

func TestMuteAndVolume(t *testing.T) {
	f := newFixture(t)
	shot := f.sc.Add(f.page, scene.ClipSpec{Name: "shot", Kind: scene.KindVideo, Duration: 2 * time.Second})
	music := f.sc.Add(f.page, scene.ClipSpec{Name: "music", Kind: scene.KindAudio, Duration: 2 * time.Second})
	text := f.sc.Add(f.page, scene.ClipSpec{Name: "title", Kind: scene.KindText, Duration: time.Second})
	f.settle()

	require.NoError(t, f.ed.SetMuted(f.ctx, shot, true))
	muted, err := f.sc.Bool(f.sc.Fill(shot), scene.PropMuted)
	require.NoError(t, err)
	assert.True(t, muted, "video mute goes to the fill")
	assert.True(t, f.clip(shot).Muted)

	require.NoError(t, f.ed.ToggleMute(f.ctx, music))
	muted, err = f.sc.Bool(music, scene.PropMuted)
	require.NoError(t, err)
	assert.True(t, muted, "audio mute goes to the clip")
	require.NoError(t, f.ed.ToggleMute(f.ctx, music))
	assert.False(t, f.clip(music).Muted)

	require.NoError(t, f.ed.SetVolume(f.ctx, shot, 0.25))
	assert.Equal(t, 0.25, f.sc.MustFloat(f.sc.Fill(shot), scene.PropVolume))
	assert.Equal(t, 0.25, f.clip(shot).Volume)

	assert.True(t, timeline.IsValidation(f.ed.SetVolume(f.ctx, shot, 1.5)))
	assert.True(t, timeline.IsValidation(f.ed.SetMuted(f.ctx, text, true)))
	assert.Equal(t, []string{OpMute, OpMute, OpMute, OpVolume}, f.sc.Commits())
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	bg := f.sc.Background()
	a := f.sc.Video(bg, "a", 3*time.Second)
	f.sc.Video(bg, "b", 2*time.Second)
	title := f.sc.Add(f.page, scene.ClipSpec{Name: "title", Kind: scene.KindText, Offset: 3 * time.Second, Duration: 2 * time.Second})
	f.settle()

	require.NoError(t, f.ed.Delete(f.ctx, a))
	f.settle()

	_, ok := f.state.Clip(a)
	assert.False(t, ok)
	assert.Equal(t, 2*time.Second, f.state.TotalDuration)
	assert.Equal(t, time.Duration(0), f.clip(title).TimeOffset)
	f.assertForegroundFits()
	assert.True(t, timeline.IsValidation(f.ed.Delete(f.ctx, a)))
}

func TestSelect(t *testing.T) {
	f := newFixture(t)
	id := f.sc.Add(f.page, scene.ClipSpec{Name: "title", Kind: scene.KindText, Duration: time.Second})
	f.settle()

	require.NoError(t, f.ed.Select(f.ctx, id))
	assert.Equal(t, id, f.state.Selected)
	require.NoError(t, f.ed.Select(f.ctx, scene.NoBlock))
	assert.Equal(t, scene.NoBlock, f.state.Selected)
	assert.True(t, timeline.IsValidation(f.ed.Select(f.ctx, 999)))
	assert.Empty(t, f.sc.Commits())
}

func TestCancelledContext(t *testing.T) {
	f := newFixture(t)
	id := f.sc.Add(f.page, scene.ClipSpec{Name: "shot", Kind: scene.KindVideo, Duration: 10 * time.Second})
	f.settle()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.ed.Split(ctx, id, 5*time.Second)
	assert.True(t, timeline.IsCancelled(err))
	assert.Empty(t, f.sc.Commits())
}
