package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cutline/internal/scene"
)

func TestDefault(t *testing.T) {
	c := Default()

	assert.Equal(t, 100*time.Millisecond, c.MinClipDuration())
	assert.Equal(t, time.Millisecond, c.PlayheadTick())
	assert.Equal(t, 1e9, c.UnboundedThresholdSeconds)
	assert.Equal(t, 30*time.Second, c.ForceLoadTimeout())
	assert.Equal(t, scene.Size{Width: 80, Height: 45}, c.ThumbnailSize())
	assert.Equal(t, 10, c.Thumbnail.Count)
	assert.Equal(t, 500, c.Thumbnail.CacheLimit)
	assert.Empty(t, c.JournalPath)
	assert.Equal(t, slog.LevelInfo, c.SlogLevel())
}

func TestLoadEmptyPath(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cutline.cue")
	src := `
min_clip_duration_ms: 250
thumbnail: width: 160
journal_path: "edits.db"
log_level: "debug"
unbounded_threshold_seconds: 3600
`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, c.MinClipDuration())
	assert.Equal(t, 160, c.Thumbnail.Width)
	assert.Equal(t, 45, c.Thumbnail.Height)
	assert.Equal(t, "edits.db", c.JournalPath)
	assert.Equal(t, slog.LevelDebug, c.SlogLevel())
	assert.Equal(t, 3600.0, c.UnboundedThresholdSeconds)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"zero min clip", "min_clip_duration_ms: 0"},
		{"negative timeout", "force_load_timeout_ms: -1"},
		{"negative cache limit", "thumbnail: cache_limit: -1"},
		{"unknown level", `log_level: "trace"`},
		{"unknown field", "frame_rate: 30"},
		{"wrong type", `playhead_tick_ms: "1"`},
		{"syntax", "min_clip_duration_ms: {"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadBytes("bad.cue", []byte(tt.src))
			require.Error(t, err)
			var cfgErr *Error
			assert.True(t, errors.As(err, &cfgErr))
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.cue"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
