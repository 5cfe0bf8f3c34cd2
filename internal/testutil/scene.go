package testutil

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/cutline/internal/scene"
)

// QuietLogs discards slog output for the duration of the test.
func QuietLogs(t testing.TB) {
	t.Helper()
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
}

// Scene wraps a scene.Memory with helpers that fail the test on error.
type Scene struct {
	*scene.Memory
	t testing.TB
}

// NewScene returns an engine with one empty page.
func NewScene(t testing.TB) *Scene {
	t.Helper()
	return &Scene{Memory: scene.NewMemory(), t: t}
}

// Background returns the background track, creating it when missing.
func (s *Scene) Background() scene.BlockID {
	s.t.Helper()
	id, err := s.BackgroundTrack()
	require.NoError(s.t, err)
	return id
}

// Add appends a clip described by spec to parent.
func (s *Scene) Add(parent scene.BlockID, spec scene.ClipSpec) scene.BlockID {
	s.t.Helper()
	id, err := s.AddClip(parent, spec)
	require.NoError(s.t, err)
	return id
}

// Video appends a bounded video clip to parent.
func (s *Scene) Video(parent scene.BlockID, name string, duration time.Duration) scene.BlockID {
	s.t.Helper()
	return s.Add(parent, scene.ClipSpec{Name: name, Kind: scene.KindVideo, Duration: duration, Footage: 4 * duration})
}

// MustFloat reads a property, failing the test on error.
func (s *Scene) MustFloat(id scene.BlockID, p scene.Property) float64 {
	s.t.Helper()
	v, err := s.Float(id, p)
	require.NoError(s.t, err)
	return v
}

// MustSet writes a property, failing the test on error.
func (s *Scene) MustSet(id scene.BlockID, p scene.Property, v float64) {
	s.t.Helper()
	require.NoError(s.t, s.SetFloat(id, p, v))
}

// Fill returns the fill of id.
func (s *Scene) Fill(id scene.BlockID) scene.BlockID {
	s.t.Helper()
	subs, err := s.SubResources(id)
	require.NoError(s.t, err)
	return subs.Fill
}
