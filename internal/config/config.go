// Package config loads editor settings written in CUE.
//
// A user file is unified with the embedded #Config schema, which supplies
// every default, so an empty file (or no file) yields Default().
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/cutline/internal/scene"
)

//go:embed schema.cue
var schemaCUE string

// Config is the decoded #Config.
type Config struct {
	MinClipDurationMS         int       `json:"min_clip_duration_ms"`
	PlayheadTickMS            int       `json:"playhead_tick_ms"`
	UnboundedThresholdSeconds float64   `json:"unbounded_threshold_seconds"`
	ForceLoadTimeoutMS        int       `json:"force_load_timeout_ms"`
	Thumbnail                 Thumbnail `json:"thumbnail"`
	JournalPath               string    `json:"journal_path"`
	LogLevel                  string    `json:"log_level"`
}

// Thumbnail holds the default thumbnail request shape and the cache bound.
type Thumbnail struct {
	Width      int `json:"width"`
	Height     int `json:"height"`
	Count      int `json:"count"`
	CacheLimit int `json:"cache_limit"`
}

// Error is a config error with its CUE source position when known.
type Error struct {
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// Default returns the schema defaults.
func Default() Config {
	c, err := LoadBytes("", nil)
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema: %v", err))
	}
	return c
}

// Load reads and validates the CUE file at path. An empty path yields the
// defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return LoadBytes(path, data)
}

// LoadBytes validates src (named filename in errors) against the schema.
func LoadBytes(filename string, src []byte) (Config, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, formatCUEError(err)
	}

	v := schema.LookupPath(cue.ParsePath("#Config"))
	if len(src) > 0 {
		user := ctx.CompileBytes(src, cue.Filename(filename))
		if err := user.Err(); err != nil {
			return Config{}, formatCUEError(err)
		}
		v = v.Unify(user)
	}

	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, formatCUEError(err)
	}

	var c Config
	if err := v.Decode(&c); err != nil {
		return Config{}, formatCUEError(err)
	}
	return c, nil
}

// MinClipDuration is min_clip_duration_ms as a duration.
func (c Config) MinClipDuration() time.Duration {
	return time.Duration(c.MinClipDurationMS) * time.Millisecond
}

// PlayheadTick is playhead_tick_ms as a duration.
func (c Config) PlayheadTick() time.Duration {
	return time.Duration(c.PlayheadTickMS) * time.Millisecond
}

// ForceLoadTimeout is force_load_timeout_ms as a duration, 0 for none.
func (c Config) ForceLoadTimeout() time.Duration {
	return time.Duration(c.ForceLoadTimeoutMS) * time.Millisecond
}

// ThumbnailSize is the configured thumbnail size.
func (c Config) ThumbnailSize() scene.Size {
	return scene.Size{Width: c.Thumbnail.Width, Height: c.Thumbnail.Height}
}

// SlogLevel maps log_level to a slog level.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &Error{Message: err.Error()}
	}
	first := errs[0]
	e := &Error{Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		e.Pos = positions[0]
	}
	return e
}
