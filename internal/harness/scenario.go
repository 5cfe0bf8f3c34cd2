package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cutline/internal/config"
	"github.com/roach88/cutline/internal/scene"
)

// Scenario is a scene, a sequence of editing steps and the assertions that
// must hold afterwards.
type Scenario struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Config      Overrides   `yaml:"config,omitempty"`
	Scene       SceneSpec   `yaml:"scene"`
	Steps       []Step      `yaml:"steps"`
	Assertions  []Assertion `yaml:"assertions"`
}

// Overrides replace config defaults for one scenario.
type Overrides struct {
	MinClipDuration *Duration `yaml:"min_clip_duration,omitempty"`
	PlayheadTick    *Duration `yaml:"playhead_tick,omitempty"`
}

// Apply returns c with the overrides applied.
func (o Overrides) Apply(c config.Config) config.Config {
	if o.MinClipDuration != nil {
		c.MinClipDurationMS = int(o.MinClipDuration.Milliseconds())
	}
	if o.PlayheadTick != nil {
		c.PlayheadTickMS = int(o.PlayheadTick.Milliseconds())
	}
	return c
}

// SceneSpec is the initial page content.
type SceneSpec struct {
	Background []ClipDef `yaml:"background,omitempty"`
	Foreground []ClipDef `yaml:"foreground,omitempty"`
}

// ClipDef describes one clip.
type ClipDef struct {
	Name      string   `yaml:"name"`
	Kind      string   `yaml:"kind"`
	Offset    Duration `yaml:"offset,omitempty"`
	Duration  Duration `yaml:"duration,omitempty"`
	Unbounded bool     `yaml:"unbounded,omitempty"`
	Footage   Duration `yaml:"footage,omitempty"`
	Trim      Duration `yaml:"trim,omitempty"`
	Volume    float64  `yaml:"volume,omitempty"`
	Muted     bool     `yaml:"muted,omitempty"`
	Unloaded  bool     `yaml:"unloaded,omitempty"`
}

// Spec converts d to a builder spec.
func (d ClipDef) Spec() scene.ClipSpec {
	return scene.ClipSpec{
		Name:      d.Name,
		Kind:      d.Kind,
		Offset:    d.Offset.Duration,
		Duration:  d.Duration.Duration,
		Unbounded: d.Unbounded,
		Footage:   d.Footage.Duration,
		Trim:      d.Trim.Duration,
		Volume:    d.Volume,
		Muted:     d.Muted,
		Unloaded:  d.Unloaded,
	}
}

// Step is one operation.
type Step struct {
	Op       string    `yaml:"op"`
	Clip     string    `yaml:"clip,omitempty"`
	At       *Duration `yaml:"at,omitempty"`
	As       string    `yaml:"as,omitempty"`
	Offset   *Duration `yaml:"offset,omitempty"`
	Trim     *Duration `yaml:"trim,omitempty"`
	Duration *Duration `yaml:"duration,omitempty"`
	Index    *int      `yaml:"index,omitempty"`
	Value    *float64  `yaml:"value,omitempty"`

	// ExpectError is the expected error code (validation, resource,
	// cancelled). Empty means the step must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion checks the final state.
type Assertion struct {
	Type   string     `yaml:"type"`
	Clip   string     `yaml:"clip,omitempty"`
	Clips  []string   `yaml:"clips,omitempty"`
	Value  *Duration  `yaml:"value,omitempty"`
	Labels []string   `yaml:"labels,omitempty"`
	Phase  string     `yaml:"phase,omitempty"`
	Expect *ClipCheck `yaml:"expect,omitempty"`
}

// ClipCheck lists the clip fields an assertion compares. Nil fields are
// not compared.
type ClipCheck struct {
	Offset     *Duration `yaml:"offset,omitempty"`
	Duration   *Duration `yaml:"duration,omitempty"`
	Trim       *Duration `yaml:"trim,omitempty"`
	Muted      *bool     `yaml:"muted,omitempty"`
	Volume     *float64  `yaml:"volume,omitempty"`
	Background *bool     `yaml:"background,omitempty"`
}

// Operation names.
const (
	OpSplit            = "split"
	OpSetTrim          = "set_trim"
	OpToggleBackground = "toggle_background"
	OpReorder          = "reorder"
	OpDelete           = "delete"
	OpSelect           = "select"
	OpMute             = "mute"
	OpVolume           = "volume"
	OpPlay             = "play"
	OpPause            = "pause"
	OpSeek             = "seek"
	OpAdvance          = "advance"
	OpClamp            = "clamp"
	OpScrubStart       = "scrub_start"
	OpScrub            = "scrub"
	OpScrubStop        = "scrub_stop"
)

// Assertion types.
const (
	AssertTotal           = "total"
	AssertPlayhead        = "playhead"
	AssertBackgroundOrder = "background_order"
	AssertForegroundOrder = "foreground_order"
	AssertSelected        = "selected"
	AssertClip            = "clip"
	AssertCommits         = "commits"
	AssertPhase           = "phase"
)

// Duration is a time.Duration written as "1.5s" in YAML.
type Duration struct {
	time.Duration
}

// D wraps d.
func D(d time.Duration) *Duration {
	return &Duration{d}
}

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	d.Duration = v
	return nil
}

// MarshalYAML writes the duration string.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// LoadScenario reads and parses a scenario file. Unknown fields are
// rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	names := map[string]bool{}
	clips := append(append([]ClipDef{}, s.Scene.Background...), s.Scene.Foreground...)
	for i, c := range clips {
		if c.Name == "" {
			return fmt.Errorf("scene clip %d: name is required", i)
		}
		if names[c.Name] {
			return fmt.Errorf("scene clip %d: duplicate name %q", i, c.Name)
		}
		if c.Kind == "" {
			return fmt.Errorf("scene clip %q: kind is required", c.Name)
		}
		names[c.Name] = true
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step, names); err != nil {
			return err
		}
		if step.As != "" {
			names[step.As] = true
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step *Step, names map[string]bool) error {
	needsClip := map[string]bool{
		OpSplit: true, OpSetTrim: true, OpToggleBackground: true, OpReorder: true,
		OpDelete: true, OpSelect: true, OpMute: true, OpVolume: true, OpScrubStart: true,
	}
	needsAt := map[string]bool{OpSplit: true, OpSeek: true, OpAdvance: true, OpScrub: true}

	switch step.Op {
	case "":
		return fmt.Errorf("steps[%d]: op is required", i)
	case OpSplit, OpSetTrim, OpToggleBackground, OpReorder, OpDelete, OpSelect, OpMute,
		OpVolume, OpPlay, OpPause, OpSeek, OpAdvance, OpClamp, OpScrubStart, OpScrub, OpScrubStop:
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
	}

	if needsClip[step.Op] {
		if step.Clip == "" {
			return fmt.Errorf("steps[%d]: %s needs a clip", i, step.Op)
		}
		if !names[step.Clip] {
			return fmt.Errorf("steps[%d]: unknown clip %q", i, step.Clip)
		}
	}
	if needsAt[step.Op] && step.At == nil {
		return fmt.Errorf("steps[%d]: %s needs at", i, step.Op)
	}
	switch step.Op {
	case OpSetTrim:
		if step.Trim == nil || step.Duration == nil {
			return fmt.Errorf("steps[%d]: set_trim needs trim and duration", i)
		}
	case OpReorder:
		if step.Index == nil {
			return fmt.Errorf("steps[%d]: reorder needs index", i)
		}
	case OpVolume:
		if step.Value == nil {
			return fmt.Errorf("steps[%d]: volume needs value", i)
		}
	}
	switch step.ExpectError {
	case "", "validation", "resource", "cancelled":
	default:
		return fmt.Errorf("steps[%d]: unknown expect_error %q", i, step.ExpectError)
	}
	return nil
}

func validateAssertion(i int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", i)
	case AssertTotal, AssertPlayhead:
		if a.Value == nil {
			return fmt.Errorf("assertions[%d]: value is required for %s", i, a.Type)
		}
	case AssertBackgroundOrder, AssertForegroundOrder:
		if a.Clips == nil {
			return fmt.Errorf("assertions[%d]: clips is required for %s", i, a.Type)
		}
	case AssertSelected, AssertCommits:
	case AssertClip:
		if a.Clip == "" || a.Expect == nil {
			return fmt.Errorf("assertions[%d]: clip and expect are required for clip", i)
		}
	case AssertPhase:
		if a.Phase != "idle" && a.Phase != "scrubbing" {
			return fmt.Errorf("assertions[%d]: phase must be idle or scrubbing", i)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
	}
	return nil
}
