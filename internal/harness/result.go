package harness

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/roach88/cutline/internal/timeline"
)

// StepResult is the outcome of one step.
type StepResult struct {
	Index int    `json:"index"`
	Op    string `json:"op"`
	Clip  string `json:"clip,omitempty"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario.
type Result struct {
	Name     string            `json:"name"`
	Pass     bool              `json:"pass"`
	Errors   []string          `json:"errors"`
	Steps    []StepResult      `json:"steps"`
	Snapshot timeline.Snapshot `json:"-"`
	Playhead time.Duration     `json:"playhead_ns"`
	Phase    string            `json:"phase"`
	Commits  []string          `json:"commits"`
}

// NewResult creates a passing result.
func NewResult(name string) *Result {
	return &Result{
		Name:    name,
		Pass:    true,
		Errors:  []string{},
		Steps:   []StepResult{},
		Commits: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// Render writes the transcript golden files compare: steps, the final
// timeline, playhead, scrubbing phase and journal.
func (r *Result) Render(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario %s\n", r.Name)
	for _, s := range r.Steps {
		fmt.Fprintf(&b, "step %d %s", s.Index, s.Op)
		if s.Clip != "" {
			fmt.Fprintf(&b, " %s", s.Clip)
		}
		if s.Code != "" {
			fmt.Fprintf(&b, ": %s\n", s.Code)
		} else {
			b.WriteString(": ok\n")
		}
	}
	if err := r.Snapshot.Render(&b); err != nil {
		return err
	}
	fmt.Fprintf(&b, "playhead %s\n", r.Playhead)
	fmt.Fprintf(&b, "phase %s\n", r.Phase)
	commits := "-"
	if len(r.Commits) > 0 {
		commits = strings.Join(r.Commits, ", ")
	}
	fmt.Fprintf(&b, "commits %s\n", commits)
	_, err := io.WriteString(w, b.String())
	return err
}

// Transcript returns Render's output.
func (r *Result) Transcript() string {
	var b strings.Builder
	_ = r.Render(&b)
	return b.String()
}
