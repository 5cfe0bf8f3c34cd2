package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cutline/internal/harness"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	DBPath string
}

// RunReport is the JSON payload of the run command.
type RunReport struct {
	Scenarios []*harness.Result `json:"scenarios"`
	Passed    int               `json:"passed"`
	Failed    int               `json:"failed"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>...",
		Short: "Run timeline scenarios",
		Long: `Run one or more scenario files against a fresh in-memory engine and print
the resulting timeline.

With --db, every commit is appended to the journal at that path.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.DBPath, "db", "", "journal database path (overrides journal_path)")

	return cmd
}

func runScenarios(cmd *cobra.Command, opts *RunOptions, paths []string) error {
	out := opts.formatter(cmd)

	cfg, err := opts.loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if opts.DBPath != "" {
		cfg.JournalPath = opts.DBPath
	}

	report := RunReport{Scenarios: make([]*harness.Result, 0, len(paths))}
	var text strings.Builder
	for _, path := range paths {
		s, err := harness.LoadScenario(path)
		if err != nil {
			out.Error(ErrCodeScenario, err.Error(), map[string]string{"file": path})
			return WrapExitError(ExitCommandError, "invalid scenario", err)
		}

		out.VerboseLog("running %s (%d steps)", s.Name, len(s.Steps))
		result, err := harness.RunWithConfig(cmd.Context(), s, cfg)
		if err != nil {
			out.Error(ErrCodeGeneric, err.Error(), map[string]string{"file": path})
			return WrapExitError(ExitFailure, "scenario setup failed", err)
		}
		slog.Debug("scenario finished", "scenario", s.Name, "pass", result.Pass, "commits", len(result.Commits))

		report.Scenarios = append(report.Scenarios, result)
		if result.Pass {
			report.Passed++
		} else {
			report.Failed++
		}

		text.WriteString(styleTranscript(result.Transcript()))
		fmt.Fprintf(&text, "%s %s\n", passLabel(result.Pass), s.Name)
		for _, e := range result.Errors {
			fmt.Fprintf(&text, "  %s\n", failStyle.Render(e))
		}
		text.WriteByte('\n')
	}
	fmt.Fprintf(&text, "%d passed, %d failed\n", report.Passed, report.Failed)

	if err := out.Success(report, text.String()); err != nil {
		return err
	}
	if report.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", report.Failed))
	}
	return nil
}
