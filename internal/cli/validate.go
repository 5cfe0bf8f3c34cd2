package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cutline/internal/config"
	"github.com/roach88/cutline/internal/harness"
)

// FileCheck is the validation outcome of one file.
type FileCheck struct {
	File  string `json:"file"`
	Kind  string `json:"kind"` // "scenario" or "config"
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate scenario and config files",
		Long: `Check scenario files (.yaml, .yml) and config files (.cue) without
running anything.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateFiles(cmd, rootOpts, args)
		},
	}
	return cmd
}

func validateFiles(cmd *cobra.Command, opts *RootOptions, paths []string) error {
	out := opts.formatter(cmd)

	checks := make([]FileCheck, 0, len(paths))
	invalid := 0
	for _, path := range paths {
		check, err := validateFile(path)
		if err != nil {
			out.Error(ErrCodeGeneric, err.Error(), map[string]string{"file": path})
			return WrapExitError(ExitCommandError, "cannot validate", err)
		}
		if !check.Valid {
			invalid++
		}
		checks = append(checks, check)
	}

	var text strings.Builder
	for _, c := range checks {
		if c.Valid {
			fmt.Fprintf(&text, "%s %s\n", okStyle.Render("ok"), c.File)
			continue
		}
		fmt.Fprintf(&text, "%s %s: %s\n", failStyle.Render("invalid"), c.File, c.Error)
	}

	if err := out.Success(checks, text.String()); err != nil {
		return err
	}
	if invalid > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d invalid file(s)", invalid))
	}
	return nil
}

func validateFile(path string) (FileCheck, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		check := FileCheck{File: path, Kind: "scenario", Valid: true}
		if _, err := harness.LoadScenario(path); err != nil {
			check.Valid = false
			check.Error = err.Error()
		}
		return check, nil
	case ".cue":
		check := FileCheck{File: path, Kind: "config", Valid: true}
		if _, err := config.Load(path); err != nil {
			check.Valid = false
			check.Error = err.Error()
		}
		return check, nil
	default:
		return FileCheck{}, fmt.Errorf("unsupported file type %q", ext)
	}
}
