package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cutline/internal/store"
)

// JournalOptions holds flags for the journal command.
type JournalOptions struct {
	*RootOptions
	DBPath  string
	Session string
}

// JournalEntry is one commit as listed by the journal command.
type JournalEntry struct {
	Seq     int64  `json:"seq"`
	ID      string `json:"id"`
	Session string `json:"session"`
	Label   string `json:"label"`
	Hash    string `json:"hash"`
}

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "journal",
		Short:         "List recorded commits",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listJournal(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.DBPath, "db", "", "journal database path (required)")
	cmd.Flags().StringVar(&opts.Session, "session", "", "only list commits of this session")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

// openJournal opens an existing journal. store.Open would create a fresh
// database, which is never what a read command wants.
func openJournal(out *OutputFormatter, path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		out.Error(ErrCodeJournal, fmt.Sprintf("journal not found: %s", path), nil)
		return nil, WrapExitError(ExitCommandError, "journal not found", err)
	}
	st, err := store.Open(path)
	if err != nil {
		out.Error(ErrCodeJournal, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	return st, nil
}

func listJournal(cmd *cobra.Command, opts *JournalOptions) error {
	out := opts.formatter(cmd)

	st, err := openJournal(out, opts.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	commits, err := st.Commits(cmd.Context(), opts.Session)
	if err != nil {
		out.Error(ErrCodeJournal, err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to read journal", err)
	}

	entries := make([]JournalEntry, 0, len(commits))
	var text strings.Builder
	for _, c := range commits {
		entries = append(entries, JournalEntry{
			Seq:     c.Seq,
			ID:      c.ID,
			Session: c.Session,
			Label:   c.Label,
			Hash:    c.Hash,
		})
		fmt.Fprintf(&text, "%s %s %s %s\n",
			mutedStyle.Render(fmt.Sprintf("%6d", c.Seq)), c.ID, c.Label, mutedStyle.Render(c.Session))
	}
	if len(entries) == 0 {
		text.WriteString("no commits\n")
	}

	return out.Success(entries, text.String())
}
