package cli

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	DBPath string
}

// ShowResult is the JSON payload of the show command.
type ShowResult struct {
	Seq      int64           `json:"seq"`
	ID       string          `json:"id"`
	Session  string          `json:"session"`
	Label    string          `json:"label"`
	Hash     string          `json:"hash"`
	Snapshot json.RawMessage `json:"snapshot"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "show <commit-id>",
		Short:         "Print the timeline recorded by a commit",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showCommit(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.DBPath, "db", "", "journal database path (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func showCommit(cmd *cobra.Command, opts *ShowOptions, id string) error {
	out := opts.formatter(cmd)

	st, err := openJournal(out, opts.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	c, err := st.ReadCommit(cmd.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		out.Error(ErrCodeNotFound, fmt.Sprintf("commit not found: %s", id), nil)
		return NewExitError(ExitFailure, "commit not found")
	}
	if err != nil {
		out.Error(ErrCodeJournal, err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to read commit", err)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, []byte(c.Snapshot), "", "  "); err != nil {
		return WrapExitError(ExitFailure, "corrupt snapshot", err)
	}

	text := fmt.Sprintf("%s %s\n%s %d\n%s %s\n%s %s\n%s\n",
		headerStyle.Render("commit"), c.ID,
		mutedStyle.Render("seq"), c.Seq,
		mutedStyle.Render("label"), c.Label,
		mutedStyle.Render("hash"), c.Hash,
		pretty.String())

	return out.Success(ShowResult{
		Seq:      c.Seq,
		ID:       c.ID,
		Session:  c.Session,
		Label:    c.Label,
		Hash:     c.Hash,
		Snapshot: json.RawMessage(c.Snapshot),
	}, text)
}
