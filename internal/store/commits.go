package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// ErrSeqTaken reports that another writer already recorded a commit with
// the same seq. The caller resumes its clock from LastSeq and retries.
var ErrSeqTaken = errors.New("journal seq already taken")

// Commit is one journal entry.
type Commit struct {
	Seq      int64
	ID       string
	Session  string
	Label    string
	Snapshot string // canonical JSON
	Hash     string
}

// RecordCommit appends a journal entry. Writing an id twice is a no-op.
// A seq already used by another commit fails with ErrSeqTaken.
func (s *Store) RecordCommit(ctx context.Context, c Commit) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO commits (seq, id, session, label, snapshot, snapshot_hash)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, c.Seq, c.ID, c.Session, c.Label, c.Snapshot, c.Hash)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
		return fmt.Errorf("record commit %s at seq %d: %w", c.ID, c.Seq, ErrSeqTaken)
	}
	if err != nil {
		return fmt.Errorf("record commit %s: %w", c.ID, err)
	}
	return nil
}

// Commits returns the journal of one session, or of every session when
// session is empty. Returns an empty slice, not nil, when there are none.
func (s *Store) Commits(ctx context.Context, session string) ([]Commit, error) {
	query := `
		SELECT seq, id, session, label, snapshot, snapshot_hash
		FROM commits
		WHERE (? = '' OR session = ?)
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`
	rows, err := s.db.QueryContext(ctx, query, session, session)
	if err != nil {
		return nil, fmt.Errorf("query commits: %w", err)
	}
	defer rows.Close()

	commits := []Commit{}
	for rows.Next() {
		var c Commit
		if err := rows.Scan(&c.Seq, &c.ID, &c.Session, &c.Label, &c.Snapshot, &c.Hash); err != nil {
			return nil, fmt.Errorf("scan commit: %w", err)
		}
		commits = append(commits, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commits: %w", err)
	}
	return commits, nil
}

// ReadCommit returns one entry. Returns sql.ErrNoRows if not found.
func (s *Store) ReadCommit(ctx context.Context, id string) (Commit, error) {
	var c Commit
	err := s.db.QueryRowContext(ctx, `
		SELECT seq, id, session, label, snapshot, snapshot_hash
		FROM commits
		WHERE id = ?
	`, id).Scan(&c.Seq, &c.ID, &c.Session, &c.Label, &c.Snapshot, &c.Hash)
	if err != nil {
		return Commit{}, err
	}
	return c, nil
}

// LastSeq returns the highest journal seq, 0 for an empty journal. A new
// session's clock resumes from it.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM commits`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}
