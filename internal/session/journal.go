package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/cutline/internal/store"
	"github.com/roach88/cutline/internal/timeline"
)

// maxSeqRetries bounds how often a commit is retried after losing its seq
// to another writer.
const maxSeqRetries = 3

// journal records every editor commit in the session's store.
type journal struct {
	s *Session
}

func (j journal) Record(ctx context.Context, label string, snap timeline.Snapshot) error {
	j.s.history = append(j.s.history, label)
	if j.s.store == nil {
		return nil
	}

	data, err := snap.Canonical()
	if err != nil {
		return fmt.Errorf("journal %s: %w", label, err)
	}
	hash, err := snap.Hash()
	if err != nil {
		return fmt.Errorf("journal %s: %w", label, err)
	}

	c := store.Commit{
		ID:       j.s.ids.Generate(),
		Session:  j.s.id,
		Label:    label,
		Snapshot: string(data),
		Hash:     hash,
	}
	for attempt := 0; ; attempt++ {
		c.Seq = j.s.clock.Next()
		err := j.s.store.RecordCommit(ctx, c)
		if !errors.Is(err, store.ErrSeqTaken) || attempt == maxSeqRetries {
			return err
		}
		// Another session appended to the same journal since this one
		// resumed its clock.
		last, lerr := j.s.store.LastSeq(ctx)
		if lerr != nil {
			return fmt.Errorf("journal %s: %w", label, lerr)
		}
		j.s.clock.AdvanceTo(last)
		slog.Debug("journal seq taken, resuming clock", "session", j.s.id, "seq", c.Seq, "last", last)
	}
}
