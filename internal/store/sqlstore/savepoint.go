package sqlstore

import (
	"context"
	"fmt"

	"github.com/sdmxkit/sdmxreg/internal/store"
)

// savepoint is a SQL SAVEPOINT inside the session transaction.
type savepoint struct {
	session *Session
	name    string
}

// Savepoint opens a transaction savepoint.
func (s *Session) Savepoint(ctx context.Context) (store.Savepoint, error) {
	s.savepoint++
	name := fmt.Sprintf("sp_%d", s.savepoint)
	if _, err := s.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return nil, fmt.Errorf("failed to create savepoint %s: %w", name, err)
	}
	return &savepoint{session: s, name: name}, nil
}

func (sp *savepoint) Release(ctx context.Context) error {
	if _, err := sp.session.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+sp.name); err != nil {
		return fmt.Errorf("failed to release savepoint %s: %w", sp.name, err)
	}
	return nil
}

func (sp *savepoint) Rollback(ctx context.Context) error {
	if _, err := sp.session.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+sp.name); err != nil {
		return fmt.Errorf("failed to roll back to savepoint %s: %w", sp.name, err)
	}
	// Rows inserted since the savepoint are gone; drop the identity map so
	// stale pointers cannot resurface from it.
	sp.session.loaded = make(map[string]*store.Record)
	return nil
}
