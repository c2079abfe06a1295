package memstore

import (
	"context"

	"github.com/sdmxkit/sdmxreg/internal/store"
)

// savepoint snapshots per-kind slice lengths and per-record field maps so a
// rollback can both drop newly inserted records and undo field mutations.
type savepoint struct {
	store   *Store
	lengths map[string]int
	fields  map[*store.Record]map[string]interface{}
	deleted map[*store.Record]bool
	nextID  int64
}

// Savepoint opens a transaction savepoint.
func (s *Store) Savepoint(ctx context.Context) (store.Savepoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sp := &savepoint{
		store:   s,
		lengths: make(map[string]int, len(s.kinds)),
		fields:  make(map[*store.Record]map[string]interface{}),
		deleted: make(map[*store.Record]bool),
		nextID:  s.nextID,
	}
	for kind, recs := range s.kinds {
		sp.lengths[kind] = len(recs)
		for _, rec := range recs {
			copied := make(map[string]interface{}, len(rec.Fields))
			for k, v := range rec.Fields {
				copied[k] = v
			}
			sp.fields[rec] = copied
			sp.deleted[rec] = rec.Deleted
		}
	}
	return sp, nil
}

func (sp *savepoint) Release(ctx context.Context) error {
	return nil
}

func (sp *savepoint) Rollback(ctx context.Context) error {
	sp.store.mu.Lock()
	defer sp.store.mu.Unlock()

	for kind, recs := range sp.store.kinds {
		if n, ok := sp.lengths[kind]; ok {
			sp.store.kinds[kind] = recs[:n]
		} else {
			delete(sp.store.kinds, kind)
		}
		for _, rec := range sp.store.kinds[kind] {
			if saved, ok := sp.fields[rec]; ok {
				rec.Fields = saved
				rec.Deleted = sp.deleted[rec]
			}
		}
	}
	sp.store.nextID = sp.nextID
	return nil
}
