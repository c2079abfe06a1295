// Package memstore provides a map-backed Store used by tests and demo mode.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/sdmxkit/sdmxreg/internal/store"
	"github.com/sdmxkit/sdmxreg/internal/store/query"
)

// Store keeps all records in memory, per kind, in insertion order.
type Store struct {
	mu     sync.Mutex
	schema *store.Schema
	kinds  map[string][]*store.Record
	nextID int64
}

// New creates an empty in-memory store using the given relation schema.
func New(schema *store.Schema) *Store {
	return &Store{
		schema: schema,
		kinds:  make(map[string][]*store.Record),
		nextID: 1,
	}
}

// Create inserts a new record without checking for an existing one.
func (s *Store) Create(ctx context.Context, kind string, fields map[string]interface{}) (*store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(kind, fields), nil
}

func (s *Store) insert(kind string, fields map[string]interface{}) *store.Record {
	rec := store.NewRecord(kind)
	for k, v := range fields {
		rec.Set(k, v)
	}
	rec.ID = s.nextID
	s.nextID++
	s.kinds[kind] = append(s.kinds[kind], rec)
	return rec
}

// GetOrCreate finds the record matching keys, creating it when absent.
func (s *Store) GetOrCreate(ctx context.Context, kind string, keys, defaults map[string]interface{}) (*store.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec := s.lookup(kind, keys); rec != nil {
		return rec, false, nil
	}

	fields := make(map[string]interface{}, len(keys)+len(defaults))
	for k, v := range defaults {
		fields[k] = v
	}
	for k, v := range keys {
		fields[k] = v
	}
	return s.insert(kind, fields), true, nil
}

// Get finds the single record matching keys, or store.ErrNotFound.
func (s *Store) Get(ctx context.Context, kind string, keys map[string]interface{}) (*store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec := s.lookup(kind, keys); rec != nil {
		return rec, nil
	}
	return nil, fmt.Errorf("%w: %s %v", store.ErrNotFound, kind, keys)
}

func (s *Store) lookup(kind string, keys map[string]interface{}) *store.Record {
	for _, rec := range s.kinds[kind] {
		if rec.Deleted {
			continue
		}
		match := true
		for k, v := range keys {
			if !valueEqual(rec.Get(k), v) {
				match = false
				break
			}
		}
		if match {
			return rec
		}
	}
	return nil
}

// Find returns all records of kind matching the predicate, in insertion order.
func (s *Store) Find(ctx context.Context, kind string, pred *query.PredicateGroup) ([]*store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*store.Record
	for _, rec := range s.kinds[kind] {
		if rec.Deleted {
			continue
		}
		ok, err := s.eval(rec, pred)
		if err != nil {
			return nil, err
		}
		if ok {
			result = append(result, rec)
		}
	}
	return result, nil
}

// Save persists an unsaved record; mutations on stored records are already
// visible since records are shared pointers.
func (s *Store) Save(ctx context.Context, rec *store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == 0 {
		rec.ID = s.nextID
		s.nextID++
		s.kinds[rec.Kind] = append(s.kinds[rec.Kind], rec)
	}
	return nil
}

// Delete removes the record.
func (s *Store) Delete(ctx context.Context, rec *store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Deleted = true
	return nil
}

// Related returns the member records of the named related set in insertion order.
func (s *Store) Related(ctx context.Context, rec *store.Record, relatedName string) ([]*store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rel, err := s.schema.Relation(rec.Kind, relatedName)
	if err != nil {
		return nil, err
	}

	var result []*store.Record
	for _, member := range s.kinds[rel.Member] {
		if member.Deleted {
			continue
		}
		if pointsAt(member, rel.Field, rec) {
			result = append(result, member)
		}
	}
	return result, nil
}

func pointsAt(member *store.Record, field string, owner *store.Record) bool {
	switch v := member.Get(field).(type) {
	case *store.Record:
		return v == owner
	case []*store.Record:
		for _, r := range v {
			if r == owner {
				return true
			}
		}
	}
	return false
}

func (s *Store) eval(rec *store.Record, pg *query.PredicateGroup) (bool, error) {
	if pg.Empty() {
		return true, nil
	}

	combine := func(results []bool) bool {
		if pg.Or {
			for _, r := range results {
				if r {
					return true
				}
			}
			return false
		}
		for _, r := range results {
			if !r {
				return false
			}
		}
		return true
	}

	var results []bool
	for _, cond := range pg.Conditions {
		ok, err := evalCondition(rec, cond)
		if err != nil {
			return false, err
		}
		results = append(results, ok)
	}
	for _, relPred := range pg.Relations {
		ok, err := s.evalRelation(rec, relPred.Steps, relPred.Pred)
		if err != nil {
			return false, err
		}
		results = append(results, ok)
	}
	for _, group := range pg.Groups {
		ok, err := s.eval(rec, group)
		if err != nil {
			return false, err
		}
		results = append(results, ok)
	}
	return combine(results), nil
}

func evalCondition(rec *store.Record, cond *query.Condition) (bool, error) {
	var actual interface{}
	if cond.Field == "id" {
		actual = rec.ID
	} else {
		actual = rec.Get(cond.Field)
	}

	switch cond.Operator {
	case query.OpEqual:
		return valueEqual(actual, cond.Value), nil
	case query.OpNotEqual:
		return !valueEqual(actual, cond.Value), nil
	case query.OpIn:
		values, ok := cond.Value.([]interface{})
		if !ok {
			return false, fmt.Errorf("IN operator requires []interface{}, got %T", cond.Value)
		}
		for _, v := range values {
			if valueEqual(actual, v) {
				return true, nil
			}
		}
		return false, nil
	case query.OpIsNull:
		return actual == nil, nil
	case query.OpIsNotNull:
		return actual != nil, nil
	default:
		return false, fmt.Errorf("unsupported operator: %d", cond.Operator)
	}
}

// evalRelation walks one relation hop and recurses into the rest of the path.
func (s *Store) evalRelation(rec *store.Record, steps []query.Step, pred *query.PredicateGroup) (bool, error) {
	if len(steps) == 0 {
		return s.eval(rec, pred)
	}
	step := steps[0]

	var nexts []*store.Record
	if step.Reverse {
		for _, cand := range s.kinds[step.Kind] {
			if cand.Deleted {
				continue
			}
			if pointsAt(cand, step.Field, rec) {
				nexts = append(nexts, cand)
			}
		}
	} else {
		switch v := rec.Get(step.Field).(type) {
		case *store.Record:
			nexts = append(nexts, v)
		case []*store.Record:
			nexts = v
		}
	}

	for _, next := range nexts {
		ok, err := s.evalRelation(next, steps[1:], pred)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func valueEqual(a, b interface{}) bool {
	if ra, ok := a.(*store.Record); ok {
		rb, ok := b.(*store.Record)
		return ok && ra == rb
	}
	// Normalize integer widths so sql-ish callers can match int against int64.
	if ia, ok := asInt64(a); ok {
		if ib, ok := asInt64(b); ok {
			return ia == ib
		}
	}
	return a == b
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}
