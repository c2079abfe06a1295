package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sdmxkit/sdmxreg/internal/store/query"
)

var (
	// ErrNotFound is returned when a Get matches no record.
	ErrNotFound = errors.New("record not found")
	// ErrUnknownRelation is returned for a related-name the schema does not declare.
	ErrUnknownRelation = errors.New("unknown relation")
)

// Store is the persistence collaborator. Implementations: memstore (tests,
// demo mode) and sqlstore (postgres/sqlite).
type Store interface {
	// Create inserts a new record without checking for an existing one.
	// Used for forward-declared placeholder artefacts.
	Create(ctx context.Context, kind string, fields map[string]interface{}) (*Record, error)

	// GetOrCreate finds the record matching keys, creating it from
	// keys+defaults when absent. Reports whether a create happened.
	GetOrCreate(ctx context.Context, kind string, keys, defaults map[string]interface{}) (*Record, bool, error)

	// Get finds the single record matching keys, or ErrNotFound.
	Get(ctx context.Context, kind string, keys map[string]interface{}) (*Record, error)

	// Find returns all records of kind matching the predicate, in
	// insertion order. A nil predicate matches everything.
	Find(ctx context.Context, kind string, pred *query.PredicateGroup) ([]*Record, error)

	// Save persists field mutations on an existing record, or inserts an
	// unsaved one.
	Save(ctx context.Context, rec *Record) error

	// Delete removes the record.
	Delete(ctx context.Context, rec *Record) error

	// Related returns the member records of the named related set.
	Related(ctx context.Context, rec *Record, relatedName string) ([]*Record, error)

	// Savepoint opens a transaction savepoint.
	Savepoint(ctx context.Context) (Savepoint, error)
}

// Savepoint is a transaction savepoint handle.
type Savepoint interface {
	Release(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Forward reads a dotted accessor path off a record, traversing foreign-key
// fields. A nil anywhere along the path yields nil, not an error.
func Forward(rec *Record, path string) interface{} {
	cur := rec
	parts := strings.Split(path, ".")
	for i, part := range parts {
		if cur == nil {
			return nil
		}
		v := cur.Get(part)
		if i == len(parts)-1 {
			return v
		}
		next, ok := v.(*Record)
		if !ok {
			return nil
		}
		cur = next
	}
	return nil
}

// Relation declares one related set: Owner records expose the set under
// Name; its members are Member records whose Field points back at the owner
// (either a *Record foreign key or a []*Record membership list).
type Relation struct {
	Name       string
	Owner      string
	Member     string
	Field      string
	ManyToMany bool
}

// Schema is the relation and foreign-key registry shared by Store
// implementations.
type Schema struct {
	relations map[string]map[string]*Relation // owner kind -> related name -> relation
	fks       map[string]map[string]string    // kind -> field -> target kind
}

// NewSchema creates an empty relation schema.
func NewSchema() *Schema {
	return &Schema{
		relations: make(map[string]map[string]*Relation),
		fks:       make(map[string]map[string]string),
	}
}

// AddRelation registers a related set declaration. The member's back-pointer
// field is registered as a foreign key as a side effect (many-to-many
// memberships excluded: those live in join tables).
func (s *Schema) AddRelation(rel *Relation) error {
	byName, ok := s.relations[rel.Owner]
	if !ok {
		byName = make(map[string]*Relation)
		s.relations[rel.Owner] = byName
	}
	if _, exists := byName[rel.Name]; exists {
		return fmt.Errorf("relation %s on %s is already registered", rel.Name, rel.Owner)
	}
	byName[rel.Name] = rel
	if !rel.ManyToMany {
		s.AddForeignKey(rel.Member, rel.Field, rel.Owner)
	}
	return nil
}

// AddForeignKey registers a foreign-key field on kind pointing at target.
func (s *Schema) AddForeignKey(kind, field, target string) {
	byField, ok := s.fks[kind]
	if !ok {
		byField = make(map[string]string)
		s.fks[kind] = byField
	}
	byField[field] = target
}

// ForeignKeyTarget returns the target kind of a foreign-key field, or "".
func (s *Schema) ForeignKeyTarget(kind, field string) string {
	return s.fks[kind][field]
}

// MembershipRelation finds the many-to-many relation backing a []*Record
// membership field on a member kind, or nil.
func (s *Schema) MembershipRelation(memberKind, field string) *Relation {
	for _, byName := range s.relations {
		for _, rel := range byName {
			if rel.ManyToMany && rel.Member == memberKind && rel.Field == field {
				return rel
			}
		}
	}
	return nil
}

// Relation looks up a related set declaration by owner kind and name.
func (s *Schema) Relation(owner, name string) (*Relation, error) {
	if byName, ok := s.relations[owner]; ok {
		if rel, ok := byName[name]; ok {
			return rel, nil
		}
	}
	return nil, fmt.Errorf("%w: %s on %s", ErrUnknownRelation, name, owner)
}
