package urn

import (
	"context"
	"errors"
	"fmt"

	"github.com/sdmxkit/sdmxreg/internal/store"
)

var (
	// ErrAgencyNotRegistered is returned when a reference names an agency
	// unknown to the store.
	ErrAgencyNotRegistered = errors.New("agency not registered")
	// ErrTargetNotFound is returned when the referenced artefact does not
	// exist and the referencing kind may not forward-declare it.
	ErrTargetNotFound = errors.New("referenced artefact not found")
)

// OrganisationKind is the record kind agencies are stored under.
const OrganisationKind = "organisation.Organisation"

// Resolver resolves references against the persisted store.
type Resolver struct {
	store store.Store
}

// NewResolver creates a resolver over the given store.
func NewResolver(s store.Store) *Resolver {
	return &Resolver{store: s}
}

// Agency resolves an agency id to its organisation record.
func (r *Resolver) Agency(ctx context.Context, agencyID string) (*store.Record, error) {
	rec, err := r.store.Get(ctx, OrganisationKind, map[string]interface{}{"object_id": agencyID})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAgencyNotRegistered, agencyID)
		}
		return nil, err
	}
	return rec, nil
}

// Maintainable resolves a maintainable reference to its record. The agency
// must already be registered. When the target (agency, id, version) triple
// does not exist the lookup fails, unless forwardDeclare is set, in which
// case an empty placeholder record is created without an existence check
// (the named exception for kinds like AttachmentConstraint referencing a
// DataStructure not yet submitted).
func (r *Resolver) Maintainable(ctx context.Context, ref *Ref, kind string, forwardDeclare bool) (*store.Record, error) {
	agency, err := r.Agency(ctx, ref.AgencyID)
	if err != nil {
		return nil, err
	}

	keys := map[string]interface{}{
		"agency":    agency,
		"object_id": ref.ObjectID,
		"version":   ref.Version,
	}
	rec, err := r.store.Get(ctx, kind, keys)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if !forwardDeclare {
		return nil, fmt.Errorf("%w: %s %s:%s(%s)", ErrTargetNotFound, kind, ref.AgencyID, ref.ObjectID, ref.Version)
	}
	return r.store.Create(ctx, kind, keys)
}

// Item resolves an item reference: the maintainable parent is looked up
// first, then the item inside it by object id.
func (r *Resolver) Item(ctx context.Context, ref *Ref, parentKind, itemKind, relatedName string) (*store.Record, error) {
	parentRef := &Ref{
		AgencyID: ref.AgencyID,
		ObjectID: ref.MaintainableParentID,
		Version:  ref.MaintainableParentVersion,
		Class:    ref.Class,
		Package:  ref.Package,
	}
	if parentRef.Version == "" {
		parentRef.Version = DefaultVersion
	}
	parent, err := r.Maintainable(ctx, parentRef, parentKind, false)
	if err != nil {
		return nil, err
	}

	items, err := r.store.Related(ctx, parent, relatedName)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if item.GetString("object_id") == ref.ObjectID {
			return item, nil
		}
	}
	return nil, fmt.Errorf("%w: %s %s in %s(%s)", ErrTargetNotFound, itemKind, ref.ObjectID, ref.MaintainableParentID, parentRef.Version)
}
