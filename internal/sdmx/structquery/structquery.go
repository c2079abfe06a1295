// Package structquery validates RESTful structure-query parameters and
// expands the requested reference breadth into per-kind filter predicates by
// walking the declared containment graph.
package structquery

import (
	"errors"
	"fmt"

	"github.com/sdmxkit/sdmxreg/internal/sdmx/meta"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/urn"
	"github.com/sdmxkit/sdmxreg/internal/store/query"
)

// ErrInvalidParam marks a request parameter rejected before any expansion
// runs. The web layer maps it to a 400.
var ErrInvalidParam = errors.New("invalid query parameter")

// Wildcard matches any agency, id or version.
const Wildcard = "all"

// Detail selector values.
const (
	DetailFull           = "full"
	DetailAllStubs       = "allstubs"
	DetailReferenceStubs = "referencestubs"
)

// References breadth selector values. Any RESTful resource name is also
// accepted and expands only that one related kind.
const (
	RefNone               = "none"
	RefParents            = "parents"
	RefParentsAndSiblings = "parentsandsiblings"
	RefChildren           = "children"
	RefDescendants        = "descendants"
	RefAll                = "all"
)

// Params are the RESTful structure-query parameters.
type Params struct {
	Resource   string
	AgencyID   string
	ResourceID string
	Version    string
	Detail     string
	References string
}

// Normalize fills the parameter defaults: all agencies and ids, the latest
// version, full detail, no references.
func Normalize(p Params) Params {
	if p.AgencyID == "" {
		p.AgencyID = Wildcard
	}
	if p.ResourceID == "" {
		p.ResourceID = Wildcard
	}
	if p.Version == "" {
		p.Version = "latest"
	}
	if p.Detail == "" {
		p.Detail = DetailFull
	}
	if p.References == "" {
		p.References = RefNone
	}
	return p
}

// Validate resolves the requested resource and rejects invalid detail and
// references selectors. Expansion never runs for invalid parameters.
func Validate(reg *meta.Registry, p Params) (*meta.Class, error) {
	root, err := reg.ClassForResource(p.Resource)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown resource %q", ErrInvalidParam, p.Resource)
	}

	switch p.Detail {
	case DetailFull, DetailAllStubs, DetailReferenceStubs:
	default:
		return nil, fmt.Errorf("%w: detail %q", ErrInvalidParam, p.Detail)
	}

	switch p.References {
	case RefNone, RefParents, RefParentsAndSiblings, RefChildren, RefDescendants, RefAll:
	default:
		if _, err := reg.ClassForResource(p.References); err != nil {
			return nil, fmt.Errorf("%w: references %q", ErrInvalidParam, p.References)
		}
	}
	return root, nil
}

// KindQuery pairs one artefact class with the predicate selecting its records.
type KindQuery struct {
	Class *meta.Class
	Pred  *query.PredicateGroup
}

// Expansion is one expanded structure query: the root kind first, then every
// kind the requested breadth pulled in, in discovery order.
type Expansion struct {
	Root   *meta.Class
	Detail string
	Kinds  []KindQuery
}

// Expand validates the parameters and walks the containment graph for the
// requested breadth. Predicates for the same kind reached through several
// paths combine with OR: one satisfied path is enough.
func Expand(reg *meta.Registry, p Params) (*Expansion, error) {
	p = Normalize(p)
	root, err := Validate(reg, p)
	if err != nil {
		return nil, err
	}

	rootPred := rootPredicate(p)
	e := &expander{preds: make(map[string]*query.PredicateGroup)}

	switch p.References {
	case RefNone:
	case RefChildren:
		err = e.children(root, rootPred, false)
	case RefDescendants:
		err = e.children(root, rootPred, true)
	case RefParents:
		err = e.parents(root, rootPred)
	case RefParentsAndSiblings:
		if err = e.parents(root, rootPred); err == nil {
			err = e.children(root, rootPred, false)
		}
	case RefAll:
		if err = e.parents(root, rootPred); err == nil {
			err = e.children(root, rootPred, true)
		}
	default:
		err = e.named(root, rootPred, p.References)
	}
	if err != nil {
		return nil, err
	}

	out := &Expansion{Root: root, Detail: p.Detail}
	out.Kinds = append(out.Kinds, KindQuery{Class: root, Pred: rootPred})
	for _, class := range e.order {
		out.Kinds = append(out.Kinds, KindQuery{Class: class, Pred: e.preds[class.Name]})
	}
	return out, nil
}

// rootPredicate builds the root filter from the identity parameters. The
// agency constraint walks the foreign key so callers need only the agency id,
// not its record.
func rootPredicate(p Params) *query.PredicateGroup {
	pred := query.NewPredicateGroup(false)
	if p.AgencyID != Wildcard {
		pred.AddRelation(&query.RelationPredicate{
			Steps: []query.Step{{Kind: urn.OrganisationKind, Field: "agency"}},
			Pred:  query.NewPredicateGroup(false).Where("object_id", query.OpEqual, p.AgencyID),
		})
	}
	if p.ResourceID != Wildcard {
		pred.Where("object_id", query.OpEqual, p.ResourceID)
	}
	switch p.Version {
	case Wildcard:
	case "latest":
		pred.Where("latest", query.OpEqual, true)
	default:
		pred.Where("version", query.OpEqual, p.Version)
	}
	return pred
}

type expander struct {
	order []*meta.Class
	preds map[string]*query.PredicateGroup
}

// add accumulates one path predicate into the kind's OR group.
func (e *expander) add(class *meta.Class, pathPred *query.PredicateGroup) {
	acc, ok := e.preds[class.Name]
	if !ok {
		acc = query.NewPredicateGroup(true)
		e.preds[class.Name] = acc
		e.order = append(e.order, class)
	}
	acc.AddGroup(pathPred)
}

// children fans out over the declared child kinds. Without recurse it stops
// at depth 1; with it, each child's own children are visited breadth-first,
// every deeper path anchored on the predicate of the path that reached its
// parent. The declared graph is acyclic, so the walk terminates.
func (e *expander) children(from *meta.Class, fromPred *query.PredicateGroup, recurse bool) error {
	type frame struct {
		class *meta.Class
		pred  *query.PredicateGroup
	}
	queue := []frame{{from, fromPred}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, rel := range cur.class.Children {
			child, err := cur.class.ChildClass(rel.Child)
			if err != nil {
				return err
			}
			pathPred := query.NewPredicateGroup(false).AddRelation(&query.RelationPredicate{
				Steps: rel.Steps,
				Pred:  cur.pred,
			})
			e.add(child, pathPred)
			if recurse {
				queue = append(queue, frame{child, pathPred})
			}
		}
	}
	return nil
}

// parents walks the declared parent kinds at depth 1. The relation path is
// declared on the parent in the child-to-parent direction, so it is inverted
// here.
func (e *expander) parents(root *meta.Class, rootPred *query.PredicateGroup) error {
	parents, err := root.ParentClasses()
	if err != nil {
		return err
	}
	for _, parent := range parents {
		rel := parent.ChildRelationFor(root.Name)
		if rel == nil {
			continue
		}
		pathPred := query.NewPredicateGroup(false).AddRelation(&query.RelationPredicate{
			Steps: meta.InvertSteps(root.Model, rel.Steps),
			Pred:  rootPred,
		})
		e.add(parent, pathPred)
	}
	return nil
}

// named computes only the one related kind serving the given resource,
// skipping the rest of the fan-out. A valid but unrelated resource expands to
// nothing beyond the root.
func (e *expander) named(root *meta.Class, rootPred *query.PredicateGroup, resource string) error {
	for _, rel := range root.Children {
		child, err := root.ChildClass(rel.Child)
		if err != nil {
			return err
		}
		if !child.RendersFullFor(resource) {
			continue
		}
		e.add(child, query.NewPredicateGroup(false).AddRelation(&query.RelationPredicate{
			Steps: rel.Steps,
			Pred:  rootPred,
		}))
		return nil
	}

	parents, err := root.ParentClasses()
	if err != nil {
		return err
	}
	for _, parent := range parents {
		if !parent.RendersFullFor(resource) {
			continue
		}
		rel := parent.ChildRelationFor(root.Name)
		if rel == nil {
			continue
		}
		e.add(parent, query.NewPredicateGroup(false).AddRelation(&query.RelationPredicate{
			Steps: meta.InvertSteps(root.Model, rel.Steps),
			Pred:  rootPred,
		}))
		return nil
	}
	return nil
}
