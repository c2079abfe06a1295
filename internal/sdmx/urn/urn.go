// Package urn implements SDMX artefact references: the structured Ref form,
// the URN string form, interconversion between them, and resolution against
// the persisted store.
package urn

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is returned for URN text that does not match the grammar.
var ErrMalformed = errors.New("malformed urn")

const (
	prefix = "urn:sdmx:infomodel."

	// DefaultVersion applies when a reference omits the version.
	DefaultVersion = "1.0"
)

// Ref is a structured pointer to a maintainable or item artefact.
// Item references identify an item within its maintainable parent.
type Ref struct {
	AgencyID string
	ObjectID string
	Version  string
	Class    string
	Package  string

	// Item-reference fields.
	MaintainableParentID      string
	MaintainableParentVersion string
	ContainerID               string
}

// IsItem reports whether the reference points inside a maintainable parent.
func (r *Ref) IsItem() bool {
	return r.MaintainableParentID != ""
}

// URN formats the reference as its canonical URN string.
func (r *Ref) URN() string {
	if r.IsItem() {
		return fmt.Sprintf("%s%s.%s=%s:%s(%s).%s",
			prefix, r.Package, r.Class, r.AgencyID,
			r.MaintainableParentID, r.MaintainableParentVersion, r.ObjectID)
	}
	return fmt.Sprintf("%s%s.%s=%s:%s(%s)",
		prefix, r.Package, r.Class, r.AgencyID, r.ObjectID, r.Version)
}

// Parse parses a URN string into a Ref. A missing version defaults to "1.0".
// Parse and Ref.URN are inverses for fully-populated references.
func Parse(text string) (*Ref, error) {
	if !strings.HasPrefix(text, prefix) {
		return nil, fmt.Errorf("%w: missing prefix in %q", ErrMalformed, text)
	}
	rest := text[len(prefix):]

	head, target, found := strings.Cut(rest, "=")
	if !found {
		return nil, fmt.Errorf("%w: missing '=' in %q", ErrMalformed, text)
	}
	pkg, class, found := strings.Cut(head, ".")
	if !found || pkg == "" || class == "" {
		return nil, fmt.Errorf("%w: bad package.class in %q", ErrMalformed, text)
	}

	agency, ids, found := strings.Cut(target, ":")
	if !found || agency == "" {
		return nil, fmt.Errorf("%w: missing agency in %q", ErrMalformed, text)
	}

	ref := &Ref{AgencyID: agency, Class: class, Package: pkg}

	open := strings.Index(ids, "(")
	if open < 0 {
		// No version given: plain maintainable id with the default version.
		if ids == "" {
			return nil, fmt.Errorf("%w: missing object id in %q", ErrMalformed, text)
		}
		ref.ObjectID = ids
		ref.Version = DefaultVersion
		return ref, nil
	}
	close := strings.Index(ids, ")")
	if close < open {
		return nil, fmt.Errorf("%w: unbalanced version parens in %q", ErrMalformed, text)
	}

	id := ids[:open]
	version := ids[open+1 : close]
	tail := ids[close+1:]
	if id == "" {
		return nil, fmt.Errorf("%w: missing object id in %q", ErrMalformed, text)
	}
	if version == "" {
		version = DefaultVersion
	}

	if tail == "" {
		ref.ObjectID = id
		ref.Version = version
		return ref, nil
	}

	// Item form: the parenthesized pair identifies the maintainable parent
	// and the tail carries the item id.
	if !strings.HasPrefix(tail, ".") || len(tail) == 1 {
		return nil, fmt.Errorf("%w: bad item suffix in %q", ErrMalformed, text)
	}
	ref.MaintainableParentID = id
	ref.MaintainableParentVersion = version
	ref.ObjectID = tail[1:]
	return ref, nil
}

// Merge applies URN text over a structured reference: when urnText is
// non-empty it wins entirely; otherwise the structured reference is used,
// with the version defaulted.
func Merge(urnText string, structured *Ref) (*Ref, error) {
	if urnText != "" {
		return Parse(urnText)
	}
	if structured == nil {
		return nil, fmt.Errorf("%w: neither urn nor structured ref given", ErrMalformed)
	}
	ref := *structured
	if ref.Version == "" {
		ref.Version = DefaultVersion
	}
	return &ref, nil
}
