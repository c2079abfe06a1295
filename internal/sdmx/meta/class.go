package meta

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sdmxkit/sdmxreg/internal/store/query"
)

var (
	// ErrFieldConfig marks a bug in the artefact declarations, not bad
	// input data. It is never folded into a submission result.
	ErrFieldConfig = errors.New("field configuration error")
	// ErrUnknownClass is returned for class names absent from the registry.
	ErrUnknownClass = errors.New("unknown artefact class")
)

// classSuffix is stripped from declared class names when computing XML tags.
const classSuffix = "Serializer"

// ChildRelation declares one child artefact kind in the SDMX containment
// graph. Steps is the relation path from the child's records back to records
// of the declaring (parent) class; breadth expansion turns it into a
// disjunctive filter predicate.
type ChildRelation struct {
	Child string
	Steps []query.Step
}

// Class is the declarative descriptor for one artefact type.
type Class struct {
	Name         string
	NamespaceKey string

	// Model is the backing persisted-record kind, "" for pure wrappers.
	Model string

	Fields []Field

	// Resources lists the RESTful resource names that request a full
	// render of this class; under detail=referencestubs anything pulled in
	// for another resource renders as a stub.
	Resources []string

	// Children and Parents describe the containment graph for
	// reference-breadth expansion. Names resolve lazily via the registry.
	Children []ChildRelation
	Parents  []string

	// Maintainable marks independently versioned, agency-owned artefacts.
	Maintainable bool

	// SubmissionPackage/SubmissionClass key this artefact's submission
	// results (e.g. "codelist"/"Codelist").
	SubmissionPackage string
	SubmissionClass   string

	// Tag is the XML local tag. Defaults at finalize to the class name with
	// the Serializer suffix stripped; several reference classes override it
	// because they all render as <Ref>.
	Tag string

	registry *Registry
	fieldIdx map[string]int
	attrIdx  []int
	elemIdx  []int
	textIdx  int
	nsKeys   []string
}

// Field returns the declared field with the given name, or nil.
func (c *Class) Field(name string) *Field {
	if i, ok := c.fieldIdx[name]; ok {
		return &c.Fields[i]
	}
	return nil
}

// AttrFields returns the attribute fields in declaration order.
func (c *Class) AttrFields() []*Field {
	fields := make([]*Field, len(c.attrIdx))
	for i, idx := range c.attrIdx {
		fields[i] = &c.Fields[idx]
	}
	return fields
}

// ElemFields returns the non-attribute, non-text fields in declaration order.
func (c *Class) ElemFields() []*Field {
	fields := make([]*Field, len(c.elemIdx))
	for i, idx := range c.elemIdx {
		fields[i] = &c.Fields[idx]
	}
	return fields
}

// TextField returns the text field, or nil.
func (c *Class) TextField() *Field {
	if c.textIdx < 0 {
		return nil
	}
	return &c.Fields[c.textIdx]
}

// NamespaceKeys returns the namespace keys a self-contained element of this
// class must declare: the class's own plus every field's.
func (c *Class) NamespaceKeys() []string {
	return c.nsKeys
}

// PrefixedTag renders the class tag as prefix:localname.
func (c *Class) PrefixedTag() string {
	if prefix := NamespacePrefix(c.NamespaceKey); prefix != "" {
		return prefix + ":" + c.Tag
	}
	return c.Tag
}

// RendersFullFor reports whether the given RESTful resource requests a full
// render of this class.
func (c *Class) RendersFullFor(resource string) bool {
	for _, r := range c.Resources {
		if r == resource {
			return true
		}
	}
	return false
}

// ChildClass resolves a declared child class by name. Resolution is lazy:
// families reference each other bidirectionally, so names are only looked up
// on first use.
func (c *Class) ChildClass(name string) (*Class, error) {
	return c.registry.Class(name)
}

// ParentClasses resolves the declared parent classes.
func (c *Class) ParentClasses() ([]*Class, error) {
	parents := make([]*Class, 0, len(c.Parents))
	for _, name := range c.Parents {
		parent, err := c.registry.Class(name)
		if err != nil {
			return nil, err
		}
		parents = append(parents, parent)
	}
	return parents, nil
}

// ChildRelationFor returns the declared relation for a named child, or nil.
func (c *Class) ChildRelationFor(child string) *ChildRelation {
	for i := range c.Children {
		if c.Children[i].Child == child {
			return &c.Children[i]
		}
	}
	return nil
}

// finalize computes tags, field defaults, partitions and the namespace map.
func (c *Class) finalize(r *Registry) error {
	c.registry = r
	if c.Tag == "" {
		c.Tag = strings.TrimSuffix(c.Name, classSuffix)
	}
	c.fieldIdx = make(map[string]int, len(c.Fields))
	c.textIdx = -1

	seenNS := map[string]bool{c.NamespaceKey: true}
	c.nsKeys = []string{c.NamespaceKey}

	for i := range c.Fields {
		f := &c.Fields[i]
		if _, dup := c.fieldIdx[f.Name]; dup {
			return fmt.Errorf("%w: duplicate field %s on %s", ErrFieldConfig, f.Name, c.Name)
		}
		c.fieldIdx[f.Name] = i
		f.applyDefaults(c)

		switch f.Kind {
		case KindText:
			if f.Nested() {
				return fmt.Errorf("%w: text field %s on %s cannot be nested", ErrFieldConfig, f.Name, c.Name)
			}
			if c.textIdx >= 0 {
				return fmt.Errorf("%w: second text field %s on %s", ErrFieldConfig, f.Name, c.Name)
			}
			c.textIdx = i
		case KindAttribute:
			if f.Nested() {
				return fmt.Errorf("%w: attribute field %s on %s cannot be nested", ErrFieldConfig, f.Name, c.Name)
			}
			c.attrIdx = append(c.attrIdx, i)
		case KindElement:
			c.elemIdx = append(c.elemIdx, i)
		default:
			return fmt.Errorf("%w: field %s on %s has no kind", ErrFieldConfig, f.Name, c.Name)
		}

		if f.NamespaceKey != "" && !seenNS[f.NamespaceKey] {
			seenNS[f.NamespaceKey] = true
			c.nsKeys = append(c.nsKeys, f.NamespaceKey)
		}
	}
	return nil
}
