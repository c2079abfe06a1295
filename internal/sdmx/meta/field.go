// Package meta holds the declarative field and class metadata driving the
// SDMX serializer engine. Declarations happen in two explicit phases: fields
// and classes are registered with plain structured descriptors, then
// Registry.Finalize resolves defaults, tags and namespace maps. Child and
// parent class lookups stay lazy because artefact families reference each
// other bidirectionally.
package meta

import (
	"github.com/sdmxkit/sdmxreg/internal/sdmx/coder"
	strutil "github.com/sdmxkit/sdmxreg/internal/util/strings"
)

// FieldKind classifies how a field maps onto XML. Every field is exactly one
// of text, attribute or element.
type FieldKind int

const (
	// KindElement maps the field to a child element (the default).
	KindElement FieldKind = iota
	// KindAttribute maps the field to an attribute on the class element.
	KindAttribute
	// KindText maps the field to the element's text content.
	KindText
)

// Field is the declarative descriptor for one serialized field.
type Field struct {
	Name string
	Kind FieldKind

	// Localname is the XML tag or attribute name. Defaults to the
	// camel-cased field name: capitalized-first when the field holds a
	// nested serializer (or a collection of them), lowercase-first
	// otherwise.
	Localname string

	// NamespaceKey selects the namespace the tag lives in. Non-attribute
	// fields default to the owning class's namespace; attributes default
	// to no namespace.
	NamespaceKey string
	nsExplicit   bool

	// Scalar is the coder type for scalar fields.
	Scalar coder.Type

	// ClassName names the nested serializer class for structured fields.
	ClassName  string
	Collection bool

	// Translated marks a collection backed by a multilingual table: record
	// population expands it to one instance per configured language.
	Translated bool

	// RelatedName is the related-set accessor on the persisted record for
	// collections. Defaults to "<name>_set".
	RelatedName string

	// Forward marks a field whose value is read by traversing
	// ForwardAccessor (a dotted attribute path) off the record instead of
	// a direct attribute, e.g. agency_id stored as a foreign key but
	// serialized as a flat string.
	Forward         bool
	ForwardAccessor string

	// Default is the decoded fallback for absent attributes.
	Default interface{}
}

// Nested reports whether the field holds a nested serializer instance or a
// collection of them.
func (f *Field) Nested() bool {
	return f.ClassName != ""
}

// WithNamespace sets an explicit namespace key on the field.
func (f Field) WithNamespace(key string) Field {
	f.NamespaceKey = key
	f.nsExplicit = true
	return f
}

// applyDefaults fills the computed descriptor parts at finalize time.
func (f *Field) applyDefaults(owner *Class) {
	if f.Localname == "" {
		if f.Nested() {
			f.Localname = strutil.ToUpperCamel(f.Name)
		} else {
			f.Localname = strutil.ToLowerCamel(f.Name)
		}
	}
	if !f.nsExplicit && f.NamespaceKey == "" && f.Kind != KindAttribute {
		f.NamespaceKey = owner.NamespaceKey
	}
	if f.RelatedName == "" && f.Collection {
		f.RelatedName = f.Name + "_set"
	}
}

// Tag returns the namespace URI and localname pair identifying the field's
// XML tag.
func (f *Field) Tag() (uri, localname string) {
	return NamespaceURI(f.NamespaceKey), f.Localname
}

// PrefixedTag renders the tag as prefix:localname for element construction.
func (f *Field) PrefixedTag() string {
	if prefix := NamespacePrefix(f.NamespaceKey); prefix != "" {
		return prefix + ":" + f.Localname
	}
	return f.Localname
}
