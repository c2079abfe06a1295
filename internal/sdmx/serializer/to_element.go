package serializer

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/sdmxkit/sdmxreg/internal/sdmx/coder"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/meta"
)

// RenderContext carries the request parameters that drive stub decisions.
type RenderContext struct {
	// Detail is the RESTful detail selector: full, allstubs or referencestubs.
	Detail string

	// Resource is the RESTful resource the request was addressed to.
	Resource string

	// SelfContained declares the class's namespace map on the element.
	SelfContained bool
}

// stub attributes are limited to the identity triple; SDMX additionally
// requires a synthesized external-reference marker and a resolvable URL.
var stubAttrFields = map[string]bool{
	"object_id": true,
	"agency_id": true,
	"version":   true,
}

// AsStub reports whether the instance renders as a reference stub: either
// every artefact was requested as a stub, or only cross-referenced
// artefacts were and this class is not among the requested resource's own.
func (in *Instance) AsStub(rc RenderContext) bool {
	if !in.Class.Maintainable {
		return false
	}
	switch rc.Detail {
	case "allstubs":
		return true
	case "referencestubs":
		return !in.Class.RendersFullFor(rc.Resource)
	}
	return false
}

// ToElement renders the instance as an XML element.
func (in *Instance) ToElement(rc RenderContext) (*etree.Element, error) {
	if in.AsStub(rc) {
		return in.toElementAsStub(rc)
	}

	el := in.newElement(rc)

	for _, f := range in.Class.AttrFields() {
		if err := in.renderAttr(el, f); err != nil {
			return nil, err
		}
	}
	if f := in.Class.TextField(); f != nil {
		text, err := coder.Encode(in.Get(f.Name), f.Scalar)
		if err != nil {
			return nil, fmt.Errorf("field %s on %s: %w", f.Name, in.Class.Name, err)
		}
		el.SetText(text)
	}
	for _, f := range in.Class.ElemFields() {
		if err := in.renderElem(el, f, rc); err != nil {
			return nil, err
		}
	}
	return el, nil
}

// toElementAsStub renders the minimal reference form: identity attributes,
// the external-reference marker, a structure URL, and the name (SDMX
// requires a human-readable name on every stub).
func (in *Instance) toElementAsStub(rc RenderContext) (*etree.Element, error) {
	el := in.newElement(rc)

	for _, f := range in.Class.AttrFields() {
		if !stubAttrFields[f.Name] {
			continue
		}
		if err := in.renderAttr(el, f); err != nil {
			return nil, err
		}
	}
	el.CreateAttr("isExternalReference", "true")
	el.CreateAttr("structureURL", in.structureURL())

	if f := in.Class.Field("name"); f != nil {
		if err := in.renderElem(el, f, rc); err != nil {
			return nil, err
		}
	}
	return el, nil
}

func (in *Instance) newElement(rc RenderContext) *etree.Element {
	el := etree.NewElement(in.Class.PrefixedTag())
	if rc.SelfContained {
		for _, key := range in.Class.NamespaceKeys() {
			prefix := meta.NamespacePrefix(key)
			if uri := meta.NamespaceURI(key); uri != "" && prefix != "" && prefix != "xml" {
				el.CreateAttr("xmlns:"+prefix, uri)
			}
		}
	}
	return el
}

func (in *Instance) renderAttr(el *etree.Element, f *meta.Field) error {
	v := in.Get(f.Name)
	if v == nil {
		// Constant attributes like a Ref's class/package render from the
		// declared default.
		v = f.Default
	}
	if isFalsy(v) {
		return nil
	}
	text, err := coder.Encode(v, f.Scalar)
	if err != nil {
		return fmt.Errorf("field %s on %s: %w", f.Name, in.Class.Name, err)
	}
	if text == "" {
		return nil
	}
	name := f.Localname
	if prefix := meta.NamespacePrefix(f.NamespaceKey); prefix != "" {
		name = prefix + ":" + f.Localname
	}
	el.CreateAttr(name, text)
	return nil
}

func (in *Instance) renderElem(el *etree.Element, f *meta.Field, rc RenderContext) error {
	v := in.Get(f.Name)
	if isFalsy(v) {
		return nil
	}

	switch value := v.(type) {
	case *Instance:
		child, err := value.ToElement(childContext(rc))
		if err != nil {
			return err
		}
		el.AddChild(child)
	case []*Instance:
		// Repeated sibling elements under the item's own tag; no wrapper.
		for _, item := range value {
			child, err := item.ToElement(childContext(rc))
			if err != nil {
				return err
			}
			el.AddChild(child)
		}
	default:
		text, err := coder.Encode(v, f.Scalar)
		if err != nil {
			return fmt.Errorf("field %s on %s: %w", f.Name, in.Class.Name, err)
		}
		if text == "" {
			return nil
		}
		child := el.CreateElement(f.PrefixedTag())
		child.SetText(text)
	}
	return nil
}

func childContext(rc RenderContext) RenderContext {
	rc.SelfContained = false
	return rc
}

func (in *Instance) structureURL() string {
	resource := ""
	if len(in.Class.Resources) > 0 {
		resource = in.Class.Resources[0]
	}
	parts := []string{
		strings.TrimSuffix(in.Engine.Config.StructureURLBase, "/"),
		resource,
		in.GetString("agency_id"),
		in.GetString("object_id"),
		in.GetString("version"),
	}
	return strings.Join(parts, "/")
}

func isFalsy(v interface{}) bool {
	switch value := v.(type) {
	case nil:
		return true
	case string:
		return value == ""
	case bool:
		return !value
	case *Instance:
		// A sub-view over a row none of whose fields rendered anything is
		// omitted entirely, not rendered as an empty element.
		return value == nil || value.empty()
	case []*Instance:
		return len(value) == 0
	}
	return false
}

func (in *Instance) empty() bool {
	for _, v := range in.values {
		if !isFalsy(v) {
			return false
		}
	}
	return true
}
