package serializer

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/sdmxkit/sdmxreg/internal/sdmx/coder"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/meta"
)

// FromElement populates an instance from a parsed XML element. The
// element's local tag must match the class's expected tag.
func (e *Engine) FromElement(class *meta.Class, el *etree.Element) (*Instance, error) {
	if el.Tag != class.Tag {
		return nil, fmt.Errorf("%w: got <%s>, %s expects <%s>", ErrTagMismatch, el.Tag, class.Name, class.Tag)
	}
	return e.fromElement(class, el)
}

func (e *Engine) fromElement(class *meta.Class, el *etree.Element) (*Instance, error) {
	in := e.New(class)
	in.sourceElem = el

	for i := range class.Fields {
		f := &class.Fields[i]
		if err := in.populateFromElement(f, el); err != nil {
			return nil, err
		}
	}
	return in, nil
}

func (in *Instance) populateFromElement(f *meta.Field, el *etree.Element) error {
	switch {
	case f.Kind == meta.KindText:
		v, err := coder.Decode(el.Text(), f.Scalar)
		if err != nil {
			return fmt.Errorf("field %s on %s: %w", f.Name, in.Class.Name, err)
		}
		if v != nil {
			in.Set(f.Name, v)
		}
		return nil

	case f.Kind == meta.KindAttribute:
		text := attrValue(el, f.Localname)
		v, err := coder.Decode(text, f.Scalar)
		if err != nil {
			return fmt.Errorf("field %s on %s: %w", f.Name, in.Class.Name, err)
		}
		if v == nil {
			v = f.Default
		}
		if v != nil {
			in.Set(f.Name, v)
		}
		return nil

	case f.Kind == meta.KindElement && f.Nested() && f.Collection:
		childClass, err := in.childClass(f)
		if err != nil {
			return err
		}
		// Materialize immediately: iterfind-style child sequences are
		// one-shot, and the pipeline reads collections more than once.
		var instances []*Instance
		for _, child := range el.ChildElements() {
			if child.Tag != childClass.Tag {
				continue
			}
			childIn, err := in.Engine.fromElement(childClass, child)
			if err != nil {
				return err
			}
			instances = append(instances, childIn)
		}
		if instances != nil {
			in.Set(f.Name, instances)
		}
		return nil

	case f.Kind == meta.KindElement && f.Nested():
		childClass, err := in.childClass(f)
		if err != nil {
			return err
		}
		for _, child := range el.ChildElements() {
			if child.Tag == f.Localname {
				childIn, err := in.Engine.fromElement(childClass, child)
				if err != nil {
					return err
				}
				in.Set(f.Name, childIn)
				return nil
			}
		}
		// Absent child: field stays unset, not an error.
		return nil

	case f.Kind == meta.KindElement:
		for _, child := range el.ChildElements() {
			if child.Tag == f.Localname {
				v, err := coder.Decode(child.Text(), f.Scalar)
				if err != nil {
					return fmt.Errorf("field %s on %s: %w", f.Name, in.Class.Name, err)
				}
				if v != nil {
					in.Set(f.Name, v)
				}
				return nil
			}
		}
		return nil

	default:
		// Reaching here means the declaration table is broken, not the input.
		return fmt.Errorf("%w: field %s on %s has unserializable kind", meta.ErrFieldConfig, f.Name, in.Class.Name)
	}
}

// attrValue finds an attribute by local name, ignoring any prefix.
func attrValue(el *etree.Element, localname string) string {
	for _, attr := range el.Attr {
		if attr.Key == localname {
			return attr.Value
		}
	}
	return ""
}
