package serializer

import (
	"context"
	"fmt"

	"github.com/sdmxkit/sdmxreg/internal/sdmx/meta"
	"github.com/sdmxkit/sdmxreg/internal/store"
)

// FromRecord populates an instance from a persisted record. The record's
// kind must match the class's backing model; lenient construction skips the
// check for polymorphic sub-view dispatch (a nested serializer representing
// a different view of the same row).
func (e *Engine) FromRecord(ctx context.Context, st store.Store, class *meta.Class, rec *store.Record, lenient bool) (*Instance, error) {
	if class.Model != "" && rec.Kind != class.Model && !lenient {
		return nil, fmt.Errorf("%w: got %s, %s expects %s", ErrWrongRecordKind, rec.Kind, class.Name, class.Model)
	}

	in := e.New(class)
	in.Record = rec

	for i := range class.Fields {
		f := &class.Fields[i]
		if err := in.populateFromRecord(ctx, st, f, rec); err != nil {
			return nil, err
		}
	}
	return in, nil
}

func (in *Instance) populateFromRecord(ctx context.Context, st store.Store, f *meta.Field, rec *store.Record) error {
	switch {
	case f.Nested() && f.Collection:
		return in.populateRelatedSet(ctx, st, f, rec)

	case f.Nested():
		childClass, err := in.childClass(f)
		if err != nil {
			return err
		}
		if f.Forward {
			// The nested value lives behind a named accessor path.
			target, ok := store.Forward(rec, f.ForwardAccessor).(*store.Record)
			if !ok {
				return nil // absent relation, field stays unset
			}
			child, err := in.Engine.FromRecord(ctx, st, childClass, target, false)
			if err != nil {
				return err
			}
			in.Set(f.Name, child)
			return nil
		}
		if target := rec.Ref(f.Name); target != nil {
			child, err := in.Engine.FromRecord(ctx, st, childClass, target, false)
			if err != nil {
				return err
			}
			in.Set(f.Name, child)
			return nil
		}
		// No directly-named attribute: the nested serializer is a sub-view
		// of the same row.
		child, err := in.Engine.FromRecord(ctx, st, childClass, rec, true)
		if err != nil {
			return err
		}
		in.Set(f.Name, child)
		return nil

	case f.Forward:
		in.Set(f.Name, store.Forward(rec, f.ForwardAccessor))
		return nil

	default:
		if v := rec.Get(f.Name); v != nil {
			in.Set(f.Name, v)
		}
		return nil
	}
}

// populateRelatedSet materializes a collection field from the record's
// related set. Materialization happens here, once: nothing downstream may
// rely on a restartable lazy sequence.
func (in *Instance) populateRelatedSet(ctx context.Context, st store.Store, f *meta.Field, rec *store.Record) error {
	childClass, err := in.childClass(f)
	if err != nil {
		return err
	}

	members, err := st.Related(ctx, rec, f.RelatedName)
	if err != nil {
		return err
	}

	if f.Translated {
		members = filterByLanguage(members, in.Engine.Config.Languages)
	}

	instances := make([]*Instance, 0, len(members))
	for _, member := range members {
		child, err := in.Engine.FromRecord(ctx, st, childClass, member, false)
		if err != nil {
			return err
		}
		instances = append(instances, child)
	}
	in.Set(f.Name, instances)
	return nil
}

// filterByLanguage expands a multilingual related set to one row per
// configured language, in configuration order.
func filterByLanguage(members []*store.Record, languages []string) []*store.Record {
	var out []*store.Record
	for _, lang := range languages {
		for _, m := range members {
			if m.GetString("language") == lang {
				out = append(out, m)
			}
		}
	}
	return out
}
