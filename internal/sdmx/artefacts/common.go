package artefacts

import (
	"context"

	"github.com/sdmxkit/sdmxreg/internal/sdmx/meta"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/serializer"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/submission"
	"github.com/sdmxkit/sdmxreg/internal/store"
)

func commonClasses() []*meta.Class {
	localisedText := func() []meta.Field {
		return []meta.Field{
			meta.Field{Name: "language", Kind: meta.KindAttribute, Localname: "lang"}.WithNamespace("xml"),
			{Name: "text", Kind: meta.KindText},
		}
	}

	return []*meta.Class{
		{Name: "NameSerializer", NamespaceKey: "common", Fields: localisedText()},
		{Name: "DescriptionSerializer", NamespaceKey: "common", Fields: localisedText()},
		{Name: "TextSerializer", NamespaceKey: "common", Fields: localisedText()},
		{Name: "AnnotationTextSerializer", NamespaceKey: "common", Fields: localisedText()},
		{
			Name:         "AnnotationSerializer",
			NamespaceKey: "common",
			Fields: []meta.Field{
				{Name: "object_id", Kind: meta.KindAttribute, Localname: "id"},
				{Name: "title", Kind: meta.KindElement, Localname: "AnnotationTitle"},
				{Name: "annotation_type", Kind: meta.KindElement, Localname: "AnnotationType"},
				{Name: "text", Kind: meta.KindElement, ClassName: "AnnotationTextSerializer", Collection: true, Translated: true, RelatedName: "text_set"},
			},
		},
		{
			Name:         "AnnotationsSerializer",
			NamespaceKey: "common",
			Fields: []meta.Field{
				{Name: "annotation", Kind: meta.KindElement, ClassName: "AnnotationSerializer", Collection: true, RelatedName: "annotation_set"},
			},
		},
	}
}

// AnnotationHooks persists annotations under the nearest owning record, in a
// kind derived from the owner's (codelist.Codelist + Annotation).
type AnnotationHooks struct {
	serializer.BaseHooks
}

func (h AnnotationHooks) Premake(ctx context.Context, sub *submission.Context, in *serializer.Instance) (*store.Record, error) {
	owner := ownerRecord(in)
	if owner == nil {
		return nil, nil
	}
	rec, _, err := sub.Store.GetOrCreate(ctx, owner.Kind+"Annotation",
		map[string]interface{}{
			"owner":     owner,
			"object_id": in.GetString("object_id"),
			"title":     in.GetString("title"),
		}, nil)
	return rec, err
}

func (h AnnotationHooks) Postmake(ctx context.Context, sub *submission.Context, in *serializer.Instance, rec *store.Record) error {
	if rec == nil {
		return nil
	}
	if t := in.GetString("annotation_type"); t != "" {
		rec.Set("annotation_type", t)
	}
	return h.BaseHooks.Postmake(ctx, sub, in, rec)
}
