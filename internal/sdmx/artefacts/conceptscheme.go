package artefacts

import (
	"context"

	"github.com/sdmxkit/sdmxreg/internal/sdmx/meta"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/serializer"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/submission"
	"github.com/sdmxkit/sdmxreg/internal/store"
	"github.com/sdmxkit/sdmxreg/internal/store/query"
)

func conceptSchemeClasses() []*meta.Class {
	schemeFields := maintainableFields()
	schemeFields = append(schemeFields, translatedTexts()...)
	schemeFields = append(schemeFields,
		meta.Field{Name: "concept", Kind: meta.KindElement, ClassName: "ConceptSerializer", Collection: true, RelatedName: "concept_set"})

	return []*meta.Class{
		{
			Name:         "ConceptSerializer",
			NamespaceKey: "structure",
			Model:        "conceptscheme.Concept",
			Fields: []meta.Field{
				{Name: "object_id", Kind: meta.KindAttribute, Localname: "id"},
				{Name: "name", Kind: meta.KindElement, ClassName: "NameSerializer", Collection: true, Translated: true},
				{Name: "parent", Kind: meta.KindElement, ClassName: "ParentSerializer", Forward: true, ForwardAccessor: "parent"},
				{Name: "core_representation", Kind: meta.KindElement, ClassName: "CoreRepresentationSerializer", Forward: true, ForwardAccessor: "core_representation"},
			},
		},
		{
			Name:              "ConceptSchemeSerializer",
			NamespaceKey:      "structure",
			Model:             "conceptscheme.ConceptScheme",
			Maintainable:      true,
			Resources:         []string{"conceptscheme"},
			SubmissionPackage: "conceptscheme",
			SubmissionClass:   "ConceptScheme",
			Children: []meta.ChildRelation{
				{
					// Codelists enumerating a concept of the matched schemes.
					Child: "CodelistSerializer",
					Steps: []query.Step{
						{Kind: "conceptscheme.Concept", Field: "core_representation", Reverse: true},
						{Kind: "conceptscheme.ConceptScheme", Field: "wrapper"},
					},
				},
				{
					// Data structures whose dimensions identify a concept of
					// the matched schemes.
					Child: "DataStructureSerializer",
					Steps: []query.Step{
						{Kind: "datastructure.Dimension", Field: "data_structure", Reverse: true},
						{Kind: "conceptscheme.Concept", Field: "concept"},
						{Kind: "conceptscheme.ConceptScheme", Field: "wrapper"},
					},
				},
			},
			Fields: schemeFields,
		},
	}
}

// ConceptHooks extends the item pipeline with core-representation
// resolution: a concept may point at the codelist enumerating its values.
type ConceptHooks struct {
	ItemHooks
}

func (h ConceptHooks) Postvalidate(ctx context.Context, sub *submission.Context, in *serializer.Instance, rec *store.Record) error {
	if err := h.ItemHooks.Postvalidate(ctx, sub, in, rec); err != nil {
		return err
	}

	cr := in.Child("core_representation")
	if cr == nil {
		return nil
	}
	enum := cr.Child("enumeration")
	if enum == nil {
		return nil
	}
	ref, err := refFrom(enum)
	if err != nil {
		resultFor(sub, in).Escalate(submission.Warning, "malformed-reference",
			in.Engine.Config.DefaultLanguage, err.Error())
		return nil
	}
	if ref == nil {
		return nil
	}

	target, err := sub.Resolver.Maintainable(ctx, ref, "codelist.Codelist", false)
	if err != nil {
		if isRefError(err) {
			// The enumeration is an optional reference; an unresolvable one
			// degrades the concept, it does not fail it.
			resultFor(sub, in).Escalate(submission.Warning, "unresolved-reference",
				in.Engine.Config.DefaultLanguage, err.Error())
			return nil
		}
		return err
	}
	rec.Set("core_representation", target)
	return nil
}
