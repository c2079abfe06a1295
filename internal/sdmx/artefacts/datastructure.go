package artefacts

import (
	"context"
	"fmt"

	"github.com/sdmxkit/sdmxreg/internal/sdmx/coder"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/meta"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/serializer"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/submission"
	"github.com/sdmxkit/sdmxreg/internal/store"
)

func dataStructureClasses() []*meta.Class {
	dsFields := maintainableFields()
	dsFields = append(dsFields, translatedTexts()...)
	dsFields = append(dsFields,
		meta.Field{Name: "data_structure_components", Kind: meta.KindElement, ClassName: "DataStructureComponentsSerializer"})

	return []*meta.Class{
		{
			Name:         "DimensionSerializer",
			NamespaceKey: "structure",
			Model:        "datastructure.Dimension",
			Fields: []meta.Field{
				{Name: "object_id", Kind: meta.KindAttribute, Localname: "id"},
				{Name: "position", Kind: meta.KindAttribute, Scalar: coder.TypeInt},
				{Name: "concept_identity", Kind: meta.KindElement, ClassName: "ConceptIdentitySerializer", Forward: true, ForwardAccessor: "concept"},
				{Name: "local_representation", Kind: meta.KindElement, ClassName: "LocalRepresentationSerializer", Forward: true, ForwardAccessor: "enumeration"},
			},
		},
		{
			Name:         "DimensionListSerializer",
			NamespaceKey: "structure",
			Fields: []meta.Field{
				{Name: "object_id", Kind: meta.KindAttribute, Localname: "id", Default: "DimensionDescriptor"},
				{Name: "dimension", Kind: meta.KindElement, ClassName: "DimensionSerializer", Collection: true, RelatedName: "dimension_set"},
			},
		},
		{
			Name:         "DataStructureComponentsSerializer",
			NamespaceKey: "structure",
			Fields: []meta.Field{
				{Name: "dimension_list", Kind: meta.KindElement, ClassName: "DimensionListSerializer"},
			},
		},
		{
			Name:              "DataStructureSerializer",
			NamespaceKey:      "structure",
			Model:             "datastructure.DataStructure",
			Maintainable:      true,
			Resources:         []string{"datastructure"},
			SubmissionPackage: "datastructure",
			SubmissionClass:   "DataStructure",
			Parents:           []string{"ConceptSchemeSerializer", "CodelistSerializer"},
			Fields:            dsFields,
		},
	}
}

// DimensionHooks extends the item pipeline with concept-identity and
// enumeration resolution plus position assignment.
type DimensionHooks struct {
	ItemHooks
}

func (h DimensionHooks) Premake(ctx context.Context, sub *submission.Context, in *serializer.Instance) (*store.Record, error) {
	rec, err := h.ItemHooks.Premake(ctx, sub, in)
	if err != nil || rec == nil {
		return rec, err
	}
	if rec.Get("position") == nil {
		pos := in.Get("position")
		if pos == nil {
			// Position follows declaration order within the dimension list.
			siblings, err := sub.Store.Related(ctx, rec.Ref(h.OwnerField), h.RelatedName)
			if err != nil {
				return nil, err
			}
			pos = len(siblings)
		}
		rec.Set("position", pos)
	}
	return rec, nil
}

func (h DimensionHooks) Postvalidate(ctx context.Context, sub *submission.Context, in *serializer.Instance, rec *store.Record) error {
	res := resultFor(sub, in)
	lang := in.Engine.Config.DefaultLanguage

	ci := in.Child("concept_identity")
	if ci == nil {
		res.Escalate(submission.Failure, "missing-concept-identity", lang,
			fmt.Sprintf("dimension %s has no concept identity", in.GetString("object_id")))
		in.Stop()
		return nil
	}
	ref, err := refFrom(ci)
	if err != nil || ref == nil {
		res.Escalate(submission.Failure, "malformed-reference", lang,
			fmt.Sprintf("concept identity of dimension %s is malformed", in.GetString("object_id")))
		in.Stop()
		return nil
	}
	concept, err := sub.Resolver.Item(ctx, ref, "conceptscheme.ConceptScheme", "conceptscheme.Concept", "concept_set")
	if err != nil {
		if isRefError(err) {
			res.Escalate(submission.Failure, "unresolved-reference", lang, err.Error())
			in.Stop()
			return nil
		}
		return err
	}
	rec.Set("concept", concept)

	lr := in.Child("local_representation")
	if lr == nil {
		return nil
	}
	enum := lr.Child("enumeration")
	if enum == nil {
		return nil
	}
	enumRef, err := refFrom(enum)
	if err != nil {
		res.Escalate(submission.Warning, "malformed-reference", lang, err.Error())
		return nil
	}
	if enumRef == nil {
		return nil
	}
	codelist, err := sub.Resolver.Maintainable(ctx, enumRef, "codelist.Codelist", false)
	if err != nil {
		if isRefError(err) {
			res.Escalate(submission.Warning, "unresolved-reference", lang, err.Error())
			return nil
		}
		return err
	}
	rec.Set("enumeration", codelist)
	return nil
}
