package artefacts

import (
	"context"

	"github.com/sdmxkit/sdmxreg/internal/sdmx/meta"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/serializer"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/submission"
	"github.com/sdmxkit/sdmxreg/internal/store"
)

func constraintClasses() []*meta.Class {
	fields := maintainableFields()
	fields = append(fields, translatedTexts()...)
	fields = append(fields,
		meta.Field{Name: "constraint_attachment", Kind: meta.KindElement, ClassName: "ConstraintAttachmentSerializer"})

	return []*meta.Class{
		{
			Name:              "AttachmentConstraintSerializer",
			NamespaceKey:      "structure",
			Model:             "registry.AttachmentConstraint",
			Maintainable:      true,
			Resources:         []string{"attachmentconstraint"},
			SubmissionPackage: "registry",
			SubmissionClass:   "AttachmentConstraint",
			Fields:            fields,
		},
	}
}

// AttachmentConstraintHooks extends the maintainable pipeline with
// attachment resolution. Attachment constraints are the named exception to
// the fail-if-missing reference rule: a referenced data structure that has
// not been submitted yet is forward-declared as an empty placeholder.
type AttachmentConstraintHooks struct {
	MaintainableHooks
}

func (h AttachmentConstraintHooks) Postvalidate(ctx context.Context, sub *submission.Context, in *serializer.Instance, rec *store.Record) error {
	ca := in.Child("constraint_attachment")
	if ca == nil {
		return nil
	}
	res := resultFor(sub, in)
	lang := in.Engine.Config.DefaultLanguage

	for _, holder := range ca.Children("data_structure") {
		ref, err := refFrom(holder)
		if err != nil {
			res.Escalate(submission.Warning, "malformed-reference", lang, err.Error())
			continue
		}
		if ref == nil {
			continue
		}
		target, err := sub.Resolver.Maintainable(ctx, ref, "datastructure.DataStructure", true)
		if err != nil {
			if isRefError(err) {
				res.Escalate(submission.Failure, "agency-not-registered", lang, err.Error())
				continue
			}
			return err
		}
		if err := h.attach(ctx, sub, target, rec); err != nil {
			return err
		}
	}
	return nil
}

func (h AttachmentConstraintHooks) attach(ctx context.Context, sub *submission.Context, ds, constraint *store.Record) error {
	memberships, _ := ds.Get("attachment_constraints").([]*store.Record)
	for _, m := range memberships {
		if m == constraint {
			return nil
		}
	}
	ds.Set("attachment_constraints", append(memberships, constraint))
	return sub.Store.Save(ctx, ds)
}
