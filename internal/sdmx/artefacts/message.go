package artefacts

import (
	"context"

	"github.com/sdmxkit/sdmxreg/internal/sdmx/coder"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/meta"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/serializer"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/submission"
	"github.com/sdmxkit/sdmxreg/internal/store"
)

// SubmissionKind is the record kind one inbound submission is logged under.
const SubmissionKind = "registry.Submission"

func messageClasses() []*meta.Class {
	return []*meta.Class{
		{
			Name:         "PartySerializer",
			NamespaceKey: "message",
			Fields: []meta.Field{
				{Name: "object_id", Kind: meta.KindAttribute, Localname: "id"},
			},
		},
		{
			Name:         "HeaderSerializer",
			NamespaceKey: "message",
			Fields: []meta.Field{
				{Name: "object_id", Kind: meta.KindElement, Localname: "ID"},
				{Name: "test", Kind: meta.KindElement, Localname: "Test", Scalar: coder.TypeBool},
				{Name: "prepared", Kind: meta.KindElement, Localname: "Prepared", Scalar: coder.TypeDateTime},
				{Name: "sender", Kind: meta.KindElement, ClassName: "PartySerializer", Localname: "Sender"},
				{Name: "receiver", Kind: meta.KindElement, ClassName: "PartySerializer", Localname: "Receiver"},
			},
		},
		{
			Name:         "OrganisationSchemesSerializer",
			NamespaceKey: "structure",
			Fields: []meta.Field{
				{Name: "agency_scheme", Kind: meta.KindElement, ClassName: "AgencySchemeSerializer", Collection: true},
			},
		},
		{
			Name:         "CodelistsSerializer",
			NamespaceKey: "structure",
			Fields: []meta.Field{
				{Name: "codelist", Kind: meta.KindElement, ClassName: "CodelistSerializer", Collection: true},
			},
		},
		{
			Name:         "ConceptsSerializer",
			NamespaceKey: "structure",
			Fields: []meta.Field{
				{Name: "concept_scheme", Kind: meta.KindElement, ClassName: "ConceptSchemeSerializer", Collection: true},
			},
		},
		{
			Name:         "DataStructuresSerializer",
			NamespaceKey: "structure",
			Fields: []meta.Field{
				{Name: "data_structure", Kind: meta.KindElement, ClassName: "DataStructureSerializer", Collection: true},
			},
		},
		{
			Name:         "ConstraintsSerializer",
			NamespaceKey: "structure",
			Fields: []meta.Field{
				{Name: "attachment_constraint", Kind: meta.KindElement, ClassName: "AttachmentConstraintSerializer", Collection: true},
			},
		},
		{
			Name:         "StructuresSerializer",
			NamespaceKey: "message",
			Fields: []meta.Field{
				{Name: "organisation_schemes", Kind: meta.KindElement, ClassName: "OrganisationSchemesSerializer"},
				{Name: "codelists", Kind: meta.KindElement, ClassName: "CodelistsSerializer"},
				{Name: "concepts", Kind: meta.KindElement, ClassName: "ConceptsSerializer"},
				{Name: "data_structures", Kind: meta.KindElement, ClassName: "DataStructuresSerializer"},
				{Name: "constraints", Kind: meta.KindElement, ClassName: "ConstraintsSerializer"},
			},
		},
		{
			Name:         "SubmitStructureRequestSerializer",
			NamespaceKey: "message",
			Fields: []meta.Field{
				{Name: "action", Kind: meta.KindAttribute, Default: string(submission.ActionAppend)},
				{Name: "structures", Kind: meta.KindElement, ClassName: "StructuresSerializer", Localname: "Structures"},
			},
		},
		{
			Name:         "RegistryInterfaceSerializer",
			NamespaceKey: "message",
			Fields: []meta.Field{
				{Name: "header", Kind: meta.KindElement, ClassName: "HeaderSerializer", Localname: "Header"},
				{Name: "submit_structure_request", Kind: meta.KindElement, ClassName: "SubmitStructureRequestSerializer", Localname: "SubmitStructureRequest"},
			},
		},
		{
			Name:         "StructureMessageSerializer",
			NamespaceKey: "message",
			Tag:          "Structure",
			Fields: []meta.Field{
				{Name: "header", Kind: meta.KindElement, ClassName: "HeaderSerializer", Localname: "Header"},
				{Name: "structures", Kind: meta.KindElement, ClassName: "StructuresSerializer", Localname: "Structures"},
			},
		},
	}
}

// HeaderHooks logs the submission, flags test mode on the context and opens
// the submission savepoint. Test submissions roll it back after the response
// is rendered, leaving no residual data.
type HeaderHooks struct {
	serializer.BaseHooks
}

func (HeaderHooks) Prevalidate(ctx context.Context, sub *submission.Context, in *serializer.Instance) error {
	sub.HeaderResult()
	sub.Test = in.GetBool("test")
	return nil
}

func (HeaderHooks) Premake(ctx context.Context, sub *submission.Context, in *serializer.Instance) (*store.Record, error) {
	fields := map[string]interface{}{
		"object_id": in.GetString("object_id"),
		"test":      in.GetBool("test"),
	}
	if v := in.Get("prepared"); v != nil {
		fields["prepared"] = v
	}
	if sender := in.Child("sender"); sender != nil {
		fields["sender"] = sender.GetString("object_id")
	}
	rec, err := sub.Store.Create(ctx, SubmissionKind, fields)
	if err != nil {
		return nil, err
	}
	// The savepoint opens right after the submission record exists: a test
	// rollback erases every artefact but keeps the submission log entry.
	if err := sub.OpenSavepoint(ctx); err != nil {
		return nil, err
	}
	in.SkipSave = true
	return rec, nil
}

// SubmitStructureRequestHooks applies the requested submission-wide action.
type SubmitStructureRequestHooks struct {
	serializer.BaseHooks
}

func (SubmitStructureRequestHooks) Prevalidate(ctx context.Context, sub *submission.Context, in *serializer.Instance) error {
	switch action := submission.Action(in.GetString("action")); action {
	case submission.ActionAppend, submission.ActionReplace, submission.ActionDelete, submission.ActionInfo:
		sub.Action = action
	default:
		sub.HeaderResult().Escalate(submission.Warning, "unknown-action",
			in.Engine.Config.DefaultLanguage,
			"unknown action "+string(action)+", assuming Append")
	}
	return nil
}
