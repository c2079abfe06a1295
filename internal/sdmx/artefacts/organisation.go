package artefacts

import (
	"context"
	"fmt"

	"github.com/sdmxkit/sdmxreg/internal/sdmx/meta"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/serializer"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/submission"
	"github.com/sdmxkit/sdmxreg/internal/store"
)

func organisationClasses() []*meta.Class {
	schemeFields := maintainableFields()
	schemeFields = append(schemeFields, translatedTexts()...)
	schemeFields = append(schemeFields,
		meta.Field{Name: "agency", Kind: meta.KindElement, ClassName: "AgencySerializer", Collection: true, RelatedName: "organisation_set"})

	return []*meta.Class{
		{
			Name:         "ContactSerializer",
			NamespaceKey: "structure",
			Model:        "organisation.Contact",
			Fields: []meta.Field{
				{Name: "name", Kind: meta.KindElement, ClassName: "NameSerializer", Collection: true, Translated: true},
				{Name: "email", Kind: meta.KindElement, Localname: "Email"},
			},
		},
		{
			Name:         "AgencySerializer",
			NamespaceKey: "structure",
			Model:        "organisation.Organisation",
			Fields: []meta.Field{
				{Name: "object_id", Kind: meta.KindAttribute, Localname: "id"},
				{Name: "name", Kind: meta.KindElement, ClassName: "NameSerializer", Collection: true, Translated: true},
				{Name: "contact", Kind: meta.KindElement, ClassName: "ContactSerializer", Collection: true, RelatedName: "contact_set"},
			},
		},
		{
			Name:              "AgencySchemeSerializer",
			NamespaceKey:      "structure",
			Model:             "organisation.OrganisationScheme",
			Maintainable:      true,
			Resources:         []string{"agencyscheme", "organisationscheme"},
			SubmissionPackage: "base",
			SubmissionClass:   "AgencyScheme",
			Fields:            schemeFields,
		},
	}
}

// AgencyHooks persists agencies as globally identified organisations that
// can belong to several schemes.
type AgencyHooks struct {
	serializer.BaseHooks
}

func (h AgencyHooks) Premake(ctx context.Context, sub *submission.Context, in *serializer.Instance) (*store.Record, error) {
	rec, _, err := sub.Store.GetOrCreate(ctx, "organisation.Organisation",
		map[string]interface{}{"object_id": in.GetString("object_id")}, nil)
	return rec, err
}

func (h AgencyHooks) Postvalidate(ctx context.Context, sub *submission.Context, in *serializer.Instance, rec *store.Record) error {
	scheme := ownerRecord(in)
	if scheme == nil {
		return fmt.Errorf("agency %s processed without an owning scheme", in.GetString("object_id"))
	}
	memberships, _ := rec.Get("schemes").([]*store.Record)
	for _, m := range memberships {
		if m == scheme {
			return nil
		}
	}
	rec.Set("schemes", append(memberships, scheme))
	return nil
}

// ContactHooks stores agency contacts; a contact without an email address is
// reported but kept.
type ContactHooks struct {
	serializer.BaseHooks
}

func (h ContactHooks) Premake(ctx context.Context, sub *submission.Context, in *serializer.Instance) (*store.Record, error) {
	owner := ownerRecord(in)
	if owner == nil {
		return nil, fmt.Errorf("contact processed without an owning organisation")
	}
	rec, _, err := sub.Store.GetOrCreate(ctx, "organisation.Contact",
		map[string]interface{}{
			"organisation": owner,
			"email":        in.GetString("email"),
		}, nil)
	return rec, err
}

func (h ContactHooks) Validate(ctx context.Context, sub *submission.Context, in *serializer.Instance, rec *store.Record) error {
	if in.GetString("email") == "" {
		resultFor(sub, in).Escalate(submission.Warning, "missing-contact-email",
			in.Engine.Config.DefaultLanguage, "contact has no email address")
	}
	return nil
}
