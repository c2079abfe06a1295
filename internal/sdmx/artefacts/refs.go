package artefacts

import (
	"errors"

	"github.com/sdmxkit/sdmxreg/internal/sdmx/meta"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/serializer"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/urn"
	"github.com/sdmxkit/sdmxreg/internal/store"
)

// Reference holders carry a structured <Ref> child and/or a <URN> element.
// The Ref classes double as both directions: parsed attributes feed refFrom,
// and when populated from a referenced record the forward accessors read the
// identity triple straight off it.

func refClasses() []*meta.Class {
	return []*meta.Class{
		{
			Name: "CodelistRefSerializer",
			Tag:  "Ref",
			Fields: []meta.Field{
				{Name: "agency_id", Kind: meta.KindAttribute, Localname: "agencyID", Forward: true, ForwardAccessor: "agency.object_id"},
				{Name: "object_id", Kind: meta.KindAttribute, Localname: "id"},
				{Name: "version", Kind: meta.KindAttribute},
				{Name: "class", Kind: meta.KindAttribute, Default: "Codelist"},
				{Name: "package", Kind: meta.KindAttribute, Default: "codelist"},
			},
		},
		{
			Name: "ConceptRefSerializer",
			Tag:  "Ref",
			Fields: []meta.Field{
				{Name: "agency_id", Kind: meta.KindAttribute, Localname: "agencyID", Forward: true, ForwardAccessor: "wrapper.agency.object_id"},
				{Name: "maintainable_parent_id", Kind: meta.KindAttribute, Localname: "maintainableParentID", Forward: true, ForwardAccessor: "wrapper.object_id"},
				{Name: "maintainable_parent_version", Kind: meta.KindAttribute, Localname: "maintainableParentVersion", Forward: true, ForwardAccessor: "wrapper.version"},
				{Name: "object_id", Kind: meta.KindAttribute, Localname: "id"},
				{Name: "class", Kind: meta.KindAttribute, Default: "Concept"},
				{Name: "package", Kind: meta.KindAttribute, Default: "conceptscheme"},
			},
		},
		{
			Name: "DataStructureRefSerializer",
			Tag:  "Ref",
			Fields: []meta.Field{
				{Name: "agency_id", Kind: meta.KindAttribute, Localname: "agencyID", Forward: true, ForwardAccessor: "agency.object_id"},
				{Name: "object_id", Kind: meta.KindAttribute, Localname: "id"},
				{Name: "version", Kind: meta.KindAttribute},
				{Name: "class", Kind: meta.KindAttribute, Default: "DataStructure"},
				{Name: "package", Kind: meta.KindAttribute, Default: "datastructure"},
			},
		},
		{
			// Local reference to a sibling item, id only.
			Name: "ItemRefSerializer",
			Tag:  "Ref",
			Fields: []meta.Field{
				{Name: "object_id", Kind: meta.KindAttribute, Localname: "id"},
			},
		},
		{
			Name:         "EnumerationSerializer",
			NamespaceKey: "structure",
			Fields: []meta.Field{
				refField("CodelistRefSerializer"),
				urnField(),
			},
		},
		{
			Name:         "CoreRepresentationSerializer",
			NamespaceKey: "structure",
			Fields: []meta.Field{
				{Name: "enumeration", Kind: meta.KindElement, ClassName: "EnumerationSerializer"},
			},
		},
		{
			Name:         "LocalRepresentationSerializer",
			NamespaceKey: "structure",
			Fields: []meta.Field{
				{Name: "enumeration", Kind: meta.KindElement, ClassName: "EnumerationSerializer"},
			},
		},
		{
			Name:         "ConceptIdentitySerializer",
			NamespaceKey: "structure",
			Fields: []meta.Field{
				refField("ConceptRefSerializer"),
				urnField(),
			},
		},
		{
			Name:         "ParentSerializer",
			NamespaceKey: "structure",
			Fields: []meta.Field{
				refField("ItemRefSerializer"),
				urnField(),
			},
		},
		{
			Name:         "AttachedDataStructureSerializer",
			NamespaceKey: "structure",
			Tag:          "DataStructure",
			Fields: []meta.Field{
				refField("DataStructureRefSerializer"),
				urnField(),
			},
		},
		{
			Name:         "ConstraintAttachmentSerializer",
			NamespaceKey: "structure",
			Fields: []meta.Field{
				{Name: "data_structure", Kind: meta.KindElement, ClassName: "AttachedDataStructureSerializer", Collection: true, RelatedName: "data_structure_set"},
			},
		},
	}
}

// The Ref child element is unqualified in SDMX-ML.
func refField(className string) meta.Field {
	return meta.Field{Name: "ref", Kind: meta.KindElement, Localname: "Ref", ClassName: className}.WithNamespace("")
}

func urnField() meta.Field {
	return meta.Field{Name: "urn", Kind: meta.KindElement, Localname: "URN"}.WithNamespace("")
}

// refFrom builds the structured reference held by a reference-holder
// instance. A URN wins over the structured Ref; a holder carrying neither
// yields nil without error.
func refFrom(in *serializer.Instance) (*urn.Ref, error) {
	urnText := in.GetString("urn")
	var structured *urn.Ref
	if ref := in.Child("ref"); ref != nil {
		structured = &urn.Ref{
			AgencyID:                  ref.GetString("agency_id"),
			ObjectID:                  ref.GetString("object_id"),
			Version:                   ref.GetString("version"),
			Class:                     ref.GetString("class"),
			Package:                   ref.GetString("package"),
			MaintainableParentID:      ref.GetString("maintainable_parent_id"),
			MaintainableParentVersion: ref.GetString("maintainable_parent_version"),
			ContainerID:               ref.GetString("container_id"),
		}
	}
	if urnText == "" && structured == nil {
		return nil, nil
	}
	return urn.Merge(urnText, structured)
}

// isRefError reports whether resolution failed for data reasons rather than
// infrastructure ones; data failures become submission messages.
func isRefError(err error) bool {
	return errors.Is(err, urn.ErrAgencyNotRegistered) ||
		errors.Is(err, urn.ErrTargetNotFound) ||
		errors.Is(err, urn.ErrMalformed) ||
		errors.Is(err, store.ErrNotFound)
}
