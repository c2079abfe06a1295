// Package artefacts declares the SDMX artefact kinds the registry serves:
// their serializer classes, the pipeline hooks enforcing SDMX versioning and
// submission semantics, and the relation schema backing them in the store.
package artefacts

import (
	"github.com/sdmxkit/sdmxreg/internal/sdmx/coder"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/meta"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/serializer"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/urn"
)

// NewRegistry builds and finalizes the full class registry.
func NewRegistry() (*meta.Registry, error) {
	r := meta.NewRegistry()
	var classes []*meta.Class
	classes = append(classes, commonClasses()...)
	classes = append(classes, refClasses()...)
	classes = append(classes, organisationClasses()...)
	classes = append(classes, codelistClasses()...)
	classes = append(classes, conceptSchemeClasses()...)
	classes = append(classes, dataStructureClasses()...)
	classes = append(classes, constraintClasses()...)
	classes = append(classes, messageClasses()...)
	classes = append(classes, responseClasses()...)

	for _, c := range classes {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	if err := r.Finalize(); err != nil {
		return nil, err
	}
	return r, nil
}

// NewEngine builds a serializer engine with every artefact's hooks attached.
func NewEngine(cfg serializer.Config) (*serializer.Engine, error) {
	r, err := NewRegistry()
	if err != nil {
		return nil, err
	}
	e := serializer.NewEngine(r, cfg)
	registerHooks(e)
	return e, nil
}

func registerHooks(e *serializer.Engine) {
	e.RegisterHooks("NameSerializer", TextHooks{})
	e.RegisterHooks("DescriptionSerializer", TextHooks{})
	e.RegisterHooks("AnnotationTextSerializer", TextHooks{Suffix: "Text"})
	e.RegisterHooks("AnnotationSerializer", AnnotationHooks{})

	e.RegisterHooks("AgencySchemeSerializer", MaintainableHooks{Kind: "organisation.OrganisationScheme"})
	e.RegisterHooks("AgencySerializer", AgencyHooks{})
	e.RegisterHooks("ContactSerializer", ContactHooks{})

	e.RegisterHooks("CodelistSerializer", MaintainableHooks{Kind: "codelist.Codelist"})
	e.RegisterHooks("CodeSerializer", ItemHooks{
		Kind: "codelist.Code", OwnerField: "wrapper", RelatedName: "code_set"})

	e.RegisterHooks("ConceptSchemeSerializer", MaintainableHooks{Kind: "conceptscheme.ConceptScheme"})
	e.RegisterHooks("ConceptSerializer", ConceptHooks{ItemHooks{
		Kind: "conceptscheme.Concept", OwnerField: "wrapper", RelatedName: "concept_set"}})

	e.RegisterHooks("DataStructureSerializer", MaintainableHooks{Kind: "datastructure.DataStructure"})
	e.RegisterHooks("DimensionSerializer", DimensionHooks{ItemHooks{
		Kind: "datastructure.Dimension", OwnerField: "data_structure", RelatedName: "dimension_set"}})

	e.RegisterHooks("AttachmentConstraintSerializer", AttachmentConstraintHooks{
		MaintainableHooks{Kind: "registry.AttachmentConstraint"}})

	e.RegisterHooks("HeaderSerializer", HeaderHooks{})
	e.RegisterHooks("SubmitStructureRequestSerializer", SubmitStructureRequestHooks{})
}

// maintainableFields returns the attribute set shared by every maintainable
// artefact. Declaration order matters: identity attributes render first.
func maintainableFields() []meta.Field {
	return []meta.Field{
		{Name: "object_id", Kind: meta.KindAttribute, Localname: "id"},
		{Name: "agency_id", Kind: meta.KindAttribute, Localname: "agencyID", Forward: true, ForwardAccessor: "agency.object_id"},
		{Name: "version", Kind: meta.KindAttribute, Default: urn.DefaultVersion},
		{Name: "is_final", Kind: meta.KindAttribute, Localname: "isFinal", Scalar: coder.TypeBool},
		{Name: "valid_from", Kind: meta.KindAttribute, Localname: "validFrom", Scalar: coder.TypeDateTime},
		{Name: "valid_to", Kind: meta.KindAttribute, Localname: "validTo", Scalar: coder.TypeDateTime},
	}
}

func translatedTexts() []meta.Field {
	return []meta.Field{
		{Name: "name", Kind: meta.KindElement, ClassName: "NameSerializer", Collection: true, Translated: true},
		{Name: "description", Kind: meta.KindElement, ClassName: "DescriptionSerializer", Collection: true, Translated: true},
	}
}
