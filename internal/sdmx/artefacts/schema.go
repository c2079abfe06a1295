package artefacts

import (
	"fmt"

	"github.com/sdmxkit/sdmxreg/internal/store"
	"github.com/sdmxkit/sdmxreg/internal/store/query"
)

// maintainableKinds are the record kinds carrying the identity triple plus
// the latest/final flags.
var maintainableKinds = []string{
	"organisation.OrganisationScheme",
	"codelist.Codelist",
	"conceptscheme.ConceptScheme",
	"datastructure.DataStructure",
	"registry.AttachmentConstraint",
}

// NewSchema declares every relation and foreign key the artefact kinds rely
// on. Both store backends share it.
func NewSchema() *store.Schema {
	s := store.NewSchema()

	relations := []*store.Relation{
		{Name: "organisation_set", Owner: "organisation.OrganisationScheme", Member: "organisation.Organisation", Field: "schemes", ManyToMany: true},
		{Name: "name_set", Owner: "organisation.OrganisationScheme", Member: "organisation.OrganisationSchemeName", Field: "owner"},
		{Name: "description_set", Owner: "organisation.OrganisationScheme", Member: "organisation.OrganisationSchemeDescription", Field: "owner"},
		{Name: "name_set", Owner: "organisation.Organisation", Member: "organisation.OrganisationName", Field: "owner"},
		{Name: "contact_set", Owner: "organisation.Organisation", Member: "organisation.Contact", Field: "organisation"},
		{Name: "name_set", Owner: "organisation.Contact", Member: "organisation.ContactName", Field: "owner"},

		{Name: "code_set", Owner: "codelist.Codelist", Member: "codelist.Code", Field: "wrapper"},
		{Name: "name_set", Owner: "codelist.Codelist", Member: "codelist.CodelistName", Field: "owner"},
		{Name: "description_set", Owner: "codelist.Codelist", Member: "codelist.CodelistDescription", Field: "owner"},
		{Name: "annotation_set", Owner: "codelist.Codelist", Member: "codelist.CodelistAnnotation", Field: "owner"},
		{Name: "text_set", Owner: "codelist.CodelistAnnotation", Member: "codelist.CodelistAnnotationText", Field: "owner"},
		{Name: "name_set", Owner: "codelist.Code", Member: "codelist.CodeName", Field: "owner"},

		{Name: "concept_set", Owner: "conceptscheme.ConceptScheme", Member: "conceptscheme.Concept", Field: "wrapper"},
		{Name: "name_set", Owner: "conceptscheme.ConceptScheme", Member: "conceptscheme.ConceptSchemeName", Field: "owner"},
		{Name: "description_set", Owner: "conceptscheme.ConceptScheme", Member: "conceptscheme.ConceptSchemeDescription", Field: "owner"},
		{Name: "name_set", Owner: "conceptscheme.Concept", Member: "conceptscheme.ConceptName", Field: "owner"},

		{Name: "dimension_set", Owner: "datastructure.DataStructure", Member: "datastructure.Dimension", Field: "data_structure"},
		{Name: "name_set", Owner: "datastructure.DataStructure", Member: "datastructure.DataStructureName", Field: "owner"},
		{Name: "description_set", Owner: "datastructure.DataStructure", Member: "datastructure.DataStructureDescription", Field: "owner"},

		{Name: "data_structure_set", Owner: "registry.AttachmentConstraint", Member: "datastructure.DataStructure", Field: "attachment_constraints", ManyToMany: true},
		{Name: "name_set", Owner: "registry.AttachmentConstraint", Member: "registry.AttachmentConstraintName", Field: "owner"},
		{Name: "description_set", Owner: "registry.AttachmentConstraint", Member: "registry.AttachmentConstraintDescription", Field: "owner"},
	}
	for _, rel := range relations {
		if err := s.AddRelation(rel); err != nil {
			// Relations are compile-time declarations; a duplicate is a bug.
			panic(err)
		}
	}

	for _, kind := range maintainableKinds {
		s.AddForeignKey(kind, "agency", "organisation.Organisation")
	}
	s.AddForeignKey("codelist.Code", "parent", "codelist.Code")
	s.AddForeignKey("conceptscheme.Concept", "parent", "conceptscheme.Concept")
	s.AddForeignKey("conceptscheme.Concept", "core_representation", "codelist.Codelist")
	s.AddForeignKey("datastructure.Dimension", "concept", "conceptscheme.Concept")
	s.AddForeignKey("datastructure.Dimension", "enumeration", "codelist.Codelist")

	return s
}

// DDL returns the bootstrap statements for the given driver ("postgres" or
// "sqlite3"). Statements are idempotent.
func DDL(driver string) []string {
	id := "BIGSERIAL PRIMARY KEY"
	if driver == "sqlite3" {
		id = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}

	maintainable := func(kind string) string {
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id %s,
	agency_id BIGINT NOT NULL REFERENCES organisation_organisation(id),
	object_id TEXT NOT NULL,
	version TEXT NOT NULL,
	latest BOOLEAN NOT NULL DEFAULT FALSE,
	is_final BOOLEAN NOT NULL DEFAULT FALSE,
	valid_from TIMESTAMP,
	valid_to TIMESTAMP,
	UNIQUE (agency_id, object_id, version)
)`, query.TableForKind(kind), id)
	}

	text := func(kind, ownerKind string) string {
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id %s,
	owner_id BIGINT NOT NULL REFERENCES %s(id),
	language TEXT NOT NULL,
	text TEXT,
	UNIQUE (owner_id, language)
)`, query.TableForKind(kind), id, query.TableForKind(ownerKind))
	}

	join := func(table, sourceTable, targetTable string) string {
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	source_id BIGINT NOT NULL REFERENCES %s(id),
	target_id BIGINT NOT NULL REFERENCES %s(id),
	UNIQUE (source_id, target_id)
)`, table, sourceTable, targetTable)
	}

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS organisation_organisation (
	id %s,
	object_id TEXT NOT NULL UNIQUE
)`, id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS organisation_contact (
	id %s,
	organisation_id BIGINT NOT NULL REFERENCES organisation_organisation(id),
	email TEXT
)`, id),

		maintainable("organisation.OrganisationScheme"),
		maintainable("codelist.Codelist"),
		maintainable("conceptscheme.ConceptScheme"),
		maintainable("datastructure.DataStructure"),
		maintainable("registry.AttachmentConstraint"),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS codelist_code (
	id %s,
	wrapper_id BIGINT NOT NULL REFERENCES codelist_codelist(id),
	parent_id BIGINT REFERENCES codelist_code(id),
	object_id TEXT NOT NULL,
	UNIQUE (wrapper_id, object_id)
)`, id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS conceptscheme_concept (
	id %s,
	wrapper_id BIGINT NOT NULL REFERENCES conceptscheme_conceptscheme(id),
	parent_id BIGINT REFERENCES conceptscheme_concept(id),
	core_representation_id BIGINT REFERENCES codelist_codelist(id),
	object_id TEXT NOT NULL,
	UNIQUE (wrapper_id, object_id)
)`, id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS datastructure_dimension (
	id %s,
	data_structure_id BIGINT NOT NULL REFERENCES datastructure_datastructure(id),
	concept_id BIGINT REFERENCES conceptscheme_concept(id),
	enumeration_id BIGINT REFERENCES codelist_codelist(id),
	object_id TEXT NOT NULL,
	position BIGINT,
	UNIQUE (data_structure_id, object_id)
)`, id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS codelist_codelistannotation (
	id %s,
	owner_id BIGINT NOT NULL REFERENCES codelist_codelist(id),
	object_id TEXT,
	title TEXT,
	annotation_type TEXT
)`, id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS registry_submission (
	id %s,
	object_id TEXT,
	test BOOLEAN NOT NULL DEFAULT FALSE,
	prepared TIMESTAMP,
	sender TEXT
)`, id),

		text("organisation.OrganisationSchemeName", "organisation.OrganisationScheme"),
		text("organisation.OrganisationSchemeDescription", "organisation.OrganisationScheme"),
		text("organisation.OrganisationName", "organisation.Organisation"),
		text("organisation.ContactName", "organisation.Contact"),
		text("codelist.CodelistName", "codelist.Codelist"),
		text("codelist.CodelistDescription", "codelist.Codelist"),
		text("codelist.CodelistAnnotationText", "codelist.CodelistAnnotation"),
		text("codelist.CodeName", "codelist.Code"),
		text("conceptscheme.ConceptSchemeName", "conceptscheme.ConceptScheme"),
		text("conceptscheme.ConceptSchemeDescription", "conceptscheme.ConceptScheme"),
		text("conceptscheme.ConceptName", "conceptscheme.Concept"),
		text("datastructure.DataStructureName", "datastructure.DataStructure"),
		text("datastructure.DataStructureDescription", "datastructure.DataStructure"),
		text("registry.AttachmentConstraintName", "registry.AttachmentConstraint"),
		text("registry.AttachmentConstraintDescription", "registry.AttachmentConstraint"),

		join("organisation_organisation_schemes", "organisation_organisation", "organisation_organisationscheme"),
		join("datastructure_datastructure_attachment_constraints", "datastructure_datastructure", "registry_attachmentconstraint"),
	}
	return statements
}
