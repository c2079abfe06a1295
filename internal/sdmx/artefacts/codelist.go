package artefacts

import (
	"github.com/sdmxkit/sdmxreg/internal/sdmx/meta"
	"github.com/sdmxkit/sdmxreg/internal/store/query"
)

func codelistClasses() []*meta.Class {
	codelistFields := maintainableFields()
	codelistFields = append(codelistFields,
		meta.Field{Name: "annotations", Kind: meta.KindElement, ClassName: "AnnotationsSerializer"})
	codelistFields = append(codelistFields, translatedTexts()...)
	codelistFields = append(codelistFields,
		meta.Field{Name: "code", Kind: meta.KindElement, ClassName: "CodeSerializer", Collection: true, RelatedName: "code_set"})

	return []*meta.Class{
		{
			Name:         "CodeSerializer",
			NamespaceKey: "structure",
			Model:        "codelist.Code",
			Fields: []meta.Field{
				{Name: "object_id", Kind: meta.KindAttribute, Localname: "id"},
				{Name: "name", Kind: meta.KindElement, ClassName: "NameSerializer", Collection: true, Translated: true},
				{Name: "parent", Kind: meta.KindElement, ClassName: "ParentSerializer", Forward: true, ForwardAccessor: "parent"},
			},
		},
		{
			Name:              "CodelistSerializer",
			NamespaceKey:      "structure",
			Model:             "codelist.Codelist",
			Maintainable:      true,
			Resources:         []string{"codelist"},
			SubmissionPackage: "codelist",
			SubmissionClass:   "Codelist",
			Parents:           []string{"ConceptSchemeSerializer"},
			Children: []meta.ChildRelation{
				{
					// Data structures with a dimension coded against one of
					// the matched codelists.
					Child: "DataStructureSerializer",
					Steps: []query.Step{
						{Kind: "datastructure.Dimension", Field: "data_structure", Reverse: true},
						{Kind: "codelist.Codelist", Field: "enumeration"},
					},
				},
			},
			Fields: codelistFields,
		},
	}
}
