package artefacts

import (
	"context"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"

	"github.com/sdmxkit/sdmxreg/internal/sdmx/meta"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/serializer"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/submission"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/urn"
	"github.com/sdmxkit/sdmxreg/internal/store"
)

func responseClasses() []*meta.Class {
	return []*meta.Class{
		{
			Name:         "MaintainableObjectSerializer",
			NamespaceKey: "registry",
			Fields: []meta.Field{
				urnField(),
			},
		},
		{
			Name:         "SubmittedStructureSerializer",
			NamespaceKey: "registry",
			Fields: []meta.Field{
				{Name: "action", Kind: meta.KindAttribute},
				{Name: "maintainable_object", Kind: meta.KindElement, ClassName: "MaintainableObjectSerializer"},
			},
		},
		{
			Name:         "MessageTextSerializer",
			NamespaceKey: "common",
			Fields: []meta.Field{
				{Name: "code", Kind: meta.KindAttribute},
				{Name: "text", Kind: meta.KindElement, ClassName: "TextSerializer", Collection: true},
			},
		},
		{
			Name:         "StatusMessageSerializer",
			NamespaceKey: "registry",
			Fields: []meta.Field{
				{Name: "status", Kind: meta.KindAttribute},
				{Name: "message_text", Kind: meta.KindElement, ClassName: "MessageTextSerializer", Collection: true},
			},
		},
		{
			Name:         "SubmissionResultSerializer",
			NamespaceKey: "registry",
			Fields: []meta.Field{
				{Name: "submitted_structure", Kind: meta.KindElement, ClassName: "SubmittedStructureSerializer"},
				{Name: "status_message", Kind: meta.KindElement, ClassName: "StatusMessageSerializer"},
			},
		},
	}
}

const preparedLayout = "2006-01-02T15:04:05"

func newMessageDocument(tag string) (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("mes:" + tag)
	root.CreateAttr("xmlns:mes", meta.NSMessage)
	root.CreateAttr("xmlns:str", meta.NSStructure)
	root.CreateAttr("xmlns:com", meta.NSCommon)
	return doc, root
}

func appendHeader(root *etree.Element, senderID string, test bool) {
	h := root.CreateElement("mes:Header")
	h.CreateElement("mes:ID").SetText("IREF" + uuid.NewString())
	h.CreateElement("mes:Test").SetText(coderBool(test))
	h.CreateElement("mes:Prepared").SetText(time.Now().UTC().Format(preparedLayout))
	sender := h.CreateElement("mes:Sender")
	sender.CreateAttr("id", senderID)
}

func coderBool(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

// RenderSubmitResponse renders the registry response for one processed
// submission: one SubmissionResult per touched artefact, the synthetic
// header result included.
func RenderSubmitResponse(e *serializer.Engine, sub *submission.Context, senderID string) (*etree.Document, error) {
	doc, root := newMessageDocument("RegistryInterface")
	root.CreateAttr("xmlns:reg", meta.NSRegistry)
	appendHeader(root, senderID, sub.Test)
	resp := root.CreateElement("mes:SubmitStructureResponse")

	resultClass, err := e.Registry.Class("SubmissionResultSerializer")
	if err != nil {
		return nil, err
	}

	for _, r := range sub.Results() {
		in, err := resultInstance(e, resultClass, r, sub.Action)
		if err != nil {
			return nil, err
		}
		el, err := in.ToElement(serializer.RenderContext{Detail: "full"})
		if err != nil {
			return nil, err
		}
		resp.AddChild(el)
	}
	return doc, nil
}

func resultInstance(e *serializer.Engine, class *meta.Class, r *submission.Result, action submission.Action) (*serializer.Instance, error) {
	mo, err := e.NewByName("MaintainableObjectSerializer")
	if err != nil {
		return nil, err
	}
	mo.Set("urn", keyURN(r.Key))

	ss, err := e.NewByName("SubmittedStructureSerializer")
	if err != nil {
		return nil, err
	}
	ss.Set("action", string(action))
	ss.Set("maintainable_object", mo)

	sm, err := e.NewByName("StatusMessageSerializer")
	if err != nil {
		return nil, err
	}
	sm.Set("status", r.Status.String())

	texts := make([]*serializer.Instance, 0, len(r.Messages))
	for _, m := range r.Messages {
		text, err := e.NewByName("TextSerializer")
		if err != nil {
			return nil, err
		}
		text.Set("language", m.Lang)
		text.Set("text", m.Text)

		mt, err := e.NewByName("MessageTextSerializer")
		if err != nil {
			return nil, err
		}
		mt.Set("code", m.Code)
		mt.Set("text", []*serializer.Instance{text})
		texts = append(texts, mt)
	}
	if len(texts) > 0 {
		sm.Set("message_text", texts)
	}

	in := e.New(class)
	in.Set("submitted_structure", ss)
	in.Set("status_message", sm)
	return in, nil
}

func keyURN(key submission.ResultKey) string {
	ref := urn.Ref{
		AgencyID: key.AgencyID,
		ObjectID: key.ObjectID,
		Version:  key.Version,
		Class:    key.Class,
		Package:  key.Package,
	}
	return ref.URN()
}

// StructureGroup is one artefact kind's worth of records for a structures
// document.
type StructureGroup struct {
	ClassName string
	Records   []*store.Record
}

// StructureClassOrder is the canonical wrapper order within a Structures
// element. Documents render their groups in this order no matter how the
// kinds were discovered.
var StructureClassOrder = []string{
	"AgencySchemeSerializer",
	"CodelistSerializer",
	"ConceptSchemeSerializer",
	"DataStructureSerializer",
	"AttachmentConstraintSerializer",
}

// structureWrappers maps each maintainable class to its Structures wrapper.
var structureWrappers = map[string]struct {
	wrapperClass string
	itemField    string
}{
	"AgencySchemeSerializer":         {"OrganisationSchemesSerializer", "agency_scheme"},
	"CodelistSerializer":             {"CodelistsSerializer", "codelist"},
	"ConceptSchemeSerializer":        {"ConceptsSerializer", "concept_scheme"},
	"DataStructureSerializer":        {"DataStructuresSerializer", "data_structure"},
	"AttachmentConstraintSerializer": {"ConstraintsSerializer", "attachment_constraint"},
}

// RenderStructuresDocument renders stored artefacts as an SDMX-ML Structure
// message. Groups render in the order given; unpopulated wrappers are
// omitted.
func RenderStructuresDocument(ctx context.Context, e *serializer.Engine, st store.Store, groups []StructureGroup, rc serializer.RenderContext, senderID string) (*etree.Document, error) {
	doc, root := newMessageDocument("Structure")
	appendHeader(root, senderID, false)
	structures := root.CreateElement("mes:Structures")

	for _, group := range groups {
		if len(group.Records) == 0 {
			continue
		}
		info, ok := structureWrappers[group.ClassName]
		if !ok {
			continue
		}
		itemClass, err := e.Registry.Class(group.ClassName)
		if err != nil {
			return nil, err
		}

		items := make([]*serializer.Instance, 0, len(group.Records))
		for _, rec := range group.Records {
			in, err := e.FromRecord(ctx, st, itemClass, rec, false)
			if err != nil {
				return nil, err
			}
			items = append(items, in)
		}

		wrapper, err := e.NewByName(info.wrapperClass)
		if err != nil {
			return nil, err
		}
		wrapper.Set(info.itemField, items)
		el, err := wrapper.ToElement(rc)
		if err != nil {
			return nil, err
		}
		structures.AddChild(el)
	}
	return doc, nil
}
