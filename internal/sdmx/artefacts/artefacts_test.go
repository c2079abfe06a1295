package artefacts

import (
	"context"
	"fmt"
	"testing"

	"github.com/beevik/etree"

	"github.com/sdmxkit/sdmxreg/internal/sdmx/meta"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/serializer"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/submission"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/urn"
	"github.com/sdmxkit/sdmxreg/internal/store"
	"github.com/sdmxkit/sdmxreg/internal/store/memstore"
)

type fixture struct {
	engine *serializer.Engine
	store  *memstore.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	engine, err := NewEngine(serializer.Config{
		Languages:        []string{"en"},
		StructureURLBase: "http://registry.example.org/sdmx/structure",
	})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	st := memstore.New(NewSchema())
	_, err = st.Create(context.Background(), urn.OrganisationKind,
		map[string]interface{}{"object_id": "ECB"})
	if err != nil {
		t.Fatalf("seeding agency failed: %v", err)
	}
	return &fixture{engine: engine, store: st}
}

// submit parses and processes one registry interface document end to end,
// closing the submission the way the web handler does.
func (f *fixture) submit(t *testing.T, doc string) *submission.Context {
	t.Helper()
	parsed := etree.NewDocument()
	if err := parsed.ReadFromString(doc); err != nil {
		t.Fatalf("parsing submission failed: %v", err)
	}
	root := parsed.Root()
	class, err := f.engine.Registry.ClassForTag(root.Tag)
	if err != nil {
		t.Fatalf("no class for tag %s: %v", root.Tag, err)
	}
	in, err := f.engine.FromElement(class, root)
	if err != nil {
		t.Fatalf("FromElement failed: %v", err)
	}
	sub := submission.NewContext(f.store, nil)
	if err := in.Process(context.Background(), sub); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if err := sub.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return sub
}

func (f *fixture) findOne(t *testing.T, kind string) *store.Record {
	t.Helper()
	recs, err := f.store.Find(context.Background(), kind, nil)
	if err != nil {
		t.Fatalf("Find %s failed: %v", kind, err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected exactly one %s record, got %d", kind, len(recs))
	}
	return recs[0]
}

func submitDoc(action, test, structures string) string {
	return fmt.Sprintf(`<mes:RegistryInterface xmlns:mes=%q xmlns:str=%q xmlns:com=%q>
  <mes:Header>
    <mes:ID>IREF000001</mes:ID>
    <mes:Test>%s</mes:Test>
    <mes:Prepared>2026-01-10T09:30:00</mes:Prepared>
    <mes:Sender id="ECB"/>
  </mes:Header>
  <mes:SubmitStructureRequest action=%q>
    <mes:Structures>%s</mes:Structures>
  </mes:SubmitStructureRequest>
</mes:RegistryInterface>`, meta.NSMessage, meta.NSStructure, meta.NSCommon, test, action, structures)
}

func codelistXML(version, extraAttrs string) string {
	return fmt.Sprintf(`<str:Codelists>
  <str:Codelist id="CL_FREQ" agencyID="ECB" version=%q%s>
    <com:Name xml:lang="en">Frequency</com:Name>
    <str:Code id="A"><com:Name xml:lang="en">Annual</com:Name></str:Code>
    <str:Code id="M"><com:Name xml:lang="en">Monthly</com:Name></str:Code>
  </str:Codelist>
</str:Codelists>`, version, extraAttrs)
}

func childByTag(el *etree.Element, tag string) *etree.Element {
	for _, child := range el.ChildElements() {
		if child.Tag == tag {
			return child
		}
	}
	return nil
}

func childrenByTag(el *etree.Element, tag string) []*etree.Element {
	var out []*etree.Element
	for _, child := range el.ChildElements() {
		if child.Tag == tag {
			out = append(out, child)
		}
	}
	return out
}

func TestSubmitCodelist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub := f.submit(t, submitDoc("Append", "false", codelistXML("1.0", "")))
	if sub.Failed() {
		t.Fatal("submission failed")
	}

	results := sub.Results()
	if len(results) != 2 {
		t.Fatalf("expected header plus codelist result, got %d results", len(results))
	}
	if results[0].Key != submission.HeaderKey {
		t.Errorf("first result key = %+v, want header key", results[0].Key)
	}
	wantKey := submission.ResultKey{
		Package: "codelist", Class: "Codelist",
		AgencyID: "ECB", ObjectID: "CL_FREQ", Version: "1.0",
	}
	if results[1].Key != wantKey {
		t.Errorf("codelist result key = %+v, want %+v", results[1].Key, wantKey)
	}
	if results[1].Status != submission.Success {
		t.Errorf("codelist result status = %s, want Success", results[1].Status)
	}

	cl := f.findOne(t, "codelist.Codelist")
	if !cl.GetBool("latest") {
		t.Error("submitted codelist should carry the latest flag")
	}
	if agency := cl.Ref("agency"); agency == nil || agency.GetString("object_id") != "ECB" {
		t.Errorf("codelist agency = %v, want ECB", agency)
	}

	codes, err := f.store.Related(ctx, cl, "code_set")
	if err != nil {
		t.Fatalf("Related code_set failed: %v", err)
	}
	if len(codes) != 2 || codes[0].GetString("object_id") != "A" || codes[1].GetString("object_id") != "M" {
		t.Fatalf("expected codes [A M] in order, got %d codes", len(codes))
	}

	names, err := f.store.Related(ctx, cl, "name_set")
	if err != nil {
		t.Fatalf("Related name_set failed: %v", err)
	}
	if len(names) != 1 || names[0].GetString("language") != "en" || names[0].GetString("text") != "Frequency" {
		t.Fatalf("unexpected codelist names: %+v", names)
	}
}

func TestSubmitCodelist_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submit(t, submitDoc("Append", "false", codelistXML("1.0", "")))

	cl := f.findOne(t, "codelist.Codelist")
	class, err := f.engine.Registry.Class("CodelistSerializer")
	if err != nil {
		t.Fatalf("Class failed: %v", err)
	}
	in, err := f.engine.FromRecord(ctx, f.store, class, cl, false)
	if err != nil {
		t.Fatalf("FromRecord failed: %v", err)
	}
	el, err := in.ToElement(serializer.RenderContext{Detail: "full"})
	if err != nil {
		t.Fatalf("ToElement failed: %v", err)
	}

	if el.Tag != "Codelist" {
		t.Fatalf("rendered tag = %s, want Codelist", el.Tag)
	}
	if got := el.SelectAttrValue("agencyID", ""); got != "ECB" {
		t.Errorf("agencyID = %q, want ECB", got)
	}
	name := childByTag(el, "Name")
	if name == nil || name.Text() != "Frequency" {
		t.Error("rendered codelist lost its name")
	}

	// Parsing the render back must preserve the codes and their order.
	reparsed, err := f.engine.FromElement(class, el)
	if err != nil {
		t.Fatalf("reparsing render failed: %v", err)
	}
	var ids []string
	for _, code := range reparsed.Children("code") {
		ids = append(ids, code.GetString("object_id"))
	}
	if len(ids) != 2 || ids[0] != "A" || ids[1] != "M" {
		t.Errorf("round-tripped code ids = %v, want [A M]", ids)
	}
}

func TestSubmit_LatestFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, version := range []string{"1.0", "1.1", "1.2"} {
		f.submit(t, submitDoc("Append", "false", codelistXML(version, "")))

		recs, err := f.store.Find(ctx, "codelist.Codelist", nil)
		if err != nil {
			t.Fatalf("Find failed: %v", err)
		}
		var latest []string
		for _, rec := range recs {
			if rec.GetBool("latest") {
				latest = append(latest, rec.GetString("version"))
			}
		}
		if len(latest) != 1 || latest[0] != version {
			t.Fatalf("after submitting %s the latest versions are %v, want exactly [%s]",
				version, latest, version)
		}
	}
}

func TestSubmit_FinalArtefactImmutable(t *testing.T) {
	f := newFixture(t)

	f.submit(t, submitDoc("Append", "false", codelistXML("1.0", ` isFinal="true"`)))
	cl := f.findOne(t, "codelist.Codelist")
	if !cl.GetBool("is_final") {
		t.Fatal("codelist should have been stored as final")
	}

	replacement := `<str:Codelists>
  <str:Codelist id="CL_FREQ" agencyID="ECB" version="1.0">
    <com:Name xml:lang="en">Changed</com:Name>
  </str:Codelist>
</str:Codelists>`
	sub := f.submit(t, submitDoc("Replace", "false", replacement))

	result := sub.Results()[1]
	if result.Status != submission.Failure {
		t.Fatalf("replacing a final artefact gave status %s, want Failure", result.Status)
	}
	if len(result.Messages) == 0 || result.Messages[0].Code != "final-artefact" {
		t.Errorf("unexpected messages: %+v", result.Messages)
	}

	names, err := f.store.Related(context.Background(), cl, "name_set")
	if err != nil {
		t.Fatalf("Related failed: %v", err)
	}
	if len(names) != 1 || names[0].GetString("text") != "Frequency" {
		t.Error("final codelist name was modified")
	}
}

func TestSubmit_DeleteRetiresLatest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.submit(t, submitDoc("Append", "false", codelistXML("1.0", "")))
	f.submit(t, submitDoc("Append", "false", codelistXML("1.1", "")))

	deletion := `<str:Codelists><str:Codelist id="CL_FREQ" agencyID="ECB" version="1.1"/></str:Codelists>`
	sub := f.submit(t, submitDoc("Delete", "false", deletion))

	result := sub.Results()[1]
	if result.Status != submission.Success {
		t.Fatalf("delete gave status %s, want Success", result.Status)
	}
	if len(result.Messages) == 0 || result.Messages[0].Code != "deleted" {
		t.Errorf("unexpected messages: %+v", result.Messages)
	}

	recs, err := f.store.Find(ctx, "codelist.Codelist", nil)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(recs) != 1 || recs[0].GetString("version") != "1.0" {
		t.Fatalf("expected only version 1.0 to remain, got %d records", len(recs))
	}
	if !recs[0].GetBool("latest") {
		t.Error("the remaining version should inherit the latest flag")
	}
}

func TestSubmit_DeleteMissing(t *testing.T) {
	f := newFixture(t)

	deletion := `<str:Codelists><str:Codelist id="CL_NONE" agencyID="ECB" version="1.0"/></str:Codelists>`
	sub := f.submit(t, submitDoc("Delete", "false", deletion))

	result := sub.Results()[1]
	if result.Status != submission.Failure {
		t.Fatalf("deleting a missing artefact gave status %s, want Failure", result.Status)
	}

	recs, err := f.store.Find(context.Background(), "codelist.Codelist", nil)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("delete of a missing artefact left %d records behind", len(recs))
	}
}

func TestSubmit_UnknownAgency(t *testing.T) {
	f := newFixture(t)

	body := `<str:Codelists>
  <str:Codelist id="CL_FREQ" agencyID="ACME" version="1.0">
    <com:Name xml:lang="en">Frequency</com:Name>
  </str:Codelist>
</str:Codelists>`
	sub := f.submit(t, submitDoc("Append", "false", body))

	// One bad artefact does not fail the submission as a whole.
	if sub.Failed() {
		t.Error("submission should not fail at the header level")
	}
	result := sub.Results()[1]
	if result.Status != submission.Failure {
		t.Fatalf("unknown agency gave status %s, want Failure", result.Status)
	}
	if result.Key.AgencyID != "ACME" {
		t.Errorf("result key agency = %s, want ACME", result.Key.AgencyID)
	}
	if len(result.Messages) == 0 || result.Messages[0].Code != "agency-not-registered" {
		t.Errorf("unexpected messages: %+v", result.Messages)
	}

	recs, err := f.store.Find(context.Background(), "codelist.Codelist", nil)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("no codelist should have been stored, found %d", len(recs))
	}
}

func TestSubmit_TestModeRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub := f.submit(t, submitDoc("Append", "true", codelistXML("1.0", "")))
	if sub.Failed() {
		t.Fatal("test submission failed")
	}
	if sub.Results()[1].Status != submission.Success {
		t.Fatal("test submission should still report per-artefact outcomes")
	}

	recs, err := f.store.Find(ctx, "codelist.Codelist", nil)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("test submission left %d codelists behind", len(recs))
	}

	// The submission log entry itself survives the rollback.
	logged := f.findOne(t, SubmissionKind)
	if !logged.GetBool("test") {
		t.Error("submission log entry should be flagged as a test run")
	}
	if _, err := f.store.Get(ctx, urn.OrganisationKind, map[string]interface{}{"object_id": "ECB"}); err != nil {
		t.Errorf("pre-existing agency lost in rollback: %v", err)
	}
}

func TestSubmit_InvalidLanguageTag(t *testing.T) {
	f := newFixture(t)

	body := `<str:Codelists>
  <str:Codelist id="CL_FREQ" agencyID="ECB" version="1.0">
    <com:Name xml:lang="not-a-lang!">Frequency</com:Name>
    <str:Code id="A"><com:Name xml:lang="en">Annual</com:Name></str:Code>
  </str:Codelist>
</str:Codelists>`
	sub := f.submit(t, submitDoc("Append", "false", body))

	result := sub.Results()[1]
	if result.Status != submission.Warning {
		t.Fatalf("invalid language gave status %s, want Warning", result.Status)
	}
	found := false
	for _, m := range result.Messages {
		if m.Code == "unsupported-language" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an unsupported-language message, got %+v", result.Messages)
	}

	cl := f.findOne(t, "codelist.Codelist")
	names, err := f.store.Related(context.Background(), cl, "name_set")
	if err != nil {
		t.Fatalf("Related failed: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("the rejected name should not be stored, got %d rows", len(names))
	}
}

func TestSubmit_UnknownAction(t *testing.T) {
	f := newFixture(t)

	sub := f.submit(t, submitDoc("Merge", "false", codelistXML("1.0", "")))

	if sub.Action != submission.ActionAppend {
		t.Errorf("unknown action should fall back to Append, got %s", sub.Action)
	}
	header := sub.Results()[0]
	if header.Status != submission.Warning {
		t.Errorf("header status = %s, want Warning", header.Status)
	}
	if sub.Results()[1].Status != submission.Success {
		t.Error("artefact processing should proceed under the fallback action")
	}
}

func TestSubmitDataStructure_ResolvesReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	body := codelistXML("1.0", "") + `
<str:Concepts>
  <str:ConceptScheme id="CS_MAIN" agencyID="ECB" version="1.0">
    <com:Name xml:lang="en">Concepts</com:Name>
    <str:Concept id="FREQ">
      <com:Name xml:lang="en">Frequency</com:Name>
      <str:CoreRepresentation>
        <str:Enumeration><Ref id="CL_FREQ" agencyID="ECB" version="1.0" class="Codelist" package="codelist"/></str:Enumeration>
      </str:CoreRepresentation>
    </str:Concept>
  </str:ConceptScheme>
</str:Concepts>
<str:DataStructures>
  <str:DataStructure id="DSD_EXR" agencyID="ECB" version="1.0">
    <com:Name xml:lang="en">Exchange rates</com:Name>
    <str:DataStructureComponents>
      <str:DimensionList id="DimensionDescriptor">
        <str:Dimension id="FREQ" position="1">
          <str:ConceptIdentity><Ref id="FREQ" maintainableParentID="CS_MAIN" maintainableParentVersion="1.0" agencyID="ECB" class="Concept" package="conceptscheme"/></str:ConceptIdentity>
          <str:LocalRepresentation>
            <str:Enumeration><Ref id="CL_FREQ" agencyID="ECB" version="1.0" class="Codelist" package="codelist"/></str:Enumeration>
          </str:LocalRepresentation>
        </str:Dimension>
      </str:DimensionList>
    </str:DataStructureComponents>
  </str:DataStructure>
</str:DataStructures>`

	sub := f.submit(t, submitDoc("Append", "false", body))
	results := sub.Results()
	if len(results) != 4 {
		t.Fatalf("expected 4 results (header + 3 artefacts), got %d", len(results))
	}
	for _, r := range results {
		if r.Status != submission.Success {
			t.Fatalf("result %+v has status %s: %+v", r.Key, r.Status, r.Messages)
		}
	}

	cl := f.findOne(t, "codelist.Codelist")
	concept := f.findOne(t, "conceptscheme.Concept")
	if concept.Ref("core_representation") != cl {
		t.Error("concept core representation should resolve to the codelist")
	}

	dim := f.findOne(t, "datastructure.Dimension")
	if dim.Ref("concept") != concept {
		t.Error("dimension concept identity should resolve to the concept")
	}
	if dim.Ref("enumeration") != cl {
		t.Error("dimension enumeration should resolve to the codelist")
	}
	if pos, ok := dim.Get("position").(int); !ok || pos != 1 {
		t.Errorf("dimension position = %v, want 1", dim.Get("position"))
	}

	// The dimension belongs to the data structure's related set.
	ds := f.findOne(t, "datastructure.DataStructure")
	dims, err := f.store.Related(ctx, ds, "dimension_set")
	if err != nil {
		t.Fatalf("Related failed: %v", err)
	}
	if len(dims) != 1 || dims[0] != dim {
		t.Error("dimension not reachable through the data structure")
	}
}

func TestSubmitAttachmentConstraint_ForwardDeclares(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	body := `<str:Constraints>
  <str:AttachmentConstraint id="AC_1" agencyID="ECB" version="1.0">
    <com:Name xml:lang="en">Attachment</com:Name>
    <str:ConstraintAttachment>
      <str:DataStructure><Ref id="DSD_LATER" agencyID="ECB" version="1.0" class="DataStructure" package="datastructure"/></str:DataStructure>
    </str:ConstraintAttachment>
  </str:AttachmentConstraint>
</str:Constraints>`
	sub := f.submit(t, submitDoc("Append", "false", body))
	if sub.Results()[1].Status != submission.Success {
		t.Fatalf("constraint result: %+v", sub.Results()[1])
	}

	// The referenced data structure did not exist; a placeholder appears.
	ds := f.findOne(t, "datastructure.DataStructure")
	if ds.GetString("object_id") != "DSD_LATER" {
		t.Errorf("placeholder object_id = %s, want DSD_LATER", ds.GetString("object_id"))
	}

	constraint := f.findOne(t, "registry.AttachmentConstraint")
	attached, err := f.store.Related(ctx, constraint, "data_structure_set")
	if err != nil {
		t.Fatalf("Related failed: %v", err)
	}
	if len(attached) != 1 || attached[0] != ds {
		t.Error("constraint not attached to the forward-declared data structure")
	}
}

func TestRenderSubmitResponse(t *testing.T) {
	f := newFixture(t)

	sub := f.submit(t, submitDoc("Append", "false", codelistXML("1.0", "")))
	doc, err := RenderSubmitResponse(f.engine, sub, "REG")
	if err != nil {
		t.Fatalf("RenderSubmitResponse failed: %v", err)
	}

	root := doc.Root()
	if root.Tag != "RegistryInterface" {
		t.Fatalf("response root tag = %s, want RegistryInterface", root.Tag)
	}
	resp := childByTag(root, "SubmitStructureResponse")
	if resp == nil {
		t.Fatal("response is missing SubmitStructureResponse")
	}

	results := childrenByTag(resp, "SubmissionResult")
	if len(results) != 2 {
		t.Fatalf("expected 2 submission results, got %d", len(results))
	}

	codelistResult := results[1]
	ss := childByTag(codelistResult, "SubmittedStructure")
	if ss == nil {
		t.Fatal("submission result is missing SubmittedStructure")
	}
	if got := ss.SelectAttrValue("action", ""); got != "Append" {
		t.Errorf("action = %q, want Append", got)
	}
	mo := childByTag(ss, "MaintainableObject")
	wantURN := "urn:sdmx:infomodel.codelist.Codelist=ECB:CL_FREQ(1.0)"
	if mo == nil {
		t.Fatal("submission result is missing MaintainableObject")
	}
	if urnEl := childByTag(mo, "URN"); urnEl == nil || urnEl.Text() != wantURN {
		t.Errorf("maintainable object URN mismatch, want %s", wantURN)
	}
	sm := childByTag(codelistResult, "StatusMessage")
	if sm == nil || sm.SelectAttrValue("status", "") != "Success" {
		t.Error("status message should report Success")
	}
}

func TestRenderStructuresDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.submit(t, submitDoc("Append", "false", codelistXML("1.0", "")))
	cl := f.findOne(t, "codelist.Codelist")

	groups := []StructureGroup{{ClassName: "CodelistSerializer", Records: []*store.Record{cl}}}
	doc, err := RenderStructuresDocument(ctx, f.engine, f.store, groups,
		serializer.RenderContext{Detail: "full"}, "REG")
	if err != nil {
		t.Fatalf("RenderStructuresDocument failed: %v", err)
	}

	root := doc.Root()
	if root.Tag != "Structure" {
		t.Fatalf("root tag = %s, want Structure", root.Tag)
	}
	structures := childByTag(root, "Structures")
	if structures == nil {
		t.Fatal("document is missing Structures")
	}
	codelists := childByTag(structures, "Codelists")
	if codelists == nil {
		t.Fatal("document is missing the Codelists wrapper")
	}
	rendered := childrenByTag(codelists, "Codelist")
	if len(rendered) != 1 {
		t.Fatalf("expected 1 codelist, got %d", len(rendered))
	}
	if got := rendered[0].SelectAttrValue("id", ""); got != "CL_FREQ" {
		t.Errorf("codelist id = %q, want CL_FREQ", got)
	}
	if len(childrenByTag(rendered[0], "Code")) != 2 {
		t.Error("rendered codelist lost its codes")
	}
}
