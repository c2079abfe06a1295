package web

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/sdmxkit/sdmxreg/internal/sdmx/artefacts"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/meta"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/serializer"
	"github.com/sdmxkit/sdmxreg/internal/store/memstore"
)

type fixture struct {
	handler http.Handler
	store   *memstore.Store
	mr      *miniredis.Miniredis
}

func newFixture(t *testing.T, withCache bool) *fixture {
	t.Helper()

	engine, err := artefacts.NewEngine(serializer.Config{
		StructureURLBase: "http://registry.example.org/sdmx/structure",
		Languages:        []string{"en"},
	})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	st := memstore.New(artefacts.NewSchema())
	if _, err := st.Create(context.Background(), "organisation.Organisation",
		map[string]interface{}{"object_id": "ECB"}); err != nil {
		t.Fatalf("seeding agency failed: %v", err)
	}

	f := &fixture{store: st}
	h := &Handler{Engine: engine, Store: st, SenderID: "TESTREG"}
	if withCache {
		f.mr = miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: f.mr.Addr()})
		h.Cache = NewRenderCache(client, 0)
		t.Cleanup(func() { h.Cache.Close() })
	}
	f.handler = NewRouter(h)
	return f
}

func (f *fixture) do(t *testing.T, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader(body)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(method, target, reader))
	return rec
}

func codelistSubmission(id, version string) []byte {
	return []byte(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<mes:RegistryInterface xmlns:mes=%q xmlns:str=%q xmlns:com=%q>
  <mes:Header>
    <mes:ID>IREF000001</mes:ID>
    <mes:Test>false</mes:Test>
    <mes:Prepared>2026-01-10T09:30:00</mes:Prepared>
    <mes:Sender id="ECB"/>
  </mes:Header>
  <mes:SubmitStructureRequest action="Append">
    <mes:Structures>
      <str:Codelists>
        <str:Codelist id=%q agencyID="ECB" version=%q>
          <com:Name xml:lang="en">Frequency</com:Name>
          <str:Code id="A"><com:Name xml:lang="en">Annual</com:Name></str:Code>
          <str:Code id="M"><com:Name xml:lang="en">Monthly</com:Name></str:Code>
        </str:Codelist>
      </str:Codelists>
    </mes:Structures>
  </mes:SubmitStructureRequest>
</mes:RegistryInterface>`,
		meta.NSMessage, meta.NSStructure, meta.NSCommon, id, version))
}

func TestSubmitEndpoint_Success(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodPost, "/sdmx/submit", codelistSubmission("CL_FREQ", "1.0"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != contentTypeXML {
		t.Errorf("content type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "SubmitStructureResponse") {
		t.Errorf("response is not a submit response:\n%s", body)
	}
	if !strings.Contains(body, `status="Success"`) {
		t.Errorf("expected a Success status message:\n%s", body)
	}
	if !strings.Contains(body, "urn:sdmx:infomodel.codelist.Codelist=ECB:CL_FREQ(1.0)") {
		t.Errorf("response does not reference the submitted codelist:\n%s", body)
	}

	records, err := f.store.Find(context.Background(), "codelist.Codelist", nil)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("stored %d codelists, want 1", len(records))
	}
}

func TestSubmitEndpoint_ZipWrapped(t *testing.T) {
	f := newFixture(t, false)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	entry, err := zw.Create("submission.xml")
	if err != nil {
		t.Fatalf("zip create failed: %v", err)
	}
	entry.Write(codelistSubmission("CL_FREQ", "1.0"))
	zw.Close()

	rec := f.do(t, http.MethodPost, "/sdmx/submit", buf.Bytes())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `status="Success"`) {
		t.Errorf("zipped submission did not succeed:\n%s", rec.Body.String())
	}
}

func TestSubmitEndpoint_RejectsMultiEntryZip(t *testing.T) {
	f := newFixture(t, false)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range []string{"one.xml", "two.xml"} {
		entry, _ := zw.Create(name)
		entry.Write(codelistSubmission("CL_FREQ", "1.0"))
	}
	zw.Close()

	rec := f.do(t, http.MethodPost, "/sdmx/submit", buf.Bytes())
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSubmitEndpoint_MalformedXML(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodPost, "/sdmx/submit", []byte("<not-closed"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSubmitEndpoint_UnimplementedInterface(t *testing.T) {
	f := newFixture(t, false)
	body := []byte(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<mes:RegistryInterface xmlns:mes=%q>
  <mes:Header>
    <mes:ID>IREF1</mes:ID>
    <mes:Test>false</mes:Test>
    <mes:Prepared>2026-01-10T09:30:00</mes:Prepared>
    <mes:Sender id="ECB"/>
  </mes:Header>
  <mes:SubmitRegistrationsRequest/>
</mes:RegistryInterface>`, meta.NSMessage))

	rec := f.do(t, http.MethodPost, "/sdmx/submit", body)
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rec.Code)
	}
}

func TestStructureEndpoint_ReturnsDocument(t *testing.T) {
	f := newFixture(t, false)
	f.do(t, http.MethodPost, "/sdmx/submit", codelistSubmission("CL_FREQ", "1.0"))

	rec := f.do(t, http.MethodGet, "/sdmx/structure/codelist/ECB/CL_FREQ/1.0", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, `id="CL_FREQ"`) {
		t.Errorf("document does not contain the codelist:\n%s", body)
	}
	if !strings.Contains(body, "Codelists") {
		t.Errorf("document has no codelist wrapper:\n%s", body)
	}
}

func TestStructureEndpoint_DefaultsToLatest(t *testing.T) {
	f := newFixture(t, false)
	f.do(t, http.MethodPost, "/sdmx/submit", codelistSubmission("CL_FREQ", "1.0"))
	f.do(t, http.MethodPost, "/sdmx/submit", codelistSubmission("CL_FREQ", "2.0"))

	rec := f.do(t, http.MethodGet, "/sdmx/structure/codelist/ECB/CL_FREQ", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `id="CL_FREQ" agencyID="ECB" version="2.0"`) {
		t.Errorf("latest version missing:\n%s", body)
	}
	if strings.Contains(body, `id="CL_FREQ" agencyID="ECB" version="1.0"`) {
		t.Errorf("superseded version leaked into a latest query:\n%s", body)
	}
}

func TestStructureEndpoint_BadParams(t *testing.T) {
	f := newFixture(t, false)

	tests := []struct {
		name   string
		target string
	}{
		{"unknown resource", "/sdmx/structure/dataflow/ECB"},
		{"invalid detail", "/sdmx/structure/codelist/ECB?detail=everything"},
		{"invalid references", "/sdmx/structure/codelist/ECB?references=sideways"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, tt.target, nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestStructureEndpoint_NotFound(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/sdmx/structure/codelist/ECB/CL_MISSING", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRenderCache_ServesAndInvalidates(t *testing.T) {
	f := newFixture(t, true)
	f.do(t, http.MethodPost, "/sdmx/submit", codelistSubmission("CL_FREQ", "1.0"))
	// The submission invalidated whatever was cached before it.
	if keys := f.mr.Keys(); len(keys) != 0 {
		t.Fatalf("cache not empty after submission: %v", keys)
	}

	first := f.do(t, http.MethodGet, "/sdmx/structure/codelist/ECB/CL_FREQ/1.0", nil)
	if first.Code != http.StatusOK {
		t.Fatalf("status = %d", first.Code)
	}
	if keys := f.mr.Keys(); len(keys) != 1 {
		t.Fatalf("expected one cached document, got %v", keys)
	}

	second := f.do(t, http.MethodGet, "/sdmx/structure/codelist/ECB/CL_FREQ/1.0", nil)
	if second.Body.String() != first.Body.String() {
		t.Error("cached response differs from the rendered one")
	}

	// The next successful submission drops the cached document.
	f.do(t, http.MethodPost, "/sdmx/submit", codelistSubmission("CL_OTHER", "1.0"))
	if keys := f.mr.Keys(); len(keys) != 0 {
		t.Errorf("cache not invalidated after submission: %v", keys)
	}
}

func TestRenderCache_NilIsDisabled(t *testing.T) {
	var c *RenderCache
	ctx := context.Background()

	if _, ok := c.Get(ctx, "key"); ok {
		t.Error("nil cache reported a hit")
	}
	c.Set(ctx, "key", []byte("value"))
	if err := c.Invalidate(ctx); err != nil {
		t.Errorf("Invalidate on nil cache: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close on nil cache: %v", err)
	}
}
