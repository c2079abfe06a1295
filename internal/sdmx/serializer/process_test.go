package serializer

import (
	"context"
	"testing"

	"github.com/sdmxkit/sdmxreg/internal/sdmx/submission"
	"github.com/sdmxkit/sdmxreg/internal/store"
)

// recordingHooks logs every stage it runs under the instance's class name.
type recordingHooks struct {
	BaseHooks
	log  *[]string
	stop string // stage after which the instance stops, "" for none
}

func (h recordingHooks) mark(in *Instance, stage string) {
	*h.log = append(*h.log, in.Class.Name+"."+stage)
	if h.stop == stage {
		in.Stop()
	}
}

func (h recordingHooks) Prevalidate(ctx context.Context, sub *submission.Context, in *Instance) error {
	h.mark(in, "prevalidate")
	return nil
}

func (h recordingHooks) Premake(ctx context.Context, sub *submission.Context, in *Instance) (*store.Record, error) {
	h.mark(in, "premake")
	rec, err := sub.Store.Create(ctx, in.Class.Model, map[string]interface{}{
		"object_id": in.GetString("object_id"),
	})
	if err != nil {
		return nil, err
	}
	in.SkipSave = true
	return rec, nil
}

func (h recordingHooks) Validate(ctx context.Context, sub *submission.Context, in *Instance, rec *store.Record) error {
	h.mark(in, "validate")
	return nil
}

func (h recordingHooks) Postvalidate(ctx context.Context, sub *submission.Context, in *Instance, rec *store.Record) error {
	h.mark(in, "postvalidate")
	return nil
}

func (h recordingHooks) Postmake(ctx context.Context, sub *submission.Context, in *Instance, rec *store.Record) error {
	h.mark(in, "postmake")
	return h.BaseHooks.Postmake(ctx, sub, in, rec)
}

func TestProcess_StageOrder(t *testing.T) {
	engine, st := testEngine(t)
	var log []string
	engine.RegisterHooks("CodelistSerializer", recordingHooks{log: &log})
	engine.RegisterHooks("CodeSerializer", recordingHooks{log: &log})

	in, err := engine.FromElement(codelistClass(t, engine), parseXML(t, codelistXML))
	if err != nil {
		t.Fatalf("FromElement failed: %v", err)
	}

	sub := submission.NewContext(st, nil)
	if err := in.Process(context.Background(), sub); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	want := []string{
		"CodelistSerializer.prevalidate",
		"CodelistSerializer.premake",
		"CodelistSerializer.validate",
		// Names have no registered hooks and run the silent defaults.
		"CodeSerializer.prevalidate",
		"CodeSerializer.premake",
		"CodeSerializer.validate",
		"CodeSerializer.postvalidate",
		"CodeSerializer.postmake",
		"CodeSerializer.prevalidate",
		"CodeSerializer.premake",
		"CodeSerializer.validate",
		"CodeSerializer.postvalidate",
		"CodeSerializer.postmake",
		"CodelistSerializer.postvalidate",
		"CodelistSerializer.postmake",
	}
	if len(log) != len(want) {
		t.Fatalf("stage log = %v", log)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("stage %d = %s, want %s (full log %v)", i, log[i], want[i], log)
		}
	}

	// Children were processed with the parent set as their wrapper.
	for _, code := range in.Children("code") {
		if code.Wrapper != in {
			t.Error("child processed without wrapper")
		}
	}
}

func TestProcess_EarlyStop(t *testing.T) {
	engine, st := testEngine(t)
	var log []string
	engine.RegisterHooks("CodelistSerializer", recordingHooks{log: &log, stop: "prevalidate"})
	engine.RegisterHooks("CodeSerializer", recordingHooks{log: &log})

	in, err := engine.FromElement(codelistClass(t, engine), parseXML(t, codelistXML))
	if err != nil {
		t.Fatalf("FromElement failed: %v", err)
	}

	sub := submission.NewContext(st, nil)
	if err := in.Process(context.Background(), sub); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if len(log) != 1 || log[0] != "CodelistSerializer.prevalidate" {
		t.Errorf("stop after prevalidate must skip all later stages, log = %v", log)
	}
	if !in.Stopped() {
		t.Error("instance not marked stopped")
	}
}

func TestProcess_BasePostmakeDefaults(t *testing.T) {
	engine, st := testEngine(t)
	ctx := context.Background()

	in, err := engine.FromElement(codelistClass(t, engine), parseXML(t, codelistXML))
	if err != nil {
		t.Fatalf("FromElement failed: %v", err)
	}

	rec, err := st.Create(ctx, "codelist.Codelist", map[string]interface{}{"version": "2.0"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	in.Record = rec

	sub := submission.NewContext(st, nil)
	if err := (BaseHooks{}).Postmake(ctx, sub, in, rec); err != nil {
		t.Fatalf("Postmake failed: %v", err)
	}

	// Parsed identity fills gaps but never overwrites persisted values.
	if got := rec.GetString("object_id"); got != "CL_FREQ" {
		t.Errorf("object_id = %q", got)
	}
	if got := rec.GetString("version"); got != "2.0" {
		t.Errorf("version = %q, existing value must win", got)
	}
}
