package serializer

import (
	"context"

	"github.com/sdmxkit/sdmxreg/internal/sdmx/submission"
	"github.com/sdmxkit/sdmxreg/internal/store"
)

// Hooks are the per-class stages of the process pipeline. Returned errors
// are configuration/infrastructure failures and abort the whole submission;
// business problems instead escalate a submission result and set the
// instance's early-stop flag.
type Hooks interface {
	// Prevalidate may register a submission result, resolve lookups and
	// set the early-stop flag before any record exists.
	Prevalidate(ctx context.Context, sub *submission.Context, in *Instance) error

	// Premake gets-or-creates the backing record; may return nil.
	Premake(ctx context.Context, sub *submission.Context, in *Instance) (*store.Record, error)

	// Validate runs business-rule checks against the now-existing record.
	Validate(ctx context.Context, sub *submission.Context, in *Instance, rec *store.Record) error

	// Postvalidate runs after every nested field has been processed.
	Postvalidate(ctx context.Context, sub *submission.Context, in *Instance, rec *store.Record) error

	// Postmake finalizes derived fields and persists the record.
	Postmake(ctx context.Context, sub *submission.Context, in *Instance, rec *store.Record) error
}

// BaseHooks is the default pipeline behavior; artefact hooks embed it and
// override the stages they need.
type BaseHooks struct{}

func (BaseHooks) Prevalidate(ctx context.Context, sub *submission.Context, in *Instance) error {
	return nil
}

func (BaseHooks) Premake(ctx context.Context, sub *submission.Context, in *Instance) (*store.Record, error) {
	return in.Record, nil
}

func (BaseHooks) Validate(ctx context.Context, sub *submission.Context, in *Instance, rec *store.Record) error {
	return nil
}

func (BaseHooks) Postvalidate(ctx context.Context, sub *submission.Context, in *Instance, rec *store.Record) error {
	return nil
}

// Postmake copies identity defaults parsed off the instance onto a record
// that does not carry them yet (an existing value is never overwritten),
// then saves unless the instance opted out.
func (BaseHooks) Postmake(ctx context.Context, sub *submission.Context, in *Instance, rec *store.Record) error {
	if rec == nil {
		return nil
	}
	for _, name := range []string{"object_id", "version", "valid_from", "valid_to"} {
		if in.Class.Field(name) == nil {
			continue
		}
		rec.SetDefault(name, in.Get(name))
	}
	if in.SkipSave {
		return nil
	}
	return sub.Store.Save(ctx, rec)
}

// Process runs the seven-stage pipeline for this instance: prevalidate,
// premake and validate top-down, then every nested field recursively, then
// postvalidate and postmake. The early-stop flag is checked between stages
// and is terminal for this instance only.
func (in *Instance) Process(ctx context.Context, sub *submission.Context) error {
	h := in.Engine.hooksFor(in.Class)

	if err := h.Prevalidate(ctx, sub, in); err != nil {
		return err
	}
	if in.stopped {
		return nil
	}

	rec, err := h.Premake(ctx, sub, in)
	if err != nil {
		return err
	}
	if rec != nil {
		in.Record = rec
	}
	if in.stopped {
		return nil
	}

	if err := h.Validate(ctx, sub, in, in.Record); err != nil {
		return err
	}
	if in.stopped {
		return nil
	}

	if err := in.processChildren(ctx, sub); err != nil {
		return err
	}

	if err := h.Postvalidate(ctx, sub, in, in.Record); err != nil {
		return err
	}
	if in.stopped {
		return nil
	}
	return h.Postmake(ctx, sub, in, in.Record)
}

// processChildren runs every nested field's own pipeline to completion (or
// early stop) before the parent's post stages, passing this instance down
// as the wrapper.
func (in *Instance) processChildren(ctx context.Context, sub *submission.Context) error {
	for i := range in.Class.Fields {
		f := &in.Class.Fields[i]
		if !f.Nested() {
			continue
		}
		switch v := in.Get(f.Name).(type) {
		case *Instance:
			v.Wrapper = in
			if err := v.Process(ctx, sub); err != nil {
				return err
			}
		case []*Instance:
			for _, child := range v {
				child.Wrapper = in
				if err := child.Process(ctx, sub); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
