package artefacts

import (
	"context"
	"fmt"

	"golang.org/x/text/language"

	"github.com/sdmxkit/sdmxreg/internal/sdmx/serializer"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/submission"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/urn"
	"github.com/sdmxkit/sdmxreg/internal/store"
	"github.com/sdmxkit/sdmxreg/internal/store/query"
)

// Instance value keys used to pass state between pipeline stages. Underscored
// so they can never collide with declared field names.
const (
	stashAgency  = "_agency"
	stashCreated = "_created"
)

// ownerRecord walks the wrapper chain to the nearest instance with a backing
// record. Wrapper classes like Annotations or DataStructureComponents carry
// none, so an item may be several hops below its owning artefact.
func ownerRecord(in *serializer.Instance) *store.Record {
	for w := in.Wrapper; w != nil; w = w.Wrapper {
		if w.Record != nil {
			return w.Record
		}
	}
	return nil
}

// resultFor returns the submission result of the nearest enclosing
// maintainable artefact, falling back to the synthetic header result.
func resultFor(sub *submission.Context, in *serializer.Instance) *submission.Result {
	for cur := in; cur != nil; cur = cur.Wrapper {
		if cur.Class.Maintainable {
			return sub.Result(maintainableKey(cur))
		}
	}
	return sub.HeaderResult()
}

func maintainableKey(in *serializer.Instance) submission.ResultKey {
	version := in.GetString("version")
	if version == "" {
		version = urn.DefaultVersion
	}
	return submission.ResultKey{
		Package:  in.Class.SubmissionPackage,
		Class:    in.Class.SubmissionClass,
		AgencyID: in.GetString("agency_id"),
		ObjectID: in.GetString("object_id"),
		Version:  version,
	}
}

// MaintainableHooks is the shared pipeline for independently versioned,
// agency-owned artefacts: agency resolution, get-or-create by the identity
// triple, final-artefact immutability, action handling and latest-flag
// maintenance.
type MaintainableHooks struct {
	serializer.BaseHooks
	Kind string
}

func (h MaintainableHooks) Prevalidate(ctx context.Context, sub *submission.Context, in *serializer.Instance) error {
	res := resultFor(sub, in)

	agency, err := sub.Resolver.Agency(ctx, in.GetString("agency_id"))
	if err != nil {
		if isRefError(err) {
			res.Escalate(submission.Failure, "agency-not-registered",
				in.Engine.Config.DefaultLanguage, err.Error())
			in.Stop()
			return nil
		}
		return err
	}
	in.Set(stashAgency, agency)
	return nil
}

func (h MaintainableHooks) Premake(ctx context.Context, sub *submission.Context, in *serializer.Instance) (*store.Record, error) {
	agency, _ := in.Get(stashAgency).(*store.Record)
	version := in.GetString("version")
	if version == "" {
		version = urn.DefaultVersion
	}

	rec, created, err := sub.Store.GetOrCreate(ctx, h.Kind,
		map[string]interface{}{
			"agency":    agency,
			"object_id": in.GetString("object_id"),
			"version":   version,
		},
		map[string]interface{}{
			"latest":   false,
			"is_final": false,
		})
	if err != nil {
		return nil, err
	}
	in.Set(stashCreated, created)
	return rec, nil
}

func (h MaintainableHooks) Validate(ctx context.Context, sub *submission.Context, in *serializer.Instance, rec *store.Record) error {
	res := resultFor(sub, in)
	lang := in.Engine.Config.DefaultLanguage
	created := in.GetBool(stashCreated)

	if !created && rec.GetBool("is_final") && sub.Action != submission.ActionInfo {
		res.Escalate(submission.Failure, "final-artefact", lang,
			fmt.Sprintf("%s %s:%s(%s) is final and cannot be modified",
				in.Class.SubmissionClass, in.GetString("agency_id"),
				rec.GetString("object_id"), rec.GetString("version")))
		in.Stop()
		return nil
	}

	switch sub.Action {
	case submission.ActionDelete:
		if created {
			// Premake vivified a record that never existed; undo and fail.
			if err := sub.Store.Delete(ctx, rec); err != nil {
				return err
			}
			res.Escalate(submission.Failure, "not-found", lang,
				fmt.Sprintf("cannot delete %s %s:%s(%s), it does not exist",
					in.Class.SubmissionClass, in.GetString("agency_id"),
					rec.GetString("object_id"), rec.GetString("version")))
			in.Stop()
			return nil
		}
		if err := h.retireLatest(ctx, sub, rec); err != nil {
			return err
		}
		if err := sub.Store.Delete(ctx, rec); err != nil {
			return err
		}
		res.Escalate(submission.Success, "deleted", lang, "artefact deleted")
		in.Stop()
	case submission.ActionInfo:
		in.SkipSave = true
	}
	return nil
}

func (h MaintainableHooks) Postmake(ctx context.Context, sub *submission.Context, in *serializer.Instance, rec *store.Record) error {
	if rec == nil || rec.Deleted {
		return nil
	}
	if v := in.Get("is_final"); v != nil {
		rec.Set("is_final", v)
	}
	if !in.SkipSave {
		if err := h.updateLatest(ctx, sub, rec); err != nil {
			return err
		}
	}
	return h.BaseHooks.Postmake(ctx, sub, in, rec)
}

// updateLatest enforces the invariant that exactly one record per
// (agency, object_id) carries the latest flag: clear every other record
// first, then mark this one.
func (h MaintainableHooks) updateLatest(ctx context.Context, sub *submission.Context, rec *store.Record) error {
	versions, err := h.versionsOf(ctx, sub, rec)
	if err != nil {
		return err
	}
	for _, other := range versions {
		if other == rec || !other.GetBool("latest") {
			continue
		}
		other.Set("latest", false)
		if err := sub.Store.Save(ctx, other); err != nil {
			return err
		}
	}
	rec.Set("latest", true)
	return nil
}

// retireLatest hands the latest flag to the most recently stored remaining
// version before rec is deleted.
func (h MaintainableHooks) retireLatest(ctx context.Context, sub *submission.Context, rec *store.Record) error {
	if !rec.GetBool("latest") {
		return nil
	}
	versions, err := h.versionsOf(ctx, sub, rec)
	if err != nil {
		return err
	}
	var heir *store.Record
	for _, other := range versions {
		if other != rec {
			heir = other
		}
	}
	if heir == nil {
		return nil
	}
	heir.Set("latest", true)
	return sub.Store.Save(ctx, heir)
}

func (h MaintainableHooks) versionsOf(ctx context.Context, sub *submission.Context, rec *store.Record) ([]*store.Record, error) {
	pred := query.NewPredicateGroup(false).
		Where("agency", query.OpEqual, rec.Ref("agency")).
		Where("object_id", query.OpEqual, rec.GetString("object_id"))
	return sub.Store.Find(ctx, h.Kind, pred)
}

// ItemHooks is the shared pipeline for item artefacts living inside a
// maintainable wrapper: get-or-create under the owner and resolution of the
// optional parent item within the same wrapper.
type ItemHooks struct {
	serializer.BaseHooks
	Kind        string
	OwnerField  string
	RelatedName string
}

func (h ItemHooks) Premake(ctx context.Context, sub *submission.Context, in *serializer.Instance) (*store.Record, error) {
	owner := ownerRecord(in)
	if owner == nil {
		return nil, fmt.Errorf("item %s processed without an owning record", in.Class.Name)
	}
	rec, _, err := sub.Store.GetOrCreate(ctx, h.Kind,
		map[string]interface{}{
			h.OwnerField: owner,
			"object_id":  in.GetString("object_id"),
		}, nil)
	return rec, err
}

func (h ItemHooks) Postvalidate(ctx context.Context, sub *submission.Context, in *serializer.Instance, rec *store.Record) error {
	parent := in.Child("parent")
	if parent == nil {
		return nil
	}
	ref, err := refFrom(parent)
	if err != nil || ref == nil {
		resultFor(sub, in).Escalate(submission.Warning, "unresolved-parent",
			in.Engine.Config.DefaultLanguage,
			fmt.Sprintf("parent reference on item %s is malformed", in.GetString("object_id")))
		return nil
	}

	// Parent items are constrained to the same wrapper.
	siblings, err := sub.Store.Related(ctx, rec.Ref(h.OwnerField), h.RelatedName)
	if err != nil {
		return err
	}
	for _, sibling := range siblings {
		if sibling != rec && sibling.GetString("object_id") == ref.ObjectID {
			rec.Set("parent", sibling)
			return nil
		}
	}
	resultFor(sub, in).Escalate(submission.Warning, "unresolved-parent",
		in.Engine.Config.DefaultLanguage,
		fmt.Sprintf("parent item %s of %s not found in the same wrapper", ref.ObjectID, in.GetString("object_id")))
	return nil
}

// TextHooks persists one multilingual text row per language under the
// nearest owning record. The backing kind is derived from the owner's kind
// plus the text element's tag (codelist.Codelist + Name = codelist.CodelistName).
type TextHooks struct {
	serializer.BaseHooks
	Suffix string
}

func (h TextHooks) Prevalidate(ctx context.Context, sub *submission.Context, in *serializer.Instance) error {
	lang := in.GetString("language")
	if lang == "" {
		lang = in.Engine.Config.DefaultLanguage
		in.Set("language", lang)
	}
	if _, err := language.Parse(lang); err != nil {
		resultFor(sub, in).Escalate(submission.Warning, "unsupported-language",
			in.Engine.Config.DefaultLanguage,
			fmt.Sprintf("unsupported language tag %q", lang))
		in.Stop()
	}
	return nil
}

func (h TextHooks) Premake(ctx context.Context, sub *submission.Context, in *serializer.Instance) (*store.Record, error) {
	owner := ownerRecord(in)
	if owner == nil {
		return nil, fmt.Errorf("text %s processed without an owning record", in.Class.Name)
	}
	suffix := h.Suffix
	if suffix == "" {
		suffix = in.Class.Tag
	}
	rec, _, err := sub.Store.GetOrCreate(ctx, owner.Kind+suffix,
		map[string]interface{}{
			"owner":    owner,
			"language": in.GetString("language"),
		}, nil)
	return rec, err
}

func (h TextHooks) Postmake(ctx context.Context, sub *submission.Context, in *serializer.Instance, rec *store.Record) error {
	rec.Set("text", in.GetString("text"))
	return h.BaseHooks.Postmake(ctx, sub, in, rec)
}
