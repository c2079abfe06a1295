// Package web exposes the registry over HTTP: the RESTful structure query
// endpoint and the structure submission endpoint, with a Redis-backed
// render cache in front of the query side.
package web

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/beevik/etree"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sdmxkit/sdmxreg/internal/sdmx/artefacts"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/serializer"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/structquery"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/submission"
	"github.com/sdmxkit/sdmxreg/internal/store"
	"github.com/sdmxkit/sdmxreg/internal/web/middleware"
)

// maxSubmissionBytes bounds an inbound submission body, zipped or not.
const maxSubmissionBytes = 64 << 20

const contentTypeXML = "application/xml; charset=utf-8"

// Handler serves the registry's HTTP API.
type Handler struct {
	Engine *serializer.Engine

	// Store serves every request directly when OpenStore is unset.
	Store store.Store

	// OpenStore, when set, opens a per-request store. The finish callback
	// commits or discards it; sqlstore maps this onto one transaction per
	// request.
	OpenStore func(ctx context.Context) (store.Store, func(commit bool) error, error)

	// Cache is the optional render cache; nil disables caching.
	Cache *RenderCache

	// SenderID identifies the registry in response message headers.
	SenderID string

	Logger *zap.Logger
}

// NewRouter mounts the registry endpoints with the standard middleware
// stack.
func NewRouter(h *Handler) http.Handler {
	if h.Logger == nil {
		h.Logger = zap.NewNop()
	}
	if h.SenderID == "" {
		h.SenderID = "SDMXREG"
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(h.Logger))
	r.Use(middleware.Recovery(h.Logger))

	r.Route("/sdmx", func(r chi.Router) {
		r.Get("/structure/{resource}", h.Structure)
		r.Get("/structure/{resource}/{agencyID}", h.Structure)
		r.Get("/structure/{resource}/{agencyID}/{resourceID}", h.Structure)
		r.Get("/structure/{resource}/{agencyID}/{resourceID}/{version}", h.Structure)
		r.Post("/submit", h.Submit)
	})
	return r
}

// Structure serves the RESTful structure query: the addressed artefacts
// plus whatever the references selector pulls in, rendered as an SDMX-ML
// Structure message.
func (h *Handler) Structure(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	params := structquery.Normalize(structquery.Params{
		Resource:   chi.URLParam(r, "resource"),
		AgencyID:   chi.URLParam(r, "agencyID"),
		ResourceID: chi.URLParam(r, "resourceID"),
		Version:    chi.URLParam(r, "version"),
		Detail:     r.URL.Query().Get("detail"),
		References: r.URL.Query().Get("references"),
	})

	key := cacheKey(params)
	if data, ok := h.Cache.Get(ctx, key); ok {
		writeXML(w, http.StatusOK, data)
		return
	}

	exp, err := structquery.Expand(h.Engine.Registry, params)
	if err != nil {
		if errors.Is(err, structquery.ErrInvalidParam) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.serverError(w, r, err)
		return
	}

	st, finish, err := h.openStore(ctx)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	served := false
	defer func() { h.finishStore(finish, served) }()

	recordsByClass := make(map[string][]*store.Record, len(exp.Kinds))
	for _, kq := range exp.Kinds {
		records, err := st.Find(ctx, kq.Class.Model, kq.Pred)
		if err != nil {
			h.serverError(w, r, err)
			return
		}
		recordsByClass[kq.Class.Name] = append(recordsByClass[kq.Class.Name], records...)
	}
	if len(recordsByClass[exp.Root.Name]) == 0 {
		http.Error(w, "no structures found", http.StatusNotFound)
		return
	}

	// Wrapper order in the rendered document is fixed regardless of the
	// order kinds were discovered in.
	groups := make([]artefacts.StructureGroup, 0, len(recordsByClass))
	for _, className := range artefacts.StructureClassOrder {
		if records := recordsByClass[className]; len(records) > 0 {
			groups = append(groups, artefacts.StructureGroup{ClassName: className, Records: records})
		}
	}

	rc := serializer.RenderContext{Detail: exp.Detail, Resource: params.Resource}
	doc, err := artefacts.RenderStructuresDocument(ctx, h.Engine, st, groups, rc, h.SenderID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	data, err := documentBytes(doc)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	served = true

	h.Cache.Set(ctx, key, data)
	writeXML(w, http.StatusOK, data)
}

// Submit accepts an SDMX-ML submission, raw or wrapped in a single-entry
// zip archive, runs it through the pipeline and renders the registry
// response. Artefact-level failures still produce a 200: the response
// document carries the per-artefact status.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxSubmissionBytes+1))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	if len(body) > maxSubmissionBytes {
		http.Error(w, "submission too large", http.StatusRequestEntityTooLarge)
		return
	}

	if isZip(body) {
		body, err = unwrapZip(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		http.Error(w, "malformed XML: "+err.Error(), http.StatusBadRequest)
		return
	}
	root := doc.Root()
	if root == nil {
		http.Error(w, "empty document", http.StatusBadRequest)
		return
	}

	if root.Tag == "RegistryInterface" {
		if status, msg := checkRequestElement(root); status != 0 {
			http.Error(w, msg, status)
			return
		}
	}

	class, err := h.Engine.Registry.ClassForTag(root.Tag)
	if err != nil {
		http.Error(w, fmt.Sprintf("unsupported message type %q", root.Tag), http.StatusBadRequest)
		return
	}
	in, err := h.Engine.FromElement(class, root)
	if err != nil {
		http.Error(w, "malformed message: "+err.Error(), http.StatusBadRequest)
		return
	}

	st, finish, err := h.openStore(ctx)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	committed := false
	defer func() { h.finishStore(finish, committed) }()

	sub := submission.NewContext(st, h.Logger)
	if err := in.Process(ctx, sub); err != nil {
		sub.Close(ctx)
		h.serverError(w, r, err)
		return
	}

	respDoc, err := artefacts.RenderSubmitResponse(h.Engine, sub, h.SenderID)
	if err != nil {
		sub.Close(ctx)
		h.serverError(w, r, err)
		return
	}
	// Close after rendering: test submissions roll back their savepoint and
	// the response must reflect the processed state.
	if err := sub.Close(ctx); err != nil {
		h.serverError(w, r, err)
		return
	}
	committed = true

	if !sub.Test {
		if err := h.Cache.Invalidate(ctx); err != nil {
			h.Logger.Warn("cache invalidation failed", zap.Error(err))
		}
	}

	data, err := documentBytes(respDoc)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	writeXML(w, http.StatusOK, data)
}

// checkRequestElement inspects the registry interface payload. Only
// structure submissions are implemented; the other registry interfaces are
// recognized but not served.
func checkRequestElement(root *etree.Element) (int, string) {
	for _, child := range root.ChildElements() {
		switch child.Tag {
		case "Header":
			continue
		case "SubmitStructureRequest":
			return 0, ""
		case "SubmitRegistrationsRequest", "QueryRegistrationRequest",
			"SubmitSubscriptionsRequest", "QueryStructureRequest":
			return http.StatusNotImplemented, child.Tag + " is not yet implemented"
		default:
			return http.StatusBadRequest, fmt.Sprintf("unsupported request element %q", child.Tag)
		}
	}
	return http.StatusBadRequest, "missing request element"
}

func isZip(body []byte) bool {
	return bytes.HasPrefix(body, []byte("PK\x03\x04"))
}

// unwrapZip extracts the message from a single-entry zip archive.
func unwrapZip(body []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, fmt.Errorf("malformed zip archive: %w", err)
	}
	if len(zr.File) != 1 {
		return nil, fmt.Errorf("zip archive must contain exactly one file, got %d", len(zr.File))
	}
	f, err := zr.File[0].Open()
	if err != nil {
		return nil, fmt.Errorf("malformed zip archive: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxSubmissionBytes+1))
	if err != nil {
		return nil, fmt.Errorf("malformed zip archive: %w", err)
	}
	if len(data) > maxSubmissionBytes {
		return nil, errors.New("submission too large")
	}
	return data, nil
}

// cacheKey canonicalizes normalized query parameters.
func cacheKey(p structquery.Params) string {
	return strings.Join([]string{
		p.Resource, p.AgencyID, p.ResourceID, p.Version, p.Detail, p.References,
	}, "|")
}

func documentBytes(doc *etree.Document) ([]byte, error) {
	doc.Indent(2)
	return doc.WriteToBytes()
}

func writeXML(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", contentTypeXML)
	w.WriteHeader(status)
	w.Write(data)
}

func (h *Handler) openStore(ctx context.Context) (store.Store, func(commit bool) error, error) {
	if h.OpenStore != nil {
		return h.OpenStore(ctx)
	}
	return h.Store, nil, nil
}

func (h *Handler) finishStore(finish func(commit bool) error, commit bool) {
	if finish == nil {
		return
	}
	if err := finish(commit); err != nil {
		h.Logger.Warn("finishing request store failed", zap.Error(err))
	}
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.Logger.Error("request failed",
		zap.String("request_id", middleware.GetRequestID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}
