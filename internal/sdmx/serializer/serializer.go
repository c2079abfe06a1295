// Package serializer implements the generic bidirectional mapper at the
// heart of the registry: driven entirely by class/field metadata, it
// populates instances from persisted records or XML elements, renders
// instances back to XML, and runs the create/validate/persist pipeline.
package serializer

import (
	"errors"
	"fmt"

	"github.com/beevik/etree"

	"github.com/sdmxkit/sdmxreg/internal/sdmx/meta"
	"github.com/sdmxkit/sdmxreg/internal/store"
)

var (
	// ErrWrongRecordKind is raised when a serializer is constructed from a
	// record of another class's backing kind.
	ErrWrongRecordKind = errors.New("record kind does not match serializer class")
	// ErrTagMismatch is raised when a serializer is constructed from an
	// element whose local tag is not the class's expected tag.
	ErrTagMismatch = errors.New("element tag does not match serializer class")
)

// Config is the explicit engine configuration, threaded through the
// top-level entry points instead of read from ambient global state.
type Config struct {
	// StructureURLBase prefixes the structureURL attribute rendered on
	// reference stubs.
	StructureURLBase string

	// Languages are the configured response languages for translated
	// collections, in preference order.
	Languages []string

	// DefaultLanguage tags status messages.
	DefaultLanguage string
}

// Engine binds the class registry, the engine configuration and the
// per-class pipeline hooks.
type Engine struct {
	Registry *meta.Registry
	Config   Config

	hooks map[string]Hooks
}

// NewEngine creates a serializer engine over a finalized class registry.
func NewEngine(registry *meta.Registry, cfg Config) *Engine {
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "en"
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{cfg.DefaultLanguage}
	}
	return &Engine{
		Registry: registry,
		Config:   cfg,
		hooks:    make(map[string]Hooks),
	}
}

// RegisterHooks attaches pipeline hooks to a class by name.
func (e *Engine) RegisterHooks(className string, h Hooks) {
	e.hooks[className] = h
}

func (e *Engine) hooksFor(class *meta.Class) Hooks {
	if h, ok := e.hooks[class.Name]; ok {
		return h
	}
	return BaseHooks{}
}

// Instance is one runtime instantiation of an artefact class, populated
// from a record, from an element, or left empty for programmatic
// construction.
type Instance struct {
	Class  *meta.Class
	Engine *Engine

	// Wrapper is the containing instance during processing. Non-owning and
	// contextual; never serialized.
	Wrapper *Instance

	// Record is the backing persisted record, set by record construction
	// or by the pipeline's premake stage.
	Record *store.Record

	values map[string]interface{}

	// sourceElem keeps the parsed element around for debugging.
	sourceElem *etree.Element

	stopped  bool
	SkipSave bool
}

// New creates an empty instance for programmatic construction.
func (e *Engine) New(class *meta.Class) *Instance {
	return &Instance{Class: class, Engine: e, values: make(map[string]interface{})}
}

// NewByName creates an empty instance, resolving the class by name.
func (e *Engine) NewByName(className string) (*Instance, error) {
	class, err := e.Registry.Class(className)
	if err != nil {
		return nil, err
	}
	return e.New(class), nil
}

// Get returns a field value; nil when unset.
func (in *Instance) Get(field string) interface{} {
	return in.values[field]
}

// GetString returns a field value as a string, or "".
func (in *Instance) GetString(field string) string {
	if v, ok := in.values[field].(string); ok {
		return v
	}
	return ""
}

// GetBool returns a field value as a bool, or false.
func (in *Instance) GetBool(field string) bool {
	if v, ok := in.values[field].(bool); ok {
		return v
	}
	return false
}

// Child returns a nested instance field, or nil.
func (in *Instance) Child(field string) *Instance {
	if v, ok := in.values[field].(*Instance); ok {
		return v
	}
	return nil
}

// Children returns a collection field. Collections are materialized at
// population time, so repeated iteration is safe.
func (in *Instance) Children(field string) []*Instance {
	if v, ok := in.values[field].([]*Instance); ok {
		return v
	}
	return nil
}

// Set assigns a field value.
func (in *Instance) Set(field string, value interface{}) {
	in.values[field] = value
}

// Stop sets the early-stop flag: no further pipeline stages run for this
// instance. Terminal for this instance only; siblings keep their effects.
func (in *Instance) Stop() {
	in.stopped = true
}

// Stopped reports the early-stop flag.
func (in *Instance) Stopped() bool {
	return in.stopped
}

func (in *Instance) childClass(f *meta.Field) (*meta.Class, error) {
	class, err := in.Engine.Registry.Class(f.ClassName)
	if err != nil {
		return nil, fmt.Errorf("%w: field %s on %s", err, f.Name, in.Class.Name)
	}
	return class, nil
}
