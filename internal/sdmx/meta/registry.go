package meta

import (
	"fmt"

	"github.com/sdmxkit/sdmxreg/internal/store/query"
)

// Registry holds the full set of artefact class declarations. Register all
// classes first, then call Finalize exactly once; lookups before Finalize
// are a configuration error.
type Registry struct {
	classes   map[string]*Class
	order     []string
	finalized bool
}

// NewRegistry creates an empty class registry.
func NewRegistry() *Registry {
	return &Registry{classes: make(map[string]*Class)}
}

// Register adds a class declaration.
func (r *Registry) Register(c *Class) error {
	if r.finalized {
		return fmt.Errorf("%w: registering %s after finalize", ErrFieldConfig, c.Name)
	}
	if _, exists := r.classes[c.Name]; exists {
		return fmt.Errorf("%w: class %s is already registered", ErrFieldConfig, c.Name)
	}
	r.classes[c.Name] = c
	r.order = append(r.order, c.Name)
	return nil
}

// Finalize is the explicit second declaration phase: resolves field
// defaults, tags and namespace maps, verifies child/parent names, and
// verifies the children graph is acyclic.
func (r *Registry) Finalize() error {
	if r.finalized {
		return fmt.Errorf("%w: registry already finalized", ErrFieldConfig)
	}

	for _, name := range r.order {
		if err := r.classes[name].finalize(r); err != nil {
			return err
		}
	}

	// Names must resolve, even though resolution to *Class stays lazy.
	for _, name := range r.order {
		c := r.classes[name]
		for i := range c.Fields {
			if cn := c.Fields[i].ClassName; cn != "" {
				if _, ok := r.classes[cn]; !ok {
					return fmt.Errorf("%w: field %s on %s names unknown class %s", ErrFieldConfig, c.Fields[i].Name, name, cn)
				}
			}
		}
		for _, child := range c.Children {
			if _, ok := r.classes[child.Child]; !ok {
				return fmt.Errorf("%w: %s declares unknown child %s", ErrFieldConfig, name, child.Child)
			}
		}
		for _, parent := range c.Parents {
			if _, ok := r.classes[parent]; !ok {
				return fmt.Errorf("%w: %s declares unknown parent %s", ErrFieldConfig, name, parent)
			}
		}
	}

	if err := r.checkAcyclic(); err != nil {
		return err
	}

	r.finalized = true
	return nil
}

// checkAcyclic verifies the children graph contains no cycles.
func (r *Registry) checkAcyclic() error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(r.classes))

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case visiting:
			return fmt.Errorf("%w: cycle through %s in children graph", ErrFieldConfig, name)
		case done:
			return nil
		}
		state[name] = visiting
		for _, child := range r.classes[name].Children {
			if err := visit(child.Child); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}

	for _, name := range r.order {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

// Class looks up a class declaration by name.
func (r *Registry) Class(name string) (*Class, error) {
	if c, ok := r.classes[name]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownClass, name)
}

// ClassForResource finds the maintainable class owning a RESTful resource name.
func (r *Registry) ClassForResource(resource string) (*Class, error) {
	for _, name := range r.order {
		c := r.classes[name]
		if c.Maintainable && c.RendersFullFor(resource) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: no class serves resource %s", ErrUnknownClass, resource)
}

// ClassForTag finds the class with the given XML tag.
func (r *Registry) ClassForTag(tag string) (*Class, error) {
	for _, name := range r.order {
		if r.classes[name].Tag == tag {
			return r.classes[name], nil
		}
	}
	return nil, fmt.Errorf("%w: no class with tag %s", ErrUnknownClass, tag)
}

// All returns every registered class in registration order.
func (r *Registry) All() []*Class {
	result := make([]*Class, len(r.order))
	for i, name := range r.order {
		result[i] = r.classes[name]
	}
	return result
}

// InvertSteps inverts a relation path. The declared path runs from records
// of startKind to the path's end; the inverse runs from the end back to
// startKind, which breadth expansion needs when walking parent kinds.
func InvertSteps(startKind string, steps []query.Step) []query.Step {
	kinds := make([]string, len(steps)+1)
	kinds[0] = startKind
	for i, s := range steps {
		kinds[i+1] = s.Kind
	}

	inverted := make([]query.Step, 0, len(steps))
	for i := len(steps) - 1; i >= 0; i-- {
		s := steps[i]
		inverted = append(inverted, query.Step{
			Kind:    kinds[i],
			Field:   s.Field,
			Reverse: !s.Reverse,
		})
	}
	return inverted
}
