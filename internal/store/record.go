// Package store defines the persistence collaborator used by the SDMX
// serializer engine: a generic record model, the Store interface, and the
// relation schema consulted by both backends.
package store

// Record is a persisted row of a given kind. Kinds are "<app>.<Model>"
// strings (e.g. "codelist.Codelist"). Foreign keys are held as *Record
// values in Fields; many-to-many memberships as []*Record.
type Record struct {
	Kind   string
	ID     int64
	Fields map[string]interface{}

	// Deleted marks a record removed within the current unit of work.
	Deleted bool
}

// NewRecord creates an unsaved record of the given kind.
func NewRecord(kind string) *Record {
	return &Record{Kind: kind, Fields: make(map[string]interface{})}
}

// Get returns the named field value, or nil when unset.
func (r *Record) Get(name string) interface{} {
	return r.Fields[name]
}

// Set assigns the named field.
func (r *Record) Set(name string, value interface{}) {
	r.Fields[name] = value
}

// SetDefault assigns the named field only when it has no value yet.
// Returns true when the assignment happened.
func (r *Record) SetDefault(name string, value interface{}) bool {
	if v, ok := r.Fields[name]; ok && v != nil {
		return false
	}
	if value == nil {
		return false
	}
	r.Fields[name] = value
	return true
}

// GetString returns the named field as a string, or "" when unset.
func (r *Record) GetString(name string) string {
	if v, ok := r.Fields[name].(string); ok {
		return v
	}
	return ""
}

// GetBool returns the named field as a bool, or false when unset.
func (r *Record) GetBool(name string) bool {
	if v, ok := r.Fields[name].(bool); ok {
		return v
	}
	return false
}

// Ref returns the named field as a foreign-key record, or nil.
func (r *Record) Ref(name string) *Record {
	if v, ok := r.Fields[name].(*Record); ok {
		return v
	}
	return nil
}

// Refs returns the named field as a many-to-many record set.
func (r *Record) Refs(name string) []*Record {
	if v, ok := r.Fields[name].([]*Record); ok {
		return v
	}
	return nil
}
