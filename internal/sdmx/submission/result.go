// Package submission tracks per-artefact outcomes of one inbound submission:
// a status that only ever escalates, an ordered message list, and the
// request-scoped context the process pipeline runs under.
package submission

// Status is the outcome level of one submission result. It escalates from
// Success through Warning to Failure and never de-escalates.
type Status int

const (
	Success Status = iota
	Warning
	Failure
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case Warning:
		return "Warning"
	case Failure:
		return "Failure"
	default:
		return "Success"
	}
}

// Message is one localized status message.
type Message struct {
	Code string
	Lang string
	Text string
}

// ResultKey identifies the maintainable artefact a result belongs to. The
// flat five-part tuple replaces nested per-level maps: same lookup
// semantics, no auto-vivification surprises.
type ResultKey struct {
	Package  string
	Class    string
	AgencyID string
	ObjectID string
	Version  string
}

// HeaderKey is the distinguished key of the synthetic header result that
// decides the aggregate submission outcome.
var HeaderKey = ResultKey{Package: "message", Class: "Header", AgencyID: "MAIN", ObjectID: "HEADER", Version: "1.0"}

// Result is the outcome record for one touched maintainable artefact.
type Result struct {
	Key      ResultKey
	Status   Status
	Messages []Message
}

// Escalate raises the status (never lowers it) and appends a message.
func (r *Result) Escalate(status Status, code, lang, text string) {
	if status > r.Status {
		r.Status = status
	}
	r.Messages = append(r.Messages, Message{Code: code, Lang: lang, Text: text})
}
