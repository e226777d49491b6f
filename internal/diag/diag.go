// Package diag collects recoverable import problems.
//
// Fatal problems abort an import with an error. Everything else (a skipped
// attribute, an unresolved bone, a dropped triangle) is recorded here as an
// Issue, logged once at warn level, and returned to the caller with the
// result.
package diag

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Kind classifies a recoverable issue.
type Kind int

const (
	KindParse Kind = iota
	KindStride
	KindMissingBuffer
	KindUnresolvedInstance
	KindUnsupportedPrimitive
	KindIndexRange
	KindUnresolvedBone
	KindUnweightedVertex
)

// Sentinel errors matched by errors.Is against an Issue.
var (
	ErrParse                = errors.New("parse warning")
	ErrStride               = errors.New("unsupported attribute stride")
	ErrMissingBuffer        = errors.New("missing attribute buffer")
	ErrUnresolvedInstance   = errors.New("unresolved instance")
	ErrUnsupportedPrimitive = errors.New("unsupported primitive")
	ErrIndexRange           = errors.New("index out of range")
	ErrUnresolvedBone       = errors.New("unresolved bone")
	ErrUnweightedVertex     = errors.New("vertex without influences")
)

var kindErrors = map[Kind]error{
	KindParse:                ErrParse,
	KindStride:               ErrStride,
	KindMissingBuffer:        ErrMissingBuffer,
	KindUnresolvedInstance:   ErrUnresolvedInstance,
	KindUnsupportedPrimitive: ErrUnsupportedPrimitive,
	KindIndexRange:           ErrIndexRange,
	KindUnresolvedBone:       ErrUnresolvedBone,
	KindUnweightedVertex:     ErrUnweightedVertex,
}

// Err returns the sentinel for k.
func (k Kind) Err() error {
	if err, ok := kindErrors[k]; ok {
		return err
	}
	return ErrParse
}

// String returns the sentinel message.
func (k Kind) String() string {
	return k.Err().Error()
}

// Issue is one recoverable problem tied to a source element.
type Issue struct {
	Kind    Kind
	Element string // geometry, node or controller id
	Message string
}

// Error implements error.
func (i Issue) Error() string {
	if i.Element == "" {
		return fmt.Sprintf("%s: %s", i.Kind, i.Message)
	}
	return fmt.Sprintf("%s: %s: %s", i.Kind, i.Element, i.Message)
}

// Unwrap returns the kind sentinel.
func (i Issue) Unwrap() error {
	return i.Kind.Err()
}

// Report accumulates issues for one import.
type Report struct {
	log    *zap.Logger
	issues []Issue
}

// NewReport creates a report that logs each issue through log. A nil logger
// disables logging.
func NewReport(log *zap.Logger) *Report {
	if log == nil {
		log = zap.NewNop()
	}
	return &Report{log: log}
}

// Addf records an issue and logs it. Safe on a nil report.
func (r *Report) Addf(kind Kind, element, format string, args ...any) {
	if r == nil {
		return
	}
	issue := Issue{Kind: kind, Element: element, Message: fmt.Sprintf(format, args...)}
	r.issues = append(r.issues, issue)
	r.log.Warn(issue.Message,
		zap.Stringer("kind", kind),
		zap.String("element", element),
	)
}

// Issues returns the recorded issues in order.
func (r *Report) Issues() []Issue {
	if r == nil {
		return nil
	}
	return r.issues
}

// Len returns the number of issues.
func (r *Report) Len() int {
	return len(r.Issues())
}

// Count returns the number of issues of kind k.
func (r *Report) Count(k Kind) int {
	n := 0
	for _, i := range r.Issues() {
		if i.Kind == k {
			n++
		}
	}
	return n
}

// Has reports whether any issue of kind k was recorded.
func (r *Report) Has(k Kind) bool {
	return r.Count(k) > 0
}

// Err combines all issues into one error, or nil when there are none.
func (r *Report) Err() error {
	var err error
	for _, i := range r.Issues() {
		err = multierr.Append(err, i)
	}
	return err
}
