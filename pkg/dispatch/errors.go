package dispatch

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind classifies dispatch failures.
type Kind int

const (
	KindShapeConflict Kind = iota + 1
	KindArityMismatch
	KindNoCandidate
	KindBindingFailure
	KindAmbiguous
	KindNoMoreCandidates
	KindUnknownFunction
	KindInvalidSignature
)

var kindNames = map[Kind]string{
	KindShapeConflict:    "ShapeConflict",
	KindArityMismatch:    "ArityMismatch",
	KindNoCandidate:      "NoCandidateFound",
	KindBindingFailure:   "BindingFailure",
	KindAmbiguous:        "AmbiguousDispatch",
	KindNoMoreCandidates: "NoMoreCandidates",
	KindUnknownFunction:  "UnknownFunction",
	KindInvalidSignature: "InvalidSignature",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind parses the name produced by Kind.String.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if strings.EqualFold(name, s) {
			return k, true
		}
	}
	return 0, false
}

// Sentinels for errors.Is. Every *Error matches the sentinel of its Kind.
var (
	ErrShapeConflict    = errors.New("shape conflicts with proto")
	ErrArityMismatch    = errors.New("arity mismatch")
	ErrNoCandidate      = errors.New("no candidate found")
	ErrBindingFailure   = errors.New("binding failure")
	ErrAmbiguous        = errors.New("ambiguous dispatch")
	ErrNoMoreCandidates = errors.New("no more candidates")
	ErrUnknownFunction  = errors.New("unknown function")
	ErrInvalidSignature = errors.New("invalid signature")
)

func (k Kind) sentinel() error {
	switch k {
	case KindShapeConflict:
		return ErrShapeConflict
	case KindArityMismatch:
		return ErrArityMismatch
	case KindNoCandidate:
		return ErrNoCandidate
	case KindBindingFailure:
		return ErrBindingFailure
	case KindAmbiguous:
		return ErrAmbiguous
	case KindNoMoreCandidates:
		return ErrNoMoreCandidates
	case KindUnknownFunction:
		return ErrUnknownFunction
	case KindInvalidSignature:
		return ErrInvalidSignature
	}
	return nil
}

// Reason says why a single candidate was passed over.
type Reason int

const (
	ReasonArity Reason = iota + 1
	ReasonType
	ReasonBinding
	ReasonConstraint
)

func (r Reason) String() string {
	switch r {
	case ReasonArity:
		return "arity"
	case ReasonType:
		return "type"
	case ReasonBinding:
		return "binding"
	case ReasonConstraint:
		return "constraint"
	}
	return "unknown"
}

// Rejection records one candidate that did not match a call.
type Rejection struct {
	Candidate string
	Reason    Reason
	Detail    string
	// Err is set when a constraint itself failed.
	Err error
}

func (r Rejection) String() string {
	s := fmt.Sprintf("%s: %s: %s", r.Candidate, r.Reason, r.Detail)
	if r.Err != nil {
		s += ": " + r.Err.Error()
	}
	return s
}

// Error is returned for every dispatch failure.
type Error struct {
	Kind     Kind
	Function string
	// Shape is the argument type shape of the failing call, if any.
	Shape      string
	Message    string
	Rejections []Rejection
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Function)
	if e.Shape != "" {
		b.WriteString("(" + e.Shape + ")")
	}
	b.WriteString(": ")
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		b.WriteString(e.Kind.sentinel().Error())
	}
	for _, r := range e.Rejections {
		b.WriteString("\n  " + r.String())
	}
	return b.String()
}

func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of a dispatch error anywhere in err's chain.
func KindOf(err error) (Kind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return 0, false
}

// failure builds the error for a walk in which no candidate was accepted.
// Type rejections are only reported for single-candidate functions and
// arity rejections only when nothing else was tried.
func failure(fn string, args Args, total int, rejections []Rejection) *Error {
	var binding, arityN, other int
	var cause error
	for _, r := range rejections {
		switch r.Reason {
		case ReasonBinding:
			binding++
		case ReasonArity:
			arityN++
		default:
			other++
		}
		if cause == nil && r.Err != nil {
			cause = r.Err
		}
	}

	kind := KindNoCandidate
	switch {
	case binding > 0:
		kind = KindBindingFailure
	case arityN > 0 && other == 0:
		kind = KindArityMismatch
	}

	var reported []Rejection
	for _, r := range rejections {
		switch r.Reason {
		case ReasonArity:
			if kind != KindArityMismatch {
				continue
			}
		case ReasonType:
			if total != 1 {
				continue
			}
		}
		reported = append(reported, r)
	}

	return &Error{
		Kind:       kind,
		Function:   fn,
		Shape:      args.Shape(),
		Rejections: reported,
		Err:        cause,
	}
}
