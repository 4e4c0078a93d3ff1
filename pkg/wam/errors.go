package wam

import "fmt"

// ErrClass enumerates the engine's error taxonomy.
type ErrClass uint8

const (
	ErrInstantiation ErrClass = iota
	ErrType
	ErrDomain
	ErrRepresentation
	ErrExistence
	ErrUsageFault
	ErrSeriousFault
)

func (c ErrClass) String() string {
	switch c {
	case ErrInstantiation:
		return "instantiation_error"
	case ErrType:
		return "type_error"
	case ErrDomain:
		return "domain_error"
	case ErrRepresentation:
		return "representation_error"
	case ErrExistence:
		return "existence_error"
	case ErrUsageFault:
		return "usage_fault"
	case ErrSeriousFault:
		return "serious_fault"
	default:
		return "unknown_error"
	}
}

// EngineError is the error term written by a primitive and surfaced to
// the nearest catch, or — for ErrSeriousFault — escalated to the abort
// recovery loop in the goal scheduler.
type EngineError struct {
	Class ErrClass
	Info  string // Expected/Domain/Which qualifier, when applicable
	Msg   string
	cause error
}

func (e *EngineError) Error() string {
	if e.Info != "" {
		return fmt.Sprintf("%s(%s): %s", e.Class, e.Info, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Class, e.Msg)
}

func (e *EngineError) Unwrap() error { return e.cause }

// Serious reports whether this error must trigger abort recovery rather
// than ordinary catch-based propagation.
func (e *EngineError) Serious() bool { return e.Class == ErrSeriousFault }

func newErr(class ErrClass, info, msg string) *EngineError {
	return &EngineError{Class: class, Info: info, Msg: msg}
}

func newInstantiationErr(msg string) *EngineError { return newErr(ErrInstantiation, "", msg) }
func newTypeErr(expected, msg string) *EngineError { return newErr(ErrType, expected, msg) }
func newDomainErr(msg string) *EngineError          { return newErr(ErrDomain, "", msg) }
func newDomainErrIn(domain, msg string) *EngineError {
	return newErr(ErrDomain, domain, msg)
}
func newRepresentationErr(which, msg string) *EngineError {
	return newErr(ErrRepresentation, which, msg)
}
func newExistenceErr(msg string) *EngineError  { return newErr(ErrExistence, "", msg) }
func newUsageFault(msg string) *EngineError    { return newErr(ErrUsageFault, "", msg) }
func newSeriousFault(msg string) *EngineError  { return newErr(ErrSeriousFault, "", msg) }
