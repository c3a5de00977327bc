package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSyntax is wrapped by every ParseError.
	ErrSyntax = errors.New("invalid binding syntax")

	// ErrCompositeConflict is returned when both sides of a clause are composite.
	ErrCompositeConflict = errors.New("both sides of a binding are composite")

	// ErrNoProvider is returned when no registered provider claims an access point.
	ErrNoProvider = errors.New("no access point provider")

	// ErrUnknownSymbol is returned when a transform reference cannot be resolved.
	ErrUnknownSymbol = errors.New("unknown transform")

	// ErrNotTied is returned when untying a knot that is not tied.
	ErrNotTied = errors.New("knot is not tied")
)

// ParseError reports a malformed DSL clause. Other clauses of the same input are unaffected.
type ParseError struct {
	// Index is the zero-based position of the clause in the input.
	Index  int
	Clause string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Clause == "" {
		return fmt.Sprintf("%s: %s", ErrSyntax, e.Reason)
	}
	return fmt.Sprintf("%s in clause %d %q: %s", ErrSyntax, e.Index, e.Clause, e.Reason)
}

func (e *ParseError) Unwrap() error { return ErrSyntax }

// CompositeConflictError reports a clause whose two sides are both composite.
type CompositeConflictError struct {
	Index  int
	Clause string
}

func (e *CompositeConflictError) Error() string {
	if e.Clause == "" {
		return ErrCompositeConflict.Error()
	}
	return fmt.Sprintf("%s: clause %d %q", ErrCompositeConflict, e.Index, e.Clause)
}

func (e *CompositeConflictError) Unwrap() error { return ErrCompositeConflict }

// ResolutionError reports an access point no provider supports.
// It is a warning: the binding degrades to an inert no-op provider.
type ResolutionError struct {
	Name   string
	Target any
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s for %q on target %T", ErrNoProvider, e.Name, e.Target)
}

func (e *ResolutionError) Unwrap() error { return ErrNoProvider }

// SymbolError reports a transform reference that is not registered or not callable.
type SymbolError struct {
	Symbol string
	// AccessPoint is the name of the access point using the symbol, if known.
	AccessPoint string
}

func (e *SymbolError) Error() string {
	if e.AccessPoint == "" {
		return fmt.Sprintf("%s %q", ErrUnknownSymbol, e.Symbol)
	}
	return fmt.Sprintf("%s %q used by %q", ErrUnknownSymbol, e.Symbol, e.AccessPoint)
}

func (e *SymbolError) Unwrap() error { return ErrUnknownSymbol }

// Stage names the step of a propagation that failed.
type Stage string

const (
	StageRead      Stage = "read"
	StageTransform Stage = "transform"
	StageWrite     Stage = "write"
	StageMonitor   Stage = "monitor"
)

// PropagationError reports a failure while moving a value across a knot.
type PropagationError struct {
	Stage       Stage
	AccessPoint string
	Symbol      string
	Direction   Direction
	Err         error
}

func (e *PropagationError) Error() string {
	msg := fmt.Sprintf("%s %q failed", e.Stage, e.AccessPoint)
	if e.Symbol != "" {
		msg = fmt.Sprintf("%s %q on %q failed", e.Stage, e.Symbol, e.AccessPoint)
	}
	if e.Err == nil {
		return msg
	}
	return msg + ": " + e.Err.Error()
}

func (e *PropagationError) Unwrap() error { return e.Err }
