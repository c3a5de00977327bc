package domain

import "strings"

// AccessPoint describes one side of a binding.
//
// A simple access point names a property on a target entity and lists the
// transforms applied to values read from it. A composite access point has no
// name of its own: its value is the Aggregate transform applied to the values of
// its Children, read in declared order.
type AccessPoint struct {
	// Name identifies the property on the target. It is opaque to the engine
	// and passed through to the provider (e.g. "#regOption.selectedIndex").
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Pipes are transform references applied left to right on read.
	Pipes []string `json:"pipes,omitempty" yaml:"pipes,omitempty"`

	Composite bool           `json:"composite,omitempty" yaml:"composite,omitempty"`
	Children  []*AccessPoint `json:"children,omitempty" yaml:"children,omitempty"`
	// Aggregate is the N-to-1 transform fed with the children's values.
	Aggregate string `json:"aggregate,omitempty" yaml:"aggregate,omitempty"`
}

// Validate checks the structural invariants of the descriptor.
func (ap *AccessPoint) Validate() error {
	if ap == nil {
		return &ParseError{Reason: "missing access point"}
	}
	if !ap.Composite {
		if strings.TrimSpace(ap.Name) == "" {
			return &ParseError{Reason: "empty access point name"}
		}
		for _, p := range ap.Pipes {
			if strings.TrimSpace(p) == "" {
				return &ParseError{Reason: "empty transform in pipe chain of " + ap.Name}
			}
		}
		return nil
	}

	if len(ap.Pipes) > 0 {
		return &ParseError{Reason: "composite access point cannot carry pipes"}
	}
	if len(ap.Children) == 0 {
		return &ParseError{Reason: "composite access point needs at least one child"}
	}
	if strings.TrimSpace(ap.Aggregate) == "" {
		return &ParseError{Reason: "composite access point needs an aggregate transform"}
	}
	for _, child := range ap.Children {
		if child == nil {
			return &ParseError{Reason: "missing composite child"}
		}
		if child.Composite {
			return &ParseError{Reason: "composite access points cannot be nested"}
		}
		if err := child.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// References returns every transform name the descriptor depends on,
// children first, aggregate last.
func (ap *AccessPoint) References() []string {
	if ap == nil {
		return nil
	}
	if !ap.Composite {
		return append([]string(nil), ap.Pipes...)
	}
	var refs []string
	for _, child := range ap.Children {
		refs = append(refs, child.References()...)
	}
	return append(refs, ap.Aggregate)
}

// Spec is one binding clause: the left access point is kept in sync with the right one.
type Spec struct {
	Left  *AccessPoint `json:"left" yaml:"left"`
	Right *AccessPoint `json:"right" yaml:"right"`

	// Source is the clause text the spec was parsed from, if any.
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
}

// Validate checks both sides and the at-most-one-composite rule.
func (s *Spec) Validate() error {
	if s == nil {
		return &ParseError{Reason: "missing binding spec"}
	}
	if err := s.Left.Validate(); err != nil {
		return err
	}
	if err := s.Right.Validate(); err != nil {
		return err
	}
	if s.Left.Composite && s.Right.Composite {
		return &CompositeConflictError{Clause: s.Source}
	}
	return nil
}

// References returns every transform name used by either side.
func (s *Spec) References() []string {
	return append(s.Left.References(), s.Right.References()...)
}

// Direction tells which way a value travelled through a knot.
type Direction string

const (
	// LeftToRight is a change observed on the left side written to the right side.
	LeftToRight Direction = "left_to_right"
	// RightToLeft is a change observed on the right side written to the left side.
	// The initial value of a simple knot always travels this way.
	RightToLeft Direction = "right_to_left"
)
