package dsl

import (
	"errors"
	"fmt"

	"github.com/aretw0/knot/pkg/domain"
)

// Builder collects specs built without going through the text parser.
type Builder struct {
	pairs [][2]*SideBuilder
}

// New creates a new spec builder.
func New() *Builder {
	return &Builder{}
}

// Bind adds a clause keeping left in sync with right.
func (b *Builder) Bind(left, right *SideBuilder) *Builder {
	b.pairs = append(b.pairs, [2]*SideBuilder{left, right})
	return b
}

// Build validates every clause and returns the specs in insertion order.
func (b *Builder) Build() ([]*domain.Spec, error) {
	specs := make([]*domain.Spec, 0, len(b.pairs))
	var errs []error
	for i, pair := range b.pairs {
		spec, err := Bind(pair[0], pair[1])
		if err != nil {
			errs = append(errs, fmt.Errorf("clause %d: %w", i, err))
			continue
		}
		specs = append(specs, spec)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return specs, nil
}

// Bind validates a single clause and returns its spec.
func Bind(left, right *SideBuilder) (*domain.Spec, error) {
	if left == nil || right == nil {
		return nil, &domain.ParseError{Reason: "missing access point"}
	}
	spec := &domain.Spec{Left: left.AccessPoint(), Right: right.AccessPoint()}
	spec.Source = Format(spec)
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}
