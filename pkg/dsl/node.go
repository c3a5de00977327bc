package dsl

import "github.com/aretw0/knot/pkg/domain"

// SideBuilder provides a fluent API for configuring one access point.
type SideBuilder struct {
	ap domain.AccessPoint
}

// Side starts a simple access point on the named property.
func Side(name string) *SideBuilder {
	return &SideBuilder{ap: domain.AccessPoint{Name: name}}
}

// Composite starts a composite access point whose children feed aggregate.
func Composite(aggregate string, children ...*SideBuilder) *SideBuilder {
	sb := &SideBuilder{ap: domain.AccessPoint{Composite: true, Aggregate: aggregate}}
	for _, child := range children {
		if child == nil {
			continue
		}
		sb.ap.Children = append(sb.ap.Children, child.AccessPoint())
	}
	return sb
}

// Pipe appends transforms to the read pipe chain.
func (s *SideBuilder) Pipe(transforms ...string) *SideBuilder {
	s.ap.Pipes = append(s.ap.Pipes, transforms...)
	return s
}

// AccessPoint returns a copy of the configured descriptor.
func (s *SideBuilder) AccessPoint() *domain.AccessPoint {
	ap := s.ap
	ap.Pipes = append([]string(nil), s.ap.Pipes...)
	if s.ap.Children != nil {
		ap.Children = make([]*domain.AccessPoint, len(s.ap.Children))
		for i, child := range s.ap.Children {
			c := *child
			c.Pipes = append([]string(nil), child.Pipes...)
			ap.Children[i] = &c
		}
	}
	return &ap
}
