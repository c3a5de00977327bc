package dsl

import (
	"strings"

	"github.com/aretw0/knot/pkg/domain"
)

// Format renders spec in canonical binding syntax, e.g. "a > p : (b & c) > q".
// Inline transforms appear under their registered names.
func Format(spec *domain.Spec) string {
	if spec == nil {
		return ""
	}
	return FormatAccessPoint(spec.Left) + " : " + FormatAccessPoint(spec.Right)
}

// FormatAccessPoint renders a single access point.
func FormatAccessPoint(ap *domain.AccessPoint) string {
	if ap == nil {
		return ""
	}
	var sb strings.Builder
	if ap.Composite {
		sb.WriteByte('(')
		for i, child := range ap.Children {
			if i > 0 {
				sb.WriteString(" & ")
			}
			sb.WriteString(FormatAccessPoint(child))
		}
		sb.WriteString(") > ")
		sb.WriteString(ap.Aggregate)
		return sb.String()
	}

	sb.WriteString(ap.Name)
	for _, p := range ap.Pipes {
		sb.WriteString(" > ")
		sb.WriteString(p)
	}
	return sb.String()
}
