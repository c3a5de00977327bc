package middleware

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/aretw0/knot/pkg/ports"
)

// Mask replaces values of masked access points and map keys.
const Mask = "***"

// ErrMasked is returned when writing an access point the PII middleware masks.
var ErrMasked = errors.New("access point is masked")

type piiMiddleware struct {
	wrapped
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks values of access points and
// nested map keys matching the patterns. Masked access points are read-only,
// so the mask can never be written back to the source.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid mask pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.Provider) ports.Provider {
		return &piiMiddleware{wrapped: wrapped{next: next}, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) GetValue(ctx context.Context, target any, name string) (any, error) {
	value, err := m.next.GetValue(ctx, target, name)
	if err != nil || value == nil {
		return value, err
	}
	if m.masked(name) {
		return Mask, nil
	}

	// Deep clone so the provider's own value is untouched.
	if sub, ok := value.(map[string]any); ok {
		cloned := deepCopyMap(sub)
		m.maskMap(cloned)
		return cloned, nil
	}
	return value, nil
}

func (m *piiMiddleware) SetValue(ctx context.Context, target any, name string, value any) error {
	if m.masked(name) {
		return fmt.Errorf("%w: %s", ErrMasked, name)
	}
	return m.next.SetValue(ctx, target, name, value)
}

func (m *piiMiddleware) masked(key string) bool {
	for _, p := range m.patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}

// Helpers

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if subMap, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(subMap)
		} else {
			out[k] = v // shallow copy of value
		}
	}
	return out
}

func (m *piiMiddleware) maskMap(values map[string]any) {
	for k, v := range values {
		if m.masked(k) {
			values[k] = Mask
			continue
		}
		if subMap, ok := v.(map[string]any); ok {
			m.maskMap(subMap)
		}
	}
}
