package validator

import (
	"fmt"
	"strings"

	"github.com/aretw0/knot/internal/compiler"
	"github.com/aretw0/knot/pkg/domain"
	"github.com/aretw0/knot/pkg/dsl"
	"github.com/aretw0/knot/pkg/symbols"
)

// ValidatePlan reports every problem of a compiled bindings plan: the issues
// found while compiling, transform references missing from table, and
// clauses bound twice between the same pair of entities.
func ValidatePlan(plan *compiler.Plan, table *symbols.Table) error {
	var errors []string
	for _, issue := range plan.Issues {
		errors = append(errors, issue.Error())
	}

	seen := make(map[string]string)
	for i, b := range plan.Bindings {
		for _, spec := range b.Specs {
			for _, ref := range spec.References() {
				if !table.Has(ref) {
					err := &domain.SymbolError{Symbol: ref}
					errors = append(errors, fmt.Sprintf("binding %d (%s): clause %q: %v", i, b.Label(), spec.Source, err))
				}
			}

			key := b.Left + "\x00" + b.Right + "\x00" + dsl.Format(spec)
			if prev, ok := seen[key]; ok {
				errors = append(errors, fmt.Sprintf("binding %d (%s): clause %q already bound by %s", i, b.Label(), spec.Source, prev))
				continue
			}
			seen[key] = b.Label()
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("found %d errors:\n- %s", len(errors), strings.Join(errors, "\n- "))
	}
	return nil
}
