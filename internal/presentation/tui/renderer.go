package tui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"github.com/aretw0/knot/pkg/domain"
	"github.com/aretw0/knot/pkg/dsl"
)

// NewRenderer returns a function that renders markdown using glamour.
func NewRenderer() func(string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // Automatically detect light/dark background
	)
	if err != nil {
		return func(markdown string) (string, error) { return markdown, nil }
	}

	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// SpecsTable renders parsed clauses as a markdown table.
func SpecsTable(specs []*domain.Spec) string {
	var sb strings.Builder
	sb.WriteString("| # | Left | Right | Kind | Transforms |\n")
	sb.WriteString("|---|------|-------|------|------------|\n")
	for i, spec := range specs {
		kind := "simple"
		switch {
		case spec.Left.Composite:
			kind = "composite (left)"
		case spec.Right.Composite:
			kind = "composite (right)"
		}
		fmt.Fprintf(&sb, "| %d | `%s` | `%s` | %s | %s |\n",
			i,
			cell(dsl.FormatAccessPoint(spec.Left)),
			cell(dsl.FormatAccessPoint(spec.Right)),
			kind,
			cell(strings.Join(spec.References(), ", ")),
		)
	}
	return sb.String()
}

// IssuesList renders dropped clauses as a markdown list.
func IssuesList(issues []error) string {
	if len(issues) == 0 {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "**%d clause(s) dropped**\n\n", len(issues))
	for _, issue := range issues {
		fmt.Fprintf(&sb, "- %s\n", cell(issue.Error()))
	}
	return sb.String()
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
