package dsl

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/knot/pkg/domain"
	"github.com/aretw0/knot/pkg/ports"
	"github.com/aretw0/knot/pkg/symbols"
)

// Result is the outcome of parsing a binding string.
type Result struct {
	// Specs holds one spec per valid clause, in input order.
	Specs []*domain.Spec
	// Issues holds one error per dropped clause.
	Issues []error
}

// Err joins all issues, or returns nil when every clause parsed.
func (r *Result) Err() error {
	return errors.Join(r.Issues...)
}

// Parser converts binding text into specs.
type Parser struct {
	symbols   *symbols.Table
	evaluator ports.Evaluator
	logger    *slog.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithEvaluator enables inline transform blocks.
func WithEvaluator(e ports.Evaluator) Option {
	return func(p *Parser) {
		p.evaluator = e
	}
}

// WithLogger sets the logger used to report dropped clauses.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Parser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewParser creates a parser registering inline transforms into table.
func NewParser(table *symbols.Table, opts ...Option) *Parser {
	if table == nil {
		table = symbols.NewTable()
	}
	p := &Parser{
		symbols: table,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse parses input into a Result. Clauses are separated by ';'; empty clauses
// are skipped, so a trailing ';' is allowed.
func Parse(input string) *Result {
	return NewParser(symbols.Default()).Parse(input)
}

// Parse parses input into a Result.
func (p *Parser) Parse(input string) *Result {
	res := &Result{}
	index := 0
	for _, raw := range splitClauses(input) {
		clause := strings.TrimSpace(raw)
		if clause == "" {
			continue
		}

		spec, err := p.parseClause(clause)
		if err != nil {
			err = withClause(err, index, clause)
			p.logger.Warn("binding clause dropped", "clause", clause, "err", err)
			res.Issues = append(res.Issues, err)
		} else {
			res.Specs = append(res.Specs, spec)
		}
		index++
	}
	return res
}

func (p *Parser) parseClause(clause string) (*domain.Spec, error) {
	if problem := checkBalanced(clause); problem != "" {
		return nil, &domain.ParseError{Reason: problem}
	}

	sides := splitTopLevel(clause, ':', true)
	if len(sides) != 2 {
		return nil, &domain.ParseError{Reason: fmt.Sprintf("expected exactly one ':' between two access points, found %d", len(sides)-1)}
	}

	left, err := parseSide(sides[0])
	if err != nil {
		return nil, err
	}
	right, err := parseSide(sides[1])
	if err != nil {
		return nil, err
	}

	spec := &domain.Spec{Left: left, Right: right, Source: clause}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	// Inline blocks are compiled only once the clause is known to be valid.
	if err := p.bindInline(spec); err != nil {
		return nil, err
	}
	return spec, nil
}

func parseSide(expr string) (*domain.AccessPoint, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, &domain.ParseError{Reason: "empty access point"}
	}
	if expr[0] != '(' {
		return parseSimple(expr)
	}

	end := closingParen(expr, 0)
	if end < 0 {
		return nil, &domain.ParseError{Reason: "unclosed '('"}
	}

	rest := strings.TrimSpace(expr[end+1:])
	if !strings.HasPrefix(rest, ">") {
		return nil, &domain.ParseError{Reason: "composite access point must be followed by '>' and an aggregate transform"}
	}
	aggregate := strings.TrimSpace(rest[1:])
	if aggregate == "" {
		return nil, &domain.ParseError{Reason: "empty aggregate transform"}
	}
	if len(splitTopLevel(aggregate, '>', true)) > 1 {
		return nil, &domain.ParseError{Reason: "composite access point takes exactly one aggregate transform"}
	}
	if !isTransform(aggregate) {
		return nil, &domain.ParseError{Reason: fmt.Sprintf("invalid aggregate transform %q", aggregate)}
	}

	ap := &domain.AccessPoint{Composite: true, Aggregate: aggregate}
	for _, part := range splitTopLevel(expr[1:end], '&', true) {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "(") {
			return nil, &domain.ParseError{Reason: "composite access points cannot be nested"}
		}
		child, err := parseSimple(part)
		if err != nil {
			return nil, err
		}
		ap.Children = append(ap.Children, child)
	}
	return ap, nil
}

func parseSimple(expr string) (*domain.AccessPoint, error) {
	tokens := splitTopLevel(expr, '>', true)

	name := strings.TrimSpace(tokens[0])
	if name == "" {
		return nil, &domain.ParseError{Reason: "empty access point name"}
	}
	if !isIdentifier(name) {
		return nil, &domain.ParseError{Reason: fmt.Sprintf("invalid access point name %q", name)}
	}

	ap := &domain.AccessPoint{Name: name}
	for _, raw := range tokens[1:] {
		tok := strings.TrimSpace(raw)
		if tok == "" {
			return nil, &domain.ParseError{Reason: fmt.Sprintf("empty transform in pipe chain of %q", name)}
		}
		if !isTransform(tok) {
			return nil, &domain.ParseError{Reason: fmt.Sprintf("invalid transform %q", tok)}
		}
		ap.Pipes = append(ap.Pipes, tok)
	}
	return ap, nil
}

func isTransform(tok string) bool {
	return isInline(tok) || isIdentifier(tok)
}

// bindInline compiles every inline block of the spec and replaces it with the
// name it was registered under. Nothing is registered if any block fails.
func (p *Parser) bindInline(spec *domain.Spec) error {
	var refs []*string
	collect := func(ap *domain.AccessPoint) {
		for i := range ap.Pipes {
			refs = append(refs, &ap.Pipes[i])
		}
	}
	for _, side := range []*domain.AccessPoint{spec.Left, spec.Right} {
		if !side.Composite {
			collect(side)
			continue
		}
		for _, child := range side.Children {
			collect(child)
		}
		refs = append(refs, &side.Aggregate)
	}

	type compiled struct {
		ref *string
		fn  ports.CompiledFunc
	}
	var blocks []compiled
	for _, ref := range refs {
		if !isInline(*ref) {
			continue
		}
		if p.evaluator == nil {
			return &domain.ParseError{Reason: "inline transform requires an evaluator"}
		}
		code := strings.TrimSpace((*ref)[1 : len(*ref)-1])
		fn, err := p.evaluator.Compile(code)
		if err != nil {
			return &domain.ParseError{Reason: fmt.Sprintf("compile inline transform %q: %v", code, err)}
		}
		blocks = append(blocks, compiled{ref: ref, fn: fn})
	}

	for _, b := range blocks {
		fn := b.fn
		*b.ref = p.symbols.RegisterInline(func(_ *domain.AccessPoint, value any) (any, error) {
			return fn(value)
		})
	}
	return nil
}

// withClause stamps the clause position onto parse-level errors.
func withClause(err error, index int, clause string) error {
	var parseErr *domain.ParseError
	if errors.As(err, &parseErr) {
		parseErr.Index = index
		parseErr.Clause = clause
		return parseErr
	}
	var conflict *domain.CompositeConflictError
	if errors.As(err, &conflict) {
		conflict.Index = index
		conflict.Clause = clause
		return conflict
	}
	return err
}
