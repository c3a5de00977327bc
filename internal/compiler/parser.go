package compiler

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/knot/internal/dto"
	"github.com/aretw0/knot/pkg/domain"
	"github.com/aretw0/knot/pkg/dsl"
	"github.com/aretw0/knot/pkg/ports"
	"github.com/aretw0/knot/pkg/symbols"
)

// ErrNoEvaluator is returned when a bindings file declares transforms but no
// evaluator was configured to compile them.
var ErrNoEvaluator = errors.New("transforms declared without an evaluator")

// Binding is a bindings file entry with its clauses parsed.
type Binding struct {
	dto.Binding
	Specs []*domain.Spec
}

// Plan is the compiled form of a bindings file.
type Plan struct {
	// Transforms lists the symbols registered from the file, sorted.
	Transforms []string
	Bindings   []Binding
	// Issues collects every non-fatal problem: transforms that failed to
	// compile, clauses that were dropped, entries with missing entities.
	Issues []error
}

// Err joins the plan issues, or returns nil when there are none.
func (p *Plan) Err() error {
	return errors.Join(p.Issues...)
}

// Specs counts the parsed clauses across all bindings.
func (p *Plan) Specs() int {
	n := 0
	for _, b := range p.Bindings {
		n += len(b.Specs)
	}
	return n
}

// Parser turns bindings documents into plans.
type Parser struct {
	symbols   *symbols.Table
	evaluator ports.Evaluator
	logger    *slog.Logger
}

// Option configures the Parser.
type Option func(*Parser)

// WithEvaluator compiles the file's transforms and inline blocks.
func WithEvaluator(e ports.Evaluator) Option {
	return func(p *Parser) {
		p.evaluator = e
	}
}

// WithLogger sets the logger for dropped clauses and transforms.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Parser) {
		p.logger = logger
	}
}

// NewParser creates a parser registering transforms into table.
func NewParser(table *symbols.Table, opts ...Option) *Parser {
	p := &Parser{
		symbols: table,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Decode reads a YAML bindings document.
// Unknown keys are rejected so typos do not silently drop bindings.
func Decode(data []byte) (*dto.BindingsFile, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse bindings file: %w", err)
	}

	var file dto.BindingsFile
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &file,
		ErrorUnused: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("failed to decode bindings file: %w", err)
	}
	return &file, nil
}

// Parse decodes data and compiles it into a Plan. Only a document that
// cannot be decoded is an error; everything else is reported in Plan.Issues.
func (p *Parser) Parse(data []byte) (*Plan, error) {
	file, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return p.Compile(file), nil
}

// Compile registers the file transforms and parses every binding.
func (p *Parser) Compile(file *dto.BindingsFile) *Plan {
	plan := &Plan{}
	p.registerTransforms(file.Transforms, plan)

	parser := dsl.NewParser(p.symbols, dsl.WithEvaluator(p.evaluator), dsl.WithLogger(p.logger))
	for i, entry := range file.Bindings {
		b := Binding{Binding: entry}
		if strings.TrimSpace(entry.Left) == "" || strings.TrimSpace(entry.Right) == "" {
			plan.Issues = append(plan.Issues, fmt.Errorf("binding %d (%s): left and right are required", i, entry.Label()))
			continue
		}

		res := parser.Parse(entry.Spec)
		for _, issue := range res.Issues {
			plan.Issues = append(plan.Issues, fmt.Errorf("binding %d (%s): %w", i, entry.Label(), issue))
		}
		if len(res.Specs) == 0 && len(res.Issues) == 0 {
			plan.Issues = append(plan.Issues, fmt.Errorf("binding %d (%s): no clauses", i, entry.Label()))
		}
		b.Specs = res.Specs
		plan.Bindings = append(plan.Bindings, b)
	}
	return plan
}

func (p *Parser) registerTransforms(snippets map[string]string, plan *Plan) {
	if len(snippets) == 0 {
		return
	}
	if p.evaluator == nil {
		plan.Issues = append(plan.Issues, ErrNoEvaluator)
		return
	}

	names := make([]string, 0, len(snippets))
	for name := range snippets {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fn, err := p.evaluator.Compile(snippets[name])
		if err != nil {
			p.logger.Warn("transform dropped", "symbol", name, "err", err)
			plan.Issues = append(plan.Issues, fmt.Errorf("transform %q: %w", name, err))
			continue
		}
		transform := func(_ *domain.AccessPoint, v any) (any, error) { return fn(v) }
		if err := p.symbols.Register(name, transform); err != nil {
			plan.Issues = append(plan.Issues, fmt.Errorf("transform %q: %w", name, err))
			continue
		}
		plan.Transforms = append(plan.Transforms, name)
	}
}
