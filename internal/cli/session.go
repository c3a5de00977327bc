package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/knot"
	"github.com/aretw0/knot/internal/compiler"
	redisadapter "github.com/aretw0/knot/pkg/adapters/redis"
)

// Session is one load of the bindings file: its engine and the knots it tied
// between Redis entities.
type Session struct {
	Path   string
	Engine *knot.Engine
	Plan   *compiler.Plan
	Knots  []*knot.Knot
}

// Open compiles path and ties every binding, replacing the current session.
// When the file cannot be read or decoded the current session stays tied.
func (rt *Runtime) Open(ctx context.Context, path string) (*Session, error) {
	engine, plan, err := rt.compile(path)
	if err != nil {
		return nil, err
	}

	if prev := rt.session.Swap(nil); prev != nil {
		if err := prev.Close(ctx); err != nil {
			rt.logger.Warn("Previous bindings did not untie cleanly", "err", err)
		}
	}

	s := &Session{Path: path, Engine: engine, Plan: plan}
	tieErr := s.tie(ctx)
	rt.session.Store(s)

	rt.logger.Info("Bindings tied",
		"path", path,
		"bindings", len(plan.Bindings),
		"knots", len(s.Knots),
		"issues", len(plan.Issues),
	)
	if tieErr != nil {
		rt.logger.Warn("Some clauses could not be tied", "err", tieErr)
	}
	return s, tieErr
}

func (s *Session) tie(ctx context.Context) error {
	var errs []error
	for _, b := range s.Plan.Bindings {
		left, right := redisadapter.Key(b.Left), redisadapter.Key(b.Right)
		for _, spec := range b.Specs {
			k, err := s.Engine.Tie(ctx, left, right, spec)
			if k != nil {
				s.Knots = append(s.Knots, k)
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: tie %q: %w", b.Label(), spec.Source, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Close unties every knot of the session.
func (s *Session) Close(ctx context.Context) error {
	return s.Engine.UntieAll(ctx, s.Knots...)
}
