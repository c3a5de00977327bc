package runtime

import (
	"context"
	"errors"
	"reflect"

	"github.com/aretw0/knot/pkg/domain"
	"github.com/aretw0/knot/pkg/dsl"
)

// Pending work flags. A notification only records which propagation is due;
// whoever holds the knot's guard runs it.
const (
	pendingLeftToRight uint32 = 1 << iota
	pendingRightToLeft
	pendingAggregate
)

// onChange handles a change notification on one side of a simple knot.
// Notifications carry no context, so propagation runs under a background one.
func (k *Knot) onChange(dir domain.Direction) {
	bit := pendingRightToLeft
	if dir == domain.LeftToRight {
		bit = pendingLeftToRight
	}
	k.notify(bit)
}

func (k *Knot) onAggregateChange() { k.notify(pendingAggregate) }

func (k *Knot) notify(bit uint32) {
	if !k.tied.Load() {
		return
	}
	ctx := context.Background()
	if err := k.schedule(ctx, bit); err != nil {
		k.manager.reportError(ctx, k, err, false)
	}
}

// schedule marks bit as pending and drains the pending work unless another
// goroutine already holds the guard. That goroutine re-checks the pending set
// after releasing the guard, so a change that overlaps a running propagation
// is deferred, never lost.
func (k *Knot) schedule(ctx context.Context, bit uint32) error {
	k.pending.Or(bit)

	var errs []error
	for k.inFlight.CompareAndSwap(false, true) {
		if err := k.drain(ctx, k.pending.Swap(0)); err != nil {
			errs = append(errs, err)
		}
		k.inFlight.Store(false)
		if k.pending.Load() == 0 {
			break
		}
	}
	return errors.Join(errs...)
}

func (k *Knot) drain(ctx context.Context, bits uint32) error {
	if !k.tied.Load() {
		return nil
	}
	var errs []error
	if bits&pendingAggregate != 0 {
		errs = append(errs, k.aggregate(ctx))
	}
	if bits&pendingLeftToRight != 0 {
		errs = append(errs, k.propagate(ctx, k.leftSide, k.rightSide, domain.LeftToRight))
	}
	if bits&pendingRightToLeft != 0 {
		errs = append(errs, k.propagate(ctx, k.rightSide, k.leftSide, domain.RightToLeft))
	}
	return errors.Join(errs...)
}

// propagate reads from through its pipes and writes the result into to.
// When from still holds exactly what the knot last wrote into it, the change
// is the echo of that write and is dropped.
func (k *Knot) propagate(ctx context.Context, from, to *side, dir domain.Direction) error {
	raw, err := from.provider.GetValue(ctx, from.target, from.ap.Name)
	if err != nil {
		return withDirection(&domain.PropagationError{Stage: domain.StageRead, AccessPoint: from.ap.Name, Err: err}, dir)
	}
	if from.wrote && reflect.DeepEqual(raw, from.written) {
		k.suppressed.Add(1)
		k.manager.logger.DebugContext(ctx, "echo suppressed", "knot_id", k.id, "ap", from.ap.Name, "direction", dir)
		return nil
	}
	// from now holds a value the knot did not write.
	from.wrote, from.written = false, nil

	value, err := k.manager.applyPipes(from, raw)
	if err != nil {
		return withDirection(err, dir)
	}
	return k.deliver(ctx, to, value, dir)
}

// aggregate reads every child in declared order, feeds the whole slice to the
// aggregate transform and writes the result into the plain side. A result
// equal to the last one written is not written again.
func (k *Knot) aggregate(ctx context.Context) error {
	values := make([]any, len(k.children))
	for i, child := range k.children {
		v, err := k.manager.readThroughPipes(ctx, child)
		if err != nil {
			return withDirection(err, k.direction)
		}
		values[i] = v
	}

	fn, err := k.manager.symbols.Resolve(k.composite.Aggregate)
	if err != nil {
		return &domain.PropagationError{Stage: domain.StageTransform, AccessPoint: label(k.composite), Symbol: k.composite.Aggregate, Direction: k.direction, Err: err}
	}
	out, err := fn(k.composite, values)
	if err != nil {
		return &domain.PropagationError{Stage: domain.StageTransform, AccessPoint: label(k.composite), Symbol: k.composite.Aggregate, Direction: k.direction, Err: err}
	}
	if k.plain.wrote && reflect.DeepEqual(out, k.plain.written) {
		return nil
	}
	return k.deliver(ctx, k.plain, out, k.direction)
}

func (k *Knot) deliver(ctx context.Context, to *side, value any, dir domain.Direction) error {
	if err := to.provider.SetValue(ctx, to.target, to.ap.Name, value); err != nil {
		return &domain.PropagationError{Stage: domain.StageWrite, AccessPoint: to.ap.Name, Direction: dir, Err: err}
	}
	to.wrote, to.written = true, value
	k.propagations.Add(1)
	k.manager.logger.DebugContext(ctx, "value propagated", "knot_id", k.id, "ap", to.ap.Name, "direction", dir)
	k.manager.emitChange(ctx, k, value, dir)
	return nil
}

// readThroughPipes gets the raw value of a side and applies its pipes in
// order. An unresolved transform stops the read without being invoked.
func (m *Manager) readThroughPipes(ctx context.Context, s *side) (any, error) {
	value, err := s.provider.GetValue(ctx, s.target, s.ap.Name)
	if err != nil {
		return nil, &domain.PropagationError{Stage: domain.StageRead, AccessPoint: s.ap.Name, Err: err}
	}
	return m.applyPipes(s, value)
}

// applyPipes is the only place pipes run.
func (m *Manager) applyPipes(s *side, value any) (any, error) {
	for _, name := range s.ap.Pipes {
		fn, err := m.symbols.Resolve(name)
		if err != nil {
			return nil, &domain.PropagationError{Stage: domain.StageTransform, AccessPoint: s.ap.Name, Symbol: name, Err: err}
		}
		value, err = fn(s.ap, value)
		if err != nil {
			return nil, &domain.PropagationError{Stage: domain.StageTransform, AccessPoint: s.ap.Name, Symbol: name, Err: err}
		}
	}
	return value, nil
}

func withDirection(err error, dir domain.Direction) error {
	var pe *domain.PropagationError
	if errors.As(err, &pe) && pe.Direction == "" {
		pe.Direction = dir
	}
	return err
}

// label names an access point in diagnostics. Composites have no name of their own.
func label(ap *domain.AccessPoint) string {
	if ap.Name != "" {
		return ap.Name
	}
	return dsl.FormatAccessPoint(ap)
}

func (m *Manager) reportError(ctx context.Context, k *Knot, err error, fatal bool) {
	if fatal {
		m.logger.ErrorContext(ctx, "knot error", "knot_id", k.id, "err", err)
	} else {
		m.logger.WarnContext(ctx, "knot warning", "knot_id", k.id, "err", err)
	}
	if m.hooks.OnError == nil {
		return
	}
	ev := &domain.ErrorEvent{KnotEvent: k.event(domain.EventError), Err: err, Fatal: fatal}
	m.hooks.OnError(ctx, ev)
}

func (m *Manager) emitTie(ctx context.Context, k *Knot) {
	if m.hooks.OnTie == nil {
		return
	}
	ev := k.event(domain.EventTie)
	m.hooks.OnTie(ctx, &ev)
}

func (m *Manager) emitUntie(ctx context.Context, k *Knot) {
	if m.hooks.OnUntie == nil {
		return
	}
	ev := k.event(domain.EventUntie)
	m.hooks.OnUntie(ctx, &ev)
}

func (m *Manager) emitChange(ctx context.Context, k *Knot, value any, dir domain.Direction) {
	if m.hooks.OnChange == nil {
		return
	}
	ev := &domain.ChangeEvent{KnotEvent: k.event(domain.EventChange), Value: value, Direction: dir}
	m.hooks.OnChange(ctx, ev)
}
