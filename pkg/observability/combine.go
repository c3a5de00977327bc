package observability

import (
	"context"

	"github.com/aretw0/knot/pkg/domain"
)

// Combine merges several hook sets into one. Hooks run in argument order;
// nil hooks are skipped.
func Combine(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	var (
		onTie    []func(context.Context, *domain.KnotEvent)
		onUntie  []func(context.Context, *domain.KnotEvent)
		onChange []func(context.Context, *domain.ChangeEvent)
		onError  []func(context.Context, *domain.ErrorEvent)
	)
	for _, h := range sets {
		if h.OnTie != nil {
			onTie = append(onTie, h.OnTie)
		}
		if h.OnUntie != nil {
			onUntie = append(onUntie, h.OnUntie)
		}
		if h.OnChange != nil {
			onChange = append(onChange, h.OnChange)
		}
		if h.OnError != nil {
			onError = append(onError, h.OnError)
		}
	}

	return domain.LifecycleHooks{
		OnTie:    fanOut(onTie),
		OnUntie:  fanOut(onUntie),
		OnChange: fanOut(onChange),
		OnError:  fanOut(onError),
	}
}

func fanOut[E any](fns []func(context.Context, E)) func(context.Context, E) {
	switch len(fns) {
	case 0:
		return nil
	case 1:
		return fns[0]
	}
	return func(ctx context.Context, e E) {
		for _, fn := range fns {
			fn(ctx, e)
		}
	}
}
