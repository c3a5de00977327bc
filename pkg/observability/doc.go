/*
Package observability provides lifecycle hook implementations for monitoring and
inspecting knots.

Every observer exposes a domain.LifecycleHooks value; Combine fans a single
engine hook set out to several observers:

	hooks := observability.Combine(metrics.Hooks(), tracing.Hooks(), recorder.Hooks())
	eng := knot.New(knot.WithLifecycleHooks(hooks))

Metrics exports Prometheus counters, Tracing emits OpenTelemetry spans and
Recorder keeps the recent change history of every knot for the inspector.
*/
package observability
