package observability

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/knot/pkg/domain"
	"github.com/aretw0/knot/pkg/dsl"
)

const (
	// DefaultHistory is the number of changes kept per knot.
	DefaultHistory = 32
	// DefaultLog is the number of changes kept across all knots.
	DefaultLog = 256
	// DefaultRetainUntied is the number of untied knot records kept.
	DefaultRetainUntied = 64
)

// Status of a recorded knot.
const (
	StatusTied   = "tied"
	StatusUntied = "untied"
)

// Change is one recorded propagation.
type Change struct {
	// Seq increases monotonically across every knot of the recorder.
	Seq       uint64           `json:"seq"`
	KnotID    string           `json:"knot_id"`
	Value     any              `json:"value"`
	Direction domain.Direction `json:"direction"`
	Timestamp time.Time        `json:"timestamp"`
}

// KnotRecord is the inspection view of one knot.
type KnotRecord struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	TiedAt      time.Time  `json:"tied_at"`
	UntiedAt    *time.Time `json:"untied_at,omitempty"`
	Latest      *Change    `json:"latest,omitempty"`
	History     []Change   `json:"history,omitempty"`
	Errors      int        `json:"errors"`
	LastError   string     `json:"last_error,omitempty"`
}

// Event is published to recorder subscribers.
type Event struct {
	Type   domain.EventType `json:"type"`
	KnotID string           `json:"knot_id"`
	Change *Change          `json:"change,omitempty"`
	Error  string           `json:"error,omitempty"`
	// Missed is the number of events the subscriber lost to a full buffer
	// just before this one.
	Missed uint64 `json:"missed,omitempty"`
}

// Recorder keeps the recent history of every knot it observes.
type Recorder struct {
	mu      sync.RWMutex
	knots   map[string]*KnotRecord
	order   []string
	untied  []string // untie order, oldest first
	log     []Change
	seq     uint64
	history int
	logSize int
	retain  int
	buffer  int

	events *eventFeed
}

// RecorderOption configures the Recorder.
type RecorderOption func(*Recorder)

// WithHistory sets how many changes are kept per knot.
func WithHistory(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.history = n
		}
	}
}

// WithLogSize sets how many changes are kept in the global log.
func WithLogSize(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.logSize = n
		}
	}
}

// WithRetainUntied sets how many untied knot records are kept. Older ones are
// evicted so that repeated reloads do not grow the recorder without bound.
func WithRetainUntied(n int) RecorderOption {
	return func(r *Recorder) {
		if n >= 0 {
			r.retain = n
		}
	}
}

// WithEventBuffer sets how many events each subscriber may fall behind before
// it starts missing them.
func WithEventBuffer(n int) RecorderOption {
	return func(r *Recorder) {
		r.buffer = n
	}
}

// NewRecorder creates an empty recorder.
func NewRecorder(opts ...RecorderOption) *Recorder {
	r := &Recorder{
		knots:   make(map[string]*KnotRecord),
		history: DefaultHistory,
		logSize: DefaultLog,
		retain:  DefaultRetainUntied,
	}
	buffer := DefaultEventBuffer
	for _, opt := range opts {
		opt(r)
	}
	if r.buffer > 0 {
		buffer = r.buffer
	}
	r.events = newEventFeed(buffer)
	return r
}

// Hooks returns the lifecycle hooks feeding the recorder.
func (r *Recorder) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTie:    func(_ context.Context, e *domain.KnotEvent) { r.tie(e) },
		OnUntie:  func(_ context.Context, e *domain.KnotEvent) { r.untie(e) },
		OnChange: func(_ context.Context, e *domain.ChangeEvent) { r.change(e) },
		OnError:  func(_ context.Context, e *domain.ErrorEvent) { r.fail(e) },
	}
}

// Subscribe streams recorder events until ctx is cancelled or the recorder
// is closed.
func (r *Recorder) Subscribe(ctx context.Context) <-chan Event {
	return r.events.subscribe(ctx)
}

// Subscribers returns the number of open subscriptions.
func (r *Recorder) Subscribers() int { return r.events.count() }

// Dropped counts events lost across all subscribers.
func (r *Recorder) Dropped() uint64 { return r.events.dropped.Load() }

// Close stops every subscription.
func (r *Recorder) Close() {
	r.events.close()
}

// Knots returns every recorded knot in tie order.
func (r *Recorder) Knots() []KnotRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]KnotRecord, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.knots[id].clone())
	}
	return out
}

// Knot returns one recorded knot.
func (r *Recorder) Knot(id string) (KnotRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	k, ok := r.knots[id]
	if !ok {
		return KnotRecord{}, false
	}
	return k.clone(), true
}

// Changes returns up to limit of the most recent changes, oldest first.
// A non-positive limit returns the whole log.
func (r *Recorder) Changes(limit int) []Change {
	r.mu.RLock()
	defer r.mu.RUnlock()

	log := r.log
	if limit > 0 && len(log) > limit {
		log = log[len(log)-limit:]
	}
	return slices.Clone(log)
}

// record returns the knot record for id, creating it for changes observed
// before the tie event (the initial value is propagated during tie).
func (r *Recorder) record(e *domain.KnotEvent) *KnotRecord {
	k, ok := r.knots[e.KnotID]
	if !ok {
		k = &KnotRecord{
			ID:          e.KnotID,
			Description: dsl.Format(e.Spec),
			Status:      StatusTied,
			TiedAt:      e.Timestamp,
		}
		r.knots[e.KnotID] = k
		r.order = append(r.order, e.KnotID)
	}
	return k
}

func (r *Recorder) tie(e *domain.KnotEvent) {
	r.mu.Lock()
	k := r.record(e)
	k.Status = StatusTied
	k.TiedAt = e.Timestamp
	r.mu.Unlock()

	r.events.publish(Event{Type: e.Type, KnotID: e.KnotID})
}

func (r *Recorder) untie(e *domain.KnotEvent) {
	r.mu.Lock()
	k := r.record(e)
	k.Status = StatusUntied
	at := e.Timestamp
	k.UntiedAt = &at
	r.untied = append(r.untied, e.KnotID)
	r.evictLocked()
	r.mu.Unlock()

	r.events.publish(Event{Type: e.Type, KnotID: e.KnotID})
}

func (r *Recorder) change(e *domain.ChangeEvent) {
	r.mu.Lock()
	k := r.record(&e.KnotEvent)
	r.seq++
	c := Change{
		Seq:       r.seq,
		KnotID:    e.KnotID,
		Value:     e.Value,
		Direction: e.Direction,
		Timestamp: e.Timestamp,
	}
	k.Latest = &c
	k.History = appendBounded(k.History, c, r.history)
	r.log = appendBounded(r.log, c, r.logSize)
	r.mu.Unlock()

	r.events.publish(Event{Type: e.Type, KnotID: e.KnotID, Change: &c})
}

func (r *Recorder) fail(e *domain.ErrorEvent) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}

	r.mu.Lock()
	k := r.record(&e.KnotEvent)
	k.Errors++
	k.LastError = msg
	r.mu.Unlock()

	r.events.publish(Event{Type: e.Type, KnotID: e.KnotID, Error: msg})
}

// evictLocked drops the oldest untied records beyond the retain limit.
func (r *Recorder) evictLocked() {
	if len(r.untied) <= r.retain {
		return
	}
	evict := r.untied[:len(r.untied)-r.retain]
	for _, id := range evict {
		delete(r.knots, id)
	}
	r.order = slices.DeleteFunc(r.order, func(id string) bool {
		_, ok := r.knots[id]
		return !ok
	})
	r.untied = slices.Delete(r.untied, 0, len(evict))
}

func (k *KnotRecord) clone() KnotRecord {
	out := *k
	out.History = slices.Clone(k.History)
	if k.Latest != nil {
		latest := *k.Latest
		out.Latest = &latest
	}
	if k.UntiedAt != nil {
		at := *k.UntiedAt
		out.UntiedAt = &at
	}
	return out
}

func appendBounded[T any](s []T, v T, limit int) []T {
	s = append(s, v)
	if len(s) > limit {
		s = slices.Delete(s, 0, len(s)-limit)
	}
	return s
}
