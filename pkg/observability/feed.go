package observability

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultEventBuffer is the per-subscriber event buffer.
const DefaultEventBuffer = 64

// eventFeed fans recorder events out to subscribers. Publishing never blocks
// propagation: a subscriber whose buffer is full misses the event, and the
// next event it does receive reports how many it missed.
type eventFeed struct {
	mu      sync.Mutex
	subs    map[*subscriber]struct{}
	closed  bool
	buffer  int
	dropped atomic.Uint64
}

type subscriber struct {
	ch     chan Event
	missed uint64
}

func newEventFeed(buffer int) *eventFeed {
	return &eventFeed{
		subs:   make(map[*subscriber]struct{}),
		buffer: buffer,
	}
}

// subscribe returns a channel closed when ctx ends or the feed is closed.
func (f *eventFeed) subscribe(ctx context.Context) <-chan Event {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	s := &subscriber{ch: make(chan Event, f.buffer)}
	f.subs[s] = struct{}{}
	context.AfterFunc(ctx, func() { f.remove(s) })
	return s.ch
}

func (f *eventFeed) remove(s *subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[s]; !ok {
		return
	}
	delete(f.subs, s)
	close(s.ch)
}

func (f *eventFeed) publish(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for s := range f.subs {
		out := ev
		out.Missed = s.missed
		select {
		case s.ch <- out:
			s.missed = 0
		default:
			s.missed++
			f.dropped.Add(1)
		}
	}
}

func (f *eventFeed) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for s := range f.subs {
		close(s.ch)
	}
	clear(f.subs)
}

func (f *eventFeed) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
