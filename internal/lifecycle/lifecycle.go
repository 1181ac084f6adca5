// Package lifecycle implements the lifecycle bus (LB): a small in-process
// pub/sub event bus that the task hasher, cache, and runner publish
// structured events onto (cache hit/miss, task start/end, graph build
// complete) and that consumers (run summary, terminal UI, log file) read
// from without the publisher needing to know who, if anyone, is listening.
//
// Adapted from the teacher's analytics client: a single worker goroutine
// drains a channel and batches delivery, except a bus fans each event out
// to N subscribers, rather than buffering for a single remote sink.
package lifecycle

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// EventKind identifies the shape of an Event's Payload.
type EventKind string

const (
	EventGraphBuilt    EventKind = "graph.built"
	EventTaskScheduled EventKind = "task.scheduled"
	EventTaskStart     EventKind = "task.start"
	EventTaskCacheHit  EventKind = "task.cache.hit"
	EventTaskCacheMiss EventKind = "task.cache.miss"
	EventTaskEnd       EventKind = "task.end"
	EventRunEnd        EventKind = "run.end"
)

// Event is a single fact published onto the bus. Payload's concrete type
// is determined by Kind; subscribers type-assert based on Kind.
type Event struct {
	Kind      EventKind
	SessionID string
	Payload   interface{}
}

// CachePayload is the Payload for EventTaskCacheHit/EventTaskCacheMiss.
type CachePayload struct {
	TaskID   string
	Hash     string
	Source   string // "FS", "HTTP", or "" on miss
	Duration int    // milliseconds
}

// TaskPayload is the Payload for EventTaskStart/EventTaskEnd.
type TaskPayload struct {
	TaskID   string
	ExitCode int
	Err      string
}

// Subscriber receives events synchronously, in publish order, on the bus's
// single dispatch goroutine. A Subscriber must not block for long or it
// will stall delivery to every other subscriber.
type Subscriber func(Event)

// Bus is the lifecycle event bus. The zero value is not usable; construct
// with New.
type Bus struct {
	sessionID string
	ch        chan Event
	logger    hclog.Logger
	cancel    context.CancelFunc

	mu          sync.RWMutex
	subscribers []Subscriber

	done chan struct{}
}

// New creates a Bus and starts its dispatch goroutine. Callers must call
// Shutdown when the run completes to drain any in-flight events.
func New(logger hclog.Logger) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		sessionID: uuid.New().String(),
		ch:        make(chan Event, 64),
		logger:    logger,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go b.dispatch(ctx)
	return b
}

// Subscribe registers a Subscriber that will observe every event delivered
// from this point forward, including events published earlier that are still
// queued. Subscribe is safe to call concurrently with Publish; events already
// delivered are not delivered again to the new subscriber.
func (b *Bus) Subscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, sub)
}

// Publish enqueues an event for delivery. It never blocks the caller on
// subscriber work; only on the bus's internal channel capacity.
func (b *Bus) Publish(kind EventKind, payload interface{}) {
	b.ch <- Event{Kind: kind, SessionID: b.sessionID, Payload: payload}
}

func (b *Bus) dispatch(ctx context.Context) {
	for {
		select {
		case evt := <-b.ch:
			b.deliver(evt)
		case <-ctx.Done():
			b.drain()
			close(b.done)
			return
		}
	}
}

// drain delivers any events already queued before shutdown, best-effort.
func (b *Bus) drain() {
	for {
		select {
		case evt := <-b.ch:
			b.deliver(evt)
		default:
			return
		}
	}
}

func (b *Bus) deliver(evt Event) {
	b.mu.RLock()
	subs := make([]Subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, sub := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Debug("lifecycle subscriber panicked", "kind", evt.Kind, "recover", r)
				}
			}()
			sub(evt)
		}()
	}
}

// Shutdown stops the dispatch goroutine after flushing queued events. It
// blocks until shutdown completes or ctx is done.
func (b *Bus) Shutdown(ctx context.Context) {
	b.cancel()
	select {
	case <-b.done:
	case <-ctx.Done():
	}
}
