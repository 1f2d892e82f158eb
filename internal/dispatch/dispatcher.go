package dispatch

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
)

// Subscriber receives dispatched events.
type Subscriber interface {
	OnEvent(Event) error
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(Event) error

// OnEvent calls f(e).
func (f SubscriberFunc) OnEvent(e Event) error {
	return f(e)
}

// Observer is notified of dispatch outcomes. Used for metrics.
type Observer interface {
	EventDispatched(name string)
	SubscriberFailed(name string)
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	Subscribers int
	Dispatched  int64
	Failures    int64
}

type entry struct {
	sub Subscriber
}

// Dispatcher fans events out to subscribers.
type Dispatcher struct {
	logger   *slog.Logger
	observer Observer

	mu   sync.RWMutex
	subs []*entry

	dispatched atomic.Int64
	failures   atomic.Int64
}

// New creates an empty dispatcher. observer may be nil.
func New(logger *slog.Logger, observer Observer) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger:   logger,
		observer: observer,
	}
}

// Subscribe adds s and returns a function that removes exactly this
// registration. Use the returned function for SubscriberFunc values, which
// cannot be compared.
func (d *Dispatcher) Subscribe(s Subscriber) (unsubscribe func()) {
	if s == nil {
		return func() {}
	}

	e := &entry{sub: s}
	d.mu.Lock()
	d.subs = append(d.subs, e)
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { d.removeEntry(e) })
	}
}

// Unsubscribe removes every registration of s. Subscribers of an
// uncomparable type (such as SubscriberFunc) are matched by nothing; remove
// them with the function returned by Subscribe.
func (d *Dispatcher) Unsubscribe(s Subscriber) {
	if s == nil || !reflect.TypeOf(s).Comparable() {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.subs = slices.DeleteFunc(d.subs, func(e *entry) bool {
		return reflect.TypeOf(e.sub).Comparable() && e.sub == s
	})
}

func (d *Dispatcher) removeEntry(target *entry) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if i := slices.Index(d.subs, target); i >= 0 {
		d.subs = slices.Delete(d.subs, i, i+1)
	}
}

// Dispatch delivers {name, data} to every current subscriber.
//
// Subscribers run on the caller's goroutine in registration order. The set
// is snapshotted first, so a subscriber may subscribe or unsubscribe during
// delivery without affecting the current round.
func (d *Dispatcher) Dispatch(name string, data json.RawMessage) {
	d.DispatchEvent(NewEvent(name, data))
}

// DispatchEvent delivers an already built Event.
func (d *Dispatcher) DispatchEvent(e Event) {
	d.mu.RLock()
	snapshot := make([]*entry, len(d.subs))
	copy(snapshot, d.subs)
	d.mu.RUnlock()

	d.dispatched.Add(1)
	if d.observer != nil {
		d.observer.EventDispatched(e.Name)
	}

	for _, s := range snapshot {
		if err := d.deliver(s.sub, e); err != nil {
			d.failures.Add(1)
			if d.observer != nil {
				d.observer.SubscriberFailed(e.Name)
			}
			d.logger.Error("subscriber failed",
				"event", e.Name,
				"subscriber", fmt.Sprintf("%T", s.sub),
				"error", err,
			)
		}
	}
}

// deliver calls one subscriber, converting a panic into an error.
func (d *Dispatcher) deliver(s Subscriber, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panicked: %v", r)
		}
	}()
	return s.OnEvent(e)
}

// Len returns the number of registered subscribers.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs)
}

// Stats returns current counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Subscribers: d.Len(),
		Dispatched:  d.dispatched.Load(),
		Failures:    d.failures.Load(),
	}
}
