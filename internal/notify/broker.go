// Package notify implements the change broadcaster that fans workspace
// events out to any number of subscribers.
package notify

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	DocumentCreated  = "document.created"
	DocumentUpdated  = "document.updated"
	DocumentRemoved  = "document.removed"
	BacklinksChanged = "backlinks.changed"
	GraphUpdated     = "graph.updated"
	ScanStarted      = "scan.started"
	ScanProgress     = "scan.progress"
	ScanCompleted    = "scan.completed"
)

// Event is a single change notification.
type Event struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	URI     string    `json:"uri,omitempty"`
	Version int64     `json:"version,omitempty"`
	Data    any       `json:"data,omitempty"`
	Time    time.Time `json:"time"`
}

func isDocumentEvent(t string) bool {
	return t == DocumentCreated || t == DocumentUpdated || t == DocumentRemoved
}

// Subscription is one subscriber's bounded event queue. When the queue is
// full the oldest pending event is dropped to make room.
type Subscription struct {
	C <-chan Event

	ch      chan Event
	dropped atomic.Int64
}

// Dropped returns how many events were discarded for this subscriber.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

func (s *Subscription) deliver(ev Event) {
	select {
	case s.ch <- ev:
		return
	default:
	}
	select {
	case <-s.ch:
		s.dropped.Add(1)
	default:
	}
	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
	}
}

// Broker broadcasts events to subscribers.
//
// A single internal goroutine owns the subscriber set and the graph
// throttle timestamp; public methods talk to it over channels. Delivery
// never blocks that goroutine, so producers are never held up by slow
// subscribers.
type Broker struct {
	buffer   int
	graphMin time.Duration

	subscribeCh   chan *Subscription
	unsubscribeCh chan *Subscription
	publishCh     chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker whose subscribers buffer up to buffer events
// and which emits graph.updated at most once per graphThrottle. Document
// events arriving inside the window are announced by one trailing
// graph.updated when it closes.
func NewBroker(buffer int, graphThrottle time.Duration) *Broker {
	if buffer <= 0 {
		buffer = 64
	}
	if graphThrottle <= 0 {
		graphThrottle = 2 * time.Second
	}

	b := &Broker{
		buffer:        buffer,
		graphMin:      graphThrottle,
		subscribeCh:   make(chan *Subscription),
		unsubscribeCh: make(chan *Subscription),
		publishCh:     make(chan Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	subs := make(map[*Subscription]struct{})
	var lastGraph time.Time

	// trailing fires once the throttle window closes if document events
	// arrived inside it; nil while nothing is pending.
	var trailing *time.Timer
	var trailingC <-chan time.Time

	broadcast := func(ev Event) {
		for s := range subs {
			s.deliver(ev)
		}
	}
	emitGraph := func(now time.Time) {
		lastGraph = now
		broadcast(stamp(Event{Type: GraphUpdated}))
	}

	for {
		select {
		case <-b.stopCh:
			if trailing != nil {
				trailing.Stop()
			}
			for s := range subs {
				close(s.ch)
			}
			return

		case s := <-b.subscribeCh:
			subs[s] = struct{}{}

		case s := <-b.unsubscribeCh:
			if _, ok := subs[s]; ok {
				delete(subs, s)
				close(s.ch)
			}

		case ev := <-b.publishCh:
			broadcast(ev)
			if !isDocumentEvent(ev.Type) {
				continue
			}
			now := time.Now()
			if since := now.Sub(lastGraph); since >= b.graphMin {
				emitGraph(now)
			} else if trailingC == nil {
				trailing = time.NewTimer(b.graphMin - since)
				trailingC = trailing.C
			}

		case now := <-trailingC:
			trailing, trailingC = nil, nil
			emitGraph(now)

		case resp := <-b.countReqCh:
			resp <- len(subs)
		}
	}
}

func stamp(ev Event) Event {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	return ev
}

// Close stops the broker loop and closes every subscription.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a new subscriber.
func (b *Broker) Subscribe() *Subscription {
	ch := make(chan Event, b.buffer)
	s := &Subscription{C: ch, ch: ch}
	if b.closed.Load() {
		close(ch)
		return s
	}

	select {
	case b.subscribeCh <- s:
	case <-b.stopped:
		close(ch)
	}
	return s
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(s *Subscription) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- s:
	case <-b.stopped:
	}
}

// ClientCount returns the number of subscribers.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish broadcasts ev. Document events additionally trigger a throttled
// graph.updated event.
func (b *Broker) Publish(ev Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- stamp(ev):
	case <-b.stopped:
	}
}
