package docstore

import (
	"sync"

	"github.com/carewell/recordstore/pkg/logger"
)

// ChangeType labels a change event.
type ChangeType string

const (
	ChangePut    ChangeType = "put"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// ChangeEvent describes one committed write. Document is nil for deletes.
type ChangeEvent struct {
	DocumentID string
	Change     ChangeType
	Document   *Document
}

// ListenerToken identifies a registered listener for removal. Tokens are
// opaque and never reused within a store's lifetime.
type ListenerToken uint64

// Listener receives change events. A returned error is logged, never
// propagated to the writer.
type Listener func(ChangeEvent)

// notifier fans committed writes out to registered listeners. Events are
// enqueued synchronously with the commit (preserving commit order) and
// delivered asynchronously by a single dispatcher goroutine, so a caller
// awaiting a write is never blocked on listener work — and is likewise
// not guaranteed that listeners have already run.
type notifier struct {
	log logger.Logger

	mu        sync.Mutex
	listeners map[ListenerToken]Listener
	order     []ListenerToken
	nextToken ListenerToken
	closed    bool

	queue chan ChangeEvent
	stop  chan struct{}
	done  chan struct{}
}

func newNotifier(log logger.Logger, queueSize int) *notifier {
	if queueSize <= 0 {
		queueSize = 256
	}
	n := &notifier{
		log:       log.With("component", "notifier"),
		listeners: make(map[ListenerToken]Listener),
		queue:     make(chan ChangeEvent, queueSize),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go n.dispatch()
	return n
}

// subscribe registers fn and returns its removal token. Delivery order
// follows registration order.
func (n *notifier) subscribe(fn Listener) ListenerToken {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextToken++
	token := n.nextToken
	n.listeners[token] = fn
	n.order = append(n.order, token)
	return token
}

// unsubscribe removes a listener. Unknown tokens are a no-op.
func (n *notifier) unsubscribe(token ListenerToken) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.listeners[token]; !ok {
		return
	}
	delete(n.listeners, token)
	for i, t := range n.order {
		if t == token {
			n.order = append(n.order[:i], n.order[i+1:]...)
			break
		}
	}
}

// enqueue appends an event to the delivery queue. Called with the write
// lock held, so queue order equals commit order. Blocks if the queue is
// full — explicit backpressure instead of unbounded buffering.
func (n *notifier) enqueue(ev ChangeEvent) {
	n.mu.Lock()
	closed := n.closed
	n.mu.Unlock()
	if closed {
		return
	}
	n.queue <- ev
}

func (n *notifier) dispatch() {
	defer close(n.done)
	for {
		select {
		case ev := <-n.queue:
			n.deliver(ev)
		case <-n.stop:
			// Drain whatever was enqueued before the stop, then exit.
			for {
				select {
				case ev := <-n.queue:
					n.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

// deliver calls every listener in registration order. A panicking
// listener is logged and skipped; the rest still run.
func (n *notifier) deliver(ev ChangeEvent) {
	n.mu.Lock()
	tokens := make([]ListenerToken, len(n.order))
	copy(tokens, n.order)
	fns := make([]Listener, len(tokens))
	for i, t := range tokens {
		fns[i] = n.listeners[t]
	}
	n.mu.Unlock()

	for i, fn := range fns {
		if fn == nil {
			continue
		}
		n.safeCall(tokens[i], fn, ev)
	}
}

func (n *notifier) safeCall(token ListenerToken, fn Listener, ev ChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Error("change listener panicked",
				"token", uint64(token), "document_id", ev.DocumentID, "panic", r)
		}
	}()
	fn(ev)
}

// close drains the queue and stops the dispatcher. Events enqueued before
// close are still delivered; the queue channel itself is never closed, so
// a write racing close can never panic the writer.
func (n *notifier) close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	n.mu.Unlock()

	close(n.stop)
	<-n.done
}
