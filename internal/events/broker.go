// Package events streams committed entity mutations to connected
// clients over Server-Sent Events, optionally filtered to one trip.
package events

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/starford/raido/internal/ident"
)

// Change types published by the service layer.
const (
	TripCreated    = "trip.created"
	TripUpdated    = "trip.updated"
	TripDeleted    = "trip.deleted"
	TripShared     = "trip.shared"
	TripUnshared   = "trip.unshared"
	StopCreated    = "stop.created"
	StopUpdated    = "stop.updated"
	StopDeleted    = "stop.deleted"
	StopsReordered = "stops.reordered"
	ItemCreated    = "item.created"
	ItemUpdated    = "item.updated"
	ItemDeleted    = "item.deleted"
	ItemsReordered = "items.reordered"
)

// Change describes one committed mutation. TripID is always set; it is
// both the event payload and the key per-trip subscribers filter on.
type Change struct {
	Type   string
	TripID string
	StopID string
	ItemID string
}

type subscription struct {
	ch     chan []byte
	tripID string // empty subscribes to every trip
}

// Broker fans committed changes out to SSE clients.
//
// Concurrency model: a single internal loop goroutine owns the client
// map. Public methods talk to the loop through channels, so no mutexes
// are involved.
type Broker struct {
	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Change
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts the broker loop.
func NewBroker() *Broker {
	b := &Broker{
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Change, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]string)

	broadcast := func(c Change) {
		payload, err := json.Marshal(struct {
			TripID string `json:"trip_id"`
			StopID string `json:"stop_id,omitempty"`
			ItemID string `json:"item_id,omitempty"`
		}{c.TripID, c.StopID, c.ItemID})
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", c.Type, payload))

		for ch, filter := range clients {
			if filter != "" && filter != c.TripID {
				continue
			}
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking the loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = sub.tripID

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case c := <-b.publishCh:
			broadcast(c)

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client. A non-empty tripID narrows delivery to that
// trip's changes.
func (b *Broker) Subscribe(tripID string) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{ch: ch, tripID: tripID}:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
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

// Publish queues a change for delivery. Safe no-op after Close.
func (b *Broker) Publish(c Change) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- c:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events?trip=id).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tripID := r.URL.Query().Get("trip")
	if tripID != "" && !ident.Valid(tripID) {
		http.Error(w, "malformed trip id", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(tripID)
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
