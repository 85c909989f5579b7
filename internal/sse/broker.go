// Package sse implements a Server-Sent Events broker for menu and tree updates.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/menutree/internal/menutree"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type menuEventReq struct {
	kind string
	id   int64
}

// TreeUpdate is the payload of a tree.updated event.
type TreeUpdate struct {
	Seq       uint64 `json:"seq"`
	Records   int    `json:"records"`
	Anomalies int    `json:"anomalies"`
}

// Broker manages SSE client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients + tree throttle state). Public methods communicate with this loop
// through channels, so no mutexes are required.
type Broker struct {
	treeMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	menuEventCh   chan menuEventReq
	treeCh        chan TreeUpdate
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// Verify *Broker satisfies menutree.Observer at compile time.
var _ menutree.Observer = (*Broker)(nil)

// NewBroker creates a new SSE broker. At most one tree.updated event is sent
// per treeThrottle; updates inside the window collapse into one trailing
// event carrying the latest state.
func NewBroker(treeThrottle time.Duration) *Broker {
	if treeThrottle <= 0 {
		treeThrottle = 2 * time.Second
	}

	b := &Broker{
		treeMin:       treeThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		menuEventCh:   make(chan menuEventReq, 256),
		treeCh:        make(chan TreeUpdate, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		lastTree time.Time
		pending  *TreeUpdate
		timer    *time.Timer
		fire     <-chan time.Time
	)

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			if timer != nil {
				timer.Stop()
			}
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.menuEventCh:
			broadcast(Event{Type: "menu." + req.kind, Data: map[string]int64{"id": req.id}})

		case tu := <-b.treeCh:
			wait := b.treeMin - time.Since(lastTree)
			if wait <= 0 {
				lastTree = time.Now()
				broadcast(Event{Type: "tree.updated", Data: tu})
				continue
			}
			pending = &tu
			if fire == nil {
				timer = time.NewTimer(wait)
				fire = timer.C
			}

		case <-fire:
			fire = nil
			if pending != nil {
				lastTree = time.Now()
				broadcast(Event{Type: "tree.updated", Data: *pending})
				pending = nil
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
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

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishMenuEvent publishes menu.<kind> for one record.
func (b *Broker) PublishMenuEvent(kind string, id int64) {
	if b.closed.Load() {
		return
	}
	select {
	case b.menuEventCh <- menuEventReq{kind: kind, id: id}:
	case <-b.stopped:
	}
}

// PublishTreeUpdate queues a throttled tree.updated event.
func (b *Broker) PublishTreeUpdate(tu TreeUpdate) {
	if b.closed.Load() {
		return
	}
	select {
	case b.treeCh <- tu:
	case <-b.stopped:
	}
}

// Rebuilt announces every applied rebuild as a tree update.
func (b *Broker) Rebuilt(snap menutree.Snapshot) {
	b.PublishTreeUpdate(TreeUpdate{
		Seq:       snap.Seq,
		Records:   len(snap.Records),
		Anomalies: len(snap.Anomalies),
	})
}

// StateChanged is part of menutree.Observer; gesture states are not streamed.
func (b *Broker) StateChanged(_, _ menutree.State) {}

// RebuildDiscarded is part of menutree.Observer.
func (b *Broker) RebuildDiscarded(uint64) {}

// RebuildFailed is part of menutree.Observer.
func (b *Broker) RebuildFailed(uint64, error) {}

// MoveFinished is part of menutree.Observer; applied moves reach clients as
// menu.moved from the service.
func (b *Broker) MoveFinished(menutree.MoveResult, error) {}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
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
