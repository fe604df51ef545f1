package broadcast

import (
	"sync"

	"github.com/assetra/marketx/config"
	"github.com/assetra/marketx/types"
)

const (
	ringCapacity     = 1024
	subscriberBuffer = 256
)

// Event is one sequence-stamped message on an asset's stream.
type Event struct {
	Type     types.EventKind `json:"type"`
	AssetID  string          `json:"asset_id"`
	Sequence uint64          `json:"sequence"`
	Payload  interface{}     `json:"payload"`
}

type Subscriber struct {
	AssetID string

	ch     chan *Event
	once   sync.Once
	closed chan struct{}
}

// Events yields the subscriber's ordered stream. The channel closes when
// the hub drops the subscriber (slow consumer) or Unsubscribe is called;
// the client is expected to reconnect and replay from its last sequence.
func (s *Subscriber) Events() <-chan *Event {
	return s.ch
}

func (s *Subscriber) close() {
	s.once.Do(func() {
		close(s.closed)
		close(s.ch)
	})
}

// Hub fans sequence-stamped events out to subscribers, keeping a short ring
// per asset for replay. Publishers are the per-asset lanes; every event for
// one asset arrives here in production order.
type Hub struct {
	mu    sync.Mutex
	rings map[string]*ring
	subs  map[string]map[*Subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{
		rings: make(map[string]*ring),
		subs:  make(map[string]map[*Subscriber]struct{}),
	}
}

// Seed records the sequence an asset's stream resumes after, so a
// subscriber asking for history below it is told to resync rather than
// handed an empty backlog with the gap unacknowledged.
func (h *Hub) Seed(assetID string, seq uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, found := h.rings[assetID]
	if !found {
		r = newRing(ringCapacity)
		h.rings[assetID] = r
	}
	if seq > r.floor {
		r.floor = seq
	}
}

// Publish appends the event to the asset's ring and delivers it to every
// subscriber. A subscriber that cannot keep up is dropped rather than
// skipped, so no client ever observes sequence N+1 before N.
func (h *Hub) Publish(ev *Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, found := h.rings[ev.AssetID]
	if !found {
		r = newRing(ringCapacity)
		h.rings[ev.AssetID] = r
	}
	r.push(ev)

	for sub := range h.subs[ev.AssetID] {
		select {
		case sub.ch <- ev:
		default:
			config.Logger.Warnf("[broadcast] dropping slow subscriber on %s at seq %d", ev.AssetID, ev.Sequence)
			delete(h.subs[ev.AssetID], sub)
			sub.close()
		}
	}
}

// Subscribe registers a subscriber resuming after fromSeq. The returned
// backlog holds the missed events still retained in the ring; when resync
// is true the backlog is empty and the client must fetch a fresh depth
// snapshot, then subscribe again from the snapshot's sequence.
func (h *Hub) Subscribe(assetID string, fromSeq uint64) (*Subscriber, []*Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, found := h.rings[assetID]
	if !found {
		r = newRing(ringCapacity)
		h.rings[assetID] = r
	}

	backlog, ok := r.replayFrom(fromSeq)
	if !ok {
		return nil, nil, true
	}

	sub := &Subscriber{
		AssetID: assetID,
		ch:      make(chan *Event, subscriberBuffer),
		closed:  make(chan struct{}),
	}

	if h.subs[assetID] == nil {
		h.subs[assetID] = make(map[*Subscriber]struct{})
	}
	h.subs[assetID][sub] = struct{}{}

	return sub, backlog, false
}

func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if set, found := h.subs[sub.AssetID]; found {
		delete(set, sub)
	}
	sub.close()
}
