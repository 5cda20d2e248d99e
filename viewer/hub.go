package viewer

import (
	"sync"

	"github.com/aukilabs/ehwaz/models"
	"github.com/aukilabs/ehwaz/octree"
)

const (
	OpSnapshot = "snapshot"
	OpCreate   = "create"
	OpAttach   = "attach"
	OpDetach   = "detach"
	OpShow     = "show"
	OpHide     = "hide"
)

// DefaultBufferSize is the number of events buffered for a subscriber.
const DefaultBufferSize = 1024

// Event is a change of an octree representation.
type Event struct {
	Op     string               `json:"op"`
	Node   uint32               `json:"node,omitempty"`
	Parent uint32               `json:"parent,omitempty"`
	Depth  int                  `json:"depth"`
	Region *octree.Region       `json:"region,omitempty"`
	Tree   *octree.NodeSnapshot `json:"tree,omitempty"`
}

// Hub is a visualizer that numbers octree nodes and broadcasts their changes
// to subscribers.
//
// Subscribers that do not consume their events fast enough are dropped: their
// channel is closed.
type Hub struct {
	// The number of events buffered per subscriber. Defaults to
	// DefaultBufferSize.
	BufferSize int

	nodeIDs       models.SequentialIDGenerator
	subscriberIDs models.SequentialIDGenerator

	mutex       sync.Mutex
	subscribers map[uint32]chan Event
}

func (h *Hub) Create(r octree.Region, depth int) octree.Handle {
	id := h.nodeIDs.New()
	h.publish(Event{
		Op:     OpCreate,
		Node:   id,
		Depth:  depth,
		Region: &r,
	})
	return id
}

func (h *Hub) Attach(parent, child octree.Handle) {
	h.publish(Event{
		Op:     OpAttach,
		Node:   child.(uint32),
		Parent: parent.(uint32),
	})
}

func (h *Hub) Detach(parent, child octree.Handle) {
	h.publish(Event{
		Op:     OpDetach,
		Node:   child.(uint32),
		Parent: parent.(uint32),
	})
}

func (h *Hub) Show(n octree.Handle) {
	h.publish(Event{
		Op:   OpShow,
		Node: n.(uint32),
	})
}

func (h *Hub) Hide(n octree.Handle) {
	h.publish(Event{
		Op:   OpHide,
		Node: n.(uint32),
	})
}

// Subscribe returns a channel receiving the events published after the call.
func (h *Hub) Subscribe() (events <-chan Event, cancel func()) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.subscribers == nil {
		h.subscribers = make(map[uint32]chan Event)
	}

	size := h.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}

	id := h.subscriberIDs.New()
	c := make(chan Event, size)
	h.subscribers[id] = c
	instrumentIncreaseSubscriberGauge()

	return c, func() {
		h.mutex.Lock()
		defer h.mutex.Unlock()

		h.unsubscribe(id)
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return len(h.subscribers)
}

func (h *Hub) publish(e Event) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for id, c := range h.subscribers {
		select {
		case c <- e:
		default:
			h.unsubscribe(id)
			instrumentDropSubscriber()
		}
	}
}

func (h *Hub) unsubscribe(id uint32) {
	c, ok := h.subscribers[id]
	if !ok {
		return
	}

	delete(h.subscribers, id)
	close(c)
	h.subscriberIDs.Reuse(id)
	instrumentDecreaseSubscriberGauge()
}
