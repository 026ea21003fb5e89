// Package feed fans out change notifications to subscribers.
//
// A notification carries no payload; it only says "this user's streaks
// (or badges) changed, re-read them". Signals coalesce: a slow listener
// sees one pending signal no matter how many writes happened meanwhile.
package feed

import "sync"

// Collection names a per-user document collection.
type Collection string

const (
	Streaks Collection = "streaks"
	Badges  Collection = "badges"
)

// Topic identifies one user's collection.
type Topic struct {
	UserID     string
	Collection Collection
}

// Hub routes Publish calls to the listeners of a topic.
type Hub struct {
	mu        sync.Mutex
	listeners map[Topic]map[*Listener]struct{}
}

func NewHub() *Hub {
	return &Hub{listeners: make(map[Topic]map[*Listener]struct{})}
}

// Subscribe registers a listener for topic. Close it when done.
func (h *Hub) Subscribe(userID string, c Collection) *Listener {
	l := &Listener{
		hub:   h,
		topic: Topic{UserID: userID, Collection: c},
		ch:    make(chan struct{}, 1),
	}
	h.mu.Lock()
	set, ok := h.listeners[l.topic]
	if !ok {
		set = make(map[*Listener]struct{})
		h.listeners[l.topic] = set
	}
	set[l] = struct{}{}
	h.mu.Unlock()
	return l
}

// Publish signals every listener of the topic without blocking.
func (h *Hub) Publish(userID string, c Collection) {
	t := Topic{UserID: userID, Collection: c}
	h.mu.Lock()
	defer h.mu.Unlock()
	for l := range h.listeners[t] {
		select {
		case l.ch <- struct{}{}:
		default: // a signal is already pending
		}
	}
}

// Broadcast signals every open listener. Used when notifications may
// have been missed, for example after a reconnect.
func (h *Hub) Broadcast() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.listeners {
		for l := range set {
			select {
			case l.ch <- struct{}{}:
			default:
			}
		}
	}
}

// Count returns the number of open listeners for a topic.
func (h *Hub) Count(userID string, c Collection) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners[Topic{UserID: userID, Collection: c}])
}

func (h *Hub) remove(l *Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.listeners[l.topic]
	delete(set, l)
	if len(set) == 0 {
		delete(h.listeners, l.topic)
	}
}

// Listener receives change signals for one topic.
type Listener struct {
	hub   *Hub
	topic Topic
	ch    chan struct{}
	once  sync.Once
}

// C returns the signal channel. It is never closed; select on your own
// done channel alongside it.
func (l *Listener) C() <-chan struct{} { return l.ch }

// Topic returns what the listener is subscribed to.
func (l *Listener) Topic() Topic { return l.topic }

// Close unregisters the listener. Safe to call more than once.
func (l *Listener) Close() {
	l.once.Do(func() { l.hub.remove(l) })
}
