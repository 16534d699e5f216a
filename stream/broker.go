package stream

import "sync"

// Broker fans encoded board updates out to local subscribers, keyed by board id.
type Broker struct {
	mu      sync.RWMutex
	clients map[string]map[chan []byte]struct{}
}

func NewBroker() *Broker {
	return &Broker{clients: make(map[string]map[chan []byte]struct{})}
}

// Subscribe registers a buffered channel for updates to boardID.
func (b *Broker) Subscribe(boardID string, buffer int) chan []byte {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan []byte, buffer)
	b.mu.Lock()
	m, ok := b.clients[boardID]
	if !ok {
		m = make(map[chan []byte]struct{})
		b.clients[boardID] = m
	}
	m[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(boardID string, ch chan []byte) {
	b.mu.Lock()
	if m, ok := b.clients[boardID]; ok {
		delete(m, ch)
		if len(m) == 0 {
			delete(b.clients, boardID)
		}
	}
	b.mu.Unlock()
}

// Broadcast delivers data to every subscriber of boardID. Slow subscribers
// drop the message instead of blocking the publisher.
func (b *Broker) Broadcast(boardID string, data []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients[boardID] {
		select {
		case ch <- data:
		default:
		}
	}
}

// Subscribers reports how many channels listen to boardID.
func (b *Broker) Subscribers(boardID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[boardID])
}
