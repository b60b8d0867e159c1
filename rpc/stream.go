package rpc

import (
	"strings"
	"sync"

	"questchain/core/events"
	"questchain/core/types"
	"questchain/observability/metrics"
)

const subscriberBuffer = 128

// StreamEvent is a committed contract event as delivered to subscribers.
type StreamEvent struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

type subscriber struct {
	prefix string
	ch     chan StreamEvent
}

// Stream collects engine events for the call in flight and fans them out to
// subscribers once the call's state is committed.
type Stream struct {
	mu      sync.Mutex
	pending []*types.Event
	seq     uint64
	nextID  uint64
	subs    map[uint64]*subscriber
}

// NewStream constructs an empty stream.
func NewStream() *Stream {
	return &Stream{subs: make(map[uint64]*subscriber)}
}

// Emit implements events.Emitter. Events are held until Publish.
func (s *Stream) Emit(evt events.Event) {
	if s == nil || evt == nil || evt.Event() == nil {
		return
	}
	s.mu.Lock()
	s.pending = append(s.pending, evt.Event())
	s.mu.Unlock()
}

// Publish delivers held events to subscribers. A subscriber whose buffer is
// full is disconnected.
func (s *Stream) Publish() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range s.pending {
		s.seq++
		out := StreamEvent{Sequence: s.seq, Type: evt.Type, Attributes: evt.Attributes}
		metrics.Stream().RecordPublish(evt.Type)
		for id, sub := range s.subs {
			if sub.prefix != "" && !strings.HasPrefix(evt.Type, sub.prefix) {
				continue
			}
			select {
			case sub.ch <- out:
			default:
				close(sub.ch)
				delete(s.subs, id)
				metrics.Stream().RecordDrop()
			}
		}
	}
	s.pending = nil
	metrics.Stream().SetSubscribers(len(s.subs))
}

// Drop discards held events of a failed call.
func (s *Stream) Drop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
}

// Subscribers reports the number of connected listeners.
func (s *Stream) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Subscribe registers a listener for events whose type starts with prefix.
// The returned cancel function is idempotent.
func (s *Stream) Subscribe(prefix string) (<-chan StreamEvent, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	sub := &subscriber{prefix: strings.TrimSpace(prefix), ch: make(chan StreamEvent, subscriberBuffer)}
	s.subs[id] = sub
	metrics.Stream().SetSubscribers(len(s.subs))
	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if current, ok := s.subs[id]; ok && current == sub {
			delete(s.subs, id)
			close(sub.ch)
			metrics.Stream().SetSubscribers(len(s.subs))
		}
	}
	return sub.ch, cancel
}
