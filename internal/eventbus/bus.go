package eventbus

import (
	"log"
	"sync"
	"time"
)

// Topic identifies an event stream.
type Topic string

const (
	TopicStateChanged     Topic = "state.changed"
	TopicProfileLifecycle Topic = "profiles.lifecycle"
)

// Envelope wraps a published payload with its topic and origin.
type Envelope struct {
	Topic   Topic
	Source  string
	Time    time.Time
	Payload any
}

// Bus orchestrates topic-based publish/subscribe messaging. Delivery is
// non-blocking: a subscriber that falls behind drops events with a warning
// rather than stalling publishers.
type Bus struct {
	logger       *log.Logger
	mu           sync.RWMutex
	subscribers  map[Topic]map[uint64]*Subscription
	topicBuffers map[Topic]int
	nextID       uint64
}

// New constructs a bus with default topic buffer sizes.
func New(opts ...BusOption) *Bus {
	defaults := map[Topic]int{
		TopicStateChanged:     64,
		TopicProfileLifecycle: 64,
	}

	bus := &Bus{
		logger:       log.Default(),
		subscribers:  make(map[Topic]map[uint64]*Subscription),
		topicBuffers: defaults,
	}

	for _, opt := range opts {
		opt(bus)
	}

	return bus
}

// BusOption customises bus behaviour.
type BusOption func(*Bus)

// WithLogger overrides the logger used for drop warnings.
func WithLogger(logger *log.Logger) BusOption {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithTopicBuffer sets the buffer size for a given topic.
func WithTopicBuffer(topic Topic, size int) BusOption {
	return func(b *Bus) {
		if size <= 0 {
			size = 1
		}
		b.topicBuffers[topic] = size
	}
}

// Subscription is a single subscriber's view of a topic.
type Subscription struct {
	bus    *Bus
	topic  Topic
	id     uint64
	ch     chan Envelope
	closed bool
	mu     sync.Mutex
}

// C returns the subscriber's event channel.
func (s *Subscription) C() <-chan Envelope {
	return s.ch
}

// Close detaches the subscription from the bus and closes its channel.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.bus.mu.Lock()
	if subs, ok := s.bus.subscribers[s.topic]; ok {
		delete(subs, s.id)
		if len(subs) == 0 {
			delete(s.bus.subscribers, s.topic)
		}
	}
	s.bus.mu.Unlock()

	close(s.ch)
}

// Subscribe registers a new subscriber on topic.
func (b *Bus) Subscribe(topic Topic) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	buffer, ok := b.topicBuffers[topic]
	if !ok {
		buffer = 16
	}

	b.nextID++
	sub := &Subscription{
		bus:   b,
		topic: topic,
		id:    b.nextID,
		ch:    make(chan Envelope, buffer),
	}

	if b.subscribers[topic] == nil {
		b.subscribers[topic] = make(map[uint64]*Subscription)
	}
	b.subscribers[topic][sub.id] = sub

	return sub
}

// Publish delivers payload to every subscriber of topic.
func (b *Bus) Publish(topic Topic, source string, payload any) {
	env := Envelope{
		Topic:   topic,
		Source:  source,
		Time:    time.Now().UTC(),
		Payload: payload,
	}

	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.subscribers[topic]))
	for _, sub := range b.subscribers[topic] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.mu.Lock()
		if sub.closed {
			sub.mu.Unlock()
			continue
		}
		select {
		case sub.ch <- env:
		default:
			b.logger.Printf("[EventBus] WARNING: dropping %s event for slow subscriber %d", topic, sub.id)
		}
		sub.mu.Unlock()
	}
}
