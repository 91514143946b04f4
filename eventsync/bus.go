// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package eventsync

import (
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const EventQueueSize = 20

type EventType string

type SubscriberID int

type HandlerFunc func(Event)

type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      any
}

func NewEvent(t EventType, data any) Event {
	return Event{Type: t, Timestamp: time.Now(), Data: data}
}

// Bus is an in-process publish/subscribe hub. Publish blocks until every
// subscriber's queue has room.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType]map[SubscriberID]*subscriber
	lastID      SubscriberID
	logger      *slog.Logger

	published *prometheus.CounterVec
	active    *prometheus.GaugeVec
}

type subscriber struct {
	mu     sync.RWMutex
	ch     chan Event
	closed bool
}

func (s *subscriber) deliver(evt Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	s.ch <- evt
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

func NewBus(reg prometheus.Registerer, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	factory := promauto.With(reg)
	return &Bus{
		subscribers: make(map[EventType]map[SubscriberID]*subscriber),
		logger:      logger.With("component", "bus"),
		published: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eventsync_events_published_total",
			Help: "Events published on the bus, by type",
		}, []string{"type"}),
		active: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "eventsync_subscribers",
			Help: "Current bus subscribers, by type",
		}, []string{"type"}),
	}
}

// Subscribe returns a channel of events of type t. The channel is closed
// by Unsubscribe or Stop.
func (b *Bus) Subscribe(t EventType) (SubscriberID, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastID++
	sub := &subscriber{ch: make(chan Event, EventQueueSize)}
	if b.subscribers[t] == nil {
		b.subscribers[t] = make(map[SubscriberID]*subscriber)
	}
	b.subscribers[t][b.lastID] = sub
	b.active.WithLabelValues(string(t)).Inc()
	return b.lastID, sub.ch
}

// SubscribeFunc calls fn for every event of type t on its own goroutine,
// until Unsubscribe or Stop.
func (b *Bus) SubscribeFunc(t EventType, fn HandlerFunc) SubscriberID {
	id, ch := b.Subscribe(t)
	go func() {
		for evt := range ch {
			fn(evt)
		}
	}()
	return id
}

func (b *Bus) Unsubscribe(t EventType, id SubscriberID) {
	b.mu.Lock()
	sub, ok := b.subscribers[t][id]
	if ok {
		delete(b.subscribers[t], id)
		if len(b.subscribers[t]) == 0 {
			delete(b.subscribers, t)
		}
		b.active.WithLabelValues(string(t)).Dec()
	}
	b.mu.Unlock()
	if ok {
		sub.close()
	}
}

func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.subscribers[evt.Type]))
	for _, sub := range b.subscribers[evt.Type] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.deliver(evt)
	}
	b.published.WithLabelValues(string(evt.Type)).Inc()
	b.logger.Debug("event published", "type", evt.Type, "subscribers", len(subs))
}

// Stop closes every subscriber channel. The bus stays usable.
func (b *Bus) Stop() {
	b.mu.Lock()
	subs := b.subscribers
	b.subscribers = make(map[EventType]map[SubscriberID]*subscriber)
	b.mu.Unlock()
	for _, byID := range subs {
		for _, sub := range byID {
			sub.close()
		}
	}
	b.active.Reset()
}
