// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package eventsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/danielhkuo/quickly-vote/ledger"
	"github.com/danielhkuo/quickly-vote/models"
)

const (
	TypeLedgerEvent  EventType = "ledger.event"
	TypeStateChanged EventType = "state.changed"
	TypeAlert        EventType = "alert"
)

const (
	DefaultMinBackoff = 500 * time.Millisecond
	DefaultMaxBackoff = 30 * time.Second
)

// StateChanged carries the session before and after a refresh. Previous is
// the zero Session on the first refresh.
type StateChanged struct {
	Previous models.Session
	Current  models.Session
}

// Alert is a user-facing notification, published once per kind and session.
type Alert struct {
	Kind    ledger.EventKind
	Session uint64
	Message string
}

// Source is what the Syncer reads from.
type Source interface {
	Session(ctx context.Context) (models.Session, error)
	ledger.Subscriber
}

type alertKey struct {
	kind    ledger.EventKind
	session uint64
}

// Syncer keeps observers in step with the ledger. Every handled event
// triggers a re-read of the session rather than applying the event's
// payload, so replays and reconnects cannot corrupt state.
type Syncer struct {
	ledger Source
	bus    *Bus
	logger *slog.Logger

	MinBackoff time.Duration
	MaxBackoff time.Duration

	mu      sync.Mutex
	seen    map[string]struct{}
	alerted map[alertKey]struct{}
	last    models.Session
	synced  bool
}

func NewSyncer(l Source, bus *Bus, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		ledger:     l,
		bus:        bus,
		logger:     logger.With("component", "eventsync"),
		MinBackoff: DefaultMinBackoff,
		MaxBackoff: DefaultMaxBackoff,
		seen:       make(map[string]struct{}),
		alerted:    make(map[alertKey]struct{}),
	}
}

// Refresh re-reads the session and publishes TypeStateChanged if it
// differs from the last snapshot.
func (s *Syncer) Refresh(ctx context.Context) (models.Session, error) {
	current, err := s.ledger.Session(ctx)
	if err != nil {
		return models.Session{}, fmt.Errorf("failed to read session: %w", err)
	}
	s.mu.Lock()
	prev, synced := s.last, s.synced
	changed := !synced || !prev.Equal(current)
	s.last, s.synced = current, true
	s.mu.Unlock()

	if changed {
		s.bus.Publish(NewEvent(TypeStateChanged, StateChanged{Previous: prev, Current: current}))
		s.logger.Debug("session changed", "session", current.ID, "phase", current.Phase)
	}
	return current, nil
}

// Handle processes one ledger event. Events already seen are ignored.
func (s *Syncer) Handle(ctx context.Context, ev ledger.Event) error {
	if ev.Removed {
		s.logger.Warn("event removed by reorg", "kind", ev.Kind, "tx", ev.TxHash.Hex())
		s.mu.Lock()
		delete(s.seen, ev.Key())
		s.mu.Unlock()
		_, err := s.Refresh(ctx)
		return err
	}

	s.mu.Lock()
	if _, dup := s.seen[ev.Key()]; dup {
		s.mu.Unlock()
		s.logger.Debug("duplicate event ignored", "kind", ev.Kind, "key", ev.Key())
		return nil
	}
	s.seen[ev.Key()] = struct{}{}
	s.mu.Unlock()

	s.bus.Publish(NewEvent(TypeLedgerEvent, ev))
	if _, err := s.Refresh(ctx); err != nil {
		// let a replay retry it
		s.mu.Lock()
		delete(s.seen, ev.Key())
		s.mu.Unlock()
		return err
	}
	if msg := alertMessage(ev); msg != "" {
		s.alert(ev.Kind, ev.SessionID, msg)
	}
	return nil
}

// HandleReceipt processes the events of a confirmed call.
func (s *Syncer) HandleReceipt(ctx context.Context, r *ledger.Receipt) error {
	if r == nil {
		return nil
	}
	if len(r.Events) == 0 {
		_, err := s.Refresh(ctx)
		return err
	}
	for _, ev := range r.Events {
		if err := s.Handle(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (s *Syncer) alert(kind ledger.EventKind, session uint64, msg string) {
	key := alertKey{kind: kind, session: session}
	s.mu.Lock()
	if _, done := s.alerted[key]; done {
		s.mu.Unlock()
		return
	}
	s.alerted[key] = struct{}{}
	s.mu.Unlock()
	s.bus.Publish(NewEvent(TypeAlert, Alert{Kind: kind, Session: session, Message: msg}))
}

func alertMessage(ev ledger.Event) string {
	switch ev.Kind {
	case ledger.EventSetupBegun:
		return "New session is ready for setup."
	case ledger.EventSessionStarted:
		return fmt.Sprintf("New session started!\nTopic: %s\nOptions: %s", ev.Topic, strings.Join(ev.Options, ", "))
	case ledger.EventVotingEnded:
		return "Voting has ended. Results can now be revealed."
	case ledger.EventResultsFinalized:
		return "Results are now available!"
	}
	return ""
}

// Run follows the ledger until ctx is done. Each (re)subscription is
// followed by a session re-read, so calls confirmed while disconnected are
// still picked up. Subscription errors are retried with exponential
// backoff.
func (s *Syncer) Run(ctx context.Context) error {
	backoff := s.MinBackoff
	for {
		established, err := s.follow(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if established {
			backoff = s.MinBackoff
		}
		s.logger.Warn("subscription lost, reconnecting", "error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, s.MaxBackoff)
	}
}

// follow consumes one subscription until it fails or ctx is done.
func (s *Syncer) follow(ctx context.Context) (bool, error) {
	sub, err := s.ledger.Subscribe(ctx)
	if err != nil {
		if _, rerr := s.Refresh(ctx); rerr != nil {
			s.logger.Warn("refresh failed", "error", rerr)
		}
		return false, err
	}
	defer sub.Unsubscribe()
	s.logger.Info("subscribed to ledger events")
	if _, err := s.Refresh(ctx); err != nil {
		s.logger.Warn("refresh failed", "error", err)
	}
	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case err, ok := <-sub.Err():
			if !ok {
				return true, errors.New("subscription closed")
			}
			return true, err
		case ev := <-sub.Events():
			if err := s.Handle(ctx, ev); err != nil {
				s.logger.Warn("failed to handle event", "kind", ev.Kind, "error", err)
			}
		}
	}
}
