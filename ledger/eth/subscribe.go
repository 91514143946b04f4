// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package eth

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/danielhkuo/quickly-vote/ledger"
)

// Subscribe streams every contract event. The backend must support log
// subscriptions (a websocket or IPC endpoint).
func (c *Client) Subscribe(ctx context.Context) (ledger.Subscription, error) {
	logs := make(chan types.Log, 64)
	inner, err := c.backend.SubscribeFilterLogs(ctx, ethereum.FilterQuery{
		Addresses: []common.Address{c.contract},
	}, logs)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	s := &subscription{
		inner:  inner,
		events: make(chan ledger.Event, 64),
		errs:   make(chan error, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.loop(c, logs)
	return s, nil
}

type subscription struct {
	inner  ethereum.Subscription
	events chan ledger.Event
	errs   chan error
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) loop(c *Client, logs <-chan types.Log) {
	defer close(s.done)
	for {
		select {
		case l := <-logs:
			e, err := decodeLog(c.abi, l)
			if err != nil {
				c.logger.Warn("skipping undecodable log", "tx", l.TxHash.Hex(), "index", l.Index, "error", err)
				continue
			}
			select {
			case s.events <- e:
			case <-s.quit:
				return
			}
		case err := <-s.inner.Err():
			if err != nil {
				s.errs <- err
			}
			return
		case <-s.quit:
			return
		}
	}
}

func (s *subscription) Events() <-chan ledger.Event { return s.events }
func (s *subscription) Err() <-chan error           { return s.errs }

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.quit)
		s.inner.Unsubscribe()
		<-s.done
		close(s.errs)
	})
}
