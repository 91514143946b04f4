// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package eventsync propagates ledger confirmations to observers.

A Syncer feeds ledger events, from a subscription (Run) or from the receipt
of a call this process made (HandleReceipt), into a Bus:

	TypeLedgerEvent   every new event, once
	TypeStateChanged  the session after a refresh, only when it changed
	TypeAlert         user-facing notice, once per kind and session

Handlers never apply an event's payload. They re-read the session, so
duplicates from reconnects are harmless and calls confirmed after the
caller gave up are still observed.
*/
package eventsync
