// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package vault persists each voter's hidden choice between commit and reveal.

Records are stored under "<namespace>_<lower-cased address>" as JSON
{"optionIndex": n, "salt": "..."}. Lower-casing keeps one key per address
regardless of checksum casing, and the address suffix keeps voters apart:
Save, Load and Clear for one address never touch another's record.

	store, err := kv.OpenBadger(dir, logger)   // durable; "" for in-memory
	v := vault.New(store, vault.DefaultNamespace, logger)
	err = v.Save(optionIndex, salt, voter)
	rec, found, err := v.Load(voter)
	err = v.Clear(voter)                       // after a confirmed reveal

ListAllCommittedVoters only sees this machine's vault. A coordinator using
it to drive a batch reveal will miss commitments made elsewhere; the tally
package therefore takes the voter list from the ledger and only uses the
vault for secrets.
*/
package vault
