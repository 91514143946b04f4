// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package tally turns the ledger's vote log into final results.

Run handles CID ballots:

 1. read the session's vote events and keep the first per voter
 2. fetch every ballot document, a bounded number at a time, each under
    its own timeout
 3. count documents bound to the event's voter and the current session
    with an in-range option; everything else is reported, not counted
 4. submit the counts with setFinalResults
 5. delete the consumed documents, best effort

Reveal handles commit-reveal: secrets come from the vault, are checked
against the recorded commitments, and the verified ones go out in a single
revealVotes call.

Both treat an already finalized session as success. Counts are plain sums,
so the fetch order never changes the result.

	e := tally.New(l, store, tally.Options{Workers: 8, Registerer: reg})
	report, err := e.Run(ctx)
	fmt.Println(tally.Winners(session.Options, report.Counts))
*/
package tally
