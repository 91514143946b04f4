// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package tally

import "strings"

// Result is the winner determination for a finalized session.
type Result struct {
	// Winners is empty when no votes were cast, otherwise the options with
	// the highest count in declaration order.
	Winners []string
	Max     uint64
}

func (r Result) NoVotes() bool { return len(r.Winners) == 0 }
func (r Result) Tie() bool     { return len(r.Winners) > 1 }

func (r Result) String() string {
	switch len(r.Winners) {
	case 0:
		return "No winner, no votes were casted."
	case 1:
		return "The winner is: " + r.Winners[0]
	}
	return "It's a tie between: " + strings.Join(r.Winners, " and ")
}

// Winners picks the option(s) with the highest count. counts is aligned to
// options; missing counts are zero.
func Winners(options []string, counts []uint64) Result {
	var max uint64
	for i := range options {
		if i < len(counts) && counts[i] > max {
			max = counts[i]
		}
	}
	r := Result{Max: max}
	if max == 0 {
		return r
	}
	for i, o := range options {
		if i < len(counts) && counts[i] == max {
			r.Winners = append(r.Winners, o)
		}
	}
	return r
}
