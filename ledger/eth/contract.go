// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package eth

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/danielhkuo/quickly-vote/ledger"
	"github.com/danielhkuo/quickly-vote/models"
)

// VotingABI is the voting contract interface: the CID variant plus the
// commit-reveal calls.
const VotingABI = `[
{"anonymous":false,"inputs":[{"indexed":true,"name":"sessionId","type":"uint256"}],"name":"CommenceSetup","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"sessionId","type":"uint256"},{"indexed":false,"name":"_voteCounts","type":"uint256[]"}],"name":"ResultsFinalized","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"sessionId","type":"uint256"},{"indexed":false,"name":"_topic","type":"string"},{"indexed":false,"name":"_options","type":"string[]"}],"name":"SessionStarted","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"sessionId","type":"uint256"},{"indexed":true,"name":"_voter","type":"address"},{"indexed":false,"name":"_cid","type":"string"}],"name":"VoteCasted","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"sessionId","type":"uint256"},{"indexed":true,"name":"_voter","type":"address"},{"indexed":false,"name":"_commitment","type":"bytes32"}],"name":"CommitmentCasted","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"sessionId","type":"uint256"},{"indexed":true,"name":"voter","type":"address"}],"name":"VoterExcluded","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"sessionId","type":"uint256"},{"indexed":true,"name":"voter","type":"address"}],"name":"VoterReinstated","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"sessionId","type":"uint256"}],"name":"VotingEnded","type":"event"},
{"inputs":[{"name":"_cid","type":"string"}],"name":"castVote","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"name":"_commitment","type":"bytes32"}],"name":"castCommitment","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[],"name":"coordinator","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"currentSessionId","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"endVoting","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"name":"_voter","type":"address"}],"name":"excludeVoter","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"name":"_voter","type":"address"}],"name":"getCommitment","outputs":[{"name":"","type":"bytes32"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"getExcludedVoters","outputs":[{"name":"","type":"address[]"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"getOptions","outputs":[{"name":"","type":"string[]"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"getPhase","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"getResults","outputs":[{"name":"","type":"uint256[]"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"getTallyComplete","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"getTopic","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"inputs":[{"name":"_voter","type":"address"}],"name":"getVoterCID","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"hasUserVoted","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"},
{"inputs":[{"name":"_voter","type":"address"}],"name":"reinstateVoter","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"name":"_voters","type":"address[]"},{"name":"_optionIndexes","type":"uint256[]"},{"name":"_salts","type":"string[]"}],"name":"revealVotes","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"name":"_finalVoteCounts","type":"uint256[]"}],"name":"setFinalResults","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"name":"_topic","type":"string"},{"name":"_options","type":"string[]"}],"name":"startSession","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[],"name":"startSetup","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// ParseABI parses VotingABI.
func ParseABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(VotingABI))
}

// SessionTopic is the indexed topic form of a session id.
func SessionTopic(id uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(id))
}

// decodeLog turns a contract log into a ledger event.
func decodeLog(contract abi.ABI, l types.Log) (ledger.Event, error) {
	if len(l.Topics) < 2 {
		return ledger.Event{}, fmt.Errorf("log %s:%d has %d topics", l.TxHash.Hex(), l.Index, len(l.Topics))
	}
	ev, err := contract.EventByID(l.Topics[0])
	if err != nil {
		return ledger.Event{}, err
	}
	values, err := ev.Inputs.NonIndexed().Unpack(l.Data)
	if err != nil {
		return ledger.Event{}, fmt.Errorf("failed to unpack %s: %w", ev.Name, err)
	}

	e := ledger.Event{
		Kind:        ledger.EventKind(ev.Name),
		SessionID:   new(big.Int).SetBytes(l.Topics[1].Bytes()).Uint64(),
		TxHash:      l.TxHash,
		LogIndex:    l.Index,
		BlockNumber: l.BlockNumber,
		Removed:     l.Removed,
	}
	if len(l.Topics) > 2 {
		e.Voter = common.BytesToAddress(l.Topics[2].Bytes())
	}

	switch e.Kind {
	case ledger.EventSessionStarted:
		if len(values) != 2 {
			return ledger.Event{}, fmt.Errorf("%s: got %d values", ev.Name, len(values))
		}
		e.Topic, _ = values[0].(string)
		e.Options, _ = values[1].([]string)
	case ledger.EventVoteCast:
		if len(values) != 1 {
			return ledger.Event{}, fmt.Errorf("%s: got %d values", ev.Name, len(values))
		}
		e.Payload, _ = values[0].(string)
	case ledger.EventCommitmentCast:
		if len(values) != 1 {
			return ledger.Event{}, fmt.Errorf("%s: got %d values", ev.Name, len(values))
		}
		hash, _ := values[0].([32]byte)
		e.Payload = common.Hash(hash).Hex()
	case ledger.EventResultsFinalized:
		if len(values) != 1 {
			return ledger.Event{}, fmt.Errorf("%s: got %d values", ev.Name, len(values))
		}
		counts, _ := values[0].([]*big.Int)
		e.Counts = toUint64s(counts)
	}
	return e, nil
}

func toUint64s(in []*big.Int) []uint64 {
	out := make([]uint64, len(in))
	for i, v := range in {
		out[i] = v.Uint64()
	}
	return out
}

func toBigInts(in []uint64) []*big.Int {
	out := make([]*big.Int, len(in))
	for i, v := range in {
		out[i] = new(big.Int).SetUint64(v)
	}
	return out
}

// revert reasons that carry the same wording as a domain error map onto it
var reasonErrors = []error{
	models.ErrPhaseViolation,
	models.ErrIneligible,
	models.ErrDuplicateSubmission,
	models.ErrNotCoordinator,
	models.ErrAlreadyFinalized,
	models.ErrCommitmentMismatch,
	models.ErrInvalidSession,
	models.ErrInvalidOption,
}

// asRevert reports whether err is a contract revert and, if so, returns
// the decoded reason.
func asRevert(err error) (error, bool) {
	var de rpc.DataError
	if errors.As(err, &de) {
		reason := err.Error()
		if s, ok := de.ErrorData().(string); ok {
			if data, derr := hexutil.Decode(s); derr == nil {
				if r, uerr := abi.UnpackRevert(data); uerr == nil {
					reason = r
				}
			}
		}
		return reasonError(reason), true
	}
	if strings.Contains(err.Error(), "execution reverted") {
		return reasonError(err.Error()), true
	}
	return err, false
}

func reasonError(reason string) error {
	for _, known := range reasonErrors {
		if strings.Contains(reason, known.Error()) {
			return fmt.Errorf("%w: %s", known, reason)
		}
	}
	return errors.New(reason)
}

// refused reports whether err is a JSON-RPC error response: the node
// answered and did not accept the transaction.
func refused(err error) bool {
	var re rpc.Error
	return errors.As(err, &re)
}
