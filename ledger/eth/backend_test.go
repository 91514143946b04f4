// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package eth

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"

	"github.com/danielhkuo/quickly-vote/ledger"
	"github.com/danielhkuo/quickly-vote/ledger/memory"
	"github.com/danielhkuo/quickly-vote/models"
)

// fakeBackend decodes ABI calldata and signed transactions and runs them
// against an in-memory chain, so the client's packing, signing and log
// decoding are exercised end to end.
type fakeBackend struct {
	abi      abi.ABI
	contract common.Address
	chain    *memory.Chain
	chainID  *big.Int

	mu            sync.Mutex
	nonces        map[common.Address]uint64
	receipts      map[common.Hash]*types.Receipt
	misses        map[common.Hash]int
	receiptMisses int
	sent          int
	// chainIDErrs fails that many ChainID calls.
	chainIDErrs int
	// dropSendReply applies the next transaction but reports a transport
	// error to the sender.
	dropSendReply bool
	// refuseSend answers the next SendTransaction with a JSON-RPC error.
	refuseSend bool
	// viewBlocks records the block argument of every view call.
	viewBlocks []*big.Int
}

type rpcError struct {
	msg  string
	code int
}

func (e *rpcError) Error() string  { return e.msg }
func (e *rpcError) ErrorCode() int { return e.code }

func newFakeBackend(chain *memory.Chain, contract common.Address) *fakeBackend {
	parsed, err := ParseABI()
	if err != nil {
		panic(err)
	}
	return &fakeBackend{
		abi:      parsed,
		contract: contract,
		chain:    chain,
		chainID:  big.NewInt(1337),
		nonces:   make(map[common.Address]uint64),
		receipts: make(map[common.Hash]*types.Receipt),
		misses:   make(map[common.Hash]int),
	}
}

type revertError struct{ reason string }

func (e *revertError) Error() string { return "execution reverted: " + e.reason }

func (e *revertError) ErrorData() interface{} {
	stringType, _ := abi.NewType("string", "", nil)
	packed, _ := abi.Arguments{{Type: stringType}}.Pack(e.reason)
	selector := crypto.Keccak256([]byte("Error(string)"))[:4]
	return hexutil.Encode(append(selector, packed...))
}

func (f *fakeBackend) decode(data []byte) (*abi.Method, []any, error) {
	if len(data) < 4 {
		return nil, nil, errors.New("short calldata")
	}
	method, err := f.abi.MethodById(data[:4])
	if err != nil {
		return nil, nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, err
	}
	return method, args, nil
}

func (f *fakeBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	method, args, err := f.decode(msg.Data)
	if err != nil {
		return nil, err
	}
	client := f.chain.Connect(msg.From)
	s := f.chain.Snapshot()
	if method.IsConstant() {
		f.mu.Lock()
		f.viewBlocks = append(f.viewBlocks, block)
		f.mu.Unlock()
	}

	if !method.IsConstant() {
		op := models.Op(method.Name)
		coordinator, _ := client.Coordinator(ctx)
		if op.CoordinatorOnly() && msg.From != coordinator {
			return nil, &revertError{reason: models.ErrNotCoordinator.Error()}
		}
		if err := s.Permits(op); err != nil {
			return nil, &revertError{reason: err.Error()}
		}
		return nil, nil
	}

	switch method.Name {
	case "coordinator":
		addr, _ := client.Coordinator(ctx)
		return method.Outputs.Pack(addr)
	case "currentSessionId":
		return method.Outputs.Pack(new(big.Int).SetUint64(s.ID))
	case "getPhase":
		return method.Outputs.Pack(string(s.Phase))
	case "getTopic":
		return method.Outputs.Pack(s.Topic)
	case "getOptions":
		return method.Outputs.Pack(append([]string{}, s.Options...))
	case "getExcludedVoters":
		return method.Outputs.Pack(append([]common.Address{}, s.ExcludedVoters...))
	case "getTallyComplete":
		return method.Outputs.Pack(s.TallyComplete)
	case "getResults":
		return method.Outputs.Pack(toBigInts(s.Results))
	case "hasUserVoted":
		voted, _ := client.HasVoted(ctx, msg.From)
		return method.Outputs.Pack(voted)
	case "getCommitment":
		hash, _ := client.Commitment(ctx, args[0].(common.Address))
		return method.Outputs.Pack([32]byte(hash))
	}
	return nil, fmt.Errorf("unsupported view %s", method.Name)
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chainIDErrs > 0 {
		f.chainIDErrs--
		return nil, errors.New("connection refused")
	}
	return f.chainID, nil
}

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) {
	return f.chain.BlockNumber(), nil
}

func (f *fakeBackend) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonces[account], nil
}

func (f *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	refuse := f.refuseSend
	f.refuseSend = false
	f.mu.Unlock()
	if refuse {
		return &rpcError{msg: "nonce too low", code: -32000}
	}
	from, err := types.Sender(types.LatestSignerForChainID(f.chainID), tx)
	if err != nil {
		return err
	}
	method, args, err := f.decode(tx.Data())
	if err != nil {
		return err
	}
	client := f.chain.Connect(from)

	var r *ledger.Receipt
	switch method.Name {
	case "startSetup":
		r, err = client.StartSetup(ctx)
	case "startSession":
		r, err = client.StartSession(ctx, args[0].(string), args[1].([]string))
	case "endVoting":
		r, err = client.EndVoting(ctx)
	case "excludeVoter":
		r, err = client.ExcludeVoter(ctx, args[0].(common.Address))
	case "reinstateVoter":
		r, err = client.ReinstateVoter(ctx, args[0].(common.Address))
	case "castVote":
		r, err = client.CastVote(ctx, args[0].(string))
	case "castCommitment":
		r, err = client.CastCommitment(ctx, common.Hash(args[0].([32]byte)))
	case "revealVotes":
		r, err = client.RevealVotes(ctx, args[0].([]common.Address), toUint64s(args[1].([]*big.Int)), args[2].([]string))
	case "setFinalResults":
		r, err = client.SetFinalResults(ctx, toUint64s(args[0].([]*big.Int)))
	default:
		return fmt.Errorf("unsupported transaction %s", method.Name)
	}

	receipt := &types.Receipt{
		TxHash:      tx.Hash(),
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: new(big.Int),
	}
	if err != nil {
		receipt.Status = types.ReceiptStatusFailed
	} else {
		receipt.BlockNumber.SetUint64(r.BlockNumber)
		for _, ev := range r.Events {
			receipt.Logs = append(receipt.Logs, f.encode(ev))
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonces[from]++
	f.sent++
	f.receipts[tx.Hash()] = receipt
	if f.dropSendReply {
		f.dropSendReply = false
		return errors.New("connection reset by peer")
	}
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.misses[hash] < f.receiptMisses {
		f.misses[hash]++
		return nil, ethereum.NotFound
	}
	r, ok := f.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (f *fakeBackend) encode(ev ledger.Event) *types.Log {
	abiEvent := f.abi.Events[string(ev.Kind)]
	topics := []common.Hash{abiEvent.ID, SessionTopic(ev.SessionID)}
	var values []any
	switch ev.Kind {
	case ledger.EventVoteCast:
		topics = append(topics, common.BytesToHash(ev.Voter.Bytes()))
		values = []any{ev.Payload}
	case ledger.EventCommitmentCast:
		topics = append(topics, common.BytesToHash(ev.Voter.Bytes()))
		values = []any{[32]byte(common.HexToHash(ev.Payload))}
	case ledger.EventVoterExcluded, ledger.EventVoterReinstated:
		topics = append(topics, common.BytesToHash(ev.Voter.Bytes()))
	case ledger.EventSessionStarted:
		values = []any{ev.Topic, ev.Options}
	case ledger.EventResultsFinalized:
		values = []any{toBigInts(ev.Counts)}
	}
	data, err := abiEvent.Inputs.NonIndexed().Pack(values...)
	if err != nil {
		panic(err)
	}
	return &types.Log{
		Address:     f.contract,
		Topics:      topics,
		Data:        data,
		BlockNumber: ev.BlockNumber,
		TxHash:      ev.TxHash,
		Index:       ev.LogIndex,
		Removed:     ev.Removed,
	}
}

func (f *fakeBackend) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	var out []types.Log
	for _, ev := range f.chain.Logs() {
		l := f.encode(ev)
		if matches(q, l) {
			out = append(out, *l)
		}
	}
	return out, nil
}

func matches(q ethereum.FilterQuery, l *types.Log) bool {
	if len(q.Addresses) > 0 {
		found := false
		for _, a := range q.Addresses {
			if a == l.Address {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	for i, set := range q.Topics {
		if len(set) == 0 {
			continue
		}
		if i >= len(l.Topics) {
			return false
		}
		found := false
		for _, t := range set {
			if t == l.Topics[i] {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (f *fakeBackend) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	sub, err := f.chain.Connect(common.Address{}).Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case ev := <-sub.Events():
				l := f.encode(ev)
				if !matches(q, l) {
					continue
				}
				select {
				case ch <- *l:
				case <-quit:
					return nil
				}
			case err, ok := <-sub.Err():
				if !ok {
					return nil
				}
				return err
			case <-quit:
				return nil
			}
		}
	}), nil
}

func (f *fakeBackend) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent
}
