// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package eth

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/danielhkuo/quickly-vote/ledger"
	"github.com/danielhkuo/quickly-vote/models"
)

const (
	DefaultReceiptTimeout = 2 * time.Minute
	DefaultPollInterval   = 2 * time.Second
)

var ErrReadOnly = errors.New("no signing key configured")

// Backend is the node API the client needs. *ethclient.Client satisfies it.
type Backend interface {
	ethereum.ContractCaller
	ethereum.LogFilterer
	ethereum.TransactionSender
	ethereum.GasPricer
	ethereum.GasEstimator
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

type Config struct {
	Contract common.Address
	// Key signs mutating calls. Without it the client is read-only and
	// From is used as the caller for views.
	Key        *ecdsa.PrivateKey
	From       common.Address
	StartBlock uint64
	// ReceiptTimeout bounds the wait for a sent transaction to be mined.
	ReceiptTimeout time.Duration
	PollInterval   time.Duration
	Logger         *slog.Logger
}

// Client talks to a deployed voting contract.
type Client struct {
	backend        Backend
	abi            abi.ABI
	contract       common.Address
	key            *ecdsa.PrivateKey
	account        common.Address
	startBlock     uint64
	receiptTimeout time.Duration
	pollInterval   time.Duration
	logger         *slog.Logger

	chainMu sync.Mutex
	chainID *big.Int
}

var _ ledger.Ledger = (*Client)(nil)

// Dial connects to rpcURL and returns a client for cfg.Contract.
func Dial(ctx context.Context, rpcURL string, cfg Config) (*Client, error) {
	backend, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", rpcURL, err)
	}
	return New(backend, cfg)
}

func New(backend Backend, cfg Config) (*Client, error) {
	parsed, err := ParseABI()
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract ABI: %w", err)
	}
	if cfg.Contract == (common.Address{}) {
		return nil, errors.New("contract address is required")
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = DefaultReceiptTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	account := cfg.From
	if cfg.Key != nil {
		account = crypto.PubkeyToAddress(cfg.Key.PublicKey)
	}
	return &Client{
		backend:        backend,
		abi:            parsed,
		contract:       cfg.Contract,
		key:            cfg.Key,
		account:        account,
		startBlock:     cfg.StartBlock,
		receiptTimeout: cfg.ReceiptTimeout,
		pollInterval:   cfg.PollInterval,
		logger:         cfg.Logger.With("component", "ledger", "contract", cfg.Contract.Hex()),
	}, nil
}

// ParseKey reads a hex private key, with or without 0x.
func ParseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	if len(hexKey) >= 2 && (hexKey[:2] == "0x" || hexKey[:2] == "0X") {
		hexKey = hexKey[2:]
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

func (c *Client) Account() common.Address {
	return c.account
}

// call runs a view at block, or at the latest block when block is nil.
func (c *Client) call(ctx context.Context, from common.Address, block *big.Int, method string, args ...any) ([]any, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{From: from, To: &c.contract, Data: data}, block)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	values, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%s returned %d values", method, len(values))
	}
	return values, nil
}

func (c *Client) Coordinator(ctx context.Context) (common.Address, error) {
	out, err := c.call(ctx, c.account, nil, "coordinator")
	if err != nil {
		return common.Address{}, err
	}
	addr, _ := out[0].(common.Address)
	return addr, nil
}

// Session reads every field at one block so the snapshot is consistent.
func (c *Client) Session(ctx context.Context) (models.Session, error) {
	var s models.Session

	head, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return s, fmt.Errorf("failed to read block number: %w", err)
	}
	at := new(big.Int).SetUint64(head)

	out, err := c.call(ctx, c.account, at, "currentSessionId")
	if err != nil {
		return s, err
	}
	if id, ok := out[0].(*big.Int); ok {
		s.ID = id.Uint64()
	}

	out, err = c.call(ctx, c.account, at, "getPhase")
	if err != nil {
		return s, err
	}
	phase, _ := out[0].(string)
	if s.Phase, err = models.ParsePhase(phase); err != nil {
		return s, err
	}

	out, err = c.call(ctx, c.account, at, "getTopic")
	if err != nil {
		return s, err
	}
	s.Topic, _ = out[0].(string)

	out, err = c.call(ctx, c.account, at, "getOptions")
	if err != nil {
		return s, err
	}
	s.Options, _ = out[0].([]string)

	out, err = c.call(ctx, c.account, at, "getExcludedVoters")
	if err != nil {
		return s, err
	}
	s.ExcludedVoters, _ = out[0].([]common.Address)

	out, err = c.call(ctx, c.account, at, "getTallyComplete")
	if err != nil {
		return s, err
	}
	s.TallyComplete, _ = out[0].(bool)

	if s.TallyComplete {
		out, err = c.call(ctx, c.account, at, "getResults")
		if err != nil {
			return s, err
		}
		counts, _ := out[0].([]*big.Int)
		s.Results = toUint64s(counts)
	}
	return s, nil
}

// HasVoted asks the contract with voter as the caller, since hasUserVoted
// reads msg.sender.
func (c *Client) HasVoted(ctx context.Context, voter common.Address) (bool, error) {
	out, err := c.call(ctx, voter, nil, "hasUserVoted")
	if err != nil {
		return false, err
	}
	voted, _ := out[0].(bool)
	return voted, nil
}

func (c *Client) Commitment(ctx context.Context, voter common.Address) (common.Hash, error) {
	out, err := c.call(ctx, c.account, nil, "getCommitment", voter)
	if err != nil {
		return common.Hash{}, err
	}
	hash, _ := out[0].([32]byte)
	return common.Hash(hash), nil
}

func (c *Client) VoteEvents(ctx context.Context, sessionID uint64) ([]models.VoteLogEntry, error) {
	return c.entries(ctx, ledger.EventVoteCast, sessionID)
}

func (c *Client) CommitmentEvents(ctx context.Context, sessionID uint64) ([]models.VoteLogEntry, error) {
	return c.entries(ctx, ledger.EventCommitmentCast, sessionID)
}

func (c *Client) entries(ctx context.Context, kind ledger.EventKind, sessionID uint64) ([]models.VoteLogEntry, error) {
	ev, ok := c.abi.Events[string(kind)]
	if !ok {
		return nil, fmt.Errorf("unknown event %s", kind)
	}
	logs, err := c.backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(c.startBlock),
		Addresses: []common.Address{c.contract},
		Topics:    [][]common.Hash{{ev.ID}, {SessionTopic(sessionID)}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to filter %s logs: %w", kind, err)
	}
	out := make([]models.VoteLogEntry, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		e, err := decodeLog(c.abi, l)
		if err != nil {
			c.logger.Warn("skipping undecodable log", "tx", l.TxHash.Hex(), "index", l.Index, "error", err)
			continue
		}
		out = append(out, e.LogEntry())
	}
	return out, nil
}

func (c *Client) StartSetup(ctx context.Context) (*ledger.Receipt, error) {
	return c.transact(ctx, models.OpStartSetup)
}

func (c *Client) StartSession(ctx context.Context, topic string, options []string) (*ledger.Receipt, error) {
	return c.transact(ctx, models.OpStartSession, topic, options)
}

func (c *Client) EndVoting(ctx context.Context) (*ledger.Receipt, error) {
	return c.transact(ctx, models.OpEndVoting)
}

func (c *Client) ExcludeVoter(ctx context.Context, voter common.Address) (*ledger.Receipt, error) {
	return c.transact(ctx, models.OpExcludeVoter, voter)
}

func (c *Client) ReinstateVoter(ctx context.Context, voter common.Address) (*ledger.Receipt, error) {
	return c.transact(ctx, models.OpReinstateVoter, voter)
}

func (c *Client) CastVote(ctx context.Context, cid string) (*ledger.Receipt, error) {
	return c.transact(ctx, models.OpCastVote, cid)
}

func (c *Client) CastCommitment(ctx context.Context, hash common.Hash) (*ledger.Receipt, error) {
	return c.transact(ctx, models.OpCastCommitment, [32]byte(hash))
}

func (c *Client) RevealVotes(ctx context.Context, voters []common.Address, optionIndexes []uint64, salts []string) (*ledger.Receipt, error) {
	return c.transact(ctx, models.OpRevealVotes, voters, toBigInts(optionIndexes), salts)
}

func (c *Client) SetFinalResults(ctx context.Context, counts []uint64) (*ledger.Receipt, error) {
	return c.transact(ctx, models.OpSetFinalResults, toBigInts(counts))
}

// chain returns the chain ID, caching it after the first successful read.
func (c *Client) chain(ctx context.Context) (*big.Int, error) {
	c.chainMu.Lock()
	defer c.chainMu.Unlock()
	if c.chainID != nil {
		return c.chainID, nil
	}
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	c.chainID = id
	return id, nil
}

// transact simulates the call, signs and sends it, then waits for the
// receipt. Reverts in simulation or on chain are returned as
// models.ErrLedgerRejected.
func (c *Client) transact(ctx context.Context, op models.Op, args ...any) (*ledger.Receipt, error) {
	if c.key == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrReadOnly)
	}
	data, err := c.abi.Pack(string(op), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", op, err)
	}
	msg := ethereum.CallMsg{From: c.account, To: &c.contract, Data: data}

	if _, err := c.backend.CallContract(ctx, msg, nil); err != nil {
		if reason, ok := asRevert(err); ok {
			return nil, models.Rejected(op, reason)
		}
		return nil, fmt.Errorf("%s: simulation failed: %w", op, err)
	}
	gas, err := c.backend.EstimateGas(ctx, msg)
	if err != nil {
		if reason, ok := asRevert(err); ok {
			return nil, models.Rejected(op, reason)
		}
		return nil, fmt.Errorf("%s: gas estimation failed: %w", op, err)
	}
	nonce, err := c.backend.PendingNonceAt(ctx, c.account)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get nonce: %w", op, err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get gas price: %w", op, err)
	}
	chainID, err := c.chain(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get chain id: %w", op, err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas + gas/5,
		To:       &c.contract,
		Value:    new(big.Int),
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to sign: %w", op, err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		if reason, ok := asRevert(err); ok {
			return nil, models.Rejected(op, reason)
		}
		if refused(err) {
			return nil, fmt.Errorf("%s: failed to send: %w", op, err)
		}
		// the node may have received it before the connection failed
		return nil, &ledger.UnconfirmedError{Op: op, TxHash: signed.Hash(), Err: err}
	}
	c.logger.Info("transaction sent", "op", op, "tx", signed.Hash().Hex(), "nonce", nonce)

	receipt, err := c.waitReceipt(ctx, signed.Hash())
	if err != nil {
		return nil, &ledger.UnconfirmedError{Op: op, TxHash: signed.Hash(), Err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, models.Rejected(op, fmt.Errorf("transaction %s reverted", signed.Hash().Hex()))
	}

	out := &ledger.Receipt{TxHash: receipt.TxHash, BlockNumber: receipt.BlockNumber.Uint64()}
	for _, l := range receipt.Logs {
		if l == nil || l.Address != c.contract {
			continue
		}
		e, err := decodeLog(c.abi, *l)
		if err != nil {
			c.logger.Warn("skipping undecodable receipt log", "tx", l.TxHash.Hex(), "error", err)
			continue
		}
		out.Events = append(out.Events, e)
	}
	c.logger.Info("transaction confirmed", "op", op, "tx", receipt.TxHash.Hex(), "block", out.BlockNumber, "events", len(out.Events))
	return out, nil
}

func (c *Client) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("failed to get receipt for %s: %w", hash.Hex(), err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("no receipt for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
