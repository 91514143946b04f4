// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/danielhkuo/quickly-vote/kv"
	"github.com/danielhkuo/quickly-vote/models"
)

// DefaultNamespace prefixes every vault key.
const DefaultNamespace = "voteSecret"

var ErrInvalidAddress = errors.New("invalid voter address")

// Vault stores each voter's pending SecretRecord between commit and reveal.
type Vault struct {
	kv        kv.Store
	namespace string
	logger    *slog.Logger
}

func New(store kv.Store, namespace string, logger *slog.Logger) *Vault {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Vault{kv: store, namespace: namespace, logger: logger.With("component", "vault")}
}

// Key returns "<namespace>_<lower-cased address>". Every case variant of an
// address maps to the same key.
func (v *Vault) Key(voter string) (string, error) {
	if !common.IsHexAddress(voter) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, voter)
	}
	return v.prefix() + strings.ToLower(common.HexToAddress(voter).Hex()), nil
}

func (v *Vault) prefix() string {
	return v.namespace + "_"
}

// Save records the secret for voter, replacing any previous one.
func (v *Vault) Save(optionIndex int, salt string, voter string) error {
	if salt == "" {
		return errors.New("refusing to store an empty salt")
	}
	if optionIndex < 0 {
		return fmt.Errorf("refusing to store negative option index %d", optionIndex)
	}
	key, err := v.Key(voter)
	if err != nil {
		return err
	}
	data, err := json.Marshal(models.SecretRecord{OptionIndex: optionIndex, Salt: salt})
	if err != nil {
		return err
	}
	if err := v.kv.Set(key, data); err != nil {
		return fmt.Errorf("failed to save secret: %w", err)
	}
	v.logger.Debug("secret saved", "key", key)
	return nil
}

// Load returns voter's secret. found is false when nothing is stored.
func (v *Vault) Load(voter string) (rec models.SecretRecord, found bool, err error) {
	key, err := v.Key(voter)
	if err != nil {
		return models.SecretRecord{}, false, err
	}
	data, err := v.kv.Get(key)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return models.SecretRecord{}, false, nil
	}
	if err != nil {
		return models.SecretRecord{}, false, fmt.Errorf("failed to load secret: %w", err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.SecretRecord{}, false, fmt.Errorf("corrupt secret under %s: %w", key, err)
	}
	return rec, true, nil
}

// Clear removes voter's secret. Clearing an absent secret is not an error.
func (v *Vault) Clear(voter string) error {
	key, err := v.Key(voter)
	if err != nil {
		return err
	}
	if err := v.kv.Delete(key); err != nil {
		return fmt.Errorf("failed to clear secret: %w", err)
	}
	v.logger.Debug("secret cleared", "key", key)
	return nil
}

// ListAllCommittedVoters enumerates the voters with a stored secret.
//
// This reads this machine's vault only. Commitments made from another
// machine or an earlier wiped vault are invisible here.
func (v *Vault) ListAllCommittedVoters() ([]common.Address, error) {
	keys, err := v.kv.Keys(v.prefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list secrets: %w", err)
	}
	v.logger.Warn("committed voters are discovered from local storage only; commitments made on other machines are not listed",
		"namespace", v.namespace,
		"found", len(keys),
	)
	voters := make([]common.Address, 0, len(keys))
	for _, k := range keys {
		suffix := strings.TrimPrefix(k, v.prefix())
		if !common.IsHexAddress(suffix) {
			v.logger.Debug("skipping foreign key", "key", k)
			continue
		}
		voters = append(voters, common.HexToAddress(suffix))
	}
	sort.Slice(voters, func(i, j int) bool {
		return voters[i].Cmp(voters[j]) < 0
	})
	return voters, nil
}

// Close releases the underlying store.
func (v *Vault) Close() error {
	return v.kv.Close()
}
