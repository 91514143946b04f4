// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/danielhkuo/quickly-vote/models"
	"github.com/danielhkuo/quickly-vote/tally"
	"github.com/danielhkuo/quickly-vote/vault"
)

type ctxKey string

const configContextKey ctxKey = "quickly-vote.config"

// EnvPrefix prefixes every environment variable, e.g. VOTE_RPC_URL.
const EnvPrefix = "vote"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

// Variant selects how a vote is recorded on the ledger.
type Variant string

const (
	VariantCID          Variant = "cid"           // ballot document CID, off-chain tally
	VariantCommitReveal Variant = "commit-reveal" // hash commitment, batch reveal
)

func (v Variant) Valid() bool {
	return v == VariantCID || v == VariantCommitReveal
}

const (
	DefaultRelayURL     = "http://localhost:3318"
	DefaultRelayTimeout = 15 * time.Second
	DefaultVaultDir     = ".quickly-vote/vault"
)

type Config struct {
	RPCURL          string `yaml:"rpcUrl"          envconfig:"RPC_URL"`
	ContractAddress string `yaml:"contractAddress" envconfig:"CONTRACT_ADDRESS"`
	// PrivateKey signs transactions. Without it only reads work, as
	// Account.
	PrivateKey     string        `yaml:"privateKey"     envconfig:"PRIVATE_KEY"`
	Account        string        `yaml:"account"        envconfig:"ACCOUNT"`
	StartBlock     uint64        `yaml:"startBlock"     envconfig:"START_BLOCK"`
	ReceiptTimeout time.Duration `yaml:"receiptTimeout" envconfig:"RECEIPT_TIMEOUT"`

	RelayURL     string        `yaml:"relayUrl"     envconfig:"RELAY_URL"`
	RelayAPIKey  string        `yaml:"relayApiKey"  envconfig:"RELAY_API_KEY"`
	RelayTimeout time.Duration `yaml:"relayTimeout" envconfig:"RELAY_TIMEOUT"`

	VaultDir       string `yaml:"vaultDir"       envconfig:"VAULT_DIR"`
	VaultNamespace string `yaml:"vaultNamespace" envconfig:"VAULT_NAMESPACE"`

	TallyWorkers int           `yaml:"tallyWorkers" envconfig:"TALLY_WORKERS"`
	FetchTimeout time.Duration `yaml:"fetchTimeout" envconfig:"FETCH_TIMEOUT"`

	ExclusionCarryOver bool    `yaml:"exclusionCarryOver" envconfig:"EXCLUSION_CARRY_OVER"`
	Variant            Variant `yaml:"variant"            envconfig:"VARIANT"`
}

func defaults() *Config {
	return &Config{
		RelayURL:       DefaultRelayURL,
		RelayTimeout:   DefaultRelayTimeout,
		VaultDir:       DefaultVaultDir,
		VaultNamespace: vault.DefaultNamespace,
		TallyWorkers:   tally.DefaultWorkers,
		FetchTimeout:   tally.DefaultFetchTimeout,
		Variant:        VariantCID,
	}
}

// LoadConfig reads the YAML file at path (skipped when empty or missing)
// and then applies VOTE_* environment variables on top.
func LoadConfig(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err == nil {
			dec := yaml.NewDecoder(bytes.NewReader(buf))
			dec.KnownFields(true)
			if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("error parsing config file: %w", err)
			}
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that do not depend on which command runs.
func (c *Config) Validate() error {
	if !c.Variant.Valid() {
		return fmt.Errorf("invalid variant %q (must be %q or %q)", c.Variant, VariantCID, VariantCommitReveal)
	}
	if c.ContractAddress != "" && !common.IsHexAddress(c.ContractAddress) {
		return fmt.Errorf("invalid contract address %q", c.ContractAddress)
	}
	if c.Account != "" && !common.IsHexAddress(c.Account) {
		return fmt.Errorf("invalid account %q", c.Account)
	}
	if c.TallyWorkers < 0 {
		return fmt.Errorf("tallyWorkers must not be negative, got %d", c.TallyWorkers)
	}
	return nil
}

// RequireLedger checks the settings needed to reach the contract.
func (c *Config) RequireLedger() error {
	if c.RPCURL == "" {
		return errors.New("rpcUrl (VOTE_RPC_URL) is required")
	}
	if c.ContractAddress == "" {
		return errors.New("contractAddress (VOTE_CONTRACT_ADDRESS) is required")
	}
	return nil
}

func (c *Config) Policy() models.Policy {
	return models.Policy{ExclusionCarryOver: c.ExclusionCarryOver}
}
