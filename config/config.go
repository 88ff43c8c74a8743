package config

import (
	"encoding/json"
	"os"

	"github.com/holiman/uint256"
)

// GenesisConfig describes the chain's initial state.
type GenesisConfig struct {
	ChainID string                  `json:"chain_id"`
	Alloc   map[string]*uint256.Int `json:"alloc"` // pubkey hex → initial balance
}

// Config holds all node configuration.
type Config struct {
	NodeID        string        `json:"node_id"`
	DataDir       string        `json:"data_dir"`
	RPCPort       int           `json:"rpc_port"`
	RPCAuthToken  string        `json:"rpc_auth_token"` // empty → no auth
	MaxBlockTxs   int           `json:"max_block_txs"`  // max transactions per block; 0 → 500
	BlockInterval int           `json:"block_interval"` // seconds between blocks; 0 → 2
	Validators    []string      `json:"validators"`     // authorised proposer pubkey hexes
	Genesis       GenesisConfig `json:"genesis"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:        "node0",
		DataDir:       "./data",
		RPCPort:       8545,
		MaxBlockTxs:   500,
		BlockInterval: 2,
		Genesis: GenesisConfig{
			ChainID: "duelchain-dev",
			Alloc:   map[string]*uint256.Int{},
		},
	}
}

// Load reads a JSON config file from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
