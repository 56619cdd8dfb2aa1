// Package config is the injected configuration record every component
// receives explicitly — never a process-wide singleton, per spec.md §9.
package config

import (
	"os"
	"strings"

	"github.com/naoina/toml"

	"github.com/boocoin/boocoin/common"
)

// DefaultPeerPort is the default P2P listener port (spec.md §4.6).
const DefaultPeerPort = 9811

// Config is the full set of enumerated options spec.md §9 calls for:
// peers[], miner_pk, miner_sk, wallet_pk, self_endpoint, block_extra_data —
// plus the HTTP bind address and database path needed to actually run a
// node.
type Config struct {
	Nodes           []string `toml:"nodes"`
	MinerPublicKey  string   `toml:"miner_public_key"`
	MinerPrivateKey string   `toml:"miner_private_key"`
	WalletPublicKey string   `toml:"wallet_public_key"`
	BlockExtraData  string   `toml:"block_extra_data"` // hex-encoded in the file
	MinerIP         string   `toml:"miner_ip"`

	HTTPAddr string `toml:"http_addr"`
	P2PAddr  string `toml:"p2p_addr"`
	DBPath   string `toml:"db_path"`
}

// Default returns a Config with reasonable standalone defaults; callers
// overlay a file and/or environment on top of it.
func Default() Config {
	return Config{
		HTTPAddr: "127.0.0.1:8000",
		P2PAddr:  "0.0.0.0:9811",
		DBPath:   "boocoin.sqlite3",
	}
}

// Load reads a TOML config file at path (if it exists) over the defaults,
// then applies environment variable overrides, matching spec.md §6's
// "environment or file" configuration rule.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return Config{}, &common.ConfigurationError{Reason: "parsing config file: " + err.Error()}
			}
		} else if !os.IsNotExist(err) {
			return Config{}, &common.ConfigurationError{Reason: "reading config file: " + err.Error()}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("BOOCOIN_NODES"); v != "" {
		cfg.Nodes = splitAndTrim(v)
	}
	if v := os.Getenv("BOOCOIN_MINER_PUBLIC_KEY"); v != "" {
		cfg.MinerPublicKey = v
	}
	if v := os.Getenv("BOOCOIN_MINER_PRIVATE_KEY"); v != "" {
		cfg.MinerPrivateKey = v
	}
	if v := os.Getenv("BOOCOIN_WALLET_PUBLIC_KEY"); v != "" {
		cfg.WalletPublicKey = v
	}
	if v := os.Getenv("BOOCOIN_BLOCK_EXTRA_DATA"); v != "" {
		cfg.BlockExtraData = v
	}
	if v := os.Getenv("BOOCOIN_MINER_IP"); v != "" {
		cfg.MinerIP = v
	}
	if v := os.Getenv("BOOCOIN_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("BOOCOIN_P2P_ADDR"); v != "" {
		cfg.P2PAddr = v
	}
	if v := os.Getenv("BOOCOIN_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// BlockExtraDataBytes decodes the hex-encoded BlockExtraData field.
func (c Config) BlockExtraDataBytes() ([]byte, error) {
	if c.BlockExtraData == "" {
		return nil, nil
	}
	return common.FromHex(c.BlockExtraData)
}

// Validate checks that the fields required to run as a mining node are
// present, returning a ConfigurationError otherwise (spec.md §7: fatal at
// startup).
func (c Config) Validate() error {
	if c.MinerPublicKey == "" || c.MinerPrivateKey == "" {
		return &common.ConfigurationError{Reason: "miner_public_key and miner_private_key are required"}
	}
	if c.WalletPublicKey == "" {
		return &common.ConfigurationError{Reason: "wallet_public_key is required"}
	}
	return nil
}
