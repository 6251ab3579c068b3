package node

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Siasom1/gorrillazz-devnet/artifacts"
	"github.com/Siasom1/gorrillazz-devnet/consensus/producer"
	"github.com/Siasom1/gorrillazz-devnet/core/txpool"
	"github.com/Siasom1/gorrillazz-devnet/params"
)

const EnvPrefix = "DEVNET"

type Config struct {
	Solidity  string `mapstructure:"solidity" yaml:"solidity"`
	Artifacts string `mapstructure:"artifacts" yaml:"artifacts"`
	DataDir   string `mapstructure:"datadir" yaml:"datadir"` // empty: in-memory chain

	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Network  NetworkConfig  `mapstructure:"network" yaml:"network"`
	Mining   MiningConfig   `mapstructure:"mining" yaml:"mining"`
	TxPool   txpool.Config  `mapstructure:"txpool" yaml:"txpool"`
	Accounts AccountsConfig `mapstructure:"accounts" yaml:"accounts"`
	Genesis  GenesisConfig  `mapstructure:"genesis" yaml:"genesis"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // console or json
}

// NetworkConfig is the RPC listener binding plus the chain id it serves.
type NetworkConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ChainID         uint64        `mapstructure:"chain_id" yaml:"chain_id"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

func (c NetworkConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MiningConfig accepts either an explicit mode or the Hardhat pair
// auto/interval. An explicit mode wins.
type MiningConfig struct {
	Mode        string `mapstructure:"mode" yaml:"mode"`               // auto | interval | "" (use interval_ms, then auto/interval)
	IntervalMs  int64  `mapstructure:"interval_ms" yaml:"interval_ms"` // with mode interval, or alone
	Auto        bool   `mapstructure:"auto" yaml:"auto"`
	Interval    int64  `mapstructure:"interval" yaml:"interval"` // ms, Hardhat style
	MaxBlockTxs int    `mapstructure:"max_block_txs" yaml:"max_block_txs"`
}

type AccountsConfig struct {
	Seed       string `mapstructure:"seed" yaml:"seed"`
	Count      int    `mapstructure:"count" yaml:"count"`
	BalanceEth int64  `mapstructure:"balance_eth" yaml:"balance_eth"`
}

type GenesisConfig struct {
	Time uint64 `mapstructure:"time" yaml:"time"`
}

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"solidity":    "solidity",
	"artifacts":   "artifacts",
	"datadir":     "datadir",
	"log-level":   "log.level",
	"log-format":  "log.format",
	"host":        "network.host",
	"port":        "network.port",
	"chain-id":    "network.chain_id",
	"mining-mode": "mining.mode",
	"interval":    "mining.interval_ms",
}

// Load reads configuration from, in rising priority: defaults, the config
// file, DEVNET_* environment variables and set flags. With file empty a
// devnet.{yaml,toml,json} in . or ~/.devnet is used if present.
func Load(file string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("devnet")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".devnet"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// Config file not found is OK, we use defaults and env vars
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("solidity", params.DefaultSolidityVersion)
	v.SetDefault("artifacts", "artifacts")
	v.SetDefault("datadir", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("network.host", "0.0.0.0")
	v.SetDefault("network.port", 8545)
	v.SetDefault("network.chain_id", params.DevChainID)
	v.SetDefault("network.read_timeout", "30s")
	v.SetDefault("network.write_timeout", "30s")
	v.SetDefault("network.shutdown_timeout", "10s")

	v.SetDefault("mining.mode", "")
	v.SetDefault("mining.interval_ms", 0)
	v.SetDefault("mining.auto", true)
	v.SetDefault("mining.interval", 0)
	v.SetDefault("mining.max_block_txs", 0)

	pool := txpool.DefaultConfig()
	v.SetDefault("txpool.global_slots", pool.GlobalSlots)
	v.SetDefault("txpool.account_slots", pool.AccountSlots)
	v.SetDefault("txpool.lifetime", pool.Lifetime.String())
	v.SetDefault("txpool.max_tx_gas", params.BlockGasLimit)

	v.SetDefault("accounts.seed", params.DevSeedPhrase)
	v.SetDefault("accounts.count", params.DevAccountCount)
	v.SetDefault("accounts.balance_eth", 10_000)

	v.SetDefault("genesis.time", 0)
}

// DefaultConfig is the configuration Load returns with no file, env or flags.
func DefaultConfig() *Config {
	cfg, err := Load("", nil)
	if err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return cfg
}

// Policy resolves the mining section. An explicit mode wins, then a
// positive interval_ms selects Interval. Otherwise auto: true selects Auto
// whatever the interval; auto: false selects Interval(interval), including
// zero.
func (c *Config) Policy() (producer.Policy, error) {
	m := c.Mining
	if m.Mode != "" {
		mode, err := producer.ParseMode(m.Mode)
		if err != nil {
			return producer.Policy{}, err
		}
		if mode == producer.Auto {
			return producer.AutoPolicy(), nil
		}
		if m.IntervalMs < 0 {
			return producer.Policy{}, fmt.Errorf("negative mining.interval_ms %d", m.IntervalMs)
		}
		return producer.IntervalPolicy(time.Duration(m.IntervalMs) * time.Millisecond), nil
	}

	// interval_ms alone (e.g. --interval) asks for interval mining
	if m.IntervalMs > 0 {
		return producer.IntervalPolicy(time.Duration(m.IntervalMs) * time.Millisecond), nil
	}
	if m.IntervalMs < 0 {
		return producer.Policy{}, fmt.Errorf("negative mining.interval_ms %d", m.IntervalMs)
	}
	if m.Auto {
		return producer.AutoPolicy(), nil
	}
	if m.Interval < 0 {
		return producer.Policy{}, fmt.Errorf("negative mining.interval %d", m.Interval)
	}
	return producer.IntervalPolicy(time.Duration(m.Interval) * time.Millisecond), nil
}

// AccountBalance is the per-account genesis balance in wei.
func (c *Config) AccountBalance() *big.Int {
	return new(big.Int).Mul(big.NewInt(c.Accounts.BalanceEth), params.Ether)
}

func (c *Config) Validate() error {
	if _, err := artifacts.ParseVersion(c.Solidity); err != nil {
		return fmt.Errorf("solidity: %w", err)
	}
	if strings.TrimSpace(c.Network.Host) == "" {
		return errors.New("network.host is empty")
	}
	// 0 binds an ephemeral port
	if c.Network.Port < 0 || c.Network.Port > 65535 {
		return fmt.Errorf("network.port %d out of range", c.Network.Port)
	}
	if c.Network.ChainID == 0 {
		return errors.New("network.chain_id must be positive")
	}
	policy, err := c.Policy()
	if err != nil {
		return err
	}
	if err := policy.Validate(); err != nil {
		return err
	}
	if c.Mining.MaxBlockTxs < 0 {
		return fmt.Errorf("mining.max_block_txs %d is negative", c.Mining.MaxBlockTxs)
	}
	if c.Accounts.Count < 0 || c.Accounts.BalanceEth < 0 {
		return errors.New("accounts.count and accounts.balance_eth must not be negative")
	}
	if c.TxPool.Lifetime < 0 {
		return fmt.Errorf("txpool.lifetime %s is negative", c.TxPool.Lifetime)
	}
	return nil
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
