package txpool

import "time"

type Config struct {
	GlobalSlots  int           `mapstructure:"global_slots" yaml:"global_slots"`   // max txs held, in flight included
	AccountSlots int           `mapstructure:"account_slots" yaml:"account_slots"` // max txs per sender
	Lifetime     time.Duration `mapstructure:"lifetime" yaml:"lifetime"`           // waiting txs older than this are evicted, 0 disables
	MaxTxGas     uint64        `mapstructure:"max_tx_gas" yaml:"max_tx_gas"`       // per-tx gas cap, 0 disables
}

func DefaultConfig() Config {
	return Config{
		GlobalSlots:  4096,
		AccountSlots: 256,
		Lifetime:     3 * time.Hour,
		MaxTxGas:     30_000_000,
	}
}

func (c Config) sanitize() Config {
	def := DefaultConfig()
	if c.GlobalSlots <= 0 {
		c.GlobalSlots = def.GlobalSlots
	}
	if c.AccountSlots <= 0 {
		c.AccountSlots = def.AccountSlots
	}
	if c.AccountSlots > c.GlobalSlots {
		c.AccountSlots = c.GlobalSlots
	}
	return c
}
