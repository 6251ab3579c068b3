package blockchain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Siasom1/gorrillazz-devnet/core/state"
)

// GenesisAlloc is the set of accounts funded at block #0.
type GenesisAlloc map[common.Address]*big.Int

// ChainConfig defines the chain a Blockchain instance runs.
type ChainConfig struct {
	ChainID *big.Int

	// GenesisTime is the genesis block timestamp. A fixed value keeps the
	// genesis hash stable across restarts.
	GenesisTime uint64
	Alloc       GenesisAlloc
}

func DefaultChainConfig(chainID uint64, alloc GenesisAlloc) ChainConfig {
	return ChainConfig{
		ChainID:     new(big.Int).SetUint64(chainID),
		GenesisTime: 0,
		Alloc:       alloc,
	}
}

// genesisState funds every alloc account.
func (c ChainConfig) genesisState() *state.StateDB {
	st := state.New()
	for addr, bal := range c.Alloc {
		st.SetBalance(addr, bal)
	}
	return st
}
