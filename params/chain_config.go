package params

import "math/big"

const (
	// DevChainID is the Hardhat network chain id.
	DevChainID uint64 = 31337

	// BlockGasLimit caps the gas of a single transaction.
	BlockGasLimit uint64 = 30_000_000

	// DefaultSolidityVersion is the compiler the artifacts are expected from.
	DefaultSolidityVersion = "0.8.24"

	ClientName    = "gorrillazz-devnet"
	ClientVersion = "v0.3.0"
)

// Ether is 10^18 wei.
var Ether = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

type ChainConfig struct {
	ChainID       uint64 `json:"chainId"`
	BlockGasLimit uint64 `json:"blockGasLimit"`
	GasPrice      uint64 `json:"gasPrice"` // wei; reported by eth_gasPrice
}

func DevChainConfig() *ChainConfig {
	return &ChainConfig{
		ChainID:       DevChainID,
		BlockGasLimit: BlockGasLimit,
		GasPrice:      0,
	}
}

// ClientIdentifier is what web3_clientVersion reports.
func ClientIdentifier() string {
	return ClientName + "/" + ClientVersion
}
