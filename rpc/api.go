package rpc

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Siasom1/gorrillazz-devnet/artifacts"
	"github.com/Siasom1/gorrillazz-devnet/core/blockchain"
	"github.com/Siasom1/gorrillazz-devnet/core/txpool"
	"github.com/Siasom1/gorrillazz-devnet/core/types"
)

// TxPool is the part of the transaction pool the RPC layer drives.
type TxPool interface {
	SubmitRaw(raw []byte) (*txpool.Admission, error)
	Get(hash common.Hash) *types.Transaction
	Remove(hash common.Hash) bool
	Stats() (pending, queued, inflight int)
	PendingNonce(addr common.Address) uint64
}

// Miner seals a block on demand.
type Miner interface {
	Mine(ctx context.Context) (*types.Block, error)
}

type ArtifactSource interface {
	Compiler() *artifacts.Version
	Load(name string) (*artifacts.Artifact, error)
}

// Backend is everything the API reads or drives. Chain is read-only; the
// only write paths are Pool.SubmitRaw and Miner.Mine.
type Backend struct {
	Chain     blockchain.Reader
	Pool      TxPool
	Miner     Miner
	Artifacts ArtifactSource // nil disables dev_artifact
	Accounts  []common.Address
	GasPrice  *big.Int
}

// API implements the eth, net, web3, evm, txpool and dev namespaces.
type API struct {
	b Backend
}

func NewAPI(b Backend) *API {
	if b.GasPrice == nil {
		b.GasPrice = new(big.Int)
	}
	return &API{b: b}
}

// Methods returns the JSON-RPC method table.
func (api *API) Methods() map[string]MethodHandler {
	return map[string]MethodHandler{
		// ---------------- web3 / net ----------------
		"web3_clientVersion": api.clientVersion,
		"web3_sha3":          api.sha3,
		"net_version":        api.netVersion,
		"net_listening":      api.netListening,

		// ---------------- eth ----------------
		"eth_chainId":               api.chainID,
		"eth_blockNumber":           api.blockNumber,
		"eth_syncing":               api.syncing,
		"eth_accounts":              api.accounts,
		"eth_gasPrice":              api.gasPrice,
		"eth_getBalance":            api.getBalance,
		"eth_getTransactionCount":   api.getTransactionCount,
		"eth_getCode":               api.getCode,
		"eth_getBlockByNumber":      api.getBlockByNumber,
		"eth_getBlockByHash":        api.getBlockByHash,
		"eth_getTransactionByHash":  api.getTransactionByHash,
		"eth_getTransactionReceipt": api.getTransactionReceipt,
		"eth_sendRawTransaction":    api.sendRawTransaction,

		// ---------------- dev ----------------
		"evm_mine":            api.mine,
		"txpool_status":       api.txpoolStatus,
		"dev_dropTransaction": api.dropTransaction,
		"dev_compilerVersion": api.compilerVersion,
		"dev_artifact":        api.artifact,
	}
}

// stateAt checks that bn refers to the head state, the only state kept.
func (api *API) stateAt(bn BlockNumber) *Error {
	if bn == LatestBlockNumber || bn == PendingBlockNumber {
		return nil
	}
	head := api.b.Chain.CurrentBlock().Number()
	switch {
	case uint64(bn) == head:
		return nil
	case uint64(bn) > head:
		return NewError(ErrCodeServer, "header not found")
	}
	return NewError(ErrCodeServer, fmt.Sprintf("state of block %d is not available, only the head state is kept", bn))
}

func (api *API) blockAt(bn BlockNumber) *types.Block {
	if bn == LatestBlockNumber || bn == PendingBlockNumber {
		return api.b.Chain.CurrentBlock()
	}
	return api.b.Chain.GetBlockByNumber(uint64(bn))
}
