package rpc

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Siasom1/gorrillazz-devnet/core/blockchain"
	"github.com/Siasom1/gorrillazz-devnet/core/types"
	"github.com/Siasom1/gorrillazz-devnet/params"
)

// rpcTransaction is a transaction as eth_getTransactionByHash reports it.
// The block fields are null while the tx is still in the pool.
type rpcTransaction struct {
	BlockHash        *common.Hash    `json:"blockHash"`
	BlockNumber      *hexutil.Uint64 `json:"blockNumber"`
	TransactionIndex *hexutil.Uint64 `json:"transactionIndex"`
	Hash             common.Hash     `json:"hash"`
	From             common.Address  `json:"from"`
	To               *common.Address `json:"to"`
	Nonce            hexutil.Uint64  `json:"nonce"`
	Value            *hexutil.Big    `json:"value"`
	Gas              hexutil.Uint64  `json:"gas"`
	GasPrice         *hexutil.Big    `json:"gasPrice"`
	Input            hexutil.Bytes   `json:"input"`
	Type             hexutil.Uint64  `json:"type"`
	ChainID          *hexutil.Big    `json:"chainId,omitempty"`
	V                *hexutil.Big    `json:"v"`
	R                *hexutil.Big    `json:"r"`
	S                *hexutil.Big    `json:"s"`
}

func newRPCTransaction(tx *types.Transaction, lookup *blockchain.TxLookup) *rpcTransaction {
	inner := tx.Inner()
	v, r, s := inner.RawSignatureValues()

	out := &rpcTransaction{
		Hash:     tx.Hash(),
		From:     tx.From(),
		To:       tx.To(),
		Nonce:    hexutil.Uint64(tx.Nonce()),
		Value:    (*hexutil.Big)(tx.Value()),
		Gas:      hexutil.Uint64(tx.Gas()),
		GasPrice: (*hexutil.Big)(tx.GasPrice()),
		Input:    tx.Data(),
		Type:     hexutil.Uint64(inner.Type()),
		V:        (*hexutil.Big)(v),
		R:        (*hexutil.Big)(r),
		S:        (*hexutil.Big)(s),
	}
	if inner.Protected() {
		out.ChainID = (*hexutil.Big)(inner.ChainId())
	}
	if lookup != nil {
		hash := lookup.BlockHash
		number := hexutil.Uint64(lookup.BlockNumber)
		index := hexutil.Uint64(lookup.Index)
		out.BlockHash = &hash
		out.BlockNumber = &number
		out.TransactionIndex = &index
	}
	return out
}

// --------------------------------------------------------
// web3 / net
// --------------------------------------------------------

func (api *API) clientVersion(context.Context, json.RawMessage) (interface{}, *Error) {
	return params.ClientIdentifier(), nil
}

func (api *API) sha3(_ context.Context, raw json.RawMessage) (interface{}, *Error) {
	var data hexutil.Bytes
	if err := parseParams(raw, 1, &data); err != nil {
		return nil, err
	}
	return hexutil.Bytes(crypto.Keccak256(data)), nil
}

func (api *API) netVersion(context.Context, json.RawMessage) (interface{}, *Error) {
	return api.b.Chain.ChainID().String(), nil
}

func (api *API) netListening(context.Context, json.RawMessage) (interface{}, *Error) {
	return true, nil
}

// --------------------------------------------------------
// eth
// --------------------------------------------------------

func (api *API) chainID(context.Context, json.RawMessage) (interface{}, *Error) {
	return (*hexutil.Big)(api.b.Chain.ChainID()), nil
}

func (api *API) blockNumber(context.Context, json.RawMessage) (interface{}, *Error) {
	return hexutil.Uint64(api.b.Chain.CurrentBlock().Number()), nil
}

func (api *API) syncing(context.Context, json.RawMessage) (interface{}, *Error) {
	return false, nil
}

func (api *API) accounts(context.Context, json.RawMessage) (interface{}, *Error) {
	accounts := api.b.Accounts
	if accounts == nil {
		accounts = []common.Address{}
	}
	return accounts, nil
}

func (api *API) gasPrice(context.Context, json.RawMessage) (interface{}, *Error) {
	return (*hexutil.Big)(api.b.GasPrice), nil
}

func (api *API) getBalance(_ context.Context, raw json.RawMessage) (interface{}, *Error) {
	var addr common.Address
	bn := LatestBlockNumber
	if err := parseParams(raw, 1, &addr, &bn); err != nil {
		return nil, err
	}
	if err := api.stateAt(bn); err != nil {
		return nil, err
	}
	return (*hexutil.Big)(api.b.Chain.Balance(addr)), nil
}

func (api *API) getTransactionCount(_ context.Context, raw json.RawMessage) (interface{}, *Error) {
	var addr common.Address
	bn := LatestBlockNumber
	if err := parseParams(raw, 1, &addr, &bn); err != nil {
		return nil, err
	}
	if bn == PendingBlockNumber {
		return hexutil.Uint64(api.b.Pool.PendingNonce(addr)), nil
	}
	if err := api.stateAt(bn); err != nil {
		return nil, err
	}
	return hexutil.Uint64(api.b.Chain.Nonce(addr)), nil
}

func (api *API) getCode(_ context.Context, raw json.RawMessage) (interface{}, *Error) {
	var addr common.Address
	bn := LatestBlockNumber
	if err := parseParams(raw, 1, &addr, &bn); err != nil {
		return nil, err
	}
	if err := api.stateAt(bn); err != nil {
		return nil, err
	}
	code := api.b.Chain.Code(addr)
	if code == nil {
		code = []byte{}
	}
	return hexutil.Bytes(code), nil
}

func (api *API) getBlockByNumber(_ context.Context, raw json.RawMessage) (interface{}, *Error) {
	var (
		bn     BlockNumber
		fullTx bool
	)
	if err := parseParams(raw, 1, &bn, &fullTx); err != nil {
		return nil, err
	}
	return renderBlock(api.blockAt(bn), fullTx)
}

func (api *API) getBlockByHash(_ context.Context, raw json.RawMessage) (interface{}, *Error) {
	var (
		hash   common.Hash
		fullTx bool
	)
	if err := parseParams(raw, 1, &hash, &fullTx); err != nil {
		return nil, err
	}
	return renderBlock(api.b.Chain.GetBlockByHash(hash), fullTx)
}

func renderBlock(block *types.Block, fullTx bool) (interface{}, *Error) {
	if block == nil {
		return nil, nil
	}
	enc, err := block.MarshalJSONWith(fullTx)
	if err != nil {
		return nil, ErrInternal(err.Error())
	}
	return json.RawMessage(enc), nil
}

func (api *API) getTransactionByHash(_ context.Context, raw json.RawMessage) (interface{}, *Error) {
	var hash common.Hash
	if err := parseParams(raw, 1, &hash); err != nil {
		return nil, err
	}
	if tx, lookup := api.b.Chain.GetTransaction(hash); tx != nil {
		return newRPCTransaction(tx, lookup), nil
	}
	if tx := api.b.Pool.Get(hash); tx != nil {
		return newRPCTransaction(tx, nil), nil
	}
	return nil, nil
}

func (api *API) getTransactionReceipt(_ context.Context, raw json.RawMessage) (interface{}, *Error) {
	var hash common.Hash
	if err := parseParams(raw, 1, &hash); err != nil {
		return nil, err
	}
	receipt := api.b.Chain.GetReceipt(hash)
	if receipt == nil {
		return nil, nil
	}
	return receipt, nil
}

func (api *API) sendRawTransaction(_ context.Context, raw json.RawMessage) (interface{}, *Error) {
	var data hexutil.Bytes
	if err := parseParams(raw, 1, &data); err != nil {
		return nil, err
	}
	adm, err := api.b.Pool.SubmitRaw(data)
	if err != nil {
		return nil, ErrServer(err)
	}
	return adm.Hash, nil
}

func quantity(n int) hexutil.Uint {
	return hexutil.Uint(n)
}
