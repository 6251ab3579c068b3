package rpc

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/Siasom1/gorrillazz-devnet/consensus/producer"
)

type artifactResult struct {
	ContractName     string          `json:"contractName"`
	SourceName       string          `json:"sourceName"`
	ABI              json.RawMessage `json:"abi"`
	Bytecode         hexutil.Bytes   `json:"bytecode"`
	DeployedBytecode hexutil.Bytes   `json:"deployedBytecode"`
}

// mine seals a block now. Like Hardhat it answers "0x0"; a block that
// fails to apply is reported with the offending tx.
func (api *API) mine(ctx context.Context, _ json.RawMessage) (interface{}, *Error) {
	if api.b.Miner == nil {
		return nil, NewError(ErrCodeServer, "mining is not available")
	}
	if _, err := api.b.Miner.Mine(ctx); err != nil {
		var appErr *producer.BlockApplicationError
		if errors.As(err, &appErr) {
			return nil, NewErrorWithData(ErrCodeServer, err.Error(), map[string]interface{}{
				"index":  appErr.Index,
				"txHash": appErr.TxHash,
			})
		}
		return nil, ErrServer(err)
	}
	return "0x0", nil
}

func (api *API) txpoolStatus(context.Context, json.RawMessage) (interface{}, *Error) {
	pending, queued, inflight := api.b.Pool.Stats()
	return map[string]hexutil.Uint{
		"pending": quantity(pending + inflight),
		"queued":  quantity(queued),
	}, nil
}

func (api *API) dropTransaction(_ context.Context, raw json.RawMessage) (interface{}, *Error) {
	var hash common.Hash
	if err := parseParams(raw, 1, &hash); err != nil {
		return nil, err
	}
	return api.b.Pool.Remove(hash), nil
}

func (api *API) compilerVersion(context.Context, json.RawMessage) (interface{}, *Error) {
	if api.b.Artifacts == nil {
		return nil, NewError(ErrCodeServer, "no artifacts configured")
	}
	return api.b.Artifacts.Compiler().String(), nil
}

func (api *API) artifact(_ context.Context, raw json.RawMessage) (interface{}, *Error) {
	var name string
	if err := parseParams(raw, 1, &name); err != nil {
		return nil, err
	}
	if api.b.Artifacts == nil {
		return nil, NewError(ErrCodeServer, "no artifacts configured")
	}
	a, err := api.b.Artifacts.Load(name)
	if err != nil {
		return nil, ErrServer(err)
	}
	return &artifactResult{
		ContractName:     a.ContractName,
		SourceName:       a.SourceName,
		ABI:              a.RawABI,
		Bytecode:         a.Bytecode,
		DeployedBytecode: a.DeployedBytecode,
	}, nil
}
