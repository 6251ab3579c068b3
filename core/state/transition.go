package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Siasom1/gorrillazz-devnet/core/types"
)

const (
	TxGas                 uint64 = 21000
	TxGasContractCreation uint64 = 53000
	TxDataZeroGas         uint64 = 4
	TxDataNonZeroGas      uint64 = 16
)

var (
	ErrNonceMismatch     = errors.New("nonce mismatch")
	ErrInsufficientFunds = errors.New("insufficient funds for gas * price + value")
	ErrIntrinsicGas      = errors.New("intrinsic gas too low")
	ErrAddressCollision  = errors.New("contract address collision")
)

// IntrinsicGas is the flat cost of a tx before any execution.
func IntrinsicGas(data []byte, creation bool) uint64 {
	gas := TxGas
	if creation {
		gas = TxGasContractCreation
	}
	for _, b := range data {
		if b == 0 {
			gas += TxDataZeroGas
		} else {
			gas += TxDataNonZeroGas
		}
	}
	return gas
}

// Result is what applying a single tx produced.
type Result struct {
	GasUsed         uint64
	ContractAddress *common.Address
}

// ApplyTransaction applies tx to s. On error s may be partially modified, so
// callers must apply to a copy and discard it on failure.
func ApplyTransaction(s *StateDB, tx *types.Transaction) (*Result, error) {
	from := tx.From()

	if want := s.GetNonce(from); tx.Nonce() != want {
		return nil, fmt.Errorf("%w: address %s tx nonce %d state nonce %d", ErrNonceMismatch, from.Hex(), tx.Nonce(), want)
	}

	gasUsed := IntrinsicGas(tx.Data(), tx.IsCreation())
	if tx.Gas() < gasUsed {
		return nil, fmt.Errorf("%w: have %d want %d", ErrIntrinsicGas, tx.Gas(), gasUsed)
	}

	// the full gas allowance must be affordable, only used gas is charged
	if bal := s.GetBalance(from); bal.Cmp(tx.Cost()) < 0 {
		return nil, fmt.Errorf("%w: address %s have %s want %s", ErrInsufficientFunds, from.Hex(), bal, tx.Cost())
	}

	fee := new(big.Int).Mul(new(big.Int).SetUint64(gasUsed), tx.GasPrice())
	if err := s.SubBalance(from, new(big.Int).Add(fee, tx.Value())); err != nil {
		return nil, err
	}
	s.IncreaseNonce(from)

	res := &Result{GasUsed: gasUsed}

	if tx.IsCreation() {
		addr := crypto.CreateAddress(from, tx.Nonce())
		if len(s.GetCode(addr)) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrAddressCollision, addr.Hex())
		}
		s.SetCode(addr, tx.Data())
		s.AddBalance(addr, tx.Value())
		res.ContractAddress = &addr
		return res, nil
	}

	s.AddBalance(*tx.To(), tx.Value())
	return res, nil
}
