package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/trie"
)

var (
	ErrMissingSignature = errors.New("missing signature")
	ErrWrongChainID     = errors.New("wrong chain id")
	ErrZeroGas          = errors.New("gas cannot be 0")
	ErrNegativeValue    = errors.New("negative value")
)

// Transaction is a signed transaction together with the sender recovered
// from its signature. It is immutable once constructed.
type Transaction struct {
	inner *gethtypes.Transaction
	from  common.Address
}

// NewTransaction checks the shape and signature of a signed go-ethereum
// transaction and recovers its sender.
func NewTransaction(tx *gethtypes.Transaction, chainID *big.Int) (*Transaction, error) {
	if tx == nil {
		return nil, errors.New("nil tx")
	}

	v, r, s := tx.RawSignatureValues()
	if v == nil || r == nil || s == nil || (r.Sign() == 0 && s.Sign() == 0) {
		return nil, ErrMissingSignature
	}

	// Unprotected legacy txs carry no chain id; everything else must match.
	if tx.Protected() && tx.ChainId().Cmp(chainID) != 0 {
		return nil, fmt.Errorf("%w: got %s want %s", ErrWrongChainID, tx.ChainId(), chainID)
	}
	if tx.Gas() == 0 {
		return nil, ErrZeroGas
	}
	if tx.Value().Sign() < 0 {
		return nil, ErrNegativeValue
	}

	signer := gethtypes.LatestSignerForChainID(chainID)
	from, err := gethtypes.Sender(signer, tx)
	if err != nil {
		return nil, fmt.Errorf("signature recover failed: %w", err)
	}

	return &Transaction{inner: tx, from: from}, nil
}

// DecodeTransaction decodes a raw (RLP or typed envelope) signed transaction
// as submitted through eth_sendRawTransaction.
func DecodeTransaction(raw []byte, chainID *big.Int) (*Transaction, error) {
	var tx gethtypes.Transaction
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("decode failed: %w", err)
	}
	return NewTransaction(&tx, chainID)
}

func (tx *Transaction) From() common.Address { return tx.from }
func (tx *Transaction) Nonce() uint64         { return tx.inner.Nonce() }
func (tx *Transaction) To() *common.Address   { return tx.inner.To() }
func (tx *Transaction) Value() *big.Int       { return tx.inner.Value() }
func (tx *Transaction) Data() []byte          { return tx.inner.Data() }
func (tx *Transaction) Gas() uint64           { return tx.inner.Gas() }
func (tx *Transaction) GasPrice() *big.Int    { return tx.inner.GasPrice() }
func (tx *Transaction) Hash() common.Hash     { return tx.inner.Hash() }

// Cost is value + gas * gasPrice.
func (tx *Transaction) Cost() *big.Int { return tx.inner.Cost() }

// Inner exposes the underlying signed envelope.
func (tx *Transaction) Inner() *gethtypes.Transaction { return tx.inner }

// IsCreation reports whether the tx deploys a contract.
func (tx *Transaction) IsCreation() bool { return tx.inner.To() == nil }

// MarshalBinary returns the canonical encoding used for storage.
func (tx *Transaction) MarshalBinary() ([]byte, error) {
	return tx.inner.MarshalBinary()
}

// DeriveTxRoot computes the transaction trie root the same way Ethereum
// headers do.
func DeriveTxRoot(txs []*Transaction) common.Hash {
	list := make(gethtypes.Transactions, len(txs))
	for i, tx := range txs {
		list[i] = tx.inner
	}
	return gethtypes.DeriveSha(list, trie.NewStackTrie(nil))
}

// ------------------------------------------------------------
// JSON (RPC view)
// ------------------------------------------------------------

type txJSON struct {
	Hash     common.Hash     `json:"hash"`
	From     common.Address  `json:"from"`
	To       *common.Address `json:"to"`
	Nonce    hexutil.Uint64  `json:"nonce"`
	Value    *hexutil.Big    `json:"value"`
	Gas      hexutil.Uint64  `json:"gas"`
	GasPrice *hexutil.Big    `json:"gasPrice"`
	Input    hexutil.Bytes   `json:"input"`
	Type     hexutil.Uint64  `json:"type"`
}

func (tx *Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(txJSON{
		Hash:     tx.Hash(),
		From:     tx.from,
		To:       tx.To(),
		Nonce:    hexutil.Uint64(tx.Nonce()),
		Value:    (*hexutil.Big)(tx.Value()),
		Gas:      hexutil.Uint64(tx.Gas()),
		GasPrice: (*hexutil.Big)(tx.GasPrice()),
		Input:    tx.Data(),
		Type:     hexutil.Uint64(tx.inner.Type()),
	})
}
