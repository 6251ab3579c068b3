package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// ------------------------------------------------------------
// Block Header
// ------------------------------------------------------------

type Header struct {
	ParentHash common.Hash `json:"parentHash"`
	Number     uint64      `json:"number"`
	Time       uint64      `json:"timestamp"`
	StateRoot  common.Hash `json:"stateRoot"`
	TxRoot     common.Hash `json:"transactionsRoot"`
	TxCount    uint64      `json:"txCount"`
}

// Hash is keccak256 over the RLP encoded header.
func (h *Header) Hash() common.Hash {
	enc, err := rlp.EncodeToBytes(h)
	if err != nil {
		panic(fmt.Sprintf("header encode: %v", err))
	}
	return crypto.Keccak256Hash(enc)
}

// ------------------------------------------------------------
// Block
// ------------------------------------------------------------

// Block is a sealed batch of transactions. Blocks are never mutated after
// they are committed to the chain.
type Block struct {
	Header       *Header
	Transactions []*Transaction

	hash common.Hash
}

// NewBlock seals a header over txs; TxRoot and TxCount are filled in here.
func NewBlock(header *Header, txs []*Transaction) *Block {
	h := *header
	h.TxRoot = DeriveTxRoot(txs)
	h.TxCount = uint64(len(txs))

	list := make([]*Transaction, len(txs))
	copy(list, txs)

	return &Block{
		Header:       &h,
		Transactions: list,
		hash:         h.Hash(),
	}
}

// NewGenesisBlock builds block #0 with no parent and no transactions.
// Balances live in the state, not in the block itself.
func NewGenesisBlock(stateRoot common.Hash, time uint64) *Block {
	return NewBlock(&Header{
		ParentHash: common.Hash{},
		Number:     0,
		Time:       time,
		StateRoot:  stateRoot,
	}, nil)
}

func (b *Block) Hash() common.Hash       { return b.hash }
func (b *Block) Number() uint64          { return b.Header.Number }
func (b *Block) ParentHash() common.Hash { return b.Header.ParentHash }
func (b *Block) Time() uint64            { return b.Header.Time }

// ------------------------------------------------------------
// Storage encoding
// ------------------------------------------------------------

type storedBlock struct {
	Header *Header
	Txs    [][]byte
}

// MarshalBinary returns the storage encoding of the block: the header
// plus the binary envelope of each tx.
func (b *Block) MarshalBinary() ([]byte, error) {
	sb := storedBlock{Header: b.Header, Txs: make([][]byte, len(b.Transactions))}
	for i, tx := range b.Transactions {
		raw, err := tx.MarshalBinary()
		if err != nil {
			return nil, err
		}
		sb.Txs[i] = raw
	}
	return rlp.EncodeToBytes(&sb)
}

// DecodeBlock is the inverse of MarshalBinary. Senders are recovered again,
// and the tx root is checked against the stored header.
func DecodeBlock(data []byte, chainID *big.Int) (*Block, error) {
	var sb storedBlock
	if err := rlp.DecodeBytes(data, &sb); err != nil {
		return nil, fmt.Errorf("decode block: %w", err)
	}
	if sb.Header == nil {
		return nil, errors.New("decode block: missing header")
	}

	txs := make([]*Transaction, len(sb.Txs))
	for i, raw := range sb.Txs {
		tx, err := DecodeTransaction(raw, chainID)
		if err != nil {
			return nil, fmt.Errorf("decode block #%d tx %d: %w", sb.Header.Number, i, err)
		}
		txs[i] = tx
	}

	if root := DeriveTxRoot(txs); root != sb.Header.TxRoot {
		return nil, fmt.Errorf("block #%d: tx root mismatch (have %s, want %s)", sb.Header.Number, root.Hex(), sb.Header.TxRoot.Hex())
	}

	return &Block{
		Header:       sb.Header,
		Transactions: txs,
		hash:         sb.Header.Hash(),
	}, nil
}

// ------------------------------------------------------------
// JSON (RPC view)
// ------------------------------------------------------------

type blockJSON struct {
	Hash         common.Hash    `json:"hash"`
	ParentHash   common.Hash    `json:"parentHash"`
	Number       hexutil.Uint64 `json:"number"`
	Timestamp    hexutil.Uint64 `json:"timestamp"`
	StateRoot    common.Hash    `json:"stateRoot"`
	TxRoot       common.Hash    `json:"transactionsRoot"`
	Transactions interface{}    `json:"transactions"`
}

// MarshalJSON renders the block with full transaction objects.
func (b *Block) MarshalJSON() ([]byte, error) {
	return b.MarshalJSONWith(true)
}

// MarshalJSONWith renders the block, with full transactions or only hashes.
func (b *Block) MarshalJSONWith(fullTx bool) ([]byte, error) {
	out := blockJSON{
		Hash:       b.hash,
		ParentHash: b.Header.ParentHash,
		Number:     hexutil.Uint64(b.Header.Number),
		Timestamp:  hexutil.Uint64(b.Header.Time),
		StateRoot:  b.Header.StateRoot,
		TxRoot:     b.Header.TxRoot,
	}
	if fullTx {
		txs := b.Transactions
		if txs == nil {
			txs = []*Transaction{}
		}
		out.Transactions = txs
	} else {
		hashes := make([]common.Hash, len(b.Transactions))
		for i, tx := range b.Transactions {
			hashes[i] = tx.Hash()
		}
		out.Transactions = hashes
	}
	return json.Marshal(out)
}
