package blockchain

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/Siasom1/gorrillazz-devnet/core/rawdb"
	"github.com/Siasom1/gorrillazz-devnet/core/state"
	"github.com/Siasom1/gorrillazz-devnet/core/types"
	"github.com/Siasom1/gorrillazz-devnet/log"
)

var (
	ErrGenesisMismatch = errors.New("stored genesis does not match configured genesis")
	ErrNotHead         = errors.New("block parent is not the current head")
	ErrStateRoot       = errors.New("state root mismatch")
	ErrBadTimestamp    = errors.New("block timestamp before parent")
)

// Reader is the read-only view of the chain handed to everything except the
// block builder.
type Reader interface {
	ChainID() *big.Int
	CurrentBlock() *types.Block
	GetBlockByNumber(number uint64) *types.Block
	GetBlockByHash(hash common.Hash) *types.Block
	GetTransaction(hash common.Hash) (*types.Transaction, *TxLookup)
	GetReceipt(hash common.Hash) *types.Receipt

	Nonce(addr common.Address) uint64
	Balance(addr common.Address) *big.Int
	Code(addr common.Address) []byte
	Account(addr common.Address) *state.Account
}

// TxLookup locates an included transaction.
type TxLookup struct {
	BlockHash   common.Hash
	BlockNumber uint64
	Index       uint64
}

// --------------------------------------------------------
// Blockchain struct
// --------------------------------------------------------

// Blockchain owns the sealed blocks and the ledger state they fold into.
// The only mutation is Commit.
type Blockchain struct {
	cfg    ChainConfig
	db     *rawdb.Database
	logger *log.Logger

	mu       sync.RWMutex
	blocks   []*types.Block // index == number
	byHash   map[common.Hash]*types.Block
	txLookup map[common.Hash]*TxLookup
	receipts map[common.Hash]*types.Receipt
	state    *state.StateDB
}

var _ Reader = (*Blockchain)(nil)

// --------------------------------------------------------
// Constructor
// --------------------------------------------------------

// NewBlockchain opens the chain stored in db. An empty db is initialised with
// the configured genesis; otherwise stored blocks are replayed on top of it.
func NewBlockchain(cfg ChainConfig, db *rawdb.Database, logger *log.Logger) (*Blockchain, error) {
	if cfg.ChainID == nil {
		return nil, errors.New("chain id is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}

	genesisState := cfg.genesisState()
	genesis := types.NewGenesisBlock(genesisState.Root(), cfg.GenesisTime)

	bc := &Blockchain{
		cfg:      cfg,
		db:       db,
		logger:   logger.With("component", "chain"),
		blocks:   []*types.Block{genesis},
		byHash:   map[common.Hash]*types.Block{genesis.Hash(): genesis},
		txLookup: make(map[common.Hash]*TxLookup),
		receipts: make(map[common.Hash]*types.Receipt),
		state:    genesisState,
	}

	head, ok, err := db.ReadHeadNumber()
	if err != nil {
		return nil, fmt.Errorf("read head: %w", err)
	}

	if !ok {
		// FIRST START → GENESIS
		if err := db.WriteBlock(genesis); err != nil {
			return nil, err
		}
		bc.logger.Info("Wrote genesis block", "hash", genesis.Hash().Hex(), "accounts", len(cfg.Alloc))
		return bc, nil
	}

	stored, err := db.ReadCanonicalHash(0)
	if err != nil {
		return nil, err
	}
	if stored != genesis.Hash() {
		return nil, fmt.Errorf("%w: have %s, want %s", ErrGenesisMismatch, stored.Hex(), genesis.Hash().Hex())
	}

	if err := bc.replay(head); err != nil {
		return nil, err
	}
	bc.logger.Info("Loaded chain", "head", head, "hash", bc.CurrentBlock().Hash().Hex())
	return bc, nil
}

// replay re-applies blocks 1..head from the database.
func (bc *Blockchain) replay(head uint64) error {
	for n := uint64(1); n <= head; n++ {
		block, err := bc.db.ReadBlockByNumber(n, bc.cfg.ChainID)
		if err != nil {
			return fmt.Errorf("replay block #%d: %w", n, err)
		}

		st := bc.state.Copy()
		results := make([]*state.Result, len(block.Transactions))
		for i, tx := range block.Transactions {
			res, err := state.ApplyTransaction(st, tx)
			if err != nil {
				return fmt.Errorf("replay block #%d tx %d (%s): %w", n, i, tx.Hash().Hex(), err)
			}
			results[i] = res
		}

		if err := bc.insert(block, st, DeriveReceipts(block, results)); err != nil {
			return fmt.Errorf("replay block #%d: %w", n, err)
		}
	}
	return nil
}

// --------------------------------------------------------
// Commit
// --------------------------------------------------------

// Commit appends block and swaps in st as the new ledger state. It fails
// without side effects if block does not extend the current head, if st
// does not match the header's state root, or if the block cannot be stored.
func (bc *Blockchain) Commit(block *types.Block, st *state.StateDB, receipts []*types.Receipt) error {
	root := st.Root()

	bc.mu.Lock()
	defer bc.mu.Unlock()

	if err := bc.validate(block, root); err != nil {
		return err
	}
	if err := bc.db.WriteBlock(block); err != nil {
		return err
	}
	bc.link(block, st, receipts)
	return nil
}

// insert is Commit without the database write, used during replay.
func (bc *Blockchain) insert(block *types.Block, st *state.StateDB, receipts []*types.Receipt) error {
	root := st.Root()

	bc.mu.Lock()
	defer bc.mu.Unlock()

	if err := bc.validate(block, root); err != nil {
		return err
	}
	bc.link(block, st, receipts)
	return nil
}

func (bc *Blockchain) validate(block *types.Block, root common.Hash) error {
	parent := bc.blocks[len(bc.blocks)-1]

	if block.ParentHash() != parent.Hash() || block.Number() != parent.Number()+1 {
		return fmt.Errorf("%w: block #%d parent %s, head #%d %s",
			ErrNotHead, block.Number(), block.ParentHash().Hex(), parent.Number(), parent.Hash().Hex())
	}
	if block.Time() < parent.Time() {
		return fmt.Errorf("%w: %d < %d", ErrBadTimestamp, block.Time(), parent.Time())
	}
	if root != block.Header.StateRoot {
		return fmt.Errorf("%w: block #%d header %s, state %s", ErrStateRoot, block.Number(), block.Header.StateRoot.Hex(), root.Hex())
	}
	return nil
}

func (bc *Blockchain) link(block *types.Block, st *state.StateDB, receipts []*types.Receipt) {
	bc.blocks = append(bc.blocks, block)
	bc.byHash[block.Hash()] = block

	for i, tx := range block.Transactions {
		bc.txLookup[tx.Hash()] = &TxLookup{
			BlockHash:   block.Hash(),
			BlockNumber: block.Number(),
			Index:       uint64(i),
		}
	}
	for _, r := range receipts {
		bc.receipts[r.TxHash] = r
	}
	bc.state = st
}

// DeriveReceipts builds the receipts for a sealed block from the per-tx
// application results, in block order.
func DeriveReceipts(block *types.Block, results []*state.Result) []*types.Receipt {
	receipts := make([]*types.Receipt, len(block.Transactions))

	var cumulative uint64
	for i, tx := range block.Transactions {
		res := results[i]
		cumulative += res.GasUsed

		receipts[i] = &types.Receipt{
			TxHash:            tx.Hash(),
			BlockHash:         block.Hash(),
			BlockNumber:       hexutil.Uint64(block.Number()),
			TransactionIndex:  hexutil.Uint64(uint64(i)),
			From:              tx.From(),
			To:                tx.To(),
			ContractAddress:   res.ContractAddress,
			GasUsed:           hexutil.Uint64(res.GasUsed),
			CumulativeGasUsed: hexutil.Uint64(cumulative),
			Status:            hexutil.Uint64(types.ReceiptStatusSuccessful),
		}
	}
	return receipts
}

// --------------------------------------------------------
// Reads
// --------------------------------------------------------

func (bc *Blockchain) ChainID() *big.Int {
	return new(big.Int).Set(bc.cfg.ChainID)
}

func (bc *Blockchain) Genesis() *types.Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.blocks[0]
}

func (bc *Blockchain) CurrentBlock() *types.Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.blocks[len(bc.blocks)-1]
}

func (bc *Blockchain) GetBlockByNumber(number uint64) *types.Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	if number >= uint64(len(bc.blocks)) {
		return nil
	}
	return bc.blocks[number]
}

func (bc *Blockchain) GetBlockByHash(hash common.Hash) *types.Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.byHash[hash]
}

func (bc *Blockchain) GetTransaction(hash common.Hash) (*types.Transaction, *TxLookup) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	lookup, ok := bc.txLookup[hash]
	if !ok {
		return nil, nil
	}
	l := *lookup
	return bc.blocks[l.BlockNumber].Transactions[l.Index], &l
}

func (bc *Blockchain) GetReceipt(hash common.Hash) *types.Receipt {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	if r, ok := bc.receipts[hash]; ok {
		cp := *r
		return &cp
	}
	return nil
}

// State returns the committed ledger state. It is never mutated after
// commit; callers that need to write must work on State().Copy().
func (bc *Blockchain) State() *state.StateDB {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.state
}

func (bc *Blockchain) Nonce(addr common.Address) uint64 {
	return bc.State().GetNonce(addr)
}

func (bc *Blockchain) Balance(addr common.Address) *big.Int {
	return bc.State().GetBalance(addr)
}

func (bc *Blockchain) Code(addr common.Address) []byte {
	return bc.State().GetCode(addr)
}

func (bc *Blockchain) Account(addr common.Address) *state.Account {
	return bc.State().GetAccount(addr)
}
