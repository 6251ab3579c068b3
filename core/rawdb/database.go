// Package rawdb stores sealed blocks in goleveldb. A devnet without a data
// directory uses the same layout on goleveldb's in-memory storage.
package rawdb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/Siasom1/gorrillazz-devnet/core/types"
)

var ErrNotFound = errors.New("not found")

var (
	headKey         = []byte("LastBlock")
	blockPrefix     = []byte("b") // blockPrefix + hash -> block
	canonicalPrefix = []byte("h") // canonicalPrefix + num (uint64 big endian) -> hash
)

type Database struct {
	db *leveldb.DB
}

// Open opens (or creates) a block database in dir.
func Open(dir string) (*Database, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", dir, err)
	}
	return &Database{db: db}, nil
}

// NewMemoryDatabase returns a database that lives only in memory.
func NewMemoryDatabase() *Database {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		// mem storage cannot fail to open
		panic(fmt.Sprintf("open memory leveldb: %v", err))
	}
	return &Database{db: db}
}

func (d *Database) Close() error {
	return d.db.Close()
}

func encodeNumber(n uint64) []byte {
	enc := make([]byte, 8)
	binary.BigEndian.PutUint64(enc, n)
	return enc
}

func blockKey(hash common.Hash) []byte {
	return append(append([]byte{}, blockPrefix...), hash.Bytes()...)
}

func canonicalKey(n uint64) []byte {
	return append(append([]byte{}, canonicalPrefix...), encodeNumber(n)...)
}

// ------------------------------------------------------------
// Writes
// ------------------------------------------------------------

// WriteBlock stores the block, marks it canonical for its number and moves
// the head marker to it, all in one batch.
func (d *Database) WriteBlock(block *types.Block) error {
	enc, err := block.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode block #%d: %w", block.Number(), err)
	}

	batch := new(leveldb.Batch)
	batch.Put(blockKey(block.Hash()), enc)
	batch.Put(canonicalKey(block.Number()), block.Hash().Bytes())
	batch.Put(headKey, encodeNumber(block.Number()))

	if err := d.db.Write(batch, nil); err != nil {
		return fmt.Errorf("write block #%d: %w", block.Number(), err)
	}
	return nil
}

// ------------------------------------------------------------
// Reads
// ------------------------------------------------------------

// ReadHeadNumber returns the number of the last written block. ok is false
// on an empty database.
func (d *Database) ReadHeadNumber() (n uint64, ok bool, err error) {
	data, err := d.db.Get(headKey, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if len(data) != 8 {
		return 0, false, fmt.Errorf("corrupt head marker (%d bytes)", len(data))
	}
	return binary.BigEndian.Uint64(data), true, nil
}

func (d *Database) ReadCanonicalHash(n uint64) (common.Hash, error) {
	data, err := d.db.Get(canonicalKey(n), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return common.Hash{}, fmt.Errorf("canonical hash #%d: %w", n, ErrNotFound)
	}
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(data), nil
}

func (d *Database) ReadBlock(hash common.Hash, chainID *big.Int) (*types.Block, error) {
	data, err := d.db.Get(blockKey(hash), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("block %s: %w", hash.Hex(), ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return types.DecodeBlock(data, chainID)
}

// ReadBlockByNumber resolves the canonical hash for n and loads the block.
func (d *Database) ReadBlockByNumber(n uint64, chainID *big.Int) (*types.Block, error) {
	hash, err := d.ReadCanonicalHash(n)
	if err != nil {
		return nil, err
	}
	return d.ReadBlock(hash, chainID)
}
