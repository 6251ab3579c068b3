package state

import (
	"bytes"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"golang.org/x/crypto/sha3"
)

// EmptyCodeHash is the code hash of accounts without code.
var EmptyCodeHash = crypto.Keccak256Hash(nil)

type Account struct {
	Balance     *big.Int    `json:"balance"`
	Nonce       uint64      `json:"nonce"`
	Code        []byte      `json:"code,omitempty"`
	StorageRoot common.Hash `json:"storageRoot"`
}

func newAccount() *Account {
	return &Account{Balance: big.NewInt(0)}
}

func (a *Account) copy() *Account {
	cp := &Account{
		Balance:     new(big.Int).Set(a.Balance),
		Nonce:       a.Nonce,
		StorageRoot: a.StorageRoot,
	}
	if len(a.Code) > 0 {
		cp.Code = common.CopyBytes(a.Code)
	}
	return cp
}

// StateDB is the in-memory ledger: address -> (balance, nonce, code,
// storage root). The chain only ever swaps whole StateDBs; block building
// works on a Copy.
type StateDB struct {
	mu       sync.RWMutex
	accounts map[common.Address]*Account
}

func New() *StateDB {
	return &StateDB{accounts: make(map[common.Address]*Account)}
}

// Copy returns a deep copy that can be mutated independently.
func (s *StateDB) Copy() *StateDB {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := &StateDB{accounts: make(map[common.Address]*Account, len(s.accounts))}
	for addr, acc := range s.accounts {
		cp.accounts[addr] = acc.copy()
	}
	return cp
}

// ------------------------------------------------------------
// Reads (never create accounts)
// ------------------------------------------------------------

func (s *StateDB) Exist(addr common.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.accounts[addr]
	return ok
}

func (s *StateDB) GetBalance(addr common.Address) *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if acc, ok := s.accounts[addr]; ok {
		return new(big.Int).Set(acc.Balance)
	}
	return big.NewInt(0)
}

func (s *StateDB) GetNonce(addr common.Address) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if acc, ok := s.accounts[addr]; ok {
		return acc.Nonce
	}
	return 0
}

func (s *StateDB) GetCode(addr common.Address) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if acc, ok := s.accounts[addr]; ok {
		return common.CopyBytes(acc.Code)
	}
	return nil
}

// GetAccount returns a copy of the account, or nil if it does not exist.
func (s *StateDB) GetAccount(addr common.Address) *Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if acc, ok := s.accounts[addr]; ok {
		return acc.copy()
	}
	return nil
}

// ------------------------------------------------------------
// Writes
// ------------------------------------------------------------

func (s *StateDB) getOrCreate(addr common.Address) *Account {
	acc, ok := s.accounts[addr]
	if !ok {
		acc = newAccount()
		s.accounts[addr] = acc
	}
	return acc
}

func (s *StateDB) SetBalance(addr common.Address, amount *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if amount == nil {
		amount = big.NewInt(0)
	}
	// copy so callers cannot mutate the stored value
	s.getOrCreate(addr).Balance = new(big.Int).Set(amount)
}

func (s *StateDB) AddBalance(addr common.Address, amount *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.getOrCreate(addr)
	acc.Balance = new(big.Int).Add(acc.Balance, amount)
}

// SubBalance fails with ErrInsufficientFunds instead of going negative.
func (s *StateDB) SubBalance(addr common.Address, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.getOrCreate(addr)
	if acc.Balance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	acc.Balance = new(big.Int).Sub(acc.Balance, amount)
	return nil
}

func (s *StateDB) SetNonce(addr common.Address, nonce uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreate(addr).Nonce = nonce
}

func (s *StateDB) IncreaseNonce(addr common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreate(addr).Nonce++
}

func (s *StateDB) SetCode(addr common.Address, code []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreate(addr).Code = common.CopyBytes(code)
}

// ------------------------------------------------------------
// State root
// ------------------------------------------------------------

type rootEntry struct {
	Address     common.Address
	Nonce       uint64
	Balance     *big.Int
	CodeHash    common.Hash
	StorageRoot common.Hash
}

// Root is a keccak256 commitment over all accounts in address order. It is
// not a Merkle-Patricia root; it only has to change whenever any account
// changes.
func (s *StateDB) Root() common.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()

	addrs := make([]common.Address, 0, len(s.accounts))
	for addr := range s.accounts {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
	})

	hasher := sha3.NewLegacyKeccak256()
	for _, addr := range addrs {
		acc := s.accounts[addr]
		codeHash := EmptyCodeHash
		if len(acc.Code) > 0 {
			codeHash = crypto.Keccak256Hash(acc.Code)
		}
		enc, _ := rlp.EncodeToBytes(&rootEntry{
			Address:     addr,
			Nonce:       acc.Nonce,
			Balance:     acc.Balance,
			CodeHash:    codeHash,
			StorageRoot: acc.StorageRoot,
		})
		hasher.Write(enc)
	}

	var root common.Hash
	hasher.Sum(root[:0])
	return root
}

// Dump returns a copy of every account, for debugging and the explorer.
func (s *StateDB) Dump() map[common.Address]*Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[common.Address]*Account, len(s.accounts))
	for addr, acc := range s.accounts {
		out[addr] = acc.copy()
	}
	return out
}
