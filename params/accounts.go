package params

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// DevSeedPhrase derives the funded dev accounts. Dev only: anyone can
	// recompute these keys.
	DevSeedPhrase = "GORRILLAZZ DEVNET SEED PHRASE - DO NOT USE ON A REAL NETWORK"

	DevAccountCount = 20
)

// DevAccountBalance is the genesis balance of every dev account (10000 ETH).
var DevAccountBalance = new(big.Int).Mul(big.NewInt(10_000), Ether)

type DevAccount struct {
	Address common.Address
	Key     *ecdsa.PrivateKey
}

// PrivateKeyHex is the key as hex without 0x, the form wallets import.
func (a DevAccount) PrivateKeyHex() string {
	return hex.EncodeToString(crypto.FromECDSA(a.Key))
}

// DeriveKey returns the index-th key of seed. The digest is re-hashed until
// it is a valid secp256k1 scalar.
func DeriveKey(seed string, index uint32) (*ecdsa.PrivateKey, error) {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s-%d", seed, index)))
	for i := 0; i < 16; i++ {
		if key, err := crypto.ToECDSA(h[:]); err == nil {
			return key, nil
		}
		h = sha256.Sum256(h[:])
	}
	return nil, fmt.Errorf("no valid key for seed index %d", index)
}

// DevAccounts derives n accounts from seed.
func DevAccounts(seed string, n int) ([]DevAccount, error) {
	accounts := make([]DevAccount, n)
	for i := 0; i < n; i++ {
		key, err := DeriveKey(seed, uint32(i))
		if err != nil {
			return nil, err
		}
		accounts[i] = DevAccount{
			Address: crypto.PubkeyToAddress(key.PublicKey),
			Key:     key,
		}
	}
	return accounts, nil
}

// DevAlloc funds every account with balance.
func DevAlloc(accounts []DevAccount, balance *big.Int) map[common.Address]*big.Int {
	alloc := make(map[common.Address]*big.Int, len(accounts))
	for _, a := range accounts {
		alloc[a.Address] = new(big.Int).Set(balance)
	}
	return alloc
}
