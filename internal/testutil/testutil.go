// Package testutil holds helpers shared by package tests: deterministic
// keys and signed transactions.
package testutil

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Siasom1/gorrillazz-devnet/core/types"
)

// ChainID is the chain id tests sign for.
var ChainID = big.NewInt(31337)

// Key returns a deterministic private key for index i.
func Key(i int) *ecdsa.PrivateKey {
	for salt := 0; ; salt++ {
		seed := crypto.Keccak256([]byte(fmt.Sprintf("devnet-test-key-%d-%d", i, salt)))
		if key, err := crypto.ToECDSA(seed); err == nil {
			return key
		}
	}
}

// Addr is the address of Key(i).
func Addr(i int) common.Address {
	return crypto.PubkeyToAddress(Key(i).PublicKey)
}

// SignLegacy signs a legacy tx for ChainID.
func SignLegacy(t testing.TB, key *ecdsa.PrivateKey, inner *gethtypes.LegacyTx) *gethtypes.Transaction {
	t.Helper()
	signed, err := gethtypes.SignNewTx(key, gethtypes.LatestSignerForChainID(ChainID), inner)
	if err != nil {
		t.Fatalf("sign tx: %v", err)
	}
	return signed
}

// Transfer builds a signed, validated value transfer with zero gas price.
func Transfer(t testing.TB, key *ecdsa.PrivateKey, nonce uint64, to common.Address, value int64) *types.Transaction {
	t.Helper()
	signed := SignLegacy(t, key, &gethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(value),
		Gas:      21000,
		GasPrice: big.NewInt(0),
	})
	tx, err := types.NewTransaction(signed, ChainID)
	if err != nil {
		t.Fatalf("new tx: %v", err)
	}
	return tx
}

// Deploy builds a signed contract creation carrying code.
func Deploy(t testing.TB, key *ecdsa.PrivateKey, nonce uint64, code []byte) *types.Transaction {
	t.Helper()
	signed := SignLegacy(t, key, &gethtypes.LegacyTx{
		Nonce:    nonce,
		Value:    big.NewInt(0),
		Gas:      1_000_000,
		GasPrice: big.NewInt(0),
		Data:     code,
	})
	tx, err := types.NewTransaction(signed, ChainID)
	if err != nil {
		t.Fatalf("new tx: %v", err)
	}
	return tx
}
