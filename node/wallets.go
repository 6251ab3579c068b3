package node

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/google/uuid"

	"github.com/Siasom1/gorrillazz-devnet/params"
)

// ------------------------------------------------------------
// Dev account wallet files
// ------------------------------------------------------------
//
// Dev accounts are exported as Web3 Secret Storage (keystore v3) files
// so wallets and scripts can import them without the raw key.

// walletFileName follows the geth keystore naming without the timestamp,
// so re-exporting overwrites instead of piling up files.
func walletFileName(a params.DevAccount) string {
	return "devnet--" + strings.ToLower(a.Address.Hex()[2:]) + ".json"
}

// ExportWallets writes one encrypted keystore file per account into dir and
// returns the written paths.
func ExportWallets(dir, password string, accounts []params.DevAccount) ([]string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create wallet dir: %w", err)
	}

	paths := make([]string, 0, len(accounts))
	for _, a := range accounts {
		key := &keystore.Key{
			Id:         uuid.New(),
			Address:    a.Address,
			PrivateKey: a.Key,
		}
		data, err := keystore.EncryptKey(key, password, keystore.LightScryptN, keystore.LightScryptP)
		if err != nil {
			return nil, fmt.Errorf("encrypt %s: %w", a.Address.Hex(), err)
		}

		path := filepath.Join(dir, walletFileName(a))
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// LoadWallet decrypts a wallet file written by ExportWallets (or any
// keystore v3 file).
func LoadWallet(path, password string) (params.DevAccount, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return params.DevAccount{}, err
	}
	key, err := keystore.DecryptKey(data, password)
	if err != nil {
		return params.DevAccount{}, fmt.Errorf("decrypt %s: %w", filepath.Base(path), err)
	}
	return params.DevAccount{Address: key.Address, Key: key.PrivateKey}, nil
}
