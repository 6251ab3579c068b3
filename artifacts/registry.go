package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var ErrNoDeployments = errors.New("no deployed contracts recorded")

// Deployment is one contract creation sealed on the devnet.
type Deployment struct {
	Contract   string          `json:"contract"`
	Address    common.Address  `json:"address"`
	TxHash     common.Hash     `json:"txHash"`
	Block      uint64          `json:"block"`
	Deployer   common.Address  `json:"deployer"`
	Args       []string        `json:"args,omitempty"`
	ABI        json.RawMessage `json:"abi,omitempty"`
	DeployedAt time.Time       `json:"deployedAt"`
}

type registryFile struct {
	Contracts []Deployment `json:"contracts"`
}

// Registry keeps deployed contracts in a JSON file, oldest first. A missing
// file reads as empty.
type Registry struct {
	path string
}

func NewRegistry(path string) *Registry {
	return &Registry{path: path}
}

func (r *Registry) Path() string { return r.path }

func (r *Registry) List() ([]Deployment, error) {
	raw, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var f registryFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", r.path, err)
	}
	return f.Contracts, nil
}

// Record appends d and rewrites the file through a temp file and rename.
func (r *Registry) Record(d Deployment) error {
	list, err := r.List()
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(registryFile{Contracts: append(list, d)}, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, r.path)
}

// Latest returns the most recent deployment, optionally of one contract.
func (r *Registry) Latest(contract string) (*Deployment, error) {
	list, err := r.List()
	if err != nil {
		return nil, err
	}
	for i := len(list) - 1; i >= 0; i-- {
		if contract == "" || list[i].Contract == contract {
			return &list[i], nil
		}
	}
	return nil, ErrNoDeployments
}
