// Package artifacts reads contract build output produced by the Hardhat
// toolchain. Nothing here compiles: bytecode and ABI are taken as given.
package artifacts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	ErrNotFound         = errors.New("artifact not found")
	ErrEmptyBytecode    = errors.New("artifact has empty bytecode")
	ErrCompilerMismatch = errors.New("artifact compiler version mismatch")
)

// Artifact is one compiled contract.
type Artifact struct {
	ContractName     string
	SourceName       string
	ABI              abi.ABI
	RawABI           json.RawMessage
	Bytecode         []byte
	DeployedBytecode []byte
}

// DeployData is the creation payload: bytecode followed by the packed
// constructor arguments.
func (a *Artifact) DeployData(args ...interface{}) ([]byte, error) {
	packed, err := a.ABI.Pack("", args...)
	if err != nil {
		return nil, fmt.Errorf("pack constructor args for %s: %w", a.ContractName, err)
	}
	return append(bytes.Clone(a.Bytecode), packed...), nil
}

type artifactJSON struct {
	ContractName     string          `json:"contractName"`
	SourceName       string          `json:"sourceName"`
	ABI              json.RawMessage `json:"abi"`
	Bytecode         string          `json:"bytecode"`
	DeployedBytecode string          `json:"deployedBytecode"`
}

type buildInfoJSON struct {
	SolcVersion     string `json:"solcVersion"`
	SolcLongVersion string `json:"solcLongVersion"`
}

// Loader resolves artifacts under <root>/contracts/<Source>.sol/<Name>.json.
type Loader struct {
	root     string
	compiler *Version
}

// NewLoader checks the configured compiler version and returns a loader for
// the artifacts directory root.
func NewLoader(root, solidity string) (*Loader, error) {
	v, err := ParseVersion(solidity)
	if err != nil {
		return nil, fmt.Errorf("solidity version: %w", err)
	}
	return &Loader{root: root, compiler: v}, nil
}

func (l *Loader) Root() string { return l.root }

func (l *Loader) Compiler() *Version { return l.compiler }

// Load returns the artifact for name, either "Name" or "Source.sol:Name".
func (l *Loader) Load(name string) (*Artifact, error) {
	path, err := l.find(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", path, err)
	}

	var raw artifactJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse artifact %s: %w", path, err)
	}
	if raw.ContractName == "" {
		raw.ContractName = strings.TrimSuffix(filepath.Base(path), ".json")
	}

	code, err := decodeCode(raw.Bytecode)
	if err != nil {
		return nil, fmt.Errorf("artifact %s bytecode: %w", raw.ContractName, err)
	}
	if len(code) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyBytecode, raw.ContractName)
	}
	deployed, err := decodeCode(raw.DeployedBytecode)
	if err != nil {
		return nil, fmt.Errorf("artifact %s deployed bytecode: %w", raw.ContractName, err)
	}

	parsed, err := abi.JSON(bytes.NewReader(raw.ABI))
	if err != nil {
		return nil, fmt.Errorf("artifact %s abi: %w", raw.ContractName, err)
	}

	return &Artifact{
		ContractName:     raw.ContractName,
		SourceName:       raw.SourceName,
		ABI:              parsed,
		RawABI:           raw.ABI,
		Bytecode:         code,
		DeployedBytecode: deployed,
	}, nil
}

// List returns the names of every artifact, sorted.
func (l *Loader) List() ([]string, error) {
	var names []string
	err := l.walk(func(path string) bool {
		names = append(names, strings.TrimSuffix(filepath.Base(path), ".json"))
		return false
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// CheckBuildInfo compares every build-info file against the configured
// compiler. A missing build-info directory is not an error.
func (l *Loader) CheckBuildInfo() error {
	files, err := filepath.Glob(filepath.Join(l.root, "build-info", "*.json"))
	if err != nil {
		return err
	}
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read build info %s: %w", path, err)
		}
		var info buildInfoJSON
		if err := json.Unmarshal(data, &info); err != nil {
			return fmt.Errorf("parse build info %s: %w", path, err)
		}
		v, err := ParseVersion(info.SolcVersion)
		if err != nil {
			return fmt.Errorf("build info %s: %w", path, err)
		}
		if !v.SameRelease(l.compiler) {
			return fmt.Errorf("%w: %s built with %s, configured %s", ErrCompilerMismatch, filepath.Base(path), v, l.compiler)
		}
	}
	return nil
}

func (l *Loader) find(name string) (string, error) {
	source, contract := "", name
	if i := strings.LastIndex(name, ":"); i >= 0 {
		source, contract = name[:i], name[i+1:]
	}
	if contract == "" {
		return "", fmt.Errorf("%w: empty contract name", ErrNotFound)
	}

	if source != "" {
		path := filepath.Join(l.root, "contracts", filepath.Base(source), contract+".json")
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return path, nil
	}

	var found string
	err := l.walk(func(path string) bool {
		if filepath.Base(path) == contract+".json" {
			found = path
			return true
		}
		return false
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return found, nil
}

// walk visits artifact files (debug files skipped) until visit returns true.
func (l *Loader) walk(visit func(path string) bool) error {
	dir := filepath.Join(l.root, "contracts")
	errStop := errors.New("stop")

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") || strings.HasSuffix(path, ".dbg.json") {
			return nil
		}
		if visit(path) {
			return errStop
		}
		return nil
	})
	if errors.Is(err, errStop) {
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: no artifacts under %s", ErrNotFound, dir)
	}
	return err
}

func decodeCode(s string) ([]byte, error) {
	if s == "" || s == "0x" {
		return nil, nil
	}
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}
