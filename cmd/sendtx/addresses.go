package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// readAddresses opens an airdrop list: one hex address per line. Blank lines
// and lines starting with # are skipped.
func readAddresses(path string) ([]common.Address, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseAddresses(f)
}

func parseAddresses(r io.Reader) ([]common.Address, error) {
	var (
		out  []common.Address
		seen = make(map[common.Address]int)
		line int
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		if !strings.HasPrefix(s, "0x") || !common.IsHexAddress(s) {
			return nil, fmt.Errorf("line %d: invalid address %q", line, s)
		}
		addr := common.HexToAddress(s)
		if prev, ok := seen[addr]; ok {
			return nil, fmt.Errorf("line %d: %s already listed on line %d", line, addr.Hex(), prev)
		}
		seen[addr] = line
		out = append(out, addr)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("no valid addresses found")
	}
	return out, nil
}
