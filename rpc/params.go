package rpc

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// parseParams decodes the positional params into out. The first required
// entries must be present; the rest are optional and keep their zero value.
func parseParams(raw json.RawMessage, required int, out ...interface{}) *Error {
	var list []json.RawMessage
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &list); err != nil {
			return ErrInvalidParams("params must be an array")
		}
	}
	if len(list) < required {
		return ErrInvalidParams(fmt.Sprintf("missing value for required argument %d", len(list)))
	}
	if len(list) > len(out) {
		return ErrInvalidParams(fmt.Sprintf("too many arguments, want at most %d", len(out)))
	}
	for i, p := range list {
		if err := json.Unmarshal(p, out[i]); err != nil {
			return ErrInvalidParams(fmt.Sprintf("invalid argument %d: %v", i, err))
		}
	}
	return nil
}

// BlockNumber is a block parameter: a hex quantity or one of the tags.
type BlockNumber int64

const (
	PendingBlockNumber  BlockNumber = -2
	LatestBlockNumber   BlockNumber = -1
	EarliestBlockNumber BlockNumber = 0
)

func (bn *BlockNumber) UnmarshalJSON(data []byte) error {
	input := strings.TrimSpace(string(data))
	if len(input) >= 2 && input[0] == '"' && input[len(input)-1] == '"' {
		input = input[1 : len(input)-1]
	}

	switch input {
	case "earliest":
		*bn = EarliestBlockNumber
		return nil
	case "latest", "safe", "finalized", "":
		*bn = LatestBlockNumber
		return nil
	case "pending":
		*bn = PendingBlockNumber
		return nil
	}

	n, err := hexutil.DecodeUint64(input)
	if err != nil {
		return fmt.Errorf("invalid block number %q: %w", input, err)
	}
	if n > uint64(1<<63-1) {
		return fmt.Errorf("block number %q too large", input)
	}
	*bn = BlockNumber(n)
	return nil
}

func (bn BlockNumber) String() string {
	switch bn {
	case PendingBlockNumber:
		return "pending"
	case LatestBlockNumber:
		return "latest"
	}
	return hexutil.EncodeUint64(uint64(bn))
}
