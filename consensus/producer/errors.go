package producer

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrBlockApplication  = errors.New("block application failed")
	ErrSchedulerShutdown = errors.New("scheduler shut down")
)

// BlockApplicationError reports the tx that broke a build. The whole batch
// was discarded and returned to the pool.
type BlockApplicationError struct {
	Index  int
	TxHash common.Hash
	Err    error
}

func (e *BlockApplicationError) Error() string {
	return fmt.Sprintf("%v: tx %d (%s): %v", ErrBlockApplication, e.Index, e.TxHash.Hex(), e.Err)
}

func (e *BlockApplicationError) Is(target error) bool {
	return target == ErrBlockApplication
}

func (e *BlockApplicationError) Unwrap() error {
	return e.Err
}
