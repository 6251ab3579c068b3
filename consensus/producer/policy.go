package producer

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects what wakes the scheduler.
type Mode int

const (
	// Auto builds when the pool admits a transaction.
	Auto Mode = iota
	// Interval builds on a fixed timer, sealing empty blocks if needed.
	Interval
)

func (m Mode) String() string {
	switch m {
	case Auto:
		return "auto"
	case Interval:
		return "interval"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auto":
		return Auto, nil
	case "interval":
		return Interval, nil
	default:
		return 0, fmt.Errorf("unknown mining mode %q (want auto or interval)", s)
	}
}

// Policy is fixed for the life of the process. Interval is only read in
// Interval mode.
type Policy struct {
	Mode     Mode
	Interval time.Duration
}

func AutoPolicy() Policy {
	return Policy{Mode: Auto}
}

func IntervalPolicy(d time.Duration) Policy {
	return Policy{Mode: Interval, Interval: d}
}

func (p Policy) Validate() error {
	switch p.Mode {
	case Auto:
		return nil
	case Interval:
		if p.Interval < 0 {
			return fmt.Errorf("negative mining interval %s", p.Interval)
		}
		return nil
	default:
		return fmt.Errorf("invalid mining mode %s", p.Mode)
	}
}

func (p Policy) String() string {
	if p.Mode == Interval {
		return fmt.Sprintf("interval(%s)", p.Interval)
	}
	return p.Mode.String()
}
