package producer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Siasom1/gorrillazz-devnet/core/types"
	"github.com/Siasom1/gorrillazz-devnet/log"
)

type State int32

const (
	Idle State = iota
	Triggered
)

func (s State) String() string {
	if s == Triggered {
		return "triggered"
	}
	return "idle"
}

// Scheduler decides when the Builder runs.
//
// In Auto mode the loop waits on the pool's admission signal, in Interval
// mode on a timer that is re-armed after every build. Both paths end in the
// same Builder.Build call.
type Scheduler struct {
	policy     Policy
	builder    *Builder
	admissions <-chan struct{}
	logger     *log.Logger

	state atomic.Int32

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
	manual  sync.WaitGroup
}

func NewScheduler(policy Policy, builder *Builder, admissions <-chan struct{}, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Scheduler{
		policy:     policy,
		builder:    builder,
		admissions: admissions,
		logger:     logger.With("component", "scheduler"),
		done:       make(chan struct{}),
	}
}

func (s *Scheduler) Policy() Policy { return s.policy }

func (s *Scheduler) State() State { return State(s.state.Load()) }

// Start launches the loop. It runs until Stop or until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.policy.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrSchedulerShutdown
	}
	if s.started {
		return errors.New("scheduler already started")
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)

	s.logger.Info("Starting block production", "policy", s.policy.String())
	return nil
}

// Stop ends the loop and waits for any build in progress. Safe to call
// more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	if started {
		s.cancel()
		<-s.done
	}
	s.manual.Wait()
	s.logger.Info("Stopped block production")
}

// Mine seals a block now, empty if the pool has nothing eligible.
func (s *Scheduler) Mine(ctx context.Context) (*types.Block, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, ErrSchedulerShutdown
	}
	s.manual.Add(1)
	s.mu.Unlock()
	defer s.manual.Done()

	s.state.Store(int32(Triggered))
	defer s.state.Store(int32(Idle))
	return s.builder.Build(ctx, true)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	var (
		admissions <-chan struct{}
		timer      *time.Timer
		tick       <-chan time.Time
	)
	switch s.policy.Mode {
	case Auto:
		admissions = s.admissions
	case Interval:
		timer = time.NewTimer(s.policy.Interval)
		defer timer.Stop()
		tick = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-admissions:
			s.trigger(ctx, false)
		case <-tick:
			s.trigger(ctx, true)
			timer.Reset(s.policy.Interval)
		}
	}
}

// trigger runs one build. In Auto mode a full block means eligible txs were
// left in the pool, so it builds again until a block comes back short.
func (s *Scheduler) trigger(ctx context.Context, allowEmpty bool) {
	s.state.Store(int32(Triggered))
	defer s.state.Store(int32(Idle))

	for {
		block, err := s.builder.Build(ctx, allowEmpty)
		if err != nil {
			if !errors.Is(err, ErrSchedulerShutdown) {
				s.logger.Warn("Block build failed", "err", err)
			}
			return
		}
		if allowEmpty || block == nil || !s.builder.Full(block) {
			return
		}
	}
}
