package node

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Siasom1/gorrillazz-devnet/artifacts"
	"github.com/Siasom1/gorrillazz-devnet/consensus/producer"
	"github.com/Siasom1/gorrillazz-devnet/core/blockchain"
	"github.com/Siasom1/gorrillazz-devnet/core/rawdb"
	"github.com/Siasom1/gorrillazz-devnet/core/txpool"
	"github.com/Siasom1/gorrillazz-devnet/events"
	"github.com/Siasom1/gorrillazz-devnet/explorer"
	"github.com/Siasom1/gorrillazz-devnet/log"
	"github.com/Siasom1/gorrillazz-devnet/params"
	"github.com/Siasom1/gorrillazz-devnet/rpc"
)

// chainDataDir is where blocks live under the configured datadir.
const chainDataDir = "chaindata"

type Node struct {
	Config   *Config
	Logger   *log.Logger
	Accounts []params.DevAccount

	DB          *rawdb.Database
	Chain       *blockchain.Blockchain
	Events      *events.EventBus
	TxPool      *txpool.TxPool
	Builder     *producer.Builder
	Scheduler   *producer.Scheduler
	Artifacts   *artifacts.Loader
	ExplorerAPI *explorer.ExplorerAPI
	RPCServer   *rpc.Server

	mu       sync.Mutex
	started  bool
	stopped  bool
	cancel   context.CancelFunc
	janitorW sync.WaitGroup
}

// NewNode wires every component. Nothing runs until Start.
func NewNode(cfg *Config) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}

	logger, err := log.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	n := &Node{
		Config: cfg,
		Logger: logger,
	}

	// ------------------------------------------------
	// 1. Dev accounts + genesis
	// ------------------------------------------------
	n.Accounts, err = params.DevAccounts(cfg.Accounts.Seed, cfg.Accounts.Count)
	if err != nil {
		return nil, fmt.Errorf("derive dev accounts: %w", err)
	}
	chainCfg := blockchain.DefaultChainConfig(cfg.Network.ChainID, blockchain.GenesisAlloc(params.DevAlloc(n.Accounts, cfg.AccountBalance())))
	chainCfg.GenesisTime = cfg.Genesis.Time

	// ------------------------------------------------
	// 2. Storage + blockchain
	// ------------------------------------------------
	if cfg.DataDir == "" {
		n.DB = rawdb.NewMemoryDatabase()
	} else {
		n.DB, err = rawdb.Open(filepath.Join(cfg.DataDir, chainDataDir))
		if err != nil {
			return nil, fmt.Errorf("open chain database: %w", err)
		}
	}

	n.Chain, err = blockchain.NewBlockchain(chainCfg, n.DB, logger)
	if err != nil {
		n.DB.Close()
		return nil, fmt.Errorf("init blockchain: %w", err)
	}

	// ------------------------------------------------
	// 3. Events, pool, producer
	// ------------------------------------------------
	n.Events = events.NewEventBus()
	n.TxPool = txpool.NewTxPool(cfg.TxPool, n.Chain, n.Events, logger)
	n.Builder = producer.NewBuilder(n.Chain, n.TxPool, n.Events, cfg.Mining.MaxBlockTxs, logger)
	n.Scheduler = producer.NewScheduler(policy, n.Builder, n.TxPool.Admissions(), logger)

	// ------------------------------------------------
	// 4. Artifacts
	// ------------------------------------------------
	n.Artifacts, err = artifacts.NewLoader(cfg.Artifacts, cfg.Solidity)
	if err != nil {
		n.DB.Close()
		return nil, err
	}

	// ------------------------------------------------
	// 5. RPC + explorer
	// ------------------------------------------------
	addrs := make([]common.Address, len(n.Accounts))
	for i, a := range n.Accounts {
		addrs[i] = a.Address
	}
	api := rpc.NewAPI(rpc.Backend{
		Chain:     n.Chain,
		Pool:      n.TxPool,
		Miner:     n.Scheduler,
		Artifacts: n.Artifacts,
		Accounts:  addrs,
		GasPrice:  new(big.Int).SetUint64(params.DevChainConfig().GasPrice),
	})
	n.RPCServer = rpc.NewServer(rpc.Config{
		Addr:         cfg.Network.Addr(),
		ReadTimeout:  cfg.Network.ReadTimeout,
		WriteTimeout: cfg.Network.WriteTimeout,
	}, api, n.Events, logger.With("component", "rpc"))

	n.ExplorerAPI = explorer.NewExplorerAPI(n.Chain, n.TxPool, n.Events)
	n.RPCServer.Mount("/explorer", n.ExplorerAPI.Routes())

	return n, nil
}

func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started {
		return errors.New("node already started")
	}
	n.started = true

	policy := n.Scheduler.Policy()
	head := n.Chain.CurrentBlock()
	n.Logger.Info("Starting devnet node",
		"chainId", n.Config.Network.ChainID,
		"mining", policy.String(),
		"solidity", n.Artifacts.Compiler().String(),
		"datadir", n.Config.DataDir,
		"head", head.Number(),
		"hash", head.Hash().Hex(),
	)

	if err := n.Artifacts.CheckBuildInfo(); err != nil {
		if errors.Is(err, artifacts.ErrCompilerMismatch) {
			n.Logger.Error("Artifacts were not built with the configured compiler", "error", err)
		} else {
			n.Logger.Warn("Could not read artifact build info", "error", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel

	// ------------------------------------------------
	// 1. Block production
	// ------------------------------------------------
	if err := n.Scheduler.Start(ctx); err != nil {
		cancel()
		return err
	}

	// ------------------------------------------------
	// 2. Pool janitor
	// ------------------------------------------------
	if lifetime := n.Config.TxPool.Lifetime; lifetime > 0 {
		n.janitorW.Add(1)
		go n.janitor(ctx, lifetime)
	}

	// ------------------------------------------------
	// 3. RPC server
	// ------------------------------------------------
	if err := n.RPCServer.Start(); err != nil {
		cancel()
		n.Scheduler.Stop()
		n.janitorW.Wait()
		return err
	}

	n.Logger.Info("Node started successfully", "rpc", n.RPCServer.Addr().String(), "accounts", len(n.Accounts))
	return nil
}

// Stop shuts down in reverse order: no new requests, then no new blocks,
// then storage. Safe to call more than once.
func (n *Node) Stop() {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	n.stopped = true
	started := n.started
	n.mu.Unlock()

	n.Logger.Info("Stopping devnet node...")

	if started {
		ctx, cancel := context.WithTimeout(context.Background(), n.Config.Network.ShutdownTimeout)
		if err := n.RPCServer.Stop(ctx); err != nil {
			n.Logger.Warn("RPC server shutdown", "error", err)
		}
		cancel()

		n.cancel()
		n.Scheduler.Stop()
		n.janitorW.Wait()
	}

	if err := n.DB.Close(); err != nil {
		n.Logger.Warn("Closing chain database", "error", err)
	}
	n.Logger.Info("Node stopped.")
	_ = n.Logger.Sync()
}

// janitor evicts waiting txs older than lifetime.
func (n *Node) janitor(ctx context.Context, lifetime time.Duration) {
	defer n.janitorW.Done()

	ticker := time.NewTicker(janitorInterval(lifetime))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if evicted := n.TxPool.Evict(now.Add(-lifetime)); evicted > 0 {
				n.Logger.Info("Evicted stale transactions", "count", evicted, "lifetime", lifetime)
			}
		}
	}
}

func janitorInterval(lifetime time.Duration) time.Duration {
	d := lifetime / 10
	if d < time.Second {
		d = time.Second
	}
	if d > time.Minute {
		d = time.Minute
	}
	return d
}
