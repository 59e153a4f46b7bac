// Package protocol assembles the lending core: one storage backend, the
// governance parameter store, and the four native engines wired together
// with their set-once authorization addresses.
package protocol

import (
	"fmt"
	"log/slog"
	"math/big"
	"path/filepath"

	"github.com/Kleo-Protocol/kleo-contracts/config"
	"github.com/Kleo-Protocol/kleo-contracts/core/events"
	"github.com/Kleo-Protocol/kleo-contracts/crypto"
	"github.com/Kleo-Protocol/kleo-contracts/native/loan"
	"github.com/Kleo-Protocol/kleo-contracts/native/params"
	"github.com/Kleo-Protocol/kleo-contracts/native/pool"
	"github.com/Kleo-Protocol/kleo-contracts/native/reputation"
	"github.com/Kleo-Protocol/kleo-contracts/native/vouch"
	"github.com/Kleo-Protocol/kleo-contracts/observability"
	"github.com/Kleo-Protocol/kleo-contracts/observability/logging"
	"github.com/Kleo-Protocol/kleo-contracts/storage"
)

// Protocol owns the wired engine graph. All cross-engine calls authenticate
// against the module addresses fixed here at construction.
type Protocol struct {
	db    storage.Database
	kv    *storage.KVStore
	state *poolState

	Params     *params.Store
	Pool       *pool.Engine
	Reputation *reputation.Ledger
	Vouches    *vouch.Registry
	Loans      *loan.Ledger

	log *slog.Logger
}

// storePauses re-reads the pause switches from the parameter store on every
// check so governance updates take effect without a restart.
type storePauses struct {
	store *params.Store
}

func (p storePauses) IsPaused(module string) bool {
	pauses, err := p.store.Pauses()
	if err != nil {
		return false
	}
	return pauses.IsPaused(module)
}

// New wires the engine graph over the supplied database. The database is
// owned by the caller.
func New(db storage.Database) (*Protocol, error) {
	kv := storage.NewKVStore(db)
	store := params.NewStore(params.NewDatabaseState(db))
	pauses := storePauses{store: store}

	poolAddr := crypto.ModuleAddress("pool")
	vouchAddr := crypto.ModuleAddress("vouch")
	loanAddr := crypto.ModuleAddress("loan")

	state := newPoolState(kv)
	emitter := observability.NewMeteredEmitter(nil)

	poolEngine := pool.NewEngine(poolAddr, store)
	poolEngine.SetState(state)
	poolEngine.SetPauses(pauses)
	poolEngine.SetEmitter(emitter)

	reputationLedger := reputation.NewLedger(kv, store)

	vouchRegistry := vouch.NewRegistry(vouchAddr, kv, reputationLedger, poolEngine, store)
	vouchRegistry.SetPauses(pauses)
	vouchRegistry.SetEmitter(emitter)

	loanLedger := loan.NewLedger(loanAddr, kv, reputationLedger, poolEngine, vouchRegistry, store)
	loanLedger.SetPauses(pauses)
	loanLedger.SetEmitter(emitter)

	if err := poolEngine.SetLoanLedger(loanAddr); err != nil {
		return nil, err
	}
	if err := poolEngine.SetVouchRegistry(vouchAddr); err != nil {
		return nil, err
	}
	if err := vouchRegistry.SetLoanLedger(loanAddr); err != nil {
		return nil, err
	}

	return &Protocol{
		db:         db,
		kv:         kv,
		state:      state,
		Params:     store,
		Pool:       poolEngine,
		Reputation: reputationLedger,
		Vouches:    vouchRegistry,
		Loans:      loanLedger,
	}, nil
}

// Open builds a protocol instance from node configuration, backing it with
// LevelDB under the configured data directory and installing the structured
// logger.
func Open(cfg *config.Config) (*Protocol, error) {
	logger := logging.Setup("kleo-contracts", cfg.Environment)

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return nil, fmt.Errorf("protocol: open state database: %w", err)
	}
	p, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	p.log = logger
	logger.Info("protocol initialised",
		"network", cfg.NetworkName,
		"dataDir", cfg.DataDir,
	)
	return p, nil
}

// Close releases the underlying database.
func (p *Protocol) Close() {
	if p == nil || p.db == nil {
		return
	}
	p.db.Close()
}

// FundAccount credits native balance to an account. This is the genesis and
// test faucet; production balances arrive through the host chain.
func (p *Protocol) FundAccount(addr crypto.Address, amountWei *big.Int) error {
	if p == nil || p.state == nil {
		return fmt.Errorf("protocol: not initialised")
	}
	return p.state.creditAccount(addr, amountWei)
}

// Balance reports an account's native balance.
func (p *Protocol) Balance(addr crypto.Address) (*big.Int, error) {
	account, err := p.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return big.NewInt(0), nil
	}
	account.EnsureDefaults()
	return account.Balance, nil
}

// SetEmitter swaps the downstream event emitter on every engine, keeping the
// metrics bridge in front of it.
func (p *Protocol) SetEmitter(next events.Emitter) {
	emitter := observability.NewMeteredEmitter(next)
	p.Pool.SetEmitter(emitter)
	p.Vouches.SetEmitter(emitter)
	p.Loans.SetEmitter(emitter)
}

// SetNowFunc pins the millisecond clock across every engine. Primarily for
// tests.
func (p *Protocol) SetNowFunc(now func() uint64) {
	p.Pool.SetNowFunc(now)
	p.Reputation.SetNowFunc(now)
	p.Vouches.SetNowFunc(now)
	p.Loans.SetNowFunc(now)
}
