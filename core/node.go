package core

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"augmint/core/events"
	"augmint/core/state"
	"augmint/crypto"
	nativecommon "augmint/native/common"
	"augmint/native/exchange"
	"augmint/native/loan"
	"augmint/native/locker"
	"augmint/native/rates"
	"augmint/native/supervisor"
	"augmint/native/token"
	"augmint/observability"
	"augmint/storage"
)

// ModuleAccounts are the deterministic addresses the node's modules act from.
type ModuleAccounts struct {
	Supervisor     crypto.Address
	LoanManager    crypto.Address
	Exchange       crypto.Address
	Locker         crypto.Address
	FeeAccount     crypto.Address
	Reserve        crypto.Address
	InterestEarned crypto.Address
	Genesis        crypto.Address
}

func DefaultModuleAccounts() ModuleAccounts {
	return ModuleAccounts{
		Supervisor:     crypto.ModuleAddress("monetarysupervisor"),
		LoanManager:    crypto.ModuleAddress("loanmanager"),
		Exchange:       crypto.ModuleAddress("exchange"),
		Locker:         crypto.ModuleAddress("locker"),
		FeeAccount:     crypto.ModuleAddress("feeaccount"),
		Reserve:        crypto.ModuleAddress("augmintreserves"),
		InterestEarned: crypto.ModuleAddress("interestearnedaccount"),
		Genesis:        crypto.ModuleAddress("genesis"),
	}
}

// TokenAddress is the identity of the token ledger registered under symbol.
func TokenAddress(symbol string) crypto.Address {
	return crypto.ModuleAddress("token/" + strings.ToUpper(strings.TrimSpace(symbol)))
}

type TokenOptions struct {
	Symbol       string
	Name         string
	PeggedSymbol string
	Decimals     uint8
	Fees         *token.FeeParams
}

// Options configure a Node. Zero values fall back to the A-EUR deployment.
type Options struct {
	Token        TokenOptions
	LegacyTokens []TokenOptions
	Pricing      exchange.PricingRule
	MatchBudget  int
	RateMaxAge   time.Duration
	LtdParams    *supervisor.Params
	Logger       *slog.Logger
	Now          func() time.Time
}

func DefaultTokenOptions() TokenOptions {
	return TokenOptions{Symbol: "AEUR", Name: "Augmint Euro", PeggedSymbol: "EUR", Decimals: 4}
}

// Node serialises every state transition over the module set. Each operation
// runs inside a state snapshot and an event journal mark; it either commits
// and flushes its events to the sinks or leaves no trace.
type Node struct {
	mu sync.Mutex

	db       storage.Database
	state    *state.Manager
	journal  *events.Buffer
	sinks    events.Fanout
	accounts ModuleAccounts
	now      func() time.Time

	token      *token.Ledger
	legacy     map[string]*token.Ledger
	rates      *rates.Oracle
	supervisor *supervisor.Supervisor
	loans      *loan.Manager
	exchange   *exchange.Exchange
	locker     *locker.Locker

	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *observability.NodeMetrics
	root    common.Hash
}

// NewNode opens the state held in db, wires every module and makes sure the
// module accounts carry their permissions.
func NewNode(db storage.Database, opts Options) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("core: storage must be provided")
	}
	st, err := state.Open(db)
	if err != nil {
		return nil, fmt.Errorf("core: open state: %w", err)
	}
	if opts.Token.Symbol == "" {
		opts.Token = DefaultTokenOptions()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	accounts := DefaultModuleAccounts()
	n := &Node{
		db:       db,
		state:    st,
		journal:  events.NewBuffer(),
		accounts: accounts,
		now:      opts.Now,
		legacy:   make(map[string]*token.Ledger),
		logger:   opts.Logger.With("component", "node"),
		tracer:   otel.Tracer("augmint/core"),
		metrics:  observability.Node(),
		root:     st.Root(),
	}

	n.token = newLedger(opts.Token, accounts.FeeAccount)
	params := supervisor.DefaultParams()
	if opts.LtdParams != nil {
		params = opts.LtdParams.Clone()
	}
	n.supervisor = supervisor.New(supervisor.Config{
		Address:        accounts.Supervisor,
		Reserve:        accounts.Reserve,
		InterestEarned: accounts.InterestEarned,
		Params:         params,
	}, n.token)
	for _, legacyOpts := range opts.LegacyTokens {
		ledger := newLedger(legacyOpts, accounts.FeeAccount)
		if _, exists := n.legacy[ledger.Symbol()]; exists || ledger.Symbol() == n.token.Symbol() {
			return nil, fmt.Errorf("core: duplicate token %s", ledger.Symbol())
		}
		n.legacy[ledger.Symbol()] = ledger
		n.supervisor.RegisterLegacyToken(ledger)
	}
	n.rates = rates.NewOracle()
	n.rates.SetMaxAge(opts.RateMaxAge)
	n.loans = loan.NewManager(loan.Config{
		Address:        accounts.LoanManager,
		Reserve:        accounts.Reserve,
		InterestEarned: accounts.InterestEarned,
	}, n.token, n.rates, n.supervisor)
	n.exchange = exchange.New(exchange.Config{
		Address:     accounts.Exchange,
		Pricing:     opts.Pricing,
		MatchBudget: opts.MatchBudget,
	}, n.token)
	n.locker = locker.New(accounts.Locker, n.token, n.supervisor)

	n.wire()
	if err := n.bootstrap(); err != nil {
		return nil, err
	}
	return n, nil
}

func newLedger(opts TokenOptions, feeAccount crypto.Address) *token.Ledger {
	cfg := token.Config{
		Symbol:       opts.Symbol,
		Name:         opts.Name,
		PeggedSymbol: opts.PeggedSymbol,
		Decimals:     opts.Decimals,
		Address:      TokenAddress(opts.Symbol),
		FeeAccount:   feeAccount,
	}
	if opts.Fees != nil {
		cfg.Fees = opts.Fees.Clone()
	}
	return token.NewLedger(cfg)
}

func (n *Node) wire() {
	ledgers := append([]*token.Ledger{n.token}, n.legacyLedgers()...)
	for _, ledger := range ledgers {
		ledger.SetState(n.state)
		ledger.SetEmitter(n.journal)
		ledger.SetPauses(n.state)
	}
	n.rates.SetState(n.state)
	n.rates.SetEmitter(n.journal)
	n.rates.SetPauses(n.state)
	n.rates.SetNowFunc(n.now)

	n.supervisor.SetState(n.state)
	n.supervisor.SetEmitter(n.journal)
	n.supervisor.SetPauses(n.state)

	n.loans.SetState(n.state)
	n.loans.SetEmitter(n.journal)
	n.loans.SetPauses(n.state)
	n.loans.SetNowFunc(n.now)

	n.exchange.SetState(n.state)
	n.exchange.SetEmitter(n.journal)
	n.exchange.SetPauses(n.state)
	n.exchange.SetNowFunc(n.now)

	n.locker.SetState(n.state)
	n.locker.SetEmitter(n.journal)
	n.locker.SetPauses(n.state)
	n.locker.SetNowFunc(n.now)
}

func (n *Node) legacyLedgers() []*token.Ledger {
	symbols := make([]string, 0, len(n.legacy))
	for symbol := range n.legacy {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	out := make([]*token.Ledger, 0, len(symbols))
	for _, symbol := range symbols {
		out = append(out, n.legacy[symbol])
	}
	return out
}

// bootstrap registers the tokens and grants the module accounts their
// permissions. It is idempotent so it runs on every start.
func (n *Node) bootstrap() error {
	grants := []struct {
		addr  crypto.Address
		perms []string
	}{
		{n.accounts.Supervisor, []string{nativecommon.PermMonetarySupervisor, nativecommon.PermNoFeeTransferContracts}},
		{n.accounts.LoanManager, []string{nativecommon.PermLoanManager, nativecommon.PermNoFeeTransferContracts}},
		{n.accounts.Exchange, []string{nativecommon.PermNoFeeTransferContracts}},
		{n.accounts.Locker, []string{nativecommon.PermLocker, nativecommon.PermNoFeeTransferContracts}},
		{n.accounts.FeeAccount, []string{nativecommon.PermNoFeeTransferContracts}},
		{n.accounts.InterestEarned, []string{nativecommon.PermNoFeeTransferContracts}},
	}
	return n.withLock("bootstrap", func() error {
		for _, ledger := range append([]*token.Ledger{n.token}, n.legacyLedgers()...) {
			if n.state.TokenExists(ledger.Symbol()) {
				continue
			}
			addr := ledger.Address()
			if err := n.state.RegisterToken(ledger.Symbol(), ledger.Name(), ledger.Decimals(), addr.Bytes()); err != nil {
				return err
			}
		}
		for _, grant := range grants {
			for _, perm := range grant.perms {
				if n.state.HasPermission(grant.addr, perm) {
					continue
				}
				if err := n.state.GrantPermission(grant.addr, perm); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// AddSink registers an emitter that receives committed events in order.
// Sinks must be added before the node starts serving operations.
func (n *Node) AddSink(sink events.Emitter) {
	if sink == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sinks = append(n.sinks, sink)
}

func (n *Node) Accounts() ModuleAccounts { return n.accounts }

// Root returns the state root of the last commit.
func (n *Node) Root() common.Hash {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.root
}

// Close releases the underlying store.
func (n *Node) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.db != nil {
		n.db.Close()
		n.db = nil
	}
}
