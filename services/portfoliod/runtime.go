// Package portfoliod wires the loan, valuation and portfolio engines over one
// journaled state and commits them after every successful call.
package portfoliod

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"creditvault/config"
	"creditvault/core/events"
	"creditvault/core/state"
	"creditvault/crypto"
	"creditvault/native/loans/bullet"
	"creditvault/native/loans/fiol"
	"creditvault/native/portfolio"
	"creditvault/native/valuation"
	"creditvault/observability"
	"creditvault/observability/archive"
	"creditvault/observability/logging"
	"creditvault/observability/metrics"
	"creditvault/services/portfoliod/navstore"
	"creditvault/storage"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrUnknownVault = errors.New("portfoliod: unknown vault")

const tracerName = "creditvault/portfoliod"

// Options carry the collaborators that are not described by the config file.
type Options struct {
	Logger  *slog.Logger
	Now     func() int64
	Archive *archive.Archive
	NAV     *navstore.Store
	// Tracer defaults to the global provider's portfoliod tracer.
	Tracer trace.Tracer
	// Database overrides the backend selected by the storage section.
	Database storage.Database
}

// Vault is a configured portfolio together with its engine.
type Vault struct {
	Name     string
	Address  crypto.Address
	Decimals uint8
	Shares   uint8
	Engine   *portfolio.Engine
}

// Runtime owns every engine. Calls are serialized by mu.
type Runtime struct {
	mu sync.Mutex

	db       storage.Database
	manager  *state.Manager
	ledger   *state.Ledger
	protocol *portfolio.Protocol
	journal  *events.Journal
	archive  *archive.Archive
	nav      *navstore.Store
	logger   *slog.Logger
	tracer   trace.Tracer
	nowFn    func() int64

	bullets    *bullet.Engine
	fiols      *fiol.Engine
	dispatcher *valuation.Dispatcher

	vaults map[string]*Vault
	order  []string
}

// New opens storage, builds the engines and initializes every configured
// vault that does not exist yet. The runtime owns the database, archive and
// NAV store from here on: they are closed by Close, or by New itself when it
// fails.
func New(cfg *config.Config, opts Options) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("portfoliod: nil config")
	}
	db := opts.Database
	if db == nil {
		var err error
		db, err = storage.Open(cfg.Storage.Backend, cfg.ResolvePath(cfg.Storage.Path))
		if err != nil {
			return nil, errors.Join(err, closeStores(opts.Archive, opts.NAV))
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	rt := &Runtime{
		db:      db,
		manager: state.NewManager(db),
		archive: opts.Archive,
		nav:     opts.NAV,
		logger:  logger,
		tracer:  tracer,
		nowFn:   now,
		vaults:  make(map[string]*Vault),
	}
	if err := rt.init(cfg); err != nil {
		rt.manager.Discard()
		return nil, errors.Join(err, rt.Close())
	}
	return rt, nil
}

func (rt *Runtime) init(cfg *config.Config) error {
	if err := rt.manager.EnsureStateVersion(); err != nil {
		return err
	}
	rt.ledger = state.NewLedger(rt.manager)
	sinks := events.Fanout{observability.Events()}
	if rt.archive != nil {
		sinks = append(sinks, rt.archive)
	}
	rt.journal = events.NewJournal(sinks)

	protocol, err := newProtocol(cfg.Protocol)
	if err != nil {
		return err
	}
	rt.protocol = protocol

	if err := rt.buildInstruments(); err != nil {
		return err
	}
	for _, vc := range cfg.Vaults {
		if err := rt.addVault(vc); err != nil {
			return err
		}
	}
	return rt.commit(context.Background())
}

func closeStores(a *archive.Archive, nav *navstore.Store) error {
	var errs []error
	if a != nil {
		errs = append(errs, a.Close())
	}
	if nav != nil {
		errs = append(errs, nav.Close())
	}
	return errors.Join(errs...)
}

func newProtocol(pc config.Protocol) (*portfolio.Protocol, error) {
	protocol := &portfolio.Protocol{FeeRate: pc.FeeRateBps}
	if raw := strings.TrimSpace(pc.Treasury); raw != "" {
		addr, err := crypto.DecodeAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("portfoliod: treasury: %w", err)
		}
		protocol.Treasury = addr
	}
	if raw := strings.TrimSpace(pc.Pauser); raw != "" {
		addr, err := crypto.DecodeAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("portfoliod: pauser: %w", err)
		}
		protocol.Pauser = addr
	}
	return protocol, nil
}

func (rt *Runtime) buildInstruments() error {
	rt.bullets = bullet.NewEngine()
	rt.bullets.SetState(bullet.NewStore(rt.manager))
	rt.bullets.SetPauses(rt.manager)
	rt.bullets.SetNowFunc(rt.nowFn)
	rt.bullets.SetEmitter(rt.journal)

	rt.fiols = fiol.NewEngine()
	rt.fiols.SetState(fiol.NewStore(rt.manager))
	rt.fiols.SetPauses(rt.manager)
	rt.fiols.SetNowFunc(rt.nowFn)
	rt.fiols.SetEmitter(rt.journal)

	valuations := valuation.NewStore(rt.manager)
	bulletStrategy := valuation.NewBulletStrategy(rt.bullets)
	bulletStrategy.SetState(valuations)
	bulletStrategy.SetNowFunc(rt.nowFn)
	bulletStrategy.SetEmitter(rt.journal)
	fiolStrategy := valuation.NewFixedInterestOnlyStrategy(rt.fiols)
	fiolStrategy.SetState(valuations)
	fiolStrategy.SetNowFunc(rt.nowFn)
	fiolStrategy.SetEmitter(rt.journal)

	dispatcher, err := valuation.NewDispatcher()
	if err != nil {
		return err
	}
	dispatcher.SetEmitter(rt.journal)
	for _, s := range []valuation.Strategy{bulletStrategy, fiolStrategy} {
		if err := dispatcher.AddStrategy(s); err != nil {
			return err
		}
	}
	rt.dispatcher = dispatcher
	return nil
}

func (rt *Runtime) addVault(vc config.Vault) error {
	key := strings.ToLower(strings.TrimSpace(vc.Name))
	if _, ok := rt.vaults[key]; ok {
		return fmt.Errorf("portfoliod: duplicate vault %q", vc.Name)
	}
	if !rt.manager.TokenExists(vc.Asset) {
		if err := rt.manager.RegisterToken(vc.Asset, vc.Asset, vc.AssetDecimals); err != nil {
			return err
		}
	}
	address := crypto.LabelAddress(crypto.VaultPrefix, key)
	engine := portfolio.NewEngine(address)
	engine.SetState(portfolio.NewStore(rt.manager))
	engine.SetLedger(rt.ledger)
	engine.SetProtocol(rt.protocol)
	engine.SetFeeSource(portfolio.StaticFeeSource(vc.ManagerFeeBps))
	engine.SetValuation(rt.dispatcher)
	engine.SetPauses(rt.manager)
	engine.SetNowFunc(rt.nowFn)
	engine.SetEmitter(rt.journal)
	engine.RegisterInstrument(rt.bullets)
	engine.RegisterInstrument(rt.fiols)
	if vc.EntryFeeBps > 0 {
		engine.SetDepositPolicy(portfolio.FeeDepositPolicy{FeeRate: vc.EntryFeeBps})
	}
	if vc.WithdrawPolicy == config.WithdrawClosed {
		engine.SetWithdrawPolicy(portfolio.ClosedVaultWithdrawPolicy{})
	}
	if vc.Transfers == config.TransfersBlock {
		engine.SetTransferPolicy(portfolio.BlockAllTransfers{})
	}

	if _, err := engine.Vault(); errors.Is(err, portfolio.ErrVaultNotFound) {
		params, err := vaultParams(vc)
		if err != nil {
			return err
		}
		if err := engine.Initialize(params); err != nil {
			return fmt.Errorf("portfoliod: initialize %q: %w", vc.Name, err)
		}
		rt.logger.Info("vault initialized",
			slog.String("vault", vc.Name),
			slog.String("address", address.String()),
			slog.String("asset", vc.Asset))
	} else if err != nil {
		return err
	}

	rt.vaults[key] = &Vault{
		Name:     vc.Name,
		Address:  address,
		Decimals: vc.AssetDecimals,
		Shares:   vc.ShareDecimals,
		Engine:   engine,
	}
	rt.order = append(rt.order, key)
	return nil
}

func vaultParams(vc config.Vault) (portfolio.Params, error) {
	maxSize, err := vc.MaxSizeUnits()
	if err != nil {
		return portfolio.Params{}, err
	}
	duration, err := vc.DurationSeconds()
	if err != nil {
		return portfolio.Params{}, err
	}
	beneficiary, err := vc.BeneficiaryAddress()
	if err != nil {
		return portfolio.Params{}, err
	}
	allowed := vc.AllowedInstruments
	if len(allowed) == 0 {
		allowed = []string{bullet.Kind, fiol.Kind}
	}
	return portfolio.Params{
		Asset:                 vc.Asset,
		Name:                  vc.Name,
		Symbol:                vc.Symbol,
		AssetDecimals:         vc.AssetDecimals,
		ShareDecimals:         vc.ShareDecimals,
		MaxSize:               maxSize,
		Duration:              duration,
		ManagerFeeBeneficiary: beneficiary,
		AllowedInstruments:    allowed,
	}, nil
}

// Do runs fn under the runtime lock inside a span named after method. A
// successful call is committed to disk and its events are flushed to metrics
// and the archive; a failed call leaves no state behind.
func (rt *Runtime) Do(ctx context.Context, method string, fn func() error) error {
	ctx, span := rt.tracer.Start(ctx, "portfoliod."+method,
		trace.WithAttributes(attribute.String("portfolio.method", method)))
	defer span.End()

	rt.mu.Lock()
	defer rt.mu.Unlock()

	start := time.Now()
	err := fn()
	if err == nil {
		err = rt.commit(ctx)
	} else {
		rt.manager.Discard()
		rt.journal.Discard()
	}
	metrics.Portfolio().ObserveCall(method, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		rt.logger.Debug("call failed", slog.String("method", method), slog.Any("error", err))
		return err
	}
	span.SetStatus(codes.Ok, "")
	rt.publish()
	return nil
}

func (rt *Runtime) commit(ctx context.Context) error {
	if err := rt.manager.Commit(); err != nil {
		return err
	}
	rt.journal.Flush()
	if rt.archive != nil {
		if err := rt.archive.Commit(ctx); err != nil {
			rt.logger.Warn("archive commit failed", slog.Any("error", err))
		}
	}
	return nil
}

func (rt *Runtime) publish() {
	for _, key := range rt.order {
		v := rt.vaults[key]
		report, err := rt.report(v)
		if err != nil {
			continue
		}
		metrics.Portfolio().Publish(metrics.Snapshot{
			Vault:          v.Name,
			Decimals:       v.Decimals,
			TotalAssets:    report.totalAssets,
			Liquidity:      report.liquidity,
			SharePrice:     report.sharePrice,
			ProtocolFeeDue: report.protocolFee,
			ManagerFeeDue:  report.managerFee,
		})
	}
}

// Vault returns the named vault.
func (rt *Runtime) Vault(name string) (*Vault, error) {
	v, ok := rt.vaults[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVault, name)
	}
	return v, nil
}

// Vaults lists vault names in configuration order.
func (rt *Runtime) Vaults() []string {
	out := make([]string, 0, len(rt.order))
	for _, key := range rt.order {
		out = append(out, rt.vaults[key].Name)
	}
	return out
}

// SortedVaults lists vault names alphabetically.
func (rt *Runtime) SortedVaults() []string {
	out := rt.Vaults()
	sort.Strings(out)
	return out
}

func (rt *Runtime) Bullets() *bullet.Engine { return rt.bullets }
func (rt *Runtime) FIOLs() *fiol.Engine { return rt.fiols }
func (rt *Runtime) Ledger() *state.Ledger { return rt.ledger }
func (rt *Runtime) Protocol() *portfolio.Protocol { return rt.protocol }
func (rt *Runtime) Valuation() *valuation.Dispatcher { return rt.dispatcher }
func (rt *Runtime) Now() int64 { return rt.nowFn() }

// SetPaused toggles a pause key. Keys are module names ("portfolio",
// "bullet", "fiol") or portfolio.PauseKey of a vault.
func (rt *Runtime) SetPaused(ctx context.Context, key string, paused bool) error {
	return rt.Do(ctx, "set_paused", func() error {
		return rt.manager.SetPaused(key, paused)
	})
}

func (rt *Runtime) Logger() *slog.Logger { return rt.logger }

func (rt *Runtime) logAccount(msg string, vault *Vault, account crypto.Address) {
	rt.logger.Info(msg,
		slog.String("vault", vault.Name),
		slog.String("account", logging.MaskAddress(account.String())))
}

// Close releases storage and the optional sinks.
func (rt *Runtime) Close() error {
	return errors.Join(closeStores(rt.archive, rt.nav), rt.db.Close())
}
