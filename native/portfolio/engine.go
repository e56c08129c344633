package portfolio

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"creditvault/core/events"
	"creditvault/core/types"
	"creditvault/crypto"
	"creditvault/native/common"
	"creditvault/native/loans"
)

const moduleName = "portfolio"

// PauseKey is the pause switch of a single vault. The module-wide "portfolio"
// key pauses every vault.
func PauseKey(vault crypto.Address) string {
	return moduleName + "/" + vault.String()
}

type engineState interface {
	Snapshot() int
	RevertToSnapshot(id int)
	VaultGet(addr crypto.Address) (*Vault, bool, error)
	VaultPut(v *Vault) error
	SharesGet(vault, holder crypto.Address) (*big.Int, error)
	SharesPut(vault, holder crypto.Address, amount *big.Int) error
	AllowanceGet(vault, owner, spender crypto.Address) (*big.Int, error)
	AllowancePut(vault, owner, spender crypto.Address, amount *big.Int) error
	InstrumentAdded(vault crypto.Address, ref InstrumentRef) (bool, error)
	SetInstrumentAdded(vault crypto.Address, ref InstrumentRef, added bool) error
	InstrumentAllowed(vault crypto.Address, kind string) (bool, error)
	SetInstrumentAllowed(vault crypto.Address, kind string, allowed bool) error
}

// AssetLedger moves reference-asset balances between accounts.
type AssetLedger interface {
	Transfer(asset string, from, to crypto.Address, amount *big.Int) error
	Balance(asset string, addr crypto.Address) (*big.Int, error)
}

// Valuation marks the funded instruments of a vault.
type Valuation interface {
	OnInstrumentFunded(vault crypto.Address, kind string, id uint64) error
	OnInstrumentUpdated(vault crypto.Address, kind string, id uint64) error
	CalculateValue(vault crypto.Address) (*big.Int, error)
}

// Instrument is a debt instrument engine. The vault is the owner of every
// instrument it issues.
type Instrument interface {
	Kind() string
	Issue(owner crypto.Address, req loans.IssueRequest) (uint64, error)
	Asset(id uint64) (string, error)
	Principal(id uint64) (*big.Int, error)
	Recipient(id uint64) (crypto.Address, error)
	EndDate(id uint64) (int64, error)
	Start(caller crypto.Address, id uint64) error
	Repay(caller crypto.Address, id uint64, amount *big.Int) (principalPart, interestPart *big.Int, err error)
	Cancel(caller crypto.Address, id uint64) error
	MarkAsDefaulted(caller crypto.Address, id uint64) error
}

// GracePeriodUpdater is implemented by instruments whose grace period can be
// extended after funding.
type GracePeriodUpdater interface {
	UpdateInstrument(caller crypto.Address, id uint64, gracePeriod int64) error
}

// eventJournal is satisfied by emitters that can drop events emitted after a
// snapshot.
type eventJournal interface {
	Snapshot() int
	RevertToSnapshot(id int)
}

type portfolioEvent struct {
	evt *types.Event
}

func (e portfolioEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e portfolioEvent) Event() *types.Event { return e.evt }

// Engine runs the accounting of one vault. Engines are not safe for
// concurrent use; callers serialize access.
type Engine struct {
	address     crypto.Address
	state       engineState
	ledger      AssetLedger
	protocol    ProtocolConfig
	feeSource   FeeSource
	valuation   Valuation
	pauses      common.PauseView
	emitter     events.Emitter
	nowFn       func() int64
	deposits    DepositPolicy
	withdrawals WithdrawPolicy
	transfers   TransferPolicy
	instruments map[string]Instrument
	guard       common.ReentrancyGuard
}

// NewEngine creates the engine of the vault held at address.
func NewEngine(address crypto.Address) *Engine {
	return &Engine{
		address:     address,
		emitter:     events.NoopEmitter{},
		nowFn:       func() int64 { return time.Now().Unix() },
		deposits:    DefaultDepositPolicy{},
		withdrawals: DefaultWithdrawPolicy{},
		transfers:   AllowAllTransfers{},
		instruments: make(map[string]Instrument),
	}
}

func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetLedger(ledger AssetLedger) { e.ledger = ledger }

// SetProtocol wires the configuration shared by every vault.
func (e *Engine) SetProtocol(protocol ProtocolConfig) { e.protocol = protocol }

func (e *Engine) SetFeeSource(source FeeSource) { e.feeSource = source }

func (e *Engine) SetValuation(valuation Valuation) { e.valuation = valuation }

func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetNowFunc overrides the time source. A nil function restores the wall clock.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetDepositPolicy replaces the deposit hook. Nil restores the default.
func (e *Engine) SetDepositPolicy(policy DepositPolicy) {
	if policy == nil {
		policy = DefaultDepositPolicy{}
	}
	e.deposits = policy
}

// SetWithdrawPolicy replaces the withdraw hook. Nil restores the default.
func (e *Engine) SetWithdrawPolicy(policy WithdrawPolicy) {
	if policy == nil {
		policy = DefaultWithdrawPolicy{}
	}
	e.withdrawals = policy
}

// SetTransferPolicy replaces the share transfer hook. Nil allows everything.
func (e *Engine) SetTransferPolicy(policy TransferPolicy) {
	if policy == nil {
		policy = AllowAllTransfers{}
	}
	e.transfers = policy
}

// RegisterInstrument makes inst available under its kind. Whether the vault
// may issue that kind is controlled separately by AllowInstrument.
func (e *Engine) RegisterInstrument(inst Instrument) {
	if inst == nil {
		return
	}
	e.instruments[inst.Kind()] = inst
}

// Address returns the custody address of the vault.
func (e *Engine) Address() crypto.Address { return e.address }

// Now returns the engine clock.
func (e *Engine) Now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(evt *types.Event) {
	if e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(portfolioEvent{evt: evt})
}

func (e *Engine) guardPaused() error {
	return common.Guard(e.pauses, moduleName, PauseKey(e.address))
}

func (e *Engine) paused() bool {
	return e.guardPaused() != nil
}

// atomic runs fn as one transaction. Every state write and every journaled
// event made by fn is rolled back when it fails.
func (e *Engine) atomic(fn func() error) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()

	snapshot := e.state.Snapshot()
	journal, journaled := e.emitter.(eventJournal)
	var eventSnapshot int
	if journaled {
		eventSnapshot = journal.Snapshot()
	}
	if err := fn(); err != nil {
		e.state.RevertToSnapshot(snapshot)
		if journaled {
			journal.RevertToSnapshot(eventSnapshot)
		}
		return err
	}
	return nil
}

func (e *Engine) loadVault() (*Vault, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	v, ok, err := e.state.VaultGet(e.address)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrVaultNotFound
	}
	return v, nil
}

func (e *Engine) storeVault(v *Vault) error {
	return e.state.VaultPut(v)
}

func (e *Engine) protocolFeeRate() uint32 {
	if e.protocol == nil {
		return 0
	}
	return e.protocol.ProtocolFeeRate()
}

func (e *Engine) protocolTreasury() crypto.Address {
	if e.protocol == nil {
		return crypto.Address{}
	}
	return e.protocol.ProtocolTreasury()
}

func (e *Engine) managerFeeRate() uint32 {
	if e.feeSource == nil {
		return 0
	}
	return e.feeSource.ManagerFeeRate()
}

func (e *Engine) transfer(asset string, from, to crypto.Address, amount *big.Int) error {
	if e.ledger == nil {
		return errNilLedger
	}
	return e.ledger.Transfer(asset, from, to, amount)
}

func (e *Engine) instrument(kind string) (Instrument, error) {
	inst, ok := e.instruments[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownInstrument, kind)
	}
	return inst, nil
}

// Initialize creates the vault record. It fails if the vault exists.
func (e *Engine) Initialize(params Params) error {
	return e.atomic(func() error {
		if _, ok, err := e.state.VaultGet(e.address); err != nil {
			return err
		} else if ok {
			return ErrVaultExists
		}
		asset := strings.ToUpper(strings.TrimSpace(params.Asset))
		switch {
		case asset == "":
			return ErrMissingAsset
		case params.Duration <= 0:
			return ErrZeroDuration
		case !loans.IsPositive(params.MaxSize):
			return ErrMissingMaxSize
		case params.ManagerFeeBeneficiary.IsZero():
			return ErrMissingBeneficiary
		}
		now := e.Now()
		v := &Vault{
			Address:               e.address,
			Asset:                 asset,
			Name:                  params.Name,
			Symbol:                params.Symbol,
			AssetDecimals:         params.AssetDecimals,
			ShareDecimals:         params.ShareDecimals,
			VirtualLiquidity:      big.NewInt(0),
			TotalSupply:           big.NewInt(0),
			MaxSize:               new(big.Int).Set(params.MaxSize),
			EndDate:               now + params.Duration,
			LastProtocolFeeRate:   e.protocolFeeRate(),
			LastManagerFeeRate:    e.managerFeeRate(),
			LastFeeUpdate:         now,
			UnpaidProtocolFee:     big.NewInt(0),
			UnpaidManagerFee:      big.NewInt(0),
			ManagerFeeBeneficiary: params.ManagerFeeBeneficiary,
		}
		if err := e.storeVault(v); err != nil {
			return err
		}
		for _, kind := range params.AllowedInstruments {
			if err := e.state.SetInstrumentAllowed(e.address, kind, true); err != nil {
				return err
			}
		}
		e.emit(NewInitializedEvent(v))
		return nil
	})
}

// Vault returns a copy of the stored vault record.
func (e *Engine) Vault() (*Vault, error) {
	return e.loadVault()
}

// IsInstrumentAdded reports whether ref was issued by this vault.
func (e *Engine) IsInstrumentAdded(ref InstrumentRef) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	return e.state.InstrumentAdded(e.address, ref)
}

// IsInstrumentAllowed reports whether the vault may issue kind.
func (e *Engine) IsInstrumentAllowed(kind string) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	return e.state.InstrumentAllowed(e.address, kind)
}
