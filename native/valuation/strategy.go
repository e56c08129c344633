package valuation

import (
	"errors"
	"math/big"
	"time"

	"github.com/holiman/uint256"

	"creditvault/core/events"
	"creditvault/core/types"
	"creditvault/crypto"
)

var (
	errNilState = errors.New("valuation: state not configured")
	errNilLoans = errors.New("valuation: loan source not configured")

	ErrAlreadyActive     = errors.New("valuation: instrument is already active")
	ErrNotVaultOwned     = errors.New("valuation: instrument is not owned by the vault")
	ErrNilStrategy       = errors.New("valuation: strategy must not be nil")
	ErrUnknownInstrument = errors.New("valuation: no strategy for instrument kind")
	ErrValueOverflow     = errors.New("valuation: value overflows 256 bits")
)

// Strategy values every active instrument of one kind for a vault.
type Strategy interface {
	Kind() string
	OnInstrumentFunded(vault crypto.Address, id uint64) error
	OnInstrumentUpdated(vault crypto.Address, id uint64) error
	CalculateValue(vault crypto.Address) (*big.Int, error)
}

type setState interface {
	ActiveSetGet(kind string, vault crypto.Address) (*ActiveSet, error)
	ActiveSetPut(kind string, vault crypto.Address, set *ActiveSet) error
}

type valuationEvent struct {
	evt *types.Event
}

func (e valuationEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e valuationEvent) Event() *types.Event { return e.evt }

// tracker holds the plumbing shared by the per-kind strategies.
type tracker struct {
	kind    string
	state   setState
	emitter events.Emitter
	nowFn   func() int64
}

func newTracker(kind string) tracker {
	return tracker{
		kind:    kind,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

func (t *tracker) setState(state setState) { t.state = state }

func (t *tracker) setNowFunc(now func() int64) {
	if now == nil {
		t.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	t.nowFn = now
}

func (t *tracker) setEmitter(emitter events.Emitter) {
	if emitter == nil {
		t.emitter = events.NoopEmitter{}
		return
	}
	t.emitter = emitter
}

func (t *tracker) now() int64 {
	if t.nowFn == nil {
		return time.Now().Unix()
	}
	return t.nowFn()
}

func (t *tracker) emit(evt *types.Event) {
	if t.emitter == nil || evt == nil {
		return
	}
	t.emitter.Emit(valuationEvent{evt: evt})
}

func (t *tracker) load(vault crypto.Address) (*ActiveSet, error) {
	if t.state == nil {
		return nil, errNilState
	}
	return t.state.ActiveSetGet(t.kind, vault)
}

func (t *tracker) add(vault crypto.Address, id uint64, unique bool) error {
	set, err := t.load(vault)
	if err != nil {
		return err
	}
	if !set.Add(id) {
		if unique {
			return ErrAlreadyActive
		}
		return nil
	}
	if err := t.state.ActiveSetPut(t.kind, vault, set); err != nil {
		return err
	}
	t.emit(newInstrumentEvent(EventTypeInstrumentAdded, t.kind, vault, id))
	return nil
}

func (t *tracker) remove(vault crypto.Address, id uint64) error {
	set, err := t.load(vault)
	if err != nil {
		return err
	}
	if !set.Remove(id) {
		return nil
	}
	if err := t.state.ActiveSetPut(t.kind, vault, set); err != nil {
		return err
	}
	t.emit(newInstrumentEvent(EventTypeInstrumentRemoved, t.kind, vault, id))
	return nil
}

// ActiveInstruments lists the ids currently valued for vault.
func (t *tracker) ActiveInstruments(vault crypto.Address) ([]uint64, error) {
	set, err := t.load(vault)
	if err != nil {
		return nil, err
	}
	return set.IDs(), nil
}

// mulDiv returns floor(x*y/d) using 256-bit intermediate precision.
func mulDiv(x, y, d *big.Int) (*big.Int, error) {
	if d.Sign() == 0 {
		return big.NewInt(0), nil
	}
	ux, overflowX := uint256.FromBig(x)
	uy, overflowY := uint256.FromBig(y)
	ud, overflowD := uint256.FromBig(d)
	if overflowX || overflowY || overflowD {
		return nil, ErrValueOverflow
	}
	z, overflow := new(uint256.Int).MulDivOverflow(ux, uy, ud)
	if overflow {
		return nil, ErrValueOverflow
	}
	return z.ToBig(), nil
}

// floorSub returns max(0, a-b).
func floorSub(a, b *big.Int) *big.Int {
	out := new(big.Int).Sub(a, b)
	if out.Sign() < 0 {
		out.SetInt64(0)
	}
	return out
}
