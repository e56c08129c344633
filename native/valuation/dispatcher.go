package valuation

import (
	"fmt"
	"math/big"

	"creditvault/core/events"
	"creditvault/crypto"
)

// Dispatcher routes valuation calls to the strategy registered for each
// instrument kind and sums their values.
type Dispatcher struct {
	order      []string
	strategies map[string]Strategy
	emitter    events.Emitter
}

func NewDispatcher(strategies ...Strategy) (*Dispatcher, error) {
	d := &Dispatcher{
		strategies: make(map[string]Strategy),
		emitter:    events.NoopEmitter{},
	}
	for _, s := range strategies {
		if err := d.AddStrategy(s); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (d *Dispatcher) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		d.emitter = events.NoopEmitter{}
		return
	}
	d.emitter = emitter
}

// AddStrategy registers s under its kind. Registering a kind that is already
// present is a no-op.
func (d *Dispatcher) AddStrategy(s Strategy) error {
	if s == nil {
		return ErrNilStrategy
	}
	kind := s.Kind()
	if _, ok := d.strategies[kind]; ok {
		return nil
	}
	d.strategies[kind] = s
	d.order = append(d.order, kind)
	d.emitter.Emit(valuationEvent{evt: newStrategyAddedEvent(kind)})
	return nil
}

// Strategy returns the strategy registered for kind.
func (d *Dispatcher) Strategy(kind string) (Strategy, bool) {
	s, ok := d.strategies[kind]
	return s, ok
}

// Strategies lists registered kinds in registration order.
func (d *Dispatcher) Strategies() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

func (d *Dispatcher) route(kind string) (Strategy, error) {
	s, ok := d.strategies[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownInstrument, kind)
	}
	return s, nil
}

func (d *Dispatcher) OnInstrumentFunded(vault crypto.Address, kind string, id uint64) error {
	s, err := d.route(kind)
	if err != nil {
		return err
	}
	return s.OnInstrumentFunded(vault, id)
}

func (d *Dispatcher) OnInstrumentUpdated(vault crypto.Address, kind string, id uint64) error {
	s, err := d.route(kind)
	if err != nil {
		return err
	}
	return s.OnInstrumentUpdated(vault, id)
}

// CalculateValue queries every registered strategy, including those with no
// active instruments for vault.
func (d *Dispatcher) CalculateValue(vault crypto.Address) (*big.Int, error) {
	total := big.NewInt(0)
	for _, kind := range d.order {
		value, err := d.strategies[kind].CalculateValue(vault)
		if err != nil {
			return nil, fmt.Errorf("valuation: %s: %w", kind, err)
		}
		total.Add(total, value)
	}
	return total, nil
}

// Breakdown returns the value contributed by each kind.
func (d *Dispatcher) Breakdown(vault crypto.Address) (map[string]*big.Int, error) {
	out := make(map[string]*big.Int, len(d.order))
	for _, kind := range d.order {
		value, err := d.strategies[kind].CalculateValue(vault)
		if err != nil {
			return nil, err
		}
		out[kind] = value
	}
	return out, nil
}
