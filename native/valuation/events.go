package valuation

import (
	"strconv"

	"creditvault/core/types"
	"creditvault/crypto"
)

const (
	EventTypeInstrumentAdded   = "valuation.instrument_added"
	EventTypeInstrumentRemoved = "valuation.instrument_removed"
	EventTypeStrategyAdded     = "valuation.strategy_added"
)

func newInstrumentEvent(eventType, kind string, vault crypto.Address, id uint64) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"kind":  kind,
			"vault": vault.String(),
			"id":    strconv.FormatUint(id, 10),
		},
	}
}

func newStrategyAddedEvent(kind string) *types.Event {
	return &types.Event{
		Type:       EventTypeStrategyAdded,
		Attributes: map[string]string{"kind": kind},
	}
}
