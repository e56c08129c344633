package portfolio

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"creditvault/crypto"
	"creditvault/native/loans"
)

// Vault is the persisted accounting record of one portfolio.
type Vault struct {
	Address       crypto.Address
	Asset         string
	Name          string
	Symbol        string
	AssetDecimals uint8
	ShareDecimals uint8
	// VirtualLiquidity is the liquid balance as seen by the accounting. Direct
	// transfers into the custody address never change it.
	VirtualLiquidity *big.Int
	TotalSupply      *big.Int
	MaxSize          *big.Int
	EndDate          int64
	// Fee rates are in basis points and apply from LastFeeUpdate onward.
	LastProtocolFeeRate      uint32
	LastManagerFeeRate       uint32
	LastFeeUpdate            int64
	UnpaidProtocolFee        *big.Int
	UnpaidManagerFee         *big.Int
	ManagerFeeBeneficiary    crypto.Address
	HighestInstrumentEndDate int64
}

// Clone returns a deep copy of the vault record.
func (v *Vault) Clone() *Vault {
	if v == nil {
		return nil
	}
	clone := *v
	clone.VirtualLiquidity = loans.CloneBigInt(v.VirtualLiquidity)
	clone.TotalSupply = loans.CloneBigInt(v.TotalSupply)
	clone.MaxSize = loans.CloneBigInt(v.MaxSize)
	clone.UnpaidProtocolFee = loans.CloneBigInt(v.UnpaidProtocolFee)
	clone.UnpaidManagerFee = loans.CloneBigInt(v.UnpaidManagerFee)
	return &clone
}

// Closed reports whether the end date has been reached at now.
func (v *Vault) Closed(now int64) bool {
	return now >= v.EndDate
}

// Params configure a vault at initialisation.
type Params struct {
	Asset                 string
	Name                  string
	Symbol                string
	AssetDecimals         uint8
	ShareDecimals         uint8
	MaxSize               *big.Int
	Duration              int64
	ManagerFeeBeneficiary crypto.Address
	AllowedInstruments    []string
}

// InstrumentRef points at one instrument of a registered kind.
type InstrumentRef struct {
	Kind string
	ID   uint64
}

func (r InstrumentRef) String() string {
	return r.Kind + "/" + strconv.FormatUint(r.ID, 10)
}

// ParseInstrumentRef parses the "kind/id" form produced by String.
func ParseInstrumentRef(value string) (InstrumentRef, error) {
	kind, rawID, ok := strings.Cut(strings.TrimSpace(value), "/")
	if !ok || kind == "" {
		return InstrumentRef{}, fmt.Errorf("portfolio: invalid instrument reference %q", value)
	}
	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil {
		return InstrumentRef{}, fmt.Errorf("portfolio: invalid instrument id %q: %w", rawID, err)
	}
	return InstrumentRef{Kind: kind, ID: id}, nil
}
