// Package loans holds the pieces shared by every debt instrument engine.
package loans

import (
	"errors"
	"math/big"
)

// IssueRequest is implemented by the terms type of each instrument kind. The
// portfolio engine forwards it untouched to the instrument registered under
// InstrumentKind.
type IssueRequest interface {
	InstrumentKind() string
}

// ErrWrongTerms is returned when an engine receives terms for another kind.
var ErrWrongTerms = errors.New("loans: terms do not match instrument kind")

// CloneBigInt copies v, mapping nil to zero.
func CloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// IsPositive reports whether v is non-nil and greater than zero.
func IsPositive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}
