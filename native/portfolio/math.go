package portfolio

import (
	"math/big"

	"github.com/holiman/uint256"
)

// Year is the accrual period of annual fee rates in seconds.
const Year = int64(365 * 24 * 60 * 60)

var (
	basisPoints = big.NewInt(10_000)
	// Unlimited is the limit reported by hooks that do not restrict an action.
	Unlimited = new(uint256.Int).SetAllOne().ToBig()
)

func toUint256(values ...*big.Int) ([]*uint256.Int, error) {
	out := make([]*uint256.Int, len(values))
	for i, v := range values {
		if v == nil {
			out[i] = new(uint256.Int)
			continue
		}
		if v.Sign() < 0 {
			return nil, ErrInvalidAmount
		}
		u, overflow := uint256.FromBig(v)
		if overflow {
			return nil, ErrValueOverflow
		}
		out[i] = u
	}
	return out, nil
}

// mulDivDown returns floor(x*y/d). The caller guarantees d > 0.
func mulDivDown(x, y, d *big.Int) (*big.Int, error) {
	ops, err := toUint256(x, y, d)
	if err != nil {
		return nil, err
	}
	if ops[2].IsZero() {
		return nil, ErrInfiniteValue
	}
	z, overflow := new(uint256.Int).MulDivOverflow(ops[0], ops[1], ops[2])
	if overflow {
		return nil, ErrValueOverflow
	}
	return z.ToBig(), nil
}

// mulDivUp returns ceil(x*y/d). The caller guarantees d > 0.
func mulDivUp(x, y, d *big.Int) (*big.Int, error) {
	ops, err := toUint256(x, y, d)
	if err != nil {
		return nil, err
	}
	if ops[2].IsZero() {
		return nil, ErrInfiniteValue
	}
	z, overflow := new(uint256.Int).MulDivOverflow(ops[0], ops[1], ops[2])
	if overflow {
		return nil, ErrValueOverflow
	}
	if !new(uint256.Int).MulMod(ops[0], ops[1], ops[2]).IsZero() {
		if _, overflow = z.AddOverflow(z, uint256.NewInt(1)); overflow {
			return nil, ErrValueOverflow
		}
	}
	return z.ToBig(), nil
}

func pow10(exp uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}

// scaleDecimals converts amount between decimal precisions. Scaling down
// rounds toward zero unless roundUp is set.
func scaleDecimals(amount *big.Int, from, to uint8, roundUp bool) *big.Int {
	switch {
	case amount == nil:
		return big.NewInt(0)
	case from == to:
		return new(big.Int).Set(amount)
	case to > from:
		return new(big.Int).Mul(amount, pow10(to-from))
	}
	divisor := pow10(from - to)
	quo, rem := new(big.Int).QuoRem(amount, divisor, new(big.Int))
	if roundUp && rem.Sign() > 0 {
		quo.Add(quo, big.NewInt(1))
	}
	return quo
}

// accrue projects an annual basis-point rate over elapsed seconds.
func accrue(base *big.Int, rate uint32, elapsed int64) (*big.Int, error) {
	if base == nil || base.Sign() <= 0 || rate == 0 || elapsed <= 0 {
		return big.NewInt(0), nil
	}
	numerator := new(big.Int).Mul(big.NewInt(int64(rate)), big.NewInt(elapsed))
	denominator := new(big.Int).Mul(big.NewInt(Year), basisPoints)
	return mulDivDown(base, numerator, denominator)
}

func minBig(first *big.Int, rest ...*big.Int) *big.Int {
	out := new(big.Int).Set(first)
	for _, v := range rest {
		if v != nil && v.Cmp(out) < 0 {
			out.Set(v)
		}
	}
	return out
}

// floorSub returns max(0, a-b).
func floorSub(a, b *big.Int) *big.Int {
	out := new(big.Int).Sub(a, b)
	if out.Sign() < 0 {
		out.SetInt64(0)
	}
	return out
}

func isZero(v *big.Int) bool {
	return v == nil || v.Sign() == 0
}
