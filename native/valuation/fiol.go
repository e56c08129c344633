package valuation

import (
	"math/big"

	"creditvault/core/events"
	"creditvault/crypto"
	"creditvault/native/loans/fiol"
)

// FixedInterestOnlyLoans is the read side of the fixed interest-only engine.
type FixedInterestOnlyLoans interface {
	Loan(id uint64) (*fiol.Loan, error)
}

// FixedInterestOnlyStrategy accrues interest linearly over the whole loan
// term and nets off the period payments already received.
type FixedInterestOnlyStrategy struct {
	tracker
	loans FixedInterestOnlyLoans
}

func NewFixedInterestOnlyStrategy(loans FixedInterestOnlyLoans) *FixedInterestOnlyStrategy {
	return &FixedInterestOnlyStrategy{tracker: newTracker(fiol.Kind), loans: loans}
}

func (s *FixedInterestOnlyStrategy) SetState(state setState)           { s.setState(state) }
func (s *FixedInterestOnlyStrategy) SetNowFunc(now func() int64)       { s.setNowFunc(now) }
func (s *FixedInterestOnlyStrategy) SetEmitter(emitter events.Emitter) { s.setEmitter(emitter) }

func (s *FixedInterestOnlyStrategy) Kind() string { return fiol.Kind }

func (s *FixedInterestOnlyStrategy) loan(vault crypto.Address, id uint64) (*fiol.Loan, error) {
	if s.loans == nil {
		return nil, errNilLoans
	}
	loan, err := s.loans.Loan(id)
	if err != nil {
		return nil, err
	}
	if !loan.Owner.Equal(vault) {
		return nil, ErrNotVaultOwned
	}
	return loan, nil
}

// OnInstrumentFunded starts tracking the loan. Funding an active loan twice
// fails with ErrAlreadyActive.
func (s *FixedInterestOnlyStrategy) OnInstrumentFunded(vault crypto.Address, id uint64) error {
	if _, err := s.loan(vault, id); err != nil {
		return err
	}
	return s.add(vault, id, true)
}

// OnInstrumentUpdated drops repaid and defaulted loans.
func (s *FixedInterestOnlyStrategy) OnInstrumentUpdated(vault crypto.Address, id uint64) error {
	loan, err := s.loan(vault, id)
	if err != nil {
		return err
	}
	if loan.Status != fiol.StatusRepaid && loan.Status != fiol.StatusDefaulted {
		return nil
	}
	return s.remove(vault, id)
}

func (s *FixedInterestOnlyStrategy) CalculateValue(vault crypto.Address) (*big.Int, error) {
	set, err := s.load(vault)
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	now := s.now()
	for _, id := range set.IDs() {
		loan, err := s.loan(vault, id)
		if err != nil {
			return nil, err
		}
		value, err := fiolValue(loan, now)
		if err != nil {
			return nil, err
		}
		total.Add(total, value)
	}
	return total, nil
}

func fiolValue(loan *fiol.Loan, now int64) (*big.Int, error) {
	accrued, err := accruedInterest(loan, now)
	if err != nil {
		return nil, err
	}
	return floorSub(new(big.Int).Add(loan.Principal, accrued), loan.InterestPaid()), nil
}

// accruedInterest spreads the full interest of the loan linearly over its
// term. A borrower behind schedule therefore owes every elapsed period in
// full; after EndDate the full interest is due.
func accruedInterest(loan *fiol.Loan, now int64) (*big.Int, error) {
	fullInterest := new(big.Int).Mul(loan.PeriodPayment, new(big.Int).SetUint64(loan.PeriodCount))
	if now >= loan.EndDate {
		return fullInterest, nil
	}
	passed := now - loan.StartDate()
	if passed < 0 {
		passed = 0
	}
	return mulDiv(fullInterest, big.NewInt(passed), big.NewInt(loan.TotalDuration()))
}
