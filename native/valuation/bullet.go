package valuation

import (
	"math/big"

	"creditvault/core/events"
	"creditvault/crypto"
	"creditvault/native/loans/bullet"
)

// BulletLoans is the read side of the bullet loan engine.
type BulletLoans interface {
	Loan(id uint64) (*bullet.Loan, error)
}

// BulletStrategy marks started bullet loans to a straight line between
// principal and total debt.
type BulletStrategy struct {
	tracker
	loans BulletLoans
}

func NewBulletStrategy(loans BulletLoans) *BulletStrategy {
	return &BulletStrategy{tracker: newTracker(bullet.Kind), loans: loans}
}

func (s *BulletStrategy) SetState(state setState)           { s.setState(state) }
func (s *BulletStrategy) SetNowFunc(now func() int64)       { s.setNowFunc(now) }
func (s *BulletStrategy) SetEmitter(emitter events.Emitter) { s.setEmitter(emitter) }

func (s *BulletStrategy) Kind() string { return bullet.Kind }

func (s *BulletStrategy) loan(vault crypto.Address, id uint64) (*bullet.Loan, error) {
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

// OnInstrumentFunded starts tracking the loan for vault.
func (s *BulletStrategy) OnInstrumentFunded(vault crypto.Address, id uint64) error {
	if _, err := s.loan(vault, id); err != nil {
		return err
	}
	return s.add(vault, id, false)
}

// OnInstrumentUpdated drops the loan once its value can no longer change.
func (s *BulletStrategy) OnInstrumentUpdated(vault crypto.Address, id uint64) error {
	loan, err := s.loan(vault, id)
	if err != nil {
		return err
	}
	if !loan.Status.Settled() {
		return nil
	}
	return s.remove(vault, id)
}

// CalculateValue sums the marked value of every active loan of vault.
func (s *BulletStrategy) CalculateValue(vault crypto.Address) (*big.Int, error) {
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
		value, err := bulletValue(loan, now)
		if err != nil {
			return nil, err
		}
		total.Add(total, value)
	}
	return total, nil
}

func bulletValue(loan *bullet.Loan, now int64) (*big.Int, error) {
	if now >= loan.RepaymentDate {
		return floorSub(loan.TotalDebt, loan.AmountRepaid), nil
	}
	elapsed := now - loan.StartDate()
	if elapsed < 0 {
		elapsed = 0
	}
	interest := new(big.Int).Sub(loan.TotalDebt, loan.Principal)
	accrued, err := mulDiv(interest, big.NewInt(elapsed), big.NewInt(loan.Duration))
	if err != nil {
		return nil, err
	}
	return floorSub(new(big.Int).Add(loan.Principal, accrued), loan.AmountRepaid), nil
}
