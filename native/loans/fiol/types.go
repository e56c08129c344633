package fiol

import (
	"math/big"
	"strings"

	"creditvault/crypto"
	"creditvault/native/loans"
)

// Kind identifies fixed interest-only loans in instrument references.
const Kind = "fiol"

// Status enumerates the lifecycle of a fixed interest-only loan.
type Status uint8

const (
	StatusCreated Status = iota
	StatusAccepted
	StatusStarted
	StatusRepaid
	StatusCancelled
	StatusDefaulted
)

// Valid reports whether the status is a known lifecycle value.
func (s Status) Valid() bool {
	return s <= StatusDefaulted
}

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusAccepted:
		return "accepted"
	case StatusStarted:
		return "started"
	case StatusRepaid:
		return "repaid"
	case StatusCancelled:
		return "cancelled"
	case StatusDefaulted:
		return "defaulted"
	default:
		return "unknown"
	}
}

// Loan pays PeriodPayment at the end of every period and returns Principal
// together with the last payment.
type Loan struct {
	ID                      uint64
	Asset                   string
	Status                  Status
	Principal               *big.Int
	PeriodCount             uint64
	PeriodPayment           *big.Int
	PeriodDuration          int64
	GracePeriod             int64
	Recipient               crypto.Address
	Owner                   crypto.Address
	EndDate                 int64
	CurrentPeriodEndDate    int64
	PeriodsRepaid           uint64
	CanBeRepaidAfterDefault bool
}

// Clone returns a deep copy of the loan.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := *l
	clone.Principal = loans.CloneBigInt(l.Principal)
	clone.PeriodPayment = loans.CloneBigInt(l.PeriodPayment)
	return &clone
}

// TotalDuration is PeriodDuration × PeriodCount.
func (l *Loan) TotalDuration() int64 {
	return l.PeriodDuration * int64(l.PeriodCount)
}

// StartDate is the timestamp the loan was started at; zero before start.
func (l *Loan) StartDate() int64 {
	if l.EndDate == 0 {
		return 0
	}
	return l.EndDate - l.TotalDuration()
}

// ExpectedRepaymentAmount is the exact amount the next repayment must carry.
func (l *Loan) ExpectedRepaymentAmount() *big.Int {
	amount := loans.CloneBigInt(l.PeriodPayment)
	if l.PeriodsRepaid+1 == l.PeriodCount {
		amount.Add(amount, l.Principal)
	}
	return amount
}

// InterestPaid is PeriodsRepaid × PeriodPayment.
func (l *Loan) InterestPaid() *big.Int {
	return new(big.Int).Mul(loans.CloneBigInt(l.PeriodPayment), new(big.Int).SetUint64(l.PeriodsRepaid))
}

// Terms describe a fixed interest-only loan to be issued.
type Terms struct {
	Asset                   string
	Principal               *big.Int
	PeriodCount             uint64
	PeriodPayment           *big.Int
	PeriodDuration          int64
	Recipient               crypto.Address
	GracePeriod             int64
	CanBeRepaidAfterDefault bool
}

// InstrumentKind implements loans.IssueRequest.
func (Terms) InstrumentKind() string { return Kind }

func normalizeAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}
