package bullet

import (
	"fmt"
	"math/big"
	"strconv"

	"creditvault/crypto"
)

type kvStore interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	loanKeyPrefix = "bullet/loan/"
	loanCountKey  = []byte("bullet/count")
)

type loanRecord struct {
	ID            uint64
	Asset         string
	Status        uint8
	Duration      uint64
	RepaymentDate uint64
	Recipient     string
	Owner         string
	Principal     *big.Int
	TotalDebt     *big.Int
	AmountRepaid  *big.Int
}

// Store persists bullet loans in a journaled key-value state.
type Store struct {
	kv kvStore
}

// NewStore wraps kv (typically *state.Manager).
func NewStore(kv kvStore) *Store {
	return &Store{kv: kv}
}

func loanKey(id uint64) []byte {
	return []byte(loanKeyPrefix + strconv.FormatUint(id, 10))
}

// BulletLoanGet loads the loan with the given id.
func (s *Store) BulletLoanGet(id uint64) (*Loan, bool, error) {
	var rec loanRecord
	ok, err := s.kv.KVGet(loanKey(id), &rec)
	if err != nil || !ok {
		return nil, ok, err
	}
	recipient, err := decodeAddress(rec.Recipient)
	if err != nil {
		return nil, false, err
	}
	owner, err := decodeAddress(rec.Owner)
	if err != nil {
		return nil, false, err
	}
	return &Loan{
		ID:            rec.ID,
		Asset:         rec.Asset,
		Status:        Status(rec.Status),
		Duration:      int64(rec.Duration),
		RepaymentDate: int64(rec.RepaymentDate),
		Recipient:     recipient,
		Owner:         owner,
		Principal:     rec.Principal,
		TotalDebt:     rec.TotalDebt,
		AmountRepaid:  rec.AmountRepaid,
	}, true, nil
}

// BulletLoanPut stores the loan under its id.
func (s *Store) BulletLoanPut(l *Loan) error {
	if l == nil {
		return fmt.Errorf("bullet loans: nil loan")
	}
	rec := &loanRecord{
		ID:            l.ID,
		Asset:         l.Asset,
		Status:        uint8(l.Status),
		Duration:      uint64(l.Duration),
		RepaymentDate: uint64(l.RepaymentDate),
		Recipient:     l.Recipient.String(),
		Owner:         l.Owner.String(),
		Principal:     l.Principal,
		TotalDebt:     l.TotalDebt,
		AmountRepaid:  l.AmountRepaid,
	}
	return s.kv.KVPut(loanKey(l.ID), rec)
}

// BulletLoanCount returns the number of loans ever created, which is also the
// next id.
func (s *Store) BulletLoanCount() (uint64, error) {
	var count uint64
	if _, err := s.kv.KVGet(loanCountKey, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// SetBulletLoanCount records the loan counter.
func (s *Store) SetBulletLoanCount(count uint64) error {
	return s.kv.KVPut(loanCountKey, count)
}

func decodeAddress(value string) (crypto.Address, error) {
	if value == "" {
		return crypto.Address{}, nil
	}
	return crypto.DecodeAddress(value)
}
