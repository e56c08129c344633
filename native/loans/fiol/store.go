package fiol

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
	loanKeyPrefix = "fiol/loan/"
	loanCountKey  = []byte("fiol/count")
)

type loanRecord struct {
	ID                      uint64
	Asset                   string
	Status                  uint8
	Principal               *big.Int
	PeriodCount             uint64
	PeriodPayment           *big.Int
	PeriodDuration          uint64
	GracePeriod             uint64
	Recipient               string
	Owner                   string
	EndDate                 uint64
	CurrentPeriodEndDate    uint64
	PeriodsRepaid           uint64
	CanBeRepaidAfterDefault bool
}

// Store persists fixed interest-only loans in a journaled key-value state.
type Store struct {
	kv kvStore
}

func NewStore(kv kvStore) *Store {
	return &Store{kv: kv}
}

func loanKey(id uint64) []byte {
	return []byte(loanKeyPrefix + strconv.FormatUint(id, 10))
}

func (s *Store) FIOLoanGet(id uint64) (*Loan, bool, error) {
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
		ID:                      rec.ID,
		Asset:                   rec.Asset,
		Status:                  Status(rec.Status),
		Principal:               rec.Principal,
		PeriodCount:             rec.PeriodCount,
		PeriodPayment:           rec.PeriodPayment,
		PeriodDuration:          int64(rec.PeriodDuration),
		GracePeriod:             int64(rec.GracePeriod),
		Recipient:               recipient,
		Owner:                   owner,
		EndDate:                 int64(rec.EndDate),
		CurrentPeriodEndDate:    int64(rec.CurrentPeriodEndDate),
		PeriodsRepaid:           rec.PeriodsRepaid,
		CanBeRepaidAfterDefault: rec.CanBeRepaidAfterDefault,
	}, true, nil
}

func (s *Store) FIOLoanPut(l *Loan) error {
	if l == nil {
		return fmt.Errorf("fiol loans: nil loan")
	}
	return s.kv.KVPut(loanKey(l.ID), &loanRecord{
		ID:                      l.ID,
		Asset:                   l.Asset,
		Status:                  uint8(l.Status),
		Principal:               l.Principal,
		PeriodCount:             l.PeriodCount,
		PeriodPayment:           l.PeriodPayment,
		PeriodDuration:          uint64(l.PeriodDuration),
		GracePeriod:             uint64(l.GracePeriod),
		Recipient:               l.Recipient.String(),
		Owner:                   l.Owner.String(),
		EndDate:                 uint64(l.EndDate),
		CurrentPeriodEndDate:    uint64(l.CurrentPeriodEndDate),
		PeriodsRepaid:           l.PeriodsRepaid,
		CanBeRepaidAfterDefault: l.CanBeRepaidAfterDefault,
	})
}

func (s *Store) FIOLoanCount() (uint64, error) {
	var count uint64
	if _, err := s.kv.KVGet(loanCountKey, &count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) SetFIOLoanCount(count uint64) error {
	return s.kv.KVPut(loanCountKey, count)
}

func decodeAddress(value string) (crypto.Address, error) {
	if value == "" {
		return crypto.Address{}, nil
	}
	return crypto.DecodeAddress(value)
}
