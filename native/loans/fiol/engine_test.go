package fiol

import (
	"errors"
	"math/big"
	"testing"

	"creditvault/core/events"
	"creditvault/core/state"
	"creditvault/crypto"
	"creditvault/storage"
)

type mockEngineState struct {
	loans map[uint64]*Loan
	count uint64
}

func newMockEngineState() *mockEngineState {
	return &mockEngineState{loans: make(map[uint64]*Loan)}
}

func (m *mockEngineState) FIOLoanGet(id uint64) (*Loan, bool, error) {
	loan, ok := m.loans[id]
	if !ok {
		return nil, false, nil
	}
	return loan.Clone(), true, nil
}

func (m *mockEngineState) FIOLoanPut(l *Loan) error {
	m.loans[l.ID] = l.Clone()
	return nil
}

func (m *mockEngineState) FIOLoanCount() (uint64, error) { return m.count, nil }

func (m *mockEngineState) SetFIOLoanCount(c uint64) error {
	m.count = c
	return nil
}

type recorder struct{ types []string }

func (r *recorder) Emit(evt events.Event) { r.types = append(r.types, evt.EventType()) }

type pauses map[string]bool

func (p pauses) IsPaused(module string) bool { return p[module] }

const day = int64(24 * 60 * 60)

var (
	vault    = crypto.LabelAddress(crypto.VaultPrefix, "vault")
	borrower = crypto.LabelAddress(crypto.AccountPrefix, "borrower")
	stranger = crypto.LabelAddress(crypto.AccountPrefix, "stranger")
)

func newTestEngine(t *testing.T) (*Engine, *int64, *recorder) {
	t.Helper()
	engine := NewEngine()
	engine.SetState(newMockEngineState())
	now := int64(1_700_000_000)
	engine.SetNowFunc(func() int64 { return now })
	rec := &recorder{}
	engine.SetEmitter(rec)
	return engine, &now, rec
}

func defaultTerms() Terms {
	return Terms{
		Asset:          "USDC",
		Principal:      big.NewInt(100),
		PeriodCount:    4,
		PeriodPayment:  big.NewInt(10),
		PeriodDuration: 30 * day,
		Recipient:      borrower,
		GracePeriod:    3 * day,
	}
}

func startedLoan(t *testing.T, engine *Engine, terms Terms) uint64 {
	t.Helper()
	id, err := engine.IssueLoan(vault, terms)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := engine.AcceptLoan(borrower, id); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := engine.Start(vault, id); err != nil {
		t.Fatalf("start: %v", err)
	}
	return id
}

func TestIssueValidation(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	cases := []struct {
		name   string
		mutate func(*Terms)
		want   error
	}{
		{"recipient", func(tr *Terms) { tr.Recipient = crypto.Address{} }, ErrMissingRecipient},
		{"period duration", func(tr *Terms) { tr.PeriodDuration = 0 }, ErrZeroPeriodDuration},
		{"period count", func(tr *Terms) { tr.PeriodCount = 0 }, ErrZeroPeriodCount},
		{"interest", func(tr *Terms) { tr.PeriodPayment = big.NewInt(0) }, ErrZeroInterest},
		{"principal", func(tr *Terms) { tr.Principal = nil }, ErrInvalidPrincipal},
	}
	for _, tc := range cases {
		terms := defaultTerms()
		tc.mutate(&terms)
		if _, err := engine.IssueLoan(vault, terms); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	id, err := engine.IssueLoan(vault, defaultTerms())
	if err != nil || id != 0 {
		t.Fatalf("expected first id 0, got %d (%v)", id, err)
	}
	loan, _ := engine.Loan(id)
	if loan.EndDate != 0 || loan.Status != StatusCreated {
		t.Fatalf("unexpected issued loan %+v", loan)
	}
}

func TestAcceptAndStart(t *testing.T) {
	engine, now, _ := newTestEngine(t)
	id, _ := engine.IssueLoan(vault, defaultTerms())

	if err := engine.Start(vault, id); !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("expected start before accept to fail, got %v", err)
	}
	if err := engine.AcceptLoan(stranger, id); !errors.Is(err, ErrNotBorrower) {
		t.Fatalf("expected ErrNotBorrower, got %v", err)
	}
	if err := engine.AcceptLoan(borrower, id); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := engine.AcceptLoan(borrower, id); !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("expected double accept to fail, got %v", err)
	}
	if err := engine.Start(stranger, id); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := engine.Start(vault, id); err != nil {
		t.Fatalf("start: %v", err)
	}
	loan, _ := engine.Loan(id)
	if loan.EndDate != *now+120*day || loan.CurrentPeriodEndDate != *now+30*day {
		t.Fatalf("unexpected schedule end=%d current=%d", loan.EndDate, loan.CurrentPeriodEndDate)
	}
	if loan.StartDate() != *now {
		t.Fatalf("unexpected start date %d", loan.StartDate())
	}
}

func TestRepaySchedule(t *testing.T) {
	engine, _, rec := newTestEngine(t)
	id := startedLoan(t, engine, defaultTerms())

	if _, _, err := engine.Repay(vault, id, big.NewInt(9)); !errors.Is(err, ErrUnexpectedRepayment) {
		t.Fatalf("expected ErrUnexpectedRepayment, got %v", err)
	}
	for period := 0; period < 3; period++ {
		principal, interest, err := engine.Repay(vault, id, big.NewInt(10))
		if err != nil {
			t.Fatalf("repay period %d: %v", period, err)
		}
		if principal.Sign() != 0 || interest.Int64() != 10 {
			t.Fatalf("unexpected split %s/%s", principal, interest)
		}
	}
	expected, _ := engine.ExpectedRepaymentAmount(id)
	if expected.Int64() != 110 {
		t.Fatalf("expected final repayment 110, got %s", expected)
	}
	if _, _, err := engine.Repay(vault, id, big.NewInt(10)); !errors.Is(err, ErrUnexpectedRepayment) {
		t.Fatalf("expected final payment without principal to fail, got %v", err)
	}
	principal, interest, err := engine.Repay(vault, id, big.NewInt(110))
	if err != nil {
		t.Fatalf("final repay: %v", err)
	}
	if principal.Int64() != 100 || interest.Int64() != 10 {
		t.Fatalf("unexpected final split %s/%s", principal, interest)
	}
	loan, _ := engine.Loan(id)
	if loan.Status != StatusRepaid || loan.PeriodsRepaid != 4 {
		t.Fatalf("unexpected loan after final repayment %+v", loan)
	}
	if loan.CurrentPeriodEndDate != loan.StartDate()+150*day {
		t.Fatalf("expected current period end to advance by one period per repayment")
	}
	if _, _, err := engine.Repay(vault, id, big.NewInt(10)); !errors.Is(err, ErrCannotRepay) {
		t.Fatalf("expected repaid loan to reject repayment, got %v", err)
	}
	if rec.types[len(rec.types)-1] != EventTypeLoanStatusChanged {
		t.Fatalf("expected status change event last, got %v", rec.types)
	}
}

func TestDefaultWindow(t *testing.T) {
	engine, now, _ := newTestEngine(t)
	id := startedLoan(t, engine, defaultTerms())
	start := *now

	*now = start + 30*day
	if err := engine.MarkAsDefaulted(vault, id); !errors.Is(err, ErrCannotDefault) {
		t.Fatalf("expected default inside grace period to fail, got %v", err)
	}
	*now = start + 33*day - 1
	if err := engine.MarkAsDefaulted(vault, id); !errors.Is(err, ErrCannotDefault) {
		t.Fatalf("expected default one second early to fail, got %v", err)
	}
	*now = start + 33*day
	if err := engine.MarkAsDefaulted(stranger, id); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := engine.MarkAsDefaulted(vault, id); err != nil {
		t.Fatalf("default at period end plus grace: %v", err)
	}
	if _, _, err := engine.Repay(vault, id, big.NewInt(10)); !errors.Is(err, ErrCannotRepay) {
		t.Fatalf("expected defaulted loan to reject repayment, got %v", err)
	}
}

func TestRepayAfterDefaultWhenAllowed(t *testing.T) {
	engine, now, _ := newTestEngine(t)
	terms := defaultTerms()
	terms.PeriodCount = 1
	terms.CanBeRepaidAfterDefault = true
	id := startedLoan(t, engine, terms)
	*now += 40 * day
	if err := engine.MarkAsDefaulted(vault, id); err != nil {
		t.Fatalf("default: %v", err)
	}
	if _, _, err := engine.Repay(vault, id, big.NewInt(110)); err != nil {
		t.Fatalf("repay after default: %v", err)
	}
	if status, _ := engine.Status(id); status != StatusRepaid {
		t.Fatalf("expected repaid, got %s", status)
	}
}

func TestUpdateInstrumentGracePeriod(t *testing.T) {
	engine, now, rec := newTestEngine(t)
	issued, _ := engine.IssueLoan(vault, defaultTerms())
	if err := engine.UpdateInstrument(vault, issued, 10*day); !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("expected update before start to fail, got %v", err)
	}
	id := startedLoan(t, engine, defaultTerms())
	if err := engine.UpdateInstrument(vault, id, 3*day); !errors.Is(err, ErrGracePeriodNotExtended) {
		t.Fatalf("expected equal grace period to fail, got %v", err)
	}
	if err := engine.UpdateInstrument(vault, id, day); !errors.Is(err, ErrGracePeriodNotExtended) {
		t.Fatalf("expected shorter grace period to fail, got %v", err)
	}
	if err := engine.UpdateInstrument(stranger, id, 10*day); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := engine.UpdateInstrument(vault, id, 10*day); err != nil {
		t.Fatalf("update: %v", err)
	}
	if rec.types[len(rec.types)-1] != EventTypeGracePeriodUpdated {
		t.Fatalf("expected grace period event, got %v", rec.types)
	}
	*now += 33 * day
	if err := engine.MarkAsDefaulted(vault, id); !errors.Is(err, ErrCannotDefault) {
		t.Fatalf("expected extended grace period to block default, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	created, _ := engine.IssueLoan(vault, defaultTerms())
	accepted, _ := engine.IssueLoan(vault, defaultTerms())
	_ = engine.AcceptLoan(borrower, accepted)
	started := startedLoan(t, engine, defaultTerms())

	if err := engine.Cancel(stranger, created); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := engine.Cancel(vault, created); err != nil {
		t.Fatalf("cancel created: %v", err)
	}
	if err := engine.Cancel(vault, accepted); err != nil {
		t.Fatalf("cancel accepted: %v", err)
	}
	if err := engine.Cancel(vault, started); !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("expected cancel of started loan to fail, got %v", err)
	}
}

func TestOverdueAndPause(t *testing.T) {
	engine, now, _ := newTestEngine(t)
	id := startedLoan(t, engine, defaultTerms())
	if overdue, _ := engine.IsOverdue(id); overdue {
		t.Fatalf("fresh loan must not be overdue")
	}
	*now += 31 * day
	if overdue, _ := engine.IsOverdue(id); !overdue {
		t.Fatalf("expected loan to be overdue")
	}
	engine.SetPauses(pauses{moduleName: true})
	if _, _, err := engine.Repay(vault, id, big.NewInt(10)); err == nil {
		t.Fatalf("expected paused engine to reject repayment")
	}
}

func TestStoreRoundTrip(t *testing.T) {
	manager := state.NewManager(storage.NewMemDB())
	engine := NewEngine()
	engine.SetState(NewStore(manager))
	terms := defaultTerms()
	terms.CanBeRepaidAfterDefault = true
	id, err := engine.IssueLoan(vault, terms)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	loan, err := engine.Loan(id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loan.CanBeRepaidAfterDefault || loan.GracePeriod != 3*day || !loan.Recipient.Equal(borrower) {
		t.Fatalf("unexpected loan %+v", loan)
	}
	if count, _ := engine.LoanCount(); count != 1 {
		t.Fatalf("expected count 1, got %d", count)
	}
}
