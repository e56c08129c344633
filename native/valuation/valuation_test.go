package valuation

import (
	"errors"
	"math/big"
	"testing"

	"creditvault/core/state"
	"creditvault/crypto"
	"creditvault/native/loans/bullet"
	"creditvault/native/loans/fiol"
	"creditvault/storage"
)

const day = int64(24 * 60 * 60)

var (
	vault    = crypto.LabelAddress(crypto.VaultPrefix, "vault")
	other    = crypto.LabelAddress(crypto.VaultPrefix, "other-vault")
	borrower = crypto.LabelAddress(crypto.AccountPrefix, "borrower")
)

func usdc(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), big.NewInt(1_000_000))
}

type fixture struct {
	now        *int64
	bullets    *bullet.Engine
	fiols      *fiol.Engine
	bulletVal  *BulletStrategy
	fiolVal    *FixedInterestOnlyStrategy
	dispatcher *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	now := int64(1_700_000_000)
	clock := func() int64 { return now }

	bullets := bullet.NewEngine()
	bullets.SetState(bullet.NewStore(manager))
	bullets.SetNowFunc(clock)
	fiols := fiol.NewEngine()
	fiols.SetState(fiol.NewStore(manager))
	fiols.SetNowFunc(clock)

	store := NewStore(manager)
	bulletVal := NewBulletStrategy(bullets)
	bulletVal.SetState(store)
	bulletVal.SetNowFunc(clock)
	fiolVal := NewFixedInterestOnlyStrategy(fiols)
	fiolVal.SetState(store)
	fiolVal.SetNowFunc(clock)

	dispatcher, err := NewDispatcher(bulletVal, fiolVal)
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	return &fixture{now: &now, bullets: bullets, fiols: fiols, bulletVal: bulletVal, fiolVal: fiolVal, dispatcher: dispatcher}
}

func (f *fixture) fundBullet(t *testing.T, principal, debt *big.Int, duration int64) uint64 {
	t.Helper()
	id, err := f.bullets.CreateLoan(vault, bullet.Terms{Asset: "USDC", Principal: principal, TotalDebt: debt, Duration: duration, Recipient: borrower})
	if err != nil {
		t.Fatalf("create bullet: %v", err)
	}
	if err := f.bullets.Start(vault, id); err != nil {
		t.Fatalf("start bullet: %v", err)
	}
	if err := f.dispatcher.OnInstrumentFunded(vault, bullet.Kind, id); err != nil {
		t.Fatalf("fund bullet: %v", err)
	}
	return id
}

func (f *fixture) fundFIOL(t *testing.T, principal, payment *big.Int, periods uint64, duration int64) uint64 {
	t.Helper()
	id, err := f.fiols.IssueLoan(vault, fiol.Terms{Asset: "USDC", Principal: principal, PeriodPayment: payment, PeriodCount: periods, PeriodDuration: duration, Recipient: borrower})
	if err != nil {
		t.Fatalf("issue fiol: %v", err)
	}
	if err := f.fiols.AcceptLoan(borrower, id); err != nil {
		t.Fatalf("accept fiol: %v", err)
	}
	if err := f.fiols.Start(vault, id); err != nil {
		t.Fatalf("start fiol: %v", err)
	}
	if err := f.dispatcher.OnInstrumentFunded(vault, fiol.Kind, id); err != nil {
		t.Fatalf("fund fiol: %v", err)
	}
	return id
}

func (f *fixture) value(t *testing.T, s Strategy) *big.Int {
	t.Helper()
	v, err := s.CalculateValue(vault)
	if err != nil {
		t.Fatalf("calculate value: %v", err)
	}
	return v
}

func TestActiveSetSwapRemove(t *testing.T) {
	set := NewActiveSet(1, 2, 3, 3, 4)
	if set.Len() != 4 {
		t.Fatalf("expected duplicates to be skipped, got %v", set.IDs())
	}
	if !set.Remove(2) {
		t.Fatalf("expected removal of 2")
	}
	ids := set.IDs()
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 4 || ids[2] != 3 {
		t.Fatalf("expected last element to fill the gap, got %v", ids)
	}
	if set.Remove(2) || set.Contains(2) {
		t.Fatalf("expected 2 to be gone")
	}
	if !set.Remove(3) || !set.Remove(1) || !set.Remove(4) || set.Len() != 0 {
		t.Fatalf("expected set to drain, got %v", set.IDs())
	}
	if !set.Add(9) || set.Add(9) {
		t.Fatalf("expected Add to report membership changes")
	}
}

func TestBulletValueInterpolates(t *testing.T) {
	f := newFixture(t)
	start := *f.now
	f.fundBullet(t, usdc(10), usdc(11), 30*day)

	if v := f.value(t, f.bulletVal); v.Cmp(usdc(10)) != 0 {
		t.Fatalf("expected principal at start, got %s", v)
	}
	*f.now = start + 3*day
	want := big.NewInt(10_100_000)
	if v := f.value(t, f.bulletVal); v.Cmp(want) != 0 {
		t.Fatalf("expected %s after three days, got %s", want, v)
	}
	*f.now = start + 30*day
	if v := f.value(t, f.bulletVal); v.Cmp(usdc(11)) != 0 {
		t.Fatalf("expected total debt at maturity, got %s", v)
	}
	*f.now = start + 300*day
	if v := f.value(t, f.bulletVal); v.Cmp(usdc(11)) != 0 {
		t.Fatalf("expected value to stay at total debt, got %s", v)
	}
}

func TestBulletPartialRepaymentKeepsLoanActive(t *testing.T) {
	f := newFixture(t)
	id := f.fundBullet(t, usdc(10), usdc(11), 30*day)
	if _, _, err := f.bullets.Repay(vault, id, usdc(4)); err != nil {
		t.Fatalf("repay: %v", err)
	}
	if err := f.dispatcher.OnInstrumentUpdated(vault, bullet.Kind, id); err != nil {
		t.Fatalf("update: %v", err)
	}
	if v := f.value(t, f.bulletVal); v.Cmp(usdc(6)) != 0 {
		t.Fatalf("expected 6 after partial repayment, got %s", v)
	}
	ids, _ := f.bulletVal.ActiveInstruments(vault)
	if len(ids) != 1 {
		t.Fatalf("expected loan to stay active, got %v", ids)
	}

	if _, _, err := f.bullets.Repay(vault, id, usdc(7)); err != nil {
		t.Fatalf("final repay: %v", err)
	}
	if err := f.dispatcher.OnInstrumentUpdated(vault, bullet.Kind, id); err != nil {
		t.Fatalf("update: %v", err)
	}
	if v := f.value(t, f.bulletVal); v.Sign() != 0 {
		t.Fatalf("expected zero value after full repayment, got %s", v)
	}
}

func TestBulletDefaultRemovesImmediately(t *testing.T) {
	f := newFixture(t)
	first := f.fundBullet(t, usdc(10), usdc(11), 30*day)
	f.fundBullet(t, usdc(5), usdc(6), 30*day)
	if err := f.bullets.MarkAsDefaulted(vault, first); err != nil {
		t.Fatalf("default: %v", err)
	}
	if err := f.bulletVal.OnInstrumentUpdated(vault, first); err != nil {
		t.Fatalf("update: %v", err)
	}
	if v := f.value(t, f.bulletVal); v.Cmp(usdc(5)) != 0 {
		t.Fatalf("expected only the healthy loan to be valued, got %s", v)
	}
}

func TestBulletRejectsForeignVault(t *testing.T) {
	f := newFixture(t)
	id := f.fundBullet(t, usdc(10), usdc(11), 30*day)
	if err := f.bulletVal.OnInstrumentFunded(other, id); !errors.Is(err, ErrNotVaultOwned) {
		t.Fatalf("expected ErrNotVaultOwned, got %v", err)
	}
	v, err := f.bulletVal.CalculateValue(other)
	if err != nil || v.Sign() != 0 {
		t.Fatalf("expected empty value for other vault, got %s (%v)", v, err)
	}
}

func TestFIOLValueWithinFirstPeriod(t *testing.T) {
	f := newFixture(t)
	start := *f.now
	f.fundFIOL(t, big.NewInt(100), big.NewInt(10), 2, day)
	*f.now = start + day/4
	if v := f.value(t, f.fiolVal); v.Int64() != 102 {
		t.Fatalf("expected 102 (floor of 102.5), got %s", v)
	}
}

func TestFIOLLatePaymentsCarryFullPeriod(t *testing.T) {
	f := newFixture(t)
	start := *f.now
	f.fundFIOL(t, usdc(100), usdc(10), 2, day)
	*f.now = start + day + day/4
	want := big.NewInt(112_500_000)
	if v := f.value(t, f.fiolVal); v.Cmp(want) != 0 {
		t.Fatalf("expected %s, got %s", want, v)
	}
}

func TestFIOLValueFreezesAfterEndDate(t *testing.T) {
	f := newFixture(t)
	start := *f.now
	f.fundFIOL(t, usdc(100), usdc(10), 1, day)
	*f.now = start + 2*day
	if v := f.value(t, f.fiolVal); v.Cmp(usdc(110)) != 0 {
		t.Fatalf("expected principal plus one payment, got %s", v)
	}
	*f.now = start + 200*day
	if v := f.value(t, f.fiolVal); v.Cmp(usdc(110)) != 0 {
		t.Fatalf("expected value to stay frozen, got %s", v)
	}
}

func TestFIOLValueAfterRepaymentsPastEndDate(t *testing.T) {
	f := newFixture(t)
	start := *f.now
	id := f.fundFIOL(t, usdc(100), usdc(10), 3, day)
	for i := 0; i < 2; i++ {
		if _, _, err := f.fiols.Repay(vault, id, usdc(10)); err != nil {
			t.Fatalf("repay: %v", err)
		}
	}
	*f.now = start + 4*day
	if v := f.value(t, f.fiolVal); v.Cmp(usdc(110)) != 0 {
		t.Fatalf("expected 110 with one period outstanding, got %s", v)
	}
}

func TestFIOLEarlyRepaymentsFloorAtZero(t *testing.T) {
	f := newFixture(t)
	id := f.fundFIOL(t, usdc(10), usdc(10), 3, day)
	for i := 0; i < 2; i++ {
		if _, _, err := f.fiols.Repay(vault, id, usdc(10)); err != nil {
			t.Fatalf("repay: %v", err)
		}
	}
	if v := f.value(t, f.fiolVal); v.Sign() != 0 {
		t.Fatalf("expected value floored at zero, got %s", v)
	}
}

func TestFIOLDoubleFundingAndRemoval(t *testing.T) {
	f := newFixture(t)
	id := f.fundFIOL(t, usdc(100), usdc(10), 1, day)
	if err := f.fiolVal.OnInstrumentFunded(vault, id); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}
	if _, _, err := f.fiols.Repay(vault, id, usdc(110)); err != nil {
		t.Fatalf("repay: %v", err)
	}
	if err := f.fiolVal.OnInstrumentUpdated(vault, id); err != nil {
		t.Fatalf("update: %v", err)
	}
	if ids, _ := f.fiolVal.ActiveInstruments(vault); len(ids) != 0 {
		t.Fatalf("expected repaid loan to be removed, got %v", ids)
	}
}

func TestFIOLDefaultRemoves(t *testing.T) {
	f := newFixture(t)
	id := f.fundFIOL(t, usdc(100), usdc(10), 2, day)
	*f.now += 2 * day
	if err := f.fiols.MarkAsDefaulted(vault, id); err != nil {
		t.Fatalf("default: %v", err)
	}
	if err := f.fiolVal.OnInstrumentUpdated(vault, id); err != nil {
		t.Fatalf("update: %v", err)
	}
	if v := f.value(t, f.fiolVal); v.Sign() != 0 {
		t.Fatalf("expected zero value after default, got %s", v)
	}
}

func TestDispatcherSumsStrategies(t *testing.T) {
	f := newFixture(t)
	f.fundBullet(t, usdc(10), usdc(11), 30*day)
	f.fundFIOL(t, usdc(100), usdc(10), 2, day)
	total, err := f.dispatcher.CalculateValue(vault)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if total.Cmp(usdc(110)) != 0 {
		t.Fatalf("expected 110, got %s", total)
	}
	breakdown, err := f.dispatcher.Breakdown(vault)
	if err != nil {
		t.Fatalf("breakdown: %v", err)
	}
	if breakdown[bullet.Kind].Cmp(usdc(10)) != 0 || breakdown[fiol.Kind].Cmp(usdc(100)) != 0 {
		t.Fatalf("unexpected breakdown %v", breakdown)
	}
	empty, err := f.dispatcher.CalculateValue(other)
	if err != nil || empty.Sign() != 0 {
		t.Fatalf("expected zero for a vault without loans, got %s (%v)", empty, err)
	}
}

func TestDispatcherRegistration(t *testing.T) {
	f := newFixture(t)
	if err := f.dispatcher.AddStrategy(nil); !errors.Is(err, ErrNilStrategy) {
		t.Fatalf("expected ErrNilStrategy, got %v", err)
	}
	if err := f.dispatcher.AddStrategy(NewBulletStrategy(f.bullets)); err != nil {
		t.Fatalf("duplicate registration should be a no-op: %v", err)
	}
	if kinds := f.dispatcher.Strategies(); len(kinds) != 2 || kinds[0] != bullet.Kind || kinds[1] != fiol.Kind {
		t.Fatalf("unexpected kinds %v", kinds)
	}
	if s, _ := f.dispatcher.Strategy(bullet.Kind); s != Strategy(f.bulletVal) {
		t.Fatalf("expected the first bullet strategy to stay registered")
	}
	if err := f.dispatcher.OnInstrumentFunded(vault, "revolver", 0); !errors.Is(err, ErrUnknownInstrument) {
		t.Fatalf("expected ErrUnknownInstrument, got %v", err)
	}
}

func TestMulDivOverflow(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 255)
	if _, err := mulDiv(huge, big.NewInt(4), big.NewInt(1)); !errors.Is(err, ErrValueOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	tooBig := new(big.Int).Lsh(big.NewInt(1), 300)
	if _, err := mulDiv(tooBig, big.NewInt(1), big.NewInt(1)); !errors.Is(err, ErrValueOverflow) {
		t.Fatalf("expected overflow for oversized operand, got %v", err)
	}
	got, err := mulDiv(big.NewInt(7), big.NewInt(3), big.NewInt(2))
	if err != nil || got.Int64() != 10 {
		t.Fatalf("expected floor(21/2)=10, got %s (%v)", got, err)
	}
}
