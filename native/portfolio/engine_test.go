package portfolio

import (
	"errors"
	"math/big"
	"testing"

	"creditvault/core/events"
	"creditvault/core/state"
	"creditvault/crypto"
	"creditvault/native/common"
	"creditvault/native/loans/bullet"
	"creditvault/native/loans/fiol"
	"creditvault/native/valuation"
	"creditvault/storage"
)

const day = int64(24 * 60 * 60)

var (
	vaultAddr   = crypto.LabelAddress(crypto.VaultPrefix, "portfolio")
	lender      = crypto.LabelAddress(crypto.AccountPrefix, "lender")
	other       = crypto.LabelAddress(crypto.AccountPrefix, "other")
	borrower    = crypto.LabelAddress(crypto.AccountPrefix, "borrower")
	beneficiary = crypto.LabelAddress(crypto.AccountPrefix, "manager")
	treasury    = crypto.LabelAddress(crypto.AccountPrefix, "treasury")
)

func usdc(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), big.NewInt(1_000_000))
}

type fixture struct {
	t        *testing.T
	now      *int64
	manager  *state.Manager
	ledger   *state.Ledger
	protocol *Protocol
	journal  *events.Journal
	bullets  *bullet.Engine
	fiols    *fiol.Engine
	engine   *Engine
}

func defaultParams() Params {
	return Params{
		Asset:                 "USDC",
		Name:                  "Credit Vault",
		Symbol:                "CV",
		AssetDecimals:         6,
		ShareDecimals:         6,
		MaxSize:               usdc(1_000_000),
		Duration:              Year,
		ManagerFeeBeneficiary: beneficiary,
		AllowedInstruments:    []string{bullet.Kind, fiol.Kind},
	}
}

func newFixture(t *testing.T, configure ...func(*Params, *Protocol)) *fixture {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	if err := manager.RegisterToken("USDC", "USD Coin", 6); err != nil {
		t.Fatalf("register token: %v", err)
	}
	if err := manager.RegisterToken("DAI", "Dai", 18); err != nil {
		t.Fatalf("register token: %v", err)
	}
	ledger := state.NewLedger(manager)
	for _, addr := range []crypto.Address{lender, other, borrower} {
		if err := ledger.Mint("USDC", addr, usdc(1_000_000)); err != nil {
			t.Fatalf("mint: %v", err)
		}
	}

	now := int64(1_700_000_000)
	clock := func() int64 { return now }
	journal := events.NewJournal(nil)

	bullets := bullet.NewEngine()
	bullets.SetState(bullet.NewStore(manager))
	bullets.SetNowFunc(clock)
	bullets.SetEmitter(journal)
	fiols := fiol.NewEngine()
	fiols.SetState(fiol.NewStore(manager))
	fiols.SetNowFunc(clock)
	fiols.SetEmitter(journal)

	valuations := valuation.NewStore(manager)
	bulletValuation := valuation.NewBulletStrategy(bullets)
	bulletValuation.SetState(valuations)
	bulletValuation.SetNowFunc(clock)
	fiolValuation := valuation.NewFixedInterestOnlyStrategy(fiols)
	fiolValuation.SetState(valuations)
	fiolValuation.SetNowFunc(clock)
	dispatcher, err := valuation.NewDispatcher(bulletValuation, fiolValuation)
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}

	params := defaultParams()
	protocol := &Protocol{Treasury: treasury}
	for _, fn := range configure {
		fn(&params, protocol)
	}

	engine := NewEngine(vaultAddr)
	engine.SetState(NewStore(manager))
	engine.SetLedger(ledger)
	engine.SetProtocol(protocol)
	engine.SetFeeSource(StaticFeeSource(0))
	engine.SetValuation(dispatcher)
	engine.SetPauses(manager)
	engine.SetNowFunc(clock)
	engine.SetEmitter(journal)
	engine.RegisterInstrument(bullets)
	engine.RegisterInstrument(fiols)
	if err := engine.Initialize(params); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return &fixture{
		t:        t,
		now:      &now,
		manager:  manager,
		ledger:   ledger,
		protocol: protocol,
		journal:  journal,
		bullets:  bullets,
		fiols:    fiols,
		engine:   engine,
	}
}

func (f *fixture) advance(seconds int64) { *f.now += seconds }

func (f *fixture) deposit(from crypto.Address, amount *big.Int) *big.Int {
	f.t.Helper()
	shares, err := f.engine.Deposit(from, amount, from)
	if err != nil {
		f.t.Fatalf("deposit: %v", err)
	}
	return shares
}

func (f *fixture) addBullet(principal, debt *big.Int, duration int64) InstrumentRef {
	f.t.Helper()
	ref, err := f.engine.AddInstrument(lender, bullet.Terms{
		Asset:     "USDC",
		Principal: principal,
		TotalDebt: debt,
		Duration:  duration,
		Recipient: borrower,
	})
	if err != nil {
		f.t.Fatalf("add bullet: %v", err)
	}
	return ref
}

func (f *fixture) fundBullet(principal, debt *big.Int, duration int64) InstrumentRef {
	f.t.Helper()
	ref := f.addBullet(principal, debt, duration)
	if err := f.engine.FundInstrument(lender, ref); err != nil {
		f.t.Fatalf("fund bullet: %v", err)
	}
	return ref
}

func (f *fixture) balance(addr crypto.Address) *big.Int {
	f.t.Helper()
	bal, err := f.ledger.Balance("USDC", addr)
	if err != nil {
		f.t.Fatalf("balance: %v", err)
	}
	return bal
}

func (f *fixture) vault() *Vault {
	f.t.Helper()
	v, err := f.engine.Vault()
	if err != nil {
		f.t.Fatalf("vault: %v", err)
	}
	return v
}

func (f *fixture) totalAssets() *big.Int {
	f.t.Helper()
	total, err := f.engine.TotalAssets()
	if err != nil {
		f.t.Fatalf("total assets: %v", err)
	}
	return total
}

func mustEqual(t *testing.T, what string, got, want *big.Int) {
	t.Helper()
	if got == nil || got.Cmp(want) != 0 {
		t.Fatalf("%s: expected %s, got %s", what, want, got)
	}
}

func TestInitializeValidation(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.Initialize(defaultParams()); !errors.Is(err, ErrVaultExists) {
		t.Fatalf("expected ErrVaultExists, got %v", err)
	}
	v := f.vault()
	if v.EndDate != *f.now+Year || v.LastFeeUpdate != *f.now || v.Asset != "USDC" {
		t.Fatalf("unexpected vault %+v", v)
	}

	cases := []struct {
		name   string
		mutate func(*Params)
		want   error
	}{
		{"asset", func(p *Params) { p.Asset = " " }, ErrMissingAsset},
		{"duration", func(p *Params) { p.Duration = 0 }, ErrZeroDuration},
		{"max size", func(p *Params) { p.MaxSize = nil }, ErrMissingMaxSize},
		{"beneficiary", func(p *Params) { p.ManagerFeeBeneficiary = crypto.Address{} }, ErrMissingBeneficiary},
	}
	for _, tc := range cases {
		params := defaultParams()
		tc.mutate(&params)
		engine := NewEngine(crypto.LabelAddress(crypto.VaultPrefix, "fresh-"+tc.name))
		engine.SetState(NewStore(f.manager))
		if err := engine.Initialize(params); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestDepositThenRedeemReturnsDeposit(t *testing.T) {
	f := newFixture(t)
	before := f.balance(lender)
	shares := f.deposit(lender, usdc(100))
	mustEqual(t, "shares", shares, usdc(100))
	mustEqual(t, "liquidity", f.vault().VirtualLiquidity, usdc(100))

	assets, err := f.engine.Redeem(lender, shares, lender, lender)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	mustEqual(t, "redeemed", assets, usdc(100))
	mustEqual(t, "lender balance", f.balance(lender), before)
	mustEqual(t, "supply", f.vault().TotalSupply, big.NewInt(0))
}

func TestConvertRoundTripNeverGains(t *testing.T) {
	f := newFixture(t)
	f.deposit(lender, usdc(100))
	f.fundBullet(usdc(10), usdc(11), 30*day)
	f.advance(day + 17)
	for _, x := range []int64{1, 7, 999_999, 1_000_001, 33_333_333, 100_000_000} {
		assets := big.NewInt(x)
		shares, err := f.engine.ConvertToShares(assets)
		if err != nil {
			t.Fatalf("to shares: %v", err)
		}
		back, err := f.engine.ConvertToAssets(shares)
		if err != nil {
			t.Fatalf("to assets: %v", err)
		}
		if back.Cmp(assets) > 0 {
			t.Fatalf("round trip of %s gained value: %s", assets, back)
		}
	}
}

func TestBulletScenarioValue(t *testing.T) {
	f := newFixture(t)
	f.deposit(lender, usdc(100))
	f.fundBullet(usdc(10), usdc(11), 30*day)
	mustEqual(t, "borrower received", f.balance(borrower), usdc(1_000_010))

	f.advance(3 * day)
	mustEqual(t, "after three days", f.totalAssets(), big.NewInt(100_100_000))
	f.advance(27 * day)
	mustEqual(t, "at maturity", f.totalAssets(), usdc(101))
	f.advance(30 * day)
	mustEqual(t, "past maturity", f.totalAssets(), usdc(101))
}

func TestPreviewRoundingDirections(t *testing.T) {
	f := newFixture(t, withFees(1000))
	f.engine.SetFeeSource(StaticFeeSource(500))
	if err := f.engine.UpdateAndPayFee(); err != nil {
		t.Fatalf("refresh rates: %v", err)
	}
	f.deposit(lender, usdc(100))
	f.fundBullet(usdc(10), usdc(11), 30*day)
	f.advance(day)

	protocolFee, managerFee, err := f.engine.GetFees()
	if err != nil {
		t.Fatalf("get fees: %v", err)
	}
	mustEqual(t, "protocol fee", protocolFee, big.NewInt(27_406))
	mustEqual(t, "manager fee", managerFee, big.NewInt(13_703))
	mustEqual(t, "total assets", f.totalAssets(), big.NewInt(99_992_224))

	amount := usdc(1)
	deposit, err := f.engine.PreviewDeposit(amount)
	if err != nil {
		t.Fatalf("preview deposit: %v", err)
	}
	mint, err := f.engine.PreviewMint(amount)
	if err != nil {
		t.Fatalf("preview mint: %v", err)
	}
	withdraw, err := f.engine.PreviewWithdraw(amount)
	if err != nil {
		t.Fatalf("preview withdraw: %v", err)
	}
	redeem, err := f.engine.PreviewRedeem(amount)
	if err != nil {
		t.Fatalf("preview redeem: %v", err)
	}
	mustEqual(t, "preview deposit", deposit, big.NewInt(1_000_077))
	mustEqual(t, "preview withdraw", withdraw, big.NewInt(1_000_078))
	mustEqual(t, "preview redeem", redeem, big.NewInt(999_922))
	mustEqual(t, "preview mint", mint, big.NewInt(999_923))
	if deposit.Cmp(withdraw) >= 0 || redeem.Cmp(mint) >= 0 {
		t.Fatalf("entry previews must round against the caller: deposit %s withdraw %s redeem %s mint %s",
			deposit, withdraw, redeem, mint)
	}
}

func TestDepositGuards(t *testing.T) {
	f := newFixture(t, func(p *Params, _ *Protocol) { p.MaxSize = usdc(100) })

	if _, err := f.engine.Deposit(lender, usdc(1), vaultAddr); !errors.Is(err, ErrWrongReceiver) {
		t.Fatalf("expected ErrWrongReceiver, got %v", err)
	}
	if _, err := f.engine.Deposit(lender, big.NewInt(0), lender); !errors.Is(err, ErrOperationNotAllowed) {
		t.Fatalf("expected ErrOperationNotAllowed, got %v", err)
	}
	if _, err := f.engine.Deposit(lender, usdc(101), lender); !errors.Is(err, ErrPortfolioFull) {
		t.Fatalf("expected ErrPortfolioFull, got %v", err)
	}
	f.deposit(lender, usdc(80))
	if _, err := f.engine.Deposit(other, usdc(21), other); !errors.Is(err, ErrPortfolioFull) {
		t.Fatalf("expected ErrPortfolioFull, got %v", err)
	}
	max, err := f.engine.MaxDeposit(other)
	if err != nil {
		t.Fatalf("max deposit: %v", err)
	}
	mustEqual(t, "max deposit", max, usdc(20))

	f.advance(Year)
	if _, err := f.engine.Deposit(other, usdc(1), other); !errors.Is(err, ErrPortfolioClosed) {
		t.Fatalf("expected ErrPortfolioClosed, got %v", err)
	}
	if max, _ := f.engine.MaxDeposit(other); max.Sign() != 0 {
		t.Fatalf("expected zero max deposit once closed, got %s", max)
	}
	if _, err := f.engine.Withdraw(lender, usdc(10), lender, lender); err != nil {
		t.Fatalf("withdraw after end date: %v", err)
	}
}

func TestDepositFeeDoesNotCountTowardMaxSize(t *testing.T) {
	f := newFixture(t, func(p *Params, _ *Protocol) { p.MaxSize = usdc(100) })
	f.engine.SetDepositPolicy(FeeDepositPolicy{FeeRate: 100})

	shares := f.deposit(lender, usdc(101))
	mustEqual(t, "shares", shares, big.NewInt(99_990_000))
	mustEqual(t, "beneficiary", f.balance(beneficiary), big.NewInt(1_010_000))
	mustEqual(t, "liquidity", f.vault().VirtualLiquidity, big.NewInt(99_990_000))

	var paid int
	for _, evt := range f.journal.Pending() {
		if evt.EventType() == EventTypeFeePaid {
			paid++
		}
	}
	if paid != 1 {
		t.Fatalf("expected one fee_paid event, got %d", paid)
	}
}

type fixedDepositPolicy struct {
	DefaultDepositPolicy
	shares *big.Int
	fee    *big.Int
}

func (p fixedDepositPolicy) OnDeposit(View, crypto.Address, *big.Int, crypto.Address) (*big.Int, *big.Int, error) {
	return p.shares, p.fee, nil
}

func TestDepositPolicyResults(t *testing.T) {
	f := newFixture(t)
	f.engine.SetDepositPolicy(fixedDepositPolicy{shares: big.NewInt(0), fee: big.NewInt(0)})
	if _, err := f.engine.Deposit(lender, usdc(1), lender); !errors.Is(err, ErrOperationNotAllowed) {
		t.Fatalf("expected ErrOperationNotAllowed, got %v", err)
	}
	f.engine.SetDepositPolicy(fixedDepositPolicy{shares: usdc(1), fee: usdc(2)})
	if _, err := f.engine.Deposit(lender, usdc(1), lender); !errors.Is(err, ErrFeeExceedsAssets) {
		t.Fatalf("expected ErrFeeExceedsAssets, got %v", err)
	}
	f.engine.SetDepositPolicy(nil)
	f.deposit(lender, usdc(1))
}

func TestMintChargesFeeOnTop(t *testing.T) {
	f := newFixture(t)
	f.engine.SetDepositPolicy(FeeDepositPolicy{FeeRate: 100})
	before := f.balance(lender)
	paid, err := f.engine.Mint(lender, usdc(10), lender)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	mustEqual(t, "paid", paid, big.NewInt(10_100_000))
	mustEqual(t, "lender spent", new(big.Int).Sub(before, f.balance(lender)), big.NewInt(10_100_000))
	mustEqual(t, "beneficiary", f.balance(beneficiary), big.NewInt(100_000))
	mustEqual(t, "liquidity", f.vault().VirtualLiquidity, usdc(10))
	shares, _ := f.engine.BalanceOf(lender)
	mustEqual(t, "shares", shares, usdc(10))
}

func TestWithdrawAllowanceAndLiquidity(t *testing.T) {
	f := newFixture(t)
	f.deposit(lender, usdc(100))

	if _, err := f.engine.Withdraw(other, usdc(10), other, lender); !errors.Is(err, ErrAllowanceExceeded) {
		t.Fatalf("expected ErrAllowanceExceeded, got %v", err)
	}
	if err := f.engine.Approve(lender, other, usdc(10)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	burned, err := f.engine.Withdraw(other, usdc(10), other, lender)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	mustEqual(t, "burned", burned, usdc(10))
	allowance, _ := f.engine.Allowance(lender, other)
	mustEqual(t, "allowance", allowance, big.NewInt(0))
	mustEqual(t, "other received", f.balance(other), usdc(1_000_010))

	f.fundBullet(usdc(60), usdc(66), 30*day)
	if _, err := f.engine.Withdraw(lender, usdc(31), lender, lender); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
	max, err := f.engine.MaxWithdraw(lender)
	if err != nil {
		t.Fatalf("max withdraw: %v", err)
	}
	mustEqual(t, "max withdraw", max, usdc(30))
	if _, err := f.engine.Withdraw(lender, usdc(1), vaultAddr, lender); !errors.Is(err, ErrWrongReceiver) {
		t.Fatalf("expected ErrWrongReceiver, got %v", err)
	}
	if _, err := f.engine.Redeem(other, usdc(1), other, other); !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}
}

func TestFailedCallLeavesNoTrace(t *testing.T) {
	f := newFixture(t, func(_ *Params, p *Protocol) { p.FeeRate = 1000 })
	f.deposit(lender, usdc(100))
	f.fundBullet(usdc(90), usdc(90), 30*day)
	f.advance(Year / 2)

	before := f.vault()
	pending := len(f.journal.Pending())
	if _, err := f.engine.Withdraw(lender, usdc(50), lender, lender); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
	after := f.vault()
	if after.LastFeeUpdate != before.LastFeeUpdate || after.VirtualLiquidity.Cmp(before.VirtualLiquidity) != 0 {
		t.Fatalf("expected vault to be untouched, before %+v after %+v", before, after)
	}
	mustEqual(t, "treasury", f.balance(treasury), big.NewInt(0))
	if got := len(f.journal.Pending()); got != pending {
		t.Fatalf("expected %d pending events, got %d", pending, got)
	}
}

func TestPausedVaultRejectsCalls(t *testing.T) {
	f := newFixture(t)
	f.deposit(lender, usdc(10))
	for _, key := range []string{"portfolio", PauseKey(vaultAddr)} {
		if err := f.manager.SetPaused(key, true); err != nil {
			t.Fatalf("pause: %v", err)
		}
		if _, err := f.engine.Deposit(lender, usdc(1), lender); !errors.Is(err, common.ErrModulePaused) {
			t.Fatalf("%s: expected ErrModulePaused, got %v", key, err)
		}
		if err := f.engine.UpdateAndPayFee(); !errors.Is(err, common.ErrModulePaused) {
			t.Fatalf("%s: expected ErrModulePaused, got %v", key, err)
		}
		for name, fn := range map[string]func(crypto.Address) (*big.Int, error){
			"deposit":  f.engine.MaxDeposit,
			"mint":     f.engine.MaxMint,
			"withdraw": f.engine.MaxWithdraw,
			"redeem":   f.engine.MaxRedeem,
		} {
			if max, err := fn(lender); err != nil || max.Sign() != 0 {
				t.Fatalf("%s: expected max %s of zero, got %s (%v)", key, name, max, err)
			}
		}
		if err := f.manager.SetPaused(key, false); err != nil {
			t.Fatalf("unpause: %v", err)
		}
	}
	f.deposit(lender, usdc(1))
}

type reentrantPolicy struct {
	DefaultDepositPolicy
}

func (reentrantPolicy) OnDeposit(v View, caller crypto.Address, assets *big.Int, receiver crypto.Address) (*big.Int, *big.Int, error) {
	engine := v.(*Engine)
	if _, err := engine.Deposit(caller, assets, receiver); err != nil {
		return nil, nil, err
	}
	return assets, big.NewInt(0), nil
}

func TestReentrantDepositIsRejected(t *testing.T) {
	f := newFixture(t)
	f.engine.SetDepositPolicy(reentrantPolicy{})
	if _, err := f.engine.Deposit(lender, usdc(1), lender); !errors.Is(err, common.ErrReentrantCall) {
		t.Fatalf("expected ErrReentrantCall, got %v", err)
	}
	if supply, _ := f.engine.TotalSupply(); supply.Sign() != 0 {
		t.Fatalf("expected no shares, got %s", supply)
	}
}

func TestClosedVaultWithdrawPolicy(t *testing.T) {
	f := newFixture(t)
	f.engine.SetWithdrawPolicy(ClosedVaultWithdrawPolicy{})
	f.deposit(lender, usdc(50))
	if _, err := f.engine.Withdraw(lender, usdc(10), lender, lender); !errors.Is(err, ErrOperationNotAllowed) {
		t.Fatalf("expected ErrOperationNotAllowed, got %v", err)
	}
	if max, _ := f.engine.MaxRedeem(lender); max.Sign() != 0 {
		t.Fatalf("expected zero max redeem before end date, got %s", max)
	}
	f.advance(Year)
	assets, err := f.engine.Redeem(lender, usdc(50), lender, lender)
	if err != nil {
		t.Fatalf("redeem after end date: %v", err)
	}
	mustEqual(t, "redeemed", assets, usdc(50))
}

func TestShareTransfers(t *testing.T) {
	f := newFixture(t)
	f.deposit(lender, usdc(10))
	if err := f.engine.Transfer(lender, other, usdc(4)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	bal, _ := f.engine.BalanceOf(other)
	mustEqual(t, "other shares", bal, usdc(4))

	if err := f.engine.TransferFrom(other, lender, other, usdc(1)); !errors.Is(err, ErrAllowanceExceeded) {
		t.Fatalf("expected ErrAllowanceExceeded, got %v", err)
	}
	if err := f.engine.Approve(lender, other, usdc(1)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := f.engine.TransferFrom(other, lender, other, usdc(1)); err != nil {
		t.Fatalf("transfer from: %v", err)
	}
	if err := f.engine.Transfer(lender, other, usdc(6)); !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}

	f.engine.SetTransferPolicy(BlockAllTransfers{})
	if err := f.engine.Transfer(lender, other, usdc(1)); !errors.Is(err, ErrTransferNotAllowed) {
		t.Fatalf("expected ErrTransferNotAllowed, got %v", err)
	}
	if err := f.manager.SetPaused("portfolio", true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	f.engine.SetTransferPolicy(nil)
	if err := f.engine.Transfer(lender, other, usdc(1)); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
}

func TestMaxLimitsTrackValue(t *testing.T) {
	f := newFixture(t, func(p *Params, _ *Protocol) { p.MaxSize = usdc(100) })
	max, _ := f.engine.MaxDeposit(lender)
	mustEqual(t, "empty vault", max, usdc(100))
	f.deposit(lender, usdc(10))
	f.fundBullet(usdc(10), usdc(11), 30*day)
	f.advance(30 * day)
	max, _ = f.engine.MaxDeposit(lender)
	mustEqual(t, "after appreciation", max, usdc(89))

	mint, err := f.engine.MaxMint(lender)
	if err != nil {
		t.Fatalf("max mint: %v", err)
	}
	expected, _ := f.engine.ConvertToShares(usdc(89))
	mustEqual(t, "max mint", mint, expected)

	redeem, err := f.engine.MaxRedeem(lender)
	if err != nil {
		t.Fatalf("max redeem: %v", err)
	}
	mustEqual(t, "max redeem with no liquidity", redeem, big.NewInt(0))
}
