package fiol

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"creditvault/core/events"
	"creditvault/core/types"
	"creditvault/crypto"
	"creditvault/native/common"
	"creditvault/native/loans"
)

const moduleName = "fiol"

var (
	errNilState = errors.New("fiol loans: state not configured")

	ErrLoanNotFound           = errors.New("fiol loans: loan not found")
	ErrMissingRecipient       = errors.New("fiol loans: recipient cannot be the zero address")
	ErrMissingAsset           = errors.New("fiol loans: asset must be set")
	ErrInvalidPrincipal       = errors.New("fiol loans: principal must be positive")
	ErrZeroPeriodDuration     = errors.New("fiol loans: period duration must be greater than 0")
	ErrZeroPeriodCount        = errors.New("fiol loans: loan must have at least one period")
	ErrZeroInterest           = errors.New("fiol loans: total interest must be greater than 0")
	ErrNegativeGracePeriod    = errors.New("fiol loans: grace period cannot be negative")
	ErrNotBorrower            = errors.New("fiol loans: not a borrower")
	ErrNotOwner               = errors.New("fiol loans: caller is not the loan owner")
	ErrUnexpectedStatus       = errors.New("fiol loans: unexpected loan status")
	ErrCannotRepay            = errors.New("fiol loans: this loan cannot be repaid")
	ErrUnexpectedRepayment    = errors.New("fiol loans: unexpected repayment amount")
	ErrCannotDefault          = errors.New("fiol loans: this loan cannot be defaulted")
	ErrGracePeriodNotExtended = errors.New("fiol loans: grace period can only be extended")
)

type engineState interface {
	FIOLoanGet(id uint64) (*Loan, bool, error)
	FIOLoanPut(*Loan) error
	FIOLoanCount() (uint64, error)
	SetFIOLoanCount(uint64) error
}

type loanEvent struct {
	evt *types.Event
}

func (e loanEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e loanEvent) Event() *types.Event { return e.evt }

// Engine runs the fixed interest-only loan lifecycle.
type Engine struct {
	state   engineState
	emitter events.Emitter
	pauses  common.PauseView
	nowFn   func() int64
}

// NewEngine creates an engine with a no-op emitter and the wall clock.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetNowFunc overrides the time source. A nil function restores the wall clock.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Kind implements the portfolio instrument contract.
func (e *Engine) Kind() string { return Kind }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(loanEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) loadLoan(id uint64) (*Loan, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	loan, ok, err := e.state.FIOLoanGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrLoanNotFound, id)
	}
	return loan, nil
}

func (e *Engine) ownedLoan(caller crypto.Address, id uint64) (*Loan, error) {
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	loan, err := e.loadLoan(id)
	if err != nil {
		return nil, err
	}
	if !loan.Owner.Equal(caller) {
		return nil, ErrNotOwner
	}
	return loan, nil
}

func (e *Engine) changeStatus(loan *Loan, status Status) error {
	loan.Status = status
	if err := e.state.FIOLoanPut(loan); err != nil {
		return err
	}
	e.emit(NewStatusChangedEvent(loan))
	return nil
}

// IssueLoan records a new loan owned by owner and returns its id.
func (e *Engine) IssueLoan(owner crypto.Address, terms Terms) (uint64, error) {
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	asset := normalizeAsset(terms.Asset)
	switch {
	case asset == "":
		return 0, ErrMissingAsset
	case terms.Recipient.IsZero():
		return 0, ErrMissingRecipient
	case !loans.IsPositive(terms.Principal):
		return 0, ErrInvalidPrincipal
	case terms.PeriodDuration <= 0:
		return 0, ErrZeroPeriodDuration
	case terms.PeriodCount == 0:
		return 0, ErrZeroPeriodCount
	case !loans.IsPositive(terms.PeriodPayment):
		return 0, ErrZeroInterest
	case terms.GracePeriod < 0:
		return 0, ErrNegativeGracePeriod
	}
	id, err := e.state.FIOLoanCount()
	if err != nil {
		return 0, err
	}
	loan := &Loan{
		ID:                      id,
		Asset:                   asset,
		Status:                  StatusCreated,
		Principal:               loans.CloneBigInt(terms.Principal),
		PeriodCount:             terms.PeriodCount,
		PeriodPayment:           loans.CloneBigInt(terms.PeriodPayment),
		PeriodDuration:          terms.PeriodDuration,
		GracePeriod:             terms.GracePeriod,
		Recipient:               terms.Recipient,
		Owner:                   owner,
		CanBeRepaidAfterDefault: terms.CanBeRepaidAfterDefault,
	}
	if err := e.state.FIOLoanPut(loan); err != nil {
		return 0, err
	}
	if err := e.state.SetFIOLoanCount(id + 1); err != nil {
		return 0, err
	}
	e.emit(NewIssuedEvent(loan))
	return id, nil
}

// Issue implements the portfolio instrument contract on top of IssueLoan.
func (e *Engine) Issue(owner crypto.Address, req loans.IssueRequest) (uint64, error) {
	switch terms := req.(type) {
	case Terms:
		return e.IssueLoan(owner, terms)
	case *Terms:
		if terms == nil {
			return 0, loans.ErrWrongTerms
		}
		return e.IssueLoan(owner, *terms)
	default:
		return 0, loans.ErrWrongTerms
	}
}

// AcceptLoan is called by the borrower to agree to the terms.
func (e *Engine) AcceptLoan(caller crypto.Address, id uint64) error {
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	loan, err := e.loadLoan(id)
	if err != nil {
		return err
	}
	if !loan.Recipient.Equal(caller) {
		return ErrNotBorrower
	}
	if loan.Status != StatusCreated {
		return fmt.Errorf("%w: cannot accept in status %s", ErrUnexpectedStatus, loan.Status)
	}
	return e.changeStatus(loan, StatusAccepted)
}

// Start begins the first period of an accepted loan.
func (e *Engine) Start(caller crypto.Address, id uint64) error {
	loan, err := e.ownedLoan(caller, id)
	if err != nil {
		return err
	}
	if loan.Status != StatusAccepted {
		return fmt.Errorf("%w: cannot start in status %s", ErrUnexpectedStatus, loan.Status)
	}
	now := e.now()
	loan.EndDate = now + loan.TotalDuration()
	loan.CurrentPeriodEndDate = now + loan.PeriodDuration
	return e.changeStatus(loan, StatusStarted)
}

// Repay settles the current period. The amount must equal
// ExpectedRepaymentAmount. It returns the principal and interest portions.
func (e *Engine) Repay(caller crypto.Address, id uint64, amount *big.Int) (*big.Int, *big.Int, error) {
	loan, err := e.ownedLoan(caller, id)
	if err != nil {
		return nil, nil, err
	}
	repayable := loan.Status == StatusStarted ||
		(loan.Status == StatusDefaulted && loan.CanBeRepaidAfterDefault)
	if !repayable || loan.PeriodsRepaid >= loan.PeriodCount {
		return nil, nil, ErrCannotRepay
	}
	expected := loan.ExpectedRepaymentAmount()
	if amount == nil || amount.Cmp(expected) != 0 {
		return nil, nil, fmt.Errorf("%w: expected %s", ErrUnexpectedRepayment, expected)
	}

	principalPart := big.NewInt(0)
	if loan.PeriodsRepaid+1 == loan.PeriodCount {
		principalPart.Set(loan.Principal)
	}
	interestPart := loans.CloneBigInt(loan.PeriodPayment)

	loan.PeriodsRepaid++
	loan.CurrentPeriodEndDate += loan.PeriodDuration
	if err := e.state.FIOLoanPut(loan); err != nil {
		return nil, nil, err
	}
	e.emit(NewRepaidEvent(loan, amount))
	if loan.PeriodsRepaid == loan.PeriodCount {
		if err := e.changeStatus(loan, StatusRepaid); err != nil {
			return nil, nil, err
		}
	}
	return principalPart, interestPart, nil
}

// MarkAsDefaulted defaults a started loan once the current period and its
// grace period have elapsed.
func (e *Engine) MarkAsDefaulted(caller crypto.Address, id uint64) error {
	loan, err := e.ownedLoan(caller, id)
	if err != nil {
		return err
	}
	if loan.Status != StatusStarted {
		return fmt.Errorf("%w: status %s", ErrCannotDefault, loan.Status)
	}
	if e.now() < loan.CurrentPeriodEndDate+loan.GracePeriod {
		return ErrCannotDefault
	}
	return e.changeStatus(loan, StatusDefaulted)
}

// UpdateInstrument extends the grace period of a started loan.
func (e *Engine) UpdateInstrument(caller crypto.Address, id uint64, gracePeriod int64) error {
	loan, err := e.ownedLoan(caller, id)
	if err != nil {
		return err
	}
	if loan.Status != StatusStarted {
		return fmt.Errorf("%w: cannot update in status %s", ErrUnexpectedStatus, loan.Status)
	}
	if gracePeriod <= loan.GracePeriod {
		return ErrGracePeriodNotExtended
	}
	loan.GracePeriod = gracePeriod
	if err := e.state.FIOLoanPut(loan); err != nil {
		return err
	}
	e.emit(NewGracePeriodUpdatedEvent(loan))
	return nil
}

// Cancel withdraws a loan that was never started.
func (e *Engine) Cancel(caller crypto.Address, id uint64) error {
	loan, err := e.ownedLoan(caller, id)
	if err != nil {
		return err
	}
	if loan.Status != StatusCreated && loan.Status != StatusAccepted {
		return fmt.Errorf("%w: cannot cancel in status %s", ErrUnexpectedStatus, loan.Status)
	}
	return e.changeStatus(loan, StatusCancelled)
}

// Loan returns a copy of the stored loan.
func (e *Engine) Loan(id uint64) (*Loan, error) {
	loan, err := e.loadLoan(id)
	if err != nil {
		return nil, err
	}
	return loan.Clone(), nil
}

func (e *Engine) Status(id uint64) (Status, error) {
	loan, err := e.loadLoan(id)
	if err != nil {
		return 0, err
	}
	return loan.Status, nil
}

// ExpectedRepaymentAmount returns the amount the next Repay must carry.
func (e *Engine) ExpectedRepaymentAmount(id uint64) (*big.Int, error) {
	loan, err := e.loadLoan(id)
	if err != nil {
		return nil, err
	}
	return loan.ExpectedRepaymentAmount(), nil
}

// IsOverdue reports whether the current period ended without repayment.
func (e *Engine) IsOverdue(id uint64) (bool, error) {
	loan, err := e.loadLoan(id)
	if err != nil {
		return false, err
	}
	return loan.Status == StatusStarted && e.now() > loan.CurrentPeriodEndDate, nil
}

func (e *Engine) LoanCount() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.FIOLoanCount()
}

func (e *Engine) Asset(id uint64) (string, error) {
	loan, err := e.loadLoan(id)
	if err != nil {
		return "", err
	}
	return loan.Asset, nil
}

func (e *Engine) Principal(id uint64) (*big.Int, error) {
	loan, err := e.loadLoan(id)
	if err != nil {
		return nil, err
	}
	return loans.CloneBigInt(loan.Principal), nil
}

func (e *Engine) Recipient(id uint64) (crypto.Address, error) {
	loan, err := e.loadLoan(id)
	if err != nil {
		return crypto.Address{}, err
	}
	return loan.Recipient, nil
}

// EndDate returns the loan end date; zero until the loan is started.
func (e *Engine) EndDate(id uint64) (int64, error) {
	loan, err := e.loadLoan(id)
	if err != nil {
		return 0, err
	}
	return loan.EndDate, nil
}
