package bullet

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

const moduleName = "bullet"

var (
	errNilState = errors.New("bullet loans: state not configured")

	ErrLoanNotFound       = errors.New("bullet loans: loan not found")
	ErrZeroDuration       = errors.New("bullet loans: loan duration must be nonzero")
	ErrMissingRecipient   = errors.New("bullet loans: recipient must be set")
	ErrMissingAsset       = errors.New("bullet loans: asset must be set")
	ErrInvalidPrincipal   = errors.New("bullet loans: principal must be positive")
	ErrDebtBelowPrincipal = errors.New("bullet loans: total debt cannot be less than principal")
	ErrNotOwner           = errors.New("bullet loans: caller is not the loan owner")
	ErrNotStarted         = errors.New("bullet loans: can only repay started loan")
	ErrOverpaid           = errors.New("bullet loans: loan cannot be overpaid")
	ErrZeroAmount         = errors.New("bullet loans: amount must be positive")
	ErrUnexpectedStatus   = errors.New("bullet loans: unexpected loan status")
)

type engineState interface {
	BulletLoanGet(id uint64) (*Loan, bool, error)
	BulletLoanPut(*Loan) error
	BulletLoanCount() (uint64, error)
	SetBulletLoanCount(uint64) error
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

// Engine runs the bullet loan lifecycle. One engine serves every vault; the
// owner recorded on each loan is the only party allowed to move it.
type Engine struct {
	state   engineState
	emitter events.Emitter
	pauses  common.PauseView
	nowFn   func() int64
}

// NewEngine creates a bullet loan engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPauses wires the pause view consulted before every mutation.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
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
	loan, ok, err := e.state.BulletLoanGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrLoanNotFound, id)
	}
	return loan, nil
}

func (e *Engine) storeLoan(loan *Loan) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.BulletLoanPut(loan)
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

// CreateLoan records a new loan owned by owner and returns its id. Ids are
// sequential from zero.
func (e *Engine) CreateLoan(owner crypto.Address, terms Terms) (uint64, error) {
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
	case terms.Duration <= 0:
		return 0, ErrZeroDuration
	case terms.Recipient.IsZero():
		return 0, ErrMissingRecipient
	case !loans.IsPositive(terms.Principal):
		return 0, ErrInvalidPrincipal
	case terms.TotalDebt == nil || terms.TotalDebt.Cmp(terms.Principal) < 0:
		return 0, ErrDebtBelowPrincipal
	}
	id, err := e.state.BulletLoanCount()
	if err != nil {
		return 0, err
	}
	loan := &Loan{
		ID:           id,
		Asset:        asset,
		Status:       StatusCreated,
		Duration:     terms.Duration,
		Recipient:    terms.Recipient,
		Owner:        owner,
		Principal:    loans.CloneBigInt(terms.Principal),
		TotalDebt:    loans.CloneBigInt(terms.TotalDebt),
		AmountRepaid: big.NewInt(0),
	}
	if err := e.storeLoan(loan); err != nil {
		return 0, err
	}
	if err := e.state.SetBulletLoanCount(id + 1); err != nil {
		return 0, err
	}
	e.emit(NewCreatedEvent(loan))
	return id, nil
}

// Issue implements the portfolio instrument contract on top of CreateLoan.
func (e *Engine) Issue(owner crypto.Address, req loans.IssueRequest) (uint64, error) {
	switch terms := req.(type) {
	case Terms:
		return e.CreateLoan(owner, terms)
	case *Terms:
		if terms == nil {
			return 0, loans.ErrWrongTerms
		}
		return e.CreateLoan(owner, *terms)
	default:
		return 0, loans.ErrWrongTerms
	}
}

// Start moves a created loan to Started and fixes its repayment date.
func (e *Engine) Start(caller crypto.Address, id uint64) error {
	loan, err := e.ownedLoan(caller, id)
	if err != nil {
		return err
	}
	if loan.Status != StatusCreated {
		return fmt.Errorf("%w: cannot start in status %s", ErrUnexpectedStatus, loan.Status)
	}
	loan.Status = StatusStarted
	loan.RepaymentDate = e.now() + loan.Duration
	return e.transition(loan)
}

// Repay applies amount to a started loan and returns the principal and
// interest portions. Reaching TotalDebt marks the loan FullyRepaid.
func (e *Engine) Repay(caller crypto.Address, id uint64, amount *big.Int) (*big.Int, *big.Int, error) {
	loan, err := e.ownedLoan(caller, id)
	if err != nil {
		return nil, nil, err
	}
	if !loans.IsPositive(amount) {
		return nil, nil, ErrZeroAmount
	}
	if loan.Status != StatusStarted {
		return nil, nil, ErrNotStarted
	}
	if amount.Cmp(loan.UnpaidDebt()) > 0 {
		return nil, nil, ErrOverpaid
	}

	outstandingPrincipal := new(big.Int).Sub(loan.Principal, loan.AmountRepaid)
	if outstandingPrincipal.Sign() < 0 {
		outstandingPrincipal.SetInt64(0)
	}
	principalPart := new(big.Int).Set(amount)
	if principalPart.Cmp(outstandingPrincipal) > 0 {
		principalPart.Set(outstandingPrincipal)
	}
	interestPart := new(big.Int).Sub(amount, principalPart)

	loan.AmountRepaid = new(big.Int).Add(loan.AmountRepaid, amount)
	statusChanged := false
	if loan.AmountRepaid.Cmp(loan.TotalDebt) == 0 {
		loan.Status = StatusFullyRepaid
		statusChanged = true
	}
	if err := e.storeLoan(loan); err != nil {
		return nil, nil, err
	}
	e.emit(NewRepaidEvent(loan, amount))
	if statusChanged {
		e.emit(NewStatusChangedEvent(loan))
	}
	return principalPart, interestPart, nil
}

// MarkAsDefaulted moves a created or started loan to Defaulted.
func (e *Engine) MarkAsDefaulted(caller crypto.Address, id uint64) error {
	loan, err := e.ownedLoan(caller, id)
	if err != nil {
		return err
	}
	if loan.Status != StatusCreated && loan.Status != StatusStarted {
		return fmt.Errorf("%w: cannot default in status %s", ErrUnexpectedStatus, loan.Status)
	}
	loan.Status = StatusDefaulted
	return e.transition(loan)
}

// MarkAsResolved settles a defaulted loan.
func (e *Engine) MarkAsResolved(caller crypto.Address, id uint64) error {
	loan, err := e.ownedLoan(caller, id)
	if err != nil {
		return err
	}
	if loan.Status != StatusDefaulted {
		return fmt.Errorf("%w: cannot resolve in status %s", ErrUnexpectedStatus, loan.Status)
	}
	loan.Status = StatusResolved
	return e.transition(loan)
}

// Cancel withdraws a loan that was never started.
func (e *Engine) Cancel(caller crypto.Address, id uint64) error {
	loan, err := e.ownedLoan(caller, id)
	if err != nil {
		return err
	}
	if loan.Status != StatusCreated {
		return fmt.Errorf("%w: cannot cancel in status %s", ErrUnexpectedStatus, loan.Status)
	}
	loan.Status = StatusCancelled
	return e.transition(loan)
}

func (e *Engine) transition(loan *Loan) error {
	if err := e.storeLoan(loan); err != nil {
		return err
	}
	e.emit(NewStatusChangedEvent(loan))
	return nil
}

// Loan returns a copy of the stored loan.
func (e *Engine) Loan(id uint64) (*Loan, error) {
	loan, err := e.loadLoan(id)
	if err != nil {
		return nil, err
	}
	return loan.Clone(), nil
}

// Status returns the lifecycle status of the loan.
func (e *Engine) Status(id uint64) (Status, error) {
	loan, err := e.loadLoan(id)
	if err != nil {
		return 0, err
	}
	return loan.Status, nil
}

// UnpaidDebt returns the amount still owed on the loan.
func (e *Engine) UnpaidDebt(id uint64) (*big.Int, error) {
	loan, err := e.loadLoan(id)
	if err != nil {
		return nil, err
	}
	return loan.UnpaidDebt(), nil
}

// LoanCount returns the number of loans created so far.
func (e *Engine) LoanCount() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.BulletLoanCount()
}

// Asset returns the asset the loan is denominated in.
func (e *Engine) Asset(id uint64) (string, error) {
	loan, err := e.loadLoan(id)
	if err != nil {
		return "", err
	}
	return loan.Asset, nil
}

// Principal returns the amount lent.
func (e *Engine) Principal(id uint64) (*big.Int, error) {
	loan, err := e.loadLoan(id)
	if err != nil {
		return nil, err
	}
	return loans.CloneBigInt(loan.Principal), nil
}

// Recipient returns the borrower.
func (e *Engine) Recipient(id uint64) (crypto.Address, error) {
	loan, err := e.loadLoan(id)
	if err != nil {
		return crypto.Address{}, err
	}
	return loan.Recipient, nil
}

// EndDate returns the repayment date; zero until the loan is started.
func (e *Engine) EndDate(id uint64) (int64, error) {
	loan, err := e.loadLoan(id)
	if err != nil {
		return 0, err
	}
	return loan.RepaymentDate, nil
}
