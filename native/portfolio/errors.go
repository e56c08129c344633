package portfolio

import "errors"

var (
	errNilState     = errors.New("portfolio: state not configured")
	errNilLedger    = errors.New("portfolio: asset ledger not configured")
	errNilValuation = errors.New("portfolio: valuation not configured")

	// Invalid state.
	ErrVaultNotFound      = errors.New("portfolio: vault not initialised")
	ErrVaultExists        = errors.New("portfolio: vault already initialised")
	ErrMissingAsset       = errors.New("portfolio: asset must be set")
	ErrZeroDuration       = errors.New("portfolio: duration must be greater than 0")
	ErrMissingMaxSize     = errors.New("portfolio: max size must be set")
	ErrMissingBeneficiary = errors.New("portfolio: manager fee beneficiary cannot be the zero address")
	ErrInvalidAmount      = errors.New("portfolio: amount cannot be negative")
	ErrPortfolioClosed    = errors.New("portfolio: portfolio end date has elapsed")
	ErrInstrumentNotAdded = errors.New("portfolio: instrument was not added")
	ErrUnknownInstrument  = errors.New("portfolio: no instrument registered for kind")
	ErrTokenMismatch      = errors.New("portfolio: instrument asset does not match portfolio asset")
	ErrMaxSizeUnchanged   = errors.New("portfolio: new max size is the same as current")

	// Unauthorized.
	ErrWrongReceiver  = errors.New("portfolio: wrong receiver/owner")
	ErrWrongRecipient = errors.New("portfolio: caller is not the instrument recipient")

	// Limit exceeded.
	ErrPortfolioFull            = errors.New("portfolio: portfolio is full")
	ErrFeeExceedsAssets         = errors.New("portfolio: fee bigger than assets")
	ErrInstrumentEndDate        = errors.New("portfolio: instrument has bigger end date than portfolio")
	ErrAllowanceExceeded        = errors.New("portfolio: insufficient allowance")
	ErrInsufficientShares       = errors.New("portfolio: insufficient shares")
	ErrEndDateNotLowered        = errors.New("portfolio: end date can only be decreased")
	ErrEndDateInPast            = errors.New("portfolio: end date cannot be in the past")
	ErrEndDateBeforeInstruments = errors.New("portfolio: end date cannot precede instrument end dates")

	// Not allowed.
	ErrOperationNotAllowed  = errors.New("portfolio: operation not allowed")
	ErrInstrumentNotAllowed = errors.New("portfolio: instrument kind is not allowed")
	ErrTransferNotAllowed   = errors.New("portfolio: transfer not allowed")
	ErrZeroAmount           = errors.New("portfolio: repayment amount must be greater than 0")

	// Arithmetic.
	ErrInfiniteValue = errors.New("portfolio: infinite value")
	ErrValueOverflow = errors.New("portfolio: value overflows 256 bits")

	ErrInsufficientLiquidity = errors.New("portfolio: insufficient liquidity")
)
