package chainledger

import (
	"errors"
	"fmt"
)

// Taxonomy sentinels. Every evaluator failure wraps exactly one of these.
var (
	ErrMalformedOperation    = errors.New("chainledger: malformed operation")
	ErrInsufficientAuthority = errors.New("chainledger: insufficient authority")
	ErrInsufficientResource  = errors.New("chainledger: insufficient resource")
	ErrInvariantViolation    = errors.New("chainledger: invariant violation")
	ErrNotFound              = errors.New("chainledger: not found")
	ErrDuplicateRequest      = errors.New("chainledger: duplicate request")
)

// Engine errors.
var (
	ErrUnknownOperation    = fmt.Errorf("%w: unknown operation type", ErrMalformedOperation)
	ErrBlockOutOfOrder     = errors.New("chainledger: block does not extend head")
	ErrNoReversibleBlock   = errors.New("chainledger: no reversible block to pop")
	ErrLedgerClosed        = errors.New("chainledger: ledger is closed")
	ErrInvalidQuery        = errors.New("chainledger: invalid query parameter")
	ErrTransactionExpired  = fmt.Errorf("%w: transaction expired", ErrMalformedOperation)
	ErrTransactionTooLarge = fmt.Errorf("%w: transaction exceeds size limit", ErrInsufficientResource)
)

// Account errors
var (
	ErrAccountNotFound    = fmt.Errorf("%w: account", ErrNotFound)
	ErrAccountExists      = fmt.Errorf("%w: account name already taken", ErrInvariantViolation)
	ErrAuthorityNotFound  = fmt.Errorf("%w: account authority", ErrNotFound)
	ErrInsufficientFunds  = fmt.Errorf("%w: balance too low", ErrInsufficientResource)
	ErrOwnerUpdateTooSoon = fmt.Errorf("%w: owner authority updated too recently", ErrInsufficientResource)
	ErrProxyChainTooLong  = fmt.Errorf("%w: proxy chain exceeds recursion depth", ErrInvariantViolation)
	ErrProxyCycle         = fmt.Errorf("%w: proxy chain loops back to account", ErrInvariantViolation)
)

// Vesting and delegation errors
var (
	ErrInsufficientVesting    = fmt.Errorf("%w: available vesting shares too low", ErrInsufficientResource)
	ErrDelegationNotFound     = fmt.Errorf("%w: vesting delegation", ErrNotFound)
	ErrDelegationLocked       = fmt.Errorf("%w: delegation cannot be decreased before its minimum time", ErrInsufficientResource)
	ErrDelegationUnchanged    = fmt.Errorf("%w: delegation amount unchanged", ErrMalformedOperation)
	ErrDelegationTermsChanged = fmt.Errorf("%w: interest rate and payout strategy are fixed for an existing delegation", ErrInvariantViolation)
	ErrWithdrawExceeded       = fmt.Errorf("%w: withdrawn would exceed to_withdraw", ErrInvariantViolation)
)

// Bandwidth errors
var (
	ErrBandwidthExceeded = fmt.Errorf("%w: bandwidth allowance exceeded", ErrInsufficientResource)
)

// Recovery errors
var (
	ErrRecoveryRequestExists    = fmt.Errorf("%w: account recovery request outstanding", ErrDuplicateRequest)
	ErrRecoveryRequestNotFound  = fmt.Errorf("%w: account recovery request", ErrNotFound)
	ErrRecoveryRequestMismatch  = fmt.Errorf("%w: new owner authority does not match request", ErrInvariantViolation)
	ErrRecoveryProofInvalid     = fmt.Errorf("%w: recent owner authority not in recovery window", ErrInsufficientAuthority)
	ErrNotRecoveryAccount       = fmt.Errorf("%w: not the designated recovery account", ErrInsufficientAuthority)
	ErrChangeRecoveryExists     = fmt.Errorf("%w: change recovery account request outstanding", ErrDuplicateRequest)
	ErrChangeRecoveryNotPending = fmt.Errorf("%w: no change recovery account request to cancel", ErrNotFound)
)

// ErrorKind names a taxonomy category.
type ErrorKind string

// Taxonomy kinds.
const (
	KindNone                  ErrorKind = ""
	KindMalformedOperation    ErrorKind = "malformed_operation"
	KindInsufficientAuthority ErrorKind = "insufficient_authority"
	KindInsufficientResource  ErrorKind = "insufficient_resource"
	KindInvariantViolation    ErrorKind = "invariant_violation"
	KindNotFound              ErrorKind = "not_found"
	KindDuplicateRequest      ErrorKind = "duplicate_request"
	KindInternal              ErrorKind = "internal"
)

// Kind maps err onto the taxonomy. Errors outside the taxonomy report KindInternal.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrMalformedOperation):
		return KindMalformedOperation
	case errors.Is(err, ErrInsufficientAuthority):
		return KindInsufficientAuthority
	case errors.Is(err, ErrInsufficientResource):
		return KindInsufficientResource
	case errors.Is(err, ErrInvariantViolation):
		return KindInvariantViolation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrDuplicateRequest):
		return KindDuplicateRequest
	default:
		return KindInternal
	}
}

// ValidationError represents a structural failure of an operation field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("chainledger: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrMalformedOperation.
func (e ValidationError) Unwrap() error { return ErrMalformedOperation }

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// TransactionError locates an evaluator failure inside a block.
type TransactionError struct {
	Index   int
	OpIndex int
	OpType  string
	Err     error
}

func (e *TransactionError) Error() string {
	if e.OpType == "" {
		return fmt.Sprintf("chainledger: transaction %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("chainledger: transaction %d operation %d (%s): %v", e.Index, e.OpIndex, e.OpType, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "chainledger: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("chainledger: %d errors occurred (first: %v)", len(e.Errors), e.Errors[0])
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// ErrOrNil returns nil when no errors were added.
func (e MultiError) ErrOrNil() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAuthorityError returns true if the error is an authority failure.
func IsAuthorityError(err error) bool {
	return errors.Is(err, ErrInsufficientAuthority)
}

// IsResourceError returns true if the error is related to balances, stake or bandwidth.
func IsResourceError(err error) bool {
	return errors.Is(err, ErrInsufficientResource)
}
