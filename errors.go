package kapytal

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every error returned by the RecordKeeper wraps one of them
// so that callers can use errors.Is.
var (
	// ErrAlreadyExists reports a uniqueness violation on a name, path or code.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotFound reports a lookup miss.
	ErrNotFound = errors.New("not found")
	// ErrInvalidOperation reports an operation that would break a structural invariant.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrCurrency reports a currency mismatch.
	ErrCurrency = errors.New("currency mismatch")
	// ErrTransferSameAccount reports a transfer whose sender is its recipient.
	ErrTransferSameAccount = fmt.Errorf("%w: sender and recipient are the same account", ErrInvalidOperation)
	// ErrUnrelatedAccount reports an account that does not settle a transaction.
	ErrUnrelatedAccount = fmt.Errorf("%w: unrelated account", ErrInvalidOperation)
	// ErrUnrelatedTransaction reports a refund applied to a transaction it does not belong to.
	ErrUnrelatedTransaction = fmt.Errorf("%w: unrelated transaction", ErrInvalidOperation)
	// ErrRefundPrecedesTransaction reports a refund dated before the refunded expense.
	ErrRefundPrecedesTransaction = errors.New("refund precedes the refunded transaction")
	// ErrInvalidValue reports malformed primitive input.
	ErrInvalidValue = errors.New("invalid value")
	// ErrConversionNotFound reports a missing path or rate between two currencies.
	ErrConversionNotFound = errors.New("conversion factor not found")
)

// alreadyExists returns an error wrapping ErrAlreadyExists.
func alreadyExists(kind, key string) error {
	return fmt.Errorf("%s %q: %w", kind, key, ErrAlreadyExists)
}

// notFound returns an error wrapping ErrNotFound.
func notFound(kind, key string) error {
	return fmt.Errorf("%s %q: %w", kind, key, ErrNotFound)
}

// invalidf returns an error wrapping ErrInvalidValue.
func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidValue, fmt.Sprintf(format, args...))
}

// forbiddenf returns an error wrapping ErrInvalidOperation.
func forbiddenf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidOperation, fmt.Sprintf(format, args...))
}
