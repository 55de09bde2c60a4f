package exchange

import "errors"

// Sentinel errors for business-rule rejections and invariant failures.
// The API layer maps these to HTTP status codes.
var (
	// ErrInsufficientFunds rejects a buy whose required USD exceeds the
	// user's free balance. Nothing is mutated.
	ErrInsufficientFunds = errors.New("insufficient usd balance")

	// ErrInsufficientAsset rejects a sell when the user holds less of the
	// symbol than the order amount. Nothing is mutated.
	ErrInsufficientAsset = errors.New("insufficient asset balance")

	// ErrOrderNotFound is returned when an order does not exist or does
	// not belong to the caller.
	ErrOrderNotFound = errors.New("order not found")

	// ErrInconsistency signals a ledger invariant that should always hold
	// did not (e.g. a seller's locked asset missing at settlement). The
	// enclosing transaction is aborted and the error propagates; it must
	// never be swallowed.
	ErrInconsistency = errors.New("ledger inconsistency")
)

// ValidationError represents a request validation failure, detected
// before any lock is taken.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
