package model

import "errors"

// Error taxonomy of the checkout engine. OutOfStock and PaymentDeclined are
// expected workflow outcomes, not faults; the rest classify contention and
// compensation failures so the recorder can keep them apart.
var (
	ErrOutOfStock          = errors.New("out of stock")
	ErrPaymentDeclined     = errors.New("payment declined")
	ErrContentionTimeout   = errors.New("contention timeout")
	ErrConflictExhausted   = errors.New("conflict retries exhausted")
	ErrCompensationFailure = errors.New("compensation failure")
	ErrDriverFault         = errors.New("driver fault")
)

// ErrorKind maps a taxonomy error to the stable string recorded on outcome
// records. Unknown errors are classified as driver faults.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrOutOfStock):
		return "out_of_stock"
	case errors.Is(err, ErrPaymentDeclined):
		return "payment_declined"
	case errors.Is(err, ErrContentionTimeout):
		return "contention_timeout"
	case errors.Is(err, ErrConflictExhausted):
		return "conflict_exhausted"
	case errors.Is(err, ErrCompensationFailure):
		return "compensation_failure"
	default:
		return "driver_fault"
	}
}
