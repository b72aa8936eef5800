package settlement

import (
	"context"
	"errors"
	"fmt"

	"magistral/backend/internal/lock"
	"magistral/backend/internal/store"
)

var (
	ErrInvalidAmount              = errors.New("settlement amount must be greater than zero")
	ErrInvalidType                = errors.New("invalid settlement type")
	ErrSaleClosed                 = errors.New("sale is closed")
	ErrSaleCancelled              = errors.New("sale is cancelled")
	ErrOverSettlement             = errors.New("settlement exceeds the amount due")
	ErrNotEligibleForClosure      = errors.New("sale is not eligible for closure")
	ErrNotEligibleForCancellation = errors.New("sale is not eligible for closure cancellation")
	ErrNotFound                   = store.ErrNotFound

	// ErrNothingToSettle is an InvalidAmount: the remaining balance is zero.
	ErrNothingToSettle = fmt.Errorf("%w: sale has no remaining balance", ErrInvalidAmount)
)

var domainErrors = []error{
	ErrInvalidAmount,
	ErrInvalidType,
	ErrSaleClosed,
	ErrSaleCancelled,
	ErrOverSettlement,
	ErrNotEligibleForClosure,
	ErrNotEligibleForCancellation,
	ErrNotFound,
}

// IsDomainError reports whether err is a business rule rejection as opposed
// to an infrastructure failure.
func IsDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

const genericFailureReason = "unexpected error while processing sale"

// FailureReason turns a per-item error into the human readable reason used in
// bulk results. Infrastructure errors never leak their text.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "operation cancelled before this sale was processed"
	case errors.Is(err, lock.ErrNotObtained):
		return "sale is being modified by another operation"
	case errors.Is(err, store.ErrConflict):
		return "sale was modified concurrently, retry"
	case errors.Is(err, store.ErrNotFound):
		return "sale not found"
	case IsDomainError(err):
		return err.Error()
	default:
		return genericFailureReason
	}
}
