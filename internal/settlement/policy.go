package settlement

import (
	"fmt"

	"github.com/shopspring/decimal"

	"magistral/backend/internal/domain"
)

// NextStatus derives the status a sale must have for the given due amount and
// settled total. Closed and cancelled sales are frozen and yield an error
// instead of a transition. A total above the due amount is never a valid
// state.
func NextStatus(due decimal.Decimal, settled decimal.Decimal, current domain.VendaStatus) (domain.VendaStatus, error) {
	switch current {
	case domain.StatusFechado:
		return current, ErrSaleClosed
	case domain.StatusCancelado:
		return current, ErrSaleCancelled
	case domain.StatusRegistrado, domain.StatusPagoParcial, domain.StatusPago:
	default:
		return current, fmt.Errorf("unknown sale status %q", current)
	}

	due = domain.RoundCents(due)
	settled = domain.RoundCents(settled)
	switch {
	case settled.IsNegative():
		return current, fmt.Errorf("%w: settled total is negative", ErrInvalidAmount)
	case settled.GreaterThan(due):
		return current, overSettlement(due, settled)
	case settled.IsZero():
		return domain.StatusRegistrado, nil
	case settled.LessThan(due):
		return domain.StatusPagoParcial, nil
	default:
		return domain.StatusPago, nil
	}
}

// Remaining is the amount still owed. It is never negative.
func Remaining(due decimal.Decimal, settled decimal.Decimal) decimal.Decimal {
	rest := domain.RoundCents(due).Sub(domain.RoundCents(settled))
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

// checkMutable rejects ledger changes on frozen sales.
func checkMutable(sale domain.Venda) error {
	switch sale.Status {
	case domain.StatusFechado:
		return ErrSaleClosed
	case domain.StatusCancelado:
		return ErrSaleCancelled
	}
	return nil
}

func overSettlement(due decimal.Decimal, settled decimal.Decimal) error {
	return fmt.Errorf("%w: due %s, would settle %s", ErrOverSettlement, due.StringFixed(2), settled.StringFixed(2))
}
