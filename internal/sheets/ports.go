package sheets

import (
	"context"

	"ledgerbot/internal/core"
)

// ExpenseAppender is the outbound port for the mirror sink. The worker
// appends one row per expense record.
type ExpenseAppender interface {
	AppendExpense(ctx context.Context, e core.ExpenseRecord) error
}
