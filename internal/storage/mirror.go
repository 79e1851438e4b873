package storage

import (
	"context"
	"fmt"
	"log/slog"

	"ledgerbot/internal/core"
)

// PendingMirror identifies an expense not yet mirrored to the external sheet.
type PendingMirror struct {
	ID int64
}

// GetPendingMirrors returns ids of expenses awaiting mirroring, oldest first.
// This backs the worker's periodic scan for messages lost in transit.
func (s *Store) GetPendingMirrors(ctx context.Context, limit int) ([]PendingMirror, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM expenses
		WHERE synced = 0 AND sync_error = 0
		ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending mirrors: %w", err)
	}
	defer rows.Close()

	var pending []PendingMirror
	for rows.Next() {
		var p PendingMirror
		if err := rows.Scan(&p.ID); err != nil {
			return nil, fmt.Errorf("scan pending mirror: %w", err)
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// GetExpense fetches a record by id without user scoping. Only the mirror
// worker uses this; every user-facing path goes through GetExpenseByID.
func (s *Store) GetExpense(ctx context.Context, id int64) (core.ExpenseRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id)
	return scanExpense(row)
}

// MarkMirrored records that an expense reached the external sheet.
func (s *Store) MarkMirrored(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE expenses SET synced = 1, sync_error = 0 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark mirrored: %w", err)
	}
	slog.InfoContext(ctx, "expense marked as mirrored", "id", id)
	return nil
}

// MarkMirrorError flags an expense so the pending scan stops retrying it.
func (s *Store) MarkMirrorError(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE expenses SET sync_error = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark mirror error: %w", err)
	}
	slog.WarnContext(ctx, "expense marked with mirror error", "id", id)
	return nil
}
