package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ledgerbot/internal/amqp"
	"ledgerbot/internal/core"
	"ledgerbot/internal/sheets"
	"ledgerbot/internal/storage"
)

// MirrorWorker copies expense rows from SQLite into the configured sheet.
// It is driven by AMQP messages, with a periodic scan over unmirrored rows
// as a backup in case messages are lost.
type MirrorWorker struct {
	store     *storage.Store
	appender  sheets.ExpenseAppender
	batchSize int
}

func NewMirrorWorker(store *storage.Store, appender sheets.ExpenseAppender, batchSize int) *MirrorWorker {
	return &MirrorWorker{
		store:     store,
		appender:  appender,
		batchSize: batchSize,
	}
}

// HandleRecordedMessage processes a single mirror job from AMQP. A record
// deleted before the worker got to it is not an error.
func (w *MirrorWorker) HandleRecordedMessage(ctx context.Context, msg *amqp.ExpenseRecordedMessage) error {
	slog.InfoContext(ctx, "Processing mirror message", "id", msg.ID)

	record, err := w.store.GetExpense(ctx, msg.ID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			slog.InfoContext(ctx, "Expense deleted before mirroring, skipping", "id", msg.ID)
			return nil
		}
		return fmt.Errorf("get expense from storage: %w", err)
	}

	if err := w.mirror(ctx, record); err != nil {
		return fmt.Errorf("mirror expense: %w", err)
	}
	return nil
}

// ProcessPending mirrors rows the message path missed.
func (w *MirrorWorker) ProcessPending(ctx context.Context) error {
	return w.processPendingBatch(ctx, w.batchSize)
}

// StartupCheck drains the pending backlog with a larger batch. Useful after
// worker downtime.
func (w *MirrorWorker) StartupCheck(ctx context.Context) error {
	return w.processPendingBatch(ctx, w.batchSize*5)
}

func (w *MirrorWorker) processPendingBatch(ctx context.Context, limit int) error {
	pending, err := w.store.GetPendingMirrors(ctx, limit)
	if err != nil {
		return fmt.Errorf("get pending mirrors: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending mirrors", "count", len(pending))

	mirrored := 0
	failed := 0
	for _, p := range pending {
		record, err := w.store.GetExpense(ctx, p.ID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to get expense", "id", p.ID, "error", err)
			if err := w.store.MarkMirrorError(ctx, p.ID); err != nil {
				slog.ErrorContext(ctx, "Failed to mark mirror error", "id", p.ID, "error", err)
			}
			failed++
			continue
		}

		if err := w.mirror(ctx, record); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror expense", "id", p.ID, "error", err)
			failed++
			continue
		}
		mirrored++
	}

	slog.InfoContext(ctx, "Pending mirror pass completed",
		"total", len(pending),
		"mirrored", mirrored,
		"failed", failed)
	return nil
}

func (w *MirrorWorker) mirror(ctx context.Context, record core.ExpenseRecord) error {
	if err := w.appender.AppendExpense(ctx, record); err != nil {
		if markErr := w.store.MarkMirrorError(ctx, record.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark mirror error", "id", record.ID, "error", markErr)
		}
		return fmt.Errorf("append to sheet: %w", err)
	}

	if err := w.store.MarkMirrored(ctx, record.ID); err != nil {
		return fmt.Errorf("mark mirrored: %w", err)
	}

	slog.InfoContext(ctx, "Mirrored expense", "id", record.ID)
	return nil
}
