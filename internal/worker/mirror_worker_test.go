package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerbot/internal/amqp"
	"ledgerbot/internal/core"
	"ledgerbot/internal/sheets/memory"
	"ledgerbot/internal/storage"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "worker_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func addExpense(t *testing.T, store *storage.Store, userID, amount, category string) int64 {
	t.Helper()
	id, err := store.AddExpense(context.Background(), core.ExpenseRecord{
		UserID:    userID,
		Amount:    decimal.RequireFromString(amount),
		Category:  category,
		SpentDate: core.NewDate(2024, 3, 5),
	})
	require.NoError(t, err)
	return id
}

func TestHandleRecordedMessageMirrorsRow(t *testing.T) {
	store := newTestStore(t)
	sink := memory.New()
	w := NewMirrorWorker(store, sink, 10)

	id := addExpense(t, store, "Ua", "120", "午餐")

	err := w.HandleRecordedMessage(context.Background(), &amqp.ExpenseRecordedMessage{ID: id})
	require.NoError(t, err)

	items := sink.Items()
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].ID)
	assert.Equal(t, "午餐", items[0].Category)

	pending, err := store.GetPendingMirrors(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestHandleRecordedMessageSkipsDeletedRow(t *testing.T) {
	store := newTestStore(t)
	sink := memory.New()
	w := NewMirrorWorker(store, sink, 10)

	id := addExpense(t, store, "Ua", "120", "午餐")
	_, err := store.DeleteExpense(context.Background(), "Ua", id)
	require.NoError(t, err)

	err = w.HandleRecordedMessage(context.Background(), &amqp.ExpenseRecordedMessage{ID: id})
	require.NoError(t, err)
	assert.Empty(t, sink.Items())
}

func TestHandleRecordedMessageMarksErrorOnAppendFailure(t *testing.T) {
	store := newTestStore(t)
	sink := memory.New()
	sink.FailWith(errors.New("quota exceeded"))
	w := NewMirrorWorker(store, sink, 10)

	id := addExpense(t, store, "Ua", "120", "午餐")

	err := w.HandleRecordedMessage(context.Background(), &amqp.ExpenseRecordedMessage{ID: id})
	require.Error(t, err)

	// Errored rows leave the pending scan until an operator intervenes.
	pending, err := store.GetPendingMirrors(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestProcessPendingMirrorsBacklog(t *testing.T) {
	store := newTestStore(t)
	sink := memory.New()
	w := NewMirrorWorker(store, sink, 10)

	addExpense(t, store, "Ua", "120", "午餐")
	addExpense(t, store, "Ub", "30", "交通")

	require.NoError(t, w.ProcessPending(context.Background()))

	assert.Len(t, sink.Items(), 2)
	pending, err := store.GetPendingMirrors(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestProcessPendingContinuesPastFailures(t *testing.T) {
	store := newTestStore(t)
	sink := memory.New()
	w := NewMirrorWorker(store, sink, 10)

	addExpense(t, store, "Ua", "120", "午餐")

	sink.FailWith(errors.New("quota exceeded"))
	require.NoError(t, w.ProcessPending(context.Background()))
	assert.Empty(t, sink.Items())

	// Errored rows are excluded from later scans.
	sink.FailWith(nil)
	require.NoError(t, w.ProcessPending(context.Background()))
	assert.Empty(t, sink.Items())
}

func TestStartupCheckDrainsBacklog(t *testing.T) {
	store := newTestStore(t)
	sink := memory.New()
	w := NewMirrorWorker(store, sink, 2)

	for i := 0; i < 5; i++ {
		addExpense(t, store, "Ua", "10", "食物")
	}

	// Batch of 2, startup check uses 5x.
	require.NoError(t, w.StartupCheck(context.Background()))
	assert.Len(t, sink.Items(), 5)
}

func TestUpdateRequeuesRowForMirroring(t *testing.T) {
	store := newTestStore(t)
	sink := memory.New()
	w := NewMirrorWorker(store, sink, 10)

	id := addExpense(t, store, "Ua", "120", "午餐")
	require.NoError(t, w.ProcessPending(context.Background()))
	require.Len(t, sink.Items(), 1)

	newAmount := decimal.RequireFromString("150")
	_, _, err := store.UpdateExpense(context.Background(), "Ua", id, core.ExpensePatch{Amount: &newAmount})
	require.NoError(t, err)

	require.NoError(t, w.ProcessPending(context.Background()))
	items := sink.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "150", items[1].Amount.String())
}
