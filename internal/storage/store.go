// Package storage is the durable ledger store: expense records, registered
// user targets, key/value settings, and the chitchat keyword counters, all in
// one SQLite database. Every exported operation is a single consistent unit
// and is safe under concurrent use from the webhook path and the reminder
// scheduler.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"ledgerbot/internal/core"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" && path != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if path == ":memory:" {
		// The pool would otherwise hand out connections to distinct
		// in-memory databases.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// RegisterUser upserts a user target; repeated calls only refresh last_seen_at.
func (s *Store) RegisterUser(ctx context.Context, userID string) error {
	if userID == "" {
		return core.ErrEmptyUserID
	}
	now := nowUTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_targets(user_id, created_at, last_seen_at)
		VALUES(?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET last_seen_at = excluded.last_seen_at`,
		userID, now, now)
	if err != nil {
		return fmt.Errorf("register user: %w", err)
	}
	return nil
}

// ListRegisteredUsers returns every registered user id, oldest first.
func (s *Store) ListRegisteredUsers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM user_targets ORDER BY created_at, user_id`)
	if err != nil {
		return nil, fmt.Errorf("list user targets: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user target: %w", err)
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// SetSetting upserts a settings key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings(key, value, updated_at) VALUES(?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, nowUTC())
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// GetSetting returns the value for key, or def when the key is absent.
func (s *Store) GetSetting(ctx context.Context, key, def string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

// AddExpense inserts a record and returns its freshly assigned id. Ids are
// monotonically increasing and never reused (AUTOINCREMENT).
func (s *Store) AddExpense(ctx context.Context, e core.ExpenseRecord) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses(user_id, amount, category, memo, spent_date, created_at)
		VALUES(?, ?, ?, ?, ?, ?)`,
		e.UserID, e.Amount.String(), e.Category, e.Memo, e.SpentDate.String(), nowUTC())
	if err != nil {
		return 0, fmt.Errorf("insert expense: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("expense id: %w", err)
	}

	slog.InfoContext(ctx, "expense recorded",
		"id", id,
		"user_id", e.UserID,
		"amount", e.Amount.String(),
		"category", e.Category,
		"spent_date", e.SpentDate.String())

	return id, nil
}

const expenseColumns = `id, user_id, amount, category, memo, spent_date, created_at`

// GetExpensesOn returns the user's records for that exact date in insertion
// order (ascending id).
func (s *Store) GetExpensesOn(ctx context.Context, userID string, day core.Date) ([]core.ExpenseRecord, error) {
	return s.queryExpenses(ctx, `
		SELECT `+expenseColumns+` FROM expenses
		WHERE user_id = ? AND spent_date = ?
		ORDER BY id`, userID, day.String())
}

// GetExpensesBetween returns the user's records with start <= spent_date <= end,
// ordered ascending by date then id (the reporting convention; every call site
// sums or lists chronologically).
func (s *Store) GetExpensesBetween(ctx context.Context, userID string, start, end core.Date) ([]core.ExpenseRecord, error) {
	return s.queryExpenses(ctx, `
		SELECT `+expenseColumns+` FROM expenses
		WHERE user_id = ? AND spent_date BETWEEN ? AND ?
		ORDER BY spent_date, id`, userID, start.String(), end.String())
}

// GetExpenseByID returns the user's record with that id, or core.ErrNotFound.
// Ids belonging to other users are not visible.
func (s *Store) GetExpenseByID(ctx context.Context, userID string, id int64) (core.ExpenseRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+expenseColumns+` FROM expenses
		WHERE user_id = ? AND id = ?`, userID, id)
	return scanExpense(row)
}

// GetMostRecent returns the user's record with the greatest spent_date,
// tie-broken by greatest id, or core.ErrNotFound.
func (s *Store) GetMostRecent(ctx context.Context, userID string) (core.ExpenseRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+expenseColumns+` FROM expenses
		WHERE user_id = ?
		ORDER BY spent_date DESC, id DESC LIMIT 1`, userID)
	return scanExpense(row)
}

// DeleteExpense permanently removes the user's record with that id and returns
// it. Cross-user ids report core.ErrNotFound and remove nothing.
func (s *Store) DeleteExpense(ctx context.Context, userID string, id int64) (core.ExpenseRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT `+expenseColumns+` FROM expenses
		WHERE user_id = ? AND id = ?`, userID, id)
	rec, err := scanExpense(row)
	if err != nil {
		return core.ExpenseRecord{}, err
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM expenses WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("delete expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ExpenseRecord{}, core.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("commit delete: %w", err)
	}

	slog.InfoContext(ctx, "expense deleted", "id", id, "user_id", userID)
	return rec, nil
}

// UpdateExpense applies a partial update inside one transaction and returns
// the record before and after. A record deleted between the read and the
// write reports core.ErrNotFound instead of being resurrected.
func (s *Store) UpdateExpense(ctx context.Context, userID string, id int64, patch core.ExpensePatch) (old, updated core.ExpenseRecord, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return old, updated, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT `+expenseColumns+` FROM expenses
		WHERE user_id = ? AND id = ?`, userID, id)
	old, err = scanExpense(row)
	if err != nil {
		return old, updated, err
	}

	updated = old
	if patch.Amount != nil {
		updated.Amount = *patch.Amount
	}
	if patch.Category != nil {
		updated.Category = *patch.Category
	}
	if patch.Memo != nil {
		updated.Memo = *patch.Memo
	}
	if err := updated.Validate(); err != nil {
		return old, updated, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE expenses SET amount = ?, category = ?, memo = ?, synced = 0
		WHERE user_id = ? AND id = ?`,
		updated.Amount.String(), updated.Category, updated.Memo, userID, id)
	if err != nil {
		return old, updated, fmt.Errorf("update expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return old, updated, core.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return old, updated, fmt.Errorf("commit update: %w", err)
	}

	slog.InfoContext(ctx, "expense updated", "id", id, "user_id", userID)
	return old, updated, nil
}

// IncrementKeywordCount bumps the per-user counter for a chitchat keyword and
// returns the new count.
func (s *Store) IncrementKeywordCount(ctx context.Context, userID, keyword string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO keyword_counts(user_id, keyword, count) VALUES(?, ?, 1)
		ON CONFLICT(user_id, keyword) DO UPDATE SET count = count + 1
		RETURNING count`, userID, keyword).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("increment keyword count: %w", err)
	}
	return count, nil
}

// GetKeywordCount returns the per-user counter for a chitchat keyword, zero
// when the user never said it.
func (s *Store) GetKeywordCount(ctx context.Context, userID, keyword string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT count FROM keyword_counts WHERE user_id = ? AND keyword = ?`,
		userID, keyword).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get keyword count: %w", err)
	}
	return count, nil
}

func (s *Store) queryExpenses(ctx context.Context, query string, args ...any) ([]core.ExpenseRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	var records []core.ExpenseRecord
	for rows.Next() {
		rec, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (core.ExpenseRecord, error) {
	var (
		rec       core.ExpenseRecord
		amount    string
		spentDate string
		createdAt string
	)
	err := row.Scan(&rec.ID, &rec.UserID, &amount, &rec.Category, &rec.Memo, &spentDate, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, core.ErrNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("scan expense: %w", err)
	}

	if rec.Amount, err = decimal.NewFromString(amount); err != nil {
		return rec, fmt.Errorf("stored amount %q: %w", amount, err)
	}
	if rec.SpentDate, err = core.ParseDate(spentDate); err != nil {
		return rec, fmt.Errorf("stored spent_date %q: %w", spentDate, err)
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return rec, fmt.Errorf("stored created_at %q: %w", createdAt, err)
	}
	return rec, nil
}
