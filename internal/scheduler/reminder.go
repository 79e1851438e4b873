// Package scheduler runs the daily no-expense reminder scan: once per
// calendar day at a fixed local wall-clock time, every registered user with
// no ledger entry for that day gets a push nudge.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ledgerbot/internal/clock"
	"ledgerbot/internal/core"
	"ledgerbot/internal/storage"
)

// Notifier delivers one outbound push message. Implementations must treat a
// rejected delivery (blocked bot, dead user id) as an ordinary error.
type Notifier interface {
	Notify(ctx context.Context, userID, text string) error
}

const reminderTemplate = "🧾 今天（%s）還沒記帳喔～\n回覆：記帳 金額 類別 [備註]"

// Reminder is the scheduler service object. Construct with NewReminder,
// then Start once; Stop is idempotent.
type Reminder struct {
	store    *storage.Store
	notifier Notifier
	clock    *clock.Clock

	hour, minute  int
	notifyTimeout time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewReminder(store *storage.Store, notifier Notifier, clk *clock.Clock, hour, minute int, notifyTimeout time.Duration) *Reminder {
	if notifyTimeout <= 0 {
		notifyTimeout = 10 * time.Second
	}
	return &Reminder{
		store:         store,
		notifier:      notifier,
		clock:         clk,
		hour:          hour,
		minute:        minute,
		notifyTimeout: notifyTimeout,
	}
}

// Start launches the timer loop. Calling Start on a running scheduler is a
// no-op.
func (r *Reminder) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done
	go r.run(ctx, done)

	slog.InfoContext(ctx, "reminder scheduler started",
		"fire_at", fmt.Sprintf("%02d:%02d", r.hour, r.minute),
		"timezone", r.clock.Location().String())
}

// Stop halts the timer loop and waits for an in-flight scan to finish.
func (r *Reminder) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// run owns its done channel as a parameter; Stop clears the shared field, so
// the goroutine must never read it back.
func (r *Reminder) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(r.untilNextFire())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if err := r.Scan(ctx); err != nil && ctx.Err() == nil {
				slog.ErrorContext(ctx, "reminder scan failed", "error", err)
			}
			timer.Reset(r.untilNextFire())
		}
	}
}

// untilNextFire returns the duration until the next hour:minute wall-clock
// time in the fixed timezone. No store lock is held while waiting.
func (r *Reminder) untilNextFire() time.Duration {
	now := r.clock.Now()
	next := r.NextFire(now)
	return next.Sub(now)
}

// NextFire computes the first hour:minute instant strictly after now.
func (r *Reminder) NextFire(now time.Time) time.Time {
	loc := r.clock.Location()
	now = now.In(loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), r.hour, r.minute, 0, 0, loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Scan is one reminder pass. When the persisted flag disables reminders the
// pass is a successful no-op. One user's delivery failure or timeout is
// logged and skipped; it never aborts the remaining users.
func (r *Reminder) Scan(ctx context.Context) error {
	enabled, err := r.store.GetSetting(ctx, core.ReminderEnabledKey, "1")
	if err != nil {
		return fmt.Errorf("read reminder setting: %w", err)
	}
	if enabled != "1" {
		slog.InfoContext(ctx, "reminder scan skipped, disabled by setting")
		return nil
	}

	today := r.clock.Today()
	users, err := r.store.ListRegisteredUsers(ctx)
	if err != nil {
		return fmt.Errorf("list registered users: %w", err)
	}

	notified := 0
	for _, userID := range users {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		recs, err := r.store.GetExpensesOn(ctx, userID, today)
		if err != nil {
			slog.ErrorContext(ctx, "reminder lookup failed", "user_id", userID, "error", err)
			continue
		}
		if len(recs) > 0 {
			continue
		}

		if err := r.notifyUser(ctx, userID, today); err != nil {
			slog.WarnContext(ctx, "reminder push failed, skipping user",
				"user_id", userID, "error", err)
			continue
		}
		notified++
	}

	slog.InfoContext(ctx, "reminder scan complete",
		"date", today.String(), "users", len(users), "notified", notified)
	return nil
}

func (r *Reminder) notifyUser(ctx context.Context, userID string, today core.Date) error {
	// Bounded per user so one unresponsive delivery cannot stall the scan.
	ctx, cancel := context.WithTimeout(ctx, r.notifyTimeout)
	defer cancel()
	return r.notifier.Notify(ctx, userID, fmt.Sprintf(reminderTemplate, today))
}
