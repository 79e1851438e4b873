// Package bot interprets the command grammar embedded in free-text messages
// and turns matched commands into ledger operations and reply text.
package bot

import (
	"context"
	"log/slog"
	"strings"

	"ledgerbot/internal/clock"
	"ledgerbot/internal/storage"
)

// Event is one inbound message, already stripped of transport envelope.
type Event struct {
	Text string
	// UserID is empty when the platform did not disclose a user identity;
	// only the stateless help command is served then.
	UserID string
	// ConversationKind is "direct", "group", or whatever else the platform
	// reports. The interpreter itself does not branch on it; the chitchat
	// collaborator does.
	ConversationKind string
}

// EventPublisher announces a freshly recorded expense to the mirror worker.
// A nil publisher disables mirroring.
type EventPublisher interface {
	PublishExpenseRecorded(ctx context.Context, id int64) error
}

// Service dispatches messages against the ordered command table.
type Service struct {
	store    *storage.Store
	clock    *clock.Clock
	events   EventPublisher
	commands []command
}

// command is one entry of the grammar: try reports whether the trimmed text
// matched, and if so the reply. Priority is the slice order; the first match
// wins. A returned error is a storage fault, not a parse failure.
type command struct {
	name string
	try  func(ctx context.Context, userID, text string) (reply string, matched bool, err error)
}

func NewService(store *storage.Store, clk *clock.Clock, events EventPublisher) *Service {
	s := &Service{store: store, clock: clk, events: events}
	// Fixed phrases come before prefix patterns so 刪除最後 is never
	// shadowed by 刪除 <id>.
	s.commands = []command{
		{"help", s.tryHelp},
		{"record", s.tryRecord},
		{"week_total", s.tryWeekTotal},
		{"month_total", s.tryMonthTotal},
		{"query_date", s.tryQueryDate},
		{"category_stats", s.tryCategoryStats},
		{"delete_last", s.tryDeleteLast},
		{"delete", s.tryDelete},
		{"modify", s.tryModify},
		{"reminder_toggle", s.tryReminderToggle},
	}
	return s
}

// HandleMessage runs the raw message through the command table. The second
// return is false when nothing matched and the caller's own fallback (keyword
// replies, quotes) may take over. Storage faults never escape: they resolve
// to a generic failure reply and a log line.
func (s *Service) HandleMessage(ctx context.Context, ev Event) (string, bool) {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return "", false
	}

	if ev.UserID == "" {
		// No key to scope ledger operations by.
		if reply, matched, _ := s.tryHelp(ctx, "", text); matched {
			return reply, true
		}
		return "", false
	}

	// Registration is a side effect of any interaction, before dispatch.
	if err := s.store.RegisterUser(ctx, ev.UserID); err != nil {
		slog.ErrorContext(ctx, "register user failed", "user_id", ev.UserID, "error", err)
		return replyStorageFailure, true
	}

	for _, cmd := range s.commands {
		reply, matched, err := cmd.try(ctx, ev.UserID, text)
		if !matched {
			continue
		}
		if err != nil {
			slog.ErrorContext(ctx, "command failed",
				"command", cmd.name, "user_id", ev.UserID, "error", err)
			return replyStorageFailure, true
		}
		return reply, true
	}
	return "", false
}
