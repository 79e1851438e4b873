package chitchat

import (
	"context"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"ledgerbot/internal/storage"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store, rand.New(rand.NewSource(1)))
}

func TestKeywordReplyCountsPerUser(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	reply, ok := s.HandleMessage(ctx, "U1", "好累", "group")
	if !ok || !strings.Contains(reply, "1 次") {
		t.Fatalf("first reply: %q (%v)", reply, ok)
	}

	reply, _ = s.HandleMessage(ctx, "U1", "好累", "group")
	if !strings.Contains(reply, "2 次") {
		t.Fatalf("second reply: %q", reply)
	}

	// Counters are scoped per user.
	reply, _ = s.HandleMessage(ctx, "U2", "好累", "group")
	if !strings.Contains(reply, "1 次") {
		t.Fatalf("other user reply: %q", reply)
	}
}

func TestKeywordLookup(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	reply, ok := s.HandleMessage(ctx, "U1", "查詢 好累", "group")
	if !ok || !strings.Contains(reply, "共 0 次") {
		t.Fatalf("lookup before any use: %q (%v)", reply, ok)
	}

	s.HandleMessage(ctx, "U1", "好累", "group")
	reply, _ = s.HandleMessage(ctx, "U1", "查詢 好累", "group")
	if !strings.Contains(reply, "共 1 次") {
		t.Fatalf("lookup after use: %q", reply)
	}
}

func TestScoreAndQuotes(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	reply, ok := s.HandleMessage(ctx, "U1", "今日好棒指數", "group")
	if !ok || !strings.Contains(reply, "好棒指數") || !strings.Contains(reply, "%") {
		t.Fatalf("score reply: %q (%v)", reply, ok)
	}

	reply, ok = s.HandleMessage(ctx, "U1", "鼓勵我", "group")
	if !ok || reply == "" {
		t.Fatalf("quote reply: %q (%v)", reply, ok)
	}
}

func TestGroupOnly(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	if reply, ok := s.HandleMessage(ctx, "U1", "好累", "direct"); ok {
		t.Fatalf("direct chat must not chitchat: %q", reply)
	}
	if reply, ok := s.HandleMessage(ctx, "", "好累", "group"); ok {
		t.Fatalf("no user id must not chitchat: %q", reply)
	}
	if reply, ok := s.HandleMessage(ctx, "U1", "隨便說說", "group"); ok {
		t.Fatalf("unknown text must not reply: %q", reply)
	}
}

func TestCommentForCoversAllScores(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for score := 1; score <= 100; score++ {
		if commentFor(rng, score) == "" {
			t.Fatalf("no comment for score %d", score)
		}
	}
}
