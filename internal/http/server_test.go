package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerbot/internal/bot"
	"ledgerbot/internal/clock"
	"ledgerbot/internal/line"
	"ledgerbot/internal/storage"
)

const testSecret = "test-channel-secret"

type capturedReply struct {
	replyToken string
	text       string
}

type fakeReplier struct {
	replies []capturedReply
}

func (f *fakeReplier) Reply(_ context.Context, replyToken, text string) error {
	f.replies = append(f.replies, capturedReply{replyToken, text})
	return nil
}

func newTestServer(t *testing.T) (*Server, *fakeReplier) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "server_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clk, err := clock.NewAt(clock.DefaultTimezone, func() time.Time {
		return time.Date(2024, 3, 5, 12, 0, 0, 0, time.FixedZone("CST", 8*3600))
	})
	require.NoError(t, err)

	replier := &fakeReplier{}
	botSvc := bot.NewService(store, clk, nil)
	return NewServer(":0", testSecret, botSvc, nil, replier), replier
}

func webhookBody(t *testing.T, events ...line.Event) []byte {
	t.Helper()
	data, err := json.Marshal(line.WebhookPayload{Events: events})
	require.NoError(t, err)
	return data
}

func postWebhook(srv *Server, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/callback", strings.NewReader(string(body)))
	req.Header.Set("X-Line-Signature", signature)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func textEvent(userID, sourceType, text string) line.Event {
	return line.Event{
		Type:       "message",
		ReplyToken: "rt-" + userID,
		Source:     line.Source{Type: sourceType, UserID: userID},
		Message:    line.Message{Type: "text", Text: text},
	}
}

func TestCallbackRejectsBadSignature(t *testing.T) {
	srv, replier := newTestServer(t)
	body := webhookBody(t, textEvent("Ua", "user", "記帳 120 午餐"))

	rec := postWebhook(srv, body, "bogus-signature")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, replier.replies)
}

func TestCallbackRejectsNonPost(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/callback", nil)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCallbackDispatchesCommand(t *testing.T) {
	srv, replier := newTestServer(t)
	body := webhookBody(t, textEvent("Ua", "user", "記帳 120 午餐 牛肉麵"))

	rec := postWebhook(srv, body, line.SignBody(testSecret, body))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, replier.replies, 1)
	assert.Equal(t, "rt-Ua", replier.replies[0].replyToken)
	assert.Contains(t, replier.replies[0].text, "已記帳")
	assert.Contains(t, replier.replies[0].text, "午餐")
}

func TestCallbackIgnoresUnmatchedText(t *testing.T) {
	srv, replier := newTestServer(t)
	body := webhookBody(t, textEvent("Ua", "user", "今天天氣如何"))

	rec := postWebhook(srv, body, line.SignBody(testSecret, body))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, replier.replies)
}

func TestCallbackIgnoresNonTextEvents(t *testing.T) {
	srv, replier := newTestServer(t)
	body := webhookBody(t,
		line.Event{Type: "follow", Source: line.Source{Type: "user", UserID: "Ua"}},
		line.Event{
			Type:       "message",
			ReplyToken: "rt-sticker",
			Source:     line.Source{Type: "user", UserID: "Ua"},
			Message:    line.Message{Type: "sticker", ID: "m2"},
		},
	)

	rec := postWebhook(srv, body, line.SignBody(testSecret, body))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, replier.replies)
}

func TestCallbackHandlesMultipleEvents(t *testing.T) {
	srv, replier := newTestServer(t)
	body := webhookBody(t,
		textEvent("Ua", "user", "記帳 120 午餐"),
		textEvent("Ub", "user", "help"),
	)

	rec := postWebhook(srv, body, line.SignBody(testSecret, body))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, replier.replies, 2)
	assert.Equal(t, "rt-Ua", replier.replies[0].replyToken)
	assert.Equal(t, "rt-Ub", replier.replies[1].replyToken)
}

func TestGroupEventsMapToGroupKind(t *testing.T) {
	srv, replier := newTestServer(t)
	ev := textEvent("Ua", "group", "記帳 60 晚餐")
	ev.Source.GroupID = "Ga"
	body := webhookBody(t, ev)

	rec := postWebhook(srv, body, line.SignBody(testSecret, body))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, replier.replies, 1)
	assert.Contains(t, replier.replies[0].text, "已記帳")
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRootServesStatusPage(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "running")
}
