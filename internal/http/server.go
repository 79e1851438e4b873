package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"ledgerbot/internal/bot"
	"ledgerbot/internal/chitchat"
	"ledgerbot/internal/line"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// Replier answers a webhook event using its reply token. Implemented by
// line.Client.
type Replier interface {
	Reply(ctx context.Context, replyToken, text string) error
}

type Server struct {
	http.Server

	channelSecret string
	bot           *bot.Service
	chitchat      *chitchat.Service
	replier       Replier
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(addr, channelSecret string, botSvc *bot.Service, chatSvc *chitchat.Service, replier Replier) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		channelSecret: channelSecret,
		bot:           botSvc,
		chitchat:      chatSvc,
		replier:       replier,
	}

	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/callback", s.handleCallback)

	return s
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	io.WriteString(w, "ledgerbot is running")
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "ok")
}

// handleCallback receives LINE webhook deliveries. The platform retries on
// non-2xx, so per-event failures are logged and swallowed after the
// signature and payload checks pass.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("X-Line-Signature")
	if !line.ValidateSignature(s.channelSecret, signature, body) {
		slog.WarnContext(r.Context(), "Webhook signature validation failed")
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	payload, err := line.ParseWebhookPayload(body)
	if err != nil {
		slog.WarnContext(r.Context(), "Webhook payload parse failed", "error", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	for _, ev := range payload.Events {
		s.handleEvent(r.Context(), ev)
	}

	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "OK")
}

func (s *Server) handleEvent(ctx context.Context, ev line.Event) {
	if !ev.IsTextMessage() {
		return
	}

	kind := "direct"
	if ev.Source.Type == "group" || ev.Source.Type == "room" {
		kind = "group"
	}

	reply, matched := s.bot.HandleMessage(ctx, bot.Event{
		Text:             ev.Message.Text,
		UserID:           ev.Source.UserID,
		ConversationKind: kind,
	})
	if !matched && s.chitchat != nil {
		reply, matched = s.chitchat.HandleMessage(ctx, ev.Source.UserID, ev.Message.Text, kind)
	}
	if !matched || reply == "" {
		return
	}

	if err := s.replier.Reply(ctx, ev.ReplyToken, reply); err != nil {
		slog.ErrorContext(ctx, "Failed to reply to webhook event",
			"error", err,
			"user_id", ev.Source.UserID)
	}
}
