package line

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplySendsTokenAndText(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody replyRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(Config{ChannelToken: "token-123", Endpoint: srv.URL})
	require.NoError(t, c.Reply(context.Background(), "reply-token", "你好"))

	assert.Equal(t, "/v2/bot/message/reply", gotPath)
	assert.Equal(t, "Bearer token-123", gotAuth)
	assert.Equal(t, "reply-token", gotBody.ReplyToken)
	require.Len(t, gotBody.Messages, 1)
	assert.Equal(t, "text", gotBody.Messages[0].Type)
	assert.Equal(t, "你好", gotBody.Messages[0].Text)
}

func TestPushAddressesUser(t *testing.T) {
	var gotBody pushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(Config{ChannelToken: "token-123", Endpoint: srv.URL})
	require.NoError(t, c.Push(context.Background(), "Uabc", "提醒"))

	assert.Equal(t, "Uabc", gotBody.To)
}

func TestPostSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"message":"invalid token"}`)
	}))
	defer srv.Close()

	c := NewClient(Config{ChannelToken: "bad", Endpoint: srv.URL})
	err := c.Reply(context.Background(), "tok", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "invalid token")
}

func TestValidateSignature(t *testing.T) {
	body := []byte(`{"events":[]}`)
	secret := "channel-secret"

	sig := SignBody(secret, body)
	assert.True(t, ValidateSignature(secret, sig, body))
	assert.False(t, ValidateSignature("other-secret", sig, body))
	assert.False(t, ValidateSignature(secret, sig, []byte(`{"events":[{}]}`)))
	assert.False(t, ValidateSignature(secret, "not base64 !!!", body))
}

func TestParseWebhookPayload(t *testing.T) {
	raw := []byte(`{
		"destination": "Udest",
		"events": [{
			"type": "message",
			"replyToken": "rt-1",
			"source": {"type": "group", "userId": "Ua", "groupId": "Ga"},
			"message": {"type": "text", "id": "m1", "text": "記帳 120 午餐"}
		}]
	}`)

	payload, err := ParseWebhookPayload(raw)
	require.NoError(t, err)
	require.Len(t, payload.Events, 1)

	ev := payload.Events[0]
	assert.True(t, ev.IsTextMessage())
	assert.Equal(t, "rt-1", ev.ReplyToken)
	assert.Equal(t, "group", ev.Source.Type)
	assert.Equal(t, "Ua", ev.Source.UserID)
	assert.Equal(t, "記帳 120 午餐", ev.Message.Text)
}

func TestIsTextMessageRejectsOtherEvents(t *testing.T) {
	assert.False(t, Event{Type: "follow"}.IsTextMessage())
	assert.False(t, Event{Type: "message", Message: Message{Type: "sticker"}}.IsTextMessage())
}
