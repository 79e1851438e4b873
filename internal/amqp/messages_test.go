package amqp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExpenseRecordedMessage(t *testing.T) {
	msg := NewExpenseRecordedMessage(12345)

	assert.Equal(t, int64(12345), msg.ID)
	assert.False(t, msg.Timestamp.IsZero())
	assert.Less(t, time.Since(msg.Timestamp), time.Second)
}

func TestExpenseRecordedMessageJSON(t *testing.T) {
	msg := &ExpenseRecordedMessage{
		ID:        42,
		Timestamp: time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC),
	}

	data, err := msg.ToJSON()
	require.NoError(t, err)

	parsed, err := ExpenseRecordedMessageFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, parsed.ID)
	assert.True(t, parsed.Timestamp.Equal(msg.Timestamp))
}

func TestExpenseRecordedMessageInvalidJSON(t *testing.T) {
	_, err := ExpenseRecordedMessageFromJSON([]byte(`{"id": "not_a_number"}`))
	require.Error(t, err)
}
