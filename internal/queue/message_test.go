package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRoundTrip(t *testing.T) {
	msg := Message{
		ApplicationID: "app-123",
		RequestID:     "request-456",
		Action:        ActionAdvance,
		EnqueuedAt:    "2026-01-30T22:00:00Z",
		Version:       1,
	}

	payload, err := EncodeMessage(msg)
	require.NoError(t, err)

	got, err := DecodeMessage(payload)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestDecodeMessageDefaultsAction(t *testing.T) {
	got, err := DecodeMessage([]byte(`{"applicationId":"app-1"}`))
	require.NoError(t, err)
	assert.Equal(t, ActionAdvance, got.Action)
}

func TestNewAdvanceMessage(t *testing.T) {
	msg := NewAdvanceMessage("app-1", "req-1")
	assert.Equal(t, ActionAdvance, msg.Action)
	assert.Equal(t, MessageVersion, msg.Version)
	assert.NotEmpty(t, msg.EnqueuedAt)
}
