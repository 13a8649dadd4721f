package workerproc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-pipeline/internal/queue"
	"resume-pipeline/internal/shared/requestid"
)

type recordingProcessor struct {
	err       error
	ids       []string
	requestID string
}

func (p *recordingProcessor) ProcessApplication(ctx context.Context, applicationID string) error {
	p.ids = append(p.ids, applicationID)
	p.requestID = requestid.From(ctx)
	return p.err
}

func encode(t *testing.T, msg queue.Message) string {
	t.Helper()
	raw, err := queue.EncodeMessage(msg)
	require.NoError(t, err)
	return string(raw)
}

func TestParseMessageErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		want any
	}{
		{"empty", "   ", ErrEmptyBody{}},
		{"bad json", "{nope", ErrDecode{}},
		{"missing id", `{"requestId":"r1","action":"advance"}`, ErrMissingApplicationID{}},
		{"unknown action", `{"applicationId":"a1","action":"purge"}`, ErrUnknownAction{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := ParseMessage(tc.body)
			require.Error(t, err)
			assert.IsType(t, tc.want, err)
			assert.True(t, Unrecoverable(err))
		})
	}
}

func TestParseMessageDefaultsAction(t *testing.T) {
	msg, meta, err := ParseMessage(`{"applicationId":"a1"}`)
	require.NoError(t, err)
	assert.Equal(t, queue.ActionAdvance, msg.Action)
	assert.Len(t, meta.BodySHA, 64)
}

func TestHandleMessagePropagatesRequestID(t *testing.T) {
	p := &recordingProcessor{}
	body := encode(t, queue.NewAdvanceMessage("app-1", "req-9"))

	require.NoError(t, HandleMessage(context.Background(), p, body))
	assert.Equal(t, []string{"app-1"}, p.ids)
	assert.Equal(t, "req-9", p.requestID)
}

func TestHandleMessageReusesParsedMessage(t *testing.T) {
	p := &recordingProcessor{}
	ctx := WithParsedMessage(context.Background(), queue.NewAdvanceMessage("app-2", ""))

	require.NoError(t, HandleMessage(ctx, p, "ignored"))
	assert.Equal(t, []string{"app-2"}, p.ids)
}

func TestHandleMessageWrapsProcessError(t *testing.T) {
	boom := errors.New("boom")
	p := &recordingProcessor{err: boom}

	err := HandleMessage(context.Background(), p, encode(t, queue.NewAdvanceMessage("app-3", "req-3")))
	var procErr ErrProcess
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, "app-3", procErr.ApplicationID)
	assert.ErrorIs(t, err, boom)
	assert.False(t, Unrecoverable(err))
}

func TestHandleMessageWithoutProcessor(t *testing.T) {
	require.Error(t, HandleMessage(context.Background(), nil, "{}"))
}
