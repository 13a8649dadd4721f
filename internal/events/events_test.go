package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-pipeline/internal/cost"
)

type fakeConn struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakeConn) Publish(subj string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	return nil
}

func TestNATSPublisherSubjectAndPayload(t *testing.T) {
	conn := &fakeConn{}
	p := &NATSPublisher{Conn: conn}

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	err := p.Publish(context.Background(), Event{Kind: KindStageTransition, ApplicationID: "app-1", Stage: "parse", Status: "PARSING", At: at})
	require.NoError(t, err)
	require.Equal(t, []string{"applications.app-1.status"}, conn.subjects)

	var got Event
	require.NoError(t, json.Unmarshal(conn.payloads[0], &got))
	assert.Equal(t, KindStageTransition, got.Kind)
	assert.Equal(t, "PARSING", got.Status)
	assert.True(t, at.Equal(got.At))
}

func TestMultiReturnsFirstErrorButDeliversToAll(t *testing.T) {
	boom := errors.New("nats down")
	rec := &Recorder{}
	m := Multi{&NATSPublisher{Conn: &fakeConn{err: boom}}, rec, nil}

	err := m.Publish(context.Background(), Event{ApplicationID: "app-1"})
	require.ErrorIs(t, err, boom)
	assert.Len(t, rec.Events(), 1)
}

func TestBudgetAlerterPublishesBreach(t *testing.T) {
	rec := &Recorder{}
	a := &BudgetAlerter{Publisher: rec}

	a.BudgetExceeded(context.Background(), cost.Breach{ApplicationID: "app-1", Stage: "vpr", TotalUSD: 0.03, CeilingUSD: 0.02})
	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, KindBudgetExceeded, events[0].Kind)
	assert.Equal(t, "vpr", events[0].Stage)
	assert.InDelta(t, 0.03, events[0].CostSoFar, 1e-12)
	assert.InDelta(t, 0.02, events[0].CeilingUSD, 1e-12)
}
