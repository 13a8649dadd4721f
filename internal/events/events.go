// Package events publishes application status changes.
package events

import (
	"context"
	"sync"
	"time"

	"resume-pipeline/internal/cost"
	"resume-pipeline/internal/shared/telemetry"
)

// Kind names an event type.
type Kind string

const (
	KindStageTransition Kind = "stage_transition"
	KindBudgetExceeded  Kind = "budget_exceeded"
)

// Event is one status change of an application.
type Event struct {
	Kind          Kind      `json:"kind"`
	ApplicationID string    `json:"applicationId"`
	Stage         string    `json:"stage,omitempty"`
	Status        string    `json:"status,omitempty"`
	Detail        string    `json:"detail,omitempty"`
	CostSoFar     float64   `json:"costSoFar"`
	CeilingUSD    float64   `json:"ceilingUsd,omitempty"`
	At            time.Time `json:"at"`
}

// Publisher emits events. Publishing is best effort; callers log failures and continue.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// LogPublisher writes events to the structured log.
type LogPublisher struct{}

// Publish implements Publisher.
func (LogPublisher) Publish(ctx context.Context, e Event) error {
	telemetry.Info("application.event", map[string]any{
		"kind":           string(e.Kind),
		"application_id": e.ApplicationID,
		"stage":          e.Stage,
		"status":         e.Status,
		"detail":         e.Detail,
		"cost_usd":       e.CostSoFar,
	})
	return nil
}

// Multi fans an event out to every publisher and returns the first error.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, e Event) error {
	var first error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// BudgetAlerter turns ledger ceiling breaches into budget_exceeded events.
type BudgetAlerter struct {
	Publisher Publisher
	now       func() time.Time
}

var _ cost.Alerter = (*BudgetAlerter)(nil)

// BudgetExceeded implements cost.Alerter.
func (a *BudgetAlerter) BudgetExceeded(ctx context.Context, b cost.Breach) {
	at := time.Now().UTC()
	if a.now != nil {
		at = a.now()
	}
	err := a.Publisher.Publish(ctx, Event{
		Kind:          KindBudgetExceeded,
		ApplicationID: b.ApplicationID,
		Stage:         b.Stage,
		CostSoFar:     b.TotalUSD,
		CeilingUSD:    b.CeilingUSD,
		At:            at,
	})
	if err != nil {
		telemetry.Warn("events.publish_failed", map[string]any{
			"application_id": b.ApplicationID,
			"kind":           string(KindBudgetExceeded),
			"error":          err,
		})
	}
}

// Recorder keeps events in memory, for tests and the CLI.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish implements Publisher.
func (r *Recorder) Publish(ctx context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of every recorded event.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
