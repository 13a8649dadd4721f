// Package cost turns token usage into dollar cost and tracks per-application totals.
package cost

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"resume-pipeline/internal/shared/metrics"
	"resume-pipeline/internal/shared/telemetry"
)

// Alerter is notified once per application when the ceiling is crossed.
type Alerter interface {
	BudgetExceeded(ctx context.Context, b Breach)
}

// AlerterFunc adapts a function to Alerter.
type AlerterFunc func(ctx context.Context, b Breach)

// BudgetExceeded implements Alerter.
func (f AlerterFunc) BudgetExceeded(ctx context.Context, b Breach) { f(ctx, b) }

// Ledger records provider usage. All methods are safe for concurrent use when Store is.
type Ledger struct {
	Store      Store
	Rates      RateTable
	CeilingUSD float64
	Alerter    Alerter

	now func() time.Time
}

// NewLedger builds a ledger over store with the given rate table and ceiling (0 disables alerts).
func NewLedger(store Store, rates RateTable, ceilingUSD float64, alerter Alerter) *Ledger {
	return &Ledger{Store: store, Rates: rates, CeilingUSD: ceilingUSD, Alerter: alerter}
}

// Record computes the cost of entry and appends it.
func (l *Ledger) Record(ctx context.Context, entry Entry) (Record, error) {
	if l == nil || l.Store == nil {
		return Record{}, errors.New("cost ledger not configured")
	}
	if strings.TrimSpace(entry.ApplicationID) == "" {
		return Record{}, errors.New("cost entry application id is required")
	}
	if entry.InputTokens < 0 || entry.OutputTokens < 0 {
		return Record{}, errors.New("cost entry token counts must not be negative")
	}

	rec := Record{
		ID:            uuid.NewString(),
		ApplicationID: entry.ApplicationID,
		Stage:         entry.Stage,
		Tier:          entry.Tier,
		Language:      entry.Language,
		Model:         entry.Model,
		InputTokens:   entry.InputTokens,
		OutputTokens:  entry.OutputTokens,
		CostUSD:       l.Rates.Cost(entry.Model, entry.InputTokens, entry.OutputTokens),
		Failed:        entry.Failed,
		CreatedAt:     l.clock(),
	}
	stored, err := l.Store.Append(ctx, rec)
	if err != nil {
		return Record{}, err
	}
	metrics.AddCost(entry.Stage, stored.CostUSD)

	if l.CeilingUSD > 0 {
		total, err := l.Total(ctx, entry.ApplicationID)
		if err != nil {
			return stored, err
		}
		if total > l.CeilingUSD {
			l.alert(ctx, Breach{ApplicationID: entry.ApplicationID, Stage: entry.Stage, TotalUSD: total, CeilingUSD: l.CeilingUSD})
		}
	}
	return stored, nil
}

func (l *Ledger) alert(ctx context.Context, b Breach) {
	first, err := l.Store.MarkAlerted(ctx, b)
	if err != nil {
		telemetry.Error("cost.alert_mark_failed", map[string]any{
			"application_id": b.ApplicationID,
			"error":          err,
		})
		return
	}
	if !first {
		return
	}
	metrics.IncBudgetBreach()
	telemetry.Warn("cost.ceiling_exceeded", map[string]any{
		"application_id": b.ApplicationID,
		"stage":          b.Stage,
		"total_usd":      b.TotalUSD,
		"ceiling_usd":    b.CeilingUSD,
	})
	if l.Alerter != nil {
		l.Alerter.BudgetExceeded(ctx, b)
	}
}

// Total is the sum of every stored record cost for the application, in append order.
func (l *Ledger) Total(ctx context.Context, applicationID string) (float64, error) {
	recs, err := l.Store.ListByApplication(ctx, applicationID)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, r := range recs {
		total += r.CostUSD
	}
	return total, nil
}

// Exceeded reports whether the application is above the ceiling.
func (l *Ledger) Exceeded(ctx context.Context, applicationID string) (bool, error) {
	if l.CeilingUSD <= 0 {
		return false, nil
	}
	total, err := l.Total(ctx, applicationID)
	if err != nil {
		return false, err
	}
	return total > l.CeilingUSD, nil
}

// Records returns every record for the application.
func (l *Ledger) Records(ctx context.Context, applicationID string) ([]Record, error) {
	return l.Store.ListByApplication(ctx, applicationID)
}

// Summary aggregates totals by stage, language and tier.
func (l *Ledger) Summary(ctx context.Context, applicationID string) (Summary, error) {
	recs, err := l.Store.ListByApplication(ctx, applicationID)
	if err != nil {
		return Summary{}, err
	}
	s := Summary{
		ApplicationID: applicationID,
		CeilingUSD:    l.CeilingUSD,
		ByStage:       map[string]float64{},
		ByLanguage:    map[string]float64{},
		ByTier:        map[string]float64{},
	}
	for _, r := range recs {
		s.TotalUSD += r.CostUSD
		s.Calls++
		if r.Failed {
			s.FailedCalls++
		}
		s.InputTokens += r.InputTokens
		s.OutputTokens += r.OutputTokens
		s.ByStage[r.Stage] += r.CostUSD
		if r.Language != "" {
			s.ByLanguage[r.Language] += r.CostUSD
		}
		s.ByTier[r.Tier.String()] += r.CostUSD
	}
	s.Exceeded = l.CeilingUSD > 0 && s.TotalUSD > l.CeilingUSD
	return s, nil
}

func (l *Ledger) clock() time.Time {
	if l.now != nil {
		return l.now()
	}
	return time.Now().UTC()
}
