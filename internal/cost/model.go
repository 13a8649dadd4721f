package cost

import (
	"errors"
	"time"

	"resume-pipeline/internal/tier"
)

// ErrBudgetExceeded signals that an application crossed its cost ceiling.
var ErrBudgetExceeded = errors.New("cost budget exceeded")

// Entry is what a caller reports for one provider call.
type Entry struct {
	ApplicationID string
	Stage         string
	Tier          tier.Tier
	Language      string
	Model         string
	InputTokens   int
	OutputTokens  int
	// Failed marks an attempt that returned an error.
	Failed bool
}

// Record is an append-only cost line.
type Record struct {
	ID            string    `json:"id"`
	Seq           int64     `json:"seq"`
	ApplicationID string    `json:"applicationId"`
	Stage         string    `json:"stage"`
	Tier          tier.Tier `json:"tier"`
	Language      string    `json:"language,omitempty"`
	Model         string    `json:"model"`
	InputTokens   int       `json:"inputTokens"`
	OutputTokens  int       `json:"outputTokens"`
	CostUSD       float64   `json:"costUsd"`
	Failed        bool      `json:"failed,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Summary aggregates an application's records.
type Summary struct {
	ApplicationID string             `json:"applicationId"`
	TotalUSD      float64            `json:"totalUsd"`
	CeilingUSD    float64            `json:"ceilingUsd,omitempty"`
	Exceeded      bool               `json:"exceeded"`
	Calls         int                `json:"calls"`
	FailedCalls   int                `json:"failedCalls"`
	InputTokens   int                `json:"inputTokens"`
	OutputTokens  int                `json:"outputTokens"`
	ByStage       map[string]float64 `json:"byStage"`
	ByLanguage    map[string]float64 `json:"byLanguage"`
	ByTier        map[string]float64 `json:"byTier"`
}

// Breach describes the first crossing of the ceiling.
type Breach struct {
	ApplicationID string
	Stage         string
	TotalUSD      float64
	CeilingUSD    float64
}
