package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"resume-pipeline/internal/cost"
	"resume-pipeline/internal/evidence"
	"resume-pipeline/internal/prompts"
	"resume-pipeline/internal/shared/metrics"
	"resume-pipeline/internal/shared/telemetry"
	"resume-pipeline/internal/tier"
)

// CostRecorder is the slice of the cost ledger the client needs.
type CostRecorder interface {
	Record(ctx context.Context, entry cost.Entry) (cost.Record, error)
}

// GenerationRecorder persists generation requests for audit.
type GenerationRecorder interface {
	SaveGeneration(ctx context.Context, gen GenerationRequest) error
}

// GenerationRequest is one immutable prompt/response unit.
type GenerationRequest struct {
	ID                string    `json:"id"`
	ApplicationID     string    `json:"applicationId"`
	ParentID          string    `json:"parentId,omitempty"`
	Stage             string    `json:"stage"`
	Language          string    `json:"language,omitempty"`
	Template          string    `json:"template"`
	TemplateVersion   int       `json:"templateVersion"`
	PromptHash        string    `json:"promptHash"`
	Tier              tier.Tier `json:"tier"`
	Model             string    `json:"model"`
	Temperature       float32   `json:"temperature"`
	Prompt            string    `json:"prompt"`
	Text              string    `json:"text"`
	InputTokens       int       `json:"inputTokens"`
	OutputTokens      int       `json:"outputTokens"`
	Attempts          int       `json:"attempts"`
	EvidenceIDs       []string  `json:"evidenceIds,omitempty"`
	EvidenceWatermark int64     `json:"evidenceWatermark"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Call describes one generation.
type Call struct {
	ApplicationID string
	Stage         string
	Language      string
	Tier          tier.Tier
	Prompt        prompts.Rendered
	Model         string
	Temperature   float32
	MaxTokens     int
	ParentID      string
	// Evidence lists the committed facts the prompt references.
	Evidence *evidence.Snapshot
}

// Client wraps a provider with the backoff policy, per-attempt timeouts and cost accounting.
type Client struct {
	Provider       Provider
	Policy         BackoffPolicy
	Ledger         CostRecorder
	Recorder       GenerationRecorder
	Estimator      TokenEstimator
	Model          string
	AttemptTimeout time.Duration
	MaxTokens      int

	now func() time.Time
}

// Generate issues the call and returns the resulting GenerationRequest.
// Every provider attempt, failed or not, is recorded in the ledger before the next one starts.
func (c *Client) Generate(ctx context.Context, call Call) (GenerationRequest, error) {
	if c == nil || c.Provider == nil {
		return GenerationRequest{}, ErrNotConfigured
	}
	if c.Ledger == nil {
		return GenerationRequest{}, errors.New("llm client requires a cost ledger")
	}
	if strings.TrimSpace(call.Prompt.Text) == "" {
		return GenerationRequest{}, errors.New("llm call has an empty prompt")
	}
	if !call.Tier.Valid() {
		return GenerationRequest{}, fmt.Errorf("llm call: %w", tier.ErrUnknownTier)
	}

	model := call.Model
	if model == "" {
		model = c.Model
	}
	maxTokens := call.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.MaxTokens
	}
	req := Request{
		Model:       model,
		Prompt:      call.Prompt.Text,
		MaxTokens:   maxTokens,
		Temperature: call.Temperature,
		Tag:         call.Prompt.Name,
	}

	gen := GenerationRequest{
		ID:              uuid.NewString(),
		ApplicationID:   call.ApplicationID,
		ParentID:        call.ParentID,
		Stage:           call.Stage,
		Language:        call.Language,
		Template:        call.Prompt.Name,
		TemplateVersion: call.Prompt.Version,
		PromptHash:      call.Prompt.Hash,
		Tier:            call.Tier,
		Model:           model,
		Temperature:     call.Temperature,
		Prompt:          call.Prompt.Text,
	}
	if call.Evidence != nil {
		gen.EvidenceIDs = call.Evidence.IDs()
		gen.EvidenceWatermark = call.Evidence.Watermark
	}
	gen.CreatedAt = c.clock()

	// Spent tokens are recorded even when the caller gives up mid-call.
	recordCtx := context.WithoutCancel(ctx)
	var resp Response
	op := call.Stage + "/" + call.Prompt.Name
	err := c.Policy.Do(ctx, op, func(ctx context.Context, attempt int) error {
		gen.Attempts = attempt
		r, err := c.attempt(ctx, req)
		if err != nil {
			metrics.IncLLMCall(model, Outcome(err))
			if recErr := c.record(recordCtx, call, model, 0, 0, true); recErr != nil {
				return fmt.Errorf("record failed attempt: %w", recErr)
			}
			return err
		}
		if r.InputTokens <= 0 && r.OutputTokens <= 0 {
			r.InputTokens = c.estimate(model, req.Prompt)
			r.OutputTokens = c.estimate(model, r.Text)
		}
		if r.Model != "" {
			model = r.Model
		}
		metrics.IncLLMCall(model, Outcome(nil))
		metrics.AddTokens(model, r.InputTokens, r.OutputTokens)
		if recErr := c.record(recordCtx, call, model, r.InputTokens, r.OutputTokens, false); recErr != nil {
			return fmt.Errorf("record attempt: %w", recErr)
		}
		resp = r
		return nil
	})
	if err != nil {
		telemetry.Error("llm.generate_failed", map[string]any{
			"application_id": call.ApplicationID,
			"stage":          call.Stage,
			"template":       call.Prompt.Name,
			"attempts":       gen.Attempts,
			"error":          err,
		})
		return GenerationRequest{}, err
	}

	gen.Model = model
	gen.Text = strings.TrimSpace(resp.Text)
	gen.InputTokens = resp.InputTokens
	gen.OutputTokens = resp.OutputTokens
	if c.Recorder != nil {
		if err := c.Recorder.SaveGeneration(recordCtx, gen); err != nil {
			return GenerationRequest{}, fmt.Errorf("save generation: %w", err)
		}
	}
	telemetry.Info("llm.generate", map[string]any{
		"application_id": call.ApplicationID,
		"stage":          call.Stage,
		"language":       call.Language,
		"template":       gen.Template,
		"tier":           gen.Tier.String(),
		"model":          gen.Model,
		"attempts":       gen.Attempts,
		"input_tokens":   gen.InputTokens,
		"output_tokens":  gen.OutputTokens,
		"prompt_hash":    gen.PromptHash,
	})
	return gen, nil
}

func (c *Client) attempt(ctx context.Context, req Request) (Response, error) {
	actx := ctx
	cancel := func() {}
	if c.AttemptTimeout > 0 {
		actx, cancel = context.WithTimeout(ctx, c.AttemptTimeout)
	}
	defer cancel()

	resp, err := c.Provider.Complete(actx, req)
	if err != nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		err = fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return resp, err
}

func (c *Client) record(ctx context.Context, call Call, model string, in, out int, failed bool) error {
	_, err := c.Ledger.Record(ctx, cost.Entry{
		ApplicationID: call.ApplicationID,
		Stage:         call.Stage,
		Tier:          call.Tier,
		Language:      call.Language,
		Model:         model,
		InputTokens:   in,
		OutputTokens:  out,
		Failed:        failed,
	})
	return err
}

func (c *Client) estimate(model, text string) int {
	if c.Estimator == nil {
		return CharEstimator{}.Count(model, text)
	}
	return c.Estimator.Count(model, text)
}

func (c *Client) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now().UTC()
}
