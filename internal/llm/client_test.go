package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-pipeline/internal/cost"
	"resume-pipeline/internal/evidence"
	"resume-pipeline/internal/prompts"
	"resume-pipeline/internal/tier"
)

type sequenceProvider struct {
	mu    sync.Mutex
	steps []func(ctx context.Context) (Response, error)
	calls int
}

func (p *sequenceProvider) Complete(ctx context.Context, req Request) (Response, error) {
	p.mu.Lock()
	i := p.calls
	p.calls++
	p.mu.Unlock()
	if i >= len(p.steps) {
		i = len(p.steps) - 1
	}
	return p.steps[i](ctx)
}

type memoryRecorder struct {
	saved []GenerationRequest
}

func (r *memoryRecorder) SaveGeneration(ctx context.Context, gen GenerationRequest) error {
	r.saved = append(r.saved, gen)
	return nil
}

func ok(text string, in, out int) func(ctx context.Context) (Response, error) {
	return func(ctx context.Context) (Response, error) {
		return Response{Text: text, InputTokens: in, OutputTokens: out}, nil
	}
}

func fail(err error) func(ctx context.Context) (Response, error) {
	return func(ctx context.Context) (Response, error) { return Response{}, err }
}

func newTestClient(p Provider) (*Client, *cost.Ledger, *memoryRecorder) {
	ledger := cost.NewLedger(cost.NewMemoryStore(), cost.DefaultRates(), 0, nil)
	rec := &memoryRecorder{}
	return &Client{
		Provider: p,
		Policy:   BackoffPolicy{MaxAttempts: 3},
		Ledger:   ledger,
		Recorder: rec,
		Model:    "gpt-4o-mini",
	}, ledger, rec
}

func rendered(text string) prompts.Rendered {
	return prompts.Rendered{Name: "vpr", Version: 1, Text: text, Hash: "h"}
}

func TestGenerateRecordsEveryAttempt(t *testing.T) {
	p := &sequenceProvider{steps: []func(ctx context.Context) (Response, error){
		fail(ErrTimeout),
		fail(ErrRateLimited),
		ok("final text", 120, 40),
	}}
	client, ledger, rec := newTestClient(p)

	gen, err := client.Generate(context.Background(), Call{
		ApplicationID: "app-1",
		Stage:         "vpr",
		Language:      "en",
		Tier:          tier.Tier2,
		Prompt:        rendered("write it"),
	})
	require.NoError(t, err)
	assert.Equal(t, "final text", gen.Text)
	assert.Equal(t, 3, gen.Attempts)
	assert.Equal(t, 120, gen.InputTokens)

	recs, err := ledger.Records(context.Background(), "app-1")
	require.NoError(t, err)
	require.Len(t, recs, p.calls)
	assert.True(t, recs[0].Failed)
	assert.True(t, recs[1].Failed)
	assert.Zero(t, recs[0].CostUSD)
	assert.False(t, recs[2].Failed)
	assert.Equal(t, "en", recs[2].Language)
	require.Len(t, rec.saved, 1)
	assert.Equal(t, gen.ID, rec.saved[0].ID)
}

func TestGenerateExhaustsRetries(t *testing.T) {
	p := &sequenceProvider{steps: []func(ctx context.Context) (Response, error){fail(ErrServer)}}
	client, ledger, rec := newTestClient(p)

	_, err := client.Generate(context.Background(), Call{ApplicationID: "app-1", Stage: "research", Tier: tier.Tier1, Prompt: rendered("x")})
	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 3, p.calls)

	recs, err := ledger.Records(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Len(t, recs, 3)
	assert.Empty(t, rec.saved)
}

func TestGenerateRecordsCostWhenCallerCancelsMidCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	late := func(context.Context) (Response, error) {
		cancel()
		return Response{Text: "late reply", InputTokens: 1000, OutputTokens: 1000}, nil
	}
	p := &sequenceProvider{steps: []func(ctx context.Context) (Response, error){late}}
	client, ledger, rec := newTestClient(p)

	gen, err := client.Generate(ctx, Call{ApplicationID: "app-1", Stage: "vpr", Tier: tier.Tier2, Prompt: rendered("x")})
	require.NoError(t, err)
	assert.Equal(t, "late reply", gen.Text)
	assert.Equal(t, 1, p.calls)

	recs, err := ledger.Records(context.Background(), "app-1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 1000, recs[0].InputTokens)
	assert.Equal(t, 1000, recs[0].OutputTokens)
	assert.Positive(t, recs[0].CostUSD)
	assert.Len(t, rec.saved, 1)
}

func TestGenerateRecordsFailedAttemptAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	aborted := func(context.Context) (Response, error) {
		cancel()
		return Response{}, context.Canceled
	}
	p := &sequenceProvider{steps: []func(ctx context.Context) (Response, error){aborted}}
	client, ledger, _ := newTestClient(p)

	_, err := client.Generate(ctx, Call{ApplicationID: "app-1", Stage: "vpr", Tier: tier.Tier2, Prompt: rendered("x")})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, p.calls)

	recs, err := ledger.Records(context.Background(), "app-1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Failed)
}

func TestGenerateMapsAttemptDeadlineToTimeout(t *testing.T) {
	slow := func(ctx context.Context) (Response, error) {
		<-ctx.Done()
		return Response{}, ctx.Err()
	}
	p := &sequenceProvider{steps: []func(ctx context.Context) (Response, error){slow, ok("done", 1, 1)}}
	client, _, _ := newTestClient(p)
	client.AttemptTimeout = 10 * time.Millisecond

	gen, err := client.Generate(context.Background(), Call{ApplicationID: "app-1", Stage: "vpr", Tier: tier.Tier2, Prompt: rendered("x")})
	require.NoError(t, err)
	assert.Equal(t, 2, gen.Attempts)
}

func TestGenerateEstimatesMissingUsage(t *testing.T) {
	p := &sequenceProvider{steps: []func(ctx context.Context) (Response, error){ok("twelve chars", 0, 0)}}
	client, _, _ := newTestClient(p)
	client.Estimator = CharEstimator{}

	gen, err := client.Generate(context.Background(), Call{ApplicationID: "app-1", Stage: "vpr", Tier: tier.Tier2, Prompt: rendered("sixteen chars!!!")})
	require.NoError(t, err)
	assert.Equal(t, 4, gen.InputTokens)
	assert.Equal(t, 3, gen.OutputTokens)
}

func TestGenerateCarriesEvidenceWatermark(t *testing.T) {
	p := &sequenceProvider{steps: []func(ctx context.Context) (Response, error){ok("text", 1, 1)}}
	client, _, _ := newTestClient(p)
	snap := &evidence.Snapshot{Facts: []evidence.Fact{{ID: "f1", Seq: 3}, {ID: "f2", Seq: 5}}, Watermark: 5}

	gen, err := client.Generate(context.Background(), Call{ApplicationID: "app-1", Stage: "vpr", Tier: tier.Tier2, Prompt: rendered("x"), Evidence: snap, ParentID: "parent"})
	require.NoError(t, err)
	assert.Equal(t, []string{"f1", "f2"}, gen.EvidenceIDs)
	assert.EqualValues(t, 5, gen.EvidenceWatermark)
	assert.Equal(t, "parent", gen.ParentID)
}

func TestGenerateValidatesCall(t *testing.T) {
	client, _, _ := newTestClient(PlaceholderProvider{})
	_, err := client.Generate(context.Background(), Call{ApplicationID: "a", Tier: tier.Tier1})
	require.Error(t, err)
	_, err = client.Generate(context.Background(), Call{ApplicationID: "a", Prompt: rendered("x")})
	require.ErrorIs(t, err, tier.ErrUnknownTier)

	_, err = client.Generate(context.Background(), Call{ApplicationID: "a", Tier: tier.Tier1, Prompt: rendered("x")})
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestCharEstimator(t *testing.T) {
	assert.Zero(t, CharEstimator{}.Count("m", ""))
	assert.Equal(t, 1, CharEstimator{}.Count("m", "ab"))
	assert.Equal(t, 2, CharEstimator{}.Count("m", "abcdefgh"))
}
