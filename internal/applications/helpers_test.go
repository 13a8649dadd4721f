package applications

import (
	"context"
	"encoding/json"
	"regexp"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"resume-pipeline/internal/blocks"
	"resume-pipeline/internal/cost"
	"resume-pipeline/internal/events"
	"resume-pipeline/internal/evidence"
	"resume-pipeline/internal/export"
	"resume-pipeline/internal/llm"
	"resume-pipeline/internal/llm/llmtest"
	"resume-pipeline/internal/prompts"
	"resume-pipeline/internal/research"
	"resume-pipeline/internal/tier"
	"resume-pipeline/internal/verify"
)

const (
	vprDraft       = "I'd bring the same focus that grew ARR to $500K at Acme, and I'm glad to lead payments work again."
	inflatedVPR    = "I'd bring the same focus that grew ARR to $2M at Acme, and I'm glad to lead payments work again."
	cvDraft        = "## Experience\n- Led the payments team at Acme\n- Grew ARR to $500K"
	letterDraft    = "I'm excited about the role. I've led payments teams and I'd love to talk."
	prepDraft      = "Q: Tell me about a hard launch. A: The checkout rewrite, and what I learned."
	alignedReply   = `{"bridge_present":true,"differentiator_visible":true}`
	tonePassReply  = `{"verdict":"PASS"}`
	questionsReply = `{"questions":[` +
		`{"id":"q1","text":"How many merchants used the new checkout?","theme":"checkout adoption","destination":"CV_IMPACT","required":true},` +
		`{"id":"q2","text":"How do you run incident reviews?","theme":"incident process","destination":"INTERVIEW_ONLY","required":false},` +
		`{"id":"q3","text":"Anything else?","theme":"misc","destination":"SOMEWHERE","required":false}]}`
)

func resumeFacts() []ResumeFact {
	return []ResumeFact{
		{Ref: "experience[0]", Text: "Led the payments team at Acme", Destination: evidence.CVImpact, Theme: "payments leadership"},
		{Ref: "experience[1]", Text: "Grew ARR to $500K in 2022", Destination: evidence.CVImpact, Theme: "revenue growth"},
		{Ref: "experience[2]", Text: "Shipped a new checkout flow", Destination: evidence.CVImpact, Theme: "checkout"},
		{Ref: "experience[3]", Text: "Owned PCI compliance work", Destination: evidence.CVImpact, Theme: "compliance"},
		{Ref: "experience[4]", Text: "Cut card decline rate by 3%", Destination: evidence.CVImpact, Theme: "payments reliability"},
		{Ref: "skills[0]", Text: "Mentors junior engineers weekly", Destination: evidence.InterviewOnly, Theme: "mentoring"},
	}
}

var evidenceIDRe = regexp.MustCompile(`- \[([^\]]+)\]`)

// citeEvidence answers the fact audit by citing up to eight evidence ids found in the prompt.
func citeEvidence(req llm.Request) (llm.Response, error) {
	type claim struct {
		Text       string `json:"text"`
		Supported  bool   `json:"supported"`
		EvidenceID string `json:"evidence_id"`
	}
	var claims []claim
	for _, m := range evidenceIDRe.FindAllStringSubmatch(req.Prompt, -1) {
		if len(claims) == 8 {
			break
		}
		claims = append(claims, claim{Text: "claim", Supported: true, EvidenceID: m[1]})
	}
	raw, err := json.Marshal(map[string]any{"claims": claims})
	if err != nil {
		return llm.Response{}, err
	}
	return llm.Response{Text: string(raw)}, nil
}

type fakeResearcher struct {
	calls atomic.Int32
	fn    func(q research.Query) (research.Profile, error)
}

func (f *fakeResearcher) Research(ctx context.Context, q research.Query) (research.Profile, error) {
	f.calls.Add(1)
	return f.fn(q)
}

func acmeProfile(q research.Query) (research.Profile, error) {
	return research.Profile{CompanyName: "Acme", Summary: "Acme builds payment rails for small businesses.", Source: "web"}, nil
}

type harness struct {
	svc        *Service
	provider   *llmtest.Provider
	ledger     *cost.Ledger
	repo       *MemoryRepo
	store      *evidence.MemoryStore
	events     *events.Recorder
	researcher *fakeResearcher
}

type harnessOption func(h *harness, client *llm.Client)

func withCeiling(usd float64) harnessOption {
	return func(h *harness, client *llm.Client) {
		h.ledger = cost.NewLedger(cost.NewMemoryStore(), cost.DefaultRates(), usd, &events.BudgetAlerter{Publisher: h.events})
		client.Ledger = h.ledger
		h.svc.Ledger = h.ledger
		h.svc.Config.StopOnBudgetExceeded = true
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	reg, err := prompts.Default()
	require.NoError(t, err)

	provider := llmtest.New()
	provider.Reply(prompts.GapQuestions, questionsReply)
	provider.Handle(prompts.VPR, func(llm.Request) (llm.Response, error) {
		return llm.Response{Text: vprDraft}, nil
	})
	provider.Reply(prompts.TailorCV, cvDraft)
	provider.Reply(prompts.CoverLetter, letterDraft)
	provider.Reply(prompts.InterviewPrep, prepDraft)
	provider.Handle(prompts.VerifyFact, citeEvidence)
	provider.Reply(prompts.VerifyAlignment, alignedReply)
	provider.Reply(prompts.VerifyTone, tonePassReply)

	client, ledger := llmtest.NewClient(provider)
	repo := NewMemoryRepo()
	client.Recorder = repo

	h := &harness{
		provider:   provider,
		ledger:     ledger,
		repo:       repo,
		store:      evidence.NewMemoryStore(),
		events:     &events.Recorder{},
		researcher: &fakeResearcher{fn: acmeProfile},
	}
	h.svc = &Service{
		Repo:     repo,
		Evidence: h.store,
		Ledger:   ledger,
		LLM:      client,
		Prompts:  reg,
		Blocks: &blocks.Generator{
			LLM:              client,
			Prompts:          reg,
			Panel:            verify.NewPanel(client, reg, verify.DefaultConfig()),
			MaxRegenerations: 1,
			Budgets:          tier.DefaultBudgets(),
			Lint:             verify.DefaultLintConfig(),
		},
		Research:       h.researcher,
		ResearchPolicy: llm.BackoffPolicy{MaxAttempts: 3},
		Export:         export.Discard{},
		Events:         h.events,
		Config:         DefaultConfig(),
	}
	for _, opt := range opts {
		opt(h, client)
	}
	return h
}

func (h *harness) create(t *testing.T, cv, job string) Application {
	t.Helper()
	app, err := h.svc.Create(context.Background(), CreateInput{
		CandidateID: "cand-1",
		CompanyName: "Acme",
		CompanyURL:  "https://acme.example",
		JobPosting:  "Senior payments engineer. Own checkout reliability.",
		ResumeFacts: resumeFacts(),
		CVLanguage:  cv,
		JobLanguage: job,
	})
	require.NoError(t, err)
	return app
}

// runToCompletion advances to the gap questions, answers the required one and advances again.
func (h *harness) runToCompletion(t *testing.T, id string) StageResult {
	t.Helper()
	ctx := context.Background()
	res, err := h.svc.Advance(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StatusAwaitingGapAnswers, res.Status, "error: %s", res.Error)

	_, err = h.svc.SubmitAnswers(ctx, id, []Answer{{QuestionID: "q1", Text: "About 1,200 merchants moved to it"}})
	require.NoError(t, err)

	res, err = h.svc.Advance(ctx, id)
	require.NoError(t, err)
	return res
}
