package applications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"resume-pipeline/internal/blocks"
	"resume-pipeline/internal/cost"
	"resume-pipeline/internal/events"
	"resume-pipeline/internal/evidence"
	"resume-pipeline/internal/export"
	"resume-pipeline/internal/language"
	"resume-pipeline/internal/llm"
	"resume-pipeline/internal/queue"
	"resume-pipeline/internal/research"
	"resume-pipeline/internal/shared/metrics"
	"resume-pipeline/internal/shared/requestid"
	"resume-pipeline/internal/shared/telemetry"
	"resume-pipeline/internal/tier"
	"resume-pipeline/internal/verify"
)

// Producer produces generated blocks; *blocks.Generator satisfies it.
type Producer interface {
	Produce(ctx context.Context, spec blocks.Spec) (blocks.Block, error)
}

// CostReporter is the read side of the cost ledger.
type CostReporter interface {
	Total(ctx context.Context, applicationID string) (float64, error)
	Exceeded(ctx context.Context, applicationID string) (bool, error)
	Summary(ctx context.Context, applicationID string) (cost.Summary, error)
}

// Config tunes the orchestrator.
type Config struct {
	MaxQuestions         int
	StopOnBudgetExceeded bool
	Budgets              tier.Budgets
	FactBandMin          int
	FactBandMax          int
	DefaultLanguage      string
}

// DefaultConfig returns the orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		MaxQuestions:    5,
		Budgets:         tier.DefaultBudgets(),
		FactBandMin:     5,
		FactBandMax:     8,
		DefaultLanguage: "en",
	}
}

// Service orchestrates the stage pipeline for applications.
type Service struct {
	Repo     Repo
	Evidence evidence.Store
	Ledger   CostReporter
	LLM      verify.Generator
	Prompts  verify.Renderer
	Blocks   Producer
	Research research.Researcher
	// ResearchPolicy retries transient research failures.
	ResearchPolicy llm.BackoffPolicy
	Export         export.Sink
	Events         events.Publisher
	Queue          queue.Client
	// Locker serializes an application across processes. Nil keeps the lock in-process.
	Locker         Locker
	Config         Config

	locks keyedMutex
	now   func() time.Time
}

// Create validates input and stores a new application in CREATED.
func (s *Service) Create(ctx context.Context, in CreateInput) (Application, error) {
	in.CandidateID = strings.TrimSpace(in.CandidateID)
	in.CompanyName = strings.TrimSpace(in.CompanyName)
	in.CompanyURL = strings.TrimSpace(in.CompanyURL)
	in.JobPosting = strings.TrimSpace(in.JobPosting)
	in.ResumeText = strings.TrimSpace(in.ResumeText)

	ve := &ValidationError{}
	if in.CandidateID == "" {
		ve.add("candidateId", "required")
	}
	if in.JobPosting == "" {
		ve.add("jobPosting", "required")
	}
	if in.ResumeText == "" && len(in.ResumeFacts) == 0 {
		ve.add("resumeText", "resume text or structured resume facts are required")
	}
	for i, f := range in.ResumeFacts {
		if strings.TrimSpace(f.Text) == "" {
			ve.add(fmt.Sprintf("resumeFacts[%d].text", i), "required")
		}
		if !f.Destination.Valid() {
			ve.add(fmt.Sprintf("resumeFacts[%d].destination", i), "must be CV_IMPACT or INTERVIEW_ONLY")
		}
	}

	// Missing tags are detected from the text; an undetectable résumé falls back to the
	// default language and an undetectable posting to the résumé language.
	cvTag := strings.TrimSpace(in.CVLanguage)
	if cvTag == "" {
		if cvTag = language.Detect(resumeSample(in)); cvTag == "" {
			cvTag = s.defaultLanguage()
		}
	}
	cv, err := language.Normalize(cvTag)
	if err != nil {
		ve.add("cvLanguage", "unknown language tag")
	}
	jobTag := strings.TrimSpace(in.JobLanguage)
	if jobTag == "" {
		jobTag = language.Detect(in.JobPosting)
	}
	job := cv
	if jobTag != "" {
		if job, err = language.Normalize(jobTag); err != nil {
			ve.add("jobLanguage", "unknown language tag")
		}
	}
	if err := ve.orNil(); err != nil {
		return Application{}, err
	}

	now := s.clock()
	app := Application{
		ID:              uuid.NewString(),
		CandidateID:     in.CandidateID,
		Status:          StatusCreated,
		CVLanguage:      cv,
		JobLanguage:     job,
		OutputLanguages: language.Resolve(cv, job),
		Input: Input{
			CompanyName: in.CompanyName,
			CompanyURL:  in.CompanyURL,
			JobPosting:  in.JobPosting,
			ResumeText:  in.ResumeText,
			ResumeFacts: in.ResumeFacts,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Repo.Create(ctx, app); err != nil {
		return Application{}, err
	}
	s.transition(ctx, app, "", "", StatusCreated)
	return app, nil
}

// Get returns an application.
func (s *Service) Get(ctx context.Context, id string) (Application, error) {
	return s.Repo.Get(ctx, id)
}

// Artifacts returns the artifacts produced so far.
func (s *Service) Artifacts(ctx context.Context, id string) ([]Artifact, error) {
	if _, err := s.Repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.Repo.ListArtifacts(ctx, id)
}

// EvidenceFor returns the candidate's committed facts for an application.
func (s *Service) EvidenceFor(ctx context.Context, id string) ([]evidence.Fact, error) {
	app, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Evidence.ListByCandidate(ctx, app.CandidateID)
}

// Cost summarizes the application's cost records.
func (s *Service) Cost(ctx context.Context, id string) (cost.Summary, error) {
	if _, err := s.Repo.Get(ctx, id); err != nil {
		return cost.Summary{}, err
	}
	if s.Ledger == nil {
		return cost.Summary{ApplicationID: id}, nil
	}
	return s.Ledger.Summary(ctx, id)
}

// Enqueue schedules an asynchronous Advance on the job queue.
func (s *Service) Enqueue(ctx context.Context, id string) error {
	if s.Queue == nil {
		return ErrJobQueueNotConfigured
	}
	if _, err := s.Repo.Get(ctx, id); err != nil {
		return err
	}
	msg := queue.NewAdvanceMessage(id, requestid.From(ctx))
	if err := s.Queue.Send(ctx, msg); err != nil {
		return fmt.Errorf("enqueue advance: %w", err)
	}
	telemetry.Info("application.enqueued", map[string]any{
		"application_id": id,
		"request_id":     msg.RequestID,
	})
	return nil
}

// SubmitAnswers records the candidate's gap answers. They are committed to the evidence store by the next Advance.
func (s *Service) SubmitAnswers(ctx context.Context, id string, answers []Answer) (Application, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return Application{}, err
	}
	defer unlock()

	app, err := s.Repo.Get(ctx, id)
	if err != nil {
		return Application{}, err
	}
	if app.Status != StatusAwaitingGapAnswers || app.AnsweredAt != nil {
		return Application{}, &ValidationError{Fields: []FieldError{{Field: "status", Issue: fmt.Sprintf("application is %s, not awaiting gap answers", app.Status)}}}
	}

	ve := &ValidationError{}
	seen := make(map[string]struct{}, len(answers))
	cleaned := make([]Answer, 0, len(answers))
	for i, a := range answers {
		field := fmt.Sprintf("answers[%d]", i)
		a.QuestionID = strings.TrimSpace(a.QuestionID)
		a.Text = strings.TrimSpace(a.Text)
		if _, ok := app.Question(a.QuestionID); !ok {
			ve.add(field+".questionId", "unknown question")
			continue
		}
		if _, dup := seen[a.QuestionID]; dup {
			ve.add(field+".questionId", "duplicate answer")
			continue
		}
		if a.Text == "" {
			ve.add(field+".text", "required")
			continue
		}
		seen[a.QuestionID] = struct{}{}
		cleaned = append(cleaned, a)
	}
	for _, q := range app.Questions {
		if _, ok := seen[q.ID]; q.Required && !ok {
			ve.add("answers", fmt.Sprintf("question %s is required", q.ID))
		}
	}
	if err := ve.orNil(); err != nil {
		return Application{}, err
	}

	now := s.clock()
	app.Answers = cleaned
	app.AnsweredAt = &now
	if err := s.Repo.Update(ctx, app); err != nil {
		return Application{}, err
	}
	telemetry.Info("application.answers_submitted", map[string]any{
		"application_id": app.ID,
		"candidate_id":   app.CandidateID,
		"answers":        len(cleaned),
		"request_id":     requestid.From(ctx),
	})
	return app, nil
}

// Advance runs stages until the application completes, fails or suspends for gap answers.
// Calling it on a COMPLETED or FAILED application returns the stored result without doing work.
// Stage failures are reported through the result; the error covers storage failures and cancellation.
func (s *Service) Advance(ctx context.Context, id string) (StageResult, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return StageResult{}, err
	}
	defer unlock()

	app, err := s.Repo.Get(ctx, id)
	if err != nil {
		return StageResult{}, err
	}
	var failure *StageFailure
	for !app.Status.Terminal() {
		stage := app.NextStage()
		if stage == "" {
			if app, err = s.complete(ctx, app); err != nil {
				return StageResult{}, err
			}
			break
		}
		if stage == StageGapAnswers && app.AnsweredAt == nil {
			if app, err = s.suspend(ctx, app); err != nil {
				return StageResult{}, err
			}
			return s.result(ctx, app)
		}

		next, err := s.runStage(ctx, app, stage)
		if err != nil {
			if !errors.As(err, &failure) {
				return StageResult{}, err
			}
			if app, err = s.fail(ctx, next, failure); err != nil {
				return StageResult{}, err
			}
			break
		}
		app = next
	}
	res, err := s.result(ctx, app)
	if err != nil {
		return StageResult{}, err
	}
	if failure != nil {
		res.cause = failure.Err
	}
	return res, nil
}

// ProcessApplication advances an application from the job queue.
// A stage failure is a handled outcome, so only storage errors and cancellation are returned.
func (s *Service) ProcessApplication(ctx context.Context, applicationID string) error {
	res, err := s.Advance(ctx, applicationID)
	if err != nil {
		return err
	}
	telemetry.Info("application.processed", map[string]any{
		"application_id": applicationID,
		"status":         res.Status,
		"failed_stage":   res.FailedStage,
		"request_id":     requestid.From(ctx),
	})
	return nil
}

func (s *Service) runStage(ctx context.Context, app Application, stage Stage) (Application, error) {
	if err := s.checkBudget(ctx, app, stage); err != nil {
		return app, err
	}

	from := app.Status
	startedAt := s.clock()
	app.Status = stage.Status()
	app.CurrentStage = stage
	app.History = append(app.History, StageRecord{Stage: stage, State: StageRunning, StartedAt: startedAt})
	if err := s.Repo.Update(ctx, app); err != nil {
		return app, err
	}
	s.transition(ctx, app, stage, from, app.Status)
	metrics.IncStageTransition(string(stage), string(StageRunning))

	if err := s.stage(stage)(ctx, &app); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return app, ctxErr
		}
		return app, &StageFailure{Stage: stage, Message: sanitizeError(err), Err: err}
	}

	finishedAt := s.clock()
	last := &app.History[len(app.History)-1]
	last.State = StageCompleted
	last.FinishedAt = &finishedAt
	if err := s.Repo.Update(ctx, app); err != nil {
		return app, err
	}
	metrics.IncStageTransition(string(stage), string(StageCompleted))
	metrics.ObserveStageDurationMs(string(stage), durationMs(startedAt, finishedAt))
	return app, nil
}

func (s *Service) checkBudget(ctx context.Context, app Application, stage Stage) error {
	if !s.Config.StopOnBudgetExceeded || s.Ledger == nil {
		return nil
	}
	exceeded, err := s.Ledger.Exceeded(ctx, app.ID)
	if err != nil {
		return err
	}
	if exceeded {
		return &StageFailure{Stage: stage, Message: cost.ErrBudgetExceeded.Error(), Err: cost.ErrBudgetExceeded}
	}
	return nil
}

func (s *Service) suspend(ctx context.Context, app Application) (Application, error) {
	if app.Status == StatusAwaitingGapAnswers {
		return app, nil
	}
	from := app.Status
	app.Status = StatusAwaitingGapAnswers
	app.CurrentStage = StageGapAnswers
	app.History = append(app.History, StageRecord{Stage: StageGapAnswers, State: StageWaiting, StartedAt: s.clock()})
	if err := s.Repo.Update(ctx, app); err != nil {
		return app, err
	}
	metrics.IncStageTransition(string(StageGapAnswers), string(StageWaiting))
	s.transition(ctx, app, StageGapAnswers, from, app.Status)
	return app, nil
}

func (s *Service) complete(ctx context.Context, app Application) (Application, error) {
	from := app.Status
	app.Status = StatusCompleted
	app.CurrentStage = ""
	if err := s.Repo.Update(ctx, app); err != nil {
		return app, err
	}
	metrics.IncStageTransition("pipeline", string(StatusCompleted))
	s.transition(ctx, app, "", from, app.Status)
	return app, nil
}

// fail records the failure with a fresh context so a failing stage is never left RUNNING.
func (s *Service) fail(ctx context.Context, app Application, failure *StageFailure) (Application, error) {
	finishedAt := s.clock()
	if n := len(app.History); n > 0 && app.History[n-1].Stage == failure.Stage && app.History[n-1].State == StageRunning {
		app.History[n-1].State = StageFailed
		app.History[n-1].FinishedAt = &finishedAt
		app.History[n-1].Error = failure.Message
	} else {
		app.History = append(app.History, StageRecord{
			Stage:      failure.Stage,
			State:      StageFailed,
			StartedAt:  finishedAt,
			FinishedAt: &finishedAt,
			Error:      failure.Message,
		})
	}
	from := app.Status
	app.Status = StatusFailed
	app.CurrentStage = failure.Stage
	app.FailedStage = failure.Stage
	app.ErrorMessage = failure.Message
	if err := s.Repo.Update(requestid.Detach(ctx), app); err != nil {
		return app, err
	}
	metrics.IncStageTransition(string(failure.Stage), string(StageFailed))
	fields := map[string]any{
		"application_id": app.ID,
		"candidate_id":   app.CandidateID,
		"stage":          failure.Stage,
		"error":          failure.Message,
		"request_id":     requestid.From(ctx),
	}
	if errors.Is(failure.Err, llm.ErrRetriesExhausted) {
		fields["retries_exhausted"] = true
	}
	telemetry.Error("application.stage_failed", fields)
	s.transition(ctx, app, failure.Stage, from, app.Status)
	return app, nil
}

func (s *Service) result(ctx context.Context, app Application) (StageResult, error) {
	artifacts, err := s.Repo.ListArtifacts(ctx, app.ID)
	if err != nil {
		return StageResult{}, err
	}
	res := StageResult{
		ApplicationID: app.ID,
		Status:        app.Status,
		CurrentStage:  app.CurrentStage,
		FailedStage:   app.FailedStage,
		Error:         app.ErrorMessage,
		Artifacts:     artifacts,
	}
	if app.Status == StatusAwaitingGapAnswers {
		res.Questions = app.Questions
	}
	if app.Status == StatusFailed {
		res.ErrorCode = ErrorCodeStageFailed
		// The budget stop is the one failure whose cause survives a reload.
		if app.ErrorMessage == cost.ErrBudgetExceeded.Error() {
			res.ErrorCode = ErrorCodeBudgetReached
			res.cause = cost.ErrBudgetExceeded
		}
	}
	if s.Ledger != nil {
		if res.CostUSD, err = s.Ledger.Total(ctx, app.ID); err != nil {
			return StageResult{}, err
		}
	}
	return res, nil
}

// transition publishes a status event. Publisher failures are logged, never returned.
func (s *Service) transition(ctx context.Context, app Application, stage Stage, from, to Status) {
	var spent float64
	if s.Ledger != nil {
		if total, err := s.Ledger.Total(ctx, app.ID); err == nil {
			spent = total
		}
	}
	fields := map[string]any{
		"application_id": app.ID,
		"candidate_id":   app.CandidateID,
		"stage":          stage,
		"status":         to,
		"cost_usd":       spent,
		"request_id":     requestid.From(ctx),
	}
	if from != "" {
		fields["status_transition"] = string(from) + "->" + string(to)
	}
	telemetry.Info("application.status", fields)

	if s.Events == nil {
		return
	}
	err := s.Events.Publish(ctx, events.Event{
		Kind:          events.KindStageTransition,
		ApplicationID: app.ID,
		Stage:         string(stage),
		Status:        string(to),
		Detail:        app.ErrorMessage,
		CostSoFar:     spent,
		At:            s.clock(),
	})
	if err != nil {
		telemetry.Warn("events.publish_failed", map[string]any{
			"application_id": app.ID,
			"status":         to,
			"error":          err,
		})
	}
}

func resumeSample(in CreateInput) string {
	if in.ResumeText != "" {
		return in.ResumeText
	}
	parts := make([]string, 0, len(in.ResumeFacts))
	for _, f := range in.ResumeFacts {
		parts = append(parts, f.Text)
	}
	return strings.Join(parts, ". ")
}

func (s *Service) defaultLanguage() string {
	if s.Config.DefaultLanguage != "" {
		return s.Config.DefaultLanguage
	}
	return "en"
}

func (s *Service) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now().UTC()
}

func durationMs(startedAt, finishedAt time.Time) float64 {
	return float64(finishedAt.Sub(startedAt).Microseconds()) / 1000.0
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}

// lock takes the in-process lock first so waiting callers do not each hold a database connection.
func (s *Service) lock(ctx context.Context, id string) (func(), error) {
	unlock := s.locks.lock(id)
	if s.Locker == nil {
		return unlock, nil
	}
	release, err := s.Locker.Lock(ctx, id)
	if err != nil {
		unlock()
		return nil, err
	}
	return func() {
		release()
		unlock()
	}, nil
}

// keyedMutex serializes work per application so one application never runs two stages at once.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedEntry)
	}
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
