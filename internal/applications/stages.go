package applications

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"resume-pipeline/internal/blocks"
	"resume-pipeline/internal/evidence"
	"resume-pipeline/internal/export"
	"resume-pipeline/internal/llm"
	"resume-pipeline/internal/prompts"
	"resume-pipeline/internal/research"
	"resume-pipeline/internal/shared/requestid"
	"resume-pipeline/internal/shared/telemetry"
	"resume-pipeline/internal/tier"
)

type stageFunc func(ctx context.Context, app *Application) error

func (s *Service) stage(stage Stage) stageFunc {
	switch stage {
	case StageParse:
		return s.parse
	case StageResearch:
		return s.researchCompany
	case StageGapQuestions:
		return s.gapQuestions
	case StageGapAnswers:
		return s.gapAnswers
	case StageVPR, StageTailorCV, StageCoverLetter, StageInterviewPrep:
		return func(ctx context.Context, app *Application) error {
			return s.generateArtifacts(ctx, app, plans[stage])
		}
	default:
		return func(context.Context, *Application) error {
			return fmt.Errorf("unknown stage %q", stage)
		}
	}
}

type parsedFact struct {
	Ref         string `json:"ref"`
	Text        string `json:"text"`
	Destination string `json:"destination"`
	Theme       string `json:"theme"`
}

// parse commits résumé facts, extracting them with the model when only raw text was uploaded.
func (s *Service) parse(ctx context.Context, app *Application) error {
	facts := app.Input.ResumeFacts
	if len(facts) == 0 {
		extracted, err := s.extractFacts(ctx, *app)
		if err != nil {
			return err
		}
		facts = extracted
	}

	out := make([]evidence.Fact, 0, len(facts))
	for i, f := range facts {
		ref := strings.TrimSpace(f.Ref)
		if ref == "" {
			ref = fmt.Sprintf("resume[%d]", i)
		}
		out = append(out, evidence.Fact{
			CandidateID:   app.CandidateID,
			ApplicationID: app.ID,
			Source:        evidence.Source{Kind: evidence.SourceResume, Ref: ref},
			Text:          f.Text,
			Destination:   f.Destination,
			Theme:         f.Theme,
		})
	}
	if len(out) == 0 {
		return errors.New("resume yielded no facts")
	}
	committed, err := s.Evidence.Append(ctx, out...)
	if err != nil {
		return fmt.Errorf("commit resume facts: %w", err)
	}
	telemetry.Info("application.parsed", map[string]any{
		"application_id": app.ID,
		"candidate_id":   app.CandidateID,
		"facts":          len(committed),
	})
	return nil
}

func (s *Service) extractFacts(ctx context.Context, app Application) ([]ResumeFact, error) {
	rendered, err := s.Prompts.Render(prompts.CVParse, parseContext{resumeText: app.Input.ResumeText})
	if err != nil {
		return nil, err
	}
	gen, err := s.LLM.Generate(ctx, llm.Call{
		ApplicationID: app.ID,
		Stage:         string(StageParse),
		Language:      app.CVLanguage,
		Tier:          tier.Tier1,
		Prompt:        rendered,
	})
	if err != nil {
		return nil, err
	}
	var reply struct {
		Facts []parsedFact `json:"facts"`
	}
	if err := llm.DecodeJSON(gen.Text, &reply); err != nil {
		return nil, fmt.Errorf("decode parsed resume: %w", err)
	}

	facts := make([]ResumeFact, 0, len(reply.Facts))
	for _, f := range reply.Facts {
		d, err := evidence.ParseDestination(f.Destination)
		if err != nil || strings.TrimSpace(f.Text) == "" {
			telemetry.Warn("application.parse_fact_dropped", map[string]any{
				"application_id": app.ID,
				"ref":            f.Ref,
				"destination":    f.Destination,
			})
			continue
		}
		facts = append(facts, ResumeFact{Ref: f.Ref, Text: f.Text, Destination: d, Theme: f.Theme})
	}
	return facts, nil
}

// researchCompany builds the company profile. Insufficient information is not a failure; the profile stays empty.
func (s *Service) researchCompany(ctx context.Context, app *Application) error {
	app.Research = nil
	if s.Research == nil {
		return nil
	}
	q := research.Query{
		ApplicationID: app.ID,
		CompanyName:   app.Input.CompanyName,
		CompanyURL:    app.Input.CompanyURL,
		JobPosting:    app.Input.JobPosting,
	}
	var profile research.Profile
	err := s.ResearchPolicy.Enclosing().Do(ctx, string(StageResearch), func(ctx context.Context, attempt int) error {
		p, err := s.Research.Research(ctx, q)
		if err != nil {
			return err
		}
		profile = p
		return nil
	})
	switch {
	case errors.Is(err, research.ErrInsufficient):
		telemetry.Warn("application.research_insufficient", map[string]any{
			"application_id": app.ID,
			"company":        q.CompanyName,
		})
		return nil
	case err != nil:
		return fmt.Errorf("company research: %w", err)
	}
	if !profile.Empty() {
		app.Research = &profile
	}
	return nil
}

type proposedQuestion struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	Theme       string `json:"theme"`
	Destination string `json:"destination"`
	Required    *bool  `json:"required"`
}

// gapQuestions asks the model for missing achievements, listing the candidate's established themes to skip.
func (s *Service) gapQuestions(ctx context.Context, app *Application) error {
	themes, err := s.Evidence.Themes(ctx, app.CandidateID)
	if err != nil {
		return err
	}
	snap, err := s.Evidence.Snapshot(ctx, app.CandidateID)
	if err != nil {
		return err
	}
	limit := s.Config.MaxQuestions
	if limit <= 0 {
		limit = DefaultConfig().MaxQuestions
	}
	rendered, err := s.Prompts.Render(prompts.GapQuestions, gapContext{
		jobPosting:     app.Input.JobPosting,
		companyProfile: app.CompanyProfile(),
		evidence:       snap.Facts,
		themesToSkip:   themes,
		maxQuestions:   limit,
	})
	if err != nil {
		return err
	}
	gen, err := s.LLM.Generate(ctx, llm.Call{
		ApplicationID: app.ID,
		Stage:         string(StageGapQuestions),
		Language:      app.CVLanguage,
		Tier:          tier.Tier1,
		Prompt:        rendered,
		Temperature:   0.3,
		Evidence:      &snap,
	})
	if err != nil {
		return err
	}
	var reply struct {
		Questions []proposedQuestion `json:"questions"`
	}
	if err := llm.DecodeJSON(gen.Text, &reply); err != nil {
		return fmt.Errorf("decode gap questions: %w", err)
	}

	questions := normalizeQuestions(app.ID, reply.Questions, limit)
	if len(questions) == 0 {
		return ErrNoQuestions
	}
	app.Questions = questions
	telemetry.Info("application.gap_questions", map[string]any{
		"application_id": app.ID,
		"questions":      len(questions),
		"themes_skipped": len(themes),
	})
	return nil
}

func normalizeQuestions(applicationID string, proposed []proposedQuestion, limit int) []Question {
	out := make([]Question, 0, len(proposed))
	seen := make(map[string]struct{}, len(proposed))
	for _, p := range proposed {
		text := strings.TrimSpace(p.Text)
		d, err := evidence.ParseDestination(p.Destination)
		if text == "" || err != nil {
			telemetry.Warn("application.gap_question_dropped", map[string]any{
				"application_id": applicationID,
				"question_id":    p.ID,
				"destination":    p.Destination,
			})
			continue
		}
		id := strings.TrimSpace(p.ID)
		if _, dup := seen[id]; id == "" || dup {
			id = fmt.Sprintf("q%d", len(out)+1)
		}
		seen[id] = struct{}{}
		required := true
		if p.Required != nil {
			required = *p.Required
		}
		out = append(out, Question{
			ID:          id,
			Text:        text,
			Theme:       evidence.NormalizeTheme(p.Theme),
			Destination: d,
			Required:    required,
		})
		if len(out) == limit {
			break
		}
	}
	return out
}

// gapAnswers commits submitted answers as facts before any artifact generation reads the store.
func (s *Service) gapAnswers(ctx context.Context, app *Application) error {
	facts := make([]evidence.Fact, 0, len(app.Answers))
	for _, a := range app.Answers {
		q, ok := app.Question(a.QuestionID)
		if !ok {
			continue
		}
		facts = append(facts, evidence.Fact{
			CandidateID:   app.CandidateID,
			ApplicationID: app.ID,
			Source:        evidence.Source{Kind: evidence.SourceGapAnswer, Ref: app.ID + "/" + q.ID},
			Text:          a.Text,
			Destination:   q.Destination,
			Theme:         q.Theme,
		})
	}
	if len(facts) == 0 {
		return nil
	}
	if _, err := s.Evidence.Append(ctx, facts...); err != nil {
		return fmt.Errorf("commit gap answers: %w", err)
	}
	return nil
}

type artifactPlan struct {
	artifact    ArtifactType
	stage       Stage
	template    string
	destination evidence.Destination
	temperature float32
}

var plans = map[Stage]artifactPlan{
	StageVPR:           {ArtifactVPR, StageVPR, prompts.VPR, evidence.CVImpact, 0.4},
	StageTailorCV:      {ArtifactTailoredCV, StageTailorCV, prompts.TailorCV, evidence.CVImpact, 0.3},
	StageCoverLetter:   {ArtifactCoverLetter, StageCoverLetter, prompts.CoverLetter, evidence.InterviewOnly, 0.6},
	StageInterviewPrep: {ArtifactInterviewPrep, StageInterviewPrep, prompts.InterviewPrep, evidence.InterviewOnly, 0.5},
}

// generateArtifacts produces one artifact per output language. Languages already produced are skipped,
// so a resumed stage never regenerates finished work.
func (s *Service) generateArtifacts(ctx context.Context, app *Application, plan artifactPlan) error {
	existing, err := s.Repo.ListArtifacts(ctx, app.ID)
	if err != nil {
		return err
	}
	snap, err := s.Evidence.Snapshot(ctx, app.CandidateID)
	if err != nil {
		return err
	}
	t, err := tier.Classify(tier.Descriptor{Name: string(plan.artifact), Destination: plan.destination})
	if err != nil {
		return err
	}
	promptFacts := snap.Facts
	if plan.destination == evidence.CVImpact {
		promptFacts = snap.Filter(evidence.CVImpact)
	}

	for _, lang := range app.OutputLanguages {
		if _, ok := findArtifact(existing, plan.artifact, lang); ok {
			continue
		}
		var vp string
		if a, ok := findArtifact(existing, ArtifactVPR, lang); ok {
			vp = a.Text
		}
		block, err := s.Blocks.Produce(ctx, blocks.Spec{
			ApplicationID: app.ID,
			Stage:         string(plan.stage),
			Language:      lang,
			Name:          string(plan.artifact),
			Destination:   plan.destination,
			Template:      plan.template,
			Context: artifactContext{
				language:         lang,
				jobPosting:       app.Input.JobPosting,
				companyProfile:   app.CompanyProfile(),
				resumeText:       app.Input.ResumeText,
				evidence:         promptFacts,
				valueProposition: vp,
				wordBudget:       s.Config.Budgets.WordBudget(t),
				factMin:          s.Config.FactBandMin,
				factMax:          s.Config.FactBandMax,
			},
			Evidence:       snap,
			Temperature:    plan.temperature,
			JobPosting:     app.Input.JobPosting,
			CompanyProfile: app.CompanyProfile(),
		})
		if err != nil {
			return fmt.Errorf("%s (%s): %w", plan.artifact, lang, err)
		}

		artifact := Artifact{
			ApplicationID: app.ID,
			Type:          plan.artifact,
			Language:      lang,
			Status:        block.Status,
			Tier:          block.Tier,
			Text:          block.Text,
			BlockID:       block.ID,
			Reasons:       block.Reasons,
		}
		artifact.ExportKey = s.emit(ctx, *app, artifact)
		saved, _, err := s.Repo.SaveArtifact(ctx, artifact)
		if err != nil {
			return fmt.Errorf("save %s (%s): %w", plan.artifact, lang, err)
		}
		existing = append(existing, saved)
	}
	return nil
}

// emit hands the artifact to the sink. Export failures are logged; the artifact stays retrievable through the API.
func (s *Service) emit(ctx context.Context, app Application, a Artifact) string {
	if s.Export == nil {
		return ""
	}
	key, err := s.Export.Emit(ctx, export.Document{
		CandidateID:   app.CandidateID,
		ApplicationID: app.ID,
		Type:          string(a.Type),
		Language:      a.Language,
		Status:        string(a.Status),
		Content:       a.Text,
	})
	if err != nil {
		telemetry.Warn("application.export_failed", map[string]any{
			"application_id": app.ID,
			"artifact":       a.Type,
			"language":       a.Language,
			"error":          err,
			"request_id":     requestid.From(ctx),
		})
		return ""
	}
	return key
}

func findArtifact(list []Artifact, typ ArtifactType, lang string) (Artifact, bool) {
	for _, a := range list {
		if a.Type == typ && a.Language == lang {
			return a, true
		}
	}
	return Artifact{}, false
}
