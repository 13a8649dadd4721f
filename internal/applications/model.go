// Package applications drives a job application through the generation pipeline.
package applications

import (
	"time"

	"resume-pipeline/internal/blocks"
	"resume-pipeline/internal/evidence"
	"resume-pipeline/internal/research"
	"resume-pipeline/internal/tier"
)

// Status is the externally visible state of an application.
type Status string

const (
	StatusCreated            Status = "CREATED"
	StatusParsing            Status = "PARSING"
	StatusResearching        Status = "RESEARCHING"
	StatusAwaitingGapAnswers Status = "AWAITING_GAP_ANSWERS"
	StatusGeneratingVPR      Status = "GENERATING_VPR"
	StatusGeneratingArtifact Status = "GENERATING_ARTIFACTS"
	StatusCompleted          Status = "COMPLETED"
	StatusFailed             Status = "FAILED"
)

// Terminal reports whether no further stage will run.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Stage names one unit of pipeline work.
type Stage string

const (
	StageParse         Stage = "parse"
	StageResearch      Stage = "research"
	StageGapQuestions  Stage = "gap_questions"
	StageGapAnswers    Stage = "gap_answers"
	StageVPR           Stage = "vpr"
	StageTailorCV      Stage = "tailor_cv"
	StageCoverLetter   Stage = "cover_letter"
	StageInterviewPrep Stage = "interview_prep"
)

// Stages lists the pipeline in execution order.
var Stages = []Stage{
	StageParse,
	StageResearch,
	StageGapQuestions,
	StageGapAnswers,
	StageVPR,
	StageTailorCV,
	StageCoverLetter,
	StageInterviewPrep,
}

// Status is the application status while the stage runs.
func (s Stage) Status() Status {
	switch s {
	case StageParse:
		return StatusParsing
	case StageResearch, StageGapQuestions:
		return StatusResearching
	case StageGapAnswers:
		return StatusAwaitingGapAnswers
	case StageVPR:
		return StatusGeneratingVPR
	case StageTailorCV, StageCoverLetter, StageInterviewPrep:
		return StatusGeneratingArtifact
	default:
		return StatusCreated
	}
}

// StageState is the state of one stage record.
type StageState string

const (
	StageRunning   StageState = "RUNNING"
	StageWaiting   StageState = "WAITING"
	StageCompleted StageState = "COMPLETED"
	StageFailed    StageState = "FAILED"
)

// StageRecord is one entry of an application's stage history.
type StageRecord struct {
	Stage      Stage      `json:"stage"`
	State      StageState `json:"state"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// ResumeFact is a structured fact supplied by the upload step.
type ResumeFact struct {
	Ref         string               `json:"ref"`
	Text        string               `json:"text"`
	Destination evidence.Destination `json:"destination"`
	Theme       string               `json:"theme"`
}

// Input is the immutable request an application was created from.
type Input struct {
	CompanyName string       `json:"companyName"`
	CompanyURL  string       `json:"companyUrl,omitempty"`
	JobPosting  string       `json:"jobPosting"`
	ResumeText  string       `json:"resumeText,omitempty"`
	ResumeFacts []ResumeFact `json:"resumeFacts,omitempty"`
}

// Question is a gap question asked of the candidate.
type Question struct {
	ID          string               `json:"id"`
	Text        string               `json:"text"`
	Theme       string               `json:"theme"`
	Destination evidence.Destination `json:"destination"`
	Required    bool                 `json:"required"`
}

// Answer is the candidate's reply to a gap question.
type Answer struct {
	QuestionID string `json:"questionId"`
	Text       string `json:"text"`
}

// Application is a single job application.
type Application struct {
	ID              string            `json:"id"`
	CandidateID     string            `json:"candidateId"`
	Status          Status            `json:"status"`
	CurrentStage    Stage             `json:"currentStage,omitempty"`
	FailedStage     Stage             `json:"failedStage,omitempty"`
	ErrorMessage    string            `json:"errorMessage,omitempty"`
	CVLanguage      string            `json:"cvLanguage"`
	JobLanguage     string            `json:"jobLanguage"`
	OutputLanguages []string          `json:"outputLanguages"`
	Input           Input             `json:"input"`
	History         []StageRecord     `json:"history"`
	Questions       []Question        `json:"questions,omitempty"`
	Answers         []Answer          `json:"answers,omitempty"`
	AnsweredAt      *time.Time        `json:"answeredAt,omitempty"`
	Research        *research.Profile `json:"research,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// Completed reports whether the stage has a COMPLETED record.
func (a Application) Completed(stage Stage) bool {
	for _, r := range a.History {
		if r.Stage == stage && r.State == StageCompleted {
			return true
		}
	}
	return false
}

// NextStage returns the first stage without a COMPLETED record, or "" when all are done.
func (a Application) NextStage() Stage {
	for _, s := range Stages {
		if !a.Completed(s) {
			return s
		}
	}
	return ""
}

// Question looks up a gap question by id.
func (a Application) Question(id string) (Question, bool) {
	for _, q := range a.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// FailedStatus is the status the application held when its failing stage ran.
func (a Application) FailedStatus() Status {
	if a.FailedStage == "" {
		return ""
	}
	return a.FailedStage.Status()
}

// CompanyProfile renders the research result for prompts; empty when research found nothing.
func (a Application) CompanyProfile() string {
	if a.Research == nil {
		return ""
	}
	return a.Research.Text()
}

func (a Application) clone() Application {
	out := a
	out.OutputLanguages = append([]string(nil), a.OutputLanguages...)
	out.History = append([]StageRecord(nil), a.History...)
	out.Questions = append([]Question(nil), a.Questions...)
	out.Answers = append([]Answer(nil), a.Answers...)
	out.Input.ResumeFacts = append([]ResumeFact(nil), a.Input.ResumeFacts...)
	if a.Research != nil {
		r := *a.Research
		r.Highlights = append([]string(nil), a.Research.Highlights...)
		out.Research = &r
	}
	if a.AnsweredAt != nil {
		t := *a.AnsweredAt
		out.AnsweredAt = &t
	}
	return out
}

// ArtifactType names a generated deliverable.
type ArtifactType string

const (
	ArtifactVPR           ArtifactType = "vpr"
	ArtifactTailoredCV    ArtifactType = "tailored_cv"
	ArtifactCoverLetter   ArtifactType = "cover_letter"
	ArtifactInterviewPrep ArtifactType = "interview_prep"
)

// Artifact is one generated deliverable in one language.
type Artifact struct {
	ID            string        `json:"id"`
	ApplicationID string        `json:"applicationId"`
	Type          ArtifactType  `json:"type"`
	Language      string        `json:"language"`
	Status        blocks.Status `json:"status"`
	Tier          tier.Tier     `json:"tier"`
	Text          string        `json:"text"`
	BlockID       string        `json:"blockId,omitempty"`
	Reasons       []string      `json:"reasons,omitempty"`
	ExportKey     string        `json:"exportKey,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// StageResult is what Advance reports to its caller.
type StageResult struct {
	ApplicationID string     `json:"applicationId"`
	Status        Status     `json:"status"`
	CurrentStage  Stage      `json:"currentStage,omitempty"`
	FailedStage   Stage      `json:"failedStage,omitempty"`
	Error         string     `json:"error,omitempty"`
	// ErrorCode is STAGE_FAILED or BUDGET_EXCEEDED on a FAILED result.
	ErrorCode     string     `json:"errorCode,omitempty"`
	Questions     []Question `json:"questions,omitempty"`
	Artifacts     []Artifact `json:"artifacts,omitempty"`
	CostUSD       float64    `json:"costUsd"`

	cause error
}

// Failure returns the stage failure carried by a FAILED result. It unwraps to the
// underlying error when the failure happened during the Advance that returned r.
func (r StageResult) Failure() error {
	if r.Status != StatusFailed {
		return nil
	}
	return &StageFailure{Stage: r.FailedStage, Message: r.Error, Err: r.cause}
}

// CreateInput is the request to start an application.
type CreateInput struct {
	CandidateID string       `json:"candidateId"`
	CompanyName string       `json:"companyName"`
	CompanyURL  string       `json:"companyUrl"`
	JobPosting  string       `json:"jobPosting"`
	ResumeText  string       `json:"resumeText"`
	ResumeFacts []ResumeFact `json:"resumeFacts"`
	CVLanguage  string       `json:"cvLanguage"`
	JobLanguage string       `json:"jobLanguage"`
}
