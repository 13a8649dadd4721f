package prompts

// Template names shipped with the binary.
const (
	CVParse              = "cv_parse"
	CompanyResearch      = "company_research"
	GapQuestions         = "gap_questions"
	VPR                  = "vpr"
	TailorCV             = "tailor_cv"
	CoverLetter          = "cover_letter"
	InterviewPrep        = "interview_prep"
	VerifyFact           = "verify_fact"
	VerifyAlignment      = "verify_alignment"
	VerifyTone           = "verify_tone"
	RegenerationFeedback = "regeneration_feedback"
)
