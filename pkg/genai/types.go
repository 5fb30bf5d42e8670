// Package genai implements the AI content generation pipeline with credit
// metering: entitlement gate, prompt building, provider call, structural
// validation, deterministic fallback and an atomic ledger commit.
package genai

// FeatureKey identifies which generation capability is being invoked.
type FeatureKey string

const (
	// FeatureRoadmap generates a phased career roadmap.
	FeatureRoadmap FeatureKey = "roadmap"
	// FeatureCareerSuggestions generates strengths, challenges and career
	// matches from an onboarding profile.
	FeatureCareerSuggestions FeatureKey = "career-suggestions"
	// FeatureInterviewFeedback scores recorded interview answers.
	FeatureInterviewFeedback FeatureKey = "interview-feedback"
	// FeaturePracticeQuestions generates interview practice questions.
	FeaturePracticeQuestions FeatureKey = "practice-questions"
	// FeatureAcademicPlan generates a term-by-term academic plan.
	FeatureAcademicPlan FeatureKey = "academic-plan"
)

// Features lists all known feature keys.
func Features() []FeatureKey {
	return []FeatureKey{
		FeatureRoadmap,
		FeatureCareerSuggestions,
		FeatureInterviewFeedback,
		FeaturePracticeQuestions,
		FeatureAcademicPlan,
	}
}

// Valid reports whether k is a known feature key.
func (k FeatureKey) Valid() bool {
	switch k {
	case FeatureRoadmap, FeatureCareerSuggestions, FeatureInterviewFeedback,
		FeaturePracticeQuestions, FeatureAcademicPlan:
		return true
	}
	return false
}

// Source records where a result came from so UI layers can disclose a
// generic plan vs a personalized AI plan.
type Source string

const (
	// SourceAI marks provider-generated, validated content.
	SourceAI Source = "ai"
	// SourceFallback marks deterministic offline substitute content.
	SourceFallback Source = "fallback"
)

// Input payloads. Each is a flat record; prompts built from them are pure
// functions of these fields (callers pass CurrentDate explicitly so prompt
// text has no hidden clock reads).

// RoadmapInput describes the user profile for roadmap generation.
type RoadmapInput struct {
	CareerGoal     string   `json:"career_goal"`
	EducationLevel string   `json:"education_level"`
	CurrentRole    string   `json:"current_role,omitempty"`
	Interests      []string `json:"interests,omitempty"`
	Skills         []string `json:"skills,omitempty"`
	Region         string   `json:"region,omitempty"`
	CurrentDate    string   `json:"current_date,omitempty"`
}

// CareerSuggestionsInput describes an onboarding profile.
type CareerSuggestionsInput struct {
	EducationLevel string   `json:"education_level"`
	Subjects       []string `json:"subjects,omitempty"`
	Interests      []string `json:"interests,omitempty"`
	Strengths      []string `json:"strengths,omitempty"`
	WorkStyle      string   `json:"work_style,omitempty"`
}

// InterviewFeedbackInput carries a finished mock-interview transcript.
type InterviewFeedbackInput struct {
	Role      string   `json:"role"`
	Level     string   `json:"level,omitempty"`
	Questions []string `json:"questions"`
	Answers   []string `json:"answers"`
}

// PracticeQuestionsInput describes the requested question set.
type PracticeQuestionsInput struct {
	Role       string `json:"role"`
	Topic      string `json:"topic,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
	Count      int    `json:"count,omitempty"`
}

// AcademicPlanInput describes the student's academic situation.
type AcademicPlanInput struct {
	EducationLevel string   `json:"education_level"`
	TargetProgram  string   `json:"target_program"`
	Subjects       []string `json:"subjects,omitempty"`
	GraduationYear int      `json:"graduation_year,omitempty"`
}

// Request is one ephemeral generation request: created by the caller,
// consumed once, discarded. Exactly one input field matching Feature must
// be set.
type Request struct {
	UserID  string     `json:"user_id"`
	Feature FeatureKey `json:"feature"`

	Roadmap     *RoadmapInput           `json:"roadmap,omitempty"`
	Suggestions *CareerSuggestionsInput `json:"career_suggestions,omitempty"`
	Interview   *InterviewFeedbackInput `json:"interview_feedback,omitempty"`
	Practice    *PracticeQuestionsInput `json:"practice_questions,omitempty"`
	Academic    *AcademicPlanInput      `json:"academic_plan,omitempty"`
}

// Result shapes. Result is a tagged union keyed on Feature: exactly one of
// the typed payloads is set.

// RoadmapPhase is one phase of a career roadmap.
type RoadmapPhase struct {
	Name       string   `json:"name"`
	Duration   string   `json:"duration"`
	Focus      string   `json:"focus"`
	Milestones []string `json:"milestones"`
}

// RoadmapBody wraps the phase list.
type RoadmapBody struct {
	Phases []RoadmapPhase `json:"phases"`
}

// RoadmapResult is the roadmap feature payload.
type RoadmapResult struct {
	PersonalitySummary string      `json:"personality_summary"`
	Roadmap            RoadmapBody `json:"roadmap"`
}

// CareerMatch is one suggested career.
type CareerMatch struct {
	Title            string `json:"title"`
	MatchPercent     int    `json:"match_percent"`
	Reason           string `json:"reason"`
	MonthlySalaryTZS string `json:"monthly_salary_tzs"`
}

// CareerSuggestionsResult is the career-suggestions feature payload.
type CareerSuggestionsResult struct {
	Strengths  []string      `json:"strengths"`
	Challenges []string      `json:"challenges"`
	Careers    []CareerMatch `json:"careers"`
}

// FeedbackSection is one scored section of interview feedback.
type FeedbackSection struct {
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

// InterviewFeedbackResult is the interview-feedback feature payload.
type InterviewFeedbackResult struct {
	OverallScore int               `json:"overall_score"`
	Summary      string            `json:"summary"`
	Sections     []FeedbackSection `json:"sections"`
}

// PracticeQuestion is one question/answer/explanation tuple.
type PracticeQuestion struct {
	Question    string `json:"question"`
	Answer      string `json:"answer"`
	Explanation string `json:"explanation"`
}

// PracticeQuestionsResult is the practice-questions feature payload.
type PracticeQuestionsResult struct {
	Questions []PracticeQuestion `json:"questions"`
}

// AcademicTerm is one term of an academic plan.
type AcademicTerm struct {
	Name     string   `json:"name"`
	Subjects []string `json:"subjects"`
	Goals    []string `json:"goals"`
}

// AcademicPlanResult is the academic-plan feature payload.
type AcademicPlanResult struct {
	Summary string         `json:"summary"`
	Terms   []AcademicTerm `json:"terms"`
}

// Result is a validated generation result.
type Result struct {
	Feature FeatureKey `json:"feature"`
	Source  Source     `json:"source"`

	Roadmap     *RoadmapResult           `json:"roadmap,omitempty"`
	Suggestions *CareerSuggestionsResult `json:"career_suggestions,omitempty"`
	Interview   *InterviewFeedbackResult `json:"interview_feedback,omitempty"`
	Practice    *PracticeQuestionsResult `json:"practice_questions,omitempty"`
	Academic    *AcademicPlanResult      `json:"academic_plan,omitempty"`
}

// Outcome is what Generate hands back to the caller.
type Outcome struct {
	Result *Result `json:"result"`

	// Debited reports whether credits were spent. Fallback results never
	// debit.
	Debited bool `json:"debited"`

	// NewBalance is the balance after a committed debit (-1 otherwise).
	NewBalance int `json:"new_balance"`

	// TransactionID identifies the ledger entry for a committed debit.
	TransactionID string `json:"transaction_id,omitempty"`

	// PromptTokens and CompletionTokens are provider-reported counts,
	// recorded for telemetry only.
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
}

// GenerateOptions are the fixed sampling parameters used per feature.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
}
