package genai

import (
	"fmt"
	"strings"
)

// BuildPrompt turns a request's structured input into the instruction text
// for the completion call. Pure and deterministic: identical input always
// yields identical prompt text.
func BuildPrompt(req *Request) (string, error) {
	switch req.Feature {
	case FeatureRoadmap:
		if req.Roadmap == nil {
			return "", ErrMissingInput
		}
		return buildRoadmapPrompt(req.Roadmap), nil
	case FeatureCareerSuggestions:
		if req.Suggestions == nil {
			return "", ErrMissingInput
		}
		return buildCareerSuggestionsPrompt(req.Suggestions), nil
	case FeatureInterviewFeedback:
		if req.Interview == nil {
			return "", ErrMissingInput
		}
		return buildInterviewFeedbackPrompt(req.Interview), nil
	case FeaturePracticeQuestions:
		if req.Practice == nil {
			return "", ErrMissingInput
		}
		return buildPracticeQuestionsPrompt(req.Practice), nil
	case FeatureAcademicPlan:
		if req.Academic == nil {
			return "", ErrMissingInput
		}
		return buildAcademicPlanPrompt(req.Academic), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFeature, req.Feature)
	}
}

const jsonOnlyInstruction = "Return ONLY valid JSON matching the schema above. No markdown fences, no commentary, no surrounding prose."

func buildRoadmapPrompt(in *RoadmapInput) string {
	return fmt.Sprintf(`You are an experienced career counselor for the Tanzanian job market, building a practical career roadmap for a young professional.

PROFILE:
Career goal: %s
Education level: %s
Current role: %s
Interests: %s
Skills: %s
Region: %s
Current date: %s

Build a realistic, phased roadmap toward the stated career goal. Ground it in the Tanzanian context: reference real institutions (e.g. University of Dar es Salaam, Sokoine University of Agriculture, VETA vocational centres) and quote costs or salaries in Tanzanian Shillings (TZS) with realistic ranges. Each phase needs a clear duration (e.g. "6 months", "1-2 years") and 3-5 concrete milestones the user can check off.

Respond with JSON in exactly this shape:
{
  "personality_summary": "2-3 sentence summary of the person's profile and fit for the goal",
  "roadmap": {
    "phases": [
      {
        "name": "phase name",
        "duration": "expected duration",
        "focus": "what this phase is about",
        "milestones": ["concrete milestone", "..."]
      }
    ]
  }
}

"phases" must contain at least 3 entries. %s`,
		fallbackLabel(in.CareerGoal),
		fallbackLabel(in.EducationLevel),
		fallbackLabel(in.CurrentRole),
		labelList(in.Interests),
		labelList(in.Skills),
		fallbackLabel(in.Region),
		fallbackLabel(in.CurrentDate),
		jsonOnlyInstruction)
}

func buildCareerSuggestionsPrompt(in *CareerSuggestionsInput) string {
	return fmt.Sprintf(`You are a career guidance advisor helping a Tanzanian student or early-career professional discover suitable careers.

PROFILE:
Education level: %s
Favourite subjects: %s
Interests: %s
Self-reported strengths: %s
Preferred work style: %s

Suggest 3-5 careers with strong prospects in Tanzania and East Africa. For each, give a match percentage (0-100), a short reason tied to the profile, and a realistic monthly salary range in TZS (e.g. "800,000 - 1,500,000 TZS").

Respond with JSON in exactly this shape:
{
  "strengths": ["observed strength", "..."],
  "challenges": ["growth area to work on", "..."],
  "careers": [
    {
      "title": "career title",
      "match_percent": 85,
      "reason": "why this fits the profile",
      "monthly_salary_tzs": "realistic range in TZS"
    }
  ]
}

All three arrays must be non-empty. %s`,
		fallbackLabel(in.EducationLevel),
		labelList(in.Subjects),
		labelList(in.Interests),
		labelList(in.Strengths),
		fallbackLabel(in.WorkStyle),
		jsonOnlyInstruction)
}

func buildInterviewFeedbackPrompt(in *InterviewFeedbackInput) string {
	var transcript strings.Builder
	for i, q := range in.Questions {
		answer := ""
		if i < len(in.Answers) {
			answer = in.Answers[i]
		}
		fmt.Fprintf(&transcript, "Q%d: %s\nA%d: %s\n\n", i+1, q, i+1, answer)
	}

	return fmt.Sprintf(`You are a hiring manager reviewing a mock interview for a %s position (level: %s). Score the candidate's answers honestly but constructively.

TRANSCRIPT:
%s
Score each of these sections from 0-100: "Communication", "Technical Depth", "Structure", "Confidence". Then give an overall score and a short summary with the single most important improvement.

Respond with JSON in exactly this shape:
{
  "overall_score": 72,
  "summary": "2-3 sentence overall assessment",
  "sections": [
    {"name": "Communication", "score": 80, "feedback": "specific feedback"},
    {"name": "Technical Depth", "score": 65, "feedback": "specific feedback"},
    {"name": "Structure", "score": 70, "feedback": "specific feedback"},
    {"name": "Confidence", "score": 75, "feedback": "specific feedback"}
  ]
}

"sections" must be non-empty. %s`,
		fallbackLabel(in.Role),
		fallbackLabel(in.Level),
		transcript.String(),
		jsonOnlyInstruction)
}

func buildPracticeQuestionsPrompt(in *PracticeQuestionsInput) string {
	count := in.Count
	if count <= 0 {
		count = 5
	}
	return fmt.Sprintf(`You are an interview coach preparing a candidate for a %s role.

Topic: %s
Difficulty: %s

Write %d interview practice questions. For each, include a model answer a strong candidate would give and a short explanation of what the interviewer is probing for.

Respond with JSON in exactly this shape:
{
  "questions": [
    {
      "question": "the interview question",
      "answer": "a strong model answer",
      "explanation": "what the interviewer is looking for"
    }
  ]
}

"questions" must contain exactly %d entries. %s`,
		fallbackLabel(in.Role),
		fallbackLabel(in.Topic),
		fallbackLabel(in.Difficulty),
		count,
		count,
		jsonOnlyInstruction)
}

func buildAcademicPlanPrompt(in *AcademicPlanInput) string {
	gradYear := "unspecified"
	if in.GraduationYear > 0 {
		gradYear = fmt.Sprintf("%d", in.GraduationYear)
	}
	return fmt.Sprintf(`You are an academic advisor for Tanzanian students, planning the path toward a target programme.

Education level: %s
Target programme: %s
Current subjects: %s
Expected graduation year: %s

Plan term by term toward the target programme. Reference the Tanzanian education system (NECTA examinations, form levels, TCU admission requirements) where relevant, and keep subject loads realistic.

Respond with JSON in exactly this shape:
{
  "summary": "2-3 sentence overview of the plan",
  "terms": [
    {
      "name": "term name, e.g. Form 5 Term 1",
      "subjects": ["subject", "..."],
      "goals": ["specific goal for this term", "..."]
    }
  ]
}

"terms" must be non-empty. %s`,
		fallbackLabel(in.EducationLevel),
		fallbackLabel(in.TargetProgram),
		labelList(in.Subjects),
		gradYear,
		jsonOnlyInstruction)
}

// fallbackLabel renders an optional field for prompt text.
func fallbackLabel(s string) string {
	if strings.TrimSpace(s) == "" {
		return "not specified"
	}
	return s
}

// labelList renders a string list as a comma-separated prompt field.
func labelList(items []string) string {
	if len(items) == 0 {
		return "not specified"
	}
	return strings.Join(items, ", ")
}
