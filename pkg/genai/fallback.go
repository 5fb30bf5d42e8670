package genai

import (
	"fmt"
	"strings"
)

// GenerateFallback produces a deterministic, offline substitute result for a
// feature. It satisfies the same required-field contract as AI-sourced
// content, so downstream consumers never special-case the two. Invoked when
// the provider call fails or its response fails structural validation.
func GenerateFallback(req *Request) (*Result, error) {
	result := &Result{Feature: req.Feature, Source: SourceFallback}

	switch req.Feature {
	case FeatureRoadmap:
		if req.Roadmap == nil {
			return nil, ErrMissingInput
		}
		result.Roadmap = fallbackRoadmap(req.Roadmap)
	case FeatureCareerSuggestions:
		if req.Suggestions == nil {
			return nil, ErrMissingInput
		}
		result.Suggestions = fallbackSuggestions(req.Suggestions)
	case FeatureInterviewFeedback:
		if req.Interview == nil {
			return nil, ErrMissingInput
		}
		result.Interview = fallbackInterview(req.Interview)
	case FeaturePracticeQuestions:
		if req.Practice == nil {
			return nil, ErrMissingInput
		}
		result.Practice = fallbackPractice(req.Practice)
	case FeatureAcademicPlan:
		if req.Academic == nil {
			return nil, ErrMissingInput
		}
		result.Academic = fallbackAcademic(req.Academic)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFeature, req.Feature)
	}

	return result, nil
}

func fallbackRoadmap(in *RoadmapInput) *RoadmapResult {
	goal := in.CareerGoal
	if goal == "" {
		goal = "your chosen career"
	}

	// Coarse branching on education level: pre-university profiles get a
	// study-focused first phase.
	firstPhase := RoadmapPhase{
		Name:     "Build the foundation",
		Duration: "6-12 months",
		Focus:    fmt.Sprintf("Core skills and qualifications needed for %s", goal),
		Milestones: []string{
			fmt.Sprintf("List the entry requirements for %s", goal),
			"Complete one short course or certificate in the field",
			"Find a mentor already working in the field",
		},
	}
	if isPreUniversity(in.EducationLevel) {
		firstPhase = RoadmapPhase{
			Name:     "Finish your studies strong",
			Duration: "1-2 years",
			Focus:    "Academic results that open doors to the next level",
			Milestones: []string{
				"Keep subject grades at division II or better",
				fmt.Sprintf("Research programmes related to %s at UDSM, SUA or a VETA centre", goal),
				"Sit the NECTA examinations with a clear target",
			},
		}
	}

	return &RoadmapResult{
		PersonalitySummary: fmt.Sprintf(
			"A motivated candidate at the %s level working toward %s. This is a general starter plan; a personalized AI roadmap can be generated when the service is available.",
			fallbackLabel(in.EducationLevel), goal),
		Roadmap: RoadmapBody{
			Phases: []RoadmapPhase{
				firstPhase,
				{
					Name:     "Gain practical experience",
					Duration: "1-2 years",
					Focus:    "Turning knowledge into demonstrable work",
					Milestones: []string{
						"Complete an internship or volunteer placement",
						"Build a portfolio of 2-3 finished projects",
						"Attend at least one industry event or career fair",
					},
				},
				{
					Name:     "Establish yourself",
					Duration: "2-3 years",
					Focus:    fmt.Sprintf("A stable position and growth in %s", goal),
					Milestones: []string{
						"Secure a full-time role in the field",
						"Save toward further certification (budget 500,000 - 2,000,000 TZS)",
						"Mentor someone starting the same path",
					},
				},
			},
		},
	}
}

func fallbackSuggestions(in *CareerSuggestionsInput) *CareerSuggestionsResult {
	careers := []CareerMatch{
		{
			Title:            "Small Business Owner / Entrepreneur",
			MatchPercent:     70,
			Reason:           "Entrepreneurship rewards initiative at every education level and is a strong path in the Tanzanian economy.",
			MonthlySalaryTZS: "400,000 - 3,000,000 TZS",
		},
	}

	// Keyword-driven additions keep the list relevant without any model.
	if containsAny(in.Interests, "computer", "technology", "coding", "software") {
		careers = append(careers, CareerMatch{
			Title:            "Software Developer",
			MatchPercent:     80,
			Reason:           "Stated interest in technology; demand for developers in Dar es Salaam and remote roles keeps growing.",
			MonthlySalaryTZS: "1,200,000 - 4,000,000 TZS",
		})
	}
	if containsAny(in.Subjects, "biology", "chemistry") || containsAny(in.Interests, "health", "medicine") {
		careers = append(careers, CareerMatch{
			Title:            "Clinical Officer",
			MatchPercent:     75,
			Reason:           "Science subjects and health interests map directly to clinical training programmes.",
			MonthlySalaryTZS: "800,000 - 2,000,000 TZS",
		})
	}
	if containsAny(in.Subjects, "mathematics", "commerce", "book-keeping") {
		careers = append(careers, CareerMatch{
			Title:            "Accountant",
			MatchPercent:     72,
			Reason:           "Strength in mathematics and commerce subjects suits professional accountancy (NBAA track).",
			MonthlySalaryTZS: "900,000 - 2,500,000 TZS",
		})
	}
	if len(careers) == 1 {
		careers = append(careers, CareerMatch{
			Title:            "Teacher",
			MatchPercent:     65,
			Reason:           "Teaching is a stable, respected path open from diploma level upward.",
			MonthlySalaryTZS: "600,000 - 1,500,000 TZS",
		})
	}

	strengths := in.Strengths
	if len(strengths) == 0 {
		strengths = []string{"Willingness to learn", "Commitment to personal growth"}
	}

	return &CareerSuggestionsResult{
		Strengths:  strengths,
		Challenges: []string{"Needs more exposure to real working environments", "Should narrow down a primary career direction"},
		Careers:    careers,
	}
}

func fallbackInterview(in *InterviewFeedbackInput) *InterviewFeedbackResult {
	answered := 0
	for _, a := range in.Answers {
		if strings.TrimSpace(a) != "" {
			answered++
		}
	}
	// Score scales with completion only. Content is not assessed offline.
	score := 40
	if len(in.Questions) > 0 {
		score = 40 + (35*answered)/len(in.Questions)
	}

	return &InterviewFeedbackResult{
		OverallScore: score,
		Summary: fmt.Sprintf(
			"You answered %d of %d questions for the %s role. This is a general assessment; detailed AI scoring of your answers was not available.",
			answered, len(in.Questions), fallbackLabel(in.Role)),
		Sections: []FeedbackSection{
			{Name: "Communication", Score: score, Feedback: "Practice answering out loud and keep responses under two minutes."},
			{Name: "Technical Depth", Score: score, Feedback: "Back up claims with one concrete example from your own work or studies."},
			{Name: "Structure", Score: score, Feedback: "Use the situation-task-action-result pattern to organize answers."},
			{Name: "Confidence", Score: score, Feedback: "Completing every question, even briefly, shows composure under pressure."},
		},
	}
}

func fallbackPractice(in *PracticeQuestionsInput) *PracticeQuestionsResult {
	role := fallbackLabel(in.Role)
	base := []PracticeQuestion{
		{
			Question:    fmt.Sprintf("Tell me about yourself and why you want to work as a %s.", role),
			Answer:      "A strong answer covers your background in under two minutes, connects it to the role, and ends with why this position specifically.",
			Explanation: "Interviewers open with this to assess communication and preparation.",
		},
		{
			Question:    "Describe a challenge you faced and how you handled it.",
			Answer:      "Pick a real situation, explain the task, the action you personally took, and the measurable result.",
			Explanation: "Behavioral questions probe for evidence of problem-solving, not hypotheticals.",
		},
		{
			Question:    fmt.Sprintf("What do you consider the most important skill for a %s, and how have you built it?", role),
			Answer:      "Name one skill central to the role and give a specific example of developing or applying it.",
			Explanation: "Tests self-awareness and whether you understand what the job actually requires.",
		},
		{
			Question:    "Where do you see yourself in five years?",
			Answer:      "Show ambition that fits the organization: growth in the role, added responsibility, further qualification.",
			Explanation: "Checks whether your goals align with what the employer can offer.",
		},
		{
			Question:    "Do you have any questions for us?",
			Answer:      "Always ask at least one: about the team, success criteria for the role, or growth opportunities.",
			Explanation: "Asking nothing signals low interest; good questions show engagement.",
		},
	}

	count := in.Count
	if count <= 0 || count > len(base) {
		count = len(base)
	}
	return &PracticeQuestionsResult{Questions: base[:count]}
}

func fallbackAcademic(in *AcademicPlanInput) *AcademicPlanResult {
	program := fallbackLabel(in.TargetProgram)
	subjects := in.Subjects
	if len(subjects) == 0 {
		subjects = []string{"Mathematics", "English"}
	}

	return &AcademicPlanResult{
		Summary: fmt.Sprintf(
			"A general plan toward %s from the %s level. Focus on consistent results in your core subjects and confirm the programme's admission requirements early.",
			program, fallbackLabel(in.EducationLevel)),
		Terms: []AcademicTerm{
			{
				Name:     "This term",
				Subjects: subjects,
				Goals: []string{
					"Confirm the exact admission requirements for " + program,
					"Identify your weakest core subject and schedule weekly revision",
				},
			},
			{
				Name:     "Next term",
				Subjects: subjects,
				Goals: []string{
					"Raise performance in the weakest subject by one grade band",
					"Complete past examination papers under timed conditions",
				},
			},
			{
				Name:     "Final term before examinations",
				Subjects: subjects,
				Goals: []string{
					"Full revision cycle across all examined subjects",
					"Submit applications before the TCU deadline",
				},
			},
		},
	}
}

func isPreUniversity(level string) bool {
	l := strings.ToLower(level)
	return strings.Contains(l, "primary") ||
		strings.Contains(l, "secondary") ||
		strings.Contains(l, "form") ||
		strings.Contains(l, "o-level") ||
		strings.Contains(l, "a-level")
}

func containsAny(items []string, keywords ...string) bool {
	for _, item := range items {
		lower := strings.ToLower(item)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
	}
	return false
}
