package genai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RequiredFields returns the dotted paths that must be present (and, for
// arrays and strings, non-empty) in a feature's parsed response. Validation
// is structural only: the pipeline never verifies the correctness of
// generated content, only its shape.
func RequiredFields(feature FeatureKey) []string {
	switch feature {
	case FeatureRoadmap:
		return []string{"personality_summary", "roadmap.phases"}
	case FeatureCareerSuggestions:
		return []string{"strengths", "challenges", "careers"}
	case FeatureInterviewFeedback:
		return []string{"overall_score", "sections"}
	case FeaturePracticeQuestions:
		return []string{"questions"}
	case FeatureAcademicPlan:
		return []string{"summary", "terms"}
	default:
		return nil
	}
}

// ParseAndValidate extracts JSON from raw model output (tolerating markdown
// code-fence wrapping), checks the feature's required fields and returns the
// typed result with Source set to SourceAI.
func ParseAndValidate(feature FeatureKey, raw string) (*Result, error) {
	if !feature.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFeature, feature)
	}

	cleaned := StripMarkdownCodeFences(raw)

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, &MalformedResponseError{Cause: err}
	}

	for _, field := range RequiredFields(feature) {
		value, ok := lookupPath(parsed, field)
		if !ok {
			return nil, &IncompleteResponseError{Field: field}
		}
		switch v := value.(type) {
		case []interface{}:
			if len(v) == 0 {
				return nil, &IncompleteResponseError{Field: field}
			}
		case string:
			if strings.TrimSpace(v) == "" {
				return nil, &IncompleteResponseError{Field: field}
			}
		case nil:
			return nil, &IncompleteResponseError{Field: field}
		}
	}

	result := &Result{Feature: feature, Source: SourceAI}
	var err error
	switch feature {
	case FeatureRoadmap:
		result.Roadmap = &RoadmapResult{}
		err = json.Unmarshal([]byte(cleaned), result.Roadmap)
	case FeatureCareerSuggestions:
		result.Suggestions = &CareerSuggestionsResult{}
		err = json.Unmarshal([]byte(cleaned), result.Suggestions)
	case FeatureInterviewFeedback:
		result.Interview = &InterviewFeedbackResult{}
		err = json.Unmarshal([]byte(cleaned), result.Interview)
	case FeaturePracticeQuestions:
		result.Practice = &PracticeQuestionsResult{}
		err = json.Unmarshal([]byte(cleaned), result.Practice)
	case FeatureAcademicPlan:
		result.Academic = &AcademicPlanResult{}
		err = json.Unmarshal([]byte(cleaned), result.Academic)
	}
	if err != nil {
		return nil, &MalformedResponseError{Cause: err}
	}

	return result, nil
}

// StripMarkdownCodeFences removes a leading ```json (or bare ```) fence and
// the matching trailing fence, if present. Models wrap JSON in fences even
// when told not to.
func StripMarkdownCodeFences(text string) string {
	cleaned := strings.TrimSpace(text)

	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}

	// Drop the opening fence line (``` or ```json).
	if idx := strings.IndexByte(cleaned, '\n'); idx >= 0 {
		cleaned = cleaned[idx+1:]
	} else {
		return cleaned
	}

	cleaned = strings.TrimRight(cleaned, " \t\r\n")
	if strings.HasSuffix(cleaned, "```") {
		cleaned = cleaned[:len(cleaned)-3]
	}

	return strings.TrimSpace(cleaned)
}

// lookupPath resolves a dotted path ("roadmap.phases") in parsed JSON.
func lookupPath(parsed map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var current interface{} = parsed
	for _, part := range parts {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
