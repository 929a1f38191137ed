package analyzer

import "github.com/zombar/feedbackpulse/internal/models"

// ClassifyPriority applies the priority rules in order; the first match wins.
//
//  1. score < 0.2                                        -> CRITICAL
//  2. score < 0.4                                        -> HIGH
//  3. Support or Quality scoring > 0.7 and score < 0.6   -> HIGH
//  4. score < 0.6                                        -> MEDIUM
//  5. otherwise                                          -> LOW
func ClassifyPriority(sentiment models.SentimentResult, categories []models.CategoryResult) models.Priority {
	score := sentiment.Score
	if score < 0.2 {
		return models.PriorityCritical
	}
	if score < 0.4 {
		return models.PriorityHigh
	}
	if score < 0.6 {
		for _, c := range categories {
			if (c.Name == models.CategorySupport || c.Name == models.CategoryQuality) && c.Score > 0.7 {
				return models.PriorityHigh
			}
		}
		return models.PriorityMedium
	}
	return models.PriorityLow
}

const maxSuggestedActions = 4

var priorityActions = map[models.Priority][]string{
	models.PriorityCritical: {"Immediate follow-up required", "Escalate to management"},
	models.PriorityHigh:     {"Schedule follow-up within 48 hours"},
}

var categoryActions = map[string]string{
	models.CategoryCommunication:  "Improve communication processes",
	models.CategoryQuality:        "Review quality assurance procedures",
	models.CategoryTimeline:       "Review project timelines and resourcing",
	models.CategorySupport:        "Enhance support team training",
	models.CategoryValue:          "Review pricing and value proposition",
	models.CategoryUserExperience: "Review user experience design",
	models.CategoryFeatures:       "Evaluate feature requests for the roadmap",
	models.CategoryPerformance:    "Investigate performance bottlenecks",
	models.CategoryDocumentation:  "Update documentation",
}

var fallbackActions = []string{"Acknowledge feedback", "Continue current approach"}

// SuggestActions derives follow-up actions from priority and categories.
// Priority actions come first, then one action per category, deduplicated
// and capped at four. Never empty.
func SuggestActions(priority models.Priority, categories []models.CategoryResult) []string {
	seen := make(map[string]bool)
	var actions []string
	add := func(a string) {
		if a == "" || seen[a] || len(actions) >= maxSuggestedActions {
			return
		}
		seen[a] = true
		actions = append(actions, a)
	}

	for _, a := range priorityActions[priority] {
		add(a)
	}
	for _, c := range categories {
		add(categoryActions[c.Name])
	}

	if len(actions) == 0 {
		return append([]string(nil), fallbackActions...)
	}
	return actions
}
