package models

import "time"

// SentimentLabel is the five-way bucket derived from a sentiment score
type SentimentLabel string

const (
	LabelVeryNegative SentimentLabel = "VERY_NEGATIVE"
	LabelNegative     SentimentLabel = "NEGATIVE"
	LabelNeutral      SentimentLabel = "NEUTRAL"
	LabelPositive     SentimentLabel = "POSITIVE"
	LabelVeryPositive SentimentLabel = "VERY_POSITIVE"
)

// Priority is the urgency classification of a piece of feedback
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
)

// Category vocabulary
const (
	CategoryCommunication   = "Communication"
	CategoryQuality         = "Quality"
	CategoryTimeline        = "Timeline"
	CategorySupport         = "Support"
	CategoryValue           = "Value"
	CategoryUserExperience  = "User Experience"
	CategoryFeatures        = "Features"
	CategoryPerformance     = "Performance"
	CategoryDocumentation   = "Documentation"
	CategoryGeneralFeedback = "General Feedback"
)

// SentimentResult is the polarity of a piece of text on a 0-1 scale.
// Build it with NewSentimentResult so Label always matches Score.
type SentimentResult struct {
	Score      float64        `json:"score"`
	Label      SentimentLabel `json:"label"`
	Confidence float64        `json:"confidence"`
	Reasoning  string         `json:"reasoning,omitempty"`
}

// NewSentimentResult clamps score and confidence to [0,1] and derives the label
func NewSentimentResult(score, confidence float64, reasoning string) SentimentResult {
	score = clamp01(score)
	return SentimentResult{
		Score:      score,
		Label:      LabelForScore(score),
		Confidence: clamp01(confidence),
		Reasoning:  reasoning,
	}
}

// NeutralSentiment is used wherever analysis could not produce a score
func NeutralSentiment(reasoning string) SentimentResult {
	return NewSentimentResult(0.5, 0.5, reasoning)
}

// LabelForScore maps a score onto the half-open label buckets [t, next)
func LabelForScore(score float64) SentimentLabel {
	switch {
	case score >= 0.8:
		return LabelVeryPositive
	case score >= 0.6:
		return LabelPositive
	case score >= 0.4:
		return LabelNeutral
	case score >= 0.2:
		return LabelNegative
	default:
		return LabelVeryNegative
	}
}

// CategoryResult is one topical bucket assigned to a text
type CategoryResult struct {
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
	Relevance float64 `json:"relevance"`
}

// GeneralFeedbackCategory is emitted when no keyword category clears the threshold
func GeneralFeedbackCategory() CategoryResult {
	return CategoryResult{Name: CategoryGeneralFeedback, Score: 0.7, Relevance: 0.7}
}

// Topics holds the first two category names of an analysis
type Topics struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary,omitempty"`
}

// AnalysisResult is the outcome of analyzing one text field
type AnalysisResult struct {
	Sentiment        SentimentResult  `json:"sentiment"`
	Categories       []CategoryResult `json:"categories"`
	KeyPhrases       []string         `json:"keyPhrases"`
	Topics           Topics           `json:"topics"`
	Priority         Priority         `json:"priority"`
	SuggestedActions []string         `json:"suggestedActions"`
	ProcessingTime   time.Duration    `json:"processingTime"`
}

// Survey status values
const (
	SurveyStatusDraft     = "draft"
	SurveyStatusPublished = "published"
	SurveyStatusClosed    = "closed"
)

// Survey is the subset of a survey document the analysis pipeline reads
type Survey struct {
	ID             string    `json:"id" bson:"_id"`
	Title          string    `json:"title" bson:"title"`
	Status         string    `json:"status" bson:"status"`
	ProjectID      string    `json:"projectId,omitempty" bson:"projectId,omitempty"`
	ClientID       string    `json:"clientId,omitempty" bson:"clientId,omitempty"`
	OrganizationID string    `json:"organizationId,omitempty" bson:"organizationId,omitempty"`
	CreatedAt      time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Response is a single submitted survey response
type Response struct {
	ID             string         `json:"id" bson:"_id"`
	SurveyID       string         `json:"surveyId" bson:"surveyId"`
	ResponseData   map[string]any `json:"responseData" bson:"responseData"`
	CompletionRate float64        `json:"completionRate" bson:"completionRate"`
	CreatedAt      time.Time      `json:"createdAt" bson:"createdAt"`
}

// Scope narrows a metrics query. Empty fields do not filter.
type Scope struct {
	ProjectID      string `json:"projectId,omitempty"`
	ClientID       string `json:"clientId,omitempty"`
	OrganizationID string `json:"organizationId,omitempty"`
}

// Matches reports whether a survey belongs to the scope
func (s Scope) Matches(survey Survey) bool {
	if s.ProjectID != "" && survey.ProjectID != s.ProjectID {
		return false
	}
	if s.ClientID != "" && survey.ClientID != s.ClientID {
		return false
	}
	if s.OrganizationID != "" && survey.OrganizationID != s.OrganizationID {
		return false
	}
	return true
}

// StoredAnalysis is a persisted AnalysisResult for one response field
type StoredAnalysis struct {
	ID         string         `json:"id"`
	ResponseID string         `json:"responseId"`
	FieldKey   string         `json:"fieldKey"`
	Result     AnalysisResult `json:"result"`
	CreatedAt  time.Time      `json:"createdAt"`
}

func clamp01(v float64) float64 {
	if v != v { // NaN
		return 0.5
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
