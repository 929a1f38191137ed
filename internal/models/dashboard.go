package models

// SentimentDistribution counts scored text fields per three-way bucket
type SentimentDistribution struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
}

// CriticalIssue is a strongly negative, high-confidence text field
type CriticalIssue struct {
	ID        string  `json:"id"`
	Text      string  `json:"text"`
	Sentiment float64 `json:"sentiment"`
	Survey    string  `json:"survey"`
	Timestamp string  `json:"timestamp"`
}

// Activity types
const (
	ActivityResponse        = "response"
	ActivitySurveyPublished = "survey_published"
)

// ActivityItem is one entry of the dashboard activity feed
type ActivityItem struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Message   string `json:"message"`
	SurveyID  string `json:"surveyId"`
	Timestamp string `json:"timestamp"`
}

// DashboardMetrics is the aggregate view over one scope
type DashboardMetrics struct {
	TotalSurveys          int                   `json:"totalSurveys"`
	TotalResponses        int                   `json:"totalResponses"`
	AvgSentiment          float64               `json:"avgSentiment"`
	CompletionRate        float64               `json:"completionRate"`
	SentimentDistribution SentimentDistribution `json:"sentimentDistribution"`
	CriticalIssues        []CriticalIssue       `json:"criticalIssues"`
	RecentActivity        []ActivityItem        `json:"recentActivity"`
}
