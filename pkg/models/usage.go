package models

import "time"

// UsageEntry is the per-LLM-call record written for every outbound call,
// successful or failed.
type UsageEntry struct {
	ID           string
	UserID       string
	SessionID    string
	Provider     string
	Model        string
	TaskType     string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	LatencyMs    int64
	Success      bool
	ErrorType    string
	ErrorMessage string
	CreatedAt    time.Time
}

// DailyUsage is one (userId, date, provider) aggregate row.
type DailyUsage struct {
	UserID            string    `json:"userId"`
	Date              string    `json:"date"` // YYYY-MM-DD
	Provider          string    `json:"provider"`
	RequestCount      int       `json:"requestCount"`
	SuccessCount      int       `json:"successCount"`
	FailureCount      int       `json:"failureCount"`
	TotalInputTokens  int64     `json:"totalInputTokens"`
	TotalOutputTokens int64     `json:"totalOutputTokens"`
	TotalCostUSD      float64   `json:"totalCostUSD"`
	AvgLatencyMs      float64   `json:"avgLatencyMs"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// CostSummary aggregates spend over a date range.
type CostSummary struct {
	StartDate    string             `json:"startDate"`
	EndDate      string             `json:"endDate"`
	RequestCount int                `json:"requestCount"`
	TotalCostUSD float64            `json:"totalCostUSD"`
	ByProvider   map[string]float64 `json:"byProvider"`
}

// TierOutcome records one tier's confidence and model for analytics.
type TierOutcome struct {
	Tier       string `json:"tier"`
	Model      string `json:"model"`
	Confidence int    `json:"confidence"`
}

// IdentificationRecord is the final per-query analytics row.
type IdentificationRecord struct {
	UserID             string
	SessionID          string
	InputType          InputType
	InputHash          string
	FinalConfidence    int
	FinalAction        Action
	FinalTier          string
	TierOutcomes       []TierOutcome
	TotalCostUSD       float64
	TotalLatencyMs     int64
	IdentifiedProducer string
	IdentifiedWineName string
	IdentifiedVintage  string
	IdentifiedRegion   string
	InferencesApplied  map[string]any
	CreatedAt          time.Time
}
