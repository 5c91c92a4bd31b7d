package domain

// DayBucket is one day of the rolling activity histogram.
type DayBucket struct {
	Label string `json:"label"`
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// DashboardStats is derived from the record collection on every load and is
// never stored. Total always equals Leve+Moderada+Severa.
type DashboardStats struct {
	Total         int                `json:"total"`
	Leve          int                `json:"leve"`
	Moderada      int                `json:"moderada"`
	Severa        int                `json:"severa"`
	AvgConfidence float64            `json:"avg_confianza"`
	Last7Days     [7]DayBucket       `json:"last_7_days"`
	Recent        []EvaluationRecord `json:"recent"`
}

// ConfidenceBands splits records by model confidence.
type ConfidenceBands struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// PerformanceStats feeds the model performance page.
type PerformanceStats struct {
	Total         int             `json:"total"`
	AvgConfidence float64         `json:"avg_confianza"`
	PctLeve       float64         `json:"pct_leve"`
	PctModerada   float64         `json:"pct_moderada"`
	PctSevera     float64         `json:"pct_severa"`
	Confidence    ConfidenceBands `json:"confidence"`
	// Cumulative donut boundaries in degrees: Leve spans [0,Deg1),
	// Moderada [Deg1,Deg2) and Severa the rest.
	Deg1 float64 `json:"deg1"`
	Deg2 float64 `json:"deg2"`
}
