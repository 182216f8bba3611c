// Package analysis composes the five specialized language-model agents of
// §4.5 into a single dependency-ordered pipeline: ListQuality,
// DeliveryAnalysis, and Comparison run concurrently, feed Recommendation,
// which feeds ReportFormatting. Every agent call is treated as opaque
// structured data validated by a fixed schema (field presence); a
// misbehaving agent degrades to rule-based heuristics rather than failing
// the pipeline.
package analysis

// Stage selects which report shape ReportFormatting produces.
type Stage string

const (
	StagePreflight Stage = "preflight"
	StageWrapup    Stage = "wrapup"
)

// MetricsVector is the raw/derived metrics shape agents reason over,
// mirroring store.CampaignMetrics without importing the store package
// directly (keeps analysis a leaf in the dependency graph).
type MetricsVector struct {
	RoundNumber     int
	Processed       int64
	Delivered       int64
	Bounced         int64
	HardBounces     int64
	SoftBounces     int64
	Blocked         int64
	Opened          int64
	Clicked         int64
	Unsubscribed    int64
	Complained      int64
	DeliveryRate    float64
	BounceRate      float64
	OpenRate        *float64
	ClickRate       *float64
	UnsubscribeRate float64
	ComplaintRate   float64
}

// ListQualityInput is ListQuality's input contract.
type ListQualityInput struct {
	ListTotal         int64
	Subscribed        int64
	Unsubscribed      int64
	Blocked           int64
	RecentBounceCount int64
	ReputationScore   float64
	ReputationTrend   string
}

// ListQualityResult is ListQuality's output contract.
type ListQualityResult struct {
	HealthScore             float64  `json:"healthScore"`
	Grade                   string   `json:"grade"`
	EngagementPercent       float64  `json:"engagementPercent"`
	RiskFactors             []string `json:"riskFactors"`
	OverallRecommendation   string   `json:"overallRecommendation"`
	EstimatedDeliverability string   `json:"estimatedDeliverability"`
	Degraded                bool     `json:"-"`
}

func (r *ListQualityResult) validate() error {
	if r.Grade == "" || r.OverallRecommendation == "" || r.EstimatedDeliverability == "" {
		return errMissingField
	}
	return nil
}

// DeliveryIssue is one ranked issue in a DeliveryAnalysisResult.
type DeliveryIssue struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// DeliveryAnalysisResult is DeliveryAnalysis's output contract.
type DeliveryAnalysisResult struct {
	Grade           string            `json:"grade"`
	Score           float64           `json:"score"`
	MetricBuckets   map[string]string `json:"metricBuckets"`
	Patterns        []string          `json:"patterns"`
	Issues          []DeliveryIssue   `json:"issues"`
	Recommendations []string          `json:"recommendations"`
	Degraded        bool              `json:"-"`
}

func (r *DeliveryAnalysisResult) validate() error {
	if r.Grade == "" || r.MetricBuckets == nil {
		return errMissingField
	}
	return nil
}

// MetricDelta is one metric's round-over-round movement.
type MetricDelta struct {
	Delta        float64 `json:"delta"`
	Significance string  `json:"significance"`
}

// ComparisonResult is Comparison's output contract.
type ComparisonResult struct {
	Trend      string                 `json:"trend"`
	Deltas     map[string]MetricDelta `json:"deltas"`
	Prediction *string                `json:"prediction,omitempty"`
	Degraded   bool                   `json:"-"`
}

func (r *ComparisonResult) validate() error {
	validTrends := map[string]bool{"improving": true, "stable": true, "declining": true, "first_round": true}
	if !validTrends[r.Trend] {
		return errMissingField
	}
	return nil
}

// Recommendation is one prioritized action item.
type Recommendation struct {
	Priority string `json:"priority"`
	Message  string `json:"message"`
}

// OverallHealth summarizes the campaign's current standing.
type OverallHealth struct {
	Score  float64 `json:"score"`
	Status string  `json:"status"`
	Trend  string  `json:"trend"`
}

// RecommendationResult is Recommendation's output contract.
type RecommendationResult struct {
	ExecutiveSummary   string            `json:"executiveSummary"`
	OverallHealth      OverallHealth     `json:"overallHealth"`
	Recommendations    []Recommendation  `json:"recommendations"`
	Warnings           []string          `json:"warnings"`
	Opportunities      []string          `json:"opportunities"`
	NextRoundStrategy  string            `json:"nextRoundStrategy,omitempty"`
	Degraded           bool              `json:"-"`
}

func (r *RecommendationResult) validate() error {
	if r.ExecutiveSummary == "" || r.OverallHealth.Status == "" {
		return errMissingField
	}
	return nil
}

// ReportFormattingResult is ReportFormatting's output contract: a
// stage-appropriate summary plus common insights/recommendations/warnings.
type ReportFormattingResult struct {
	Summary         string   `json:"summary"`
	Insights        []string `json:"insights"`
	Recommendations []string `json:"recommendations"`
	Warnings        []string `json:"warnings"`
	NextSteps       []string `json:"nextSteps"`
	Degraded        bool     `json:"-"`
}

func (r *ReportFormattingResult) validate() error {
	if r.Summary == "" {
		return errMissingField
	}
	return nil
}

// Result is the pipeline's overall output: whatever agents completed, plus
// a degraded flag set if any agent fell back to heuristics.
type Result struct {
	ListQuality    *ListQualityResult
	Delivery       *DeliveryAnalysisResult
	Comparison     *ComparisonResult
	Recommendation *RecommendationResult
	Report         *ReportFormattingResult
	Degraded       bool
}
