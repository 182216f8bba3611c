package analysis

import "fmt"

// fallbackListQuality computes a rule-based health score from raw list
// counters when the LLM agent is unavailable, per §4.5's degraded-mode
// requirement.
func fallbackListQuality(in ListQualityInput) *ListQualityResult {
	score := 100.0
	var risks []string

	if in.ListTotal > 0 {
		unsubRate := float64(in.Unsubscribed) / float64(in.ListTotal)
		if unsubRate > 0.05 {
			score -= 30
			risks = append(risks, "high unsubscribe rate")
		}
		blockedRate := float64(in.Blocked) / float64(in.ListTotal)
		if blockedRate > 0.1 {
			score -= 20
			risks = append(risks, "high blocked-address rate")
		}
	}
	if in.RecentBounceCount > 0 {
		score -= 10
		risks = append(risks, "recent bounce activity")
	}
	if in.ReputationScore < 50 {
		score -= 20
		risks = append(risks, "low sender reputation")
	}
	if score < 0 {
		score = 0
	}

	grade := gradeFor(score)
	return &ListQualityResult{
		HealthScore:             score,
		Grade:                   grade,
		EngagementPercent:       0,
		RiskFactors:             risks,
		OverallRecommendation:   "automated heuristic assessment; LLM analysis unavailable",
		EstimatedDeliverability: gradeFor(score),
		Degraded:                true,
	}
}

func gradeFor(score float64) string {
	switch {
	case score >= 90:
		return "excellent"
	case score >= 75:
		return "good"
	case score >= 50:
		return "fair"
	default:
		return "poor"
	}
}

func fallbackDeliveryAnalysis(m MetricsVector) *DeliveryAnalysisResult {
	score := m.DeliveryRate * 100
	buckets := map[string]string{
		"deliveryRate": bucketFor(m.DeliveryRate, 0.98, 0.90),
		"bounceRate":   bucketFor(1-m.BounceRate, 0.98, 0.90),
	}

	var issues []DeliveryIssue
	if m.BounceRate > 0.05 {
		issues = append(issues, DeliveryIssue{Severity: "high", Message: "bounce rate exceeds 5%"})
	}
	if m.ComplaintRate > 0.001 {
		issues = append(issues, DeliveryIssue{Severity: "medium", Message: "complaint rate above typical threshold"})
	}

	return &DeliveryAnalysisResult{
		Grade:           gradeFor(score),
		Score:           score,
		MetricBuckets:   buckets,
		Patterns:        nil,
		Issues:          issues,
		Recommendations: []string{"automated heuristic assessment; LLM analysis unavailable"},
		Degraded:        true,
	}
}

func bucketFor(rate, excellentAt, goodAt float64) string {
	switch {
	case rate >= excellentAt:
		return "excellent"
	case rate >= goodAt:
		return "good"
	case rate >= goodAt-0.1:
		return "warning"
	default:
		return "critical"
	}
}

func fallbackComparison(current MetricsVector, previous *MetricsVector) *ComparisonResult {
	if previous == nil {
		return &ComparisonResult{Trend: "first_round", Deltas: map[string]MetricDelta{}, Degraded: true}
	}
	delta := current.DeliveryRate - previous.DeliveryRate
	trend := "stable"
	significance := "negligible"
	switch {
	case delta > 0.01:
		trend = "improving"
		significance = "minor"
	case delta < -0.01:
		trend = "declining"
		significance = "minor"
	}
	if delta > 0.05 || delta < -0.05 {
		significance = "major"
	}

	return &ComparisonResult{
		Trend: trend,
		Deltas: map[string]MetricDelta{
			"deliveryRate": {Delta: delta, Significance: significance},
		},
		Degraded: true,
	}
}

func fallbackRecommendation(lq *ListQualityResult, da *DeliveryAnalysisResult, cmp *ComparisonResult, roundNumber, totalRounds int) *RecommendationResult {
	status := "unknown"
	score := 0.0
	if lq != nil {
		score = lq.HealthScore
		status = lq.Grade
	}
	trend := "first_round"
	if cmp != nil {
		trend = cmp.Trend
	}

	var warnings []string
	if da != nil {
		for _, issue := range da.Issues {
			warnings = append(warnings, issue.Message)
		}
	}

	strategy := ""
	if roundNumber < totalRounds {
		strategy = "proceed to next round with current configuration; LLM strategy unavailable"
	}

	return &RecommendationResult{
		ExecutiveSummary:  fmt.Sprintf("automated heuristic summary for round %d of %d", roundNumber, totalRounds),
		OverallHealth:     OverallHealth{Score: score, Status: status, Trend: trend},
		Recommendations:   []Recommendation{{Priority: "medium", Message: "review campaign manually; LLM analysis unavailable"}},
		Warnings:          warnings,
		Opportunities:     nil,
		NextRoundStrategy: strategy,
		Degraded:          true,
	}
}

func fallbackReportFormatting(stage Stage, r *Result) *ReportFormattingResult {
	summary := fmt.Sprintf("%s report generated in degraded mode; one or more analysis agents were unavailable.", stage)
	var warnings []string
	if r.Recommendation != nil {
		warnings = r.Recommendation.Warnings
	}
	return &ReportFormattingResult{
		Summary:         summary,
		Insights:        nil,
		Recommendations: []string{"re-run analysis once the LLM endpoint recovers"},
		Warnings:        warnings,
		NextSteps:       []string{"manual review recommended"},
		Degraded:        true,
	}
}
