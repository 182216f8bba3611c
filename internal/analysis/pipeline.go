package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ignite/campaign-lifecycle-engine/internal/external/llmagent"
	"github.com/ignite/campaign-lifecycle-engine/internal/pkg/logger"
)

var errMissingField = errors.New("analysis: response missing required field")

const (
	agentDeadline       = 30 * time.Second
	maxSchemaViolations = 3
)

// Pipeline runs the five-agent analysis graph described in §4.5, backed by
// an llmagent.Client for each call.
type Pipeline struct {
	llm llmagent.Client
}

// NewPipeline builds a Pipeline over the given LLM collaborator.
func NewPipeline(llm llmagent.Client) *Pipeline {
	return &Pipeline{llm: llm}
}

// Run executes the full composition graph: ListQuality + DeliveryAnalysis +
// Comparison concurrently, then Recommendation, then ReportFormatting.
func (p *Pipeline) Run(ctx context.Context, stage Stage, lqIn ListQualityInput, current MetricsVector, previous *MetricsVector, campaignName string, roundNumber, totalRounds int) (*Result, error) {
	result := &Result{}

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		r, degraded := p.runListQuality(gctx, lqIn)
		result.ListQuality = r
		result.Degraded = result.Degraded || degraded
		return nil
	})
	group.Go(func() error {
		r, degraded := p.runDeliveryAnalysis(gctx, current)
		result.Delivery = r
		result.Degraded = result.Degraded || degraded
		return nil
	})
	group.Go(func() error {
		r, degraded := p.runComparison(gctx, current, previous)
		result.Comparison = r
		result.Degraded = result.Degraded || degraded
		return nil
	})

	if err := group.Wait(); err != nil {
		return nil, err
	}

	rec, degraded := p.runRecommendation(ctx, result.ListQuality, result.Delivery, result.Comparison, campaignName, roundNumber, totalRounds)
	result.Recommendation = rec
	result.Degraded = result.Degraded || degraded

	report, degraded := p.runReportFormatting(ctx, stage, result)
	result.Report = report
	result.Degraded = result.Degraded || degraded

	return result, nil
}

// runAgent invokes the LLM up to maxSchemaViolations times, enforcing a
// per-call deadline, and reports whether the agent degraded (timed out or
// never produced a schema-valid response).
func runAgent[T any](ctx context.Context, llm llmagent.Client, agentName, systemPrompt, userPrompt string, validate func(*T) error) (*T, bool) {
	for attempt := 0; attempt < maxSchemaViolations; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, agentDeadline)
		text, err := llm.Generate(callCtx, systemPrompt, userPrompt)
		cancel()
		if err != nil {
			logger.Warn("agent call failed, entering fallback mode", "agent", agentName, "attempt", attempt+1, "error", err)
			return nil, true
		}

		var parsed T
		if err := json.Unmarshal([]byte(extractJSON(text)), &parsed); err != nil {
			logger.Warn("agent response not valid JSON", "agent", agentName, "attempt", attempt+1)
			continue
		}
		if err := validate(&parsed); err != nil {
			logger.Warn("agent response failed schema validation", "agent", agentName, "attempt", attempt+1)
			continue
		}
		return &parsed, false
	}
	logger.Error("agent exhausted schema-violation budget, falling back", "agent", agentName)
	return nil, true
}

// extractJSON strips a fenced ```json ... ``` markdown wrapper if present.
func extractJSON(text string) string {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
	}
	return trimmed
}

func (p *Pipeline) runListQuality(ctx context.Context, in ListQualityInput) (*ListQualityResult, bool) {
	system := "You are an email list quality analyst. Respond with a single JSON object only: " +
		`{"healthScore":number,"grade":string,"engagementPercent":number,"riskFactors":[string],"overallRecommendation":string,"estimatedDeliverability":string}`
	user := fmt.Sprintf("List stats: total=%d subscribed=%d unsubscribed=%d blocked=%d recentBounces=%d. Sender reputation score=%.1f trend=%s.",
		in.ListTotal, in.Subscribed, in.Unsubscribed, in.Blocked, in.RecentBounceCount, in.ReputationScore, in.ReputationTrend)

	result, degraded := runAgent[ListQualityResult](ctx, p.llm, "ListQuality", system, user, (*ListQualityResult).validate)
	if degraded {
		return fallbackListQuality(in), true
	}
	return result, false
}

func (p *Pipeline) runDeliveryAnalysis(ctx context.Context, m MetricsVector) (*DeliveryAnalysisResult, bool) {
	system := "You are an email delivery performance analyst. Respond with a single JSON object only: " +
		`{"grade":string,"score":number,"metricBuckets":{"deliveryRate":string,"bounceRate":string,"openRate":string,"clickRate":string},"patterns":[string],"issues":[{"severity":string,"message":string}],"recommendations":[string]}`
	user := fmt.Sprintf("Metrics: delivered=%d/%d bounceRate=%.4f%% unsubscribeRate=%.4f%% complaintRate=%.4f%%.",
		m.Delivered, m.Processed, m.BounceRate*100, m.UnsubscribeRate*100, m.ComplaintRate*100)

	result, degraded := runAgent[DeliveryAnalysisResult](ctx, p.llm, "DeliveryAnalysis", system, user, (*DeliveryAnalysisResult).validate)
	if degraded {
		return fallbackDeliveryAnalysis(m), true
	}
	return result, false
}

func (p *Pipeline) runComparison(ctx context.Context, current MetricsVector, previous *MetricsVector) (*ComparisonResult, bool) {
	if previous == nil {
		return &ComparisonResult{Trend: "first_round", Deltas: map[string]MetricDelta{}}, false
	}

	system := "You are an email campaign trend analyst. Respond with a single JSON object only: " +
		`{"trend":"improving"|"stable"|"declining"|"first_round","deltas":{"<metric>":{"delta":number,"significance":string}},"prediction":string}`
	user := fmt.Sprintf("Current deliveryRate=%.4f bounceRate=%.4f. Previous deliveryRate=%.4f bounceRate=%.4f.",
		current.DeliveryRate, current.BounceRate, previous.DeliveryRate, previous.BounceRate)

	result, degraded := runAgent[ComparisonResult](ctx, p.llm, "Comparison", system, user, (*ComparisonResult).validate)
	if degraded {
		return fallbackComparison(current, previous), true
	}
	return result, false
}

func (p *Pipeline) runRecommendation(ctx context.Context, lq *ListQualityResult, da *DeliveryAnalysisResult, cmp *ComparisonResult, campaignName string, roundNumber, totalRounds int) (*RecommendationResult, bool) {
	system := "You are an email campaign strategist synthesizing prior analyses. Respond with a single JSON object only: " +
		`{"executiveSummary":string,"overallHealth":{"score":number,"status":string,"trend":string},"recommendations":[{"priority":"critical"|"high"|"medium"|"low","message":string}],"warnings":[string],"opportunities":[string],"nextRoundStrategy":string}`
	user := fmt.Sprintf("Campaign %q, round %d of %d. List quality grade=%v score=%v. Delivery grade=%v score=%v. Trend=%v.",
		campaignName, roundNumber, totalRounds, safeGrade(lq), safeScore(lq), safeDAGrade(da), safeDAScore(da), safeTrend(cmp))

	result, degraded := runAgent[RecommendationResult](ctx, p.llm, "Recommendation", system, user, (*RecommendationResult).validate)
	if degraded {
		return fallbackRecommendation(lq, da, cmp, roundNumber, totalRounds), true
	}
	return result, false
}

func (p *Pipeline) runReportFormatting(ctx context.Context, stage Stage, r *Result) (*ReportFormattingResult, bool) {
	system := fmt.Sprintf("You are formatting a %s-stage email campaign report. Respond with a single JSON object only: "+
		`{"summary":string,"insights":[string],"recommendations":[string],"warnings":[string],"nextSteps":[string]}`, stage)
	user := fmt.Sprintf("Overall health status=%s score=%.1f. Executive summary: %s",
		safeStatus(r.Recommendation), safeOverallScore(r.Recommendation), safeSummary(r.Recommendation))

	result, degraded := runAgent[ReportFormattingResult](ctx, p.llm, "ReportFormatting", system, user, (*ReportFormattingResult).validate)
	if degraded {
		return fallbackReportFormatting(stage, r), true
	}
	return result, false
}

func safeGrade(lq *ListQualityResult) string {
	if lq == nil {
		return "unknown"
	}
	return lq.Grade
}
func safeScore(lq *ListQualityResult) float64 {
	if lq == nil {
		return 0
	}
	return lq.HealthScore
}
func safeDAGrade(da *DeliveryAnalysisResult) string {
	if da == nil {
		return "unknown"
	}
	return da.Grade
}
func safeDAScore(da *DeliveryAnalysisResult) float64 {
	if da == nil {
		return 0
	}
	return da.Score
}
func safeTrend(cmp *ComparisonResult) string {
	if cmp == nil {
		return "first_round"
	}
	return cmp.Trend
}
func safeStatus(r *RecommendationResult) string {
	if r == nil {
		return "unknown"
	}
	return r.OverallHealth.Status
}
func safeOverallScore(r *RecommendationResult) float64 {
	if r == nil {
		return 0
	}
	return r.OverallHealth.Score
}
func safeSummary(r *RecommendationResult) string {
	if r == nil {
		return ""
	}
	return r.ExecutiveSummary
}
