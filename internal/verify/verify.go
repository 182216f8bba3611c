// Package verify implements the Pre-Flight verification component (§4.6):
// a draft/list/reputation check composed with the analysis pipeline run in
// preflight mode, reduced to a single ready/warning/blocked status.
package verify

import (
	"context"
	"fmt"

	"github.com/ignite/campaign-lifecycle-engine/internal/analysis"
	"github.com/ignite/campaign-lifecycle-engine/internal/engineerr"
	"github.com/ignite/campaign-lifecycle-engine/internal/external/mailplatform"
	"github.com/ignite/campaign-lifecycle-engine/internal/store"
)

// Status is the outcome of a Pre-Flight verification.
type Status string

const (
	StatusReady   Status = "ready"
	StatusWarning Status = "warning"
	StatusBlocked Status = "blocked"
)

// CheckSeverity is the severity of one composed check.
type CheckSeverity string

const (
	SeverityOK      CheckSeverity = "ok"
	SeverityWarning CheckSeverity = "warning"
	SeverityError   CheckSeverity = "error"
)

// Issue is one problem surfaced by a failing or warning check.
type Issue struct {
	Severity CheckSeverity
	Message  string
}

// AIAnalysis is the subset of the analysis pipeline's output surfaced in a
// PreFlightResult.
type AIAnalysis struct {
	ListQualityScore     float64
	PreviousRoundMetrics *analysis.MetricsVector
	Recommendations      []string
	Insights             []string
	Warnings             []string
}

// PreFlightResult is verify's full output contract.
type PreFlightResult struct {
	Status     Status
	Checks     map[string]CheckSeverity
	Issues     []Issue
	AIAnalysis *AIAnalysis
}

// Verifier composes the mail platform and analysis pipeline into Pre-Flight
// and quick-verify checks.
type Verifier struct {
	mail     mailplatform.Client
	pipeline *analysis.Pipeline
}

// NewVerifier builds a Verifier from its collaborators.
func NewVerifier(mail mailplatform.Client, pipeline *analysis.Pipeline) *Verifier {
	return &Verifier{mail: mail, pipeline: pipeline}
}

// Verify runs the full Pre-Flight check set: draft shape, list statistics,
// sender reputation, and the analysis pipeline in preflight mode.
//
// Pre-Flight runs before the current round has launched, so it has no
// metrics of its own yet. Per §9, Comparison instead runs "previous vs
// previous-previous": previousRound (roundNumber-1) is passed to the
// pipeline as current, and priorRound (roundNumber-2) as previous.
func (v *Verifier) Verify(ctx context.Context, schedule *store.CampaignSchedule, previousRound, priorRound *store.CampaignMetrics) (*PreFlightResult, error) {
	const op = "verify.Verify"

	checks := map[string]CheckSeverity{}
	var issues []Issue

	draft, err := v.mail.GetDraft(ctx, schedule.ExternalDraftID)
	if err != nil {
		if engineerr.Retryable(err) {
			return nil, err
		}
		checks["draft"] = SeverityError
		issues = append(issues, Issue{Severity: SeverityError, Message: fmt.Sprintf("draft fetch failed: %v", err)})
		draft = &mailplatform.Draft{}
	} else {
		checkDraft(draft, checks, &issues)
	}

	listStats, err := v.mail.GetListStatistics(ctx, schedule.ExternalListID)
	if err != nil {
		if engineerr.Retryable(err) {
			return nil, err
		}
		checks["list"] = SeverityError
		issues = append(issues, Issue{Severity: SeverityError, Message: fmt.Sprintf("list statistics fetch failed: %v", err)})
		listStats = &mailplatform.ListStatistics{}
	} else {
		checkList(listStats, checks, &issues)
	}

	reputation, err := v.mail.GetSenderReputation(ctx, schedule.SenderEmail)
	if err != nil {
		if engineerr.Retryable(err) {
			return nil, err
		}
		checks["reputation"] = SeverityError
		issues = append(issues, Issue{Severity: SeverityError, Message: fmt.Sprintf("reputation fetch failed: %v", err)})
		reputation = &mailplatform.ReputationResult{}
	} else {
		checkReputation(*reputation, checks, &issues)
	}

	lqIn := analysis.ListQualityInput{
		ListTotal: listStats.Total, Subscribed: listStats.Subscribed,
		Unsubscribed: listStats.Unsubscribed, Blocked: listStats.Blocked,
		RecentBounceCount: listStats.RecentBounceCount,
		ReputationScore:   reputation.Score, ReputationTrend: reputation.Trend,
	}

	// Comparison runs "previous vs previous-previous" here (§9): the current
	// round hasn't launched yet, so roundNumber-1 stands in as "current" and
	// roundNumber-2 as "previous".
	var current analysis.MetricsVector
	var currentMetrics *analysis.MetricsVector
	if previousRound != nil {
		mv := toMetricsVector(previousRound)
		current = mv
		currentMetrics = &mv
	}
	var prior *analysis.MetricsVector
	if priorRound != nil {
		mv := toMetricsVector(priorRound)
		prior = &mv
	}

	pipelineResult, err := v.pipeline.Run(ctx, analysis.StagePreflight, lqIn, current, prior,
		schedule.CampaignName, schedule.RoundNumber, 3)
	if err != nil {
		return nil, engineerr.Transient(op, err)
	}

	var listQualityScore float64
	var recommendations, insights, warnings []string
	if pipelineResult.ListQuality != nil {
		listQualityScore = pipelineResult.ListQuality.HealthScore
	}
	if pipelineResult.Report != nil {
		recommendations = pipelineResult.Report.Recommendations
		insights = pipelineResult.Report.Insights
		warnings = pipelineResult.Report.Warnings
	}

	status := decideStatus(checks, listQualityScore)

	return &PreFlightResult{
		Status: status,
		Checks: checks,
		Issues: issues,
		AIAnalysis: &AIAnalysis{
			ListQualityScore:     listQualityScore,
			PreviousRoundMetrics: currentMetrics,
			Recommendations:      recommendations,
			Insights:              insights,
			Warnings:               warnings,
		},
	}, nil
}

// QuickVerify omits the analysis pipeline — used by Launch Warning (§4.6).
func (v *Verifier) QuickVerify(ctx context.Context, schedule *store.CampaignSchedule) (*PreFlightResult, error) {
	checks := map[string]CheckSeverity{}
	var issues []Issue

	draft, err := v.mail.GetDraft(ctx, schedule.ExternalDraftID)
	if err != nil {
		if engineerr.Retryable(err) {
			return nil, err
		}
		checks["draft"] = SeverityError
		issues = append(issues, Issue{Severity: SeverityError, Message: fmt.Sprintf("draft fetch failed: %v", err)})
	} else {
		checkDraft(draft, checks, &issues)
	}

	return &PreFlightResult{
		Status: decideStatus(checks, 100), // no AI score in quick mode; never the blocking factor
		Checks: checks,
		Issues: issues,
	}, nil
}

func checkDraft(d *mailplatform.Draft, checks map[string]CheckSeverity, issues *[]Issue) {
	severity := SeverityOK
	if d.Subject == "" {
		severity = SeverityError
		*issues = append(*issues, Issue{Severity: SeverityError, Message: "draft has no subject"})
	}
	if d.SenderName == "" || d.SenderEmail == "" {
		severity = SeverityError
		*issues = append(*issues, Issue{Severity: SeverityError, Message: "draft has no sender"})
	}
	if !d.ListAttached {
		severity = SeverityError
		*issues = append(*issues, Issue{Severity: SeverityError, Message: "no list attached to draft"})
	}
	if !d.ContentNonEmpty {
		severity = SeverityError
		*issues = append(*issues, Issue{Severity: SeverityError, Message: "draft content is empty"})
	}
	if !d.ListNonEmpty {
		severity = SeverityError
		*issues = append(*issues, Issue{Severity: SeverityError, Message: "attached list is empty"})
	}
	if d.HasBlockedEntries {
		if severity == SeverityOK {
			severity = SeverityWarning
		}
		*issues = append(*issues, Issue{Severity: SeverityWarning, Message: "attached list contains blocked entries"})
	}
	checks["draft"] = severity
}

func checkList(l *mailplatform.ListStatistics, checks map[string]CheckSeverity, issues *[]Issue) {
	severity := SeverityOK
	if l.Total > 0 {
		blockedRate := float64(l.Blocked) / float64(l.Total)
		if blockedRate > 0.1 {
			severity = SeverityError
			*issues = append(*issues, Issue{Severity: SeverityError, Message: "blocked-address rate exceeds 10%"})
		} else if l.RecentBounceCount > 0 {
			severity = SeverityWarning
			*issues = append(*issues, Issue{Severity: SeverityWarning, Message: "recent bounce activity on this list"})
		}
	}
	checks["list"] = severity
}

func checkReputation(r mailplatform.ReputationResult, checks map[string]CheckSeverity, issues *[]Issue) {
	severity := SeverityOK
	switch {
	case r.Score < 50:
		severity = SeverityError
		*issues = append(*issues, Issue{Severity: SeverityError, Message: "sender reputation below minimum threshold"})
	case r.Score < 70 || r.Trend == "declining":
		severity = SeverityWarning
		*issues = append(*issues, Issue{Severity: SeverityWarning, Message: "sender reputation marginal or declining"})
	}
	checks["reputation"] = severity
}

// decideStatus applies §4.6's status decision rule.
func decideStatus(checks map[string]CheckSeverity, listQualityScore float64) Status {
	for _, severity := range checks {
		if severity == SeverityError {
			return StatusBlocked
		}
	}
	if listQualityScore < 50 {
		return StatusBlocked
	}
	for _, severity := range checks {
		if severity == SeverityWarning {
			return StatusWarning
		}
	}
	if listQualityScore >= 50 && listQualityScore < 70 {
		return StatusWarning
	}
	return StatusReady
}

// toMetricsVector adapts a persisted (percentage-scale) metrics row to the
// analysis pipeline's fraction-scale MetricsVector.
func toMetricsVector(m *store.CampaignMetrics) analysis.MetricsVector {
	var unsubRate, complaintRate float64
	if m.Processed > 0 {
		unsubRate = float64(m.Unsubscribed) / float64(m.Processed)
		complaintRate = float64(m.Complained) / float64(m.Processed)
	}
	var openRate, clickRate *float64
	if m.OpenRate != nil {
		r := *m.OpenRate / 100
		openRate = &r
	}
	if m.ClickRate != nil {
		r := *m.ClickRate / 100
		clickRate = &r
	}
	return analysis.MetricsVector{
		RoundNumber:     0,
		Processed:       m.Processed,
		Delivered:       m.Delivered,
		Bounced:         m.Bounced,
		HardBounces:     m.HardBounces,
		SoftBounces:     m.SoftBounces,
		Blocked:         m.Blocked,
		Opened:          m.Opened,
		Clicked:         m.Clicked,
		Unsubscribed:    m.Unsubscribed,
		Complained:      m.Complained,
		DeliveryRate:    m.DeliveryRate / 100,
		BounceRate:      m.BounceRate / 100,
		OpenRate:        openRate,
		ClickRate:       clickRate,
		UnsubscribeRate: unsubRate,
		ComplaintRate:   complaintRate,
	}
}
