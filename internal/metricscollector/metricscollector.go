// Package metricscollector implements the Wrap-Up metrics collection
// component (§4.7): fetch statistics from the mail platform, derive rates,
// persist immutably, compute round-over-round deltas, and run the analysis
// pipeline in wrapup mode.
package metricscollector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-lifecycle-engine/internal/analysis"
	"github.com/ignite/campaign-lifecycle-engine/internal/engineerr"
	"github.com/ignite/campaign-lifecycle-engine/internal/external/mailplatform"
	"github.com/ignite/campaign-lifecycle-engine/internal/store"
)

// ErrNotLaunched is returned when collection is attempted before launch.
var ErrNotLaunched = errors.New("metricscollector: schedule has no external campaign id")

// Result is collect's return value.
type Result struct {
	Persisted  *store.CampaignMetrics
	AIAnalysis *analysis.Result
	Deltas     map[string]analysis.MetricDelta
}

// Collector composes the mail platform, store, and analysis pipeline.
type Collector struct {
	mail     mailplatform.Client
	repo     store.Repository
	pipeline *analysis.Pipeline
}

// NewCollector builds a Collector from its collaborators.
func NewCollector(mail mailplatform.Client, repo store.Repository, pipeline *analysis.Pipeline) *Collector {
	return &Collector{mail: mail, repo: repo, pipeline: pipeline}
}

// Collect implements §4.7's five steps for one schedule.
func (c *Collector) Collect(ctx context.Context, scheduleID uuid.UUID) (*Result, error) {
	const op = "metricscollector.Collect"

	schedule, err := c.repo.GetByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if schedule.ExternalCampaignID == "" {
		return nil, engineerr.NotReady(op, ErrNotLaunched)
	}

	stats, err := c.mail.GetDetailedStatistics(ctx, schedule.ExternalCampaignID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	metrics := deriveMetrics(scheduleID, schedule.ExternalCampaignID, stats, now)

	if err := c.repo.AppendMetrics(ctx, metrics); err != nil {
		if errors.Is(err, store.ErrMetricsAlreadyExists) {
			return nil, engineerr.State(op, err)
		}
		return nil, err
	}

	var deltas map[string]analysis.MetricDelta
	var previous *analysis.MetricsVector
	if schedule.RoundNumber > 1 {
		prevRow, err := c.repo.GetLatestMetrics(ctx, schedule.CampaignName, schedule.RoundNumber-1)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if prevRow != nil {
			mv := toMetricsVector(prevRow)
			previous = &mv
			deltas = computeDeltas(metrics, prevRow)
		}
	}

	current := toMetricsVector(metrics)
	current.RoundNumber = schedule.RoundNumber

	pipelineResult, err := c.pipeline.Run(ctx, analysis.StageWrapup, analysis.ListQualityInput{}, current, previous,
		schedule.CampaignName, schedule.RoundNumber, 3)
	if err != nil {
		return nil, engineerr.Transient(op, fmt.Errorf("analysis pipeline: %w", err))
	}

	return &Result{Persisted: metrics, AIAnalysis: pipelineResult, Deltas: deltas}, nil
}

func deriveMetrics(scheduleID uuid.UUID, externalCampaignID string, stats *mailplatform.Statistics, now time.Time) *store.CampaignMetrics {
	m := &store.CampaignMetrics{
		ID:                 uuid.New(),
		ScheduleID:         scheduleID,
		ExternalCampaignID: externalCampaignID,
		Processed:          stats.Processed,
		Delivered:          stats.Delivered,
		Bounced:            stats.Bounced,
		HardBounces:        stats.HardBounces,
		SoftBounces:        stats.SoftBounces,
		Blocked:            stats.Blocked,
		Queued:             stats.Queued,
		Opened:             stats.Opened,
		Clicked:            stats.Clicked,
		Unsubscribed:       stats.Unsubscribed,
		Complained:         stats.Complained,
		CollectedAt:        now,
	}

	if stats.Processed > 0 {
		m.DeliveryRate = float64(stats.Delivered) / float64(stats.Processed) * 100
		m.BounceRate = float64(stats.Bounced) / float64(stats.Processed) * 100
		m.HardBounceRate = float64(stats.HardBounces) / float64(stats.Processed) * 100
		m.SoftBounceRate = float64(stats.SoftBounces) / float64(stats.Processed) * 100
	}
	if stats.Delivered > 0 {
		openRate := float64(stats.Opened) / float64(stats.Delivered) * 100
		clickRate := float64(stats.Clicked) / float64(stats.Delivered) * 100
		m.OpenRate = &openRate
		m.ClickRate = &clickRate
	}
	return m
}

func computeDeltas(current *store.CampaignMetrics, previous *store.CampaignMetrics) map[string]analysis.MetricDelta {
	deltas := map[string]analysis.MetricDelta{}
	deltas["deliveryRate"] = deltaOf(current.DeliveryRate, previous.DeliveryRate)
	deltas["bounceRate"] = deltaOf(current.BounceRate, previous.BounceRate)
	if current.OpenRate != nil && previous.OpenRate != nil {
		deltas["openRate"] = deltaOf(*current.OpenRate, *previous.OpenRate)
	}
	if current.ClickRate != nil && previous.ClickRate != nil {
		deltas["clickRate"] = deltaOf(*current.ClickRate, *previous.ClickRate)
	}
	return deltas
}

// deltaOf compares two percentage-point rates (§3: derived rates are stored
// as percentages, e.g. 96.0 not 0.96), so its significance bands are in
// percentage points too: a 1.5-point move is "minor" (E2E-4).
func deltaOf(current, previous float64) analysis.MetricDelta {
	delta := current - previous
	significance := "negligible"
	abs := delta
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 5.0:
		significance = "major"
	case abs >= 1.0:
		significance = "minor"
	}
	return analysis.MetricDelta{Delta: delta, Significance: significance}
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
