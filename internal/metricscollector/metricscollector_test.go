package metricscollector_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-lifecycle-engine/internal/analysis"
	"github.com/ignite/campaign-lifecycle-engine/internal/external/mailplatform"
	"github.com/ignite/campaign-lifecycle-engine/internal/metricscollector"
	"github.com/ignite/campaign-lifecycle-engine/internal/store"
	"github.com/ignite/campaign-lifecycle-engine/internal/store/memory"
)

type fakeMailClient struct {
	stats mailplatform.Statistics
}

func (f *fakeMailClient) GetDraft(ctx context.Context, draftID string) (*mailplatform.Draft, error) {
	return &mailplatform.Draft{}, nil
}
func (f *fakeMailClient) GetDetailedStatistics(ctx context.Context, campaignID string) (*mailplatform.Statistics, error) {
	s := f.stats
	return &s, nil
}
func (f *fakeMailClient) SendCampaignNow(ctx context.Context, campaignID string) (*mailplatform.SendResult, error) {
	return &mailplatform.SendResult{}, nil
}
func (f *fakeMailClient) VerifyReadiness(ctx context.Context, draftID string) (*mailplatform.ReadinessResult, error) {
	return &mailplatform.ReadinessResult{}, nil
}
func (f *fakeMailClient) GetListStatistics(ctx context.Context, listID string) (*mailplatform.ListStatistics, error) {
	return &mailplatform.ListStatistics{}, nil
}
func (f *fakeMailClient) GetSenderReputation(ctx context.Context, senderEmail string) (*mailplatform.ReputationResult, error) {
	return &mailplatform.ReputationResult{}, nil
}

type fakeLLM struct{}

func (fakeLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return `{"healthScore":80,"grade":"good","overallRecommendation":"ok","estimatedDeliverability":"high","executiveSummary":"fine","overallHealth":{"score":80,"status":"good","trend":"stable"},"trend":"stable","summary":"wrap up report","deltas":{}}`, nil
}

func TestCollect_ErrNotLaunchedWithoutExternalCampaignID(t *testing.T) {
	repo := memory.New()
	id := uuid.New()
	require.NoError(t, repo.CreateSchedules(context.Background(), []*store.CampaignSchedule{
		{ID: id, CampaignName: "c", RoundNumber: 1, Status: store.StatusReady},
	}))

	c := metricscollector.NewCollector(&fakeMailClient{}, repo, analysis.NewPipeline(fakeLLM{}))
	_, err := c.Collect(context.Background(), id)
	assert.ErrorIs(t, err, metricscollector.ErrNotLaunched)
}

func TestCollect_NullRatesWhenNoDelivered(t *testing.T) {
	repo := memory.New()
	id := uuid.New()
	require.NoError(t, repo.CreateSchedules(context.Background(), []*store.CampaignSchedule{
		{ID: id, CampaignName: "c", RoundNumber: 1, Status: store.StatusSent, ExternalCampaignID: "ext-1"},
	}))

	mail := &fakeMailClient{stats: mailplatform.Statistics{Processed: 100, Delivered: 0, Bounced: 100}}
	c := metricscollector.NewCollector(mail, repo, analysis.NewPipeline(fakeLLM{}))

	result, err := c.Collect(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, result.Persisted.OpenRate)
	assert.Nil(t, result.Persisted.ClickRate)
}

func TestCollect_ComputesDeltasOnRoundTwo(t *testing.T) {
	repo := memory.New()
	round1 := uuid.New()
	round2 := uuid.New()
	require.NoError(t, repo.CreateSchedules(context.Background(), []*store.CampaignSchedule{
		{ID: round1, CampaignName: "c", RoundNumber: 1, Status: store.StatusCompleted, ExternalCampaignID: "ext-1"},
		{ID: round2, CampaignName: "c", RoundNumber: 2, Status: store.StatusSent, ExternalCampaignID: "ext-2"},
	}))
	require.NoError(t, repo.AppendMetrics(context.Background(), &store.CampaignMetrics{
		ScheduleID: round1, Processed: 1000, Delivered: 975, DeliveryRate: 97.5,
	}))

	// Round 2's 960/1000 delivered yields deliveryRate=96.0, a delta of -1.5
	// against round 1's 97.5 — the literal E2E-4 worked example.
	mail := &fakeMailClient{stats: mailplatform.Statistics{Processed: 1000, Delivered: 960}}
	c := metricscollector.NewCollector(mail, repo, analysis.NewPipeline(fakeLLM{}))

	result, err := c.Collect(context.Background(), round2)
	require.NoError(t, err)
	require.Contains(t, result.Deltas, "deliveryRate")
	assert.InDelta(t, -1.5, result.Deltas["deliveryRate"].Delta, 0.0001)
	assert.Equal(t, "minor", result.Deltas["deliveryRate"].Significance)
	assert.InDelta(t, 96.0, result.Persisted.DeliveryRate, 0.0001)
}

func TestCollect_DuplicateCollectionRejected(t *testing.T) {
	repo := memory.New()
	id := uuid.New()
	require.NoError(t, repo.CreateSchedules(context.Background(), []*store.CampaignSchedule{
		{ID: id, CampaignName: "c", RoundNumber: 1, Status: store.StatusSent, ExternalCampaignID: "ext-1"},
	}))

	mail := &fakeMailClient{stats: mailplatform.Statistics{Processed: 100, Delivered: 90}}
	c := metricscollector.NewCollector(mail, repo, analysis.NewPipeline(fakeLLM{}))

	_, err := c.Collect(context.Background(), id)
	require.NoError(t, err)

	_, err = c.Collect(context.Background(), id)
	assert.Error(t, err)
}
