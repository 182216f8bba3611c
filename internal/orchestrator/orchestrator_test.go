package orchestrator_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	goslack "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-lifecycle-engine/internal/analysis"
	"github.com/ignite/campaign-lifecycle-engine/internal/clock"
	"github.com/ignite/campaign-lifecycle-engine/internal/external/chat"
	"github.com/ignite/campaign-lifecycle-engine/internal/external/mailplatform"
	"github.com/ignite/campaign-lifecycle-engine/internal/metricscollector"
	"github.com/ignite/campaign-lifecycle-engine/internal/notify"
	"github.com/ignite/campaign-lifecycle-engine/internal/orchestrator"
	"github.com/ignite/campaign-lifecycle-engine/internal/store"
	"github.com/ignite/campaign-lifecycle-engine/internal/store/memory"
	"github.com/ignite/campaign-lifecycle-engine/internal/verify"
)

type fakePoster struct{}

func (f *fakePoster) PostMessage(ctx context.Context, channelID string, blocks []goslack.Block, fallbackText string) (*chat.PostResult, error) {
	return &chat.PostResult{MessageID: "msg-1", Timestamp: "1"}, nil
}

type fakeMailClient struct {
	sendErr error
}

func (f *fakeMailClient) GetDraft(ctx context.Context, draftID string) (*mailplatform.Draft, error) {
	return &mailplatform.Draft{Subject: "x", SenderName: "n", SenderEmail: "s@example.com", ListAttached: true, ContentNonEmpty: true, ListNonEmpty: true}, nil
}
func (f *fakeMailClient) GetDetailedStatistics(ctx context.Context, campaignID string) (*mailplatform.Statistics, error) {
	return &mailplatform.Statistics{Processed: 100, Delivered: 95}, nil
}
func (f *fakeMailClient) SendCampaignNow(ctx context.Context, campaignID string) (*mailplatform.SendResult, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &mailplatform.SendResult{MessageID: "ext-camp-1"}, nil
}
func (f *fakeMailClient) VerifyReadiness(ctx context.Context, draftID string) (*mailplatform.ReadinessResult, error) {
	return &mailplatform.ReadinessResult{IsReady: true}, nil
}
func (f *fakeMailClient) GetListStatistics(ctx context.Context, listID string) (*mailplatform.ListStatistics, error) {
	return &mailplatform.ListStatistics{Total: 1000, Subscribed: 950}, nil
}
func (f *fakeMailClient) GetSenderReputation(ctx context.Context, senderEmail string) (*mailplatform.ReputationResult, error) {
	return &mailplatform.ReputationResult{Score: 90, Trend: "stable"}, nil
}

type fakeLLM struct{}

func (fakeLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return `{"healthScore":90,"grade":"excellent","overallRecommendation":"ok","estimatedDeliverability":"high","executiveSummary":"fine","overallHealth":{"score":90,"status":"good","trend":"stable"},"trend":"first_round","summary":"report","deltas":{}}`, nil
}

func buildOrchestrator(repo store.Repository, mail mailplatform.Client) *orchestrator.Orchestrator {
	pipeline := analysis.NewPipeline(fakeLLM{})
	v := verify.NewVerifier(mail, pipeline)
	collector := metricscollector.NewCollector(mail, repo, pipeline)
	n := notify.NewNotifier(repo, &fakePoster{}, v, collector, "C123")
	return orchestrator.New(repo, n, mail)
}

func newReadySchedule() *store.CampaignSchedule {
	return &store.CampaignSchedule{
		ID: uuid.New(), CampaignName: "c", RoundNumber: 1, Status: store.StatusReady,
		ExternalDraftID: "d1", ExternalListID: "l1", SenderEmail: "s@example.com",
	}
}

func TestLaunch_HappyPath(t *testing.T) {
	repo := memory.New()
	sched := newReadySchedule()
	require.NoError(t, repo.CreateSchedules(context.Background(), []*store.CampaignSchedule{sched}))

	o := buildOrchestrator(repo, &fakeMailClient{})
	outcome, err := o.Launch(context.Background(), sched.ID, false, 1)
	require.NoError(t, err)
	assert.True(t, outcome.Sent)

	updated, err := repo.GetByID(context.Background(), sched.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusSent, updated.Status)
	assert.Equal(t, "ext-camp-1", updated.ExternalCampaignID)
	assert.True(t, updated.Notifications.LaunchConfirmation.Sent)
}

func TestLaunch_RefusesWhenNotReady(t *testing.T) {
	repo := memory.New()
	sched := newReadySchedule()
	sched.Status = store.StatusScheduled
	require.NoError(t, repo.CreateSchedules(context.Background(), []*store.CampaignSchedule{sched}))

	o := buildOrchestrator(repo, &fakeMailClient{})
	_, err := o.Launch(context.Background(), sched.ID, false, 1)
	assert.ErrorIs(t, err, orchestrator.ErrNotReady)
}

func TestLaunch_SkipPreflightBypassesReadyCheck(t *testing.T) {
	repo := memory.New()
	sched := newReadySchedule()
	sched.Status = store.StatusScheduled
	require.NoError(t, repo.CreateSchedules(context.Background(), []*store.CampaignSchedule{sched}))

	o := buildOrchestrator(repo, &fakeMailClient{})
	outcome, err := o.Launch(context.Background(), sched.ID, true, 1)
	require.NoError(t, err)
	assert.True(t, outcome.Sent)
}

func TestLaunch_RevertsToScheduledOnSendFailure(t *testing.T) {
	repo := memory.New()
	sched := newReadySchedule()
	require.NoError(t, repo.CreateSchedules(context.Background(), []*store.CampaignSchedule{sched}))

	o := buildOrchestrator(repo, &fakeMailClient{sendErr: assertError{}})
	_, err := o.Launch(context.Background(), sched.ID, false, 1)
	require.Error(t, err)

	updated, err := repo.GetByID(context.Background(), sched.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusScheduled, updated.Status)
}

type assertError struct{}

func (assertError) Error() string { return "send failed" }

func TestLaunch_IsIdempotent(t *testing.T) {
	repo := memory.New()
	sched := newReadySchedule()
	require.NoError(t, repo.CreateSchedules(context.Background(), []*store.CampaignSchedule{sched}))

	o := buildOrchestrator(repo, &fakeMailClient{})
	_, err := o.Launch(context.Background(), sched.ID, false, 1)
	require.NoError(t, err)

	outcome, err := o.Launch(context.Background(), sched.ID, false, 2)
	require.NoError(t, err)
	assert.True(t, outcome.Sent)

	logs := repo.LogsFor(sched.ID)
	assert.Len(t, logs, 1) // second call is a no-op, no new log row
}

func TestRunStage_IsIdempotent(t *testing.T) {
	repo := memory.New()
	sched := newReadySchedule()
	sched.Status = store.StatusScheduled
	require.NoError(t, repo.CreateSchedules(context.Background(), []*store.CampaignSchedule{sched}))

	o := buildOrchestrator(repo, &fakeMailClient{})
	_, err := o.RunStage(context.Background(), sched.ID, clock.StagePreLaunch, 1)
	require.NoError(t, err)

	outcome, err := o.RunStage(context.Background(), sched.ID, clock.StagePreLaunch, 2)
	require.NoError(t, err)
	assert.True(t, outcome.Sent)

	logs := repo.LogsFor(sched.ID)
	assert.Len(t, logs, 1)
}

func TestCancel_TransitionsToBlocked(t *testing.T) {
	repo := memory.New()
	sched := newReadySchedule()
	sched.Status = store.StatusScheduled
	require.NoError(t, repo.CreateSchedules(context.Background(), []*store.CampaignSchedule{sched}))

	o := buildOrchestrator(repo, &fakeMailClient{})
	require.NoError(t, o.Cancel(context.Background(), sched.ID))

	updated, err := repo.GetByID(context.Background(), sched.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusBlocked, updated.Status)
}
