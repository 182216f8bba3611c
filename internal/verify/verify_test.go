package verify_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-lifecycle-engine/internal/analysis"
	"github.com/ignite/campaign-lifecycle-engine/internal/external/mailplatform"
	"github.com/ignite/campaign-lifecycle-engine/internal/store"
	"github.com/ignite/campaign-lifecycle-engine/internal/verify"
)

type fakeMailClient struct {
	draft      mailplatform.Draft
	listStats  mailplatform.ListStatistics
	reputation mailplatform.ReputationResult
}

func (f *fakeMailClient) GetDraft(ctx context.Context, draftID string) (*mailplatform.Draft, error) {
	d := f.draft
	return &d, nil
}
func (f *fakeMailClient) GetDetailedStatistics(ctx context.Context, campaignID string) (*mailplatform.Statistics, error) {
	return &mailplatform.Statistics{}, nil
}
func (f *fakeMailClient) SendCampaignNow(ctx context.Context, campaignID string) (*mailplatform.SendResult, error) {
	return &mailplatform.SendResult{}, nil
}
func (f *fakeMailClient) VerifyReadiness(ctx context.Context, draftID string) (*mailplatform.ReadinessResult, error) {
	return &mailplatform.ReadinessResult{IsReady: true}, nil
}
func (f *fakeMailClient) GetListStatistics(ctx context.Context, listID string) (*mailplatform.ListStatistics, error) {
	l := f.listStats
	return &l, nil
}
func (f *fakeMailClient) GetSenderReputation(ctx context.Context, senderEmail string) (*mailplatform.ReputationResult, error) {
	r := f.reputation
	return &r, nil
}

type fakeLLM struct{}

func (fakeLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return `{"healthScore":85,"grade":"good","engagementPercent":30,"riskFactors":[],"overallRecommendation":"ok","estimatedDeliverability":"high","executiveSummary":"fine","overallHealth":{"score":85,"status":"good","trend":"stable"},"recommendations":[],"warnings":[],"opportunities":[],"trend":"first_round","deltas":{},"grade2":"","summary":"looks good","insights":[],"nextSteps":[]}`, nil
}

func goodSchedule() *store.CampaignSchedule {
	return &store.CampaignSchedule{
		ID: uuid.New(), CampaignName: "spring-sale", RoundNumber: 1,
		ExternalDraftID: "draft-1", ExternalListID: "list-1", SenderEmail: "ops@example.com",
	}
}

func TestVerify_ReadyWhenAllChecksPass(t *testing.T) {
	mail := &fakeMailClient{
		draft:      mailplatform.Draft{Subject: "Hello", SenderName: "Ops", SenderEmail: "ops@example.com", ListAttached: true, ContentNonEmpty: true, ListNonEmpty: true},
		listStats:  mailplatform.ListStatistics{Total: 1000, Subscribed: 950},
		reputation: mailplatform.ReputationResult{Score: 90, Trend: "stable"},
	}
	v := verify.NewVerifier(mail, analysis.NewPipeline(fakeLLM{}))

	result, err := v.Verify(context.Background(), goodSchedule(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, verify.StatusReady, result.Status)
}

func TestVerify_BlockedOnMissingSubject(t *testing.T) {
	mail := &fakeMailClient{
		draft:      mailplatform.Draft{SenderName: "Ops", SenderEmail: "ops@example.com", ListAttached: true, ContentNonEmpty: true, ListNonEmpty: true},
		listStats:  mailplatform.ListStatistics{Total: 1000, Subscribed: 950},
		reputation: mailplatform.ReputationResult{Score: 90, Trend: "stable"},
	}
	v := verify.NewVerifier(mail, analysis.NewPipeline(fakeLLM{}))

	result, err := v.Verify(context.Background(), goodSchedule(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, verify.StatusBlocked, result.Status)
}

func TestVerify_WarningOnDecliningReputation(t *testing.T) {
	mail := &fakeMailClient{
		draft:      mailplatform.Draft{Subject: "Hello", SenderName: "Ops", SenderEmail: "ops@example.com", ListAttached: true, ContentNonEmpty: true, ListNonEmpty: true},
		listStats:  mailplatform.ListStatistics{Total: 1000, Subscribed: 950},
		reputation: mailplatform.ReputationResult{Score: 65, Trend: "declining"},
	}
	v := verify.NewVerifier(mail, analysis.NewPipeline(fakeLLM{}))

	result, err := v.Verify(context.Background(), goodSchedule(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, verify.StatusWarning, result.Status)
}

func TestVerify_ComparesPreviousRoundAgainstPriorRound(t *testing.T) {
	mail := &fakeMailClient{
		draft:      mailplatform.Draft{Subject: "Hello", SenderName: "Ops", SenderEmail: "ops@example.com", ListAttached: true, ContentNonEmpty: true, ListNonEmpty: true},
		listStats:  mailplatform.ListStatistics{Total: 1000, Subscribed: 950},
		reputation: mailplatform.ReputationResult{Score: 90, Trend: "stable"},
	}
	v := verify.NewVerifier(mail, analysis.NewPipeline(fakeLLM{}))

	schedule := goodSchedule()
	schedule.RoundNumber = 3
	previousRound := &store.CampaignMetrics{Processed: 1000, Delivered: 960, DeliveryRate: 96.0}
	priorRound := &store.CampaignMetrics{Processed: 1000, Delivered: 975, DeliveryRate: 97.5}

	result, err := v.Verify(context.Background(), schedule, previousRound, priorRound)
	require.NoError(t, err)
	require.NotNil(t, result.AIAnalysis.PreviousRoundMetrics)
	assert.InDelta(t, 0.96, result.AIAnalysis.PreviousRoundMetrics.DeliveryRate, 0.0001)
}

func TestQuickVerify_OmitsAIAnalysis(t *testing.T) {
	mail := &fakeMailClient{
		draft: mailplatform.Draft{Subject: "Hello", SenderName: "Ops", SenderEmail: "ops@example.com", ListAttached: true, ContentNonEmpty: true, ListNonEmpty: true},
	}
	v := verify.NewVerifier(mail, analysis.NewPipeline(fakeLLM{}))

	result, err := v.QuickVerify(context.Background(), goodSchedule())
	require.NoError(t, err)
	assert.Equal(t, verify.StatusReady, result.Status)
	assert.Nil(t, result.AIAnalysis)
}
