package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	goslack "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-lifecycle-engine/internal/analysis"
	"github.com/ignite/campaign-lifecycle-engine/internal/campaign"
	"github.com/ignite/campaign-lifecycle-engine/internal/clock"
	"github.com/ignite/campaign-lifecycle-engine/internal/external/chat"
	"github.com/ignite/campaign-lifecycle-engine/internal/external/mailplatform"
	"github.com/ignite/campaign-lifecycle-engine/internal/httpapi"
	"github.com/ignite/campaign-lifecycle-engine/internal/jobs"
	jobsmemory "github.com/ignite/campaign-lifecycle-engine/internal/jobs/memory"
	"github.com/ignite/campaign-lifecycle-engine/internal/metricscollector"
	"github.com/ignite/campaign-lifecycle-engine/internal/notify"
	"github.com/ignite/campaign-lifecycle-engine/internal/orchestrator"
	"github.com/ignite/campaign-lifecycle-engine/internal/store"
	"github.com/ignite/campaign-lifecycle-engine/internal/store/memory"
	"github.com/ignite/campaign-lifecycle-engine/internal/verify"
)

// fakeMail is a stub mailplatform.Client returning canned, always-ready responses.
type fakeMail struct{}

func (fakeMail) GetDraft(ctx context.Context, draftID string) (*mailplatform.Draft, error) {
	return &mailplatform.Draft{Subject: "Hello", SenderEmail: "team@example.com", ContentNonEmpty: true, ListAttached: true}, nil
}
func (fakeMail) GetDetailedStatistics(ctx context.Context, campaignID string) (*mailplatform.Statistics, error) {
	return &mailplatform.Statistics{}, nil
}
func (fakeMail) SendCampaignNow(ctx context.Context, campaignID string) (*mailplatform.SendResult, error) {
	return &mailplatform.SendResult{MessageID: "msg-1"}, nil
}
func (fakeMail) VerifyReadiness(ctx context.Context, draftID string) (*mailplatform.ReadinessResult, error) {
	return &mailplatform.ReadinessResult{IsReady: true}, nil
}
func (fakeMail) GetListStatistics(ctx context.Context, listID string) (*mailplatform.ListStatistics, error) {
	return &mailplatform.ListStatistics{}, nil
}
func (fakeMail) GetSenderReputation(ctx context.Context, senderEmail string) (*mailplatform.ReputationResult, error) {
	return &mailplatform.ReputationResult{}, nil
}

type fakePoster struct{}

func (fakePoster) PostMessage(ctx context.Context, channelID string, blocks []goslack.Block, fallbackText string) (*chat.PostResult, error) {
	return &chat.PostResult{MessageID: "123.456"}, nil
}

type fakeLLM struct{}

func (fakeLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return `{}`, nil
}

func newTestServer(t *testing.T) (http.Handler, store.Repository) {
	t.Helper()

	repo := memory.New()
	jobRepo := jobsmemory.New()

	pipeline := analysis.NewPipeline(fakeLLM{})
	verifier := verify.NewVerifier(fakeMail{}, pipeline)
	collector := metricscollector.NewCollector(fakeMail{}, repo, pipeline)
	notifier := notify.NewNotifier(repo, fakePoster{}, verifier, collector, "C0TEST")
	runner := orchestrator.New(repo, notifier, fakeMail{})

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sched := jobs.NewScheduler(jobRepo, runner, redisClient, nil, "test-worker")
	creator := campaign.NewCreator(repo, sched, clock.DefaultStageOffsets())

	srv := httpapi.NewServer(repo, creator, sched, runner)
	return srv.Handler(), repo
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateCampaign_Success(t *testing.T) {
	h, _ := newTestServer(t)
	body, _ := json.Marshal(map[string]interface{}{
		"campaignName":    "Q3-Promo",
		"listIdPrefix":    "q3",
		"subject":         "Hello",
		"senderName":      "Team",
		"senderEmail":     "team@example.com",
		"totalRecipients": 300,
		"externalListIds": [3]string{"l1", "l2", "l3"},
	})
	req := httptest.NewRequest(http.MethodPost, "/campaigns", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var schedules []*store.CampaignSchedule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &schedules))
	assert.Len(t, schedules, 3)
}

func TestCreateCampaign_RejectsMissingFields(t *testing.T) {
	h, _ := newTestServer(t)
	body, _ := json.Marshal(map[string]interface{}{"totalRecipients": 10})
	req := httptest.NewRequest(http.MethodPost, "/campaigns", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetStatus_UnknownCampaignReturnsEmptyList(t *testing.T) {
	h, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/campaigns/does-not-exist", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestLaunch_NotReadyReturnsConflict(t *testing.T) {
	h, repo := newTestServer(t)

	require.NoError(t, repo.CreateSchedules(context.Background(), []*store.CampaignSchedule{{
		CampaignName: "X", RoundNumber: 1, ScheduledDate: time.Now().UTC(),
		Subject: "s", SenderEmail: "e@example.com", Status: store.StatusScheduled,
	}}))
	schedules, err := repo.GetByCampaignName(context.Background(), "X")
	require.NoError(t, err)
	id := schedules[0].ID

	req := httptest.NewRequest(http.MethodPost, "/schedules/"+id.String()+"/launch", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestJobStatus_ScheduleWithNoJobsReturnsEmptyList(t *testing.T) {
	h, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/schedules/"+uuid.New().String()+"/jobs", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestListWorkers_EmptyWhenNoneRegistered(t *testing.T) {
	h, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/workers", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestReschedule_RequiresNewLaunchTime(t *testing.T) {
	h, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/schedules/"+uuid.New().String()+"/reschedule", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
