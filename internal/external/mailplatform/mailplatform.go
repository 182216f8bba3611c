// Package mailplatform defines the mail-platform collaborator contract and
// an HTTP implementation in the style of a typical ESP client: typed
// request/response structs over internal/pkg/httpretry, with 4xx
// classified permanent and 5xx/network classified transient.
package mailplatform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/campaign-lifecycle-engine/internal/config"
	"github.com/ignite/campaign-lifecycle-engine/internal/engineerr"
	"github.com/ignite/campaign-lifecycle-engine/internal/pkg/httpretry"
)

// Draft is the mail-platform's draft shape, checked during verification.
type Draft struct {
	Subject           string
	SenderName        string
	SenderEmail       string
	ListID            string
	ContentNonEmpty   bool
	ListAttached      bool
	ListNonEmpty      bool
	HasBlockedEntries bool
}

// Statistics is the raw counter vector behind a campaign's detailed statistics.
type Statistics struct {
	Processed    int64
	Delivered    int64
	Bounced      int64
	HardBounces  int64
	SoftBounces  int64
	Blocked      int64
	Queued       int64
	Opened       int64
	Clicked      int64
	Unsubscribed int64
	Complained   int64
}

// SendResult is returned by SendCampaignNow.
type SendResult struct {
	MessageID   string
	QueuedCount int64
	SendStartAt time.Time
}

// ReadinessResult is returned by VerifyReadiness.
type ReadinessResult struct {
	IsReady bool
	Checks  map[string]bool
	Issues  []string
}

// ListStatistics is a list-health snapshot.
type ListStatistics struct {
	Total             int64
	Subscribed        int64
	Unsubscribed      int64
	Blocked           int64
	RecentBounceCount int64
}

// ReputationResult is a sender-reputation snapshot.
type ReputationResult struct {
	Score float64
	Trend string // "improving", "stable", "declining"
}

// Client is the mail-platform collaborator contract (§6).
type Client interface {
	GetDraft(ctx context.Context, draftID string) (*Draft, error)
	GetDetailedStatistics(ctx context.Context, campaignID string) (*Statistics, error)
	SendCampaignNow(ctx context.Context, campaignID string) (*SendResult, error)
	VerifyReadiness(ctx context.Context, draftID string) (*ReadinessResult, error)
	GetListStatistics(ctx context.Context, listID string) (*ListStatistics, error)
	GetSenderReputation(ctx context.Context, senderEmail string) (*ReputationResult, error)
}

// HTTPClient is the production Client, backed by the configured mail
// platform's REST API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient httpretry.HTTPDoer
}

// NewHTTPClient creates a mail-platform client from config.
func NewHTTPClient(cfg config.MailPlatformConfig) *HTTPClient {
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: cfg.Timeout(),
		}, 3),
	}
}

func (c *HTTPClient) doRequest(ctx context.Context, op, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, engineerr.Input(op, fmt.Errorf("marshal request: %w", err))
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, engineerr.Input(op, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, engineerr.Transient(op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, engineerr.Transient(op, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, engineerr.Transient(op, fmt.Errorf("mail platform returned %d: %s", resp.StatusCode, respBody))
	}
	if resp.StatusCode >= 400 {
		return nil, engineerr.Permanent(op, fmt.Errorf("mail platform returned %d: %s", resp.StatusCode, respBody))
	}
	return respBody, nil
}

type draftDTO struct {
	Subject           string `json:"subject"`
	SenderName        string `json:"sender_name"`
	SenderEmail       string `json:"sender_email"`
	ListID            string `json:"list_id"`
	ContentNonEmpty   bool   `json:"content_non_empty"`
	ListAttached      bool   `json:"list_attached"`
	ListNonEmpty      bool   `json:"list_non_empty"`
	HasBlockedEntries bool   `json:"has_blocked_entries"`
}

// GetDraft fetches a draft's shape for pre-flight verification.
func (c *HTTPClient) GetDraft(ctx context.Context, draftID string) (*Draft, error) {
	const op = "mailplatform.GetDraft"
	body, err := c.doRequest(ctx, op, http.MethodGet, "/drafts/"+draftID, nil)
	if err != nil {
		return nil, err
	}
	var dto draftDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, engineerr.Permanent(op, fmt.Errorf("decode draft: %w", err))
	}
	return &Draft{
		Subject: dto.Subject, SenderName: dto.SenderName, SenderEmail: dto.SenderEmail, ListID: dto.ListID,
		ContentNonEmpty: dto.ContentNonEmpty, ListAttached: dto.ListAttached,
		ListNonEmpty: dto.ListNonEmpty, HasBlockedEntries: dto.HasBlockedEntries,
	}, nil
}

type statisticsDTO struct {
	Processed    int64 `json:"processed"`
	Delivered    int64 `json:"delivered"`
	Bounced      int64 `json:"bounced"`
	HardBounces  int64 `json:"hard_bounces"`
	SoftBounces  int64 `json:"soft_bounces"`
	Blocked      int64 `json:"blocked"`
	Queued       int64 `json:"queued"`
	Opened       int64 `json:"opened"`
	Clicked      int64 `json:"clicked"`
	Unsubscribed int64 `json:"unsubscribed"`
	Complained   int64 `json:"complained"`
}

// GetDetailedStatistics fetches the raw counter vector for a launched campaign.
func (c *HTTPClient) GetDetailedStatistics(ctx context.Context, campaignID string) (*Statistics, error) {
	const op = "mailplatform.GetDetailedStatistics"
	body, err := c.doRequest(ctx, op, http.MethodGet, "/campaigns/"+campaignID+"/statistics", nil)
	if err != nil {
		return nil, err
	}
	var dto statisticsDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, engineerr.Permanent(op, fmt.Errorf("decode statistics: %w", err))
	}
	return &Statistics{
		Processed: dto.Processed, Delivered: dto.Delivered, Bounced: dto.Bounced,
		HardBounces: dto.HardBounces, SoftBounces: dto.SoftBounces, Blocked: dto.Blocked,
		Queued: dto.Queued, Opened: dto.Opened, Clicked: dto.Clicked,
		Unsubscribed: dto.Unsubscribed, Complained: dto.Complained,
	}, nil
}

type sendResultDTO struct {
	MessageID   string    `json:"message_id"`
	QueuedCount int64     `json:"queued_count"`
	SendStartAt time.Time `json:"send_start_at"`
}

// SendCampaignNow instructs the mail platform to send a campaign immediately.
func (c *HTTPClient) SendCampaignNow(ctx context.Context, campaignID string) (*SendResult, error) {
	const op = "mailplatform.SendCampaignNow"
	body, err := c.doRequest(ctx, op, http.MethodPost, "/campaigns/"+campaignID+"/send", nil)
	if err != nil {
		return nil, err
	}
	var dto sendResultDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, engineerr.Permanent(op, fmt.Errorf("decode send result: %w", err))
	}
	return &SendResult{MessageID: dto.MessageID, QueuedCount: dto.QueuedCount, SendStartAt: dto.SendStartAt}, nil
}

type readinessDTO struct {
	IsReady bool            `json:"is_ready"`
	Checks  map[string]bool `json:"checks"`
	Issues  []string        `json:"issues"`
}

// VerifyReadiness asks the mail platform whether a draft is ready to send.
func (c *HTTPClient) VerifyReadiness(ctx context.Context, draftID string) (*ReadinessResult, error) {
	const op = "mailplatform.VerifyReadiness"
	body, err := c.doRequest(ctx, op, http.MethodGet, "/drafts/"+draftID+"/readiness", nil)
	if err != nil {
		return nil, err
	}
	var dto readinessDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, engineerr.Permanent(op, fmt.Errorf("decode readiness: %w", err))
	}
	return &ReadinessResult{IsReady: dto.IsReady, Checks: dto.Checks, Issues: dto.Issues}, nil
}

type listStatisticsDTO struct {
	Total             int64 `json:"total"`
	Subscribed        int64 `json:"subscribed"`
	Unsubscribed      int64 `json:"unsubscribed"`
	Blocked           int64 `json:"blocked"`
	RecentBounceCount int64 `json:"recent_bounce_count"`
}

// GetListStatistics fetches a list-health snapshot.
func (c *HTTPClient) GetListStatistics(ctx context.Context, listID string) (*ListStatistics, error) {
	const op = "mailplatform.GetListStatistics"
	body, err := c.doRequest(ctx, op, http.MethodGet, "/lists/"+listID+"/statistics", nil)
	if err != nil {
		return nil, err
	}
	var dto listStatisticsDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, engineerr.Permanent(op, fmt.Errorf("decode list statistics: %w", err))
	}
	return &ListStatistics{
		Total: dto.Total, Subscribed: dto.Subscribed, Unsubscribed: dto.Unsubscribed,
		Blocked: dto.Blocked, RecentBounceCount: dto.RecentBounceCount,
	}, nil
}

type reputationDTO struct {
	Score float64 `json:"score"`
	Trend string  `json:"trend"`
}

// GetSenderReputation fetches a sender-reputation snapshot.
func (c *HTTPClient) GetSenderReputation(ctx context.Context, senderEmail string) (*ReputationResult, error) {
	const op = "mailplatform.GetSenderReputation"
	body, err := c.doRequest(ctx, op, http.MethodGet, "/reputation?sender="+senderEmail, nil)
	if err != nil {
		return nil, err
	}
	var dto reputationDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, engineerr.Permanent(op, fmt.Errorf("decode reputation: %w", err))
	}
	return &ReputationResult{Score: dto.Score, Trend: dto.Trend}, nil
}
