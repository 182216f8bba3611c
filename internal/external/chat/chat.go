// Package chat defines the chat-poster collaborator contract (§6) and a
// Slack-backed implementation, grounded on the slack-go wrapper pattern used
// elsewhere in the retrieved pack (a thin Client over goslack.Client).
package chat

import (
	"context"
	"errors"
	"fmt"

	goslack "github.com/slack-go/slack"

	"github.com/ignite/campaign-lifecycle-engine/internal/config"
	"github.com/ignite/campaign-lifecycle-engine/internal/engineerr"
)

// PostResult is returned by a successful PostMessage call.
type PostResult struct {
	MessageID string
	Timestamp string
}

// Poster is the chat-poster collaborator contract (§6).
type Poster interface {
	PostMessage(ctx context.Context, channelID string, blocks []goslack.Block, fallbackText string) (*PostResult, error)
}

// SlackPoster posts formatted stage notifications to a Slack channel.
type SlackPoster struct {
	api *goslack.Client
}

// NewSlackPoster creates a chat poster from config.
func NewSlackPoster(cfg config.ChatConfig) *SlackPoster {
	return &SlackPoster{api: goslack.New(cfg.BotToken)}
}

// PostMessage posts blocks (with fallbackText for notifications/accessibility)
// to channelID. Network errors and Slack rate-limiting are retryable;
// validation and auth failures are fatal, per §6's failure taxonomy.
func (p *SlackPoster) PostMessage(ctx context.Context, channelID string, blocks []goslack.Block, fallbackText string) (*PostResult, error) {
	const op = "chat.PostMessage"

	_, ts, err := p.api.PostMessageContext(ctx, channelID,
		goslack.MsgOptionBlocks(blocks...),
		goslack.MsgOptionText(fallbackText, false),
	)
	if err != nil {
		return nil, classify(op, err)
	}
	return &PostResult{MessageID: ts, Timestamp: ts}, nil
}

func classify(op string, err error) error {
	var rateLimited *goslack.RateLimitedError
	if errors.As(err, &rateLimited) {
		return engineerr.Transient(op, err)
	}

	var slackErr goslack.SlackErrorResponse
	if errors.As(err, &slackErr) {
		switch slackErr.Err {
		case "invalid_auth", "not_authed", "account_inactive", "token_revoked",
			"channel_not_found", "invalid_blocks", "invalid_arguments", "msg_too_long":
			return engineerr.Permanent(op, err)
		default:
			return engineerr.Transient(op, err)
		}
	}

	// Anything else (network error, context deadline, unrecognized shape) is
	// treated as a transient infrastructure failure.
	return engineerr.Transient(op, fmt.Errorf("slack post failed: %w", err))
}
