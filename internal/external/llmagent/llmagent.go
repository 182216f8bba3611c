// Package llmagent defines the language-model collaborator contract and
// an AWS Bedrock implementation: an Anthropic request/response envelope
// over bedrockruntime.InvokeModel.
package llmagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/ignite/campaign-lifecycle-engine/internal/config"
	"github.com/ignite/campaign-lifecycle-engine/internal/engineerr"
)

// Client is the language-model collaborator contract (§6): generate(prompt)
// → text. The caller is responsible for treating the response as opaque
// structured data and validating its shape (§4.5); this package only moves
// bytes.
type Client interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

type bedrockMessage struct {
	Role    string                `json:"role"`
	Content []bedrockContentBlock `json:"content"`
}

type bedrockContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
	Temperature      float64          `json:"temperature,omitempty"`
}

type bedrockResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// BedrockClient invokes an Anthropic model hosted on AWS Bedrock.
type BedrockClient struct {
	client  *bedrockruntime.Client
	modelID string
}

// NewBedrockClient creates a Bedrock-backed LLM client from config.
func NewBedrockClient(ctx context.Context, cfg config.LLMConfig) (*BedrockClient, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("llmagent: load AWS config: %w", err)
	}
	return &BedrockClient{
		client:  bedrockruntime.NewFromConfig(awsCfg),
		modelID: cfg.ModelID,
	}, nil
}

// Generate sends a single-turn request to the model and returns its raw
// text response, which may be JSON wrapped in fenced markdown — the caller
// validates and unwraps per agent.
func (b *BedrockClient) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	const op = "llmagent.Generate"

	request := bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        4096,
		System:           systemPrompt,
		Temperature:      0.2,
		Messages: []bedrockMessage{
			{Role: "user", Content: []bedrockContentBlock{{Type: "text", Text: userPrompt}}},
		},
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return "", engineerr.Input(op, fmt.Errorf("marshal request: %w", err))
	}

	output, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        requestBody,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", engineerr.BudgetExceeded(op, err)
		}
		return "", engineerr.Transient(op, fmt.Errorf("bedrock invoke: %w", err))
	}

	var response bedrockResponse
	if err := json.Unmarshal(output.Body, &response); err != nil {
		return "", engineerr.AgentSchema(op, fmt.Errorf("decode bedrock response: %w", err))
	}

	var text string
	for _, block := range response.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return "", engineerr.AgentSchema(op, errors.New("bedrock returned no text content"))
	}
	return text, nil
}
