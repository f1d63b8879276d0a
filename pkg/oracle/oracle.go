// Package oracle wraps an LLM behind the narrow generate-insights contract
// used by the reconciliation engine and the adaptive quality controller.
// The oracle is treated as unreliable: callers must handle errors with
// their documented fallbacks.
package oracle

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Client generates structured insights from a context map and a prompt.
// The response is the parsed top-level JSON object from the model.
type Client interface {
	Generate(ctx context.Context, contextData map[string]any, prompt string) (map[string]any, error)
}

// Options configures the Anthropic-backed oracle.
type Options struct {
	APIKey    string
	Model     string
	MaxTokens int64
	Timeout   time.Duration
}

// anthropicClient implements Client using the official SDK.
type anthropicClient struct {
	client    sdk.Client
	model     string
	maxTokens int64
	timeout   time.Duration
}

// New creates an Anthropic-backed oracle client.
func New(opts Options) Client {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2048
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &anthropicClient{
		client:    sdk.NewClient(option.WithAPIKey(opts.APIKey)),
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		timeout:   opts.Timeout,
	}
}

const systemPrompt = `You are a data quality analyst for an ESG data platform.
Respond with a single JSON object and nothing else.`

func (c *anthropicClient) Generate(ctx context.Context, contextData map[string]any, prompt string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctxJSON, err := json.Marshal(contextData)
	if err != nil {
		return nil, eris.Wrap(err, "oracle: marshal context")
	}

	var user strings.Builder
	user.WriteString("Context:\n")
	user.Write(ctxJSON)
	user.WriteString("\n\n")
	user.WriteString(prompt)

	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: c.maxTokens,
		System: []sdk.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(user.String())),
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "oracle: create message")
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, eris.New("oracle: empty response")
	}

	out, err := parseJSONObject(text)
	if err != nil {
		zap.L().Warn("oracle: unparseable response",
			zap.String("model", c.model),
			zap.Error(err),
		)
		return nil, err
	}
	return out, nil
}

// parseJSONObject extracts the first JSON object from model output,
// tolerating fenced code blocks and leading prose.
func parseJSONObject(text string) (map[string]any, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, eris.New("oracle: response contains no JSON object")
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return nil, eris.Wrap(err, "oracle: parse response JSON")
	}
	return out, nil
}
