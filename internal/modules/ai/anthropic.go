package ai

import (
	"context"
	"errors"
	"strings"

	anthropicclient "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
)

type anthropicClient struct {
	client anthropicclient.Client
}

func newAnthropicClient(apiKey, baseURL string) *anthropicClient {
	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(strings.TrimSpace(apiKey)),
		anthropicoption.WithMaxRetries(0),
	}
	if endpoint := strings.TrimSpace(baseURL); endpoint != "" {
		opts = append(opts, anthropicoption.WithBaseURL(strings.TrimRight(endpoint, "/")+"/"))
	}
	return &anthropicClient{client: anthropicclient.NewClient(opts...)}
}

func (c *anthropicClient) Complete(ctx context.Context, model, prompt, text string) (Completion, error) {
	resp, err := c.client.Messages.New(ctx, anthropicclient.MessageNewParams{
		Model:     anthropicclient.Model(model),
		MaxTokens: 1000,
		System: []anthropicclient.TextBlockParam{
			{Text: prompt},
		},
		Messages: []anthropicclient.MessageParam{
			anthropicclient.NewUserMessage(anthropicclient.NewTextBlock(text)),
		},
		Temperature: anthropicclient.Float(0.3),
	})
	if err != nil {
		var apiErr *anthropicclient.Error
		if errors.As(err, &apiErr) {
			return Completion{}, upstreamErrorf("status %d", apiErr.StatusCode)
		}
		return Completion{}, err
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	input := int(resp.Usage.InputTokens)
	output := int(resp.Usage.OutputTokens)
	return Completion{
		Text:  out.String(),
		Usage: Usage{PromptTokens: input, CompletionTokens: output, TotalTokens: input + output},
	}, nil
}
