package ai

import (
	"context"
	"errors"
	neturl "net/url"
	"strings"

	openaiclient "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"
)

type openAIClient struct {
	client openaiclient.Client
}

func newOpenAIClient(apiKey, baseURL string) *openAIClient {
	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(strings.TrimSpace(apiKey)),
		openaioption.WithMaxRetries(0),
	}
	if normalized := normalizeOpenAIBaseURL(baseURL); normalized != "" {
		opts = append(opts, openaioption.WithBaseURL(normalized))
	}
	return &openAIClient{client: openaiclient.NewClient(opts...)}
}

func (c *openAIClient) Complete(ctx context.Context, model, prompt, text string) (Completion, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openaiclient.ChatCompletionNewParams{
		Model: openaiclient.ChatModel(model),
		Messages: []openaiclient.ChatCompletionMessageParamUnion{
			openaiclient.SystemMessage(prompt),
			openaiclient.UserMessage(text),
		},
		MaxTokens:   openaiclient.Int(1000),
		Temperature: openaiclient.Float(0.3),
	})
	if err != nil {
		var apiErr *openaiclient.Error
		if errors.As(err, &apiErr) {
			return Completion{}, upstreamErrorf("status %d", apiErr.StatusCode)
		}
		return Completion{}, err
	}
	if len(resp.Choices) == 0 {
		return Completion{}, upstreamErrorf("malformed response: no choices")
	}
	return Completion{
		Text: resp.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// normalizeOpenAIBaseURL makes sure a custom endpoint ends in /v1.
func normalizeOpenAIBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return ""
	}
	parsed, err := neturl.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return strings.TrimRight(base, "/")
	}

	path := strings.TrimRight(parsed.Path, "/")
	if !strings.HasSuffix(path, "/v1") {
		path += "/v1"
	}
	parsed.Path = path
	return strings.TrimRight(parsed.String(), "/") + "/"
}
