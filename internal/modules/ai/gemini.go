package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
)

const (
	geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	geminiMaxResponse    = 4 << 20
)

type geminiClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func newGeminiClient(apiKey, baseURL string) *geminiClient {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = geminiDefaultBaseURL
	}
	return &geminiClient{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: base,
		// The caller's context bounds the call.
		http: &http.Client{},
	}
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *geminiClient) Complete(ctx context.Context, model, prompt, text string) (Completion, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt + "\n\n" + text}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     0.3,
			TopK:            40,
			TopP:            0.95,
			MaxOutputTokens: 1000,
		},
	})
	if err != nil {
		return Completion{}, err
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, neturl.PathEscape(model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Completion{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return Completion{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, geminiMaxResponse))
	if err != nil {
		return Completion{}, err
	}

	var result geminiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return Completion{}, upstreamErrorf("status %d", resp.StatusCode)
		}
		return Completion{}, fmt.Errorf("malformed response: %w", err)
	}
	if result.Error != nil && strings.TrimSpace(result.Error.Message) != "" {
		return Completion{}, &upstreamError{reason: strings.TrimSpace(result.Error.Message)}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return Completion{}, upstreamErrorf("status %d", resp.StatusCode)
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return Completion{}, upstreamErrorf("malformed response: no candidates")
	}

	out := Completion{Text: result.Candidates[0].Content.Parts[0].Text}
	if m := result.UsageMetadata; m != nil {
		out.Usage = Usage{
			PromptTokens:     m.PromptTokenCount,
			CompletionTokens: m.CandidatesTokenCount,
			TotalTokens:      m.TotalTokenCount,
		}
	}
	return out, nil
}
