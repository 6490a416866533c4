package ai

import "context"

// Provider is one of the closed set of summarization backends.
type Provider string

const (
	ProviderGemini    Provider = "gemini"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Providers lists every backend in display order.
var Providers = []Provider{ProviderGemini, ProviderOpenAI, ProviderAnthropic}

// ParseProvider maps a request string onto the closed set.
func ParseProvider(raw string) (Provider, bool) {
	switch p := Provider(raw); p {
	case ProviderGemini, ProviderOpenAI, ProviderAnthropic:
		return p, true
	}
	return "", false
}

// DefaultPrompt is used when the caller supplies none.
const DefaultPrompt = "Summarize the following text in a clear and concise manner, maintaining the key points and main ideas:"

// Usage is the token accounting reported by a provider, zero-filled when absent.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Request asks the gateway for one summary. Empty Provider/Model/Prompt select defaults.
type Request struct {
	Text     string
	Prompt   string
	Provider string
	Model    string
}

// Result is a successful summarization.
type Result struct {
	SummaryText      string   `json:"summary"`
	Provider         Provider `json:"provider"`
	Model            string   `json:"model"`
	Prompt           string   `json:"-"`
	ProcessingTimeMs int64    `json:"processingTime"`
	Usage            Usage    `json:"usage"`
}

// Selection is a catalog-checked provider/model pair.
type Selection struct {
	Provider Provider
	Model    string
}

// Completion is the raw output of a backend call.
type Completion struct {
	Text  string
	Usage Usage
}

// Client performs a single completion call against one backend.
type Client interface {
	Complete(ctx context.Context, model, prompt, text string) (Completion, error)
}

// ProviderStatus describes whether a provider can be called.
type ProviderStatus struct {
	Configured   bool   `json:"configured"`
	BaseURL      string `json:"baseUrl,omitempty"`
	DefaultModel string `json:"defaultModel"`
}
