package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/smartbrief/core/internal/config"
	"github.com/smartbrief/core/internal/pkg/apperr"
	"github.com/smartbrief/core/internal/pkg/metrics"
	"github.com/smartbrief/core/internal/pkg/textutil"
	"go.uber.org/zap"
)

const defaultTimeout = 30 * time.Second

// Gateway routes summarization requests to the configured providers.
type Gateway struct {
	clients         map[Provider]Client
	baseURLs        map[Provider]string
	defaultModels   map[Provider]string
	defaultProvider Provider
	timeout         time.Duration
	logger          *zap.Logger
}

type Option func(*Gateway)

// WithClient installs c for p, replacing whatever the configuration built.
func WithClient(p Provider, c Client) Option {
	return func(g *Gateway) { g.clients[p] = c }
}

func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// New builds a gateway from cfg. Providers without an API key stay
// unconfigured and fail at call time with a provider error.
func New(cfg config.AIConfig, logger *zap.Logger, opts ...Option) (*Gateway, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gateway{
		clients:       make(map[Provider]Client, len(Providers)),
		baseURLs:      make(map[Provider]string, len(Providers)),
		defaultModels: make(map[Provider]string, len(Providers)),
		timeout:       defaultTimeout,
		logger:        logger,
	}
	if cfg.TimeoutSeconds > 0 {
		g.timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	defaultProvider := cfg.DefaultProvider
	if defaultProvider == "" {
		defaultProvider = string(ProviderGemini)
	}
	p, ok := ParseProvider(defaultProvider)
	if !ok {
		return nil, fmt.Errorf("unknown default provider %q", cfg.DefaultProvider)
	}
	g.defaultProvider = p

	for _, p := range Providers {
		pc, _ := cfg.Provider(string(p))
		model := strings.TrimSpace(pc.DefaultModel)
		if model == "" {
			model = builtinDefaults[p]
		}
		if !inCatalog(p, model) {
			return nil, fmt.Errorf("default model %q is not available for provider %s", model, p)
		}
		g.defaultModels[p] = model
		g.baseURLs[p] = pc.BaseURL

		if strings.TrimSpace(pc.APIKey) == "" {
			continue
		}
		switch p {
		case ProviderGemini:
			g.clients[p] = newGeminiClient(pc.APIKey, pc.BaseURL)
		case ProviderOpenAI:
			g.clients[p] = newOpenAIClient(pc.APIKey, pc.BaseURL)
		case ProviderAnthropic:
			g.clients[p] = newAnthropicClient(pc.APIKey, pc.BaseURL)
		}
	}

	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// ResolveSelection fills defaults and checks the pair against the catalog.
func (g *Gateway) ResolveSelection(provider, model string) (Selection, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	model = strings.TrimSpace(model)

	p := g.defaultProvider
	if provider != "" {
		var ok bool
		if p, ok = ParseProvider(provider); !ok {
			return Selection{}, apperr.Validationf("Unsupported AI provider: %s", provider)
		}
	}
	if model == "" {
		model = g.defaultModels[p]
	}
	if !inCatalog(p, model) {
		return Selection{}, apperr.Validationf("Unsupported model %s for provider %s", model, p)
	}
	return Selection{Provider: p, Model: model}, nil
}

// AvailableModels returns provider → models.
func (g *Gateway) AvailableModels() map[Provider][]ModelInfo {
	return AvailableModels()
}

// CheckConfiguration reports which providers hold credentials.
func (g *Gateway) CheckConfiguration() map[Provider]ProviderStatus {
	out := make(map[Provider]ProviderStatus, len(Providers))
	for _, p := range Providers {
		out[p] = ProviderStatus{
			Configured:   g.clients[p] != nil,
			BaseURL:      g.baseURLs[p],
			DefaultModel: g.defaultModels[p],
		}
	}
	return out
}

// Summarize performs one bounded call. It never retries.
func (g *Gateway) Summarize(ctx context.Context, req Request) (*Result, error) {
	sel, err := g.ResolveSelection(req.Provider, req.Model)
	if err != nil {
		return nil, err
	}
	if check := textutil.Validate(req.Text); !check.Valid {
		return nil, apperr.Validation(check.Reason)
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		prompt = DefaultPrompt
	}
	if utf8.RuneCountInString(prompt) > textutil.MaxPromptChars {
		return nil, apperr.Validationf("Prompt cannot exceed %d characters", textutil.MaxPromptChars)
	}

	client := g.clients[sel.Provider]
	if client == nil {
		return nil, apperr.Provider(string(sel.Provider), fmt.Sprintf("%s API key not configured", providerName(sel.Provider)), 0, nil)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	completion, err := client.Complete(callCtx, sel.Model, prompt, strings.TrimSpace(req.Text))
	elapsed := time.Since(start)
	if err == nil {
		err = checkOutput(completion.Text)
	}

	metrics.ObserveProviderCall(string(sel.Provider), sel.Model, elapsed, completion.Usage.PromptTokens, completion.Usage.CompletionTokens, err)
	if err != nil {
		message := providerName(sel.Provider) + " summarization failed"
		var upstream *upstreamError
		if errors.As(err, &upstream) {
			message += ": " + upstream.reason
		}
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			message = fmt.Sprintf("%s request timed out after %s", providerName(sel.Provider), g.timeout)
		}
		g.logger.Warn("summarization failed",
			zap.String("provider", string(sel.Provider)),
			zap.String("model", sel.Model),
			zap.Int64("elapsed_ms", elapsed.Milliseconds()),
			zap.Error(err),
		)
		return nil, apperr.Provider(string(sel.Provider), message, elapsed.Milliseconds(), err)
	}

	usage := completion.Usage
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	g.logger.Info("summarization completed",
		zap.String("provider", string(sel.Provider)),
		zap.String("model", sel.Model),
		zap.Int64("elapsed_ms", elapsed.Milliseconds()),
		zap.Int("total_tokens", usage.TotalTokens),
	)

	return &Result{
		SummaryText:      strings.TrimSpace(completion.Text),
		Provider:         sel.Provider,
		Model:            sel.Model,
		Prompt:           prompt,
		ProcessingTimeMs: elapsed.Milliseconds(),
		Usage:            usage,
	}, nil
}

// upstreamError is a failure reported by the provider itself. Its reason is
// shown to callers; transport errors are not, since they carry request URLs.
type upstreamError struct {
	reason string
}

func (e *upstreamError) Error() string { return e.reason }

func upstreamErrorf(format string, args ...any) error {
	return &upstreamError{reason: fmt.Sprintf(format, args...)}
}

func checkOutput(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return upstreamErrorf("empty response from provider")
	}
	if utf8.RuneCountInString(trimmed) > textutil.MaxSummaryChars {
		return upstreamErrorf("summary exceeds %d characters", textutil.MaxSummaryChars)
	}
	return nil
}

func providerName(p Provider) string {
	switch p {
	case ProviderGemini:
		return "Gemini"
	case ProviderOpenAI:
		return "OpenAI"
	case ProviderAnthropic:
		return "Anthropic"
	}
	return string(p)
}
