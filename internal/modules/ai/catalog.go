package ai

// ModelInfo describes one selectable model.
type ModelInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	MaxTokens   int    `json:"maxTokens"`
}

var catalog = map[Provider][]ModelInfo{
	ProviderGemini: {
		{ID: "gemini-1.5-flash-latest", DisplayName: "Gemini 1.5 Flash", MaxTokens: 1048576},
		{ID: "gemini-1.5-pro-latest", DisplayName: "Gemini 1.5 Pro", MaxTokens: 2097152},
		{ID: "gemini-pro", DisplayName: "Gemini Pro", MaxTokens: 30720},
	},
	ProviderOpenAI: {
		{ID: "gpt-4o-mini", DisplayName: "GPT-4o mini", MaxTokens: 128000},
		{ID: "gpt-4o", DisplayName: "GPT-4o", MaxTokens: 128000},
		{ID: "gpt-4.1-mini", DisplayName: "GPT-4.1 mini", MaxTokens: 1047576},
	},
	ProviderAnthropic: {
		{ID: "claude-haiku-4-5-20251001", DisplayName: "Claude Haiku 4.5", MaxTokens: 200000},
		{ID: "claude-sonnet-4-5", DisplayName: "Claude Sonnet 4.5", MaxTokens: 200000},
	},
}

// builtinDefaults are used when configuration names no default model.
var builtinDefaults = map[Provider]string{
	ProviderGemini:    "gemini-1.5-flash-latest",
	ProviderOpenAI:    "gpt-4o-mini",
	ProviderAnthropic: "claude-haiku-4-5-20251001",
}

func inCatalog(p Provider, model string) bool {
	for _, m := range catalog[p] {
		if m.ID == model {
			return true
		}
	}
	return false
}

// AvailableModels returns a copy of the model catalog.
func AvailableModels() map[Provider][]ModelInfo {
	out := make(map[Provider][]ModelInfo, len(catalog))
	for p, models := range catalog {
		out[p] = append([]ModelInfo(nil), models...)
	}
	return out
}
