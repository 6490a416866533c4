package summary

import (
	"github.com/smartbrief/core/internal/models"
	"github.com/smartbrief/core/internal/modules/ai"
	"github.com/smartbrief/core/internal/modules/ingest"
)

type CreateSummaryDTO struct {
	Text     string `json:"text"`
	Prompt   string `json:"prompt"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type RegenerateSummaryDTO struct {
	Prompt   string `json:"prompt"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type summaryView struct {
	*models.SummaryModel
	CompressionRatio float64 `json:"compressionRatio"`
}

type aiInfoView struct {
	Provider       ai.Provider `json:"provider"`
	Model          string      `json:"model"`
	ProcessingTime int64       `json:"processingTime"`
	Usage          ai.Usage    `json:"usage"`
}

type creditsView struct {
	Deducted  int `json:"deducted"`
	Remaining int `json:"remaining"`
}

type outcomeResponse struct {
	Message  string           `json:"message"`
	Summary  summaryView      `json:"summary"`
	AIInfo   aiInfoView       `json:"aiInfo"`
	Credits  creditsView      `json:"credits"`
	FileInfo *ingest.Metadata `json:"fileInfo,omitempty"`
}

func toView(s *models.SummaryModel) summaryView {
	return summaryView{SummaryModel: s, CompressionRatio: s.CompressionRatio()}
}

func toViews(items []models.SummaryModel) []summaryView {
	out := make([]summaryView, len(items))
	for i := range items {
		out[i] = toView(&items[i])
	}
	return out
}

func toOutcomeResponse(message string, o *Outcome) outcomeResponse {
	return outcomeResponse{
		Message: message,
		Summary: toView(o.Summary),
		AIInfo: aiInfoView{
			Provider:       o.AI.Provider,
			Model:          o.AI.Model,
			ProcessingTime: o.AI.ProcessingTimeMs,
			Usage:          o.AI.Usage,
		},
		Credits:  creditsView{Deducted: o.Deducted, Remaining: o.Remaining},
		FileInfo: o.Upload,
	}
}
