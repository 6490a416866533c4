package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/smartbrief/core/internal/models"
	"github.com/smartbrief/core/internal/modules/ai"
	"github.com/smartbrief/core/internal/modules/auth"
	"github.com/smartbrief/core/internal/modules/credit"
	"github.com/smartbrief/core/internal/modules/ingest"
	"github.com/smartbrief/core/internal/pkg/apperr"
	"github.com/smartbrief/core/internal/pkg/metrics"
	"github.com/smartbrief/core/internal/pkg/pagination"
	"github.com/smartbrief/core/internal/pkg/textutil"
	"github.com/smartbrief/core/internal/store"
	"go.uber.org/zap"
)

const (
	costPerSummary = 1
	retryDelay     = 100 * time.Millisecond
)

// Summarizer is the part of the AI gateway the service depends on.
type Summarizer interface {
	ResolveSelection(provider, model string) (ai.Selection, error)
	Summarize(ctx context.Context, req ai.Request) (*ai.Result, error)
}

// Input carries the caller-chosen generation options.
type Input struct {
	Text     string
	Prompt   string
	Provider string
	Model    string
}

// Outcome is a persisted, charged summary.
type Outcome struct {
	Summary   *models.SummaryModel
	AI        *ai.Result
	Deducted  int
	Remaining int
	Upload    *ingest.Metadata
}

// Service coordinates validation, credits, the AI call and persistence.
type Service struct {
	store    store.SummaryStore
	ledger   *credit.Ledger
	gateway  Summarizer
	ingestor *ingest.Ingestor
	logger   *zap.Logger
}

func NewService(st store.SummaryStore, ledger *credit.Ledger, gateway Summarizer, ingestor *ingest.Ingestor, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ingestor == nil {
		ingestor = ingest.NewIngestor(nil, logger)
	}
	return &Service{store: st, ledger: ledger, gateway: gateway, ingestor: ingestor, logger: logger}
}

// Create summarizes in.Text and charges caller one credit.
func (s *Service) Create(ctx context.Context, caller auth.Identity, in Input) (*Outcome, error) {
	if check := textutil.Validate(in.Text); !check.Valid {
		return nil, apperr.Validation(check.Reason)
	}
	if _, err := s.checkOptions(in.Prompt, in.Provider, in.Model); err != nil {
		return nil, err
	}
	if err := s.requireCredits(ctx, caller.UserID); err != nil {
		return nil, err
	}
	return s.generate(ctx, caller, strings.TrimSpace(in.Text), in, nil)
}

// CreateFromUpload extracts up and summarizes its text. The credit check
// happens before extraction so that broke callers never reach the archive.
func (s *Service) CreateFromUpload(ctx context.Context, caller auth.Identity, up *ingest.Upload, in Input) (*Outcome, error) {
	if up == nil {
		return nil, apperr.Validation("No file uploaded")
	}
	if _, err := ingest.Validate(up.FileName, up.Size); err != nil {
		return nil, err
	}
	if _, err := s.checkOptions(in.Prompt, in.Provider, in.Model); err != nil {
		return nil, err
	}
	if err := s.requireCredits(ctx, caller.UserID); err != nil {
		return nil, err
	}

	extracted, err := s.ingestor.Ingest(ctx, caller.UserID, up)
	if err != nil {
		return nil, err
	}
	return s.generate(ctx, caller, extracted.Text, in, &extracted.Metadata)
}

func (s *Service) generate(ctx context.Context, caller auth.Identity, text string, in Input, meta *ingest.Metadata) (*Outcome, error) {
	result, err := s.gateway.Summarize(ctx, ai.Request{
		Text:     text,
		Prompt:   in.Prompt,
		Provider: in.Provider,
		Model:    in.Model,
	})
	if err != nil {
		return nil, err
	}

	item := &models.SummaryModel{
		UserID:           caller.UserID,
		Prompt:           result.Prompt,
		Provider:         string(result.Provider),
		Model:            result.Model,
		Status:           models.SummaryCompleted,
		ProcessingTimeMs: result.ProcessingTimeMs,
		CreditsUsed:      costPerSummary,
	}
	item.EnsureID()
	item.SetOriginalText(text)
	item.SetSummaryText(result.SummaryText)

	charge := store.Charge{
		UserID:         caller.UserID,
		Amount:         costPerSummary,
		Reason:         models.ReasonSummaryCreate,
		RefID:          item.ID,
		IdempotencyKey: models.ReasonSummaryCreate + ":" + item.ID,
	}
	var res store.ChargeResult
	err = s.withRetry(ctx, "create summary", func() error {
		var err error
		res, err = s.store.CreateSummaryCharged(ctx, item, charge)
		return err
	})
	if err != nil {
		return nil, s.persistError(caller.UserID, err)
	}

	metrics.IncSummary("create")
	if !res.Replayed {
		metrics.AddCreditsDebited(models.ReasonSummaryCreate, costPerSummary)
	}
	s.logger.Info("summary created",
		zap.String("user_id", caller.UserID),
		zap.String("summary_id", item.ID),
		zap.String("provider", item.Provider),
		zap.Int("remaining", res.Remaining),
	)
	return &Outcome{Summary: item, AI: result, Deducted: costPerSummary, Remaining: res.Remaining, Upload: meta}, nil
}

// Regenerate re-summarizes the stored original text and charges caller.
// Omitted options fall back to those recorded on the summary.
func (s *Service) Regenerate(ctx context.Context, caller auth.Identity, id string, in Input) (*Outcome, error) {
	existing, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanModify(caller, existing) {
		return nil, apperr.Forbidden("Access denied. You can only edit your own summaries.")
	}

	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		prompt = existing.Prompt
	}
	provider, model := regenerationSelection(existing, in.Provider, in.Model)
	if _, err := s.checkOptions(prompt, provider, model); err != nil {
		return nil, err
	}
	if err := s.requireCredits(ctx, caller.UserID); err != nil {
		return nil, err
	}

	result, err := s.gateway.Summarize(ctx, ai.Request{
		Text:     existing.OriginalText,
		Prompt:   prompt,
		Provider: provider,
		Model:    model,
	})
	if err != nil {
		return nil, err
	}

	prev := existing.CreditsUsed
	updated := *existing
	updated.SetSummaryText(result.SummaryText)
	updated.Prompt = result.Prompt
	updated.Provider = string(result.Provider)
	updated.Model = result.Model
	updated.ProcessingTimeMs = result.ProcessingTimeMs
	updated.Status = models.SummaryCompleted
	updated.ErrorMessage = ""
	updated.CreditsUsed = prev + costPerSummary

	charge := store.Charge{
		UserID:         caller.UserID,
		Amount:         costPerSummary,
		Reason:         models.ReasonSummaryRegenerate,
		RefID:          existing.ID,
		// Unique per call: a concurrent regeneration must conflict, not replay.
		IdempotencyKey: fmt.Sprintf("%s:%s:%s", models.ReasonSummaryRegenerate, existing.ID, uuid.NewString()),
	}
	var res store.ChargeResult
	err = s.withRetry(ctx, "regenerate summary", func() error {
		var err error
		res, err = s.store.UpdateSummaryCharged(ctx, &updated, prev, charge)
		return err
	})
	if err != nil {
		return nil, s.persistError(caller.UserID, err)
	}

	metrics.IncSummary("regenerate")
	if !res.Replayed {
		metrics.AddCreditsDebited(models.ReasonSummaryRegenerate, costPerSummary)
	}
	s.logger.Info("summary regenerated",
		zap.String("user_id", caller.UserID),
		zap.String("summary_id", existing.ID),
		zap.Int("credits_used", updated.CreditsUsed),
		zap.Int("remaining", res.Remaining),
	)
	return &Outcome{Summary: &updated, AI: result, Deducted: costPerSummary, Remaining: res.Remaining}, nil
}

// Get returns one summary when caller may see it.
func (s *Service) Get(ctx context.Context, caller auth.Identity, id string) (*models.SummaryModel, error) {
	item, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanView(caller, item) {
		return nil, apperr.Forbidden("Access denied. You can only view your own summaries.")
	}
	return item, nil
}

// Delete removes a summary owned by caller, or any summary for editors and admins.
func (s *Service) Delete(ctx context.Context, caller auth.Identity, id string) error {
	item, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !CanModify(caller, item) {
		return apperr.Forbidden("Access denied. You can only delete your own summaries.")
	}
	if err := s.store.DeleteSummary(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("Summary not found")
		}
		return apperr.Internal("delete summary", err)
	}
	s.logger.Info("summary deleted", zap.String("user_id", caller.UserID), zap.String("summary_id", id))
	return nil
}

// List returns one page of the summaries caller may see, newest first.
func (s *Service) List(ctx context.Context, caller auth.Identity, q pagination.Query, search string) ([]models.SummaryModel, pagination.Pagination, error) {
	q = pagination.Normalize(q)
	items, total, err := s.store.ListSummaries(ctx, store.SummaryFilter{
		OwnerID: ListScope(caller),
		Search:  strings.TrimSpace(search),
		Page:    q.Page,
		Size:    q.Size,
	})
	if err != nil {
		return nil, pagination.Pagination{}, apperr.Internal("list summaries", err)
	}
	return items, q.Meta(total), nil
}

func (s *Service) load(ctx context.Context, id string) (*models.SummaryModel, error) {
	item, err := s.store.GetSummary(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("Summary not found")
		}
		return nil, apperr.Internal("load summary", err)
	}
	return item, nil
}

// checkOptions validates the prompt and the provider/model pair up front.
func (s *Service) checkOptions(prompt, provider, model string) (ai.Selection, error) {
	if utf8.RuneCountInString(strings.TrimSpace(prompt)) > textutil.MaxPromptChars {
		return ai.Selection{}, apperr.Validationf("Prompt cannot exceed %d characters", textutil.MaxPromptChars)
	}
	return s.gateway.ResolveSelection(provider, model)
}

func (s *Service) requireCredits(ctx context.Context, userID string) error {
	ok, err := s.ledger.HasSufficientCredits(ctx, userID, costPerSummary)
	if err != nil {
		return err
	}
	if !ok {
		metrics.IncInsufficientCredits()
		return apperr.InsufficientCredits(userID)
	}
	return nil
}

func (s *Service) persistError(userID string, err error) error {
	switch {
	case errors.Is(err, store.ErrInsufficientCredits), errors.Is(err, store.ErrUserNotFound):
		return s.ledger.ChargeError(userID, err)
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("Summary not found")
	case errors.Is(err, store.ErrConflict):
		return apperr.Conflict("Summary was changed by another request, please retry")
	}
	s.logger.Error("summary persistence failed", zap.String("user_id", userID), zap.Error(err))
	return apperr.Internal("persist summary", err)
}

// withRetry runs fn once more after a transient storage failure. Charges
// carry idempotency keys, so a retried write never charges twice.
func (s *Service) withRetry(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if err == nil || isPermanent(err) {
		return err
	}
	s.logger.Warn("retrying after storage error", zap.String("op", op), zap.Error(err))

	select {
	case <-ctx.Done():
		return err
	case <-time.After(retryDelay):
	}
	return fn()
}

func isPermanent(err error) bool {
	return errors.Is(err, store.ErrInsufficientCredits) ||
		errors.Is(err, store.ErrUserNotFound) ||
		errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, store.ErrConflict) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// regenerationSelection keeps the stored model while the provider is unchanged.
func regenerationSelection(existing *models.SummaryModel, provider, model string) (string, string) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	model = strings.TrimSpace(model)
	if provider == "" || provider == existing.Provider {
		if model == "" {
			model = existing.Model
		}
		return existing.Provider, model
	}
	return provider, model
}
