// Package store defines the persistence contract shared by the MySQL (gorm)
// and MongoDB backends.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/smartbrief/core/internal/models"
)

var (
	ErrNotFound            = errors.New("record not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrConflict means the summary changed between read and charged update.
	ErrConflict = errors.New("concurrent modification")
)

// Charge is a conditional credit decrement applied with a write.
// IdempotencyKey makes a retried charge a no-op.
type Charge struct {
	UserID         string
	Amount         int
	Reason         string
	RefID          string
	IdempotencyKey string
}

// ChargeResult is the ledger state after a charge.
type ChargeResult struct {
	Remaining int
	// Replayed is true when IdempotencyKey had already been applied.
	Replayed bool
}

// SummaryFilter selects summaries for listing.
type SummaryFilter struct {
	OwnerID string // empty = all owners
	Search  string // case-insensitive substring over both texts
	Page    int
	Size    int
}

// UserStore reads accounts and mutates credits.
type UserStore interface {
	FindUser(ctx context.Context, id string) (*models.UserModel, error)
	CreditBalance(ctx context.Context, userID string) (int, error)
	// DebitCredits decrements only if balance >= amount, in one step.
	DebitCredits(ctx context.Context, c Charge) (ChargeResult, error)
	AddCredits(ctx context.Context, userID string, amount int, reason, key string) (int, error)
	SetCredits(ctx context.Context, userID string, value int, key string) (int, error)
}

// SummaryStore persists summaries. The charged variants write the summary
// and debit credits atomically; nothing is written when the debit fails.
type SummaryStore interface {
	GetSummary(ctx context.Context, id string) (*models.SummaryModel, error)
	ListSummaries(ctx context.Context, f SummaryFilter) ([]models.SummaryModel, int64, error)
	DeleteSummary(ctx context.Context, id string) error
	CreateSummaryCharged(ctx context.Context, s *models.SummaryModel, c Charge) (ChargeResult, error)
	// UpdateSummaryCharged applies s only if the stored CreditsUsed still
	// equals prevCreditsUsed, else ErrConflict.
	UpdateSummaryCharged(ctx context.Context, s *models.SummaryModel, prevCreditsUsed int, c Charge) (ChargeResult, error)
}

// Store is a complete backend.
type Store interface {
	UserStore
	SummaryStore
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Now is the clock used by stores that stamp timestamps themselves.
var Now = func() time.Time { return time.Now().UTC() }
