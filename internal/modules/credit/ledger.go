package credit

import (
	"context"
	"errors"

	"github.com/smartbrief/core/internal/models"
	"github.com/smartbrief/core/internal/pkg/apperr"
	"github.com/smartbrief/core/internal/pkg/metrics"
	"github.com/smartbrief/core/internal/store"
	"go.uber.org/zap"
)

// Ledger is the only writer of user credit balances.
type Ledger struct {
	users  store.UserStore
	logger *zap.Logger
}

func NewLedger(users store.UserStore, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{users: users, logger: logger}
}

// Balance returns the current credit balance of userID.
func (l *Ledger) Balance(ctx context.Context, userID string) (int, error) {
	balance, err := l.users.CreditBalance(ctx, userID)
	if err != nil {
		return 0, l.fail("read balance", userID, err)
	}
	return balance, nil
}

// HasSufficientCredits reports whether userID holds at least required credits.
// It is advisory; the debit itself re-checks atomically.
func (l *Ledger) HasSufficientCredits(ctx context.Context, userID string, required int) (bool, error) {
	if required < 1 {
		required = 1
	}
	balance, err := l.Balance(ctx, userID)
	if err != nil {
		return false, err
	}
	return balance >= required, nil
}

// Deduct removes amount credits in one conditional step. A key that was
// already applied returns the recorded balance without charging again.
func (l *Ledger) Deduct(ctx context.Context, userID string, amount int, reason, key string) (int, error) {
	if amount <= 0 {
		return 0, apperr.InvalidAmount(userID, amount)
	}
	res, err := l.users.DebitCredits(ctx, store.Charge{
		UserID:         userID,
		Amount:         amount,
		Reason:         reason,
		IdempotencyKey: key,
	})
	if err != nil {
		return 0, l.ChargeError(userID, err)
	}
	if !res.Replayed {
		metrics.AddCreditsDebited(reason, amount)
	}
	return res.Remaining, nil
}

// Add grants amount credits.
func (l *Ledger) Add(ctx context.Context, userID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, apperr.InvalidAmount(userID, amount)
	}
	balance, err := l.users.AddCredits(ctx, userID, amount, models.ReasonTopUp, "")
	if err != nil {
		return 0, l.fail("add credits", userID, err)
	}
	l.logger.Info("credits added", zap.String("user_id", userID), zap.Int("amount", amount), zap.Int("balance", balance))
	return balance, nil
}

// Set overwrites the balance with value.
func (l *Ledger) Set(ctx context.Context, userID string, value int) (int, error) {
	if value < 0 {
		return 0, apperr.Validation("Credits must be a non-negative number")
	}
	balance, err := l.users.SetCredits(ctx, userID, value, "")
	if err != nil {
		return 0, l.fail("set credits", userID, err)
	}
	l.logger.Info("credits set", zap.String("user_id", userID), zap.Int("balance", balance))
	return balance, nil
}

// ChargeError converts a store failure from a charged write into the
// application taxonomy.
func (l *Ledger) ChargeError(userID string, err error) error {
	if errors.Is(err, store.ErrInsufficientCredits) {
		metrics.IncInsufficientCredits()
		l.logger.Info("insufficient credits", zap.String("user_id", userID))
		return apperr.InsufficientCredits(userID)
	}
	return l.fail("debit credits", userID, err)
}

func (l *Ledger) fail(op, userID string, err error) error {
	if errors.Is(err, store.ErrUserNotFound) {
		e := apperr.NotFound("User not found")
		e.UserID = userID
		return e
	}
	l.logger.Error("credit ledger failure", zap.String("op", op), zap.String("user_id", userID), zap.Error(err))
	return apperr.Ledger(userID, "Credit ledger unavailable", err)
}
