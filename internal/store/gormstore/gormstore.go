package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/smartbrief/core/internal/models"
	"github.com/smartbrief/core/internal/pkg/pagination"
	"github.com/smartbrief/core/internal/store"
	"gorm.io/gorm"
)

// Store implements store.Store on top of gorm.
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

func New(db *gorm.DB) *Store { return &Store{db: db} }

// DB exposes the underlying handle for migrations and tests.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) FindUser(ctx context.Context, id string) (*models.UserModel, error) {
	var user models.UserModel
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) CreditBalance(ctx context.Context, userID string) (int, error) {
	user, err := s.FindUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return user.Credits, nil
}

func (s *Store) DebitCredits(ctx context.Context, c store.Charge) (store.ChargeResult, error) {
	var res store.ChargeResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = debit(tx, c)
		return err
	})
	if isDuplicateKey(err) {
		return s.replay(ctx, c.IdempotencyKey)
	}
	return res, err
}

func (s *Store) AddCredits(ctx context.Context, userID string, amount int, reason, key string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("add credits: non-positive amount %d", amount)
	}
	var balance int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.UserModel{}).
			Where("id = ?", userID).
			UpdateColumn("credits", gorm.Expr("credits + ?", amount))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return store.ErrUserNotFound
		}
		var err error
		if balance, err = readCredits(tx, userID); err != nil {
			return err
		}
		return journal(tx, userID, amount, balance, reason, "", key)
	})
	return balance, err
}

func (s *Store) SetCredits(ctx context.Context, userID string, value int, key string) (int, error) {
	if value < 0 {
		return 0, fmt.Errorf("set credits: negative value %d", value)
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prev, err := readCredits(tx, userID)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.UserModel{}).
			Where("id = ?", userID).
			UpdateColumn("credits", value).Error; err != nil {
			return err
		}
		return journal(tx, userID, value-prev, value, models.ReasonAdminSet, "", key)
	})
	if err != nil {
		return 0, err
	}
	return value, nil
}

func (s *Store) GetSummary(ctx context.Context, id string) (*models.SummaryModel, error) {
	var item models.SummaryModel
	if err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	items := []models.SummaryModel{item}
	if err := s.attachOwners(ctx, items); err != nil {
		return nil, err
	}
	return &items[0], nil
}

func (s *Store) ListSummaries(ctx context.Context, f store.SummaryFilter) ([]models.SummaryModel, int64, error) {
	tx := s.db.WithContext(ctx).Model(&models.SummaryModel{})
	if f.OwnerID != "" {
		tx = tx.Where("user_id = ?", f.OwnerID)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
		tx = tx.Where("(LOWER(original_text) LIKE ? ESCAPE '!' OR LOWER(summary_text) LIKE ? ESCAPE '!')", pattern, pattern)
	}
	tx = tx.Order("created_at DESC")

	items := make([]models.SummaryModel, 0)
	total, err := pagination.Paginate(tx, pagination.Query{Page: f.Page, Size: f.Size}, &items)
	if err != nil {
		return nil, 0, err
	}
	if err := s.attachOwners(ctx, items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// attachOwners loads name and email of the owning accounts in one query.
func (s *Store) attachOwners(ctx context.Context, items []models.SummaryModel) error {
	ids := models.OwnerIDs(items)
	if len(ids) == 0 {
		return nil
	}
	var users []models.UserModel
	if err := s.db.WithContext(ctx).Select("id", "name", "email").Where("id IN ?", ids).Find(&users).Error; err != nil {
		return fmt.Errorf("load summary owners: %w", err)
	}
	models.AttachOwners(items, users)
	return nil
}

func (s *Store) DeleteSummary(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&models.SummaryModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateSummaryCharged(ctx context.Context, item *models.SummaryModel, c store.Charge) (store.ChargeResult, error) {
	var res store.ChargeResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if res, err = debit(tx, c); err != nil || res.Replayed {
			return err
		}
		return tx.Create(item).Error
	})
	if isDuplicateKey(err) {
		return s.replay(ctx, c.IdempotencyKey)
	}
	return res, err
}

func (s *Store) UpdateSummaryCharged(ctx context.Context, item *models.SummaryModel, prevCreditsUsed int, c store.Charge) (store.ChargeResult, error) {
	item.RefreshWordCount()
	item.UpdatedAt = store.Now()

	var res store.ChargeResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if res, err = debit(tx, c); err != nil || res.Replayed {
			return err
		}
		result := tx.Model(&models.SummaryModel{}).
			Where("id = ? AND credits_used = ?", item.ID, prevCreditsUsed).
			UpdateColumns(map[string]interface{}{
				"summary_text":       item.SummaryText,
				"word_count_summary": item.WordCount.Summary,
				"prompt":             item.Prompt,
				"provider":           item.Provider,
				"model":              item.Model,
				"processing_time_ms": item.ProcessingTimeMs,
				"credits_used":       item.CreditsUsed,
				"status":             item.Status,
				"updated_at":         item.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.SummaryModel{}).Where("id = ?", item.ID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return store.ErrNotFound
			}
			return store.ErrConflict
		}
		return nil
	})
	if isDuplicateKey(err) {
		return s.replay(ctx, c.IdempotencyKey)
	}
	return res, err
}

// debit applies a conditional decrement plus its journal row inside tx.
func debit(tx *gorm.DB, c store.Charge) (store.ChargeResult, error) {
	if c.Amount <= 0 {
		return store.ChargeResult{}, fmt.Errorf("debit: non-positive amount %d", c.Amount)
	}
	if c.IdempotencyKey != "" {
		var prior models.CreditTransactionModel
		found := tx.Where("idempotency_key = ?", c.IdempotencyKey).Limit(1).Find(&prior)
		if found.Error != nil {
			return store.ChargeResult{}, found.Error
		}
		if found.RowsAffected > 0 {
			return store.ChargeResult{Remaining: prior.BalanceAfter, Replayed: true}, nil
		}
	}

	result := tx.Model(&models.UserModel{}).
		Where("id = ? AND credits >= ?", c.UserID, c.Amount).
		UpdateColumn("credits", gorm.Expr("credits - ?", c.Amount))
	if result.Error != nil {
		return store.ChargeResult{}, result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := tx.Model(&models.UserModel{}).Where("id = ?", c.UserID).Count(&count).Error; err != nil {
			return store.ChargeResult{}, err
		}
		if count == 0 {
			return store.ChargeResult{}, store.ErrUserNotFound
		}
		return store.ChargeResult{}, store.ErrInsufficientCredits
	}

	balance, err := readCredits(tx, c.UserID)
	if err != nil {
		return store.ChargeResult{}, err
	}
	if err := journal(tx, c.UserID, -c.Amount, balance, c.Reason, c.RefID, c.IdempotencyKey); err != nil {
		return store.ChargeResult{}, err
	}
	return store.ChargeResult{Remaining: balance}, nil
}

// replay returns the recorded outcome of an already applied charge.
func (s *Store) replay(ctx context.Context, key string) (store.ChargeResult, error) {
	var prior models.CreditTransactionModel
	if err := s.db.WithContext(ctx).First(&prior, "idempotency_key = ?", key).Error; err != nil {
		return store.ChargeResult{}, fmt.Errorf("replay charge %q: %w", key, err)
	}
	return store.ChargeResult{Remaining: prior.BalanceAfter, Replayed: true}, nil
}

func readCredits(tx *gorm.DB, userID string) (int, error) {
	var user models.UserModel
	if err := tx.Select("id", "credits").First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, store.ErrUserNotFound
		}
		return 0, err
	}
	return user.Credits, nil
}

func journal(tx *gorm.DB, userID string, delta, balance int, reason, refID, key string) error {
	if key == "" {
		key = uuid.NewString()
	}
	return tx.Create(&models.CreditTransactionModel{
		UserID:         userID,
		Delta:          delta,
		BalanceAfter:   balance,
		Reason:         reason,
		RefID:          refID,
		IdempotencyKey: key,
	}).Error
}

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// escapeLike escapes LIKE wildcards using '!' so the pattern works on MySQL and SQLite alike.
func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}
