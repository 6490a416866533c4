// Package mongostore implements store.Store on MongoDB. Charged writes run in
// multi-document transactions, so the server must be a replica set.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/smartbrief/core/internal/models"
	"github.com/smartbrief/core/internal/pkg/pagination"
	"github.com/smartbrief/core/internal/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection        = "users"
	summariesCollection    = "summaries"
	transactionsCollection = "credit_transactions"
)

type Store struct {
	client    *mongo.Client
	users     *mongo.Collection
	summaries *mongo.Collection
	journal   *mongo.Collection
}

var _ store.Store = (*Store)(nil)

// Connect dials uri and prepares the collections and indexes in database.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	s := New(client, database)
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func New(client *mongo.Client, database string) *Store {
	db := client.Database(database)
	return &Store{
		client:    client,
		users:     db.Collection(usersCollection),
		summaries: db.Collection(summariesCollection),
		journal:   db.Collection(transactionsCollection),
	}
}

// EnsureIndexes creates the unique and listing indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.journal.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "idempotencyKey", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "userId", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("credit_transactions indexes: %w", err)
	}
	if _, err := s.summaries.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
	}); err != nil {
		return fmt.Errorf("summaries indexes: %w", err)
	}
	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("users indexes: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) FindUser(ctx context.Context, id string) (*models.UserModel, error) {
	var user models.UserModel
	if err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
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
	return s.charged(ctx, c, nil)
}

func (s *Store) AddCredits(ctx context.Context, userID string, amount int, reason, key string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("add credits: non-positive amount %d", amount)
	}
	var balance int
	err := s.inTransaction(ctx, func(sc mongo.SessionContext) error {
		var user models.UserModel
		err := s.users.FindOneAndUpdate(sc,
			bson.M{"_id": userID},
			bson.M{"$inc": bson.M{"credits": amount}, "$set": bson.M{"updatedAt": store.Now()}},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&user)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return store.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		balance = user.Credits
		return s.appendJournal(sc, userID, amount, balance, reason, "", key)
	})
	return balance, err
}

func (s *Store) SetCredits(ctx context.Context, userID string, value int, key string) (int, error) {
	if value < 0 {
		return 0, fmt.Errorf("set credits: negative value %d", value)
	}
	err := s.inTransaction(ctx, func(sc mongo.SessionContext) error {
		var prev models.UserModel
		err := s.users.FindOneAndUpdate(sc,
			bson.M{"_id": userID},
			bson.M{"$set": bson.M{"credits": value, "updatedAt": store.Now()}},
		).Decode(&prev)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return store.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		return s.appendJournal(sc, userID, value-prev.Credits, value, models.ReasonAdminSet, "", key)
	})
	if err != nil {
		return 0, err
	}
	return value, nil
}

func (s *Store) GetSummary(ctx context.Context, id string) (*models.SummaryModel, error) {
	var item models.SummaryModel
	if err := s.summaries.FindOne(ctx, bson.M{"_id": id}).Decode(&item); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
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
	q := pagination.Normalize(pagination.Query{Page: f.Page, Size: f.Size})
	filter := listFilter(f)

	total, err := s.summaries.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64(q.Offset())).
		SetLimit(int64(q.Size))
	cursor, err := s.summaries.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	items := make([]models.SummaryModel, 0, q.Size)
	if err := cursor.All(ctx, &items); err != nil {
		return nil, 0, err
	}
	if err := s.attachOwners(ctx, items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *Store) attachOwners(ctx context.Context, items []models.SummaryModel) error {
	ids := models.OwnerIDs(items)
	if len(ids) == 0 {
		return nil
	}
	cursor, err := s.users.Find(ctx, ownersFilter(ids), options.Find().SetProjection(bson.M{"name": 1, "email": 1}))
	if err != nil {
		return fmt.Errorf("load summary owners: %w", err)
	}
	var users []models.UserModel
	if err := cursor.All(ctx, &users); err != nil {
		return fmt.Errorf("load summary owners: %w", err)
	}
	models.AttachOwners(items, users)
	return nil
}

func (s *Store) DeleteSummary(ctx context.Context, id string) error {
	res, err := s.summaries.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateSummaryCharged(ctx context.Context, item *models.SummaryModel, c store.Charge) (store.ChargeResult, error) {
	item.EnsureID()
	item.Touch(store.Now())
	item.RefreshWordCount()
	return s.charged(ctx, c, func(sc mongo.SessionContext) error {
		_, err := s.summaries.InsertOne(sc, item)
		return err
	})
}

func (s *Store) UpdateSummaryCharged(ctx context.Context, item *models.SummaryModel, prevCreditsUsed int, c store.Charge) (store.ChargeResult, error) {
	item.RefreshWordCount()
	item.UpdatedAt = store.Now()
	return s.charged(ctx, c, func(sc mongo.SessionContext) error {
		res, err := s.summaries.UpdateOne(sc,
			bson.M{"_id": item.ID, "creditsUsed": prevCreditsUsed},
			bson.M{"$set": summaryUpdate(item)},
		)
		if err != nil {
			return err
		}
		if res.MatchedCount > 0 {
			return nil
		}
		n, err := s.summaries.CountDocuments(sc, bson.M{"_id": item.ID})
		if err != nil {
			return err
		}
		if n == 0 {
			return store.ErrNotFound
		}
		return store.ErrConflict
	})
}

// charged debits c and then runs write, all in one transaction. A replayed
// idempotency key skips write.
func (s *Store) charged(ctx context.Context, c store.Charge, write func(mongo.SessionContext) error) (store.ChargeResult, error) {
	if c.Amount <= 0 {
		return store.ChargeResult{}, fmt.Errorf("debit: non-positive amount %d", c.Amount)
	}
	var res store.ChargeResult
	err := s.inTransaction(ctx, func(sc mongo.SessionContext) error {
		res = store.ChargeResult{}
		if c.IdempotencyKey != "" {
			prior, err := s.findJournal(sc, c.IdempotencyKey)
			if err != nil {
				return err
			}
			if prior != nil {
				res = store.ChargeResult{Remaining: prior.BalanceAfter, Replayed: true}
				return nil
			}
		}

		var user models.UserModel
		err := s.users.FindOneAndUpdate(sc,
			debitFilter(c.UserID, c.Amount),
			bson.M{"$inc": bson.M{"credits": -c.Amount}, "$set": bson.M{"updatedAt": store.Now()}},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&user)
		if errors.Is(err, mongo.ErrNoDocuments) {
			n, cerr := s.users.CountDocuments(sc, bson.M{"_id": c.UserID})
			if cerr != nil {
				return cerr
			}
			if n == 0 {
				return store.ErrUserNotFound
			}
			return store.ErrInsufficientCredits
		}
		if err != nil {
			return err
		}
		if err := s.appendJournal(sc, c.UserID, -c.Amount, user.Credits, c.Reason, c.RefID, c.IdempotencyKey); err != nil {
			return err
		}
		res.Remaining = user.Credits
		if write != nil {
			return write(sc)
		}
		return nil
	})
	if err != nil && mongo.IsDuplicateKeyError(err) && c.IdempotencyKey != "" {
		prior, ferr := s.findJournal(ctx, c.IdempotencyKey)
		if ferr == nil && prior != nil {
			return store.ChargeResult{Remaining: prior.BalanceAfter, Replayed: true}, nil
		}
	}
	return res, err
}

func (s *Store) inTransaction(ctx context.Context, fn func(mongo.SessionContext) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("mongo session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

func (s *Store) findJournal(ctx context.Context, key string) (*models.CreditTransactionModel, error) {
	var prior models.CreditTransactionModel
	err := s.journal.FindOne(ctx, bson.M{"idempotencyKey": key}).Decode(&prior)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &prior, nil
}

func (s *Store) appendJournal(ctx context.Context, userID string, delta, balance int, reason, refID, key string) error {
	_, err := s.journal.InsertOne(ctx, newJournalEntry(userID, delta, balance, reason, refID, key))
	return err
}

func newJournalEntry(userID string, delta, balance int, reason, refID, key string) *models.CreditTransactionModel {
	if key == "" {
		key = uuid.NewString()
	}
	entry := &models.CreditTransactionModel{
		UserID:         userID,
		Delta:          delta,
		BalanceAfter:   balance,
		Reason:         reason,
		RefID:          refID,
		IdempotencyKey: key,
	}
	entry.EnsureID()
	entry.Touch(store.Now())
	return entry
}

func debitFilter(userID string, amount int) bson.M {
	return bson.M{"_id": userID, "credits": bson.M{"$gte": amount}}
}

func ownersFilter(ids []string) bson.M {
	return bson.M{"_id": bson.M{"$in": ids}}
}

func listFilter(f store.SummaryFilter) bson.M {
	filter := bson.M{}
	if f.OwnerID != "" {
		filter["userId"] = f.OwnerID
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		pattern := bson.M{"$regex": regexp.QuoteMeta(term), "$options": "i"}
		filter["$or"] = bson.A{
			bson.M{"originalText": pattern},
			bson.M{"summary": pattern},
		}
	}
	return filter
}

func summaryUpdate(item *models.SummaryModel) bson.M {
	return bson.M{
		"summary":        item.SummaryText,
		"wordCount":      item.WordCount,
		"prompt":         item.Prompt,
		"aiProvider":     item.Provider,
		"model":          item.Model,
		"status":         item.Status,
		"processingTime": item.ProcessingTimeMs,
		"creditsUsed":    item.CreditsUsed,
		"updatedAt":      item.UpdatedAt,
	}
}
