package summary_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smartbrief/core/internal/config"
	"github.com/smartbrief/core/internal/models"
	"github.com/smartbrief/core/internal/modules/ai"
	"github.com/smartbrief/core/internal/modules/auth"
	"github.com/smartbrief/core/internal/modules/credit"
	"github.com/smartbrief/core/internal/modules/ingest"
	"github.com/smartbrief/core/internal/modules/summary"
	"github.com/smartbrief/core/internal/pkg/apperr"
	"github.com/smartbrief/core/internal/pkg/pagination"
	"github.com/smartbrief/core/internal/store"
	"github.com/smartbrief/core/internal/store/gormstore"
	"github.com/smartbrief/core/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const fifteenWords = "Alpha bravo charlie delta echo foxtrot golf hotel india juliet kilo lima mike november oscar"

type fakeClient struct {
	text  string
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (f *fakeClient) Complete(ctx context.Context, model, prompt, text string) (ai.Completion, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ai.Completion{}, ctx.Err()
		}
	}
	if f.err != nil {
		return ai.Completion{}, f.err
	}
	return ai.Completion{
		Text:  f.text,
		Usage: ai.Usage{PromptTokens: 30, CompletionTokens: 6},
	}, nil
}

type fixture struct {
	store   *gormstore.Store
	ledger  *credit.Ledger
	client  *fakeClient
	gateway *ai.Gateway
	svc     *summary.Service
}

func newFixture(t *testing.T, opts ...ai.Option) *fixture {
	t.Helper()
	st := storetest.Open(t)
	client := &fakeClient{text: "Phonetic alphabet from alpha to oscar."}
	opts = append([]ai.Option{
		ai.WithClient(ai.ProviderGemini, client),
		ai.WithClient(ai.ProviderOpenAI, client),
	}, opts...)
	gateway, err := ai.New(config.AIConfig{}, zap.NewNop(), opts...)
	require.NoError(t, err)

	ledger := credit.NewLedger(st, zap.NewNop())
	return &fixture{
		store:   st,
		ledger:  ledger,
		client:  client,
		gateway: gateway,
		svc:     summary.NewService(st, ledger, gateway, ingest.NewIngestor(nil, zap.NewNop()), zap.NewNop()),
	}
}

func (f *fixture) identity(t *testing.T, role models.Role, credits int) auth.Identity {
	t.Helper()
	u := storetest.SeedUser(t, f.store, role, credits)
	return auth.Identity{UserID: u.ID, Role: role}
}

func (f *fixture) balance(t *testing.T, userID string) int {
	t.Helper()
	b, err := f.ledger.Balance(context.Background(), userID)
	require.NoError(t, err)
	return b
}

// journalEntries counts credit journal rows of userID with reason.
func (f *fixture) journalEntries(t *testing.T, userID, reason string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.store.DB().Model(&models.CreditTransactionModel{}).
		Where("user_id = ? AND reason = ?", userID, reason).Count(&n).Error)
	return n
}

func (f *fixture) count(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.store.DB().Model(&models.SummaryModel{}).Count(&n).Error)
	return n
}

func TestCreateChargesOneCredit(t *testing.T) {
	f := newFixture(t)
	caller := f.identity(t, models.RoleUser, 5)

	out, err := f.svc.Create(context.Background(), caller, summary.Input{Text: "  " + fifteenWords + "\n"})
	require.NoError(t, err)

	assert.Equal(t, 15, out.Summary.WordCount.Original)
	assert.Equal(t, 6, out.Summary.WordCount.Summary)
	assert.Equal(t, fifteenWords, out.Summary.OriginalText)
	assert.Equal(t, 1, out.Summary.CreditsUsed)
	assert.Equal(t, models.SummaryCompleted, out.Summary.Status)
	assert.Equal(t, "gemini", out.Summary.Provider)
	assert.Equal(t, ai.DefaultPrompt, out.Summary.Prompt)
	assert.Equal(t, 1, out.Deducted)
	assert.Equal(t, 4, out.Remaining)
	assert.Equal(t, 36, out.AI.Usage.TotalTokens)
	assert.Equal(t, 4, f.balance(t, caller.UserID))

	stored, err := f.svc.Get(context.Background(), caller, out.Summary.ID)
	require.NoError(t, err)
	assert.Equal(t, caller.UserID, stored.UserID)
	assert.Equal(t, out.Summary.SummaryText, stored.SummaryText)
}

func TestCreateValidatesBeforeCharging(t *testing.T) {
	f := newFixture(t)
	caller := f.identity(t, models.RoleUser, 5)
	ctx := context.Background()

	tests := []struct {
		name string
		in   summary.Input
		want string
	}{
		{name: "blank", in: summary.Input{Text: "   "}, want: "empty"},
		{name: "short", in: summary.Input{Text: "only five words right here"}, want: "at least 10 words"},
		{name: "too long", in: summary.Input{Text: strings.Repeat("a ", 25001)}, want: "50,000"},
		{name: "unknown provider", in: summary.Input{Text: fifteenWords, Provider: "cohere"}, want: "Unsupported AI provider"},
		{name: "model of another provider", in: summary.Input{Text: fifteenWords, Provider: "gemini", Model: "gpt-4o"}, want: "Unsupported model"},
		{name: "long prompt", in: summary.Input{Text: fifteenWords, Prompt: strings.Repeat("p", 1001)}, want: "Prompt cannot exceed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, caller, tt.in)
			require.ErrorIs(t, err, apperr.ErrValidation)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
	assert.Zero(t, f.client.calls.Load())
	assert.Equal(t, 5, f.balance(t, caller.UserID))
	assert.Zero(t, f.count(t))
}

func TestCreateWithoutCreditsNeverCallsProvider(t *testing.T) {
	f := newFixture(t)
	caller := f.identity(t, models.RoleUser, 0)

	_, err := f.svc.Create(context.Background(), caller, summary.Input{Text: fifteenWords})
	require.ErrorIs(t, err, apperr.ErrInsufficientCredits)
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, caller.UserID, e.UserID)

	assert.Zero(t, f.client.calls.Load())
	assert.Zero(t, f.count(t))
}

func TestCreateProviderFailurePersistsNothing(t *testing.T) {
	f := newFixture(t)
	caller := f.identity(t, models.RoleUser, 3)
	f.client.err = errors.New("upstream 503")

	_, err := f.svc.Create(context.Background(), caller, summary.Input{Text: fifteenWords})
	require.ErrorIs(t, err, apperr.ErrProvider)
	assert.Contains(t, err.Error(), "Gemini summarization failed")

	assert.Equal(t, 3, f.balance(t, caller.UserID))
	assert.Zero(t, f.count(t))
}

func TestCreateProviderTimeout(t *testing.T) {
	f := newFixture(t, ai.WithTimeout(20*time.Millisecond))
	caller := f.identity(t, models.RoleUser, 3)
	f.client.delay = time.Second

	_, err := f.svc.Create(context.Background(), caller, summary.Input{Text: fifteenWords})
	require.ErrorIs(t, err, apperr.ErrProvider)
	assert.Contains(t, err.Error(), "timed out")
	assert.Equal(t, 3, f.balance(t, caller.UserID))
	assert.Zero(t, f.count(t))
}

func TestConcurrentCreatesNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	caller := f.identity(t, models.RoleUser, 1)

	var created, rejected atomic.Int32
	var g errgroup.Group
	for i := 0; i < 6; i++ {
		g.Go(func() error {
			_, err := f.svc.Create(context.Background(), caller, summary.Input{Text: fifteenWords})
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, apperr.ErrInsufficientCredits):
				rejected.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, int32(5), rejected.Load())
	assert.Zero(t, f.balance(t, caller.UserID))
	assert.Equal(t, int64(1), f.count(t))
}

func TestCreateFromUpload(t *testing.T) {
	f := newFixture(t)
	caller := f.identity(t, models.RoleUser, 2)
	ctx := context.Background()

	data := []byte("\ufeff" + fifteenWords + "\r\n")
	out, err := f.svc.CreateFromUpload(ctx, caller, &ingest.Upload{FileName: "notes.txt", Size: int64(len(data)), Data: data}, summary.Input{})
	require.NoError(t, err)
	require.NotNil(t, out.Upload)
	assert.Equal(t, "notes.txt", out.Upload.FileName)
	assert.Equal(t, 15, out.Upload.WordCount)
	assert.Equal(t, fifteenWords, out.Summary.OriginalText)
	assert.Equal(t, 1, out.Remaining)

	_, err = f.svc.CreateFromUpload(ctx, caller, &ingest.Upload{FileName: "paper.pdf", Size: 4, Data: []byte("%PDF")}, summary.Input{})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, err.Error(), "Unsupported file type: .pdf")

	_, err = f.svc.CreateFromUpload(ctx, caller, nil, summary.Input{})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	assert.Equal(t, int32(1), f.client.calls.Load())
	assert.Equal(t, 1, f.balance(t, caller.UserID))
}

func TestCreateFromUploadChecksCreditsBeforeExtraction(t *testing.T) {
	f := newFixture(t)
	caller := f.identity(t, models.RoleUser, 0)

	data := []byte("not a zip")
	_, err := f.svc.CreateFromUpload(context.Background(), caller, &ingest.Upload{FileName: "x.docx", Size: int64(len(data)), Data: data}, summary.Input{})
	assert.ErrorIs(t, err, apperr.ErrInsufficientCredits)
}

func TestRegenerate(t *testing.T) {
	f := newFixture(t)
	owner := f.identity(t, models.RoleUser, 5)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, owner, summary.Input{Text: fifteenWords, Prompt: "Bullet points please"})
	require.NoError(t, err)

	f.client.text = "Shorter take."
	out, err := f.svc.Regenerate(ctx, owner, created.Summary.ID, summary.Input{})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Summary.CreditsUsed)
	assert.Equal(t, "Shorter take.", out.Summary.SummaryText)
	assert.Equal(t, "Bullet points please", out.Summary.Prompt)
	assert.Equal(t, fifteenWords, out.Summary.OriginalText)
	assert.Equal(t, owner.UserID, out.Summary.UserID)
	assert.Equal(t, 3, out.Remaining)
	assert.Equal(t, 3, f.balance(t, owner.UserID))

	out, err = f.svc.Regenerate(ctx, owner, created.Summary.ID, summary.Input{Provider: "openai", Prompt: "One line"})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Summary.CreditsUsed)
	assert.Equal(t, "openai", out.Summary.Provider)
	assert.Equal(t, "gpt-4o-mini", out.Summary.Model)
	assert.Equal(t, "One line", out.Summary.Prompt)

	stored, err := f.svc.Get(ctx, owner, created.Summary.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.CreditsUsed)
	assert.Equal(t, 2, f.balance(t, owner.UserID))
	assert.Equal(t, int64(1), f.count(t))
}

func TestRegenerateFailureLeavesSummaryUntouched(t *testing.T) {
	f := newFixture(t)
	owner := f.identity(t, models.RoleUser, 2)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, owner, summary.Input{Text: fifteenWords})
	require.NoError(t, err)

	f.client.err = errors.New("boom")
	_, err = f.svc.Regenerate(ctx, owner, created.Summary.ID, summary.Input{})
	require.ErrorIs(t, err, apperr.ErrProvider)

	stored, err := f.svc.Get(ctx, owner, created.Summary.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CreditsUsed)
	assert.Equal(t, created.Summary.SummaryText, stored.SummaryText)
	assert.Equal(t, 1, f.balance(t, owner.UserID))

	_, err = f.svc.Regenerate(ctx, owner, "missing", summary.Input{})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRegenerateByEditorChargesEditor(t *testing.T) {
	f := newFixture(t)
	owner := f.identity(t, models.RoleUser, 1)
	editor := f.identity(t, models.RoleEditor, 4)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, owner, summary.Input{Text: fifteenWords})
	require.NoError(t, err)

	out, err := f.svc.Regenerate(ctx, editor, created.Summary.ID, summary.Input{})
	require.NoError(t, err)
	assert.Equal(t, owner.UserID, out.Summary.UserID)
	assert.Equal(t, 3, f.balance(t, editor.UserID))
	assert.Zero(t, f.balance(t, owner.UserID))
}

func TestAccessPolicy(t *testing.T) {
	f := newFixture(t)
	owner := f.identity(t, models.RoleUser, 1)
	stranger := f.identity(t, models.RoleUser, 5)
	reviewer := f.identity(t, models.RoleReviewer, 5)
	editor := f.identity(t, models.RoleEditor, 5)
	admin := f.identity(t, models.RoleAdmin, 5)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, owner, summary.Input{Text: fifteenWords})
	require.NoError(t, err)
	id := created.Summary.ID

	tests := []struct {
		name      string
		caller    auth.Identity
		canView   bool
		canModify bool
	}{
		{name: "owner", caller: owner, canView: true, canModify: true},
		{name: "stranger", caller: stranger},
		{name: "reviewer", caller: reviewer, canView: true},
		{name: "editor", caller: editor, canView: true, canModify: true},
		{name: "admin", caller: admin, canView: true, canModify: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Get(ctx, tt.caller, id)
			if tt.canView {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, apperr.ErrForbidden)
			}

			if tt.canModify {
				return
			}
			before := f.balance(t, tt.caller.UserID)
			_, err = f.svc.Regenerate(ctx, tt.caller, id, summary.Input{})
			assert.ErrorIs(t, err, apperr.ErrForbidden)
			assert.Equal(t, before, f.balance(t, tt.caller.UserID))

			err = f.svc.Delete(ctx, tt.caller, id)
			assert.ErrorIs(t, err, apperr.ErrForbidden)
		})
	}

	require.NoError(t, f.svc.Delete(ctx, admin, id))
	_, err = f.svc.Get(ctx, owner, id)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(ctx, owner, id), apperr.ErrNotFound)
}

func TestListScopeAndSearch(t *testing.T) {
	f := newFixture(t)
	alice := f.identity(t, models.RoleUser, 5)
	bob := f.identity(t, models.RoleUser, 5)
	reviewer := f.identity(t, models.RoleReviewer, 0)
	ctx := context.Background()

	for _, text := range []string{
		fifteenWords,
		"Quarterly revenue grew across every region and the board approved the new budget plan",
	} {
		_, err := f.svc.Create(ctx, alice, summary.Input{Text: text})
		require.NoError(t, err)
	}
	_, err := f.svc.Create(ctx, bob, summary.Input{Text: fifteenWords})
	require.NoError(t, err)

	items, meta, err := f.svc.List(ctx, alice, pagination.Query{}, "")
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, int64(2), meta.TotalCount)
	for _, item := range items {
		assert.Equal(t, alice.UserID, item.UserID)
	}

	items, _, err = f.svc.List(ctx, alice, pagination.Query{}, "REVENUE")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Contains(t, items[0].OriginalText, "revenue")

	items, meta, err = f.svc.List(ctx, reviewer, pagination.Query{Page: 1, Size: 2}, "")
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, int64(3), meta.TotalCount)
	assert.Equal(t, 2, meta.TotalPages)
	assert.True(t, meta.HasNext)
	assert.False(t, meta.HasPrev)

	items, _, err = f.svc.List(ctx, reviewer, pagination.Query{Page: 1, Size: 10}, "")
	require.NoError(t, err)
	require.Len(t, items, 3)
	owners := map[string]*models.UserModel{}
	for _, id := range []string{alice.UserID, bob.UserID} {
		u, err := f.store.FindUser(ctx, id)
		require.NoError(t, err)
		owners[id] = u
	}
	for _, item := range items {
		require.NotNil(t, item.Owner, "summary %s", item.ID)
		u := owners[item.UserID]
		assert.Equal(t, models.SummaryOwner{ID: u.ID, Name: u.Name, Email: u.Email}, *item.Owner)
	}

	got, err := f.svc.Get(ctx, reviewer, items[0].ID)
	require.NoError(t, err)
	require.NotNil(t, got.Owner)
	assert.Equal(t, owners[got.UserID].Email, got.Owner.Email)
}

func TestCanViewAndModify(t *testing.T) {
	s := &models.SummaryModel{UserID: "u1"}
	assert.True(t, summary.CanView(auth.Identity{UserID: "u1", Role: models.RoleUser}, s))
	assert.False(t, summary.CanView(auth.Identity{UserID: "u2", Role: models.RoleUser}, s))
	assert.True(t, summary.CanView(auth.Identity{UserID: "u2", Role: models.RoleReviewer}, s))
	assert.False(t, summary.CanModify(auth.Identity{UserID: "u2", Role: models.RoleReviewer}, s))
	assert.True(t, summary.CanModify(auth.Identity{UserID: "u2", Role: models.RoleEditor}, s))
	assert.False(t, summary.CanModify(auth.Identity{Role: models.RoleUser}, &models.SummaryModel{}))

	assert.Equal(t, "u1", summary.ListScope(auth.Identity{UserID: "u1", Role: models.RoleUser}))
	assert.Empty(t, summary.ListScope(auth.Identity{UserID: "u1", Role: models.RoleAdmin}))
}

func TestRegenerateWithoutCreditsChangesNothing(t *testing.T) {
	f := newFixture(t)
	owner := f.identity(t, models.RoleUser, 1)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, owner, summary.Input{Text: fifteenWords})
	require.NoError(t, err)
	require.Equal(t, 0, f.balance(t, owner.UserID))
	calls := f.client.calls.Load()

	_, err = f.svc.Regenerate(ctx, owner, created.Summary.ID, summary.Input{Prompt: "Shorter please"})
	require.ErrorIs(t, err, apperr.ErrInsufficientCredits)

	assert.Equal(t, calls, f.client.calls.Load())
	assert.Equal(t, 0, f.balance(t, owner.UserID))
	assert.Equal(t, int64(1), f.journalEntries(t, owner.UserID, models.ReasonSummaryCreate))
	assert.Zero(t, f.journalEntries(t, owner.UserID, models.ReasonSummaryRegenerate))

	stored, err := f.svc.Get(ctx, owner, created.Summary.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CreditsUsed)
	assert.Equal(t, created.Summary.SummaryText, stored.SummaryText)
	assert.Equal(t, created.Summary.Prompt, stored.Prompt)
}

// flakyStore fails charged creates with a connection error until attempts
// exceed failures. With commitFirst the write lands before the error, as when
// the ack is lost.
type flakyStore struct {
	store.SummaryStore
	failures    int
	commitFirst bool
	attempts    int
}

var errConnReset = errors.New("write tcp 10.0.0.2:3306: connection reset by peer")

func (s *flakyStore) CreateSummaryCharged(ctx context.Context, item *models.SummaryModel, c store.Charge) (store.ChargeResult, error) {
	s.attempts++
	if s.attempts > s.failures {
		return s.SummaryStore.CreateSummaryCharged(ctx, item, c)
	}
	if s.commitFirst {
		if _, err := s.SummaryStore.CreateSummaryCharged(ctx, item, c); err != nil {
			return store.ChargeResult{}, err
		}
	}
	return store.ChargeResult{}, errConnReset
}

func TestCreateRetriesTransientStorageError(t *testing.T) {
	tests := []struct {
		name        string
		failures    int
		commitFirst bool
		wantErr     bool
	}{
		{name: "recovers on retry", failures: 1},
		{name: "lost ack is replayed", failures: 1, commitFirst: true},
		{name: "gives up after one retry", failures: 2, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			caller := f.identity(t, models.RoleUser, 3)
			flaky := &flakyStore{SummaryStore: f.store, failures: tt.failures, commitFirst: tt.commitFirst}
			svc := summary.NewService(flaky, f.ledger, f.gateway, nil, zap.NewNop())

			out, err := svc.Create(context.Background(), caller, summary.Input{Text: fifteenWords})
			assert.Equal(t, 2, flaky.attempts)
			assert.Equal(t, int32(1), f.client.calls.Load())

			if tt.wantErr {
				require.ErrorIs(t, err, apperr.ErrInternal)
				assert.Zero(t, f.count(t))
				assert.Equal(t, 3, f.balance(t, caller.UserID))
				assert.Zero(t, f.journalEntries(t, caller.UserID, models.ReasonSummaryCreate))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(1), f.count(t))
			assert.Equal(t, 2, f.balance(t, caller.UserID))
			assert.Equal(t, 2, out.Remaining)
			assert.Equal(t, int64(1), f.journalEntries(t, caller.UserID, models.ReasonSummaryCreate))
		})
	}
}
