package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/smartbrief/core/internal/models"
	"github.com/smartbrief/core/internal/modules/auth"
	"github.com/smartbrief/core/internal/pkg/jwt"
	pkgredis "github.com/smartbrief/core/internal/pkg/redis"
	"github.com/smartbrief/core/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticUsers map[string]models.Role

func (s staticUsers) FindUser(_ context.Context, id string) (*models.UserModel, error) {
	role, ok := s[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	u := &models.UserModel{Role: role, IsActive: true}
	u.ID = id
	return u, nil
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *pkgredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, pkgredis.Wrap(rdb)
}

func perform(r http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthAndRequireRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := jwt.New("mw-secret")
	gate := auth.NewGate(staticUsers{"alice": models.RoleUser, "root": models.RoleAdmin}, tokens)

	r := gin.New()
	r.GET("/me", Auth(gate), func(c *gin.Context) {
		id, _ := CurrentIdentity(c)
		c.String(http.StatusOK, string(id.Role))
	})
	r.GET("/admin", Auth(gate), RequireRoles(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	alice, err := tokens.Sign("alice", time.Hour)
	require.NoError(t, err)
	root, err := tokens.Sign("root", time.Hour)
	require.NoError(t, err)

	w := perform(r, http.MethodGet, "/me", alice, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user", w.Body.String())

	w = perform(r, http.MethodGet, "/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Access token required")

	assert.Equal(t, http.StatusForbidden, perform(r, http.MethodGet, "/admin", alice, "").Code)
	assert.Equal(t, http.StatusNoContent, perform(r, http.MethodGet, "/admin", root, "").Code)
}

func TestIdempotenceRejectsRepeatWithinWindow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mr, rc := newRedis(t)

	calls := 0
	r := gin.New()
	r.Use(Idempotence(rc, zap.NewNop()))
	r.POST("/summaries", func(c *gin.Context) {
		calls++
		c.Status(http.StatusCreated)
	})
	r.POST("/fail", func(c *gin.Context) {
		calls++
		c.Status(http.StatusBadGateway)
	})

	body := `{"text":"same"}`
	assert.Equal(t, http.StatusCreated, perform(r, http.MethodPost, "/summaries", "tok", body).Code)
	assert.Equal(t, http.StatusConflict, perform(r, http.MethodPost, "/summaries", "tok", body).Code)
	assert.Equal(t, http.StatusCreated, perform(r, http.MethodPost, "/summaries", "tok", `{"text":"other"}`).Code)
	assert.Equal(t, 2, calls)

	mr.FastForward(61 * time.Second)
	assert.Equal(t, http.StatusCreated, perform(r, http.MethodPost, "/summaries", "tok", body).Code)

	// failed requests release the key
	assert.Equal(t, http.StatusBadGateway, perform(r, http.MethodPost, "/fail", "tok", body).Code)
	assert.Equal(t, http.StatusBadGateway, perform(r, http.MethodPost, "/fail", "tok", body).Code)
	assert.Equal(t, 5, calls)
}

type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

func TestIdempotenceDoesNotBufferUploads(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, rc := newRedis(t)

	src := &countingReader{r: strings.NewReader(strings.Repeat("x", 8<<20))}
	readBefore := -1
	r := gin.New()
	r.Use(Idempotence(rc, zap.NewNop()))
	r.POST("/summaries/upload", func(c *gin.Context) {
		readBefore = src.n
		c.Status(http.StatusBadRequest)
	})

	req := httptest.NewRequest(http.MethodPost, "/summaries/upload", src)
	req.Header.Set("Content-Type", "multipart/form-data; boundary=xyz")
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, readBefore)
}

func TestIdempotenceLargeBodyPassesThroughIntact(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, rc := newRedis(t)

	payload := strings.Repeat("y", idempotenceMaxBody+4096)
	src := &countingReader{r: strings.NewReader(payload)}
	var readBefore, got int
	r := gin.New()
	r.Use(Idempotence(rc, zap.NewNop()))
	r.POST("/summaries", func(c *gin.Context) {
		readBefore = src.n
		b, err := io.ReadAll(c.Request.Body)
		require.NoError(t, err)
		got = len(b)
		c.Status(http.StatusCreated)
	})

	for i := 0; i < 2; i++ {
		src.r, src.n = strings.NewReader(payload), 0
		req := httptest.NewRequest(http.MethodPost, "/summaries", src)
		req.Header.Set("Authorization", "Bearer tok")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		// unhashed, so the repeat is not rejected
		assert.Equal(t, http.StatusCreated, w.Code)
		assert.LessOrEqual(t, readBefore, idempotenceMaxBody+1)
		assert.Equal(t, len(payload), got)
	}
}

func TestIdempotenceDisabledWithoutRedis(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Idempotence(nil, zap.NewNop()))
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusCreated) })

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusCreated, perform(r, http.MethodPost, "/x", "tok", "{}").Code)
	}
}

func TestRateLimitPerUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, rc := newRedis(t)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(ContextKeyUserID, c.GetHeader("X-User"))
		c.Next()
	})
	r.Use(RateLimit(rc, 2, zap.NewNop()))
	r.POST("/summaries", func(c *gin.Context) { c.Status(http.StatusCreated) })

	send := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/summaries", nil)
		req.Header.Set("X-User", user)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusCreated, send("alice"))
	assert.Equal(t, http.StatusCreated, send("alice"))
	assert.Equal(t, http.StatusTooManyRequests, send("alice"))
	assert.Equal(t, http.StatusCreated, send("bob"))
}
