package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	pkgredis "github.com/smartbrief/core/internal/pkg/redis"
	"github.com/smartbrief/core/internal/pkg/response"
	"go.uber.org/zap"
)

const (
	idempotenceHeader = "x-idempotence"
	idempotenceTTL    = 60 * time.Second
	idempotencePrefix = "smartbrief:idempotence:"
	// Bodies above this size are passed through unhashed.
	idempotenceMaxBody = 1 << 20
)

// Idempotence rejects a repeated mutating request while the first one is in
// flight, and for idempotenceTTL after it succeeded. A nil or disabled
// client turns it into a no-op.
func Idempotence(rc *pkgredis.Client, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rc.Enabled() || !isMutating(c.Request.Method) {
			c.Next()
			return
		}

		key, err := resolveIdempotenceKey(c)
		if err != nil || key == "" {
			c.Next()
			return
		}

		redisKey := idempotencePrefix + key
		ctx := c.Request.Context()

		acquired, err := rc.SetNX(ctx, redisKey, "0", idempotenceTTL)
		if err != nil {
			log.Warn("idempotence check failed", zap.Error(err))
			c.Next()
			return
		}
		if !acquired {
			msg := "Identical request was already processed, retry after 60 seconds"
			if val, _, _ := rc.Get(ctx, redisKey); val == "0" {
				msg = "Identical request is being processed"
			}
			response.Conflict(c, msg)
			return
		}

		c.Next()

		status := c.Writer.Status()
		if status >= 200 && status < 300 {
			_ = rc.Replace(ctx, redisKey, "1")
		} else {
			_ = rc.Del(ctx, redisKey)
		}
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// resolveIdempotenceKey returns the idempotence key for the current request.
// Multipart uploads and oversized bodies are never buffered here; they are
// only guarded when the client sends an explicit key.
func resolveIdempotenceKey(c *gin.Context) (string, error) {
	if hdr := c.GetHeader(idempotenceHeader); hdr != "" {
		return hdr, nil
	}
	if c.ContentType() == gin.MIMEMultipartPOSTForm || c.Request.ContentLength > idempotenceMaxBody {
		return "", nil
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, idempotenceMaxBody+1))
	if err != nil {
		return "", err
	}
	c.Request.Body = replayBody{Reader: io.MultiReader(bytes.NewReader(body), c.Request.Body), Closer: c.Request.Body}
	if len(body) > idempotenceMaxBody {
		return "", nil
	}

	ua := c.Request.UserAgent()
	ip := c.ClientIP()
	token := extractToken(c)

	if len(body) == 0 && ua == "" && ip == "" && token == "" {
		return "", nil
	}

	raw := c.Request.Method + "|" + c.Request.URL.String() + "|" + string(body) + "|" + ua + "|" + ip + "|" + token
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:]), nil
}

// replayBody puts already-read bytes back in front of the unread remainder.
type replayBody struct {
	io.Reader
	io.Closer
}
