package credit

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smartbrief/core/internal/middleware"
	"github.com/smartbrief/core/internal/models"
	"github.com/smartbrief/core/internal/pkg/response"
)

const idempotencyHeader = "Idempotency-Key"

type setCreditsDTO struct {
	Credits *int `json:"credits" binding:"required"`
}

type addCreditsDTO struct {
	Amount int `json:"amount"`
}

type Handler struct{ ledger *Ledger }

func NewHandler(ledger *Ledger) *Handler { return &Handler{ledger: ledger} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/users/:id", authMW)
	g.GET("/credits", h.balance)
	g.POST("/deduct-credit", h.deduct)
	g.PATCH("/credit", middleware.RequireRoles(models.RoleAdmin), h.set)
	g.POST("/add-credit", middleware.RequireRoles(models.RoleAdmin), h.add)
}

func (h *Handler) balance(c *gin.Context) {
	userID, ok := selfOrAdmin(c, "Access denied. You can only view your own credits.")
	if !ok {
		return
	}
	credits, err := h.ledger.Balance(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"userId": userID, "credits": credits})
}

func (h *Handler) deduct(c *gin.Context) {
	userID, ok := selfOrAdmin(c, "Access denied. You can only deduct your own credits.")
	if !ok {
		return
	}
	remaining, err := h.ledger.Deduct(c.Request.Context(), userID, 1, models.ReasonManualDeduct,
		requestKey(c, models.ReasonManualDeduct, userID))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{
		"message":          "Credit deducted successfully",
		"remainingCredits": remaining,
	})
}

func (h *Handler) set(c *gin.Context) {
	var dto setCreditsDTO
	if err := c.ShouldBindJSON(&dto); err != nil || *dto.Credits < 0 {
		response.BadRequest(c, "Credits must be a non-negative number")
		return
	}
	userID := c.Param("id")
	credits, err := h.ledger.Set(c.Request.Context(), userID, *dto.Credits)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{
		"message": "Credits updated successfully",
		"userId":  userID,
		"credits": credits,
	})
}

func (h *Handler) add(c *gin.Context) {
	var dto addCreditsDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "Amount must be a positive integer")
		return
	}
	userID := c.Param("id")
	credits, err := h.ledger.Add(c.Request.Context(), userID, dto.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{
		"message": "Credits added successfully",
		"userId":  userID,
		"credits": credits,
	})
}

// selfOrAdmin returns the target user id when the caller is that user or an admin.
func selfOrAdmin(c *gin.Context, deniedMsg string) (string, bool) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Unauthorized(c, "Access token required")
		return "", false
	}
	target := c.Param("id")
	if identity.UserID != target && identity.Role != models.RoleAdmin {
		response.Forbidden(c, deniedMsg)
		return "", false
	}
	return target, true
}

// requestKey scopes a client supplied Idempotency-Key to the operation and
// user. Without the header every request is distinct.
func requestKey(c *gin.Context, op, userID string) string {
	hdr := strings.TrimSpace(c.GetHeader(idempotencyHeader))
	if hdr == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(hdr))
	return op + ":" + userID + ":" + hex.EncodeToString(sum[:16])
}
