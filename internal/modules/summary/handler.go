package summary

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smartbrief/core/internal/middleware"
	"github.com/smartbrief/core/internal/modules/ai"
	"github.com/smartbrief/core/internal/modules/ingest"
	"github.com/smartbrief/core/internal/pkg/pagination"
	"github.com/smartbrief/core/internal/pkg/response"
)

// maxUploadBody bounds the whole multipart request: largest file plus form overhead.
const maxUploadBody = 11 << 20

// Catalog exposes the provider descriptors.
type Catalog interface {
	AvailableModels() map[ai.Provider][]ai.ModelInfo
	CheckConfiguration() map[ai.Provider]ai.ProviderStatus
}

type Handler struct {
	svc     *Service
	catalog Catalog
}

func NewHandler(svc *Service, catalog Catalog) *Handler {
	return &Handler{svc: svc, catalog: catalog}
}

// RegisterRoutes mounts /summaries. charge runs in front of every
// credit-consuming route.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc, charge ...gin.HandlerFunc) {
	g := rg.Group("/summaries", authMW)
	g.GET("/ai/models", h.models)
	g.GET("/file/types", h.fileTypes)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.POST("", withCharge(charge, h.create)...)
	g.POST("/upload", withCharge(charge, h.upload)...)
	g.PUT("/:id", withCharge(charge, h.regenerate)...)
	g.DELETE("/:id", h.delete)
}

func withCharge(charge []gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(charge)+1)
	out = append(out, charge...)
	return append(out, h)
}

func (h *Handler) list(c *gin.Context) {
	caller, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Unauthorized(c, "Access token required")
		return
	}
	items, meta, err := h.svc.List(c.Request.Context(), caller, pagination.FromContext(c), c.Query("search"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"summaries": toViews(items), "pagination": meta})
}

func (h *Handler) get(c *gin.Context) {
	caller, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Unauthorized(c, "Access token required")
		return
	}
	item, err := h.svc.Get(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"summary": toView(item)})
}

func (h *Handler) create(c *gin.Context) {
	caller, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Unauthorized(c, "Access token required")
		return
	}
	var dto CreateSummaryDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}
	out, err := h.svc.Create(c.Request.Context(), caller, Input{
		Text:     dto.Text,
		Prompt:   dto.Prompt,
		Provider: dto.Provider,
		Model:    dto.Model,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, toOutcomeResponse("Summary created successfully", out))
}

func (h *Handler) upload(c *gin.Context) {
	caller, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Unauthorized(c, "Access token required")
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBody)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.BadRequest(c, "File size too large. Maximum upload size is 10MB")
			return
		}
		response.BadRequest(c, "No file uploaded")
		return
	}
	up, err := ingest.Read(fh)
	if err != nil {
		response.Error(c, err)
		return
	}

	out, err := h.svc.CreateFromUpload(c.Request.Context(), caller, up, Input{
		Prompt:   c.PostForm("prompt"),
		Provider: c.PostForm("provider"),
		Model:    c.PostForm("model"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, toOutcomeResponse("Summary created successfully", out))
}

func (h *Handler) regenerate(c *gin.Context) {
	caller, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Unauthorized(c, "Access token required")
		return
	}
	var dto RegenerateSummaryDTO
	if err := c.ShouldBindJSON(&dto); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, "Invalid request body")
		return
	}
	out, err := h.svc.Regenerate(c.Request.Context(), caller, c.Param("id"), Input{
		Prompt:   dto.Prompt,
		Provider: dto.Provider,
		Model:    dto.Model,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toOutcomeResponse("Summary updated successfully", out))
}

func (h *Handler) delete(c *gin.Context) {
	caller, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Unauthorized(c, "Access token required")
		return
	}
	if err := h.svc.Delete(c.Request.Context(), caller, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"message": "Summary deleted successfully"})
}

func (h *Handler) models(c *gin.Context) {
	response.OK(c, gin.H{
		"models":        h.catalog.AvailableModels(),
		"configuration": h.catalog.CheckConfiguration(),
	})
}

func (h *Handler) fileTypes(c *gin.Context) {
	response.OK(c, gin.H{"supportedTypes": ingest.SupportedTypes()})
}
