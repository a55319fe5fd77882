package clients

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/meetscribe/backend/internal/models"
	"github.com/meetscribe/backend/pkg/response"
)

// Handler exposes the client management API.
type Handler struct {
	repo   *Repository
	rollup *Rollup
	logger *zap.Logger
}

// NewHandler creates the clients handler.
func NewHandler(repo *Repository, rollup *Rollup, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, rollup: rollup, logger: logger}
}

type createClientRequest struct {
	Name          string   `json:"name" binding:"required"`
	Description   string   `json:"description"`
	Status        string   `json:"status"`
	Tags          []string `json:"tags"`
	TitlePatterns []string `json:"title_patterns"`
}

type updateClientRequest struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Status        string   `json:"status"`
	Tags          []string `json:"tags"`
	TitlePatterns []string `json:"title_patterns"`
}

// List handles GET /api/clients with an optional status filter.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context(), c.Query("status"))
	if err != nil {
		h.logger.Error("list clients", zap.Error(err))
		response.Internal(c, "list clients")
		return
	}
	response.OK(c, list)
}

// Get handles GET /api/clients/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	cl, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.NotFound(c, "client not found")
			return
		}
		h.logger.Error("get client", zap.Int64("id", id), zap.Error(err))
		response.Internal(c, "get client")
		return
	}
	response.OK(c, cl)
}

// Create handles POST /api/clients.
func (h *Handler) Create(c *gin.Context) {
	var req createClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "name is required")
		return
	}
	if !validStatus(req.Status) {
		response.BadRequest(c, "invalid status")
		return
	}
	cl := &models.Client{
		Name:          req.Name,
		Description:   req.Description,
		Status:        req.Status,
		Tags:          req.Tags,
		TitlePatterns: req.TitlePatterns,
	}
	if err := h.repo.Create(c.Request.Context(), cl); err != nil {
		h.logger.Error("create client", zap.String("name", req.Name), zap.Error(err))
		response.Conflict(c, "client already exists or could not be created")
		return
	}
	response.Created(c, cl)
}

// Update handles PUT /api/clients/:id.
func (h *Handler) Update(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req updateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid body")
		return
	}
	if !validStatus(req.Status) {
		response.BadRequest(c, "invalid status")
		return
	}
	if err := h.repo.Update(c.Request.Context(), id, req.Name, req.Description, req.Status, req.Tags, req.TitlePatterns); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.NotFound(c, "client not found")
			return
		}
		h.logger.Error("update client", zap.Int64("id", id), zap.Error(err))
		response.Internal(c, "update client")
		return
	}
	cl, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "reload client")
		return
	}
	response.OK(c, cl)
}

// Delete handles DELETE /api/clients/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.NotFound(c, "client not found")
			return
		}
		h.logger.Error("delete client", zap.Int64("id", id), zap.Error(err))
		response.Internal(c, "delete client")
		return
	}
	response.NoContent(c)
}

// RefreshSummary handles POST /api/clients/:id/refresh-summary, rebuilding
// the cumulative summary from the client's full meeting history.
func (h *Handler) RefreshSummary(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	cl, err := h.rollup.Refresh(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.NotFound(c, "client not found")
			return
		}
		h.logger.Error("refresh cumulative summary", zap.Int64("id", id), zap.Error(err))
		response.Internal(c, "refresh summary")
		return
	}
	response.OK(c, cl)
}

func (h *Handler) pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid client id")
		return 0, false
	}
	return id, true
}

func validStatus(status string) bool {
	switch status {
	case "", models.ClientStatusActive, models.ClientStatusCompleted, models.ClientStatusOnHold:
		return true
	}
	return false
}
