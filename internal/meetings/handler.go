package meetings

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/meetscribe/backend/pkg/queue"
	"github.com/meetscribe/backend/pkg/response"
)

// Handler exposes the recording management API.
type Handler struct {
	repo   *Repository
	jobs   *queue.Queue
	logger *zap.Logger
}

// NewHandler creates the recordings handler.
func NewHandler(repo *Repository, jobs *queue.Queue, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, jobs: jobs, logger: logger}
}

// List handles GET /api/recordings with optional client_id and status filters.
func (h *Handler) List(c *gin.Context) {
	var clientID *int64
	if v := c.Query("client_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			response.BadRequest(c, "invalid client_id")
			return
		}
		clientID = &id
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	list, err := h.repo.List(c.Request.Context(), clientID, c.Query("status"), limit, offset)
	if err != nil {
		h.logger.Error("list recordings", zap.Error(err))
		response.Internal(c, "list recordings")
		return
	}
	response.OK(c, list)
}

// Get handles GET /api/recordings/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	rec, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.NotFound(c, "recording not found")
			return
		}
		h.logger.Error("get recording", zap.Int64("id", id), zap.Error(err))
		response.Internal(c, "get recording")
		return
	}
	response.OK(c, rec)
}

// Transcript handles GET /api/recordings/:id/transcript. The transcript is
// returned on its own because it is too large for list payloads.
func (h *Handler) Transcript(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	rec, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.NotFound(c, "recording not found")
			return
		}
		h.logger.Error("get transcript", zap.Int64("id", id), zap.Error(err))
		response.Internal(c, "get transcript")
		return
	}
	response.OK(c, gin.H{"id": rec.ID, "topic": rec.Topic, "transcript": rec.Transcript})
}

// Search handles GET /api/recordings/search?q=...
func (h *Handler) Search(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		response.BadRequest(c, "q is required")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	list, err := h.repo.Search(c.Request.Context(), q, limit)
	if err != nil {
		h.logger.Error("search recordings", zap.String("q", q), zap.Error(err))
		response.Internal(c, "search recordings")
		return
	}
	response.OK(c, list)
}

// Retry handles POST /api/recordings/:id/retry. Manual retries bypass the
// automatic retry ceiling: the operator decided, so the counter is not a gate.
func (h *Handler) Retry(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	if err := h.repo.ResetForRetry(c.Request.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.Conflict(c, "recording is not in failed state")
			return
		}
		h.logger.Error("reset recording for retry", zap.Int64("id", id), zap.Error(err))
		response.Internal(c, "retry recording")
		return
	}
	if err := h.jobs.EnqueueProcessRecording(c.Request.Context(), queue.ProcessRecordingPayload{RecordingID: id}); err != nil {
		h.logger.Error("enqueue retry job", zap.Int64("id", id), zap.Error(err))
		response.Internal(c, "enqueue retry")
		return
	}
	h.logger.Info("recording manually requeued", zap.Int64("id", id))
	response.OK(c, gin.H{"recording_id": id, "status": "pending"})
}

// Delete handles DELETE /api/recordings/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.NotFound(c, "recording not found")
			return
		}
		h.logger.Error("delete recording", zap.Int64("id", id), zap.Error(err))
		response.Internal(c, "delete recording")
		return
	}
	response.NoContent(c)
}

func (h *Handler) pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid recording id")
		return 0, false
	}
	return id, true
}
