package dashboard

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/meetscribe/backend/internal/meetings"
	"github.com/meetscribe/backend/internal/models"
	"github.com/meetscribe/backend/pkg/response"
)

// stageProgress maps pipeline statuses to a rough completion percentage for
// the dashboard progress bars.
var stageProgress = map[string]int{
	models.StatusPending:      0,
	models.StatusDownloading:  15,
	models.StatusUploading:    35,
	models.StatusTranscribing: 55,
	models.StatusSummarizing:  75,
	models.StatusSaving:       90,
	models.StatusCompleted:    100,
	models.StatusFailed:       100,
}

// Handler serves the operator dashboard endpoints.
type Handler struct {
	repo   *meetings.Repository
	logger *zap.Logger
}

// NewHandler creates the dashboard handler.
func NewHandler(repo *meetings.Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// Stats returns the aggregate counters.
// GET /api/dashboard/stats
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.repo.GetStats(c.Request.Context())
	if err != nil {
		h.logger.Error("dashboard stats", zap.Error(err))
		response.Internal(c, "failed to load stats")
		return
	}
	response.OK(c, stats)
}

type processingItem struct {
	models.Recording
	Progress int `json:"progress"`
}

// Processing returns recordings currently moving through the pipeline with a
// per-stage progress percentage.
// GET /api/dashboard/processing
func (h *Handler) Processing(c *gin.Context) {
	recs, err := h.repo.ListProcessing(c.Request.Context())
	if err != nil {
		h.logger.Error("dashboard processing list", zap.Error(err))
		response.Internal(c, "failed to load processing recordings")
		return
	}
	items := make([]processingItem, 0, len(recs))
	for _, rec := range recs {
		items = append(items, processingItem{Recording: rec, Progress: stageProgress[rec.Status]})
	}
	response.OK(c, items)
}

// Recent returns the most recently completed recordings.
// GET /api/dashboard/recent
func (h *Handler) Recent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	recs, err := h.repo.ListRecentCompleted(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("dashboard recent list", zap.Error(err))
		response.Internal(c, "failed to load recent recordings")
		return
	}
	response.OK(c, recs)
}

// ActionItems returns completed recordings that produced action items, most
// recent meeting first.
// GET /api/dashboard/action-items
func (h *Handler) ActionItems(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	recs, err := h.repo.ListWithActionItems(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("dashboard action items", zap.Error(err))
		response.Internal(c, "failed to load action items")
		return
	}
	type item struct {
		ID          int64  `json:"id"`
		Topic       string `json:"topic"`
		StartTime   string `json:"start_time"`
		ClientName  string `json:"client_name,omitempty"`
		ActionItems string `json:"action_items"`
	}
	items := make([]item, 0, len(recs))
	for _, rec := range recs {
		items = append(items, item{
			ID:          rec.ID,
			Topic:       rec.Topic,
			StartTime:   rec.StartTime.Format("2006-01-02 15:04"),
			ClientName:  rec.ClientName,
			ActionItems: rec.ActionItems,
		})
	}
	response.OK(c, items)
}
