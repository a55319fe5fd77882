package clients

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/meetscribe/backend/internal/models"
)

// RecordingSource lists the summarized recordings of one client.
type RecordingSource interface {
	ListSummarizedByClient(ctx context.Context, clientID int64) ([]models.Recording, error)
}

// RollupStore is the client persistence surface the rollup needs.
type RollupStore interface {
	GetByID(ctx context.Context, id int64) (*models.Client, error)
	UpdateRollup(ctx context.Context, id int64, summary string, meetingCount int, lastMeetingAt *time.Time) error
}

// CumulativeGenerator condenses a client's full meeting history into one
// running summary.
type CumulativeGenerator interface {
	GenerateCumulative(ctx context.Context, clientName, history string) (string, error)
}

// Rollup rebuilds a client's cumulative summary from scratch on every
// refresh, so a reprocessed recording never double-counts.
type Rollup struct {
	clients    RollupStore
	recordings RecordingSource
	generator  CumulativeGenerator
	logger     *zap.Logger
}

// NewRollup creates the cumulative-summary service.
func NewRollup(clients RollupStore, recordings RecordingSource, generator CumulativeGenerator, logger *zap.Logger) *Rollup {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rollup{clients: clients, recordings: recordings, generator: generator, logger: logger}
}

// Refresh regenerates the client's cumulative summary and returns the updated
// client. A client with no summarized recordings is left untouched.
func (r *Rollup) Refresh(ctx context.Context, clientID int64) (*models.Client, error) {
	cl, err := r.clients.GetByID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	recs, err := r.recordings.ListSummarizedByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		r.logger.Info("rollup skipped, no summarized meetings", zap.Int64("client_id", clientID))
		return cl, nil
	}

	summary, err := r.generator.GenerateCumulative(ctx, cl.Name, BuildHistory(recs))
	if err != nil {
		return nil, err
	}

	last := recs[len(recs)-1].StartTime
	if err := r.clients.UpdateRollup(ctx, clientID, summary, len(recs), &last); err != nil {
		return nil, err
	}
	cl.CumulativeSummary = summary
	cl.MeetingCount = len(recs)
	cl.LastMeetingAt = &last
	r.logger.Info("cumulative summary refreshed",
		zap.Int64("client_id", clientID),
		zap.Int("meeting_count", len(recs)),
	)
	return cl, nil
}

// BuildHistory renders the meeting history the generator condenses: one dated
// block per recording, oldest first.
func BuildHistory(recs []models.Recording) string {
	var b strings.Builder
	for _, rec := range recs {
		b.WriteString("【")
		b.WriteString(rec.StartTime.Format("2006-01-02"))
		b.WriteString("】")
		b.WriteString(rec.Topic)
		b.WriteString("\n")
		b.WriteString(rec.Summary)
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
