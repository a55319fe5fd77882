package meetings

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meetscribe/backend/internal/models"
)

// Repository handles recording persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a recording repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const recordingColumns = `r.id, r.meeting_id, r.meeting_uuid, r.topic, r.start_time, r.duration_minutes,
	r.host_email, r.recording_url, r.recording_type, r.status, r.error_message, r.retry_count,
	r.video_url, r.transcript, r.summary, r.decisions, r.action_items,
	r.client_id, COALESCE(c.name, ''), r.calendar_event_id, r.notion_page_id,
	r.created_at, r.updated_at, r.completed_at`

func scanRecording(row pgx.Row) (*models.Recording, error) {
	var rec models.Recording
	err := row.Scan(
		&rec.ID, &rec.MeetingID, &rec.MeetingUUID, &rec.Topic, &rec.StartTime, &rec.DurationMinutes,
		&rec.HostEmail, &rec.RecordingURL, &rec.RecordingType, &rec.Status, &rec.ErrorMessage, &rec.RetryCount,
		&rec.VideoURL, &rec.Transcript, &rec.Summary, &rec.Decisions, &rec.ActionItems,
		&rec.ClientID, &rec.ClientName, &rec.CalendarEventID, &rec.NotionPageID,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateFromWebhook inserts a new pending recording for a completed meeting.
// A duplicate meeting UUID returns the existing row with created=false so the
// webhook handler can treat redeliveries as a no-op.
func (r *Repository) CreateFromWebhook(ctx context.Context, rec *models.Recording) (created bool, err error) {
	const q = `INSERT INTO recordings (meeting_id, meeting_uuid, topic, start_time, duration_minutes, host_email, recording_url, recording_type, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (meeting_uuid) DO NOTHING
		RETURNING id, created_at, updated_at`
	err = r.pool.QueryRow(ctx, q,
		rec.MeetingID, rec.MeetingUUID, rec.Topic, rec.StartTime, rec.DurationMinutes,
		rec.HostEmail, rec.RecordingURL, rec.RecordingType, models.StatusPending,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err == pgx.ErrNoRows {
		existing, getErr := r.GetByMeetingUUID(ctx, rec.MeetingUUID)
		if getErr != nil {
			return false, getErr
		}
		*rec = *existing
		return false, nil
	}
	if err != nil {
		return false, err
	}
	rec.Status = models.StatusPending
	return true, nil
}

// GetByID returns a recording by ID, with the resolved client name joined in.
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.Recording, error) {
	q := `SELECT ` + recordingColumns + ` FROM recordings r LEFT JOIN clients c ON c.id = r.client_id WHERE r.id = $1`
	return scanRecording(r.pool.QueryRow(ctx, q, id))
}

// GetByMeetingUUID returns a recording by its meeting UUID.
func (r *Repository) GetByMeetingUUID(ctx context.Context, uuid string) (*models.Recording, error) {
	q := `SELECT ` + recordingColumns + ` FROM recordings r LEFT JOIN clients c ON c.id = r.client_id WHERE r.meeting_uuid = $1`
	return scanRecording(r.pool.QueryRow(ctx, q, uuid))
}

// List returns recordings newest-first, optionally filtered by client and status.
func (r *Repository) List(ctx context.Context, clientID *int64, status string, limit, offset int) ([]models.Recording, error) {
	base := `SELECT ` + recordingColumns + ` FROM recordings r LEFT JOIN clients c ON c.id = r.client_id`
	var args []interface{}
	var cond string
	if clientID != nil {
		cond = " WHERE r.client_id = $1"
		args = append(args, *clientID)
	}
	if status != "" {
		if cond == "" {
			cond = " WHERE r.status = $1"
		} else {
			cond += " AND r.status = $2"
		}
		args = append(args, status)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit, offset)
	n := len(args)
	q := base + cond + ` ORDER BY r.start_time DESC LIMIT $` + strconv.Itoa(n-1) + ` OFFSET $` + strconv.Itoa(n)
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecordings(rows)
}

// Search returns recordings whose topic, transcript or summary matches the
// query, newest-first.
func (r *Repository) Search(ctx context.Context, query string, limit int) ([]models.Recording, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := `SELECT ` + recordingColumns + ` FROM recordings r LEFT JOIN clients c ON c.id = r.client_id
		WHERE r.topic ILIKE '%' || $1 || '%' OR r.transcript ILIKE '%' || $1 || '%' OR r.summary ILIKE '%' || $1 || '%'
		ORDER BY r.start_time DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, q, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecordings(rows)
}

// ListSummarizedByClient returns the client's summarized recordings oldest-first,
// the order the cumulative summary is rebuilt in.
func (r *Repository) ListSummarizedByClient(ctx context.Context, clientID int64) ([]models.Recording, error) {
	q := `SELECT ` + recordingColumns + ` FROM recordings r LEFT JOIN clients c ON c.id = r.client_id
		WHERE r.client_id = $1 AND r.summary <> ''
		ORDER BY r.start_time ASC`
	rows, err := r.pool.Query(ctx, q, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecordings(rows)
}

// ListFailedBelowRetryCeiling returns failed recordings still eligible for
// automatic reprocessing.
func (r *Repository) ListFailedBelowRetryCeiling(ctx context.Context) ([]models.Recording, error) {
	q := `SELECT ` + recordingColumns + ` FROM recordings r LEFT JOIN clients c ON c.id = r.client_id
		WHERE r.status = $1 AND r.retry_count < $2
		ORDER BY r.updated_at ASC`
	rows, err := r.pool.Query(ctx, q, models.StatusFailed, models.MaxRetries)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecordings(rows)
}

// UpdateStatus transitions a recording to the given pipeline status.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status string) error {
	const q = `UPDATE recordings SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, status, id)
	return err
}

// SetVideoURL persists the published video URL.
func (r *Repository) SetVideoURL(ctx context.Context, id int64, url string) error {
	const q = `UPDATE recordings SET video_url = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, url, id)
	return err
}

// SetTranscript persists the transcript text.
func (r *Repository) SetTranscript(ctx context.Context, id int64, transcript string) error {
	const q = `UPDATE recordings SET transcript = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, transcript, id)
	return err
}

// SetSummaries persists all three generated texts in one statement so a
// partial set is never visible.
func (r *Repository) SetSummaries(ctx context.Context, id int64, summary, decisions, actionItems string) error {
	const q = `UPDATE recordings SET summary = $1, decisions = $2, action_items = $3, updated_at = NOW() WHERE id = $4`
	_, err := r.pool.Exec(ctx, q, summary, decisions, actionItems, id)
	return err
}

// SetClient links a recording to its resolved client.
func (r *Repository) SetClient(ctx context.Context, id, clientID int64) error {
	const q = `UPDATE recordings SET client_id = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, clientID, id)
	return err
}

// SetNotionPage records the created meeting page id.
func (r *Repository) SetNotionPage(ctx context.Context, id int64, pageID string) error {
	const q = `UPDATE recordings SET notion_page_id = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, pageID, id)
	return err
}

// SetCalendarEvent records the matched calendar event id.
func (r *Repository) SetCalendarEvent(ctx context.Context, id int64, eventID string) error {
	const q = `UPDATE recordings SET calendar_event_id = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, eventID, id)
	return err
}

// MarkCompleted finishes a recording: status completed, error cleared.
func (r *Repository) MarkCompleted(ctx context.Context, id int64) error {
	const q = `UPDATE recordings SET status = $1, error_message = '', completed_at = NOW(), updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, models.StatusCompleted, id)
	return err
}

// MarkFailed records a failure: status failed, truncated error, retry counter
// bumped.
func (r *Repository) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	const q = `UPDATE recordings SET status = $1, error_message = $2, retry_count = retry_count + 1, updated_at = NOW() WHERE id = $3`
	_, err := r.pool.Exec(ctx, q, models.StatusFailed, truncateError(errMsg), id)
	return err
}

// truncateError caps the stored error on a rune boundary. Adapter errors
// carry Japanese response bodies; a byte slice could split a rune and
// produce text Postgres rejects.
func truncateError(msg string) string {
	runes := []rune(msg)
	if len(runes) <= models.MaxErrorLen {
		return msg
	}
	return string(runes[:models.MaxErrorLen])
}

// ResetForRetry returns a failed recording to pending with the error cleared.
func (r *Repository) ResetForRetry(ctx context.Context, id int64) error {
	const q = `UPDATE recordings SET status = $1, error_message = '', updated_at = NOW() WHERE id = $2 AND status = $3`
	tag, err := r.pool.Exec(ctx, q, models.StatusPending, id, models.StatusFailed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Delete removes a recording.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	const q = `DELETE FROM recordings WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Stats aggregates dashboard counters.
type Stats struct {
	Total         int64      `json:"total"`
	Completed     int64      `json:"completed"`
	Pending       int64      `json:"pending"`
	Failed        int64      `json:"failed"`
	ThisMonth     int64      `json:"this_month"`
	ActiveClients int64      `json:"active_clients_30d"`
	LastCompleted *time.Time `json:"last_completed_at,omitempty"`
}

// GetStats returns dashboard counters in a single round trip.
func (r *Repository) GetStats(ctx context.Context) (*Stats, error) {
	const q = `SELECT
		COUNT(*),
		COUNT(*) FILTER (WHERE status = 'completed'),
		COUNT(*) FILTER (WHERE status NOT IN ('completed', 'failed')),
		COUNT(*) FILTER (WHERE status = 'failed'),
		COUNT(*) FILTER (WHERE start_time >= date_trunc('month', NOW())),
		COUNT(DISTINCT client_id) FILTER (WHERE client_id IS NOT NULL AND start_time >= NOW() - INTERVAL '30 days'),
		MAX(completed_at)
		FROM recordings`
	var s Stats
	err := r.pool.QueryRow(ctx, q).Scan(&s.Total, &s.Completed, &s.Pending, &s.Failed, &s.ThisMonth, &s.ActiveClients, &s.LastCompleted)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListProcessing returns recordings currently moving through the pipeline.
func (r *Repository) ListProcessing(ctx context.Context) ([]models.Recording, error) {
	q := `SELECT ` + recordingColumns + ` FROM recordings r LEFT JOIN clients c ON c.id = r.client_id
		WHERE r.status NOT IN ($1, $2)
		ORDER BY r.updated_at DESC`
	rows, err := r.pool.Query(ctx, q, models.StatusCompleted, models.StatusFailed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecordings(rows)
}

// ListRecentCompleted returns the most recently completed recordings.
func (r *Repository) ListRecentCompleted(ctx context.Context, limit int) ([]models.Recording, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	q := `SELECT ` + recordingColumns + ` FROM recordings r LEFT JOIN clients c ON c.id = r.client_id
		WHERE r.status = $1
		ORDER BY r.completed_at DESC NULLS LAST LIMIT $2`
	rows, err := r.pool.Query(ctx, q, models.StatusCompleted, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecordings(rows)
}

// ListWithActionItems returns completed recordings that produced action items.
func (r *Repository) ListWithActionItems(ctx context.Context, limit int) ([]models.Recording, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	q := `SELECT ` + recordingColumns + ` FROM recordings r LEFT JOIN clients c ON c.id = r.client_id
		WHERE r.status = $1 AND r.action_items <> ''
		ORDER BY r.start_time DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, q, models.StatusCompleted, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecordings(rows)
}

func collectRecordings(rows pgx.Rows) ([]models.Recording, error) {
	var list []models.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *rec)
	}
	return list, rows.Err()
}
