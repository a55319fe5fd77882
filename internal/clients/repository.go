package clients

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meetscribe/backend/internal/models"
)

// Repository handles client persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a client repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const clientColumns = `id, name, description, status, tags, cumulative_summary, meeting_ids, title_patterns,
	meeting_count, last_meeting_at, notion_page_id, created_at, updated_at`

func scanClient(row pgx.Row) (*models.Client, error) {
	var cl models.Client
	err := row.Scan(
		&cl.ID, &cl.Name, &cl.Description, &cl.Status, &cl.Tags, &cl.CumulativeSummary,
		&cl.MeetingIDs, &cl.TitlePatterns, &cl.MeetingCount, &cl.LastMeetingAt,
		&cl.NotionPageID, &cl.CreatedAt, &cl.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &cl, nil
}

// Create inserts a new client.
func (r *Repository) Create(ctx context.Context, cl *models.Client) error {
	if cl.Status == "" {
		cl.Status = models.ClientStatusActive
	}
	if cl.Tags == nil {
		cl.Tags = []string{}
	}
	if cl.MeetingIDs == nil {
		cl.MeetingIDs = []string{}
	}
	if cl.TitlePatterns == nil {
		cl.TitlePatterns = []string{}
	}
	const q = `INSERT INTO clients (name, description, status, tags, meeting_ids, title_patterns)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, cl.Name, cl.Description, cl.Status, cl.Tags, cl.MeetingIDs, cl.TitlePatterns).
		Scan(&cl.ID, &cl.CreatedAt, &cl.UpdatedAt)
}

// GetOrCreateByName returns the client with the given name, creating it when
// missing. Concurrent creation races resolve via the unique name constraint.
func (r *Repository) GetOrCreateByName(ctx context.Context, name string) (*models.Client, error) {
	const q = `INSERT INTO clients (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET updated_at = clients.updated_at
		RETURNING ` + clientColumns
	return scanClient(r.pool.QueryRow(ctx, q, name))
}

// GetByID returns a client by ID.
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.Client, error) {
	const q = `SELECT ` + clientColumns + ` FROM clients WHERE id = $1`
	return scanClient(r.pool.QueryRow(ctx, q, id))
}

// GetByName returns a client by exact name.
func (r *Repository) GetByName(ctx context.Context, name string) (*models.Client, error) {
	const q = `SELECT ` + clientColumns + ` FROM clients WHERE name = $1`
	return scanClient(r.pool.QueryRow(ctx, q, name))
}

// List returns all clients, optionally filtered by status.
func (r *Repository) List(ctx context.Context, status string) ([]models.Client, error) {
	base := `SELECT ` + clientColumns + ` FROM clients`
	var args []interface{}
	var cond string
	if status != "" {
		cond = " WHERE status = $1"
		args = append(args, status)
	}
	rows, err := r.pool.Query(ctx, base+cond+" ORDER BY name ASC", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Client
	for rows.Next() {
		cl, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *cl)
	}
	return list, rows.Err()
}

// Update updates editable client fields.
func (r *Repository) Update(ctx context.Context, id int64, name, description, status string, tags, titlePatterns []string) error {
	const q = `UPDATE clients SET
		name = COALESCE(NULLIF($1, ''), name),
		description = $2,
		status = COALESCE(NULLIF($3, ''), status),
		tags = COALESCE($4, tags),
		title_patterns = COALESCE($5, title_patterns),
		updated_at = NOW()
		WHERE id = $6`
	tag, err := r.pool.Exec(ctx, q, name, description, status, tags, titlePatterns, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Delete removes a client. Recordings keep their rows; the FK sets client_id
// to NULL.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	const q = `DELETE FROM clients WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// AddMeetingID appends a learned meeting id unless already present.
func (r *Repository) AddMeetingID(ctx context.Context, id int64, meetingID string) error {
	const q = `UPDATE clients SET meeting_ids = array_append(meeting_ids, $1), updated_at = NOW()
		WHERE id = $2 AND NOT ($1 = ANY(meeting_ids))`
	_, err := r.pool.Exec(ctx, q, meetingID, id)
	return err
}

// AddTitlePattern appends a learned title pattern unless already present.
func (r *Repository) AddTitlePattern(ctx context.Context, id int64, pattern string) error {
	const q = `UPDATE clients SET title_patterns = array_append(title_patterns, $1), updated_at = NOW()
		WHERE id = $2 AND NOT ($1 = ANY(title_patterns))`
	_, err := r.pool.Exec(ctx, q, pattern, id)
	return err
}

// UpdateRollup replaces the cumulative summary and its derived counters.
func (r *Repository) UpdateRollup(ctx context.Context, id int64, summary string, meetingCount int, lastMeetingAt *time.Time) error {
	const q = `UPDATE clients SET cumulative_summary = $1, meeting_count = $2, last_meeting_at = $3, updated_at = NOW() WHERE id = $4`
	_, err := r.pool.Exec(ctx, q, summary, meetingCount, lastMeetingAt, id)
	return err
}

// SetNotionPage records the client's Notion page id.
func (r *Repository) SetNotionPage(ctx context.Context, id int64, pageID string) error {
	const q = `UPDATE clients SET notion_page_id = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, pageID, id)
	return err
}
