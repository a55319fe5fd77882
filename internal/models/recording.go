package models

import "time"

// ProcessingStatus values for a recording. Stored as-is in the database so
// the dashboard can filter on the exact tokens.
const (
	StatusPending      = "pending"
	StatusDownloading  = "downloading"
	StatusUploading    = "uploading_video"
	StatusTranscribing = "transcribing"
	StatusSummarizing  = "summarizing"
	StatusSaving       = "saving"
	StatusCompleted    = "completed"
	StatusFailed       = "failed"
)

// MaxRetries is the ceiling for automatic reprocessing of failed recordings.
// A recording at or above this count is only retried manually.
const MaxRetries = 3

// MaxErrorLen caps the stored error message for a failed recording.
const MaxErrorLen = 2000

// Recording is one processed meeting occurrence and its pipeline state.
type Recording struct {
	ID              int64      `json:"id"`
	MeetingID       string     `json:"meeting_id"`
	MeetingUUID     string     `json:"meeting_uuid"`
	Topic           string     `json:"topic"`
	StartTime       time.Time  `json:"start_time"`
	DurationMinutes int        `json:"duration_minutes"`
	HostEmail       string     `json:"host_email,omitempty"`
	RecordingURL    string     `json:"recording_url,omitempty"`
	RecordingType   string     `json:"recording_type"`

	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	RetryCount   int    `json:"retry_count"`

	VideoURL    string `json:"video_url,omitempty"`
	Transcript  string `json:"transcript,omitempty"`
	Summary     string `json:"summary,omitempty"`
	Decisions   string `json:"decisions,omitempty"`
	ActionItems string `json:"action_items,omitempty"`

	ClientID        *int64 `json:"client_id,omitempty"`
	ClientName      string `json:"client_name,omitempty"`
	CalendarEventID string `json:"calendar_event_id,omitempty"`
	NotionPageID    string `json:"notion_page_id,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Terminal reports whether the recording is in a terminal state for this attempt.
func (r *Recording) Terminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}
