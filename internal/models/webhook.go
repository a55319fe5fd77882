package models

import "time"

// Recording file types we act on. Video files drive the pipeline; audio
// files are kept available for audio-only flows but are otherwise ignored.
const (
	FileTypeVideo = "MP4"
	FileTypeAudio = "M4A"
)

// WebhookEvent is the envelope of an inbound provider webhook.
type WebhookEvent struct {
	Event   string         `json:"event"`
	EventTS int64          `json:"event_ts"`
	Payload WebhookPayload `json:"payload"`
}

// WebhookPayload carries the event body for recording.completed plus the
// plainToken used by the endpoint.url_validation handshake.
type WebhookPayload struct {
	AccountID  string         `json:"account_id"`
	PlainToken string         `json:"plainToken"`
	Object     WebhookMeeting `json:"object"`
}

// WebhookMeeting describes the completed meeting occurrence.
type WebhookMeeting struct {
	ID             int64           `json:"id"`
	UUID           string          `json:"uuid"`
	Topic          string          `json:"topic"`
	StartTime      time.Time       `json:"start_time"`
	Duration       int             `json:"duration"`
	HostEmail      string          `json:"host_email"`
	RecordingFiles []RecordingFile `json:"recording_files"`
}

// RecordingFile is one downloadable artifact of a completed recording.
type RecordingFile struct {
	ID             string    `json:"id"`
	FileType       string    `json:"file_type"`
	FileSize       int64     `json:"file_size"`
	DownloadURL    string    `json:"download_url"`
	RecordingStart time.Time `json:"recording_start"`
	RecordingEnd   time.Time `json:"recording_end"`
}

// VideoFile returns the MP4 recording file, or nil if the event has none.
func (m *WebhookMeeting) VideoFile() *RecordingFile {
	for i := range m.RecordingFiles {
		if m.RecordingFiles[i].FileType == FileTypeVideo {
			return &m.RecordingFiles[i]
		}
	}
	return nil
}

// AudioFile returns the M4A recording file, or nil if the event has none.
func (m *WebhookMeeting) AudioFile() *RecordingFile {
	for i := range m.RecordingFiles {
		if m.RecordingFiles[i].FileType == FileTypeAudio {
			return &m.RecordingFiles[i]
		}
	}
	return nil
}
