package pipeline

import (
	"context"
	"time"

	"github.com/meetscribe/backend/internal/clients"
	"github.com/meetscribe/backend/internal/gcal"
	"github.com/meetscribe/backend/internal/gsheets"
	"github.com/meetscribe/backend/internal/models"
	"github.com/meetscribe/backend/internal/notion"
)

// RecordingStore is the recording persistence surface the pipeline drives.
type RecordingStore interface {
	GetByID(ctx context.Context, id int64) (*models.Recording, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	SetVideoURL(ctx context.Context, id int64, url string) error
	SetTranscript(ctx context.Context, id int64, transcript string) error
	SetSummaries(ctx context.Context, id int64, summary, decisions, actionItems string) error
	SetClient(ctx context.Context, id, clientID int64) error
	SetNotionPage(ctx context.Context, id int64, pageID string) error
	SetCalendarEvent(ctx context.Context, id int64, eventID string) error
	MarkCompleted(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error
}

// ClientPageStore records the Notion page id learned for a client.
type ClientPageStore interface {
	SetNotionPage(ctx context.Context, id int64, pageID string) error
}

// Downloader fetches the raw recording media.
type Downloader interface {
	DownloadRecording(ctx context.Context, downloadURL, destDir, filename string) (string, int64, error)
	Cleanup(path string)
}

// Publisher uploads the media to the video platform and returns the watch URL.
type Publisher interface {
	Upload(ctx context.Context, mediaPath, title, description string) (string, error)
}

// Transcriber turns media into text.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaPath, language string) (string, error)
}

// Summarizer produces the three generated texts for one transcript.
type Summarizer interface {
	GenerateSummary(ctx context.Context, transcript string) (string, error)
	ExtractDecisions(ctx context.Context, transcript string) (string, error)
	ExtractActionItems(ctx context.Context, transcript string) (string, error)
}

// ClientResolver attributes a recording to a client, nil on miss.
type ClientResolver interface {
	Resolve(ctx context.Context, mc clients.MatchContext) (*models.Client, error)
}

// RollupRefresher rebuilds a client's cumulative summary.
type RollupRefresher interface {
	Refresh(ctx context.Context, clientID int64) (*models.Client, error)
}

// DocumentStore persists pages to the knowledge base.
type DocumentStore interface {
	FindClientPage(ctx context.Context, name string) (string, error)
	CreateClientPage(ctx context.Context, name, description string) (string, error)
	CreateMeetingPage(ctx context.Context, page notion.MeetingPage) (string, error)
	UpdateClientRollup(ctx context.Context, pageID, cumulativeSummary string, meetingCount int, lastMeetingAt *time.Time) error
}

// Ledger appends rows to the spreadsheet ledger.
type Ledger interface {
	AppendMeetingRow(ctx context.Context, row gsheets.MeetingRow) error
	AppendClientRow(ctx context.Context, clientName string, row gsheets.ClientRow) error
	UpsertClientSummary(ctx context.Context, clientName, cumulativeSummary string, meetingCount int, lastMeetingAt *time.Time) error
}

// Calendar links recordings back to their calendar events.
type Calendar interface {
	FindMeetingEvent(ctx context.Context, meetingID string, startTime time.Time, topic string) (*gcal.Event, error)
	AttachRecordingInfo(ctx context.Context, eventID string, info gcal.RecordingInfo) error
}

// Notifier announces pipeline outcomes. All sends are best-effort.
type Notifier interface {
	NotifyComplete(ctx context.Context, topic, videoURL, clientName, summary string) error
	NotifyError(ctx context.Context, topic, errorMessage string, recordingID int64) error
	NotifyNeedsIdentification(ctx context.Context, topic string, recordingID int64, suggestions []string) error
}

// Archiver stores raw media before local cleanup.
type Archiver interface {
	Archive(ctx context.Context, meetingUUID, mediaPath string) (string, error)
}

// Guard is the single-flight marker preventing duplicate processing.
type Guard interface {
	AcquireInflight(ctx context.Context, recordingID int64) (bool, error)
	ReleaseInflight(ctx context.Context, recordingID int64)
}

// StatusPublisher streams status transitions to live subscribers.
type StatusPublisher interface {
	PublishStatus(recordingID int64, status string)
}
