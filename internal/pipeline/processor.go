// Package pipeline runs recordings through download, publication,
// transcription, summarization, attribution and persistence.
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meetscribe/backend/internal/clients"
	"github.com/meetscribe/backend/internal/gcal"
	"github.com/meetscribe/backend/internal/gsheets"
	"github.com/meetscribe/backend/internal/models"
	"github.com/meetscribe/backend/internal/notion"
	"github.com/meetscribe/backend/pkg/retry"
)

// resolverExcerptLen is how much transcript the attribution tiers see.
const resolverExcerptLen = 2000

// Config holds processing behavior settings.
type Config struct {
	DownloadDir    string
	Language       string
	AutoDelete     bool
	ArchiveEnabled bool

	// DownloadRetry defaults to the standard external-call policy.
	DownloadRetry retry.Config
}

// Deps bundles the processor's collaborators. Calendar, Archiver, Events and
// Guard are optional; everything else is required.
type Deps struct {
	Store       RecordingStore
	ClientPages ClientPageStore
	Downloader  Downloader
	Publisher   Publisher
	Transcriber Transcriber
	Summarizer  Summarizer
	Resolver    ClientResolver
	Rollup      RollupRefresher
	Docs        DocumentStore
	Ledger      Ledger
	Calendar    Calendar
	Notifier    Notifier
	Archiver    Archiver
	Guard       Guard
	Events      StatusPublisher
}

// Processor executes the recording pipeline.
type Processor struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
}

// NewProcessor creates a pipeline processor.
func NewProcessor(cfg Config, deps Deps, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Language == "" {
		cfg.Language = "ja"
	}
	return &Processor{cfg: cfg, deps: deps, logger: logger}
}

// Process runs one recording through the full pipeline. A failure at any
// required stage marks the recording failed with a truncated error and bumps
// its retry counter; the media file never outlives the attempt.
func (p *Processor) Process(ctx context.Context, recordingID int64) error {
	if p.deps.Guard != nil {
		acquired, err := p.deps.Guard.AcquireInflight(ctx, recordingID)
		if err != nil {
			return fmt.Errorf("acquire inflight marker: %w", err)
		}
		if !acquired {
			p.logger.Info("recording already being processed, skipping",
				zap.Int64("recording_id", recordingID))
			return nil
		}
		defer p.deps.Guard.ReleaseInflight(context.WithoutCancel(ctx), recordingID)
	}

	rec, err := p.deps.Store.GetByID(ctx, recordingID)
	if err != nil {
		return fmt.Errorf("load recording %d: %w", recordingID, err)
	}
	if rec.Status == models.StatusCompleted {
		p.logger.Info("recording already completed, skipping", zap.Int64("recording_id", rec.ID))
		return nil
	}

	log := p.logger.With(zap.Int64("recording_id", rec.ID), zap.String("topic", rec.Topic))
	log.Info("processing started")

	mediaPath, err := p.run(ctx, rec, log)
	if err != nil {
		p.fail(ctx, rec, mediaPath, err, log)
		return err
	}
	return nil
}

// run executes the stages in order and returns the local media path (for the
// failure handler) alongside any stage error.
func (p *Processor) run(ctx context.Context, rec *models.Recording, log *zap.Logger) (string, error) {
	// Stage 1: download.
	if err := p.setStatus(ctx, rec, models.StatusDownloading); err != nil {
		return "", err
	}
	filename := fmt.Sprintf("%s.mp4", rec.MeetingUUID)
	var mediaPath string
	var size int64
	err := retry.Do(ctx, p.cfg.DownloadRetry, log, "download_recording", func(ctx context.Context) error {
		var dlErr error
		mediaPath, size, dlErr = p.deps.Downloader.DownloadRecording(ctx, rec.RecordingURL, p.cfg.DownloadDir, filename)
		return dlErr
	})
	if err != nil {
		return "", fmt.Errorf("download recording: %w", err)
	}
	log.Info("media downloaded", zap.String("path", mediaPath), zap.Int64("bytes", size))

	// Stage 2: publish the video. The URL is persisted immediately so a
	// later failure does not orphan the upload.
	if err := p.setStatus(ctx, rec, models.StatusUploading); err != nil {
		return mediaPath, err
	}
	description := fmt.Sprintf("ミーティング録画: %s\n開催日時: %s", rec.Topic, rec.StartTime.Format("2006-01-02 15:04"))
	videoURL, err := p.deps.Publisher.Upload(ctx, mediaPath, rec.Topic, description)
	if err != nil {
		return mediaPath, fmt.Errorf("upload video: %w", err)
	}
	if err := p.deps.Store.SetVideoURL(ctx, rec.ID, videoURL); err != nil {
		return mediaPath, fmt.Errorf("persist video url: %w", err)
	}
	rec.VideoURL = videoURL
	log.Info("video published", zap.String("video_url", videoURL))

	// Stage 3: transcribe.
	if err := p.setStatus(ctx, rec, models.StatusTranscribing); err != nil {
		return mediaPath, err
	}
	transcript, err := p.deps.Transcriber.Transcribe(ctx, mediaPath, p.cfg.Language)
	if err != nil {
		return mediaPath, fmt.Errorf("transcribe: %w", err)
	}
	if err := p.deps.Store.SetTranscript(ctx, rec.ID, transcript); err != nil {
		return mediaPath, fmt.Errorf("persist transcript: %w", err)
	}
	rec.Transcript = transcript

	// Stage 4: summarize. The three texts are generated concurrently and
	// persisted together so a partial set is never visible.
	if err := p.setStatus(ctx, rec, models.StatusSummarizing); err != nil {
		return mediaPath, err
	}
	var summary, decisions, actionItems string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		summary, err = p.deps.Summarizer.GenerateSummary(gctx, transcript)
		return err
	})
	g.Go(func() error {
		var err error
		decisions, err = p.deps.Summarizer.ExtractDecisions(gctx, transcript)
		return err
	})
	g.Go(func() error {
		var err error
		actionItems, err = p.deps.Summarizer.ExtractActionItems(gctx, transcript)
		return err
	})
	if err := g.Wait(); err != nil {
		return mediaPath, fmt.Errorf("generate summaries: %w", err)
	}
	if err := p.deps.Store.SetSummaries(ctx, rec.ID, summary, decisions, actionItems); err != nil {
		return mediaPath, fmt.Errorf("persist summaries: %w", err)
	}
	rec.Summary, rec.Decisions, rec.ActionItems = summary, decisions, actionItems

	// Stage 5: attribute. A miss is not a failure; the pipeline continues
	// unattributed and an operator is asked to identify the client.
	client, err := p.deps.Resolver.Resolve(ctx, clients.MatchContext{
		MeetingID:         rec.MeetingID,
		Topic:             rec.Topic,
		HostEmail:         rec.HostEmail,
		TranscriptExcerpt: excerpt(transcript, resolverExcerptLen),
	})
	if err != nil {
		return mediaPath, fmt.Errorf("resolve client: %w", err)
	}
	if client != nil {
		if err := p.deps.Store.SetClient(ctx, rec.ID, client.ID); err != nil {
			return mediaPath, fmt.Errorf("persist client link: %w", err)
		}
		rec.ClientID = &client.ID
		rec.ClientName = client.Name
		log.Info("client attributed", zap.String("client", client.Name))
	} else {
		if err := p.deps.Notifier.NotifyNeedsIdentification(ctx, rec.Topic, rec.ID, nil); err != nil {
			log.Warn("identification notification failed", zap.Error(err))
		}
	}

	// Stage 6: persist to the knowledge base and the ledger.
	if err := p.setStatus(ctx, rec, models.StatusSaving); err != nil {
		return mediaPath, err
	}
	if err := p.save(ctx, rec, client, log); err != nil {
		return mediaPath, err
	}

	// Stage 7: calendar sync, best-effort.
	p.syncCalendar(ctx, rec, log)

	// Stage 8: rollup for attributed recordings.
	if client != nil {
		if err := p.refreshRollup(ctx, client, log); err != nil {
			return mediaPath, err
		}
	}

	// Stage 9: notify, best-effort.
	if err := p.deps.Notifier.NotifyComplete(ctx, rec.Topic, rec.VideoURL, rec.ClientName, rec.Summary); err != nil {
		log.Warn("completion notification failed", zap.Error(err))
	}

	// Stage 10: complete and clean up.
	if err := p.deps.Store.MarkCompleted(ctx, rec.ID); err != nil {
		return mediaPath, fmt.Errorf("mark completed: %w", err)
	}
	p.publishStatus(rec.ID, models.StatusCompleted)
	p.archiveAndCleanup(ctx, rec, mediaPath, log)
	log.Info("processing completed")
	return "", nil
}

// save writes the meeting page, master row and per-client row.
func (p *Processor) save(ctx context.Context, rec *models.Recording, client *models.Client, log *zap.Logger) error {
	clientPageID := ""
	if client != nil {
		clientPageID = client.NotionPageID
		if clientPageID == "" {
			existing, err := p.deps.Docs.FindClientPage(ctx, client.Name)
			if err != nil {
				return fmt.Errorf("find client page: %w", err)
			}
			clientPageID = existing
			if clientPageID == "" {
				created, err := p.deps.Docs.CreateClientPage(ctx, client.Name, client.Description)
				if err != nil {
					return fmt.Errorf("create client page: %w", err)
				}
				clientPageID = created
			}
			if err := p.deps.ClientPages.SetNotionPage(ctx, client.ID, clientPageID); err != nil {
				return fmt.Errorf("persist client page id: %w", err)
			}
			client.NotionPageID = clientPageID
		}
	}

	pageID, err := p.deps.Docs.CreateMeetingPage(ctx, notion.MeetingPage{
		Title:        rec.Topic,
		StartTime:    rec.StartTime,
		VideoURL:     rec.VideoURL,
		RecordingURL: rec.RecordingURL,
		Transcript:   rec.Transcript,
		Summary:      rec.Summary,
		Decisions:    rec.Decisions,
		ActionItems:  rec.ActionItems,
		ClientPageID: clientPageID,
	})
	if err != nil {
		return fmt.Errorf("create meeting page: %w", err)
	}
	if err := p.deps.Store.SetNotionPage(ctx, rec.ID, pageID); err != nil {
		return fmt.Errorf("persist meeting page id: %w", err)
	}
	rec.NotionPageID = pageID

	if err := p.deps.Ledger.AppendMeetingRow(ctx, gsheets.MeetingRow{
		StartTime:       rec.StartTime,
		MeetingID:       rec.MeetingID,
		Topic:           rec.Topic,
		DurationMinutes: rec.DurationMinutes,
		ClientName:      rec.ClientName,
		VideoURL:        rec.VideoURL,
		RecordingURL:    rec.RecordingURL,
		Summary:         rec.Summary,
		Decisions:       rec.Decisions,
		ActionItems:     rec.ActionItems,
	}); err != nil {
		return fmt.Errorf("append master row: %w", err)
	}

	if client != nil {
		if err := p.deps.Ledger.AppendClientRow(ctx, client.Name, gsheets.ClientRow{
			StartTime:   rec.StartTime,
			Topic:       rec.Topic,
			VideoURL:    rec.VideoURL,
			Summary:     rec.Summary,
			Decisions:   rec.Decisions,
			ActionItems: rec.ActionItems,
		}); err != nil {
			return fmt.Errorf("append client row: %w", err)
		}
	}
	log.Info("meeting persisted", zap.String("page_id", pageID))
	return nil
}

// syncCalendar links the recording to its calendar event. Failures are
// logged, never fatal: the calendar is a convenience surface.
func (p *Processor) syncCalendar(ctx context.Context, rec *models.Recording, log *zap.Logger) {
	if p.deps.Calendar == nil {
		return
	}
	event, err := p.deps.Calendar.FindMeetingEvent(ctx, rec.MeetingID, rec.StartTime, rec.Topic)
	if err != nil {
		log.Warn("calendar lookup failed", zap.Error(err))
		return
	}
	if event == nil {
		log.Info("no matching calendar event")
		return
	}
	if err := p.deps.Calendar.AttachRecordingInfo(ctx, event.ID, gcal.RecordingInfo{
		VideoURL:     rec.VideoURL,
		RecordingURL: rec.RecordingURL,
		Summary:      rec.Summary,
	}); err != nil {
		log.Warn("calendar update failed", zap.String("event_id", event.ID), zap.Error(err))
		return
	}
	if err := p.deps.Store.SetCalendarEvent(ctx, rec.ID, event.ID); err != nil {
		log.Warn("persist calendar event id failed", zap.Error(err))
		return
	}
	rec.CalendarEventID = event.ID
	log.Info("calendar event linked", zap.String("event_id", event.ID))
}

// refreshRollup rebuilds the client's cumulative summary and pushes it to the
// knowledge base and the ledger.
func (p *Processor) refreshRollup(ctx context.Context, client *models.Client, log *zap.Logger) error {
	updated, err := p.deps.Rollup.Refresh(ctx, client.ID)
	if err != nil {
		return fmt.Errorf("refresh rollup: %w", err)
	}
	if updated.CumulativeSummary == "" {
		return nil
	}
	if updated.NotionPageID != "" {
		if err := p.deps.Docs.UpdateClientRollup(ctx, updated.NotionPageID, updated.CumulativeSummary, updated.MeetingCount, updated.LastMeetingAt); err != nil {
			return fmt.Errorf("push rollup to knowledge base: %w", err)
		}
	}
	if err := p.deps.Ledger.UpsertClientSummary(ctx, updated.Name, updated.CumulativeSummary, updated.MeetingCount, updated.LastMeetingAt); err != nil {
		return fmt.Errorf("push rollup to ledger: %w", err)
	}
	log.Info("rollup refreshed", zap.String("client", updated.Name), zap.Int("meeting_count", updated.MeetingCount))
	return nil
}

// archiveAndCleanup optionally copies the raw media to cold storage, then
// removes the local file when auto-delete is on.
func (p *Processor) archiveAndCleanup(ctx context.Context, rec *models.Recording, mediaPath string, log *zap.Logger) {
	if mediaPath == "" {
		return
	}
	if p.cfg.ArchiveEnabled && p.deps.Archiver != nil {
		if key, err := p.deps.Archiver.Archive(ctx, rec.MeetingUUID, mediaPath); err != nil {
			log.Warn("media archive failed", zap.Error(err))
		} else {
			log.Info("media archived", zap.String("key", key))
		}
	}
	if p.cfg.AutoDelete {
		p.deps.Downloader.Cleanup(mediaPath)
	}
}

// fail records the failure and cleans up the attempt's media.
func (p *Processor) fail(ctx context.Context, rec *models.Recording, mediaPath string, cause error, log *zap.Logger) {
	log.Error("processing failed", zap.Error(cause))
	ctx = context.WithoutCancel(ctx)
	if err := p.deps.Store.MarkFailed(ctx, rec.ID, cause.Error()); err != nil {
		log.Error("mark failed errored", zap.Error(err))
	}
	p.publishStatus(rec.ID, models.StatusFailed)
	if err := p.deps.Notifier.NotifyError(ctx, rec.Topic, cause.Error(), rec.ID); err != nil {
		log.Warn("error notification failed", zap.Error(err))
	}
	if mediaPath != "" {
		p.deps.Downloader.Cleanup(mediaPath)
	}
}

func (p *Processor) setStatus(ctx context.Context, rec *models.Recording, status string) error {
	if err := p.deps.Store.UpdateStatus(ctx, rec.ID, status); err != nil {
		return fmt.Errorf("update status to %s: %w", status, err)
	}
	rec.Status = status
	p.publishStatus(rec.ID, status)
	return nil
}

func (p *Processor) publishStatus(recordingID int64, status string) {
	if p.deps.Events != nil {
		p.deps.Events.PublishStatus(recordingID, status)
	}
}

func excerpt(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
