package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetscribe/backend/internal/clients"
	"github.com/meetscribe/backend/internal/gcal"
	"github.com/meetscribe/backend/internal/gsheets"
	"github.com/meetscribe/backend/internal/models"
	"github.com/meetscribe/backend/internal/notion"
	"github.com/meetscribe/backend/pkg/retry"
)

type fakeStore struct {
	rec *models.Recording

	statuses    []string
	videoURL    string
	transcript  string
	summary     string
	decisions   string
	actionItems string
	clientID    int64
	pageID      string
	eventID     string
	completed   bool
	failedMsg   string
}

func (s *fakeStore) GetByID(ctx context.Context, id int64) (*models.Recording, error) {
	cp := *s.rec
	return &cp, nil
}
func (s *fakeStore) UpdateStatus(ctx context.Context, id int64, status string) error {
	s.statuses = append(s.statuses, status)
	return nil
}
func (s *fakeStore) SetVideoURL(ctx context.Context, id int64, url string) error {
	s.videoURL = url
	return nil
}
func (s *fakeStore) SetTranscript(ctx context.Context, id int64, transcript string) error {
	s.transcript = transcript
	return nil
}
func (s *fakeStore) SetSummaries(ctx context.Context, id int64, summary, decisions, actionItems string) error {
	s.summary, s.decisions, s.actionItems = summary, decisions, actionItems
	return nil
}
func (s *fakeStore) SetClient(ctx context.Context, id, clientID int64) error {
	s.clientID = clientID
	return nil
}
func (s *fakeStore) SetNotionPage(ctx context.Context, id int64, pageID string) error {
	s.pageID = pageID
	return nil
}
func (s *fakeStore) SetCalendarEvent(ctx context.Context, id int64, eventID string) error {
	s.eventID = eventID
	return nil
}
func (s *fakeStore) MarkCompleted(ctx context.Context, id int64) error {
	s.completed = true
	return nil
}
func (s *fakeStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	s.failedMsg = errMsg
	return nil
}

type fakeClientPages struct{ pageID string }

func (f *fakeClientPages) SetNotionPage(ctx context.Context, id int64, pageID string) error {
	f.pageID = pageID
	return nil
}

type fakeDownloader struct {
	path    string
	err     error
	cleaned []string
}

func (f *fakeDownloader) DownloadRecording(ctx context.Context, url, dir, name string) (string, int64, error) {
	if f.err != nil {
		return "", 0, f.err
	}
	return f.path, 1024, nil
}
func (f *fakeDownloader) Cleanup(path string) { f.cleaned = append(f.cleaned, path) }

type fakePublisher struct {
	url string
	err error
}

func (f *fakePublisher) Upload(ctx context.Context, path, title, desc string) (string, error) {
	return f.url, f.err
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, path, lang string) (string, error) {
	return f.text, f.err
}

type fakeSummarizer struct{ summaryErr error }

func (f *fakeSummarizer) GenerateSummary(ctx context.Context, transcript string) (string, error) {
	return "要約", f.summaryErr
}
func (f *fakeSummarizer) ExtractDecisions(ctx context.Context, transcript string) (string, error) {
	return "決定事項", nil
}
func (f *fakeSummarizer) ExtractActionItems(ctx context.Context, transcript string) (string, error) {
	return "アクション", nil
}

type fakeResolver struct {
	client *models.Client
	gotMC  clients.MatchContext
}

func (f *fakeResolver) Resolve(ctx context.Context, mc clients.MatchContext) (*models.Client, error) {
	f.gotMC = mc
	return f.client, nil
}

type fakeRollup struct {
	updated *models.Client
	calls   int
}

func (f *fakeRollup) Refresh(ctx context.Context, clientID int64) (*models.Client, error) {
	f.calls++
	return f.updated, nil
}

type fakeDocs struct {
	meetingPage   notion.MeetingPage
	clientCreated string
	rollupPageID  string
}

func (f *fakeDocs) FindClientPage(ctx context.Context, name string) (string, error) { return "", nil }
func (f *fakeDocs) CreateClientPage(ctx context.Context, name, desc string) (string, error) {
	f.clientCreated = name
	return "client-page-1", nil
}
func (f *fakeDocs) CreateMeetingPage(ctx context.Context, page notion.MeetingPage) (string, error) {
	f.meetingPage = page
	return "meeting-page-1", nil
}
func (f *fakeDocs) UpdateClientRollup(ctx context.Context, pageID, summary string, count int, last *time.Time) error {
	f.rollupPageID = pageID
	return nil
}

type fakeLedger struct {
	meetingRows []gsheets.MeetingRow
	clientRows  []string
	upserts     []string
}

func (f *fakeLedger) AppendMeetingRow(ctx context.Context, row gsheets.MeetingRow) error {
	f.meetingRows = append(f.meetingRows, row)
	return nil
}
func (f *fakeLedger) AppendClientRow(ctx context.Context, name string, row gsheets.ClientRow) error {
	f.clientRows = append(f.clientRows, name)
	return nil
}
func (f *fakeLedger) UpsertClientSummary(ctx context.Context, name, summary string, count int, last *time.Time) error {
	f.upserts = append(f.upserts, name)
	return nil
}

type fakeCalendar struct {
	event    *gcal.Event
	attached string
}

func (f *fakeCalendar) FindMeetingEvent(ctx context.Context, meetingID string, start time.Time, topic string) (*gcal.Event, error) {
	return f.event, nil
}
func (f *fakeCalendar) AttachRecordingInfo(ctx context.Context, eventID string, info gcal.RecordingInfo) error {
	f.attached = eventID
	return nil
}

type fakeNotifier struct {
	completes  int
	errors     int
	identifies int
}

func (f *fakeNotifier) NotifyComplete(ctx context.Context, topic, url, client, summary string) error {
	f.completes++
	return nil
}
func (f *fakeNotifier) NotifyError(ctx context.Context, topic, msg string, id int64) error {
	f.errors++
	return nil
}
func (f *fakeNotifier) NotifyNeedsIdentification(ctx context.Context, topic string, id int64, suggestions []string) error {
	f.identifies++
	return nil
}

type fakeGuard struct {
	acquired bool
	released bool
}

func (f *fakeGuard) AcquireInflight(ctx context.Context, id int64) (bool, error) {
	return f.acquired, nil
}
func (f *fakeGuard) ReleaseInflight(ctx context.Context, id int64) { f.released = true }

type env struct {
	store    *fakeStore
	pages    *fakeClientPages
	dl       *fakeDownloader
	pub      *fakePublisher
	tr       *fakeTranscriber
	sum      *fakeSummarizer
	resolver *fakeResolver
	rollup   *fakeRollup
	docs     *fakeDocs
	ledger   *fakeLedger
	cal      *fakeCalendar
	notifier *fakeNotifier
	guard    *fakeGuard
}

func newEnv() *env {
	return &env{
		store: &fakeStore{rec: &models.Recording{
			ID:          1,
			MeetingID:   "555",
			MeetingUUID: "uuid-1",
			Topic:       "【Acme株式会社】定例",
			StartTime:   time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
			Status:      models.StatusPending,
		}},
		pages:    &fakeClientPages{},
		dl:       &fakeDownloader{path: "/tmp/uuid-1.mp4"},
		pub:      &fakePublisher{url: "https://youtube.example/watch?v=abc"},
		tr:       &fakeTranscriber{text: "文字起こし本文"},
		sum:      &fakeSummarizer{},
		resolver: &fakeResolver{},
		rollup:   &fakeRollup{updated: &models.Client{ID: 7, Name: "Acme株式会社", CumulativeSummary: "累積", MeetingCount: 3, NotionPageID: "client-page-1"}},
		docs:     &fakeDocs{},
		ledger:   &fakeLedger{},
		cal:      &fakeCalendar{},
		notifier: &fakeNotifier{},
		guard:    &fakeGuard{acquired: true},
	}
}

func (e *env) processor(cfg Config) *Processor {
	return NewProcessor(cfg, Deps{
		Store:       e.store,
		ClientPages: e.pages,
		Downloader:  e.dl,
		Publisher:   e.pub,
		Transcriber: e.tr,
		Summarizer:  e.sum,
		Resolver:    e.resolver,
		Rollup:      e.rollup,
		Docs:        e.docs,
		Ledger:      e.ledger,
		Calendar:    e.cal,
		Notifier:    e.notifier,
		Guard:       e.guard,
	}, nil)
}

func TestProcessCompletesAttributedRecording(t *testing.T) {
	e := newEnv()
	e.resolver.client = &models.Client{ID: 7, Name: "Acme株式会社"}
	e.cal.event = &gcal.Event{ID: "ev-1"}
	p := e.processor(Config{AutoDelete: true})

	err := p.Process(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, []string{
		models.StatusDownloading,
		models.StatusUploading,
		models.StatusTranscribing,
		models.StatusSummarizing,
		models.StatusSaving,
	}, e.store.statuses)
	assert.True(t, e.store.completed)
	assert.Empty(t, e.store.failedMsg)

	assert.Equal(t, "https://youtube.example/watch?v=abc", e.store.videoURL)
	assert.Equal(t, "文字起こし本文", e.store.transcript)
	assert.Equal(t, "要約", e.store.summary)
	assert.Equal(t, int64(7), e.store.clientID)
	assert.Equal(t, "meeting-page-1", e.store.pageID)
	assert.Equal(t, "ev-1", e.store.eventID)

	// client page created and learned
	assert.Equal(t, "Acme株式会社", e.docs.clientCreated)
	assert.Equal(t, "client-page-1", e.pages.pageID)

	// ledger rows: master + client + rollup upsert
	require.Len(t, e.ledger.meetingRows, 1)
	assert.Equal(t, "Acme株式会社", e.ledger.meetingRows[0].ClientName)
	assert.Equal(t, []string{"Acme株式会社"}, e.ledger.clientRows)
	assert.Equal(t, []string{"Acme株式会社"}, e.ledger.upserts)
	assert.Equal(t, 1, e.rollup.calls)
	assert.Equal(t, "client-page-1", e.docs.rollupPageID)

	assert.Equal(t, 1, e.notifier.completes)
	assert.Equal(t, 0, e.notifier.identifies)
	assert.Equal(t, []string{"/tmp/uuid-1.mp4"}, e.dl.cleaned)
	assert.True(t, e.guard.released)
}

func TestProcessTranscribeFailureKeepsVideoURL(t *testing.T) {
	e := newEnv()
	e.tr.err = errors.New("whisper unavailable")
	p := e.processor(Config{AutoDelete: true})

	err := p.Process(context.Background(), 1)
	require.Error(t, err)

	// the published URL survives the failure, the transcript does not exist
	assert.Equal(t, "https://youtube.example/watch?v=abc", e.store.videoURL)
	assert.Empty(t, e.store.transcript)
	assert.Empty(t, e.store.summary)

	assert.False(t, e.store.completed)
	assert.Contains(t, e.store.failedMsg, "whisper unavailable")
	assert.Equal(t, 1, e.notifier.errors)
	assert.Equal(t, []string{"/tmp/uuid-1.mp4"}, e.dl.cleaned)

	assert.Equal(t, models.StatusTranscribing, e.store.statuses[len(e.store.statuses)-1])
}

func TestProcessAttributionMissContinues(t *testing.T) {
	e := newEnv()
	e.resolver.client = nil
	p := e.processor(Config{})

	err := p.Process(context.Background(), 1)
	require.NoError(t, err)

	assert.True(t, e.store.completed)
	assert.Equal(t, 1, e.notifier.identifies)
	assert.Zero(t, e.store.clientID)
	assert.Empty(t, e.ledger.clientRows, "no client sheet row without attribution")
	assert.Zero(t, e.rollup.calls)
	require.Len(t, e.ledger.meetingRows, 1)
	assert.Empty(t, e.ledger.meetingRows[0].ClientName)
}

func TestProcessResolverGetsTranscriptExcerpt(t *testing.T) {
	e := newEnv()
	p := e.processor(Config{})

	require.NoError(t, p.Process(context.Background(), 1))
	assert.Equal(t, "555", e.resolver.gotMC.MeetingID)
	assert.Equal(t, "文字起こし本文", e.resolver.gotMC.TranscriptExcerpt)
}

func TestProcessSkipsWhenInflight(t *testing.T) {
	e := newEnv()
	e.guard.acquired = false
	p := e.processor(Config{})

	err := p.Process(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, e.store.statuses)
	assert.False(t, e.store.completed)
	assert.False(t, e.guard.released)
}

func TestProcessSkipsCompletedRecording(t *testing.T) {
	e := newEnv()
	e.store.rec.Status = models.StatusCompleted
	p := e.processor(Config{})

	err := p.Process(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, e.store.statuses)
}

func TestProcessDownloadFailureMarksFailed(t *testing.T) {
	e := newEnv()
	e.dl.err = errors.New("download expired")
	p := e.processor(Config{DownloadRetry: retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2.0}})

	err := p.Process(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, e.store.failedMsg, "download expired")
	assert.Empty(t, e.store.videoURL)
	assert.Empty(t, e.dl.cleaned, "nothing to clean before a file exists")
}
