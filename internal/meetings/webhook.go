package meetings

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/meetscribe/backend/internal/models"
	"github.com/meetscribe/backend/pkg/queue"
	"github.com/meetscribe/backend/pkg/response"
)

const (
	// EventRecordingCompleted signals a meeting's cloud recording is ready.
	EventRecordingCompleted = "recording.completed"
	// EventURLValidation is the provider's endpoint ownership challenge.
	EventURLValidation = "endpoint.url_validation"

	signatureHeader = "x-zm-signature"
	timestampHeader = "x-zm-request-timestamp"

	// replayWindow rejects webhooks whose timestamp drifted too far.
	replayWindow = 300 * time.Second
)

// SignatureValidator verifies the provider's v0 HMAC webhook signature.
type SignatureValidator struct {
	secret string
	now    func() time.Time
}

// NewSignatureValidator creates a validator for the shared webhook secret.
func NewSignatureValidator(secret string) *SignatureValidator {
	return &SignatureValidator{secret: secret, now: time.Now}
}

// Validate checks the v0 signature over "v0:{timestamp}:{body}" and rejects
// requests outside the replay window.
func (v *SignatureValidator) Validate(body []byte, signature, timestamp string) error {
	if v.secret == "" {
		return fmt.Errorf("webhook secret not configured")
	}
	if signature == "" || timestamp == "" {
		return fmt.Errorf("missing signature headers")
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}
	drift := v.now().Sub(time.Unix(ts, 0))
	if drift > replayWindow || drift < -replayWindow {
		return fmt.Errorf("timestamp outside replay window")
	}
	expected := "v0=" + v.sign(fmt.Sprintf("v0:%s:%s", timestamp, body))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

// EncryptToken answers the url_validation challenge: HMAC of the plain token.
func (v *SignatureValidator) EncryptToken(plainToken string) string {
	return v.sign(plainToken)
}

func (v *SignatureValidator) sign(message string) string {
	mac := hmac.New(sha256.New, []byte(v.secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// RecordingCreator inserts a recording, reporting whether it already existed.
type RecordingCreator interface {
	CreateFromWebhook(ctx context.Context, rec *models.Recording) (created bool, err error)
}

// JobEnqueuer hands accepted recordings to the worker pool.
type JobEnqueuer interface {
	EnqueueProcessRecording(ctx context.Context, payload queue.ProcessRecordingPayload) error
}

// WebhookHandler accepts provider webhooks and enqueues processing jobs.
type WebhookHandler struct {
	repo      RecordingCreator
	jobs      JobEnqueuer
	validator *SignatureValidator
	logger    *zap.Logger
}

// NewWebhookHandler creates the webhook endpoint handler.
func NewWebhookHandler(repo RecordingCreator, jobs JobEnqueuer, validator *SignatureValidator, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{repo: repo, jobs: jobs, validator: validator, logger: logger}
}

// Handle processes POST /webhook/zoom. Verification failures return 401; a
// verified event is acknowledged 200 before any heavy work runs.
func (h *WebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		response.BadRequest(c, "read body")
		return
	}

	if err := h.validator.Validate(body, c.GetHeader(signatureHeader), c.GetHeader(timestampHeader)); err != nil {
		h.logger.Warn("webhook signature rejected", zap.Error(err))
		response.Unauthorized(c, "invalid signature")
		return
	}

	var event models.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		response.BadRequest(c, "invalid payload")
		return
	}

	switch event.Event {
	case EventURLValidation:
		c.JSON(http.StatusOK, gin.H{
			"plainToken":     event.Payload.PlainToken,
			"encryptedToken": h.validator.EncryptToken(event.Payload.PlainToken),
		})
	case EventRecordingCompleted:
		h.handleRecordingCompleted(c, &event.Payload.Object)
	default:
		// Unknown event types are acknowledged so the provider stops retrying.
		response.OK(c, gin.H{"ignored": event.Event})
	}
}

func (h *WebhookHandler) handleRecordingCompleted(c *gin.Context, meeting *models.WebhookMeeting) {
	video := meeting.VideoFile()
	if video == nil {
		h.logger.Info("recording.completed without MP4 file, skipping",
			zap.String("meeting_uuid", meeting.UUID),
			zap.String("topic", meeting.Topic),
		)
		response.OK(c, gin.H{"skipped": "no video file"})
		return
	}

	rec := &models.Recording{
		MeetingID:       strconv.FormatInt(meeting.ID, 10),
		MeetingUUID:     meeting.UUID,
		Topic:           meeting.Topic,
		StartTime:       meeting.StartTime,
		DurationMinutes: meeting.Duration,
		HostEmail:       meeting.HostEmail,
		RecordingURL:    video.DownloadURL,
		RecordingType:   video.FileType,
	}

	created, err := h.repo.CreateFromWebhook(c.Request.Context(), rec)
	if err != nil {
		h.logger.Error("create recording from webhook", zap.Error(err))
		response.Internal(c, "persist recording")
		return
	}
	if !created {
		// A redelivery after a failed enqueue finds the row still pending with
		// no job behind it; enqueue again. The in-flight guard absorbs the
		// rare double job. Any other status means the pipeline owns the row.
		if rec.Status == models.StatusPending {
			if err := h.jobs.EnqueueProcessRecording(c.Request.Context(), queue.ProcessRecordingPayload{RecordingID: rec.ID}); err != nil {
				h.logger.Error("enqueue processing job", zap.Int64("recording_id", rec.ID), zap.Error(err))
				response.Internal(c, "enqueue job")
				return
			}
			h.logger.Info("pending recording re-enqueued on redelivery",
				zap.String("meeting_uuid", meeting.UUID),
				zap.Int64("recording_id", rec.ID),
			)
			response.OK(c, gin.H{"duplicate": true, "requeued": true, "recording_id": rec.ID})
			return
		}
		h.logger.Info("duplicate recording.completed delivery",
			zap.String("meeting_uuid", meeting.UUID),
			zap.Int64("recording_id", rec.ID),
		)
		response.OK(c, gin.H{"duplicate": true, "recording_id": rec.ID})
		return
	}

	if err := h.jobs.EnqueueProcessRecording(c.Request.Context(), queue.ProcessRecordingPayload{RecordingID: rec.ID}); err != nil {
		h.logger.Error("enqueue processing job", zap.Int64("recording_id", rec.ID), zap.Error(err))
		// The row exists in pending state; the sweep will not pick it up, so
		// surface the failure for the provider to redeliver.
		response.Internal(c, "enqueue job")
		return
	}

	h.logger.Info("recording accepted",
		zap.Int64("recording_id", rec.ID),
		zap.String("meeting_uuid", meeting.UUID),
		zap.String("topic", meeting.Topic),
	)
	response.OK(c, gin.H{"recording_id": rec.ID})
}
