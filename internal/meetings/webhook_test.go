package meetings

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meetscribe/backend/internal/models"
	"github.com/meetscribe/backend/pkg/queue"
)

const testSecret = "test-webhook-secret"

func signBody(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "v0:%d:%s", ts, body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func fixedValidator(secret string, now time.Time) *SignatureValidator {
	v := NewSignatureValidator(secret)
	v.now = func() time.Time { return now }
	return v
}

func TestSignatureValidatorAcceptsValid(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := fixedValidator(testSecret, now)
	body := []byte(`{"event":"recording.completed"}`)
	sig := signBody(testSecret, now.Unix(), body)

	err := v.Validate(body, sig, strconv.FormatInt(now.Unix(), 10))
	assert.NoError(t, err)
}

func TestSignatureValidatorRejectsWrongSecret(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := fixedValidator(testSecret, now)
	body := []byte(`{"event":"recording.completed"}`)
	sig := signBody("other-secret", now.Unix(), body)

	err := v.Validate(body, sig, strconv.FormatInt(now.Unix(), 10))
	assert.Error(t, err)
}

func TestSignatureValidatorRejectsTamperedBody(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := fixedValidator(testSecret, now)
	sig := signBody(testSecret, now.Unix(), []byte(`{"event":"a"}`))

	err := v.Validate([]byte(`{"event":"b"}`), sig, strconv.FormatInt(now.Unix(), 10))
	assert.Error(t, err)
}

func TestSignatureValidatorRejectsStaleTimestamp(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := fixedValidator(testSecret, now)
	body := []byte(`{}`)
	stale := now.Add(-10 * time.Minute).Unix()
	sig := signBody(testSecret, stale, body)

	err := v.Validate(body, sig, strconv.FormatInt(stale, 10))
	assert.Error(t, err)
}

func TestSignatureValidatorRejectsMissingHeaders(t *testing.T) {
	v := NewSignatureValidator(testSecret)
	assert.Error(t, v.Validate([]byte(`{}`), "", ""))
}

func TestWebhookURLValidationChallenge(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Unix(1700000000, 0)
	v := fixedValidator(testSecret, now)
	h := NewWebhookHandler(nil, nil, v, zap.NewNop())

	body := []byte(`{"event":"endpoint.url_validation","payload":{"plainToken":"abc123"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/zoom", bytes.NewReader(body))
	req.Header.Set("x-zm-signature", signBody(testSecret, now.Unix(), body))
	req.Header.Set("x-zm-request-timestamp", strconv.FormatInt(now.Unix(), 10))
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	h.Handle(c)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		PlainToken     string `json:"plainToken"`
		EncryptedToken string `json:"encryptedToken"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "abc123", resp.PlainToken)

	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte("abc123"))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), resp.EncryptedToken)
}

func TestWebhookRejectsUnsignedRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewWebhookHandler(nil, nil, NewSignatureValidator(testSecret), zap.NewNop())

	body := []byte(`{"event":"recording.completed"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/zoom", bytes.NewReader(body))
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	h.Handle(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookIgnoresUnknownEvent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Unix(1700000000, 0)
	v := fixedValidator(testSecret, now)
	h := NewWebhookHandler(nil, nil, v, zap.NewNop())

	body := []byte(`{"event":"meeting.started","payload":{}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/zoom", bytes.NewReader(body))
	req.Header.Set("x-zm-signature", signBody(testSecret, now.Unix(), body))
	req.Header.Set("x-zm-request-timestamp", strconv.FormatInt(now.Unix(), 10))
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	h.Handle(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookSkipsEventWithoutVideoFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Unix(1700000000, 0)
	v := fixedValidator(testSecret, now)
	h := NewWebhookHandler(nil, nil, v, zap.NewNop())

	body := []byte(`{"event":"recording.completed","payload":{"object":{"uuid":"u1","topic":"t","recording_files":[{"file_type":"M4A"}]}}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/zoom", bytes.NewReader(body))
	req.Header.Set("x-zm-signature", signBody(testSecret, now.Unix(), body))
	req.Header.Set("x-zm-request-timestamp", strconv.FormatInt(now.Unix(), 10))
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	h.Handle(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "no video file")
}

type fakeCreator struct {
	created bool
	status  string
	id      int64
}

func (f *fakeCreator) CreateFromWebhook(ctx context.Context, rec *models.Recording) (bool, error) {
	rec.ID = f.id
	rec.Status = f.status
	return f.created, nil
}

type fakeJobs struct {
	enqueued []int64
	err      error
}

func (f *fakeJobs) EnqueueProcessRecording(ctx context.Context, payload queue.ProcessRecordingPayload) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, payload.RecordingID)
	return nil
}

func postRecordingCompleted(t *testing.T, h *WebhookHandler, now time.Time) *httptest.ResponseRecorder {
	t.Helper()
	body := []byte(`{"event":"recording.completed","payload":{"object":{"id":91,"uuid":"u1","topic":"t","recording_files":[{"file_type":"MP4","download_url":"https://zoom.example/dl"}]}}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/zoom", bytes.NewReader(body))
	req.Header.Set("x-zm-signature", signBody(testSecret, now.Unix(), body))
	req.Header.Set("x-zm-request-timestamp", strconv.FormatInt(now.Unix(), 10))
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	h.Handle(c)
	return w
}

func TestWebhookAcceptsAndEnqueues(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Unix(1700000000, 0)
	jobs := &fakeJobs{}
	h := NewWebhookHandler(&fakeCreator{created: true, status: models.StatusPending, id: 11}, jobs, fixedValidator(testSecret, now), zap.NewNop())

	w := postRecordingCompleted(t, h, now)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int64{11}, jobs.enqueued)
}

func TestWebhookEnqueueFailureReturns500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Unix(1700000000, 0)
	jobs := &fakeJobs{err: errors.New("redis down")}
	h := NewWebhookHandler(&fakeCreator{created: true, status: models.StatusPending, id: 12}, jobs, fixedValidator(testSecret, now), zap.NewNop())

	w := postRecordingCompleted(t, h, now)

	// 500 makes the provider redeliver; the pending row picks the job up then.
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestWebhookRedeliveryRequeuesPendingRow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Unix(1700000000, 0)
	jobs := &fakeJobs{}
	h := NewWebhookHandler(&fakeCreator{created: false, status: models.StatusPending, id: 13}, jobs, fixedValidator(testSecret, now), zap.NewNop())

	w := postRecordingCompleted(t, h, now)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "requeued")
	assert.Equal(t, []int64{13}, jobs.enqueued)
}

func TestWebhookRedeliveryIgnoresRowInFlight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Unix(1700000000, 0)
	jobs := &fakeJobs{}
	h := NewWebhookHandler(&fakeCreator{created: false, status: models.StatusTranscribing, id: 14}, jobs, fixedValidator(testSecret, now), zap.NewNop())

	w := postRecordingCompleted(t, h, now)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "duplicate")
	assert.Empty(t, jobs.enqueued)
}
