// Package youtube uploads processed recordings as unlisted videos.
package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultTokenURL  = "https://oauth2.googleapis.com/token"
	defaultUploadURL = "https://www.googleapis.com/upload/youtube/v3/videos"
	watchURLFormat   = "https://www.youtube.com/watch?v=%s"

	// API field limits.
	maxTitleLen       = 100
	maxDescriptionLen = 5000

	uploadTimeout     = 30 * time.Minute
	tokenExpiryBuffer = 5 * time.Minute
)

// Config holds OAuth refresh-token credentials for the channel.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	CategoryID   string
}

// Client uploads videos via the Data API's resumable protocol.
type Client struct {
	cfg        Config
	tokenURL   string
	uploadURL  string
	httpClient *http.Client
	uploader   *http.Client
	logger     *zap.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewClient creates a video upload client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CategoryID == "" {
		cfg.CategoryID = "22"
	}
	return &Client{
		cfg:        cfg,
		tokenURL:   defaultTokenURL,
		uploadURL:  defaultUploadURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		uploader:   &http.Client{Timeout: uploadTimeout},
		logger:     logger,
	}
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Add(tokenExpiryBuffer).Before(c.expiresAt) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("refresh_token", c.cfg.RefreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		Error       string `json:"error"`
		ErrorDesc   string `json:"error_description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("parse token response: %w", err)
	}
	if body.Error != "" {
		return "", fmt.Errorf("token refresh failed: %s: %s", body.Error, body.ErrorDesc)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token refresh returned HTTP %d", resp.StatusCode)
	}

	c.token = body.AccessToken
	c.expiresAt = time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	return c.token, nil
}

type videoMetadata struct {
	Snippet struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		CategoryID  string `json:"categoryId"`
	} `json:"snippet"`
	Status struct {
		PrivacyStatus           string `json:"privacyStatus"`
		SelfDeclaredMadeForKids bool   `json:"selfDeclaredMadeForKids"`
	} `json:"status"`
}

type videoResource struct {
	ID    string `json:"id"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Upload performs a resumable upload of the media file as an unlisted video
// and returns the public watch URL.
func (c *Client) Upload(ctx context.Context, mediaPath, title, description string) (string, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return "", err
	}

	sessionURL, err := c.startSession(ctx, token, title, description)
	if err != nil {
		return "", err
	}

	file, err := os.Open(mediaPath)
	if err != nil {
		return "", fmt.Errorf("open media file: %w", err)
	}
	defer file.Close()
	stat, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("stat media file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, sessionURL, file)
	if err != nil {
		return "", fmt.Errorf("create upload request: %w", err)
	}
	req.ContentLength = stat.Size()
	req.Header.Set("Content-Type", "video/mp4")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.uploader.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}
	defer resp.Body.Close()

	var video videoResource
	if err := json.NewDecoder(resp.Body).Decode(&video); err != nil {
		return "", fmt.Errorf("parse upload response: %w", err)
	}
	if video.Error != nil {
		return "", fmt.Errorf("upload failed: %s", video.Error.Message)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("upload returned HTTP %d", resp.StatusCode)
	}
	if video.ID == "" {
		return "", fmt.Errorf("upload response missing video id")
	}

	watchURL := fmt.Sprintf(watchURLFormat, video.ID)
	c.logger.Info("video uploaded",
		zap.String("video_id", video.ID),
		zap.Int64("bytes", stat.Size()),
	)
	return watchURL, nil
}

// startSession opens a resumable upload session and returns its URL.
func (c *Client) startSession(ctx context.Context, token, title, description string) (string, error) {
	var meta videoMetadata
	meta.Snippet.Title = truncateRunes(title, maxTitleLen)
	meta.Snippet.Description = truncateRunes(description, maxDescriptionLen)
	meta.Snippet.CategoryID = c.cfg.CategoryID
	meta.Status.PrivacyStatus = "unlisted"

	body, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}

	u := c.uploadURL + "?uploadType=resumable&part=snippet,status"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("session request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("session start returned HTTP %d", resp.StatusCode)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("session response missing Location header")
	}
	return location, nil
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
