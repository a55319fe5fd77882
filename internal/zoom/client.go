// Package zoom downloads cloud recordings using Server-to-Server OAuth.
package zoom

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultTokenURL = "https://zoom.us/oauth/token"

	// downloadTimeout bounds a full recording transfer. Large MP4s over a
	// slow link can legitimately take several minutes.
	downloadTimeout = 600 * time.Second

	// tokenExpiryBuffer refreshes tokens before they actually lapse.
	tokenExpiryBuffer = 5 * time.Minute
)

// Config holds Server-to-Server OAuth credentials.
type Config struct {
	AccountID    string
	ClientID     string
	ClientSecret string
}

type accessToken struct {
	value     string
	expiresAt time.Time
}

func (t *accessToken) valid() bool {
	return t != nil && time.Now().Add(tokenExpiryBuffer).Before(t.expiresAt)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// Client talks to the recording provider's API.
type Client struct {
	cfg        Config
	tokenURL   string
	httpClient *http.Client
	downloader *http.Client
	logger     *zap.Logger

	mu    sync.Mutex
	token *accessToken
}

// NewClient creates a recording download client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		tokenURL:   defaultTokenURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		downloader: &http.Client{Timeout: downloadTimeout},
		logger:     logger,
	}
}

// getAccessToken returns a cached token or fetches a fresh one via the
// account_credentials grant.
func (c *Client) getAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token.valid() {
		return c.token.value, nil
	}

	form := url.Values{}
	form.Set("grant_type", "account_credentials")
	form.Set("account_id", c.cfg.AccountID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL+"?"+form.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("parse token response: %w", err)
	}
	if tr.Error != "" {
		return "", fmt.Errorf("oauth error %s: %s", tr.Error, tr.Reason)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request returned HTTP %d", resp.StatusCode)
	}

	c.token = &accessToken{
		value:     tr.AccessToken,
		expiresAt: time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}
	c.logger.Debug("access token refreshed", zap.Time("expires_at", c.token.expiresAt))
	return c.token.value, nil
}

// DownloadRecording streams the recording at downloadURL into destDir and
// returns the local path and byte size. The file is removed on any failure.
func (c *Client) DownloadRecording(ctx context.Context, downloadURL, destDir, filename string) (string, int64, error) {
	token, err := c.getAccessToken(ctx)
	if err != nil {
		return "", 0, err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create download dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("create download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.downloader.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("download request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("download returned HTTP %d", resp.StatusCode)
	}

	path := filepath.Join(destDir, filepath.Base(filename))
	out, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create file: %w", err)
	}

	written, err := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("write file: %w", err)
	}

	c.logger.Info("recording downloaded",
		zap.String("path", path),
		zap.Int64("bytes", written),
	)
	return path, written, nil
}

// Cleanup removes a downloaded media file. Missing files are not an error.
func (c *Client) Cleanup(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		c.logger.Warn("remove media file", zap.String("path", path), zap.Error(err))
	}
}
