// Package openai is a minimal client for the chat completions and audio
// transcription endpoints.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.openai.com/v1"

// transcribeTimeout allows for long audio uploads; chat calls finish faster.
const (
	chatTimeout       = 180 * time.Second
	transcribeTimeout = 600 * time.Second
)

// Config holds API credentials and model names.
type Config struct {
	APIKey       string
	WhisperModel string
	GPTModel     string
}

// Client calls the OpenAI API.
type Client struct {
	cfg        Config
	baseURL    string
	chatClient *http.Client
	audio      *http.Client
	logger     *zap.Logger
}

// NewClient creates an API client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WhisperModel == "" {
		cfg.WhisperModel = "whisper-1"
	}
	if cfg.GPTModel == "" {
		cfg.GPTModel = "gpt-4-turbo-preview"
	}
	return &Client{
		cfg:        cfg,
		baseURL:    defaultBaseURL,
		chatClient: &http.Client{Timeout: chatTimeout},
		audio:      &http.Client{Timeout: transcribeTimeout},
		logger:     logger,
	}
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("openai: %s (%s)", e.Message, e.Type)
}

// ChatCompletion sends a system+user exchange and returns the first choice.
func (c *Client) ChatCompletion(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.GPTModel,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0.3,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.chatClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("parse chat response: %w", err)
	}
	if cr.Error != nil {
		return "", cr.Error
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat completions returned HTTP %d", resp.StatusCode)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("chat completions returned no choices")
	}
	return cr.Choices[0].Message.Content, nil
}

type transcriptionResponse struct {
	Text  string    `json:"text"`
	Error *apiError `json:"error"`
}

// Transcribe uploads a media file to the Whisper endpoint and returns the
// transcript text. language is an ISO 639-1 code like "ja".
func (c *Client) Transcribe(ctx context.Context, mediaPath, language string) (string, error) {
	file, err := os.Open(mediaPath)
	if err != nil {
		return "", fmt.Errorf("open media file: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(mediaPath))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("copy media: %w", err)
	}
	if err := mw.WriteField("model", c.cfg.WhisperModel); err != nil {
		return "", err
	}
	if language != "" {
		if err := mw.WriteField("language", language); err != nil {
			return "", err
		}
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return "", fmt.Errorf("create transcription request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.audio.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	var tr transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("parse transcription response: %w", err)
	}
	if tr.Error != nil {
		return "", tr.Error
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription returned HTTP %d", resp.StatusCode)
	}
	c.logger.Info("media transcribed",
		zap.String("path", mediaPath),
		zap.Int("transcript_chars", len(tr.Text)),
	)
	return tr.Text, nil
}
