// Package notion persists meeting and client pages to Notion databases.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://api.notion.com/v1"
	apiVersion     = "2022-06-28"

	// Notion caps rich text at 2000 chars per block; transcripts get a
	// larger excerpt split across the toggle.
	blockTextLimit    = 2000
	transcriptExcerpt = 10000
)

// Config holds the integration token and target database ids.
type Config struct {
	APIKey      string
	ClientDBID  string
	MeetingDBID string
}

// MeetingPage is the content of one meeting page.
type MeetingPage struct {
	Title        string
	StartTime    time.Time
	VideoURL     string
	RecordingURL string
	Transcript   string
	Summary      string
	Decisions    string
	ActionItems  string
	ClientPageID string
}

// Client talks to the Notion API.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a Notion client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

func richText(content string) []map[string]interface{} {
	if runes := []rune(content); len(runes) > blockTextLimit {
		content = string(runes[:blockTextLimit])
	}
	return []map[string]interface{}{
		{"text": map[string]interface{}{"content": content}},
	}
}

func headingBlock(text string) map[string]interface{} {
	return map[string]interface{}{
		"object":    "block",
		"heading_2": map[string]interface{}{"rich_text": richText(text)},
	}
}

func paragraphBlock(text string) map[string]interface{} {
	return map[string]interface{}{
		"object":    "block",
		"paragraph": map[string]interface{}{"rich_text": richText(text)},
	}
}

// CreateMeetingPage creates a meeting page with the generated sections and
// returns its page id.
func (c *Client) CreateMeetingPage(ctx context.Context, page MeetingPage) (string, error) {
	properties := map[string]interface{}{
		"タイトル": map[string]interface{}{"title": richText(page.Title)},
		"開催日時": map[string]interface{}{"date": map[string]interface{}{"start": page.StartTime.Format(time.RFC3339)}},
	}
	if page.VideoURL != "" {
		properties["YouTube URL"] = map[string]interface{}{"url": page.VideoURL}
	}
	if page.RecordingURL != "" {
		properties["録画URL"] = map[string]interface{}{"url": page.RecordingURL}
	}
	if page.ClientPageID != "" {
		properties["クライアント"] = map[string]interface{}{
			"relation": []map[string]interface{}{{"id": page.ClientPageID}},
		}
	}

	var children []map[string]interface{}
	if page.Summary != "" {
		children = append(children, headingBlock("要約"), paragraphBlock(page.Summary))
	}
	if page.Decisions != "" {
		children = append(children, headingBlock("決定事項"), paragraphBlock(page.Decisions))
	}
	if page.ActionItems != "" {
		children = append(children, headingBlock("アクションアイテム"), paragraphBlock(page.ActionItems))
	}
	if page.Transcript != "" {
		excerpt := page.Transcript
		if runes := []rune(excerpt); len(runes) > transcriptExcerpt {
			excerpt = string(runes[:transcriptExcerpt])
		}
		children = append(children, headingBlock("文字起こし"), map[string]interface{}{
			"object": "block",
			"toggle": map[string]interface{}{
				"rich_text": richText("全文を表示"),
				"children":  transcriptBlocks(excerpt),
			},
		})
	}

	payload := map[string]interface{}{
		"parent":     map[string]interface{}{"database_id": c.cfg.MeetingDBID},
		"properties": properties,
	}
	if len(children) > 0 {
		payload["children"] = children
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/pages", payload, &result); err != nil {
		return "", err
	}
	c.logger.Info("meeting page created", zap.String("page_id", result.ID))
	return result.ID, nil
}

// transcriptBlocks splits a transcript excerpt into paragraph blocks that fit
// the per-block text limit.
func transcriptBlocks(excerpt string) []map[string]interface{} {
	runes := []rune(excerpt)
	var blocks []map[string]interface{}
	for len(runes) > 0 {
		n := blockTextLimit
		if len(runes) < n {
			n = len(runes)
		}
		blocks = append(blocks, paragraphBlock(string(runes[:n])))
		runes = runes[n:]
	}
	return blocks
}

// CreateClientPage creates a client page and returns its page id.
func (c *Client) CreateClientPage(ctx context.Context, name, description string) (string, error) {
	payload := map[string]interface{}{
		"parent": map[string]interface{}{"database_id": c.cfg.ClientDBID},
		"properties": map[string]interface{}{
			"名前":    map[string]interface{}{"title": richText(name)},
			"ステータス": map[string]interface{}{"select": map[string]interface{}{"name": "アクティブ"}},
		},
	}
	if description != "" {
		payload["children"] = []map[string]interface{}{paragraphBlock(description)}
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/pages", payload, &result); err != nil {
		return "", err
	}
	c.logger.Info("client page created", zap.String("page_id", result.ID), zap.String("client", name))
	return result.ID, nil
}

// FindClientPage returns the page id of the client with the given name, or ""
// when none exists.
func (c *Client) FindClientPage(ctx context.Context, name string) (string, error) {
	payload := map[string]interface{}{
		"filter": map[string]interface{}{
			"property": "名前",
			"title":    map[string]interface{}{"equals": name},
		},
	}
	var result struct {
		Results []struct {
			ID string `json:"id"`
		} `json:"results"`
	}
	u := fmt.Sprintf("%s/databases/%s/query", c.baseURL, c.cfg.ClientDBID)
	if err := c.doJSON(ctx, http.MethodPost, u, payload, &result); err != nil {
		return "", err
	}
	if len(result.Results) == 0 {
		return "", nil
	}
	return result.Results[0].ID, nil
}

// UpdateClientRollup writes the cumulative summary and counters to the
// client page: properties first, then the summary section body.
func (c *Client) UpdateClientRollup(ctx context.Context, pageID, cumulativeSummary string, meetingCount int, lastMeetingAt *time.Time) error {
	properties := map[string]interface{}{
		"ミーティング回数": map[string]interface{}{"number": meetingCount},
	}
	if lastMeetingAt != nil {
		properties["最終ミーティング"] = map[string]interface{}{
			"date": map[string]interface{}{"start": lastMeetingAt.Format("2006-01-02")},
		}
	}
	if err := c.doJSON(ctx, http.MethodPatch, c.baseURL+"/pages/"+pageID, map[string]interface{}{"properties": properties}, nil); err != nil {
		return err
	}

	// Append a fresh summary section. Replacing blocks in place needs a
	// block scan; appending keeps the latest rollup at the bottom.
	children := map[string]interface{}{
		"children": []map[string]interface{}{
			headingBlock("累積サマリー"),
			paragraphBlock(cumulativeSummary),
		},
	}
	if err := c.doJSON(ctx, http.MethodPatch, c.baseURL+"/blocks/"+pageID+"/children", children, nil); err != nil {
		return err
	}
	c.logger.Info("client rollup updated", zap.String("page_id", pageID), zap.Int("meeting_count", meetingCount))
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, u string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Notion-Version", apiVersion)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notion request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("notion API returned HTTP %d: %s", resp.StatusCode, raw)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}
