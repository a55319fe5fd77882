// Package gsheets writes the meeting ledger to Google Sheets.
package gsheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultBaseURL = "https://sheets.googleapis.com/v4/spreadsheets"

// Sheet names. The master sheet lists every meeting; the summary sheet holds
// one row per client.
const (
	MasterSheetName        = "全ミーティング"
	ClientSummarySheetName = "クライアントサマリー"

	clientSheetPrefix  = "CL_"
	clientSheetNameLen = 20

	// summaryCellLimit respects the spreadsheet cell size cap.
	summaryCellLimit = 50000
)

var masterHeader = []interface{}{
	"日時", "ミーティングID", "タイトル", "時間(分)", "クライアント",
	"YouTube URL", "録画URL", "要約", "決定事項", "アクションアイテム",
}

var clientHeader = []interface{}{
	"開催日時", "タイトル", "YouTube", "要約", "決定事項", "アクション", "前回からの進捗",
}

var summaryHeader = []interface{}{
	"クライアント名", "ミーティング回数", "最終ミーティング", "累積サマリー",
}

// TokenProvider supplies OAuth access tokens.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// MeetingRow is one master-sheet entry.
type MeetingRow struct {
	StartTime       time.Time
	MeetingID       string
	Topic           string
	DurationMinutes int
	ClientName      string
	VideoURL        string
	RecordingURL    string
	Summary         string
	Decisions       string
	ActionItems     string
}

// ClientRow is one client-sheet entry.
type ClientRow struct {
	StartTime   time.Time
	Topic       string
	VideoURL    string
	Summary     string
	Decisions   string
	ActionItems string
	Progress    string
}

// Client talks to the Sheets API for one spreadsheet.
type Client struct {
	spreadsheetID string
	baseURL       string
	tokens        TokenProvider
	httpClient    *http.Client
	logger        *zap.Logger

	mu      sync.Mutex
	ensured map[string]bool
}

// NewClient creates a Sheets client for the configured spreadsheet.
func NewClient(spreadsheetID string, tokens TokenProvider, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		spreadsheetID: spreadsheetID,
		baseURL:       defaultBaseURL,
		tokens:        tokens,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		logger:        logger,
		ensured:       map[string]bool{},
	}
}

// AppendMeetingRow appends one meeting to the master sheet.
func (c *Client) AppendMeetingRow(ctx context.Context, row MeetingRow) error {
	if err := c.ensureSheet(ctx, MasterSheetName, masterHeader); err != nil {
		return err
	}
	values := []interface{}{
		row.StartTime.Format("2006-01-02 15:04"),
		row.MeetingID,
		row.Topic,
		row.DurationMinutes,
		row.ClientName,
		row.VideoURL,
		row.RecordingURL,
		row.Summary,
		row.Decisions,
		row.ActionItems,
	}
	return c.appendRow(ctx, MasterSheetName, values)
}

// AppendClientRow appends one meeting to the per-client sheet, creating the
// sheet on first use.
func (c *Client) AppendClientRow(ctx context.Context, clientName string, row ClientRow) error {
	sheet := ClientSheetName(clientName)
	if err := c.ensureSheet(ctx, sheet, clientHeader); err != nil {
		return err
	}
	values := []interface{}{
		row.StartTime.Format("2006-01-02 15:04"),
		row.Topic,
		row.VideoURL,
		row.Summary,
		row.Decisions,
		row.ActionItems,
		row.Progress,
	}
	return c.appendRow(ctx, sheet, values)
}

// UpsertClientSummary writes the client's rollup row, replacing an existing
// one when the client already appears in the summary sheet.
func (c *Client) UpsertClientSummary(ctx context.Context, clientName, cumulativeSummary string, meetingCount int, lastMeetingAt *time.Time) error {
	if err := c.ensureSheet(ctx, ClientSummarySheetName, summaryHeader); err != nil {
		return err
	}

	names, err := c.readColumn(ctx, ClientSummarySheetName, "A")
	if err != nil {
		return err
	}
	rowNum := 0
	for i, name := range names {
		if name == clientName {
			rowNum = i + 1
			break
		}
	}

	lastMeeting := ""
	if lastMeetingAt != nil {
		lastMeeting = lastMeetingAt.Format("2006-01-02")
	}
	if runes := []rune(cumulativeSummary); len(runes) > summaryCellLimit {
		cumulativeSummary = string(runes[:summaryCellLimit])
	}
	values := []interface{}{clientName, meetingCount, lastMeeting, cumulativeSummary}

	if rowNum == 0 {
		return c.appendRow(ctx, ClientSummarySheetName, values)
	}
	rangeRef := fmt.Sprintf("'%s'!A%d:D%d", ClientSummarySheetName, rowNum, rowNum)
	return c.updateRange(ctx, rangeRef, [][]interface{}{values})
}

// ClientSheetName returns the per-client sheet title, length-capped.
func ClientSheetName(clientName string) string {
	runes := []rune(clientName)
	if len(runes) > clientSheetNameLen {
		runes = runes[:clientSheetNameLen]
	}
	return clientSheetPrefix + string(runes)
}

// ensureSheet creates the sheet and header row on first touch.
func (c *Client) ensureSheet(ctx context.Context, title string, header []interface{}) error {
	c.mu.Lock()
	done := c.ensured[title]
	c.mu.Unlock()
	if done {
		return nil
	}

	exists, err := c.sheetExists(ctx, title)
	if err != nil {
		return err
	}
	if !exists {
		if err := c.addSheet(ctx, title); err != nil {
			return err
		}
		c.logger.Info("sheet created", zap.String("title", title))
	}

	firstRow, err := c.readColumn(ctx, title, "1")
	if err != nil {
		return err
	}
	if len(firstRow) == 0 || firstRow[0] != fmt.Sprint(header[0]) {
		endCol := string(rune('A' + len(header) - 1))
		rangeRef := fmt.Sprintf("'%s'!A1:%s1", title, endCol)
		if err := c.updateRange(ctx, rangeRef, [][]interface{}{header}); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.ensured[title] = true
	c.mu.Unlock()
	return nil
}

func (c *Client) sheetExists(ctx context.Context, title string) (bool, error) {
	u := fmt.Sprintf("%s/%s?fields=sheets.properties.title", c.baseURL, c.spreadsheetID)
	var body struct {
		Sheets []struct {
			Properties struct {
				Title string `json:"title"`
			} `json:"properties"`
		} `json:"sheets"`
	}
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &body); err != nil {
		return false, err
	}
	for _, s := range body.Sheets {
		if s.Properties.Title == title {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) addSheet(ctx context.Context, title string) error {
	u := fmt.Sprintf("%s/%s:batchUpdate", c.baseURL, c.spreadsheetID)
	payload := map[string]interface{}{
		"requests": []map[string]interface{}{
			{"addSheet": map[string]interface{}{
				"properties": map[string]interface{}{"title": title},
			}},
		},
	}
	return c.doJSON(ctx, http.MethodPost, u, payload, nil)
}

// readColumn returns the string values of one row or column. ref is either a
// column letter ("A") or a row number ("1").
func (c *Client) readColumn(ctx context.Context, title, ref string) ([]string, error) {
	rangeRef := fmt.Sprintf("'%s'!%s:%s", title, ref, ref)
	u := fmt.Sprintf("%s/%s/values/%s?majorDimension=%s",
		c.baseURL, c.spreadsheetID, url.PathEscape(rangeRef), dimensionFor(ref))
	var body struct {
		Values [][]interface{} `json:"values"`
	}
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &body); err != nil {
		return nil, err
	}
	var out []string
	for _, row := range body.Values {
		if len(row) > 0 {
			out = append(out, fmt.Sprint(row[0]))
		} else {
			out = append(out, "")
		}
	}
	return out, nil
}

func dimensionFor(ref string) string {
	if _, err := strconv.Atoi(ref); err == nil {
		return "COLUMNS"
	}
	return "ROWS"
}

func (c *Client) appendRow(ctx context.Context, title string, values []interface{}) error {
	rangeRef := fmt.Sprintf("'%s'!A:A", title)
	u := fmt.Sprintf("%s/%s/values/%s:append?valueInputOption=USER_ENTERED&insertDataOption=INSERT_ROWS",
		c.baseURL, c.spreadsheetID, url.PathEscape(rangeRef))
	payload := map[string]interface{}{"values": [][]interface{}{values}}
	return c.doJSON(ctx, http.MethodPost, u, payload, nil)
}

func (c *Client) updateRange(ctx context.Context, rangeRef string, values [][]interface{}) error {
	u := fmt.Sprintf("%s/%s/values/%s?valueInputOption=USER_ENTERED",
		c.baseURL, c.spreadsheetID, url.PathEscape(rangeRef))
	payload := map[string]interface{}{"values": values}
	return c.doJSON(ctx, http.MethodPut, u, payload, nil)
}

func (c *Client) doJSON(ctx context.Context, method, u string, payload, out interface{}) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}
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
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sheets request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("sheets API returned HTTP %d: %s", resp.StatusCode, raw)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}
