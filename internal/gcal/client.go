// Package gcal links processed recordings back to their calendar events.
package gcal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultBaseURL = "https://www.googleapis.com/calendar/v3"

// matchWindow is how far an event's slot may drift from the meeting start.
const matchWindow = 15 * time.Minute

// summaryExcerptLen caps the summary text appended to an event description.
const summaryExcerptLen = 1000

// TokenProvider supplies OAuth access tokens.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Event is the subset of a calendar event the pipeline uses.
type Event struct {
	ID          string `json:"id"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	Start       struct {
		DateTime string `json:"dateTime"`
		Date     string `json:"date"`
	} `json:"start"`
	End struct {
		DateTime string `json:"dateTime"`
		Date     string `json:"date"`
	} `json:"end"`
}

// RecordingInfo is the block appended to a matched event's description.
type RecordingInfo struct {
	VideoURL     string
	RecordingURL string
	Summary      string
}

// Client talks to the Calendar API for one calendar.
type Client struct {
	calendarID string
	baseURL    string
	tokens     TokenProvider
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a Calendar client.
func NewClient(calendarID string, tokens TokenProvider, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		calendarID: calendarID,
		baseURL:    defaultBaseURL,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// FindMeetingEvent locates the calendar event for a meeting. Events inside
// the time window are matched first by meeting id in the description, then by
// keyword overlap with the topic.
func (c *Client) FindMeetingEvent(ctx context.Context, meetingID string, startTime time.Time, topic string) (*Event, error) {
	q := url.Values{}
	q.Set("timeMin", startTime.Add(-matchWindow).UTC().Format(time.RFC3339))
	q.Set("timeMax", startTime.Add(matchWindow).UTC().Format(time.RFC3339))
	q.Set("singleEvents", "true")
	q.Set("orderBy", "startTime")

	u := fmt.Sprintf("%s/calendars/%s/events?%s", c.baseURL, url.PathEscape(c.calendarID), q.Encode())
	var body struct {
		Items []Event `json:"items"`
	}
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &body); err != nil {
		return nil, err
	}
	return MatchEvent(body.Items, meetingID, topic), nil
}

// MatchEvent picks the event for a meeting out of a candidate window.
func MatchEvent(events []Event, meetingID, topic string) *Event {
	for i := range events {
		if meetingID != "" && strings.Contains(events[i].Description, meetingID) {
			return &events[i]
		}
	}
	topicWords := strings.Fields(strings.ToLower(topic))
	for i := range events {
		summary := strings.ToLower(events[i].Summary)
		for _, word := range topicWords {
			if len(word) > 2 && strings.Contains(summary, word) {
				return &events[i]
			}
		}
	}
	return nil
}

// AttachRecordingInfo appends the recording block to the event description.
func (c *Client) AttachRecordingInfo(ctx context.Context, eventID string, info RecordingInfo) error {
	getURL := fmt.Sprintf("%s/calendars/%s/events/%s", c.baseURL, url.PathEscape(c.calendarID), url.PathEscape(eventID))
	var event map[string]interface{}
	if err := c.doJSON(ctx, http.MethodGet, getURL, nil, &event); err != nil {
		return err
	}

	current, _ := event["description"].(string)
	event["description"] = current + buildRecordingBlock(info)

	if err := c.doJSON(ctx, http.MethodPut, getURL, event, nil); err != nil {
		return err
	}
	c.logger.Info("calendar event updated", zap.String("event_id", eventID))
	return nil
}

func buildRecordingBlock(info RecordingInfo) string {
	divider := strings.Repeat("=", 40)
	var b strings.Builder
	b.WriteString("\n\n" + divider + "\n")
	b.WriteString("📹 ミーティング録画情報\n")
	b.WriteString(divider)
	if info.VideoURL != "" {
		b.WriteString("\n\n🎬 YouTube: " + info.VideoURL)
	}
	if info.RecordingURL != "" {
		b.WriteString("\n\n📁 録画: " + info.RecordingURL)
	}
	if info.Summary != "" {
		summary := info.Summary
		if runes := []rune(summary); len(runes) > summaryExcerptLen {
			summary = string(runes[:summaryExcerptLen])
		}
		b.WriteString("\n\n📝 要約:\n" + summary)
	}
	return b.String()
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
		return fmt.Errorf("calendar request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("calendar API returned HTTP %d: %s", resp.StatusCode, raw)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}
