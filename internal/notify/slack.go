// Package notify sends pipeline notifications to a Slack incoming webhook.
// Every send is best-effort: the pipeline never fails on a notification.
package notify

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

type block map[string]interface{}

func headerBlock(text string) block {
	return block{
		"type": "header",
		"text": map[string]interface{}{"type": "plain_text", "text": text, "emoji": true},
	}
}

func sectionBlock(text string) block {
	return block{
		"type": "section",
		"text": map[string]interface{}{"type": "mrkdwn", "text": text},
	}
}

func fieldsBlock(fields ...string) block {
	items := make([]map[string]interface{}, 0, len(fields))
	for _, f := range fields {
		items = append(items, map[string]interface{}{"type": "mrkdwn", "text": f})
	}
	return block{"type": "section", "fields": items}
}

// Slack posts Block Kit messages via an incoming webhook. A disabled notifier
// turns every send into a no-op.
type Slack struct {
	webhookURL string
	enabled    bool
	httpClient *http.Client
	logger     *zap.Logger
}

// NewSlack creates the notifier.
func NewSlack(webhookURL string, enabled bool, logger *zap.Logger) *Slack {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Slack{
		webhookURL: webhookURL,
		enabled:    enabled && webhookURL != "",
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// NotifyComplete announces a finished recording.
func (s *Slack) NotifyComplete(ctx context.Context, topic, videoURL, clientName, summary string) error {
	if clientName == "" {
		clientName = "未識別"
	}
	blocks := []block{
		headerBlock("✅ 録画処理完了"),
		fieldsBlock(
			"*ミーティング:*\n"+topic,
			"*クライアント:*\n"+clientName,
		),
		sectionBlock(fmt.Sprintf("*YouTube:* <%s|動画を見る>", videoURL)),
	}
	if summary != "" {
		blocks = append(blocks, sectionBlock("*要約:*\n"+truncate(summary, 500)))
	}
	return s.send(ctx, blocks)
}

// NotifyError announces a failed recording.
func (s *Slack) NotifyError(ctx context.Context, topic, errorMessage string, recordingID int64) error {
	blocks := []block{
		headerBlock("❌ 録画処理エラー"),
		fieldsBlock(
			"*ミーティング:*\n"+topic,
			fmt.Sprintf("*録画ID:*\n%d", recordingID),
		),
		sectionBlock("*エラー:*\n```" + truncate(errorMessage, 500) + "```"),
	}
	return s.send(ctx, blocks)
}

// NotifyNeedsIdentification asks an operator to attribute a recording the
// resolver could not.
func (s *Slack) NotifyNeedsIdentification(ctx context.Context, topic string, recordingID int64, suggestions []string) error {
	blocks := []block{
		headerBlock("🔍 クライアント識別が必要"),
		sectionBlock("以下のミーティングのクライアントを識別できませんでした:\n*" + topic + "*"),
	}
	if len(suggestions) > 0 {
		options := ""
		for _, name := range suggestions {
			options += "• " + name + "\n"
		}
		blocks = append(blocks, sectionBlock("*候補:*\n"+options))
	}
	blocks = append(blocks, sectionBlock(fmt.Sprintf("ダッシュボードで設定してください。\n録画ID: `%d`", recordingID)))
	return s.send(ctx, blocks)
}

func (s *Slack) send(ctx context.Context, blocks []block) error {
	if !s.enabled {
		s.logger.Debug("slack notifications disabled")
		return nil
	}
	payload, err := json.Marshal(map[string]interface{}{"blocks": blocks})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("slack request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("slack webhook returned HTTP %d: %s", resp.StatusCode, raw)
	}
	return nil
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
