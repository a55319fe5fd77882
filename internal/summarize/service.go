// Package summarize turns transcripts into meeting summaries, decision and
// action-item lists, cumulative client summaries and client identifications.
package summarize

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/meetscribe/backend/internal/clients"
	"github.com/meetscribe/backend/pkg/retry"
)

// systemPrompt frames every generation call.
const systemPrompt = "あなたは優秀な日本語の議事録作成アシスタントです。"

// maxTranscriptChars bounds the transcript handed to a prompt. Longer
// transcripts keep their head and tail, which carry the agenda and the
// wrap-up.
const maxTranscriptChars = 30000

const (
	defaultMaxTokens  = 2000
	identifyMaxTokens = 200
)

// Default prompt templates. Each can be overridden by a file of the same
// name in the prompts directory.
const (
	defaultSummaryPrompt = `以下はミーティングの文字起こしです。この内容を日本語で要約してください。

要約には以下の項目を含めてください：
1. ミーティングの概要（2-3文）
2. 主要な議題（箇条書き）
3. 重要なポイント（箇条書き）

文字起こし：
{transcript}

要約：`

	defaultDecisionsPrompt = `以下はミーティングの文字起こしです。このミーティングで決定された事項を抽出してください。

決定事項がない場合は「決定事項なし」と回答してください。
箇条書きで、具体的かつ簡潔に記載してください。

文字起こし：
{transcript}

決定事項：`

	defaultActionsPrompt = `以下はミーティングの文字起こしです。このミーティングで発生したアクションアイテム（TODO、宿題、次のステップ）を抽出してください。

アクションアイテムがない場合は「アクションアイテムなし」と回答してください。
可能であれば、担当者と期限も含めてください。
箇条書きで記載してください。

文字起こし：
{transcript}

アクションアイテム：`

	defaultCumulativePrompt = `あなたはプロジェクト管理のアシスタントです。
以下はあるクライアントとの複数回のミーティング要約履歴です。
これらを分析し、プロジェクト全体の状況を把握できる累積サマリーを作成してください。

累積サマリーには以下を含めてください：
1. プロジェクト概要（何のプロジェクトか、現在のフェーズ）
2. これまでの主要マイルストーン（達成済みの重要な成果）
3. 現在進行中の作業
4. 未解決の課題・懸念事項
5. 次のステップ・予定されているアクション

過去のミーティング要約：
{meeting_summaries}

累積サマリー：`

	defaultIdentifyPrompt = `以下はミーティングの情報です。このミーティングがどのクライアント（顧客・取引先）に関するものか特定してください。

ミーティングタイトル: {title}
参加者のメールドメイン: {domains}
既知のクライアント: {known_clients}
会話の冒頭部分: {transcript_start}

クライアント名を1つだけ回答してください。特定できない場合は「不明」と回答してください。
回答には企業名のみを含め、説明は不要です。

クライアント名：`
)

// promptFiles maps override filenames to their template slot.
var promptFiles = map[string]string{
	"meeting_summary.txt":    "summary",
	"extract_decisions.txt":  "decisions",
	"extract_actions.txt":    "actions",
	"cumulative_summary.txt": "cumulative",
	"identify_client.txt":    "identify",
}

// ChatCaller is the generation backend.
type ChatCaller interface {
	ChatCompletion(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error)
}

// Prompts holds the loaded templates.
type Prompts struct {
	Summary    string
	Decisions  string
	Actions    string
	Cumulative string
	Identify   string
}

// DefaultPrompts returns the built-in templates.
func DefaultPrompts() Prompts {
	return Prompts{
		Summary:    defaultSummaryPrompt,
		Decisions:  defaultDecisionsPrompt,
		Actions:    defaultActionsPrompt,
		Cumulative: defaultCumulativePrompt,
		Identify:   defaultIdentifyPrompt,
	}
}

// LoadPrompts returns the defaults with any per-file overrides found in dir.
func LoadPrompts(dir string, logger *zap.Logger) Prompts {
	p := DefaultPrompts()
	if dir == "" {
		return p
	}
	for file, slot := range promptFiles {
		data, err := os.ReadFile(filepath.Join(dir, file))
		if err != nil {
			continue
		}
		text := string(data)
		switch slot {
		case "summary":
			p.Summary = text
		case "decisions":
			p.Decisions = text
		case "actions":
			p.Actions = text
		case "cumulative":
			p.Cumulative = text
		case "identify":
			p.Identify = text
		}
		if logger != nil {
			logger.Info("prompt template overridden", zap.String("file", file))
		}
	}
	return p
}

// Service generates the meeting texts.
type Service struct {
	chat    ChatCaller
	prompts Prompts
	logger  *zap.Logger
}

// NewService creates the summarization service.
func NewService(chat ChatCaller, prompts Prompts, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{chat: chat, prompts: prompts, logger: logger}
}

// GenerateSummary summarizes a meeting transcript.
func (s *Service) GenerateSummary(ctx context.Context, transcript string) (string, error) {
	prompt := strings.ReplaceAll(s.prompts.Summary, "{transcript}", truncateTranscript(transcript))
	return s.generate(ctx, "generate_summary", prompt, defaultMaxTokens, retry.Default)
}

// ExtractDecisions lists the decisions made in the meeting.
func (s *Service) ExtractDecisions(ctx context.Context, transcript string) (string, error) {
	prompt := strings.ReplaceAll(s.prompts.Decisions, "{transcript}", truncateTranscript(transcript))
	return s.generate(ctx, "extract_decisions", prompt, defaultMaxTokens, retry.Default)
}

// ExtractActionItems lists the follow-ups the meeting produced.
func (s *Service) ExtractActionItems(ctx context.Context, transcript string) (string, error) {
	prompt := strings.ReplaceAll(s.prompts.Actions, "{transcript}", truncateTranscript(transcript))
	return s.generate(ctx, "extract_action_items", prompt, defaultMaxTokens, retry.Default)
}

// GenerateCumulative condenses a client's meeting history into one running
// summary. Satisfies clients.CumulativeGenerator.
func (s *Service) GenerateCumulative(ctx context.Context, clientName, history string) (string, error) {
	prompt := strings.ReplaceAll(s.prompts.Cumulative, "{meeting_summaries}", history)
	s.logger.Info("generating cumulative summary", zap.String("client", clientName))
	return s.generate(ctx, "generate_cumulative", prompt, defaultMaxTokens, retry.Default)
}

// IdentifyClient names the client a meeting belongs to, or returns the 不明
// sentinel. Satisfies clients.Identifier.
func (s *Service) IdentifyClient(ctx context.Context, req clients.IdentifyRequest) (string, error) {
	domains := req.HostDomain
	if domains == "" {
		domains = clients.UnknownClient
	}
	knownClients := strings.Join(req.KnownClients, ", ")
	if knownClients == "" {
		knownClients = "なし"
	}
	prompt := s.prompts.Identify
	prompt = strings.ReplaceAll(prompt, "{title}", req.Topic)
	prompt = strings.ReplaceAll(prompt, "{domains}", domains)
	prompt = strings.ReplaceAll(prompt, "{known_clients}", knownClients)
	prompt = strings.ReplaceAll(prompt, "{transcript_start}", req.TranscriptExcerpt)

	identifyRetry := retry.Config{MaxAttempts: 2, InitialDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2.0}
	result, err := s.generate(ctx, "identify_client", prompt, identifyMaxTokens, identifyRetry)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result), nil
}

func (s *Service) generate(ctx context.Context, name, prompt string, maxTokens int, cfg retry.Config) (string, error) {
	return retry.DoValue(ctx, cfg, s.logger, name, func(ctx context.Context) (string, error) {
		return s.chat.ChatCompletion(ctx, systemPrompt, prompt, maxTokens)
	})
}

// truncateTranscript keeps the head and tail of an over-long transcript.
func truncateTranscript(transcript string) string {
	runes := []rune(transcript)
	if len(runes) <= maxTranscriptChars {
		return transcript
	}
	half := maxTranscriptChars / 2
	return string(runes[:half]) + "\n\n... (中略) ...\n\n" + string(runes[len(runes)-half:])
}
