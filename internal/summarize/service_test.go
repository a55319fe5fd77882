package summarize

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetscribe/backend/internal/clients"
)

type fakeChat struct {
	reply     string
	sysPrompt string
	prompt    string
	maxTokens int
	calls     int
}

func (f *fakeChat) ChatCompletion(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	f.calls++
	f.sysPrompt = systemPrompt
	f.prompt = userPrompt
	f.maxTokens = maxTokens
	return f.reply, nil
}

func TestGenerateSummaryInterpolatesTranscript(t *testing.T) {
	chat := &fakeChat{reply: "要約です"}
	s := NewService(chat, DefaultPrompts(), nil)

	out, err := s.GenerateSummary(context.Background(), "本日の議題は進捗確認です。")
	require.NoError(t, err)
	assert.Equal(t, "要約です", out)
	assert.Contains(t, chat.prompt, "本日の議題は進捗確認です。")
	assert.NotContains(t, chat.prompt, "{transcript}")
	assert.Equal(t, systemPrompt, chat.sysPrompt)
	assert.Equal(t, defaultMaxTokens, chat.maxTokens)
}

func TestIdentifyClientPromptAndTrim(t *testing.T) {
	chat := &fakeChat{reply: "  Acme株式会社\n"}
	s := NewService(chat, DefaultPrompts(), nil)

	out, err := s.IdentifyClient(context.Background(), clients.IdentifyRequest{
		Topic:             "定例",
		HostDomain:        "acme.co.jp",
		TranscriptExcerpt: "会話の冒頭",
		KnownClients:      []string{"Acme株式会社", "Beta Corp"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme株式会社", out)
	assert.Contains(t, chat.prompt, "acme.co.jp")
	assert.Contains(t, chat.prompt, "Acme株式会社, Beta Corp")
	assert.Equal(t, identifyMaxTokens, chat.maxTokens)
}

func TestIdentifyClientEmptyDomainUsesUnknown(t *testing.T) {
	chat := &fakeChat{reply: clients.UnknownClient}
	s := NewService(chat, DefaultPrompts(), nil)

	out, err := s.IdentifyClient(context.Background(), clients.IdentifyRequest{Topic: "x", TranscriptExcerpt: "y"})
	require.NoError(t, err)
	assert.Equal(t, clients.UnknownClient, out)
	assert.Contains(t, chat.prompt, "参加者のメールドメイン: "+clients.UnknownClient)
}

func TestTruncateTranscriptKeepsHeadAndTail(t *testing.T) {
	head := strings.Repeat("あ", maxTranscriptChars)
	tail := strings.Repeat("ん", 100)
	long := head + tail

	got := truncateTranscript(long)
	assert.Less(t, len([]rune(got)), len([]rune(long)))
	assert.True(t, strings.HasPrefix(got, "あ"))
	assert.True(t, strings.HasSuffix(got, "ん"))
	assert.Contains(t, got, "(中略)")

	short := "短い文字起こし"
	assert.Equal(t, short, truncateTranscript(short))
}

func TestLoadPromptsOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meeting_summary.txt"), []byte("カスタム: {transcript}"), 0o644))

	p := LoadPrompts(dir, nil)
	assert.Equal(t, "カスタム: {transcript}", p.Summary)
	assert.Equal(t, defaultDecisionsPrompt, p.Decisions)
}

func TestLoadPromptsMissingDirReturnsDefaults(t *testing.T) {
	p := LoadPrompts(filepath.Join(t.TempDir(), "nope"), nil)
	assert.Equal(t, DefaultPrompts(), p)
}
