package gcal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(id, summary, description string) Event {
	return Event{ID: id, Summary: summary, Description: description}
}

func TestMatchEventByMeetingIDInDescription(t *testing.T) {
	events := []Event{
		event("e1", "別件の打ち合わせ", "agenda"),
		event("e2", "何かの定例", "Zoom Meeting ID: 123456789"),
	}
	got := MatchEvent(events, "123456789", "unrelated topic")
	require.NotNil(t, got)
	assert.Equal(t, "e2", got.ID)
}

func TestMatchEventByKeywordOverlap(t *testing.T) {
	events := []Event{
		event("e1", "Acme Weekly Sync", ""),
		event("e2", "1on1", ""),
	}
	got := MatchEvent(events, "999", "acme weekly sync")
	require.NotNil(t, got)
	assert.Equal(t, "e1", got.ID)
}

func TestMatchEventIgnoresShortWords(t *testing.T) {
	// "1on1" summary should not match on two-letter words
	events := []Event{event("e1", "ab cd", "")}
	got := MatchEvent(events, "", "ab cd")
	assert.Nil(t, got)
}

func TestMatchEventNoCandidates(t *testing.T) {
	assert.Nil(t, MatchEvent(nil, "1", "topic"))
	assert.Nil(t, MatchEvent([]Event{event("e1", "x", "")}, "1", "unrelated"))
}

func TestBuildRecordingBlock(t *testing.T) {
	block := buildRecordingBlock(RecordingInfo{
		VideoURL: "https://youtube.example/watch?v=abc",
		Summary:  "要約テキスト",
	})
	assert.Contains(t, block, "ミーティング録画情報")
	assert.Contains(t, block, "https://youtube.example/watch?v=abc")
	assert.Contains(t, block, "要約テキスト")
	assert.NotContains(t, block, "📁")
}
