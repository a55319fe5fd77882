package meetings

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/meetscribe/backend/internal/models"
)

func TestTruncateErrorKeepsShortMessage(t *testing.T) {
	assert.Equal(t, "whisper unavailable", truncateError("whisper unavailable"))
}

func TestTruncateErrorOnRuneBoundary(t *testing.T) {
	// Multi-byte text longer than the cap in runes but far longer in bytes;
	// a byte-based cut would split a rune and yield invalid UTF-8.
	msg := strings.Repeat("文字起こしエラー:", 300)
	got := truncateError(msg)

	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, models.MaxErrorLen, len([]rune(got)))
	assert.Equal(t, string([]rune(msg)[:models.MaxErrorLen]), got)
}
