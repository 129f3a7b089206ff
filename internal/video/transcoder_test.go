package video

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecTranscoder_MissingBinary(t *testing.T) {
	tr := NewExecTranscoder("mediachat-no-such-ffmpeg")
	assert.False(t, tr.Available())

	err := tr.Transcode(context.Background(), []string{"-version"})
	assert.ErrorContains(t, err, "mediachat-no-such-ffmpeg not found")
}

func TestNewExecTranscoder_DefaultBinary(t *testing.T) {
	assert.Equal(t, "ffmpeg", NewExecTranscoder("").Binary)
}

func TestTailBuffer(t *testing.T) {
	var b tailBuffer
	_, _ = b.Write([]byte(strings.Repeat("x", stderrTail)))
	_, _ = b.Write([]byte("tail"))

	assert.Len(t, b.String(), stderrTail)
	assert.True(t, strings.HasSuffix(b.String(), "tail"))
}
