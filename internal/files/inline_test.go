package files

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/runixer/mediachat/internal/gateway"
	"github.com/runixer/mediachat/internal/media"
	"github.com/runixer/mediachat/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInline_RoundTrip(t *testing.T) {
	payload := make([]byte, 70000)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	path := testutil.WriteFile(t, t.TempDir(), "blob.mp4", payload)

	block, err := Inline(path)
	require.NoError(t, err)
	assert.Equal(t, gateway.BlockImageURL, block.Type)

	mimeType, data, err := DecodeDataURI(block.URL())
	require.NoError(t, err)
	assert.Equal(t, "video/mp4", mimeType)
	assert.Equal(t, payload, data)
}

func TestInline_MissingFile(t *testing.T) {
	_, err := Inline(filepath.Join(t.TempDir(), "missing.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDecodeDataURI_Errors(t *testing.T) {
	tests := []struct {
		name string
		uri  string
	}{
		{"not a data uri", "https://example.com/a.png"},
		{"no comma", "data:image/png;base64"},
		{"not base64", "data:text/plain,hello"},
		{"bad payload", "data:image/png;base64,@@@"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeDataURI(tt.uri)
			assert.Error(t, err)
		})
	}
}

func TestNewAttachment(t *testing.T) {
	dir := t.TempDir()

	img, err := NewAttachment(testutil.WriteFile(t, dir, "dot.png", testutil.PNGBytes))
	require.NoError(t, err)
	assert.Equal(t, media.KindImage, img.Kind)
	assert.Equal(t, "image/png", img.MimeType)
	assert.Equal(t, int64(len(testutil.PNGBytes)), img.Size)

	vid, err := NewAttachment(testutil.WriteFile(t, dir, "clip.mkv", testutil.MP4Header))
	require.NoError(t, err)
	assert.Equal(t, media.KindVideo, vid.Kind)

	sniffed, err := NewAttachment(testutil.WriteFile(t, dir, "noext", testutil.PNGBytes))
	require.NoError(t, err)
	assert.Equal(t, media.KindImage, sniffed.Kind)

	_, err = NewAttachment(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, ErrMediaUnavailable)

	_, err = NewAttachment(dir)
	assert.ErrorIs(t, err, ErrMediaUnavailable)
}
