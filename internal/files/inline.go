package files

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/runixer/mediachat/internal/gateway"
	"github.com/runixer/mediachat/internal/media"
)

const sniffLen = 512

// Inline reads the whole file and embeds it as a base64 data URI in an
// image_url block.
func Inline(path string) (gateway.ContentBlock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return gateway.ContentBlock{}, err
	}
	head := data
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	return gateway.ImageURLBlock(EncodeDataURI(media.Detect(path, head), data)), nil
}

// EncodeDataURI formats data as data:<mime>;base64,<payload>.
func EncodeDataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURI is the inverse of EncodeDataURI.
func DecodeDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, errors.New("not a data URI")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New("data URI has no payload separator")
	}
	mimeType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, fmt.Errorf("data URI is not base64 encoded: %q", meta)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("invalid data URI payload: %w", err)
	}
	return mimeType, data, nil
}
