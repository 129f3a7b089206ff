// Package media classifies local files by kind and MIME type.
package media

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Kind is the coarse media category used to route an attachment.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindOther Kind = "other"
)

const (
	// DefaultVideoType is assumed for video files whose container is not recognized.
	DefaultVideoType = "video/mp4"
	// DefaultType is used when nothing more specific can be determined.
	DefaultType = "application/octet-stream"

	sniffLen = 512
)

// extensionTypes takes precedence over the platform MIME table, which varies
// between systems and misses several video containers.
var extensionTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
	".3gp":  "video/3gpp",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".heic": "image/heic",
	".bmp":  "image/bmp",
	".pdf":  "application/pdf",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".wav":  "audio/wav",
	".txt":  "text/plain",
	".md":   "text/markdown",
	".json": "application/json",
	".csv":  "text/csv",
}

// videoExtensions lists containers treated as video even when no MIME type
// is known for them.
var videoExtensions = map[string]bool{
	".mp4": true, ".m4v": true, ".mov": true, ".mkv": true, ".webm": true,
	".avi": true, ".3gp": true, ".mpeg": true, ".mpg": true, ".ts": true,
	".mts": true, ".flv": true, ".wmv": true,
}

// TypeByExtension returns the MIME type for the file name's extension, or ""
// when it is unknown. Parameters such as charset are stripped.
func TypeByExtension(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return ""
	}
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	return stripParams(mime.TypeByExtension(ext))
}

// Detect determines the MIME type from the file name, then from the leading
// bytes of the content. Video files fall back to DefaultVideoType.
func Detect(name string, head []byte) string {
	if t := TypeByExtension(name); t != "" {
		return t
	}
	if len(head) > 0 {
		if t := stripParams(http.DetectContentType(head)); t != DefaultType {
			return t
		}
	}
	if videoExtensions[strings.ToLower(filepath.Ext(name))] {
		return DefaultVideoType
	}
	return DefaultType
}

// DetectFile is Detect for a file on disk. Only the first 512 bytes are read.
func DetectFile(path string) (string, error) {
	if t := TypeByExtension(path); t != "" {
		return t, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	return Detect(path, head[:n]), nil
}

// KindOf maps a MIME type to its Kind.
func KindOf(mimeType string) Kind {
	mimeType = stripParams(mimeType)
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return KindImage
	case strings.HasPrefix(mimeType, "video/"):
		return KindVideo
	default:
		return KindOther
	}
}

// KindOfPath classifies a path by extension alone.
func KindOfPath(path string) Kind {
	if videoExtensions[strings.ToLower(filepath.Ext(path))] {
		return KindVideo
	}
	return KindOf(TypeByExtension(path))
}

func stripParams(mimeType string) string {
	if mimeType == "" {
		return ""
	}
	if mediaType, _, err := mime.ParseMediaType(mimeType); err == nil {
		return mediaType
	}
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.TrimSpace(strings.ToLower(mimeType))
}
