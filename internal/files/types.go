// Package files turns local media paths into chat content blocks, choosing
// per attachment between optimization, upload and inline encoding.
package files

import (
	"errors"
	"fmt"
	"os"

	"github.com/runixer/mediachat/internal/media"
)

var (
	// ErrMediaUnavailable means the attachment path does not name a readable file.
	ErrMediaUnavailable = errors.New("media unavailable")
	// ErrEncodingFailed means the file could not be read for inline encoding.
	ErrEncodingFailed = errors.New("inline encoding failed")
	// ErrDuplicate means an identical block was already part of the message.
	ErrDuplicate = errors.New("duplicate attachment")
	// ErrNotMerged means there was no trailing user message to attach to.
	ErrNotMerged = errors.New("no user message to attach to")
)

// Transport is how an attachment ended up in the request.
type Transport string

const (
	TransportSkipped  Transport = "skipped"
	TransportInline   Transport = "inline"
	TransportUploaded Transport = "uploaded"
	TransportDropped  Transport = "dropped"
)

// Attachment is a local file requested for inclusion in a chat message.
type Attachment struct {
	Path     string
	Kind     media.Kind
	MimeType string
	Size     int64
}

// NewAttachment stats path and classifies it.
func NewAttachment(path string) (Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Attachment{}, fmt.Errorf("%w: %w", ErrMediaUnavailable, err)
	}
	if info.IsDir() {
		return Attachment{}, fmt.Errorf("%w: %s is a directory", ErrMediaUnavailable, path)
	}

	mimeType, err := media.DetectFile(path)
	if err != nil {
		return Attachment{}, fmt.Errorf("%w: %w", ErrMediaUnavailable, err)
	}
	kind := media.KindOfPath(path)
	if kind == media.KindOther {
		kind = media.KindOf(mimeType)
	}

	return Attachment{
		Path:     path,
		Kind:     kind,
		MimeType: mimeType,
		Size:     info.Size(),
	}, nil
}

// Outcome reports what happened to one attachment. Failures along the way
// are recorded here instead of being returned as errors.
type Outcome struct {
	Path      string
	Kind      media.Kind
	Transport Transport
	// SentPath is the file actually sent; it differs from Path when the
	// video was optimized.
	SentPath  string
	Optimized bool
	// Reason explains a skipped or dropped attachment.
	Reason error
	// Degraded lists failures that were recovered by falling back.
	Degraded []error
}

// Included reports whether the attachment produced a content block.
func (o Outcome) Included() bool {
	return o.Transport == TransportInline || o.Transport == TransportUploaded
}

// Err joins Reason and Degraded, or returns nil for a clean outcome.
func (o Outcome) Err() error {
	return errors.Join(append([]error{o.Reason}, o.Degraded...)...)
}
