// Package sse decodes the server-sent event stream returned by streaming
// chat completions into text increments.
package sse

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
)

const (
	dataPrefix = "data:"
	doneToken  = "[DONE]"

	initialBufferSize = 64 * 1024
	// MaxLineSize bounds a single event line. Inline media echoed back by
	// some gateways produces very long lines.
	MaxLineSize = 16 * 1024 * 1024
)

type chunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Decoder yields the non-empty content deltas of a chat completion stream.
// It is single-use and not safe for concurrent use.
type Decoder struct {
	ctx     context.Context
	body    io.ReadCloser
	scanner *bufio.Scanner
	logger  *slog.Logger
	stop    func() bool

	text    string
	done    bool
	err     error
	skipped int
}

// NewDecoder reads events from body. Cancelling ctx closes body, which
// unblocks a pending read.
func NewDecoder(ctx context.Context, body io.ReadCloser, logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, initialBufferSize), MaxLineSize)

	d := &Decoder{
		ctx:     ctx,
		body:    body,
		scanner: scanner,
		logger:  logger.With("component", "sse_decoder"),
	}
	d.stop = context.AfterFunc(ctx, func() {
		_ = body.Close()
	})
	return d
}

// Next advances to the next text increment. It returns false when the
// stream is terminated by [DONE], the body ends, or reading fails.
func (d *Decoder) Next() bool {
	if d.done {
		return false
	}
	for d.scanner.Scan() {
		line := bytes.TrimSpace(d.scanner.Bytes())
		if !bytes.HasPrefix(line, []byte(dataPrefix)) {
			continue
		}
		payload := bytes.TrimSpace(line[len(dataPrefix):])
		if string(payload) == doneToken {
			d.finish(nil)
			return false
		}

		var c chunk
		if err := json.Unmarshal(payload, &c); err != nil {
			d.skipped++
			RecordMalformedLine()
			d.logger.Debug("Skipping malformed stream line", "error", err, "line", truncate(string(payload), 200))
			continue
		}
		if len(c.Choices) == 0 || c.Choices[0].Delta.Content == "" {
			continue
		}
		d.text = c.Choices[0].Delta.Content
		return true
	}
	d.finish(d.scanner.Err())
	return false
}

// Text returns the increment produced by the last successful Next.
func (d *Decoder) Text() string {
	return d.text
}

// Err returns the read error that ended the stream, if any. A stream ended
// by context cancellation reports the context error.
func (d *Decoder) Err() error {
	return d.err
}

// Skipped returns how many malformed data lines were ignored.
func (d *Decoder) Skipped() int {
	return d.skipped
}

// Close releases the body. It is safe to call more than once.
func (d *Decoder) Close() error {
	d.finish(nil)
	return d.body.Close()
}

func (d *Decoder) finish(err error) {
	if d.done {
		return
	}
	d.done = true
	d.text = ""
	if !d.stop() && d.ctx.Err() != nil {
		d.err = d.ctx.Err()
		return
	}
	d.err = err
}

// Collect drains dec and returns the concatenated text. The decoder is
// closed on return.
func Collect(dec *Decoder) (string, error) {
	defer dec.Close()
	var sb strings.Builder
	for dec.Next() {
		sb.WriteString(dec.Text())
	}
	return sb.String(), dec.Err()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
