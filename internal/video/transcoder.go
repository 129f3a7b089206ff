package video

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Transcoder runs one ffmpeg-style invocation.
type Transcoder interface {
	Transcode(ctx context.Context, args []string) error
}

// stderrTail bounds how much ffmpeg diagnostic output is kept for errors.
const stderrTail = 2048

// ExecTranscoder runs an ffmpeg binary as a child process.
type ExecTranscoder struct {
	Binary string
}

// NewExecTranscoder returns a transcoder for the given binary name or path.
func NewExecTranscoder(binary string) *ExecTranscoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &ExecTranscoder{Binary: binary}
}

// Available reports whether the binary can be resolved.
func (t *ExecTranscoder) Available() bool {
	_, err := exec.LookPath(t.Binary)
	return err == nil
}

func (t *ExecTranscoder) Transcode(ctx context.Context, args []string) error {
	bin, err := exec.LookPath(t.Binary)
	if err != nil {
		return fmt.Errorf("%s not found: %w", t.Binary, err)
	}

	var stderr tailBuffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s interrupted: %w", t.Binary, errors.Join(ctxErr, err))
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s failed: %w: %s", t.Binary, err, msg)
		}
		return fmt.Errorf("%s failed: %w", t.Binary, err)
	}
	return nil
}

// tailBuffer keeps the last stderrTail bytes written to it.
type tailBuffer struct {
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - stderrTail; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	return string(b.buf)
}
