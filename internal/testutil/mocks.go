// Package testutil provides shared test doubles, fixtures and helpers.
package testutil

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/stretchr/testify/mock"
)

// MockTranscoder is a testify mock of video.Transcoder.
type MockTranscoder struct {
	mock.Mock
}

func (m *MockTranscoder) Transcode(ctx context.Context, args []string) error {
	callArgs := m.Called(ctx, args)
	return callArgs.Error(0)
}

// FakeTranscoder imitates ffmpeg: it writes Output to the last argument
// unless the encoder selected with -c:v is listed in Fail.
type FakeTranscoder struct {
	Output []byte
	Fail   map[string]error

	mu    sync.Mutex
	calls [][]string
}

// NewFakeTranscoder returns a transcoder that always produces output.
func NewFakeTranscoder(output []byte) *FakeTranscoder {
	return &FakeTranscoder{Output: output, Fail: make(map[string]error)}
}

func (f *FakeTranscoder) Transcode(ctx context.Context, args []string) error {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), args...))
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if len(args) == 0 {
		return fmt.Errorf("no arguments")
	}
	if err, ok := f.Fail[EncoderArg(args)]; ok {
		return err
	}
	return os.WriteFile(args[len(args)-1], f.Output, 0o600)
}

// Calls returns a copy of the argument lists seen so far.
func (f *FakeTranscoder) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// Encoders returns the encoder of each call in order.
func (f *FakeTranscoder) Encoders() []string {
	var encoders []string
	for _, args := range f.Calls() {
		encoders = append(encoders, EncoderArg(args))
	}
	return encoders
}

// EncoderArg returns the value following -c:v in args.
func EncoderArg(args []string) string {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == "-c:v" {
			return args[i+1]
		}
	}
	return ""
}
