// Package video shrinks large video attachments with ffmpeg and keeps the
// results in an on-disk cache keyed by source path, modification time and name.
package video

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// ErrOptimizationFailed marks a Result that fell back to the source file.
var ErrOptimizationFailed = errors.New("video optimization failed")

var errEmptyOutput = errors.New("transcoder produced no output")

// Options configures the Optimizer.
type Options struct {
	CacheDir string
	Height   int
	FPS      int
	// HWEncoder is tried first. Empty disables the hardware path.
	HWEncoder string
	SWEncoder string
	// Timeout bounds each encoder attempt. Zero means no extra bound.
	Timeout time.Duration
}

// Result describes the file to send for a video attachment.
type Result struct {
	// Path is the optimized file, or the source path when Degraded is set.
	Path     string
	Size     int64
	CacheHit bool
	// Encoder names the encoder that produced a fresh output.
	Encoder string
	// Degraded wraps ErrOptimizationFailed with the reasons each path failed.
	Degraded error
}

// Optimized reports whether Path points into the cache.
func (r Result) Optimized() bool {
	return r.Degraded == nil
}

// Optimizer produces compact copies of videos.
type Optimizer struct {
	transcoder Transcoder
	opts       Options
	logger     *slog.Logger
}

// NewOptimizer creates an optimizer. Zero option values get defaults.
func NewOptimizer(transcoder Transcoder, opts Options, logger *slog.Logger) *Optimizer {
	if opts.CacheDir == "" {
		opts.CacheDir = filepath.Join(".cache", "optimized_videos")
	}
	if opts.Height <= 0 {
		opts.Height = 360
	}
	if opts.FPS <= 0 {
		opts.FPS = 10
	}
	if opts.SWEncoder == "" {
		opts.SWEncoder = "libx264"
	}
	return &Optimizer{
		transcoder: transcoder,
		opts:       opts,
		logger:     logger.With("component", "video_optimizer"),
	}
}

type encoder struct {
	name  string
	path  string
	extra []string
}

func (o *Optimizer) encoders() []encoder {
	var list []encoder
	if o.opts.HWEncoder != "" && o.opts.HWEncoder != o.opts.SWEncoder {
		list = append(list, encoder{name: o.opts.HWEncoder, path: pathHardware})
	}
	list = append(list, encoder{
		name:  o.opts.SWEncoder,
		path:  pathSoftware,
		extra: []string{"-preset", "veryfast", "-crf", "28"},
	})
	return list
}

// Optimize returns a cached or freshly transcoded copy of the video at path.
// It never fails outright: when no encoder succeeds the source path is
// returned with Degraded set.
func (o *Optimizer) Optimize(ctx context.Context, path string) Result {
	start := time.Now()

	info, err := os.Stat(path)
	if err != nil {
		RecordOptimize(outcomeDegraded, time.Since(start).Seconds())
		return Result{Path: path, Degraded: fmt.Errorf("%w: %w", ErrOptimizationFailed, err)}
	}
	original := Result{Path: path, Size: info.Size()}

	if err := os.MkdirAll(o.opts.CacheDir, 0o755); err != nil {
		o.logger.Warn("Cannot create video cache directory", "dir", o.opts.CacheDir, "error", err)
		RecordOptimize(outcomeDegraded, time.Since(start).Seconds())
		original.Degraded = fmt.Errorf("%w: %w", ErrOptimizationFailed, err)
		return original
	}

	target := filepath.Join(o.opts.CacheDir, CacheKey(path, info.ModTime()))
	if cached, err := os.Stat(target); err == nil && cached.Size() > 0 {
		o.logger.Debug("Using cached optimized video", "source", path, "cached", target)
		RecordOptimize(outcomeCacheHit, time.Since(start).Seconds())
		return Result{Path: target, Size: cached.Size(), CacheHit: true}
	}

	o.logger.Info("Optimizing video",
		"source", path,
		"size_bytes", info.Size(),
		"height", o.opts.Height,
		"fps", o.opts.FPS,
	)

	var errs []error
	for _, enc := range o.encoders() {
		size, err := o.encode(ctx, path, target, enc)
		RecordEncode(enc.path, err == nil)
		if err == nil {
			o.logger.Info("Video optimized",
				"source", path,
				"output", target,
				"encoder", enc.name,
				"original_bytes", info.Size(),
				"optimized_bytes", size,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			RecordOptimize(outcomeTranscoded, time.Since(start).Seconds())
			return Result{Path: target, Size: size, Encoder: enc.name}
		}

		o.logger.Warn("Encoder failed", "encoder", enc.name, "path", enc.path, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", enc.name, err))
		if ctx.Err() != nil {
			break
		}
	}

	RecordOptimize(outcomeDegraded, time.Since(start).Seconds())
	original.Degraded = fmt.Errorf("%w: %w", ErrOptimizationFailed, errors.Join(errs...))
	return original
}

// encode writes to a unique temp file in the cache dir and renames it into
// place, so readers of target never observe a partial file.
func (o *Optimizer) encode(ctx context.Context, src, target string, enc encoder) (int64, error) {
	if o.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.Timeout)
		defer cancel()
	}

	tmp := filepath.Join(o.opts.CacheDir, ".tmp-"+uuid.NewString()+".mp4")
	defer os.Remove(tmp)

	if err := o.transcoder.Transcode(ctx, o.args(src, tmp, enc)); err != nil {
		return 0, err
	}

	info, err := os.Stat(tmp)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, errEmptyOutput
		}
		return 0, err
	}
	if info.Size() == 0 {
		return 0, errEmptyOutput
	}

	if err := os.Rename(tmp, target); err != nil {
		return 0, fmt.Errorf("failed to move optimized video into cache: %w", err)
	}
	return info.Size(), nil
}

func (o *Optimizer) args(src, dst string, enc encoder) []string {
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", src,
		"-vf", fmt.Sprintf("scale=-2:%d,fps=%d", o.opts.Height, o.opts.FPS),
		"-c:v", enc.name,
	}
	args = append(args, enc.extra...)
	return append(args, "-an", "-movflags", "+faststart", dst)
}

// CacheKey is the cache file name for a source: its modification time in
// unix seconds, a short digest of its absolute path and its sanitized base
// name, always with an .mp4 extension.
func CacheKey(path string, modTime time.Time) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strconv.FormatInt(modTime.Unix(), 10) + "_" + pathDigest(path) + "_" + sanitize(base) + ".mp4"
}

func pathDigest(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	sum := sha1.Sum([]byte(abs))
	return hex.EncodeToString(sum[:])[:8]
}

// sanitize keeps letters and digits of any script plus '.', '_' and '-'.
func sanitize(name string) string {
	if name == "" {
		return "video"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return r
		case r == '.', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, name)
}
