package video

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/runixer/mediachat/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var sourceModTime = time.Unix(1700000000, 0)

func newTestOptimizer(t *testing.T, tr Transcoder) (*Optimizer, string) {
	t.Helper()
	cacheDir := filepath.Join(t.TempDir(), "optimized_videos")
	opt := NewOptimizer(tr, Options{
		CacheDir:  cacheDir,
		Height:    360,
		FPS:       10,
		HWEncoder: "h264_nvenc",
		SWEncoder: "libx264",
		Timeout:   time.Minute,
	}, testutil.TestLogger())
	return opt, cacheDir
}

func writeSource(t *testing.T, name string) string {
	t.Helper()
	path := testutil.WriteSizedFile(t, t.TempDir(), name, 4096)
	testutil.SetModTime(t, path, sourceModTime)
	return path
}

func cacheEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestOptimize_SecondCallHitsCache(t *testing.T) {
	fake := testutil.NewFakeTranscoder(testutil.OptimizedVideo)
	opt, cacheDir := newTestOptimizer(t, fake)
	src := writeSource(t, "clip.mov")

	first := opt.Optimize(context.Background(), src)
	require.NoError(t, first.Degraded)
	assert.False(t, first.CacheHit)
	assert.Equal(t, "h264_nvenc", first.Encoder)
	assert.Equal(t, filepath.Join(cacheDir, CacheKey(src, sourceModTime)), first.Path)
	assert.Equal(t, int64(len(testutil.OptimizedVideo)), first.Size)

	second := opt.Optimize(context.Background(), src)
	require.NoError(t, second.Degraded)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Path, second.Path)

	assert.Len(t, fake.Calls(), 1, "cached result must not invoke the transcoder")
	assert.Equal(t, []string{CacheKey(src, sourceModTime)}, cacheEntries(t, cacheDir))
}

func TestOptimize_ModTimeChangeInvalidatesCache(t *testing.T) {
	fake := testutil.NewFakeTranscoder(testutil.OptimizedVideo)
	opt, _ := newTestOptimizer(t, fake)
	src := writeSource(t, "clip.mp4")

	first := opt.Optimize(context.Background(), src)
	testutil.SetModTime(t, src, sourceModTime.Add(time.Hour))
	second := opt.Optimize(context.Background(), src)

	assert.NotEqual(t, first.Path, second.Path)
	assert.False(t, second.CacheHit)
	assert.Len(t, fake.Calls(), 2)
}

func TestOptimize_FallsBackToSoftwareEncoder(t *testing.T) {
	fake := testutil.NewFakeTranscoder(testutil.OptimizedVideo)
	fake.Fail["h264_nvenc"] = errors.New("No NVENC capable devices found")
	opt, _ := newTestOptimizer(t, fake)
	src := writeSource(t, "clip.mp4")

	res := opt.Optimize(context.Background(), src)

	require.NoError(t, res.Degraded)
	assert.True(t, res.Optimized())
	assert.Equal(t, "libx264", res.Encoder)
	assert.Equal(t, []string{"h264_nvenc", "libx264"}, fake.Encoders())

	args := strings.Join(fake.Calls()[1], " ")
	assert.Contains(t, args, "-preset veryfast -crf 28")
}

func TestOptimize_AllEncodersFailReturnsOriginal(t *testing.T) {
	fake := testutil.NewFakeTranscoder(testutil.OptimizedVideo)
	fake.Fail["h264_nvenc"] = errors.New("nvenc unavailable")
	fake.Fail["libx264"] = errors.New("ffmpeg crashed")
	opt, cacheDir := newTestOptimizer(t, fake)
	src := writeSource(t, "clip.mp4")

	res := opt.Optimize(context.Background(), src)

	assert.Equal(t, src, res.Path)
	assert.Equal(t, int64(4096), res.Size)
	assert.False(t, res.Optimized())
	assert.ErrorIs(t, res.Degraded, ErrOptimizationFailed)
	assert.Contains(t, res.Degraded.Error(), "nvenc unavailable")
	assert.Contains(t, res.Degraded.Error(), "ffmpeg crashed")
	assert.Empty(t, cacheEntries(t, cacheDir), "failed attempts leave no files behind")
}

func TestOptimize_EmptyOutputIsFailure(t *testing.T) {
	fake := testutil.NewFakeTranscoder(nil)
	opt, cacheDir := newTestOptimizer(t, fake)
	src := writeSource(t, "clip.mp4")

	res := opt.Optimize(context.Background(), src)

	assert.Equal(t, src, res.Path)
	assert.ErrorIs(t, res.Degraded, ErrOptimizationFailed)
	assert.ErrorIs(t, res.Degraded, errEmptyOutput)
	assert.Len(t, fake.Calls(), 2)
	assert.Empty(t, cacheEntries(t, cacheDir))
}

func TestOptimize_MissingSource(t *testing.T) {
	fake := testutil.NewFakeTranscoder(testutil.OptimizedVideo)
	opt, _ := newTestOptimizer(t, fake)
	missing := filepath.Join(t.TempDir(), "gone.mp4")

	res := opt.Optimize(context.Background(), missing)

	assert.Equal(t, missing, res.Path)
	assert.ErrorIs(t, res.Degraded, ErrOptimizationFailed)
	assert.ErrorIs(t, res.Degraded, os.ErrNotExist)
	assert.Empty(t, fake.Calls())
}

func TestOptimize_TranscoderArguments(t *testing.T) {
	tr := new(testutil.MockTranscoder)
	tr.On("Transcode", mock.Anything, mock.MatchedBy(func(args []string) bool {
		return testutil.EncoderArg(args) == "h264_nvenc"
	})).Return(errors.New("hardware path broken")).Once()
	tr.On("Transcode", mock.Anything, mock.MatchedBy(func(args []string) bool {
		return testutil.EncoderArg(args) == "libx264"
	})).Run(func(callArgs mock.Arguments) {
		args := callArgs.Get(1).([]string)
		require.NoError(t, os.WriteFile(args[len(args)-1], testutil.OptimizedVideo, 0o600))
	}).Return(nil).Once()

	opt, cacheDir := newTestOptimizer(t, tr)
	src := writeSource(t, "my clip (1).MOV")

	res := opt.Optimize(context.Background(), src)
	require.NoError(t, res.Degraded)
	assert.Equal(t, filepath.Join(cacheDir, CacheKey(src, sourceModTime)), res.Path)
	assert.True(t, strings.HasSuffix(res.Path, "_my_clip__1_.mp4"))

	tr.AssertExpectations(t)
	args := tr.Calls[1].Arguments.Get(1).([]string)
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-i "+src)
	assert.Contains(t, joined, "-vf scale=-2:360,fps=10")
	assert.Contains(t, joined, "-an -movflags +faststart")

	tmp := args[len(args)-1]
	assert.Equal(t, cacheDir, filepath.Dir(tmp), "temp output lives next to the cache entry")
	assert.NotEqual(t, res.Path, tmp)
}

func TestOptimize_ConcurrentSameSource(t *testing.T) {
	fake := testutil.NewFakeTranscoder(testutil.OptimizedVideo)
	opt, cacheDir := newTestOptimizer(t, fake)
	src := writeSource(t, "clip.mp4")

	const workers = 4
	results := make([]Result, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = opt.Optimize(context.Background(), src)
		}(i)
	}
	wg.Wait()

	for _, res := range results {
		require.NoError(t, res.Degraded)
		assert.Equal(t, filepath.Join(cacheDir, CacheKey(src, sourceModTime)), res.Path)
	}
	data, err := os.ReadFile(results[0].Path)
	require.NoError(t, err)
	assert.Equal(t, testutil.OptimizedVideo, data)
	assert.Equal(t, []string{CacheKey(src, sourceModTime)}, cacheEntries(t, cacheDir))
}

func TestOptimize_SkipsHardwareWhenDisabled(t *testing.T) {
	fake := testutil.NewFakeTranscoder(testutil.OptimizedVideo)
	opt := NewOptimizer(fake, Options{CacheDir: t.TempDir()}, testutil.TestLogger())

	res := opt.Optimize(context.Background(), writeSource(t, "clip.mp4"))

	require.NoError(t, res.Degraded)
	assert.Equal(t, []string{"libx264"}, fake.Encoders())
}

func TestCacheKey(t *testing.T) {
	mtime := time.Unix(1712345678, 0)
	keyPattern := regexp.MustCompile(`^1712345678_[0-9a-f]{8}_(.+)\.mp4$`)

	tests := []struct {
		path string
		base string
	}{
		{path: "/videos/clip.mov", base: "clip"},
		{path: "v¡deo!.webm", base: "v_deo_"},
		{path: "a.b-c_d.mkv", base: "a.b-c_d"},
		{path: "/videos/视频 01.mp4", base: "视频_01"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			m := keyPattern.FindStringSubmatch(CacheKey(tt.path, mtime))
			require.NotNil(t, m, "unexpected key format")
			assert.Equal(t, tt.base, m[1])
		})
	}

	assert.NotEqual(t, CacheKey("/a/clip.mp4", mtime), CacheKey("/b/clip.mp4", mtime),
		"same name in different directories")
	abs, err := filepath.Abs("clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, CacheKey(abs, mtime), CacheKey("clip.mp4", mtime),
		"relative and absolute spellings of one path")
}

func TestOptimize_DistinctSourcesSharingModTime(t *testing.T) {
	fake := testutil.NewFakeTranscoder(testutil.OptimizedVideo)
	opt, cacheDir := newTestOptimizer(t, fake)

	dir := t.TempDir()
	first := testutil.WriteFile(t, dir, "视频.mp4", []byte("AAAA"))
	second := testutil.WriteFile(t, dir, "录像.mp4", []byte("BBBB"))
	testutil.SetModTime(t, first, sourceModTime)
	testutil.SetModTime(t, second, sourceModTime)

	a := opt.Optimize(context.Background(), first)
	b := opt.Optimize(context.Background(), second)
	require.NoError(t, a.Degraded)
	require.NoError(t, b.Degraded)

	assert.False(t, a.CacheHit)
	assert.False(t, b.CacheHit, "another source must not reuse the first encode")
	assert.NotEqual(t, a.Path, b.Path)
	assert.Len(t, fake.Calls(), 2)
	assert.Len(t, cacheEntries(t, cacheDir), 2)

	// Same name in another directory with the same mtime.
	copyPath := testutil.WriteFile(t, t.TempDir(), "视频.mp4", []byte("CCCC"))
	testutil.SetModTime(t, copyPath, sourceModTime)
	c := opt.Optimize(context.Background(), copyPath)
	require.NoError(t, c.Degraded)
	assert.False(t, c.CacheHit)
	assert.NotEqual(t, a.Path, c.Path)
}
