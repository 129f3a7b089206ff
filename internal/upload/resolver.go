// Package upload registers local files with the gateway's file endpoint so
// large media can be referenced by URI instead of being inlined.
package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/runixer/mediachat/internal/media"
)

// ErrNotFound means no candidate endpoint accepted the file in any format.
var ErrNotFound = errors.New("no upload endpoint accepted the file")

// maxResponseBody bounds how much of an upload response is read.
const maxResponseBody = 1 << 20

// Ref is a gateway-side reference to an uploaded file.
type Ref struct {
	URI      string
	MimeType string
}

// Options configures the Resolver.
type Options struct {
	BaseURL   string
	APIKey    string
	UserAgent string
	// HTTP must allow long transfers; uploads are not retried.
	HTTP *http.Client
}

// Resolver tries each candidate endpoint with each request shape until one
// returns a file reference.
type Resolver struct {
	httpClient *http.Client
	apiKey     string
	userAgent  string
	candidates []string
	strategies []strategy
	logger     *slog.Logger
}

// localFile is what a strategy needs to build one request.
type localFile struct {
	path     string
	name     string
	mimeType string
	size     int64
}

// strategy builds one upload request shape for endpoint.
type strategy struct {
	name  string
	build func(ctx context.Context, endpoint string, f localFile) (*http.Request, error)
}

// NewResolver derives the candidate endpoints from opts.BaseURL.
func NewResolver(logger *slog.Logger, opts Options) (*Resolver, error) {
	if opts.APIKey == "" {
		return nil, errors.New("upload API key is required")
	}
	candidates, err := Candidates(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	if opts.HTTP == nil {
		opts.HTTP = &http.Client{Timeout: 10 * time.Minute}
	}
	return &Resolver{
		httpClient: opts.HTTP,
		apiKey:     opts.APIKey,
		userAgent:  opts.UserAgent,
		candidates: candidates,
		strategies: []strategy{
			{name: strategyMultipart, build: multipartRequest},
			{name: strategyRaw, build: rawRequest},
		},
		logger: logger.With("component", "upload_resolver"),
	}, nil
}

var versionSegment = regexp.MustCompile(`^v\d+[a-z]*\d*$`)

// Candidates lists the file endpoints to try for baseURL, in order:
// {base}/files, then for versioned bases the /upload sibling path and the
// unversioned path.
func Candidates(baseURL string) ([]string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host are required", baseURL)
	}

	root := u.Scheme + "://" + u.Host
	path := strings.Trim(u.Path, "/")
	var segments []string
	if path != "" {
		segments = strings.Split(path, "/")
	}

	candidates := []string{filesURL(root, segments)}
	for i, seg := range segments {
		if !versionSegment.MatchString(seg) {
			continue
		}
		candidates = append(candidates, filesURL(root, append([]string{"upload"}, segments...)))

		unversioned := append(append([]string{}, segments[:i]...), segments[i+1:]...)
		candidates = append(candidates, filesURL(root, unversioned))
		break
	}

	seen := make(map[string]bool, len(candidates))
	out := candidates[:0]
	for _, c := range candidates {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out, nil
}

func filesURL(root string, segments []string) string {
	if len(segments) == 0 {
		return root + "/files"
	}
	return root + "/" + strings.Join(segments, "/") + "/files"
}

// Upload sends the file at path. The error wraps ErrNotFound together with
// every attempt's failure when nothing succeeded.
func (r *Resolver) Upload(ctx context.Context, path string) (Ref, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Ref{}, err
	}
	mimeType, err := media.DetectFile(path)
	if err != nil {
		return Ref{}, err
	}
	f := localFile{
		path:     path,
		name:     filepath.Base(path),
		mimeType: mimeType,
		size:     info.Size(),
	}

	start := time.Now()
	var errs []error
	for _, endpoint := range r.candidates {
		for _, s := range r.strategies {
			if err := ctx.Err(); err != nil {
				RecordUpload(outcomeFailure, time.Since(start).Seconds())
				return Ref{}, err
			}

			ref, err := r.attempt(ctx, endpoint, s, f)
			if err == nil {
				RecordUpload(outcomeSuccess, time.Since(start).Seconds())
				r.logger.Info("File uploaded",
					"file", f.name,
					"size_bytes", f.size,
					"endpoint", endpoint,
					"strategy", s.name,
					"uri", ref.URI,
					"duration_ms", time.Since(start).Milliseconds(),
				)
				return ref, nil
			}

			r.logger.Debug("Upload attempt failed", "endpoint", endpoint, "strategy", s.name, "error", err)
			errs = append(errs, fmt.Errorf("%s %s: %w", s.name, endpoint, err))
		}
	}

	RecordUpload(outcomeFailure, time.Since(start).Seconds())
	r.logger.Warn("All upload attempts failed", "file", f.name, "attempts", len(errs))
	return Ref{}, fmt.Errorf("%w: %w", ErrNotFound, errors.Join(errs...))
}

func (r *Resolver) attempt(ctx context.Context, endpoint string, s strategy, f localFile) (Ref, error) {
	req, err := s.build(ctx, endpoint, f)
	if err != nil {
		RecordAttempt(s.name, statusTransportError)
		return Ref{}, err
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		RecordAttempt(s.name, statusTransportError)
		return Ref{}, err
	}
	defer resp.Body.Close()
	RecordAttempt(s.name, fmt.Sprint(resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return Ref{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Ref{}, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	uri, mimeType := parseReference(body)
	if uri == "" {
		return Ref{}, fmt.Errorf("response carries no file reference: %s", truncate(string(body), 200))
	}
	if mimeType == "" {
		mimeType = f.mimeType
	}
	return Ref{URI: uri, MimeType: mimeType}, nil
}

// multipartRequest streams the file as the "file" form field.
func multipartRequest(ctx context.Context, endpoint string, f localFile) (*http.Request, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer file.Close()
		pw.CloseWithError(writeMultipart(mw, file, f))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		_ = pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req, nil
}

func writeMultipart(mw *multipart.Writer, file io.Reader, f localFile) error {
	if err := mw.WriteField("purpose", "user_data"); err != nil {
		return err
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, f.name))
	h.Set("Content-Type", f.mimeType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	return mw.Close()
}

// rawRequest sends the file bytes as the request body.
func rawRequest(ctx context.Context, endpoint string, f localFile) (*http.Request, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, file)
	if err != nil {
		file.Close()
		return nil, err
	}
	req.ContentLength = f.size
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-File-Name", f.name)
	req.Header.Set("X-File-Type", f.mimeType)
	return req, nil
}

var referenceKeys = []string{"file_uri", "uri", "id"}

// parseReference finds the file reference at the top level of the response
// or nested under "file" or "data".
func parseReference(body []byte) (uri, mimeType string) {
	var doc map[string]interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", ""
	}

	objects := []map[string]interface{}{doc}
	for _, key := range []string{"file", "data"} {
		switch nested := doc[key].(type) {
		case map[string]interface{}:
			objects = append(objects, nested)
		case []interface{}:
			if len(nested) > 0 {
				if first, ok := nested[0].(map[string]interface{}); ok {
					objects = append(objects, first)
				}
			}
		}
	}

	for _, obj := range objects {
		for _, key := range referenceKeys {
			if s, ok := obj[key].(string); ok && s != "" {
				return s, stringField(obj, "mime_type", "mimeType")
			}
		}
	}
	return "", ""
}

func stringField(obj map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if s, ok := obj[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
