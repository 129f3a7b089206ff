// Package imagegen pulls generated images out of assistant replies and
// writes embedded image data to disk.
package imagegen

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// DefaultSize is requested when no size is given.
const DefaultSize = "1024x1024"

var sizeAliases = map[string]string{
	"16:9": "1920x1080",
	"9:16": "1080x1920",
	"4:3":  "1024x768",
	"1:1":  "1024x1024",
}

// ResolveSize maps aspect-ratio aliases to pixel sizes and passes anything
// else through unchanged.
func ResolveSize(size string) string {
	size = strings.TrimSpace(size)
	if size == "" {
		return DefaultSize
	}
	if s, ok := sizeAliases[size]; ok {
		return s
	}
	return size
}

// Image is one image found in a reply: either embedded data or a remote URL.
type Image struct {
	URL      string
	MimeType string
	Data     []byte
}

// Embedded reports whether the image bytes are carried in the reply.
func (i Image) Embedded() bool {
	return len(i.Data) > 0
}

var (
	dataURIPattern  = regexp.MustCompile(`data:(image/[a-zA-Z0-9.+-]+);base64,([A-Za-z0-9+/]+={0,2})`)
	markdownPattern = regexp.MustCompile(`!\[[^\]]*\]\((https?://[^\s)]+)\)`)
	urlPattern      = regexp.MustCompile(`https?://[^\s<>"'()\[\]]+`)
	imageExtPattern = regexp.MustCompile(`(?i)\.(png|jpe?g|gif|webp|bmp)$`)
)

type match struct {
	pos   int
	image Image
}

// Extract returns the images in content in order of appearance: base64 data
// URIs, markdown image links, and bare URLs ending in an image extension.
func Extract(content string) []Image {
	var found []match
	seen := make(map[string]bool)

	for _, m := range dataURIPattern.FindAllStringSubmatchIndex(content, -1) {
		mimeType := content[m[2]:m[3]]
		data, err := base64.StdEncoding.DecodeString(content[m[4]:m[5]])
		if err != nil || len(data) == 0 {
			continue
		}
		found = append(found, match{pos: m[0], image: Image{MimeType: mimeType, Data: data}})
	}

	for _, m := range markdownPattern.FindAllStringSubmatchIndex(content, -1) {
		u := content[m[2]:m[3]]
		if !seen[u] {
			seen[u] = true
			found = append(found, match{pos: m[2], image: Image{URL: u}})
		}
	}

	for _, m := range urlPattern.FindAllStringIndex(content, -1) {
		u := strings.TrimRight(content[m[0]:m[1]], ".,;:!?")
		if seen[u] || !looksLikeImage(u) {
			continue
		}
		seen[u] = true
		found = append(found, match{pos: m[0], image: Image{URL: u}})
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].pos < found[j].pos })
	images := make([]Image, 0, len(found))
	for _, f := range found {
		images = append(images, f.image)
	}
	return images
}

func looksLikeImage(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return imageExtPattern.MatchString(u.Path)
}

// Saved describes the result of Save for one image.
type Saved struct {
	Image Image
	// Path is set for embedded images written to disk.
	Path string
}

// Save writes embedded images to dir as <prefix>_<unix>_<index>.<ext>.
// URL images are returned as-is without being fetched.
func Save(dir, prefix string, images []Image, now time.Time) ([]Saved, error) {
	if prefix == "" {
		prefix = "image"
	}
	results := make([]Saved, 0, len(images))
	for i, img := range images {
		if !img.Embedded() {
			results = append(results, Saved{Image: img})
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return results, fmt.Errorf("failed to create output directory: %w", err)
		}
		name := fmt.Sprintf("%s_%d_%d.%s", prefix, now.Unix(), i, extension(img.MimeType))
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, img.Data, 0o644); err != nil {
			return results, fmt.Errorf("failed to save image: %w", err)
		}
		results = append(results, Saved{Image: img, Path: path})
	}
	return results, nil
}

func extension(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "png"
	}
}
