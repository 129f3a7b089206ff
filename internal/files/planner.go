package files

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/runixer/mediachat/internal/gateway"
	"github.com/runixer/mediachat/internal/media"
	"github.com/runixer/mediachat/internal/upload"
	"github.com/runixer/mediachat/internal/video"
)

// Optimizer shrinks a video file. *video.Optimizer implements it.
type Optimizer interface {
	Optimize(ctx context.Context, path string) video.Result
}

// Uploader registers a file with the gateway. *upload.Resolver implements it.
type Uploader interface {
	Upload(ctx context.Context, path string) (upload.Ref, error)
}

// PlannerOptions holds the routing thresholds.
type PlannerOptions struct {
	// CompressThreshold is the video size in bytes above which the
	// optimizer runs.
	CompressThreshold int64
	// InlineThreshold is the size in bytes above which the file is
	// uploaded instead of inlined.
	InlineThreshold int64
	// Concurrency bounds how many attachments are prepared at once.
	Concurrency int
}

// Planner decides how each attachment is delivered and merges the
// resulting blocks into the last user message.
type Planner struct {
	optimizer Optimizer
	uploader  Uploader
	opts      PlannerOptions
	logger    *slog.Logger
}

// NewPlanner creates a planner. A nil optimizer or uploader disables that step.
func NewPlanner(optimizer Optimizer, uploader Uploader, opts PlannerOptions, logger *slog.Logger) *Planner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Planner{
		optimizer: optimizer,
		uploader:  uploader,
		opts:      opts,
		logger:    logger.With("component", "attachment_planner"),
	}
}

// Plan prepares every path and returns messages with the produced blocks
// appended to the final message, plus one Outcome per path in input order.
// Attachment failures never abort the plan.
func (p *Planner) Plan(ctx context.Context, paths []string, messages []gateway.Message) ([]gateway.Message, []Outcome) {
	outcomes := make([]Outcome, len(paths))
	prepared := make([]*gateway.ContentBlock, len(paths))

	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			outcomes[i], prepared[i] = p.prepare(ctx, path)
			return nil
		})
	}
	_ = g.Wait()

	var blocks []gateway.ContentBlock
	for _, b := range prepared {
		if b != nil {
			blocks = append(blocks, *b)
		}
	}

	merged, added, ok := mergeBlocks(messages, blocks)
	if !ok && len(blocks) > 0 {
		p.logger.Warn("Attachments not merged: last message is not from the user",
			"blocks", len(blocks),
			"message_count", len(messages),
		)
	}

	// Outcomes follow what was actually sent.
	j := 0
	for i, b := range prepared {
		if b == nil {
			continue
		}
		switch {
		case !ok:
			outcomes[i].Transport = TransportDropped
			outcomes[i].Reason = ErrNotMerged
		case !added[j]:
			outcomes[i].Transport = TransportSkipped
			outcomes[i].Reason = ErrDuplicate
			p.logger.Info("Duplicate attachment skipped", "path", outcomes[i].Path)
		}
		j++
	}
	return merged, outcomes
}

func (p *Planner) prepare(ctx context.Context, path string) (Outcome, *gateway.ContentBlock) {
	out := Outcome{Path: path, SentPath: path}

	att, err := NewAttachment(path)
	if err != nil {
		out.Transport = TransportSkipped
		out.Reason = err
		p.logger.Warn("Attachment skipped", "path", path, "error", err)
		RecordAttachment(media.KindOther, TransportSkipped, 0)
		return out, nil
	}
	out.Kind = att.Kind
	size := att.Size

	if att.Kind == media.KindVideo && size > p.opts.CompressThreshold && p.optimizer != nil {
		res := p.optimizer.Optimize(ctx, path)
		if res.Degraded != nil {
			out.Degraded = append(out.Degraded, res.Degraded)
			p.logger.Warn("Video optimization failed, sending original", "path", path, "error", res.Degraded)
		} else {
			out.Optimized = true
			out.SentPath = res.Path
			size = res.Size
		}
	}

	if size > p.opts.InlineThreshold && p.uploader != nil {
		ref, err := p.uploader.Upload(ctx, out.SentPath)
		if err == nil {
			out.Transport = TransportUploaded
			block := gateway.FileURLBlock(ref.URI, ref.MimeType)
			RecordAttachment(att.Kind, TransportUploaded, size)
			p.logger.Info("Attachment uploaded", "path", path, "uri", ref.URI, "size_bytes", size)
			return out, &block
		}
		out.Degraded = append(out.Degraded, err)
		p.logger.Warn("Upload failed, falling back to inline encoding", "path", path, "error", err)
	}

	block, err := Inline(out.SentPath)
	if err != nil {
		out.Transport = TransportDropped
		out.Reason = fmt.Errorf("%w: %w", ErrEncodingFailed, err)
		p.logger.Warn("Attachment dropped", "path", path, "error", err)
		RecordAttachment(att.Kind, TransportDropped, 0)
		return out, nil
	}

	out.Transport = TransportInline
	RecordAttachment(att.Kind, TransportInline, size)
	p.logger.Debug("Attachment inlined", "path", path, "size_bytes", size, "optimized", out.Optimized)
	return out, &block
}

// Merge appends blocks to the last message when it is a user message.
// Plain string content becomes a leading text block, and blocks whose type
// and URL already appear in the message are not added again. The input
// slice is not modified. ok is false when blocks were supplied but could
// not be merged.
func Merge(messages []gateway.Message, blocks []gateway.ContentBlock) ([]gateway.Message, bool) {
	out, _, ok := mergeBlocks(messages, blocks)
	return out, ok
}

// mergeBlocks is Merge that also reports, per block, whether it was added.
func mergeBlocks(messages []gateway.Message, blocks []gateway.ContentBlock) ([]gateway.Message, []bool, bool) {
	out := make([]gateway.Message, len(messages))
	copy(out, messages)
	added := make([]bool, len(blocks))

	if len(blocks) == 0 {
		return out, added, true
	}
	if len(out) == 0 || out[len(out)-1].Role != gateway.RoleUser {
		return out, added, false
	}

	last := out[len(out)-1]
	content := last.ContentBlocks()
	seen := make(map[string]bool, len(content)+len(blocks))
	for _, b := range content {
		if b.Type != gateway.BlockText {
			seen[blockKey(b)] = true
		}
	}
	for i, b := range blocks {
		key := blockKey(b)
		if seen[key] {
			continue
		}
		seen[key] = true
		content = append(content, b)
		added[i] = true
	}

	out[len(out)-1] = gateway.Message{Role: last.Role, Blocks: content}
	return out, added, true
}

func blockKey(b gateway.ContentBlock) string {
	return b.Type + "\x00" + b.URL()
}

// Summary joins the failure reasons of all outcomes.
func Summary(outcomes []Outcome) error {
	var errs []error
	for _, o := range outcomes {
		if err := o.Err(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.Path, err))
		}
	}
	return errors.Join(errs...)
}
