package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// maxErrorBody bounds how much of a failed response is read into an APIError.
const maxErrorBody = 64 * 1024

// Client talks to an OpenAI-compatible chat gateway.
type Client interface {
	// ChatStream sends a streaming chat request. Non-success statuses are
	// returned as a Stream, only transport failures return an error.
	ChatStream(ctx context.Context, messages []Message, model string, temperature float64) (*Stream, error)
	// Complete sends a non-streaming chat request and returns the assistant text.
	Complete(ctx context.Context, req ChatRequest) (string, error)
	// GenerateImage asks the image model for a picture described by prompt.
	GenerateImage(ctx context.Context, prompt, size string) (string, error)
	// ListModels returns the models announced by the gateway.
	ListModels(ctx context.Context) ([]Model, error)
}

// Downgrade is the single model substitution applied on 503.
type Downgrade struct {
	From string
	To   string
}

// Applies reports whether a 503 for model should be retried with To.
func (d Downgrade) Applies(model string) bool {
	return d.From != "" && d.To != "" && model == d.From && d.From != d.To
}

// Options configures the gateway client.
type Options struct {
	BaseURL   string
	APIKey    string
	UserAgent string

	// StreamHTTP carries chat requests and must allow large media payloads.
	StreamHTTP *http.Client
	// HTTP carries short requests such as model listing.
	HTTP *http.Client

	DefaultModel string
	ImageModel   string
	Downgrade    Downgrade
}

type clientImpl struct {
	streamHTTP *http.Client
	httpClient *http.Client
	apiKey     string
	baseURL    string
	userAgent  string

	defaultModel string
	imageModel   string
	downgrade    Downgrade

	logger *slog.Logger
}

// NewClient creates a gateway client from explicitly constructed HTTP handles.
func NewClient(logger *slog.Logger, opts Options) (Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("gateway base URL is required")
	}
	if opts.APIKey == "" {
		return nil, errors.New("gateway API key is required")
	}
	if opts.StreamHTTP == nil {
		opts.StreamHTTP = &http.Client{Timeout: 10 * time.Minute}
	}
	if opts.HTTP == nil {
		opts.HTTP = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "mediachat/1.0"
	}

	return &clientImpl{
		streamHTTP:   opts.StreamHTTP,
		httpClient:   opts.HTTP,
		apiKey:       opts.APIKey,
		baseURL:      opts.BaseURL,
		userAgent:    opts.UserAgent,
		defaultModel: opts.DefaultModel,
		imageModel:   opts.ImageModel,
		downgrade:    opts.Downgrade,
		logger:       logger.With("component", "gateway_client"),
	}, nil
}

func (c *clientImpl) ChatStream(ctx context.Context, messages []Message, model string, temperature float64) (*Stream, error) {
	if model == "" {
		model = c.defaultModel
	}
	req := ChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		Stream:      true,
	}

	c.logger.Info("Sending request to gateway",
		"model", model,
		"message_count", len(messages),
		"attachment_blocks", countMediaBlocks(messages),
	)

	start := time.Now()
	resp, err := c.postChat(ctx, c.streamHTTP, req)
	if err != nil {
		RecordLLMRequest(model, kindStream, statusTransportError, time.Since(start).Seconds())
		return nil, &TransportError{Op: "chat", Err: err}
	}

	downgraded := false
	if resp.StatusCode == http.StatusServiceUnavailable && c.downgrade.Applies(model) {
		RecordLLMRequest(model, kindStream, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())
		discardBody(resp.Body)

		c.logger.Warn("Gateway unavailable, retrying once with downgraded model",
			"from", model,
			"to", c.downgrade.To,
		)
		RecordLLMDowngrade(model, c.downgrade.To)

		req.Model = c.downgrade.To
		model = c.downgrade.To
		downgraded = true

		start = time.Now()
		resp, err = c.postChat(ctx, c.streamHTTP, req)
		if err != nil {
			RecordLLMRequest(model, kindStream, statusTransportError, time.Since(start).Seconds())
			return nil, &TransportError{Op: "chat", Err: err}
		}
	}

	RecordLLMRequest(model, kindStream, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())
	c.logger.Debug("Gateway response received", "status", resp.Status, "model", model, "downgraded", downgraded)

	return &Stream{
		StatusCode: resp.StatusCode,
		Model:      model,
		Downgraded: downgraded,
		Body:       resp.Body,
	}, nil
}

func (c *clientImpl) Complete(ctx context.Context, req ChatRequest) (string, error) {
	if req.Model == "" {
		req.Model = c.defaultModel
	}
	req.Stream = false

	start := time.Now()
	resp, err := c.postChat(ctx, c.streamHTTP, req)
	if err != nil {
		RecordLLMRequest(req.Model, kindComplete, statusTransportError, time.Since(start).Seconds())
		return "", &TransportError{Op: "chat", Err: err}
	}
	defer resp.Body.Close()
	RecordLLMRequest(req.Model, kindComplete, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Error("Gateway returned non-OK status", "status", resp.Status, "body", truncateForLog(string(body), 500))
		return "", newAPIError(resp.StatusCode, req.Model, body)
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", errors.New("gateway returned no choices")
	}

	c.logger.Info("Gateway response parsed successfully",
		"model", chatResp.Model,
		"prompt_tokens", chatResp.Usage.PromptTokens,
		"completion_tokens", chatResp.Usage.CompletionTokens,
	)
	return chatResp.Choices[0].Message.Content, nil
}

func (c *clientImpl) GenerateImage(ctx context.Context, prompt, size string) (string, error) {
	c.logger.Info("Sending image request", "model", c.imageModel, "size", size)
	return c.Complete(ctx, ChatRequest{
		Model:       c.imageModel,
		Messages:    []Message{UserMessage(prompt)},
		Temperature: 1,
		Size:        size,
	})
}

func (c *clientImpl) ListModels(ctx context.Context) ([]Model, error) {
	endpoint, err := url.JoinPath(c.baseURL, "models")
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(httpReq)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		RecordLLMRequest("", kindModels, statusTransportError, time.Since(start).Seconds())
		return nil, &TransportError{Op: "models", Err: err}
	}
	defer resp.Body.Close()
	RecordLLMRequest("", kindModels, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: "models", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(resp.StatusCode, "", body)
	}

	return parseModels(body)
}

// parseModels accepts both {"data": [...]} and a bare list, with entries
// given either as objects or as plain model id strings.
func parseModels(body []byte) ([]Model, error) {
	var envelope struct {
		Data []json.RawMessage `json:"data"`
	}
	var items []json.RawMessage
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Data != nil {
		items = envelope.Data
	} else if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("failed to parse models response: %w", err)
	}

	models := make([]Model, 0, len(items))
	for _, item := range items {
		var id string
		if err := json.Unmarshal(item, &id); err == nil {
			models = append(models, Model{ID: id})
			continue
		}
		var m Model
		if err := json.Unmarshal(item, &m); err == nil && m.ID != "" {
			models = append(models, m)
		}
	}
	return models, nil
}

func (c *clientImpl) postChat(ctx context.Context, httpClient *http.Client, req ChatRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	endpoint, err := url.JoinPath(c.baseURL, "chat/completions")
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	return httpClient.Do(httpReq)
}

func (c *clientImpl) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", c.userAgent)
}

func countMediaBlocks(messages []Message) int {
	n := 0
	for _, m := range messages {
		for _, b := range m.Blocks {
			if b.Type != BlockText {
				n++
			}
		}
	}
	return n
}

func discardBody(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxErrorBody))
	_ = body.Close()
}
