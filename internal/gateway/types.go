package gateway

import (
	"encoding/json"
	"fmt"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Content block types.
const (
	BlockText     = "text"
	BlockImageURL = "image_url"
	BlockFileURL  = "file_url"
)

// URLRef points at media either inline (data URI) or by remote URI.
type URLRef struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type,omitempty"`
}

// ContentBlock is one typed unit of a message's content.
type ContentBlock struct {
	Type     string  `json:"type"`
	Text     string  `json:"text,omitempty"`
	ImageURL *URLRef `json:"image_url,omitempty"`
	FileURL  *URLRef `json:"file_url,omitempty"`
}

func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ImageURLBlock wraps a data URI or a remote image URI.
func ImageURLBlock(url string) ContentBlock {
	return ContentBlock{Type: BlockImageURL, ImageURL: &URLRef{URL: url}}
}

// FileURLBlock references a file previously registered with the gateway.
func FileURLBlock(uri, mimeType string) ContentBlock {
	return ContentBlock{Type: BlockFileURL, FileURL: &URLRef{URL: uri, MimeType: mimeType}}
}

// URL returns the media location carried by the block, or "" for text.
func (b ContentBlock) URL() string {
	switch {
	case b.ImageURL != nil:
		return b.ImageURL.URL
	case b.FileURL != nil:
		return b.FileURL.URL
	default:
		return ""
	}
}

// Message is a chat message whose content is either plain text or an
// ordered sequence of content blocks. Blocks take precedence when non-nil.
type Message struct {
	Role   string
	Text   string
	Blocks []ContentBlock
}

func UserMessage(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// HasBlocks reports whether the content is a block sequence.
func (m Message) HasBlocks() bool {
	return m.Blocks != nil
}

// ContentBlocks returns the content as blocks, wrapping plain text into a
// leading text block. Empty text yields no block.
func (m Message) ContentBlocks() []ContentBlock {
	if m.Blocks != nil {
		out := make([]ContentBlock, len(m.Blocks))
		copy(out, m.Blocks)
		return out
	}
	if m.Text == "" {
		return []ContentBlock{}
	}
	return []ContentBlock{TextBlock(m.Text)}
}

type wireMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	var content any = m.Text
	if m.Blocks != nil {
		content = m.Blocks
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireMessage{Role: m.Role, Content: raw})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.Role = w.Role
	m.Text = ""
	m.Blocks = nil

	if len(w.Content) == 0 || string(w.Content) == "null" {
		return nil
	}
	switch w.Content[0] {
	case '"':
		return json.Unmarshal(w.Content, &m.Text)
	case '[':
		m.Blocks = []ContentBlock{}
		return json.Unmarshal(w.Content, &m.Blocks)
	default:
		return fmt.Errorf("unsupported message content: %s", truncateForLog(string(w.Content), 64))
	}
}

// ChatRequest is the JSON body sent to the chat endpoint.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream"`
	// Size is only sent with image requests.
	Size string `json:"size,omitempty"`
}

// ChatResponse is the non-streamed chat completion response.
type ChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason,omitempty"`
		Index        int    `json:"index"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Model is an entry returned by the models endpoint.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// truncateForLog truncates a string to maxLen bytes for logging.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "... (truncated)"
}
