package schema

import (
	"encoding/json"
	"fmt"
)

// Content is the union of message content blocks. The concrete type is
// selected by the wire `type` discriminator: "text", "image", "audio",
// "resource", "resource_link", "tool_use" or "tool_result".
type Content interface {
	ContentType() string
}

// TextContent is plain text content.
type TextContent struct {
	Type        string       `json:"type"` // const: "text"
	Text        string       `json:"text"`
	Annotations *Annotations `json:"annotations,omitempty"`
	Meta        Meta         `json:"_meta,omitempty"`
}

func (c *TextContent) ContentType() string { return "text" }

// ImageContent is base64-encoded image data.
type ImageContent struct {
	Type        string       `json:"type"` // const: "image"
	Data        string       `json:"data"` // base64
	MimeType    string       `json:"mimeType"`
	Annotations *Annotations `json:"annotations,omitempty"`
	Meta        Meta         `json:"_meta,omitempty"`
}

func (c *ImageContent) ContentType() string { return "image" }

// AudioContent is base64-encoded audio data.
type AudioContent struct {
	Type        string       `json:"type"` // const: "audio"
	Data        string       `json:"data"` // base64
	MimeType    string       `json:"mimeType"`
	Annotations *Annotations `json:"annotations,omitempty"`
	Meta        Meta         `json:"_meta,omitempty"`
}

func (c *AudioContent) ContentType() string { return "audio" }

// EmbeddedResource embeds the contents of a resource into a prompt or tool
// call result.
type EmbeddedResource struct {
	Type        string           `json:"type"` // const: "resource"
	Resource    ResourceContents `json:"resource"`
	Annotations *Annotations     `json:"annotations,omitempty"`
	Meta        Meta             `json:"_meta,omitempty"`
}

func (c *EmbeddedResource) ContentType() string { return "resource" }

// ResourceLink points at a server resource without embedding its contents.
type ResourceLink struct {
	Type        string       `json:"type"` // const: "resource_link"
	URI         string       `json:"uri"`
	Name        string       `json:"name"`
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	MimeType    string       `json:"mimeType,omitempty"`
	Size        *int64       `json:"size,omitempty"`
	Annotations *Annotations `json:"annotations,omitempty"`
	Meta        Meta         `json:"_meta,omitempty"`
}

func (c *ResourceLink) ContentType() string { return "resource_link" }

// ToolUseContent records a tool invocation requested by the model.
type ToolUseContent struct {
	Type  string          `json:"type"` // const: "tool_use"
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input,omitempty"`
	Meta  Meta            `json:"_meta,omitempty"`
}

func (c *ToolUseContent) ContentType() string { return "tool_use" }

// ToolResultContent carries the outcome of an earlier tool_use block.
type ToolResultContent struct {
	Type              string          `json:"type"` // const: "tool_result"
	ToolUseID         string          `json:"toolUseId"`
	Content           ContentList     `json:"content,omitempty"`
	StructuredContent json.RawMessage `json:"structuredContent,omitempty"`
	IsError           bool            `json:"isError,omitempty"`
	Meta              Meta            `json:"_meta,omitempty"`
}

func (c *ToolResultContent) ContentType() string { return "tool_result" }

// UnmarshalContent decodes one content block, selecting the concrete type by
// the `type` discriminator. Unknown discriminators are rejected.
func UnmarshalContent(data []byte) (Content, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("content block: %w", err)
	}
	var target Content
	switch probe.Type {
	case "text":
		target = &TextContent{}
	case "image":
		target = &ImageContent{}
	case "audio":
		target = &AudioContent{}
	case "resource":
		target = &EmbeddedResource{}
	case "resource_link":
		target = &ResourceLink{}
	case "tool_use":
		target = &ToolUseContent{}
	case "tool_result":
		target = &ToolResultContent{}
	default:
		return nil, fmt.Errorf("content block: unknown type %q", probe.Type)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return nil, fmt.Errorf("content block %q: %w", probe.Type, err)
	}
	return target, nil
}

// ContentList decodes a JSON array of content blocks into their concrete types.
type ContentList []Content

func (l *ContentList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]Content, 0, len(raw))
	for _, item := range raw {
		c, err := UnmarshalContent(item)
		if err != nil {
			return err
		}
		out = append(out, c)
	}
	*l = out
	return nil
}

// NewTextContent creates a new text content slice.
func NewTextContent(text string) []Content {
	return []Content{&TextContent{Type: "text", Text: text}}
}

// NewImageContent creates a new image content slice.
func NewImageContent(data string, mimeType string) []Content {
	return []Content{&ImageContent{Type: "image", Data: data, MimeType: mimeType}}
}

// NewAudioContent creates a new audio content slice.
func NewAudioContent(data string, mimeType string) []Content {
	return []Content{&AudioContent{Type: "audio", Data: data, MimeType: mimeType}}
}
