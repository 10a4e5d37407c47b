package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalContent(t *testing.T) {
	tests := []struct {
		name string
		wire string
		want interface{}
	}{
		{"text", `{"type":"text","text":"hello"}`, &TextContent{}},
		{"image", `{"type":"image","data":"aGk=","mimeType":"image/png"}`, &ImageContent{}},
		{"audio", `{"type":"audio","data":"aGk=","mimeType":"audio/wav"}`, &AudioContent{}},
		{"embedded resource", `{"type":"resource","resource":{"uri":"test://a","text":"x"}}`, &EmbeddedResource{}},
		{"resource link", `{"type":"resource_link","uri":"test://a","name":"a"}`, &ResourceLink{}},
		{"tool use", `{"type":"tool_use","id":"tu1","name":"add","input":{"a":1}}`, &ToolUseContent{}},
		{"tool result", `{"type":"tool_result","toolUseId":"tu1","content":[{"type":"text","text":"2"}]}`, &ToolResultContent{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := UnmarshalContent([]byte(tc.wire))
			require.NoError(t, err)
			assert.IsType(t, tc.want, c)
		})
	}
}

func TestUnmarshalContent_UnknownType(t *testing.T) {
	_, err := UnmarshalContent([]byte(`{"type":"video","data":"aGk="}`))
	assert.Error(t, err)
}

func TestContentList_Unmarshal(t *testing.T) {
	wire := `[
		{"type":"text","text":"result"},
		{"type":"image","data":"aGk=","mimeType":"image/png"}
	]`
	var list ContentList
	require.NoError(t, json.Unmarshal([]byte(wire), &list))
	require.Len(t, list, 2)

	text, ok := list[0].(*TextContent)
	require.True(t, ok)
	assert.Equal(t, "result", text.Text)

	img, ok := list[1].(*ImageContent)
	require.True(t, ok)
	assert.Equal(t, "image/png", img.MimeType)
}

func TestToolResultContent_NestedContent(t *testing.T) {
	wire := `{"type":"tool_result","toolUseId":"tu9","isError":true,"content":[{"type":"text","text":"boom"}]}`
	c, err := UnmarshalContent([]byte(wire))
	require.NoError(t, err)
	result, ok := c.(*ToolResultContent)
	require.True(t, ok)
	assert.True(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.IsType(t, &TextContent{}, result.Content[0])
}

func TestContentConstructors(t *testing.T) {
	text := NewTextContent("hi")
	require.Len(t, text, 1)
	assert.Equal(t, "text", text[0].ContentType())

	img := NewImageContent("aGk=", "image/png")
	require.Len(t, img, 1)
	assert.Equal(t, "image", img[0].ContentType())
}
