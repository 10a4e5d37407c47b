package exampleCapability

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/relay4ai/mcp/server"
	"github.com/relay4ai/mcp/server/mcp"
	"github.com/relay4ai/mcp/server/mcp/capability"
	"github.com/relay4ai/mcp/shared"
	schema "github.com/relay4ai/mcp/shared/mcp/2025/schema"
	"go.uber.org/zap"
)

// --- Tool Definitions ---

var EchoTool = schema.Tool{
	Name:        "echo",
	Description: "echo a message",
	InputSchema: &schema.JSONSchemaProperty{
		Type: "object",
		Properties: map[string]schema.JSONSchemaProperty{
			"message": {
				Type:        "string",
				Description: "The message to echo back",
			},
		},
		Required: []string{"message"},
	},
}

func EchoToolHandler(_ context.Context, _ *shared.Message, arguments schema.Arguments) (schema.Meta, []schema.Content, error) {
	message, ok := arguments["message"].(string)
	if !ok {
		return nil, nil, fmt.Errorf("invalid 'message' argument type: expected string")
	}
	return nil, schema.NewTextContent("Echo: " + message), nil
}

var AddTool = schema.Tool{
	Name:        "add",
	Description: "add two numbers",
	InputSchema: &schema.JSONSchemaProperty{
		Type: "object",
		Properties: map[string]schema.JSONSchemaProperty{
			"a": {
				Type:        "number",
				Description: "First number to add",
			},
			"b": {
				Type:        "number",
				Description: "Second number to add",
			},
		},
		Required: []string{"a", "b"},
	},
}

func AddToolHandler(_ context.Context, _ *shared.Message, arguments schema.Arguments) (schema.Meta, []schema.Content, error) {
	aFloat, okA := arguments["a"].(float64)
	bFloat, okB := arguments["b"].(float64)
	if !okA || !okB {
		return nil, nil, fmt.Errorf("invalid number arguments: expected numbers")
	}
	return nil, schema.NewTextContent(fmt.Sprintf("%g", aFloat+bFloat)), nil
}

// LongRunningTool counts through its steps, reporting progress along the way.
// Called task-augmented, it survives the POST that started it and can be
// polled through tasks/get.
var LongRunningTool = schema.Tool{
	Name:        "longRunningOperation",
	Description: "long running operation with progress updates",
	InputSchema: &schema.JSONSchemaProperty{
		Type: "object",
		Properties: map[string]schema.JSONSchemaProperty{
			"duration": {Type: "number", Description: "Total duration in seconds"},
			"steps":    {Type: "number", Description: "Number of progress steps"},
		},
		Required: []string{"duration"},
	},
}

func LongRunningHandler(ctx context.Context, msg *shared.Message, arguments schema.Arguments) (schema.Meta, []schema.Content, error) {
	durationFloat, ok := arguments["duration"].(float64)
	if !ok {
		return nil, nil, fmt.Errorf("invalid 'duration' argument type: expected number")
	}
	steps := 5.0
	if s, ok := arguments["steps"].(float64); ok && s > 0 {
		steps = s
	}

	reporter := capability.ProgressFor(msg)
	stepDuration := time.Duration(durationFloat / steps * float64(time.Second))
	for i := 1.0; i <= steps; i++ {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(stepDuration):
		}
		reporter.Report(ctx, i, steps, fmt.Sprintf("step %g of %g", i, steps))
	}

	return nil, schema.NewTextContent(fmt.Sprintf("completed after %g steps", steps)), nil
}

// SampleLLMTool demonstrates server-to-client sampling.
var SampleLLMTool = schema.Tool{
	Name:        "sampleLLM",
	Description: "sample from the client's LLM",
	InputSchema: &schema.JSONSchemaProperty{
		Type: "object",
		Properties: map[string]schema.JSONSchemaProperty{
			"prompt":    {Type: "string"},
			"maxTokens": {Type: "number"},
		},
		Required: []string{"prompt", "maxTokens"},
	},
}

func SampleLLMHandler(ctx context.Context, msg *shared.Message, arguments schema.Arguments) (schema.Meta, []schema.Content, error) {
	prompt, okP := arguments["prompt"].(string)
	maxTokensFloat, okM := arguments["maxTokens"].(float64)
	if !okP || !okM {
		return nil, nil, fmt.Errorf("invalid arguments for sampleLLM")
	}

	session, ok := msg.Session.(*mcp.Session)
	if !ok {
		return nil, nil, fmt.Errorf("session does not support sampling")
	}

	result, err := session.CreateMessage(ctx, &schema.CreateMessageRequestParams{
		Messages: []schema.SamplingMessage{{
			Role:    "user",
			Content: &schema.TextContent{Type: "text", Text: prompt},
		}},
		SystemPrompt: "You are a helpful test server.",
		MaxTokens:    int(maxTokensFloat),
		Temperature:  shared.PointerTo(0.7),
	})
	if err != nil {
		return nil, nil, err
	}

	text := "(non-text content)"
	if tc, ok := result.Content.(*schema.TextContent); ok {
		text = tc.Text
	}
	return nil, schema.NewTextContent("LLM sampling result: " + text), nil
}

// CollectContactTool demonstrates typed elicitation. The form schema is
// derived from the struct below.
var CollectContactTool = schema.Tool{
	Name:        "collectContact",
	Description: "ask the user for contact details",
	InputSchema: &schema.JSONSchemaProperty{
		Type:       "object",
		Properties: map[string]schema.JSONSchemaProperty{},
	},
}

type contactInfo struct {
	Name  string `json:"name" description:"Full name"`
	Email string `json:"email" format:"email" description:"Email address"`
	Age   int    `json:"age,omitempty" description:"Age in years"`
}

func CollectContactHandler(ctx context.Context, msg *shared.Message, _ schema.Arguments) (schema.Meta, []schema.Content, error) {
	session, ok := msg.Session.(*mcp.Session)
	if !ok {
		return nil, nil, fmt.Errorf("session does not support elicitation")
	}

	info, action, err := mcp.ElicitTyped[contactInfo](ctx, session, "Please provide your contact details")
	if err != nil {
		return nil, nil, err
	}
	switch action {
	case schema.ElicitActionAccept:
		return nil, schema.NewTextContent(fmt.Sprintf("Thanks %s, we will reach you at %s", info.Name, info.Email)), nil
	case schema.ElicitActionDecline:
		return nil, schema.NewTextContent("No contact details provided"), nil
	default:
		return nil, nil, fmt.Errorf("elicitation cancelled")
	}
}

var TinyImageTool = schema.Tool{
	Name:        "getTinyImage",
	Description: "returns a tiny test image",
	InputSchema: &schema.JSONSchemaProperty{
		Type:       "object",
		Properties: map[string]schema.JSONSchemaProperty{},
	},
}

// 1x1 transparent PNG.
const tinyImagePNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

func TinyImageHandler(_ context.Context, _ *shared.Message, _ schema.Arguments) (schema.Meta, []schema.Content, error) {
	content := schema.NewTextContent("This is a tiny image:")
	content = append(content, schema.NewImageContent(tinyImagePNG, "image/png")...)
	return nil, content, nil
}

// --- Prompt Definitions ---

var SimplePrompt = schema.Prompt{
	Name:        "simple_prompt",
	Description: "A simple prompt without arguments",
}

func SimplePromptHandler(_ context.Context, _ *shared.Message, _ map[string]string) (schema.Meta, []schema.PromptMessage, error) {
	return nil, []schema.PromptMessage{{
		Role:    "user",
		Content: &schema.TextContent{Type: "text", Text: "This is a simple prompt without arguments."},
	}}, nil
}

var ComplexPromptTemplate = schema.Prompt{
	Name:        "complex_prompt",
	Description: "Advanced prompt demonstrating argument handling",
	Arguments: []schema.PromptArgument{
		{Name: "temperature", Description: "Sampling temperature", Required: true},
		{Name: "style", Description: "Generation style", Required: false},
	},
}

func ComplexPromptHandler(_ context.Context, _ *shared.Message, arguments map[string]string) (schema.Meta, []schema.PromptMessage, error) {
	temperature := arguments["temperature"]
	style, hasStyle := arguments["style"]
	if !hasStyle {
		style = "standard"
	}

	userText := fmt.Sprintf("This is a complex prompt using temperature: %s and style: %s", temperature, style)
	return nil, []schema.PromptMessage{
		{
			Role:    "user",
			Content: &schema.TextContent{Type: "text", Text: userText},
		},
		{
			Role:    "assistant",
			Content: &schema.TextContent{Type: "text", Text: "I'll demonstrate a multi-turn conversation with image response."},
		},
		{
			Role:    "assistant",
			Content: &schema.ImageContent{Type: "image", Data: tinyImagePNG, MimeType: "image/png"},
		},
	}, nil
}

// --- Resource Definitions ---

func ResourceHandlerOdd(i int) capability.ResourceHandler {
	return func(_ context.Context, _ *shared.Message, uri string) (schema.Meta, []schema.ResourceContents, error) {
		text := fmt.Sprintf("Resource %d: This is a plaintext resource", i)
		return nil, []schema.ResourceContents{{
			URI:      uri,
			MimeType: "text/plain",
			Text:     &text,
		}}, nil
	}
}

func ResourceHandlerEven(i int) capability.ResourceHandler {
	return func(_ context.Context, _ *shared.Message, uri string) (schema.Meta, []schema.ResourceContents, error) {
		data := fmt.Sprintf("Resource %d: This is a base64 blob", i)
		encodedData := base64.StdEncoding.EncodeToString([]byte(data))
		return nil, []schema.ResourceContents{{
			URI:      uri,
			MimeType: "application/octet-stream",
			Blob:     &encodedData,
		}}, nil
	}
}

// --- Completion Handler ---

func StyleCompleter(_ context.Context, _ *shared.Message, arg capability.CompletionArgument) (*schema.CompletionInfo, error) {
	if arg.Name != "style" {
		return nil, nil
	}
	styles := []string{"standard", "formal", "casual", "poetic"}
	matches := make([]string, 0, len(styles))
	for _, style := range styles {
		if arg.Value == "" || len(arg.Value) <= len(style) && style[:len(arg.Value)] == arg.Value {
			matches = append(matches, style)
		}
	}
	return &schema.CompletionInfo{Values: matches}, nil
}

// --- Subscription Handler ---

func SubscriptionLogger(logger *zap.Logger) capability.SubscriptionHandler {
	return func(session shared.ISession, operation capability.SubscriptionOperation, uri string, count int) {
		opStr := "subscribed"
		if operation == capability.Unsubscribe {
			opStr = "unsubscribed"
		}
		logger.Info("Subscription event",
			zap.String("operation", opStr),
			zap.String("uri", uri),
			zap.String("sessionID", session.GetID()),
			zap.Int("currentCount", count),
		)
	}
}

// BuildOptions creates the ServerOption slice for the example server.
func BuildOptions(logger *zap.Logger) []server.ServerOption {
	options := []server.ServerOption{
		server.WithInstructions("Example server exercising tools, prompts, resources, sampling, elicitation and tasks."),

		// Tools
		server.WithMCPTool(EchoTool.Name, EchoTool.Description, EchoTool.InputSchema, EchoTool.Annotations, EchoToolHandler),
		server.WithMCPTool(AddTool.Name, AddTool.Description, AddTool.InputSchema, AddTool.Annotations, AddToolHandler),
		server.WithMCPTool(LongRunningTool.Name, LongRunningTool.Description, LongRunningTool.InputSchema, LongRunningTool.Annotations, LongRunningHandler),
		server.WithMCPTool(SampleLLMTool.Name, SampleLLMTool.Description, SampleLLMTool.InputSchema, SampleLLMTool.Annotations, SampleLLMHandler),
		server.WithMCPTool(CollectContactTool.Name, CollectContactTool.Description, CollectContactTool.InputSchema, CollectContactTool.Annotations, CollectContactHandler),
		server.WithMCPTool(TinyImageTool.Name, TinyImageTool.Description, TinyImageTool.InputSchema, TinyImageTool.Annotations, TinyImageHandler),

		// Prompts
		server.WithMCPPrompt(SimplePrompt.Name, SimplePrompt.Description, SimplePromptHandler),
		server.WithMCPPromptTemplate(ComplexPromptTemplate.Name, ComplexPromptTemplate.Description, ComplexPromptTemplate.Arguments, ComplexPromptHandler),
		server.WithMCPPromptCompleter(ComplexPromptTemplate.Name, StyleCompleter),

		// Resources
		server.WithMCPResourceTemplate("test://static/resource/{id}", "Static Resource Template", "Template for static resources", "text/plain",
			ResourceHandlerOdd(0)),
		server.WithMCPSubscriptionHandler(SubscriptionLogger(logger)),

		// Logging notifications
		server.WithMCPLogging(),
	}

	for i := 1; i <= 10; i++ {
		uri := fmt.Sprintf("test://static/resource/%d", i)
		resourceName := fmt.Sprintf("Resource %d", i)
		var mimeType string
		var handler capability.ResourceHandler
		if i%2 == 1 {
			mimeType = "text/plain"
			handler = ResourceHandlerOdd(i)
		} else {
			mimeType = "application/octet-stream"
			handler = ResourceHandlerEven(i)
		}
		options = append(options, server.WithMCPResource(uri, resourceName, "Static resource", mimeType, handler))
	}

	return options
}
