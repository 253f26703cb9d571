// Package llm wraps the NVIDIA NIM chat-completion endpoint (Mistral models)
// behind a small request/response surface shared by the router, the chat
// agent, the IVR navigator, and the build loop.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

// NVIDIA NIM exposes an OpenAI-compatible chat-completions API.
const nimBaseURL = "https://integrate.api.nvidia.com/v1"

// Model identifiers on NVIDIA NIM.
const (
	ModelMistralLarge = "mistralai/mistral-large-2-instruct"
	ModelMixtral      = "mistralai/mixtral-8x7b-instruct-v0.1"
)

// Message is one chat turn.
type Message struct {
	Role       string // "system", "user", "assistant", "tool"
	Content    string
	ToolCalls  []ToolCall // assistant turns that requested tools
	ToolCallID string     // tool turns answering a specific call
}

// ToolCall is one function invocation requested by the model. Arguments is
// the raw JSON blob as returned by the API.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Tool describes a function the model may call.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON-schema object
}

// Request is one chat-completion call.
type Request struct {
	Model       string // defaults to ModelMixtral
	Messages    []Message
	Temperature float64
	MaxTokens   int
	Tools       []Tool
}

// Response is the model's reply: either content, tool calls, or both.
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// Completer is the consumer-side interface; satisfied by *Client and by test
// fakes.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Enabled() bool
}

// Client calls NVIDIA NIM via the OpenAI SDK. A client built without an API
// key reports Enabled() == false and fails fast, so callers can take their
// deterministic fallback path without an HTTP round-trip.
type Client struct {
	client  oai.Client
	enabled bool
}

// New creates a NIM-backed client. apiKey may be empty.
func New(apiKey string) *Client {
	if apiKey == "" {
		return &Client{}
	}
	client := oai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(nimBaseURL),
		option.WithHTTPClient(&http.Client{Timeout: 60 * time.Second}),
	)
	return &Client{client: client, enabled: true}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c.enabled
}

// ErrNotConfigured is returned by Complete when no API key is set.
var ErrNotConfigured = fmt.Errorf("llm: NVIDIA_API_KEY not configured")

// Complete performs one chat completion.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if !c.enabled {
		return nil, ErrNotConfigured
	}

	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion: empty choices")
	}

	choice := resp.Choices[0]
	out := &Response{Content: strings.TrimSpace(choice.Message.Content)}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

func buildParams(req Request) (oai.ChatCompletionNewParams, error) {
	model := req.Model
	if model == "" {
		model = ModelMixtral
	}

	var messages []oai.ChatCompletionMessageParamUnion
	for _, m := range req.Messages {
		msg, err := convertMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		messages = append(messages, msg)
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: messages,
	}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = param.NewOpt(int64(req.MaxTokens))
	}
	for _, td := range req.Tools {
		params.Tools = append(params.Tools, oai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        td.Name,
				Description: param.NewOpt(td.Description),
				Parameters:  shared.FunctionParameters(td.Parameters),
			},
		})
	}
	return params, nil
}

func convertMessage(m Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case "system":
		return oai.SystemMessage(m.Content), nil
	case "user":
		return oai.UserMessage(m.Content), nil
	case "assistant":
		asst := oai.ChatCompletionAssistantMessageParam{}
		if m.Content != "" {
			asst.Content.OfString = oai.String(m.Content)
		}
		for _, tc := range m.ToolCalls {
			asst.ToolCalls = append(asst.ToolCalls, oai.ChatCompletionMessageToolCallParam{
				ID: tc.ID,
				Function: oai.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		return oai.ChatCompletionMessageParamUnion{OfAssistant: &asst}, nil
	case "tool":
		return oai.ToolMessage(m.Content, m.ToolCallID), nil
	default:
		return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("unknown message role %q", m.Role)
	}
}

// StripFences removes a surrounding markdown code fence from model output.
// Models asked for raw JSON or HTML still wrap it in ```json blocks often
// enough that every JSON-parsing caller runs output through this first.
func StripFences(content string) string {
	if !strings.Contains(content, "```") {
		return strings.TrimSpace(content)
	}
	parts := strings.Split(content, "```")
	if len(parts) < 2 {
		return strings.TrimSpace(content)
	}
	inner := parts[1]
	if rest, ok := strings.CutPrefix(inner, "json"); ok {
		inner = rest
	} else if rest, ok := strings.CutPrefix(inner, "html"); ok {
		inner = rest
	}
	return strings.TrimSpace(inner)
}
