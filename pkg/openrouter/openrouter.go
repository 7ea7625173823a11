package openrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	contractx "github.com/resolvehq/resolve/agent/contract"
)

// Config targets any OpenAI-compatible chat-completions endpoint;
// OpenRouter is the default so the same credential can serve any model.
type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int64         `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float64       `envconfig:"TEMPERATURE" split_words:"true" default:"0.5"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: model is required", contractx.ErrValidation)
	}
	return nil
}

// ChatModel implements contract.ChatModel over the OpenAI SDK.
type ChatModel struct {
	client      openaisdk.Client
	model       string
	maxTokens   int64
	temperature float64
}

var _ contractx.ChatModel = (*ChatModel)(nil)

func NewChatModel(cfg Config) (*ChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
	}
	if trimmed := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	// OpenRouter attribution headers.
	if cfg.SiteURL != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", cfg.SiteURL))
	}
	if cfg.SiteName != "" {
		opts = append(opts, option.WithHeader("X-Title", cfg.SiteName))
	}

	return &ChatModel{
		client:      openaisdk.NewClient(opts...),
		model:       strings.TrimSpace(cfg.Model),
		maxTokens:   cfg.MaxCompletionToken,
		temperature: cfg.Temperature,
	}, nil
}

func MustNewChatModel(cfg Config) *ChatModel {
	m, err := NewChatModel(cfg)
	if err != nil {
		panic(err)
	}
	return m
}

// Generate submits the prompt and declared tools and maps the completion
// back to a ModelReply. Transient transport failures surface as errors
// wrapped with contract.ErrModelInvoke for the caller's retry policy.
func (m *ChatModel) Generate(ctx context.Context, msgs []contractx.ChatMessage, tools []contractx.ToolSpec) (contractx.ModelReply, error) {
	params := openaisdk.ChatCompletionNewParams{
		Model:       openaisdk.ChatModel(m.model),
		Messages:    toMessageParams(msgs),
		MaxTokens:   openaisdk.Int(m.maxTokens),
		Temperature: openaisdk.Float(m.temperature),
	}
	if len(tools) > 0 {
		params.Tools = toToolParams(tools)
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return contractx.ModelReply{}, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	if len(resp.Choices) == 0 {
		return contractx.ModelReply{}, fmt.Errorf("%w: completion has no choices", contractx.ErrModelInvoke)
	}

	msg := resp.Choices[0].Message
	reply := contractx.ModelReply{
		Content: msg.Content,
		Raw:     msg.ToParam(),
	}
	for _, call := range msg.ToolCalls {
		name := strings.TrimSpace(call.Function.Name)
		if name == "" {
			return contractx.ModelReply{}, fmt.Errorf("%w: tool call with empty name", contractx.ErrModelInvoke)
		}
		args := map[string]any{}
		if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return contractx.ModelReply{}, fmt.Errorf("%w: invalid arguments for tool %s: %v", contractx.ErrModelInvoke, name, err)
			}
		}
		reply.ToolRequests = append(reply.ToolRequests, contractx.ToolRequest{
			ID:   call.ID,
			Tool: name,
			Args: args,
		})
	}
	return reply, nil
}

func toMessageParams(msgs []contractx.ChatMessage) []openaisdk.ChatCompletionMessageParamUnion {
	out := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case contractx.RoleSystem:
			out = append(out, openaisdk.SystemMessage(msg.Content))
		case contractx.RoleUser:
			out = append(out, openaisdk.UserMessage(msg.Content))
		case contractx.RoleAssistant:
			// Assistant turns with tool calls replay the provider-native
			// form captured on the way out.
			if raw, ok := msg.Raw.(openaisdk.ChatCompletionMessageParamUnion); ok {
				out = append(out, raw)
				continue
			}
			out = append(out, openaisdk.AssistantMessage(msg.Content))
		case contractx.RoleTool:
			out = append(out, openaisdk.ToolMessage(msg.Content, msg.ToolCallID))
		}
	}
	return out
}

func toToolParams(tools []contractx.ToolSpec) []openaisdk.ChatCompletionToolParam {
	out := make([]openaisdk.ChatCompletionToolParam, 0, len(tools))
	for _, spec := range tools {
		properties := make(map[string]any, len(spec.Params))
		var required []string
		for name, param := range spec.Params {
			properties[name] = map[string]any{
				"type":        string(param.Type),
				"description": param.Desc,
			}
			if param.Required {
				required = append(required, name)
			}
		}

		parameters := openaisdk.FunctionParameters{
			"type":       "object",
			"properties": properties,
		}
		if len(required) > 0 {
			parameters["required"] = required
		}

		out = append(out, openaisdk.ChatCompletionToolParam{
			Function: openaisdk.FunctionDefinitionParam{
				Name:        spec.Name,
				Description: openaisdk.String(spec.Desc),
				Parameters:  parameters,
			},
		})
	}
	return out
}
