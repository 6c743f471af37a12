package llm

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

var _ Generator = (*OpenAIGenerator)(nil)

const oaiFinishReasonStop = "stop"

// DefaultModel is used when neither the generator nor the request names one.
const DefaultModel = "gpt-4o-mini"

// OpenAIGenerator implements [Generator] on the OpenAI chat completions API.
// It can also be pointed at any OpenAI-compatible endpoint via WithBaseURL.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// OpenAIOption configures an OpenAIGenerator.
type OpenAIOption func(*openAIConfig)

type openAIConfig struct {
	model   string
	baseURL string
}

// WithModel sets the default model.
func WithModel(model string) OpenAIOption {
	return func(c *openAIConfig) { c.model = model }
}

// WithBaseURL points the generator at an OpenAI-compatible endpoint.
func WithBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) { c.baseURL = url }
}

// NewOpenAI creates a generator backed by the OpenAI API.
func NewOpenAI(apiKey string, opts ...OpenAIOption) *OpenAIGenerator {
	cfg := openAIConfig{model: DefaultModel}
	for _, o := range opts {
		o(&cfg)
	}
	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}
	client := openai.NewClient(clientOpts...)
	return &OpenAIGenerator{client: &client, model: cfg.model}
}

// Complete returns free-form text for the request.
func (g *OpenAIGenerator) Complete(ctx context.Context, req *Request) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, g.params(req))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Invoke requests schema-constrained output via the json_schema response
// format and returns the raw call for the caller to decode.
func (g *OpenAIGenerator) Invoke(ctx context.Context, req *Request, tool *FuncTool) (*FuncCall, error) {
	params := g.params(req)
	params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
			JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:        tool.Name,
				Description: param.NewOpt(tool.Description),
				Schema:      any(formatStrictSchema(tool.Argument.CloneSchemas())),
				Strict:      param.NewOpt(true),
			},
		},
	}
	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("llm: no choices")
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return nil, fmt.Errorf("llm: blocked: %s", choice.Message.Refusal)
	}
	if choice.FinishReason != oaiFinishReasonStop {
		return nil, fmt.Errorf("llm: unexpected finish reason: %s", choice.FinishReason)
	}
	if choice.Message.Content == "" {
		return nil, fmt.Errorf("llm: no content")
	}
	return tool.NewFuncCall(choice.Message.Content), nil
}

func (g *OpenAIGenerator) params(req *Request) openai.ChatCompletionNewParams {
	model := g.model
	if req.Model != "" {
		model = req.Model
	}
	var msgs []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	msgs = append(msgs, openai.UserMessage(req.User))
	params := openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    model,
	}
	if req.Temperature > 0 {
		params.Temperature = param.NewOpt(float64(req.Temperature))
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	return params
}

// formatStrictSchema rewrites a schema to satisfy OpenAI strict mode:
// objects must set additionalProperties: false and list every property in
// required, with optional properties made nullable instead.
func formatStrictSchema(m *jsonschema.Schema) *jsonschema.Schema {
	if m == nil {
		return nil
	}
	typ := m.Type
	if typ == "" {
		for _, t := range m.Types {
			if t != "null" {
				typ = t
				break
			}
		}
	}
	switch typ {
	case "array":
		m.Items = formatStrictSchema(m.Items)
	case "object":
		m.AdditionalProperties = &jsonschema.Schema{Not: &jsonschema.Schema{}}
		required := make(map[string]struct{})
		for _, v := range m.Required {
			required[v] = struct{}{}
		}
		for k, v := range m.Properties {
			if _, ok := required[k]; !ok {
				required[k] = struct{}{}
				if !slices.Contains(v.Types, "null") {
					v.Types = append(v.Types, "null")
				}
			}
			m.Properties[k] = formatStrictSchema(v)
		}
		m.Required = slices.Sorted(maps.Keys(required))
	}
	return m
}
