package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"
)

// DefaultModel is used when no model is configured
const DefaultModel = "gpt-4o-mini"

// OpenAIGenerator generates replies with an OpenAI compatible chat
// completions endpoint
type OpenAIGenerator struct {
	client openai.Client
	model  string
}

// NewOpenAIGenerator creates a generator. baseURL may be empty for the public
// endpoint.
func NewOpenAIGenerator(apiKey, baseURL, model string) *OpenAIGenerator {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIGenerator{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// Generate sends the conversation and returns the first choice
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (Response, error) {
	if len(req.Messages) == 0 {
		return Response{}, &ServiceError{Kind: KindUnknown, Err: errors.New("no messages to answer")}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(g.model),
		Messages: toOpenAIMessages(req),
	}

	completion, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Response{}, classify(err)
	}
	if len(completion.Choices) == 0 {
		return Response{}, &ServiceError{Kind: KindUnknown, Err: errors.New("no choices returned")}
	}

	text := strings.TrimSpace(completion.Choices[0].Message.Content)
	if text == "" {
		return Response{}, &ServiceError{Kind: KindUnknown, Err: errors.New("empty reply")}
	}

	log.Debug().
		Str("model", g.model).
		Int64("totalTokens", completion.Usage.TotalTokens).
		Msg("Reply generated")
	return Response{Text: text}, nil
}

func toOpenAIMessages(req Request) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != nil {
		msgs = append(msgs, openai.SystemMessage(SystemPrompt(*req.System)))
	}

	for _, m := range req.Messages {
		if m.Role == RoleAssistant {
			msgs = append(msgs, openai.AssistantMessage(m.Content))
			continue
		}
		if m.ImageURI == nil || *m.ImageURI == "" {
			msgs = append(msgs, openai.UserMessage(m.Content))
			continue
		}

		content := m.Content
		if content == "" {
			content = "What do you see in this photo?"
		}
		msgs = append(msgs, openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
			openai.TextContentPart(content),
			openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: *m.ImageURI}),
		}))
	}
	return msgs
}

// classify wraps a client error into a ServiceError
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &ServiceError{Kind: classifyStatus(apiErr.StatusCode), Err: err}
	}
	if isNetworkError(err) {
		return &ServiceError{Kind: KindNetwork, Err: err}
	}
	return &ServiceError{Kind: KindUnknown, Err: fmt.Errorf("chat completion failed: %w", err)}
}
