package aieval

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI is the chat-completions adapter.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI builds the adapter. baseURL overrides the default endpoint and
// is mainly for tests and compatible gateways.
func NewOpenAI(apiKey, baseURL, model string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) EvaluateHumor(ctx context.Context, text string, ec *Context) (Evaluation, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(text, ec)},
		},
		Temperature: 0.3,
		MaxTokens:   200,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return Evaluation{}, &ProviderError{Provider: "openai", Status: apiErr.HTTPStatusCode, Err: err}
		}
		return Evaluation{}, &ProviderError{Provider: "openai", Err: err}
	}
	if len(resp.Choices) == 0 {
		return Evaluation{}, &ProviderError{Provider: "openai", Err: errors.New("empty choices")}
	}
	ev, err := parseEvaluation(resp.Choices[0].Message.Content)
	if err != nil {
		return Evaluation{}, &ProviderError{Provider: "openai", Err: err}
	}
	return ev, nil
}
