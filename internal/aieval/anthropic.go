package aieval

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic is the messages-API adapter.
type Anthropic struct {
	client anthropic.Client
	model  string
}

// NewAnthropic builds the adapter. baseURL is mainly for tests.
func NewAnthropic(apiKey, baseURL, model string) *Anthropic {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Anthropic{client: anthropic.NewClient(opts...), model: model}
}

func (a *Anthropic) Name() string { return "anthropic" }

func (a *Anthropic) EvaluateHumor(ctx context.Context, text string, ec *Context) (Evaluation, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   200,
		Temperature: anthropic.Float(0.3),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt(text, ec))),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return Evaluation{}, &ProviderError{Provider: "anthropic", Status: apiErr.StatusCode, Err: err}
		}
		return Evaluation{}, &ProviderError{Provider: "anthropic", Err: err}
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return Evaluation{}, &ProviderError{Provider: "anthropic", Err: errors.New("no text block in response")}
	}
	ev, err := parseEvaluation(sb.String())
	if err != nil {
		return Evaluation{}, &ProviderError{Provider: "anthropic", Err: err}
	}
	return ev, nil
}
