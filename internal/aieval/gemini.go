package aieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Gemini calls the free-tier generative language endpoint. The API key
// travels as a query parameter, per that API's convention.
type Gemini struct {
	APIKey     string
	Model      string
	BaseURL    string // default https://generativelanguage.googleapis.com
	HTTPClient *http.Client
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) client() *http.Client {
	if g.HTTPClient != nil {
		return g.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (g *Gemini) endpoint() string {
	base := g.BaseURL
	if base == "" {
		base = "https://generativelanguage.googleapis.com"
	}
	return fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", base, g.Model, url.QueryEscape(g.APIKey))
}

func (g *Gemini) EvaluateHumor(ctx context.Context, text string, ec *Context) (Evaluation, error) {
	type part struct {
		Text string `json:"text"`
	}
	body, err := json.Marshal(map[string]any{
		"systemInstruction": map[string]any{"parts": []part{{Text: systemPrompt}}},
		"contents": []map[string]any{
			{"parts": []part{{Text: userPrompt(text, ec)}}},
		},
		"generationConfig": map[string]any{
			"temperature":     0.3,
			"maxOutputTokens": 150,
			"topP":            0.8,
			"topK":            10,
		},
	})
	if err != nil {
		return Evaluation{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint(), bytes.NewReader(body))
	if err != nil {
		return Evaluation{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client().Do(req)
	if err != nil {
		return Evaluation{}, &ProviderError{Provider: "gemini", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Evaluation{}, &ProviderError{Provider: "gemini", Status: resp.StatusCode, Err: fmt.Errorf("%s", truncate(string(b), 200))}
	}

	var out struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Evaluation{}, &ProviderError{Provider: "gemini", Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return Evaluation{}, &ProviderError{Provider: "gemini", Err: fmt.Errorf("empty candidates")}
	}
	ev, err := parseEvaluation(out.Candidates[0].Content.Parts[0].Text)
	if err != nil {
		return Evaluation{}, &ProviderError{Provider: "gemini", Err: err}
	}
	return ev, nil
}
