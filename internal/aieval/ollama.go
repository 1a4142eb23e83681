package aieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Ollama talks to a local LLM server's generate API.
type Ollama struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// Humor categories the line-format fallback maps onto.
var lineCategories = map[string]string{
	"absurd":   "absurd",
	"żart":     "joke",
	"zart":     "joke",
	"dowcip":   "joke",
	"ironia":   "irony",
	"sarkazm":  "irony",
	"gafa":     "gaffe",
	"przesada": "exaggeration",
}

func (o *Ollama) Name() string { return "ollama" }

func (o *Ollama) client() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (o *Ollama) EvaluateHumor(ctx context.Context, text string, ec *Context) (Evaluation, error) {
	body, err := json.Marshal(map[string]any{
		"model":  o.Model,
		"prompt": systemPrompt + "\n\n" + userPrompt(text, ec),
		"stream": false,
		"options": map[string]any{
			"temperature": 0.3,
			"top_p":       0.9,
			"num_predict": 200,
		},
	})
	if err != nil {
		return Evaluation{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return Evaluation{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client().Do(req)
	if err != nil {
		return Evaluation{}, &ProviderError{Provider: "ollama", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Evaluation{}, &ProviderError{Provider: "ollama", Status: resp.StatusCode, Err: fmt.Errorf("%s", truncate(string(b), 200))}
	}

	var out struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Evaluation{}, &ProviderError{Provider: "ollama", Err: fmt.Errorf("decode response: %w", err)}
	}

	if ev, err := parseEvaluation(out.Response); err == nil {
		return ev, nil
	}
	if ev, ok := parseLineFormat(out.Response); ok {
		return ev, nil
	}
	return Evaluation{}, &ProviderError{Provider: "ollama", Err: fmt.Errorf("unparseable response %q", truncate(out.Response, 120))}
}

// HealthCheck verifies the configured model tag is installed locally.
func (o *Ollama) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := o.client().Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama tags: status %d", resp.StatusCode)
	}
	var out struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode tags: %w", err)
	}
	for _, m := range out.Models {
		if m.Name == o.Model || strings.SplitN(m.Name, ":", 2)[0] == o.Model {
			return nil
		}
	}
	return fmt.Errorf("model %q not installed", o.Model)
}

// parseLineFormat handles the fallback answer layout some local models
// produce instead of JSON:
//
//	ŚMIESZNE: TAK
//	PEWNOŚĆ: 70%
//	KATEGORIA: ironia
//	POWÓD: ...
func parseLineFormat(s string) (Evaluation, bool) {
	var ev Evaluation
	var seen bool
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "ŚMIESZNE:") || strings.HasPrefix(upper, "SMIESZNE:"):
			val := strings.ToUpper(strings.TrimSpace(line[strings.IndexByte(line, ':')+1:]))
			ev.IsFunny = strings.HasPrefix(val, "TAK")
			seen = true
		case strings.HasPrefix(upper, "PEWNOŚĆ:") || strings.HasPrefix(upper, "PEWNOSC:"):
			val := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line[strings.IndexByte(line, ':')+1:]), "%"))
			if n, err := strconv.ParseFloat(val, 64); err == nil {
				if n > 1 {
					n /= 100
				}
				ev.Confidence = n
			}
		case strings.HasPrefix(upper, "KATEGORIA:"):
			val := strings.ToLower(strings.TrimSpace(line[strings.IndexByte(line, ':')+1:]))
			if cat, ok := lineCategories[val]; ok {
				ev.Category = cat
			} else {
				ev.Category = "none"
			}
		case strings.HasPrefix(upper, "POWÓD:") || strings.HasPrefix(upper, "POWOD:"):
			ev.Reason = strings.TrimSpace(line[strings.IndexByte(line, ':')+1:])
		}
	}
	return ev, seen
}
