package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ScrapingMode selects how aggressively the pipeline refetches upstream data.
type ScrapingMode string

const (
	ModeNormal       ScrapingMode = "normal"
	ModeForceRefresh ScrapingMode = "force_refresh"
	ModeCacheOnly    ScrapingMode = "cache_only"
	ModeIncremental  ScrapingMode = "incremental"
)

// Config holds runtime configuration for the application.
type Config struct {
	// Upstream API
	APIBaseURL     string
	RequestTimeout time.Duration
	RequestDelay   time.Duration
	MaxRetries     int
	UserAgent      string

	// Cache
	CacheDir              string
	CacheMemoryTTL        time.Duration
	CacheFileTTL          time.Duration
	CacheMaxMemoryEntries int
	CacheEnableCleanup    bool

	// Scraping behavior
	ScrapingMode        ScrapingMode
	FetchFullStatements bool
	ConcurrentDownloads int
	DefaultTerm         int

	// Persistence
	DataDir string

	// Logging
	LogLevel         string
	LogToFile        bool
	LogDir           string
	LogMaxFileSizeMB int
	LogBackupCount   int

	// Detection
	KeywordsPath         string
	MinConfidence        float64
	GroupingDistance     int
	ContextBefore        int
	ContextAfter         int
	DedupJaccard         float64
	RosterPath           string
	RosterFuzzyThreshold float64

	// AI evaluation
	PrimaryAI       string
	AICacheDir      string
	AIMaxRetries    int
	OllamaBaseURL   string
	OllamaModel     string
	GeminiAPIKey    string
	GeminiModel     string
	OpenAIAPIKey    string
	OpenAIModel     string
	AnthropicAPIKey string
	AnthropicModel  string

	// Requests per minute per provider.
	ProviderRates map[string]int
}

// Default returns the baseline configuration before env and file overlays.
func Default() Config {
	return Config{
		APIBaseURL:            "https://api.sejm.gov.pl",
		RequestTimeout:        30 * time.Second,
		RequestDelay:          200 * time.Millisecond,
		MaxRetries:            3,
		UserAgent:             "sejmhumor/1.0 (+https://github.com/sejmhumor/sejmhumor)",
		CacheDir:              "cache",
		CacheMemoryTTL:        30 * time.Minute,
		CacheFileTTL:          24 * time.Hour,
		CacheMaxMemoryEntries: 10_000,
		CacheEnableCleanup:    true,
		ScrapingMode:          ModeNormal,
		FetchFullStatements:   true,
		ConcurrentDownloads:   3,
		DefaultTerm:           10,
		DataDir:               "data",
		LogLevel:              "info",
		LogDir:                "logs",
		LogMaxFileSizeMB:      10,
		LogBackupCount:        5,
		MinConfidence:         0.3,
		GroupingDistance:      50,
		ContextBefore:         49,
		ContextAfter:          100,
		DedupJaccard:          0.85,
		RosterFuzzyThreshold:  0.8,
		PrimaryAI:             "gemini",
		AICacheDir:            filepath.Join("cache", "ai"),
		AIMaxRetries:          3,
		OllamaBaseURL:         "http://localhost:11434",
		OllamaModel:           "gemma2:9b",
		GeminiModel:           "gemini-1.5-flash",
		OpenAIModel:           "gpt-4o-mini",
		AnthropicModel:        "claude-3-5-haiku-latest",
		ProviderRates: map[string]int{
			"gemini":    40,
			"openai":    50,
			"anthropic": 50,
			"ollama":    60,
		},
	}
}

// Validate checks numeric bounds and attempts to create the working
// directories. Failures here are fatal at startup.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return fmt.Errorf("api base url is required")
	}
	if c.DefaultTerm < 1 || c.DefaultTerm > 20 {
		return fmt.Errorf("default term %d out of range [1,20]", c.DefaultTerm)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("max retries %d out of range [0,10]", c.MaxRetries)
	}
	if c.ConcurrentDownloads < 1 || c.ConcurrentDownloads > 32 {
		return fmt.Errorf("concurrent downloads %d out of range [1,32]", c.ConcurrentDownloads)
	}
	if c.CacheMaxMemoryEntries < 1 {
		return fmt.Errorf("cache max memory entries must be positive")
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min confidence %v out of range [0,1]", c.MinConfidence)
	}
	if c.DedupJaccard <= 0 || c.DedupJaccard > 1 {
		return fmt.Errorf("dedup jaccard %v out of range (0,1]", c.DedupJaccard)
	}
	if c.RosterFuzzyThreshold <= 0 || c.RosterFuzzyThreshold > 1 {
		return fmt.Errorf("roster fuzzy threshold %v out of range (0,1]", c.RosterFuzzyThreshold)
	}
	switch c.ScrapingMode {
	case ModeNormal, ModeForceRefresh, ModeCacheOnly, ModeIncremental:
	default:
		return fmt.Errorf("unknown scraping mode %q", c.ScrapingMode)
	}
	for _, dir := range []string{c.DataDir, c.CacheDir, c.AICacheDir, c.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}
	return nil
}

// APIKeyFor returns the configured key for a provider name, empty when unset.
func (c *Config) APIKeyFor(provider string) string {
	switch provider {
	case "gemini":
		return c.GeminiAPIKey
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	}
	return ""
}
