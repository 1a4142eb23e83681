package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnv overlays environment variables onto cfg. Env values override
// whatever is already present, so call this after loading any config file
// and before flag handling.
func ApplyEnv(cfg *Config) {
	if cfg == nil {
		return
	}

	setStr := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setBool := func(dst *bool, key string) {
		if s := strings.ToLower(strings.TrimSpace(os.Getenv(key))); s != "" {
			switch s {
			case "1", "true", "yes", "on":
				*dst = true
			case "0", "false", "no", "off":
				*dst = false
			}
		}
	}
	// Durations accept either Go duration syntax ("90s") or a bare number
	// interpreted in the unit named by the variable.
	setHours := func(dst *time.Duration, key string) {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return
		}
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
			return
		}
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 {
			*dst = time.Duration(n * float64(time.Hour))
		}
	}
	setSeconds := func(dst *time.Duration, key string) {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return
		}
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
			return
		}
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 {
			*dst = time.Duration(n * float64(time.Second))
		}
	}

	setStr(&cfg.APIBaseURL, "API_BASE_URL")
	setSeconds(&cfg.RequestTimeout, "REQUEST_TIMEOUT")
	setSeconds(&cfg.RequestDelay, "REQUEST_DELAY")
	setInt(&cfg.MaxRetries, "MAX_RETRIES")
	setStr(&cfg.UserAgent, "USER_AGENT")

	setStr(&cfg.CacheDir, "CACHE_DIR")
	setHours(&cfg.CacheMemoryTTL, "CACHE_MEMORY_TTL_HOURS")
	setHours(&cfg.CacheFileTTL, "CACHE_FILE_TTL_HOURS")
	setInt(&cfg.CacheMaxMemoryEntries, "CACHE_MAX_MEMORY_ENTRIES")
	setBool(&cfg.CacheEnableCleanup, "CACHE_ENABLE_CLEANUP")

	if v := strings.TrimSpace(os.Getenv("SCRAPING_MODE")); v != "" {
		cfg.ScrapingMode = ScrapingMode(strings.ToLower(v))
	}
	setBool(&cfg.FetchFullStatements, "FETCH_FULL_STATEMENTS")
	setInt(&cfg.ConcurrentDownloads, "CONCURRENT_DOWNLOADS")
	setInt(&cfg.DefaultTerm, "DEFAULT_TERM")
	setStr(&cfg.DataDir, "DATA_DIR")

	setStr(&cfg.LogLevel, "LOG_LEVEL")
	setBool(&cfg.LogToFile, "LOG_TO_FILE")
	setStr(&cfg.LogDir, "LOG_DIR")
	setInt(&cfg.LogMaxFileSizeMB, "LOG_MAX_FILE_SIZE_MB")
	setInt(&cfg.LogBackupCount, "LOG_BACKUP_COUNT")

	setStr(&cfg.KeywordsPath, "KEYWORDS_PATH")
	setStr(&cfg.RosterPath, "ROSTER_PATH")

	setStr(&cfg.PrimaryAI, "PRIMARY_AI_API")
	setStr(&cfg.AICacheDir, "AI_CACHE_DIR")
	setInt(&cfg.AIMaxRetries, "AI_MAX_RETRIES")
	setStr(&cfg.OllamaBaseURL, "OLLAMA_BASE_URL")
	setStr(&cfg.OllamaModel, "OLLAMA_MODEL")
	setStr(&cfg.GeminiAPIKey, "GEMINI_API_KEY")
	setStr(&cfg.GeminiModel, "GEMINI_MODEL")
	setStr(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	setStr(&cfg.OpenAIModel, "OPENAI_MODEL")
	setStr(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	setStr(&cfg.AnthropicModel, "ANTHROPIC_MODEL")
}
