package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// FileConfig is the optional single-file configuration schema. Nested
// sections map naturally to env vars; env always wins over the file.
type FileConfig struct {
	API       fileAPI       `yaml:"api"`
	Cache     fileCache     `yaml:"cache"`
	Scraping  fileScraping  `yaml:"scraping"`
	Detection fileDetection `yaml:"detection"`
	AI        fileAI        `yaml:"ai"`
	Log       fileLog       `yaml:"log"`
}

type fileAPI struct {
	BaseURL   string        `yaml:"baseURL"`
	Timeout   time.Duration `yaml:"timeout"`
	Delay     time.Duration `yaml:"delay"`
	Retries   *int          `yaml:"retries"`
	UserAgent string        `yaml:"userAgent"`
}

type fileCache struct {
	Dir        string        `yaml:"dir"`
	MemoryTTL  time.Duration `yaml:"memoryTTL"`
	FileTTL    time.Duration `yaml:"fileTTL"`
	MaxEntries int           `yaml:"maxEntries"`
	Cleanup    *bool         `yaml:"cleanup"`
}

type fileScraping struct {
	Mode                string `yaml:"mode"`
	ConcurrentDownloads int    `yaml:"concurrentDownloads"`
	DefaultTerm         int    `yaml:"defaultTerm"`
	DataDir             string `yaml:"dataDir"`
}

type fileDetection struct {
	KeywordsPath     string   `yaml:"keywordsPath"`
	RosterPath       string   `yaml:"rosterPath"`
	MinConfidence    *float64 `yaml:"minConfidence"`
	DedupJaccard     *float64 `yaml:"dedupJaccard"`
	FuzzyThreshold   *float64 `yaml:"fuzzyThreshold"`
	GroupingDistance int      `yaml:"groupingDistance"`
}

type fileAI struct {
	Primary   string         `yaml:"primary"`
	CacheDir  string         `yaml:"cacheDir"`
	Retries   *int           `yaml:"retries"`
	Rates     map[string]int `yaml:"rates"`
	Ollama    fileOllama     `yaml:"ollama"`
	Gemini    fileModel      `yaml:"gemini"`
	OpenAI    fileModel      `yaml:"openai"`
	Anthropic fileModel      `yaml:"anthropic"`
}

type fileOllama struct {
	BaseURL string `yaml:"baseURL"`
	Model   string `yaml:"model"`
}

type fileModel struct {
	Model string `yaml:"model"`
}

type fileLog struct {
	Level         string `yaml:"level"`
	ToFile        bool   `yaml:"toFile"`
	Dir           string `yaml:"dir"`
	MaxFileSizeMB int    `yaml:"maxFileSizeMB"`
	BackupCount   int    `yaml:"backupCount"`
}

// LoadFile reads a YAML config file and merges it into cfg. Missing file is
// an error; the caller decides whether a file is required.
func LoadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	mergeFile(cfg, &fc)
	return nil
}

func mergeFile(cfg *Config, fc *FileConfig) {
	setStr := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	setStr(&cfg.APIBaseURL, fc.API.BaseURL)
	if fc.API.Timeout > 0 {
		cfg.RequestTimeout = fc.API.Timeout
	}
	if fc.API.Delay > 0 {
		cfg.RequestDelay = fc.API.Delay
	}
	if fc.API.Retries != nil {
		cfg.MaxRetries = *fc.API.Retries
	}
	setStr(&cfg.UserAgent, fc.API.UserAgent)

	setStr(&cfg.CacheDir, fc.Cache.Dir)
	if fc.Cache.MemoryTTL > 0 {
		cfg.CacheMemoryTTL = fc.Cache.MemoryTTL
	}
	if fc.Cache.FileTTL > 0 {
		cfg.CacheFileTTL = fc.Cache.FileTTL
	}
	if fc.Cache.MaxEntries > 0 {
		cfg.CacheMaxMemoryEntries = fc.Cache.MaxEntries
	}
	if fc.Cache.Cleanup != nil {
		cfg.CacheEnableCleanup = *fc.Cache.Cleanup
	}

	if fc.Scraping.Mode != "" {
		cfg.ScrapingMode = ScrapingMode(strings.ToLower(fc.Scraping.Mode))
	}
	if fc.Scraping.ConcurrentDownloads > 0 {
		cfg.ConcurrentDownloads = fc.Scraping.ConcurrentDownloads
	}
	if fc.Scraping.DefaultTerm > 0 {
		cfg.DefaultTerm = fc.Scraping.DefaultTerm
	}
	setStr(&cfg.DataDir, fc.Scraping.DataDir)

	setStr(&cfg.KeywordsPath, fc.Detection.KeywordsPath)
	setStr(&cfg.RosterPath, fc.Detection.RosterPath)
	if fc.Detection.MinConfidence != nil {
		cfg.MinConfidence = *fc.Detection.MinConfidence
	}
	if fc.Detection.DedupJaccard != nil {
		cfg.DedupJaccard = *fc.Detection.DedupJaccard
	}
	if fc.Detection.FuzzyThreshold != nil {
		cfg.RosterFuzzyThreshold = *fc.Detection.FuzzyThreshold
	}
	if fc.Detection.GroupingDistance > 0 {
		cfg.GroupingDistance = fc.Detection.GroupingDistance
	}

	setStr(&cfg.PrimaryAI, fc.AI.Primary)
	setStr(&cfg.AICacheDir, fc.AI.CacheDir)
	if fc.AI.Retries != nil {
		cfg.AIMaxRetries = *fc.AI.Retries
	}
	for name, rpm := range fc.AI.Rates {
		if rpm > 0 {
			cfg.ProviderRates[name] = rpm
		}
	}
	setStr(&cfg.OllamaBaseURL, fc.AI.Ollama.BaseURL)
	setStr(&cfg.OllamaModel, fc.AI.Ollama.Model)
	setStr(&cfg.GeminiModel, fc.AI.Gemini.Model)
	setStr(&cfg.OpenAIModel, fc.AI.OpenAI.Model)
	setStr(&cfg.AnthropicModel, fc.AI.Anthropic.Model)

	setStr(&cfg.LogLevel, fc.Log.Level)
	if fc.Log.ToFile {
		cfg.LogToFile = true
	}
	setStr(&cfg.LogDir, fc.Log.Dir)
	if fc.Log.MaxFileSizeMB > 0 {
		cfg.LogMaxFileSizeMB = fc.Log.MaxFileSizeMB
	}
	if fc.Log.BackupCount > 0 {
		cfg.LogBackupCount = fc.Log.BackupCount
	}
}
