// Command sejmhumor scrapes Polish parliamentary transcripts, detects
// candidate humorous fragments, and optionally classifies them with a chain
// of AI providers.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/sejmhumor/sejmhumor/internal/aieval"
	"github.com/sejmhumor/sejmhumor/internal/cache"
	"github.com/sejmhumor/sejmhumor/internal/config"
	"github.com/sejmhumor/sejmhumor/internal/detect"
	"github.com/sejmhumor/sejmhumor/internal/fetch"
	"github.com/sejmhumor/sejmhumor/internal/pipeline"
	"github.com/sejmhumor/sejmhumor/internal/report"
	"github.com/sejmhumor/sejmhumor/internal/sejmapi"
	"github.com/sejmhumor/sejmhumor/internal/store"
	"github.com/sejmhumor/sejmhumor/internal/transcript"
)

var (
	flagConfig   string
	flagTerm     int
	flagLogLevel string
	flagDataDir  string
	flagEvaluate bool
	flagForce    bool
	flagAssets   bool
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintln(os.Stderr, "panic:", r)
			os.Exit(2)
		}
	}()
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sejmhumor",
		Short:         "Humor detection over Polish parliamentary transcripts",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "path to a YAML config file")
	pf.IntVar(&flagTerm, "term", 0, "parliamentary term (kadencja)")
	pf.StringVar(&flagLogLevel, "log-level", "", "debug, info, warn, or error")
	pf.StringVar(&flagDataDir, "data-dir", "", "base directory for persisted artifacts")
	pf.BoolVar(&flagForce, "force", false, "ignore cache freshness and refetch")

	scrapeTerm := &cobra.Command{
		Use:   "scrape-term",
		Short: "Scrape and analyze every eligible sitting of a term",
		RunE:  runScrapeTerm,
	}
	scrapeTerm.Flags().BoolVar(&flagEvaluate, "evaluate", false, "run AI evaluation over detected fragments")
	scrapeTerm.Flags().BoolVar(&flagAssets, "assets", false, "also fetch member photos and club logos")

	scrapeProceeding := &cobra.Command{
		Use:   "scrape-proceeding <sitting>",
		Short: "Scrape and analyze one sitting",
		Args:  cobra.ExactArgs(1),
		RunE:  runScrapeProceeding,
	}
	scrapeProceeding.Flags().BoolVar(&flagEvaluate, "evaluate", false, "run AI evaluation over detected fragments")

	scrapeDate := &cobra.Command{
		Use:   "scrape-date <sitting> <YYYY-MM-DD>",
		Short: "Scrape and analyze a single sitting day",
		Args:  cobra.ExactArgs(2),
		RunE:  runScrapeDate,
	}
	scrapeDate.Flags().BoolVar(&flagEvaluate, "evaluate", false, "run AI evaluation over detected fragments")

	root.AddCommand(
		scrapeTerm,
		scrapeProceeding,
		scrapeDate,
		&cobra.Command{Use: "list-terms", Short: "List parliamentary terms", RunE: runListTerms},
		&cobra.Command{Use: "list-proceedings", Short: "List the sittings of a term", RunE: runListProceedings},
		&cobra.Command{Use: "show-stats", Short: "Summarize persisted artifacts", RunE: runShowStats},
		&cobra.Command{Use: "cache-stats", Short: "Report cache sizes", RunE: runCacheStats},
		&cobra.Command{Use: "cache-clear", Short: "Remove all cached data", RunE: runCacheClear},
		&cobra.Command{Use: "cache-cleanup", Short: "Purge cache entries past their TTL", RunE: runCacheCleanup},
		&cobra.Command{Use: "validate-config", Short: "Check the resolved configuration", RunE: runValidateConfig},
		&cobra.Command{Use: "health-check", Short: "Probe the upstream API and local AI", RunE: runHealthCheck},
		&cobra.Command{Use: "test-api", Short: "Issue a single probe request", RunE: runTestAPI},
		&cobra.Command{
			Use:   "report <results.json> [out.pdf]",
			Short: "Render a detection result file as PDF",
			Args:  cobra.RangeArgs(1, 2),
			RunE:  runReport,
		},
	)
	return root
}

// setup resolves configuration (defaults, file, env, flags) and initializes
// logging.
func setup() (config.Config, error) {
	cfg := config.Default()
	if flagConfig != "" {
		if err := config.LoadFile(flagConfig, &cfg); err != nil {
			return cfg, err
		}
	}
	config.ApplyEnv(&cfg)
	if flagTerm > 0 {
		cfg.DefaultTerm = flagTerm
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	if flagForce {
		cfg.ScrapingMode = config.ModeForceRefresh
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	if cfg.LogToFile {
		path := filepath.Join(cfg.LogDir, "sejmhumor.log")
		rotateLogs(path, int64(cfg.LogMaxFileSizeMB)<<20, cfg.LogBackupCount)
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			log.Logger = log.Output(zerolog.MultiLevelWriter(
				zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}, f))
		} else {
			log.Warn().Err(err).Str("path", path).Msg("log file unavailable")
		}
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// rotateLogs shifts path onto numbered backups once it has grown past
// maxBytes. The backup beyond count falls off the end.
func rotateLogs(path string, maxBytes int64, count int) {
	if maxBytes <= 0 || count <= 0 {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() < maxBytes {
		return
	}
	os.Remove(fmt.Sprintf("%s.%d", path, count))
	for i := count - 1; i >= 1; i-- {
		os.Rename(fmt.Sprintf("%s.%d", path, i), fmt.Sprintf("%s.%d", path, i+1))
	}
	os.Rename(path, path+".1")
}

// memCleanupInterval is how often the in-process cache sheds expired entries
// during long scrapes.
const memCleanupInterval = 10 * time.Minute

func startCacheJanitor(ctx context.Context, mem *cache.Memory) {
	go func() {
		t := time.NewTicker(memCleanupInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := mem.Cleanup(); n > 0 {
					log.Debug().Int("removed", n).Msg("memory cache cleanup")
				}
			}
		}
	}()
}

func newAPIClient(cfg config.Config) (*sejmapi.Client, *cache.Memory) {
	mem := cache.NewMemory(cfg.CacheMaxMemoryEntries)
	client := &sejmapi.Client{Fetcher: &fetch.Client{
		BaseURL:           cfg.APIBaseURL,
		UserAgent:         cfg.UserAgent,
		MaxAttempts:       cfg.MaxRetries + 1,
		PerRequestTimeout: cfg.RequestTimeout,
		Limiter:           rate.NewLimiter(rate.Every(cfg.RequestDelay), cfg.ConcurrentDownloads),
		Memory:            mem,
		DefaultTTL:        cfg.CacheMemoryTTL,
		BypassCache:       cfg.ScrapingMode == config.ModeForceRefresh,
	}}
	return client, mem
}

func newRunner(cfg config.Config) (*pipeline.Runner, *cache.Memory, error) {
	det, err := detect.LoadDetector(cfg.KeywordsPath)
	if err != nil {
		return nil, nil, err
	}
	st := &store.Store{BaseDir: cfg.DataDir}
	files := &cache.Files{Dir: cfg.CacheDir, HasTranscript: st.HasTranscript}
	api, mem := newAPIClient(cfg)
	r := pipeline.NewRunner(cfg, api, st, files, det)
	if flagEvaluate {
		ev, err := newEvaluator(cfg)
		if err != nil {
			return nil, nil, err
		}
		r.Evaluator = ev
	}
	return r, mem, nil
}

// newEvaluator assembles the provider chain from whatever is configured:
// remote providers need keys, the local LLM only an address.
func newEvaluator(cfg config.Config) (*aieval.Evaluator, error) {
	var adapters []aieval.Adapter
	if cfg.GeminiAPIKey != "" {
		adapters = append(adapters, &aieval.Gemini{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel})
	}
	if cfg.OpenAIAPIKey != "" {
		adapters = append(adapters, aieval.NewOpenAI(cfg.OpenAIAPIKey, "", cfg.OpenAIModel))
	}
	if cfg.AnthropicAPIKey != "" {
		adapters = append(adapters, aieval.NewAnthropic(cfg.AnthropicAPIKey, "", cfg.AnthropicModel))
	}
	if cfg.OllamaBaseURL != "" {
		adapters = append(adapters, &aieval.Ollama{BaseURL: cfg.OllamaBaseURL, Model: cfg.OllamaModel})
	}
	if len(adapters) == 0 {
		return nil, fmt.Errorf("no AI providers configured; set an API key or an ollama address")
	}
	ev := aieval.NewEvaluator(&cache.EvalCache{Dir: cfg.AICacheDir}, cfg.PrimaryAI, adapters, cfg.ProviderRates)
	ev.MaxRetries = cfg.AIMaxRetries
	return ev, nil
}

func runScrapeTerm(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	r, mem, err := newRunner(cfg)
	if err != nil {
		return err
	}
	if cfg.CacheEnableCleanup {
		startCacheJanitor(ctx, mem)
	}
	stats, err := r.RunTerm(ctx, cfg.DefaultTerm)
	printJSON(stats)
	if err != nil {
		return err
	}
	if flagAssets {
		fetchAssets(ctx, r, cfg.DefaultTerm)
	}
	return nil
}

// fetchAssets pulls member photos and club logos. Failures are logged and
// skipped; assets are decoration, not pipeline input.
func fetchAssets(ctx context.Context, r *pipeline.Runner, term int) {
	members, err := r.API.Members(ctx, term)
	if err != nil {
		log.Warn().Err(err).Msg("member list unavailable, skipping photos")
	}
	var photos int
	for _, m := range members {
		if !m.Active {
			continue
		}
		data, perr := r.API.MemberPhoto(ctx, term, m.ID)
		if perr != nil {
			continue
		}
		if werr := r.Store.WriteMemberPhoto(term, m.ID, data); werr == nil {
			photos++
		}
	}

	clubs, err := r.API.Clubs(ctx, term)
	if err != nil {
		log.Warn().Err(err).Msg("club list unavailable, skipping logos")
	} else if werr := r.Store.WriteClubs(term, clubs); werr != nil {
		log.Warn().Err(werr).Msg("persist clubs failed")
	}
	var logos int
	for _, c := range clubs {
		data, lerr := r.API.ClubLogo(ctx, term, c.ID)
		if lerr != nil {
			continue
		}
		if werr := r.Store.WriteClubLogo(term, c.ID, data); werr == nil {
			logos++
		}
	}
	log.Info().Int("photos", photos).Int("logos", logos).Msg("assets fetched")
}

func runScrapeProceeding(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	number, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("sitting number: %w", err)
	}
	ctx, cancel := signalContext()
	defer cancel()

	r, mem, err := newRunner(cfg)
	if err != nil {
		return err
	}
	if cfg.CacheEnableCleanup {
		startCacheJanitor(ctx, mem)
	}
	sitting, err := r.API.Sitting(ctx, cfg.DefaultTerm, number)
	if err != nil {
		return fmt.Errorf("sitting %d: %w", number, err)
	}
	roster := rosterFor(ctx, r, cfg.DefaultTerm)
	stats, err := r.RunSitting(ctx, cfg.DefaultTerm, sitting, roster)
	printJSON(stats)
	return err
}

func runScrapeDate(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	number, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("sitting number: %w", err)
	}
	date := args[1]
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("date %q: %w", date, err)
	}
	ctx, cancel := signalContext()
	defer cancel()

	r, mem, err := newRunner(cfg)
	if err != nil {
		return err
	}
	if cfg.CacheEnableCleanup {
		startCacheJanitor(ctx, mem)
	}
	sitting, err := r.API.Sitting(ctx, cfg.DefaultTerm, number)
	if err != nil {
		return fmt.Errorf("sitting %d: %w", number, err)
	}
	roster := rosterFor(ctx, r, cfg.DefaultTerm)
	stats, err := r.RunDay(ctx, cfg.DefaultTerm, sitting, date, roster)
	printJSON(stats)
	return err
}

func rosterFor(ctx context.Context, r *pipeline.Runner, term int) *transcript.Roster {
	members, err := r.API.Members(ctx, term)
	if err != nil || len(members) == 0 {
		log.Warn().Err(err).Msg("roster unavailable, using raw speaker names")
		return transcript.NewRoster(nil, nil, nil)
	}
	return transcript.RosterFromMembers(members)
}

func runListTerms(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	api, _ := newAPIClient(cfg)
	terms, err := api.Terms(ctx)
	if err != nil {
		return err
	}
	for _, t := range terms {
		current := ""
		if t.Current {
			current = " (bieżąca)"
		}
		fmt.Printf("kadencja %d: %s – %s%s\n", t.Num, t.From, t.To, current)
	}
	return nil
}

func runListProceedings(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	api, _ := newAPIClient(cfg)
	sittings, err := api.Sittings(ctx, cfg.DefaultTerm)
	if err != nil {
		return err
	}
	for _, s := range sittings {
		if s.Number == 0 {
			continue
		}
		fmt.Printf("posiedzenie %3d: %s\n", s.Number, strings.Join(s.Dates, ", "))
	}
	return nil
}

func runShowStats(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	var transcripts, results int
	var bytes int64
	err = filepath.WalkDir(cfg.DataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, ierr := d.Info()
		if ierr == nil {
			bytes += info.Size()
		}
		switch {
		case strings.HasPrefix(d.Name(), "transkrypty_"):
			transcripts++
		case strings.HasPrefix(d.Name(), "results_"):
			results++
		}
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Printf("transcripts: %d\nresults: %d\ntotal size: %.1f MB\n", transcripts, results, float64(bytes)/(1<<20))
	return nil
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	var files int
	var bytes int64
	filepath.WalkDir(cfg.CacheDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		files++
		if info, ierr := d.Info(); ierr == nil {
			bytes += info.Size()
		}
		return nil
	})
	evals := (&cache.EvalCache{Dir: cfg.AICacheDir}).Len()
	fmt.Printf("cache files: %d\ncache size: %.1f MB\nai evaluations: %d\n", files, float64(bytes)/(1<<20), evals)
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	for _, dir := range []string{cfg.CacheDir, cfg.AICacheDir} {
		if err := cache.ClearDir(dir); err != nil {
			return fmt.Errorf("clear %s: %w", dir, err)
		}
	}
	log.Info().Msg("caches cleared")
	return nil
}

func runCacheCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	removed, err := cache.PurgeByAge(cfg.CacheDir, cfg.CacheFileTTL)
	if err != nil {
		return err
	}
	log.Info().Int("removed", removed).Msg("cache cleanup done")
	return nil
}

func runValidateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	redacted := cfg
	for _, key := range []*string{&redacted.GeminiAPIKey, &redacted.OpenAIAPIKey, &redacted.AnthropicAPIKey} {
		if *key != "" {
			*key = "***"
		}
	}
	printJSON(redacted)
	return nil
}

func runHealthCheck(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	api, _ := newAPIClient(cfg)
	health := api.HealthCheck(ctx, cfg.DefaultTerm)
	printJSON(health)

	if cfg.OllamaBaseURL != "" {
		ollama := &aieval.Ollama{BaseURL: cfg.OllamaBaseURL, Model: cfg.OllamaModel}
		if err := ollama.HealthCheck(ctx); err != nil {
			log.Warn().Err(err).Msg("local LLM unavailable")
		} else {
			log.Info().Str("model", cfg.OllamaModel).Msg("local LLM ready")
		}
	}
	for _, provider := range []string{"gemini", "openai", "anthropic"} {
		if cfg.APIKeyFor(provider) != "" {
			log.Info().Str("provider", provider).Msg("api key configured")
		} else {
			log.Debug().Str("provider", provider).Msg("no api key")
		}
	}
	if health.Score < 1 {
		return fmt.Errorf("api health %.0f%%", health.Score*100)
	}
	return nil
}

func runTestAPI(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	api, _ := newAPIClient(cfg)
	start := time.Now()
	term, err := api.Term(ctx, cfg.DefaultTerm)
	if err != nil {
		return err
	}
	fmt.Printf("term %d reachable in %s\n", term.Num, time.Since(start).Round(time.Millisecond))
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	if _, err := setup(); err != nil {
		return err
	}
	in := args[0]
	out := strings.TrimSuffix(in, filepath.Ext(in)) + ".pdf"
	if len(args) == 2 {
		out = args[1]
	}
	b, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	var rf struct {
		Metadata struct {
			Term    int    `json:"term"`
			Sitting int    `json:"sitting"`
			Date    string `json:"date"`
		} `json:"metadata"`
		Fragments []pipeline.EvaluatedFragment `json:"fragments"`
	}
	if err := json.Unmarshal(b, &rf); err != nil {
		return fmt.Errorf("parse %s: %w", in, err)
	}
	title := fmt.Sprintf("Kadencja %d, posiedzenie %d, %s", rf.Metadata.Term, rf.Metadata.Sitting, rf.Metadata.Date)
	if err := report.WritePDF(title, rf.Fragments, out); err != nil {
		return err
	}
	log.Info().Str("path", out).Int("fragments", len(rf.Fragments)).Msg("wrote report")
	return nil
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return
	}
	fmt.Println(string(b))
}
