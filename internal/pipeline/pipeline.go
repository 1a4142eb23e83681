// Package pipeline drives the end-to-end flow for a term: sitting discovery,
// transcript ingestion, humor detection, and optional AI evaluation.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sejmhumor/sejmhumor/internal/aieval"
	"github.com/sejmhumor/sejmhumor/internal/cache"
	"github.com/sejmhumor/sejmhumor/internal/config"
	"github.com/sejmhumor/sejmhumor/internal/detect"
	"github.com/sejmhumor/sejmhumor/internal/sejmapi"
	"github.com/sejmhumor/sejmhumor/internal/store"
	"github.com/sejmhumor/sejmhumor/internal/transcript"
)

// Stats accumulates per-component counters over one run.
type Stats struct {
	Sittings         int               `json:"sittings"`
	SittingsSkipped  int               `json:"sittings_skipped"`
	Days             int               `json:"days"`
	DaysEmpty        int               `json:"days_empty"`
	Statements       int               `json:"statements"`
	StatementsFailed int               `json:"statements_failed"`
	Utterances       int               `json:"utterances"`
	Fragments        int               `json:"fragments"`
	Eval             aieval.BatchStats `json:"eval"`
}

func (s *Stats) add(o Stats) {
	s.Sittings += o.Sittings
	s.SittingsSkipped += o.SittingsSkipped
	s.Days += o.Days
	s.DaysEmpty += o.DaysEmpty
	s.Statements += o.Statements
	s.StatementsFailed += o.StatementsFailed
	s.Utterances += o.Utterances
	s.Fragments += o.Fragments
	s.Eval.Total += o.Eval.Total
	s.Eval.FunnyCount += o.Eval.FunnyCount
	s.Eval.CachedCount += o.Eval.CachedCount
	s.Eval.Skipped += o.Eval.Skipped
	s.Eval.Errors += o.Eval.Errors
}

// EvaluatedFragment pairs a detected fragment with its AI verdict.
type EvaluatedFragment struct {
	detect.Fragment
	Evaluation *aieval.Evaluation `json:"evaluation,omitempty"`
}

// resultFile is the persisted detection result schema.
type resultFile struct {
	Metadata struct {
		Term        int       `json:"term"`
		Sitting     int       `json:"sitting"`
		Date        string    `json:"date"`
		GeneratedAt time.Time `json:"generated_at"`
	} `json:"metadata"`
	Fragments []EvaluatedFragment `json:"fragments"`
}

// Runner owns the subsystems of one pipeline run. Evaluator is optional;
// without it fragments are persisted unevaluated.
type Runner struct {
	Cfg       config.Config
	API       *sejmapi.Client
	Store     *store.Store
	Files     *cache.Files
	Detector  *detect.Detector
	Evaluator *aieval.Evaluator

	now func() time.Time
}

// NewRunner wires a runner with the wall clock.
func NewRunner(cfg config.Config, api *sejmapi.Client, st *store.Store, files *cache.Files, det *detect.Detector) *Runner {
	return &Runner{Cfg: cfg, API: api, Store: st, Files: files, Detector: det, now: time.Now}
}

// RunTerm processes every eligible sitting of a term.
func (r *Runner) RunTerm(ctx context.Context, term int) (Stats, error) {
	var stats Stats

	sittings, err := r.API.Sittings(ctx, term)
	if err != nil {
		return stats, fmt.Errorf("list sittings: %w", err)
	}
	sittings = filterSittings(sittings)

	roster := r.preloadRoster(ctx, term)

	for _, sitting := range sittings {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		s, err := r.RunSitting(ctx, term, sitting, roster)
		stats.add(s)
		if err != nil {
			return stats, err
		}
	}
	log.Info().Int("term", term).Int("sittings", stats.Sittings).Int("fragments", stats.Fragments).Msg("term done")
	return stats, nil
}

// filterSittings drops unnumbered sittings and deduplicates by number,
// keeping the result ordered.
func filterSittings(in []sejmapi.Sitting) []sejmapi.Sitting {
	seen := make(map[int]struct{}, len(in))
	out := make([]sejmapi.Sitting, 0, len(in))
	for _, s := range in {
		if s.Number == 0 {
			continue
		}
		if _, dup := seen[s.Number]; dup {
			continue
		}
		seen[s.Number] = struct{}{}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// preloadRoster fetches the member list for speaker enrichment. Failure is
// not fatal; detection proceeds with raw speaker names.
func (r *Runner) preloadRoster(ctx context.Context, term int) *transcript.Roster {
	members, err := r.API.Members(ctx, term)
	if err != nil || len(members) == 0 {
		log.Warn().Err(err).Int("term", term).Msg("roster preload failed, using raw speaker names")
		if r.Cfg.RosterPath != "" {
			if roster, lerr := transcript.LoadRoster(r.Cfg.RosterPath); lerr == nil {
				return roster
			}
		}
		return transcript.NewRoster(nil, nil, nil)
	}
	if err := r.Store.WriteMembers(term, members); err != nil {
		log.Warn().Err(err).Msg("persist members failed")
	}
	roster := transcript.RosterFromMembers(members)
	roster.FuzzyThreshold = r.Cfg.RosterFuzzyThreshold
	log.Debug().Int("members", roster.Len()).Msg("roster preloaded")
	return roster
}

// RunSitting processes one sitting: every past day is fetched, persisted,
// and run through detection.
func (r *Runner) RunSitting(ctx context.Context, term int, sitting sejmapi.Sitting, roster *transcript.Roster) (Stats, error) {
	var stats Stats

	today := r.now().UTC().Format("2006-01-02")
	if isFuture(sitting.Dates, today) {
		log.Info().Int("sitting", sitting.Number).Strs("dates", sitting.Dates).Msg("future, skipped")
		stats.SittingsSkipped++
		return stats, nil
	}

	force := r.Cfg.ScrapingMode == config.ModeForceRefresh
	if r.Files != nil && !r.Files.ShouldRefreshSitting(term, sitting.Number, sitting.Dates, force) {
		log.Debug().Int("sitting", sitting.Number).Msg("fresh in cache, skipped")
		stats.SittingsSkipped++
		return stats, nil
	}

	if err := r.Store.WriteSittingInfo(term, sitting); err != nil {
		log.Warn().Err(err).Int("sitting", sitting.Number).Msg("persist sitting info failed")
	}

	stats.Sittings++
	complete := true
	for _, date := range sitting.Dates {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if date > today {
			continue
		}
		s, err := r.RunDay(ctx, term, sitting, date, roster)
		stats.add(s)
		if err != nil {
			log.Warn().Err(err).Int("sitting", sitting.Number).Str("date", date).Msg("day failed")
			complete = false
		}
	}

	if r.Files != nil {
		status := "complete"
		if !complete || isPartial(sitting.Dates, today) {
			status = "partial"
		}
		if err := r.Files.MarkSittingChecked(term, sitting.Number, status); err != nil {
			log.Warn().Err(err).Msg("mark sitting checked failed")
		}
	}
	return stats, nil
}

func isFuture(dates []string, today string) bool {
	if len(dates) == 0 {
		return false
	}
	for _, d := range dates {
		if d <= today {
			return false
		}
	}
	return true
}

func isPartial(dates []string, today string) bool {
	for _, d := range dates {
		if d >= today {
			return true
		}
	}
	return false
}

// RunDay ingests one sitting day and runs detection over it.
func (r *Runner) RunDay(ctx context.Context, term int, sitting sejmapi.Sitting, date string, roster *transcript.Roster) (Stats, error) {
	var stats Stats
	stats.Days++

	tf, err := r.loadOrFetchDay(ctx, term, sitting, date, roster)
	if err != nil {
		if err == store.ErrNoContent {
			stats.DaysEmpty++
			return stats, nil
		}
		return stats, err
	}
	stats.Statements += len(tf.Statements)
	for _, st := range tf.Statements {
		if strings.TrimSpace(st.Text) == "" {
			stats.StatementsFailed++
		}
	}

	parsed := r.parseDay(tf, fmt.Sprintf("transkrypty_%s.json", date), roster)
	stats.Utterances += len(parsed.Utterances)

	extractor := r.newExtractor()
	fragments := extractor.Extract(parsed)
	stats.Fragments += len(fragments)
	if len(fragments) == 0 {
		return stats, nil
	}

	evaluated := make([]EvaluatedFragment, len(fragments))
	for i, f := range fragments {
		evaluated[i] = EvaluatedFragment{Fragment: f}
	}
	if r.Evaluator != nil {
		items := make([]aieval.BatchItem, len(fragments))
		for i, f := range fragments {
			items[i] = aieval.BatchItem{
				Text: f.Text,
				Context: &aieval.Context{
					Speaker:  f.Speaker,
					Club:     f.Club,
					Keywords: f.KeywordList(),
				},
			}
		}
		evals, evalStats := r.Evaluator.EvaluateBatch(ctx, items)
		for i := range evaluated {
			ev := evals[i]
			evaluated[i].Evaluation = &ev
		}
		stats.Eval = evalStats
	}

	var rf resultFile
	rf.Metadata.Term = term
	rf.Metadata.Sitting = sitting.Number
	rf.Metadata.Date = date
	rf.Metadata.GeneratedAt = r.now().UTC()
	rf.Fragments = evaluated

	source := fmt.Sprintf("kadencja%d_pos%d_%s", term, sitting.Number, date)
	path, err := r.Store.WriteResults(source, rf)
	if err != nil {
		return stats, fmt.Errorf("persist results: %w", err)
	}
	log.Info().Str("path", path).Int("fragments", len(fragments)).Msg("wrote detection results")
	return stats, nil
}

// loadOrFetchDay returns the day's transcript, from disk when fresh enough
// and from the API otherwise.
func (r *Runner) loadOrFetchDay(ctx context.Context, term int, sitting sejmapi.Sitting, date string, roster *transcript.Roster) (store.TranscriptFile, error) {
	onDisk := r.Store.HasTranscript(term, sitting.Number, date)
	switch r.Cfg.ScrapingMode {
	case config.ModeCacheOnly:
		if !onDisk {
			return store.TranscriptFile{}, store.ErrNoContent
		}
		return r.Store.ReadTranscript(r.Store.TranscriptPath(term, sitting.Number, date))
	case config.ModeForceRefresh:
	default:
		if onDisk {
			return r.Store.ReadTranscript(r.Store.TranscriptPath(term, sitting.Number, date))
		}
	}
	return r.fetchDay(ctx, term, sitting, date, roster)
}

// fetchDay pulls the statement list and statement texts for one day and
// persists the transcript file atomically.
func (r *Runner) fetchDay(ctx context.Context, term int, sitting sejmapi.Sitting, date string, roster *transcript.Roster) (store.TranscriptFile, error) {
	list, err := r.API.StatementsDay(ctx, term, sitting.Number, date)
	if err != nil {
		return store.TranscriptFile{}, fmt.Errorf("statements %d/%s: %w", sitting.Number, date, err)
	}

	texts := make([]string, len(list.Statements))
	if r.Cfg.FetchFullStatements {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.Cfg.ConcurrentDownloads)
		for i, st := range list.Statements {
			g.Go(func() error {
				text, terr := r.API.StatementText(gctx, term, sitting.Number, date, st.Num)
				if terr != nil {
					log.Debug().Int("num", st.Num).Str("date", date).Msg("statement text unavailable")
					return nil
				}
				texts[i] = text
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return store.TranscriptFile{}, err
		}
	}

	tf := store.TranscriptFile{
		Metadata: store.TranscriptMeta{
			Term:        term,
			SittingID:   sitting.Number,
			Date:        date,
			GeneratedAt: r.now().UTC(),
			SittingInfo: &sitting,
		},
	}
	for i, st := range list.Statements {
		original, _ := json.Marshal(st)
		tf.Statements = append(tf.Statements, store.TranscriptStatement{
			Num:             st.Num,
			Speaker:         enrichSpeaker(st, roster),
			Text:            texts[i],
			StartTime:       st.StartDateTime,
			EndTime:         st.EndDateTime,
			DurationSeconds: durationSeconds(st.StartDateTime, st.EndDateTime),
			Original:        original,
		})
	}

	path, err := r.Store.WriteTranscript(tf)
	if err != nil {
		return store.TranscriptFile{}, err
	}
	if r.Files != nil {
		if terr := r.Files.Track(path); terr != nil {
			log.Warn().Err(terr).Str("path", path).Msg("track transcript failed")
		}
	}
	return tf, nil
}

// enrichSpeaker resolves the statement's speaker against the roster.
func enrichSpeaker(st sejmapi.Statement, roster *transcript.Roster) store.Speaker {
	name := st.Name
	if name == "" {
		name = strings.TrimSpace(st.FirstName + " " + st.LastName)
	}
	sp := store.Speaker{Name: transcript.CleanSpeakerName(name), Club: st.Club, Function: st.Function}
	if sp.Name == "" {
		sp.Name = transcript.UnknownSpeaker
		return sp
	}
	if roster != nil {
		if canonical, club, ok := roster.FindClub(name); ok {
			sp.Name = canonical
			if club != "" {
				sp.Club = club
			}
		} else if sp.Club != "" {
			sp.Club = roster.ExpandClub(sp.Club)
		}
	}
	return sp
}

func durationSeconds(start, end string) float64 {
	const layout = "2006-01-02T15:04:05"
	s, err1 := time.Parse(layout, start)
	e, err2 := time.Parse(layout, end)
	if err1 != nil || err2 != nil {
		return 0
	}
	d := e.Sub(s).Seconds()
	if d < 0 {
		return 0
	}
	return d
}

// parseDay turns the day's statements into speaker-attributed utterances.
// Attribution comes from the statement metadata itself, so statements whose
// speaker no line pattern would recognize keep their own utterance instead of
// merging into the preceding speech.
func (r *Runner) parseDay(tf store.TranscriptFile, sourceName string, roster *transcript.Roster) *transcript.ParseResult {
	blocks := make([]transcript.AttributedBlock, 0, len(tf.Statements))
	for _, st := range tf.Statements {
		if strings.TrimSpace(st.Text) == "" {
			continue
		}
		blocks = append(blocks, transcript.AttributedBlock{
			Speaker: st.Speaker.Name,
			Club:    st.Speaker.Club,
			Text:    st.Text,
		})
	}
	p := &transcript.Parser{Roster: roster}
	res := p.ParseAttributed(blocks, sourceName)
	return &res
}

func (r *Runner) newExtractor() *detect.Extractor {
	e := detect.NewExtractor(r.Detector)
	if r.Cfg.GroupingDistance > 0 {
		e.GroupingDistance = r.Cfg.GroupingDistance
	}
	if r.Cfg.ContextBefore > 0 {
		e.ContextBefore = r.Cfg.ContextBefore
	}
	if r.Cfg.ContextAfter > 0 {
		e.ContextAfter = r.Cfg.ContextAfter
	}
	if r.Cfg.MinConfidence > 0 {
		e.MinConfidence = r.Cfg.MinConfidence
	}
	if r.Cfg.DedupJaccard > 0 {
		e.DedupJaccard = r.Cfg.DedupJaccard
	}
	return e
}
