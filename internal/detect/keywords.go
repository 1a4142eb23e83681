package detect

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"regexp"
	"sort"
	"strings"
)

//go:embed keywords.json
var defaultKeywordsJSON []byte

// Humor categories in priority order; ties between category scores resolve
// to the earlier entry.
var categoryOrder = []string{"joke", "sarcasm", "personal_attack", "chaos", "other"}

// KeywordConfig is the detector configuration schema.
type KeywordConfig struct {
	// FunnyKeywords maps keyword to an integer weight in 1..4.
	FunnyKeywords map[string]int `json:"funny_keywords"`
	// ExcludeKeywords mark formal or procedural content.
	ExcludeKeywords []string `json:"exclude_keywords"`
	// CategoryKeywords assigns keywords to humor categories.
	CategoryKeywords map[string][]string `json:"humor_category_keywords"`
}

// weightedKeyword is one entry of the flat external keyword list format.
type weightedKeyword struct {
	Keyword string  `json:"keyword"`
	Weight  float64 `json:"weight"`
}

// KeywordHit is a single keyword occurrence in a text.
type KeywordHit struct {
	Keyword string
	CharPos int
}

// Scores are the diagnostic sub-scores behind a confidence value.
type Scores struct {
	KeywordScore int     `json:"keyword_score"`
	ContextScore float64 `json:"context_score"`
	LengthBonus  float64 `json:"length_bonus"`
}

type keywordPattern struct {
	keyword string
	weight  int
	re      *regexp.Regexp
}

// Detector performs weighted keyword matching over utterance text. All
// patterns are compiled once at construction; matching is Unicode-aware so
// Polish letters count as word characters.
type Detector struct {
	patterns []keywordPattern
	weights  map[string]int
	exclude  *regexp.Regexp
	markers  *regexp.Regexp
	catSets  map[string]map[string]struct{}
}

// Parenthetical stage directions recorded by stenographers, e.g. "(Oklaski)"
// or "[Śmiech na sali]". These never belong to the spoken text.
var stenogramMarkers = regexp.MustCompile(`(?i)[\[(]\s*(?:oklaski|śmiech|wesołość|gwar|dzwonek|poruszenie|brawa|głosy?\s+z\s+sali)[^\])]*[\])]`)

var multiSpace = regexp.MustCompile(`\s+`)

// wordRegexp compiles a case-insensitive prefix match for kw with a boundary
// that treats any Unicode letter or digit as a word character. Go's \b is
// ASCII-only, so the boundary is spelled out.
func wordRegexp(kw string) (*regexp.Regexp, error) {
	return regexp.Compile(`(?i)(?:\A|[^\p{L}\p{N}])(` + regexp.QuoteMeta(kw) + `[\p{L}\p{N}]*)`)
}

// NewDetector compiles a detector from the given configuration.
func NewDetector(cfg KeywordConfig) (*Detector, error) {
	if len(cfg.FunnyKeywords) == 0 {
		return nil, fmt.Errorf("keyword config: no funny_keywords")
	}
	d := &Detector{
		weights: make(map[string]int, len(cfg.FunnyKeywords)),
		catSets: make(map[string]map[string]struct{}, len(cfg.CategoryKeywords)),
	}

	keywords := make([]string, 0, len(cfg.FunnyKeywords))
	for kw := range cfg.FunnyKeywords {
		keywords = append(keywords, kw)
	}
	sort.Strings(keywords)
	for _, kw := range keywords {
		w := cfg.FunnyKeywords[kw]
		if w < 1 {
			w = 1
		}
		if w > 4 {
			w = 4
		}
		re, err := wordRegexp(kw)
		if err != nil {
			return nil, fmt.Errorf("keyword %q: %w", kw, err)
		}
		lower := strings.ToLower(kw)
		d.patterns = append(d.patterns, keywordPattern{keyword: lower, weight: w, re: re})
		d.weights[lower] = w
	}

	if len(cfg.ExcludeKeywords) > 0 {
		quoted := make([]string, 0, len(cfg.ExcludeKeywords))
		for _, kw := range cfg.ExcludeKeywords {
			quoted = append(quoted, regexp.QuoteMeta(kw))
		}
		re, err := regexp.Compile(`(?i)(?:\A|[^\p{L}\p{N}])(?:` + strings.Join(quoted, "|") + `)[\p{L}\p{N}]*`)
		if err != nil {
			return nil, fmt.Errorf("exclude keywords: %w", err)
		}
		d.exclude = re
	}

	for cat, kws := range cfg.CategoryKeywords {
		set := make(map[string]struct{}, len(kws))
		for _, kw := range kws {
			set[strings.ToLower(kw)] = struct{}{}
		}
		d.catSets[cat] = set
	}

	d.markers = stenogramMarkers
	return d, nil
}

// DefaultDetector builds a detector from the embedded keyword set.
func DefaultDetector() (*Detector, error) {
	return fromJSON(defaultKeywordsJSON)
}

// LoadDetector reads a keyword configuration file. An empty path falls back
// to the embedded defaults. The file may carry either the full schema or a
// flat list of {keyword, weight} entries; the flat form replaces the funny
// keyword set and keeps the embedded excludes and categories.
func LoadDetector(path string) (*Detector, error) {
	if path == "" {
		return DefaultDetector()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keyword config: %w", err)
	}
	return fromJSON(b)
}

func fromJSON(b []byte) (*Detector, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []weightedKeyword
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("parse keyword list: %w", err)
		}
		var cfg KeywordConfig
		if err := json.Unmarshal(defaultKeywordsJSON, &cfg); err != nil {
			return nil, fmt.Errorf("parse embedded keywords: %w", err)
		}
		cfg.FunnyKeywords = make(map[string]int, len(list))
		for _, wk := range list {
			w := int(wk.Weight)
			if wk.Weight == 0 {
				w = 1
			}
			cfg.FunnyKeywords[wk.Keyword] = w
		}
		return NewDetector(cfg)
	}
	var cfg KeywordConfig
	if err := json.Unmarshal(trimmed, &cfg); err != nil {
		return nil, fmt.Errorf("parse keyword config: %w", err)
	}
	return NewDetector(cfg)
}

// Weight reports the configured weight for a keyword (1 when unknown).
func (d *Detector) Weight(kw string) int {
	if w, ok := d.weights[strings.ToLower(kw)]; ok {
		return w
	}
	return 1
}

// FindKeywords returns every keyword occurrence in text, sorted by position.
func (d *Detector) FindKeywords(text string) []KeywordHit {
	var hits []KeywordHit
	for _, p := range d.patterns {
		for _, m := range p.re.FindAllStringSubmatchIndex(text, -1) {
			hits = append(hits, KeywordHit{Keyword: p.keyword, CharPos: m[2]})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].CharPos < hits[j].CharPos })
	return hits
}

// CountExcludes counts exclude-keyword occurrences in text.
func (d *Detector) CountExcludes(text string) int {
	if d.exclude == nil {
		return 0
	}
	return len(d.exclude.FindAllStringIndex(text, -1))
}

// Count reports how many times one keyword occurs in text.
func (d *Detector) Count(text, kw string) int {
	lower := strings.ToLower(kw)
	for _, p := range d.patterns {
		if p.keyword == lower {
			return len(p.re.FindAllStringIndex(text, -1))
		}
	}
	return 0
}

// FilterStenogramMarkers strips parenthetical stage directions and collapses
// the remaining whitespace.
func (d *Detector) FilterStenogramMarkers(text string) string {
	out := d.markers.ReplaceAllString(text, " ")
	return strings.TrimSpace(multiSpace.ReplaceAllString(out, " "))
}

// VerifyKeywords returns the subset of claimed keywords actually present in
// text, preserving claimed order.
func (d *Detector) VerifyKeywords(text string, claimed []string) []string {
	var verified []string
	seen := make(map[string]struct{}, len(claimed))
	for _, kw := range claimed {
		lower := strings.ToLower(kw)
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		if d.Count(text, lower) > 0 {
			verified = append(verified, lower)
		}
	}
	return verified
}

// Score computes the confidence for a fragment text with its verified
// keywords, plus the diagnostic sub-scores.
func (d *Detector) Score(text string, verified []string) (float64, Scores) {
	sum := 0
	for _, kw := range verified {
		sum += d.Weight(kw)
	}
	base := math.Min(0.7, float64(sum)*0.15)
	variety := math.Min(0.15, 0.05*float64(len(verified)))
	excludes := d.CountExcludes(text)
	penalty := 0.08 * float64(excludes)

	// Eight words and under counts as short.
	words := len(strings.Fields(text))
	modifier := 1.0
	switch {
	case words <= 8:
		modifier = 0.8
	case words > 50:
		modifier = 1.1
	}

	raw := (base + variety - penalty) * modifier
	conf := math.Max(0.1, math.Min(0.95, raw))
	if excludes > 4 {
		conf = 0.1
	}
	return conf, Scores{KeywordScore: sum, ContextScore: variety - penalty, LengthBonus: modifier}
}

// Category picks the humor category whose keywords carry the highest summed
// weight among the verified set. No positive score yields "other".
func (d *Detector) Category(verified []string) string {
	best, bestScore := "other", 0
	for _, cat := range categoryOrder {
		set, ok := d.catSets[cat]
		if !ok {
			continue
		}
		score := 0
		for _, kw := range verified {
			if _, hit := set[strings.ToLower(kw)]; hit {
				score += d.Weight(kw)
			}
		}
		if score > bestScore {
			best, bestScore = cat, score
		}
	}
	return best
}
