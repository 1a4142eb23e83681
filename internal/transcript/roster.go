package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/antzucaro/matchr"
	"golang.org/x/text/unicode/norm"

	"github.com/sejmhumor/sejmhumor/internal/sejmapi"
)

// Titles stripped from the front of raw speaker strings.
var speakerTitles = []string{
	"poseł", "posłanka", "marszałek", "wicemarszałek", "minister",
	"wiceminister", "premier", "wicepremier", "przewodniczący",
	"przewodnicząca", "sekretarz", "pan", "pani", "prof.", "dr",
}

var parenSuffix = regexp.MustCompile(`\s*\([^)]*\)\s*$`)

// CleanSpeakerName strips parenthetical suffixes and leading titles from a
// raw speaker string.
func CleanSpeakerName(raw string) string {
	s := strings.TrimSpace(parenSuffix.ReplaceAllString(raw, ""))
	for {
		stripped := false
		for _, title := range speakerTitles {
			lower := strings.ToLower(s)
			if strings.HasPrefix(lower, title+" ") {
				s = strings.TrimSpace(s[len(title)+1:])
				stripped = true
				break
			}
		}
		if !stripped {
			break
		}
	}
	return strings.TrimSpace(s)
}

// rosterFile is the JSON roster schema.
type rosterFile struct {
	Members           map[string]string `json:"members"`
	ClubAbbreviations map[string]string `json:"club_abbreviations"`
	Functions         map[string]string `json:"functions"`
}

type matchResult struct {
	name string
	club string
	ok   bool
}

// Roster maps raw speaker strings to canonical members and clubs. Lookups go
// through a pre-built exact-variant cache first and fall back to fuzzy
// similarity matching. Read-mostly after startup; runtime additions take the
// write lock and invalidate the memo.
type Roster struct {
	// FuzzyThreshold is the minimum accepted similarity (default 0.8).
	FuzzyThreshold float64

	mu          sync.RWMutex
	clubs       map[string]string // canonical name → club
	order       []string          // canonical names in insertion order
	abbrev      map[string]string
	functions   map[string]string
	variants    map[string]string // normalized variant → canonical name
	resultCache map[string]matchResult
}

// NewRoster builds a roster from a members map {"First Last": "ClubName"}.
func NewRoster(members map[string]string, abbrev map[string]string, functions map[string]string) *Roster {
	r := &Roster{
		FuzzyThreshold: 0.8,
		clubs:          make(map[string]string, len(members)),
		abbrev:         abbrev,
		functions:      functions,
		variants:       make(map[string]string),
		resultCache:    make(map[string]matchResult),
	}
	if r.abbrev == nil {
		r.abbrev = map[string]string{}
	}
	if r.functions == nil {
		r.functions = map[string]string{}
	}
	for name, club := range members {
		r.insertLocked(name, club)
	}
	return r
}

// LoadRoster reads the JSON roster file.
func LoadRoster(path string) (*Roster, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	var rf rosterFile
	if err := json.Unmarshal(b, &rf); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	return NewRoster(rf.Members, rf.ClubAbbreviations, rf.Functions), nil
}

// RosterFromMembers builds a roster from the API member list.
func RosterFromMembers(members []sejmapi.Member) *Roster {
	m := make(map[string]string, len(members))
	for _, mem := range members {
		m[mem.FullName()] = mem.Club
	}
	return NewRoster(m, nil, nil)
}

func (r *Roster) insertLocked(name, club string) {
	if _, exists := r.clubs[name]; !exists {
		r.order = append(r.order, name)
	}
	r.clubs[name] = club
	for _, v := range nameVariants(name) {
		r.variants[v] = name
	}
}

// FindClub resolves a raw speaker string to a canonical member name and its
// club. ok is false when no sufficiently similar member exists.
func (r *Roster) FindClub(raw string) (name string, club string, ok bool) {
	r.mu.RLock()
	if res, hit := r.resultCache[raw]; hit {
		r.mu.RUnlock()
		return res.name, res.club, res.ok
	}
	r.mu.RUnlock()

	cleaned := CleanSpeakerName(raw)
	res := r.lookup(cleaned)

	r.mu.Lock()
	r.resultCache[raw] = res
	r.mu.Unlock()
	return res.name, res.club, res.ok
}

func (r *Roster) lookup(cleaned string) matchResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, v := range nameVariants(cleaned) {
		if canonical, hit := r.variants[v]; hit {
			return matchResult{canonical, r.clubs[canonical], true}
		}
	}

	// Fuzzy fallback: best similarity wins, ties resolved by insertion order.
	target := normalizeName(cleaned)
	if target == "" {
		return matchResult{}
	}
	best := matchResult{}
	bestScore := 0.0
	for _, canonical := range r.order {
		score := similarity(target, normalizeName(canonical))
		if score >= r.FuzzyThreshold && score > bestScore {
			bestScore = score
			best = matchResult{canonical, r.clubs[canonical], true}
		}
	}
	return best
}

// AddMissing inserts a member at runtime and invalidates the memo so fuzzy
// results can pick up the new entry.
func (r *Roster) AddMissing(name, club string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertLocked(name, club)
	r.resultCache = make(map[string]matchResult)
}

// ExpandClub maps a club abbreviation to its full name when known.
func (r *Roster) ExpandClub(raw string) string {
	raw = strings.TrimSpace(raw)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if full, ok := r.abbrev[raw]; ok {
		return full
	}
	return raw
}

// Len reports how many members are loaded.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clubs)
}

// similarity is a Levenshtein-based ratio in [0,1].
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len([]rune(a)), len([]rune(b))
	if la == 0 || lb == 0 {
		return 0
	}
	max := la
	if lb > max {
		max = lb
	}
	dist := matchr.Levenshtein(a, b)
	return 1 - float64(dist)/float64(max)
}

// nameVariants yields normalized lookup forms: as-is, title-stripped, and
// with surname hyphens removed.
func nameVariants(name string) []string {
	base := normalizeName(name)
	if base == "" {
		return nil
	}
	variants := []string{base}
	if stripped := normalizeName(CleanSpeakerName(name)); stripped != base && stripped != "" {
		variants = append(variants, stripped)
	}
	if dehyphened := strings.ReplaceAll(base, "-", ""); dehyphened != base {
		variants = append(variants, dehyphened)
	}
	return variants
}

func normalizeName(s string) string {
	s = norm.NFC.String(s)
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), " ")
}
