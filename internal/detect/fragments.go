package detect

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sejmhumor/sejmhumor/internal/transcript"
)

// Match is one keyword occurrence located within a parsed utterance.
type Match struct {
	Keyword   string
	Utterance int
	WordPos   int
	CharPos   int
	Weight    int
	// Base is the single-keyword confidence contribution, used for center
	// selection within a group.
	Base float64
}

// KeywordCount is a matched keyword with its occurrence count and weight.
type KeywordCount struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
	Weight  int    `json:"weight"`
}

// Fragment is a scored context window around a cluster of keyword hits.
type Fragment struct {
	ID            string         `json:"id"`
	Utterance     int            `json:"utterance_index"`
	Speaker       string         `json:"speaker"`
	Club          string         `json:"club,omitempty"`
	Text          string         `json:"text"`
	ContextBefore string         `json:"context_before,omitempty"`
	ContextAfter  string         `json:"context_after,omitempty"`
	Keywords      []KeywordCount `json:"matched_keywords"`
	Scores        Scores         `json:"scores"`
	Confidence    float64        `json:"confidence"`
	Category      string         `json:"category"`
	TooShort      bool           `json:"too_short"`
	StartWord     int            `json:"start_word"`
	EndWord       int            `json:"end_word"`
	CharStart     int            `json:"char_start"`
	CharEnd       int            `json:"char_end"`
}

// KeywordList returns the matched keyword names in order.
func (f *Fragment) KeywordList() []string {
	out := make([]string, len(f.Keywords))
	for i, k := range f.Keywords {
		out[i] = k.Keyword
	}
	return out
}

// Extractor builds Fragments from parsed transcripts. Zero-valued knobs fall
// back to defaults in NewExtractor.
type Extractor struct {
	Detector *Detector

	// GroupingDistance is the maximum word gap between two matches in the
	// same group.
	GroupingDistance int
	// ContextBefore/ContextAfter size the token window around the center
	// match.
	ContextBefore int
	ContextAfter  int
	// MinConfidence drops fragments scoring below it.
	MinConfidence float64
	// DedupJaccard is the long-word similarity above which two fragments
	// count as duplicates.
	DedupJaccard float64
	// MergeOverlaps enables the final overlap-merge pass.
	MergeOverlaps bool
	// TargetCount enables per-speaker diversity capping when positive.
	TargetCount int

	newID func() string
}

// NewExtractor returns an extractor with default tuning.
func NewExtractor(d *Detector) *Extractor {
	return &Extractor{
		Detector:         d,
		GroupingDistance: 50,
		ContextBefore:    49,
		ContextAfter:     100,
		MinConfidence:    0.3,
		DedupJaccard:     0.85,
		newID:            uuid.NewString,
	}
}

// Extract runs the full pipeline: group matches, window, verify, score,
// dedup, filter, and order by descending confidence.
func (e *Extractor) Extract(res *transcript.ParseResult) []Fragment {
	matches := e.findMatches(res)

	var frags []Fragment
	var dropped, duplicates int
	var group []Match
	flush := func() {
		if len(group) == 0 {
			return
		}
		u := &res.Utterances[group[0].Utterance]
		frag, ok := e.build(u, group)
		group = nil
		if !ok {
			dropped++
			return
		}
		if e.isDuplicate(frag, frags) {
			duplicates++
			return
		}
		if !e.pass(frag) {
			dropped++
			return
		}
		frags = append(frags, frag)
	}

	for _, m := range matches {
		if len(group) > 0 {
			last := group[len(group)-1]
			if m.Utterance != last.Utterance || m.WordPos-last.WordPos > e.GroupingDistance {
				flush()
			}
		}
		group = append(group, m)
	}
	flush()

	if e.MergeOverlaps {
		frags = e.mergeOverlapping(frags)
	}

	sort.SliceStable(frags, func(i, j int) bool {
		if frags[i].Confidence != frags[j].Confidence {
			return frags[i].Confidence > frags[j].Confidence
		}
		if frags[i].Utterance != frags[j].Utterance {
			return frags[i].Utterance < frags[j].Utterance
		}
		return frags[i].CharStart < frags[j].CharStart
	})

	if e.TargetCount > 0 {
		frags = e.capDiversity(frags)
	}

	log.Debug().
		Int("matches", len(matches)).
		Int("fragments", len(frags)).
		Int("dropped", dropped).
		Int("duplicates", duplicates).
		Msg("fragment extraction done")
	return frags
}

// findMatches locates keyword hits across all utterances, in transcript
// order.
func (e *Extractor) findMatches(res *transcript.ParseResult) []Match {
	var out []Match
	for ui := range res.Utterances {
		u := &res.Utterances[ui]
		for _, hit := range e.Detector.FindKeywords(u.Text) {
			w := e.Detector.Weight(hit.Keyword)
			out = append(out, Match{
				Keyword:   hit.Keyword,
				Utterance: ui,
				WordPos:   wordIndexAt(u.WordPositions, hit.CharPos),
				CharPos:   hit.CharPos,
				Weight:    w,
				Base:      float64(w) * 0.15,
			})
		}
	}
	return out
}

// wordIndexAt finds the index of the word containing byte offset pos.
func wordIndexAt(positions []int, pos int) int {
	i := sort.Search(len(positions), func(i int) bool { return positions[i] > pos })
	if i == 0 {
		return 0
	}
	return i - 1
}

func (e *Extractor) build(u *transcript.Utterance, group []Match) (Fragment, bool) {
	center := group[0]
	for _, m := range group[1:] {
		if m.Base > center.Base {
			center = m
		}
	}

	words := u.Words()
	lo := center.WordPos - e.ContextBefore
	if lo < 0 {
		lo = 0
	}
	hi := center.WordPos + e.ContextAfter
	if hi > len(words)-1 {
		hi = len(words) - 1
	}

	text := e.Detector.FilterStenogramMarkers(strings.Join(words[lo:hi+1], " "))
	if len(text) < 10 {
		return Fragment{}, false
	}

	claimed := make([]string, 0, len(group))
	for _, m := range group {
		claimed = append(claimed, m.Keyword)
	}
	verified := e.Detector.VerifyKeywords(text, claimed)
	if len(verified) == 0 {
		return Fragment{}, false
	}

	confidence, scores := e.Detector.Score(text, verified)

	keywords := make([]KeywordCount, 0, len(verified))
	for _, kw := range verified {
		keywords = append(keywords, KeywordCount{
			Keyword: kw,
			Count:   e.Detector.Count(text, kw),
			Weight:  e.Detector.Weight(kw),
		})
	}

	charStart := u.WordPositions[lo]
	charEnd := len(u.Text)
	if hi < len(words)-1 {
		charEnd = u.WordPositions[hi] + len(words[hi])
	}
	before, after := sentenceContext(u.Text, charStart, charEnd)

	return Fragment{
		ID:            e.newID(),
		Utterance:     u.Index,
		Speaker:       u.Speaker,
		Club:          u.Club,
		Text:          text,
		ContextBefore: before,
		ContextAfter:  after,
		Keywords:      keywords,
		Scores:        scores,
		Confidence:    confidence,
		Category:      e.Detector.Category(verified),
		TooShort:      hi-lo+1 < 15,
		StartWord:     lo,
		EndWord:       hi,
		CharStart:     charStart,
		CharEnd:       charEnd,
	}, true
}

// sentenceContext returns the sentence preceding start and the sentence
// following end within text, split on sentence-ending punctuation.
func sentenceContext(text string, start, end int) (before, after string) {
	isEnd := func(b byte) bool { return b == '.' || b == '!' || b == '?' }

	prevEnd := -1
	for i := start - 1; i >= 0; i-- {
		if isEnd(text[i]) {
			prevEnd = i
			break
		}
	}
	if prevEnd > 0 {
		prevStart := 0
		for i := prevEnd - 1; i >= 0; i-- {
			if isEnd(text[i]) {
				prevStart = i + 1
				break
			}
		}
		before = strings.TrimSpace(text[prevStart : prevEnd+1])
	}

	if end > len(text) {
		end = len(text)
	}
	next := -1
	for i := end; i < len(text); i++ {
		if isEnd(text[i]) {
			next = i
			break
		}
	}
	if next >= 0 && next+1 < len(text) {
		stop := len(text)
		for i := next + 1; i < len(text); i++ {
			if isEnd(text[i]) {
				stop = i + 1
				break
			}
		}
		after = strings.TrimSpace(text[next+1 : stop])
	}
	return before, after
}

// isDuplicate reports whether frag repeats an already accepted fragment:
// long-word Jaccard at or above the threshold, or matching openings.
func (e *Extractor) isDuplicate(frag Fragment, accepted []Fragment) bool {
	set := longWords(frag.Text)
	for i := range accepted {
		if jaccard(set, longWords(accepted[i].Text)) >= e.DedupJaccard {
			return true
		}
		if firstWordsOverlap(frag.Text, accepted[i].Text, 5) >= 0.8 {
			return true
		}
	}
	return false
}

// pass applies the skip policy.
func (e *Extractor) pass(f Fragment) bool {
	if f.Confidence < e.MinConfidence {
		return false
	}
	if f.Speaker == transcript.UnknownSpeaker && f.Confidence < 0.6 {
		return false
	}
	if len(strings.Fields(f.Text)) < 5 {
		return false
	}
	return true
}

// mergeOverlapping folds fragments from the same utterance whose character
// ranges come within 50 bytes of each other. The higher-confidence text wins;
// keywords are unioned and confidences averaged.
func (e *Extractor) mergeOverlapping(frags []Fragment) []Fragment {
	sort.SliceStable(frags, func(i, j int) bool {
		if frags[i].Utterance != frags[j].Utterance {
			return frags[i].Utterance < frags[j].Utterance
		}
		return frags[i].CharStart < frags[j].CharStart
	})
	var out []Fragment
	for _, f := range frags {
		if len(out) > 0 {
			prev := &out[len(out)-1]
			if prev.Utterance == f.Utterance && prev.CharEnd > f.CharStart-50 {
				*prev = mergeFragments(*prev, f)
				continue
			}
		}
		out = append(out, f)
	}
	return out
}

func mergeFragments(a, b Fragment) Fragment {
	winner, loser := a, b
	if b.Confidence > a.Confidence {
		winner, loser = b, a
	}
	have := make(map[string]struct{}, len(winner.Keywords))
	for _, k := range winner.Keywords {
		have[k.Keyword] = struct{}{}
	}
	for _, k := range loser.Keywords {
		if _, dup := have[k.Keyword]; !dup {
			winner.Keywords = append(winner.Keywords, k)
		}
	}
	winner.Confidence = (a.Confidence + b.Confidence) / 2
	if loser.CharStart < winner.CharStart {
		winner.CharStart = loser.CharStart
	}
	if loser.CharEnd > winner.CharEnd {
		winner.CharEnd = loser.CharEnd
	}
	return winner
}

// capDiversity limits fragments per speaker to max(1, target/10), then fills
// the remainder by descending confidence up to target. Input must already be
// sorted by descending confidence.
func (e *Extractor) capDiversity(frags []Fragment) []Fragment {
	perSpeaker := e.TargetCount / 10
	if perSpeaker < 1 {
		perSpeaker = 1
	}
	counts := make(map[string]int)
	var kept, overflow []Fragment
	for _, f := range frags {
		if counts[f.Speaker] < perSpeaker {
			counts[f.Speaker]++
			kept = append(kept, f)
		} else {
			overflow = append(overflow, f)
		}
	}
	for _, f := range overflow {
		if len(kept) >= e.TargetCount {
			break
		}
		kept = append(kept, f)
	}
	if len(kept) > e.TargetCount {
		kept = kept[:e.TargetCount]
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Confidence > kept[j].Confidence })
	return kept
}

// longWords is the set of lowercase words longer than three characters,
// punctuation trimmed.
func longWords(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, `.,!?;:()[]"'`)
		if len([]rune(w)) > 3 {
			set[w] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// firstWordsOverlap compares the first n words of two texts positionally and
// returns the matching fraction.
func firstWordsOverlap(a, b string, n int) float64 {
	wa := strings.Fields(strings.ToLower(a))
	wb := strings.Fields(strings.ToLower(b))
	if len(wa) < n {
		n = len(wa)
	}
	if len(wb) < n {
		n = len(wb)
	}
	if n == 0 {
		return 0
	}
	matched := 0
	for i := 0; i < n; i++ {
		if strings.Trim(wa[i], `.,!?;:`) == strings.Trim(wb[i], `.,!?;:`) {
			matched++
		}
	}
	return float64(matched) / float64(n)
}
