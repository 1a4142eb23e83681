package transcript

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

// UnknownSpeaker is the canonical name for text with no attributable speaker.
const UnknownSpeaker = "Nieznany mówca"

// Utterance is one speaker-attributed block of transcript text.
type Utterance struct {
	Speaker string `json:"speaker"`
	Club    string `json:"club,omitempty"`
	// Text is the cleaned content; Raw is the covering slice of the source
	// text before cleanup, speaker line included.
	Text string `json:"text"`
	Raw  string `json:"raw,omitempty"`
	// Index is the ordinal position within the parsed transcript.
	Index int `json:"index"`
	// StartOffset/EndOffset are approximate byte offsets into the original
	// source text.
	StartOffset int `json:"start_offset"`
	EndOffset   int `json:"end_offset"`
	// WordPositions holds the byte offset of each word start within Text,
	// strictly increasing.
	WordPositions []int `json:"-"`
}

// Words returns the whitespace-separated tokens of the utterance text.
func (u *Utterance) Words() []string { return strings.Fields(u.Text) }

// SittingInfo is metadata assembled from the transcript preamble.
type SittingInfo struct {
	Sejm        string `json:"sejm,omitempty"`
	Kadencja    string `json:"kadencja,omitempty"`
	Posiedzenie string `json:"posiedzenie,omitempty"`
	Data        string `json:"data,omitempty"`
	Plik        string `json:"plik,omitempty"`
}

// ParseStats counts what happened during a parse.
type ParseStats struct {
	Lines        int `json:"lines"`
	SpeakerLines int `json:"speaker_lines"`
	SkippedLines int `json:"skipped_lines"`
	DroppedShort int `json:"dropped_short"`
}

// ParseResult bundles the parser output for one transcript.
type ParseResult struct {
	Utterances  []Utterance `json:"utterances"`
	SittingInfo SittingInfo `json:"sitting_info"`
	TotalWords  int         `json:"total_words"`
	Stats       ParseStats  `json:"stats"`
}

// Parser segments raw transcript text into speaker-attributed utterances in
// a single pass. An optional Roster resolves canonical clubs for speakers.
type Parser struct {
	Roster *Roster
}

// Speaker cue fragments that mark the end of the table-of-contents preamble.
var speakerCues = []string{"Poseł ", "Minister ", "Marszałek "}

// tocMarkers match lines that belong to the table of contents.
var tocMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*spis`),
	regexp.MustCompile(`(?i)porządek\s+dzienn`),
	regexp.MustCompile(`(?i)^\s*punkt\s+\d+\.`),
}

// Ordered speaker line patterns. Titled variants come before the bare-name
// fallback; each has an optional parenthesized club group.
var speakerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(Poseł|Posłanka)\s+(\p{Lu}[\p{L}-]+(?:\s+\p{Lu}[\p{L}-]+){0,3})\s*(?:\(([^)]+)\))?\s*:`),
	regexp.MustCompile(`^((?:Wice)?[Mm]arszałek)\s+(?:Sejmu\s+)?(\p{Lu}[\p{L}-]+(?:\s+\p{Lu}[\p{L}-]+){0,3})\s*(?:\(([^)]+)\))?\s*:`),
	regexp.MustCompile(`^(Minister(?:\s+\p{Ll}[\p{L}-]+)*)\s+(\p{Lu}[\p{L}-]+(?:\s+\p{Lu}[\p{L}-]+){0,3})\s*(?:\(([^)]+)\))?\s*:`),
	regexp.MustCompile(`^(Przewodniczącym?|Przewodnicząca)\s+(\p{Lu}[\p{L}-]+(?:\s+\p{Lu}[\p{L}-]+){0,3})\s*(?:\(([^)]+)\))?\s*:`),
	regexp.MustCompile(`^(Sekretarz)\s+(?:Poseł\s+)?(\p{Lu}[\p{L}-]+(?:\s+\p{Lu}[\p{L}-]+){0,3})\s*(?:\(([^)]+)\))?\s*:`),
	regexp.MustCompile(`^()(\p{Lu}[\p{L}-]+\s+\p{Lu}[\p{L}-]+(?:\s+\p{Lu}[\p{L}-]+)?)\s*(?:\(([^)]+)\))?\s*:`),
}

// Protocol lines carry stage directions, numbering, or session markers and
// never belong to an utterance.
var protocolPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*\(.*\)\s*$`),
	regexp.MustCompile(`^\s*\[.*\]\s*$`),
	regexp.MustCompile(`^\s*Głosy?\s+z\s+sali\s*:`),
	regexp.MustCompile(`^\s*\d+[.)]?\s*$`),
	regexp.MustCompile(`^\s*Punkt\s+\d+`),
	regexp.MustCompile(`^\s*Przerwa\b`),
	regexp.MustCompile(`^\s*Koniec\s+posiedzenia\b`),
}

var horizontalWS = regexp.MustCompile(`[ \t]+`)

// Parse segments raw transcript text. Finding no speakers is not fatal: the
// result simply carries an empty utterance list.
func (p *Parser) Parse(raw string, sourceName string) ParseResult {
	res := ParseResult{
		SittingInfo: extractSittingInfo(raw, sourceName),
	}

	cleaned := stripTOC(raw)
	cleaned = repairHyphenation(cleaned)
	cleaned = horizontalWS.ReplaceAllString(cleaned, " ")

	// Approximate mapping from cleaned offsets back to the source text.
	ratio := 1.0
	if len(cleaned) > 0 {
		ratio = float64(len(raw)) / float64(len(cleaned))
	}

	lines := strings.Split(cleaned, "\n")
	var cur *Utterance
	var curLines []string
	offset := 0

	commit := func(end int) {
		if cur == nil {
			return
		}
		text := strings.TrimSpace(strings.Join(curLines, "\n"))
		cur.Text = text
		cur.WordPositions = wordPositions(text)
		if len(cur.WordPositions) < 3 {
			res.Stats.DroppedShort++
		} else {
			cur.Index = len(res.Utterances)
			cur.EndOffset = int(float64(end) * ratio)
			cur.Raw = rawSlice(raw, cur.StartOffset, cur.EndOffset)
			res.TotalWords += len(cur.WordPositions)
			res.Utterances = append(res.Utterances, *cur)
		}
		cur = nil
		curLines = nil
	}

	for _, line := range lines {
		res.Stats.Lines++
		lineStart := offset
		offset += len(line) + 1

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if name, club, rest, ok := matchSpeaker(trimmed); ok {
			res.Stats.SpeakerLines++
			commit(lineStart)
			canonical, resolvedClub := p.resolve(name, club)
			cur = &Utterance{
				Speaker:     canonical,
				Club:        resolvedClub,
				StartOffset: int(float64(lineStart) * ratio),
			}
			if rest != "" {
				curLines = append(curLines, rest)
			}
			continue
		}
		if isProtocolLine(trimmed) {
			res.Stats.SkippedLines++
			continue
		}
		if cur != nil {
			curLines = append(curLines, trimmed)
		}
	}
	commit(offset)

	if len(res.Utterances) == 0 {
		log.Debug().Str("source", sourceName).Msg("no speakers found in transcript")
	}
	return res
}

// AttributedBlock is transcript text whose speaker is already known, as when
// statements arrive individually from the API instead of as one report.
type AttributedBlock struct {
	Speaker string
	Club    string
	Text    string
}

// ParseAttributed cleans and tokenizes blocks that already carry speaker
// attribution. No speaker-line matching runs, so blocks without a resolvable
// name stay under UnknownSpeaker instead of merging into the previous
// utterance.
func (p *Parser) ParseAttributed(blocks []AttributedBlock, sourceName string) ParseResult {
	var res ParseResult
	offset := 0
	for _, b := range blocks {
		res.Stats.Lines += strings.Count(b.Text, "\n") + 1
		end := offset + len(b.Text)

		text := repairHyphenation(b.Text)
		text = horizontalWS.ReplaceAllString(text, " ")
		text = strings.TrimSpace(text)
		if text == "" {
			offset = end + 1
			continue
		}
		res.Stats.SpeakerLines++

		positions := wordPositions(text)
		if len(positions) < 3 {
			res.Stats.DroppedShort++
			offset = end + 1
			continue
		}

		name := strings.TrimSpace(b.Speaker)
		club := b.Club
		if name == "" {
			name = UnknownSpeaker
		}
		if p.Roster != nil && name != UnknownSpeaker {
			if canonical, c, ok := p.Roster.FindClub(name); ok {
				name = canonical
				if c != "" {
					club = c
				}
			} else if club != "" {
				club = p.Roster.ExpandClub(club)
			}
		}

		res.Utterances = append(res.Utterances, Utterance{
			Speaker:       name,
			Club:          club,
			Text:          text,
			Raw:           b.Text,
			Index:         len(res.Utterances),
			StartOffset:   offset,
			EndOffset:     end,
			WordPositions: positions,
		})
		res.TotalWords += len(positions)
		offset = end + 1
	}
	if len(res.Utterances) == 0 {
		log.Debug().Str("source", sourceName).Msg("no utterances in statement blocks")
	}
	return res
}

// resolve maps a raw speaker name (and optional raw club) through the roster.
func (p *Parser) resolve(name, rawClub string) (string, string) {
	name = CleanSpeakerName(name)
	if name == "" {
		return UnknownSpeaker, ""
	}
	if p.Roster != nil {
		if canonical, club, ok := p.Roster.FindClub(name); ok {
			return canonical, club
		}
		if rawClub != "" {
			return name, p.Roster.ExpandClub(rawClub)
		}
		return name, ""
	}
	return name, rawClub
}

// stripTOC drops table-of-contents marker lines from the preamble that
// precedes the first speaker cue.
func stripTOC(raw string) string {
	lines := strings.Split(raw, "\n")
	bodyStart := len(lines)
	for i, line := range lines {
		for _, cue := range speakerCues {
			if strings.Contains(line, cue) {
				bodyStart = i
				break
			}
		}
		if bodyStart == i {
			break
		}
	}
	out := make([]string, 0, len(lines))
	for i, line := range lines {
		if i < bodyStart && isTOCLine(line) {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func isTOCLine(line string) bool {
	for _, re := range tocMarkers {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

func matchSpeaker(line string) (name, club, rest string, ok bool) {
	for _, re := range speakerPatterns {
		m := re.FindStringSubmatchIndex(line)
		if m == nil {
			continue
		}
		name = line[m[4]:m[5]]
		if m[6] >= 0 {
			club = line[m[6]:m[7]]
		}
		rest = strings.TrimSpace(line[m[1]:])
		return name, club, rest, true
	}
	return "", "", "", false
}

func isProtocolLine(line string) bool {
	for _, re := range protocolPatterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// rawSlice clamps [start, end) to raw and widens onto rune boundaries.
func rawSlice(raw string, start, end int) string {
	if start < 0 {
		start = 0
	}
	if end > len(raw) {
		end = len(raw)
	}
	if start >= end {
		return ""
	}
	for start > 0 && !utf8.RuneStart(raw[start]) {
		start--
	}
	for end < len(raw) && !utf8.RuneStart(raw[end]) {
		end++
	}
	return raw[start:end]
}

// wordPositions returns the byte offset of each word start in s. Offsets are
// strictly increasing.
func wordPositions(s string) []int {
	var out []int
	inWord := false
	for i, r := range s {
		space := r == ' ' || r == '\n' || r == '\t' || r == '\r'
		if !space && !inWord {
			out = append(out, i)
			inWord = true
		} else if space {
			inWord = false
		}
	}
	return out
}
