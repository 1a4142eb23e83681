package detect

import (
	"math"
	"strings"
	"testing"

	"github.com/sejmhumor/sejmhumor/internal/transcript"
)

func parse(t *testing.T, raw string) *transcript.ParseResult {
	t.Helper()
	p := &transcript.Parser{}
	res := p.Parse(raw, "test.txt")
	return &res
}

func TestExtract_KeywordClusterScored(t *testing.T) {
	res := parse(t, "Poseł Jan Kowalski:\nTo jest prawdziwy absurd i bzdura, całkowity cyrk.\n")
	e := NewExtractor(testDetector(t))
	frags := e.Extract(res)
	if len(frags) != 1 {
		t.Fatalf("fragments: %d", len(frags))
	}
	f := frags[0]
	if f.ID == "" {
		t.Fatal("missing id")
	}
	if f.Speaker != "Jan Kowalski" {
		t.Fatalf("speaker: %q", f.Speaker)
	}
	kws := f.KeywordList()
	if len(kws) != 3 || kws[0] != "absurd" || kws[1] != "bzdura" || kws[2] != "cyrk" {
		t.Fatalf("keywords: %v", kws)
	}
	if math.Abs(f.Confidence-0.68) > 1e-9 {
		t.Fatalf("confidence: %v", f.Confidence)
	}
	if f.Category != "personal_attack" {
		t.Fatalf("category: %q", f.Category)
	}
	if !f.TooShort {
		t.Fatal("eight-word window should be flagged too short")
	}
}

func TestExtract_ExcludeDominatedDropped(t *testing.T) {
	res := parse(t, "Poseł Jan Kowalski:\nNa sali rozległ się śmiech gdy spis oraz porządek obrad ustawa punkt artykuł i komisja zostały pomylone.\n")
	e := NewExtractor(testDetector(t))
	if frags := e.Extract(res); len(frags) != 0 {
		t.Fatalf("exclude-dominated fragment kept: %+v", frags)
	}
}

func TestExtract_DuplicateSuppressed(t *testing.T) {
	raw := "Poseł Jan Kowalski:\n" +
		"To jest prawdziwy absurd i bzdura oraz kompletny cyrk polityczny panie marszałku wysoka izbo dzisiaj.\n" +
		"Poseł Anna Nowak:\n" +
		"To jest prawdziwy absurd i bzdura oraz kompletny cyrk polityczny panie marszałku wysoka izbo niestety.\n"
	res := parse(t, raw)
	if len(res.Utterances) != 2 {
		t.Fatalf("utterances: %d", len(res.Utterances))
	}
	e := NewExtractor(testDetector(t))
	frags := e.Extract(res)
	if len(frags) != 1 {
		t.Fatalf("duplicate not suppressed: %d fragments", len(frags))
	}
	if frags[0].Speaker != "Jan Kowalski" {
		t.Fatalf("first occurrence should win, got %q", frags[0].Speaker)
	}
}

func TestExtract_WindowClamped(t *testing.T) {
	filler := strings.Repeat("kolejne słowo wypełniające wystąpienie posła ", 40)
	res := parse(t, "Poseł Jan Kowalski:\n"+filler+"i na koniec jeden absurd.\n")
	e := NewExtractor(testDetector(t))
	frags := e.Extract(res)
	if len(frags) != 1 {
		t.Fatalf("fragments: %d", len(frags))
	}
	f := frags[0]
	words := len(res.Utterances[0].Words())
	if f.EndWord != words-1 {
		t.Fatalf("end not clamped: %d vs %d words", f.EndWord, words)
	}
	if f.EndWord-f.StartWord+1 > e.ContextBefore+e.ContextAfter+1 {
		t.Fatal("window exceeds configured size")
	}
	if f.TooShort {
		t.Fatal("large window flagged too short")
	}
}

func TestExtract_GroupingSplitsDistantMatches(t *testing.T) {
	gap := strings.Repeat("zupełnie inne słowa opisujące przebieg posiedzenia ", 15)
	raw := "Poseł Jan Kowalski:\nNajpierw jeden absurd na początku wypowiedzi posła. " + gap +
		"A potem osobna bzdura na samym końcu długiej wypowiedzi.\n"
	res := parse(t, raw)
	e := NewExtractor(testDetector(t))
	e.ContextBefore, e.ContextAfter = 3, 3
	frags := e.Extract(res)
	if len(frags) != 2 {
		t.Fatalf("expected two groups, got %d", len(frags))
	}
}

func TestExtract_OrderedByConfidence(t *testing.T) {
	raw := "Poseł Jan Kowalski:\nW porządku obrad mamy śmiech i niewiele więcej do dodania dzisiaj.\n" +
		"Poseł Anna Nowak:\nTo absurd, bzdura i cyrk w jednym wystąpieniu tego rządu, naprawdę trudno to komentować.\n"
	res := parse(t, raw)
	e := NewExtractor(testDetector(t))
	e.MinConfidence = 0.05
	frags := e.Extract(res)
	for i := 1; i < len(frags); i++ {
		if frags[i].Confidence > frags[i-1].Confidence {
			t.Fatalf("not sorted by descending confidence: %v then %v",
				frags[i-1].Confidence, frags[i].Confidence)
		}
	}
}

func TestExtract_UnknownSpeakerNeedsHighConfidence(t *testing.T) {
	// A bare keyword cluster scoring under 0.6 from an unattributed speaker
	// is dropped even above the general minimum.
	res := &transcript.ParseResult{
		Utterances: []transcript.Utterance{{
			Speaker:       transcript.UnknownSpeaker,
			Text:          "Ten śmiech słychać było w całej sali posiedzeń sejmu",
			WordPositions: wordStarts("Ten śmiech słychać było w całej sali posiedzeń sejmu"),
		}},
	}
	e := NewExtractor(testDetector(t))
	e.MinConfidence = 0.05
	if frags := e.Extract(res); len(frags) != 0 {
		t.Fatalf("unknown speaker kept at low confidence: %+v", frags)
	}
}

func TestCapDiversity(t *testing.T) {
	e := NewExtractor(testDetector(t))
	e.TargetCount = 3
	var frags []Fragment
	for i := 0; i < 5; i++ {
		frags = append(frags, Fragment{Speaker: "A", Confidence: 0.9 - float64(i)*0.01})
	}
	frags = append(frags, Fragment{Speaker: "B", Confidence: 0.5})
	got := e.capDiversity(frags)
	if len(got) != 3 {
		t.Fatalf("target not honored: %d", len(got))
	}
	// The sole fragment from speaker B survives the cut that a pure top-3
	// would have excluded.
	var hasB bool
	for _, f := range got {
		if f.Speaker == "B" {
			hasB = true
		}
	}
	if !hasB {
		t.Fatal("diversity cap did not reserve a slot for speaker B")
	}
}

func TestSentenceContext(t *testing.T) {
	text := "Pierwsze zdanie wprowadzające. Środkowy fragment z absurdem. Ostatnie zdanie zamykające."
	start := strings.Index(text, "Środkowy")
	end := strings.Index(text, "absurdem.") + len("absurdem.")
	before, after := sentenceContext(text, start, end)
	if before != "Pierwsze zdanie wprowadzające." {
		t.Fatalf("before: %q", before)
	}
	if after != "Ostatnie zdanie zamykające." {
		t.Fatalf("after: %q", after)
	}
}

func TestJaccardAndFirstWords(t *testing.T) {
	a := longWords("prawdziwy absurd totalna bzdura kompletny cyrk")
	b := longWords("prawdziwy absurd totalna bzdura kompletny chaos")
	if j := jaccard(a, b); j < 0.7 || j >= 0.85 {
		t.Fatalf("jaccard: %v", j)
	}
	if o := firstWordsOverlap("to jest zupełnie nowy tekst o sejmie", "to jest zupełnie nowy tekst inny", 5); o != 1.0 {
		t.Fatalf("overlap: %v", o)
	}
	if o := firstWordsOverlap("jeden dwa trzy cztery pięć", "sześć siedem osiem dziewięć dziesięć", 5); o != 0 {
		t.Fatalf("overlap: %v", o)
	}
}

// wordStarts mirrors the parser's word offset bookkeeping for hand-built
// utterances.
func wordStarts(s string) []int {
	var out []int
	inWord := false
	for i, r := range s {
		if r != ' ' && !inWord {
			out = append(out, i)
			inWord = true
		} else if r == ' ' {
			inWord = false
		}
	}
	return out
}
