package transcript

import (
	"strings"
	"testing"
)

const sampleTranscript = `Sejm Rzeczypospolitej Polskiej
Kadencja X
Sprawozdanie Stenograficzne z 3. posiedzenia
w dniu 15 stycznia 2025 r.
Spis treści
Punkt 1. porządku dziennego: Pierwsze czytanie

Marszałek Elżbieta Witek:
Otwieram posiedzenie Sejmu. Proszę o zajęcie miejsc na sali plenarnej.

Poseł Jan Kowalski (Klub A):
To jest prawdziwy absurd i bzdura, całkowity cyrk w wykonaniu rządu.
(Oklaski)
Głos z sali: Brawo!

Posłanka Anna Nowak:
Dziękuję bardzo za udzielenie głosu w tej ważnej sprawie.

Minister Piotr Wiśniewski:
Tak.
`

func TestParse_SpeakersAndSkips(t *testing.T) {
	p := &Parser{}
	res := p.Parse(sampleTranscript, "test.txt")

	if len(res.Utterances) != 3 {
		t.Fatalf("utterances: %d (%+v)", len(res.Utterances), res.Utterances)
	}
	u := res.Utterances[0]
	if u.Speaker != "Elżbieta Witek" {
		t.Fatalf("speaker 0: %q", u.Speaker)
	}
	if res.Utterances[1].Speaker != "Jan Kowalski" {
		t.Fatalf("speaker 1: %q", res.Utterances[1].Speaker)
	}
	if got := res.Utterances[1].Text; strings.Contains(got, "Oklaski") || strings.Contains(got, "Brawo") {
		t.Fatalf("protocol lines leaked into utterance: %q", got)
	}
	// "Tak." is under three words and must be dropped.
	for _, u := range res.Utterances {
		if u.Speaker == "Piotr Wiśniewski" {
			t.Fatal("short utterance should have been dropped")
		}
	}
	if res.Stats.DroppedShort != 1 {
		t.Fatalf("dropped short: %d", res.Stats.DroppedShort)
	}
}

func TestParse_ClubSuffixResolved(t *testing.T) {
	r := NewRoster(map[string]string{"Jan Kowalski": "Klub Parlamentarny A"}, nil, nil)
	p := &Parser{Roster: r}
	res := p.Parse(sampleTranscript, "test.txt")
	var found bool
	for _, u := range res.Utterances {
		if u.Speaker == "Jan Kowalski" {
			found = true
			if u.Club != "Klub Parlamentarny A" {
				t.Fatalf("club: %q", u.Club)
			}
		}
	}
	if !found {
		t.Fatal("Kowalski not parsed")
	}
}

func TestParse_SittingInfo(t *testing.T) {
	p := &Parser{}
	res := p.Parse(sampleTranscript, "steno_003.txt")
	info := res.SittingInfo
	if info.Sejm == "" {
		t.Fatal("sejm missing")
	}
	if info.Kadencja != "X" {
		t.Fatalf("kadencja: %q", info.Kadencja)
	}
	if info.Posiedzenie != "3" {
		t.Fatalf("posiedzenie: %q", info.Posiedzenie)
	}
	if info.Data != "15 stycznia 2025" {
		t.Fatalf("data: %q", info.Data)
	}
	if info.Plik != "steno_003.txt" {
		t.Fatalf("plik: %q", info.Plik)
	}
}

func TestParse_NoSpeakersNotFatal(t *testing.T) {
	p := &Parser{}
	res := p.Parse("Zwykły tekst bez żadnych mówców.\nDruga linia.", "empty.txt")
	if len(res.Utterances) != 0 {
		t.Fatalf("expected no utterances, got %d", len(res.Utterances))
	}
}

func TestParse_WordPositionsMonotone(t *testing.T) {
	p := &Parser{}
	res := p.Parse(sampleTranscript, "test.txt")
	for _, u := range res.Utterances {
		for i := 1; i < len(u.WordPositions); i++ {
			if u.WordPositions[i] <= u.WordPositions[i-1] {
				t.Fatalf("word positions not strictly increasing: %v", u.WordPositions)
			}
		}
		if len(u.WordPositions) != len(u.Words()) {
			t.Fatalf("positions/words mismatch: %d vs %d", len(u.WordPositions), len(u.Words()))
		}
	}
}

func TestRepairHyphenation(t *testing.T) {
	cases := []struct{ in, want string }{
		// Trailing hyphen before newline always joins.
		{"przygoto-\nwanie", "przygotowanie"},
		// Second part lowercase joins.
		{"absur-dalny", "absurdalny"},
		// Allow-list keeps the hyphen.
		{"wice-premier", "wice-premier"},
		{"anty-europejski", "anty-europejski"},
		// Double-uppercase surname stays.
		{"Gronkiewicz-Waltz", "Gronkiewicz-Waltz"},
	}
	for _, c := range cases {
		if got := repairHyphenation(c.in); got != c.want {
			t.Errorf("repairHyphenation(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestCleanSpeakerName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Poseł Jan Kowalski (Klub A)", "Jan Kowalski"},
		{"Pani Marszałek Elżbieta Witek", "Elżbieta Witek"},
		{"Anna Nowak", "Anna Nowak"},
	}
	for _, c := range cases {
		if got := CleanSpeakerName(c.in); got != c.want {
			t.Errorf("CleanSpeakerName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestParse_RawKeepsSourceText(t *testing.T) {
	raw := "Poseł Jan Kowalski:\nPierwsza wypowiedź posła trwała dość długo i była wyjątkowo nudna.\n\nPoseł Anna Nowak:\nDrugie przygoto-\nwanie wystąpienia zostało omówione szczegółowo wczoraj.\n"
	p := &Parser{}
	res := p.Parse(raw, "test")
	if len(res.Utterances) != 2 {
		t.Fatalf("utterances: %d", len(res.Utterances))
	}
	u := res.Utterances[1]
	if !strings.Contains(u.Text, "przygotowanie") {
		t.Fatalf("hyphenation not repaired: %q", u.Text)
	}
	if !strings.Contains(u.Raw, "przygoto-") {
		t.Fatalf("raw lost the source form: %q", u.Raw)
	}
	if strings.Contains(res.Utterances[0].Raw, "Anna") {
		t.Fatalf("first raw overruns into the next speaker: %q", res.Utterances[0].Raw)
	}
}

func TestParseAttributed_KeepsUnknownSpeaker(t *testing.T) {
	p := &Parser{}
	blocks := []AttributedBlock{
		{Speaker: "Jan Kowalski", Club: "KP A", Text: "Wypowiedź całkiem zwyczajna o niczym szczególnym."},
		{Speaker: UnknownSpeaker, Text: "To jest prawdziwy absurd i bzdura, całkowity cyrk."},
		{Speaker: "Anna Nowak", Text: "Tak."},
	}
	res := p.ParseAttributed(blocks, "test")
	if len(res.Utterances) != 2 {
		t.Fatalf("utterances: %d", len(res.Utterances))
	}
	if res.Utterances[1].Speaker != UnknownSpeaker {
		t.Fatalf("speaker: %q", res.Utterances[1].Speaker)
	}
	if strings.Contains(res.Utterances[0].Text, "absurd") {
		t.Fatal("unattributed text merged into the previous speaker")
	}
	if res.Utterances[1].Raw != blocks[1].Text {
		t.Fatalf("raw: %q", res.Utterances[1].Raw)
	}
	if res.Stats.DroppedShort != 1 {
		t.Fatalf("dropped short: %d", res.Stats.DroppedShort)
	}
}

func TestParseAttributed_RosterResolvesClub(t *testing.T) {
	p := &Parser{Roster: testRoster()}
	blocks := []AttributedBlock{
		{Speaker: "Poseł Jan Kowalski", Text: "Trzecia wypowiedź była zupełnie zwyczajna i spokojna."},
	}
	res := p.ParseAttributed(blocks, "test")
	if len(res.Utterances) != 1 {
		t.Fatalf("utterances: %d", len(res.Utterances))
	}
	u := res.Utterances[0]
	if u.Speaker != "Jan Kowalski" || u.Club != "Klub Parlamentarny A" {
		t.Fatalf("speaker resolution: %q %q", u.Speaker, u.Club)
	}
}
