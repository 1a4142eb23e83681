package transcript

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sejmhumor/sejmhumor/internal/sejmapi"
)

func testRoster() *Roster {
	return NewRoster(
		map[string]string{
			"Jan Kowalski":         "Klub Parlamentarny A",
			"Anna Nowak-Kowalska":  "Klub Parlamentarny B",
			"Krzysztof Wiśniewski": "Koło C",
		},
		map[string]string{"KP A": "Klub Parlamentarny A"},
		map[string]string{"marszałek": "Marszałek Sejmu"},
	)
}

func TestFindClub_Exact(t *testing.T) {
	r := testRoster()
	name, club, ok := r.FindClub("Jan Kowalski")
	if !ok || name != "Jan Kowalski" || club != "Klub Parlamentarny A" {
		t.Fatalf("got %q %q %v", name, club, ok)
	}
}

func TestFindClub_TitleAndCaseVariants(t *testing.T) {
	r := testRoster()
	for _, raw := range []string{
		"Poseł Jan Kowalski",
		"jan kowalski",
		"  Jan   Kowalski ",
		"Posłanka Anna Nowak-Kowalska (KP B)",
	} {
		if _, _, ok := r.FindClub(raw); !ok {
			t.Errorf("variant not resolved: %q", raw)
		}
	}
}

func TestFindClub_Dehyphenated(t *testing.T) {
	r := testRoster()
	name, _, ok := r.FindClub("Anna NowakKowalska")
	if !ok || name != "Anna Nowak-Kowalska" {
		t.Fatalf("got %q %v", name, ok)
	}
}

func TestFindClub_Fuzzy(t *testing.T) {
	r := testRoster()
	// One-letter OCR slip, well above the 0.8 similarity threshold.
	name, club, ok := r.FindClub("Jan Kowalsky")
	if !ok || name != "Jan Kowalski" || club != "Klub Parlamentarny A" {
		t.Fatalf("fuzzy: %q %q %v", name, club, ok)
	}
	// Unrelated name stays unresolved.
	if _, _, ok := r.FindClub("Zupełnie Inna Osoba"); ok {
		t.Fatal("unrelated name resolved")
	}
}

func TestFindClub_MemoAndAddMissing(t *testing.T) {
	r := testRoster()
	if _, _, ok := r.FindClub("Maria Zielińska"); ok {
		t.Fatal("unexpected hit before insert")
	}
	r.AddMissing("Maria Zielińska", "Koło D")
	name, club, ok := r.FindClub("Maria Zielińska")
	if !ok || name != "Maria Zielińska" || club != "Koło D" {
		t.Fatalf("after AddMissing: %q %q %v", name, club, ok)
	}
	if r.Len() != 4 {
		t.Fatalf("len: %d", r.Len())
	}
}

func TestExpandClub(t *testing.T) {
	r := testRoster()
	if got := r.ExpandClub(" KP A "); got != "Klub Parlamentarny A" {
		t.Fatalf("expand: %q", got)
	}
	if got := r.ExpandClub("Nieznany"); got != "Nieznany" {
		t.Fatalf("passthrough: %q", got)
	}
}

func TestLoadRoster(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.json")
	data := `{
  "members": {"Jan Kowalski": "Klub A"},
  "club_abbreviations": {"KA": "Klub A"},
  "functions": {"marszałek": "Marszałek Sejmu"}
}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := LoadRoster(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("len: %d", r.Len())
	}
	if got := r.ExpandClub("KA"); got != "Klub A" {
		t.Fatalf("abbrev: %q", got)
	}
}

func TestLoadRoster_Missing(t *testing.T) {
	if _, err := LoadRoster(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error")
	}
}

func TestRosterFromMembers(t *testing.T) {
	r := RosterFromMembers([]sejmapi.Member{
		{FirstName: "Jan", LastName: "Kowalski", Club: "Klub A"},
	})
	name, club, ok := r.FindClub("Poseł Jan Kowalski")
	if !ok || name != "Jan Kowalski" || club != "Klub A" {
		t.Fatalf("got %q %q %v", name, club, ok)
	}
}
