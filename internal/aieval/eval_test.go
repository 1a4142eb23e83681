package aieval

import (
	"strings"
	"testing"
)

func TestParseEvaluation(t *testing.T) {
	raw := "Oto moja ocena:\n{\"is_funny\": true, \"confidence\": 0.8, \"reason\": \"ironia\"}\nDziękuję."
	ev, err := parseEvaluation(raw)
	if err != nil {
		t.Fatal(err)
	}
	if !ev.IsFunny || ev.Confidence != 0.8 || ev.Reason != "ironia" {
		t.Fatalf("parsed: %+v", ev)
	}
}

func TestParseEvaluation_ClampsConfidence(t *testing.T) {
	ev, err := parseEvaluation(`{"is_funny": true, "confidence": 7.5, "reason": "x"}`)
	if err != nil {
		t.Fatal(err)
	}
	if ev.Confidence != 1 {
		t.Fatalf("confidence: %v", ev.Confidence)
	}
}

func TestParseEvaluation_NoJSON(t *testing.T) {
	if _, err := parseEvaluation("brak oceny"); err == nil {
		t.Fatal("expected error")
	}
}

func TestUserPrompt_Context(t *testing.T) {
	got := userPrompt("To jest cyrk", &Context{
		Speaker:  "Jan Kowalski",
		Club:     "Klub A",
		Keywords: []string{"cyrk", "absurd"},
	})
	for _, want := range []string{"To jest cyrk", "Jan Kowalski", "(Klub A)", "cyrk, absurd"} {
		if !strings.Contains(got, want) {
			t.Fatalf("prompt missing %q:\n%s", want, got)
		}
	}
	bare := userPrompt("To jest cyrk", nil)
	if strings.Contains(bare, "Mówca") {
		t.Fatalf("nil context leaked metadata: %s", bare)
	}
}

func TestParseLineFormat(t *testing.T) {
	raw := "ŚMIESZNE: TAK\nPEWNOŚĆ: 70%\nKATEGORIA: ironia\nPOWÓD: celowa złośliwość"
	ev, ok := parseLineFormat(raw)
	if !ok {
		t.Fatal("line format not recognized")
	}
	if !ev.IsFunny || ev.Confidence != 0.7 || ev.Category != "irony" || ev.Reason != "celowa złośliwość" {
		t.Fatalf("parsed: %+v", ev)
	}
	ev, ok = parseLineFormat("ŚMIESZNE: NIE\nKATEGORIA: wykład")
	if !ok || ev.IsFunny || ev.Category != "none" {
		t.Fatalf("parsed: %+v ok=%v", ev, ok)
	}
	if _, ok := parseLineFormat("zwykły tekst"); ok {
		t.Fatal("prose accepted as line format")
	}
}

func TestProviderError_Transient(t *testing.T) {
	cases := []struct {
		status int
		want   bool
	}{
		{0, true}, {429, true}, {500, true}, {503, true},
		{400, false}, {401, false}, {404, false},
	}
	for _, c := range cases {
		pe := &ProviderError{Provider: "x", Status: c.status}
		if pe.Transient() != c.want {
			t.Errorf("status %d: transient = %v", c.status, pe.Transient())
		}
	}
}
