package sejmapi

import (
	"strings"
	"testing"
)

func TestHTMLToText_Basics(t *testing.T) {
	in := `<html><head><style>p{color:red}</style><script>var x=1;</script></head>
<body><!-- komentarz --><p>Pierwszy akapit.</p><p>Drugi   akapit<br>z łamaniem.</p></body></html>`
	got := HTMLToText(in)
	if strings.Contains(got, "color:red") || strings.Contains(got, "var x") {
		t.Fatalf("script/style leaked: %q", got)
	}
	if strings.Contains(got, "komentarz") {
		t.Fatalf("comment leaked: %q", got)
	}
	if !strings.Contains(got, "Pierwszy akapit.") {
		t.Fatalf("missing paragraph: %q", got)
	}
	if !strings.Contains(got, "Drugi akapit\nz łamaniem.") {
		t.Fatalf("br/space handling: %q", got)
	}
	if !strings.Contains(got, "Pierwszy akapit.\n\nDrugi") {
		t.Fatalf("paragraph break missing: %q", got)
	}
}

func TestHTMLToText_Entities(t *testing.T) {
	in := `<p>A&nbsp;&amp;&nbsp;B &lt;tag&gt; &quot;q&quot; &#39;a&#39; &apos;b&apos;</p>`
	got := HTMLToText(in)
	want := `A & B <tag> "q" 'a' 'b'`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestHTMLToText_IdempotentOnCleanText(t *testing.T) {
	clean := "Poseł Kowalski zabrał głos.\n\nTo jest drugi akapit."
	once := HTMLToText(clean)
	twice := HTMLToText(once)
	if once != twice {
		t.Fatalf("not idempotent:\nonce:  %q\ntwice: %q", once, twice)
	}
}

func TestHTMLToText_StripsUnknownTagsKeepsText(t *testing.T) {
	in := `<p>Tekst z <a href="/x">linkiem</a> oraz <table><tr><td>tabelą</td></tr></table></p>`
	got := HTMLToText(in)
	if !strings.Contains(got, "linkiem") || !strings.Contains(got, "tabelą") {
		t.Fatalf("text lost: %q", got)
	}
	if strings.Contains(got, "<") {
		t.Fatalf("tag leaked: %q", got)
	}
}

func TestHTMLToText_PolishDiacriticsPreserved(t *testing.T) {
	in := "<p>Żółć, gęś, łąka — ŚWIETNIE</p>"
	got := HTMLToText(in)
	for _, s := range []string{"Żółć", "gęś", "łąka", "ŚWIETNIE"} {
		if !strings.Contains(got, s) {
			t.Fatalf("diacritics lost in %q", got)
		}
	}
}
