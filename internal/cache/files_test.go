package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFiles_TrackAndHasFile(t *testing.T) {
	tmp := t.TempDir()
	f := &Files{Dir: tmp}
	path := filepath.Join(tmp, "artifact.json")
	if err := os.WriteFile(path, []byte(`{"a":1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := f.Track(path); err != nil {
		t.Fatalf("track: %v", err)
	}
	if !f.HasFile(path, false) {
		t.Fatal("expected tracked file")
	}
	if !f.HasFile(path, true) {
		t.Fatal("expected content match")
	}
	// Modify the file: content check must fail, existence check still passes.
	if err := os.WriteFile(path, []byte(`{"a":2}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if f.HasFile(path, true) {
		t.Fatal("expected content mismatch")
	}
	if !f.HasFile(path, false) {
		t.Fatal("existence check should still pass")
	}
}

func TestFiles_ShouldRefreshSitting(t *testing.T) {
	tmp := t.TempDir()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	covered := map[string]bool{}
	f := &Files{
		Dir: tmp,
		HasTranscript: func(term, sitting int, date string) bool {
			return covered[date]
		},
	}
	f.now = func() time.Time { return now }

	past := []string{"2025-06-01", "2025-06-02"}
	future := []string{"2025-06-20"}

	// Force always refreshes.
	if !f.ShouldRefreshSitting(10, 1, past, true) {
		t.Fatal("force must refresh")
	}
	// Never checked: refresh.
	if !f.ShouldRefreshSitting(10, 1, past, false) {
		t.Fatal("unchecked sitting must refresh")
	}
	if err := f.MarkSittingChecked(10, 1, "ok"); err != nil {
		t.Fatal(err)
	}

	// Past but incomplete on disk: partial window (2h).
	now = now.Add(time.Hour)
	if f.ShouldRefreshSitting(10, 1, past, false) {
		t.Fatal("1h old partial sitting should not refresh")
	}
	now = now.Add(90 * time.Minute)
	if !f.ShouldRefreshSitting(10, 1, past, false) {
		t.Fatal("2.5h old partial sitting should refresh")
	}

	// Past and fully covered: weekly window.
	covered["2025-06-01"], covered["2025-06-02"] = true, true
	if f.ShouldRefreshSitting(10, 1, past, false) {
		t.Fatal("covered sitting should wait for weekly window")
	}
	now = now.Add(8 * 24 * time.Hour)
	if !f.ShouldRefreshSitting(10, 1, past, false) {
		t.Fatal("covered sitting past a week should refresh")
	}

	// Future-only sitting: daily window.
	if err := f.MarkSittingChecked(10, 2, "future"); err != nil {
		t.Fatal(err)
	}
	future = []string{now.Add(7 * 24 * time.Hour).Format("2006-01-02")}
	now = now.Add(12 * time.Hour)
	if f.ShouldRefreshSitting(10, 2, future, false) {
		t.Fatal("future sitting checked 12h ago should not refresh")
	}
	now = now.Add(13 * time.Hour)
	if !f.ShouldRefreshSitting(10, 2, future, false) {
		t.Fatal("future sitting checked 25h ago should refresh")
	}
}

func TestFiles_StatePersistsAcrossInstances(t *testing.T) {
	tmp := t.TempDir()
	f := &Files{Dir: tmp}
	if err := f.MarkSittingChecked(10, 3, "ok"); err != nil {
		t.Fatal(err)
	}
	g := &Files{Dir: tmp}
	if g.ShouldRefreshSitting(10, 3, []string{"2020-01-01"}, false) {
		// Freshly marked, partial window: must not refresh yet.
		t.Fatal("mark should persist to a new instance")
	}
}
