package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Refresh windows for sittings depending on where their dates fall relative
// to now. Exposed as variables so tests can shrink them.
var (
	refreshFuture   = 24 * time.Hour
	refreshComplete = 168 * time.Hour
	refreshPartial  = 2 * time.Hour
)

// fileRecord tracks one persisted artifact by content hash.
type fileRecord struct {
	Path      string    `json:"path"`
	SHA256    string    `json:"sha256"`
	Size      int64     `json:"size"`
	TrackedAt time.Time `json:"tracked_at"`
}

// sittingMark records when a sitting was last checked against the API.
type sittingMark struct {
	Term      int       `json:"term"`
	Sitting   int       `json:"sitting"`
	Status    string    `json:"status"`
	CheckedAt time.Time `json:"checked_at"`
}

// Files is the on-disk tier: it tracks persisted artifacts by content hash
// and owns the sitting refresh policy. Metadata lives in a single JSON file
// written via atomic rename.
type Files struct {
	Dir string
	// HasTranscript reports whether a transcript file exists on disk for the
	// given sitting day. Wired to the persistence layer by the pipeline.
	HasTranscript func(term, sitting int, date string) bool

	mu       sync.Mutex
	records  map[string]fileRecord
	sittings map[string]sittingMark
	loaded   bool
	now      func() time.Time
}

func (f *Files) metaPath() string { return filepath.Join(f.Dir, "file_cache.json") }

func (f *Files) loadLocked() error {
	if f.loaded {
		return nil
	}
	if f.Dir == "" {
		return errors.New("cache dir not configured")
	}
	if f.now == nil {
		f.now = time.Now
	}
	f.records = make(map[string]fileRecord)
	f.sittings = make(map[string]sittingMark)
	f.loaded = true
	b, err := os.ReadFile(f.metaPath())
	if err != nil {
		return nil // missing or unreadable metadata starts empty
	}
	var state struct {
		Records  map[string]fileRecord  `json:"records"`
		Sittings map[string]sittingMark `json:"sittings"`
	}
	if err := json.Unmarshal(b, &state); err != nil {
		return nil // corrupt metadata: reset
	}
	if state.Records != nil {
		f.records = state.Records
	}
	if state.Sittings != nil {
		f.sittings = state.Sittings
	}
	return nil
}

func (f *Files) saveLocked() error {
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return err
	}
	state := struct {
		Records  map[string]fileRecord  `json:"records"`
		Sittings map[string]sittingMark `json:"sittings"`
	}{f.records, f.sittings}
	b, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.metaPath() + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.metaPath())
}

// Track records path with the hash of its current content.
func (f *Files) Track(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadLocked(); err != nil {
		return err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("track %s: %w", path, err)
	}
	sum := sha256.Sum256(b)
	f.records[path] = fileRecord{
		Path:      path,
		SHA256:    hex.EncodeToString(sum[:]),
		Size:      int64(len(b)),
		TrackedAt: f.now().UTC(),
	}
	return f.saveLocked()
}

// HasFile reports whether path is tracked and still exists. With checkContent
// the file's bytes are rehashed and compared against the stored digest.
func (f *Files) HasFile(path string, checkContent bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadLocked(); err != nil {
		return false
	}
	rec, ok := f.records[path]
	if !ok {
		return false
	}
	if _, err := os.Stat(path); err != nil {
		return false
	}
	if !checkContent {
		return true
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]) == rec.SHA256
}

func sittingKey(term, sitting int) string {
	return fmt.Sprintf("%d/%d", term, sitting)
}

// ShouldRefreshSitting decides whether a sitting needs to be re-fetched.
// Dates are calendar days in "2006-01-02" form.
func (f *Files) ShouldRefreshSitting(term, sitting int, dates []string, force bool) bool {
	if force {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadLocked(); err != nil {
		return true
	}
	mark, ok := f.sittings[sittingKey(term, sitting)]
	if !ok {
		return true
	}
	age := f.now().Sub(mark.CheckedAt)

	today := f.now().UTC().Format("2006-01-02")
	allFuture, allPast := true, true
	for _, d := range dates {
		if d <= today {
			allFuture = false
		}
		if d >= today {
			allPast = false
		}
	}
	if len(dates) == 0 {
		return age >= refreshPartial
	}
	switch {
	case allFuture:
		return age >= refreshFuture
	case allPast && f.transcriptsCoverLocked(term, sitting, dates):
		return age >= refreshComplete
	default:
		return age >= refreshPartial
	}
}

func (f *Files) transcriptsCoverLocked(term, sitting int, dates []string) bool {
	if f.HasTranscript == nil {
		return false
	}
	for _, d := range dates {
		if !f.HasTranscript(term, sitting, d) {
			return false
		}
	}
	return true
}

// MarkSittingChecked writes a dated marker for the sitting.
func (f *Files) MarkSittingChecked(term, sitting int, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadLocked(); err != nil {
		return err
	}
	f.sittings[sittingKey(term, sitting)] = sittingMark{
		Term:      term,
		Sitting:   sitting,
		Status:    status,
		CheckedAt: f.now().UTC(),
	}
	return f.saveLocked()
}
