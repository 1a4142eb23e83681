package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"
)

// checkpointEvery is how many inserts may accumulate before the evaluation
// cache is flushed to disk.
const checkpointEvery = 10

// NormalizeText lowercases and collapses whitespace so that evaluations for
// texts differing only in case and spacing share a cache entry.
func NormalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimRight(b.String(), " ")
}

// EvalKey is the content address of a fragment text: SHA-256 of its
// normalized form.
func EvalKey(text string) string {
	h := sha256.Sum256([]byte(NormalizeText(text)))
	return hex.EncodeToString(h[:])
}

// EvalCache persists AI evaluations keyed by content hash. Entries live in a
// single JSON file; writes checkpoint to disk every ten inserts and on Flush.
type EvalCache struct {
	Dir string

	mu      sync.Mutex
	entries map[string]json.RawMessage
	dirty   int
	loaded  bool
}

func (c *EvalCache) path() string { return filepath.Join(c.Dir, "evaluations.json") }

func (c *EvalCache) loadLocked() error {
	if c.loaded {
		return nil
	}
	if c.Dir == "" {
		return errors.New("eval cache dir not configured")
	}
	c.entries = make(map[string]json.RawMessage)
	c.loaded = true
	b, err := os.ReadFile(c.path())
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(b, &c.entries); err != nil {
		// Corrupt cache file: reset rather than fail.
		c.entries = make(map[string]json.RawMessage)
	}
	return nil
}

// Get returns the stored payload for key.
func (c *EvalCache) Get(key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadLocked(); err != nil {
		return nil, false
	}
	v, ok := c.entries[key]
	return v, ok
}

// Save stores payload under key and checkpoints to disk every ten inserts.
func (c *EvalCache) Save(key string, payload json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadLocked(); err != nil {
		return err
	}
	c.entries[key] = payload
	c.dirty++
	if c.dirty >= checkpointEvery {
		return c.flushLocked()
	}
	return nil
}

// Flush writes all pending entries to disk.
func (c *EvalCache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadLocked(); err != nil {
		return err
	}
	if c.dirty == 0 {
		return nil
	}
	return c.flushLocked()
}

// Len reports how many evaluations are cached.
func (c *EvalCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadLocked(); err != nil {
		return 0
	}
	return len(c.entries)
}

func (c *EvalCache) flushLocked() error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return err
	}
	tmp := c.path() + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, c.path()); err != nil {
		return err
	}
	c.dirty = 0
	return nil
}
