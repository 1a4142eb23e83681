package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sejmhumor/sejmhumor/internal/sejmapi"
)

// ErrNoContent signals that a sitting day produced no statement text and no
// transcript file should exist for it.
var ErrNoContent = errors.New("no statement content for day")

// Speaker is the denormalized speaker block stored with each statement.
type Speaker struct {
	Name     string `json:"name"`
	Club     string `json:"club,omitempty"`
	Function string `json:"function,omitempty"`
}

// TranscriptStatement is one statement as persisted in a transcript file.
// Original preserves the upstream record as an opaque blob.
type TranscriptStatement struct {
	Num             int             `json:"num"`
	Speaker         Speaker         `json:"speaker"`
	Text            string          `json:"text"`
	StartTime       string          `json:"start_time,omitempty"`
	EndTime         string          `json:"end_time,omitempty"`
	DurationSeconds float64         `json:"duration_seconds,omitempty"`
	Original        json.RawMessage `json:"original,omitempty"`
}

// TranscriptMeta describes the sitting day a transcript file belongs to.
type TranscriptMeta struct {
	Term        int              `json:"term"`
	SittingID   int              `json:"sitting_id"`
	Date        string           `json:"date"`
	GeneratedAt time.Time        `json:"generated_at"`
	SittingInfo *sejmapi.Sitting `json:"sitting_info,omitempty"`
}

// TranscriptFile is the persisted per-day transcript schema.
type TranscriptFile struct {
	Metadata   TranscriptMeta        `json:"metadata"`
	Statements []TranscriptStatement `json:"statements"`
}

// Store owns the on-disk directory layout. Writes are atomic: a temporary
// file in the target directory is renamed over the destination.
type Store struct {
	BaseDir string
}

// TermDir is <base>/kadencja_NN.
func (s *Store) TermDir(term int) string {
	return filepath.Join(s.BaseDir, fmt.Sprintf("kadencja_%02d", term))
}

// SittingDir is <term>/posiedzenie_NNN[_YYYY-MM-DD]; the first sitting date
// is appended when known.
func (s *Store) SittingDir(term, sitting int, firstDate string) string {
	name := fmt.Sprintf("posiedzenie_%03d", sitting)
	if firstDate != "" {
		name += "_" + firstDate
	}
	return filepath.Join(s.TermDir(term), name)
}

// TranscriptPath locates an existing transcript file for the sitting day, or
// returns the canonical path under dir when none exists yet.
func (s *Store) TranscriptPath(term, sitting int, date string) string {
	pattern := filepath.Join(s.TermDir(term), fmt.Sprintf("posiedzenie_%03d*", sitting), "transcripts", "transkrypty_"+date+".json")
	if matches, err := filepath.Glob(pattern); err == nil && len(matches) > 0 {
		return matches[0]
	}
	return filepath.Join(s.SittingDir(term, sitting, ""), "transcripts", "transkrypty_"+date+".json")
}

// HasTranscript reports whether a transcript file exists for the day.
func (s *Store) HasTranscript(term, sitting int, date string) bool {
	path := s.TranscriptPath(term, sitting, date)
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

// WriteTranscript persists a day's transcript. Statements are sorted by num
// and deduplicated; a day where no statement carries text is reported as
// ErrNoContent and no file is produced.
func (s *Store) WriteTranscript(tf TranscriptFile) (string, error) {
	hasText := false
	for _, st := range tf.Statements {
		if strings.TrimSpace(st.Text) != "" {
			hasText = true
			break
		}
	}
	if !hasText {
		return "", ErrNoContent
	}
	sort.SliceStable(tf.Statements, func(i, j int) bool {
		return tf.Statements[i].Num < tf.Statements[j].Num
	})
	dedup := tf.Statements[:0]
	lastNum := -1
	for _, st := range tf.Statements {
		if st.Num == lastNum {
			continue
		}
		dedup = append(dedup, st)
		lastNum = st.Num
	}
	tf.Statements = dedup

	firstDate := ""
	if tf.Metadata.SittingInfo != nil && len(tf.Metadata.SittingInfo.Dates) > 0 {
		firstDate = tf.Metadata.SittingInfo.Dates[0]
	}
	dir := filepath.Join(s.SittingDir(tf.Metadata.Term, tf.Metadata.SittingID, firstDate), "transcripts")
	path := filepath.Join(dir, "transkrypty_"+tf.Metadata.Date+".json")
	if err := writeJSONAtomic(path, tf); err != nil {
		return "", err
	}
	log.Debug().Str("path", path).Int("statements", len(tf.Statements)).Msg("wrote transcript")
	return path, nil
}

// ReadTranscript loads a persisted transcript file.
func (s *Store) ReadTranscript(path string) (TranscriptFile, error) {
	var tf TranscriptFile
	b, err := os.ReadFile(path)
	if err != nil {
		return tf, fmt.Errorf("read transcript: %w", err)
	}
	if err := json.Unmarshal(b, &tf); err != nil {
		return tf, fmt.Errorf("parse transcript: %w", err)
	}
	return tf, nil
}

// WriteSittingInfo persists info_posiedzenia.json for a sitting.
func (s *Store) WriteSittingInfo(term int, sitting sejmapi.Sitting) error {
	firstDate := ""
	if len(sitting.Dates) > 0 {
		firstDate = sitting.Dates[0]
	}
	path := filepath.Join(s.SittingDir(term, sitting.Number, firstDate), "info_posiedzenia.json")
	return writeJSONAtomic(path, sitting)
}

// WriteMembers persists the member roster under poslowie/.
func (s *Store) WriteMembers(term int, members []sejmapi.Member) error {
	path := filepath.Join(s.TermDir(term), "poslowie", "poslowie.json")
	return writeJSONAtomic(path, members)
}

// WriteClubs persists the club list under kluby/.
func (s *Store) WriteClubs(term int, clubs []sejmapi.Club) error {
	path := filepath.Join(s.TermDir(term), "kluby", "kluby.json")
	return writeJSONAtomic(path, clubs)
}

// WriteMemberPhoto stores a portrait under poslowie/.
func (s *Store) WriteMemberPhoto(term, id int, data []byte) error {
	path := filepath.Join(s.TermDir(term), "poslowie", fmt.Sprintf("foto_%d.jpg", id))
	return writeBytesAtomic(path, data)
}

// WriteClubLogo stores a caucus logo under kluby/.
func (s *Store) WriteClubLogo(term int, id string, data []byte) error {
	path := filepath.Join(s.TermDir(term), "kluby", fmt.Sprintf("logo_%s.png", id))
	return writeBytesAtomic(path, data)
}

// WriteResults persists a detection result payload under detector/ with a
// source name and timestamp in the file name. Returns the written path.
func (s *Store) WriteResults(source string, payload any) (string, error) {
	stamp := time.Now().UTC().Format("20060102_150405")
	path := filepath.Join(s.BaseDir, "detector", fmt.Sprintf("results_%s_%s.json", sanitizeName(source), stamp))
	if err := writeJSONAtomic(path, payload); err != nil {
		return "", err
	}
	return path, nil
}

func sanitizeName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
	if s == "" {
		s = "unknown"
	}
	return s
}

// MarshalCanonical renders v as canonical JSON: UTF-8, two-space indent,
// unescaped HTML, trailing LF.
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSONAtomic(path string, v any) error {
	b, err := MarshalCanonical(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	return writeBytesAtomic(path, b)
}

func writeBytesAtomic(path string, b []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
