// Package feedback implements C8: the append-only daily feedback store
// and the deferred signal collector that scores each escalation in
// hindsight.
package feedback

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sinain/sinain-core/internal/timefmt"
)

// Signals are the deferred, possibly-unknown outcome signals for a
// FeedbackRecord.
type Signals struct {
	ErrorCleared    *bool    `json:"error_cleared,omitempty"`
	NoReEscalation  *bool    `json:"no_re_escalation,omitempty"`
	DwellTimeMs     *int64   `json:"dwell_time_ms,omitempty"`
	QuickAppSwitch  *bool    `json:"quick_app_switch,omitempty"`
	Composite       *float64 `json:"composite,omitempty"`
}

// Record is a FeedbackRecord: the outcome of one escalation, recorded
// immediately and enriched in hindsight by the collector.
type Record struct {
	ID                 string   `json:"id"`
	TS                 int64    `json:"ts"`
	TickID              uint64   `json:"tick_id"`
	Digest             string   `json:"digest"`
	HUD                string   `json:"hud"`
	CurrentApp         string   `json:"current_app"`
	EscalationScore    int      `json:"escalation_score"`
	EscalationReasons  []string `json:"escalation_reasons"`
	CodingContext      bool     `json:"coding_context"`
	EscalationMessage  string   `json:"escalation_message"`
	AgentResponse      string   `json:"agent_response"`
	ResponseLatencyMs  int64    `json:"response_latency_ms"`
	Signals            Signals  `json:"signals"`
	Tags               []string `json:"tags,omitempty"`
}

// NewRecord builds a Record with a fresh id and all signals unknown.
func NewRecord(ts int64, tickID uint64, digest, hud, currentApp string, score int, reasons []string, coding bool, message, response string, latencyMs int64) Record {
	return Record{
		ID:                uuid.NewString(),
		TS:                ts,
		TickID:            tickID,
		Digest:            digest,
		HUD:               hud,
		CurrentApp:        currentApp,
		EscalationScore:   score,
		EscalationReasons: reasons,
		CodingContext:     coding,
		EscalationMessage: message,
		AgentResponse:     response,
		ResponseLatencyMs: latencyMs,
	}
}

// Store is the append-only daily JSONL feedback store.
type Store struct {
	dir           string
	retentionDays int

	mu         sync.Mutex
	writerDate string
	writer     *os.File
}

// NewStore creates a Store rooted at dir, retaining files for
// retentionDays (pruned by Prune, never automatically).
func NewStore(dir string, retentionDays int) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("feedback: create dir: %w", err)
	}
	return &Store{dir: dir, retentionDays: retentionDays}, nil
}

func (s *Store) pathForDate(date string) string {
	return filepath.Join(s.dir, date+".jsonl")
}

// Append writes record to today's file, rotating the open writer if the
// UTC date has changed since the last append.
func (s *Store) Append(record Record) error {
	date := timefmt.DayKey(time.UnixMilli(record.TS))

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writer == nil || s.writerDate != date {
		if s.writer != nil {
			s.writer.Close()
		}
		f, err := os.OpenFile(s.pathForDate(date), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return fmt.Errorf("feedback: open writer for %s: %w", date, err)
		}
		s.writer = f
		s.writerDate = date
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("feedback: marshal record: %w", err)
	}
	if _, err := s.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("feedback: write record: %w", err)
	}
	return nil
}

// UpdateSignals rewrites the target day's file with one record's signals
// updated. If date is today's open-writer date, the writer is reopened
// in append mode afterward.
func (s *Store) UpdateSignals(id, date string, signals Signals) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.pathForDate(date)
	records, err := readRecords(path)
	if err != nil {
		return fmt.Errorf("feedback: read %s: %w", date, err)
	}

	found := false
	for i := range records {
		if records[i].ID == id {
			records[i].Signals = signals
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("feedback: record %s not found on %s", id, date)
	}

	if s.writer != nil && s.writerDate == date {
		s.writer.Close()
		s.writer = nil
	}

	if err := writeRecords(path, records); err != nil {
		return fmt.Errorf("feedback: rewrite %s: %w", date, err)
	}

	if s.writerDate == date {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return fmt.Errorf("feedback: reopen writer for %s: %w", date, err)
		}
		s.writer = f
	}
	return nil
}

// QueryDay returns every record stored for the given UTC date.
func (s *Store) QueryDay(date string) ([]Record, error) {
	return readRecords(s.pathForDate(date))
}

// QueryRecent scans today and up to 6 prior days, newest-first, up to
// limit records.
func (s *Store) QueryRecent(limit int) ([]Record, error) {
	out := make([]Record, 0, limit)
	now := time.Now().UTC()

	for day := 0; day <= 6 && len(out) < limit; day++ {
		date := timefmt.DayKey(now.AddDate(0, 0, -day))
		records, err := readRecords(s.pathForDate(date))
		if err != nil {
			continue
		}
		sort.Slice(records, func(i, j int) bool { return records[i].TS > records[j].TS })
		for _, r := range records {
			if len(out) >= limit {
				break
			}
			out = append(out, r)
		}
	}
	return out, nil
}

// Prune deletes daily files older than the configured retention.
func (s *Store) Prune() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("feedback: read dir: %w", err)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		date := trimJSONLExt(e.Name())
		t, err := time.Parse("2006-01-02", date)
		if err != nil {
			continue
		}
		if t.Before(cutoff) {
			_ = os.Remove(filepath.Join(s.dir, e.Name()))
		}
	}
	return nil
}

func trimJSONLExt(name string) string {
	const ext = ".jsonl"
	if len(name) > len(ext) && name[len(name)-len(ext):] == ext {
		return name[:len(name)-len(ext)]
	}
	return name
}

// Close closes the open writer, if any.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer == nil {
		return nil
	}
	err := s.writer.Close()
	s.writer = nil
	return err
}

func readRecords(path string) ([]Record, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, scanner.Err()
}

func writeRecords(path string, records []Record) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".feedback-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	w := bufio.NewWriter(tmp)
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return err
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return err
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}
