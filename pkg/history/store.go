// Package history persists session transcripts as append-only JSONL
// files: one header line followed by one chat record per line. The live
// pipeline appends; the replayer loads records back in stored order.
package history

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeplane/codeplane/pkg/record"
)

// Header is the first line of a transcript file.
type Header struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Cwd       string `json:"cwd,omitempty"`
	CreatedAt string `json:"createdAt"`
}

const headerType = "session"

// Store is a transcript backed by one JSONL file. A Store with an empty
// path keeps records in memory only.
type Store struct {
	mu      sync.Mutex
	path    string
	header  Header
	records []record.ChatRecord
	flushed bool
}

// NewStore creates an empty transcript at the given path.
func NewStore(path string) *Store {
	cwd, _ := os.Getwd()
	return &Store{
		path: path,
		header: Header{
			Type:      headerType,
			ID:        sessionIDFromPath(path),
			Cwd:       cwd,
			CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
		},
	}
}

// Load reads a transcript from disk. Blank and undecodable lines are
// skipped; the readable remainder of a partially corrupted file is still
// loaded.
func Load(path string) (*Store, error) {
	store := NewStore(path)
	if path == "" {
		return store, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return store, nil
		}
		return nil, err
	}

	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if header, ok := decodeHeader(line); ok {
			store.header = *header
			continue
		}
		var rec record.ChatRecord
		if err := json.Unmarshal(line, &rec); err != nil || rec.Role == "" {
			continue
		}
		store.records = append(store.records, rec)
	}
	store.flushed = true
	return store, nil
}

// ID returns the session id from the header.
func (s *Store) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.header.ID
}

// Records returns a copy of the stored records in order.
func (s *Store) Records() []record.ChatRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]record.ChatRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Append adds a record and writes it through to disk.
func (s *Store) Append(rec record.ChatRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, rec)
	if s.path == "" {
		return nil
	}

	if err := s.ensureFlushedLocked(); err != nil {
		return err
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	w.Write(data)
	w.WriteByte('\n')
	return w.Flush()
}

// ensureFlushedLocked writes the header line once before the first record
// hits disk.
func (s *Store) ensureFlushedLocked() error {
	if s.flushed {
		return nil
	}
	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create transcript directory: %w", err)
		}
	}
	data, err := json.Marshal(s.header)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write transcript header: %w", err)
	}
	s.flushed = true
	return nil
}

func decodeHeader(line []byte) (*Header, bool) {
	var header Header
	if err := json.Unmarshal(line, &header); err != nil {
		return nil, false
	}
	if header.Type != headerType {
		return nil, false
	}
	return &header, true
}

func sessionIDFromPath(path string) string {
	if path == "" {
		return uuid.NewString()
	}
	base := filepath.Base(path)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" || base == "." || base == "/" {
		return uuid.NewString()
	}
	return base
}
