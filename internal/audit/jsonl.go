package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// partitionLayout names one partition file per UTC day.
const partitionLayout = "2006-01-02"

// DefaultDir is where audit partitions live relative to the project root.
const DefaultDir = ".build/logs/agents"

// Compile-time interface check.
var _ Sink = (*JSONLSink)(nil)

// JSONLSink writes records as JSON lines into <dir>/YYYY-MM-DD.jsonl.
// Writes to the same partition are serialized; different partitions do not
// contend.
type JSONLSink struct {
	dir string

	mu    sync.Mutex // guards locks
	locks map[string]*sync.Mutex
}

// NewJSONLSink creates the directory if needed.
func NewJSONLSink(dir string) (*JSONLSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audit: create %s: %w", dir, err)
	}
	return &JSONLSink{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

// Dir returns the partition directory.
func (s *JSONLSink) Dir() string {
	return s.dir
}

// PartitionPath returns the file a record stamped t is written to.
func (s *JSONLSink) PartitionPath(t time.Time) string {
	return filepath.Join(s.dir, t.UTC().Format(partitionLayout)+".jsonl")
}

func (s *JSONLSink) lock(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[path]
	if !ok {
		l = &sync.Mutex{}
		s.locks[path] = l
	}
	return l
}

// Append writes rec to the partition of rec.Timestamp.
func (s *JSONLSink) Append(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("audit: marshal record: %w", err)
	}
	line = append(line, '\n')

	path := s.PartitionPath(rec.Timestamp)
	l := s.lock(path)
	l.Lock()
	defer l.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("audit: open %s: %w", path, err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("audit: write %s: %w", path, err)
	}
	return f.Close()
}

// ReadPartition returns the records of one partition file. Malformed lines
// are skipped and counted.
func ReadPartition(path string) ([]Record, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("audit: open %s: %w", path, err)
	}
	defer f.Close()

	var (
		records []Record
		skipped int
	)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return records, skipped, fmt.Errorf("audit: read %s: %w", path, err)
	}
	return records, skipped, nil
}

// ReadMonth returns every record in partitions of the given month
// ("YYYY-MM"), in partition order.
func ReadMonth(dir, month string) ([]Record, int, error) {
	if _, err := time.Parse("2006-01", month); err != nil {
		return nil, 0, fmt.Errorf("audit: month must be YYYY-MM: %w", err)
	}
	matches, err := filepath.Glob(filepath.Join(dir, month+"-*.jsonl"))
	if err != nil {
		return nil, 0, err
	}
	sort.Strings(matches)

	var (
		all     []Record
		skipped int
	)
	for _, path := range matches {
		recs, n, err := ReadPartition(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, 0, err
		}
		all = append(all, recs...)
		skipped += n
	}
	return all, skipped, nil
}
