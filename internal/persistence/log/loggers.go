// Package log keeps the durable history of a board: every planner record
// (queries, placements, releases) as JSON lines in hourly zstd files. The
// server appends, cmd/replay and cmd/admin read back with ReadRecordDir.
package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"gridnav.ai/internal/sim/planner"
)

const (
	recordDir    = "records"
	recordPrefix = "records"
	hourLayout   = "2006-01-02-15"
)

// RecordLogger appends planner records to
// <boardDir>/records/records-YYYY-MM-DD-HH.jsonl.zst, one record per line,
// switching file on the UTC hour of the write. Every line is flushed through
// to its zstd frame before WriteRecord returns, so a crash loses at most the
// unfinished frame. Reopening an hour after Close or a restart appends a new
// frame to the same file; ScanRecords reads concatenated frames.
//
// RecordLogger satisfies planner.Recorder and is safe for concurrent use.
type RecordLogger struct {
	dir string
	now func() time.Time

	mu   sync.Mutex
	hour string
	f    *os.File
	zw   *zstd.Encoder
	buf  *bufio.Writer
	enc  *json.Encoder
}

func NewRecordLogger(boardDir string) *RecordLogger {
	return &RecordLogger{
		dir: filepath.Join(boardDir, recordDir),
		now: time.Now,
	}
}

func (l *RecordLogger) WriteRecord(r planner.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if hour := l.now().UTC().Format(hourLayout); hour != l.hour {
		if err := l.openHourLocked(hour); err != nil {
			return fmt.Errorf("record log: %w", err)
		}
	}
	// Encode writes the trailing newline.
	if err := l.enc.Encode(r); err != nil {
		return fmt.Errorf("record log: %s %s: %w", r.Kind, r.ID, err)
	}
	if err := l.buf.Flush(); err != nil {
		return err
	}
	return l.zw.Flush()
}

func (l *RecordLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

func (l *RecordLogger) path(hour string) string {
	return filepath.Join(l.dir, fmt.Sprintf("%s-%s.jsonl.zst", recordPrefix, hour))
}

func (l *RecordLogger) openHourLocked(hour string) error {
	if err := l.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	l.f, l.zw = f, zw
	l.buf = bufio.NewWriterSize(zw, 64*1024)
	l.enc = json.NewEncoder(l.buf)
	l.hour = hour
	return nil
}

func (l *RecordLogger) closeLocked() error {
	if l.f == nil {
		return nil
	}
	err := l.buf.Flush()
	if cerr := l.zw.Close(); err == nil {
		err = cerr
	}
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f, l.zw, l.buf, l.enc = nil, nil, nil, nil
	l.hour = ""
	return err
}
