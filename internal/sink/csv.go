package sink

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/rei-strategy/bots/internal/types"
)

// CSVSink appends rows to a local CSV file with a fixed header. The file is
// the durable ledger between runs, so every Append lands on disk before
// returning.
type CSVSink struct {
	path   string
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
	count  int
	logger *slog.Logger
}

// NewCSVSink opens or creates the CSV file, writing the header on creation.
func NewCSVSink(path string, logger *slog.Logger) (*CSVSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sink directory: %w", err)
		}
	}

	info, statErr := os.Stat(path)
	fresh := errors.Is(statErr, os.ErrNotExist) || (statErr == nil && info.Size() == 0)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, &types.SinkError{Backend: "csv", Err: err}
	}

	s := &CSVSink{
		path:   path,
		file:   file,
		writer: csv.NewWriter(file),
		logger: logger.With("component", "csv_sink", "path", path),
	}

	if fresh {
		if err := s.writer.Write(Columns); err != nil {
			file.Close()
			return nil, &types.SinkError{Backend: "csv", Err: err}
		}
		s.writer.Flush()
		if err := s.writer.Error(); err != nil {
			file.Close()
			return nil, &types.SinkError{Backend: "csv", Err: err}
		}
	}
	return s, nil
}

func (s *CSVSink) Append(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writer.Write(rec.values()); err != nil {
		return &types.SinkError{Backend: "csv", Err: err}
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return &types.SinkError{Backend: "csv", Err: err}
	}
	if err := s.file.Sync(); err != nil {
		return &types.SinkError{Backend: "csv", Err: err}
	}

	s.count++
	s.logger.Debug("record appended", "source", rec.Source, "property", rec.Property, "total", s.count)
	return nil
}

func (s *CSVSink) Rows(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAll()
}

func (s *CSVSink) readAll() ([]Record, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, &types.SinkError{Backend: "csv", Err: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var records []Record
	header := true
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &types.SinkError{Backend: "csv", Err: err}
		}
		if header {
			header = false
			continue
		}
		rec, err := fromValues(row)
		if err != nil {
			s.logger.Warn("skipping malformed row", "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *CSVSink) LastForSource(ctx context.Context, source string) (Record, bool, error) {
	rows, err := s.Rows(ctx)
	if err != nil {
		return Record{}, false, err
	}
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].Source == source {
			return rows[i], true, nil
		}
	}
	return Record{}, false, nil
}

// Update rewrites the whole file through a temp-and-rename so a crash
// mid-update cannot truncate the ledger.
func (s *CSVSink) Update(ctx context.Context, match, updated Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.readAll()
	if err != nil {
		return err
	}

	found := false
	for i := range rows {
		if sameIdentity(rows[i], match) {
			rows[i] = updated
			found = true
			break
		}
	}
	if !found {
		return &types.SinkError{Backend: "csv", Err: fmt.Errorf("no row matches %s/%s", match.Source, match.Property)}
	}

	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return &types.SinkError{Backend: "csv", Err: err}
	}

	w := csv.NewWriter(f)
	if err := w.Write(Columns); err == nil {
		for _, rec := range rows {
			if err = w.Write(rec.values()); err != nil {
				break
			}
		}
	}
	w.Flush()
	if err := firstErr(err, w.Error(), f.Sync(), f.Close()); err != nil {
		os.Remove(tmp)
		return &types.SinkError{Backend: "csv", Err: err}
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return &types.SinkError{Backend: "csv", Err: err}
	}

	// The append handle now points at the replaced inode; reopen it.
	s.file.Close()
	file, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return &types.SinkError{Backend: "csv", Err: err}
	}
	s.file = file
	s.writer = csv.NewWriter(file)
	return nil
}

func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writer.Flush()
	s.logger.Info("csv sink closing", "appended", s.count)
	return firstErr(s.writer.Error(), s.file.Close())
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
