package local

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/JakeFAU/vehicle-listing-crawler/internal/listing"
)

// RecordFile is the append-only CSV of extraction attempts.
type RecordFile struct {
	path        string
	logger      *zap.Logger
	tailChecked bool
}

// NewRecordFile returns a RecordFile stored at path.
func NewRecordFile(path string, logger *zap.Logger) *RecordFile {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordFile{path: path, logger: logger}
}

// Path returns the file location.
func (f *RecordFile) Path() string {
	return f.path
}

// EnsureHeader creates the file with a header row if it is missing or empty.
// A record left half-written by a crash is dropped first.
func (f *RecordFile) EnsureHeader() error {
	if err := f.repairTail(); err != nil {
		return err
	}
	info, err := os.Stat(f.path)
	switch {
	case err == nil && info.Size() > 0:
		return nil
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: stat record file: %w", ErrFatalIO, err)
	}
	return f.write(listing.Header())
}

// Append writes one record and flushes it to disk before returning.
func (f *RecordFile) Append(rec listing.Record) error {
	if err := f.EnsureHeader(); err != nil {
		return err
	}
	return f.write(rec.Row())
}

func (f *RecordFile) write(row []string) error {
	if err := ensureDir(f.path); err != nil {
		return err
	}
	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("%w: open record file: %w", ErrFatalIO, err)
	}
	w := csv.NewWriter(file)
	if err := w.Write(row); err != nil {
		_ = file.Close()
		return fmt.Errorf("%w: write record: %w", ErrFatalIO, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = file.Close()
		return fmt.Errorf("%w: flush record: %w", ErrFatalIO, err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return fmt.Errorf("%w: sync record file: %w", ErrFatalIO, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("%w: close record file: %w", ErrFatalIO, err)
	}
	return nil
}

// Scan streams every record to fn in file order. CSV rows that cannot be
// read are logged and skipped, as is a last row cut short by a crash; rows
// with bad field values are passed on with only their url set. A missing
// file yields no records.
func (f *RecordFile) Scan(ctx context.Context, fn func(listing.Record) error) error {
	file, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: open record file: %w", ErrFatalIO, err)
	}
	defer file.Close() //nolint:errcheck // read-only

	terminated, size, err := endsWithNewline(file)
	if err != nil {
		return err
	}
	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	head, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read record header: %w", ErrFatalIO, err)
	}
	index := make(map[string]int, len(head))
	for i, name := range head {
		index[name] = i
	}
	if _, ok := index["url"]; !ok {
		return fmt.Errorf("%w: record file %s has no url column", ErrFatalIO, f.path)
	}

	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("scan records: %w", err)
		}
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			f.logger.Warn("Skipping unreadable record row", zap.Int("line", line), zap.Error(err))
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: read record: %w", ErrFatalIO, err)
		}
		if !terminated && r.InputOffset() == size {
			f.logger.Warn("Skipping truncated last record", zap.Int("line", line))
			return nil
		}
		rec, err := listing.ParseRow(index, row)
		if err != nil {
			// Keep the url so the attempt still counts as made.
			f.logger.Warn("Malformed record row", zap.Int("line", line), zap.Error(err))
			rec = listing.Record{}
			if i := index["url"]; i < len(row) {
				rec.URL = row[i]
			}
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

// repairTail truncates an unterminated last record, once per RecordFile.
// Rows are written whole with a trailing newline, so a missing final newline
// means the write of the last row was cut short; appending after it would
// leave the new rows inside its open quoted field.
func (f *RecordFile) repairTail() error {
	if f.tailChecked {
		return nil
	}
	file, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		f.tailChecked = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: open record file: %w", ErrFatalIO, err)
	}
	start, torn, err := tornRecordStart(file)
	_ = file.Close()
	if err != nil {
		return err
	}
	if torn {
		if err := truncateAt(f.path, start); err != nil {
			return err
		}
		f.logger.Warn("Dropped truncated last record", zap.String("path", f.path), zap.Int64("offset", start))
	}
	f.tailChecked = true
	return nil
}

// tornRecordStart returns the offset where the unterminated last record of
// file begins, and whether there is one.
func tornRecordStart(file *os.File) (int64, bool, error) {
	terminated, _, err := endsWithNewline(file)
	if err != nil || terminated {
		return 0, false, err
	}
	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	var start int64
	for {
		offset := r.InputOffset()
		_, err := r.Read()
		if errors.Is(err, io.EOF) {
			return start, true, nil
		}
		var parseErr *csv.ParseError
		if err != nil && !errors.As(err, &parseErr) {
			return 0, false, fmt.Errorf("%w: read record file: %w", ErrFatalIO, err)
		}
		start = offset
	}
}

// ExtractedIDs returns the listing identifiers of every row in the file,
// whatever its blocked or skipped state.
func (f *RecordFile) ExtractedIDs(ctx context.Context) (map[string]struct{}, error) {
	ids := make(map[string]struct{})
	err := f.Scan(ctx, func(rec listing.Record) error {
		if id := rec.ID(); id != "" {
			ids[id] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
