// Package local implements the durable on-disk files of a crawl: the
// discovered URL list, the CSV record file and a directory snapshot store.
package local

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/vehicle-listing-crawler/internal/listing"
)

// ErrFatalIO marks failures of the durable files. The pipeline cannot make
// progress without them, so callers stop the run.
var ErrFatalIO = errors.New("fatal storage error")

// URLList is the append-only file of canonical detail URLs, one per line.
type URLList struct {
	path        string
	tailChecked bool
}

// NewURLList returns a URLList stored at path.
func NewURLList(path string) *URLList {
	return &URLList{path: path}
}

// Path returns the file location.
func (l *URLList) Path() string {
	return l.path
}

// Load reads every canonical URL in the file. Blank lines, comments and a
// half-written trailing line are ignored; a missing file is an empty list.
func (l *URLList) Load(ctx context.Context) ([]string, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open url list: %w", ErrFatalIO, err)
	}
	defer f.Close() //nolint:errcheck // read-only

	terminated, _, err := endsWithNewline(f)
	if err != nil {
		return nil, err
	}
	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("load url list: %w", err)
		}
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read url list: %w", ErrFatalIO, err)
	}
	if !terminated && len(lines) > 0 {
		lines = lines[:len(lines)-1]
	}

	var urls []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		canon, ok := listing.Normalize(line)
		if !ok {
			continue
		}
		urls = append(urls, canon)
	}
	return urls, nil
}

// Append writes urls at the end of the file and syncs before returning. The
// first append drops a half-written trailing line left by a crash so the new
// URLs start on a line of their own.
func (l *URLList) Append(urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	if err := ensureDir(l.path); err != nil {
		return err
	}
	if err := l.repairTail(); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("%w: open url list for append: %w", ErrFatalIO, err)
	}
	w := bufio.NewWriter(f)
	for _, u := range urls {
		if _, err := w.WriteString(u + "\n"); err != nil {
			_ = f.Close()
			return fmt.Errorf("%w: write url list: %w", ErrFatalIO, err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: flush url list: %w", ErrFatalIO, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: sync url list: %w", ErrFatalIO, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close url list: %w", ErrFatalIO, err)
	}
	return nil
}

func (l *URLList) repairTail() error {
	if l.tailChecked {
		return nil
	}
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		l.tailChecked = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: open url list: %w", ErrFatalIO, err)
	}
	terminated, size, err := endsWithNewline(f)
	if err != nil {
		_ = f.Close()
		return err
	}
	var keep int64
	if !terminated {
		keep, err = lineStart(f, size)
	}
	_ = f.Close()
	if err != nil {
		return err
	}
	if !terminated {
		if err := truncateAt(l.path, keep); err != nil {
			return err
		}
	}
	l.tailChecked = true
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("%w: create directory %s: %w", ErrFatalIO, dir, err)
	}
	return nil
}
