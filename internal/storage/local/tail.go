package local

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// endsWithNewline reports whether f is empty or ends in '\n', along with its
// size. A file written by this package only ends elsewhere when a crash cut
// its last line short.
func endsWithNewline(f *os.File) (bool, int64, error) {
	info, err := f.Stat()
	if err != nil {
		return false, 0, fmt.Errorf("%w: stat %s: %w", ErrFatalIO, f.Name(), err)
	}
	size := info.Size()
	if size == 0 {
		return true, 0, nil
	}
	var last [1]byte
	if _, err := f.ReadAt(last[:], size-1); err != nil {
		return false, size, fmt.Errorf("%w: read tail of %s: %w", ErrFatalIO, f.Name(), err)
	}
	return last[0] == '\n', size, nil
}

// lineStart returns the offset just past the last '\n' before size, or 0.
func lineStart(f *os.File, size int64) (int64, error) {
	const chunk = 4096
	buf := make([]byte, chunk)
	end := size
	for end > 0 {
		start := end - chunk
		if start < 0 {
			start = 0
		}
		n, err := f.ReadAt(buf[:end-start], start)
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("%w: read %s: %w", ErrFatalIO, f.Name(), err)
		}
		for i := n - 1; i >= 0; i-- {
			if buf[i] == '\n' {
				return start + int64(i) + 1, nil
			}
		}
		end = start
	}
	return 0, nil
}

// truncateAt cuts the file at path down to size bytes and syncs it.
func truncateAt(path string, size int64) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("%w: open %s for repair: %w", ErrFatalIO, path, err)
	}
	if err := f.Truncate(size); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: truncate %s: %w", ErrFatalIO, path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: sync %s: %w", ErrFatalIO, path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrFatalIO, path, err)
	}
	return nil
}
