package discovery

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Range is an inclusive span of first-registration years.
type Range struct {
	From int `json:"from"`
	To   int `json:"to"`
}

func (r Range) String() string {
	return fmt.Sprintf("%d-%d", r.From, r.To)
}

// SearchURL builds result-listing URLs from a fixed base query.
type SearchURL struct {
	Base      string
	Params    url.Values
	Repeated  map[string][]string
	FromParam string
	ToParam   string
}

// DefaultPageParam is the query parameter the site paginates with.
const DefaultPageParam = "pageNumber"

// ForRange returns the search URL restricted to r.
func (s SearchURL) ForRange(r Range) (string, error) {
	u, err := url.Parse(s.Base)
	if err != nil {
		return "", fmt.Errorf("parse search base %q: %w", s.Base, err)
	}
	q := u.Query()
	for key, values := range s.Params {
		q[key] = append([]string(nil), values...)
	}
	for key, values := range s.Repeated {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	q.Set(orDefault(s.FromParam, "fr"), strconv.Itoa(r.From))
	q.Set(orDefault(s.ToParam, "to"), strconv.Itoa(r.To))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// WithPage sets param to page in raw's query, keeping the other parameters.
func WithPage(raw, param string, page int) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse search url %q: %w", raw, err)
	}
	q := u.Query()
	q.Set(param, strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

// ReadSearchList returns the search URLs in the file at path, one per line.
// Blank lines and lines starting with '#' are ignored, and surrounding quotes
// are trimmed. A missing file yields no searches.
func ReadSearchList(ctx context.Context, path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open search list: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only

	var out []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("read search list: %w", err)
		}
		line := strings.Trim(strings.TrimSpace(scanner.Text()), `"'`)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read search list: %w", err)
	}
	return out, nil
}

// WriteSearchList replaces the file at path with urls, one per line.
func WriteSearchList(path string, urls []string) error {
	var b strings.Builder
	for _, u := range urls {
		b.WriteString(u)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil { //nolint:gosec // not secret
		return fmt.Errorf("write search list: %w", err)
	}
	return nil
}

func sortRanges(ranges []Range) {
	sort.Slice(ranges, func(i, j int) bool {
		if ranges[i].From != ranges[j].From {
			return ranges[i].From < ranges[j].From
		}
		return ranges[i].To < ranges[j].To
	})
}
