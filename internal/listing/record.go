package listing

import (
	"fmt"
	"strconv"
	"strings"
)

// Skip reasons that are not acceptance-rule tags.
const (
	ReasonBlocked          = "blocked"
	ReasonNavigationFailed = "navigation_failed"
)

// Record is one extraction attempt for a detail page. Nil pointers are
// fields the page did not yield.
type Record struct {
	URL               string   `json:"url"`
	Title             string   `json:"title"`
	Brand             string   `json:"brand,omitempty"`
	Model             string   `json:"model,omitempty"`
	PriceEUR          *int     `json:"price_eur,omitempty"`
	KM                *int     `json:"km,omitempty"`
	KW                *int     `json:"kw,omitempty"`
	CV                *int     `json:"cv,omitempty"`
	Fuel              string   `json:"fuel,omitempty"`
	DealerRating      *float64 `json:"dealer_rating,omitempty"`
	FirstRegistration string   `json:"first_registration,omitempty"`
	Year              *int     `json:"year,omitempty"`
	Blocked           bool     `json:"blocked"`
	Skipped           bool     `json:"skipped"`
	SkipReason        string   `json:"skip_reason,omitempty"`
}

var header = []string{
	"url",
	"title",
	"brand",
	"model",
	"price_eur",
	"km",
	"kw",
	"cv",
	"fuel",
	"dealer_rating",
	"first_registration",
	"year",
	"blocked",
	"skipped",
	"skip_reason",
}

// Header returns the CSV column names in file order.
func Header() []string {
	out := make([]string, len(header))
	copy(out, header)
	return out
}

// ID returns the listing identifier of the record's URL.
func (r Record) ID() string {
	return ExtractID(r.URL)
}

// Row encodes the record in Header order.
func (r Record) Row() []string {
	return []string{
		r.URL,
		r.Title,
		r.Brand,
		r.Model,
		formatInt(r.PriceEUR),
		formatInt(r.KM),
		formatInt(r.KW),
		formatInt(r.CV),
		r.Fuel,
		formatFloat(r.DealerRating),
		r.FirstRegistration,
		formatInt(r.Year),
		strconv.FormatBool(r.Blocked),
		strconv.FormatBool(r.Skipped),
		r.SkipReason,
	}
}

// ParseRow decodes a CSV row using the column positions in index. Columns
// missing from index decode as empty, which keeps older files readable.
func ParseRow(index map[string]int, row []string) (Record, error) {
	get := func(name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}
	var (
		rec Record
		err error
	)
	rec.URL = get("url")
	rec.Title = get("title")
	rec.Brand = get("brand")
	rec.Model = get("model")
	rec.Fuel = get("fuel")
	rec.FirstRegistration = get("first_registration")
	rec.SkipReason = get("skip_reason")
	for _, f := range []struct {
		name string
		dst  **int
	}{
		{"price_eur", &rec.PriceEUR},
		{"km", &rec.KM},
		{"kw", &rec.KW},
		{"cv", &rec.CV},
		{"year", &rec.Year},
	} {
		if *f.dst, err = parseInt(get(f.name)); err != nil {
			return Record{}, fmt.Errorf("column %s: %w", f.name, err)
		}
	}
	if rec.DealerRating, err = parseFloat(get("dealer_rating")); err != nil {
		return Record{}, fmt.Errorf("column dealer_rating: %w", err)
	}
	rec.Blocked = parseBool(get("blocked"))
	rec.Skipped = parseBool(get("skipped"))
	return rec, nil
}

// Blocked builds the record written for a denial page.
func Blocked(url, title string) Record {
	return Record{
		URL:        url,
		Title:      title,
		Blocked:    true,
		Skipped:    true,
		SkipReason: ReasonBlocked,
	}
}

// Placeholder builds the record written when a page could not be loaded.
func Placeholder(url, reason string) Record {
	return Record{
		URL:        url,
		Skipped:    true,
		SkipReason: reason,
	}
}

// IntPtr is a convenience for building records in code and tests.
func IntPtr(v int) *int {
	return &v
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func parseInt(s string) (*int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	// Files written by older tooling may carry floats such as "2018.0".
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		v := int(f)
		return &v, nil
	}
	return nil, fmt.Errorf("parse %q as integer", s)
}

func parseFloat(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("parse %q as float: %w", s, err)
	}
	return &f, nil
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}
