package extract

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/vehicle-listing-crawler/internal/listing"
)

// KWToCV converts kilowatts to metric horsepower.
const KWToCV = 1.3596

// DefaultTitleSeparator splits "<brand> <model> para <price> €" titles.
const DefaultTitleSeparator = "para"

// Thousands groups may be split by dots, commas or (narrow) no-break spaces.
const group = `\b(\d{1,3}(?:[., \x{00A0}\x{202F}]\d{3})+|\d+)`

var (
	currencyAfter  = regexp.MustCompile(group + `(?:,\d{1,2})?\s*(?:€|EUR\b)`)
	currencyBefore = regexp.MustCompile(`(?:€|EUR)\s*` + group)
	mileage        = regexp.MustCompile(`(?i)` + group + `\s?km\b`)
	monthYear      = regexp.MustCompile(`\b(0?[1-9]|1[0-2])\s*/\s*((?:19|20)\d{2})\b`)
	bareYear       = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)
	powerPair      = regexp.MustCompile(`(?i)\b(\d{2,4})\s*kW\s*\(\s*(\d{2,4})\s*(?:CV|PS|ch|hp)\s*\)`)
	powerKW        = regexp.MustCompile(`(?i)\b(\d{2,4})\s*kW\b`)
	powerCV        = regexp.MustCompile(`(?i)\b(\d{2,4})\s*(?:CV|PS)\b`)
	dealerRating   = regexp.MustCompile(`(?i)\b([0-5](?:[.,]\d)?)\s*(?:estrellas|stars|sterne)\b`)
)

var (
	mileageRules = []Rule{
		regexRule{source: FromBody, pattern: mileage, group: 1, perLine: true},
		regexRule{source: FromTitle, pattern: mileage, group: 1},
	}
	registrationRules = []Rule{
		regexRule{source: FromBody, pattern: monthYear, perLine: true, format: formatMonthYear},
		regexRule{source: FromBody, pattern: bareYear, group: 1, perLine: true},
	}
	kwRules = []Rule{
		regexRule{source: FromBody, pattern: powerPair, group: 1},
		regexRule{source: FromBody, pattern: powerKW, group: 1},
	}
	cvRules = []Rule{
		regexRule{source: FromBody, pattern: powerPair, group: 2},
		regexRule{source: FromBody, pattern: powerCV, group: 1},
	}
	ratingRules = []Rule{
		regexRule{source: FromBody, pattern: dealerRating, group: 1},
	}
	fuelRules = []Rule{
		fuel(`gasolina|benzin|petrol|gasoline`, "PETROL"),
		fuel(`di[eé]sel`, "DIESEL"),
		fuel(`h[ií]brido|hybrid`, "HYBRID"),
		fuel(`el[eé]ctrico|elektro|electric`, "ELECTRIC"),
		fuel(`glp|lpg|autogas`, "LPG"),
		fuel(`gnc|cng|erdgas`, "CNG"),
	}
)

func fuel(words, value string) Rule {
	return keywordRule{
		source:  FromBody,
		pattern: regexp.MustCompile(`(?i)\b(?:` + words + `)\b`),
		value:   value,
	}
}

func formatMonthYear(groups []string) string {
	month, err := strconv.Atoi(groups[1])
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%02d/%s", month, groups[2])
}

// Extractor holds the ordered rule lists for every field.
type Extractor struct {
	separator  *regexp.Regexp
	priceRules []Rule
}

// NewExtractor builds an Extractor for titles that use separator between the
// vehicle name and the price ("para" on the Spanish site).
func NewExtractor(separator string) *Extractor {
	separator = strings.TrimSpace(separator)
	if separator == "" {
		separator = DefaultTitleSeparator
	}
	quoted := regexp.QuoteMeta(separator)
	titlePrice := regexp.MustCompile(`(?i)\s` + quoted + `\s+` + group + `(?:,\d{1,2})?\s*€`)
	return &Extractor{
		separator: regexp.MustCompile(`(?i)\s+` + quoted + `\s+`),
		priceRules: []Rule{
			regexRule{source: FromTitle, pattern: titlePrice, group: 1},
			regexRule{source: FromTitle, pattern: currencyAfter, group: 1},
			regexRule{source: FromTitle, pattern: currencyBefore, group: 1},
			regexRule{source: FromBody, pattern: currencyAfter, group: 1, perLine: true},
		},
	}
}

// Extract fills the parsed fields of a record for url from doc. Fields with
// no matching rule stay nil or empty.
func (e *Extractor) Extract(url string, doc Document) listing.Record {
	rec := listing.Record{
		URL:   url,
		Title: strings.TrimSpace(doc.Title),
	}
	rec.Brand, rec.Model = e.brandModel(doc.Title)
	rec.PriceEUR = digits(FirstMatch(e.priceRules, doc))
	rec.KM = digits(FirstMatch(mileageRules, doc))

	if token, ok := FirstMatch(registrationRules, doc); ok {
		rec.FirstRegistration = token
		rec.Year = digits(token[len(token)-4:], true)
	}

	rec.KW = digits(FirstMatch(kwRules, doc))
	rec.CV = digits(FirstMatch(cvRules, doc))
	switch {
	case rec.KW != nil && rec.CV == nil:
		rec.CV = listing.IntPtr(int(math.Round(float64(*rec.KW) * KWToCV)))
	case rec.CV != nil && rec.KW == nil:
		rec.KW = listing.IntPtr(int(math.Round(float64(*rec.CV) / KWToCV)))
	}

	rec.Fuel, _ = FirstMatch(fuelRules, doc)

	if v, ok := FirstMatch(ratingRules, doc); ok {
		if f, err := strconv.ParseFloat(strings.Replace(v, ",", ".", 1), 64); err == nil {
			rec.DealerRating = &f
		}
	}
	return rec
}

func (e *Extractor) brandModel(title string) (string, string) {
	parts := e.separator.Split(strings.TrimSpace(title), 2)
	if len(parts) < 2 {
		return "", ""
	}
	tokens := strings.Fields(parts[0])
	if len(tokens) == 0 {
		return "", ""
	}
	return tokens[0], strings.Join(tokens[1:], " ")
}

// digits keeps only the decimal digits of s.
func digits(s string, ok bool) *int {
	if !ok {
		return nil
	}
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return nil
	}
	v, err := strconv.Atoi(b.String())
	if err != nil {
		return nil
	}
	return &v
}
