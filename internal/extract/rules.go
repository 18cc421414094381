package extract

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/vehicle-listing-crawler/internal/listing"
)

// DefaultDenialPhrases are title fragments of the site's access-denied pages.
var DefaultDenialPhrases = []string{
	"access denied",
	"zugriff verweigert",
	"acceso denegado",
}

// Thresholds are the hard filters a record must pass to be kept.
type Thresholds struct {
	MinYear         int
	MaxKM           int
	MaxPrice        int
	MinDealerRating float64
}

// Violations lists the tags of every threshold rec fails. A missing year,
// mileage or price fails its rule. Dealer rating is only checked when both
// the threshold and the value are present.
func (t Thresholds) Violations(rec listing.Record) []string {
	var tags []string
	if rec.Year == nil || *rec.Year < t.MinYear {
		tags = append(tags, fmt.Sprintf("year<%d", t.MinYear))
	}
	if rec.KM == nil || *rec.KM > t.MaxKM {
		tags = append(tags, fmt.Sprintf("km>%d", t.MaxKM))
	}
	if rec.PriceEUR == nil || *rec.PriceEUR > t.MaxPrice {
		tags = append(tags, fmt.Sprintf("price>%d", t.MaxPrice))
	}
	if t.MinDealerRating > 0 && rec.DealerRating != nil && *rec.DealerRating < t.MinDealerRating {
		tags = append(tags, fmt.Sprintf("rating<%g", t.MinDealerRating))
	}
	return tags
}

// Apply returns rec with Skipped and SkipReason set from the thresholds.
// Blocked records are returned untouched.
func (t Thresholds) Apply(rec listing.Record) listing.Record {
	if rec.Blocked {
		return rec
	}
	tags := t.Violations(rec)
	rec.Skipped = len(tags) > 0
	rec.SkipReason = strings.Join(tags, "|")
	return rec
}

// IsBlocked reports whether title contains one of the denial phrases,
// ignoring case.
func IsBlocked(title string, phrases []string) bool {
	lower := strings.ToLower(title)
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" && strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
