package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JakeFAU/vehicle-listing-crawler/internal/listing"
)

var defaultThresholds = Thresholds{MinYear: 2013, MaxKM: 150000, MaxPrice: 30000}

func TestApply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		rec     listing.Record
		skipped bool
		reason  string
	}{
		{
			name:    "price exceeded only",
			rec:     listing.Record{PriceEUR: listing.IntPtr(35000), KM: listing.IntPtr(50000), Year: listing.IntPtr(2019)},
			skipped: true,
			reason:  "price>30000",
		},
		{
			name: "accepted",
			rec:  listing.Record{PriceEUR: listing.IntPtr(18500), KM: listing.IntPtr(62400), Year: listing.IntPtr(2018)},
		},
		{
			name:    "boundaries are inclusive",
			rec:     listing.Record{PriceEUR: listing.IntPtr(30000), KM: listing.IntPtr(150000), Year: listing.IntPtr(2013)},
			skipped: false,
		},
		{
			name:    "all null",
			rec:     listing.Record{},
			skipped: true,
			reason:  "year<2013|km>150000|price>30000",
		},
		{
			name:    "old and high mileage",
			rec:     listing.Record{PriceEUR: listing.IntPtr(5000), KM: listing.IntPtr(210000), Year: listing.IntPtr(2009)},
			skipped: true,
			reason:  "year<2013|km>150000",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := defaultThresholds.Apply(tt.rec)
			assert.Equal(t, tt.skipped, got.Skipped)
			assert.Equal(t, tt.reason, got.SkipReason)
			assert.Equal(t, got, defaultThresholds.Apply(tt.rec), "apply must be deterministic")
		})
	}
}

func TestApplyDealerRating(t *testing.T) {
	t.Parallel()

	th := defaultThresholds
	th.MinDealerRating = 4
	low := 3.5
	rec := listing.Record{PriceEUR: listing.IntPtr(1), KM: listing.IntPtr(1), Year: listing.IntPtr(2020), DealerRating: &low}
	assert.Equal(t, "rating<4", th.Apply(rec).SkipReason)

	rec.DealerRating = nil
	assert.False(t, th.Apply(rec).Skipped, "missing rating is not a violation")
}

func TestApplyLeavesBlockedRecords(t *testing.T) {
	t.Parallel()

	rec := listing.Blocked("u", "Access Denied")
	assert.Equal(t, rec, defaultThresholds.Apply(rec))
}

func TestIsBlocked(t *testing.T) {
	t.Parallel()

	assert.True(t, IsBlocked("Access Denied", DefaultDenialPhrases))
	assert.True(t, IsBlocked("ZUGRIFF VERWEIGERT - mobile.de", DefaultDenialPhrases))
	assert.False(t, IsBlocked("Audi A4 para 18.500 €", DefaultDenialPhrases))
	assert.False(t, IsBlocked("", DefaultDenialPhrases))
	assert.False(t, IsBlocked("anything", []string{"", "  "}))
}
