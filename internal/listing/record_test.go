package listing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func headerIndex(cols []string) map[string]int {
	index := make(map[string]int, len(cols))
	for i, c := range cols {
		index[c] = i
	}
	return index
}

func TestRecordRowRoundTrip(t *testing.T) {
	t.Parallel()

	rating := 4.5
	rec := Record{
		URL:               "https://site/detalles.html?id=42",
		Title:             "Audi A4 para 18.500 €",
		Brand:             "Audi",
		Model:             "A4",
		PriceEUR:          IntPtr(18500),
		KM:                IntPtr(62400),
		KW:                IntPtr(110),
		CV:                IntPtr(150),
		Fuel:              "DIESEL",
		DealerRating:      &rating,
		FirstRegistration: "07/2018",
		Year:              IntPtr(2018),
	}
	row := rec.Row()
	require.Len(t, row, len(Header()))

	got, err := ParseRow(headerIndex(Header()), row)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
	assert.Equal(t, "42", got.ID())
}

func TestRowEncodesNullsAsEmpty(t *testing.T) {
	t.Parallel()

	row := Blocked("https://site/detalles.html?id=1", "Access Denied").Row()
	assert.Equal(t, []string{
		"https://site/detalles.html?id=1", "Access Denied", "", "", "", "", "", "", "", "", "", "",
		"true", "true", "blocked",
	}, row)
}

func TestParseRowToleratesLegacyColumns(t *testing.T) {
	t.Parallel()

	legacy := []string{"url", "title", "brand", "model", "price_eur", "km", "first_registration", "year", "blocked", "skipped", "skip_reason"}
	row := []string{"https://site/detalles.html?id=5", "Seat Ibiza", "Seat", "Ibiza", "9000", "", "03/2016", "2016.0", "False", "True", "km>150000"}

	got, err := ParseRow(headerIndex(legacy), row)
	require.NoError(t, err)
	assert.Equal(t, 9000, *got.PriceEUR)
	assert.Nil(t, got.KM)
	assert.Equal(t, 2016, *got.Year)
	assert.False(t, got.Blocked)
	assert.True(t, got.Skipped)
	assert.Nil(t, got.KW)
}

func TestParseRowRejectsGarbageNumbers(t *testing.T) {
	t.Parallel()

	_, err := ParseRow(map[string]int{"url": 0, "km": 1}, []string{"u", "lots"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "column km")
}

func TestPlaceholder(t *testing.T) {
	t.Parallel()

	rec := Placeholder("https://site/detalles.html?id=3", ReasonNavigationFailed)
	assert.True(t, rec.Skipped)
	assert.False(t, rec.Blocked)
	assert.Equal(t, ReasonNavigationFailed, rec.SkipReason)
	assert.Equal(t, "3", rec.ID())
}
