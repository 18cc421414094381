package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractAudiExample(t *testing.T) {
	t.Parallel()

	doc := Document{
		Title: "Audi A4 para 18.500 €",
		Body:  "Kilometraje\n62.400 km\nPrimera matriculación\n07/2018\n110 kW (150 CV)\nDiésel",
	}
	rec := NewExtractor("").Extract("https://site/detalles.html?id=42", doc)

	assert.Equal(t, "Audi", rec.Brand)
	assert.Equal(t, "A4", rec.Model)
	require.NotNil(t, rec.PriceEUR)
	assert.Equal(t, 18500, *rec.PriceEUR)
	require.NotNil(t, rec.KM)
	assert.Equal(t, 62400, *rec.KM)
	assert.Equal(t, "07/2018", rec.FirstRegistration)
	require.NotNil(t, rec.Year)
	assert.Equal(t, 2018, *rec.Year)
	assert.Equal(t, 110, *rec.KW)
	assert.Equal(t, 150, *rec.CV)
	assert.Equal(t, "DIESEL", rec.Fuel)
	assert.Equal(t, "Audi A4 para 18.500 €", rec.Title)
}

func TestExtractMissingFieldsAreNil(t *testing.T) {
	t.Parallel()

	rec := NewExtractor("para").Extract("u", Document{Title: "mobile.de", Body: "nothing useful here"})
	assert.Empty(t, rec.Brand)
	assert.Empty(t, rec.Model)
	assert.Nil(t, rec.PriceEUR)
	assert.Nil(t, rec.KM)
	assert.Nil(t, rec.Year)
	assert.Empty(t, rec.FirstRegistration)
	assert.Nil(t, rec.KW)
	assert.Nil(t, rec.CV)
	assert.Empty(t, rec.Fuel)
	assert.Nil(t, rec.DealerRating)
}

func TestExtractPriceFallbacks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		doc   Document
		price int
	}{
		{"separator with decimals", Document{Title: "Seat Ibiza para 9.990,00 €"}, 9990},
		{"currency in title without separator", Document{Title: "Seat Ibiza 12 300 € mobile.de"}, 12300},
		{"currency prefix", Document{Title: "VW Golf € 15.000"}, 15000},
		{"body fallback", Document{Title: "VW Golf", Body: "Precio\n21.450 €\n"}, 21450},
	}
	ex := NewExtractor("")
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := ex.Extract("u", tt.doc)
			require.NotNil(t, rec.PriceEUR)
			assert.Equal(t, tt.price, *rec.PriceEUR)
		})
	}
}

func TestExtractRegistrationFallsBackToBareYear(t *testing.T) {
	t.Parallel()

	rec := NewExtractor("").Extract("u", Document{Body: "Año\n2016\n98.000 km"})
	assert.Equal(t, "2016", rec.FirstRegistration)
	assert.Equal(t, 2016, *rec.Year)
	assert.Equal(t, 98000, *rec.KM)
}

func TestExtractMonthYearWinsOverEarlierBareYear(t *testing.T) {
	t.Parallel()

	rec := NewExtractor("").Extract("u", Document{Body: "Modelo 2019\nMatriculación 3/2017"})
	assert.Equal(t, "03/2017", rec.FirstRegistration)
	assert.Equal(t, 2017, *rec.Year)
}

func TestExtractMileageIgnoresYearPrefix(t *testing.T) {
	t.Parallel()

	rec := NewExtractor("").Extract("u", Document{Body: "2018 120 000 km"})
	require.NotNil(t, rec.KM)
	assert.Equal(t, 120000, *rec.KM)
}

func TestExtractPowerDerivesMissingUnit(t *testing.T) {
	t.Parallel()

	ex := NewExtractor("")

	onlyKW := ex.Extract("u", Document{Body: "Potencia 85 kW"})
	assert.Equal(t, 85, *onlyKW.KW)
	assert.Equal(t, 116, *onlyKW.CV)

	onlyCV := ex.Extract("u", Document{Body: "Potencia 150 CV"})
	assert.Equal(t, 150, *onlyCV.CV)
	assert.Equal(t, 110, *onlyCV.KW)
}

func TestExtractFuelPriority(t *testing.T) {
	t.Parallel()

	ex := NewExtractor("")
	tests := map[string]string{
		"Combustible: Gasolina":          "PETROL",
		"Diesel, cambio manual":          "DIESEL",
		"Híbrido (gasolina/eléctrico)":   "PETROL",
		"Eléctrico":                      "ELECTRIC",
		"Kraftstoff: Elektro":            "ELECTRIC",
		"Autogas (LPG)":                  "LPG",
		"Combustible no indicado":        "",
		"Hybrid":                         "HYBRID",
	}
	for body, want := range tests {
		assert.Equal(t, want, ex.Extract("u", Document{Body: body}).Fuel, body)
	}
}

func TestExtractDealerRating(t *testing.T) {
	t.Parallel()

	rec := NewExtractor("").Extract("u", Document{Body: "Autohaus Müller\n4,5 estrellas (123)"})
	require.NotNil(t, rec.DealerRating)
	assert.InDelta(t, 4.5, *rec.DealerRating, 0.001)
}

func TestExtractCustomSeparator(t *testing.T) {
	t.Parallel()

	rec := NewExtractor("für").Extract("u", Document{Title: "BMW 320d Touring für 17.900 €"})
	assert.Equal(t, "BMW", rec.Brand)
	assert.Equal(t, "320d Touring", rec.Model)
	assert.Equal(t, 17900, *rec.PriceEUR)
}

func TestFirstMatchOrder(t *testing.T) {
	t.Parallel()

	rules := []Rule{
		ruleFunc(func(Document) (string, bool) { return "", false }),
		ruleFunc(func(Document) (string, bool) { return "second", true }),
		ruleFunc(func(Document) (string, bool) { return "third", true }),
	}
	got, ok := FirstMatch(rules, Document{})
	assert.True(t, ok)
	assert.Equal(t, "second", got)
}

type ruleFunc func(doc Document) (string, bool)

func (f ruleFunc) Match(doc Document) (string, bool) { return f(doc) }
