package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadscout-engine/internal/domain"
)

func TestNormalize_AssemblesAddress(t *testing.T) {
	rec := Record{
		"Street Number":      "100",
		"Street Dir Prefix":  "N",
		"Street Name":        "Oak",
		"Street Suffix":      "St",
		"Unit Number":        "",
		"City":               "Fort Worth",
		"Zip Code":           "76102",
		"Current Price":      "$225,000",
		"Status Change Date": "2026-08-28",
	}

	l, ok := Normalize(rec, "TX", "export_aug.csv")
	require.True(t, ok)
	assert.Equal(t, "100 N Oak St", l.Address)
	assert.Equal(t, "TX", l.State)
	assert.Equal(t, "export_aug.csv", l.SourceFile)
	assert.Equal(t, 225000.0, l.Parsed.Price)
	assert.True(t, l.Parsed.ExpiredOK)
}

func TestNormalize_DropsEmptyAddress(t *testing.T) {
	rec := Record{
		"Street Number": "  ",
		"Street Name":   "",
		"City":          "Dallas",
	}

	_, ok := Normalize(rec, "TX", "f.csv")
	assert.False(t, ok)
}

func TestParseNumbers(t *testing.T) {
	tests := []struct {
		name string
		in   domain.Listing
		want domain.ParsedFields
	}{
		{
			name: "clean values",
			in: domain.Listing{
				Price: "$189,900", DOM: "120", CDOM: "240",
				Beds: "3", YearBuilt: "1998", StatusDate: "8/25/2026",
			},
			want: domain.ParsedFields{
				Price: 189900, DOM: 120, CDOM: 240, Beds: 3, YearBuilt: 1998,
				Expired: time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC), ExpiredOK: true,
			},
		},
		{
			name: "garbage falls back",
			in: domain.Listing{
				Price: "call agent", DOM: "n/a", CDOM: "", Beds: "-2",
				YearBuilt: "unknown", StatusDate: "soon",
			},
			want: domain.ParsedFields{YearBuilt: 2000},
		},
		{
			name: "empty listing",
			in:   domain.Listing{},
			want: domain.ParsedFields{YearBuilt: 2000},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseNumbers(tt.in))
		})
	}
}

func TestParseDate_Layouts(t *testing.T) {
	for _, s := range []string{"1/2/2026", "01/02/2026", "2026-01-02", "1/2/26"} {
		got, ok := parseDate(s)
		require.True(t, ok, s)
		assert.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), got, s)
	}

	_, ok := parseDate("")
	assert.False(t, ok)
}
