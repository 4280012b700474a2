package ingest

import (
	"strconv"
	"strings"
	"time"

	"leadscout-engine/internal/domain"
)

// Column names of the MLS expired-listing export. The source schema is
// fixed; columns absent from a given file just map to "".
const (
	colStreetNum    = "Street Number"
	colStreetDirPre = "Street Dir Prefix"
	colStreetName   = "Street Name"
	colStreetSuffix = "Street Suffix"
	colStreetDirSuf = "Street Dir Suffix"
	colUnit         = "Unit Number"
	colCity         = "City"
	colZip          = "Zip Code"
	colPrice        = "Current Price"
	colListDate     = "List Date"
	colStatusDate   = "Status Change Date"
	colDOM          = "DOM"
	colCDOM         = "CDOM"
	colBeds         = "Beds"
	colBaths        = "Baths Total"
	colSqFt         = "SqFt Total"
	colYearBuilt    = "Year Built"
	colAgent        = "List Agent Full Name"
	colOffice       = "List Office Name"
	colMLS          = "MLS Number"
	colPropType     = "Property Type"
	colStatus       = "Status"
)

// defaultYearBuilt stands in when the export has no usable year; it keeps
// the age factor in a neutral middle band instead of treating the home as
// 2000+ years old.
const defaultYearBuilt = 2000

// Normalize maps one export row to a Listing. Returns ok=false when the
// assembled address is empty; such rows are dropped.
func Normalize(rec Record, marketState, sourceFile string) (domain.Listing, bool) {
	addr := assembleAddress(rec)
	if addr == "" {
		return domain.Listing{}, false
	}

	l := domain.Listing{
		Address:    addr,
		City:       rec[colCity],
		Zip:        rec[colZip],
		State:      marketState,
		Price:      rec[colPrice],
		ListDate:   rec[colListDate],
		StatusDate: rec[colStatusDate],
		DOM:        rec[colDOM],
		CDOM:       rec[colCDOM],
		Beds:       rec[colBeds],
		Baths:      rec[colBaths],
		SqFt:       rec[colSqFt],
		YearBuilt:  rec[colYearBuilt],
		AgentName:  rec[colAgent],
		OfficeName: rec[colOffice],
		MLSNumber:  rec[colMLS],
		PropType:   rec[colPropType],
		Status:     rec[colStatus],
		SourceFile: sourceFile,
	}
	l.Parsed = ParseNumbers(l)
	return l, true
}

// assembleAddress joins the street sub-fields with single spaces, skipping
// empty components.
func assembleAddress(rec Record) string {
	parts := []string{
		rec[colStreetNum],
		rec[colStreetDirPre],
		rec[colStreetName],
		rec[colStreetSuffix],
		rec[colStreetDirSuf],
		rec[colUnit],
	}
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

// ParseNumbers converts the string-typed columns into typed fields once, so
// the scorer and store never re-parse raw strings. Unparseable values become
// zero, except YearBuilt which falls back to defaultYearBuilt.
func ParseNumbers(l domain.Listing) domain.ParsedFields {
	p := domain.ParsedFields{
		Price:     parsePrice(l.Price),
		DOM:       atoiOrZero(l.DOM),
		CDOM:      atoiOrZero(l.CDOM),
		Beds:      atoiOrZero(l.Beds),
		YearBuilt: defaultYearBuilt,
	}
	if y, err := strconv.Atoi(strings.TrimSpace(l.YearBuilt)); err == nil && y > 0 {
		p.YearBuilt = y
	}
	if t, ok := parseDate(l.StatusDate); ok {
		p.Expired = t
		p.ExpiredOK = true
	}
	return p
}

func parsePrice(s string) float64 {
	clean := strings.NewReplacer("$", "", ",", "", " ", "").Replace(strings.TrimSpace(s))
	if clean == "" {
		return 0
	}
	f, err := strconv.ParseFloat(clean, 64)
	if err != nil || f < 0 {
		return 0
	}
	return f
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

var dateLayouts = []string{
	"1/2/2006",
	"01/02/2006",
	"2006-01-02",
	"1/2/06",
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
