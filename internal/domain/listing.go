package domain

import "time"

// Listing is the normalized, pipeline-internal form of one export row.
// Created once during ingest; immutable afterward except for the fields the
// scorer and the skip-trace enrichment attach later.
type Listing struct {
	Address    string // assembled from street number/direction/name/suffix/unit
	City       string
	Zip        string
	State      string
	Price      string // raw currency string as exported ("$249,900")
	ListDate   string
	StatusDate string // expiration / last status change
	DOM        string
	CDOM       string
	Beds       string
	Baths      string
	SqFt       string
	YearBuilt  string
	AgentName  string
	OfficeName string
	MLSNumber  string
	PropType   string
	Status     string
	SourceFile string

	// Parsed is filled by ingest.ParseNumbers so downstream code never
	// re-parses the raw strings.
	Parsed ParsedFields

	// Attached by the scorer.
	UrgencyScore float64

	// Attached by skip-trace enrichment, empty when no match was found.
	OwnerName     string
	OwnerPhone    string
	OwnerEmail    string
	OwnerMailAddr string
}

// ParsedFields are the typed views of the string-typed export columns.
// Zero values mean "absent or unparseable"; ExpiredOK distinguishes a real
// date from a missing one.
type ParsedFields struct {
	Price     float64
	DOM       int
	CDOM      int
	Beds      int
	YearBuilt int
	Expired   time.Time
	ExpiredOK bool
}

// Enriched reports whether any owner contact info was attached.
func (l Listing) Enriched() bool {
	return l.OwnerName != "" || l.OwnerPhone != "" || l.OwnerEmail != "" || l.OwnerMailAddr != ""
}

// ContactRecord is one row of a skip-trace result file, keyed by the
// service's normalized header names.
type ContactRecord map[string]string

// MatchConfidence grades a listing<->contact association. Only Weak exists
// today: the match-back heuristic is a first-token prefix overlap, not a
// scored linkage.
type MatchConfidence string

const ConfidenceWeak MatchConfidence = "weak"

// MatchResult records which contact row was attached to which listing and
// how much the association should be trusted.
type MatchResult struct {
	ListingAddress string
	ContactAddress string
	Confidence     MatchConfidence
}

// Analysis is the structured output of the text-analysis collaborator.
type Analysis struct {
	WhyNotSold    string   `json:"whyNotSold"`
	Angle         string   `json:"angle"`
	TalkingPoints []string `json:"talkingPoints"`
	Placeholder   bool     `json:"placeholder,omitempty"`
}
