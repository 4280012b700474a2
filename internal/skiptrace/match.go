package skiptrace

import (
	"strings"

	"leadscout-engine/internal/domain"
)

// MatchBack associates downloaded contact rows with listings by a loose
// address heuristic: first whitespace token of one address appearing as a
// substring of the other, case-insensitive. First match wins — this is not
// a unique join, multiple listings can land on the same contact, and common
// street-name prefixes can false-positive. Every match is therefore graded
// ConfidenceWeak.
func MatchBack(listings []domain.Listing, contacts []domain.ContactRecord) ([]domain.Listing, []domain.MatchResult) {
	var matches []domain.MatchResult

	for i := range listings {
		for _, ct := range contacts {
			ctAddr := contactAddress(ct)
			if ctAddr == "" || !addressesOverlap(listings[i].Address, ctAddr) {
				continue
			}
			attachOwner(&listings[i], ct)
			matches = append(matches, domain.MatchResult{
				ListingAddress: listings[i].Address,
				ContactAddress: ctAddr,
				Confidence:     domain.ConfidenceWeak,
			})
			break
		}
	}
	return listings, matches
}

func contactAddress(ct domain.ContactRecord) string {
	for _, k := range []string{"address", "property_address", "street_address"} {
		if v := strings.TrimSpace(ct[k]); v != "" {
			return v
		}
	}
	return ""
}

func addressesOverlap(listingAddr, contactAddr string) bool {
	a := strings.ToLower(strings.TrimSpace(listingAddr))
	b := strings.ToLower(strings.TrimSpace(contactAddr))
	if a == "" || b == "" {
		return false
	}
	if tok := firstToken(b); tok != "" && strings.Contains(a, tok) {
		return true
	}
	if tok := firstToken(a); tok != "" && strings.Contains(b, tok) {
		return true
	}
	return false
}

func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// attachOwner copies contact fields onto the listing. Name prefers the
// combined field, phone follows mobile > landline > generic priority.
func attachOwner(l *domain.Listing, ct domain.ContactRecord) {
	l.OwnerName = strings.TrimSpace(ct["owner_name"])
	if l.OwnerName == "" {
		l.OwnerName = strings.TrimSpace(strings.TrimSpace(ct["first_name"]) + " " + strings.TrimSpace(ct["last_name"]))
	}

	for _, k := range []string{"mobile_phone", "phone_mobile", "mobile", "landline_phone", "landline", "phone", "phone_number"} {
		if v := strings.TrimSpace(ct[k]); v != "" {
			l.OwnerPhone = v
			break
		}
	}

	for _, k := range []string{"email", "owner_email", "email_address"} {
		if v := strings.TrimSpace(ct[k]); v != "" {
			l.OwnerEmail = v
			break
		}
	}

	for _, k := range []string{"mail_address", "mailing_address"} {
		if v := strings.TrimSpace(ct[k]); v != "" {
			l.OwnerMailAddr = v
			break
		}
	}
}
