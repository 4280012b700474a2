package skiptrace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadscout-engine/internal/domain"
)

func TestAddressesOverlap(t *testing.T) {
	tests := []struct {
		name    string
		listing string
		contact string
		want    bool
	}{
		{"exact", "100 Oak St", "100 Oak St", true},
		{"case insensitive", "100 OAK ST", "100 oak st", true},
		{"contact prefix of listing", "100 Oak St Unit 2", "100 Oak St", true},
		{"number token only", "100 Oak St", "100 Different Rd", true},
		{"no overlap", "100 Oak St", "200 Elm St", false},
		{"empty contact", "100 Oak St", "", false},
		{"empty listing", "", "100 Oak St", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, addressesOverlap(tt.listing, tt.contact))
		})
	}
}

func TestMatchBack_FirstMatchWins(t *testing.T) {
	listings := []domain.Listing{{Address: "100 Oak St"}}
	contacts := []domain.ContactRecord{
		{"address": "100 Oak St", "owner_name": "First Owner"},
		{"address": "100 Oak St", "owner_name": "Second Owner"},
	}

	out, matches := MatchBack(listings, contacts)
	require.Len(t, matches, 1)
	assert.Equal(t, "First Owner", out[0].OwnerName)
	assert.Equal(t, domain.ConfidenceWeak, matches[0].Confidence)
}

func TestMatchBack_UnmatchedListingUntouched(t *testing.T) {
	listings := []domain.Listing{
		{Address: "100 Oak St"},
		{Address: "200 Elm St"},
	}
	contacts := []domain.ContactRecord{
		{"property_address": "200 Elm St", "first_name": "Bob", "last_name": "Jones"},
	}

	out, matches := MatchBack(listings, contacts)
	require.Len(t, matches, 1)
	assert.Empty(t, out[0].OwnerName)
	assert.Equal(t, "Bob Jones", out[1].OwnerName)
	assert.Equal(t, "200 Elm St", matches[0].ListingAddress)
}

func TestMatchBack_SharedContact(t *testing.T) {
	// the loose heuristic lets two listings land on one contact
	listings := []domain.Listing{
		{Address: "100 Oak St"},
		{Address: "100 Pine Ave"},
	}
	contacts := []domain.ContactRecord{
		{"address": "100 Anywhere", "owner_name": "Shared Owner"},
	}

	out, matches := MatchBack(listings, contacts)
	require.Len(t, matches, 2)
	assert.Equal(t, "Shared Owner", out[0].OwnerName)
	assert.Equal(t, "Shared Owner", out[1].OwnerName)
}

func TestAttachOwner_Priorities(t *testing.T) {
	t.Run("owner_name beats split name", func(t *testing.T) {
		l := domain.Listing{}
		attachOwner(&l, domain.ContactRecord{
			"owner_name": "Jane Q Seller",
			"first_name": "Other",
			"last_name":  "Person",
		})
		assert.Equal(t, "Jane Q Seller", l.OwnerName)
	})

	t.Run("mobile beats landline beats generic", func(t *testing.T) {
		l := domain.Listing{}
		attachOwner(&l, domain.ContactRecord{
			"phone":          "555-3333",
			"landline_phone": "555-2222",
			"mobile_phone":   "555-1111",
		})
		assert.Equal(t, "555-1111", l.OwnerPhone)

		l = domain.Listing{}
		attachOwner(&l, domain.ContactRecord{
			"phone":          "555-3333",
			"landline_phone": "555-2222",
		})
		assert.Equal(t, "555-2222", l.OwnerPhone)
	})

	t.Run("email and mail address fallbacks", func(t *testing.T) {
		l := domain.Listing{}
		attachOwner(&l, domain.ContactRecord{
			"owner_email":     "jane@example.com",
			"mailing_address": "PO Box 9, Austin TX",
		})
		assert.Equal(t, "jane@example.com", l.OwnerEmail)
		assert.Equal(t, "PO Box 9, Austin TX", l.OwnerMailAddr)
	})
}
