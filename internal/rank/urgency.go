package rank

import (
	"math"
	"time"

	"leadscout-engine/internal/domain"
)

// UrgencyScorer grades how promising an expired listing is for outreach.
// Five additive factors, each with fixed breakpoints; total capped at 10 and
// rounded to one decimal. Downstream ranking depends on these exact
// breakpoints, so don't smooth them into a formula.
type UrgencyScorer struct{}

func (UrgencyScorer) Score(l domain.Listing, now time.Time) float64 {
	p := l.Parsed

	total := motivationPoints(p.DOM) +
		freshnessPoints(daysSinceExpired(p, now)) +
		repeatFailurePoints(p.CDOM, p.DOM) +
		pricePoints(p.Price) +
		agePoints(now.Year()-p.YearBuilt) +
		bedroomPoints(p.Beds)

	// round half-up to one decimal, then clamp
	total = math.Floor(total*10+0.5) / 10
	if total > 10 {
		total = 10
	}
	if total < 0 {
		total = 0
	}
	return total
}

// Factor 1: seller motivation by days on market.
func motivationPoints(dom int) float64 {
	switch {
	case dom >= 180:
		return 2.0
	case dom >= 90:
		return 1.5
	case dom >= 45:
		return 1.0
	default:
		return 0.5
	}
}

// daysSinceExpired is 999 when the expiration date is absent or unparseable,
// which pushes the freshness factor to zero.
func daysSinceExpired(p domain.ParsedFields, now time.Time) int {
	if !p.ExpiredOK {
		return 999
	}
	return int(math.Floor(now.Sub(p.Expired).Hours() / 24))
}

// Factor 2: how recently the listing expired. Fresh expiries are the ones
// worth calling first.
func freshnessPoints(days int) float64 {
	switch {
	case days <= 3:
		return 2.0
	case days <= 7:
		return 1.5
	case days <= 14:
		return 1.0
	case days <= 30:
		return 0.5
	default:
		return 0.0
	}
}

// Factor 3: repeat failure, CDOM relative to DOM. Strict inequalities:
// CDOM equal to DOM means a first attempt, worth only the floor.
func repeatFailurePoints(cdom, dom int) float64 {
	c, d := float64(cdom), float64(dom)
	switch {
	case c > 2*d:
		return 2.0
	case c > 1.5*d:
		return 1.5
	case c > d:
		return 1.0
	default:
		return 0.5
	}
}

// Factor 4: price appeal. A zero (missing/unparseable) price earns nothing.
func pricePoints(price float64) float64 {
	switch {
	case price > 0 && price < 150000:
		return 2.0
	case price >= 150000 && price < 250000:
		return 1.5
	case price >= 250000 && price < 400000:
		return 1.0
	case price >= 400000 && price < 600000:
		return 0.5
	default:
		return 0.0
	}
}

// Factor 5a: property age.
func agePoints(age int) float64 {
	switch {
	case age <= 15:
		return 1.0
	case age <= 30:
		return 0.5
	default:
		return 0.0
	}
}

// Factor 5b: bedroom fit with the typical buyer pool.
func bedroomPoints(beds int) float64 {
	switch beds {
	case 3, 4:
		return 1.0
	case 2, 5:
		return 0.5
	default:
		return 0.0
	}
}
