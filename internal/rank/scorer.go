package rank

import (
	"time"

	"leadscout-engine/internal/domain"
)

type Scorer interface {
	Score(l domain.Listing, now time.Time) float64
}
