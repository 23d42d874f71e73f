package service

import "math"

// Rating constants for the per-difficulty ELO tracks.
const (
	KFactor       = 32
	InitialRating = 1200
	RatingFloor   = 100
)

// expectedScore is the standard ELO expectation for a player rated r
// against an opponent rated o.
func expectedScore(r, o int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(o-r)/400.0))
}

// pairDelta returns the winner-side rating delta for one winner/loser
// pair. The loser's delta is the exact negation, which keeps each pair
// zero-sum regardless of rounding.
func pairDelta(winnerRating, loserRating int) int {
	return int(math.Round(KFactor * (1.0 - expectedScore(winnerRating, loserRating))))
}

// clampRating applies the storage floor to a prospective rating.
func clampRating(rating int) int {
	if rating < RatingFloor {
		return RatingFloor
	}
	return rating
}
