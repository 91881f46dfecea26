package selection

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/roach88/sometimes/internal/ambient"
	"github.com/roach88/sometimes/internal/corpus"
)

// Score components. The relative sizes matter: never-delivered dominates,
// then the random term, then context, then the per-installation salt.
const (
	TimeOfDayBonus      = 15
	SeasonBonus         = 12
	WeatherBonus        = 8
	SpecialDateBonus    = 5
	NeverDeliveredBonus = 40

	// SaltSpread bounds the salted variance to [0, SaltSpread).
	SaltSpread = 21

	// RandomMax is the inclusive upper bound of the per-call random term.
	RandomMax = 60

	// ShortlistSize is how many top-scored candidates enter the weighted draw.
	ShortlistSize = 12

	// WeightFloor is added to every clamped score so low scorers keep a chance.
	WeightFloor = 10
)

// DomainSalt separates salted item hashes from any other use of SHA-256.
const DomainSalt = "sometimes/salt/v1"

// ContextScore is the deterministic part of an item's score: affinity
// matches against snap plus the never-delivered bonus.
func ContextScore(it corpus.Item, snap ambient.Snapshot, neverDelivered bool) int {
	score := 0
	if it.Affinity.MatchesTimeOfDay(snap.TimeOfDay) {
		score += TimeOfDayBonus
	}
	if it.Affinity.MatchesSeason(snap.Season) {
		score += SeasonBonus
	}
	if snap.HasWeather() && it.Affinity.MatchesWeather(snap.Weather) {
		score += WeatherBonus
	}
	if it.Affinity.MatchesSpecialDate(snap.SpecialDate) {
		score += SpecialDateBonus
	}
	if neverDelivered {
		score += NeverDeliveredBonus
	}
	return score
}

// SaltVariance returns a stable value in [0, SaltSpread) for an item under an
// installation salt. Identical inputs give identical output across restarts.
func SaltVariance(itemID string, salt int64) int {
	h := sha256.New()
	h.Write([]byte(DomainSalt))
	h.Write([]byte{0x00})
	h.Write([]byte(itemID))
	sum := h.Sum(nil)

	v := binary.BigEndian.Uint64(sum[:8]) ^ uint64(salt)
	return int(v % SaltSpread)
}

// Weight converts a score into a draw weight.
func Weight(score int) int {
	return max(score, 0) + WeightFloor
}
