// Package address derives the deterministic record keys of markets and bets.
//
// A market is keyed by its creator, the question text and the end time, so the
// same creator cannot allocate the same question twice for one deadline. A bet
// is keyed by its market and bettor, which is what limits each participant to
// a single bet per market.
package address

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/SandroAugusto/school-of-solana/internal/domain"
)

const (
	marketSeed = "market"
	betSeed    = "bet"
)

// MarketKey returns sha256("market" || authority || sha256(question) || end_time LE).
func MarketKey(authority domain.Identity, question string, endTime int64) domain.Identity {
	questionHash := sha256.Sum256([]byte(question))
	var end [8]byte
	binary.LittleEndian.PutUint64(end[:], uint64(endTime))

	return derive([]byte(marketSeed), authority[:], questionHash[:], end[:])
}

// BetKey returns sha256("bet" || market || bettor).
func BetKey(market, bettor domain.Identity) domain.Identity {
	return derive([]byte(betSeed), market[:], bettor[:])
}

func derive(seeds ...[]byte) domain.Identity {
	h := sha256.New()
	for _, s := range seeds {
		h.Write(s)
	}
	var id domain.Identity
	copy(id[:], h.Sum(nil))
	return id
}
