package bids

import (
	"sort"

	"github.com/google/uuid"

	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
)

// Rank reduces a raw bid ledger to one entry per bidder, ordered best-first.
// Withdrawn rows are ignored. Each bidder is represented by their highest
// bid; on equal amounts the earlier submission wins. The final ordering is
// descending by amount, ascending by created_at on ties, with the bid ID as
// the last resort so the output is deterministic for identical inputs.
//
// Ranking never leaks across bidders: callers only ever expose a bidder's
// own rows through the admission API, so amounts stay blind between bidders.
func Rank(ledger []models.Bid) []models.Bid {
	bestByBidder := map[uuid.UUID]models.Bid{}
	for _, bid := range ledger {
		if bid.IsWithdrawn {
			continue
		}
		current, ok := bestByBidder[bid.BidderUserID]
		if !ok || betterOwnBid(bid, current) {
			bestByBidder[bid.BidderUserID] = bid
		}
	}

	ranking := make([]models.Bid, 0, len(bestByBidder))
	for _, bid := range bestByBidder {
		ranking = append(ranking, bid)
	}
	sort.Slice(ranking, func(i, j int) bool {
		a, b := ranking[i], ranking[j]
		if a.AmountCents != b.AmountCents {
			return a.AmountCents > b.AmountCents
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	return ranking
}

// Winner returns the head of the ranking, or nil when no live bids exist.
func Winner(ledger []models.Bid) *models.Bid {
	ranking := Rank(ledger)
	if len(ranking) == 0 {
		return nil
	}
	return &ranking[0]
}

// NextEligibleWinner re-runs the ranking with the given bidders excluded and
// returns the first remaining candidate. Used by rollover, where the failed
// winner and every holder of a non-paid order must never be re-offered the lot.
func NextEligibleWinner(ledger []models.Bid, exclude map[uuid.UUID]struct{}) *models.Bid {
	for _, bid := range Rank(ledger) {
		if _, skip := exclude[bid.BidderUserID]; skip {
			continue
		}
		b := bid
		return &b
	}
	return nil
}

// betterOwnBid decides whether candidate beats current for the same bidder.
func betterOwnBid(candidate, current models.Bid) bool {
	if candidate.AmountCents != current.AmountCents {
		return candidate.AmountCents > current.AmountCents
	}
	return candidate.CreatedAt.Before(current.CreatedAt)
}
