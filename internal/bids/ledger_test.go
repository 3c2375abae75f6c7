package bids

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
)

func makeBid(bidder uuid.UUID, amount int64, at time.Time) models.Bid {
	return models.Bid{
		ID:           uuid.New(),
		AuctionID:    uuid.New(),
		BidderUserID: bidder,
		AmountCents:  amount,
		CreatedAt:    at,
	}
}

func TestRankOneEntryPerBidder(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	alice := uuid.New()
	bob := uuid.New()

	ledger := []models.Bid{
		makeBid(alice, 1000, base),
		makeBid(alice, 1500, base.Add(time.Minute)),
		makeBid(bob, 1200, base.Add(2*time.Minute)),
		makeBid(bob, 1100, base.Add(3*time.Minute)),
	}

	ranking := Rank(ledger)
	if len(ranking) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(ranking))
	}
	if ranking[0].BidderUserID != alice || ranking[0].AmountCents != 1500 {
		t.Fatalf("expected alice at 1500 first, got %v at %d", ranking[0].BidderUserID, ranking[0].AmountCents)
	}
	if ranking[1].BidderUserID != bob || ranking[1].AmountCents != 1200 {
		t.Fatalf("expected bob at 1200 second, got %v at %d", ranking[1].BidderUserID, ranking[1].AmountCents)
	}
}

func TestRankAmountTieEarlierWins(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	alice := uuid.New()
	bob := uuid.New()

	early := makeBid(bob, 2000, base)
	late := makeBid(alice, 2000, base.Add(time.Second))

	ranking := Rank([]models.Bid{late, early})
	if ranking[0].BidderUserID != bob {
		t.Fatalf("earlier bid should rank first on amount tie")
	}

	// Same rule within a single bidder's history.
	first := makeBid(alice, 3000, base)
	second := makeBid(alice, 3000, base.Add(time.Second))
	ranking = Rank([]models.Bid{second, first})
	if len(ranking) != 1 || ranking[0].ID != first.ID {
		t.Fatalf("bidder's earliest bid should represent them on amount tie")
	}
}

func TestRankIgnoresWithdrawn(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	alice := uuid.New()

	withdrawn := makeBid(alice, 5000, base)
	withdrawn.IsWithdrawn = true
	live := makeBid(alice, 1000, base.Add(time.Minute))

	ranking := Rank([]models.Bid{withdrawn, live})
	if len(ranking) != 1 || ranking[0].AmountCents != 1000 {
		t.Fatalf("withdrawn bid must not participate in ranking")
	}
}

func TestRankStableUnderShuffle(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ledger := []models.Bid{}
	for i := 0; i < 20; i++ {
		ledger = append(ledger, makeBid(uuid.New(), int64(1000+(i%7)*100), base.Add(time.Duration(i)*time.Second)))
	}

	want := Rank(ledger)
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 10; trial++ {
		shuffled := append([]models.Bid{}, ledger...)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		got := Rank(shuffled)
		if len(got) != len(want) {
			t.Fatalf("trial %d: length changed under shuffle", trial)
		}
		for i := range want {
			if got[i].ID != want[i].ID {
				t.Fatalf("trial %d: ranking order changed under shuffle at %d", trial, i)
			}
		}
	}
}

func TestWinnerEmptyLedger(t *testing.T) {
	if Winner(nil) != nil {
		t.Fatalf("empty ledger must have no winner")
	}
	withdrawn := makeBid(uuid.New(), 1000, time.Now())
	withdrawn.IsWithdrawn = true
	if Winner([]models.Bid{withdrawn}) != nil {
		t.Fatalf("ledger of withdrawn bids must have no winner")
	}
}

func TestNextEligibleWinnerSkipsExcluded(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	top := uuid.New()
	second := uuid.New()
	third := uuid.New()

	ledger := []models.Bid{
		makeBid(top, 3000, base),
		makeBid(second, 2000, base.Add(time.Minute)),
		makeBid(third, 1000, base.Add(2*time.Minute)),
	}

	next := NextEligibleWinner(ledger, map[uuid.UUID]struct{}{top: {}})
	if next == nil || next.BidderUserID != second {
		t.Fatalf("expected second-ranked bidder")
	}

	next = NextEligibleWinner(ledger, map[uuid.UUID]struct{}{top: {}, second: {}})
	if next == nil || next.BidderUserID != third {
		t.Fatalf("expected third-ranked bidder")
	}

	next = NextEligibleWinner(ledger, map[uuid.UUID]struct{}{top: {}, second: {}, third: {}})
	if next != nil {
		t.Fatalf("expected no candidate once all bidders are excluded")
	}
}
