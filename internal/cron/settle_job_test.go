package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
	"github.com/bidhaus/bidhaus-backend/pkg/logger"
)

type fakeSettleFinder struct {
	candidates []models.Auction
	err        error
}

func (f *fakeSettleFinder) FindSettlementCandidates(ctx context.Context, limit int) ([]models.Auction, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.candidates, nil
}

type fakeSettler struct {
	settled []uuid.UUID
	failFor map[uuid.UUID]error
}

func (f *fakeSettler) Settle(ctx context.Context, auctionID uuid.UUID) (*models.Order, error) {
	if err, ok := f.failFor[auctionID]; ok {
		return nil, err
	}
	f.settled = append(f.settled, auctionID)
	return &models.Order{ID: uuid.New(), AuctionID: auctionID}, nil
}

func newSettleTestJob(t *testing.T, finder *fakeSettleFinder, settler *fakeSettler) Job {
	t.Helper()
	job, err := NewSettleJob(SettleJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Repository: finder,
		Settlement: settler,
	})
	if err != nil {
		t.Fatalf("NewSettleJob: %v", err)
	}
	return job
}

func TestSettleJobProcessesAllCandidates(t *testing.T) {
	finder := &fakeSettleFinder{candidates: []models.Auction{
		{ID: uuid.New()}, {ID: uuid.New()}, {ID: uuid.New()},
	}}
	settler := &fakeSettler{}
	job := newSettleTestJob(t, finder, settler)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(settler.settled) != 3 {
		t.Fatalf("expected 3 settlements, got %d", len(settler.settled))
	}
}

func TestSettleJobIsolatesFailures(t *testing.T) {
	bad := uuid.New()
	finder := &fakeSettleFinder{candidates: []models.Auction{
		{ID: uuid.New()}, {ID: bad}, {ID: uuid.New()},
	}}
	settler := &fakeSettler{failFor: map[uuid.UUID]error{bad: errors.New("gateway down")}}
	job := newSettleTestJob(t, finder, settler)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatalf("expected aggregate error")
	}
	if len(settler.settled) != 2 {
		t.Fatalf("one failure must not stop the batch, settled %d", len(settler.settled))
	}
}

type fakeRolloverFinder struct {
	candidates []models.Auction
}

func (f *fakeRolloverFinder) FindRolloverCandidates(ctx context.Context, now time.Time, limit int) ([]models.Auction, error) {
	return f.candidates, nil
}

type fakeRolloverRunner struct {
	rolled  []uuid.UUID
	failFor map[uuid.UUID]error
}

func (f *fakeRolloverRunner) RolloverIfUnpaid(ctx context.Context, auctionID uuid.UUID) error {
	if err, ok := f.failFor[auctionID]; ok {
		return err
	}
	f.rolled = append(f.rolled, auctionID)
	return nil
}

func TestRolloverJobIsolatesFailures(t *testing.T) {
	bad := uuid.New()
	finder := &fakeRolloverFinder{candidates: []models.Auction{
		{ID: bad}, {ID: uuid.New()},
	}}
	runner := &fakeRolloverRunner{failFor: map[uuid.UUID]error{bad: errors.New("boom")}}
	job, err := NewRolloverJob(RolloverJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Repository: finder,
		Settlement: runner,
	})
	if err != nil {
		t.Fatalf("NewRolloverJob: %v", err)
	}

	if err := job.Run(context.Background()); err == nil {
		t.Fatalf("expected aggregate error")
	}
	if len(runner.rolled) != 1 {
		t.Fatalf("expected the healthy auction to roll, got %d", len(runner.rolled))
	}
}
