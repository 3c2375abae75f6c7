package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
	"github.com/bidhaus/bidhaus-backend/pkg/logger"
)

const rolloverBatchSize = 100

type rolloverCandidateFinder interface {
	FindRolloverCandidates(ctx context.Context, now time.Time, limit int) ([]models.Auction, error)
}

type rolloverRunner interface {
	RolloverIfUnpaid(ctx context.Context, auctionID uuid.UUID) error
}

type RolloverJobParams struct {
	Logger     *logger.Logger
	Repository rolloverCandidateFinder
	Settlement rolloverRunner
	BatchSize  int
}

// NewRolloverJob advances settled auctions whose payment deadline lapsed
// unpaid. It runs last in the cycle, after the settlement sweep.
func NewRolloverJob(params RolloverJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("auctions repository required")
	}
	if params.Settlement == nil {
		return nil, fmt.Errorf("settlement service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = rolloverBatchSize
	}
	return &rolloverJob{
		logg:       params.Logger,
		repo:       params.Repository,
		settlement: params.Settlement,
		batch:      batch,
		now:        time.Now,
	}, nil
}

type rolloverJob struct {
	logg       *logger.Logger
	repo       rolloverCandidateFinder
	settlement rolloverRunner
	batch      int
	now        func() time.Time
}

func (j *rolloverJob) Name() string { return "auction-rollover" }

func (j *rolloverJob) Run(ctx context.Context) error {
	candidates, err := j.repo.FindRolloverCandidates(ctx, j.now().UTC(), j.batch)
	if err != nil {
		return fmt.Errorf("find rollover candidates: %w", err)
	}

	rolled := 0
	var errs error
	for _, auction := range candidates {
		if err := j.settlement.RolloverIfUnpaid(ctx, auction.ID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("rollover %s: %w", auction.ID, err))
			logCtx := j.logg.WithAuctionID(ctx, auction.ID.String())
			j.logg.Error(logCtx, "rollover failed", err)
			continue
		}
		rolled++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(candidates),
		"rolled":     rolled,
	})
	j.logg.Info(logCtx, "rollover sweep complete")
	return errs
}
