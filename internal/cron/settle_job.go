package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
	"github.com/bidhaus/bidhaus-backend/pkg/logger"
)

const settleBatchSize = 100

type settleCandidateFinder interface {
	FindSettlementCandidates(ctx context.Context, limit int) ([]models.Auction, error)
}

type settler interface {
	Settle(ctx context.Context, auctionID uuid.UUID) (*models.Order, error)
}

type SettleJobParams struct {
	Logger     *logger.Logger
	Repository settleCandidateFinder
	Settlement settler
	BatchSize  int
}

// NewSettleJob creates orders for ended auctions with a winner and no
// settlement yet. Each auction settles independently; one gateway failure
// never blocks the rest of the batch.
func NewSettleJob(params SettleJobParams) (Job, error) {
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
		batch = settleBatchSize
	}
	return &settleJob{
		logg:       params.Logger,
		repo:       params.Repository,
		settlement: params.Settlement,
		batch:      batch,
	}, nil
}

type settleJob struct {
	logg       *logger.Logger
	repo       settleCandidateFinder
	settlement settler
	batch      int
}

func (j *settleJob) Name() string { return "auction-settle" }

func (j *settleJob) Run(ctx context.Context) error {
	candidates, err := j.repo.FindSettlementCandidates(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("find settlement candidates: %w", err)
	}

	settled := 0
	var errs error
	for _, auction := range candidates {
		if _, err := j.settlement.Settle(ctx, auction.ID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("settle %s: %w", auction.ID, err))
			logCtx := j.logg.WithAuctionID(ctx, auction.ID.String())
			j.logg.Error(logCtx, "settlement failed", err)
			continue
		}
		settled++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(candidates),
		"settled":    settled,
	})
	j.logg.Info(logCtx, "settlement sweep complete")
	return errs
}
