package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/bidhaus/bidhaus-backend/pkg/logger"
)

// lifecycle is the slice of the auction service the scheduler drives.
type lifecycle interface {
	ActivateDue(ctx context.Context, now time.Time) (int, error)
	CloseDue(ctx context.Context, now time.Time) (int, error)
}

type ActivateJobParams struct {
	Logger  *logger.Logger
	Service lifecycle
}

// NewActivateJob flips scheduled auctions whose start time has passed to
// active. It runs first in the cycle so a same-tick close sees fresh state.
func NewActivateJob(params ActivateJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Service == nil {
		return nil, fmt.Errorf("auction service required")
	}
	return &activateJob{
		logg:    params.Logger,
		service: params.Service,
		now:     time.Now,
	}, nil
}

type activateJob struct {
	logg    *logger.Logger
	service lifecycle
	now     func() time.Time
}

func (j *activateJob) Name() string { return "auction-activate" }

func (j *activateJob) Run(ctx context.Context) error {
	activated, err := j.service.ActivateDue(ctx, j.now().UTC())
	logCtx := j.logg.WithField(ctx, "auctions_activated", activated)
	if err != nil {
		// Per-auction failures are already isolated inside ActivateDue;
		// surface the aggregate so the run is recorded as failed.
		return fmt.Errorf("activate due auctions: %w", err)
	}
	j.logg.Info(logCtx, "auction activation sweep complete")
	return nil
}
