package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/bidhaus/bidhaus-backend/pkg/logger"
)

type CloseJobParams struct {
	Logger  *logger.Logger
	Service lifecycle
}

// NewCloseJob ends auctions past their end time and records the winner the
// ledger produced.
func NewCloseJob(params CloseJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Service == nil {
		return nil, fmt.Errorf("auction service required")
	}
	return &closeJob{
		logg:    params.Logger,
		service: params.Service,
		now:     time.Now,
	}, nil
}

type closeJob struct {
	logg    *logger.Logger
	service lifecycle
	now     func() time.Time
}

func (j *closeJob) Name() string { return "auction-close" }

func (j *closeJob) Run(ctx context.Context) error {
	closed, err := j.service.CloseDue(ctx, j.now().UTC())
	logCtx := j.logg.WithField(ctx, "auctions_closed", closed)
	if err != nil {
		return fmt.Errorf("close due auctions: %w", err)
	}
	j.logg.Info(logCtx, "auction close sweep complete")
	return nil
}
