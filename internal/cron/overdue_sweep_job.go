package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/emiliogarza/libraria-backend/pkg/logger"
)

// loanSweeper flips open loans past their due date to overdue.
type loanSweeper interface {
	SweepOverdue(ctx context.Context, now time.Time) (int64, error)
}

// OverdueSweepJobParams configure the overdue sweep job.
type OverdueSweepJobParams struct {
	Logger *logger.Logger
	Loans  loanSweeper
}

// OverdueSweepJob relabels open loans whose due date has passed. The label is
// derived at read time too, so the sweep only has to keep stored state current.
type OverdueSweepJob struct {
	logg  *logger.Logger
	loans loanSweeper
	now   func() time.Time
}

// NewOverdueSweepJob builds the overdue sweep job.
func NewOverdueSweepJob(params OverdueSweepJobParams) (*OverdueSweepJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Loans == nil {
		return nil, fmt.Errorf("loan sweeper required")
	}
	return &OverdueSweepJob{
		logg:  params.Logger,
		loans: params.Loans,
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// Name identifies the job in logs and metrics.
func (j *OverdueSweepJob) Name() string { return JobOverdueSweep }

// Run marks every open loan past due as overdue.
func (j *OverdueSweepJob) Run(ctx context.Context) error {
	flipped, err := j.loans.SweepOverdue(ctx, j.now())
	if err != nil {
		return fmt.Errorf("sweep overdue loans: %w", err)
	}
	ctx = j.logg.WithField(ctx, "loans_flipped", flipped)
	j.logg.Info(ctx, "overdue sweep complete")
	return nil
}
