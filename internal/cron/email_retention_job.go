package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/avertine/storefront-backend/pkg/logger"
)

const defaultEmailRetention = 30 * 24 * time.Hour

type emailRetentionRepo interface {
	DeleteDeliveredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// EmailRetentionJobParams configures the delivered-email cleanup job.
type EmailRetentionJobParams struct {
	Logger     *logger.Logger
	Repository emailRetentionRepo
	Retention  time.Duration
	Now        func() time.Time
}

// NewEmailRetentionJob builds the job that prunes delivered outbox rows past
// the retention window.
func NewEmailRetentionJob(params EmailRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("notify repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultEmailRetention
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &emailRetentionJob{
		logg:      params.Logger,
		repo:      params.Repository,
		retention: retention,
		now:       now,
	}, nil
}

type emailRetentionJob struct {
	logg      *logger.Logger
	repo      emailRetentionRepo
	retention time.Duration
	now       func() time.Time
}

func (j *emailRetentionJob) Name() string { return "email-retention" }

func (j *emailRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.repo.DeleteDeliveredBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("email retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "email retention cleanup complete")
	return nil
}
