package integrity

import (
	"context"
	"fmt"
)

// SweepJobName identifies the scheduled orphan sweep.
const SweepJobName = "inventory-orphan-sweep"

// SweepJob adapts the guard's orphan sweep to the cron worker.
type SweepJob struct {
	guard Guard
}

func NewSweepJob(guard Guard) (*SweepJob, error) {
	if guard == nil {
		return nil, fmt.Errorf("integrity guard required")
	}
	return &SweepJob{guard: guard}, nil
}

func (j *SweepJob) Name() string { return SweepJobName }

func (j *SweepJob) Run(ctx context.Context) error {
	_, err := j.guard.CleanupOrphanedInventory(ctx)
	return err
}
