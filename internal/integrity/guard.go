// Package integrity keeps product inventory consistent with the branch
// registry: it counts and strips references to a branch and sweeps inventory
// entries pointing at branches that no longer exist.
package integrity

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/catalog"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/google/uuid"
)

const (
	defaultBatchSize      = 200
	defaultCleanupTimeout = 2 * time.Minute
)

type catalogStore interface {
	CountProductsReferencingBranch(ctx context.Context, branchID uuid.UUID) (int64, error)
	RemoveBranchFromProducts(ctx context.Context, branchID uuid.UUID) (int64, error)
	CleanupOrphanedInventory(ctx context.Context, batchSize int) (catalog.SweepResult, error)
}

// Guard protects branch deletion against dangling inventory references.
type Guard interface {
	CountReferences(ctx context.Context, branchID uuid.UUID) (int64, error)
	StripReferences(ctx context.Context, branchID uuid.UUID) (int64, error)
	CleanupOrphanedInventory(ctx context.Context) (catalog.SweepResult, error)
	// CleanupAsync runs the orphan sweep detached from ctx's cancellation.
	// The returned channel closes when the run ends.
	CleanupAsync(ctx context.Context, trigger string) <-chan struct{}
}

type Options struct {
	BatchSize      int
	CleanupTimeout time.Duration
	Metrics        *metrics.IntegrityMetrics
}

type guard struct {
	catalog   catalogStore
	logg      *logger.Logger
	metrics   *metrics.IntegrityMetrics
	batchSize int
	timeout   time.Duration
}

func NewGuard(store catalogStore, logg *logger.Logger, opts Options) (Guard, error) {
	if store == nil {
		return nil, fmt.Errorf("catalog store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	timeout := opts.CleanupTimeout
	if timeout <= 0 {
		timeout = defaultCleanupTimeout
	}
	return &guard{
		catalog:   store,
		logg:      logg,
		metrics:   opts.Metrics,
		batchSize: batch,
		timeout:   timeout,
	}, nil
}

func (g *guard) CountReferences(ctx context.Context, branchID uuid.UUID) (int64, error) {
	count, err := g.catalog.CountProductsReferencingBranch(ctx, branchID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count branch references")
	}
	return count, nil
}

func (g *guard) StripReferences(ctx context.Context, branchID uuid.UUID) (int64, error) {
	updated, err := g.catalog.RemoveBranchFromProducts(ctx, branchID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "strip branch references")
	}
	g.metrics.AddStripped(updated)
	g.logg.Info(g.logg.WithFields(ctx, map[string]any{
		"branch_id":        branchID.String(),
		"products_updated": updated,
	}), "branch references stripped")
	return updated, nil
}

func (g *guard) CleanupOrphanedInventory(ctx context.Context) (catalog.SweepResult, error) {
	result, err := g.catalog.CleanupOrphanedInventory(ctx, g.batchSize)
	// Partial progress is still reported on failure.
	g.metrics.AddOrphansRemoved(result.EntriesRemoved)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cleanup orphaned inventory")
	}
	if result.EntriesRemoved > 0 {
		g.logg.Info(g.logg.WithFields(ctx, map[string]any{
			"products_scanned": result.ProductsScanned,
			"products_updated": result.ProductsUpdated,
			"entries_removed":  result.EntriesRemoved,
		}), "orphaned inventory removed")
	}
	return result, nil
}

func (g *guard) CleanupAsync(ctx context.Context, trigger string) <-chan struct{} {
	done := make(chan struct{})
	detached := context.WithoutCancel(ctx)
	go func() {
		defer close(done)
		runCtx, cancel := context.WithTimeout(detached, g.timeout)
		defer cancel()
		runCtx = g.logg.WithField(runCtx, "trigger", trigger)
		if _, err := g.CleanupOrphanedInventory(runCtx); err != nil {
			g.metrics.IncFailure(trigger)
			g.logg.Error(runCtx, "background inventory cleanup failed", err)
		}
	}()
	return done
}
