package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/klauspost/compress/zstd"

	"gardenwatch/internal/types"
)

// DefaultCleanupBatchSize is how many snapshots one delete round removes.
const DefaultCleanupBatchSize = 500

// SnapshotPruner is the snapshot store surface the cleaner needs. Prunable
// rows are older than cutoff and are not their plantation's newest snapshot.
type SnapshotPruner interface {
	CountPrunable(ctx context.Context, cutoff time.Time) (int, error)
	ListPrunable(ctx context.Context, cutoff time.Time, limit int) ([]types.Snapshot, error)
	DeleteByIDs(ctx context.Context, ids []string) (int, error)
}

// CleanupResult reports what a cleanup did, or would do on a dry run.
type CleanupResult struct {
	Cutoff   time.Time `json:"cutoff"`
	DryRun   bool      `json:"dry_run"`
	Matched  int       `json:"matched"`
	Deleted  int       `json:"deleted"`
	Archived int       `json:"archived"`
	Batches  int       `json:"batches"`
}

// SnapshotCleaner prunes old decision snapshots.
type SnapshotCleaner struct {
	store     SnapshotPruner
	clock     types.Clock
	batchSize int
	logger    *slog.Logger
}

// NewSnapshotCleaner creates a SnapshotCleaner.
func NewSnapshotCleaner(store SnapshotPruner, clock types.Clock, batchSize int, logger *slog.Logger) *SnapshotCleaner {
	if batchSize <= 0 {
		batchSize = DefaultCleanupBatchSize
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotCleaner{store: store, clock: clock, batchSize: batchSize, logger: logger}
}

// Cleanup removes snapshots older than olderThanMonths months. Each
// plantation keeps its newest snapshot whatever its age.
//
// When archive is non-nil, every batch is written to it as zstd-compressed
// JSON lines before the batch is deleted. A failed archive write stops the
// cleanup with that batch still in the database.
func (c *SnapshotCleaner) Cleanup(ctx context.Context, olderThanMonths int, dryRun bool, archive io.Writer) (CleanupResult, error) {
	if olderThanMonths <= 0 {
		return CleanupResult{}, types.NewAppError(types.ErrCodeValidationInvalidArgument,
			fmt.Sprintf("older-than must be a positive number of months, got %d", olderThanMonths), nil)
	}

	cutoff := c.clock.Now().AddDate(0, -olderThanMonths, 0)
	res := CleanupResult{Cutoff: cutoff, DryRun: dryRun}

	matched, err := c.store.CountPrunable(ctx, cutoff)
	if err != nil {
		return res, fmt.Errorf("counting prunable snapshots: %w", err)
	}
	res.Matched = matched
	if dryRun || matched == 0 {
		c.logger.InfoContext(ctx, "snapshot cleanup evaluated",
			"cutoff", cutoff.Format(time.RFC3339),
			"matched", matched,
			"dry_run", dryRun,
		)
		return res, nil
	}

	var enc *zstd.Encoder
	if archive != nil {
		enc, err = zstd.NewWriter(archive)
		if err != nil {
			return res, fmt.Errorf("opening archive encoder: %w", err)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return res, c.finish(enc, err)
		}

		batch, err := c.store.ListPrunable(ctx, cutoff, c.batchSize)
		if err != nil {
			return res, c.finish(enc, fmt.Errorf("listing prunable snapshots: %w", err))
		}
		if len(batch) == 0 {
			break
		}

		if enc != nil {
			if err := writeJSONL(enc, batch); err != nil {
				return res, c.finish(enc, fmt.Errorf("archiving snapshot batch: %w", err))
			}
			// Flush so the batch is durable in archive before it leaves the
			// database.
			if err := enc.Flush(); err != nil {
				return res, c.finish(enc, fmt.Errorf("flushing snapshot archive: %w", err))
			}
			res.Archived += len(batch)
		}

		ids := make([]string, len(batch))
		for i := range batch {
			ids[i] = batch[i].ID
		}
		deleted, err := c.store.DeleteByIDs(ctx, ids)
		if err != nil {
			return res, c.finish(enc, fmt.Errorf("deleting snapshot batch: %w", err))
		}
		res.Deleted += deleted
		res.Batches++

		c.logger.InfoContext(ctx, "deleted snapshot batch",
			"batch_size", deleted,
			"total_deleted", res.Deleted,
		)

		if len(batch) < c.batchSize {
			break
		}
	}

	if err := c.finish(enc, nil); err != nil {
		return res, err
	}
	c.logger.InfoContext(ctx, "snapshot cleanup completed",
		"cutoff", cutoff.Format(time.RFC3339),
		"deleted", res.Deleted,
		"archived", res.Archived,
	)
	return res, nil
}

func (c *SnapshotCleaner) finish(enc *zstd.Encoder, err error) error {
	if enc == nil {
		return err
	}
	if closeErr := enc.Close(); closeErr != nil && err == nil {
		return fmt.Errorf("closing snapshot archive: %w", closeErr)
	}
	return err
}

func writeJSONL(w io.Writer, snapshots []types.Snapshot) error {
	e := json.NewEncoder(w)
	for i := range snapshots {
		if err := e.Encode(&snapshots[i]); err != nil {
			return err
		}
	}
	return nil
}
