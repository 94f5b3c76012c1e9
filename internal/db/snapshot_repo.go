package db

import (
	"context"
	"time"

	"gardenwatch/internal/types"
)

const snapshotColumns = `s.id, s.plantation_id, s.created_at, s.progression, s.stage,
	s.watering_date, s.watering_quantity_ml, s.decision_details, s.weather`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (types.Snapshot, error) {
	var s types.Snapshot
	err := row.Scan(
		&s.ID, &s.PlantationID, &s.CreatedAt, &s.Progression, &s.Stage,
		&s.WateringDate, &s.WateringQuantity, &s.Details, &s.Weather,
	)
	return s, err
}

// prunableFilter selects snapshots older than $1 that are not their
// plantation's newest snapshot. The newest one is what the engine reads as
// "last snapshot" and is always kept.
const prunableFilter = `s.created_at < $1
	AND s.id NOT IN (
		SELECT DISTINCT ON (plantation_id) id
		  FROM snapshots
		 ORDER BY plantation_id, created_at DESC)`

// SnapshotRepository provides the retention operations on the snapshots
// table.
type SnapshotRepository struct {
	db DBTX
}

// NewSnapshotRepository creates a SnapshotRepository.
func NewSnapshotRepository(db DBTX) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// CountPrunable returns how many snapshots a cleanup with this cutoff would
// delete.
func (r *SnapshotRepository) CountPrunable(ctx context.Context, cutoff time.Time) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM snapshots s WHERE `+prunableFilter,
		cutoff,
	).Scan(&count); err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count prunable snapshots", err)
	}
	return count, nil
}

// ListPrunable returns up to limit prunable snapshots, oldest first.
func (r *SnapshotRepository) ListPrunable(ctx context.Context, cutoff time.Time, limit int) ([]types.Snapshot, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+snapshotColumns+`
		 FROM snapshots s
		 WHERE `+prunableFilter+`
		 ORDER BY s.created_at, s.id
		 LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list prunable snapshots", err)
	}
	defer rows.Close()

	var out []types.Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan snapshot row", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating snapshot rows", err)
	}
	return out, nil
}

// DeleteByIDs removes the given snapshots and returns the number deleted.
func (r *SnapshotRepository) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM snapshots WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete snapshots", err)
	}
	return int(tag.RowsAffected()), nil
}
