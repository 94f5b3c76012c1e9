package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"gardenwatch/internal/types"
)

const insertSnapshotSQL = `INSERT INTO snapshots
	 (id, plantation_id, created_at, progression, stage, watering_date,
	  watering_quantity_ml, decision_details, weather)
	 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// BatchWriter commits one daily run's writes in a single transaction, sending
// all inserts in one pgx.Batch round trip.
type BatchWriter struct {
	pool TxStarter
}

// NewBatchWriter creates a BatchWriter.
func NewBatchWriter(pool TxStarter) *BatchWriter {
	return &BatchWriter{pool: pool}
}

// SaveBatch inserts snapshots and notifications atomically. Either every row
// is committed or none is.
func (w *BatchWriter) SaveBatch(ctx context.Context, snapshots []types.Snapshot, notifications []*types.Notification) (err error) {
	if len(snapshots) == 0 && len(notifications) == 0 {
		return nil
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin batch transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	batch := &pgx.Batch{}
	for i := range snapshots {
		s := &snapshots[i]
		batch.Queue(insertSnapshotSQL,
			s.ID, s.PlantationID, s.CreatedAt, s.Progression, s.Stage,
			s.WateringDate, s.WateringQuantity, s.Details, s.Weather,
		)
	}
	for _, n := range notifications {
		batch.Queue(insertNotificationSQL, notificationArgs(n)...)
	}

	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err = results.Exec(); err != nil {
			_ = results.Close()
			return types.NewAppError(types.ErrCodeInternalDB,
				fmt.Sprintf("batch insert %d of %d failed", i+1, batch.Len()), err)
		}
	}
	if err = results.Close(); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to close batch results", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit batch", err)
	}
	return nil
}
