package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"gardenwatch/internal/types"
)

// RunStateRepository stores named RunState rows. It implements the
// runstate.Store contract: every Update is a read-modify-write under
// SELECT ... FOR UPDATE, so two triggers racing for the daily lease serialize
// on the row and the second sees the first one's lock_at.
type RunStateRepository struct {
	pool Pool
}

// NewRunStateRepository creates a RunStateRepository.
func NewRunStateRepository(pool Pool) *RunStateRepository {
	return &RunStateRepository{pool: pool}
}

// Get returns the payload for name, or a zero payload when the row does not
// exist yet.
func (r *RunStateRepository) Get(ctx context.Context, name string) (types.RunStatePayload, error) {
	var p types.RunStatePayload
	err := r.pool.QueryRow(ctx,
		`SELECT payload FROM run_states WHERE name = $1`,
		name,
	).Scan(&p)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.RunStatePayload{}, nil
	}
	if err != nil {
		return types.RunStatePayload{}, types.NewAppError(types.ErrCodeInternalDB, "failed to read run state", err)
	}
	return p, nil
}

// Update loads the row for name under a row lock, inserting an empty row
// first if needed, and writes the payload back when fn returns true.
//
// SQL pattern:
//
//	BEGIN;
//	INSERT INTO run_states (name, payload) VALUES ($1, '{}') ON CONFLICT (name) DO NOTHING;
//	SELECT payload FROM run_states WHERE name = $1 FOR UPDATE;
//	UPDATE run_states SET payload = $2, updated_at = NOW() WHERE name = $1;
//	COMMIT;
func (r *RunStateRepository) Update(ctx context.Context, name string, fn func(p *types.RunStatePayload) (bool, error)) (err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin run state transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx,
		`INSERT INTO run_states (name, payload, updated_at)
		 VALUES ($1, '{}'::jsonb, NOW())
		 ON CONFLICT (name) DO NOTHING`,
		name,
	); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to initialize run state", err)
	}

	var p types.RunStatePayload
	if err = tx.QueryRow(ctx,
		`SELECT payload FROM run_states WHERE name = $1 FOR UPDATE`,
		name,
	).Scan(&p); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to lock run state", err)
	}

	write, err := fn(&p)
	if err != nil {
		return err
	}
	if !write {
		err = tx.Rollback(ctx)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to release run state lock", err)
		}
		return nil
	}

	if _, err = tx.Exec(ctx,
		`UPDATE run_states SET payload = $2, updated_at = NOW() WHERE name = $1`,
		name, p,
	); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to write run state", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit run state", err)
	}
	return nil
}
