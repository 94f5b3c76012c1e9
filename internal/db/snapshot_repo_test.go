package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRepository_CountPrunable(t *testing.T) {
	db := new(mockDBTX)
	cutoff := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	db.On("QueryRow", mock.Anything, mock.MatchedBy(func(sql string) bool { return containsAll(sql, "COUNT(*)", "DISTINCT ON") }),
		[]any{cutoff}).Return(valueRow(7))

	n, err := NewSnapshotRepository(db).CountPrunable(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestSnapshotRepository_ListPrunable_DefaultLimit(t *testing.T) {
	db := new(mockDBTX)
	cutoff := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	db.On("Query", mock.Anything, mock.Anything, []any{cutoff, 500}).
		Return(newMockRows([][]any{
			snapshotRow("snp_1", "plt_1", cutoff.AddDate(0, -2, 0)),
			snapshotRow("snp_2", "plt_1", cutoff.AddDate(0, -1, 0)),
		}), nil)

	snaps, err := NewSnapshotRepository(db).ListPrunable(context.Background(), cutoff, 0)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "snp_1", snaps[0].ID)
	assert.Equal(t, "Croissance", snaps[1].Stage)
	db.AssertExpectations(t)
}

func TestSnapshotRepository_DeleteByIDs(t *testing.T) {
	t.Run("deletes", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("Exec", mock.Anything, mock.Anything, []any{[]string{"snp_1", "snp_2"}}).
			Return(pgconn.NewCommandTag("DELETE 2"), nil)

		n, err := NewSnapshotRepository(db).DeleteByIDs(context.Background(), []string{"snp_1", "snp_2"})
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("empty is noop", func(t *testing.T) {
		db := new(mockDBTX)
		n, err := NewSnapshotRepository(db).DeleteByIDs(context.Background(), nil)
		require.NoError(t, err)
		assert.Zero(t, n)
		db.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("error", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("Exec", mock.Anything, mock.Anything, mock.Anything).Return(pgconn.CommandTag{}, errors.New("lock timeout"))

		_, err := NewSnapshotRepository(db).DeleteByIDs(context.Background(), []string{"snp_1"})
		require.Error(t, err)
	})
}
