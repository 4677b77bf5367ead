package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amc-trader/discovery/internal/provider"
)

func newMockRepo(t *testing.T) (*VolumeRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewVolumeRepo(sqlx.NewDb(db, "postgres"), time.Second), mock
}

func TestVolumeRepo_GetHit(t *testing.T) {
	repo, mock := newMockRepo(t)
	updated := time.Now().Add(-2 * time.Hour)

	rows := sqlmock.NewRows([]string{"symbol", "avg_volume_20d", "avg_volume_30d", "last_updated"}).
		AddRow("AAA", int64(2_500_000), nil, updated)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT symbol, avg_volume_20d, avg_volume_30d, last_updated`)).
		WithArgs("AAA").
		WillReturnRows(rows)

	rec, err := repo.Get(context.Background(), "AAA")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(2_500_000), rec.AvgVolume20d)
	assert.Nil(t, rec.AvgVolume30d)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVolumeRepo_GetMissReturnsNil(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT symbol, avg_volume_20d`)).
		WithArgs("NOPE").
		WillReturnRows(sqlmock.NewRows([]string{"symbol", "avg_volume_20d", "avg_volume_30d", "last_updated"}))

	rec, err := repo.Get(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.Nil(t, rec, "miss is nil record, not an error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVolumeRepo_Upsert(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO volume_averages`)).
		WithArgs("AAA", int64(1_800_000), nil, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), provider.VolumeRecord{
		Symbol:       "AAA",
		AvgVolume20d: 1_800_000,
		LastUpdated:  now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVolumeRepo_PruneStale(t *testing.T) {
	repo, mock := newMockRepo(t)
	cutoff := time.Now().Add(-24 * time.Hour)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM volume_averages WHERE last_updated < $1`)).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 17))

	n, err := repo.PruneStale(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(17), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
