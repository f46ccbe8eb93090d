package sink

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/averres/proxyfan/internal/fetch"
)

func TestPostgresSinkInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewPostgresSinkWithPool(mock, "results")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	rec := fetch.Record{
		RunID:       "run-1",
		Item:        "alpha",
		Information: "one",
		Proxy:       "http://proxy-1:8080",
		RetrievedAt: now,
	}

	mock.ExpectExec("INSERT INTO results").
		WithArgs(rec.RunID, rec.Item, rec.Information, rec.Proxy, rec.RetrievedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Append(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPostgresSinkWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewPostgresSinkWithPool(nil, "results")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewPostgresSinkWithPool(mock, "bad;table")
	require.Error(t, err)

	s, err := NewPostgresSinkWithPool(mock, "")
	require.NoError(t, err)
	require.Equal(t, "results", s.table)
}
