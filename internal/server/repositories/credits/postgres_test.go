package credits

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

func TestBalance(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	q := `^SELECT\s+balance\s+FROM\s+credit_balances\s+WHERE\s+user_id\s*=\s*\$1$`

	mock.ExpectQuery(q).WithArgs("u1").WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(int64(7)))
	mock.ExpectQuery(q).WithArgs("fresh").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(q).WithArgs("broken").WillReturnError(errors.New("conn reset"))

	n, err := repo.Balance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	n, err = repo.Balance(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Zero(t, n, "missing row reads as an empty balance")

	_, err = repo.Balance(context.Background(), "broken")
	assert.ErrorContains(t, err, "db error: conn reset")
}

func TestConsume(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	q := `(?s)^UPDATE\s+credit_balances\s+SET\s+balance\s*=\s*balance\s*-\s*1.*WHERE\s+user_id\s*=\s*\$1\s+AND\s+balance\s*>\s*0$`

	mock.ExpectExec(q).WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("empty").WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Consume(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Consume(context.Background(), "empty")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGrant(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+credit_balances.*ON\s+CONFLICT\s*\(user_id\)\s+DO\s+UPDATE.*RETURNING\s+balance$`).
		WithArgs("u1", int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(int64(13)))

	n, err := repo.Grant(context.Background(), "u1", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(13), n)

	_, err = repo.Grant(context.Background(), "u1", 0)
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
