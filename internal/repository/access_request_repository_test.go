package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/classgate/classgate-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAccessRequestRepositoryCreateAndFind(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAccessRequestRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO access_requests")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	request := &models.AccessRequest{RequesterID: "user-1", ClassID: "class-1"}
	require.NoError(t, repo.Create(context.Background(), request))
	require.NotEmpty(t, request.ID)
	require.Equal(t, models.AccessRequestPending, request.Status)
	require.False(t, request.RequestedAt.IsZero())

	rows := sqlmock.NewRows([]string{"id", "requester_id", "class_id", "declared_role", "status", "rejection_reason", "requested_at", "resolved_at", "resolved_by"}).
		AddRow(request.ID, "user-1", "class-1", nil, "PENDING", nil, time.Now(), nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, requester_id, class_id")).
		WithArgs(request.ID).
		WillReturnRows(rows)

	found, err := repo.FindByID(context.Background(), request.ID)
	require.NoError(t, err)
	require.Equal(t, request.ID, found.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccessRequestRepositoryExistsPending(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAccessRequestRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM access_requests")).
		WithArgs("user-1", "class-1", models.AccessRequestPending).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsPending(context.Background(), "user-1", "class-1")
	require.NoError(t, err)
	require.True(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM access_requests")).
		WithArgs("user-1", "class-2", models.AccessRequestPending).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	exists, err = repo.ExistsPending(context.Background(), "user-1", "class-2")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccessRequestRepositoryResolveOneShot(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAccessRequestRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE access_requests SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	err := repo.Resolve(context.Background(), ResolveParams{
		ID:         "req-1",
		Status:     models.AccessRequestApproved,
		ResolvedBy: "admin-1",
		ResolvedAt: now,
	})
	require.NoError(t, err)

	// Second resolution finds no pending row.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE access_requests SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = repo.Resolve(context.Background(), ResolveParams{
		ID:         "req-1",
		Status:     models.AccessRequestRejected,
		ResolvedBy: "admin-2",
		ResolvedAt: now,
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccessRequestRepositoryResolveTx(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAccessRequestRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE access_requests SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, repo.ResolveTx(context.Background(), tx, ResolveParams{
		ID:         "req-1",
		Status:     models.AccessRequestApproved,
		ResolvedBy: "admin-1",
		ResolvedAt: time.Now().UTC(),
	}))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccessRequestRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAccessRequestRepository(db)
	rows := sqlmock.NewRows([]string{"id", "requester_id", "class_id", "declared_role", "status", "rejection_reason", "requested_at", "resolved_at", "resolved_by", "requester_name", "class_name"}).
		AddRow("req-1", "user-1", "class-1", nil, "PENDING", nil, time.Now(), nil, nil, "Jeanne Martin", "CM2 A")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT ar.id, ar.requester_id")).
		WithArgs("class-1", "PENDING").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("class-1", "PENDING").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	requests, total, err := repo.List(context.Background(), models.AccessRequestFilter{
		ClassID: "class-1",
		Status:  models.AccessRequestPending,
	})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, requests, 1)
	require.Equal(t, "Jeanne Martin", requests[0].RequesterName)
	require.NoError(t, mock.ExpectationsWereMet())
}
