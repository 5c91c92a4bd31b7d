package observation

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	t.Cleanup(func() {
		mock.ExpectClose()
		assert.NoError(t, store.Close())
	})
	return store, mock
}

func TestNewPostgresStore_NilDB(t *testing.T) {
	_, err := NewPostgresStore(nil)
	assert.Error(t, err)
}

func TestPostgresStore_Save(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2026, 2, 16, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO observaciones").
		WithArgs("P-0421", "user-1", "Control en 48h", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(7, created))

	obs := &Observation{EvaluationID: "P-0421", UserID: "user-1", Text: "Control en 48h"}
	require.NoError(t, store.Save(context.Background(), obs))

	assert.Equal(t, int64(7), obs.ID)
	assert.Equal(t, created, obs.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO observaciones").WillReturnError(errors.New("connection reset"))

	err := store.Save(context.Background(), &Observation{EvaluationID: "x", Text: "y"})
	assert.ErrorContains(t, err, "failed to save observation")
}

func TestPostgresStore_GetMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, evaluacion_id").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id", "evaluacion_id", "user_id", "texto", "created_at", "updated_at"}))

	got, err := store.Get(context.Background(), "nope")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestPostgresStore_ListFor(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("WHERE evaluacion_id = ANY").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"evaluacion_id", "texto"}).
			AddRow("a", "nota a").
			AddRow("b", "nota b"))

	got, err := store.ListFor(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "nota a", "b": "nota b"}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListForEmptySkipsQuery(t *testing.T) {
	store, mock := newMockStore(t)

	got, err := store.ListFor(context.Background(), []string{})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Delete(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM observaciones").
		WithArgs("P-0419").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Delete(context.Background(), "P-0419"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ExportJSON(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 2, 16, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM observaciones").
		WillReturnRows(sqlmock.NewRows([]string{"id", "evaluacion_id", "user_id", "texto", "created_at", "updated_at"}).
			AddRow(1, "P-0421", "user-1", "Control", now, now))

	var buf bytes.Buffer
	require.NoError(t, store.ExportJSON(context.Background(), &buf))
	assert.Contains(t, buf.String(), `"evaluation_id": "P-0421"`)
	assert.Contains(t, buf.String(), `"count": 1`)
}
