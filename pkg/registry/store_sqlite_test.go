package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store, err := NewSQLiteStore(db)
	require.NoError(t, err)
	return store
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store := testSQLiteStore(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := &Grant{
		ID:        "grant-1",
		Owner:     "0xowner",
		ChainID:   "eip155:1",
		Recipient: "0xteam",
		Title:     "Protocol audit",
		Metadata:  json.RawMessage(`{"description":"audit"}`),
		Revision:  1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.Create(ctx, g))

	got, err := store.Get(ctx, "grant-1")
	require.NoError(t, err)
	assert.Equal(t, g.Owner, got.Owner)
	assert.Equal(t, g.Title, got.Title)
	assert.JSONEq(t, string(g.Metadata), string(got.Metadata))
	assert.Equal(t, 1, got.Revision)

	g.Title = "Protocol audit, phase 2"
	g.Revision = 2
	g.UpdatedAt = now.Add(time.Hour)
	require.NoError(t, store.Update(ctx, g))

	got, err = store.Get(ctx, "grant-1")
	require.NoError(t, err)
	assert.Equal(t, "Protocol audit, phase 2", got.Title)
	assert.Equal(t, 2, got.Revision)

	require.NoError(t, store.Delete(ctx, "grant-1"))
	_, err = store.Get(ctx, "grant-1")
	assert.ErrorIs(t, err, ErrGrantNotFound)
}

func TestSQLiteStoreListOrder(t *testing.T) {
	store := testSQLiteStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		ts := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.Create(ctx, &Grant{
			ID: id, Owner: "0xowner", ChainID: "eip155:1", Title: "t",
			Revision: 1, CreatedAt: ts, UpdatedAt: ts,
		}))
	}

	grants, err := store.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, grants, 2)
	assert.Equal(t, "c", grants[0].ID)
	assert.Equal(t, "b", grants[1].ID)
}

func TestSQLiteStoreUpdateMissing(t *testing.T) {
	store := testSQLiteStore(t)
	err := store.Update(context.Background(), &Grant{ID: "nope", Title: "t"})
	assert.ErrorIs(t, err, ErrGrantNotFound)
}

func TestSQLiteStoreRegistryIntegration(t *testing.T) {
	reg, err := NewRegistry(testSQLiteStore(t))
	require.NoError(t, err)
	ctx := context.Background()

	created, err := reg.Create(ctx, &Grant{
		Owner:    "0xowner",
		ChainID:  "eip155:1",
		Title:    "Bridge research",
		Metadata: json.RawMessage(`{"description": "cross-chain custody study"}`),
	})
	require.NoError(t, err)

	updated, err := reg.Update(ctx, &Grant{ID: created.ID, Title: "Bridge research v2"})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Revision)

	got, err := reg.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bridge research v2", got.Title)
}

func TestStoreCreateDatabaseError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS grants").
		WillReturnResult(sqlmock.NewResult(0, 0))
	store, err := NewSQLiteStore(db)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO grants").
		WillReturnError(errors.New("disk I/O error"))

	err = store.Create(context.Background(), &Grant{ID: "g", Owner: "o", ChainID: "c", Title: "t"})
	assert.ErrorContains(t, err, "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreMigrateError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS grants").
		WillReturnError(errors.New("database is locked"))

	_, err = NewSQLiteStore(db)
	assert.ErrorContains(t, err, "database is locked")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreListQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS grants").
		WillReturnResult(sqlmock.NewResult(0, 0))
	store, err := NewSQLiteStore(db)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT (.+) FROM grants").
		WillReturnError(errors.New("connection reset"))

	_, err = store.List(context.Background(), 10)
	assert.ErrorContains(t, err, "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}
