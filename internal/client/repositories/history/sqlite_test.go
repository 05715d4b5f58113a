package history

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/palette/internal/client/models"
	"github.com/dmitrijs2005/palette/internal/common"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE history (
  id         TEXT PRIMARY KEY,
  colors     TEXT NOT NULL,
  harmony    TEXT NOT NULL DEFAULT '',
  source     TEXT NOT NULL,
  created_at TEXT NOT NULL
);`)
	require.NoError(t, err)
	return db
}

func entry(id string, at time.Time) *models.HistoryEntry {
	return &models.HistoryEntry{
		ID:        id,
		Colors:    []string{"#112233", "#aabbcc"},
		Harmony:   "analogous",
		Source:    "free",
		CreatedAt: at,
	}
}

func TestUpsertAndGet(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, r.Upsert(ctx, entry("g1", at)))

	got, err := r.Get(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"#112233", "#aabbcc"}, got.Colors)
	assert.Equal(t, "analogous", got.Harmony)
	assert.Equal(t, "free", got.Source)
	assert.True(t, at.Equal(got.CreatedAt))
}

func TestUpsert_OverwritesSource(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	at := time.Now().UTC()

	e := entry("g1", at)
	require.NoError(t, r.Upsert(ctx, e))
	e.Source = "credit"
	require.NoError(t, r.Upsert(ctx, e))

	got, err := r.Get(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "credit", got.Source)
}

func TestGet_NotFound(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	_, err := r.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestList_NewestFirstWithLimit(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, r.Upsert(ctx, entry("old", base)))
	require.NoError(t, r.Upsert(ctx, entry("mid", base.Add(time.Hour))))
	require.NoError(t, r.Upsert(ctx, entry("new", base.Add(2*time.Hour))))

	all, err := r.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "new", all[0].ID)
	assert.Equal(t, "old", all[2].ID)

	two, err := r.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, two, 2)
	assert.Equal(t, "mid", two[1].ID)
}

func TestClear(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, entry("g1", time.Now())))
	require.NoError(t, r.Clear(ctx))

	all, err := r.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}
