package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kll222/tmdb-tracker/internal/media"
	"github.com/Kll222/tmdb-tracker/internal/tmdb"
)

func openTestDB(t *testing.T, scope KeyScope) *DB {
	t.Helper()
	db, err := OpenDB(DriverSQLite, filepath.Join(t.TempDir(), "nested", "media.db"), scope)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func record(id int64, kind tmdb.Kind, title, released string) media.Record {
	return media.Record{
		ID:          id,
		Title:       title,
		ReleaseDate: released,
		Region:      "中国",
		Genres:      "剧情",
		Overview:    "overview " + title,
		PosterURL:   "https://image.tmdb.org/t/p/w500/" + title + ".jpg",
		MediaType:   kind,
	}
}

func TestInsertMediaIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, KeyID)

	n, err := db.InsertMedia(ctx, []media.Record{record(1, tmdb.Movie, "first", "2026-10-15")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = db.InsertMedia(ctx, []media.Record{record(1, tmdb.Movie, "second", "2026-10-16")})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := db.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "first", got[0].Title)
	assert.Equal(t, "2026-10-15", got[0].ReleaseDate)
}

func TestKeyScopeIDCollidesAcrossKinds(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, KeyID)

	n, err := db.InsertMedia(ctx, []media.Record{
		record(5, tmdb.Movie, "movie", "2026-10-15"),
		record(5, tmdb.TV, "show", "2026-10-15"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestKeyScopeIDMediaKeepsBothKinds(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, KeyIDMedia)

	n, err := db.InsertMedia(ctx, []media.Record{
		record(5, tmdb.Movie, "movie", "2026-10-15"),
		record(5, tmdb.TV, "show", "2026-10-15"),
		record(5, tmdb.TV, "show-again", "2026-10-15"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	shows, err := db.List(ctx, ListFilter{Kind: tmdb.TV})
	require.NoError(t, err)
	require.Len(t, shows, 1)
	assert.Equal(t, "show", shows[0].Title)
}

func TestOpenDBRejectsScopeChange(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "media.db")

	db, err := OpenDB(DriverSQLite, path, KeyID)
	require.NoError(t, err)
	_, err = db.InsertMedia(ctx, []media.Record{record(5, tmdb.Movie, "movie", "2026-10-15")})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = OpenDB(DriverSQLite, path, KeyIDMedia)
	require.ErrorIs(t, err, ErrScopeMismatch)

	reopened, err := OpenDB(DriverSQLite, path, KeyID)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, KeyID, reopened.Scope())
}

func TestOpenDBKeepsIDMediaScope(t *testing.T) {
	path := filepath.Join(t.TempDir(), "media.db")

	db, err := OpenDB(DriverSQLite, path, KeyIDMedia)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = OpenDB(DriverSQLite, path, KeyID)
	require.ErrorIs(t, err, ErrScopeMismatch)

	reopened, err := OpenDB(DriverSQLite, path, KeyIDMedia)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, KeyIDMedia, reopened.Scope())
}

func TestPruneDeletesOnlyOlderRows(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, KeyID)

	_, err := db.InsertMedia(ctx, []media.Record{
		record(1, tmdb.Movie, "old", "2026-10-13"),
		record(2, tmdb.Movie, "edge", "2026-10-14"),
		record(3, tmdb.TV, "new", "2026-10-16"),
	})
	require.NoError(t, err)

	pruned, err := db.Prune(ctx, "2026-10-14")
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	rest, err := db.List(ctx, ListFilter{})
	require.NoError(t, err)
	var titles []string
	for _, r := range rest {
		titles = append(titles, r.Title)
	}
	assert.Equal(t, []string{"new", "edge"}, titles)
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, KeyIDMedia)

	_, err := db.InsertMedia(ctx, []media.Record{
		record(1, tmdb.Movie, "Alpha", "2026-10-14"),
		record(2, tmdb.Movie, "Beta", "2026-10-15"),
		record(3, tmdb.TV, "Gamma", "2026-10-16"),
	})
	require.NoError(t, err)

	movies, err := db.List(ctx, ListFilter{Kind: tmdb.Movie, Limit: 1})
	require.NoError(t, err)
	require.Len(t, movies, 1)
	assert.Equal(t, "Beta", movies[0].Title)

	found, err := db.List(ctx, ListFilter{Query: "alp"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, int64(1), found[0].ID)

	recent, err := db.List(ctx, ListFilter{Since: "2026-10-15"})
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestStatsAndRuns(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, KeyID)

	stats, err := db.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
	assert.Nil(t, stats.LastRun)

	run := &Run{Sink: "sqlite"}
	require.NoError(t, db.CreateRun(ctx, run))
	require.NotEmpty(t, run.ID)

	_, err = db.InsertMedia(ctx, []media.Record{
		record(1, tmdb.Movie, "a", "2026-10-14"),
		record(2, tmdb.TV, "b", "2026-10-16"),
	})
	require.NoError(t, err)

	run.Status = RunCompleted
	run.Written = 2
	run.Accepted = 2
	require.NoError(t, db.UpdateRun(ctx, run))

	stats, err = db.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, map[string]int{"movie": 1, "tv": 1}, stats.ByKind)
	assert.Equal(t, "2026-10-14", stats.Oldest)
	assert.Equal(t, "2026-10-16", stats.Newest)
	require.NotNil(t, stats.LastRun)
	assert.Equal(t, run.ID, stats.LastRun.ID)
	assert.Equal(t, RunCompleted, stats.LastRun.Status)
	assert.Equal(t, 2, stats.LastRun.Written)
}

func TestOpenDBUnknownDriver(t *testing.T) {
	_, err := OpenDB("oracle", "x", KeyID)
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestRebind(t *testing.T) {
	pg := &DB{driver: DriverPostgres}
	assert.Equal(t, "DELETE FROM media WHERE a = $1 AND b < $2", pg.rebind("DELETE FROM media WHERE a = ? AND b < ?"))

	lite := &DB{driver: DriverSQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}
