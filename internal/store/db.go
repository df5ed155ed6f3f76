package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/Kll222/tmdb-tracker/internal/media"
	"github.com/Kll222/tmdb-tracker/internal/tmdb"
)

// Driver names accepted by OpenDB.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// KeyScope selects the primary key of the media table.
type KeyScope string

const (
	// KeyID keys rows on the TMDB id alone. A movie and a show sharing an id
	// collide and the second one is ignored.
	KeyID KeyScope = "id"
	// KeyIDMedia keys rows on (id, media_type).
	KeyIDMedia KeyScope = "id_media"
)

// ErrUnknownDriver is returned by OpenDB for unsupported drivers.
var ErrUnknownDriver = errors.New("unknown database driver")

// ErrScopeMismatch is returned by OpenDB when the existing media table was
// created with a different key scope. Tables are never rebuilt.
var ErrScopeMismatch = errors.New("media table key scope mismatch")

// DB wraps the relational store for media records and run history.
type DB struct {
	db     *sql.DB
	driver string
	scope  KeyScope
}

// OpenDB opens or creates the database. For SQLite, dsn is a file path and its
// directory is created if needed; for Postgres it is a connection string.
func OpenDB(driver, dsn string, scope KeyScope) (*DB, error) {
	if scope == "" {
		scope = KeyID
	}

	var source string
	switch driver {
	case DriverSQLite, "":
		driver = DriverSQLite
		if dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, fmt.Errorf("creating db directory: %w", err)
			}
		}
		source = dsn + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"
	case DriverPostgres, "postgres":
		driver = DriverPostgres
		source = dsn
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if driver == DriverSQLite {
		// One connection keeps ":memory:" databases and WAL writers consistent.
		db.SetMaxOpenConns(1)
	}

	d := &DB{db: db, driver: driver, scope: scope}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	if err := d.checkScope(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Scope returns the key scope of the media table.
func (d *DB) Scope() KeyScope {
	return d.scope
}

func (d *DB) migrate() error {
	key := "PRIMARY KEY (id)"
	if d.scope == KeyIDMedia {
		key = "PRIMARY KEY (id, media_type)"
	}

	schema := `
	CREATE TABLE IF NOT EXISTS media (
		id           BIGINT NOT NULL,
		title        TEXT,
		release_date TEXT,
		region       TEXT,
		genres       TEXT,
		overview     TEXT,
		poster_url   TEXT,
		media_type   TEXT NOT NULL DEFAULT '',
		` + key + `
	);

	CREATE INDEX IF NOT EXISTS idx_media_release_date ON media(release_date);
	CREATE INDEX IF NOT EXISTS idx_media_type ON media(media_type);

	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		started_at  TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		status      TEXT NOT NULL,
		sink        TEXT NOT NULL DEFAULT '',
		fetched     INTEGER NOT NULL DEFAULT 0,
		accepted    INTEGER NOT NULL DEFAULT 0,
		rejected    INTEGER NOT NULL DEFAULT 0,
		written     INTEGER NOT NULL DEFAULT 0,
		pruned      INTEGER NOT NULL DEFAULT 0,
		error       TEXT NOT NULL DEFAULT ''
	);
	`
	_, err := d.db.Exec(schema)
	return err
}

// checkScope compares the primary key of the existing media table with the
// requested scope.
func (d *DB) checkScope() error {
	query := `SELECT name FROM pragma_table_info('media') WHERE pk > 0`
	if d.driver == DriverPostgres {
		query = `SELECT kcu.column_name
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
			  ON kcu.constraint_name = tc.constraint_name
			 AND kcu.table_schema = tc.table_schema
			WHERE tc.table_name = 'media'
			  AND tc.table_schema = current_schema()
			  AND tc.constraint_type = 'PRIMARY KEY'`
	}
	rows, err := d.db.Query(query)
	if err != nil {
		return fmt.Errorf("reading media primary key: %w", err)
	}
	defer rows.Close()

	hasMediaType := false
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return err
		}
		if strings.EqualFold(col, "media_type") {
			hasMediaType = true
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	existing := KeyID
	if hasMediaType {
		existing = KeyIDMedia
	}
	if existing != d.scope {
		return fmt.Errorf("%w: table uses %q, requested %q", ErrScopeMismatch, existing, d.scope)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (d *DB) rebind(query string) string {
	if d.driver != DriverPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// InsertMedia inserts records in a single transaction. Rows whose key already
// exists are left untouched. It returns the number of rows actually inserted.
func (d *DB) InsertMedia(ctx context.Context, records []media.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, d.rebind(
		`INSERT INTO media (id, title, release_date, region, genres, overview, poster_url, media_type)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
	))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range records {
		res, err := stmt.ExecContext(ctx,
			r.ID, nullable(r.Title), nullable(r.ReleaseDate), nullable(r.Region),
			nullable(r.Genres), nullable(r.Overview), nullable(r.PosterURL), string(r.MediaType),
		)
		if err != nil {
			return 0, fmt.Errorf("inserting %s %d: %w", r.MediaType, r.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("counting inserted rows: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// Write implements the pipeline sink.
func (d *DB) Write(ctx context.Context, records []media.Record) (int, error) {
	return d.InsertMedia(ctx, records)
}

// Prune deletes rows released strictly before the given ISO date.
func (d *DB) Prune(ctx context.Context, before string) (int64, error) {
	res, err := d.db.ExecContext(ctx, d.rebind("DELETE FROM media WHERE release_date < ?"), before)
	if err != nil {
		return 0, fmt.Errorf("pruning media: %w", err)
	}
	return res.RowsAffected()
}

// ListFilter narrows List results.
type ListFilter struct {
	Kind   tmdb.Kind
	Query  string
	Since  string
	Limit  int
	Offset int
}

// List returns stored records, newest release first.
func (d *DB) List(ctx context.Context, f ListFilter) ([]media.Record, error) {
	var (
		where []string
		args  []any
	)
	if f.Kind != "" {
		where = append(where, "media_type = ?")
		args = append(args, string(f.Kind))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		where = append(where, "(LOWER(title) LIKE ? OR LOWER(genres) LIKE ? OR LOWER(region) LIKE ?)")
		like := "%" + strings.ToLower(q) + "%"
		args = append(args, like, like, like)
	}
	if f.Since != "" {
		where = append(where, "release_date >= ?")
		args = append(args, f.Since)
	}

	query := `SELECT id, COALESCE(title, ''), COALESCE(release_date, ''), COALESCE(region, ''),
		COALESCE(genres, ''), COALESCE(overview, ''), COALESCE(poster_url, ''), media_type
		FROM media`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY release_date DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := d.db.QueryContext(ctx, d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("listing media: %w", err)
	}
	defer rows.Close()

	var records []media.Record
	for rows.Next() {
		var (
			r    media.Record
			kind string
		)
		if err := rows.Scan(&r.ID, &r.Title, &r.ReleaseDate, &r.Region, &r.Genres, &r.Overview, &r.PosterURL, &kind); err != nil {
			return nil, err
		}
		r.MediaType = tmdb.Kind(kind)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Stats summarises the store.
type Stats struct {
	Total   int            `json:"total"`
	ByKind  map[string]int `json:"by_kind"`
	Oldest  string         `json:"oldest_release,omitempty"`
	Newest  string         `json:"newest_release,omitempty"`
	LastRun *Run           `json:"last_run,omitempty"`
}

// GetStats returns statistics about the stored records.
func (d *DB) GetStats(ctx context.Context) (Stats, error) {
	s := Stats{ByKind: map[string]int{}}

	rows, err := d.db.QueryContext(ctx, "SELECT media_type, COUNT(*) FROM media GROUP BY media_type")
	if err != nil {
		return s, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			kind  string
			count int
		)
		if err := rows.Scan(&kind, &count); err != nil {
			return s, err
		}
		s.ByKind[kind] = count
		s.Total += count
	}
	if err := rows.Err(); err != nil {
		return s, err
	}

	var oldest, newest sql.NullString
	if err := d.db.QueryRowContext(ctx, "SELECT MIN(release_date), MAX(release_date) FROM media").Scan(&oldest, &newest); err != nil {
		return s, err
	}
	s.Oldest, s.Newest = oldest.String, newest.String

	last, err := d.LastRun(ctx)
	if err != nil {
		return s, err
	}
	s.LastRun = last
	return s, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
