// Package history persists completed measurement results in a local sqlite
// database. It is optional glue around the measurement core: failures here
// must never affect a run, so callers log and move on.
package history

import (
	"database/sql"
	"time"

	// sqlite driver registration.
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/Cyberes/cf-speedtest-custom/data"
)

const schema = `
CREATE TABLE IF NOT EXISTS results (
	uuid TEXT PRIMARY KEY,
	schema_version INTEGER NOT NULL,
	start_time TEXT NOT NULL,
	end_time TEXT NOT NULL,
	download_bps REAL NOT NULL,
	upload_bps REAL NOT NULL,
	ping_ms REAL NOT NULL,
	jitter_ms REAL NOT NULL,
	client_ip TEXT NOT NULL,
	country TEXT NOT NULL,
	org TEXT NOT NULL,
	colo TEXT NOT NULL
);`

// Store is an open history database.
type Store struct {
	db *sql.DB
}

// Open opens (and if necessary creates) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open history database")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "cannot initialise history schema")
	}
	return &Store{db: db}, nil
}

// Save records one completed result.
func (s *Store) Save(r *data.Result) error {
	_, err := s.db.Exec(
		`INSERT INTO results
		 (uuid, schema_version, start_time, end_time, download_bps,
		  upload_bps, ping_ms, jitter_ms, client_ip, country, org, colo)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.UUID, r.SchemaVersion,
		r.StartTime.Format(time.RFC3339Nano), r.EndTime.Format(time.RFC3339Nano),
		r.DownloadSpeed, r.UploadSpeed, r.PingMS, r.JitterMS,
		r.Identity.IP, r.Identity.Country, r.Identity.Org, r.Identity.Colo)
	return errors.Wrap(err, "cannot save result")
}

// Recent returns up to n results, most recent first.
func (s *Store) Recent(n int) ([]data.Result, error) {
	rows, err := s.db.Query(
		`SELECT uuid, schema_version, start_time, end_time, download_bps,
		        upload_bps, ping_ms, jitter_ms, client_ip, country, org, colo
		 FROM results ORDER BY start_time DESC LIMIT ?`, n)
	if err != nil {
		return nil, errors.Wrap(err, "cannot query history")
	}
	defer rows.Close()

	results := []data.Result{}
	for rows.Next() {
		var r data.Result
		var start, end string
		err := rows.Scan(&r.UUID, &r.SchemaVersion, &start, &end,
			&r.DownloadSpeed, &r.UploadSpeed, &r.PingMS, &r.JitterMS,
			&r.Identity.IP, &r.Identity.Country, &r.Identity.Org, &r.Identity.Colo)
		if err != nil {
			return nil, errors.Wrap(err, "cannot scan history row")
		}
		r.StartTime, _ = time.Parse(time.RFC3339Nano, start)
		r.EndTime, _ = time.Parse(time.RFC3339Nano, end)
		results = append(results, r)
	}
	return results, errors.Wrap(rows.Err(), "history iteration failed")
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
