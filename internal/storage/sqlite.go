package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/notifydone/notifyd/internal/model"
)

// SQLite mirrors notification outcomes to disk so history queries survive
// a daemon restart. It is a best-effort mirror: write failures are logged
// by the caller and never stall the pipeline.
type SQLite struct {
	DB *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	// Some environments restrict SQLite creating new files, but allow
	// opening an existing file. Pre-create the DB file to avoid
	// SQLITE_CANTOPEN.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("precreate sqlite db %s: %w", path, err)
	}
	_ = f.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	s := &SQLite{DB: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) init() error {
	_, err := s.DB.Exec(`
CREATE TABLE IF NOT EXISTS outcomes (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	recorded_at   INTEGER NOT NULL,
	kind          TEXT NOT NULL,
	pid           INTEGER NOT NULL,
	uid           INTEGER NOT NULL,
	comm          TEXT NOT NULL,
	duration_ns   INTEGER NOT NULL,
	has_duration  INTEGER NOT NULL,
	exit_code     INTEGER NOT NULL,
	should_notify INTEGER NOT NULL,
	dispatched    INTEGER NOT NULL,
	sessions      TEXT NOT NULL,
	error         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outcomes_recorded ON outcomes(recorded_at);
CREATE INDEX IF NOT EXISTS idx_outcomes_uid ON outcomes(uid);
`)
	if err != nil {
		return fmt.Errorf("init sqlite schema: %w", err)
	}
	return nil
}

func (s *SQLite) InsertOutcome(o model.Outcome) error {
	_, err := s.DB.Exec(`
INSERT INTO outcomes (recorded_at, kind, pid, uid, comm, duration_ns, has_duration, exit_code, should_notify, dispatched, sessions, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.RecordedAt.UnixNano(),
		string(o.Kind),
		o.Task.PID,
		o.Task.UID,
		o.Task.Comm,
		int64(o.Task.Duration),
		boolInt(o.Task.HasDuration),
		o.Task.ExitCode,
		boolInt(o.Task.ShouldNotify),
		boolInt(o.Dispatched),
		strings.Join(o.Sessions, ","),
		string(o.Error),
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// Prune keeps only the newest capacity rows, mirroring the in-memory
// ring's FIFO eviction.
func (s *SQLite) Prune(capacity int) error {
	if capacity <= 0 {
		return nil
	}
	_, err := s.DB.Exec(`
DELETE FROM outcomes WHERE id <= (SELECT COALESCE(MAX(id), 0) FROM outcomes) - ?`, capacity)
	if err != nil {
		return fmt.Errorf("prune outcomes: %w", err)
	}
	return nil
}

// QueryRecent returns up to limit outcomes, most recent first.
func (s *SQLite) QueryRecent(limit int) ([]model.Outcome, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.Query(`
SELECT recorded_at, kind, pid, uid, comm, duration_ns, has_duration, exit_code, should_notify, dispatched, sessions, error
FROM outcomes ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []model.Outcome
	for rows.Next() {
		var (
			recordedAt, durationNS       int64
			hasDuration, should, dispat  int
			kind, comm, sessions, errStr string
			pid, uid                     uint32
			exitCode                     int32
		)
		if err := rows.Scan(&recordedAt, &kind, &pid, &uid, &comm, &durationNS, &hasDuration, &exitCode, &should, &dispat, &sessions, &errStr); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o := model.Outcome{
			Kind: model.OutcomeKind(kind),
			Task: model.CompletedTask{
				PID:          pid,
				UID:          uid,
				Comm:         comm,
				Duration:     time.Duration(durationNS),
				HasDuration:  hasDuration != 0,
				ExitCode:     exitCode,
				ShouldNotify: should != 0,
			},
			Dispatched: dispat != 0,
			Error:      model.ErrorKind(errStr),
			RecordedAt: time.Unix(0, recordedAt).UTC(),
		}
		if sessions != "" {
			o.Sessions = strings.Split(sessions, ",")
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
