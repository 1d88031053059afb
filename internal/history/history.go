// Package history records finished meditation sessions in SQLite and
// answers simple statistics queries over them.
package history

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/stillmind/stillmind/internal/db"
)

const (
	appName    = "stillmind"
	dbFileName = "stillmind.db"
)

// Entry is one recorded session.
type Entry struct {
	ID         uuid.UUID
	StartedAt  time.Time
	Planned    time.Duration
	Elapsed    time.Duration
	AmbienceID string
	BellID     string
	Completed  bool
}

// Stats summarizes the recorded history.
type Stats struct {
	TotalSessions int
	Completed     int
	TotalTime     time.Duration
	StreakDays    int
}

// Store persists session history.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the history database in the XDG
// data directory.
func Open() (*Store, error) {
	return OpenPath(filepath.Join(xdg.DataHome, appName, dbFileName))
}

// OpenPath opens the history database at an explicit path.
func OpenPath(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if err := initSchema(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return &Store{db: sqlDB}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts one session entry.
func (s *Store) Record(e Entry) error {
	return db.WithTx(s.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO sessions (id, started_at, planned_seconds, elapsed_seconds, ambience_id, bell_id, completed)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.ID.String(),
			e.StartedAt.Unix(),
			int64(e.Planned.Seconds()),
			int64(e.Elapsed.Seconds()),
			e.AmbienceID,
			e.BellID,
			boolToInt(e.Completed),
		)
		return err
	})
}

// List returns the most recent entries, newest first.
func (s *Store) List(limit int) ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, planned_seconds, elapsed_seconds, ambience_id, bell_id, completed
		FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			id               string
			startedAt        int64
			planned, elapsed int64
			ambience, bell   string
			completed        int
		)
		if err := rows.Scan(&id, &startedAt, &planned, &elapsed, &ambience, &bell, &completed); err != nil {
			return nil, err
		}
		uid, _ := uuid.Parse(id)
		entries = append(entries, Entry{
			ID:         uid,
			StartedAt:  time.Unix(startedAt, 0),
			Planned:    time.Duration(planned) * time.Second,
			Elapsed:    time.Duration(elapsed) * time.Second,
			AmbienceID: ambience,
			BellID:     bell,
			Completed:  completed != 0,
		})
	}
	return entries, rows.Err()
}

// Stats aggregates the full history. The streak counts consecutive
// calendar days, ending today or yesterday, with at least one
// completed session.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	err := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(completed), 0),
		       COALESCE(SUM(elapsed_seconds), 0)
		FROM sessions`).Scan(&st.TotalSessions, &st.Completed, &totalSecondsScanner{&st.TotalTime})
	if err != nil {
		return Stats{}, err
	}

	days, err := s.completedDays()
	if err != nil {
		return Stats{}, err
	}
	st.StreakDays = streak(days, time.Now())
	return st, nil
}

// completedDays returns the distinct local calendar days with a
// completed session, newest first.
func (s *Store) completedDays() ([]time.Time, error) {
	rows, err := s.db.Query(`
		SELECT started_at FROM sessions WHERE completed = 1 ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []time.Time
	seen := map[string]bool{}
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		day := time.Unix(ts, 0).Local()
		day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.Local)
		key := day.Format("2006-01-02")
		if !seen[key] {
			seen[key] = true
			days = append(days, day)
		}
	}
	return days, rows.Err()
}

// streak counts consecutive days with completed sessions, walking
// back from today (or yesterday, so an unbroken streak is not lost
// before tonight's sit).
func streak(days []time.Time, now time.Time) int {
	if len(days) == 0 {
		return 0
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
	expect := today
	if !days[0].Equal(today) {
		expect = today.AddDate(0, 0, -1)
	}

	count := 0
	for _, day := range days {
		if !day.Equal(expect) {
			break
		}
		count++
		expect = expect.AddDate(0, 0, -1)
	}
	return count
}

func initSchema(sqlDB *sql.DB) error {
	_, err := sqlDB.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		);

		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			started_at INTEGER NOT NULL,
			planned_seconds INTEGER NOT NULL,
			elapsed_seconds INTEGER NOT NULL,
			ambience_id TEXT NOT NULL DEFAULT '',
			bell_id TEXT NOT NULL DEFAULT '',
			completed INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);

		INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// totalSecondsScanner scans a seconds sum into a time.Duration.
type totalSecondsScanner struct {
	d *time.Duration
}

func (t *totalSecondsScanner) Scan(v any) error {
	switch n := v.(type) {
	case int64:
		*t.d = time.Duration(n) * time.Second
	case float64:
		*t.d = time.Duration(n) * time.Second
	}
	return nil
}
