// Package temporal detects multi-cycle patterns: flapping, escalation,
// drift, recurrence, and recovery. Observations are persisted to SQLite so
// detection windows survive daemon restarts.
package temporal

import (
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vigil-sys/vigil/internal/models"
	"github.com/vigil-sys/vigil/internal/utils"
)

// IssuePoint records whether an issue subject was firing at one cycle.
type IssuePoint struct {
	Subject   string
	Timestamp time.Time
	Present   bool
	Severity  models.Severity
}

// MetricPoint records one numeric sample for a drift-tracked subject.
type MetricPoint struct {
	Subject   string
	Timestamp time.Time
	Value     float64
}

// Store persists observation history. SQLite works best with a single
// writer, so the pool is pinned to one connection.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenStore opens (or creates) the observation database at path.
func OpenStore(path string, logger *slog.Logger) (*Store, error) {
	const op = "temporal.OpenStore"
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, utils.NewAppError(op, "create state directory", err)
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, utils.NewAppError(op, "open observation database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, utils.NewAppError(op, "initialize schema", err)
	}
	logger.Info("observation store opened", slog.String("path", path))
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS observations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			subject TEXT NOT NULL,
			kind TEXT NOT NULL,
			ts INTEGER NOT NULL,
			present INTEGER NOT NULL DEFAULT 0,
			severity TEXT NOT NULL DEFAULT '',
			value REAL NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_observations_subject
		ON observations(kind, subject, ts);

		CREATE INDEX IF NOT EXISTS idx_observations_ts
		ON observations(ts);
	`
	_, err := s.db.Exec(schema)
	return err
}

const (
	kindIssue  = "issue"
	kindMetric = "metric"
)

// AppendCycle writes one cycle's observations in a single transaction.
func (s *Store) AppendCycle(issues []IssuePoint, metrics []MetricPoint) error {
	const op = "temporal.Store.AppendCycle"
	if len(issues) == 0 && len(metrics) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return utils.NewAppError(op, "begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO observations (subject, kind, ts, present, severity, value)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return utils.NewAppError(op, "prepare insert", err)
	}
	defer stmt.Close()

	for _, p := range issues {
		present := 0
		if p.Present {
			present = 1
		}
		if _, err := stmt.Exec(p.Subject, kindIssue, p.Timestamp.UTC().Unix(), present, string(p.Severity), 0.0); err != nil {
			return utils.NewAppError(op, "insert issue point", err)
		}
	}
	for _, p := range metrics {
		if _, err := stmt.Exec(p.Subject, kindMetric, p.Timestamp.UTC().Unix(), 0, "", p.Value); err != nil {
			return utils.NewAppError(op, "insert metric point", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return utils.NewAppError(op, "commit", err)
	}
	return nil
}

// Load returns all observations at or after since, oldest first.
func (s *Store) Load(since time.Time) ([]IssuePoint, []MetricPoint, error) {
	const op = "temporal.Store.Load"
	rows, err := s.db.Query(`
		SELECT subject, kind, ts, present, severity, value
		FROM observations
		WHERE ts >= ?
		ORDER BY ts ASC, id ASC`, since.UTC().Unix())
	if err != nil {
		return nil, nil, utils.NewAppError(op, "query observations", err)
	}
	defer rows.Close()

	var issues []IssuePoint
	var metrics []MetricPoint
	for rows.Next() {
		var subject, kind, severity string
		var ts int64
		var present int
		var value float64
		if err := rows.Scan(&subject, &kind, &ts, &present, &severity, &value); err != nil {
			return nil, nil, utils.NewAppError(op, "scan row", err)
		}
		when := time.Unix(ts, 0).UTC()
		switch kind {
		case kindIssue:
			issues = append(issues, IssuePoint{
				Subject:   subject,
				Timestamp: when,
				Present:   present == 1,
				Severity:  models.Severity(severity),
			})
		case kindMetric:
			metrics = append(metrics, MetricPoint{Subject: subject, Timestamp: when, Value: value})
		}
	}
	return issues, metrics, rows.Err()
}

// Prune deletes observations older than before and reports the row count.
func (s *Store) Prune(before time.Time) (int64, error) {
	const op = "temporal.Store.Prune"
	res, err := s.db.Exec(`DELETE FROM observations WHERE ts < ?`, before.UTC().Unix())
	if err != nil {
		return 0, utils.NewAppError(op, "delete expired observations", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Debug("pruned observations", slog.Int64("rows", n))
	}
	return n, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
