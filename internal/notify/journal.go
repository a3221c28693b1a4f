package notify

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

var journalMigrations = []string{
	`CREATE TABLE IF NOT EXISTS alarm_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		event TEXT NOT NULL,
		node TEXT NOT NULL,
		monitor_id TEXT NOT NULL,
		monitor TEXT NOT NULL,
		title TEXT NOT NULL,
		unit TEXT NOT NULL DEFAULT '',
		rule_name TEXT NOT NULL,
		exceedance TEXT NOT NULL,
		threshold REAL NOT NULL,
		datapoints INTEGER NOT NULL,
		previous_rule TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_alarm_events_ts ON alarm_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_alarm_events_monitor ON alarm_events(monitor_id, timestamp);`,
}

func runJournalMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return err
	}

	var currentVersion int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return err
	}

	for i := currentVersion; i < len(journalMigrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(journalMigrations[i]); err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", i+1); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// Journal appends alarm lifecycle events to a local SQLite database: an
// audit trail of what fired and when, queryable after the fact.
type Journal struct {
	db  *sql.DB
	log *slog.Logger
}

// JournalEntry is one recorded lifecycle event.
type JournalEntry struct {
	ID           int64     `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Event        string    `json:"event"`
	Node         string    `json:"node"`
	MonitorID    string    `json:"monitor_id"`
	Monitor      string    `json:"monitor"`
	Title        string    `json:"title"`
	Unit         string    `json:"unit"`
	RuleName     string    `json:"rule_name"`
	Exceedance   string    `json:"exceedance"`
	Threshold    float64   `json:"threshold"`
	Datapoints   int       `json:"datapoints"`
	PreviousRule string    `json:"previous_rule,omitempty"`
}

// NewJournal opens (or creates) the database and runs migrations.
func NewJournal(path string, logger *slog.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite single-writer
	if err := runJournalMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal migrations: %w", err)
	}
	return &Journal{db: db, log: logger}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) AlarmStarted(ctx context.Context, e Event) {
	j.insert(ctx, EventStarted, e, "")
}

func (j *Journal) AlarmEnded(ctx context.Context, e Event) {
	j.insert(ctx, EventEnded, e, "")
}

func (j *Journal) AlarmChanged(ctx context.Context, prev, next Event) {
	j.insert(ctx, EventChanged, next, prev.Rule.Name)
}

func (j *Journal) AlarmReminder(ctx context.Context, e Event) {
	j.insert(ctx, EventReminder, e, "")
}

// insert appends one event row. Failures are logged, never returned.
func (j *Journal) insert(ctx context.Context, kind string, e Event, previousRule string) {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO alarm_events
			(timestamp, event, node, monitor_id, monitor, title, unit, rule_name, exceedance, threshold, datapoints, previous_rule)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Time.Unix(), kind, e.Node, e.MonitorID.String(), e.Monitor, e.Title, e.Unit,
		e.Rule.Name, string(e.Rule.Exceedance), e.Rule.Value, e.Rule.Count, previousRule)
	if err != nil {
		j.log.Error("failed to record alarm event", "event", kind, "error", err)
	}
}

// Events returns the most recent entries, newest first.
func (j *Journal) Events(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, timestamp, event, node, monitor_id, monitor, title, unit, rule_name, exceedance, threshold, datapoints, previous_rule
		FROM alarm_events
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var en JournalEntry
		var ts int64
		if err := rows.Scan(&en.ID, &ts, &en.Event, &en.Node, &en.MonitorID, &en.Monitor, &en.Title,
			&en.Unit, &en.RuleName, &en.Exceedance, &en.Threshold, &en.Datapoints, &en.PreviousRule); err != nil {
			return nil, err
		}
		en.Timestamp = time.Unix(ts, 0)
		entries = append(entries, en)
	}
	return entries, rows.Err()
}
