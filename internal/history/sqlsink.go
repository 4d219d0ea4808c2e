package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Dialect selects placeholder and column types for SQLSink.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Table is the relational table history rows go to.
const Table = "watchdog_history"

// sqliteTime is fixed-width so text ordering matches time ordering.
const sqliteTime = "2006-01-02T15:04:05.000000000Z07:00"

const columns = `occurred_at, event, target, process_running, last_activity, idle_seconds, healthy, reason, action, success, message, strategy, pid`

// SQLSink appends events to watchdog_history in SQLite or PostgreSQL.
// The backend packages open the driver; the schema is created if missing.
type SQLSink struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLSink(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLSink, error) {
	if db == nil {
		return nil, errors.New("nil database handle")
	}
	s := &SQLSink{db: db, dialect: dialect}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLSink) ensureSchema(ctx context.Context) error {
	// sqlite keeps timestamps as RFC3339 text so they sort and parse the same
	// regardless of driver settings
	tsType, realType := "TEXT", "REAL"
	if s.dialect == DialectPostgres {
		tsType, realType = "TIMESTAMPTZ", "DOUBLE PRECISION"
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s(
			occurred_at %s NOT NULL,
			event TEXT NOT NULL,
			target TEXT NOT NULL,
			process_running BOOLEAN NOT NULL,
			last_activity %s NULL,
			idle_seconds %s NOT NULL,
			healthy BOOLEAN NOT NULL,
			reason TEXT NOT NULL,
			action TEXT NOT NULL,
			success BOOLEAN NOT NULL,
			message TEXT NOT NULL,
			strategy TEXT NOT NULL,
			pid INTEGER NOT NULL
		);`, Table, tsType, tsType, realType),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_occurred_at ON %s(occurred_at);`, Table, Table),
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create history schema: %w", err)
		}
	}
	return nil
}

func (s *SQLSink) placeholders() string {
	if s.dialect == DialectPostgres {
		return "$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13"
	}
	return "?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?"
}

func (s *SQLSink) timeArg(t time.Time) any {
	if s.dialect == DialectPostgres {
		return t.UTC()
	}
	return t.UTC().Format(sqliteTime)
}

func (s *SQLSink) Send(ctx context.Context, e Event) error {
	rec := e.Record
	var lastActivity any
	if rec.LastActivity != nil {
		lastActivity = s.timeArg(*rec.LastActivity)
	}
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s(%s) VALUES(%s);`, Table, columns, s.placeholders()),
		s.timeArg(e.OccurredAt), string(e.Type), rec.Target, rec.ProcessRunning, lastActivity,
		rec.IdleSeconds, rec.Healthy, rec.Reason, rec.Action, rec.Success, rec.Message, rec.Strategy, rec.PID)
	if err != nil {
		return fmt.Errorf("insert history event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (s *SQLSink) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 20
	}
	q := fmt.Sprintf(`SELECT %s FROM %s ORDER BY occurred_at DESC LIMIT %d;`, columns, Table, limit)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Event
	for rows.Next() {
		var (
			e            Event
			evt          string
			occurred     any
			lastActivity any
		)
		if err := rows.Scan(&occurred, &evt, &e.Record.Target, &e.Record.ProcessRunning, &lastActivity,
			&e.Record.IdleSeconds, &e.Record.Healthy, &e.Record.Reason, &e.Record.Action, &e.Record.Success,
			&e.Record.Message, &e.Record.Strategy, &e.Record.PID); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.Type = EventType(evt)
		e.OccurredAt, _ = asTime(occurred)
		if t, ok := asTime(lastActivity); ok {
			e.Record.LastActivity = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLSink) Close() error { return s.db.Close() }

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case string:
		p, err := time.Parse(time.RFC3339Nano, t)
		return p, err == nil
	case []byte:
		p, err := time.Parse(time.RFC3339Nano, string(t))
		return p, err == nil
	default:
		return time.Time{}, false
	}
}
