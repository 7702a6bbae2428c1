package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "cctvbot/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrations string

type sqliteStore struct {
	db  *sql.DB
	cfg Config
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: SQLite serializes writers anyway, and ":memory:" databases
	// are per-connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, cfg: cfg, log: log.With(logx.String("comp", "storage.sqlite"))}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate %s: %w", path, err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migrations)
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const violationColumns = `COALESCE(id, ''), recorded_at, creation_timezone, factory_area,
	inspection_section, violation_type, COALESCE(image_url, ''), resolved`

// query runs a violation SELECT. Rows that scan but cannot be interpreted are
// skipped with a warning; a scan failure fails the whole call.
func (s *sqliteStore) query(ctx context.Context, where string, args ...any) ([]Violation, error) {
	q := "SELECT " + violationColumns + " FROM violations"
	if where != "" {
		q += " WHERE " + where
	}
	q += " ORDER BY seq"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query violations: %w", err)
	}
	defer rows.Close()

	var out []Violation
	for rows.Next() {
		var r rawViolation
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.CreationTimezone, &r.FactoryArea,
			&r.InspectionSection, &r.ViolationType, &r.ImageURL, &r.Resolved); err != nil {
			return nil, fmt.Errorf("failed to scan violation: %w", err)
		}
		v, err := r.parse()
		if err != nil {
			s.log.Warn("skipping violation row", logx.Err(err))
			continue
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read violations: %w", err)
	}
	return number(out), nil
}

func (s *sqliteStore) FetchAll(ctx context.Context) ([]Violation, error) {
	return s.query(ctx, "")
}

func (s *sqliteStore) FetchUnresolved(ctx context.Context) ([]Violation, error) {
	all, err := s.query(ctx, "")
	if err != nil {
		return nil, err
	}
	return filter(all, func(v Violation) bool { return !v.Resolved }), nil
}

func (s *sqliteStore) FetchByViolationType(ctx context.Context, violationType string) ([]Violation, error) {
	return s.query(ctx, "instr(lower(violation_type), lower(?)) > 0", strings.TrimSpace(violationType))
}

func (s *sqliteStore) FetchByFactoryArea(ctx context.Context, area string) ([]Violation, error) {
	return s.query(ctx, "instr(lower(factory_area), lower(?)) > 0", strings.TrimSpace(area))
}

func (s *sqliteStore) UpdateResolved(ctx context.Context, id string, resolved bool) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx, `UPDATE violations SET resolved = ? WHERE id = ?`, formatResolved(resolved), id)
	if err != nil {
		return false, fmt.Errorf("failed to update violation %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check update result: %w", err)
	}
	return n > 0, nil
}

func (s *sqliteStore) InsertViolation(ctx context.Context, v Violation) (Violation, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO violations(id, recorded_at, creation_timezone, factory_area, inspection_section, violation_type, image_url, resolved)
		 VALUES(?,?,?,?,?,?,?,?)`,
		nullStr(v.ID), v.Timestamp, v.CreationTimezone, v.FactoryArea, v.InspectionSection,
		v.ViolationType, nullStr(v.ImageURL), formatResolved(v.Resolved),
	)
	if err != nil {
		return Violation{}, fmt.Errorf("failed to insert violation: %w", err)
	}
	v.SequenceIndex = 0
	return v, nil
}

func (s *sqliteStore) InsertSynthetic(ctx context.Context) (Violation, error) {
	all, err := s.query(ctx, "")
	if err != nil {
		return Violation{}, err
	}
	return s.InsertViolation(ctx, synthesize(all, time.Now(), s.cfg.Timezone))
}

func (s *sqliteStore) ListActiveAddresses(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT address FROM subscribers WHERE active = 1 ORDER BY created_at, address`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}
		out = append(out, addr)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ListSubscribers(ctx context.Context) ([]Subscriber, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT address, created_at, active FROM subscribers ORDER BY created_at, address`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	defer rows.Close()

	var out []Subscriber
	for rows.Next() {
		var (
			sub     Subscriber
			created string
		)
		if err := rows.Scan(&sub.Address, &created, &sub.Active); err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}
		sub.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, sub)
	}
	return out, rows.Err()
}

// AddAddress inserts a new subscriber or reactivates a soft-deleted one.
// It reports false for invalid or already-active addresses.
func (s *sqliteStore) AddAddress(ctx context.Context, addr string) (bool, error) {
	if !ValidAddress(addr) {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO subscribers(address, created_at, active) VALUES(?, ?, 1)
		 ON CONFLICT(address) DO UPDATE SET active = 1 WHERE subscribers.active = 0`,
		addr, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, fmt.Errorf("failed to add subscriber %s: %w", addr, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check insert result: %w", err)
	}
	return n > 0, nil
}

func (s *sqliteStore) DeactivateAddress(ctx context.Context, addr string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE subscribers SET active = 0 WHERE address = ? AND active = 1`, addr)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate subscriber %s: %w", addr, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check update result: %w", err)
	}
	return n > 0, nil
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, actor, action, target, ok, detail) VALUES(?,?,?,?,?,?)`,
		e.At.UTC().Format(time.RFC3339Nano), nullStr(e.Actor), e.Action, nullStr(e.Target), e.OK, nullStr(e.Detail),
	)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
