package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/errors"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/logging"
	_ "modernc.org/sqlite"
)

// SQLiteAuditStore persists audit events in SQLite with WAL mode.
// It is safe for concurrent use.
type SQLiteAuditStore struct {
	db     *sql.DB
	logger *logging.Logger

	// Async writes in flight, drained by Close
	pending sync.WaitGroup
	closeMu sync.RWMutex
	closed  bool

	// Retention cleanup
	cleanupTicker *time.Ticker
	cleanupDone   chan struct{}
	retentionDays int
}

// NewSQLiteAuditStore opens the ledger at dbPath with a 90 day retention.
func NewSQLiteAuditStore(dbPath string) (*SQLiteAuditStore, error) {
	return NewSQLiteAuditStoreWithRetention(dbPath, 90)
}

// NewSQLiteAuditStoreWithRetention opens the ledger and starts hourly cleanup
// of events older than retentionDays. Zero disables cleanup.
func NewSQLiteAuditStoreWithRetention(dbPath string, retentionDays int) (*SQLiteAuditStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &errors.ErrDirectoryCreate{Path: dir, Err: err}
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, &errors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &errors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteAuditStore{
		db:            db,
		logger:        logging.NewLogger(),
		cleanupDone:   make(chan struct{}),
		retentionDays: retentionDays,
	}

	if retentionDays > 0 {
		store.startCleanup()
	}

	return store, nil
}

// WithLogger replaces the store's logger.
func (s *SQLiteAuditStore) WithLogger(logger *logging.Logger) *SQLiteAuditStore {
	s.logger = logger
	return s
}

func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "create migrations table", Err: err}
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "get current migration version", Err: err}
	}

	// Timestamps are stored as unix nanoseconds so range filters compare
	// numerically.
	migrations := []struct {
		version int
		up      string
	}{
		{
			version: 1,
			up: `
				CREATE TABLE IF NOT EXISTS audit_events (
					id TEXT PRIMARY KEY,
					timestamp INTEGER NOT NULL,
					event_type TEXT NOT NULL,
					severity TEXT NOT NULL,
					actor TEXT NOT NULL DEFAULT '',
					ip_address TEXT NOT NULL DEFAULT '',
					correlation_id TEXT NOT NULL DEFAULT '',
					action TEXT NOT NULL,
					resource TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL,
					details TEXT,
					error_message TEXT NOT NULL DEFAULT ''
				);

				CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp);
				CREATE INDEX IF NOT EXISTS idx_audit_event_type ON audit_events(event_type);
				CREATE INDEX IF NOT EXISTS idx_audit_resource ON audit_events(resource);
			`,
		},
		{
			version: 2,
			up: `
				CREATE INDEX IF NOT EXISTS idx_audit_correlation_id ON audit_events(correlation_id);
			`,
		},
	}

	tx, err := db.Begin()
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "begin transaction", Err: err}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, m := range migrations {
		if m.version > currentVersion {
			if _, err := tx.Exec(m.up); err != nil {
				return &errors.ErrDatabaseMigration{Version: m.version, Err: err}
			}
			if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
				return &errors.ErrDatabaseMigration{Version: m.version, Err: err}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return &errors.ErrDatabaseQuery{Operation: "commit migrations", Err: err}
	}

	return nil
}

func (s *SQLiteAuditStore) startCleanup() {
	s.cleanupTicker = time.NewTicker(time.Hour)
	go func() {
		for {
			select {
			case <-s.cleanupTicker.C:
				s.cleanupOldEvents()
			case <-s.cleanupDone:
				return
			}
		}
	}()
}

// cleanupOldEvents removes events past the retention window
func (s *SQLiteAuditStore) cleanupOldEvents() int64 {
	if s.retentionDays <= 0 {
		return 0
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)
	res, err := s.db.Exec("DELETE FROM audit_events WHERE timestamp < ?", cutoff.UnixNano())
	if err != nil {
		s.logger.Error("cleanup failed", "table", "audit_events", "error", err.Error())
		return 0
	}
	n, _ := res.RowsAffected()
	return n
}

// SaveEvent writes one event synchronously.
func (s *SQLiteAuditStore) SaveEvent(event *logging.AuditEvent) error {
	var details sql.NullString
	if len(event.Details) > 0 {
		data, err := json.Marshal(event.Details)
		if err != nil {
			return &errors.ErrDatabaseQuery{Operation: "encode audit details", Err: err}
		}
		details = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO audit_events (id, timestamp, event_type, severity, actor, ip_address,
			correlation_id, action, resource, status, details, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.ID,
		event.Timestamp.UnixNano(),
		string(event.EventType),
		string(event.Severity),
		event.Actor,
		event.IPAddress,
		event.CorrelationID,
		event.Action,
		event.Resource,
		string(event.Status),
		details,
		event.ErrorMessage,
	)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "insert audit event", Err: err}
	}
	return nil
}

// SaveEventAsync writes the event in the background. Failures are logged.
// Events submitted after Close are dropped.
func (s *SQLiteAuditStore) SaveEventAsync(event *logging.AuditEvent) {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.SaveEvent(event); err != nil {
			s.logger.Error("failed to save audit event", "event_id", event.ID, "error", err.Error())
		}
	}()
}

// Flush waits for in-flight async writes.
func (s *SQLiteAuditStore) Flush() {
	s.pending.Wait()
}

func buildWhere(filters logging.AuditQueryFilters) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if filters.EventType != "" {
		clauses = append(clauses, "event_type = ?")
		args = append(args, filters.EventType)
	}
	if filters.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filters.Status)
	}
	if filters.Resource != "" {
		clauses = append(clauses, "resource = ?")
		args = append(args, filters.Resource)
	}
	if filters.Actor != "" {
		clauses = append(clauses, "actor = ?")
		args = append(args, filters.Actor)
	}
	if !filters.Since.IsZero() {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, filters.Since.UnixNano())
	}
	if !filters.Until.IsZero() {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, filters.Until.UnixNano())
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// QueryEvents returns matching events ordered by timestamp.
func (s *SQLiteAuditStore) QueryEvents(ctx context.Context, filters logging.AuditQueryFilters) ([]*logging.AuditEvent, error) {
	where, args := buildWhere(filters)

	query := `SELECT id, timestamp, event_type, severity, actor, ip_address, correlation_id,
		action, resource, status, details, error_message FROM audit_events` + where
	if filters.OrderDesc {
		query += " ORDER BY timestamp DESC"
	} else {
		query += " ORDER BY timestamp ASC"
	}
	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
		if filters.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filters.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "query audit events", Err: err}
	}
	defer rows.Close()

	var events []*logging.AuditEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "iterate audit events", Err: err}
	}
	return events, nil
}

func (s *SQLiteAuditStore) CountEvents(ctx context.Context, filters logging.AuditQueryFilters) (int, error) {
	where, args := buildWhere(filters)
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_events"+where, args...).Scan(&n); err != nil {
		return 0, &errors.ErrDatabaseQuery{Operation: "count audit events", Err: err}
	}
	return n, nil
}

// GetEventByID returns nil, nil when no event has that id.
func (s *SQLiteAuditStore) GetEventByID(ctx context.Context, id string) (*logging.AuditEvent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, timestamp, event_type, severity, actor, ip_address,
		correlation_id, action, resource, status, details, error_message FROM audit_events WHERE id = ?`, id)
	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return event, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row scanner) (*logging.AuditEvent, error) {
	var (
		event     logging.AuditEvent
		timestamp int64
		eventType string
		severity  string
		status    string
		details   sql.NullString
	)
	err := row.Scan(
		&event.ID,
		&timestamp,
		&eventType,
		&severity,
		&event.Actor,
		&event.IPAddress,
		&event.CorrelationID,
		&event.Action,
		&event.Resource,
		&status,
		&details,
		&event.ErrorMessage,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "scan audit event", Err: err}
	}

	event.Timestamp = time.Unix(0, timestamp).UTC()
	event.EventType = logging.EventTypeFromString(eventType)
	event.Severity = logging.AuditSeverity(severity)
	event.Status = logging.AuditStatus(status)
	if details.Valid && details.String != "" {
		if err := json.Unmarshal([]byte(details.String), &event.Details); err != nil {
			return nil, &errors.ErrDatabaseQuery{Operation: "decode audit details", Err: err}
		}
	}
	return &event, nil
}

// Close drains pending writes, stops cleanup and closes the database.
func (s *SQLiteAuditStore) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeMu.Unlock()

	s.pending.Wait()

	if s.cleanupTicker != nil {
		s.cleanupTicker.Stop()
		close(s.cleanupDone)
	}

	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
