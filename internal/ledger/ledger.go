// Package ledger keeps an append-only local record of the mutations homepanel sent
// to the backend. The backend history stays the source of truth; the ledger answers
// "what did this panel do" even when the backend is unreachable.
package ledger

import (
	"database/sql"
	"fmt"
	"time"
)

// Result is the outcome of a recorded action
type Result string

const (
	ResultOK     Result = "ok"
	ResultFailed Result = "failed"
)

// Entry represents a single recorded action
type Entry struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	Target    string    `json:"target,omitempty"`
	Result    Result    `json:"result"`
	Status    int       `json:"status,omitempty"` // backend HTTP status, 0 for transport failures
	Error     string    `json:"error,omitempty"`
	Source    string    `json:"source,omitempty"` // cli, dashboard, ...
	RequestID string    `json:"requestId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Ledger provides append-only action logging
type Ledger struct {
	db *sql.DB
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Append stores the entry and fills in its ID and Timestamp
func (l *Ledger) Append(entry *Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.Result == "" {
		entry.Result = ResultOK
	}

	res, err := l.db.Exec(`
		INSERT INTO action_ledger (action, resource, target, result, status, error, source, request_id, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.Action, entry.Resource, entry.Target, string(entry.Result), entry.Status, entry.Error,
		entry.Source, entry.RequestID, entry.Timestamp.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}

	entry.ID, err = res.LastInsertId()
	return err
}

// Recent returns the newest entries first
func (l *Ledger) Recent(limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, action, resource, target, result, status, error, source, request_id, timestamp
		FROM action_ledger
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ByResource returns the newest entries for one resource
func (l *Ledger) ByResource(resource string, limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, action, resource, target, result, status, error, source, request_id, timestamp
		FROM action_ledger
		WHERE resource = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, resource, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ByTimeRange returns entries within a time range
func (l *Ledger) ByTimeRange(start, end time.Time, limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, action, resource, target, result, status, error, source, request_id, timestamp
		FROM action_ledger
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, start.UnixMilli(), end.UnixMilli(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UnixMilli()
	result, err := l.db.Exec(`DELETE FROM action_ledger WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var target, errText, source, requestID sql.NullString
		var status sql.NullInt64
		var result string
		var timestamp int64

		err := rows.Scan(
			&entry.ID, &entry.Action, &entry.Resource, &target, &result, &status,
			&errText, &source, &requestID, &timestamp,
		)
		if err != nil {
			return nil, err
		}

		entry.Result = Result(result)
		entry.Target = target.String
		entry.Status = int(status.Int64)
		entry.Error = errText.String
		entry.Source = source.String
		entry.RequestID = requestID.String
		entry.Timestamp = time.UnixMilli(timestamp).UTC()

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
