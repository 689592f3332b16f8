package store

import (
	"context"
	"fmt"
)

// InsertEmailLog records a delivery attempt and prunes the log down to
// MaxEmailLogs in the same call. Pruning removes the oldest rows by
// timestamp, breaking ties on id, so the newest entry always survives
// its own insert.
func (s *Store) InsertEmailLog(ctx context.Context, entry *EmailLogEntry) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO email_logs (timestamp, filename, invoice_date, recipient_email, subject, status, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Timestamp, entry.Filename, entry.InvoiceDate,
		entry.RecipientEmail, entry.Subject, entry.Status, entry.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("insert email log: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}

	_, err = s.db.ExecContext(ctx,
		`DELETE FROM email_logs WHERE id IN (
			SELECT id FROM email_logs ORDER BY timestamp ASC, id ASC
			LIMIT MAX(0, (SELECT COUNT(*) FROM email_logs) - ?)
		)`, MaxEmailLogs)
	if err != nil {
		return fmt.Errorf("prune email log: %w", err)
	}
	return nil
}

// SetEmailLogError annotates an existing entry without changing its
// status. Used when a mail went out but the file could not be archived.
func (s *Store) SetEmailLogError(ctx context.Context, id int64, msg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE email_logs SET error_message = ? WHERE id = ?`, msg, id)
	if err != nil {
		return fmt.Errorf("set email log error: %w", err)
	}
	return nil
}

// HasSentEntry reports whether a successful delivery of filename to
// recipient is still present in the log. History past the retention cap
// is forgotten, so an old duplicate can be sent again.
func (s *Store) HasSentEntry(ctx context.Context, filename, recipient string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM email_logs WHERE filename = ? AND recipient_email = ? AND status = ?`,
		filename, recipient, StatusSent).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("dedup lookup: %w", err)
	}
	return n > 0, nil
}

// RecentLogs returns delivery log entries, newest first.
func (s *Store) RecentLogs(ctx context.Context, limit int) ([]*EmailLogEntry, error) {
	if limit <= 0 || limit > MaxEmailLogs {
		limit = MaxEmailLogs
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, filename, invoice_date, recipient_email, subject, status, error_message
		FROM email_logs ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*EmailLogEntry
	for rows.Next() {
		var e EmailLogEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Filename, &e.InvoiceDate,
			&e.RecipientEmail, &e.Subject, &e.Status, &e.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan email log: %w", err)
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}

// CountEmailLogs returns the number of rows in the delivery log.
func (s *Store) CountEmailLogs(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM email_logs`).Scan(&n)
	return n, err
}
