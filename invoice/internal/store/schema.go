// CLAUDE:SUMMARY Applies the invoice service SQL schema: delivery log and settings tables.
package store

// Schema is the complete invoice service schema.
const Schema = `
-- Delivery log: one row per attempted send, capped at 100 rows
CREATE TABLE IF NOT EXISTS email_logs (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp       INTEGER NOT NULL,
    filename        TEXT NOT NULL,
    invoice_date    TEXT NOT NULL DEFAULT '',
    recipient_email TEXT NOT NULL,
    subject         TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT 'sent',
    error_message   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_email_logs_time ON email_logs(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_email_logs_dedup ON email_logs(filename, recipient_email, status);

-- Key-value settings, overridable at runtime through the admin API
CREATE TABLE IF NOT EXISTS app_settings (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL DEFAULT '',
    updated_at INTEGER NOT NULL
);
`
