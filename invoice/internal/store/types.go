// CLAUDE:SUMMARY Store data types: EmailLogEntry and delivery status constants.
package store

// Delivery statuses recorded in email_logs.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// MaxEmailLogs is the retention cap on the delivery log. Inserting past
// the cap evicts the oldest rows.
const MaxEmailLogs = 100

// EmailLogEntry is one delivery attempt record.
type EmailLogEntry struct {
	ID             int64  `json:"id"`
	Timestamp      int64  `json:"timestamp"` // ms
	Filename       string `json:"filename"`
	InvoiceDate    string `json:"invoice_date"`
	RecipientEmail string `json:"recipient_email"`
	Subject        string `json:"subject"`
	Status         string `json:"status"`
	ErrorMessage   string `json:"error_message"`
}
