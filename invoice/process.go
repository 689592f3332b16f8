// CLAUDE:SUMMARY Batch state machine: read, parse, dedup, date eligibility, render, send, log, archive.
package invoice

import (
	"context"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/Sinthos/PPV-Rechnung-Versenden/graphmail"
	"github.com/Sinthos/PPV-Rechnung-Versenden/invoice/internal/store"
	"github.com/Sinthos/PPV-Rechnung-Versenden/storage"
	"github.com/Sinthos/PPV-Rechnung-Versenden/zugferd"
)

// RunOptions controls a batch run.
type RunOptions struct {
	// DryRun computes outcomes without sending, logging, or moving.
	DryRun bool `json:"dry_run"`
	// ForceSend disables date-based eligibility filtering.
	ForceSend bool `json:"force_send"`
	// IgnoreDedup allows re-sending files already logged as sent.
	IgnoreDedup bool `json:"ignore_dedup"`
	// Files restricts the batch to the named candidates (base names).
	// Empty means every matching file in the source folder.
	Files []string `json:"files,omitempty"`
}

// RunResult is the batch outcome contract consumed by the API and MCP
// surfaces.
type RunResult struct {
	Processed int      `json:"processed"`
	Sent      int      `json:"sent"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	WouldSend int      `json:"would_send"`
	Errors    []string `json:"errors"`
}

// Per-file terminal outcomes.
const (
	outcomeSent    = "sent"
	outcomeSkipped = "skipped"
	outcomeFailed  = "failed"
	outcomeDrySend = "dry_send"
)

// batch carries the per-run collaborators and the settings snapshot.
type batch struct {
	svc      *Service
	st       *store.Store
	provider storage.Provider
	settings Settings
	opts     RunOptions
	today    time.Time

	mailer    Mailer
	mailerErr error
	mailerSet bool
}

// ProcessInvoices runs one batch over the source folder. Per-file errors
// never abort the batch; folder listing or target directory failures are
// batch-fatal and reported through Errors. All log writes commit
// together at the end; a dry run always rolls back.
func (s *Service) ProcessInvoices(ctx context.Context, opts RunOptions) *RunResult {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	result := &RunResult{Errors: []string{}}
	s.logger.Info("starting invoice processing",
		"dry_run", opts.DryRun, "force_send", opts.ForceSend, "ignore_dedup", opts.IgnoreDedup)

	settings, err := s.loadSettings(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("load settings: %v", err))
		return result
	}

	provider, err := s.newStorage(settings.StorageConfig())
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("storage: %v", err))
		return result
	}
	defer closeProvider(provider)

	if err := provider.CreateDirectory(settings.TargetFolder); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("create target folder: %v", err))
		return result
	}

	files, err := provider.ListFiles(settings.SourceFolder, InvoicePattern)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list source folder: %v", err))
		return result
	}
	if len(opts.Files) > 0 {
		files = slices.DeleteFunc(files, func(f string) bool {
			return !slices.Contains(opts.Files, path.Base(f))
		})
	}
	if len(files) == 0 {
		s.logger.Info("no invoice files found to process")
		return result
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("begin batch: %v", err))
		return result
	}

	now := s.clock().In(s.config.Location)
	b := &batch{
		svc:      s,
		st:       s.store.WithTx(tx),
		provider: provider,
		settings: settings,
		opts:     opts,
		today:    time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
	}

	for _, file := range files {
		result.Processed++
		switch b.processOne(ctx, file, result) {
		case outcomeSent:
			result.Sent++
		case outcomeSkipped:
			result.Skipped++
		case outcomeFailed:
			result.Failed++
		case outcomeDrySend:
			result.WouldSend++
		}
	}

	if opts.DryRun {
		if err := tx.Rollback(); err != nil {
			s.logger.Error("dry run rollback failed", "error", err)
		}
	} else if err := tx.Commit(); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("commit batch: %v", err))
	}

	s.logger.Info("invoice processing complete",
		"processed", result.Processed, "sent", result.Sent,
		"skipped", result.Skipped, "failed", result.Failed,
		"would_send", result.WouldSend)
	return result
}

// processOne walks a single candidate through the state machine and
// returns its terminal outcome.
func (b *batch) processOne(ctx context.Context, file string, result *RunResult) string {
	log := b.svc.logger
	filename := path.Base(file)
	subjectBase := strings.TrimSuffix(filename, path.Ext(filename))
	log.Info("processing invoice", "file", filename)

	fail := func(rec *zugferd.Invoice, msg string) string {
		log.Error("invoice failed", "file", filename, "error", msg)
		entry := &store.EmailLogEntry{
			Timestamp: b.svc.clock().UnixMilli(),
			Filename:  filename,
			Subject:   subjectBase,
			Status:    store.StatusFailed,
		}
		if rec != nil {
			entry.InvoiceDate = rec.DateRaw
			entry.RecipientEmail = rec.RecipientEmail
		}
		entry.ErrorMessage = msg
		if !b.opts.DryRun {
			if err := b.st.InsertEmailLog(ctx, entry); err != nil {
				log.Error("write delivery log failed", "file", filename, "error", err)
			}
		}
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", filename, msg))
		return outcomeFailed
	}

	data, err := b.provider.ReadFile(file)
	if err != nil {
		return fail(nil, fmt.Sprintf("read error: %v", err))
	}

	rec, err := b.svc.parse(data, filename)
	if err != nil {
		return fail(nil, fmt.Sprintf("parse error: %v", err))
	}

	if rec.RecipientEmail == "" {
		return fail(rec, "no recipient email found in invoice")
	}

	if !b.opts.IgnoreDedup {
		dup, err := b.st.HasSentEntry(ctx, filename, rec.RecipientEmail)
		if err != nil {
			return fail(rec, fmt.Sprintf("dedup lookup: %v", err))
		}
		if dup {
			log.Info("already sent, skipping", "file", filename, "recipient", rec.RecipientEmail)
			return outcomeSkipped
		}
	}

	if !b.opts.ForceSend {
		switch {
		case rec.Date == nil:
			log.Warn("no invoice date, skipping", "file", filename)
			return outcomeSkipped
		case rec.Date.After(b.today):
			log.Info("invoice dated in the future, skipping",
				"file", filename, "invoice_date", rec.Date.Format("2006-01-02"))
			return outcomeSkipped
		case rec.Date.Before(b.today) && !b.settings.SendPastDates:
			log.Info("invoice dated in the past, skipping",
				"file", filename, "invoice_date", rec.Date.Format("2006-01-02"))
			return outcomeSkipped
		}
	}

	vars := b.templateVars(rec, filename)
	subject := renderTemplate(subjectBase, vars)
	body := renderTemplate(b.settings.EmailTemplate, vars)

	if b.opts.DryRun {
		log.Info("dry run, would send", "file", filename, "recipient", rec.RecipientEmail)
		return outcomeDrySend
	}

	mailer, err := b.getMailer()
	if err != nil {
		return fail(rec, fmt.Sprintf("mail transport: %v", err))
	}

	sendCtx, cancel := context.WithTimeout(ctx, b.svc.config.MailTimeout)
	err = mailer.SendMail(sendCtx, graphmail.Message{
		To:             rec.RecipientEmail,
		Subject:        subject,
		Body:           body,
		AttachmentName: filename,
		Attachment:     data,
	})
	cancel()
	if err != nil {
		return fail(rec, fmt.Sprintf("send error: %v", err))
	}

	// The delivery record is written before the move so a later failure
	// never loses it.
	entry := &store.EmailLogEntry{
		Timestamp:      b.svc.clock().UnixMilli(),
		Filename:       filename,
		InvoiceDate:    rec.DateRaw,
		RecipientEmail: rec.RecipientEmail,
		Subject:        subject,
		Status:         store.StatusSent,
	}
	if err := b.st.InsertEmailLog(ctx, entry); err != nil {
		log.Error("write delivery log failed", "file", filename, "error", err)
	}
	log.Info("invoice sent", "file", filename, "recipient", rec.RecipientEmail)

	if err := b.archive(file, filename); err != nil {
		// The mail went out; the move failure is housekeeping, not a
		// delivery failure. Annotate the log entry and keep it sent.
		log.Error("archive move failed", "file", filename, "error", err)
		if uerr := b.st.SetEmailLogError(ctx, entry.ID, fmt.Sprintf("move failed: %v", err)); uerr != nil {
			log.Error("annotate delivery log failed", "file", filename, "error", uerr)
		}
	}
	return outcomeSent
}

// archive moves file into the target folder, disambiguating same-named
// destinations with a timestamp suffix rather than overwriting.
func (b *batch) archive(file, filename string) error {
	dest := b.provider.JoinPath(b.settings.TargetFolder, filename)
	if b.provider.Exists(dest) {
		ext := path.Ext(filename)
		base := strings.TrimSuffix(filename, ext)
		stamp := b.svc.clock().In(b.svc.config.Location).Format("20060102-150405")
		dest = b.provider.JoinPath(b.settings.TargetFolder, base+"_"+stamp+ext)
	}
	if err := b.provider.MoveFile(file, dest); err != nil {
		return err
	}
	b.svc.logger.Info("archived invoice", "from", file, "to", dest)
	return nil
}

// getMailer builds the transport once per batch. Missing or placeholder
// credentials fail here, before any send is attempted.
func (b *batch) getMailer() (Mailer, error) {
	if !b.mailerSet {
		b.mailer, b.mailerErr = b.svc.newMailer(b.settings)
		b.mailerSet = true
	}
	return b.mailer, b.mailerErr
}

// templateVars assembles the placeholder values for subject and body
// rendering.
func (b *batch) templateVars(rec *zugferd.Invoice, filename string) map[string]string {
	vars := map[string]string{
		"invoice_number":  rec.InvoiceNumber,
		"buyer_name":      rec.BuyerName,
		"invoice_date":    rec.DateRaw,
		"recipient_email": rec.RecipientEmail,
		"filename":        filename,
		"today":           b.today.Format("02.01.2006"),
	}
	if rec.Date != nil {
		vars["invoice_date"] = rec.Date.Format("02.01.2006")
		vars["invoice_date_iso"] = rec.Date.Format("2006-01-02")
	}
	return vars
}
