// CLAUDE:SUMMARY Invoice dispatch service: settings, scheduler control, delivery log access, and collaborator wiring.
// Package invoice drives the invoice dispatch pipeline.
//
// The Service owns the daily scheduler, the settings store, and the
// delivery log, and runs batches that parse candidate PDFs, decide
// eligibility, send mail, and archive sent files. Collaborators (mail
// transport, storage backend, clock) are injected so tests can run the
// full pipeline without a network.
package invoice

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Sinthos/PPV-Rechnung-Versenden/graphmail"
	"github.com/Sinthos/PPV-Rechnung-Versenden/invoice/internal/scheduler"
	"github.com/Sinthos/PPV-Rechnung-Versenden/invoice/internal/store"
	"github.com/Sinthos/PPV-Rechnung-Versenden/storage"
	"github.com/Sinthos/PPV-Rechnung-Versenden/zugferd"
)

// Mailer is the outbound transport the engine sees. The engine never
// inspects transport internals beyond success or failure plus message.
type Mailer interface {
	SendMail(ctx context.Context, msg graphmail.Message) error
}

// MailerFactory builds a Mailer from the current settings snapshot.
// Construction must fail fast on missing or placeholder credentials.
type MailerFactory func(st Settings) (Mailer, error)

// StorageFactory builds the storage backend for a batch.
type StorageFactory func(cfg storage.Config) (storage.Provider, error)

// Service is the dispatch pipeline with its scheduling harness.
type Service struct {
	db     *sql.DB
	store  *store.Store
	config Config
	logger *slog.Logger
	sched  *scheduler.Scheduler

	newMailer  MailerFactory
	newStorage StorageFactory
	clock      func() time.Time
	parse      func(data []byte, filename string) (*zugferd.Invoice, error)

	// runMu serializes batch runs: a manual trigger and the timer job
	// must not interleave their dedup checks and log writes.
	runMu sync.Mutex
}

// Option customizes a Service.
type Option func(*Service)

// WithMailerFactory replaces the Graph transport, used in tests.
func WithMailerFactory(f MailerFactory) Option {
	return func(s *Service) { s.newMailer = f }
}

// WithStorageFactory replaces storage backend construction.
func WithStorageFactory(f StorageFactory) Option {
	return func(s *Service) { s.newStorage = f }
}

// WithClock replaces the time source, used in tests for date eligibility.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// New creates a Service on an already-opened database. The schema is
// applied here; the scheduler is created but not started.
func New(db *sql.DB, cfg Config, logger *slog.Logger, opts ...Option) (*Service, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	if err := store.ApplySchema(db); err != nil {
		return nil, fmt.Errorf("invoice: apply schema: %w", err)
	}

	s := &Service{
		db:     db,
		store:  store.NewStore(db),
		config: cfg,
		logger: logger,
		clock:  time.Now,
		parse:  zugferd.Parse,
	}
	s.newMailer = func(st Settings) (Mailer, error) {
		return graphmail.New(graphmail.Config{
			TenantID:     st.TenantID,
			ClientID:     st.ClientID,
			ClientSecret: st.ClientSecret,
			Sender:       st.SenderAddress,
			Timeout:      cfg.MailTimeout,
		})
	}
	s.newStorage = storage.New
	for _, opt := range opts {
		opt(s)
	}

	hour, minute := s.configuredSendTime(context.Background())
	s.sched = scheduler.New(s.scheduledJob, scheduler.Config{
		Hour: hour, Minute: minute, Location: cfg.Location,
	}, logger)

	return s, nil
}

// configuredSendTime reads the send time setting, falling back to 09:00
// on bad values.
func (s *Service) configuredSendTime(ctx context.Context) (int, int) {
	raw, err := s.store.GetSetting(ctx, KeySendTime, s.config.SendTime)
	if err != nil {
		s.logger.Warn("read send time failed, using default", "error", err)
		raw = s.config.SendTime
	}
	hour, minute, ok := parseSendTime(raw)
	if !ok {
		s.logger.Warn("invalid send time, using 09:00", "send_time", raw)
	}
	return hour, minute
}

// scheduledJob is the timer-fired run: ordinary eligibility, no force
// send, no dry run. Only invoices dated today go out automatically.
func (s *Service) scheduledJob(ctx context.Context) {
	s.logger.Info("scheduled invoice processing triggered")
	res := s.ProcessInvoices(ctx, RunOptions{})
	s.logger.Info("scheduled processing complete",
		"processed", res.Processed, "sent", res.Sent,
		"skipped", res.Skipped, "failed", res.Failed)
}

// StartScheduler arms the daily trigger. Idempotent.
func (s *Service) StartScheduler() { s.sched.Start() }

// StopScheduler cancels the daily trigger. Idempotent.
func (s *Service) StopScheduler() { s.sched.Stop() }

// SchedulerRunning reports whether the daily trigger is armed.
func (s *Service) SchedulerRunning() bool { return s.sched.Running() }

// NextRun returns the next scheduled firing, or nil when stopped.
func (s *Service) NextRun() *time.Time { return s.sched.NextRun() }

// TriggerNow runs a batch synchronously with force-send semantics: the
// date-eligibility skip does not apply to manual runs.
func (s *Service) TriggerNow(ctx context.Context, opts RunOptions) *RunResult {
	opts.ForceSend = true
	return s.ProcessInvoices(ctx, opts)
}

// Preview runs a dry-run batch: full pipeline pass, no sends, no log
// writes, no file moves.
func (s *Service) Preview(ctx context.Context, files []string) *RunResult {
	return s.TriggerNow(ctx, RunOptions{DryRun: true, Files: files})
}

// Settings returns the current snapshot with defaults applied.
func (s *Service) Settings(ctx context.Context) (Settings, error) {
	return s.loadSettings(ctx)
}

// SaveSettings validates and stores the given key-value pairs. A changed
// send time reschedules the running daily trigger.
func (s *Service) SaveSettings(ctx context.Context, values map[string]string) error {
	for k, v := range values {
		if err := validateSetting(k, v); err != nil {
			return err
		}
	}
	for k, v := range values {
		if err := s.store.SetSetting(ctx, k, v); err != nil {
			return err
		}
	}
	if raw, ok := values[KeySendTime]; ok {
		hour, minute, _ := parseSendTime(raw)
		s.sched.Reschedule(hour, minute)
	}
	return nil
}

// RecentLogs returns delivery log entries, newest first.
func (s *Service) RecentLogs(ctx context.Context, limit int) ([]*store.EmailLogEntry, error) {
	if limit <= 0 || limit > s.config.LogLimit {
		limit = s.config.LogLimit
	}
	return s.store.RecentLogs(ctx, limit)
}

// TestConnection builds a transport from the current settings and checks
// that a token can be acquired. Credential problems surface here instead
// of in the middle of a batch.
func (s *Service) TestConnection(ctx context.Context) error {
	st, err := s.loadSettings(ctx)
	if err != nil {
		return err
	}
	m, err := s.newMailer(st)
	if err != nil {
		return err
	}
	if tester, ok := m.(interface{ TestConnection(context.Context) error }); ok {
		return tester.TestConnection(ctx)
	}
	return nil
}

// BrowseDirectories lists subdirectories of path on the configured
// storage backend, for the folder picker.
func (s *Service) BrowseDirectories(ctx context.Context, path string) ([]storage.DirEntry, error) {
	st, err := s.loadSettings(ctx)
	if err != nil {
		return nil, err
	}
	provider, err := s.newStorage(st.StorageConfig())
	if err != nil {
		return nil, err
	}
	defer closeProvider(provider)
	return provider.ListDirectories(path)
}

// closeProvider closes backends that hold a connection.
func closeProvider(p storage.Provider) {
	if c, ok := p.(interface{ Close() error }); ok {
		c.Close()
	}
}
