// Package app wires configuration, delivery history, transport and scheduler
// into the actions offered by the command line and the interactive menu.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blockedby/outreach/internal/config"
	"github.com/blockedby/outreach/internal/database"
	"github.com/blockedby/outreach/internal/dispatcher"
	"github.com/blockedby/outreach/internal/logger"
	"github.com/blockedby/outreach/internal/mailer"
	"github.com/blockedby/outreach/internal/models"
	"github.com/blockedby/outreach/internal/publisher"
	"github.com/blockedby/outreach/internal/records"
	"github.com/blockedby/outreach/internal/scheduler"
	"github.com/blockedby/outreach/internal/tracker"
)

// App holds the wired components for one process.
type App struct {
	cfg       *config.Config
	log       *logger.Logger
	tracker   *tracker.DeliveryTracker
	transport dispatcher.Transport
	service   *dispatcher.Service
	schedule  *scheduler.Controller

	closers []func()
}

// New opens the delivery history and builds the SMTP transport. When
// nats_url is set and reachable, delivery events are published; a failed
// connection only disables publishing.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	var closers []func()

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	if closeStore != nil {
		closers = append(closers, closeStore)
	}

	tr, err := tracker.New(ctx, store, log)
	if err != nil {
		runClosers(closers)
		return nil, fmt.Errorf("load delivery history: %w", err)
	}

	m := mailer.New(mailer.Config{
		Host:          cfg.Server,
		Port:          cfg.Port,
		Username:      cfg.Username,
		Password:      cfg.Password,
		SenderAddress: cfg.SenderAddress,
		SenderName:    cfg.SenderName(),
		SSL:           cfg.UseSSL,
		Timeout:       cfg.Timeout,
	}, log)

	var pub dispatcher.EventPublisher
	if cfg.NatsURL != "" {
		p, err := publisher.Connect(cfg.NatsURL)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to nats, publishing disabled")
		} else {
			pub = p
			closers = append(closers, p.Close)
		}
	}

	a := newApp(cfg, log, tr, dispatcher.SMTP(m), pub)
	a.closers = closers
	return a, nil
}

func newApp(
	cfg *config.Config,
	log *logger.Logger,
	tr *tracker.DeliveryTracker,
	transport dispatcher.Transport,
	pub dispatcher.EventPublisher,
) *App {
	a := &App{
		cfg:       cfg,
		log:       log,
		tracker:   tr,
		transport: transport,
		service: dispatcher.NewService(
			transport,
			tr,
			pub,
			dispatcher.NewThrottle(cfg.MaxPerMinute),
			log,
		),
	}
	a.schedule = scheduler.New(func(ctx context.Context) (models.BatchStats, error) {
		stats, err := a.SendBatch(ctx, "")
		if errors.Is(err, dispatcher.ErrRunInProgress) {
			return stats, fmt.Errorf("%w: %w", scheduler.ErrSkip, err)
		}
		return stats, err
	}, log)
	return a
}

func openStore(cfg *config.Config) (tracker.Store, func(), error) {
	switch cfg.Tracker.Backend {
	case config.TrackerSQLite:
		db, err := database.Open(cfg.Tracker.Path)
		if err != nil {
			return nil, nil, err
		}
		store, err := tracker.NewSQLStore(db.GORM)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, func() { _ = db.Close() }, nil
	default:
		return tracker.NewJSONStore(cfg.Tracker.Path), nil, nil
	}
}

// Config returns the loaded configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}

// SendOptions override the configured outreach template for one send.
type SendOptions struct {
	Subject     string
	Body        string
	Attachments []string
}

// SendOne sends the outreach template to a single recipient. A non-empty
// subject or body in opts replaces the template part; a replaced body drops
// the HTML part.
func (a *App) SendOne(ctx context.Context, rec models.Record, opts SendOptions) error {
	tmpl := a.cfg.Templates.Outreach
	if opts.Subject != "" {
		tmpl.Subject = opts.Subject
	}
	if opts.Body != "" {
		tmpl.Body = opts.Body
		tmpl.HTML = ""
	}
	return a.service.SendOne(ctx, rec, tmpl, a.cfg.RecordDefaults(), opts.Attachments)
}

// SendBatch sends the outreach template to every record in the CSV file at
// path, or the configured records file when path is empty.
func (a *App) SendBatch(ctx context.Context, path string) (models.BatchStats, error) {
	recs, err := records.Load(a.recordsPath(path))
	if err != nil {
		return models.BatchStats{}, err
	}
	return a.service.SendBatch(ctx, recs, a.batchOptions(a.cfg.Templates.Outreach, dispatcher.KindOutreach))
}

// Apply sends the application template with the configured CV attached. A
// non-empty coverLetter replaces the template body and its HTML part.
func (a *App) Apply(ctx context.Context, rec models.Record, coverLetter string) error {
	tmpl := a.cfg.Templates.Application
	if coverLetter != "" {
		tmpl.Body = coverLetter
		tmpl.HTML = ""
	}
	return a.service.SendApplication(ctx, rec, tmpl, a.cfg.RecordDefaults(), a.cfg.CVPath)
}

// ApplyBatch sends applications to every record in the CSV file at path.
func (a *App) ApplyBatch(ctx context.Context, path string) (models.BatchStats, error) {
	if _, err := mailer.ValidateAttachment(a.cfg.CVPath, mailer.CVKinds...); err != nil {
		return models.BatchStats{}, err
	}
	recs, err := records.Load(a.recordsPath(path))
	if err != nil {
		return models.BatchStats{}, err
	}
	opts := a.batchOptions(a.cfg.Templates.Application, dispatcher.KindApplication)
	return a.service.SendApplications(ctx, recs, opts, a.cfg.CVPath)
}

// WriteSample writes an example records file to path, or the configured
// records file when path is empty. Returns the path written.
func (a *App) WriteSample(path string) (string, error) {
	path = a.recordsPath(path)
	if err := records.WriteSample(path); err != nil {
		return "", err
	}
	return path, nil
}

// TestConnection opens and closes one transport session.
func (a *App) TestConnection(ctx context.Context) error {
	s, err := a.transport.Open(ctx)
	if err != nil {
		return err
	}
	return s.Close()
}

// StartSchedule starts the background batch schedule. A zero interval uses
// the configured one.
func (a *App) StartSchedule(interval time.Duration) error {
	if interval == 0 {
		interval = a.cfg.ScheduleInterval
	}
	return a.schedule.Start(interval)
}

// StopSchedule prevents further scheduled runs.
func (a *App) StopSchedule() {
	a.schedule.Stop()
}

// ScheduleStatus reports the scheduler state.
func (a *App) ScheduleStatus() scheduler.Status {
	return a.schedule.Status()
}

// Recent returns the most recent deliveries, newest first.
func (a *App) Recent(limit int) []models.DeliveryRecord {
	return a.tracker.Recent(limit)
}

// Close stops the schedule, waits for a run in progress until ctx is done,
// writes the delivery history once more and releases connections.
func (a *App) Close(ctx context.Context) {
	a.schedule.Stop()
	if err := a.schedule.Wait(ctx); err != nil {
		a.log.Warn().Err(err).Msg("scheduled run still in progress at shutdown")
	}
	if a.tracker.Len() > 0 {
		if err := a.tracker.Persist(context.WithoutCancel(ctx)); err != nil {
			a.log.Error().Err(err).Msg("final delivery history write failed")
		}
	}
	runClosers(a.closers)
	a.closers = nil
}

func (a *App) batchOptions(tmpl models.Template, kind string) dispatcher.BatchOptions {
	return dispatcher.BatchOptions{
		Template:           tmpl,
		Defaults:           a.cfg.RecordDefaults(),
		MaxBatchSize:       a.cfg.MaxBatchSize,
		Delay:              a.cfg.InterSendDelay,
		SuppressDuplicates: a.cfg.SuppressDuplicates,
		RecencyWindow:      a.cfg.RecencyWindow,
		Kind:               kind,
	}
}

func (a *App) recordsPath(path string) string {
	if path == "" {
		return a.cfg.RecordsFile
	}
	return path
}

func runClosers(closers []func()) {
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}
