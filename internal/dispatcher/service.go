package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/blockedby/outreach/internal/logger"
	"github.com/blockedby/outreach/internal/mailer"
	"github.com/blockedby/outreach/internal/models"
	"github.com/blockedby/outreach/internal/personalize"
)

// Message kinds, used in logs and events.
const (
	KindOutreach    = "outreach"
	KindApplication = "application"
)

var (
	// ErrMissingEmail is returned for a single send to a record without email.
	ErrMissingEmail = errors.New("record has no email")
	// ErrRunInProgress is returned when a batch is started while another
	// batch on the same service is still running.
	ErrRunInProgress = errors.New("a batch run is already in progress")
)

// BatchOptions controls one batch run.
type BatchOptions struct {
	Template    models.Template
	Attachments []string
	// Defaults fill optional record fields before personalization.
	Defaults map[string]string
	// MaxBatchSize caps successful sends per run; <= 0 means no cap.
	MaxBatchSize int
	// Delay is slept after every attempted send.
	Delay              time.Duration
	SuppressDuplicates bool
	RecencyWindow      time.Duration
	Kind               string
}

// Service sends personalized messages to recipient records.
type Service struct {
	transport Transport
	tracker   Tracker
	publisher EventPublisher
	throttle  *Throttle
	log       *logger.Logger

	// running guards against two batches interleaving their duplicate
	// checks and sends.
	running atomic.Bool

	sleep func(time.Duration)
	now   func() time.Time
}

// NewService creates a dispatcher. publisher and throttle may be nil.
func NewService(
	transport Transport,
	tracker Tracker,
	publisher EventPublisher,
	throttle *Throttle,
	log *logger.Logger,
) *Service {
	return &Service{
		transport: transport,
		tracker:   tracker,
		publisher: publisher,
		throttle:  throttle,
		log:       log.WithComponent("dispatcher"),
		sleep:     time.Sleep,
		now:       time.Now,
	}
}

// SendBatch sends one message per record in input order and returns the run
// statistics.
//
// Per record: the batch cap is checked first (records after the cap are not
// counted in Total), then Total is incremented, records without email count
// as failed, recently contacted addresses count as skipped, and everything
// else is sent. Delay is slept after every attempted send, never after a
// skip.
//
// A transport that cannot be opened aborts the run before any send and the
// error is returned. Only one batch runs at a time; a second caller gets
// ErrRunInProgress without any record being touched.
func (s *Service) SendBatch(ctx context.Context, recs []models.Record, opts BatchOptions) (models.BatchStats, error) {
	if !s.running.CompareAndSwap(false, true) {
		return models.BatchStats{}, ErrRunInProgress
	}
	defer s.running.Store(false)

	kind := opts.Kind
	if kind == "" {
		kind = KindOutreach
	}
	stats := models.BatchStats{RunID: uuid.NewString(), StartedAt: s.now()}
	log := s.log.WithRun(stats.RunID)

	log.Info().
		Str("kind", kind).
		Int("records", len(recs)).
		Int("max_batch_size", opts.MaxBatchSize).
		Dur("delay", opts.Delay).
		Bool("suppress_duplicates", opts.SuppressDuplicates).
		Msg("batch started")

	session, err := s.transport.Open(ctx)
	if err != nil {
		stats.FinishedAt = s.now()
		log.Error().Err(err).Msg("batch aborted: transport unavailable")
		return stats, fmt.Errorf("open transport: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("close transport session")
		}
	}()

	var runErr error
	for i, rec := range recs {
		if opts.MaxBatchSize > 0 && stats.Sent >= opts.MaxBatchSize {
			stats.Truncated = true
			log.Info().
				Int("sent", stats.Sent).
				Int("remaining", len(recs)-i).
				Msg("batch cap reached")
			break
		}

		stats.Total++

		email := rec.Email()
		if email == "" {
			stats.Failed++
			log.Warn().Int("row", i+1).Msg("record has no email, counted as failed")
			s.publishFailed(ctx, log, FailureEvent{
				RunID:    stats.RunID,
				Kind:     kind,
				Error:    ErrMissingEmail.Error(),
				FailedAt: s.now(),
			})
			continue
		}

		if opts.SuppressDuplicates && s.tracker.IsRecent(email, opts.RecencyWindow) {
			stats.Skipped++
			log.Info().Str("email", email).Msg("recently contacted, skipped")
			continue
		}

		if err := s.throttle.Wait(ctx); err != nil {
			stats.Truncated = true
			runErr = fmt.Errorf("throttle: %w", err)
			log.Warn().Err(err).Msg("batch interrupted")
			break
		}

		msg := s.compose(log, rec, opts.Template, opts.Defaults, opts.Attachments)
		if err := session.Send(ctx, msg); err != nil {
			stats.Failed++
			retryable := mailer.IsRetryable(err)
			log.Error().Err(err).
				Str("email", email).
				Bool("retryable", retryable).
				Msg("send failed")
			s.publishFailed(ctx, log, FailureEvent{
				RunID:     stats.RunID,
				Kind:      kind,
				Email:     email,
				Error:     err.Error(),
				Retryable: retryable,
				FailedAt:  s.now(),
			})
		} else {
			stats.Sent++
			sentAt := s.now()
			if err := s.tracker.MarkSent(ctx, email, sentAt); err != nil {
				log.Error().Err(err).Str("email", email).Msg("record delivery")
			}
			log.Info().Str("email", email).Int("sent", stats.Sent).Msg("message sent")
			s.publishSent(ctx, log, SentEvent{
				RunID:   stats.RunID,
				Kind:    kind,
				Email:   email,
				Subject: msg.Subject,
				SentAt:  sentAt,
			})
		}

		if opts.Delay > 0 {
			s.sleep(opts.Delay)
		}
	}

	stats.FinishedAt = s.now()
	log.Info().
		Int("total", stats.Total).
		Int("sent", stats.Sent).
		Int("failed", stats.Failed).
		Int("skipped", stats.Skipped).
		Bool("truncated", stats.Truncated).
		Dur("elapsed", stats.FinishedAt.Sub(stats.StartedAt)).
		Msg("batch finished")

	if s.publisher != nil {
		if err := s.publisher.PublishBatchCompleted(ctx, BatchCompletedEvent{
			RunID: stats.RunID,
			Kind:  kind,
			Stats: stats,
		}); err != nil {
			log.Warn().Err(err).Msg("publish batch completed")
		}
	}

	return stats, runErr
}

// SendOne sends a single personalized message. It does not consult the
// delivery history, but records the send in it. Attachments are checked
// before the transport is opened.
func (s *Service) SendOne(ctx context.Context, rec models.Record, tmpl models.Template, defaults map[string]string, attachments []string) error {
	email := rec.Email()
	if email == "" {
		return ErrMissingEmail
	}
	for _, path := range attachments {
		if err := mailer.CheckAttachment(path); err != nil {
			return err
		}
	}

	session, err := s.transport.Open(ctx)
	if err != nil {
		return fmt.Errorf("open transport: %w", err)
	}
	defer session.Close()

	msg := s.compose(s.log, rec, tmpl, defaults, attachments)
	if err := session.Send(ctx, msg); err != nil {
		s.log.Error().Err(err).Str("email", email).Msg("send failed")
		return err
	}

	if err := s.tracker.MarkSent(ctx, email, s.now()); err != nil {
		s.log.Error().Err(err).Str("email", email).Msg("record delivery")
	}
	s.log.Info().Str("email", email).Msg("message sent")
	return nil
}

// SendApplication validates the CV attachment and sends one application.
// The transport is not opened when the CV is missing or malformed.
func (s *Service) SendApplication(ctx context.Context, rec models.Record, tmpl models.Template, defaults map[string]string, cvPath string) error {
	if _, err := mailer.ValidateAttachment(cvPath, mailer.CVKinds...); err != nil {
		return err
	}
	return s.SendOne(ctx, rec, tmpl, defaults, []string{cvPath})
}

// SendApplications validates the CV attachment once, then runs a batch with
// it attached to every message.
func (s *Service) SendApplications(ctx context.Context, recs []models.Record, opts BatchOptions, cvPath string) (models.BatchStats, error) {
	if _, err := mailer.ValidateAttachment(cvPath, mailer.CVKinds...); err != nil {
		return models.BatchStats{}, err
	}
	opts.Kind = KindApplication
	opts.Attachments = append(append([]string(nil), opts.Attachments...), cvPath)
	return s.SendBatch(ctx, recs, opts)
}

// compose personalizes tmpl for rec. Missing placeholders are logged and the
// affected parts keep their raw template text.
func (s *Service) compose(log *logger.Logger, rec models.Record, tmpl models.Template, defaults map[string]string, attachments []string) *models.Message {
	filled := rec
	if defaults != nil {
		filled = rec.WithDefaults(defaults)
	}

	out, outcome := personalize.Apply(tmpl, filled)
	if !outcome.OK() {
		log.Warn().
			Str("email", rec.Email()).
			Strs("missing_keys", outcome.Missing).
			Msg("template keys missing, using raw template")
	}

	return &models.Message{
		To:          rec.Email(),
		Subject:     out.Subject,
		TextBody:    out.Body,
		HTMLBody:    out.HTML,
		Attachments: attachments,
	}
}

func (s *Service) publishSent(ctx context.Context, log *logger.Logger, ev SentEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishSent(ctx, ev); err != nil {
		log.Warn().Err(err).Str("email", ev.Email).Msg("publish sent event")
	}
}

func (s *Service) publishFailed(ctx context.Context, log *logger.Logger, ev FailureEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishFailed(ctx, ev); err != nil {
		log.Warn().Err(err).Str("email", ev.Email).Msg("publish failure event")
	}
}
