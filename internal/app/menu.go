package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/blockedby/outreach/internal/dispatcher"
	"github.com/blockedby/outreach/internal/mailer"
	"github.com/blockedby/outreach/internal/models"
)

const recentLimit = 20

type menuItem struct {
	key    string
	label  string
	action func(ctx context.Context) error
}

// Menu is the interactive numbered menu read from a line-oriented input.
type Menu struct {
	app   *App
	in    *bufio.Scanner
	out   io.Writer
	items []menuItem
}

// NewMenu creates a menu reading choices from in and printing to out.
func NewMenu(a *App, in io.Reader, out io.Writer) *Menu {
	m := &Menu{app: a, in: bufio.NewScanner(in), out: out}
	m.items = []menuItem{
		{"1", "Send one email", m.sendOne},
		{"2", "Send batch from CSV", m.sendBatch},
		{"3", "Send one application with CV", m.applyOne},
		{"4", "Send application batch with CV", m.applyBatch},
		{"5", "Generate sample CSV", m.sample},
		{"6", "Test SMTP connection", m.testConnection},
		{"7", "Start schedule", m.startSchedule},
		{"8", "Stop schedule", m.stopSchedule},
		{"9", "Schedule status", m.scheduleStatus},
		{"10", "List recent sends", m.recent},
	}
	return m
}

// Run loops until the user exits, input ends or ctx is done. Action errors
// are printed and the loop continues.
func (m *Menu) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		m.printMenu()

		choice, ok := m.prompt("Choose")
		if !ok {
			return m.in.Err()
		}
		if choice == "0" || strings.EqualFold(choice, "q") {
			fmt.Fprintln(m.out, "Bye.")
			return nil
		}

		item, found := m.lookup(choice)
		if !found {
			fmt.Fprintf(m.out, "Unknown option %q\n", choice)
			continue
		}
		if err := item.action(ctx); err != nil {
			fmt.Fprintf(m.out, "Error: %s\n", describe(err))
		}
	}
}

func (m *Menu) printMenu() {
	fmt.Fprintln(m.out)
	for _, it := range m.items {
		fmt.Fprintf(m.out, "%2s) %s\n", it.key, it.label)
	}
	fmt.Fprintln(m.out, " 0) Exit")
}

func (m *Menu) lookup(key string) (menuItem, bool) {
	for _, it := range m.items {
		if it.key == key {
			return it, true
		}
	}
	return menuItem{}, false
}

// prompt prints label and returns the trimmed next line. ok is false at end
// of input.
func (m *Menu) prompt(label string) (string, bool) {
	fmt.Fprintf(m.out, "%s: ", label)
	if !m.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(m.in.Text()), true
}

// readRecord asks for the recipient fields. Empty answers leave the field
// unset so defaults apply.
func (m *Menu) readRecord(fields ...string) (models.Record, bool) {
	rec := models.Record{}
	for _, f := range fields {
		v, ok := m.prompt(f)
		if !ok {
			return nil, false
		}
		if v != "" {
			rec[f] = v
		}
	}
	return rec, true
}

func (m *Menu) sendOne(ctx context.Context) error {
	rec, ok := m.readRecord(models.FieldEmail, models.FieldName, models.FieldCompany, models.FieldSector)
	if !ok {
		return io.ErrUnexpectedEOF
	}
	var opts SendOptions
	if opts.Subject, ok = m.prompt("Subject [template]"); !ok {
		return io.ErrUnexpectedEOF
	}
	if opts.Body, ok = m.prompt("Message [template]"); !ok {
		return io.ErrUnexpectedEOF
	}
	attachment, ok := m.prompt("Attachment path (optional)")
	if !ok {
		return io.ErrUnexpectedEOF
	}
	if attachment != "" {
		opts.Attachments = []string{attachment}
	}
	if err := m.app.SendOne(ctx, rec, opts); err != nil {
		return err
	}
	fmt.Fprintf(m.out, "Sent to %s\n", rec.Email())
	return nil
}

func (m *Menu) sendBatch(ctx context.Context) error {
	path, ok := m.prompt(fmt.Sprintf("CSV file [%s]", m.app.cfg.RecordsFile))
	if !ok {
		return io.ErrUnexpectedEOF
	}
	stats, err := m.app.SendBatch(ctx, path)
	if err != nil && stats.Total == 0 {
		return err
	}
	PrintStats(m.out, stats)
	return err
}

func (m *Menu) applyOne(ctx context.Context) error {
	rec, ok := m.readRecord(models.FieldEmail, models.FieldName, models.FieldCompany, models.FieldPosition)
	if !ok {
		return io.ErrUnexpectedEOF
	}
	letter, ok := m.prompt("Cover letter (empty for template)")
	if !ok {
		return io.ErrUnexpectedEOF
	}
	if err := m.app.Apply(ctx, rec, letter); err != nil {
		return err
	}
	fmt.Fprintf(m.out, "Application sent to %s\n", rec.Email())
	return nil
}

func (m *Menu) applyBatch(ctx context.Context) error {
	path, ok := m.prompt(fmt.Sprintf("CSV file [%s]", m.app.cfg.RecordsFile))
	if !ok {
		return io.ErrUnexpectedEOF
	}
	stats, err := m.app.ApplyBatch(ctx, path)
	if err != nil && stats.Total == 0 {
		return err
	}
	PrintStats(m.out, stats)
	return err
}

func (m *Menu) sample(_ context.Context) error {
	path, ok := m.prompt(fmt.Sprintf("Output file [%s]", m.app.cfg.RecordsFile))
	if !ok {
		return io.ErrUnexpectedEOF
	}
	written, err := m.app.WriteSample(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(m.out, "Sample written to %s\n", written)
	return nil
}

func (m *Menu) testConnection(ctx context.Context) error {
	if err := m.app.TestConnection(ctx); err != nil {
		return err
	}
	fmt.Fprintln(m.out, "Connection OK")
	return nil
}

func (m *Menu) startSchedule(_ context.Context) error {
	answer, ok := m.prompt(fmt.Sprintf("Interval [%s]", m.app.cfg.ScheduleInterval))
	if !ok {
		return io.ErrUnexpectedEOF
	}
	var interval time.Duration
	if answer != "" {
		d, err := parseInterval(answer)
		if err != nil {
			return err
		}
		interval = d
	}
	if err := m.app.StartSchedule(interval); err != nil {
		return err
	}
	fmt.Fprintln(m.out, "Schedule started")
	return nil
}

func (m *Menu) stopSchedule(_ context.Context) error {
	m.app.StopSchedule()
	fmt.Fprintln(m.out, "Schedule stopped")
	return nil
}

func (m *Menu) scheduleStatus(_ context.Context) error {
	PrintSchedule(m.out, m.app.ScheduleStatus())
	return nil
}

func (m *Menu) recent(_ context.Context) error {
	PrintRecent(m.out, m.app.Recent(recentLimit))
	return nil
}

// parseInterval accepts Go durations and bare numbers of minutes.
func parseInterval(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Minute, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q", s)
	}
	return d, nil
}

// describe adds a hint for the failure kinds a user can act on.
func describe(err error) string {
	switch {
	case errors.Is(err, mailer.ErrAuth):
		return err.Error() + " (check username and password)"
	case errors.Is(err, mailer.ErrConnect):
		return err.Error() + " (check server, port and use_ssl)"
	case errors.Is(err, mailer.ErrInvalidAttachment):
		return err.Error() + " (check cv_path)"
	case errors.Is(err, mailer.ErrAttachmentNotFound):
		return err.Error() + " (check the attachment path)"
	case errors.Is(err, dispatcher.ErrRunInProgress):
		return err.Error() + " (wait for it to finish)"
	default:
		return err.Error()
	}
}
