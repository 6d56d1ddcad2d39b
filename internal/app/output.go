package app

import (
	"fmt"
	"io"
	"time"

	"github.com/blockedby/outreach/internal/models"
	"github.com/blockedby/outreach/internal/scheduler"
)

// PrintStats writes a one-line run summary.
func PrintStats(w io.Writer, s models.BatchStats) {
	fmt.Fprintf(w, "Total: %d, sent: %d, failed: %d, skipped: %d", s.Total, s.Sent, s.Failed, s.Skipped)
	if s.Truncated {
		fmt.Fprint(w, " (stopped early)")
	}
	fmt.Fprintln(w)
}

// PrintSchedule writes the scheduler status.
func PrintSchedule(w io.Writer, st scheduler.Status) {
	fmt.Fprintf(w, "State: %s\n", st.State)
	if st.State == scheduler.StateRunning {
		fmt.Fprintf(w, "Interval: %s\n", st.Interval)
		fmt.Fprintf(w, "Next run: %s\n", formatTime(st.NextRun))
	}
	if st.InProgress {
		fmt.Fprintln(w, "A run is in progress")
	}
	fmt.Fprintf(w, "Runs: %d, skipped firings: %d\n", st.Runs, st.Skipped)
	if !st.LastRun.IsZero() {
		fmt.Fprintf(w, "Last run: %s\n", formatTime(st.LastRun))
	}
	if st.LastStats != nil {
		fmt.Fprint(w, "Last result: ")
		PrintStats(w, *st.LastStats)
	}
	if st.LastError != "" {
		fmt.Fprintf(w, "Last error: %s\n", st.LastError)
	}
}

// PrintRecent writes delivery records one per line.
func PrintRecent(w io.Writer, recs []models.DeliveryRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No sends recorded")
		return
	}
	for _, r := range recs {
		ts := r.Raw
		if r.Valid {
			ts = formatTime(r.SentAt)
		}
		fmt.Fprintf(w, "%s  %s\n", ts, r.Email)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
