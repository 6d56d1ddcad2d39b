package models

import "time"

// DeliveryRecord is one tracker entry: the last successful send to an address.
type DeliveryRecord struct {
	Email string `json:"email"`
	// Raw is the stored timestamp string, kept even when it fails to parse.
	Raw    string    `json:"raw"`
	SentAt time.Time `json:"sent_at"`
	Valid  bool      `json:"valid"`
}

// BatchStats are the counters accumulated by one dispatch run.
type BatchStats struct {
	RunID      string    `json:"run_id"`
	Total      int       `json:"total"`
	Sent       int       `json:"sent"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	Truncated  bool      `json:"truncated"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Processed returns sent + failed + skipped.
func (s BatchStats) Processed() int {
	return s.Sent + s.Failed + s.Skipped
}
