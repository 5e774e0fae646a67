// Package eventlog ships per-request log entries of the feed client to Kafka
// and indexes them into Elasticsearch on the consuming side.
package eventlog

import "time"

type Entry struct {
	Timestamp  time.Time `json:"timestamp"`
	StatusCode int       `json:"status_code"`
	RequestID  string    `json:"request_id"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Duration   float64   `json:"duration_sec"`
	Service    string    `json:"service"`
	Error      string    `json:"error,omitempty"`
}

// DocumentID is the Elasticsearch document id of the entry.
func (e Entry) DocumentID() string {
	return e.Service + e.RequestID
}

// Shorten truncates a string to 6 characters if it is longer than 6, appends '...' at the end,
// otherwise it returns the string unchanged.
func Shorten(s string) string {
	if len(s) > 6 {
		return s[:6] + "..."
	}
	return s
}
