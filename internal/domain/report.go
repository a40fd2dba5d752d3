package domain

import (
	"errors"
	"time"
)

// Verdict is the user's claim about a reported URL.
type Verdict string

const (
	VerdictSuspicious Verdict = "suspicious"
	VerdictMalicious  Verdict = "malicious"
)

// Report is a crowd report submitted upstream. Unlike the read paths,
// submission failures are surfaced so the user can be told.
type Report struct {
	URL        string    `json:"url"`
	Verdict    Verdict   `json:"verdict"`
	Comment    string    `json:"comment,omitempty"`
	DeviceID   string    `json:"device_id"`
	ReportedAt time.Time `json:"reported_at"`
	ThreatType string    `json:"threat_type,omitempty"`
}

var ErrInvalidReport = errors.New("domain: report requires a url and a known verdict")

// Validate checks the fields the backend rejects outright.
func (r Report) Validate() error {
	if r.URL == "" {
		return ErrInvalidReport
	}
	if r.Verdict != VerdictSuspicious && r.Verdict != VerdictMalicious {
		return ErrInvalidReport
	}
	return nil
}
