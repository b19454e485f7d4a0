// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Layouts used for the ledger's calendar date and time-of-day fields.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// AttendanceEvent is produced by the ledger when a match sets an entry or exit time.
type AttendanceEvent struct {
	ID         string    `json:"id"`
	Identity   string    `json:"identity"`
	Channel    Channel   `json:"channel"`
	Date       string    `json:"date"`
	Time       string    `json:"time"`
	At         time.Time `json:"at"`
	Confidence float64   `json:"confidence"`
}

// NewAttendanceEvent stamps an event at the given instant. Date and Time are
// derived from at in its own location, so callers convert first.
func NewAttendanceEvent(identity string, ch Channel, at time.Time, confidence float64) AttendanceEvent {
	return AttendanceEvent{
		ID:         uuid.NewString(),
		Identity:   identity,
		Channel:    ch,
		Date:       at.Format(DateLayout),
		Time:       at.Format(TimeLayout),
		At:         at,
		Confidence: confidence,
	}
}
