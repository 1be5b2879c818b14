package models

import "time"

// Event is a venue event for which attendance passes can be minted.
// Its scheduling window is immutable after creation and gates liveness
// at verification time.
type Event struct {
	ID          string
	Name        string
	StartsAt    time.Time
	EndsAt      time.Time
	MetadataURI string
	ImageURL    string
	CreatedBy   string
	CreatedAt   time.Time
}

// ActiveAt reports whether the event window covers the given instant.
func (e *Event) ActiveAt(now time.Time) bool {
	return !now.Before(e.StartsAt) && !now.After(e.EndsAt)
}
