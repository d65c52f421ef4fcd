package model

import (
	"time"

	"github.com/google/uuid"
)

// Audit is one store visit by one user. An audit with a nil EndedAt is open.
type Audit struct {
	ID               uuid.UUID
	UserID           int64
	StoreID          int64
	StoreDescription string
	AuditTypeID      AuditType
	StartedAt        time.Time
	EndedAt          *time.Time
	LatitudeAtStart  *float64
	LongitudeAtStart *float64
	LatitudeAtEnd    *float64
	LongitudeAtEnd   *float64
}

// StartParams carries the values an auditor supplies when starting a visit.
type StartParams struct {
	UserID           int64
	StoreID          int64
	StoreDescription string
	AuditTypeID      AuditType
	Latitude         *float64
	Longitude        *float64
}

// NewAudit returns an open audit with a fresh id started at now.
func NewAudit(p StartParams, now time.Time) Audit {
	typ := p.AuditTypeID
	if typ == 0 {
		typ = AuditTypeStandard
	}
	return Audit{
		ID:               uuid.New(),
		UserID:           p.UserID,
		StoreID:          p.StoreID,
		StoreDescription: p.StoreDescription,
		AuditTypeID:      typ,
		StartedAt:        now.UTC(),
		LatitudeAtStart:  p.Latitude,
		LongitudeAtStart: p.Longitude,
	}
}

// IsOpen reports whether the audit has not been completed.
func (a Audit) IsOpen() bool {
	return a.EndedAt == nil
}

// Complete returns a copy of a with its end time and position set.
func (a Audit) Complete(lat, lon *float64, endTime time.Time) (Audit, error) {
	if a.EndedAt != nil {
		return a, ErrAlreadyCompleted
	}
	ended := endTime.UTC()
	a.EndedAt = &ended
	a.LatitudeAtEnd = lat
	a.LongitudeAtEnd = lon
	return a, nil
}

// Reopen returns a copy of a with the end time and end position cleared.
func (a Audit) Reopen() (Audit, error) {
	if a.EndedAt == nil {
		return a, ErrNotCompleted
	}
	a.EndedAt = nil
	a.LatitudeAtEnd = nil
	a.LongitudeAtEnd = nil
	return a, nil
}

// Duration is the elapsed time of a completed audit, or zero.
func (a Audit) Duration() time.Duration {
	if a.EndedAt == nil {
		return 0
	}
	return a.EndedAt.Sub(a.StartedAt)
}
