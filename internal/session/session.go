// Package session implements the per-user entry dialog that collects a
// vehicle usage record one field at a time.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EntrySession is an in-progress dialog. Collected fields are filled strictly
// in state order: Plate once past SelectVehicle, Driver once past
// CollectDriver, and so on.
type EntrySession struct {
	ID        string    `json:"id"`
	Identity  int64     `json:"identity"`
	State     State     `json:"state"`
	Plates    []string  `json:"plates"`
	Plate     string    `json:"plate,omitempty"`
	Driver    string    `json:"driver,omitempty"`
	Odometer  *float64  `json:"odometer,omitempty"`
	Notes     *string   `json:"notes,omitempty"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newEntrySession(identity int64, plates []string, now time.Time) *EntrySession {
	return &EntrySession{
		ID:        uuid.NewString(),
		Identity:  identity,
		State:     StateSelectVehicle,
		Plates:    plates,
		StartedAt: now,
		UpdatedAt: now,
	}
}

func (s *EntrySession) moveTo(to State, now time.Time) error {
	if err := checkTransition(s.State, to); err != nil {
		return err
	}
	s.State = to
	s.UpdatedAt = now
	return nil
}

func (s *EntrySession) offers(plate string) bool {
	for _, p := range s.Plates {
		if p == plate {
			return true
		}
	}
	return false
}

// Store persists sessions keyed by identity. Implementations must be safe for
// concurrent use.
type Store interface {
	// Load returns the session of identity; ok is false when there is none.
	Load(ctx context.Context, identity int64) (s *EntrySession, ok bool, err error)
	Save(ctx context.Context, s *EntrySession) error
	// Delete removes the session of identity and reports whether one existed.
	Delete(ctx context.Context, identity int64) (bool, error)
}
