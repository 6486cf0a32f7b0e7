package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusBooked    Status = "BOOKED"
	StatusCancelled Status = "CANCELLED"
	// StatusCompleted is reserved for an external completion trigger; nothing in this
	// service moves an appointment into it.
	StatusCompleted Status = "COMPLETED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusBooked, StatusCancelled, StatusCompleted:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is permitted out of s.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// Appointment is a single bookable slot. ConsumerID and Notes use the empty string for
// "absent"; both are stored as NULL.
type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID         uuid.UUID `bun:"id,pk,type:uuid"`
	OwnerID    string    `bun:"owner_id,notnull"`
	ConsumerID string    `bun:"consumer_id,nullzero"`
	StartTime  time.Time `bun:"start_time,notnull"`
	EndTime    time.Time `bun:"end_time,notnull"`
	Status     Status    `bun:"status,notnull"`
	Notes      string    `bun:"notes,nullzero"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
	UpdatedAt  time.Time `bun:"updated_at,notnull"`
}

func (a Appointment) HasConsumer() bool {
	return a.ConsumerID != ""
}

// Equal compares every field. Timestamps are compared as instants.
func (a Appointment) Equal(b Appointment) bool {
	return a.ID == b.ID &&
		a.OwnerID == b.OwnerID &&
		a.ConsumerID == b.ConsumerID &&
		a.StartTime.Equal(b.StartTime) &&
		a.EndTime.Equal(b.EndTime) &&
		a.Status == b.Status &&
		a.Notes == b.Notes &&
		a.CreatedAt.Equal(b.CreatedAt) &&
		a.UpdatedAt.Equal(b.UpdatedAt)
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}
