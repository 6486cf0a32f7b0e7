package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"therapyslots/internal/domain"
)

type AppointmentRepository interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	ListByOwnerAndStatus(ctx context.Context, ownerID string, status domain.Status) ([]domain.Appointment, error)
	ListByOwnerStartingAfter(ctx context.Context, ownerID string, after time.Time) ([]domain.Appointment, error)
	ListByConsumer(ctx context.Context, consumerID string) ([]domain.Appointment, error)

	// UpdateIfStatus writes appt only while the stored row still has the expected
	// status. It returns ErrConflict when the row no longer matches.
	UpdateIfStatus(ctx context.Context, appt domain.Appointment, expected domain.Status) (domain.Appointment, error)

	// InOwnerTransaction serialises fn against other owner-scoped transactions for the
	// same owner.
	InOwnerTransaction(ctx context.Context, ownerID string, fn func(ctx context.Context, tx SlotTx) error) error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx SlotTx) error) error
}

type SlotTx interface {
	// ExistsByOwnerStartingBetween reports whether any appointment of ownerID starts in
	// the half-open range [from, to).
	ExistsByOwnerStartingBetween(ctx context.Context, ownerID string, from, to time.Time) (bool, error)
	CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	DeleteByConsumer(ctx context.Context, consumerID string) (int, error)
	DeleteByOwner(ctx context.Context, ownerID string) (int, error)
}
