package appointments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"therapyslots/internal/domain"
	"therapyslots/internal/store"
)

// conflictTolerance widens the overlap window backwards so a slot starting just before
// the new one still counts as taken.
const conflictTolerance = time.Minute

const patientNotesPrefix = "Patient notes: "

var (
	ErrInvalidState = errors.New("appointment is not in a state that allows this operation")
	ErrUnauthorized = errors.New("requester is neither owner nor consumer of the appointment")
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

type Service struct {
	repo store.AppointmentRepository
	now  func() time.Time
}

type Option func(*Service)

// WithClock replaces the wall clock used for "in the future" checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(repo store.AppointmentRepository, opts ...Option) *Service {
	s := &Service{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateSlotInput struct {
	OwnerID   string
	StartTime time.Time
	EndTime   time.Time
	Notes     string
}

func (s *Service) CreateSlot(ctx context.Context, in CreateSlotInput) (domain.Appointment, error) {
	ownerID := strings.TrimSpace(in.OwnerID)
	if ownerID == "" {
		return domain.Appointment{}, validationError("owner_id is required")
	}

	start := in.StartTime.UTC()
	end := in.EndTime.UTC()
	if !start.After(s.now().UTC()) {
		return domain.Appointment{}, validationError("start_time must be in the future")
	}
	if !end.After(start) {
		return domain.Appointment{}, validationError("end_time must be after start_time")
	}

	appt := domain.Appointment{
		OwnerID:   ownerID,
		StartTime: start,
		EndTime:   end,
		Status:    domain.StatusAvailable,
		Notes:     in.Notes,
	}

	var out domain.Appointment
	err := s.repo.InOwnerTransaction(ctx, ownerID, func(ctx context.Context, tx store.SlotTx) error {
		// Only the start of existing slots is compared against the new range.
		taken, err := tx.ExistsByOwnerStartingBetween(ctx, ownerID, start.Add(-conflictTolerance), end)
		if err != nil {
			return err
		}
		if taken {
			return store.ErrConflict
		}
		out, err = tx.CreateAppointment(ctx, appt)
		return err
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

func (s *Service) GetAvailableSlots(ctx context.Context, ownerID string) ([]domain.Appointment, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, validationError("owner_id is required")
	}

	now := s.now().UTC()
	rows, err := s.repo.ListByOwnerStartingAfter(ctx, ownerID, now)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Appointment, 0, len(rows))
	for _, a := range rows {
		if a.Status == domain.StatusAvailable && a.StartTime.After(now) {
			out = append(out, a)
		}
	}
	return out, nil
}

type BookSlotInput struct {
	AppointmentID uuid.UUID
	ConsumerID    string
	Note          string
}

func (s *Service) BookSlot(ctx context.Context, in BookSlotInput) (domain.Appointment, error) {
	if in.AppointmentID == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	consumerID := strings.TrimSpace(in.ConsumerID)
	if consumerID == "" {
		return domain.Appointment{}, validationError("consumer_id is required")
	}

	appt, err := s.repo.Get(ctx, in.AppointmentID)
	if err != nil {
		return domain.Appointment{}, err
	}
	if appt.Status != domain.StatusAvailable {
		return domain.Appointment{}, ErrInvalidState
	}

	appt.ConsumerID = consumerID
	appt.Status = domain.StatusBooked
	appt.Notes = appendPatientNote(appt.Notes, in.Note)

	return s.repo.UpdateIfStatus(ctx, appt, domain.StatusAvailable)
}

func (s *Service) CancelSlot(ctx context.Context, appointmentID uuid.UUID, requesterID string) error {
	if appointmentID == uuid.Nil {
		return validationError("appointment_id is required")
	}
	requesterID = strings.TrimSpace(requesterID)
	if requesterID == "" {
		return validationError("requester_id is required")
	}

	appt, err := s.repo.Get(ctx, appointmentID)
	if err != nil {
		return err
	}

	isOwner := appt.OwnerID == requesterID
	isConsumer := appt.HasConsumer() && appt.ConsumerID == requesterID
	if !isOwner && !isConsumer {
		return ErrUnauthorized
	}
	if appt.Status.Terminal() {
		return ErrInvalidState
	}

	prior := appt.Status
	if prior == domain.StatusBooked {
		appt.ConsumerID = ""
	}
	appt.Status = domain.StatusCancelled

	_, err = s.repo.UpdateIfStatus(ctx, appt, prior)
	return err
}

// GetUserAppointments returns the slots userID consumes (any status) followed by the
// booked slots userID owns, with exact duplicates collapsed.
func (s *Service) GetUserAppointments(ctx context.Context, userID string) ([]domain.Appointment, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, validationError("user_id is required")
	}

	asConsumer, err := s.repo.ListByConsumer(ctx, userID)
	if err != nil {
		return nil, err
	}
	owned, err := s.repo.ListByOwnerAndStatus(ctx, userID, domain.StatusBooked)
	if err != nil {
		return nil, err
	}

	all := make([]domain.Appointment, 0, len(asConsumer)+len(owned))
	all = append(all, asConsumer...)
	for _, a := range owned {
		if a.HasConsumer() {
			all = append(all, a)
		}
	}
	return dedupe(all), nil
}

func appendPatientNote(existing, note string) string {
	if note == "" {
		return existing
	}
	if existing == "" {
		return patientNotesPrefix + note
	}
	return existing + " | " + patientNotesPrefix + note
}

// dedupe keeps the first occurrence of each distinct record, preserving order.
func dedupe(in []domain.Appointment) []domain.Appointment {
	out := make([]domain.Appointment, 0, len(in))
next:
	for _, a := range in {
		for _, seen := range out {
			if seen.Equal(a) {
				continue next
			}
		}
		out = append(out, a)
	}
	return out
}
