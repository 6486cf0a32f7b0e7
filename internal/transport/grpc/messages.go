package grpc

import (
	"time"

	"therapyslots/internal/domain"
)

// Wire messages of slots.v1.SlotsService. They travel through the json codec.

type Appointment struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"ownerId"`
	ConsumerID string    `json:"consumerId,omitempty"`
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	Status     string    `json:"status"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type CreateSlotRequest struct {
	StartTime *time.Time `json:"startTime"`
	EndTime   *time.Time `json:"endTime"`
	Notes     string     `json:"notes,omitempty"`
}

type CreateSlotResponse struct {
	Appointment *Appointment `json:"appointment"`
}

type ListAvailableSlotsRequest struct {
	OwnerID string `json:"ownerId"`
}

type ListAvailableSlotsResponse struct {
	Appointments []*Appointment `json:"appointments"`
}

type BookSlotRequest struct {
	AppointmentID string `json:"appointmentId"`
	Note          string `json:"note,omitempty"`
}

type BookSlotResponse struct {
	Appointment *Appointment `json:"appointment"`
}

type CancelSlotRequest struct {
	AppointmentID string `json:"appointmentId"`
}

type CancelSlotResponse struct{}

type ListMyAppointmentsRequest struct{}

type ListMyAppointmentsResponse struct {
	Appointments []*Appointment `json:"appointments"`
}

func toWireAppointment(a domain.Appointment) *Appointment {
	return &Appointment{
		ID:         a.ID.String(),
		OwnerID:    a.OwnerID,
		ConsumerID: a.ConsumerID,
		StartTime:  a.StartTime.UTC(),
		EndTime:    a.EndTime.UTC(),
		Status:     string(a.Status),
		Notes:      a.Notes,
		CreatedAt:  a.CreatedAt.UTC(),
		UpdatedAt:  a.UpdatedAt.UTC(),
	}
}

func toWireAppointments(in []domain.Appointment) []*Appointment {
	out := make([]*Appointment, 0, len(in))
	for _, a := range in {
		out = append(out, toWireAppointment(a))
	}
	return out
}
