package grpc

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"therapyslots/internal/domain"
	"therapyslots/internal/service/appointments"
	"therapyslots/internal/store"
)

var _ SlotsServiceServer = (*SlotsServer)(nil)

type SlotsServer struct {
	svc slotsService
	log *slog.Logger
}

type slotsService interface {
	CreateSlot(ctx context.Context, in appointments.CreateSlotInput) (domain.Appointment, error)
	GetAvailableSlots(ctx context.Context, ownerID string) ([]domain.Appointment, error)
	BookSlot(ctx context.Context, in appointments.BookSlotInput) (domain.Appointment, error)
	CancelSlot(ctx context.Context, appointmentID uuid.UUID, requesterID string) error
	GetUserAppointments(ctx context.Context, userID string) ([]domain.Appointment, error)
}

func NewSlotsServer(svc slotsService, log *slog.Logger) *SlotsServer {
	if log == nil {
		log = slog.Default()
	}
	return &SlotsServer{
		svc: svc,
		log: log.With(slog.String("component", "grpc.slots")),
	}
}

func (s *SlotsServer) rpcLogger(ctx context.Context, rpc string) *slog.Logger {
	log := s.log.With(slog.String("rpc", rpc))
	if id := RequestID(ctx); id != "" {
		log = log.With(slog.String("request_id", id))
	}
	return log
}

func (s *SlotsServer) CreateSlot(ctx context.Context, req *CreateSlotRequest) (*CreateSlotResponse, error) {
	log := s.rpcLogger(ctx, "CreateSlot")

	caller := callerID(ctx)
	if caller == "" {
		log.Warn("unauthenticated request")
		return nil, status.Error(codes.Unauthenticated, "x-user-id is required")
	}
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	if req.StartTime == nil || req.EndTime == nil {
		log.Warn("invalid request", slog.String("reason", "missing_times"), slog.String("user_id", caller))
		return nil, status.Error(codes.InvalidArgument, "start_time and end_time are required")
	}

	appt, err := s.svc.CreateSlot(ctx, appointments.CreateSlotInput{
		OwnerID:   caller,
		StartTime: *req.StartTime,
		EndTime:   *req.EndTime,
		Notes:     req.Notes,
	})
	if err != nil {
		return nil, s.statusFor(log, "slot create failed", err,
			slog.String("user_id", caller),
			slog.Time("start_time", *req.StartTime),
			slog.Time("end_time", *req.EndTime),
		)
	}

	log.Info(
		"slot created",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("owner_id", appt.OwnerID),
		slog.Time("start_time", appt.StartTime),
		slog.Time("end_time", appt.EndTime),
	)
	return &CreateSlotResponse{Appointment: toWireAppointment(appt)}, nil
}

func (s *SlotsServer) ListAvailableSlots(ctx context.Context, req *ListAvailableSlotsRequest) (*ListAvailableSlotsResponse, error) {
	log := s.rpcLogger(ctx, "ListAvailableSlots")

	caller := callerID(ctx)
	if caller == "" {
		log.Warn("unauthenticated request")
		return nil, status.Error(codes.Unauthenticated, "x-user-id is required")
	}
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	appts, err := s.svc.GetAvailableSlots(ctx, req.OwnerID)
	if err != nil {
		return nil, s.statusFor(log, "available slots list failed", err, slog.String("owner_id", req.OwnerID))
	}

	log.Debug("available slots listed", slog.String("owner_id", req.OwnerID), slog.Int("count", len(appts)))
	return &ListAvailableSlotsResponse{Appointments: toWireAppointments(appts)}, nil
}

func (s *SlotsServer) BookSlot(ctx context.Context, req *BookSlotRequest) (*BookSlotResponse, error) {
	log := s.rpcLogger(ctx, "BookSlot")

	caller := callerID(ctx)
	if caller == "" {
		log.Warn("unauthenticated request")
		return nil, status.Error(codes.Unauthenticated, "x-user-id is required")
	}
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := uuid.Parse(req.AppointmentID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"), slog.String("user_id", caller))
		return nil, status.Error(codes.InvalidArgument, "appointment_id must be a UUID")
	}

	appt, err := s.svc.BookSlot(ctx, appointments.BookSlotInput{
		AppointmentID: id,
		ConsumerID:    caller,
		Note:          req.Note,
	})
	if err != nil {
		return nil, s.statusFor(log, "slot booking failed", err,
			slog.String("appointment_id", id.String()),
			slog.String("user_id", caller),
		)
	}

	log.Info("slot booked", slog.String("appointment_id", appt.ID.String()), slog.String("consumer_id", appt.ConsumerID))
	return &BookSlotResponse{Appointment: toWireAppointment(appt)}, nil
}

func (s *SlotsServer) CancelSlot(ctx context.Context, req *CancelSlotRequest) (*CancelSlotResponse, error) {
	log := s.rpcLogger(ctx, "CancelSlot")

	caller := callerID(ctx)
	if caller == "" {
		log.Warn("unauthenticated request")
		return nil, status.Error(codes.Unauthenticated, "x-user-id is required")
	}
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := uuid.Parse(req.AppointmentID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"), slog.String("user_id", caller))
		return nil, status.Error(codes.InvalidArgument, "appointment_id must be a UUID")
	}

	if err := s.svc.CancelSlot(ctx, id, caller); err != nil {
		return nil, s.statusFor(log, "slot cancel failed", err,
			slog.String("appointment_id", id.String()),
			slog.String("user_id", caller),
		)
	}

	log.Info("slot cancelled", slog.String("appointment_id", id.String()), slog.String("user_id", caller))
	return &CancelSlotResponse{}, nil
}

func (s *SlotsServer) ListMyAppointments(ctx context.Context, req *ListMyAppointmentsRequest) (*ListMyAppointmentsResponse, error) {
	log := s.rpcLogger(ctx, "ListMyAppointments")

	caller := callerID(ctx)
	if caller == "" {
		log.Warn("unauthenticated request")
		return nil, status.Error(codes.Unauthenticated, "x-user-id is required")
	}

	appts, err := s.svc.GetUserAppointments(ctx, caller)
	if err != nil {
		return nil, s.statusFor(log, "appointments list failed", err, slog.String("user_id", caller))
	}

	log.Debug("appointments listed", slog.String("user_id", caller), slog.Int("count", len(appts)))
	return &ListMyAppointmentsResponse{Appointments: toWireAppointments(appts)}, nil
}

// statusFor maps an engine error to a gRPC status. Expected outcomes log below Error;
// anything unrecognised is logged with msg and hidden behind Internal.
func (s *SlotsServer) statusFor(log *slog.Logger, msg string, err error, attrs ...any) error {
	args := append([]any{slog.Any("err", err)}, attrs...)

	var vErr *appointments.ValidationError
	switch {
	case errors.As(err, &vErr):
		log.Warn("invalid request", args...)
		return status.Error(codes.InvalidArgument, vErr.Error())
	case errors.Is(err, store.ErrNotFound):
		log.Info("appointment not found", args...)
		return status.Error(codes.NotFound, "appointment not found")
	case errors.Is(err, store.ErrConflict):
		log.Info("slot conflict", args...)
		return status.Error(codes.Aborted, "That slot overlaps another one or was just taken. Refresh and try again.")
	case errors.Is(err, appointments.ErrInvalidState):
		log.Info("invalid appointment state", args...)
		return status.Error(codes.FailedPrecondition, "This appointment can no longer be changed that way.")
	case errors.Is(err, appointments.ErrUnauthorized):
		log.Warn("unauthorized appointment access", args...)
		return status.Error(codes.PermissionDenied, "You can only cancel appointments you own or booked.")
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn("request deadline exceeded", args...)
		return status.Error(codes.DeadlineExceeded, "request timed out")
	default:
		log.Error(msg, args...)
		return status.Error(codes.Internal, "internal error")
	}
}
