package accounts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"therapyslots/internal/domain"
	"therapyslots/internal/service/appointments"
	"therapyslots/internal/store"
	"therapyslots/internal/store/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeTransactor struct {
	deleteByConsumerFn func(ctx context.Context, consumerID string) (int, error)
	deleteByOwnerFn    func(ctx context.Context, ownerID string) (int, error)
	calls              int
}

func (f *fakeTransactor) InTransaction(ctx context.Context, fn func(ctx context.Context, tx store.SlotTx) error) error {
	f.calls++
	return fn(ctx, fakeTx{f: f})
}

type fakeTx struct {
	f *fakeTransactor
}

func (t fakeTx) ExistsByOwnerStartingBetween(ctx context.Context, ownerID string, from, to time.Time) (bool, error) {
	panic("not used")
}

func (t fakeTx) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	panic("not used")
}

func (t fakeTx) DeleteByConsumer(ctx context.Context, consumerID string) (int, error) {
	if t.f.deleteByConsumerFn == nil {
		panic("DeleteByConsumer not configured")
	}
	return t.f.deleteByConsumerFn(ctx, consumerID)
}

func (t fakeTx) DeleteByOwner(ctx context.Context, ownerID string) (int, error) {
	if t.f.deleteByOwnerFn == nil {
		panic("DeleteByOwner not configured")
	}
	return t.f.deleteByOwnerFn(ctx, ownerID)
}

func TestPurgeAccount_EmptyUserIsValidationError(t *testing.T) {
	repo := &fakeTransactor{}
	p := NewPurger(repo, discardLogger())

	_, err := p.PurgeAccount(context.Background(), "  ", "USER_DELETED")
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
	if repo.calls != 0 {
		t.Fatalf("transaction opened %d times, want 0", repo.calls)
	}
}

func TestPurgeAccount_DeletesConsumerThenOwner(t *testing.T) {
	var order []string
	repo := &fakeTransactor{
		deleteByConsumerFn: func(ctx context.Context, consumerID string) (int, error) {
			order = append(order, "consumer:"+consumerID)
			return 2, nil
		},
		deleteByOwnerFn: func(ctx context.Context, ownerID string) (int, error) {
			order = append(order, "owner:"+ownerID)
			return 3, nil
		},
	}
	p := NewPurger(repo, discardLogger())

	res, err := p.PurgeAccount(context.Background(), "u1", "USER_DELETED")
	if err != nil {
		t.Fatalf("PurgeAccount error: %v", err)
	}
	if res != (PurgeResult{AsConsumer: 2, AsOwner: 3}) {
		t.Fatalf("result = %+v", res)
	}
	if len(order) != 2 || order[0] != "consumer:u1" || order[1] != "owner:u1" {
		t.Fatalf("order = %v", order)
	}
	if repo.calls != 1 {
		t.Fatalf("transactions = %d, want 1", repo.calls)
	}
}

func TestPurgeAccount_PropagatesErrors(t *testing.T) {
	boom := errors.New("db down")
	p := NewPurger(&fakeTransactor{
		deleteByConsumerFn: func(ctx context.Context, consumerID string) (int, error) {
			return 1, nil
		},
		deleteByOwnerFn: func(ctx context.Context, ownerID string) (int, error) {
			return 0, boom
		},
	}, discardLogger())

	res, err := p.PurgeAccount(context.Background(), "u1", "")
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
	if res != (PurgeResult{}) {
		t.Fatalf("result = %+v, want zero on failure", res)
	}
}

type failingOwnerDelete struct {
	*memory.Repo
	err error
}

func (f failingOwnerDelete) InTransaction(ctx context.Context, fn func(ctx context.Context, tx store.SlotTx) error) error {
	return f.Repo.InTransaction(ctx, func(ctx context.Context, tx store.SlotTx) error {
		return fn(ctx, failingTx{SlotTx: tx, err: f.err})
	})
}

type failingTx struct {
	store.SlotTx
	err error
}

func (t failingTx) DeleteByOwner(ctx context.Context, ownerID string) (int, error) {
	return 0, t.err
}

func TestPurgeAccount_RollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepo()
	start := time.Date(2030, 1, 10, 10, 0, 0, 0, time.UTC)
	seeded := repo.Seed(
		domain.Appointment{OwnerID: "t1", ConsumerID: "u1", Status: domain.StatusBooked, StartTime: start, EndTime: start.Add(time.Hour)},
		domain.Appointment{OwnerID: "u1", Status: domain.StatusAvailable, StartTime: start, EndTime: start.Add(time.Hour)},
	)

	boom := errors.New("owner delete failed")
	p := NewPurger(failingOwnerDelete{Repo: repo, err: boom}, discardLogger())
	if _, err := p.PurgeAccount(ctx, "u1", "USER_DELETED"); !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}

	for _, a := range seeded {
		if _, err := repo.Get(ctx, a.ID); err != nil {
			t.Fatalf("row %s missing after rolled back purge: %v", a.ID, err)
		}
	}
}

func TestPurgeAccount_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepo()
	start := time.Date(2030, 1, 10, 10, 0, 0, 0, time.UTC)
	repo.Seed(
		domain.Appointment{OwnerID: "t1", ConsumerID: "u1", Status: domain.StatusBooked, StartTime: start, EndTime: start.Add(time.Hour)},
		domain.Appointment{OwnerID: "u1", Status: domain.StatusAvailable, StartTime: start, EndTime: start.Add(time.Hour)},
		domain.Appointment{OwnerID: "u1", Status: domain.StatusCancelled, StartTime: start.Add(2 * time.Hour), EndTime: start.Add(3 * time.Hour)},
		domain.Appointment{OwnerID: "t2", Status: domain.StatusAvailable, StartTime: start, EndTime: start.Add(time.Hour)},
	)
	p := NewPurger(repo, discardLogger())

	first, err := p.PurgeAccount(ctx, "u1", "USER_DELETED")
	if err != nil {
		t.Fatalf("first purge error: %v", err)
	}
	if first != (PurgeResult{AsConsumer: 1, AsOwner: 2}) {
		t.Fatalf("first purge = %+v", first)
	}

	second, err := p.PurgeAccount(ctx, "u1", "USER_DELETED")
	if err != nil {
		t.Fatalf("second purge error: %v", err)
	}
	if second != (PurgeResult{}) {
		t.Fatalf("second purge = %+v, want zero counts", second)
	}

	left, err := repo.ListByOwnerAndStatus(ctx, "t2", domain.StatusAvailable)
	if err != nil || len(left) != 1 {
		t.Fatalf("unrelated rows = %v, %v", left, err)
	}
}

func TestPurgeAccount_AfterCancelledBooking(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	repo := memory.NewRepo().WithClock(clock)
	svc := appointments.NewService(repo, appointments.WithClock(clock))

	start := time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)
	slot, err := svc.CreateSlot(ctx, appointments.CreateSlotInput{OwnerID: "T1", StartTime: start, EndTime: start.Add(time.Hour)})
	if err != nil {
		t.Fatalf("CreateSlot error: %v", err)
	}
	if _, err := svc.BookSlot(ctx, appointments.BookSlotInput{AppointmentID: slot.ID, ConsumerID: "P1", Note: "bring notes"}); err != nil {
		t.Fatalf("BookSlot error: %v", err)
	}
	if err := svc.CancelSlot(ctx, slot.ID, "P1"); err != nil {
		t.Fatalf("CancelSlot error: %v", err)
	}

	// Cancelling cleared the consumer, so P1 no longer references the slot.
	res, err := NewPurger(repo, discardLogger()).PurgeAccount(ctx, "P1", "USER_DELETED")
	if err != nil {
		t.Fatalf("PurgeAccount error: %v", err)
	}
	if res != (PurgeResult{}) {
		t.Fatalf("result = %+v, want zero counts", res)
	}
	if _, err := repo.Get(ctx, slot.ID); err != nil {
		t.Fatalf("slot removed by unrelated purge: %v", err)
	}
}
