package appointments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"therapyslots/internal/domain"
	"therapyslots/internal/store"
	"therapyslots/internal/store/memory"
)

func TestScenario_CreateBookCancel(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	repo := memory.NewRepo().WithClock(clock)
	svc := NewService(repo, WithClock(clock))

	start := time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)
	slot, err := svc.CreateSlot(ctx, CreateSlotInput{OwnerID: "T1", StartTime: start, EndTime: start.Add(time.Hour)})
	if err != nil {
		t.Fatalf("CreateSlot error: %v", err)
	}

	available, err := svc.GetAvailableSlots(ctx, "T1")
	if err != nil {
		t.Fatalf("GetAvailableSlots error: %v", err)
	}
	if len(available) != 1 || available[0].ID != slot.ID {
		t.Fatalf("available = %v, want [%s]", available, slot.ID)
	}

	booked, err := svc.BookSlot(ctx, BookSlotInput{AppointmentID: slot.ID, ConsumerID: "P1", Note: "bring notes"})
	if err != nil {
		t.Fatalf("BookSlot error: %v", err)
	}
	if booked.Status != domain.StatusBooked || booked.ConsumerID != "P1" || booked.Notes != "Patient notes: bring notes" {
		t.Fatalf("booked = %+v", booked)
	}

	if available, _ := svc.GetAvailableSlots(ctx, "T1"); len(available) != 0 {
		t.Fatalf("booked slot still listed as available: %v", available)
	}

	for _, user := range []string{"P1", "T1"} {
		mine, err := svc.GetUserAppointments(ctx, user)
		if err != nil {
			t.Fatalf("GetUserAppointments(%s) error: %v", user, err)
		}
		if len(mine) != 1 || mine[0].ID != slot.ID {
			t.Fatalf("GetUserAppointments(%s) = %v, want [%s]", user, mine, slot.ID)
		}
	}

	if err := svc.CancelSlot(ctx, slot.ID, "X9"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("stranger cancel error = %v, want %v", err, ErrUnauthorized)
	}
	if err := svc.CancelSlot(ctx, slot.ID, "P1"); err != nil {
		t.Fatalf("CancelSlot error: %v", err)
	}

	stored, err := repo.Get(ctx, slot.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if stored.Status != domain.StatusCancelled || stored.HasConsumer() {
		t.Fatalf("stored = %+v, want CANCELLED without consumer", stored)
	}
	if stored.Notes != "Patient notes: bring notes" {
		t.Fatalf("notes = %q, cancel must keep notes", stored.Notes)
	}

	if err := svc.CancelSlot(ctx, slot.ID, "T1"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second cancel error = %v, want %v", err, ErrInvalidState)
	}
	if _, err := svc.BookSlot(ctx, BookSlotInput{AppointmentID: slot.ID, ConsumerID: "P2"}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("book cancelled error = %v, want %v", err, ErrInvalidState)
	}
}

func TestScenario_ConflictWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	svc := NewService(memory.NewRepo().WithClock(clock), WithClock(clock))

	base := time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)
	if _, err := svc.CreateSlot(ctx, CreateSlotInput{OwnerID: "T1", StartTime: base, EndTime: base.Add(time.Hour)}); err != nil {
		t.Fatalf("CreateSlot error: %v", err)
	}

	cases := []struct {
		name    string
		owner   string
		start   time.Time
		end     time.Time
		wantErr error
	}{
		{name: "same start", owner: "T1", start: base, end: base.Add(30 * time.Minute), wantErr: store.ErrConflict},
		{name: "range covers existing start", owner: "T1", start: base.Add(-30 * time.Minute), end: base.Add(time.Minute), wantErr: store.ErrConflict},
		{name: "existing starts one minute earlier", owner: "T1", start: base.Add(time.Minute), end: base.Add(2 * time.Hour), wantErr: store.ErrConflict},
		{name: "existing starts just over a minute earlier", owner: "T1", start: base.Add(61 * time.Second), end: base.Add(2 * time.Hour), wantErr: nil},
		{name: "range ends at existing start", owner: "T1", start: base.Add(-time.Hour), end: base, wantErr: nil},
		{name: "other owner", owner: "T2", start: base, end: base.Add(time.Hour), wantErr: nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateSlot(ctx, CreateSlotInput{OwnerID: tc.owner, StartTime: tc.start, EndTime: tc.end})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestScenario_LongSlotOverlapIsNotDetected(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	svc := NewService(memory.NewRepo().WithClock(clock), WithClock(clock))

	base := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	if _, err := svc.CreateSlot(ctx, CreateSlotInput{OwnerID: "T1", StartTime: base, EndTime: base.Add(4 * time.Hour)}); err != nil {
		t.Fatalf("CreateSlot error: %v", err)
	}

	// Only existing start times are compared, so a slot inside a long earlier one is accepted.
	inner := base.Add(time.Hour)
	if _, err := svc.CreateSlot(ctx, CreateSlotInput{OwnerID: "T1", StartTime: inner, EndTime: inner.Add(time.Hour)}); err != nil {
		t.Fatalf("CreateSlot inside long slot error: %v", err)
	}
}

func TestScenario_ConcurrentBookingHasOneWinner(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	repo := memory.NewRepo().WithClock(clock)
	svc := NewService(repo, WithClock(clock))

	start := time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)
	slot, err := svc.CreateSlot(ctx, CreateSlotInput{OwnerID: "T1", StartTime: start, EndTime: start.Add(time.Hour)})
	if err != nil {
		t.Fatalf("CreateSlot error: %v", err)
	}

	const callers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		winner  string
		unknown []error
	)
	for i := 0; i < callers; i++ {
		consumer := string(rune('a' + i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.BookSlot(ctx, BookSlotInput{AppointmentID: slot.ID, ConsumerID: consumer})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
				winner = consumer
			case errors.Is(err, ErrInvalidState), errors.Is(err, store.ErrConflict):
			default:
				unknown = append(unknown, err)
			}
		}()
	}
	wg.Wait()

	if len(unknown) > 0 {
		t.Fatalf("unexpected errors: %v", unknown)
	}
	if wins != 1 {
		t.Fatalf("wins = %d, want 1", wins)
	}
	stored, err := repo.Get(ctx, slot.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if stored.ConsumerID != winner {
		t.Fatalf("stored consumer = %q, want %q", stored.ConsumerID, winner)
	}
}

func TestScenario_ConcurrentCreateAdmitsOneSlot(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	repo := memory.NewRepo().WithClock(clock)
	svc := NewService(repo, WithClock(clock))

	start := time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)
	const callers = 8
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CreateSlot(ctx, CreateSlotInput{OwnerID: "T1", StartTime: start, EndTime: start.Add(time.Hour)})
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, store.ErrConflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if created != 1 {
		t.Fatalf("created = %d, want 1", created)
	}
}
