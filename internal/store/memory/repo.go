// Package memory is an in-process AppointmentRepository. Transactions hold a single
// repository-wide lock and roll back to a snapshot when fn fails.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"therapyslots/internal/domain"
	"therapyslots/internal/store"
)

var _ store.AppointmentRepository = (*Repo)(nil)

type Repo struct {
	mu   sync.Mutex
	rows []domain.Appointment
	now  func() time.Time
}

func NewRepo() *Repo {
	return &Repo{now: func() time.Time { return time.Now().UTC() }}
}

// WithClock sets the clock used to stamp created_at/updated_at.
func (r *Repo) WithClock(now func() time.Time) *Repo {
	r.now = now
	return r
}

// Seed inserts rows as-is, assigning ids where missing.
func (r *Repo) Seed(rows ...domain.Appointment) []domain.Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Appointment, 0, len(rows))
	for _, a := range rows {
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		r.rows = append(r.rows, a)
		out = append(out, a)
	}
	return out
}

func (r *Repo) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i := r.indexOf(id); i >= 0 {
		return r.rows[i], nil
	}
	return domain.Appointment{}, store.ErrNotFound
}

func (r *Repo) ListByOwnerAndStatus(ctx context.Context, ownerID string, status domain.Status) ([]domain.Appointment, error) {
	return r.filter(func(a domain.Appointment) bool {
		return a.OwnerID == ownerID && a.Status == status
	}), nil
}

func (r *Repo) ListByOwnerStartingAfter(ctx context.Context, ownerID string, after time.Time) ([]domain.Appointment, error) {
	return r.filter(func(a domain.Appointment) bool {
		return a.OwnerID == ownerID && a.StartTime.After(after)
	}), nil
}

func (r *Repo) ListByConsumer(ctx context.Context, consumerID string) ([]domain.Appointment, error) {
	return r.filter(func(a domain.Appointment) bool {
		return a.HasConsumer() && a.ConsumerID == consumerID
	}), nil
}

func (r *Repo) UpdateIfStatus(ctx context.Context, appt domain.Appointment, expected domain.Status) (domain.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(appt.ID)
	if i < 0 || r.rows[i].Status != expected {
		return domain.Appointment{}, store.ErrConflict
	}

	cur := r.rows[i]
	cur.ConsumerID = appt.ConsumerID
	cur.Status = appt.Status
	cur.Notes = appt.Notes
	cur.UpdatedAt = r.now()
	r.rows[i] = cur
	return cur, nil
}

func (r *Repo) InOwnerTransaction(ctx context.Context, ownerID string, fn func(ctx context.Context, tx store.SlotTx) error) error {
	return r.InTransaction(ctx, fn)
}

func (r *Repo) InTransaction(ctx context.Context, fn func(ctx context.Context, tx store.SlotTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := append([]domain.Appointment(nil), r.rows...)
	if err := fn(ctx, repoTx{r: r}); err != nil {
		r.rows = snapshot
		return err
	}
	return nil
}

func (r *Repo) filter(keep func(domain.Appointment) bool) []domain.Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Appointment
	for _, a := range r.rows {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out
}

func (r *Repo) indexOf(id uuid.UUID) int {
	for i, a := range r.rows {
		if a.ID == id {
			return i
		}
	}
	return -1
}

// repoTx runs with Repo.mu already held.
type repoTx struct {
	r *Repo
}

func (t repoTx) ExistsByOwnerStartingBetween(ctx context.Context, ownerID string, from, to time.Time) (bool, error) {
	for _, a := range t.r.rows {
		if a.OwnerID == ownerID && !a.StartTime.Before(from) && a.StartTime.Before(to) {
			return true, nil
		}
	}
	return false, nil
}

func (t repoTx) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if appt.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Appointment{}, err
		}
		appt.ID = id
	}
	now := t.r.now()
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = now
	}
	if appt.UpdatedAt.IsZero() {
		appt.UpdatedAt = now
	}
	t.r.rows = append(t.r.rows, appt)
	return appt, nil
}

func (t repoTx) DeleteByConsumer(ctx context.Context, consumerID string) (int, error) {
	return t.deleteWhere(func(a domain.Appointment) bool {
		return a.HasConsumer() && a.ConsumerID == consumerID
	}), nil
}

func (t repoTx) DeleteByOwner(ctx context.Context, ownerID string) (int, error) {
	return t.deleteWhere(func(a domain.Appointment) bool {
		return a.OwnerID == ownerID
	}), nil
}

func (t repoTx) deleteWhere(match func(domain.Appointment) bool) int {
	kept := t.r.rows[:0:0]
	deleted := 0
	for _, a := range t.r.rows {
		if match(a) {
			deleted++
			continue
		}
		kept = append(kept, a)
	}
	t.r.rows = kept
	return deleted
}
