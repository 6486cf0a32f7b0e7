package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"therapyslots/internal/domain"
	"therapyslots/internal/store"
)

const (
	pgCheckViolation = "23514"
)

type AppointmentRepo struct {
	db *bun.DB
}

func NewAppointmentRepo(db *bun.DB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

type slotTx struct {
	tx bun.Tx
}

func (r *AppointmentRepo) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var appt domain.Appointment
	err := r.db.NewSelect().
		Model(&appt).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Appointment{}, store.ErrNotFound
		}
		return domain.Appointment{}, err
	}
	return appt, nil
}

func (r *AppointmentRepo) ListByOwnerAndStatus(ctx context.Context, ownerID string, status domain.Status) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Where("owner_id = ?", ownerID).
		Where("status = ?", status).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AppointmentRepo) ListByOwnerStartingAfter(ctx context.Context, ownerID string, after time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Where("owner_id = ?", ownerID).
		Where("start_time > ?", after).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AppointmentRepo) ListByConsumer(ctx context.Context, consumerID string) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Where("consumer_id = ?", consumerID).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AppointmentRepo) UpdateIfStatus(ctx context.Context, appt domain.Appointment, expected domain.Status) (domain.Appointment, error) {
	m := appt
	res, err := r.db.NewUpdate().
		Model(&m).
		Column("consumer_id", "status", "notes", "updated_at").
		WherePK().
		Where("status = ?", expected).
		Returning("*").
		Exec(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Appointment{}, store.ErrConflict
		}
		return domain.Appointment{}, classifyError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Appointment{}, err
	}
	if affected == 0 {
		return domain.Appointment{}, store.ErrConflict
	}
	return m, nil
}

func (r *AppointmentRepo) InOwnerTransaction(ctx context.Context, ownerID string, fn func(ctx context.Context, tx store.SlotTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockOwnerSlots(ctx, tx, ownerID); err != nil {
			return err
		}
		return fn(ctx, slotTx{tx: tx})
	})
}

func (r *AppointmentRepo) InTransaction(ctx context.Context, fn func(ctx context.Context, tx store.SlotTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, slotTx{tx: tx})
	})
}

func lockOwnerSlots(ctx context.Context, tx bun.Tx, ownerID string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", ownerID).Exec(ctx)
	return err
}

func (r slotTx) ExistsByOwnerStartingBetween(ctx context.Context, ownerID string, from, to time.Time) (bool, error) {
	return r.tx.NewSelect().
		Model((*domain.Appointment)(nil)).
		Where("owner_id = ?", ownerID).
		Where("start_time >= ?", from).
		Where("start_time < ?", to).
		Exists(ctx)
}

func (r slotTx) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := domain.Appointment{
		ID:         appt.ID,
		OwnerID:    appt.OwnerID,
		ConsumerID: appt.ConsumerID,
		StartTime:  appt.StartTime,
		EndTime:    appt.EndTime,
		Status:     appt.Status,
		Notes:      appt.Notes,
		CreatedAt:  appt.CreatedAt,
		UpdatedAt:  appt.UpdatedAt,
	}

	_, err := r.tx.NewInsert().Model(&m).Returning("*").Exec(ctx)
	if err != nil {
		return domain.Appointment{}, classifyError(err)
	}
	return m, nil
}

func (r slotTx) DeleteByConsumer(ctx context.Context, consumerID string) (int, error) {
	res, err := r.tx.NewDelete().
		Model((*domain.Appointment)(nil)).
		Where("consumer_id = ?", consumerID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (r slotTx) DeleteByOwner(ctx context.Context, ownerID string) (int, error) {
	res, err := r.tx.NewDelete().
		Model((*domain.Appointment)(nil)).
		Where("owner_id = ?", ownerID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// classifyError maps Postgres integrity errors onto store sentinels while keeping the
// driver error in the chain.
func classifyError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgCheckViolation {
		return errors.Join(store.ErrConstraint, err)
	}
	return err
}
