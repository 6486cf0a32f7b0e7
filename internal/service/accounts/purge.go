package accounts

import (
	"context"
	"log/slog"
	"strings"

	"therapyslots/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

// Transactor is the slice of the appointment store the purge needs.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx store.SlotTx) error) error
}

type PurgeResult struct {
	AsConsumer int
	AsOwner    int
}

type Purger struct {
	repo Transactor
	log  *slog.Logger
}

func NewPurger(repo Transactor, log *slog.Logger) *Purger {
	if log == nil {
		log = slog.Default()
	}
	return &Purger{
		repo: repo,
		log:  log.With(slog.String("component", "account_purge")),
	}
}

// PurgeAccount deletes every appointment userID consumes and then every appointment
// userID owns, in one transaction. Running it again for the same user is a no-op.
func (p *Purger) PurgeAccount(ctx context.Context, userID, reason string) (PurgeResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return PurgeResult{}, &ValidationError{msg: "user_id is required"}
	}

	var res PurgeResult
	err := p.repo.InTransaction(ctx, func(ctx context.Context, tx store.SlotTx) error {
		n, err := tx.DeleteByConsumer(ctx, userID)
		if err != nil {
			return err
		}
		res.AsConsumer = n

		n, err = tx.DeleteByOwner(ctx, userID)
		if err != nil {
			return err
		}
		res.AsOwner = n
		return nil
	})
	if err != nil {
		p.log.Error("account purge failed", slog.String("user_id", userID), slog.Any("err", err))
		return PurgeResult{}, err
	}

	p.log.Info("account purged",
		slog.String("user_id", userID),
		slog.String("reason", reason),
		slog.Int("deleted_as_consumer", res.AsConsumer),
		slog.Int("deleted_as_owner", res.AsOwner),
	)
	return res, nil
}
