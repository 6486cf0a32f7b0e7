package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"therapyslots/internal/service/accounts"
)

const tracerName = "therapyslots/internal/transport/events"

var errMissingUser = errors.New("account deletion event has no user id")

// AccountDeletion is the payload published when a platform account is removed.
// Older producers send the user as userKeycloakId.
type AccountDeletion struct {
	UserID         string `json:"userId"`
	UserKeycloakID string `json:"userKeycloakId,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

func decodeAccountDeletion(b []byte) (AccountDeletion, error) {
	var evt AccountDeletion
	if err := json.Unmarshal(b, &evt); err != nil {
		return AccountDeletion{}, err
	}
	evt.UserID = strings.TrimSpace(evt.UserID)
	if evt.UserID == "" {
		evt.UserID = strings.TrimSpace(evt.UserKeycloakID)
	}
	if evt.UserID == "" {
		return AccountDeletion{}, errMissingUser
	}
	return evt, nil
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type accountPurger interface {
	PurgeAccount(ctx context.Context, userID, reason string) (accounts.PurgeResult, error)
}

type ConsumerConfig struct {
	Brokers         []string
	GroupID         string
	Topic           string
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
}

// AccountDeletionConsumer purges appointments for every account-deletion event. The
// offset is committed only once the purge succeeded or the message is unusable, so a
// crash mid-purge leads to redelivery.
type AccountDeletionConsumer struct {
	reader     messageReader
	purger     accountPurger
	log        *slog.Logger
	backoff    time.Duration
	maxBackoff time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewAccountDeletionConsumer(cfg ConsumerConfig, purger accountPurger, log *slog.Logger) *AccountDeletionConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	return newAccountDeletionConsumer(reader, purger, log, cfg.RetryBackoff, cfg.MaxRetryBackoff)
}

func newAccountDeletionConsumer(reader messageReader, purger accountPurger, log *slog.Logger, backoff, maxBackoff time.Duration) *AccountDeletionConsumer {
	if log == nil {
		log = slog.Default()
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	if maxBackoff < backoff {
		maxBackoff = 30 * time.Second
	}
	return &AccountDeletionConsumer{
		reader:     reader,
		purger:     purger,
		log:        log.With(slog.String("component", "events.account_deletion")),
		backoff:    backoff,
		maxBackoff: maxBackoff,
		sleep:      sleepContext,
	}
}

// Run consumes until ctx is cancelled, then closes the reader.
func (c *AccountDeletionConsumer) Run(ctx context.Context) {
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.log.Warn("kafka reader close failed", slog.Any("err", err))
		}
	}()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error("kafka fetch failed", slog.Any("err", err))
			if c.sleep(ctx, time.Second) != nil {
				return
			}
			continue
		}

		if err := c.handle(ctx, msg); err != nil {
			// Only cancellation stops handle; the message stays uncommitted.
			return
		}
	}
}

func (c *AccountDeletionConsumer) handle(ctx context.Context, msg kafka.Message) error {
	ctxMsg := extractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer(tracerName).Start(ctxMsg, "kafka.consume account_deletion",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", msg.Topic),
			attribute.Int("messaging.kafka.destination.partition", msg.Partition),
			attribute.Int64("messaging.kafka.message.offset", msg.Offset),
		),
	)
	defer span.End()

	log := c.log.With(
		slog.String("topic", msg.Topic),
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
	)

	evt, err := decodeAccountDeletion(msg.Value)
	if err != nil {
		log.Warn("dropping undecodable account deletion event", slog.Any("err", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "poison message")
		c.commit(ctx, log, msg)
		return nil
	}
	span.SetAttributes(attribute.String("user.id", evt.UserID))
	log = log.With(slog.String("user_id", evt.UserID), slog.String("reason", evt.Reason))
	log.Info("account deletion event received")

	delay := c.backoff
	for attempt := 1; ; attempt++ {
		res, err := c.purger.PurgeAccount(ctxSpan, evt.UserID, evt.Reason)
		if err == nil {
			span.SetAttributes(
				attribute.Int("purge.deleted_as_consumer", res.AsConsumer),
				attribute.Int("purge.deleted_as_owner", res.AsOwner),
			)
			c.commit(ctx, log, msg)
			return nil
		}

		var vErr *accounts.ValidationError
		if errors.As(err, &vErr) {
			log.Warn("dropping invalid account deletion event", slog.Any("err", err))
			span.RecordError(err)
			c.commit(ctx, log, msg)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		span.RecordError(err)
		log.Error("account purge attempt failed; retrying",
			slog.Any("err", err),
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", delay),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
		delay = min(delay*2, c.maxBackoff)
	}
}

func (c *AccountDeletionConsumer) commit(ctx context.Context, log *slog.Logger, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		// The purge is idempotent, so a redelivery after a failed commit is harmless.
		log.Error("kafka commit failed", slog.Any("err", err))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
