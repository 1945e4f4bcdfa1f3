package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/cartsplit-backend/pkg/config"
	"github.com/angelmondragon/cartsplit-backend/pkg/db/models"
	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
	"github.com/angelmondragon/cartsplit-backend/pkg/logger"
	"github.com/angelmondragon/cartsplit-backend/pkg/metrics"
	"github.com/angelmondragon/cartsplit-backend/pkg/outbox"
	"github.com/angelmondragon/cartsplit-backend/pkg/outbox/registry"
)

const (
	publishTimeout = 15 * time.Second
	maxIdleBackoff = 10 * time.Second
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type rowStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetters interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.Resolved, error)
}

// sender publishes one message and waits for the server id.
type sender interface {
	Ping(context.Context) error
	Send(ctx context.Context, topic string, msg *gcppubsub.Message) error
}

type ServiceParams struct {
	Outbox         config.OutboxConfig
	AnalyticsTopic string
	Logger         *logger.Logger
	DB             txRunner
	Rows           rowStore
	DLQ            deadLetters
	Resolver       resolver
	Sender         sender
	Metrics        *metrics.OutboxMetrics
}

// Service drains outbox_events to Pub/Sub. Rows are claimed with SKIP LOCKED
// inside one transaction per batch, so several publishers can run at once.
type Service struct {
	logg           *logger.Logger
	db             txRunner
	rows           rowStore
	dlq            deadLetters
	resolver       resolver
	sender         sender
	metrics        *metrics.OutboxMetrics
	analyticsTopic string
	batchSize      int
	maxAttempts    int
	poll           time.Duration
	now            func() time.Time
}

func NewService(p ServiceParams) (*Service, error) {
	if p.Logger == nil || p.DB == nil || p.Rows == nil || p.DLQ == nil || p.Resolver == nil || p.Sender == nil {
		return nil, errors.New("outbox publisher: logger, db, rows, dlq, resolver and sender are required")
	}
	cfg := p.Outbox
	if cfg.BatchSize <= 0 || cfg.MaxAttempts <= 0 || cfg.PollIntervalMS <= 0 {
		return nil, fmt.Errorf("outbox publisher: invalid config %+v", cfg)
	}
	return &Service{
		logg:           p.Logger,
		db:             p.DB,
		rows:           p.Rows,
		dlq:            p.DLQ,
		resolver:       p.Resolver,
		sender:         p.Sender,
		metrics:        p.Metrics,
		analyticsTopic: p.AnalyticsTopic,
		batchSize:      cfg.BatchSize,
		maxAttempts:    cfg.MaxAttempts,
		poll:           time.Duration(cfg.PollIntervalMS) * time.Millisecond,
		now:            time.Now,
	}, nil
}

// Run loops until ctx ends. A full batch is followed immediately by the next
// one; an empty or failed batch waits, doubling the wait after each failure.
func (s *Service) Run(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}
	if err := s.sender.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub not ready: %w", err)
	}

	wait := s.poll
	for {
		n, err := s.drainOnce(ctx)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			s.logg.Error(ctx, "outbox batch failed", err)
			wait = min(wait*2, maxIdleBackoff)
		case n > 0:
			wait = s.poll
			continue
		default:
			wait = s.poll
		}
		if err := pause(ctx, wait+jitter(wait)); err != nil {
			return err
		}
	}
}

// drainOnce publishes up to one batch and returns how many rows it claimed.
func (s *Service) drainOnce(ctx context.Context) (int, error) {
	var claimed int
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		batch, err := s.rows.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim rows: %w", err)
		}
		claimed = len(batch)
		for _, row := range batch {
			if err := s.settle(ctx, tx, row); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

// settle publishes row and writes the outcome back. Publish failures are
// recorded on the row; only bookkeeping failures abort the batch.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) error {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"attempt":        row.AttemptCount + 1,
	})

	resolved, err := s.resolver.Resolve(row)
	if err == nil {
		logCtx = s.logg.WithFields(logCtx, map[string]any{"event_id": resolved.Envelope.EventID, "topic": resolved.Topic})
		err = s.publish(ctx, row, resolved)
	}

	switch {
	case err == nil:
		if err := s.rows.MarkPublishedTx(tx, row.ID); err != nil {
			return fmt.Errorf("mark %s published: %w", row.ID, err)
		}
		s.metrics.IncPublished(string(row.EventType))
		s.logg.Info(logCtx, "outbox event published")
		return nil
	case errors.Is(err, registry.ErrPermanent):
		return s.park(logCtx, tx, row, enums.OutboxDLQReasonNonRetryable, err)
	case row.AttemptCount+1 >= s.maxAttempts:
		return s.park(logCtx, tx, row, enums.OutboxDLQReasonMaxAttempts, err)
	}

	s.metrics.IncFailed(string(row.EventType))
	s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "outbox publish failed, will retry")
	if err := s.rows.MarkFailedTx(tx, row.ID, err); err != nil {
		return fmt.Errorf("mark %s failed: %w", row.ID, err)
	}
	return nil
}

// publish sends the stored envelope to its routed topic and, when configured,
// to the analytics topic. The row is published only when every send succeeds.
func (s *Service) publish(ctx context.Context, row models.OutboxEvent, resolved *registry.Resolved) error {
	msg := &gcppubsub.Message{
		Data:       row.Payload,
		Attributes: outbox.MessageAttributes(row, resolved.Envelope.EventID),
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := s.sender.Send(ctx, resolved.Topic, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", resolved.Topic, err)
	}
	if s.analyticsTopic == "" || s.analyticsTopic == resolved.Topic {
		return nil
	}
	if err := s.sender.Send(ctx, s.analyticsTopic, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", s.analyticsTopic, err)
	}
	return nil
}

// park copies row into outbox_dlq and pins its attempts so it is never claimed again.
func (s *Service) park(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	msg := cause.Error()
	entry := models.OutboxDLQ{
		ID:            uuid.New(),
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  row.AttemptCount + 1,
		FailedAt:      s.now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("dead-letter %s: %w", row.ID, err)
	}
	if err := s.rows.MarkTerminalTx(tx, row.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark %s terminal: %w", row.ID, err)
	}
	s.metrics.IncDeadLettered(string(row.EventType), string(reason))
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"error": msg, "dlq_reason": reason}), "outbox event dead-lettered")
	return nil
}

func pause(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// jitter spreads publishers that started together by up to a quarter of d.
func jitter(d time.Duration) time.Duration {
	if d < 4 {
		return 0
	}
	return rand.N(d / 4)
}

// topicSender adapts the shared pubsub client to sender.
type topicSender struct {
	client interface {
		Ping(context.Context) error
		Publisher(name string) *gcppubsub.Publisher
	}
}

func (t topicSender) Ping(ctx context.Context) error { return t.client.Ping(ctx) }

func (t topicSender) Send(ctx context.Context, topic string, msg *gcppubsub.Message) error {
	pub := t.client.Publisher(topic)
	if pub == nil {
		return registry.Permanent(fmt.Errorf("no publisher for topic %s", topic))
	}
	_, err := pub.Publish(ctx, msg).Get(ctx)
	return err
}
