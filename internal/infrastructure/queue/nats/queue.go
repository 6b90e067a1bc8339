// Package nats carries classified-email events between the upstream
// pipeline and the resolver worker over a NATS queue group.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/dkozyrev/freight-linker/internal/core/domain"
	"github.com/dkozyrev/freight-linker/internal/core/ports"
	"github.com/dkozyrev/freight-linker/internal/infrastructure/resilience"
)

const (
	defaultSubject     = "emails.classified"
	defaultConcurrency = 4
	queueGroup         = "freight-linker-resolver"
)

type emailClassifiedEvent struct {
	EmailID    string    `json:"email_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Options tunes the queue beyond the connection URL and subject. The zero
// value is usable: no retries around publish, default handler concurrency.
type Options struct {
	// Concurrency bounds how many events one subscriber processes at once.
	Concurrency int
	// Executor, when set, retries publish calls on connectivity failures.
	Executor *resilience.Executor
	Logger   *slog.Logger
}

type Queue struct {
	conn        *nats.Conn
	subject     string
	concurrency int
	executor    *resilience.Executor
	logger      *slog.Logger
}

var _ ports.MessageQueue = (*Queue)(nil)

func New(url, subject string, opts Options) (*Queue, error) {
	if subject == "" {
		subject = defaultSubject
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			opts.Logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			opts.Logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", wrapTemporaryIfNeeded(err))
	}

	return &Queue{
		conn:        conn,
		subject:     subject,
		concurrency: opts.Concurrency,
		executor:    opts.Executor,
		logger:      opts.Logger,
	}, nil
}

func (q *Queue) PublishEmailClassified(ctx context.Context, emailID string) error {
	if emailID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "publish email classified", fmt.Errorf("empty email id"))
	}

	payload, err := json.Marshal(emailClassifiedEvent{
		EmailID:    emailID,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	publish := func(ctx context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("publish %s: %w", q.subject, wrapTemporaryIfNeeded(err))
		}
		if err := q.conn.FlushWithContext(ctx); err != nil {
			return fmt.Errorf("flush %s: %w", q.subject, wrapTemporaryIfNeeded(err))
		}
		return nil
	}
	if q.executor == nil {
		return publish(ctx)
	}
	return q.executor.Execute(ctx, "nats.publish", publish, ClassifyError)
}

// SubscribeEmailClassified delivers events to the handler through a queue
// group, so multiple worker replicas share the subject without duplicate
// delivery. Handler invocations run concurrently, bounded by
// Options.Concurrency. It blocks until the context is cancelled, then drains.
func (q *Queue) SubscribeEmailClassified(ctx context.Context, handler func(ctx context.Context, emailID string, publishedAt time.Time) error) error {
	if handler == nil {
		return fmt.Errorf("nats subscribe: handler is nil")
	}

	slots := make(chan struct{}, q.concurrency)

	sub, err := q.conn.QueueSubscribe(q.subject, queueGroup, func(msg *nats.Msg) {
		var event emailClassifiedEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			q.logger.Error("event_decode_failed", "subject", q.subject, "error", err)
			return
		}
		if event.EmailID == "" {
			q.logger.Warn("event_missing_email_id", "subject", q.subject)
			return
		}

		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			return
		}
		go func() {
			defer func() { <-slots }()
			if err := handler(ctx, event.EmailID, event.OccurredAt); err != nil {
				q.logger.Error("event_handler_failed", "subject", q.subject, "email_id", event.EmailID, "error", err)
			}
		}()
	})
	if err != nil {
		return fmt.Errorf("queue subscribe %s: %w", q.subject, wrapTemporaryIfNeeded(err))
	}

	q.logger.Info("subscribed", "subject", q.subject, "queue_group", queueGroup, "concurrency", q.concurrency)

	<-ctx.Done()

	if err := sub.Drain(); err != nil {
		q.logger.Warn("subscription_drain_failed", "subject", q.subject, "error", err)
	}
	return ctx.Err()
}

func (q *Queue) Close() {
	if q.conn == nil {
		return
	}
	if err := q.conn.Drain(); err != nil {
		q.logger.Warn("nats_drain_failed", "error", err)
	}
	q.conn.Close()
}
