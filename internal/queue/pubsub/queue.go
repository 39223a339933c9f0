// Package pubsub implements the scheduling queue on Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/wizenheimer/wayback/internal/core"
)

const notBeforeAttr = "not_before"

// Config identifies the topic/subscription pair used for workflow starts.
type Config struct {
	ProjectID    string
	TopicID      string
	Subscription string
}

// Queue sends workflow-start messages through Pub/Sub. Delivery delay is
// approximated by stamping a not-before attribute and nacking messages
// that arrive early; Pub/Sub's redelivery then acts as the timer.
type Queue struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	clock  core.Clock
	logger *zap.Logger

	startOnce sync.Once
	msgs      chan core.QueueMessage
	recvErr   chan error
}

// New connects to Pub/Sub and verifies the topic exists.
func New(ctx context.Context, cfg Config, clock core.Clock, logger *zap.Logger) (*Queue, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	topic := client.Topic(cfg.TopicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close pubsub client after topic check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("check topic %q: %w", cfg.TopicID, err)
	}
	if !exists {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close pubsub client after missing topic", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", cfg.TopicID, cfg.ProjectID)
	}

	return &Queue{
		client:  client,
		topic:   topic,
		sub:     client.Subscription(cfg.Subscription),
		clock:   clock,
		logger:  logger,
		msgs:    make(chan core.QueueMessage),
		recvErr: make(chan error, 1),
	}, nil
}

// Send publishes msg, stamped with the earliest time a consumer may
// process it, and waits for the broker's ack so the message is durable
// before the scheduler moves on.
func (q *Queue) Send(ctx context.Context, msg core.QueueMessage, delay time.Duration) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode queue message: %w", err)
	}
	result := q.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			notBeforeAttr: q.clock.Now().Add(delay).Format(time.RFC3339),
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish queue message: %w", err)
	}
	return nil
}

// Receive returns the next due message. The first call starts the
// underlying streaming pull.
func (q *Queue) Receive(ctx context.Context) (core.QueueMessage, error) {
	q.startOnce.Do(func() {
		go q.pull(ctx)
	})

	select {
	case <-ctx.Done():
		return core.QueueMessage{}, fmt.Errorf("receive canceled: %w", ctx.Err())
	case err := <-q.recvErr:
		return core.QueueMessage{}, fmt.Errorf("pubsub receive: %w", err)
	case msg := <-q.msgs:
		return msg, nil
	}
}

func (q *Queue) pull(ctx context.Context) {
	err := q.sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		if notBefore, ok := m.Attributes[notBeforeAttr]; ok {
			due, err := time.Parse(time.RFC3339, notBefore)
			if err == nil && q.clock.Now().Before(due) {
				m.Nack()
				return
			}
		}

		var msg core.QueueMessage
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			q.logger.Warn("dropping undecodable queue message", zap.Error(err))
			m.Ack()
			return
		}

		select {
		case q.msgs <- msg:
			m.Ack()
		case <-ctx.Done():
			m.Nack()
		}
	})
	if err != nil && ctx.Err() == nil {
		q.recvErr <- err
	}
}

// Close flushes pending publishes and releases the client.
func (q *Queue) Close() error {
	q.topic.Stop()
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
