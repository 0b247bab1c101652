package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrBadMessage marks a message that can never be applied. Such messages
// are dropped; any other failure is requeued.
var ErrBadMessage = errors.New("bad message")

// BadMessage wraps err with ErrBadMessage.
func BadMessage(err error) error {
	return fmt.Errorf("%w: %w", ErrBadMessage, err)
}

// PlanApplier stores a user's new plan.
type PlanApplier interface {
	ApplyPlanChange(ctx context.Context, userID uint64, plan string) error
}

// StartPlanChangeConsumer consumes PlanChangedQueue until ctx is done,
// reconnecting with backoff whenever the broker goes away. Bad messages are
// rejected without requeue; other failures are requeued after a pause.
func StartPlanChangeConsumer(ctx context.Context, url string, applier PlanApplier, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warn("plan-consumer: dial failed", "err", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, applier, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("plan-consumer: consume loop ended; reconnecting", "err", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, applier PlanApplier, log *slog.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(20, 0, false); err != nil {
		log.Warn("plan-consumer: set QoS failed", "err", err)
	}
	if _, err := ch.QueueDeclare(PlanChangedQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(PlanChangedQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := handlePlanChange(ctx, applier, d.Body); err != nil {
				if !shouldRequeue(err) {
					log.Error("plan-consumer: message rejected", "err", err)
					_ = d.Nack(false, false)
					continue
				}
				log.Warn("plan-consumer: apply failed; requeueing", "err", err)
				sleep(ctx, time.Second)
				_ = d.Nack(false, true)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func shouldRequeue(err error) bool {
	return !errors.Is(err, ErrBadMessage)
}

func handlePlanChange(ctx context.Context, applier PlanApplier, body []byte) error {
	var msg PlanChangedMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return BadMessage(fmt.Errorf("unmarshal: %w", err))
	}
	if msg.UserID == 0 {
		return BadMessage(errors.New("missing user_id"))
	}
	return applier.ApplyPlanChange(ctx, msg.UserID, msg.Plan)
}
