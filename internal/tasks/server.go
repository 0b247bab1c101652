package tasks

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
)

// NewServer returns an asynq server consuming the image queue ahead of the
// default one.
func NewServer(opt asynq.RedisClientOpt, concurrency int, log *slog.Logger) *asynq.Server {
	if log == nil {
		log = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueImages: 5,
			"default":   1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Error("task failed", "type", task.Type(), "payload", string(task.Payload()), "err", err)
		}),
	})
}
