package availability

import (
	"context"
	"log/slog"
	"time"

	"github.com/devtinkubot/tinkubot-microservices-sub001/pkg/metrics"
)

// publishJob is one outbound publish, with its retry budget.
type publishJob struct {
	topic   string
	payload []byte
	attempt int
}

// enqueue hands a job to the publisher without ever blocking a conversation
// turn. A full queue drops the job; the coordination window then simply
// closes empty.
func (c *Coordinator) enqueue(job publishJob) {
	select {
	case c.queue <- job:
	default:
		c.log.Warn("publish queue full, dropping request", slog.String("topic", job.topic))
	}
}

// runPublisher drains the outbound queue for the lifetime of the process. A
// failed publish is re-enqueued once after a short delay, then given up
// silently; the protocol is fail-open end to end.
func (c *Coordinator) runPublisher(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-c.queue:
			c.publish(ctx, job)
		}
	}
}

func (c *Coordinator) publish(ctx context.Context, job publishJob) {
	cfg := c.tunables()

	pubCtx, cancel := context.WithTimeout(ctx, cfg.PublishTimeout)
	err := c.channel.Publish(pubCtx, job.topic, job.payload)
	cancel()

	if err == nil {
		return
	}

	if job.attempt > 0 {
		c.log.Warn("publish retry failed, giving up",
			slog.String("topic", job.topic), slog.Any("error", err))
		return
	}

	c.log.Warn("publish failed, scheduling retry",
		slog.String("topic", job.topic),
		slog.Duration("delay", cfg.RetryDelay),
		slog.Any("error", err))
	metrics.RecordPublishRetry()

	retry := job
	retry.attempt++

	// Delay off the drain loop so other jobs keep flowing.
	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(cfg.RetryDelay):
			c.enqueue(retry)
		}
	}()
}
