package main

import (
	"context"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/suPer8Hu/learnbot/internal/documents"
)

const retryHeader = "x-retry-count"

// retrier parks a failed delivery on the retry queue. The queue dead-letters
// back to the main queue once the per-message TTL expires.
type retrier struct {
	mu          sync.Mutex
	ch          *amqp.Channel
	queue       string
	maxAttempts int
	delay       time.Duration
}

func (r *retrier) schedule(ctx context.Context, body []byte, jobID string, attempt int) error {
	msg, err := documents.JobPublishing(jobID)
	if err != nil {
		return err
	}
	msg.Body = body
	msg.Expiration = strconv.FormatInt(backoff(r.delay, attempt).Milliseconds(), 10)
	msg.Headers = amqp.Table{retryHeader: int32(attempt)}

	r.mu.Lock()
	defer r.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return r.ch.PublishWithContext(cctx, "", r.queue, false, false, msg)
}

// backoff doubles the base delay per attempt.
func backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base * time.Duration(1<<(attempt-1))
}

func retryCount(h amqp.Table) int {
	switch v := h[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
