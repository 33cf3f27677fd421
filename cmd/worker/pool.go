package main

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/suPer8Hu/learnbot/internal/documents"
	"github.com/suPer8Hu/learnbot/internal/logger"
)

type jobProcessor interface {
	Process(ctx context.Context, jobID string) error
}

// pool fans deliveries out to a fixed number of workers. A job that has
// started runs to completion under its own timeout even after shutdown
// begins; deliveries still buffered at that point are requeued untouched.
type pool struct {
	log         *logger.Logger
	proc        jobProcessor
	retry       *retrier
	concurrency int
	jobTimeout  time.Duration
}

func (p *pool) run(ctx context.Context, msgs <-chan amqp.Delivery) {
	jobs := make(chan amqp.Delivery, p.concurrency*2)

	var wg sync.WaitGroup
	wg.Add(p.concurrency)
	for i := 0; i < p.concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			log := p.log.With("worker", workerID)
			for d := range jobs {
				if ctx.Err() != nil {
					_ = d.Nack(false, true)
					continue
				}
				p.handle(ctx, log, d)
			}
		}(i)
	}

	// dispatcher
	defer func() {
		close(jobs)
		wg.Wait()
	}()
	for {
		select {
		case <-ctx.Done():
			p.log.Info("worker shutting down")
			return

		case d, ok := <-msgs:
			if !ok {
				p.log.Warn("delivery channel closed")
				return
			}
			jobs <- d
		}
	}
}

func (p *pool) handle(ctx context.Context, log *logger.Logger, d amqp.Delivery) {
	jobID, err := documents.DecodeJobMessage(d.Body)
	if err != nil {
		log.Warn("bad message", "message_id", d.MessageId, "error", err)
		_ = d.Nack(false, false)
		return
	}

	if d.Redelivered {
		log.Warn("redelivered job", "job_id", jobID, "message_id", d.MessageId, "redelivered", d.Redelivered)
	}

	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.jobTimeout)
	defer cancel()

	start := time.Now()
	if err := p.proc.Process(jctx, jobID); err != nil {
		attempt := retryCount(d.Headers) + 1
		log.Error("job failed", "job_id", jobID, "attempt", attempt, "cost", time.Since(start), "error", err)
		if p.retry != nil && attempt < p.retry.maxAttempts {
			rerr := p.retry.schedule(jctx, d.Body, jobID, attempt)
			if rerr == nil {
				_ = d.Ack(false)
				return
			}
			log.Error("schedule retry failed", "job_id", jobID, "error", rerr)
		}
		// dead-letter
		_ = d.Nack(false, false)
		return
	}

	if err := d.Ack(false); err != nil {
		log.Error("ack failed", "job_id", jobID, "error", err)
	}
}
