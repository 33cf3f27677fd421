package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"github.com/suPer8Hu/learnbot/internal/assistant"
	"github.com/suPer8Hu/learnbot/internal/config"
	"github.com/suPer8Hu/learnbot/internal/db"
	"github.com/suPer8Hu/learnbot/internal/documents"
	"github.com/suPer8Hu/learnbot/internal/events"
	"github.com/suPer8Hu/learnbot/internal/logger"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	gdb, err := db.Open(cfg.DBDSN)
	if err != nil {
		log.Fatal("db open failed", "error", err)
	}
	if err := db.Migrate(gdb, &documents.IngestJob{}, &documents.Upload{}); err != nil {
		log.Fatal("db migrate failed", "error", err)
	}

	flowise := assistant.NewFlowiseClient(assistant.FlowiseOptions{
		BaseURL:      cfg.FlowiseBaseURL,
		APIKey:       cfg.FlowiseAPIKey,
		ChatflowID:   cfg.FlowiseChatflowID,
		DocumentPath: cfg.FlowiseDocumentPath,
		Timeout:      cfg.FlowiseTimeout,
	})
	proc := documents.NewProcessor(documents.NewRepo(gdb), flowise, log)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatal("rabbit dial failed", "error", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal("rabbit channel failed", "error", err)
	}
	defer ch.Close()

	if err := documents.DeclareQueues(ch, cfg.IngestQueue); err != nil {
		log.Fatal("queue declare failed", "queue", cfg.IngestQueue, "error", err)
	}

	// strict concurrency control
	concurrency := cfg.WorkerConcurrency
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatal("qos failed", "error", err)
	}

	msgs, err := ch.Consume(cfg.IngestQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatal("consume failed", "error", err)
	}

	// retries publish on their own channel
	pubCh, err := conn.Channel()
	if err != nil {
		log.Fatal("rabbit channel failed", "error", err)
	}
	defer pubCh.Close()
	retry := &retrier{ch: pubCh, queue: cfg.IngestQueue + ".retry", maxAttempts: 3, delay: 10 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	workers := &pool{
		log:         log,
		proc:        proc,
		retry:       retry,
		concurrency: concurrency,
		jobTimeout:  cfg.FlowiseTimeout + 30*time.Second,
	}
	g.Go(func() error {
		workers.run(gctx, msgs)
		return nil
	})

	// badge audit trail from the api servers
	if cfg.RedisAddr != "" {
		rn, err := events.NewRedisNotifier(ctx, log, events.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Channel:  cfg.RedisChannel,
		})
		if err != nil {
			log.Warn("redis unavailable, badge audit disabled", "error", err)
		} else {
			defer rn.Close()
			g.Go(func() error {
				if err := rn.Subscribe(gctx, func(ev events.BadgeAwarded) {
					log.Info("badge audit",
						"badge_id", ev.BadgeID,
						"user_id", ev.UserID,
						"badge_type", ev.BadgeType,
						"awarded_at", ev.AwardedAt,
					)
				}); err != nil {
					return err
				}
				<-gctx.Done()
				return nil
			})
		}
	}

	log.Info("worker started", "queue", cfg.IngestQueue, "concurrency", concurrency)
	if err := g.Wait(); err != nil {
		log.Error("worker stopped with error", "error", err)
		return
	}
	log.Info("worker stopped")
}
