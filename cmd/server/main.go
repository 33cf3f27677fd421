package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/suPer8Hu/learnbot/internal/assistant"
	"github.com/suPer8Hu/learnbot/internal/chat"
	"github.com/suPer8Hu/learnbot/internal/config"
	"github.com/suPer8Hu/learnbot/internal/db"
	"github.com/suPer8Hu/learnbot/internal/documents"
	"github.com/suPer8Hu/learnbot/internal/events"
	"github.com/suPer8Hu/learnbot/internal/gamification"
	"github.com/suPer8Hu/learnbot/internal/httpapi"
	"github.com/suPer8Hu/learnbot/internal/httpapi/handlers"
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
	if err := db.Migrate(gdb,
		&gamification.Interaction{},
		&gamification.Badge{},
		&documents.IngestJob{},
		&documents.Upload{},
	); err != nil {
		log.Fatal("db migrate failed", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// badge notifications: always logged, published to redis when configured
	notifier := events.Multi{events.NewLogNotifier(log)}
	if cfg.RedisAddr != "" {
		rn, err := events.NewRedisNotifier(ctx, log, events.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Channel:  cfg.RedisChannel,
		})
		if err != nil {
			log.Warn("redis unavailable, badge events will only be logged", "addr", cfg.RedisAddr, "error", err)
		} else {
			defer rn.Close()
			notifier = append(notifier, rn)
		}
	}

	flowise := assistant.NewFlowiseClient(assistant.FlowiseOptions{
		BaseURL:      cfg.FlowiseBaseURL,
		APIKey:       cfg.FlowiseAPIKey,
		ChatflowID:   cfg.FlowiseChatflowID,
		DocumentPath: cfg.FlowiseDocumentPath,
		Timeout:      cfg.FlowiseTimeout,
		Shape: assistant.Shape{
			AnswerField:  cfg.FlowiseAnswerField,
			SessionField: cfg.FlowiseSessionField,
		},
	})
	if !flowise.Configured() {
		log.Warn("flowise api key not set, chat requests will fail", "base_url", cfg.FlowiseBaseURL)
	}

	engine := gamification.NewEngine(gamification.NewRepo(gdb), gamification.DefaultThresholds(), notifier, log)
	chatSvc := chat.NewService(flowise, engine, log)

	var docSvc *documents.Service
	pub, err := documents.NewRabbitPublisher(cfg.RabbitURL, cfg.IngestQueue)
	if err != nil {
		log.Warn("rabbitmq unavailable, document ingestion disabled", "error", err)
	} else {
		defer pub.Close()
		if err := os.MkdirAll(cfg.SpoolDir, 0o700); err != nil {
			log.Fatal("spool dir", "path", cfg.SpoolDir, "error", err)
		}
		docSvc = documents.NewService(documents.NewRepo(gdb), pub, cfg.SpoolDir, log)
	}

	h := handlers.NewHandler(handlers.Deps{
		Chat:           chatSvc,
		Documents:      docSvc,
		Health:         flowise,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Log:            log,
	})
	r := httpapi.NewRouter(cfg, log, h)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", "error", err)
	}
}
