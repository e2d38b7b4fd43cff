package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"commentary/api/internal/app"
	"commentary/api/internal/config"
	"commentary/api/internal/email"
	"commentary/api/internal/logging"
	"commentary/api/internal/metrics"
	"commentary/api/internal/notify"
	"commentary/api/internal/search"
	"commentary/api/internal/store"
	"commentary/api/internal/thread"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	registry, err := app.BuildRegistry(cfg)
	if err != nil {
		logger.Fatal("thread configuration invalid", zap.Error(err))
	}

	var sinks []notify.Sink
	var outbox *notify.RedisOutbox
	if strings.TrimSpace(cfg.RedisURL) != "" {
		outbox, err = notify.NewRedisOutbox(cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis connection failed", zap.Error(err))
		}
		defer outbox.Close()
		sinks = append(sinks, notify.Sink{Name: "redis", Notifier: outbox})
		logger.Info("notifications queued in redis inboxes")
	}
	if strings.TrimSpace(cfg.AMQPURL) != "" {
		publisher, err := notify.NewRabbitPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Fatal("amqp connection failed", zap.Error(err))
		}
		defer publisher.Close()
		sinks = append(sinks, notify.Sink{Name: "amqp", Notifier: publisher})
		logger.Info("notifications published to amqp", zap.String("exchange", cfg.AMQPExchange))
	}
	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
		AppName:  "Commentary",
		BaseURL:  cfg.PublicBaseURL,
	})
	if mailer.IsConfigured() {
		addresses := notify.DomainAddressBook{Domain: cfg.SMTPRecipientDomain, Types: cfg.CommentatorTypes}
		sinks = append(sinks, notify.Sink{Name: "email", Notifier: notify.NewEmailNotifier(mailer, addresses)})
		logger.Info("notifications sent by email", zap.String("smtp_host", cfg.SMTPHost))
	}
	notifier := notify.NewFanout(logger, sinks...)
	if notifier.Len() == 0 {
		logger.Warn("no notification sinks configured; subscribers will not be notified")
	}

	service := thread.NewService(store.NewPostgresStore(db), registry, notifier, logger)

	var meili *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meili.Close()
	}
	searchService := search.NewService(meili, search.NewPgFTS(db), logger)
	service.UseIndexer(searchService)
	if err := searchService.ReindexAllFromPG(ctx); err != nil {
		logger.Warn("search reindex failed", zap.Error(err))
	}
	metrics.MustRegister(prometheus.DefaultRegisterer)

	gin.SetMode(gin.ReleaseMode)
	httpServer := app.NewHTTPServer(service, []byte(cfg.ActorTokenSecret), cfg.CORSOrigin, logger)
	if outbox != nil {
		httpServer.WithInbox(outbox)
	}
	httpServer.WithSearch(searchService)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("Commentary API listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
