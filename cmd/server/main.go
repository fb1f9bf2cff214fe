package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"autoflow/internal/broker"
	"autoflow/internal/events/emitter"
	eventmetrics "autoflow/internal/events/metrics"
	"autoflow/internal/events/redrive"
	eventstore "autoflow/internal/events/store"
	"autoflow/internal/platform/config"
	"autoflow/internal/platform/httpserver"
	"autoflow/internal/platform/logger"
	"autoflow/internal/platform/metrics"
	"autoflow/internal/platform/postgres"
	"autoflow/internal/platform/redis"
	httptransport "autoflow/internal/transport/http"
	"autoflow/internal/triggers/actions"
	triggermetrics "autoflow/internal/triggers/metrics"
	"autoflow/internal/triggers/models"
	"autoflow/internal/triggers/processor"
	triggerstore "autoflow/internal/triggers/store"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("autoflow exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.Database.ApplySchema {
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return err
		}
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	dialer, err := newDialer(cfg.Broker)
	if err != nil {
		return err
	}
	conn := broker.New(dialer,
		broker.WithLogger(log.With("component", "broker")),
		broker.WithMetrics(broker.NewMetrics(reg)),
		broker.WithReconnectPolicy(broker.ReconnectPolicy{
			MaxAttempts: cfg.Broker.ReconnectAttempts,
			Delay:       cfg.Broker.ReconnectDelay,
		}),
		broker.WithHealthInterval(cfg.Broker.HealthInterval),
		broker.WithRequeueDelay(cfg.Broker.RequeueDelay),
	)
	defer conn.Close()
	if err := conn.Connect(ctx); err != nil {
		// the connection keeps reconnecting in the background
		log.Warn("broker unavailable at startup", "error", err)
	}

	events := eventstore.NewPostgres(db)
	evMetrics := eventmetrics.New(reg)
	emit := emitter.New(events, conn, cfg.Broker.Exchange,
		emitter.WithLogger(log.With("component", "emitter")),
		emitter.WithMetrics(evMetrics),
	)

	trMetrics := triggermetrics.New(reg)
	var triggers processor.TriggerStore = triggerstore.NewPostgres(db)
	var notifications *goredis.Client
	if redisClient != nil {
		notifications = redisClient.Client
		triggers = triggerstore.NewCached(triggerstore.NewPostgres(db), redisClient.Client, cfg.Redis.TriggerTTL,
			triggerstore.WithCacheLogger(log.With("component", "trigger_cache")),
			triggerstore.WithCacheMetrics(trMetrics),
		)
	}

	order, err := models.ParseMatchOrder(cfg.Processor.MatchOrder)
	if err != nil {
		return fmt.Errorf("TRIGGER_MATCH_ORDER: %w", err)
	}
	queues := actions.NewQueueHandlers(conn, time.Now)
	dispatcher := actions.NewDispatcher(actions.Handlers{
		Webhook:      actions.NewWebhookHandler(cfg.Processor.WebhookTimeout, actions.WithWebhookMetrics(trMetrics)),
		Workflow:     queues.Workflow(),
		Message:      queues.Message(),
		Notification: actions.NewNotificationHandler(notifications, log.With("component", "notifications"), time.Now),
		Activity:     queues.Activity(),
	},
		actions.WithLogger(log.With("component", "actions")),
		actions.WithMetrics(trMetrics),
	)
	proc := processor.New(triggers, events, dispatcher, conn, cfg.Broker.Exchange,
		processor.WithLogger(log.With("component", "processor")),
		processor.WithMetrics(trMetrics),
		processor.WithMatchOrder(order),
		processor.WithActionTimeout(cfg.Processor.ActionTimeout),
	)

	checks := map[string]httptransport.Check{
		"database": db.PingContext,
		"broker": func(context.Context) error {
			if !conn.IsConnected() {
				return fmt.Errorf("broker %s", conn.State())
			}
			return nil
		},
	}
	if cfg.Processor.Enabled {
		checks["processor"] = func(context.Context) error {
			if !proc.IsRunning() {
				return errors.New("processor not running")
			}
			return nil
		}
	}
	if redisClient != nil {
		checks["redis"] = redisClient.Health
	}

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Logger:       log,
		Gatherer:     reg,
		HTTPMetrics:  metrics.NewHTTP(reg),
		Health:       httptransport.NewHealthHandler(checks),
		Events:       httptransport.NewEventHandler(emit, log.With("component", "http")),
		ServiceToken: cfg.Server.ServiceToken,
	})
	srv := httpserver.New(ctx, cfg.Server, router)

	// subscribe before the emit endpoint accepts traffic
	if cfg.Processor.Enabled {
		if err := proc.Start(ctx); err != nil {
			// automation stays off until restart; emitting still works
			log.Error("trigger processor did not start", "error", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Serve(gctx, srv, cfg.Server.ShutdownTimeout, log.With("component", "http"))
	})
	if cfg.Processor.Enabled {
		g.Go(func() error {
			<-gctx.Done()
			proc.Stop()
			return nil
		})
	}
	if cfg.Redrive.Enabled {
		sweeper := redrive.New(events, emit, cfg.Redrive.Interval, cfg.Redrive.Grace, cfg.Redrive.Batch,
			redrive.WithLogger(log.With("component", "redrive")),
			redrive.WithMetrics(evMetrics),
		)
		g.Go(func() error {
			if err := sweeper.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	log.Info("autoflow started", "broker", cfg.Broker.Driver, "processor", cfg.Processor.Enabled, "redrive", cfg.Redrive.Enabled)

	return g.Wait()
}

func newDialer(cfg config.BrokerConfig) (broker.Dialer, error) {
	switch cfg.Driver {
	case "kafka":
		return broker.KafkaDialer(broker.KafkaConfig{
			Brokers:           cfg.Brokers,
			ClientID:          cfg.ClientID,
			Partitions:        cfg.Partitions,
			ReplicationFactor: cfg.ReplicationFactor,
		}), nil
	case "memory":
		return broker.NewMemoryBroker().Dial, nil
	default:
		return nil, fmt.Errorf("unknown BROKER_DRIVER %q", cfg.Driver)
	}
}
