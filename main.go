package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	monitoringapp "esante-monitoring/internal/monitoring/application"
	monitoring "esante-monitoring/internal/monitoring/domain"
	monitoringmemory "esante-monitoring/internal/monitoring/infrastructure/memory"
	monitoringpostgres "esante-monitoring/internal/monitoring/infrastructure/postgres"
	monitoringhttp "esante-monitoring/internal/monitoring/interfaces/http"
	monitoringmqtt "esante-monitoring/internal/monitoring/interfaces/mqtt"
	notificationapp "esante-monitoring/internal/notification/application"
	"esante-monitoring/internal/notification/broadcast"
	"esante-monitoring/internal/notification/channel"
	notification "esante-monitoring/internal/notification/domain"
	notificationmemory "esante-monitoring/internal/notification/infrastructure/memory"
	notificationpostgres "esante-monitoring/internal/notification/infrastructure/postgres"
	notificationhttp "esante-monitoring/internal/notification/interfaces/http"
	"esante-monitoring/internal/observability/metrics"
	"esante-monitoring/internal/platform/config"
	platformlogger "esante-monitoring/internal/platform/logger"
	"esante-monitoring/internal/platform/postgres"
	platformredis "esante-monitoring/internal/platform/redis"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger, err := platformlogger.New(cfg.LogLevel, cfg.LogFormat, cfg.ServiceName)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("service stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.close()

	metrics.Init(store.db, logger)

	hub := broadcast.NewHub(
		broadcast.WithBuffer(cfg.Stream.Buffer),
		broadcast.WithSendTimeout(cfg.Stream.SendTimeout),
		broadcast.WithLogger(logger),
	)
	var broadcaster notificationapp.Broadcaster = hub
	if cfg.RedisURL != "" {
		client, err := platformredis.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		relay, err := broadcast.NewRedisRelay(client, cfg.RedisChannel, hub, logger)
		if err != nil {
			return err
		}
		go relay.Serve(ctx)
		broadcaster = relay
		logger.Info("redis broadcast relay enabled", zap.String("channel", cfg.RedisChannel))
	}

	registry, err := buildChannels(cfg.Channels, logger)
	if err != nil {
		return err
	}
	dispatcher, err := notificationapp.NewDispatcher(store.notifications, registry,
		notificationapp.WithBroadcaster(broadcaster),
		notificationapp.WithSendTimeout(cfg.Notify.SendTimeout),
		notificationapp.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	service, err := monitoringapp.NewService(store.monitoring, dispatcher, monitoringapp.WithLogger(logger))
	if err != nil {
		return err
	}

	if cfg.MQTT.BrokerURL != "" {
		consumer, err := monitoringmqtt.NewConsumer(monitoringmqtt.Options{
			BrokerURL: cfg.MQTT.BrokerURL,
			ClientID:  cfg.MQTT.ClientID,
			Username:  cfg.MQTT.Username,
			Password:  cfg.MQTT.Password,
			Topic:     cfg.MQTT.Topic,
			QoS:       cfg.MQTT.QoS,
		}, service, logger)
		if err != nil {
			return err
		}
		if err := consumer.Start(ctx); err != nil {
			return err
		}
		defer consumer.Stop()
	}

	router, err := newRouter(service, dispatcher, hub, cfg.Stream.WriteTimeout, logger)
	if err != nil {
		return err
	}
	server := newServer(cfg.HTTPAddr, router, hub)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// newServer builds the HTTP server. Shutdown ends live streams so their
// connections drain.
func newServer(addr string, handler http.Handler, hub *broadcast.Hub) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	server.RegisterOnShutdown(hub.Close)
	return server
}

type storage struct {
	db            *sql.DB
	monitoring    monitoring.Repository
	notifications notification.Repository
}

func (s storage) close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func openStorage(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage, error) {
	if cfg.Storage == config.StorageMemory {
		logger.Warn("using in-memory storage")
		return storage{
			monitoring:    monitoringmemory.NewRepository(),
			notifications: notificationmemory.NewRepository(),
		}, nil
	}

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return storage{}, err
	}
	if cfg.Migrate {
		if err := postgres.Migrate(ctx, db, logger); err != nil {
			_ = db.Close()
			return storage{}, err
		}
	}
	monitoringRepo, err := monitoringpostgres.NewRepository(db)
	if err != nil {
		_ = db.Close()
		return storage{}, err
	}
	notificationRepo, err := notificationpostgres.NewRepository(db)
	if err != nil {
		_ = db.Close()
		return storage{}, err
	}
	return storage{db: db, monitoring: monitoringRepo, notifications: notificationRepo}, nil
}

// buildChannels registers IN_APP plus every provider channel that is configured.
func buildChannels(cfg config.ChannelsConfig, logger *zap.Logger) (*channel.Registry, error) {
	registry, err := channel.NewRegistry(channel.InApp{})
	if err != nil {
		return nil, err
	}
	if cfg.Email.ServerToken != "" && cfg.Email.From != "" {
		email, err := channel.NewEmail(cfg.Email.ServerToken, cfg.Email.AccountToken, cfg.Email.From)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(email); err != nil {
			return nil, err
		}
	}
	if cfg.SMS.GatewayURL != "" {
		sms, err := channel.NewSMS(cfg.SMS.GatewayURL, cfg.SMS.Token, cfg.SMS.Sender)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(sms); err != nil {
			return nil, err
		}
	}
	if cfg.Push.ProviderURL != "" && cfg.Push.Secret != "" {
		push, err := channel.NewPush(cfg.Push.ProviderURL, cfg.Push.Secret, cfg.Push.TokenTTL)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(push); err != nil {
			return nil, err
		}
	}
	names := make([]string, 0)
	for _, name := range registry.Names() {
		names = append(names, string(name))
	}
	logger.Info("notification channels registered", zap.Strings("channels", names))
	return registry, nil
}

func newRouter(service *monitoringapp.Service, dispatcher *notificationapp.Dispatcher, hub *broadcast.Hub, streamWriteTimeout time.Duration, logger *zap.Logger) (http.Handler, error) {
	monitoringHandler, err := monitoringhttp.NewHandler(service, logger)
	if err != nil {
		return nil, err
	}
	notificationHandler, err := notificationhttp.NewHandler(dispatcher, hub,
		notificationhttp.WithWriteTimeout(streamWriteTimeout),
		notificationhttp.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(accessLog(logger))

	monitoringHandler.Routes(r)
	notificationHandler.Routes(r)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r, nil
}

func accessLog(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
