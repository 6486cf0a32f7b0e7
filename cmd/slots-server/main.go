package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"therapyslots/internal/config"
	"therapyslots/internal/health"
	"therapyslots/internal/ratelimit"
	"therapyslots/internal/service/accounts"
	"therapyslots/internal/service/appointments"
	"therapyslots/internal/store/postgres"
	"therapyslots/internal/telemetry"
	"therapyslots/internal/transport/events"
	grpcTransport "therapyslots/internal/transport/grpc"
)

const serviceName = "slots-server"

func main() {
	os.Exit(run())
}

func run() int {
	log := newLogger(slog.LevelInfo)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		return 1
	}

	log = newLogger(parseLogLevel(cfg.LogLevel))
	slog.SetDefault(log)

	log.Info("starting",
		slog.String("grpc_addr", cfg.GRPCAddr()),
		slog.String("http_addr", cfg.HTTPAddr),
		slog.String("log_level", cfg.LogLevel),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.OTelEnabled,
		ServiceName: serviceName,
		Endpoint:    cfg.OTelEndpoint,
		SampleRatio: cfg.OTelSampleRatio,
	})
	if err != nil {
		log.Error("otel setup failed", slog.Any("err", err))
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			log.Warn("otel shutdown failed", slog.Any("err", err))
		}
	}()

	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	openCtx, cancelOpen := context.WithTimeout(ctx, 15*time.Second)
	db, err := postgres.Open(openCtx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	cancelOpen()
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		return 1
	}
	defer func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}()

	repo := postgres.NewAppointmentRepo(db)
	svc := appointments.NewService(repo)
	purger := accounts.NewPurger(repo, log)

	checks := []health.Check{{Name: "db", Check: postgres.ReadyCheck(db)}}

	interceptors := []grpc.UnaryServerInterceptor{
		grpcTransport.RequestIDInterceptor(),
		grpcTransport.DefaultTimeoutInterceptor(cfg.GRPCRequestTimeout),
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Warn("redis close failed", slog.Any("err", err))
			}
		}()
		limiter := ratelimit.NewRedisLimiter(rdb, cfg.RateLimit, cfg.RateLimitWindow, "slots:rl")
		interceptors = append(interceptors, grpcTransport.RateLimitInterceptor(limiter, cfg.RateLimitFailOpen, log))
		checks = append(checks, health.Check{Name: "redis", Check: ratelimit.ReadyCheck(rdb)})
		log.Info("rate limiting enabled",
			slog.String("redis_addr", cfg.RedisAddr),
			slog.Int("limit", cfg.RateLimit),
			slog.Duration("window", cfg.RateLimitWindow),
			slog.Bool("fail_open", cfg.RateLimitFailOpen),
		)
	}

	var consumers sync.WaitGroup
	if brokers := events.SplitBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		consumer := events.NewAccountDeletionConsumer(events.ConsumerConfig{
			Brokers:         brokers,
			GroupID:         cfg.KafkaGroupID,
			Topic:           cfg.AccountDeletionTopic,
			RetryBackoff:    cfg.KafkaRetryBackoff,
			MaxRetryBackoff: cfg.KafkaMaxRetryBackoff,
		}, purger, log)
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			consumer.Run(ctx)
		}()
		checks = append(checks, health.Check{Name: "kafka", Check: events.ReadyCheck(brokers)})
		log.Info("account deletion consumer started",
			slog.String("topic", cfg.AccountDeletionTopic),
			slog.String("group_id", cfg.KafkaGroupID),
		)
	} else {
		log.Warn("kafka brokers not configured; account deletion events are not consumed")
	}

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors...),
	)
	grpcTransport.RegisterSlotsServiceServer(grpcServer, grpcTransport.NewSlotsServer(svc, log))

	healthSrv := grpchealth.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("slots.v1.SlotsService", healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", cfg.GRPCAddr()))
		return 1
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           health.NewHandler(log, checks...),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Info("grpc server started", slog.String("grpc_addr", cfg.GRPCAddr()))

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("server stopped with error", slog.Any("err", err))
			exitCode = 1
		}
		stop()
	}

	healthSrv.Shutdown()
	shutdown(log, grpcServer, cfg.ShutdownTimeout)

	httpCtx, cancelHTTP := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	if err := httpServer.Shutdown(httpCtx); err != nil {
		log.Warn("http shutdown failed", slog.Any("err", err))
	}
	cancelHTTP()

	consumers.Wait()
	log.Info("stopped")
	return exitCode
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).With(
		slog.String("service", serviceName),
	)
}

func shutdown(log *slog.Logger, s *grpc.Server, timeout time.Duration) {
	log.Info("shutting down grpc server", slog.Duration("timeout", timeout))

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-timer.C:
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		s.Stop()
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
