package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/IBM/sarama"
	"github.com/vogiaan1904/ticketbottle-lineup/config"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/broadcast"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/common/clock"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/common/uuid"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/connection"
	grpcDelivery "github.com/vogiaan1904/ticketbottle-lineup/internal/delivery/grpc"
	httpDelivery "github.com/vogiaan1904/ticketbottle-lineup/internal/delivery/http"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/delivery/kafka/consumer"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/delivery/kafka/producer"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/heartbeat"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/infra/redis"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/queue"
	repo "github.com/vogiaan1904/ticketbottle-lineup/internal/repository/redis"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/service"
	pkgKafka "github.com/vogiaan1904/ticketbottle-lineup/pkg/kafka"
	pkgLog "github.com/vogiaan1904/ticketbottle-lineup/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	l := pkgLog.InitializeZapLogger(pkgLog.ZapConfig{
		Level:    cfg.Log.Level,
		Mode:     cfg.Log.Mode,
		Encoding: cfg.Log.Encoding,
	})
	defer l.Sync()

	redisCli, err := redis.Connect(ctx, cfg.Redis, l)
	if err != nil {
		l.Fatalf(ctx, "Failed to connect to Redis: %v", err)
	}
	defer redis.Disconnect(context.Background(), redisCli, l)

	ssRepo := repo.NewRedisSessionRepository(redisCli, l)
	pRepo := repo.NewRedisParticipantRepository(redisCli, l)
	mRepo := repo.NewRedisMemberRepository(redisCli, l)

	// Kafka is optional; without it lineup events are not published and
	// stream-ended signals are not consumed.
	prod := producer.NewNoopProducer()
	var kafkaConsGr sarama.ConsumerGroup
	if cfg.Kafka.Enabled {
		kafkaSyncProd, err := pkgKafka.NewProducer(pkgKafka.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			RetryMax:     cfg.Kafka.ProducerRetryMax,
			RequiredAcks: cfg.Kafka.ProducerRequiredAcks,
		})
		if err != nil {
			l.Fatalf(ctx, "Failed to initialize Kafka producer: %v", err)
		}
		prod = producer.NewProducer(kafkaSyncProd, l)

		kafkaConsGr, err = pkgKafka.NewConsumer(pkgKafka.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			GroupID: cfg.Kafka.ConsumerGroupID,
		})
		if err != nil {
			l.Fatalf(ctx, "Failed to initialize Kafka consumer: %v", err)
		}
	}
	defer func() {
		if err := prod.Close(); err != nil {
			l.Warnf(context.Background(), "Failed to close Kafka producer: %v", err)
		}
	}()

	clk := &clock.DefaultClock{}
	store := queue.NewStore()

	ids := uuid.New()
	connCfg := connection.Config{
		MaxLifetime: cfg.Lineup.ConnectionMaxLifetime,
		UUID:        ids,
	}
	viewers := connection.NewViewerRegistry(connCfg, l)
	streamers := connection.NewStreamerRegistry(connCfg, l)

	tracker := heartbeat.NewTracker(heartbeat.Config{
		Interval:        cfg.Lineup.HeartbeatInterval,
		Timeout:         cfg.Lineup.HeartbeatTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, clk, l)

	engine := broadcast.NewEngine(broadcast.Config{
		Workers:     cfg.Lineup.BroadcastWorkers,
		SendTimeout: cfg.Lineup.SendTimeout,
	}, store, viewers, streamers, l)

	svc := service.NewLineupService(service.Config{
		DefaultMaxGroupSize: cfg.Lineup.DefaultMaxGroupSize,
	}, service.Dependencies{
		Sessions:     ssRepo,
		Participants: pRepo,
		Members:      mRepo,
		Store:        store,
		Engine:       engine,
		Viewers:      viewers,
		Streamers:    streamers,
		Tracker:      tracker,
		Producer:     prod,
		Clock:        clk,
		UUID:         ids,
		Logger:       l,
	})

	if err := tracker.Start(ctx); err != nil {
		l.Fatalf(ctx, "Failed to start heartbeat tracker: %v", err)
	}

	// Stream-ended consumer
	var cons *consumer.Consumer
	if kafkaConsGr != nil {
		cons = consumer.NewConsumer(kafkaConsGr, svc, l)
		if err := cons.Start(ctx); err != nil {
			l.Fatalf(ctx, "Failed to start Kafka consumer: %v", err)
		}
	}

	// gRPC health server
	lnr, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRpcPort))
	if err != nil {
		l.Fatalf(ctx, "gRPC server failed to listen: %v", err)
	}

	gRpcSrv := grpcDelivery.NewServer(l)
	healthSvc := grpcDelivery.NewHealthService(l)
	healthSvc.Register(gRpcSrv)

	go func() {
		l.Infof(ctx, "gRPC server is listening on port: %d", cfg.Server.GRpcPort)
		if err := gRpcSrv.Serve(lnr); err != nil {
			l.Fatalf(ctx, "Failed to serve gRPC: %v", err)
		}
	}()

	// HTTP server
	h := httpDelivery.NewHTTPHandler(svc, l, httpDelivery.StreamConfig{
		PingInterval: cfg.Lineup.StreamPingInterval,
		Buffer:       cfg.Lineup.ConnectionBuffer,
	})
	httpSrv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:     h.Routes(httpDelivery.Authenticate(cfg.JWT.Secret, l)),
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	go func() {
		l.Infof(ctx, "HTTP server is listening on port: %d", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatalf(ctx, "Failed to serve HTTP: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info(ctx, "Server shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	healthSvc.Drain(shutdownCtx)

	if err := svc.Shutdown(shutdownCtx); err != nil {
		l.Errorf(shutdownCtx, "Lineup shutdown finished with errors: %v", err)
	}

	if err := tracker.Stop(); err != nil {
		l.Warnf(shutdownCtx, "Failed to stop heartbeat tracker: %v", err)
	}

	cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		l.Warnf(shutdownCtx, "HTTP server shutdown: %v", err)
	}

	healthSvc.Shutdown()
	gRpcSrv.GracefulStop()

	if cons != nil {
		if err := cons.Close(); err != nil {
			l.Warnf(shutdownCtx, "Failed to close Kafka consumer: %v", err)
		}
	}

	l.Info(shutdownCtx, "Server exited")
}
