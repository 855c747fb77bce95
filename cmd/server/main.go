package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sequencer/api/grpcserver"
	"sequencer/config"
	"sequencer/domain/orderbook"
	"sequencer/infra/kafka"
	"sequencer/infra/logging"
	"sequencer/infra/memory"
	"sequencer/infra/metrics"
	"sequencer/infra/sequence"
	"sequencer/infra/wal/entry"
	"sequencer/infra/wal/exit"
	"sequencer/jobs/broadcaster"
	"sequencer/service"
	"sequencer/snapshot"
)

func main() {
	cfg, err := config.Load(os.Getenv(config.EnvPath))
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		slog.Error("logger", "err", err)
		os.Exit(1)
	}
	if err := run(cfg, log); err != nil {
		log.Error("sequencer exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// ---------------- Logs ----------------

	output, err := exit.Open(cfg.Output.Dir)
	if err != nil {
		return err
	}
	defer output.Close()

	checkpoints, err := snapshot.OpenStore(cfg.Checkpoint.Dir)
	if err != nil {
		return err
	}
	defer checkpoints.Close()

	// ---------------- Recovery ----------------

	engineOpts := []service.EngineOption{
		service.WithEngineLogger(log.With("component", "sequencer")),
		service.WithRecorder(m),
		service.WithMarketOptions(
			orderbook.WithLogger(log.With("component", "orderbook")),
			orderbook.WithLevelPool(func(n int) orderbook.LevelPool {
				return memory.NewPool(func() *orderbook.Level { return orderbook.NewLevel(n) })
			}),
		),
	}
	engine, last, err := service.Recover(service.RecoveryConfig{
		InputDir: cfg.WAL.Dir,
		Strict:   cfg.Replay.Strict,
		Log:      log,
	}, output, checkpoints, engineOpts...)
	if err != nil {
		return errors.Wrap(err, "recovery")
	}

	input, err := entry.Open(entry.Config{
		Dir:             cfg.WAL.Dir,
		SegmentSize:     cfg.WAL.SegmentSize,
		SegmentDuration: cfg.WAL.SegmentDuration,
		Sync:            cfg.WAL.Sync,
	})
	if err != nil {
		return err
	}
	defer input.Close()

	// ---------------- Service ----------------

	svc := service.NewService(engine, input, output, checkpoints, sequence.New(last),
		service.WithLogger(log),
		service.WithMetrics(m),
	)
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	errc := make(chan error, 4)
	spawn := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errc <- errors.Wrap(fn(ctx), name)
		}()
	}
	spawn("sequencer", svc.Run)
	// logs close only after every writer has returned
	defer func() {
		cancel()
		wg.Wait()
	}()

	// ---------------- Background Jobs ----------------

	if cfg.Kafka.Enabled {
		publisher, err := newPublisher(cfg.Kafka)
		if err != nil {
			return err
		}
		bc := broadcaster.New(output, publisher,
			broadcaster.WithInterval(cfg.Broadcaster.Interval),
			broadcaster.WithLogger(log),
			broadcaster.WithRecorder(m),
		)
		spawn("broadcaster", func(ctx context.Context) error {
			defer bc.Close()
			return bc.Run(ctx)
		})

		consumer := kafka.NewConsumer(kafka.NewReader(kafka.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.RequestTopic,
			GroupID: cfg.Kafka.GroupID,
		}), svc, log)
		spawn("kafka consumer", func(ctx context.Context) error {
			defer consumer.Close()
			return consumer.Run(ctx)
		})
	}

	// ---------------- Metrics ----------------

	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		metricsSrv := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server", "err", err)
			}
		}()
		defer metricsSrv.Close()
	}

	// ---------------- gRPC ----------------

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", cfg.Server.GRPCAddr)
	}
	grpcSrv := grpcserver.NewGRPCServer(log)
	grpcserver.Register(grpcSrv, grpcserver.NewServer(svc, log))
	go func() { errc <- errors.Wrap(grpcSrv.Serve(lis), "grpc") }()
	defer grpcSrv.GracefulStop()

	log.Info("sequencer listening", "grpc", cfg.Server.GRPCAddr, "metrics", cfg.Server.MetricsAddr, "last_seq", last)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errc:
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = errors.New("component exited")
		}
		return err
	}
}

func newPublisher(cfg config.KafkaConfig) (broadcaster.Publisher, error) {
	if cfg.Publisher == config.PublisherKafkaGo {
		return kafka.NewProducer(cfg.Brokers, cfg.ResponseTopic), nil
	}
	return broadcaster.NewSaramaPublisher(cfg.Brokers, cfg.ResponseTopic)
}
