package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uhyunpark/hnitrade/params"
	"github.com/uhyunpark/hnitrade/pkg/api"
	"github.com/uhyunpark/hnitrade/pkg/app/core/market"
	"github.com/uhyunpark/hnitrade/pkg/app/feeder"
	"github.com/uhyunpark/hnitrade/pkg/p2p"
	"github.com/uhyunpark/hnitrade/pkg/replication"
	"github.com/uhyunpark/hnitrade/pkg/storage"
	"github.com/uhyunpark/hnitrade/pkg/util"
)

type kvStore interface {
	storage.KV
	Close() error
}

func main() {
	cfg, err := params.LoadFromEnv("") // "" means load from .env in current directory
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := os.MkdirAll(cfg.Node.DataDir, 0755); err != nil {
		log.Fatalf("data dir: %v", err)
	}

	// LOG_FILE=- logs to stdout only
	logFile := cfg.Node.LogFile
	if logFile == "" {
		logFile = filepath.Join(cfg.Node.DataDir, "node.log")
	}
	var logger *zap.Logger
	if logFile == "-" {
		logger, err = util.NewLogger(cfg.Node.Verbose)
	} else {
		logger, err = util.NewLoggerWithFile(logFile, cfg.Node.Verbose)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", logFile, "verbose", cfg.Node.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Storage ----
	kv, err := openStore(cfg.Node)
	if err != nil {
		sugar.Fatalw("storage_open_failed", "err", err)
	}
	defer kv.Close()

	clock := util.RealClock{}
	locker := storage.NewKVLocker(kv, clock, sugar)

	journal, err := storage.NewFileWAL(filepath.Join(cfg.Node.DataDir, "events.log"))
	if err != nil {
		sugar.Fatalw("journal_open_failed", "err", err)
	}
	defer journal.Close()

	// ---- Transports ----
	transport := buildTransport(ctx, cfg.Transport, kv, sugar)
	if transport == nil {
		sugar.Warn("no_transport - running as a single replica")
	} else {
		defer transport.Close()
	}

	// ---- Replica ----
	registry := market.DefaultCatalog()

	rcfg := replication.DefaultConfig()
	rcfg.DedupCapacity = cfg.Replication.DedupCapacity
	rcfg.LockTTL = cfg.Replication.LockTTL
	rcfg.NotifyTTL = cfg.Replication.NotifyTTL
	rcfg.SyncInterval = cfg.Replication.SyncInterval
	rcfg.Clock = clock
	rcfg.Logger = sugar
	rcfg.Catalog = registry
	rcfg.Locker = locker
	rcfg.Persistence = storage.NewSnapshotStore(kv, sugar)
	rcfg.Journal = journal
	if transport != nil {
		rcfg.Transport = transport
	}

	replica := replication.New(rcfg)
	if err := replica.Start(ctx); err != nil {
		sugar.Fatalw("replica_start_failed", "err", err)
	}
	defer replica.Close()

	if cfg.Feeder.SeedDemo && replica.Snapshot().Empty() {
		replica.Ingest(ctx, feeder.DemoSnapshot(time.Now()))
		sugar.Infow("demo_book_seeded")
	}

	// ---- Feeder (optional) ----
	if cfg.Feeder.Enabled {
		gen := feeder.NewGenerator(registry.List(), 0)
		cancelFeeder := feeder.Start(ctx, replica, gen, feeder.Config{
			Interval:  cfg.Feeder.Interval,
			BatchSize: cfg.Feeder.Batch,
		}, sugar)
		defer cancelFeeder()
	} else {
		sugar.Info("feeder_disabled")
	}

	// ---- API Server ----
	apiServer := api.NewServer(replica, registry, api.Config{CORSOrigins: cfg.Node.CORSOrigins}, sugar)
	go func() {
		if err := apiServer.Start(ctx, cfg.Node.APIAddr); err != nil {
			sugar.Errorw("api_server_failed", "err", err)
			stop()
		}
	}()

	sugar.Infow("node_started",
		"replica", replica.ID(),
		"transports", cfg.Transport.Kinds,
		"storage", cfg.Node.Storage,
		"instruments", registry.Count())

	// Expired match locks are swept so the store does not grow without bound.
	ticker := time.NewTicker(cfg.Replication.LockTTL * 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sugar.Info("shutting_down")
			return
		case <-ticker.C:
			if n, err := locker.Sweep(); err != nil {
				sugar.Debugw("lock_sweep_failed", "err", err)
			} else if n > 0 {
				sugar.Debugw("locks_swept", "count", n)
			}
		}
	}
}

func openStore(cfg params.Node) (kvStore, error) {
	if cfg.Storage == "mem" {
		return storage.NewMemKV(), nil
	}
	return storage.NewPebbleKV(filepath.Join(cfg.DataDir, "pebble"))
}

// buildTransport opens every configured transport and fans out over the ones
// that came up. Returns nil when none did.
func buildTransport(ctx context.Context, cfg params.Transport, kv storage.KV, log *zap.SugaredLogger) *p2p.Fanout {
	var ts []p2p.Transport

	if cfg.Uses("libp2p") {
		n, err := p2p.NewLibp2pNet(ctx, p2p.Libp2pConfig{
			ListenAddr: cfg.Listen,
			Bootstrap:  cfg.Bootstrap,
			Logger:     log,
		})
		if err != nil {
			log.Warnw("libp2p_unavailable", "err", err)
		} else {
			ts = append(ts, n)
		}
	}
	if cfg.Uses("kafka") {
		k, err := p2p.NewKafkaTransport(ctx, p2p.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: "hni-trade-" + uuid.NewString(),
			Logger:  log,
		})
		if err != nil {
			log.Warnw("kafka_unavailable", "err", err)
		} else {
			ts = append(ts, k)
		}
	}
	if cfg.Uses("kv") {
		ts = append(ts, p2p.NewKVTransport(kv))
	}

	if len(ts) == 0 {
		return nil
	}
	return p2p.NewFanout(ts...)
}
