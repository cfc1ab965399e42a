package params

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Node struct {
	APIAddr     string   `env:"API_ADDR" envDefault:":8080"`
	DataDir     string   `env:"DATA_DIR" envDefault:"data"`
	Storage     string   `env:"STORAGE" envDefault:"pebble"` // pebble | mem
	LogFile     string   `env:"LOG_FILE"`
	Verbose     bool     `env:"VERBOSE"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:5173"`
}

type Transport struct {
	// Kinds lists the transports to fan out over: libp2p, kafka, kv.
	Kinds        []string `env:"TRANSPORTS" envSeparator:"," envDefault:"libp2p"`
	Listen       string   `env:"LISTEN" envDefault:"/ip4/0.0.0.0/tcp/4001"`
	Bootstrap    []string `env:"BOOTSTRAP" envSeparator:","`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"hni-trade-sync"`
}

type Replication struct {
	DedupCapacity int           `env:"DEDUP_CAPACITY" envDefault:"4096"`
	LockTTL       time.Duration `env:"LOCK_TTL" envDefault:"5s"`
	NotifyTTL     time.Duration `env:"NOTIFY_TTL" envDefault:"5s"`
	SyncInterval  time.Duration `env:"SYNC_INTERVAL" envDefault:"30s"`
}

type Feeder struct {
	SeedDemo bool          `env:"SEED_DEMO" envDefault:"true"`
	Enabled  bool          `env:"ENABLE_FEEDER"`
	Interval time.Duration `env:"FEEDER_INTERVAL" envDefault:"2s"`
	Batch    int           `env:"FEEDER_BATCH" envDefault:"1"`
}

type Config struct {
	Node        Node
	Transport   Transport
	Replication Replication
	Feeder      Feeder
}

var knownTransports = map[string]bool{"libp2p": true, "kafka": true, "kv": true}

func Default() Config {
	return Config{
		Node: Node{
			APIAddr:     ":8080",
			DataDir:     "data",
			Storage:     "pebble",
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Transport: Transport{
			Kinds:        []string{"libp2p"},
			Listen:       "/ip4/0.0.0.0/tcp/4001",
			KafkaBrokers: []string{"localhost:9092"},
			KafkaTopic:   "hni-trade-sync",
		},
		Replication: Replication{
			DedupCapacity: 4096,
			LockTTL:       5 * time.Second,
			NotifyTTL:     5 * time.Second,
			SyncInterval:  30 * time.Second,
		},
		Feeder: Feeder{
			SeedDemo: true,
			Interval: 2 * time.Second,
			Batch:    1,
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) (Config, error) {
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	cfg := Default()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	for i, k := range c.Transport.Kinds {
		k = strings.ToLower(strings.TrimSpace(k))
		if !knownTransports[k] {
			return fmt.Errorf("unknown transport %q", k)
		}
		c.Transport.Kinds[i] = k
	}
	switch c.Node.Storage {
	case "pebble", "mem":
	default:
		return fmt.Errorf("unknown storage %q", c.Node.Storage)
	}
	if c.Replication.DedupCapacity <= 0 {
		return fmt.Errorf("dedup capacity must be positive")
	}
	if c.Replication.LockTTL <= 0 {
		return fmt.Errorf("lock ttl must be positive")
	}
	return nil
}

// Uses reports whether the named transport is enabled.
func (t Transport) Uses(kind string) bool {
	for _, k := range t.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}
