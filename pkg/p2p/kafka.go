package p2p

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const DefaultKafkaTopic = "hni-trade-sync"

type KafkaConfig struct {
	Brokers []string
	Topic   string
	// GroupID must be unique per replica so every replica consumes every
	// message.
	GroupID string
	Logger  *zap.SugaredLogger
}

// KafkaTransport publishes envelopes to a Kafka topic and consumes the topic
// with a replica-private consumer group.
type KafkaTransport struct {
	w   *kafka.Writer
	r   *kafka.Reader
	log *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.RWMutex
	handler func(context.Context, []byte)
}

func NewKafkaTransport(ctx context.Context, cfg KafkaConfig) (*KafkaTransport, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if cfg.GroupID == "" {
		return nil, errors.New("kafka: group id required")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultKafkaTopic
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	kctx, cancel := context.WithCancel(ctx)
	t := &KafkaTransport{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.LeastBytes{},
			RequiredAcks:           kafka.RequireOne,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       cfg.Topic,
			GroupID:     cfg.GroupID,
			StartOffset: kafka.LastOffset,
			MinBytes:    1,
			MaxBytes:    10e6,
			MaxWait:     500 * time.Millisecond,
		}),
		log:    log,
		ctx:    kctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go t.readLoop()

	log.Infow("kafka_ready", "brokers", cfg.Brokers, "topic", cfg.Topic, "group", cfg.GroupID)
	return t, nil
}

func (t *KafkaTransport) Publish(ctx context.Context, msg []byte) error {
	return t.w.WriteMessages(ctx, kafka.Message{Value: msg})
}

func (t *KafkaTransport) SetHandler(h func(context.Context, []byte)) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

func (t *KafkaTransport) readLoop() {
	defer close(t.done)
	for {
		m, err := t.r.ReadMessage(t.ctx)
		if err != nil {
			if t.ctx.Err() != nil {
				return
			}
			t.log.Warnw("kafka_read_failed", "err", err)
			select {
			case <-t.ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		t.mu.RLock()
		h := t.handler
		t.mu.RUnlock()
		if h != nil {
			h(t.ctx, m.Value)
		}
	}
}

func (t *KafkaTransport) Close() error {
	t.cancel()
	err := t.r.Close()
	<-t.done
	return errors.Join(err, t.w.Close())
}
