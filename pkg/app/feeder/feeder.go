package feeder

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/hnitrade/pkg/app/core/orderbook"
)

// Submitter is the part of the engine the feeder drives.
type Submitter interface {
	SubmitOrder(ctx context.Context, d orderbook.OrderData) (orderbook.Order, error)
	CancelOrder(ctx context.Context, id string) bool
}

// Config controls order generation rate
type Config struct {
	Interval  time.Duration // how often a batch is generated
	BatchSize int           // actions per batch
	Seed      int64         // zero seeds from the clock
}

func DefaultConfig() Config {
	return Config{
		Interval:  2 * time.Second,
		BatchSize: 1,
	}
}

// Start feeds generated orders and cancels to sub in the background.
// Returns a cancel function to stop the feeder.
func Start(ctx context.Context, sub Submitter, gen *Generator, cfg Config, log *zap.SugaredLogger) context.CancelFunc {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	feedCtx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()

		start := time.Now()
		log.Infow("feeder_started", "interval", cfg.Interval, "batch", cfg.BatchSize)

		for {
			select {
			case <-feedCtx.Done():
				st := gen.Stats()
				log.Infow("feeder_stopped", "orders", st.Orders, "cancels", st.Cancels, "elapsed", time.Since(start).Round(time.Second))
				return

			case <-ticker.C:
				for i := 0; i < cfg.BatchSize; i++ {
					step(feedCtx, sub, gen, log)
				}
			}
		}
	}()

	return cancel
}

func step(ctx context.Context, sub Submitter, gen *Generator, log *zap.SugaredLogger) {
	a := gen.Next()
	if a.Order == nil {
		sub.CancelOrder(ctx, a.CancelID)
		return
	}
	o, err := sub.SubmitOrder(ctx, *a.Order)
	if err != nil {
		log.Debugw("feeder_order_rejected", "instrument", a.Order.InstrumentID, "err", err)
		return
	}
	if o.IsOpen() {
		gen.Remember(o.ID)
	}
}
