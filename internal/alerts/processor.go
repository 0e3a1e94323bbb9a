package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Processor consumes ledger events. Delivery channels are out of scope, so each event is
// recorded in the structured log.
type Processor struct {
	logger *zap.Logger
}

func NewProcessor(logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{logger: logger}
}

// Mux routes every ledger task type to the processor.
func (p *Processor) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	for _, taskType := range []string{TaskPurchaseCreated, TaskPurchaseCompleted, TaskPurchaseDisputed, TaskReviewLeft} {
		mux.HandleFunc(taskType, p.Handle)
	}
	return mux
}

// Handle decodes and logs one event.
func (p *Processor) Handle(_ context.Context, t *asynq.Task) error {
	var ev Event
	if err := json.Unmarshal(t.Payload(), &ev); err != nil {
		return fmt.Errorf("decode %s: %w", t.Type(), err)
	}
	p.logger.Info("ledger event",
		zap.String("type", t.Type()),
		zap.String("purchase_id", ev.PurchaseID),
		zap.String("buyer", ev.Buyer),
		zap.String("seller", ev.Seller),
		zap.String("actor", ev.Actor),
		zap.Int64("price", ev.Price),
		zap.Int64("fee", ev.Fee),
		zap.Int("rating", ev.Rating),
		zap.Time("occurred_at", ev.OccurredAt),
	)
	return nil
}

// NewServer builds the asynq worker for the ledger queue.
func NewServer(redisAddr string, logger *zap.Logger) *asynq.Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{
		Concurrency: 5,
		Queues:      map[string]int{Queue: 10},
		Logger:      logger.Sugar(),
	})
}
