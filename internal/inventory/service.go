package inventory

import (
	"context"

	kafkax "github.com/ariefcatur/storefront-pos/internal/kafka"
	"github.com/ariefcatur/storefront-pos/internal/obs"
	"github.com/ariefcatur/storefront-pos/internal/orders"
	"github.com/ariefcatur/storefront-pos/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

// StockApplier deducts stock for a completed order. *orders.StockRepo satisfies it.
type StockApplier interface {
	ApplyCompleted(ctx context.Context, orderID string) ([]orders.StockChange, error)
}

type Service struct {
	Repo        StockApplier
	Redis       *redis.Client
	ServiceName string
}

// HandleOrderStatusChanged is installed as the consumer handler. Only
// transitions into completed touch stock.
func (s *Service) HandleOrderStatusChanged(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		obs.Logger.Warn("dropping undecodable event", "offset", m.Offset, "err", err)
		return nil
	}
	if env.EventType != orders.EventOrderStatusChanged {
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
	if err != nil {
		obs.Logger.Warn("dropping bad payload", "event_id", env.EventID, "err", err)
		return nil
	}
	if p.To != orders.StatusCompleted {
		return nil
	}

	seen, err := redisx.Dedup(ctx, s.Redis, s.ServiceName, env.EventID)
	if err != nil {
		// The stock_adjustments key still keeps the deduction single.
		obs.Logger.Warn("dedup unavailable", "event_id", env.EventID, "err", err)
	}
	if seen {
		return nil
	}

	changes, err := s.Repo.ApplyCompleted(ctx, p.OrderID)
	if err != nil {
		_ = s.Redis.Del(ctx, dedupKey(s.ServiceName, env.EventID)).Err()
		return err
	}
	for _, c := range changes {
		if c.Remaining == 0 {
			obs.Logger.Info("product out of stock", "product_id", c.ProductID, "order_id", p.OrderID)
		}
	}
	obs.Logger.Info("stock applied", "order_id", p.OrderID, "products", len(changes))
	return nil
}
