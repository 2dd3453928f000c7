package app

import (
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-inventory/internal/inventory"
	"github.com/odyssey-erp/odyssey-inventory/internal/observability"
	"github.com/odyssey-erp/odyssey-inventory/internal/platform/broker"
	"github.com/odyssey-erp/odyssey-inventory/internal/shared"
)

// Inventory bundles the stock engine with the resources it owns.
type Inventory struct {
	Service    *inventory.Service
	Repository *inventory.Repository
	publisher  *broker.KafkaPublisher
}

// NewInventory wires the inventory service onto Postgres, the optional Redis
// balance cache and the optional Kafka event stream.
func NewInventory(cfg *Config, logger *slog.Logger, pool *pgxpool.Pool, redisClient *redis.Client, metrics *observability.Metrics) (*Inventory, error) {
	if pool == nil {
		return nil, errors.New("app: inventory requires a database pool")
	}
	repo := inventory.NewRepository(pool)
	deps := inventory.Dependencies{
		Repo:   repo,
		Audit:  shared.NewAuditLogger(pool),
		Logger: logger,
	}
	if m := metrics.Inventory(); m != nil {
		deps.Metrics = m
	}
	if redisClient != nil {
		deps.Cache = inventory.NewRedisBalanceCache(redisClient, cfg.BalanceCacheTTL)
	}

	inv := &Inventory{Repository: repo}
	if cfg.EventsEnabled() {
		pub, err := broker.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		inv.publisher = pub
		deps.Events = inventory.NewBrokerPublisher(pub)
	} else if logger != nil {
		logger.Info("kafka brokers not configured, stock events disabled")
	}
	inv.Service = inventory.NewService(deps)
	return inv, nil
}

// Close flushes pending events.
func (i *Inventory) Close() error {
	if i == nil || i.publisher == nil {
		return nil
	}
	return i.publisher.Close()
}
