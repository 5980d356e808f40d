// Package app assembles the long-lived dependencies shared by the binaries.
package app

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-marketplace-orders/internal/cart"
	"github.com/ariefcatur/go-marketplace-orders/internal/catalog"
	"github.com/ariefcatur/go-marketplace-orders/internal/config"
	"github.com/ariefcatur/go-marketplace-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-marketplace-orders/internal/kafka"
	"github.com/ariefcatur/go-marketplace-orders/internal/metrics"
	"github.com/ariefcatur/go-marketplace-orders/internal/notify"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/payments"
	"github.com/ariefcatur/go-marketplace-orders/internal/postgres"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
	"github.com/ariefcatur/go-marketplace-orders/internal/store"
	"github.com/ariefcatur/go-marketplace-orders/internal/store/memory"
	pgstore "github.com/ariefcatur/go-marketplace-orders/internal/store/postgres"
	"github.com/ariefcatur/go-marketplace-orders/internal/sweeper"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deps is everything a binary needs to serve orders. With STORE=memory the
// whole stack runs in process: no postgres, redis or kafka.
type Deps struct {
	Config   config.Config
	Log      *zap.Logger
	Store    store.Store
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Machine  *orders.Machine
	Ledger   *inventory.Ledger
	Notifier notify.Dispatcher
	Carts    cart.Repository
	Gateways payments.Gateways

	// nil in memory mode
	Redis       *redis.Client
	Producer    *kafkax.Producer
	Dedupe      *redisx.Dedupe
	StatusCache *redisx.StatusCache
	Idempotency *redisx.Idempotency

	closers []func()
}

func Build(ctx context.Context, cfg config.Config, log *zap.Logger) (*Deps, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	gw, err := Gateways(cfg, log)
	if err != nil {
		return nil, err
	}
	d := &Deps{
		Config:   cfg,
		Log:      log,
		Registry: reg,
		Metrics:  m,
		Machine:  orders.NewMachine(m),
		Ledger:   inventory.NewLedger(),
		Gateways: gw,
	}

	if cfg.Store == "memory" {
		mem := memory.New()
		Seed(mem)
		d.Store = mem
		d.Carts = cart.NewMemoryRepository()
		d.Notifier = notify.LogDispatcher{}
		log.Warn("store_memory", zap.String("hint", "state is lost on restart"))
		return d, nil
	}

	pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	d.closers = append(d.closers, pool.Close)
	if err := postgres.Migrate(ctx, pool); err != nil {
		d.Close()
		return nil, err
	}
	d.Store = pgstore.New(pool)

	d.Redis = redisx.New(cfg.RedisAddr)
	d.closers = append(d.closers, func() { _ = d.Redis.Close() })
	if err := d.Redis.Ping(ctx).Err(); err != nil {
		// every redis use is best effort; keep serving without it
		log.Warn("redis_unreachable", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	d.Carts = cart.NewRedisRepository(d.Redis, redisx.TTLCart)
	d.Dedupe = redisx.NewDedupe(d.Redis, "webhook")
	d.StatusCache = redisx.NewStatusCache(d.Redis)
	d.Idempotency = redisx.NewIdempotency(d.Redis)

	d.Producer = kafkax.NewProducer(cfg.KafkaBrokers, cfg.NotifyTopic, 1024, log)
	d.Producer.Start(ctx)
	d.Notifier = notify.Multi{
		notify.LogDispatcher{},
		&notify.KafkaDispatcher{Producer: d.Producer, Service: cfg.ServiceName},
	}
	return d, nil
}

// Gateways picks live providers when credentials are configured. A provider
// without credentials gets the sandbox only with STORE=memory or
// GATEWAY_SANDBOX=true; otherwise startup fails.
func Gateways(cfg config.Config, log *zap.Logger) (payments.Gateways, error) {
	sandbox := func(p payments.Provider) (payments.Gateway, error) {
		if cfg.Store != "memory" && !cfg.GatewaySandbox {
			return nil, fmt.Errorf("%s credentials missing; set them or GATEWAY_SANDBOX=true", p)
		}
		log.Warn("gateway_sandbox", zap.String("provider", string(p)))
		return &payments.SandboxGateway{Provider: p}, nil
	}

	gw := payments.Gateways{}
	var err error
	if cfg.StripeSecretKey != "" {
		gw[payments.ProviderStripe] = payments.NewStripeGateway(cfg.StripeSecretKey)
	} else if gw[payments.ProviderStripe], err = sandbox(payments.ProviderStripe); err != nil {
		return nil, err
	}
	if cfg.RazorpayKeyID != "" && cfg.RazorpayKeySecret != "" {
		gw[payments.ProviderRazorpay] = payments.NewRazorpayGateway(cfg.RazorpayBaseURL, cfg.RazorpayKeyID, cfg.RazorpayKeySecret)
	} else if gw[payments.ProviderRazorpay], err = sandbox(payments.ProviderRazorpay); err != nil {
		return nil, err
	}
	return gw, nil
}

// Sweeper returns the reservation sweeper bound to d.
func (d *Deps) Sweeper() *sweeper.Sweeper {
	s := &sweeper.Sweeper{
		Store:    d.Store,
		Ledger:   d.Ledger,
		Machine:  d.Machine,
		Notifier: d.Notifier,
		Metrics:  d.Metrics,
		Interval: d.Config.SweepInterval,
	}
	if d.StatusCache != nil {
		s.Cache = d.StatusCache
	}
	return s
}

// Close releases connections in reverse order. The kafka producer is drained
// by cancelling the context passed to Build, see WaitProducer.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func (d *Deps) WaitProducer() {
	if d.Producer != nil {
		d.Producer.WaitClosed()
	}
}

// Seed fills an in-memory store with a small demo catalog.
func Seed(s *memory.Store) {
	for _, p := range []catalog.Product{
		{ID: "prod-keyboard", SKU: "KB-001", Name: "Mechanical keyboard", PriceCents: 8999, StockQuantity: 25, Status: catalog.ProductActive, VendorID: "vendor-acme"},
		{ID: "prod-mouse", SKU: "MS-001", Name: "Wireless mouse", PriceCents: 2999, StockQuantity: 50, Status: catalog.ProductActive, VendorID: "vendor-acme"},
		{ID: "prod-monitor", SKU: "MN-027", Name: "27in monitor", PriceCents: 27999, StockQuantity: 5, Status: catalog.ProductActive, VendorID: "vendor-view"},
		{ID: "prod-webcam", SKU: "WC-004", Name: "4K webcam", PriceCents: 12999, StockQuantity: 0, Status: catalog.ProductInactive, VendorID: "vendor-view"},
	} {
		s.PutProduct(p)
	}
}
