package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/app"
	"github.com/ariefcatur/go-marketplace-orders/internal/cart"
	"github.com/ariefcatur/go-marketplace-orders/internal/checkout"
	"github.com/ariefcatur/go-marketplace-orders/internal/config"
	"github.com/ariefcatur/go-marketplace-orders/internal/httpx"
	"github.com/ariefcatur/go-marketplace-orders/internal/logging"
	"github.com/ariefcatur/go-marketplace-orders/internal/payments/intent"
	"github.com/ariefcatur/go-marketplace-orders/internal/webhook"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logging.MustNewLogger(cfg.ServiceName, cfg.Env)
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	if err := run(cfg, log); err != nil {
		log.Fatal("api_exit", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithContext(ctx, log)

	// the producer outlives the HTTP server so in-flight notifications flush
	prodCtx, cancelProd := context.WithCancel(context.Background())
	defer cancelProd()

	d, err := app.Build(prodCtx, cfg, log)
	if err != nil {
		return err
	}
	defer d.Close()

	v := validator.New()
	machine, ledger := d.Machine, d.Ledger

	orch := &checkout.Orchestrator{
		Store:          d.Store,
		Carts:          d.Carts,
		Ledger:         ledger,
		Machine:        machine,
		Intents:        &intent.Manager{Store: d.Store, Gateways: d.Gateways},
		Notifier:       d.Notifier,
		Metrics:        d.Metrics,
		Currency:       cfg.Currency,
		ReservationTTL: cfg.ReservationTTL,
		MaxAttempts:    cfg.CheckoutMaxAttempts,
	}
	rec := webhook.NewReconciler(d.Store, machine, ledger, d.Notifier, d.Metrics,
		&webhook.StripeAdapter{Secret: cfg.StripeWebhookSecret},
		&webhook.RazorpayAdapter{Secret: cfg.RazorpayWebhookSecret},
	)
	oh := &httpx.OrdersHandler{
		Store:    d.Store,
		Machine:  machine,
		Ledger:   ledger,
		Notifier: d.Notifier,
		Metrics:  d.Metrics,
		Validate: v,
	}
	// leave interface fields nil rather than holding a typed nil pointer
	if d.Idempotency != nil {
		orch.Idempotency = d.Idempotency
	}
	if d.Dedupe != nil {
		rec.Dedupe = d.Dedupe
	}
	if d.StatusCache != nil {
		rec.Cache = d.StatusCache
		oh.Cache = d.StatusCache
	}

	router := httpx.NewRouter(log)
	router.Handle("/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{}))
	(&httpx.CartHandler{Service: &cart.Service{Repo: d.Carts, Products: d.Store}, Validate: v}).Register(router)
	(&httpx.CheckoutHandler{Checkout: orch, Validate: v}).Register(router)
	(&httpx.WebhookHandler{Reconciler: rec}).Register(router)
	oh.Register(router)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http_listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.SweepInAPI || cfg.Store == "memory" {
		g.Go(func() error { return d.Sweeper().Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting_down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	err = g.Wait()
	cancelProd()
	d.WaitProducer()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
