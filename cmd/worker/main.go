package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-marketplace-orders/internal/app"
	"github.com/ariefcatur/go-marketplace-orders/internal/config"
	kafkax "github.com/ariefcatur/go-marketplace-orders/internal/kafka"
	"github.com/ariefcatur/go-marketplace-orders/internal/logging"
	"github.com/ariefcatur/go-marketplace-orders/internal/notify"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// worker runs the reservation sweeper and the notification consumer.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logging.MustNewLogger(cfg.ServiceName+"-worker", cfg.Env)
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	if cfg.Store == "memory" {
		log.Fatal("worker_needs_postgres", zap.String("hint", "STORE=memory runs everything inside the api"))
	}
	if err := run(cfg, log); err != nil {
		log.Fatal("worker_exit", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithContext(ctx, log)

	prodCtx, cancelProd := context.WithCancel(context.Background())
	defer cancelProd()

	d, err := app.Build(prodCtx, cfg, log)
	if err != nil {
		return err
	}
	defer d.Close()

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifyGroup, cfg.NotifyTopic, cfg.NotifyWorkers, log)
	h := &notify.Handler{Sender: notify.LogSender{}}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.Sweeper().Run(gctx) })
	g.Go(func() error {
		log.Info("notify_consumer_started",
			zap.String("group", cfg.NotifyGroup),
			zap.String("topic", cfg.NotifyTopic),
			zap.Int("workers", cfg.NotifyWorkers),
		)
		return cons.Start(gctx, h.Handle)
	})

	err = g.Wait()
	cancelProd()
	d.WaitProducer()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
