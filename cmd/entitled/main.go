package main

import (
	"context"
	"entitled/cmd/entitled/cmds"
	"entitled/internal/api"
	"entitled/internal/backends"
	"entitled/internal/cache"
	"entitled/internal/entitlement"
	"entitled/internal/grants"
	"entitled/internal/metrics"
	"entitled/internal/pub"
	"entitled/internal/types"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const usage = `usage: entitled [command]

commands:
  serve               run the HTTP service (default)
  promo put <file>    create or update promo codes from a YAML file
  promo get <code>    print a promo code
  promo list          list promo codes
  seed <file>         write user grants from a YAML file
`

func main() {
	loadEnv()
	configureLogging()

	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	args := flag.Args()

	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}
	var err error
	switch cmd {
	case "serve":
		err = serve()
	case "promo":
		err = promo(args)
	case "seed":
		err = seed(args)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.WithError(err).Fatalf("%s failed", cmd)
	}
}

func loadEnv() {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Info("The .env file not found.")
	}
}

func configureLogging() {
	if os.Getenv("LOG_FORMAT") == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		level, err := log.ParseLevel(lvl)
		if err != nil {
			log.WithError(err).Warn("invalid LOG_LEVEL, keeping info")
			return
		}
		log.SetLevel(level)
	}
}

func serve() error {
	cfg, err := types.ServiceConfigFromEnv()
	if err != nil {
		return err
	}
	if err := cfg.ValidateHTTP(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	grantStore, err := backends.GrantBackendFromEnv()
	if err != nil {
		return fmt.Errorf("grant store: %w", err)
	}
	promoStore, err := backends.PromoBackendFromEnv()
	if err != nil {
		return fmt.Errorf("promo store: %w", err)
	}
	publisher, err := pub.PublisherFromEnv(ctx, cfg.GrantEventsTopicArn)
	if err != nil {
		return fmt.Errorf("publisher: %w", err)
	}

	c := cache.New[string, types.EntitlementSnapshot](cache.Config{
		Observer: metrics.NewCacheObserver("entitlement"),
	})
	sweeper := cache.NewSweeper("entitlement", c, cfg.SweepInterval)
	sweeper.Start()
	defer sweeper.Stop()

	resolver := entitlement.NewResolver(c, entitlement.Options{
		TTL:    cfg.EntitlementTTL,
		Loader: grantStore,
	})
	svc := grants.NewService(grants.Options{
		Grants:        grantStore,
		Promos:        promoStore,
		Cache:         resolver,
		Publisher:     publisher,
		TopicArn:      cfg.GrantEventsTopicArn,
		TrialDuration: cfg.TrialDuration,
		Checkout:      cfg.Checkout,
	})
	h := api.NewHandler(resolver, svc, cfg.AdminKey, cfg.WebhookKey)
	if cfg.WebhookKey == "" {
		log.Warn("WEBHOOK_KEY not set, checkout webhook disabled")
	}

	log.WithFields(log.Fields{
		"ttl":   cfg.EntitlementTTL,
		"sweep": cfg.SweepInterval,
		"trial": cfg.TrialDuration,
	}).Info("entitlement cache configured")

	stopCh, done := api.RunServerInterruptible(cfg.Port, h)
	select {
	case <-ctx.Done():
		log.Info("shutting down")
		close(stopCh)
		return <-done
	case err := <-done:
		return err
	}
}

func promo(args []string) error {
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	store, err := backends.PromoBackendFromEnv()
	if err != nil {
		return err
	}
	ctx := context.Background()
	switch {
	case args[0] == "put" && len(args) == 2:
		n, err := cmds.PutPromos(ctx, store, args[1])
		if err != nil {
			return err
		}
		log.Infof("%d promo codes stored", n)
		return nil
	case args[0] == "get" && len(args) == 2:
		return cmds.GetPromo(ctx, store, args[1], os.Stdout)
	case args[0] == "list":
		return cmds.ListPromos(ctx, store, os.Stdout)
	}
	flag.Usage()
	os.Exit(2)
	return nil
}

func seed(args []string) error {
	if len(args) != 1 {
		flag.Usage()
		os.Exit(2)
	}
	store, err := backends.GrantBackendFromEnv()
	if err != nil {
		return err
	}
	n, err := cmds.SeedGrants(context.Background(), store, args[0])
	if err != nil {
		return err
	}
	log.Infof("grants seeded for %d users", n)
	return nil
}
