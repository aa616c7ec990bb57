package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/bloodchain/internal/auth"
	"github.com/example/bloodchain/internal/handlers"
	apihttp "github.com/example/bloodchain/internal/http"
	"github.com/example/bloodchain/internal/journal"
	"github.com/example/bloodchain/internal/rate"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the Bloodchain HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("port", "", "listen port (env PORT)")
	f.String("mongo-uri", "", "MongoDB connection string (env MONGO_URI)")
	f.String("mongo-db", "", "MongoDB database (env MONGO_DB)")
	f.Int("rate-limit-rpm", 0, "requests per minute per client (env RATE_LIMIT_RPM)")
	f.Duration("cache-ttl", 0, "history cache TTL (env CACHE_TTL)")
	f.Duration("key-cache-ttl", 0, "API key validation cache TTL (env KEY_CACHE_TTL)")
	f.Duration("rpc-timeout", 0, "per-account read timeout (env RPC_TIMEOUT)")
	f.Int("max-concurrency", 0, "parallel reads in a batch history request (env MAX_CONCURRENCY)")
	f.String("admin-token", "", "token for /admin/keys; empty disables it (env ADMIN_TOKEN)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return errors.Wrap(err, "mongo connect")
	}
	defer func() {
		_ = mongoClient.Disconnect(context.Background())
	}()

	store, err := auth.NewMongoAPIKeyStore(ctx, mongoClient, cfg.MongoDB, cfg.KeyCacheTTL)
	if err != nil {
		return errors.Wrap(err, "api key store init")
	}
	j, err := journal.NewMongoJournal(ctx, mongoClient, cfg.MongoDB)
	if err != nil {
		return errors.Wrap(err, "journal init")
	}

	a, err := newApp(cmd, cfg, j)
	if err != nil {
		return err
	}
	log := a.logger

	lm := rate.NewLimiterMap(cfg.RateLimitRPM, cfg.RateLimitRPM, 5*time.Minute)
	defer lm.Stop()

	accounts := handlers.NewAccountHandler(handlers.AccountDeps{
		Service:     a.service,
		Logger:      log,
		TxTimeout:   cfg.ConfirmTimeout + 15*time.Second,
		ReadTimeout: cfg.RPCTimeout,
	})
	router := apihttp.NewRouter(apihttp.Deps{
		Accounts: accounts,
		Limiter:  lm,
		Store:    store,
		Chain:    a.client,
		Metrics:  a.metrics.Handler(),
		Logger:   log,
	})

	// Key management lives outside the rate-limited, authenticated router.
	mux := http.NewServeMux()
	if cfg.AdminToken != "" {
		mux.Handle("/admin/keys", apihttp.CORS(handlers.NewAdminHandler(store, cfg.AdminToken, log)))
	} else {
		log.Warn("ADMIN_TOKEN is empty; /admin/keys is disabled")
	}
	mux.Handle("/public/signup", apihttp.CORS(handlers.NewSignupHandler(store)))
	mux.Handle("/", router)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.ConfirmTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Port).Info("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
	case err := <-errCh:
		return errors.Wrap(err, "server")
	}
	shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shCancel()
	return errors.Wrap(srv.Shutdown(shCtx), "shutdown")
}
