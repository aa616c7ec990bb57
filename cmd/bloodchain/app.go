package main

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/example/bloodchain/internal/bloodchain"
	"github.com/example/bloodchain/internal/cache"
	"github.com/example/bloodchain/internal/config"
	"github.com/example/bloodchain/internal/journal"
	"github.com/example/bloodchain/internal/logging"
	"github.com/example/bloodchain/internal/metrics"
	"github.com/example/bloodchain/internal/solana"
)

// app is the wiring shared by every subcommand: config, logger, client
// provider and service.
type app struct {
	cfg     config.Config
	logger  *logrus.Logger
	metrics *metrics.Metrics
	client  *solana.Client
	service *bloodchain.Service
}

// loadConfig resolves configuration from environment and cmd's flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	v := config.New()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return config.Config{}, err
	}
	cfg := config.FromViper(v)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// setup loads configuration from cmd and builds the app without a journal.
func setup(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return newApp(cmd, cfg, nil)
}

// newApp builds the client provider from cfg. j may be nil.
func newApp(cmd *cobra.Command, cfg config.Config, j journal.Journal) (*app, error) {
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.SetOutput(cmd.ErrOrStderr())

	wallet, err := solana.LoadWallet(cfg.WalletPath)
	if err != nil {
		return nil, err
	}
	m := metrics.New()
	client := solana.NewClient(cfg.ClusterURL, wallet, solana.Options{
		Commitment:     cfg.Commitment,
		ConfirmTimeout: cfg.ConfirmTimeout,
		PollInterval:   cfg.ConfirmPoll,
		Metrics:        m,
		Logger:         logger,
	})
	svc := bloodchain.New(bloodchain.Deps{
		Chain:          client,
		ProgramID:      cfg.Program(),
		Cache:          cache.New(cfg.CacheTTL),
		Journal:        j,
		Metrics:        m,
		Logger:         logger,
		Timeout:        cfg.RPCTimeout,
		MaxConcurrency: cfg.MaxConcurrency,
	})
	logger.WithFields(logrus.Fields{
		"cluster":    cfg.ClusterURL,
		"program_id": cfg.ProgramID,
		"payer":      client.Payer().String(),
		"commitment": client.Commitment(),
	}).Debug("provider configured")

	return &app{cfg: cfg, logger: logger, metrics: m, client: client, service: svc}, nil
}
