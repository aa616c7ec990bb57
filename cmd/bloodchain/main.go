package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bloodchain",
	Short: "Client for the Bloodchain donation program",
	Long: "bloodchain talks to the Bloodchain on-chain program: it creates donation accounts, " +
		"records blood donations and reads donation histories back, either from the command line " +
		"or through an HTTP API.",
	// SilenceErrors allows us to explicitly log the error returned from rootCmd below.
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("cluster", "", "Solana JSON-RPC endpoint (env ANCHOR_PROVIDER_URL, default localnet)")
	pf.String("wallet", "", "payer keypair file (env ANCHOR_WALLET, default ~/.config/solana/id.json)")
	pf.String("program-id", "", "Bloodchain program address (env BLOODCHAIN_PROGRAM_ID)")
	pf.String("commitment", "", "processed, confirmed or finalized (env SOL_COMMITMENT)")
	pf.Duration("confirm-timeout", 0, "how long to wait for confirmation (env CONFIRM_TIMEOUT)")
	pf.Duration("confirm-poll", 0, "signature status poll interval (env CONFIRM_POLL)")
	pf.String("log-level", "", "debug, info, warn or error (env LOG_LEVEL)")
	pf.String("log-format", "", "text or json (env LOG_FORMAT)")

	rootCmd.AddCommand(initializeCmd)
	rootCmd.AddCommand(donateCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(airdropCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger := logrus.New()
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		logger.WithError(err).Error("command failed")
		os.Exit(1)
	}
}
