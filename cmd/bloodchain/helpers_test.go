package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	sol "github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/bloodchain/internal/config"
	"github.com/example/bloodchain/internal/donation"
)

func TestLamportConversions(t *testing.T) {
	assert.Equal(t, 1.5, lamportsToSOL(1_500_000_000))
	assert.Equal(t, 0.0, lamportsToSOL(0))
	assert.Equal(t, uint64(2_000_000_000), solToLamports(2))
	assert.Equal(t, uint64(1), solToLamports(0.000000001))
	assert.Equal(t, uint64(0), solToLamports(-1))
}

// testCmd mirrors the flags the real commands register.
func testCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("cluster", "", "")
	cmd.Flags().String("commitment", "", "")
	cmd.Flags().Duration("confirm-timeout", 0, "")
	cmd.Flags().String("account", "", "")
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd
}

func TestLoadConfig_DefaultsAndFlags(t *testing.T) {
	t.Setenv("ANCHOR_PROVIDER_URL", "")
	t.Setenv("SOL_COMMITMENT", "")

	cfg, err := loadConfig(testCmd(t))
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8899", cfg.ClusterURL)
	assert.Equal(t, "confirmed", cfg.Commitment)
	assert.Equal(t, config.DefaultProgramID, cfg.ProgramID)
	assert.Equal(t, "8080", cfg.Port)

	cfg, err = loadConfig(testCmd(t, "--cluster", "http://validator:8899", "--commitment", "finalized", "--confirm-timeout", "3s"))
	require.NoError(t, err)
	assert.Equal(t, "http://validator:8899", cfg.ClusterURL)
	assert.Equal(t, "finalized", cfg.Commitment)
	assert.Equal(t, 3*time.Second, cfg.ConfirmTimeout)
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := loadConfig(testCmd(t, "--commitment", "max"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func writeWallet(t *testing.T) (string, sol.PrivateKey) {
	t.Helper()
	pk, err := sol.NewRandomPrivateKey()
	require.NoError(t, err)
	ints := make([]int, len(pk))
	for i, b := range pk {
		ints[i] = int(b)
	}
	raw, err := json.Marshal(ints)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	return path, pk
}

func TestNewApp_UsesGivenConfig(t *testing.T) {
	path, pk := writeWallet(t)
	cfg := config.Load()
	cfg.WalletPath = path
	cfg.Commitment = "finalized"

	// no flags registered: newApp must not re-read configuration from cmd
	a, err := newApp(&cobra.Command{}, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, cfg, a.cfg)
	assert.Equal(t, "finalized", string(a.client.Commitment()))
	assert.Equal(t, pk.PublicKey(), a.client.Payer())
	assert.Equal(t, cfg.Program(), a.service.ProgramID())
}

func TestAccountFlag(t *testing.T) {
	pk := sol.NewWallet().PublicKey()
	got, err := accountFlag(testCmd(t, "--account", " "+pk.String()+" "))
	require.NoError(t, err)
	assert.Equal(t, pk, got)

	_, err = accountFlag(testCmd(t, "--account", "not-a-key"))
	assert.Error(t, err)
}

func TestPrintHistory(t *testing.T) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)

	require.NoError(t, printHistory(cmd, nil))
	assert.Equal(t, "no donations recorded\n", buf.String())

	buf.Reset()
	require.NoError(t, printHistory(cmd, []donation.Donation{
		{DonorName: "Alice", BloodType: "A+", Date: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)},
		{DonorName: "Bob", BloodType: "O-", Date: time.Date(2024, 2, 11, 8, 0, 0, 0, time.UTC)},
	}))
	out := buf.String()
	assert.Contains(t, out, "DONOR")
	assert.Contains(t, out, "Alice")
	assert.Contains(t, out, "2024-02-11")
	assert.Contains(t, out, "2 donations: A+=1 O-=1")
}

func TestRootRegistersCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"initialize", "donate", "history", "airdrop", "balance", "serve"} {
		assert.True(t, names[want], want)
	}
}
