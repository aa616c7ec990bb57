package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultProgramID is the address the Bloodchain program is deployed at on localnet.
const DefaultProgramID = "Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS"

// Config holds environment-driven configuration.
type Config struct {
	ClusterURL     string
	WalletPath     string
	ProgramID      string
	Commitment     string
	ConfirmTimeout time.Duration
	ConfirmPoll    time.Duration

	Port           string
	MongoURI       string
	MongoDB        string
	RateLimitRPM   int
	CacheTTL       time.Duration
	KeyCacheTTL    time.Duration
	RPCTimeout     time.Duration
	MaxConcurrency int
	AdminToken     string

	LogLevel  string
	LogFormat string
}

// keys maps viper keys to the environment variables Anchor tooling and the
// server read.
var keys = map[string]string{
	"cluster":         "ANCHOR_PROVIDER_URL",
	"wallet":          "ANCHOR_WALLET",
	"program-id":      "BLOODCHAIN_PROGRAM_ID",
	"commitment":      "SOL_COMMITMENT",
	"confirm-timeout": "CONFIRM_TIMEOUT",
	"confirm-poll":    "CONFIRM_POLL",
	"port":            "PORT",
	"mongo-uri":       "MONGO_URI",
	"mongo-db":        "MONGO_DB",
	"rate-limit-rpm":  "RATE_LIMIT_RPM",
	"cache-ttl":       "CACHE_TTL",
	"key-cache-ttl":   "KEY_CACHE_TTL",
	"rpc-timeout":     "RPC_TIMEOUT",
	"max-concurrency": "MAX_CONCURRENCY",
	"admin-token":     "ADMIN_TOKEN",
	"log-level":       "LOG_LEVEL",
	"log-format":      "LOG_FORMAT",
}

func defaultWallet() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "solana", "id.json")
	}
	return filepath.Join(home, ".config", "solana", "id.json")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cluster", rpc.LocalNet_RPC)
	v.SetDefault("wallet", defaultWallet())
	v.SetDefault("program-id", DefaultProgramID)
	v.SetDefault("commitment", string(rpc.CommitmentConfirmed))
	v.SetDefault("confirm-timeout", 30*time.Second)
	v.SetDefault("confirm-poll", 500*time.Millisecond)
	v.SetDefault("port", "8080")
	v.SetDefault("mongo-uri", "mongodb://localhost:27017")
	v.SetDefault("mongo-db", "bloodchain")
	v.SetDefault("rate-limit-rpm", 60)
	v.SetDefault("cache-ttl", 10*time.Second)
	v.SetDefault("key-cache-ttl", 60*time.Second)
	v.SetDefault("rpc-timeout", 5*time.Second)
	v.SetDefault("max-concurrency", 16)
	v.SetDefault("admin-token", "")
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "text")
}

// New returns a viper instance with defaults and environment bindings set.
// Flags may be bound on top with BindFlags.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	for key, env := range keys {
		_ = v.BindEnv(key, env)
	}
	return v
}

// BindFlags binds every flag in fs whose name matches a config key.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		if _, ok := keys[f.Name]; ok {
			err = v.BindPFlag(f.Name, f)
		}
	})
	return errors.Wrap(err, "bind flags")
}

// getint and getdur keep the default when the raw value does not parse,
// which viper's Get* helpers would otherwise turn into a zero value.
func getint(v *viper.Viper, key string, def int) int {
	n := v.GetInt(key)
	if n <= 0 {
		return def
	}
	return n
}

func getdur(v *viper.Viper, key string, def time.Duration) time.Duration {
	d := v.GetDuration(key)
	if d <= 0 {
		return def
	}
	return d
}

// getstr keeps the default for an explicitly empty value, e.g. --port "".
func getstr(v *viper.Viper, key, def string) string {
	if s := strings.TrimSpace(v.GetString(key)); s != "" {
		return s
	}
	return def
}

// FromViper materializes a Config from v.
func FromViper(v *viper.Viper) Config {
	return Config{
		ClusterURL:     v.GetString("cluster"),
		WalletPath:     v.GetString("wallet"),
		ProgramID:      v.GetString("program-id"),
		Commitment:     strings.ToLower(getstr(v, "commitment", string(rpc.CommitmentConfirmed))),
		ConfirmTimeout: getdur(v, "confirm-timeout", 30*time.Second),
		ConfirmPoll:    getdur(v, "confirm-poll", 500*time.Millisecond),
		Port:           getstr(v, "port", "8080"),
		MongoURI:       v.GetString("mongo-uri"),
		MongoDB:        v.GetString("mongo-db"),
		RateLimitRPM:   getint(v, "rate-limit-rpm", 60),
		CacheTTL:       getdur(v, "cache-ttl", 10*time.Second),
		KeyCacheTTL:    getdur(v, "key-cache-ttl", 60*time.Second),
		RPCTimeout:     getdur(v, "rpc-timeout", 5*time.Second),
		MaxConcurrency: getint(v, "max-concurrency", 16),
		AdminToken:     v.GetString("admin-token"),
		LogLevel:       getstr(v, "log-level", "info"),
		LogFormat:      getstr(v, "log-format", "text"),
	}
}

// Load loads configuration from environment variables with sane defaults.
func Load() Config {
	return FromViper(New())
}

// Validate checks the fields the chain client cannot work without.
func (c Config) Validate() error {
	if c.ClusterURL == "" {
		return errors.New("cluster url is empty")
	}
	if _, err := sol.PublicKeyFromBase58(c.ProgramID); err != nil {
		return errors.Wrapf(err, "invalid program id %q", c.ProgramID)
	}
	switch rpc.CommitmentType(c.Commitment) {
	case rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
	default:
		return errors.Errorf("unsupported commitment %q", c.Commitment)
	}
	return nil
}

// Program returns the parsed program ID. Call Validate first.
func (c Config) Program() sol.PublicKey {
	return sol.MustPublicKeyFromBase58(c.ProgramID)
}
