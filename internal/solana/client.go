package solana

import (
	"context"
	"time"

	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/example/bloodchain/internal/metrics"
)

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrWrongOwner        = errors.New("account is not owned by the program")
	ErrTransactionFailed = errors.New("transaction failed")
	ErrConfirmTimeout    = errors.New("transaction not confirmed in time")
)

// RPC is the subset of *rpc.Client the provider uses.
type RPC interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *sol.Transaction, opts rpc.TransactionOpts) (sol.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...sol.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetAccountInfoWithOpts(ctx context.Context, account sol.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
	GetBalance(ctx context.Context, account sol.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	RequestAirdrop(ctx context.Context, account sol.PublicKey, lamports uint64, commitment rpc.CommitmentType) (sol.Signature, error)
	GetHealth(ctx context.Context) (string, error)
}

// BalanceFetcher abstracts fetching balances for a wallet.
type BalanceFetcher interface {
	GetBalance(ctx context.Context, pubkey sol.PublicKey) (lamports uint64, latency time.Duration, err error)
}

var _ BalanceFetcher = (*Client)(nil)

// Options tunes a Client. Zero values get defaults.
type Options struct {
	Commitment     string
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	Metrics        *metrics.Metrics
	Logger         logrus.FieldLogger
}

// Client is the client provider: an RPC connection plus the wallet that pays
// for and signs every transaction.
type Client struct {
	c              RPC
	wallet         sol.PrivateKey
	commitment     rpc.CommitmentType
	confirmTimeout time.Duration
	pollInterval   time.Duration
	metrics        *metrics.Metrics
	log            logrus.FieldLogger
}

func NewClient(rpcURL string, wallet sol.PrivateKey, opts Options) *Client {
	return NewClientWithRPC(rpc.New(rpcURL), wallet, opts)
}

func NewClientWithRPC(c RPC, wallet sol.PrivateKey, opts Options) *Client {
	cm := rpc.CommitmentType(opts.Commitment)
	if cm == "" {
		cm = rpc.CommitmentConfirmed
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 30 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		opts.Logger = l
	}
	return &Client{
		c:              c,
		wallet:         wallet,
		commitment:     cm,
		confirmTimeout: opts.ConfirmTimeout,
		pollInterval:   opts.PollInterval,
		metrics:        opts.Metrics,
		log:            opts.Logger,
	}
}

// LoadWallet reads a solana-keygen JSON keypair file.
func LoadWallet(path string) (sol.PrivateKey, error) {
	pk, err := sol.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "load wallet %s", path)
	}
	return pk, nil
}

// Payer is the wallet's public key.
func (cl *Client) Payer() sol.PublicKey { return cl.wallet.PublicKey() }

// Commitment is the level transactions are confirmed to.
func (cl *Client) Commitment() rpc.CommitmentType { return cl.commitment }

func (cl *Client) observe(method string, start time.Time, err error) time.Duration {
	lat := time.Since(start)
	cl.metrics.ObserveRPC(method, lat, err)
	return lat
}

func (cl *Client) GetBalance(ctx context.Context, pubkey sol.PublicKey) (uint64, time.Duration, error) {
	start := time.Now()
	res, err := cl.c.GetBalance(ctx, pubkey, cl.commitment)
	lat := cl.observe("getBalance", start, err)
	if err != nil {
		return 0, lat, errors.Wrapf(err, "get balance %s", pubkey)
	}
	return res.Value, lat, nil
}

// Health reports whether the cluster node answers getHealth with "ok".
func (cl *Client) Health(ctx context.Context) error {
	start := time.Now()
	status, err := cl.c.GetHealth(ctx)
	cl.observe("getHealth", start, err)
	if err != nil {
		return errors.Wrap(err, "get health")
	}
	if status != rpc.HealthOk {
		return errors.Errorf("node unhealthy: %s", status)
	}
	return nil
}

// RequestAirdrop asks the cluster faucet for lamports and waits for the
// airdrop transaction to confirm. Only localnet and devnet have a faucet.
func (cl *Client) RequestAirdrop(ctx context.Context, to sol.PublicKey, lamports uint64) (sol.Signature, error) {
	start := time.Now()
	sig, err := cl.c.RequestAirdrop(ctx, to, lamports, cl.commitment)
	cl.observe("requestAirdrop", start, err)
	if err != nil {
		return sol.Signature{}, errors.Wrapf(err, "airdrop to %s", to)
	}
	if err := cl.confirm(ctx, sig); err != nil {
		return sig, err
	}
	return sig, nil
}

// AccountData returns the raw data of account, checking that owner owns it.
func (cl *Client) AccountData(ctx context.Context, account, owner sol.PublicKey) ([]byte, error) {
	start := time.Now()
	res, err := cl.c.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{
		Encoding:   sol.EncodingBase64,
		Commitment: cl.commitment,
	})
	cl.observe("getAccountInfo", start, err)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, errors.Wrapf(ErrAccountNotFound, "%s", account)
		}
		return nil, errors.Wrapf(err, "get account %s", account)
	}
	if res == nil || res.Value == nil {
		return nil, errors.Wrapf(ErrAccountNotFound, "%s", account)
	}
	if !res.Value.Owner.Equals(owner) {
		return nil, errors.Wrapf(ErrWrongOwner, "%s is owned by %s", account, res.Value.Owner)
	}
	if res.Value.Data == nil {
		return nil, nil
	}
	return res.Value.Data.GetBinary(), nil
}
