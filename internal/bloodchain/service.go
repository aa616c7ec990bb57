// Package bloodchain is the client-side service for the Bloodchain program:
// it creates donation accounts, appends donations and reads histories back.
package bloodchain

import (
	"context"
	"sort"
	"sync"
	"time"

	sol "github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/example/bloodchain/internal/cache"
	"github.com/example/bloodchain/internal/donation"
	"github.com/example/bloodchain/internal/journal"
	"github.com/example/bloodchain/internal/metrics"
	"github.com/example/bloodchain/internal/program"
)

var ErrJournalDisabled = errors.New("transaction journal is not configured")

// Chain is what the service needs from the client provider.
type Chain interface {
	SendAndConfirm(ctx context.Context, instructions []sol.Instruction, signers ...sol.PrivateKey) (sol.Signature, error)
	AccountData(ctx context.Context, account, owner sol.PublicKey) ([]byte, error)
	Payer() sol.PublicKey
}

// Deps bundles the service dependencies. Journal and Metrics are optional.
type Deps struct {
	Chain          Chain
	ProgramID      sol.PublicKey
	Cache          *cache.Cache
	Journal        journal.Journal
	Metrics        *metrics.Metrics
	Logger         logrus.FieldLogger
	Timeout        time.Duration
	MaxConcurrency int
}

type Service struct{ deps Deps }

// Result identifies a confirmed program transaction.
type Result struct {
	Signature sol.Signature
	Account   sol.PublicKey
}

// History is the decoded donation history of one account.
type History struct {
	Account   sol.PublicKey
	Donations []donation.Donation
	Source    string
	FetchedAt time.Time
}

// AccountError is a per-account failure from Histories.
type AccountError struct {
	Account string
	Err     error
}

func New(deps Deps) *Service {
	if deps.ProgramID.IsZero() {
		deps.ProgramID = program.DefaultProgramID
	}
	if deps.Cache == nil {
		deps.Cache = cache.New(10 * time.Second)
	}
	if deps.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		deps.Logger = l
	}
	if deps.Timeout <= 0 {
		deps.Timeout = 5 * time.Second
	}
	if deps.MaxConcurrency <= 0 {
		deps.MaxConcurrency = 16
	}
	return &Service{deps: deps}
}

// ProgramID is the program the service talks to.
func (s *Service) ProgramID() sol.PublicKey { return s.deps.ProgramID }

// Initialize invokes the program's initialize instruction on a freshly
// generated donation account and returns the confirmed signature.
func (s *Service) Initialize(ctx context.Context) (Result, error) {
	account, err := sol.NewRandomPrivateKey()
	if err != nil {
		return Result{}, errors.Wrap(err, "generate donation account")
	}
	return s.InitializeAccount(ctx, account)
}

// InitializeAccount is Initialize for a caller-supplied account keypair.
func (s *Service) InitializeAccount(ctx context.Context, account sol.PrivateKey) (Result, error) {
	pub := account.PublicKey()
	ix := program.Initialize(s.deps.ProgramID, pub, s.deps.Chain.Payer())
	return s.submit(ctx, program.KindInitialize, pub, []sol.Instruction{ix}, account)
}

// AddDonation validates d and appends it to account's history on chain.
func (s *Service) AddDonation(ctx context.Context, account sol.PublicKey, d donation.Donation) (Result, error) {
	ix, err := program.AddDonation(s.deps.ProgramID, account, d)
	if err != nil {
		return Result{}, err
	}
	res, err := s.submit(ctx, program.KindAddDonation, account, []sol.Instruction{ix})
	// the write may have landed even when confirmation failed
	s.deps.Cache.Invalidate(account.String())
	return res, err
}

// RetrieveHistory invokes the program's read instruction, which prints the
// history of account into the transaction log.
func (s *Service) RetrieveHistory(ctx context.Context, account sol.PublicKey) (Result, error) {
	ix := program.RetrieveDonationHistory(s.deps.ProgramID, account)
	return s.submit(ctx, program.KindRetrieve, account, []sol.Instruction{ix})
}

func (s *Service) submit(ctx context.Context, kind program.Kind, account sol.PublicKey, ixs []sol.Instruction, signers ...sol.PrivateKey) (Result, error) {
	log := s.deps.Logger.WithFields(logrus.Fields{
		"instruction": string(kind),
		"account":     account.String(),
	})
	start := time.Now()
	sig, err := s.deps.Chain.SendAndConfirm(ctx, ixs, signers...)
	s.deps.Metrics.CountTransaction(string(kind), err)
	if err != nil {
		log.WithError(err).Warn("transaction failed")
		return Result{Signature: sig, Account: account}, errors.Wrap(err, string(kind))
	}
	log.WithFields(logrus.Fields{
		"signature":  sig.String(),
		"latency_ms": time.Since(start).Milliseconds(),
	}).Info("transaction confirmed")

	if s.deps.Journal != nil {
		err := s.deps.Journal.Record(ctx, journal.Entry{
			Signature:   sig.String(),
			Instruction: string(kind),
			Account:     account.String(),
			Payer:       s.deps.Chain.Payer().String(),
			CreatedAt:   time.Now().UTC(),
		})
		if err != nil {
			log.WithError(err).Error("journal write failed")
		}
	}
	return Result{Signature: sig, Account: account}, nil
}

// History reads and decodes account's donations, served from cache when fresh.
func (s *Service) History(ctx context.Context, account sol.PublicKey) (History, error) {
	key := account.String()
	val, source, err := s.deps.Cache.GetOrFetch(ctx, key, func(ctx context.Context) (cache.Value, error) {
		data, err := s.deps.Chain.AccountData(ctx, account, s.deps.ProgramID)
		if err != nil {
			return cache.Value{}, err
		}
		donations, err := donation.UnpackHistory(data)
		if err != nil {
			return cache.Value{}, errors.Wrapf(err, "decode %s", key)
		}
		return cache.Value{Donations: donations, FetchedAt: time.Now().UTC()}, nil
	})
	if err != nil {
		return History{}, err
	}
	s.deps.Metrics.CountLookup(source)
	s.deps.Logger.WithFields(logrus.Fields{"account": key, "source": source}).Debug("history lookup")
	return History{Account: account, Donations: val.Donations, Source: source, FetchedAt: val.FetchedAt}, nil
}

// Histories looks up several accounts concurrently, at most MaxConcurrency at
// a time. Duplicates are looked up once. Results are sorted by account.
func (s *Service) Histories(ctx context.Context, accounts []sol.PublicKey) ([]History, []AccountError) {
	seen := make(map[sol.PublicKey]struct{}, len(accounts))
	var (
		mu   sync.Mutex
		out  = make([]History, 0, len(accounts))
		errs []AccountError
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.deps.MaxConcurrency)
	for _, acct := range accounts {
		if _, dup := seen[acct]; dup {
			continue
		}
		seen[acct] = struct{}{}
		acct := acct
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(gctx, s.deps.Timeout)
			defer cancel()
			h, err := s.History(ctx, acct)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, AccountError{Account: acct.String(), Err: err})
				return nil
			}
			out = append(out, h)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(out, func(i, j int) bool { return out[i].Account.String() < out[j].Account.String() })
	sort.Slice(errs, func(i, j int) bool { return errs[i].Account < errs[j].Account })
	return out, errs
}

// Transactions lists journaled transactions for account, newest first.
func (s *Service) Transactions(ctx context.Context, account sol.PublicKey, limit int64) ([]journal.Entry, error) {
	if s.deps.Journal == nil {
		return nil, ErrJournalDisabled
	}
	return s.deps.Journal.ListByAccount(ctx, account.String(), limit)
}
