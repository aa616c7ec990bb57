package apihttp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	sol "github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/bloodchain/internal/bloodchain"
	"github.com/example/bloodchain/internal/cache"
	"github.com/example/bloodchain/internal/donation"
	"github.com/example/bloodchain/internal/handlers"
	apihttp "github.com/example/bloodchain/internal/http"
	"github.com/example/bloodchain/internal/metrics"
	"github.com/example/bloodchain/internal/program"
	"github.com/example/bloodchain/internal/rate"
	chain "github.com/example/bloodchain/internal/solana"
	"github.com/example/bloodchain/internal/types"
)

// ledger is an in-memory stand-in for the validator: it executes Bloodchain
// instructions against a map of account data.
type ledger struct {
	mu     sync.Mutex
	payer  sol.PublicKey
	data   map[sol.PublicKey][]byte
	reads  int
	delay  time.Duration
	nextID byte
}

func newLedger() *ledger {
	return &ledger{payer: sol.NewWallet().PublicKey(), data: map[sol.PublicKey][]byte{}}
}

func (l *ledger) SendAndConfirm(_ context.Context, ixs []sol.Instruction, _ ...sol.PrivateKey) (sol.Signature, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ix := range ixs {
		data, err := ix.Data()
		if err != nil {
			return sol.Signature{}, err
		}
		kind, payload, err := program.Decode(data)
		if err != nil {
			return sol.Signature{}, err
		}
		acct := ix.Accounts()[0].PublicKey
		switch kind {
		case program.KindInitialize:
			// the program allocates one zeroed record slot
			l.data[acct] = make([]byte, program.InitialSpace)
		case program.KindAddDonation:
			if _, ok := l.data[acct]; !ok {
				return sol.Signature{}, errors.Wrap(chain.ErrTransactionFailed, "account not initialized")
			}
			l.data[acct] = append(l.data[acct], payload...)
		}
	}
	l.nextID++
	return sol.Signature{l.nextID}, nil
}

func (l *ledger) AccountData(_ context.Context, account, _ sol.PublicKey) ([]byte, error) {
	if l.delay > 0 {
		time.Sleep(l.delay)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reads++
	d, ok := l.data[account]
	if !ok {
		return nil, errors.Wrapf(chain.ErrAccountNotFound, "%s", account)
	}
	return append([]byte(nil), d...), nil
}

func (l *ledger) Payer() sol.PublicKey { return l.payer }

func (l *ledger) readCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reads
}

type harness struct {
	ts     *httptest.Server
	ledger *ledger
}

func newHarness(t *testing.T, rpm int) *harness {
	t.Helper()
	l := newLedger()
	svc := bloodchain.New(bloodchain.Deps{
		Chain:          l,
		Cache:          cache.New(10 * time.Second),
		Metrics:        metrics.New(),
		MaxConcurrency: 4,
	})
	lm := rate.NewLimiterMap(rpm, rpm, time.Minute)
	t.Cleanup(lm.Stop)
	ts := httptest.NewServer(apihttp.NewRouter(apihttp.Deps{
		Accounts: handlers.NewAccountHandler(handlers.AccountDeps{Service: svc}),
		Limiter:  lm,
		Store:    fakeStorePing{},
	}))
	t.Cleanup(ts.Close)
	return &harness{ts: ts, ledger: l}
}

func (h *harness) do(t *testing.T, method, path string, body interface{}, key string) (*http.Response, []byte) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, _ := http.NewRequest(method, h.ts.URL+path, rd)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := h.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func TestAuthMissingKey401(t *testing.T) {
	h := newHarness(t, 1000)
	resp, _ := h.do(t, http.MethodPost, "/api/accounts", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthInvalidKey403(t *testing.T) {
	h := newHarness(t, 1000)
	resp, _ := h.do(t, http.MethodPost, "/api/accounts", nil, "bad-key")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRateLimit429(t *testing.T) {
	h := newHarness(t, 10)
	got429 := 0
	for i := 0; i < 11; i++ {
		resp, _ := h.do(t, http.MethodGet, "/healthz", nil, "good")
		if resp.StatusCode == http.StatusTooManyRequests {
			got429++
			assert.Equal(t, "60", resp.Header.Get("Retry-After"))
		}
	}
	assert.Equal(t, 1, got429)
}

func TestRateLimitIgnoresUncheckedKeys(t *testing.T) {
	h := newHarness(t, 10)
	got429 := 0
	for i := 0; i < 11; i++ {
		resp, _ := h.do(t, http.MethodGet, "/healthz", nil, fmt.Sprintf("made-up-%d", i))
		if resp.StatusCode == http.StatusTooManyRequests {
			got429++
		}
	}
	assert.Equal(t, 1, got429)
}

func TestInitializeDonateAndReadBack(t *testing.T) {
	h := newHarness(t, 1000)

	resp, body := h.do(t, http.MethodPost, "/api/accounts", nil, "good")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var created types.TransactionResponse
	require.NoError(t, json.Unmarshal(body, &created))
	require.NotEmpty(t, created.Signature)
	acct := created.Account
	assert.Len(t, h.ledger.data[sol.MustPublicKeyFromBase58(acct)], program.InitialSpace)

	resp, body = h.do(t, http.MethodGet, "/api/accounts/"+acct+"/donations", nil, "good")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var hist types.HistoryEntry
	require.NoError(t, json.Unmarshal(body, &hist))
	assert.Empty(t, hist.Donations)

	for _, d := range []types.AddDonationRequest{
		{DonorName: "Alice", BloodType: "A+", Date: "2024-01-10"},
		{DonorName: "Bob", BloodType: "o-", Date: "2024-02-11"},
	} {
		resp, body = h.do(t, http.MethodPost, "/api/accounts/"+acct+"/donations", d, "good")
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	}

	resp, body = h.do(t, http.MethodGet, "/api/accounts/"+acct+"/donations", nil, "good")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &hist))
	require.Len(t, hist.Donations, 2)
	assert.Equal(t, "rpc", hist.Source)
	assert.Equal(t, "O-", hist.Donations[1].BloodType)
	assert.Equal(t, "2024-02-11T00:00:00Z", hist.Donations[1].Date)

	resp, _ = h.do(t, http.MethodGet, "/api/accounts/"+acct+"/donations", nil, "good")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDonateToUninitializedAccount(t *testing.T) {
	h := newHarness(t, 1000)
	acct := sol.NewWallet().PublicKey().String()
	resp, _ := h.do(t, http.MethodPost, "/api/accounts/"+acct+"/donations",
		types.AddDonationRequest{DonorName: "Alice", BloodType: "A+", Date: "2024-01-10"}, "good")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	resp, _ = h.do(t, http.MethodGet, "/api/accounts/"+acct+"/donations", nil, "good")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTransactionsWithoutJournal(t *testing.T) {
	h := newHarness(t, 1000)
	acct := sol.NewWallet().PublicKey().String()
	resp, _ := h.do(t, http.MethodGet, "/api/accounts/"+acct+"/transactions", nil, "good")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCoalescingConcurrentHistoryReads(t *testing.T) {
	h := newHarness(t, 1000)
	acct := sol.NewWallet().PublicKey()
	rec, err := donation.Pack(donation.Donation{DonorName: "Alice", BloodType: "B+", Date: time.Unix(1_700_000_000, 0)})
	require.NoError(t, err)
	h.ledger.data[acct] = rec
	h.ledger.delay = 50 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, body := h.do(t, http.MethodPost, "/api/history", types.HistoriesRequest{Accounts: []string{acct.String()}}, "good")
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			var out types.HistoriesResponse
			assert.NoError(t, json.Unmarshal(body, &out))
			if assert.Len(t, out.Histories, 1) {
				assert.Contains(t, []string{"rpc", "cache"}, out.Histories[0].Source)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, h.ledger.readCount())
}
