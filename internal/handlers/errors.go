package handlers

import (
	"context"
	"net/http"

	sol "github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/example/bloodchain/internal/bloodchain"
	"github.com/example/bloodchain/internal/donation"
	"github.com/example/bloodchain/internal/journal"
	chain "github.com/example/bloodchain/internal/solana"
)

// DonationService is the slice of *bloodchain.Service the handlers use.
type DonationService interface {
	Initialize(ctx context.Context) (bloodchain.Result, error)
	AddDonation(ctx context.Context, account sol.PublicKey, d donation.Donation) (bloodchain.Result, error)
	RetrieveHistory(ctx context.Context, account sol.PublicKey) (bloodchain.Result, error)
	History(ctx context.Context, account sol.PublicKey) (bloodchain.History, error)
	Histories(ctx context.Context, accounts []sol.PublicKey) ([]bloodchain.History, []bloodchain.AccountError)
	Transactions(ctx context.Context, account sol.PublicKey, limit int64) ([]journal.Entry, error)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	cause := errors.Cause(err)
	switch {
	case cause == donation.ErrEmptyName,
		cause == donation.ErrNameTooLong,
		cause == donation.ErrInvalidBloodType,
		cause == donation.ErrMissingDate:
		return http.StatusBadRequest
	case errors.Is(err, chain.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, chain.ErrWrongOwner), errors.Is(err, donation.ErrMalformedHistory):
		return http.StatusUnprocessableEntity
	case errors.Is(err, bloodchain.ErrJournalDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, chain.ErrConfirmTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func parsePubkey(s string) (sol.PublicKey, bool) {
	pk, err := sol.PublicKeyFromBase58(s)
	if err != nil {
		return sol.PublicKey{}, false
	}
	return pk, true
}

func accountParam(r *http.Request) (sol.PublicKey, bool) {
	return parsePubkey(chi.URLParam(r, "account"))
}
