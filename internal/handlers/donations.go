package handlers

import (
	"context"
	"net/http"

	sol "github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"github.com/example/bloodchain/internal/donation"
	"github.com/example/bloodchain/internal/logging"
	"github.com/example/bloodchain/internal/program"
	"github.com/example/bloodchain/internal/types"
	"github.com/example/bloodchain/pkg/jsonutil"
)

// AddDonation handles POST /api/accounts/{account}/donations.
func (h *AccountHandler) AddDonation(w http.ResponseWriter, r *http.Request) {
	account, ok := accountParam(r)
	if !ok {
		jsonutil.Error(w, http.StatusBadRequest, "invalid account")
		return
	}
	var req types.AddDonationRequest
	if err := jsonutil.Decode(r, &req); err != nil {
		jsonutil.Error(w, http.StatusBadRequest, "bad request")
		return
	}
	date, err := types.ParseDate(req.Date)
	if err != nil {
		jsonutil.Error(w, http.StatusBadRequest, "invalid date")
		return
	}
	d := donation.Donation{DonorName: req.DonorName, BloodType: req.BloodType, Date: date}

	ctx, cancel := context.WithTimeout(r.Context(), h.Deps.TxTimeout)
	defer cancel()
	res, err := h.Deps.Service.AddDonation(ctx, account, d)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonutil.JSON(w, http.StatusCreated, txResponse(program.KindAddDonation, res))
}

// History handles GET /api/accounts/{account}/donations.
func (h *AccountHandler) History(w http.ResponseWriter, r *http.Request) {
	account, ok := accountParam(r)
	if !ok {
		jsonutil.Error(w, http.StatusBadRequest, "invalid account")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Deps.ReadTimeout)
	defer cancel()
	hist, err := h.Deps.Service.History(ctx, account)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonutil.JSON(w, http.StatusOK, types.NewHistoryEntry(account.String(), hist.Donations, hist.Source, hist.FetchedAt))
}

func dedupe(in []string) []string {
	m := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, a := range in {
		if _, ok := m[a]; ok {
			continue
		}
		m[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

// Histories handles POST /api/history: the histories of up to MaxAccounts
// accounts, with per-account errors reported alongside.
func (h *AccountHandler) Histories(w http.ResponseWriter, r *http.Request) {
	var req types.HistoriesRequest
	if err := jsonutil.Decode(r, &req); err != nil {
		jsonutil.Error(w, http.StatusBadRequest, "bad request")
		return
	}
	if len(req.Accounts) == 0 {
		jsonutil.Error(w, http.StatusBadRequest, "accounts required")
		return
	}
	if len(req.Accounts) > h.Deps.MaxAccounts {
		jsonutil.Error(w, http.StatusBadRequest, "too many accounts")
		return
	}

	accounts := dedupe(req.Accounts)
	resp := types.HistoriesResponse{Histories: make([]types.HistoryEntry, 0, len(accounts))}
	valid := make([]sol.PublicKey, 0, len(accounts))
	for _, a := range accounts {
		pk, ok := parsePubkey(a)
		if !ok {
			resp.Errors = append(resp.Errors, types.ErrorEntry{Account: a, Error: "invalid public key"})
			continue
		}
		valid = append(valid, pk)
	}

	hists, errs := h.Deps.Service.Histories(r.Context(), valid)
	for _, hist := range hists {
		resp.Histories = append(resp.Histories, types.NewHistoryEntry(hist.Account.String(), hist.Donations, hist.Source, hist.FetchedAt))
	}
	for _, e := range errs {
		resp.Errors = append(resp.Errors, types.ErrorEntry{Account: e.Account, Error: e.Err.Error()})
	}
	logging.FromContext(r.Context(), h.Deps.Logger).WithFields(logrus.Fields{
		"requested": len(req.Accounts),
		"found":     len(resp.Histories),
		"errors":    len(resp.Errors),
	}).Info("history batch")
	jsonutil.JSON(w, http.StatusOK, resp)
}
