package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/bloodchain/internal/bloodchain"
	"github.com/example/bloodchain/internal/logging"
	"github.com/example/bloodchain/internal/program"
	"github.com/example/bloodchain/internal/types"
	"github.com/example/bloodchain/pkg/jsonutil"
)

// AccountDeps bundles dependencies needed by the account and donation handlers.
type AccountDeps struct {
	Service DonationService
	Logger  logrus.FieldLogger
	// TxTimeout bounds send + confirm; ReadTimeout bounds a single history read.
	TxTimeout   time.Duration
	ReadTimeout time.Duration
	MaxAccounts int
}

type AccountHandler struct{ Deps AccountDeps }

func NewAccountHandler(deps AccountDeps) *AccountHandler {
	if deps.TxTimeout <= 0 {
		deps.TxTimeout = 45 * time.Second
	}
	if deps.ReadTimeout <= 0 {
		deps.ReadTimeout = 5 * time.Second
	}
	if deps.MaxAccounts <= 0 {
		deps.MaxAccounts = 100
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	return &AccountHandler{Deps: deps}
}

func txResponse(kind program.Kind, res bloodchain.Result) types.TransactionResponse {
	return types.TransactionResponse{
		Signature:   res.Signature.String(),
		Account:     res.Account.String(),
		Instruction: string(kind),
		ConfirmedAt: types.NowRFC3339(),
	}
}

func (h *AccountHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	log := logging.FromContext(r.Context(), h.Deps.Logger).WithError(err)
	if code >= http.StatusInternalServerError {
		log.Error("request failed")
	} else {
		log.Debug("request rejected")
	}
	jsonutil.Error(w, code, err.Error())
}

// Create handles POST /api/accounts: initializes a new donation account.
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Deps.TxTimeout)
	defer cancel()
	res, err := h.Deps.Service.Initialize(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonutil.JSON(w, http.StatusCreated, txResponse(program.KindInitialize, res))
}

// Retrieve handles POST /api/accounts/{account}/retrieve: runs the program's
// read instruction so the history lands in the transaction log.
func (h *AccountHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	account, ok := accountParam(r)
	if !ok {
		jsonutil.Error(w, http.StatusBadRequest, "invalid account")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Deps.TxTimeout)
	defer cancel()
	res, err := h.Deps.Service.RetrieveHistory(ctx, account)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonutil.JSON(w, http.StatusOK, txResponse(program.KindRetrieve, res))
}

// Transactions handles GET /api/accounts/{account}/transactions?limit=N.
func (h *AccountHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	account, ok := accountParam(r)
	if !ok {
		jsonutil.Error(w, http.StatusBadRequest, "invalid account")
		return
	}
	var limit int64 = 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 || n > 500 {
			jsonutil.Error(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Deps.ReadTimeout)
	defer cancel()
	entries, err := h.Deps.Service.Transactions(ctx, account, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonutil.JSON(w, http.StatusOK, map[string]interface{}{"transactions": entries})
}
