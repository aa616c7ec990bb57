package handlers

import (
	"net/http"
	"strings"

	"github.com/example/bloodchain/internal/auth"
	"github.com/example/bloodchain/internal/types"
	"github.com/example/bloodchain/pkg/jsonutil"
)

// SignupHandler issues an API key to a clinic without admin auth. Meant for
// localnet and devnet deployments only.
type SignupHandler struct {
	Store auth.APIKeyCreator
}

func NewSignupHandler(store auth.APIKeyCreator) *SignupHandler {
	return &SignupHandler{Store: store}
}

type signupRequest struct {
	Owner string `json:"owner"`
	Email string `json:"email"`
}

func (h *SignupHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonutil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req signupRequest
	if err := jsonutil.Decode(r, &req); err != nil {
		jsonutil.Error(w, http.StatusBadRequest, "bad request")
		return
	}
	req.Owner = strings.TrimSpace(req.Owner)
	if req.Owner == "" {
		jsonutil.Error(w, http.StatusBadRequest, "owner required")
		return
	}
	key := newKey()
	if err := h.Store.Create(r.Context(), key, req.Owner); err != nil {
		jsonutil.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonutil.JSON(w, http.StatusOK, keyResponse{
		Key:     key,
		Active:  true,
		Owner:   req.Owner,
		Email:   req.Email,
		Created: types.NowRFC3339(),
	})
}
