package handlers

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/example/bloodchain/internal/auth"
	"github.com/example/bloodchain/internal/logging"
	"github.com/example/bloodchain/internal/types"
	"github.com/example/bloodchain/pkg/jsonutil"
)

// AdminHandler issues and revokes API keys. Every request must carry the
// X-Admin-Token header.
type AdminHandler struct {
	Store      auth.APIKeyCreator
	AdminToken string
	Logger     logrus.FieldLogger
}

func NewAdminHandler(store auth.APIKeyCreator, adminToken string, logger logrus.FieldLogger) *AdminHandler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &AdminHandler{Store: store, AdminToken: adminToken, Logger: logger}
}

// keyRequest is the admin payload. On create an empty Key means "generate one".
type keyRequest struct {
	Key   string `json:"key"`
	Owner string `json:"owner"`
}

type keyResponse struct {
	Key     string `json:"key"`
	Active  bool   `json:"active"`
	Owner   string `json:"owner,omitempty"`
	Email   string `json:"email,omitempty"`
	Created string `json:"created_at"`
}

func newKey() string {
	var b [32]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func (h *AdminHandler) authorized(r *http.Request) bool {
	if h.AdminToken == "" {
		return false
	}
	got := r.Header.Get("X-Admin-Token")
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.AdminToken)) == 1
}

// ServeHTTP handles POST (create) and DELETE (revoke) on /admin/keys.
func (h *AdminHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		jsonutil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !h.authorized(r) {
		jsonutil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req keyRequest
	if err := jsonutil.Decode(r, &req); err != nil {
		jsonutil.Error(w, http.StatusBadRequest, "bad request")
		return
	}
	log := logging.FromContext(r.Context(), h.Logger)

	if r.Method == http.MethodDelete {
		err := h.Store.Revoke(r.Context(), req.Key)
		switch {
		case err == nil:
			log.WithField("key", auth.HashPrefix(req.Key)).Info("api key revoked")
			jsonutil.JSON(w, http.StatusOK, map[string]bool{"revoked": true})
		case errors.Cause(err) == auth.ErrMissingKey:
			jsonutil.Error(w, http.StatusBadRequest, err.Error())
		case errors.Cause(err) == auth.ErrUnknownKey:
			jsonutil.Error(w, http.StatusNotFound, err.Error())
		default:
			jsonutil.Error(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	key := req.Key
	if key == "" {
		key = newKey()
	}
	if err := h.Store.Create(r.Context(), key, req.Owner); err != nil {
		log.WithError(err).Error("create api key")
		jsonutil.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	log.WithFields(logrus.Fields{"key": auth.HashPrefix(key), "owner": req.Owner}).Info("api key issued")
	jsonutil.JSON(w, http.StatusOK, keyResponse{
		Key:     key,
		Active:  true,
		Owner:   req.Owner,
		Created: types.NowRFC3339(),
	})
}
