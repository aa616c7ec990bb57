package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/bloodchain/internal/auth"
)

type mockCreator struct {
	calls   int
	revokes int
	last    struct{ key, owner string }
	fail    bool
	known   map[string]bool
}

func (m *mockCreator) Create(_ context.Context, key string, owner string) error {
	m.calls++
	m.last.key = key
	m.last.owner = owner
	if m.fail {
		return errString("fail")
	}
	if m.known == nil {
		m.known = map[string]bool{}
	}
	m.known[key] = true
	return nil
}

func (m *mockCreator) Revoke(_ context.Context, key string) error {
	m.revokes++
	if key == "" {
		return auth.ErrMissingKey
	}
	if !m.known[key] {
		return auth.ErrUnknownKey
	}
	m.known[key] = false
	return nil
}

type errString string

func (e errString) Error() string { return string(e) }

func adminRequest(method string, body interface{}, token string) *http.Request {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(method, "/admin/keys", bytes.NewReader(b))
	if token != "" {
		req.Header.Set("X-Admin-Token", token)
	}
	return req
}

func TestAdmin_Unauthorized(t *testing.T) {
	mc := &mockCreator{}
	h := NewAdminHandler(mc, "secret", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, adminRequest(http.MethodPost, map[string]string{"owner": "clinic"}, "wrong"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, mc.calls)
}

func TestAdmin_EmptyTokenDisablesEndpoint(t *testing.T) {
	h := NewAdminHandler(&mockCreator{}, "", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, adminRequest(http.MethodPost, map[string]string{}, ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdmin_GenerateAndStore_OK(t *testing.T) {
	mc := &mockCreator{}
	h := NewAdminHandler(mc, "secret", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, adminRequest(http.MethodPost, map[string]string{"owner": "clinic"}, "secret"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, mc.calls)
	assert.Len(t, mc.last.key, 64)
	assert.Equal(t, "clinic", mc.last.owner)

	var resp keyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, mc.last.key, resp.Key)
	assert.True(t, resp.Active)
}

func TestAdmin_Revoke(t *testing.T) {
	mc := &mockCreator{known: map[string]bool{"k1": true}}
	h := NewAdminHandler(mc, "secret", nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, adminRequest(http.MethodDelete, map[string]string{"key": "k1"}, "secret"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, adminRequest(http.MethodDelete, map[string]string{"key": "nope"}, "secret"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, adminRequest(http.MethodDelete, map[string]string{}, "secret"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdmin_MethodNotAllowed(t *testing.T) {
	h := NewAdminHandler(&mockCreator{}, "secret", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/keys", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAdmin_BadJSON(t *testing.T) {
	h := NewAdminHandler(&mockCreator{}, "secret", nil)
	req := httptest.NewRequest(http.MethodPost, "/admin/keys", bytes.NewReader([]byte("{bad")))
	req.Header.Set("X-Admin-Token", "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdmin_StoreError(t *testing.T) {
	h := NewAdminHandler(&mockCreator{fail: true}, "secret", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, adminRequest(http.MethodPost, map[string]string{"owner": "clinic"}, "secret"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
