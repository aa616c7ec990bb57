package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSignup_CreatesAndReturnsKey_OK(t *testing.T) {
	mc := &mockCreator{}
	h := NewSignupHandler(mc)
	body, _ := json.Marshal(map[string]any{"owner": "St. Mary Blood Bank", "email": "ops@example.com"})
	req := httptest.NewRequest(http.MethodPost, "/public/signup", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if mc.calls != 1 {
		t.Fatalf("Create calls=%d", mc.calls)
	}
	if mc.last.key == "" {
		t.Fatalf("expected random key generated")
	}
	if mc.last.owner != "St. Mary Blood Bank" {
		t.Fatalf("owner=%q", mc.last.owner)
	}
	var resp keyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Email != "ops@example.com" || resp.Key != mc.last.key {
		t.Fatalf("resp=%+v", resp)
	}
}

func TestSignup_OwnerRequired(t *testing.T) {
	mc := &mockCreator{}
	h := NewSignupHandler(mc)
	req := httptest.NewRequest(http.MethodPost, "/public/signup", bytes.NewReader([]byte(`{"owner":"  "}`)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest || mc.calls != 0 {
		t.Fatalf("status=%d calls=%d", rec.Code, mc.calls)
	}
}

func TestSignup_MethodNotAllowed(t *testing.T) {
	h := NewSignupHandler(&mockCreator{})
	req := httptest.NewRequest(http.MethodGet, "/public/signup", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestSignup_BadJSON(t *testing.T) {
	h := NewSignupHandler(&mockCreator{})
	req := httptest.NewRequest(http.MethodPost, "/public/signup", bytes.NewReader([]byte("{bad")))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestSignup_StoreError(t *testing.T) {
	h := NewSignupHandler(&mockCreator{fail: true})
	body, _ := json.Marshal(map[string]any{"owner": "clinic"})
	req := httptest.NewRequest(http.MethodPost, "/public/signup", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rec.Code)
	}
}
