package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusOK, map[string]int{"channels": 3})

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("unexpected content type %q", ct)
	}
	var body map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["channels"] != 3 {
		t.Errorf("unexpected body %v", body)
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusServiceUnavailable, "gateway unreachable")

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["error"] != "gateway unreachable" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"known":1,"unknown":2}`))
	var out struct {
		Known int `json:"known"`
	}
	if err := DecodeJSON(req, &out); err == nil {
		t.Error("expected unknown field rejection")
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"known":1}`))
	if err := DecodeJSON(req, &out); err != nil {
		t.Errorf("decode failed: %v", err)
	}
	if out.Known != 1 {
		t.Errorf("unexpected value %d", out.Known)
	}
}
