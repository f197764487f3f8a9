package apiresp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteFieldErrorsEnvelope(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/courses/1/quiz", nil)
	w := httptest.NewRecorder()

	WriteFieldErrors(w, req, http.StatusBadRequest, "title and questions are required", []FieldError{
		{Field: "title", Message: "title is a required field"},
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var env Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.OK || env.Error == nil {
		t.Fatalf("expected error envelope, got %+v", env)
	}
	if env.Error.Code != "invalid_request" {
		t.Fatalf("unexpected code %q", env.Error.Code)
	}
	if len(env.Error.Fields) != 1 || env.Error.Fields[0].Field != "title" {
		t.Fatalf("unexpected fields %+v", env.Error.Fields)
	}
}

func TestDecodeJSONEmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/submissions/1/approve", strings.NewReader(""))
	w := httptest.NewRecorder()

	var dst struct {
		Reason string `json:"reason"`
	}
	if err := DecodeJSON(w, req, &dst); err != nil {
		t.Fatalf("empty body should decode, got %v", err)
	}
}

func TestDecodeJSONMalformed(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
	w := httptest.NewRecorder()

	var dst map[string]interface{}
	if err := DecodeJSON(w, req, &dst); err == nil {
		t.Fatalf("expected decode error")
	}
}
