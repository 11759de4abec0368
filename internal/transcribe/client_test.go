package transcribe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/transcribe" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req transcribeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.URL != "https://youtu.be/abc123" {
			t.Errorf("url = %q", req.URL)
		}
		json.NewEncoder(w).Encode(transcribeResponse{Text: "xin chào các bạn", Language: "vi"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	got, err := c.Transcribe(context.Background(), "https://youtu.be/abc123")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Text != "xin chào các bạn" || got.Language != "vi" {
		t.Errorf("transcript = %+v", got)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.Transcribe(context.Background(), "https://youtu.be/abc123"); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestTranscribe_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(transcribeResponse{Error: "audio download failed"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.Transcribe(context.Background(), "https://youtu.be/abc123"); err == nil {
		t.Fatal("expected error for error-shaped body")
	}
}

func TestIsRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if !New(srv.URL).IsRunning(context.Background()) {
		t.Error("expected IsRunning true")
	}
	srv.Close()
	if New(srv.URL).IsRunning(context.Background()) {
		t.Error("expected IsRunning false after shutdown")
	}
}
