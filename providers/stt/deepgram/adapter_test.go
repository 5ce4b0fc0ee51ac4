package deepgram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTranscribeSuccess(t *testing.T) {
	t.Parallel()

	var gotAuth, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":"water boils at one hundred degrees","confidence":0.92}]}]}}`))
	}))
	defer server.Close()

	adapter, err := New(Config{APIKey: "dg-key", Endpoint: server.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	transcript, err := adapter.Transcribe(context.Background(), []byte{0x52, 0x49, 0x46, 0x46})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if transcript.Text != "water boils at one hundred degrees" {
		t.Fatalf("text = %q", transcript.Text)
	}
	if transcript.Confidence != 0.92 {
		t.Fatalf("confidence = %v", transcript.Confidence)
	}
	if gotAuth != "Token dg-key" {
		t.Fatalf("auth = %q", gotAuth)
	}
	if gotContentType != "audio/wav" {
		t.Fatalf("content-type = %q", gotContentType)
	}
}

func TestTranscribeServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	adapter, err := New(Config{APIKey: "dg-key", Endpoint: server.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := adapter.Transcribe(context.Background(), []byte{0x01}); err == nil {
		t.Fatal("server error not surfaced")
	}
}

func TestTranscribeEmptyAlternatives(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":{"channels":[]}}`))
	}))
	defer server.Close()

	adapter, err := New(Config{APIKey: "dg-key", Endpoint: server.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := adapter.Transcribe(context.Background(), []byte{0x01}); err == nil {
		t.Fatal("empty alternatives accepted")
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}); err == nil {
		t.Fatal("missing api key accepted")
	}
}
