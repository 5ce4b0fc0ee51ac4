package httpadapter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNormalizeStatusTaxonomy(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status     int
		retryAfter string
		class      OutcomeClass
		retryable  bool
		backoffMS  int64
	}{
		{status: 200, class: OutcomeSuccess},
		{status: 204, class: OutcomeSuccess},
		{status: 429, retryAfter: "3", class: OutcomeOverload, retryable: true, backoffMS: 3000},
		{status: 429, class: OutcomeOverload, retryable: true, backoffMS: 500},
		{status: 408, class: OutcomeTimeout, retryable: true},
		{status: 504, class: OutcomeTimeout, retryable: true},
		{status: 401, class: OutcomeBlocked},
		{status: 403, class: OutcomeBlocked},
		{status: 422, class: OutcomeBlocked},
		{status: 500, class: OutcomeInfrastructureFailure, retryable: true},
		{status: 503, class: OutcomeInfrastructureFailure, retryable: true},
	}
	for _, tc := range cases {
		outcome := NormalizeStatus(tc.status, tc.retryAfter)
		if outcome.Class != tc.class {
			t.Fatalf("status %d: class = %s, want %s", tc.status, outcome.Class, tc.class)
		}
		if outcome.Retryable != tc.retryable {
			t.Fatalf("status %d: retryable = %v, want %v", tc.status, outcome.Retryable, tc.retryable)
		}
		if outcome.BackoffMS != tc.backoffMS {
			t.Fatalf("status %d: backoff = %d, want %d", tc.status, outcome.BackoffMS, tc.backoffMS)
		}
	}
}

func TestNormalizeNetworkError(t *testing.T) {
	t.Parallel()

	if got := NormalizeNetworkError(context.Canceled); got.Class != OutcomeCancelled {
		t.Fatalf("cancel class = %s", got.Class)
	}
	if got := NormalizeNetworkError(context.DeadlineExceeded); got.Class != OutcomeTimeout || !got.Retryable {
		t.Fatalf("deadline outcome = %+v", got)
	}
	if got := NormalizeNetworkError(errors.New("connection refused")); got.Class != OutcomeInfrastructureFailure {
		t.Fatalf("transport class = %s", got.Class)
	}
}

func TestOutcomeFailed(t *testing.T) {
	t.Parallel()

	if (Outcome{Class: OutcomeSuccess}).Failed() {
		t.Fatal("success counted as failure")
	}
	if (Outcome{Class: OutcomeCancelled}).Failed() {
		t.Fatal("cancellation counted as failure")
	}
	if !(Outcome{Class: OutcomeTimeout}).Failed() {
		t.Fatal("timeout not counted as failure")
	}
}

func TestDoJSONInjectsAPIKeyHeader(t *testing.T) {
	t.Parallel()

	var gotAuth string
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query().Get("key")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	adapter, err := New(Config{
		Name:             "stt-test",
		Endpoint:         server.URL,
		APIKey:           "secret",
		APIKeyHeader:     "Authorization",
		APIKeyPrefix:     "Token ",
		QueryAPIKeyParam: "key",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := adapter.DoJSON(context.Background(), map[string]string{"text": "hi"})
	if err != nil {
		t.Fatalf("DoJSON: %v", err)
	}
	if result.Outcome.Class != OutcomeSuccess {
		t.Fatalf("outcome = %+v", result.Outcome)
	}
	if gotAuth != "Token secret" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotQuery != "secret" {
		t.Fatalf("query key = %q", gotQuery)
	}
	if !strings.Contains(string(result.Body), "ok") {
		t.Fatalf("body = %s", result.Body)
	}
}

func TestDoNormalizesTimeout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	adapter, err := New(Config{Name: "slow", Endpoint: server.URL, Timeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := adapter.Do(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if result.Outcome.Class != OutcomeTimeout {
		t.Fatalf("outcome = %+v", result.Outcome)
	}
}

func TestNewRequiresNameAndEndpoint(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Endpoint: "http://example.com"}); err == nil {
		t.Fatal("missing name accepted")
	}
	if _, err := New(Config{Name: "x"}); err == nil {
		t.Fatal("missing endpoint accepted")
	}
}
