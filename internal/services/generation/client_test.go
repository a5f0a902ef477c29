package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"atelier/internal/jobs"
	"atelier/internal/services"
)

func sampleRequest() Request {
	return Request{
		JobID:      "job-1",
		Attempt:    1,
		Kind:       jobs.KindVideo,
		InputText:  "a lighthouse at dusk",
		References: []jobs.Reference{{Handle: "asset://sha256/abc", Role: jobs.RoleStyle}},
		Tier:       jobs.TierStandard,
	}
}

func TestClientGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/generations" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer selected-key" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if got := r.Header.Get("Idempotency-Key"); got != "job-1-1" {
			t.Errorf("unexpected idempotency key %q", got)
		}
		var payload Request
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if payload.Kind != jobs.KindVideo || len(payload.References) != 1 {
			t.Errorf("unexpected payload %+v", payload)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result_ref": "res://video/1", "duration_seconds": 8})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL + "/v1/", APIKey: "config-key"},
		WithKeySource(func() string { return "selected-key" }))
	result, err := client.Generate(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if result.ResultRef != "res://video/1" || result.DurationSeconds != 8 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestClientFallsBackToConfiguredKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer config-key" {
			t.Errorf("unexpected authorization header %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result_ref": "res://1"})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "config-key"},
		WithKeySource(func() string { return "  " }))
	if _, err := client.Generate(context.Background(), sampleRequest()); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
}

func TestClientMissingKeyIsCredentialFailure(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	_, err := client.Generate(context.Background(), sampleRequest())
	if !errors.Is(err, services.ErrCredential) {
		t.Fatalf("expected credential failure, got %v", err)
	}
}

func TestClientClassifiesFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"nope"}`, services.ErrCredential},
		{"forbidden", http.StatusForbidden, `{}`, services.ErrCredential},
		{"entity not found body", http.StatusNotFound, `{"error":{"message":"Requested entity not found."}}`, services.ErrCredential},
		{"api key body", http.StatusBadRequest, `{"error":{"message":"API key not valid"}}`, services.ErrCredential},
		{"plain bad request", http.StatusBadRequest, `{"error":{"message":"prompt too long"}}`, services.ErrTransport},
		{"server error", http.StatusInternalServerError, `oops`, services.ErrTransport},
		{"api error permission", http.StatusOK, `{"error":{"code":"PERMISSION_DENIED","message":"Permission denied on project"}}`, services.ErrCredential},
		{"api error other", http.StatusOK, `{"error":{"message":"safety filter"}}`, services.ErrTransport},
		{"garbage body", http.StatusOK, `not json`, services.ErrTransport},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := NewClient(Config{BaseURL: server.URL, APIKey: "k"},
				WithRetryMaxAttempts(1))
			_, err := client.Generate(context.Background(), sampleRequest())
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			other := services.ErrTransport
			if tc.want == services.ErrTransport {
				other = services.ErrCredential
			}
			if errors.Is(err, other) {
				t.Fatalf("error carries both classifications: %v", err)
			}
		})
	}
}

func TestClientRetriesOnHTTP429(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limited"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result_ref": "res://retry"})
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(Config{BaseURL: server.URL, APIKey: "k"},
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
		WithRetryBackoff(0, 10*time.Second),
		WithRetryMaxAttempts(3),
	)
	result, err := client.Generate(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if result.ResultRef != "res://retry" {
		t.Fatalf("unexpected result %+v", result)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("expected single sleep of 1s, got %v", slept)
	}
}

func TestClientDoesNotRetryCredentialFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "k"},
		WithSleeper(func(time.Duration) {}),
		WithRetryMaxAttempts(5),
	)
	if _, err := client.Generate(context.Background(), sampleRequest()); !errors.Is(err, services.ErrCredential) {
		t.Fatalf("expected credential failure, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single call, got %d", calls.Load())
	}
}

func TestClientGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "k"},
		WithSleeper(func(time.Duration) {}),
		WithRetryBackoff(0, 0),
		WithRetryMaxAttempts(3),
	)
	_, err := client.Generate(context.Background(), sampleRequest())
	if !errors.Is(err, services.ErrTransport) {
		t.Fatalf("expected transport failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status in error, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
}

func TestClientCancelledContextIsTransport(t *testing.T) {
	done := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-done:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(done)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	client := NewClient(Config{BaseURL: server.URL, APIKey: "k"})
	_, err := client.Generate(ctx, sampleRequest())
	if !errors.Is(err, services.ErrTransport) {
		t.Fatalf("expected transport failure, got %v", err)
	}
}

func TestBackoffDelayDoublesUpToMax(t *testing.T) {
	client := NewClient(Config{}, WithRetryBackoff(time.Second, 5*time.Second))
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second}
	for i, expected := range want {
		if got := client.backoffDelay(i + 1); got != expected {
			t.Fatalf("attempt %d: expected %s, got %s", i+1, expected, got)
		}
	}
}

func TestRequestFromJobCarriesContinuation(t *testing.T) {
	job := jobs.Job{
		ID:      "child",
		Kind:    jobs.KindVideo,
		Tier:    jobs.TierPremium,
		Attempt: 2,
		References: []jobs.Reference{
			{Handle: "res://parent", Role: jobs.RoleContinuation},
			{Handle: "asset://style", Role: jobs.RoleStyle},
		},
	}
	req := RequestFromJob(job)
	if req.ParentOutputRef != "res://parent" {
		t.Fatalf("expected parent output ref, got %q", req.ParentOutputRef)
	}
	if req.Attempt != 2 || req.Tier != jobs.TierPremium || len(req.References) != 2 {
		t.Fatalf("unexpected request %+v", req)
	}
}
