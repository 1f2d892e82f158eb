package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// TestNewClient tests client construction with various options.
func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("https://api.example.com/api", "tok")

		if c.baseURL != "https://api.example.com/api" {
			t.Errorf("baseURL = %q, want %q", c.baseURL, "https://api.example.com/api")
		}
		if c.token != "tok" {
			t.Errorf("token = %q, want %q", c.token, "tok")
		}
		if c.httpClient.Timeout != 30*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 30*time.Second)
		}
		if c.maxRetries != 3 || c.retryBackoff != time.Second {
			t.Errorf("retries = %d/%v, want 3/1s", c.maxRetries, c.retryBackoff)
		}
		if c.limiter != nil {
			t.Error("limiter should be nil by default")
		}
	})

	t.Run("with options", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		custom := &http.Client{}
		c := NewClient("https://api.example.com", "",
			WithHTTPClient(custom),
			WithTimeout(5*time.Second),
			WithRetries(10, 500*time.Millisecond),
			WithLogger(logger),
			WithRateLimit(2, 4),
		)
		if c.httpClient != custom || custom.Timeout != 5*time.Second {
			t.Errorf("custom HTTP client not configured")
		}
		if c.maxRetries != 10 || c.retryBackoff != 500*time.Millisecond {
			t.Errorf("retries = %d/%v, want 10/500ms", c.maxRetries, c.retryBackoff)
		}
		if c.logger != logger {
			t.Error("logger not set correctly")
		}
		if c.limiter == nil || c.limiter.Burst() != 4 {
			t.Error("rate limiter not configured")
		}
	})

	t.Run("nil logger keeps default", func(t *testing.T) {
		c := NewClient("https://api.example.com", "", WithLogger(nil))
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})

	t.Run("non-positive rate disables limiter", func(t *testing.T) {
		c := NewClient("https://api.example.com", "", WithRateLimit(5, 1), WithRateLimit(0, 1))
		if c.limiter != nil {
			t.Error("limiter should be nil")
		}
	})
}

// TestAPIError tests the APIError type.
func TestAPIError(t *testing.T) {
	err := &APIError{StatusCode: 404, Message: "Not Found"}
	if err.Error() != "api error 404: Not Found" {
		t.Errorf("Error() = %q", err.Error())
	}

	tests := []struct {
		code     int
		expected bool
	}{
		{500, true},
		{503, true},
		{429, true},
		{400, false},
		{401, false},
		{404, false},
		{499, false},
	}
	for _, tt := range tests {
		err := &APIError{StatusCode: tt.code}
		if got := err.IsRetryable(); got != tt.expected {
			t.Errorf("IsRetryable() for status %d = %v, want %v", tt.code, got, tt.expected)
		}
	}
}

// TestDoRequest tests the HTTP request functionality.
func TestDoRequest(t *testing.T) {
	t.Run("sends headers", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Accept") != "application/json" {
				t.Errorf("Accept header = %q", r.Header.Get("Accept"))
			}
			if r.Header.Get("Authorization") != "Bearer tok" {
				t.Errorf("Authorization header = %q", r.Header.Get("Authorization"))
			}
			if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "tutorlink-realtime/") {
				t.Errorf("User-Agent header = %q", ua)
			}
			w.Write([]byte(`{"success":true}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "tok")
		body, err := c.doRequest(context.Background(), http.MethodGet, "/notifications", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(body) != `{"success":true}` {
			t.Errorf("body = %q", string(body))
		}
	})

	t.Run("query parameters", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/notifications" {
				t.Errorf("path = %q", r.URL.Path)
			}
			if got := r.URL.Query().Get("since"); got != "2026-10-01T00:00:00Z" {
				t.Errorf("since = %q", got)
			}
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		q := url.Values{"since": {"2026-10-01T00:00:00Z"}}
		if _, err := NewClient(server.URL+"/api", "tok").doRequest(context.Background(), http.MethodGet, "/notifications", q); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("no token no header", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "" {
				t.Errorf("Authorization header should be empty, got %q", r.Header.Get("Authorization"))
			}
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		if _, err := NewClient(server.URL, "").doRequest(context.Background(), http.MethodGet, "/notifications", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("error message from body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"success":false,"message":"Token expired"}`))
		}))
		defer server.Close()

		_, err := NewClient(server.URL, "tok").doRequest(context.Background(), http.MethodGet, "/notifications", nil)
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *APIError, got %T", err)
		}
		if apiErr.StatusCode != 401 || apiErr.Message != "Token expired" {
			t.Errorf("APIError = %d %q", apiErr.StatusCode, apiErr.Message)
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(100 * time.Millisecond)
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := NewClient(server.URL, "tok").doRequest(ctx, http.MethodGet, "/notifications", nil)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("rate limited wait honors context", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "tok", WithRateLimit(0.001, 1))
		if _, err := c.doRequest(context.Background(), http.MethodGet, "/notifications", nil); err != nil {
			t.Fatalf("first request should use the burst: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := c.doRequest(ctx, http.MethodGet, "/notifications", nil)
		if err == nil || !strings.Contains(err.Error(), "rate limit") {
			t.Errorf("expected rate limit error, got %v", err)
		}
	})
}

// TestDoWithRetry tests the retry logic.
func TestDoWithRetry(t *testing.T) {
	t.Run("retries on 5xx and 429", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch atomic.AddInt32(&attempts, 1) {
			case 1:
				w.WriteHeader(http.StatusInternalServerError)
			case 2:
				w.WriteHeader(http.StatusTooManyRequests)
			default:
				w.Write([]byte(`{"success":true,"data":{"unreadCount":2}}`))
			}
		}))
		defer server.Close()

		c := NewClient(server.URL, "tok", WithRetries(3, 10*time.Millisecond))
		n, err := c.GetUnreadCount(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != 2 {
			t.Errorf("unread = %d, want 2", n)
		}
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("does not retry on 4xx", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()

		c := NewClient(server.URL, "tok", WithRetries(3, 10*time.Millisecond))
		if _, err := c.doWithRetry(context.Background(), http.MethodGet, "/notifications", nil); err == nil {
			t.Fatal("expected error, got nil")
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
	})

	t.Run("max retries exceeded", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		c := NewClient(server.URL, "tok", WithRetries(2, 10*time.Millisecond))
		_, err := c.doWithRetry(context.Background(), http.MethodGet, "/notifications", nil)
		if err == nil || !strings.Contains(err.Error(), "max retries exceeded") {
			t.Errorf("error should contain 'max retries exceeded', got %v", err)
		}
		// 1 initial + 2 retries = 3 attempts
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("context cancellation during retry", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		c := NewClient(server.URL, "tok", WithRetries(5, 50*time.Millisecond))
		ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
		defer cancel()

		_, err := c.doWithRetry(ctx, http.MethodGet, "/notifications", nil)
		if err == nil || !strings.Contains(err.Error(), "context") {
			t.Errorf("error should be context-related, got %v", err)
		}
	})
}
