package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/credstock/internal/apikeys"
	"github.com/angelmondragon/credstock/pkg/config"
	pkgerrors "github.com/angelmondragon/credstock/pkg/errors"
	"github.com/angelmondragon/credstock/pkg/logger"
	"github.com/angelmondragon/credstock/pkg/security"
)

type fakeValidator struct {
	keys map[string]*apikeys.Principal
}

func (f fakeValidator) Validate(_ context.Context, raw string) (*apikeys.Principal, error) {
	if raw == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "API key is required")
	}
	p, ok := f.keys[raw]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "Invalid or inactive API key")
	}
	return p, nil
}

type fakeRateStore struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeRateStore() *fakeRateStore {
	return &fakeRateStore{counts: map[string]int64{}}
}

func (f *fakeRateStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeRateStore) RateLimitKey(scope string) string { return "cs:rate_limit:" + scope }

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
}

func TestAPIKeyStatuses(t *testing.T) {
	validator := fakeValidator{keys: map[string]*apikeys.Principal{"good": {KeyID: 7, Name: "shop"}}}
	var seen *apikeys.Principal
	handler := APIKey(validator, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{name: "missing", target: "/api/v1/input", want: http.StatusUnauthorized},
		{name: "invalid", target: "/api/v1/input?key=bad", want: http.StatusForbidden},
		{name: "query", target: "/api/v1/input?key=good", want: http.StatusOK},
		{name: "header", target: "/api/v1/input", header: "good", want: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set(apiKeyHeader, tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d got %d", tc.want, rec.Code)
			}
			if tc.want == http.StatusOK && (seen == nil || seen.KeyID != 7) {
				t.Fatalf("expected principal in context, got %+v", seen)
			}
		})
	}
}

func TestRateLimitPerKey(t *testing.T) {
	store := newFakeRateStore()
	policy := NewRateLimitPolicy("input", time.Minute, 2)
	handler := RateLimit(policy, store, nil)(okHandler())

	send := func(keyID int64) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/input", nil)
		req = req.WithContext(WithPrincipal(req.Context(), &apikeys.Principal{KeyID: keyID}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := send(1); code != http.StatusOK {
			t.Fatalf("request %d: expected 200 got %d", i, code)
		}
	}
	if code := send(1); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", code)
	}
	if code := send(2); code != http.StatusOK {
		t.Fatalf("other keys keep their own window, got %d", code)
	}
	if store.counts["cs:rate_limit:input:key:1"] != 3 {
		t.Fatalf("unexpected counters %v", store.counts)
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	store := newFakeRateStore()
	store.err = context.DeadlineExceeded
	handler := RateLimit(NewRateLimitPolicy("input", time.Minute, 1), store, nil)(okHandler())
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected fail-open, got %d", rec.Code)
		}
	}
}

func TestRateLimitDisabledWithoutStore(t *testing.T) {
	handler := RateLimit(NewRateLimitPolicy("input", time.Minute, 1), nil, nil)(okHandler())
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected pass-through, got %d", rec.Code)
		}
	}
}

func TestAdminToken(t *testing.T) {
	cfg := config.AdminConfig{ArgonMemoryKB: 1024, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32}
	hash, err := security.HashToken("s3cret", cfg)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	handler := AdminToken(hash, nil)(okHandler())

	cases := []struct {
		auth string
		want int
	}{
		{auth: "", want: http.StatusUnauthorized},
		{auth: "Bearer wrong", want: http.StatusUnauthorized},
		{auth: "Bearer s3cret", want: http.StatusOK},
		{auth: "bearer s3cret", want: http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/stats", nil)
		if tc.auth != "" {
			req.Header.Set("Authorization", tc.auth)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("auth %q: expected %d got %d", tc.auth, tc.want, rec.Code)
		}
	}

	disabled := AdminToken("", nil)(okHandler())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	disabled.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without configured hash, got %d", rec.Code)
	}
}

func TestRequestIDPropagatesOrMints(t *testing.T) {
	handler := RequestID(nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got != "abc-123" {
		t.Fatalf("expected propagated id, got %q", got)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected minted id")
	}
}

func TestRecovererReturns500(t *testing.T) {
	handler := Recoverer(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
}

type observation struct {
	route  string
	status int
}

type fakeObserver struct{ seen []observation }

func (f *fakeObserver) Observe(route, _ string, status int, _ time.Duration) {
	f.seen = append(f.seen, observation{route: route, status: status})
}

func TestAccessLogReportsRoutePattern(t *testing.T) {
	obs := &fakeObserver{}
	r := chi.NewRouter()
	r.Use(AccessLog(logger.Nop(), obs))
	r.Get("/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, path := range []string{"/items/42", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if len(obs.seen) != 2 {
		t.Fatalf("expected two observations, got %d", len(obs.seen))
	}
	if obs.seen[0] != (observation{route: "/items/{id}", status: http.StatusOK}) {
		t.Fatalf("unexpected first observation %+v", obs.seen[0])
	}
	if obs.seen[1] != (observation{route: "/missing", status: http.StatusNotFound}) {
		t.Fatalf("unexpected second observation %+v", obs.seen[1])
	}
}
