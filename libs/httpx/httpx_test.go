package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWithRequestIDPropagates(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set(RequestIDHeader, "client-id-1")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if seen != "client-id-1" {
		t.Fatalf("context id = %q, want client's", seen)
	}
	if rw.Header().Get(RequestIDHeader) != "client-id-1" {
		t.Fatal("response header should echo the request id")
	}

	reqNoID := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	rwNoID := httptest.NewRecorder()
	h.ServeHTTP(rwNoID, reqNoID)
	if seen == "" || rwNoID.Header().Get(RequestIDHeader) == "" {
		t.Fatal("expected a generated request id")
	}
}

func TestRateLimiterFixedWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Hour)
	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i, want := range []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, req)
		if rw.Code != want {
			t.Fatalf("request %d: code = %d, want %d", i, rw.Code, want)
		}
	}

	// Other clients have their own window.
	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("other client: code = %d", rw.Code)
	}
}

func TestChainSkipsNil(t *testing.T) {
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}), nil, WithBodyLimit(1024), nil)

	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "http://example.com", nil))
	if rw.Code != http.StatusTeapot {
		t.Fatalf("code = %d", rw.Code)
	}
}
