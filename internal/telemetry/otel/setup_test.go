package otel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewProviders_EmptyEndpoint_Noop(t *testing.T) {
	p, err := NewProviders(context.Background(), "", "session-core", false)
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	if p.TracerProvider == nil || p.MeterProvider == nil {
		t.Fatal("no-op providers should not be nil")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("no-op Shutdown: %v", err)
	}
}

func TestNewProviders_InvalidEndpoint(t *testing.T) {
	if _, err := NewProviders(context.Background(), "http://", "session-core", false); err == nil {
		t.Error("NewProviders should reject endpoint without host")
	}
}

func TestHTTPMiddleware(t *testing.T) {
	p, err := NewProviders(context.Background(), "", "session-core", false)
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	mw, err := HTTPMiddleware(p, "session-core")
	if err != nil {
		t.Fatalf("HTTPMiddleware: %v", err)
	}

	var called bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	})
	rec := httptest.NewRecorder()
	mw(inner).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/session", nil))
	if !called {
		t.Fatal("middleware did not call inner handler")
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", rec.Code)
	}
}
