package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestFetchParsesQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/rate" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("base") != "GBP" || r.URL.Query().Get("quote") != "BTC" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"base":"GBP","quote":"BTC","rate":"0.000025"}`))
	}))
	defer srv.Close()

	s := NewHTTPSource(srv.URL, "", time.Second, nil)
	q, err := s.Fetch(context.Background(), "GBP", "BTC")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !q.Rate.Equal(decimal.RequireFromString("0.000025")) {
		t.Errorf("rate = %s", q.Rate)
	}
	if q.Base != "GBP" || q.Counter != "BTC" {
		t.Errorf("pair = %s/%s", q.Base, q.Counter)
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"base":"GBP","quote":"BTC","rate":"0.000025"}`))
	}))
	defer srv.Close()

	s := NewHTTPSource(srv.URL, "", time.Second, nil)
	if _, err := s.Fetch(context.Background(), "GBP", "BTC"); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestFetchRejectsInvalidRate(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"base":"GBP","quote":"BTC","rate":"-1"}`))
	}))
	defer srv.Close()

	s := NewHTTPSource(srv.URL, "", time.Second, nil)
	if _, err := s.Fetch(context.Background(), "GBP", "BTC"); err == nil {
		t.Fatal("negative rate accepted")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1 (invalid rate is permanent)", got)
	}
}
