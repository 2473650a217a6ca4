package aggregator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"finlink-server/src/errs"
)

type staticCreds struct{ token string }

func (c staticCreds) TokenForConnection(ctx context.Context, connectionID string) (string, error) {
	return c.token, nil
}

func (c staticCreds) TokenForAccount(ctx context.Context, accountID string) (string, error) {
	return c.token, nil
}

func TestGetTransactionsParsesPage(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/transactions" {
			t.Errorf("path = %s, want /transactions", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("page") != "2" || q.Get("pageSize") != "50" {
			t.Errorf("pagination query = page=%s pageSize=%s", q.Get("page"), q.Get("pageSize"))
		}
		w.Write([]byte(`{
			"results": [{"id":"t1","amount":"10.00","date":"2026-03-01 09:00:00","type":"DEBIT"}],
			"page": 2,
			"totalPages": 5
		}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, staticCreds{token: "tok-1"})
	page, err := client.GetTransactions(context.Background(), "acc-1", time.Now().AddDate(0, -1, 0), time.Now(), 2, 50)
	if err != nil {
		t.Fatalf("GetTransactions returned error: %v", err)
	}
	if gotAuth != "Bearer tok-1" {
		t.Errorf("Authorization = %q, want Bearer tok-1", gotAuth)
	}
	if page.Page != 2 || page.TotalPages != 5 || len(page.Results) != 1 {
		t.Errorf("page = %+v, want page 2 of 5 with one result", page)
	}
	if page.Results[0].ID != "t1" {
		t.Errorf("result id = %q, want t1", page.Results[0].ID)
	}
}

func TestGetErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantKind  errs.Kind
		retryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, errs.KindAuth, true},
		{"forbidden", http.StatusForbidden, errs.KindAuth, true},
		{"throttled", http.StatusTooManyRequests, errs.KindRateLimitedUpstream, true},
		{"server error", http.StatusInternalServerError, errs.KindTransport, true},
		{"not found", http.StatusNotFound, errs.KindTransport, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":"ERR","message":"nope"}`))
			}))
			defer srv.Close()

			client := NewHTTPClient(srv.URL, staticCreds{token: "tok-1"})
			_, err := client.GetAccountBalance(context.Background(), "acc-1")
			if err == nil {
				t.Fatalf("expected error for status %d", tt.status)
			}
			if !errs.Is(err, tt.wantKind) {
				t.Errorf("error kind = %s, want %s", errs.KindOf(err), tt.wantKind)
			}
			if errs.Retryable(err) != tt.retryable {
				t.Errorf("Retryable = %t, want %t", errs.Retryable(err), tt.retryable)
			}
		})
	}
}

func TestGetNetworkFailureIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse the connection

	client := NewHTTPClient(srv.URL, staticCreds{token: "tok-1"})
	_, err := client.GetConnection(context.Background(), "conn-1")
	if err == nil {
		t.Fatal("expected error for refused connection")
	}
	if !errs.Is(err, errs.KindTransport) {
		t.Errorf("error kind = %s, want transport_error", errs.KindOf(err))
	}
}

func TestGetMalformedResponseIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>surprise</html>"))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, staticCreds{token: "tok-1"})
	_, err := client.GetConnection(context.Background(), "conn-1")
	if err == nil {
		t.Fatal("expected error for non-JSON response")
	}
	if !errs.Is(err, errs.KindTransport) {
		t.Errorf("error kind = %s, want transport_error", errs.KindOf(err))
	}
}
