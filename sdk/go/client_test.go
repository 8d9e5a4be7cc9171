package recruitlinesdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientSendsCredentialsAndDecodes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/applications", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Api-Key"); got != "k1" {
			t.Errorf("expected api key header, got %q", got)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["application_key"] != "app-1" || body["email"] != "ada@example.com" {
			t.Errorf("unexpected body %v", body)
		}
		_ = json.NewEncoder(w).Encode(ApplicationResult{Candidate: Candidate{ID: "c1", Status: "new"}, Created: true})
	})
	mux.HandleFunc("GET /v1/activity", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("entity_id") != "c1" || q.Get("limit") != "2" || q.Get("cursor") != "9" {
			t.Errorf("unexpected query %v", q)
		}
		_ = json.NewEncoder(w).Encode(PaginatedActivity{Items: []Activity{{ID: 8, Action: "created"}}, NextCursor: "8"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL)
	c.APIKey = "k1"
	ctx := context.Background()

	res, err := c.SubmitApplication(ctx, CandidateInput{Name: "Ada", Email: "ada@example.com"}, "app-1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Created || res.Candidate.ID != "c1" {
		t.Fatalf("unexpected result %+v", res)
	}

	page, err := c.ActivityPage(ctx, ActivityFilter{EntityID: "c1"}, 2, "9")
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	if len(page.Items) != 1 || page.NextCursor != "8" {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestClientParsesErrorEnvelope(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/bookings/{token}", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("booking should not need credentials")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPreconditionFailed)
		_, _ = w.Write([]byte(`{"error":{"code":"precondition_failed","message":"booking link already used"}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL)
	c.Timeout = time.Second
	_, err := c.Book(context.Background(), "tok", "2024-03-05", "10:00")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusPreconditionFailed || apiErr.Code != "precondition_failed" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestDecideRejectsUnknownAction(t *testing.T) {
	c := New("http://127.0.0.1:1")
	if _, err := c.Decide(context.Background(), "c1", "promote", "", false); err == nil {
		t.Fatalf("expected error for unknown action")
	}
}
