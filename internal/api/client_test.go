package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClientStatusErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	tests := []struct {
		name string
		call func(ctx context.Context) error
	}{
		{"SmartEntry", func(ctx context.Context) error {
			_, err := client.SmartEntry(ctx, SmartEntryRequest{Name: "Léa", Email: "lea@test.com"})
			return err
		}},
		{"SessionMessages", func(ctx context.Context) error {
			_, err := client.SessionMessages(ctx, "s-1")
			return err
		}},
		{"DeleteMessage", func(ctx context.Context) error {
			return client.DeleteMessage(ctx, "m-1")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call(context.Background())
			if err == nil {
				t.Fatal("expected error on 500 response")
			}
			if !strings.Contains(err.Error(), "500") {
				t.Errorf("expected status code in error, got %v", err)
			}
		})
	}
}

func TestClientContextCancellation(t *testing.T) {
	blocked := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer ts.Close()
	defer close(blocked)

	client := NewClient(ts.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.SessionMessages(ctx, "s-1"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestClientTrailingSlashBase(t *testing.T) {
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	}))
	defer ts.Close()

	client := NewClient(ts.URL + "/api/")
	if _, err := client.Sessions(context.Background()); err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if gotPath != "/api/chat/sessions" {
		t.Errorf("expected path /api/chat/sessions, got %s", gotPath)
	}
}
