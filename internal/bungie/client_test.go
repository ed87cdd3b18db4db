package bungie

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"clan-tracker/internal/config"

	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *atomic.Int64) {
	t.Helper()

	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	cfg := &config.Config{BungieAPIKey: "test-key", BungieAPIURL: server.URL}
	return NewClient(cfg, zerolog.Nop()), &requests
}

func respond(w http.ResponseWriter, errorCode int, payload any) {
	raw, _ := json.Marshal(payload)
	json.NewEncoder(w).Encode(map[string]any{
		"Response":    json.RawMessage(raw),
		"ErrorCode":   errorCode,
		"ErrorStatus": "Status",
		"Message":     "message",
	})
}

func TestDoRequestSendsAPIKey(t *testing.T) {
	var gotKey string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		respond(w, 1, map[string]any{"version": "1.0"})
	})

	if _, err := client.GetManifest(context.Background()); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if gotKey != "test-key" {
		t.Errorf("X-API-Key = %q", gotKey)
	}
}

func TestDoRequestPrivateProfile(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, 1665, nil)
	})

	_, err := client.GetProfile(context.Background(), 3, "100")
	if !errors.Is(err, ErrPrivateProfile) {
		t.Fatalf("err = %v, want ErrPrivateProfile", err)
	}
}

func TestDoRequestMaintenance(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, 5, nil)
	})

	_, err := client.GetProfile(context.Background(), 3, "100")
	if !errors.Is(err, ErrMaintenance) {
		t.Fatalf("err = %v, want ErrMaintenance", err)
	}
}

func TestDoRequestDomainError(t *testing.T) {
	client, requests := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, 217, nil)
	})

	_, _, err := client.GetPostGameReport(context.Background(), 555)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.Code != 217 {
		t.Errorf("code = %d, want 217", apiErr.Code)
	}
	// Domain errors come in a valid envelope; retrying cannot help.
	if got := requests.Load(); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestDoRequestRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int64
	client, requests := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		respond(w, 1, map[string]any{"version": "1.0"})
	})

	manifest, err := client.GetManifest(context.Background())
	if err != nil {
		t.Fatalf("request failed after retries: %v", err)
	}
	if manifest.Version != "1.0" {
		t.Errorf("version = %q", manifest.Version)
	}
	if got := requests.Load(); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
}

func TestDoRequestDoesNotRetryClientErrors(t *testing.T) {
	client, requests := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	if _, err := client.GetManifest(context.Background()); err == nil {
		t.Fatal("expected error on 404")
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestDownload(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("raw-bytes"))
	})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("snapshot"))
	}))
	t.Cleanup(server.Close)

	body, err := client.Download(context.Background(), server.URL+"/content.zip")
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if string(body) != "snapshot" {
		t.Errorf("body = %q", body)
	}
}
