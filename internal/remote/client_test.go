package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/leon6002/keybox-sub000/internal/vaulterr"
)

func TestCheckEncryption(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/check-encryption" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"hasEncryption": true})
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client())
	has, err := client.CheckEncryption(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("CheckEncryption: %v", err)
	}
	if !has {
		t.Fatalf("expected hasEncryption=true")
	}
}

func TestLoadPasswords5xxReturnsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client())
	_, err := client.LoadPasswords(context.Background(), "user-1")
	var serverErr *vaulterr.ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("expected a ServerError, got %v", err)
	}
}

func TestSavePassword4xxReturnsClientError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client())
	_, err := client.SavePassword(context.Background(), "user-1", []byte(`{}`), false, "")
	var clientErr *vaulterr.ClientError
	if !errors.As(err, &clientErr) {
		t.Fatalf("expected a ClientError, got %v", err)
	}
}

func TestDeletePassword404IsTreatedAsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client())
	if err := client.DeletePassword(context.Background(), "user-1", "entry-1"); err != nil {
		t.Fatalf("expected 404 to be treated as success, got %v", err)
	}
}
