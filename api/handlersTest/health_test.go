package handlersTest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/leon6002/keybox-sub000/api/handlers"
)

func TestHealthHandler(t *testing.T) {
	t.Run("GET /health - Success", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, "/health", nil)
		if err != nil {
			t.Fatalf("Failed to create request: %v", err)
		}
		recorder := httptest.NewRecorder()
		handlers.HealthHandler(recorder, req)

		if recorder.Code != http.StatusOK {
			t.Errorf("Expected status %d, got %d", http.StatusOK, recorder.Code)
		}

		var responseBody handlers.HealthResponse
		if err := json.NewDecoder(recorder.Body).Decode(&responseBody); err != nil {
			t.Errorf("Unable to parse health response: %v", err)
		}
		if responseBody.Status != "OK" {
			t.Errorf("Expected status 'OK', got '%s'", responseBody.Status)
		}
		if responseBody.Version == "" {
			t.Error("Version should not be empty")
		}
	})

	t.Run("POST /health - Method Not Allowed", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, "/health", nil)
		if err != nil {
			t.Fatalf("Failed to create request: %v", err)
		}
		recorder := httptest.NewRecorder()
		handlers.HealthHandler(recorder, req)

		if recorder.Code != http.StatusMethodNotAllowed {
			t.Errorf("Expected status %d, got %d", http.StatusMethodNotAllowed, recorder.Code)
		}
	})
}
