package handlersTest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/leon6002/keybox-sub000/internal/crypto"
	"github.com/leon6002/keybox-sub000/internal/vault"
)

func encodeTestCipher(t *testing.T, id, userID string) vault.EncryptedCipher {
	t.Helper()
	userKey, err := crypto.RandomKey()
	if err != nil {
		t.Fatalf("RandomKey: %v", err)
	}
	ec, err := vault.EncodeCredential(vault.CredentialRecord{ID: id, Title: "Gmail"}, userID, userKey)
	if err != nil {
		t.Fatalf("EncodeCredential: %v", err)
	}
	return ec
}

func TestSaveAndLoadPasswords(t *testing.T) {
	router := newTestRouter(t)
	ec := encodeTestCipher(t, "rec-1", "user-1")

	saveBody, _ := json.Marshal(map[string]any{
		"userId":          "user-1",
		"encryptedCipher": ec,
		"isUpdate":        false,
	})
	req := httptest.NewRequest(http.MethodPost, "/passwords/save", bytes.NewReader(saveBody))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var saveResp struct {
		Cipher vault.EncryptedCipher `json:"cipher"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&saveResp); err != nil {
		t.Fatalf("decode save response: %v", err)
	}
	if saveResp.Cipher.ID == "" {
		t.Fatalf("expected an assigned cipher ID")
	}

	loadBody, _ := json.Marshal(map[string]string{"userId": "user-1"})
	req = httptest.NewRequest(http.MethodPost, "/passwords/load", bytes.NewReader(loadBody))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var loadResp struct {
		Ciphers []vault.EncryptedCipher `json:"ciphers"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&loadResp); err != nil {
		t.Fatalf("decode load response: %v", err)
	}
	if len(loadResp.Ciphers) != 1 || loadResp.Ciphers[0].ID != saveResp.Cipher.ID {
		t.Fatalf("expected the saved cipher to be loaded back, got %+v", loadResp)
	}
}

func TestDeletePassword(t *testing.T) {
	router := newTestRouter(t)
	ec := encodeTestCipher(t, "rec-2", "user-2")

	saveBody, _ := json.Marshal(map[string]any{
		"userId":          "user-2",
		"encryptedCipher": ec,
		"isUpdate":        false,
	})
	req := httptest.NewRequest(http.MethodPost, "/passwords/save", bytes.NewReader(saveBody))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var saveResp struct {
		Cipher vault.EncryptedCipher `json:"cipher"`
	}
	json.NewDecoder(rec.Body).Decode(&saveResp)

	deleteBody, _ := json.Marshal(map[string]string{"userId": "user-2", "entryId": saveResp.Cipher.ID})
	req = httptest.NewRequest(http.MethodPost, "/passwords/delete", bytes.NewReader(deleteBody))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestDeletePasswordNotFoundReturns404(t *testing.T) {
	router := newTestRouter(t)

	deleteBody, _ := json.Marshal(map[string]string{"userId": "user-3", "entryId": "missing"})
	req := httptest.NewRequest(http.MethodPost, "/passwords/delete", bytes.NewReader(deleteBody))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
