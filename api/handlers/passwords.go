package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/leon6002/keybox-sub000/internal/store"
	"github.com/leon6002/keybox-sub000/internal/vault"
)

// PasswordHandlers implements the three /passwords/* endpoints of
// spec.md section 6. The server persists whatever opaque
// vault.EncryptedCipher envelope the client already encrypted; it never
// decrypts, inspects, or re-derives anything from one.
type PasswordHandlers struct {
	Ciphers *store.CipherRepo
}

// NewPasswordHandlers constructs a PasswordHandlers over ciphers.
func NewPasswordHandlers(ciphers *store.CipherRepo) *PasswordHandlers {
	return &PasswordHandlers{Ciphers: ciphers}
}

type loadPasswordsRequest struct {
	UserID string `json:"userId"`
}

type loadPasswordsResponse struct {
	Ciphers []vault.EncryptedCipher `json:"ciphers"`
}

// Load handles POST /passwords/load.
func (h *PasswordHandlers) Load(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req loadPasswordsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Debug("error decoding load request", "error", err)
		http.Error(w, "Invalid input", http.StatusBadRequest)
		return
	}

	rows, err := h.Ciphers.List(req.UserID)
	if err != nil {
		slog.Error("error listing ciphers", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	ciphers := make([]vault.EncryptedCipher, 0, len(rows))
	for _, row := range rows {
		ec, err := store.RowToCipher(row)
		if err != nil {
			slog.Error("error converting cipher row", "id", row.ID, "error", err)
			continue
		}
		ciphers = append(ciphers, ec)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loadPasswordsResponse{Ciphers: ciphers})
}

type savePasswordRequest struct {
	UserID          string               `json:"userId"`
	EncryptedCipher vault.EncryptedCipher `json:"encryptedCipher"`
	IsUpdate        bool                 `json:"isUpdate"`
	EntryID         string               `json:"entryId,omitempty"`
}

type savePasswordResponse struct {
	Cipher vault.EncryptedCipher `json:"cipher"`
}

// Save handles POST /passwords/save, covering both create (IsUpdate
// false, a fresh ID assigned here) and update (IsUpdate true, EntryID
// names the row to overwrite).
func (h *PasswordHandlers) Save(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req savePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Debug("error decoding save request", "error", err)
		http.Error(w, "Invalid input", http.StatusBadRequest)
		return
	}

	ec := req.EncryptedCipher
	ec.UserID = req.UserID
	if req.IsUpdate {
		if req.EntryID == "" {
			http.Error(w, "entryId is required for an update", http.StatusBadRequest)
			return
		}
		ec.ID = req.EntryID
	} else if ec.ID == "" {
		ec.ID = uuid.NewString()
	}

	row, err := store.CipherToRow(ec)
	if err != nil {
		slog.Debug("error converting cipher for save", "error", err)
		http.Error(w, "Invalid encryptedCipher", http.StatusBadRequest)
		return
	}
	if err := h.Ciphers.Save(row); err != nil {
		slog.Error("error saving cipher", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	saved, err := store.RowToCipher(row)
	if err != nil {
		slog.Error("error converting saved cipher", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(savePasswordResponse{Cipher: saved})
}

type deletePasswordRequest struct {
	UserID  string `json:"userId"`
	EntryID string `json:"entryId"`
}

type deletePasswordResponse struct {
	OK bool `json:"ok"`
}

// Delete handles POST /passwords/delete. A missing row is reported as
// 404, which internal/remote's client treats as a successful delete.
func (h *PasswordHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req deletePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Debug("error decoding delete request", "error", err)
		http.Error(w, "Invalid input", http.StatusBadRequest)
		return
	}

	err := h.Ciphers.Delete(req.EntryID, req.UserID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "No password found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("error deleting cipher", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(deletePasswordResponse{OK: true})
}
