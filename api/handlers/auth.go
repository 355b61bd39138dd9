package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/leon6002/keybox-sub000/internal/store"
)

// AuthHandlers implements the three auth endpoints of spec.md section 6:
// /auth/check-encryption, /auth/setup-encryption, /auth/get-user-data.
// Grounded on the teacher's RvInfoHandler (api/handlers/rvinfo.go):
// a method switch over one mux entry, slog.Debug on every branch,
// http.Error for every failure path.
type AuthHandlers struct {
	Users *store.UserRepo
}

// NewAuthHandlers constructs an AuthHandlers over users.
func NewAuthHandlers(users *store.UserRepo) *AuthHandlers {
	return &AuthHandlers{Users: users}
}

type checkEncryptionRequest struct {
	Email string `json:"email"`
}

type checkEncryptionResponse struct {
	HasEncryption bool `json:"hasEncryption"`
}

// CheckEncryption handles POST /auth/check-encryption.
func (h *AuthHandlers) CheckEncryption(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req checkEncryptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Debug("error decoding check-encryption request", "error", err)
		http.Error(w, "Invalid input", http.StatusBadRequest)
		return
	}

	_, err := h.Users.ByEmail(req.Email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Error("error checking encryption", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(checkEncryptionResponse{HasEncryption: err == nil})
}

// persistedUserWire is the opaque user shape exchanged over the wire,
// matching internal/remote.PersistedUserWire field-for-field.
type persistedUserWire struct {
	ID             string          `json:"id"`
	Email          string          `json:"email"`
	Name           string          `json:"name,omitempty"`
	KDFType        string          `json:"kdfType"`
	KDFIterations  int             `json:"kdfIterations"`
	KDFMemory      int             `json:"kdfMemory,omitempty"`
	KDFParallelism int             `json:"kdfParallelism,omitempty"`
	KDFSalt        string          `json:"kdfSalt"`
	AuthHash       string          `json:"authHash"`
	WrappedUserKey json.RawMessage `json:"wrappedUserKey"`
	PassphraseHint string          `json:"passphraseHint,omitempty"`
	CreatedAt      string          `json:"createdAt"`
	UpdatedAt      string          `json:"updatedAt"`
}

func wireFromUser(u store.PersistedUser) persistedUserWire {
	return persistedUserWire{
		ID:             u.ID,
		Email:          u.Email,
		Name:           u.Name,
		KDFType:        u.KDFType,
		KDFIterations:  u.KDFIterations,
		KDFMemory:      u.KDFMemoryKiB,
		KDFParallelism: u.KDFParallelism,
		KDFSalt:        u.KDFSaltB64,
		AuthHash:       u.AuthHashB64,
		WrappedUserKey: json.RawMessage(u.WrappedUserKeyJSON),
		PassphraseHint: u.PassphraseHint,
		CreatedAt:      u.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      u.UpdatedAt.Format(time.RFC3339),
	}
}

type setupEncryptionRequest struct {
	Email          string          `json:"email"`
	Name           string          `json:"name,omitempty"`
	KDFType        string          `json:"kdfType"`
	KDFIterations  int             `json:"kdfIterations"`
	KDFMemory      int             `json:"kdfMemory,omitempty"`
	KDFParallelism int             `json:"kdfParallelism,omitempty"`
	KDFSalt        string          `json:"kdfSalt"`
	AuthHash       string          `json:"authHash"`
	WrappedUserKey json.RawMessage `json:"wrappedUserKey"`
	PassphraseHint string          `json:"passphraseHint,omitempty"`
}

type userResponse struct {
	User persistedUserWire `json:"user"`
}

// SetupEncryption handles POST /auth/setup-encryption. The server treats
// every cryptographic field as opaque: it never derives, unwraps, or
// validates them, it only persists what the client already computed.
func (h *AuthHandlers) SetupEncryption(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req setupEncryptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Debug("error decoding setup-encryption request", "error", err)
		http.Error(w, "Invalid input", http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.WrappedUserKey == nil {
		http.Error(w, "email and wrappedUserKey are required", http.StatusBadRequest)
		return
	}

	if _, err := h.Users.ByEmail(req.Email); err == nil {
		http.Error(w, "encryption already configured for this account", http.StatusConflict)
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		slog.Error("error checking existing user", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	user := store.PersistedUser{
		ID:                 uuid.NewString(),
		Email:              req.Email,
		Name:               req.Name,
		KDFType:            req.KDFType,
		KDFIterations:      req.KDFIterations,
		KDFMemoryKiB:       req.KDFMemory,
		KDFParallelism:     req.KDFParallelism,
		KDFSaltB64:         req.KDFSalt,
		AuthHashB64:        req.AuthHash,
		WrappedUserKeyJSON: string(req.WrappedUserKey),
		PassphraseHint:     req.PassphraseHint,
	}
	if err := h.Users.Create(user); err != nil {
		slog.Error("error creating user", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(userResponse{User: wireFromUser(user)})
}

type getUserDataRequest struct {
	Email string `json:"email"`
}

// GetUserData handles POST /auth/get-user-data.
func (h *AuthHandlers) GetUserData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req getUserDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Debug("error decoding get-user-data request", "error", err)
		http.Error(w, "Invalid input", http.StatusBadRequest)
		return
	}

	user, err := h.Users.ByEmail(req.Email)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "No user found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("error fetching user", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(userResponse{User: wireFromUser(user)})
}
