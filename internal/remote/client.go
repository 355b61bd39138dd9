// Package remote implements the opaque REST client for the six endpoints
// described in spec.md section 6. The engine never sends a passphrase or
// an unwrapped key over the wire; these types are the wire shapes
// exactly as documented there.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/leon6002/keybox-sub000/internal/vaulterr"
)

// Client is a thin JSON-over-HTTP client for the sync server's REST
// surface. Grounded on the teacher's handler-level idiom of
// encoding/json + log/slog (api/handlers/rvinfo.go), applied here to the
// outbound side instead of the inbound side.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient constructs a Client against baseURL using httpClient, or
// http.DefaultClient if nil.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

func (c *Client) post(ctx context.Context, path string, reqBody, respBody any) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Debug("remote request failed", "path", path, "error", err)
		return fmt.Errorf("%w: %v", vaulterr.ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return &vaulterr.ServerError{StatusCode: resp.StatusCode, Message: string(body)}
	}
	if resp.StatusCode >= 400 {
		return &vaulterr.ClientError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	if respBody == nil {
		return nil
	}
	if err := json.Unmarshal(body, respBody); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// PersistedUserWire is the opaque, forward-compatible user record
// exchanged with the remote, per spec.md section 6.
type PersistedUserWire struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	Name           string `json:"name,omitempty"`
	KDFType        string `json:"kdfType"`
	KDFIterations  int    `json:"kdfIterations"`
	KDFMemory      int    `json:"kdfMemory,omitempty"`
	KDFParallelism int    `json:"kdfParallelism,omitempty"`
	KDFSalt        string `json:"kdfSalt"`
	AuthHash       string `json:"authHash"`
	WrappedUserKey json.RawMessage `json:"wrappedUserKey"`
	CreatedAt      string `json:"createdAt"`
	UpdatedAt      string `json:"updatedAt"`
}

// CheckEncryption calls POST /auth/check-encryption.
func (c *Client) CheckEncryption(ctx context.Context, email string) (hasEncryption bool, err error) {
	var resp struct {
		HasEncryption bool `json:"hasEncryption"`
	}
	err = c.post(ctx, "/auth/check-encryption", map[string]string{"email": email}, &resp)
	return resp.HasEncryption, err
}

// SetupEncryption calls POST /auth/setup-encryption.
func (c *Client) SetupEncryption(ctx context.Context, email string, wrappedUserKey json.RawMessage, kdfParams map[string]any, salt, authHash, passphraseHint string) (PersistedUserWire, error) {
	req := map[string]any{
		"email":          email,
		"wrappedUserKey": wrappedUserKey,
		"kdfParams":      kdfParams,
		"salt":           salt,
		"authHash":       authHash,
	}
	if passphraseHint != "" {
		req["passphraseHint"] = passphraseHint
	}
	var resp struct {
		User PersistedUserWire `json:"user"`
	}
	err := c.post(ctx, "/auth/setup-encryption", req, &resp)
	return resp.User, err
}

// GetUserData calls POST /auth/get-user-data.
func (c *Client) GetUserData(ctx context.Context, email string) (PersistedUserWire, error) {
	var resp struct {
		User PersistedUserWire `json:"user"`
	}
	err := c.post(ctx, "/auth/get-user-data", map[string]string{"email": email}, &resp)
	return resp.User, err
}

// EncryptedCipherWire is the wire shape of an EncryptedCipher, carrying
// its envelopes as raw JSON so this package stays independent of the
// vault package's Go types.
type EncryptedCipherWire = json.RawMessage

// LoadPasswords calls POST /passwords/load.
func (c *Client) LoadPasswords(ctx context.Context, userID string) ([]EncryptedCipherWire, error) {
	var resp struct {
		Ciphers []EncryptedCipherWire `json:"ciphers"`
	}
	err := c.post(ctx, "/passwords/load", map[string]string{"userId": userID}, &resp)
	return resp.Ciphers, err
}

// SavePassword calls POST /passwords/save.
func (c *Client) SavePassword(ctx context.Context, userID string, cipher EncryptedCipherWire, isUpdate bool, entryID string) (EncryptedCipherWire, error) {
	req := map[string]any{
		"userId":         userID,
		"encryptedCipher": cipher,
		"isUpdate":       isUpdate,
	}
	if entryID != "" {
		req["entryId"] = entryID
	}
	var resp struct {
		Cipher EncryptedCipherWire `json:"cipher"`
	}
	err := c.post(ctx, "/passwords/save", req, &resp)
	return resp.Cipher, err
}

// DeletePassword calls POST /passwords/delete. A 404 from the remote is
// treated as success, per spec.md section 6.
func (c *Client) DeletePassword(ctx context.Context, userID, entryID string) error {
	var resp struct {
		OK bool `json:"ok"`
	}
	err := c.post(ctx, "/passwords/delete", map[string]string{"userId": userID, "entryId": entryID}, &resp)
	var clientErr *vaulterr.ClientError
	if errors.As(err, &clientErr) && clientErr.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}
