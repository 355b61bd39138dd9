// Package envelope implements the versioned ciphertext envelope and the
// "protected string" database-field protocol described in spec.md sections
// 3 and 4.2. It depends on internal/crypto for the actual AEAD operations
// but owns the canonical JSON framing and the "KB|" field convention.
package envelope

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/leon6002/keybox-sub000/internal/crypto"
	"github.com/leon6002/keybox-sub000/internal/vaulterr"
)

// ProtectedPrefix is the reserved marker that precedes every protected
// string's JSON envelope. It must never appear at the start of a plaintext
// field produced by this engine.
const ProtectedPrefix = "KB|"

// CipherEnvelope is the canonical, versioned ciphertext record. Field order
// in its JSON form is fixed: scheme, ct, iv, nonce, mac; absent fields are
// omitted rather than emitted as null or empty string.
type CipherEnvelope struct {
	Scheme crypto.Scheme `json:"scheme"`
	CT     string        `json:"ct"`
	IV     string        `json:"iv,omitempty"`
	Nonce  string        `json:"nonce,omitempty"`
	MAC    string         `json:"mac,omitempty"`
}

// rawFieldOrder mirrors CipherEnvelope's json tags; kept as a constant list
// so CanonicalJSON can be asserted against it in tests without relying on
// encoding/json's (already stable) struct-field emission order.
var rawFieldOrder = []string{"scheme", "ct", "iv", "nonce", "mac"}

// FromPlaintextEnvelope converts a crypto.Envelope (raw bytes) into the
// base64-framed CipherEnvelope stored at rest.
func FromPlaintextEnvelope(e crypto.Envelope) CipherEnvelope {
	out := CipherEnvelope{Scheme: e.Scheme, CT: base64.StdEncoding.EncodeToString(e.CT)}
	if len(e.IV) > 0 {
		out.IV = base64.StdEncoding.EncodeToString(e.IV)
	}
	if len(e.Nonce) > 0 {
		out.Nonce = base64.StdEncoding.EncodeToString(e.Nonce)
	}
	if len(e.MAC) > 0 {
		out.MAC = base64.StdEncoding.EncodeToString(e.MAC)
	}
	return out
}

// ToPlaintextEnvelope decodes ce's base64 fields back into raw bytes,
// validating that the fields required by ce.Scheme are present.
func ToPlaintextEnvelope(ce CipherEnvelope) (crypto.Envelope, error) {
	ct, err := base64.StdEncoding.DecodeString(ce.CT)
	if err != nil {
		return crypto.Envelope{}, fmt.Errorf("%w: bad ct base64: %v", vaulterr.ErrDecryptFailed, err)
	}
	out := crypto.Envelope{Scheme: ce.Scheme, CT: ct}

	switch ce.Scheme {
	case crypto.SchemeAESGCM256, crypto.SchemeXChaCha20Poly1305:
		if ce.Nonce == "" {
			return crypto.Envelope{}, fmt.Errorf("%w: %s envelope missing nonce", vaulterr.ErrInvalidLength, ce.Scheme)
		}
		nonce, err := base64.StdEncoding.DecodeString(ce.Nonce)
		if err != nil {
			return crypto.Envelope{}, fmt.Errorf("%w: bad nonce base64: %v", vaulterr.ErrDecryptFailed, err)
		}
		out.Nonce = nonce
	case crypto.SchemeAESCBC256HMACSHA256:
		if ce.IV == "" || ce.MAC == "" {
			return crypto.Envelope{}, fmt.Errorf("%w: cbc+hmac envelope missing iv or mac", vaulterr.ErrInvalidLength)
		}
		iv, err := base64.StdEncoding.DecodeString(ce.IV)
		if err != nil {
			return crypto.Envelope{}, fmt.Errorf("%w: bad iv base64: %v", vaulterr.ErrDecryptFailed, err)
		}
		mac, err := base64.StdEncoding.DecodeString(ce.MAC)
		if err != nil {
			return crypto.Envelope{}, fmt.Errorf("%w: bad mac base64: %v", vaulterr.ErrDecryptFailed, err)
		}
		out.IV = iv
		out.MAC = mac
	default:
		return crypto.Envelope{}, fmt.Errorf("%w: %q", vaulterr.ErrUnsupportedScheme, ce.Scheme)
	}
	return out, nil
}

// CanonicalJSON serializes ce with the stable field order scheme, ct, iv,
// nonce, mac, omitting absent fields. encoding/json already emits struct
// fields in declaration order, so this is just json.Marshal, but the
// dedicated entry point keeps callers from depending on that implementation
// detail directly.
func CanonicalJSON(ce CipherEnvelope) ([]byte, error) {
	return json.Marshal(ce)
}

// ParseCanonicalJSON parses bytes produced by CanonicalJSON (or any
// compatible producer) back into a CipherEnvelope.
func ParseCanonicalJSON(data []byte) (CipherEnvelope, error) {
	var ce CipherEnvelope
	if err := json.Unmarshal(data, &ce); err != nil {
		return CipherEnvelope{}, fmt.Errorf("%w: %v", vaulterr.ErrCorruptRecord, err)
	}
	return ce, nil
}

// EncryptToEnvelope is a convenience wrapper combining crypto.Encrypt and
// FromPlaintextEnvelope.
func EncryptToEnvelope(plaintext []byte, key []byte, scheme crypto.Scheme) (CipherEnvelope, error) {
	e, err := crypto.Encrypt(plaintext, key, scheme)
	if err != nil {
		return CipherEnvelope{}, err
	}
	return FromPlaintextEnvelope(e), nil
}

// DecryptFromEnvelope is a convenience wrapper combining ToPlaintextEnvelope
// and crypto.Decrypt.
func DecryptFromEnvelope(ce CipherEnvelope, key []byte) ([]byte, error) {
	e, err := ToPlaintextEnvelope(ce)
	if err != nil {
		return nil, err
	}
	return crypto.Decrypt(e, key)
}
