package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/leon6002/keybox-sub000/internal/vaulterr"
)

// Scheme tags which AEAD construction a CipherEnvelope was produced with.
// Defined here (not in internal/envelope) because it is the unit both
// Encrypt/Decrypt and the envelope codec share.
type Scheme string

const (
	SchemeAESGCM256      Scheme = "AES-GCM-256"
	SchemeXChaCha20Poly1305 Scheme = "XChaCha20-Poly1305"
	SchemeAESCBC256HMACSHA256 Scheme = "AES-CBC-256-HMAC-SHA256"
)

const (
	gcmNonceSize    = 12
	xchachaNonceSize = 24
	cbcIVSize       = 16
	gcmTagSize      = 16
)

// Envelope is the decrypted-side view of a ciphertext: scheme plus the raw
// byte fields a CipherEnvelope carries. internal/envelope owns JSON framing;
// this package only needs the bytes.
type Envelope struct {
	Scheme Scheme
	CT     []byte
	IV     []byte // used by AES-CBC+HMAC
	Nonce  []byte // used by AES-GCM and XChaCha20-Poly1305
	MAC    []byte // used by AES-CBC+HMAC
}

// Encrypt encrypts plaintext under key using scheme, producing an Envelope.
// AES-CBC-256+HMAC-SHA256 requires a 64-byte key (32 encryption + 32 MAC);
// all other schemes require a 32-byte key.
func Encrypt(plaintext []byte, key []byte, scheme Scheme) (Envelope, error) {
	switch scheme {
	case SchemeAESGCM256:
		return encryptGCM(plaintext, key)
	case SchemeXChaCha20Poly1305:
		return encryptXChaCha(plaintext, key)
	case SchemeAESCBC256HMACSHA256:
		return encryptCBCHMAC(plaintext, key)
	default:
		return Envelope{}, fmt.Errorf("%w: %q", vaulterr.ErrUnsupportedScheme, scheme)
	}
}

// Decrypt decrypts env under key. It never attempts to decrypt under a
// scheme other than env.Scheme.
func Decrypt(env Envelope, key []byte) ([]byte, error) {
	switch env.Scheme {
	case SchemeAESGCM256:
		return decryptGCM(env, key)
	case SchemeXChaCha20Poly1305:
		return decryptXChaCha(env, key)
	case SchemeAESCBC256HMACSHA256:
		return decryptCBCHMAC(env, key)
	default:
		return nil, fmt.Errorf("%w: %q", vaulterr.ErrUnsupportedScheme, env.Scheme)
	}
}

func encryptGCM(plaintext, key []byte) (Envelope, error) {
	if len(key) != KeySize32 {
		return Envelope{}, fmt.Errorf("%w: aes-gcm-256 requires a %d-byte key, got %d", vaulterr.ErrInvalidLength, KeySize32, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return Envelope{}, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return Envelope{}, err
	}
	nonce, err := Random(gcmNonceSize)
	if err != nil {
		return Envelope{}, err
	}
	ct := gcm.Seal(nil, nonce, plaintext, nil)
	return Envelope{Scheme: SchemeAESGCM256, CT: ct, Nonce: nonce}, nil
}

func decryptGCM(env Envelope, key []byte) ([]byte, error) {
	if len(key) != KeySize32 {
		return nil, fmt.Errorf("%w: aes-gcm-256 requires a %d-byte key, got %d", vaulterr.ErrInvalidLength, KeySize32, len(key))
	}
	if len(env.Nonce) != gcmNonceSize {
		return nil, fmt.Errorf("%w: aes-gcm-256 nonce must be %d bytes", vaulterr.ErrInvalidLength, gcmNonceSize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	pt, err := gcm.Open(nil, env.Nonce, env.CT, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vaulterr.ErrDecryptFailed, err)
	}
	return pt, nil
}

func encryptXChaCha(plaintext, key []byte) (Envelope, error) {
	if len(key) != KeySize32 {
		return Envelope{}, fmt.Errorf("%w: xchacha20-poly1305 requires a %d-byte key, got %d", vaulterr.ErrInvalidLength, KeySize32, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return Envelope{}, err
	}
	nonce, err := Random(xchachaNonceSize)
	if err != nil {
		return Envelope{}, err
	}
	ct := aead.Seal(nil, nonce, plaintext, nil)
	return Envelope{Scheme: SchemeXChaCha20Poly1305, CT: ct, Nonce: nonce}, nil
}

func decryptXChaCha(env Envelope, key []byte) ([]byte, error) {
	if len(key) != KeySize32 {
		return nil, fmt.Errorf("%w: xchacha20-poly1305 requires a %d-byte key, got %d", vaulterr.ErrInvalidLength, KeySize32, len(key))
	}
	if len(env.Nonce) != xchachaNonceSize {
		return nil, fmt.Errorf("%w: xchacha20-poly1305 nonce must be %d bytes", vaulterr.ErrInvalidLength, xchachaNonceSize)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, env.Nonce, env.CT, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vaulterr.ErrDecryptFailed, err)
	}
	return pt, nil
}

// encryptCBCHMAC implements AES-256-CBC with PKCS#7 padding and an
// encrypt-then-MAC construction: HMAC-SHA-256 is computed over IV||ciphertext
// using the second half of the 64-byte key. Per spec.md section 9's open
// question, this scheme is only reachable when the caller supplies an
// explicit 64-byte key; a 32-byte key is refused with ErrInvalidLength
// rather than silently splitting it.
func encryptCBCHMAC(plaintext, key []byte) (Envelope, error) {
	if len(key) != KeySize64 {
		return Envelope{}, fmt.Errorf("%w: aes-cbc-256-hmac-sha256 requires a %d-byte key, got %d", vaulterr.ErrInvalidLength, KeySize64, len(key))
	}
	encKey, macKey := key[:32], key[32:]

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return Envelope{}, err
	}
	iv, err := Random(cbcIVSize)
	if err != nil {
		return Envelope{}, err
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ct := make([]byte, len(padded))
	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(ct, padded)

	mac := hmac.New(sha256.New, macKey)
	mac.Write(iv)
	mac.Write(ct)
	tag := mac.Sum(nil)

	return Envelope{Scheme: SchemeAESCBC256HMACSHA256, CT: ct, IV: iv, MAC: tag}, nil
}

// decryptCBCHMAC verifies the MAC before touching the ciphertext, and
// reports authentication failure without distinguishing it from a padding
// failure, so no timing or error-content oracle leaks which check failed.
func decryptCBCHMAC(env Envelope, key []byte) ([]byte, error) {
	if len(key) != KeySize64 {
		return nil, fmt.Errorf("%w: aes-cbc-256-hmac-sha256 requires a %d-byte key, got %d", vaulterr.ErrInvalidLength, KeySize64, len(key))
	}
	if len(env.IV) != cbcIVSize {
		return nil, fmt.Errorf("%w: aes-cbc iv must be %d bytes", vaulterr.ErrInvalidLength, cbcIVSize)
	}
	if len(env.CT) == 0 || len(env.CT)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext is not a multiple of the block size", vaulterr.ErrMacMismatch)
	}
	encKey, macKey := key[:32], key[32:]

	mac := hmac.New(sha256.New, macKey)
	mac.Write(env.IV)
	mac.Write(env.CT)
	expected := mac.Sum(nil)
	if !ConstantTimeEqual(expected, env.MAC) {
		return nil, vaulterr.ErrMacMismatch
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, err
	}
	padded := make([]byte, len(env.CT))
	mode := cipher.NewCBCDecrypter(block, env.IV)
	mode.CryptBlocks(padded, env.CT)

	pt, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		// A padding failure after a verified MAC should not happen on a
		// well-formed envelope; still reported as MacMismatch so no
		// distinct error path exists for an attacker to probe.
		return nil, vaulterr.ErrMacMismatch
	}
	return pt, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return data[:len(data)-padLen], nil
}
