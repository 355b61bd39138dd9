package envelope

import (
	"strings"

	"github.com/leon6002/keybox-sub000/internal/crypto"
)

// ProtectionKeyLookup resolves the protection key for a purpose tag. It is
// satisfied by *keyhierarchy.Session; defined here as a narrow interface so
// internal/envelope does not import internal/keyhierarchy.
type ProtectionKeyLookup interface {
	ProtectionKey(purpose string) ([]byte, error)
}

// DefaultScheme is used by Protect for all new protected fields.
const DefaultScheme = crypto.SchemeXChaCha20Poly1305

// IsProtected reports whether s already carries the "KB|" protected-field
// prefix.
func IsProtected(s string) bool {
	return strings.HasPrefix(s, ProtectedPrefix)
}

// Protect encrypts s under the protection key for purpose and returns
// "KB|" + canonical_json(envelope). If s is already protected, Protect is a
// no-op and returns s unchanged (idempotence law in spec.md section 4.2).
func Protect(s string, purpose string, keys ProtectionKeyLookup) (string, error) {
	if IsProtected(s) {
		return s, nil
	}
	key, err := keys.ProtectionKey(purpose)
	if err != nil {
		return "", err
	}
	ce, err := EncryptToEnvelope([]byte(s), key, DefaultScheme)
	if err != nil {
		return "", err
	}
	raw, err := CanonicalJSON(ce)
	if err != nil {
		return "", err
	}
	return ProtectedPrefix + string(raw), nil
}

// Unprotect reverses Protect. If s is not protected, it is returned
// unchanged (round-trip law in spec.md section 4.2).
func Unprotect(s string, purpose string, keys ProtectionKeyLookup) (string, error) {
	if !IsProtected(s) {
		return s, nil
	}
	key, err := keys.ProtectionKey(purpose)
	if err != nil {
		return "", err
	}
	raw := strings.TrimPrefix(s, ProtectedPrefix)
	ce, err := ParseCanonicalJSON([]byte(raw))
	if err != nil {
		return "", err
	}
	pt, err := DecryptFromEnvelope(ce, key)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}
