// Package keyhierarchy implements the master key / user key / protection
// key hierarchy and the Session state machine described in spec.md
// sections 3, 4.3, and 4.9. A Session is the single handle that owns all
// live key material; there is no package-level singleton.
package keyhierarchy

import (
	"fmt"
	"sync"

	"golang.org/x/crypto/hkdf"

	"crypto/sha256"
	"io"

	"github.com/leon6002/keybox-sub000/internal/crypto"
	"github.com/leon6002/keybox-sub000/internal/envelope"
	"github.com/leon6002/keybox-sub000/internal/vaulterr"
)

// State is one of the Session lifecycle states in spec.md section 4.3.
type State int

const (
	Locked State = iota
	Unlocking
	Unlocked
	Expired
)

func (s State) String() string {
	switch s {
	case Locked:
		return "locked"
	case Unlocking:
		return "unlocking"
	case Unlocked:
		return "unlocked"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// hkdfSalt is the 32 zero bytes HKDF-SHA-256 uses to derive every
// protection key, per spec.md section 4.3.
var hkdfSalt = make([]byte, 32)

// PersistedUser is the opaque, forward-compatible record stored on the
// server, mirroring spec.md section 6's "Persisted user record".
type PersistedUser struct {
	ID             string
	Email          string
	Name           string
	KDF            crypto.KDFParams
	KDFSalt        []byte
	AuthHash       []byte
	WrappedUserKey envelope.CipherEnvelope
}

// Session owns the live MasterKey and UserKey for the duration of one
// unlocked period, plus a lazily-populated, purpose-keyed cache of
// protection keys. It implements envelope.ProtectionKeyLookup.
type Session struct {
	state State // guarded by keysMu

	keysMu sync.Mutex

	masterKey []byte
	userKey   []byte
	protKeys  map[string][]byte
}

// NewSession returns a Session in the Locked state, owning no key material.
func NewSession() *Session {
	return &Session{state: Locked, protKeys: make(map[string][]byte)}
}

// State reports the session's current lifecycle state.
func (s *Session) State() State {
	s.keysMu.Lock()
	defer s.keysMu.Unlock()
	return s.state
}

// CreateAccount generates a new salt, derives a master key from passphrase,
// computes the authentication hash, generates a random user key, wraps it
// under the master key, and returns both the fields to persist and a live
// Session holding the unlocked key material.
func CreateAccount(passphrase string, kdf crypto.KDFParams) (PersistedUser, *Session, error) {
	salt, err := crypto.RandomSalt()
	if err != nil {
		return PersistedUser{}, nil, err
	}
	masterKey, err := crypto.DeriveKey(passphrase, salt, kdf)
	if err != nil {
		return PersistedUser{}, nil, err
	}
	authHash := crypto.HashPassphrase(passphrase, salt)

	userKey, err := crypto.RandomKey()
	if err != nil {
		crypto.Zeroize(masterKey)
		return PersistedUser{}, nil, err
	}

	wrapped, err := wrapUserKey(userKey, masterKey)
	if err != nil {
		crypto.Zeroize(masterKey)
		crypto.Zeroize(userKey)
		return PersistedUser{}, nil, err
	}

	persisted := PersistedUser{
		KDF:            kdf,
		KDFSalt:        salt,
		AuthHash:       authHash,
		WrappedUserKey: wrapped,
	}

	session := &Session{
		state:     Unlocked,
		masterKey: masterKey,
		userKey:   userKey,
		protKeys:  make(map[string][]byte),
	}
	return persisted, session, nil
}

// Unlock re-derives the master key from passphrase using the stored KDF
// parameters, verifies it against the stored authentication hash in
// constant time, and on success unwraps the user key. On any failure the
// session returned is Locked and any partially-derived key material has
// already been zeroized; the caller never learns which check failed.
func Unlock(passphrase string, user PersistedUser) (*Session, error) {
	s := &Session{state: Unlocking, protKeys: make(map[string][]byte)}

	masterKey, err := crypto.DeriveKey(passphrase, user.KDFSalt, user.KDF)
	if err != nil {
		s.state = Locked
		return nil, err
	}

	expectedHash := crypto.HashPassphrase(passphrase, user.KDFSalt)
	hashOK := crypto.ConstantTimeEqual(expectedHash, user.AuthHash)

	userKey, unwrapErr := unwrapUserKey(user.WrappedUserKey, masterKey)

	if !hashOK || unwrapErr != nil {
		crypto.Zeroize(masterKey)
		if userKey != nil {
			crypto.Zeroize(userKey)
		}
		s.state = Locked
		return nil, vaulterr.ErrWrongPassphrase
	}

	s.masterKey = masterKey
	s.userKey = userKey
	s.state = Unlocked
	return s, nil
}

// Lock zeroizes the master key, user key, and every cached protection key,
// and transitions the session to Locked.
func (s *Session) Lock() {
	s.keysMu.Lock()
	defer s.keysMu.Unlock()
	s.zeroizeLocked()
	s.state = Locked
}

// Expire transitions an Unlocked session to Expired after an idle timeout
// and zeroizes key material exactly as Lock does; a subsequent call to Lock
// is still required to reach the terminal Locked state but GetUserKey
// already refuses to return key material once Expired.
func (s *Session) Expire() {
	s.keysMu.Lock()
	defer s.keysMu.Unlock()
	s.zeroizeLocked()
	s.state = Expired
}

func (s *Session) zeroizeLocked() {
	if s.masterKey != nil {
		crypto.Zeroize(s.masterKey)
		s.masterKey = nil
	}
	if s.userKey != nil {
		crypto.Zeroize(s.userKey)
		s.userKey = nil
	}
	for purpose, key := range s.protKeys {
		crypto.Zeroize(key)
		delete(s.protKeys, purpose)
	}
}

// GetUserKey returns a borrowed reference to the live user key, or
// ErrVaultLocked if the session is not Unlocked. Callers MUST NOT retain
// the returned slice across a suspension point (spec.md section 5).
func (s *Session) GetUserKey() ([]byte, error) {
	s.keysMu.Lock()
	defer s.keysMu.Unlock()
	if s.state != Unlocked {
		return nil, vaulterr.ErrVaultLocked
	}
	return s.userKey, nil
}

// ProtectionKey returns the protection key for purpose, deriving and
// caching it on first use via HKDF-SHA-256 with a zero salt and the
// purpose string as info, per spec.md section 4.3. Implements
// envelope.ProtectionKeyLookup.
func (s *Session) ProtectionKey(purpose string) ([]byte, error) {
	s.keysMu.Lock()
	defer s.keysMu.Unlock()
	if s.state != Unlocked {
		return nil, vaulterr.ErrVaultLocked
	}
	if key, ok := s.protKeys[purpose]; ok {
		return key, nil
	}
	key, err := deriveProtectionKey(s.masterKey, purpose)
	if err != nil {
		return nil, err
	}
	s.protKeys[purpose] = key
	return key, nil
}

func deriveProtectionKey(masterKey []byte, purpose string) ([]byte, error) {
	reader := hkdf.New(sha256.New, masterKey, hkdfSalt, []byte(purpose))
	key := make([]byte, crypto.KeySize32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive protection key for %q: %w", purpose, err)
	}
	return key, nil
}

func wrapUserKey(userKey, masterKey []byte) (envelope.CipherEnvelope, error) {
	return envelope.EncryptToEnvelope(userKey, masterKey, crypto.SchemeXChaCha20Poly1305)
}

func unwrapUserKey(wrapped envelope.CipherEnvelope, masterKey []byte) ([]byte, error) {
	return envelope.DecryptFromEnvelope(wrapped, masterKey)
}
