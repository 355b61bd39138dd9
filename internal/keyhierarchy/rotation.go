package keyhierarchy

import (
	"github.com/leon6002/keybox-sub000/internal/crypto"
	"github.com/leon6002/keybox-sub000/internal/envelope"
	"github.com/leon6002/keybox-sub000/internal/vaulterr"
)

// RotatePassphrase unlocks with oldPassphrase, derives a fresh master key
// from newPassphrase with a new salt, and rewraps the existing user key
// under the new master key. The user key itself is never rotated by this
// operation, per spec.md section 4.3. The caller's live session, if any,
// is left untouched; call Unlock again against the returned PersistedUser
// to obtain a session bound to the new passphrase.
func RotatePassphrase(oldPassphrase, newPassphrase string, user PersistedUser, newKDF crypto.KDFParams) (PersistedUser, error) {
	session, err := Unlock(oldPassphrase, user)
	if err != nil {
		return PersistedUser{}, err
	}
	defer session.Lock()

	newSalt, err := crypto.RandomSalt()
	if err != nil {
		return PersistedUser{}, err
	}
	newMasterKey, err := crypto.DeriveKey(newPassphrase, newSalt, newKDF)
	if err != nil {
		return PersistedUser{}, err
	}
	defer crypto.Zeroize(newMasterKey)

	newWrapped, err := wrapUserKey(session.userKey, newMasterKey)
	if err != nil {
		return PersistedUser{}, err
	}

	updated := user
	updated.KDF = newKDF
	updated.KDFSalt = newSalt
	updated.AuthHash = crypto.HashPassphrase(newPassphrase, newSalt)
	updated.WrappedUserKey = newWrapped
	return updated, nil
}

// RotateUserKeyResult carries the newly generated user key (still held
// live by the session that performed the rotation), that key wrapped
// under the session's master key for persistence, and the set of
// per-record keys re-wrapped under it.
type RotateUserKeyResult struct {
	WrappedUserKey envelope.CipherEnvelope
	RewrappedKeys  map[string]envelope.CipherEnvelope
}

// RotateUserKey generates a new random user key for session, re-wraps every
// entry in oldWrappedRecordKeys (each was wrapped under the session's prior
// user key) under the new one, and installs the new user key into the
// session. The session must be Unlocked.
func RotateUserKey(session *Session, oldWrappedRecordKeys map[string]envelope.CipherEnvelope) (RotateUserKeyResult, error) {
	session.keysMu.Lock()
	if session.state != Unlocked {
		session.keysMu.Unlock()
		return RotateUserKeyResult{}, vaulterr.ErrVaultLocked
	}
	oldUserKey := session.userKey
	session.keysMu.Unlock()

	newUserKey, err := crypto.RandomKey()
	if err != nil {
		return RotateUserKeyResult{}, err
	}

	rewrapped := make(map[string]envelope.CipherEnvelope, len(oldWrappedRecordKeys))
	for recordID, wrapped := range oldWrappedRecordKeys {
		plain, err := envelope.DecryptFromEnvelope(wrapped, oldUserKey)
		if err != nil {
			crypto.Zeroize(newUserKey)
			return RotateUserKeyResult{}, err
		}
		rewrappedEnv, err := envelope.EncryptToEnvelope(plain, newUserKey, crypto.SchemeXChaCha20Poly1305)
		crypto.Zeroize(plain)
		if err != nil {
			crypto.Zeroize(newUserKey)
			return RotateUserKeyResult{}, err
		}
		rewrapped[recordID] = rewrappedEnv
	}

	session.keysMu.Lock()
	if session.userKey != nil {
		crypto.Zeroize(session.userKey)
	}
	session.userKey = newUserKey
	wrapped, err := wrapUserKey(newUserKey, session.masterKey)
	session.keysMu.Unlock()
	if err != nil {
		return RotateUserKeyResult{}, err
	}

	return RotateUserKeyResult{WrappedUserKey: wrapped, RewrappedKeys: rewrapped}, nil
}
