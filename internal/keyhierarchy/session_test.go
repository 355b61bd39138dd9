package keyhierarchy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leon6002/keybox-sub000/internal/crypto"
	"github.com/leon6002/keybox-sub000/internal/envelope"
	"github.com/leon6002/keybox-sub000/internal/vaulterr"
)

func TestCreateAccountAndUnlockRoundTrip(t *testing.T) {
	persisted, session, err := CreateAccount("Corr3ct!HorseBattery#2024", crypto.DefaultKDFParams())
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if session.State() != Unlocked {
		t.Fatalf("expected Unlocked, got %v", session.State())
	}
	userKey, err := session.GetUserKey()
	if err != nil {
		t.Fatalf("GetUserKey: %v", err)
	}
	if len(userKey) != 32 {
		t.Fatalf("expected 32-byte user key, got %d", len(userKey))
	}
	session.Lock()

	unlocked, err := Unlock("Corr3ct!HorseBattery#2024", persisted)
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if unlocked.State() != Unlocked {
		t.Fatalf("expected Unlocked after correct unlock")
	}
	gotUserKey, err := unlocked.GetUserKey()
	if err != nil {
		t.Fatalf("GetUserKey: %v", err)
	}
	if string(gotUserKey) != string(userKey) {
		t.Fatalf("unlocked user key should match the one generated at account creation")
	}
}

func TestUnlockWrongPassphrase(t *testing.T) {
	persisted, session, err := CreateAccount("Corr3ct!HorseBattery#2024", crypto.DefaultKDFParams())
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	session.Lock()

	s, err := Unlock("wrong", persisted)
	if !errors.Is(err, vaulterr.ErrWrongPassphrase) {
		t.Fatalf("expected ErrWrongPassphrase, got %v", err)
	}
	if s != nil {
		t.Fatalf("expected nil session on failed unlock")
	}
}

func TestLockedSessionRefusesUserKeyAndProtectionKey(t *testing.T) {
	session := NewSession()
	if _, err := session.GetUserKey(); !errors.Is(err, vaulterr.ErrVaultLocked) {
		t.Fatalf("expected ErrVaultLocked from GetUserKey, got %v", err)
	}
	if _, err := session.ProtectionKey(PurposeCipherData); !errors.Is(err, vaulterr.ErrVaultLocked) {
		t.Fatalf("expected ErrVaultLocked from ProtectionKey, got %v", err)
	}
}

func TestProtectionKeyCachedAndStablePerPurpose(t *testing.T) {
	_, session, err := CreateAccount("Corr3ct!HorseBattery#2024", crypto.DefaultKDFParams())
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	k1, err := session.ProtectionKey(PurposeCipherData)
	if err != nil {
		t.Fatalf("ProtectionKey: %v", err)
	}
	k2, err := session.ProtectionKey(PurposeCipherData)
	if err != nil {
		t.Fatalf("ProtectionKey: %v", err)
	}
	if string(k1) != string(k2) {
		t.Fatalf("protection key for the same purpose must be stable within a session")
	}
	k3, err := session.ProtectionKey(PurposeFolderData)
	if err != nil {
		t.Fatalf("ProtectionKey: %v", err)
	}
	if string(k1) == string(k3) {
		t.Fatalf("protection keys for different purposes must differ")
	}
}

func TestLockZeroizesKeyMaterial(t *testing.T) {
	_, session, err := CreateAccount("Corr3ct!HorseBattery#2024", crypto.DefaultKDFParams())
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if _, err := session.ProtectionKey(PurposeCipherData); err != nil {
		t.Fatalf("ProtectionKey: %v", err)
	}
	session.Lock()
	if session.masterKey != nil || session.userKey != nil {
		t.Fatalf("expected key material to be released on Lock")
	}
	if len(session.protKeys) != 0 {
		t.Fatalf("expected protection key cache to be cleared on Lock")
	}
	if session.State() != Locked {
		t.Fatalf("expected Locked state after Lock")
	}
}

func TestRotatePassphraseKeepsUserKey(t *testing.T) {
	persisted, session, err := CreateAccount("Corr3ct!HorseBattery#2024", crypto.DefaultKDFParams())
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	originalUserKey, _ := session.GetUserKey()
	originalUserKeyCopy := append([]byte{}, originalUserKey...)
	session.Lock()

	rotated, err := RotatePassphrase("Corr3ct!HorseBattery#2024", "N3wPassphrase!2024", persisted, crypto.DefaultKDFParams())
	if err != nil {
		t.Fatalf("RotatePassphrase: %v", err)
	}

	newSession, err := Unlock("N3wPassphrase!2024", rotated)
	if err != nil {
		t.Fatalf("Unlock with new passphrase: %v", err)
	}
	newUserKey, err := newSession.GetUserKey()
	if err != nil {
		t.Fatalf("GetUserKey: %v", err)
	}
	if string(newUserKey) != string(originalUserKeyCopy) {
		t.Fatalf("rotate_passphrase must not change the user key")
	}

	if _, err := Unlock("Corr3ct!HorseBattery#2024", rotated); !errors.Is(err, vaulterr.ErrWrongPassphrase) {
		t.Fatalf("old passphrase should no longer unlock after rotation")
	}
}

func TestRotateUserKeyRewrapsRecordKeys(t *testing.T) {
	_, session, err := CreateAccount("Corr3ct!HorseBattery#2024", crypto.DefaultKDFParams())
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	oldUserKey, _ := session.GetUserKey()
	oldUserKeyCopy := append([]byte{}, oldUserKey...)

	recordKey, err := crypto.RandomKey()
	if err != nil {
		t.Fatalf("RandomKey: %v", err)
	}
	wrapped, err := envelope.EncryptToEnvelope(recordKey, oldUserKeyCopy, crypto.SchemeXChaCha20Poly1305)
	if err != nil {
		t.Fatalf("EncryptToEnvelope: %v", err)
	}

	result, err := RotateUserKey(session, map[string]envelope.CipherEnvelope{"rec-1": wrapped})
	if err != nil {
		t.Fatalf("RotateUserKey: %v", err)
	}

	newUserKey, err := session.GetUserKey()
	if err != nil {
		t.Fatalf("GetUserKey: %v", err)
	}
	if string(newUserKey) == string(oldUserKeyCopy) {
		t.Fatalf("expected a new user key after rotation")
	}

	rewrapped, ok := result.RewrappedKeys["rec-1"]
	if !ok {
		t.Fatalf("expected rec-1 to be rewrapped")
	}
	decrypted, err := envelope.DecryptFromEnvelope(rewrapped, newUserKey)
	if err != nil {
		t.Fatalf("decrypt rewrapped record key: %v", err)
	}
	if string(decrypted) != string(recordKey) {
		t.Fatalf("rewrapped record key must decrypt to the original record key")
	}
}

func TestIdleTimerExpiresSession(t *testing.T) {
	_, session, err := CreateAccount("Corr3ct!HorseBattery#2024", crypto.DefaultKDFParams())
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	timer := NewIdleTimer(session, 10*time.Millisecond)
	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		timer.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if session.State() != Expired {
		t.Fatalf("expected session to expire after idle timeout, got %v", session.State())
	}
	cancel()
	<-done
	if session.State() != Locked {
		t.Fatalf("expected session to be locked after timer context cancellation")
	}
}
