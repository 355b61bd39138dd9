package backup

import (
	"testing"

	"github.com/leon6002/keybox-sub000/internal/crypto"
	"github.com/leon6002/keybox-sub000/internal/vault"
)

func TestExportImportRoundTrip(t *testing.T) {
	userKey, err := crypto.RandomKey()
	if err != nil {
		t.Fatalf("RandomKey: %v", err)
	}

	ec, err := vault.EncodeCredential(vault.CredentialRecord{ID: "rec-1", Title: "Gmail"}, "user-1", userKey)
	if err != nil {
		t.Fatalf("EncodeCredential: %v", err)
	}

	file, err := Export("keybox", EncryptionUserKey, "", 0, 0, 0, "", userKey, []vault.EncryptedCipher{ec}, nil)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if file.Meta.TotalEntries != 1 {
		t.Fatalf("expected TotalEntries=1, got %d", file.Meta.TotalEntries)
	}

	result, err := Import(file, userKey)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(result.Ciphers) != 1 || result.Ciphers[0].ID != "rec-1" {
		t.Fatalf("expected the exported cipher to round trip, got %+v", result)
	}
}

func TestImportRejectsTamperedHash(t *testing.T) {
	userKey, _ := crypto.RandomKey()
	file, err := Export("keybox", EncryptionUserKey, "", 0, 0, 0, "", userKey, nil, nil)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	file.Meta.DataHash = "0000000000000000000000000000000000000000000000000000000000000000"

	if _, err := Import(file, userKey); err == nil {
		t.Fatalf("expected a tampered data hash to fail import")
	}
}

func TestImportRejectsUnsupportedVersion(t *testing.T) {
	userKey, _ := crypto.RandomKey()
	file, err := Export("keybox", EncryptionUserKey, "", 0, 0, 0, "", userKey, nil, nil)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	file.Version = "3.0"

	if _, err := Import(file, userKey); err == nil {
		t.Fatalf("expected an unsupported version to fail import")
	}
}
