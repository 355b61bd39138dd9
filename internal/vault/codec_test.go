package vault

import (
	"testing"
	"time"

	"github.com/leon6002/keybox-sub000/internal/crypto"
)

func TestEncodeDecodeCredentialRoundTrip(t *testing.T) {
	userKey, err := crypto.RandomKey()
	if err != nil {
		t.Fatalf("RandomKey: %v", err)
	}
	record := CredentialRecord{
		ID:           "00000000-0000-4000-8000-000000000009",
		Title:        "Gmail",
		Username:     "alice",
		Password:     "S3cret!",
		Website:      "https://mail.google.com",
		Notes:        "",
		CustomFields: nil,
		Tags:         []string{"work"},
		Favorite:     true,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	ec, err := EncodeCredential(record, "user-1", userKey)
	if err != nil {
		t.Fatalf("EncodeCredential: %v", err)
	}
	decoded, err := DecodeCredential(ec, userKey)
	if err != nil {
		t.Fatalf("DecodeCredential: %v", err)
	}
	if !FieldsEqual(record, decoded) {
		t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", decoded, record)
	}
}

func TestEmptyNotesEqualsNilNotes(t *testing.T) {
	userKey, _ := crypto.RandomKey()
	withEmpty := CredentialRecord{ID: "1", Title: "t", Notes: ""}
	ec, err := EncodeCredential(withEmpty, "user-1", userKey)
	if err != nil {
		t.Fatalf("EncodeCredential: %v", err)
	}
	if ec.Notes != nil {
		t.Fatalf("expected no Notes envelope for an empty notes field")
	}
	decoded, err := DecodeCredential(ec, userKey)
	if err != nil {
		t.Fatalf("DecodeCredential: %v", err)
	}
	if decoded.Notes != "" {
		t.Fatalf("expected empty notes on decode")
	}
}

func TestCustomFieldsRoundTripAndExtensionPreserved(t *testing.T) {
	userKey, _ := crypto.RandomKey()
	record := CredentialRecord{
		ID:    "1",
		Title: "t",
		CustomFields: []CustomField{
			{Name: "PIN", Kind: CustomFieldHidden, Value: "1234"},
			{Name: "is2FA", Kind: CustomFieldBoolean, Bool: true},
		},
	}
	ec, err := EncodeCredential(record, "user-1", userKey)
	if err != nil {
		t.Fatalf("EncodeCredential: %v", err)
	}
	decoded, err := DecodeCredential(ec, userKey)
	if err != nil {
		t.Fatalf("DecodeCredential: %v", err)
	}
	if len(decoded.CustomFields) != 2 {
		t.Fatalf("expected 2 custom fields, got %d", len(decoded.CustomFields))
	}
	if decoded.CustomFields[0].Value != "1234" || decoded.CustomFields[1].Bool != true {
		t.Fatalf("custom field values did not round trip: %+v", decoded.CustomFields)
	}
}

func TestDecodeCredentialCorruptPayloadIsReportedNotFatal(t *testing.T) {
	userKey, _ := crypto.RandomKey()
	wrongKey, _ := crypto.RandomKey()
	record := CredentialRecord{ID: "1", Title: "t"}
	ec, err := EncodeCredential(record, "user-1", userKey)
	if err != nil {
		t.Fatalf("EncodeCredential: %v", err)
	}

	batch := DecryptMany([]EncryptedCipher{ec}, wrongKey)
	if len(batch.Records) != 0 {
		t.Fatalf("expected no decrypted records with the wrong key")
	}
	if len(batch.Errors) != 1 {
		t.Fatalf("expected exactly one accumulated error, got %d", len(batch.Errors))
	}
}

func TestEncryptManyDecryptManyAccumulatePerElementErrors(t *testing.T) {
	userKey, _ := crypto.RandomKey()
	records := []CredentialRecord{
		{ID: "a", Title: "A"},
		{ID: "b", Title: "B"},
		{ID: "c", Title: "C"},
	}
	batch := EncryptMany(records, "user-1", userKey)
	if len(batch.Errors) != 0 || len(batch.Ciphers) != 3 {
		t.Fatalf("expected 3 ciphers with no errors, got %d ciphers, %d errors", len(batch.Ciphers), len(batch.Errors))
	}

	// Corrupt the second cipher's Data envelope so decode fails for it.
	batch.Ciphers[1].Data.CT = "not-base64!!"
	decoded := DecryptMany(batch.Ciphers, userKey)
	if len(decoded.Records) != 2 {
		t.Fatalf("expected 2 successfully decoded records, got %d", len(decoded.Records))
	}
	if _, ok := decoded.Errors["b"]; !ok {
		t.Fatalf("expected an accumulated error for record b")
	}
}

func TestFolderEncodeDecode(t *testing.T) {
	userKey, _ := crypto.RandomKey()
	now := time.Now().UTC()
	f, err := EncodeFolder("folder-1", "Personal", userKey, now, now)
	if err != nil {
		t.Fatalf("EncodeFolder: %v", err)
	}
	name, err := DecodeFolder(f, userKey)
	if err != nil {
		t.Fatalf("DecodeFolder: %v", err)
	}
	if name != "Personal" {
		t.Fatalf("expected Personal, got %q", name)
	}
}

func TestIsCommonFolder(t *testing.T) {
	if !IsCommonFolder(CommonFolderIDs[0]) {
		t.Fatalf("expected first common folder id to be recognized")
	}
	if IsCommonFolder("not-a-common-folder") {
		t.Fatalf("expected arbitrary id to not be a common folder")
	}
}
