package vault

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/leon6002/keybox-sub000/internal/crypto"
	"github.com/leon6002/keybox-sub000/internal/envelope"
	"github.com/leon6002/keybox-sub000/internal/vaulterr"
)

// DefaultScheme is the AEAD scheme the vault codec uses for new
// ciphertexts. XChaCha20-Poly1305 is preferred where available; callers
// deriving keys through a PBKDF2 path historically used AES-GCM-256, and
// AES-CBC+HMAC is retained only for decoding legacy envelopes (spec.md
// section 4.4).
const DefaultScheme = crypto.SchemeXChaCha20Poly1305

// EncodeCredential encrypts a CredentialRecord into an EncryptedCipher
// under userKey, per spec.md section 4.4 steps 1-5. Flat metadata is
// copied verbatim; nothing but title, the payload bundle, and notes are
// encrypted.
func EncodeCredential(record CredentialRecord, userID string, userKey []byte) (EncryptedCipher, error) {
	name, err := envelope.EncryptToEnvelope([]byte(record.Title), userKey, DefaultScheme)
	if err != nil {
		return EncryptedCipher{}, fmt.Errorf("encode title: %w", err)
	}

	payload := credentialPayload{
		Username:     record.Username,
		Password:     record.Password,
		Website:      record.Website,
		CustomFields: record.CustomFields,
		Tags:         record.Tags,
		PasswordType: defaultPasswordType,
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return EncryptedCipher{}, fmt.Errorf("marshal payload: %w", err)
	}
	data, err := envelope.EncryptToEnvelope(payloadJSON, userKey, DefaultScheme)
	if err != nil {
		return EncryptedCipher{}, fmt.Errorf("encode payload: %w", err)
	}

	var notes *envelope.CipherEnvelope
	if record.Notes != "" {
		n, err := envelope.EncryptToEnvelope([]byte(record.Notes), userKey, DefaultScheme)
		if err != nil {
			return EncryptedCipher{}, fmt.Errorf("encode notes: %w", err)
		}
		notes = &n
	}

	var folderID *string
	if record.FolderID != "" {
		folderID = &record.FolderID
	}

	return EncryptedCipher{
		ID:           record.ID,
		UserID:       userID,
		FolderID:     folderID,
		Type:         CipherTypeCredential,
		Favorite:     record.Favorite,
		Name:         name,
		Data:         data,
		Notes:        notes,
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    record.UpdatedAt,
		RevisionDate: record.UpdatedAt,
		DeletedAt:    record.DeletedAt,
	}, nil
}

// DecodeCredential reverses EncodeCredential. A failure to parse the
// decrypted JSON payload is reported as ErrCorruptRecord per spec.md
// section 4.4; the caller (typically DecryptMany) decides whether to skip
// it.
func DecodeCredential(ec EncryptedCipher, userKey []byte) (CredentialRecord, error) {
	titleBytes, err := envelope.DecryptFromEnvelope(ec.Name, userKey)
	if err != nil {
		return CredentialRecord{}, err
	}

	payloadBytes, err := envelope.DecryptFromEnvelope(ec.Data, userKey)
	if err != nil {
		return CredentialRecord{}, err
	}
	var payload credentialPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return CredentialRecord{}, fmt.Errorf("%w: %v", vaulterr.ErrCorruptRecord, err)
	}

	var notes string
	if ec.Notes != nil {
		notesBytes, err := envelope.DecryptFromEnvelope(*ec.Notes, userKey)
		if err != nil {
			return CredentialRecord{}, err
		}
		notes = string(notesBytes)
	}

	var folderID string
	if ec.FolderID != nil {
		folderID = *ec.FolderID
	}

	return CredentialRecord{
		ID:           ec.ID,
		FolderID:     folderID,
		Title:        string(titleBytes),
		Username:     payload.Username,
		Password:     payload.Password,
		Website:      payload.Website,
		Notes:        notes,
		CustomFields: payload.CustomFields,
		Tags:         payload.Tags,
		Favorite:     ec.Favorite,
		CreatedAt:    ec.CreatedAt,
		UpdatedAt:    ec.UpdatedAt,
		DeletedAt:    ec.DeletedAt,
	}, nil
}

// FieldsEqual reports whether a and b describe the same record, treating
// Notes == "" and a nil DeletedAt the same across both sides, per spec.md
// section 8's round-trip law.
func FieldsEqual(a, b CredentialRecord) bool {
	if a.ID != b.ID || a.FolderID != b.FolderID || a.Title != b.Title ||
		a.Username != b.Username || a.Password != b.Password || a.Website != b.Website ||
		a.Favorite != b.Favorite {
		return false
	}
	if a.Notes != b.Notes {
		return false
	}
	if len(a.Tags) != len(b.Tags) {
		return false
	}
	for i := range a.Tags {
		if a.Tags[i] != b.Tags[i] {
			return false
		}
	}
	if len(a.CustomFields) != len(b.CustomFields) {
		return false
	}
	for i := range a.CustomFields {
		if a.CustomFields[i].Name != b.CustomFields[i].Name || a.CustomFields[i].Kind != b.CustomFields[i].Kind ||
			a.CustomFields[i].Value != b.CustomFields[i].Value {
			return false
		}
	}
	return true
}

// EncodeFolder protects only Folder.Name, per spec.md section 4.4.
func EncodeFolder(id, name string, userKey []byte, createdAt, updatedAt time.Time) (Folder, error) {
	nameEnv, err := envelope.EncryptToEnvelope([]byte(name), userKey, DefaultScheme)
	if err != nil {
		return Folder{}, err
	}
	return Folder{ID: id, Name: nameEnv, CreatedAt: createdAt, UpdatedAt: updatedAt}, nil
}

// DecodeFolder decrypts a Folder's name.
func DecodeFolder(f Folder, userKey []byte) (string, error) {
	name, err := envelope.DecryptFromEnvelope(f.Name, userKey)
	if err != nil {
		return "", err
	}
	return string(name), nil
}

// BatchResult accumulates per-element outcomes for EncryptMany/DecryptMany,
// per spec.md section 4.4's "errors accumulate per-element without
// aborting the batch".
type BatchResult struct {
	Records []CredentialRecord
	Ciphers []EncryptedCipher
	Errors  map[string]error // keyed by input record/cipher ID
}

// EncryptMany encodes each record independently; a failure on one record is
// recorded in Errors keyed by its ID and does not stop the rest.
func EncryptMany(records []CredentialRecord, userID string, userKey []byte) BatchResult {
	result := BatchResult{Errors: make(map[string]error)}
	for _, r := range records {
		ec, err := EncodeCredential(r, userID, userKey)
		if err != nil {
			result.Errors[r.ID] = err
			continue
		}
		result.Ciphers = append(result.Ciphers, ec)
	}
	return result
}

// DecryptMany decodes each cipher independently. A cipher that fails to
// decrypt or whose payload fails to parse is skipped and recorded in
// Errors, per spec.md section 4.4 and section 7 (CorruptRecord).
func DecryptMany(ciphers []EncryptedCipher, userKey []byte) BatchResult {
	result := BatchResult{Errors: make(map[string]error)}
	for _, ec := range ciphers {
		r, err := DecodeCredential(ec, userKey)
		if err != nil {
			result.Errors[ec.ID] = err
			continue
		}
		result.Records = append(result.Records, r)
	}
	return result
}
