// Package backup implements the .kbx export/import file format described
// in spec.md section 6: a JSON document wrapping an encrypted inner
// document of ciphers and folders, integrity-checked with SHA-256.
package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/leon6002/keybox-sub000/internal/crypto"
	"github.com/leon6002/keybox-sub000/internal/envelope"
	"github.com/leon6002/keybox-sub000/internal/vault"
	"github.com/leon6002/keybox-sub000/internal/vaulterr"
)

// CurrentVersion is the .kbx format version produced by Export.
// VersionLegacy is still accepted by Import for backward compatibility,
// per spec.md section 6's explicit "possibly missing per-record keys"
// note.
const (
	CurrentVersion = "2.0"
	VersionLegacy  = "1.0"
)

// EncryptionType selects how the backup's inner document is protected.
type EncryptionType string

const (
	EncryptionUserKey  EncryptionType = "user_key"
	EncryptionPassword EncryptionType = "password"
)

// Metadata describes the backup's contents without requiring decryption.
type Metadata struct {
	TotalEntries    int    `json:"totalEntries"`
	TotalCategories int    `json:"totalCategories"`
	BackupType      string `json:"backupType"`
	VersionName     string `json:"versionName,omitempty"`
	DataHash        string `json:"dataHash"`
}

// File is the on-disk .kbx document, per spec.md section 6.
type File struct {
	Version        string                  `json:"version"`
	CreatedAt      time.Time               `json:"createdAt"`
	Application    string                  `json:"application"`
	EncryptionType EncryptionType          `json:"encryptionType"`
	KDFType        string                  `json:"kdfType,omitempty"`
	KDFIterations  int                     `json:"kdfIterations,omitempty"`
	KDFMemory      int                     `json:"kdfMemory,omitempty"`
	KDFParallelism int                     `json:"kdfParallelism,omitempty"`
	KDFSalt        string                  `json:"kdfSalt"`
	EncryptedData  envelope.CipherEnvelope `json:"encryptedData"`
	Meta           Metadata                `json:"metadata"`
}

// innerDocument is the plaintext-before-encryption payload wrapped by
// File.EncryptedData.
type innerDocument struct {
	Version    string                 `json:"version"`
	Ciphers    []vault.EncryptedCipher `json:"ciphers"`
	Categories []vault.Folder          `json:"categories"`
	ExportedAt time.Time              `json:"exportedAt"`
}

func dataHash(innerJSON []byte) string {
	sum := sha256.Sum256(innerJSON)
	return hex.EncodeToString(sum[:])
}

// Export builds a .kbx File encrypting ciphers/folders under key (either
// the live user key, for EncryptionUserKey, or a key freshly derived from
// a backup passphrase, for EncryptionPassword — the caller derives it
// and passes kdfSalt/kdfParams for inclusion in the header).
func Export(application string, encType EncryptionType, kdfType string, kdfIterations, kdfMemory, kdfParallelism int, kdfSaltB64 string, key []byte, ciphers []vault.EncryptedCipher, folders []vault.Folder) (File, error) {
	now := time.Now().UTC()
	inner := innerDocument{
		Version:    CurrentVersion,
		Ciphers:    ciphers,
		Categories: folders,
		ExportedAt: now,
	}
	innerJSON, err := json.Marshal(inner)
	if err != nil {
		return File{}, fmt.Errorf("marshal inner document: %w", err)
	}

	encrypted, err := envelope.EncryptToEnvelope(innerJSON, key, crypto.SchemeXChaCha20Poly1305)
	if err != nil {
		return File{}, fmt.Errorf("encrypt backup: %w", err)
	}

	return File{
		Version:        CurrentVersion,
		CreatedAt:      now,
		Application:    application,
		EncryptionType: encType,
		KDFType:        kdfType,
		KDFIterations:  kdfIterations,
		KDFMemory:      kdfMemory,
		KDFParallelism: kdfParallelism,
		KDFSalt:        kdfSaltB64,
		EncryptedData:  encrypted,
		Meta: Metadata{
			TotalEntries:    len(ciphers),
			TotalCategories: len(folders),
			BackupType:      "manual",
			DataHash:        dataHash(innerJSON),
		},
	}, nil
}

// ImportResult is the decrypted content of a .kbx file after a successful
// Import.
type ImportResult struct {
	Ciphers []vault.EncryptedCipher
	Folders []vault.Folder
}

// Import decrypts f.EncryptedData under key and verifies the integrity
// hash from spec.md section 6: sha256(innerJson) MUST equal
// metadata.dataHash or the import is aborted. Version "1.0" is accepted
// for legacy import with the same shape.
func Import(f File, key []byte) (ImportResult, error) {
	if f.Version != CurrentVersion && f.Version != VersionLegacy {
		return ImportResult{}, fmt.Errorf("%w: unsupported backup version %q", vaulterr.ErrUnsupportedScheme, f.Version)
	}

	innerJSON, err := envelope.DecryptFromEnvelope(f.EncryptedData, key)
	if err != nil {
		return ImportResult{}, err
	}

	if dataHash(innerJSON) != f.Meta.DataHash {
		return ImportResult{}, fmt.Errorf("%w: backup data hash mismatch", vaulterr.ErrIntegrityCheckFailed)
	}

	var inner innerDocument
	if err := json.Unmarshal(innerJSON, &inner); err != nil {
		return ImportResult{}, fmt.Errorf("%w: %v", vaulterr.ErrCorruptRecord, err)
	}

	return ImportResult{Ciphers: inner.Ciphers, Folders: inner.Categories}, nil
}
