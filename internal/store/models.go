// Package store implements the durable side of the engine: GORM-backed
// tables for persisted users, encrypted ciphers, folders, the pending
// operations queue, and the encrypted response cache, plus the optimistic
// local store layered over them.
package store

import (
	"time"

	"gorm.io/gorm"
)

// PersistedUser is the opaque, forward-compatible user record from
// spec.md section 6. The server never sees a passphrase or an unwrapped
// key; every field here is safe to hand back to the client verbatim.
type PersistedUser struct {
	ID                string `gorm:"primaryKey"`
	Email             string `gorm:"uniqueIndex"`
	Name              string
	KDFType           string
	KDFIterations     int
	KDFMemoryKiB      int
	KDFParallelism    int
	KDFSaltB64        string
	AuthHashB64       string
	WrappedUserKeyJSON string `gorm:"type:text"`
	PassphraseHint    string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// EncryptedCipherRow is the persisted form of vault.EncryptedCipher. The
// encrypted envelopes are stored as their canonical JSON text; only the
// flat metadata named in spec.md section 3 is kept unencrypted.
type EncryptedCipherRow struct {
	ID           string `gorm:"primaryKey"`
	UserID       string `gorm:"index"`
	FolderID     *string
	Type         int
	Favorite     bool
	Reprompt     bool
	NameJSON     string `gorm:"type:text"`
	DataJSON     string `gorm:"type:text"`
	NotesJSON    *string
	KeyJSON      *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	RevisionDate time.Time
	DeletedAt    *time.Time
}

// FolderRow is the persisted form of vault.Folder.
type FolderRow struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"index"`
	NameJSON  string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OperationKind enumerates PendingOperation.Kind, per spec.md section 3.
type OperationKind string

const (
	OpCreate OperationKind = "create"
	OpUpdate OperationKind = "update"
	OpDelete OperationKind = "delete"
)

// OperationStatus enumerates PendingOperation.Status, per spec.md
// section 4.6's state machine.
type OperationStatus string

const (
	StatusPending OperationStatus = "pending"
	StatusSyncing OperationStatus = "syncing"
	StatusSynced  OperationStatus = "synced"
	StatusFailed  OperationStatus = "failed"
)

// PendingOperation is a durable row of the sync queue, per spec.md
// section 3 and section 4.6. It references the already-encrypted local
// record rather than holding a fresh copy of it.
type PendingOperation struct {
	ID             string `gorm:"primaryKey"`
	Kind           OperationKind
	RecordID       string `gorm:"index"`
	UserID         string `gorm:"index"`
	EnqueuedAt     time.Time
	LocalTimestamp time.Time
	RetryCount     int
	MaxRetries     int
	Status         OperationStatus `gorm:"index"`
}

// CacheEntry is the encrypted response cache row, per spec.md section 3
// and section 4.5. Data holds the opaque bytes exactly as received from
// the remote; the cache never sees plaintext.
type CacheEntry struct {
	Key       string `gorm:"primaryKey"`
	UserID    string `gorm:"index"`
	Data      []byte
	Timestamp time.Time
	Version   string
	HashHex   string
}

// SyncStatus enumerates LocalRecord.SyncStatus, per spec.md section 3.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSyncing SyncStatus = "syncing"
	SyncSynced  SyncStatus = "synced"
	SyncDeleted SyncStatus = "deleted"
)

// LocalRecord enriches EncryptedCipherRow with the sync bookkeeping from
// spec.md section 3's "EncryptedCipher enriched with syncStatus and a
// localTimestamp".
type LocalRecord struct {
	EncryptedCipherRow
	SyncStatus     SyncStatus `gorm:"index"`
	LocalTimestamp time.Time
}

// AllModels lists every table this package owns, for AutoMigrate.
func AllModels() []any {
	return []any{
		&PersistedUser{},
		&EncryptedCipherRow{},
		&FolderRow{},
		&PendingOperation{},
		&CacheEntry{},
		&LocalRecord{},
	}
}

// Migrate applies the schema for every model this package owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
