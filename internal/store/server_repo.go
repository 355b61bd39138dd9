package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/leon6002/keybox-sub000/internal/envelope"
	"github.com/leon6002/keybox-sub000/internal/vault"
)

// ErrNotFound is returned by the server-side repositories below when a
// row does not exist, so handlers can map it to an HTTP 404 without
// reaching into gorm.ErrRecordNotFound directly.
var ErrNotFound = errors.New("not found")

// UserRepo persists PersistedUser rows for the reference server side of
// spec.md section 6's auth endpoints. It never receives a passphrase or
// an unwrapped key; every field it stores is the opaque, forward-compatible
// shape the client already wrapped.
type UserRepo struct {
	db *gorm.DB
}

// NewUserRepo constructs a UserRepo over db.
func NewUserRepo(db *gorm.DB) *UserRepo {
	return &UserRepo{db: db}
}

// Create inserts a new PersistedUser row, per POST /auth/setup-encryption.
func (r *UserRepo) Create(u PersistedUser) error {
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	if err := r.db.Create(&u).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// Save overwrites an existing PersistedUser row, for operator commands
// that rewrap a user's key or passphrase outside the setup-encryption
// flow (e.g. rotate-user-key).
func (r *UserRepo) Save(u PersistedUser) error {
	u.UpdatedAt = time.Now().UTC()
	if err := r.db.Save(&u).Error; err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

// ByEmail looks up a PersistedUser by email, for
// /auth/check-encryption and /auth/get-user-data.
func (r *UserRepo) ByEmail(email string) (PersistedUser, error) {
	var u PersistedUser
	err := r.db.Where("email = ?", email).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return PersistedUser{}, ErrNotFound
	}
	if err != nil {
		return PersistedUser{}, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

// CipherRepo persists EncryptedCipherRow rows for the reference server
// side of spec.md section 6's /passwords/* endpoints. Unlike
// OptimisticStore (the client-side local cache with its pending-ops
// queue), this repository IS the remote: a save or delete here is
// final, not pending.
type CipherRepo struct {
	db *gorm.DB
}

// NewCipherRepo constructs a CipherRepo over db.
func NewCipherRepo(db *gorm.DB) *CipherRepo {
	return &CipherRepo{db: db}
}

// List returns every non-deleted cipher row for userID, per
// POST /passwords/load.
func (r *CipherRepo) List(userID string) ([]EncryptedCipherRow, error) {
	var rows []EncryptedCipherRow
	if err := r.db.Where("user_id = ? AND deleted_at IS NULL", userID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list ciphers: %w", err)
	}
	return rows, nil
}

// Save inserts or overwrites row, per POST /passwords/save.
func (r *CipherRepo) Save(row EncryptedCipherRow) error {
	row.UpdatedAt = time.Now().UTC()
	if err := r.db.Save(&row).Error; err != nil {
		return fmt.Errorf("save cipher: %w", err)
	}
	return nil
}

// Delete hard-deletes a cipher row owned by userID, per
// POST /passwords/delete. Returns ErrNotFound if no row matched, which
// handlers map to the idempotent-404 contract spec.md section 6
// describes.
func (r *CipherRepo) Delete(id, userID string) error {
	res := r.db.Unscoped().Where("id = ? AND user_id = ?", id, userID).Delete(&EncryptedCipherRow{})
	if res.Error != nil {
		return fmt.Errorf("delete cipher: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FolderRepo persists FolderRow rows. Folders carry no sync-status
// bookkeeping on either side, client or server, so a single repo shape
// serves both; the reference server mounts it for the operator-facing
// export/import commands rather than a REST endpoint, since spec.md
// section 6 names no folder sync endpoint.
type FolderRepo struct {
	db *gorm.DB
}

// NewFolderRepo constructs a FolderRepo over db.
func NewFolderRepo(db *gorm.DB) *FolderRepo {
	return &FolderRepo{db: db}
}

// List returns every folder row owned by userID.
func (r *FolderRepo) List(userID string) ([]FolderRow, error) {
	var rows []FolderRow
	if err := r.db.Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	return rows, nil
}

// Save inserts or overwrites row.
func (r *FolderRepo) Save(row FolderRow) error {
	row.UpdatedAt = time.Now().UTC()
	if err := r.db.Save(&row).Error; err != nil {
		return fmt.Errorf("save folder: %w", err)
	}
	return nil
}

// FolderToRow converts a vault.Folder to its persisted row shape.
func FolderToRow(userID string, f vault.Folder) (FolderRow, error) {
	nameJSON, err := envelope.CanonicalJSON(f.Name)
	if err != nil {
		return FolderRow{}, fmt.Errorf("marshal folder name envelope: %w", err)
	}
	row := FolderRow{
		ID:        f.ID,
		UserID:    userID,
		NameJSON:  string(nameJSON),
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return row, nil
}

// RowToFolder converts a persisted FolderRow back to a vault.Folder.
func RowToFolder(row FolderRow) (vault.Folder, error) {
	name, err := envelope.ParseCanonicalJSON([]byte(row.NameJSON))
	if err != nil {
		return vault.Folder{}, fmt.Errorf("unmarshal folder name envelope: %w", err)
	}
	return vault.Folder{
		ID:        row.ID,
		Name:      name,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

// RowToCipher converts a persisted EncryptedCipherRow to the
// vault.EncryptedCipher shape exchanged over the wire. It is the
// server-side mirror of the client-side rowFromCipher/cipherFromRow pair
// in optimistic.go, without the LocalRecord sync-status wrapper.
func RowToCipher(row EncryptedCipherRow) (vault.EncryptedCipher, error) {
	name, err := envelope.ParseCanonicalJSON([]byte(row.NameJSON))
	if err != nil {
		return vault.EncryptedCipher{}, fmt.Errorf("unmarshal name envelope: %w", err)
	}
	data, err := envelope.ParseCanonicalJSON([]byte(row.DataJSON))
	if err != nil {
		return vault.EncryptedCipher{}, fmt.Errorf("unmarshal data envelope: %w", err)
	}
	var notes *envelope.CipherEnvelope
	if row.NotesJSON != nil {
		n, err := envelope.ParseCanonicalJSON([]byte(*row.NotesJSON))
		if err != nil {
			return vault.EncryptedCipher{}, fmt.Errorf("unmarshal notes envelope: %w", err)
		}
		notes = &n
	}
	var key *envelope.CipherEnvelope
	if row.KeyJSON != nil {
		k, err := envelope.ParseCanonicalJSON([]byte(*row.KeyJSON))
		if err != nil {
			return vault.EncryptedCipher{}, fmt.Errorf("unmarshal key envelope: %w", err)
		}
		key = &k
	}
	return vault.EncryptedCipher{
		ID:           row.ID,
		UserID:       row.UserID,
		FolderID:     row.FolderID,
		Type:         vault.CipherType(row.Type),
		Favorite:     row.Favorite,
		Reprompt:     row.Reprompt,
		Name:         name,
		Data:         data,
		Notes:        notes,
		Key:          key,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
		RevisionDate: row.RevisionDate,
		DeletedAt:    row.DeletedAt,
	}, nil
}

// CipherToRow converts a vault.EncryptedCipher received from the client
// into the persisted row shape.
func CipherToRow(ec vault.EncryptedCipher) (EncryptedCipherRow, error) {
	nameJSON, err := envelope.CanonicalJSON(ec.Name)
	if err != nil {
		return EncryptedCipherRow{}, fmt.Errorf("marshal name envelope: %w", err)
	}
	dataJSON, err := envelope.CanonicalJSON(ec.Data)
	if err != nil {
		return EncryptedCipherRow{}, fmt.Errorf("marshal data envelope: %w", err)
	}
	var notesJSON *string
	if ec.Notes != nil {
		s, err := envelope.CanonicalJSON(*ec.Notes)
		if err != nil {
			return EncryptedCipherRow{}, fmt.Errorf("marshal notes envelope: %w", err)
		}
		str := string(s)
		notesJSON = &str
	}
	var keyJSON *string
	if ec.Key != nil {
		s, err := envelope.CanonicalJSON(*ec.Key)
		if err != nil {
			return EncryptedCipherRow{}, fmt.Errorf("marshal key envelope: %w", err)
		}
		str := string(s)
		keyJSON = &str
	}
	now := time.Now().UTC()
	row := EncryptedCipherRow{
		ID:           ec.ID,
		UserID:       ec.UserID,
		FolderID:     ec.FolderID,
		Type:         int(ec.Type),
		Favorite:     ec.Favorite,
		Reprompt:     ec.Reprompt,
		NameJSON:     string(nameJSON),
		DataJSON:     string(dataJSON),
		NotesJSON:    notesJSON,
		KeyJSON:      keyJSON,
		CreatedAt:    ec.CreatedAt,
		RevisionDate: now,
		DeletedAt:    ec.DeletedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	return row, nil
}
