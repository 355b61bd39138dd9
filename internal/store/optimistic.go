package store

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/leon6002/keybox-sub000/internal/envelope"
	"github.com/leon6002/keybox-sub000/internal/vault"
)

// OptimisticStore is the keyed store of LocalRecord rows (C7). Every
// mutating call also enqueues a PendingOperation in the same transaction,
// per spec.md section 4.7 and the commit-together rule in section 5.
type OptimisticStore struct {
	db    *gorm.DB
	queue *Queue
}

// NewOptimisticStore constructs an OptimisticStore over db, sharing its
// queue with the one that drains to the remote.
func NewOptimisticStore(db *gorm.DB, queue *Queue) *OptimisticStore {
	return &OptimisticStore{db: db, queue: queue}
}

func envelopeJSON(env envelope.CipherEnvelope) (string, error) {
	b, err := envelope.CanonicalJSON(env)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func rowFromCipher(ec vault.EncryptedCipher, syncStatus SyncStatus, localTimestamp time.Time) (LocalRecord, error) {
	nameJSON, err := envelopeJSON(ec.Name)
	if err != nil {
		return LocalRecord{}, fmt.Errorf("marshal name envelope: %w", err)
	}
	dataJSON, err := envelopeJSON(ec.Data)
	if err != nil {
		return LocalRecord{}, fmt.Errorf("marshal data envelope: %w", err)
	}

	var notesJSON *string
	if ec.Notes != nil {
		s, err := envelopeJSON(*ec.Notes)
		if err != nil {
			return LocalRecord{}, fmt.Errorf("marshal notes envelope: %w", err)
		}
		notesJSON = &s
	}
	var keyJSON *string
	if ec.Key != nil {
		s, err := envelopeJSON(*ec.Key)
		if err != nil {
			return LocalRecord{}, fmt.Errorf("marshal key envelope: %w", err)
		}
		keyJSON = &s
	}

	return LocalRecord{
		EncryptedCipherRow: EncryptedCipherRow{
			ID:           ec.ID,
			UserID:       ec.UserID,
			FolderID:     ec.FolderID,
			Type:         int(ec.Type),
			Favorite:     ec.Favorite,
			Reprompt:     ec.Reprompt,
			NameJSON:     nameJSON,
			DataJSON:     dataJSON,
			NotesJSON:    notesJSON,
			KeyJSON:      keyJSON,
			CreatedAt:    ec.CreatedAt,
			UpdatedAt:    ec.UpdatedAt,
			RevisionDate: ec.RevisionDate,
			DeletedAt:    ec.DeletedAt,
		},
		SyncStatus:     syncStatus,
		LocalTimestamp: localTimestamp,
	}, nil
}

func cipherFromRow(row LocalRecord) (vault.EncryptedCipher, error) {
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

// Create encrypts record under userKey, writes a LocalRecord, and
// enqueues a create operation, all in one transaction per spec.md
// section 4.7 steps 1-3.
func (s *OptimisticStore) Create(record vault.CredentialRecord, userID string, userKey []byte) (LocalRecord, error) {
	ec, err := vault.EncodeCredential(record, userID, userKey)
	if err != nil {
		return LocalRecord{}, fmt.Errorf("encode credential: %w", err)
	}
	localTimestamp := time.Now().UTC()
	row, err := rowFromCipher(ec, SyncPending, localTimestamp)
	if err != nil {
		return LocalRecord{}, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("create local record: %w", err)
		}
		if _, err := s.queue.Enqueue(OpCreate, row.ID, userID, localTimestamp); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return LocalRecord{}, err
	}
	return row, nil
}

// Update re-encrypts record and overwrites its LocalRecord row, enqueuing
// an update operation in the same transaction.
func (s *OptimisticStore) Update(record vault.CredentialRecord, userID string, userKey []byte) (LocalRecord, error) {
	ec, err := vault.EncodeCredential(record, userID, userKey)
	if err != nil {
		return LocalRecord{}, fmt.Errorf("encode credential: %w", err)
	}
	localTimestamp := time.Now().UTC()
	row, err := rowFromCipher(ec, SyncPending, localTimestamp)
	if err != nil {
		return LocalRecord{}, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&row).Error; err != nil {
			return fmt.Errorf("update local record: %w", err)
		}
		if _, err := s.queue.Enqueue(OpUpdate, row.ID, userID, localTimestamp); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return LocalRecord{}, err
	}
	return row, nil
}

// Delete stamps the row's SyncStatus as deleted (a tombstone retained
// until the server delete is confirmed) and enqueues a delete operation.
func (s *OptimisticStore) Delete(id, userID string) error {
	localTimestamp := time.Now().UTC()
	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&LocalRecord{}).
			Where("id = ? AND user_id = ?", id, userID).
			Updates(map[string]any{"sync_status": SyncDeleted, "local_timestamp": localTimestamp})
		if res.Error != nil {
			return fmt.Errorf("mark deleted: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("delete: no local record %q for user %q", id, userID)
		}
		if _, err := s.queue.Enqueue(OpDelete, id, userID, localTimestamp); err != nil {
			return err
		}
		return nil
	})
}

// ListResult is the outcome of List: the successfully decrypted records
// plus a count of rows that failed to decrypt, per spec.md section 4.7.
type ListResult struct {
	Records      []vault.CredentialRecord
	SkippedCount int
}

// List decrypts every non-deleted row for userID under userKey, skipping
// (and counting) any row that fails to decrypt.
func (s *OptimisticStore) List(userID string, userKey []byte) (ListResult, error) {
	var rows []LocalRecord
	if err := s.db.Where("user_id = ? AND sync_status <> ?", userID, SyncDeleted).Find(&rows).Error; err != nil {
		return ListResult{}, fmt.Errorf("list local records: %w", err)
	}

	var result ListResult
	for _, row := range rows {
		ec, err := cipherFromRow(row)
		if err != nil {
			result.SkippedCount++
			continue
		}
		record, err := vault.DecodeCredential(ec, userKey)
		if err != nil {
			result.SkippedCount++
			continue
		}
		result.Records = append(result.Records, record)
	}
	return result, nil
}

// EncryptedCipherJSON returns the canonical JSON of the encrypted cipher
// backing a local record, for handing to the sync sweep without ever
// touching plaintext.
func (s *OptimisticStore) EncryptedCipherJSON(id, userID string) ([]byte, error) {
	var row LocalRecord
	if err := s.db.First(&row, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		return nil, fmt.Errorf("find local record: %w", err)
	}
	ec, err := cipherFromRow(row)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(ec)
	if err != nil {
		return nil, fmt.Errorf("marshal cipher: %w", err)
	}
	return data, nil
}
