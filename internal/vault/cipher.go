package vault

import (
	"time"

	"github.com/leon6002/keybox-sub000/internal/envelope"
)

// EncryptedCipher is the persisted, encrypted form of a CredentialRecord,
// per spec.md section 3.
type EncryptedCipher struct {
	ID           string                  `json:"id"`
	UserID       string                  `json:"userId"`
	FolderID     *string                 `json:"folderId,omitempty"`
	Type         CipherType              `json:"type"`
	Favorite     bool                    `json:"favorite"`
	Reprompt     bool                    `json:"reprompt"`
	Name         envelope.CipherEnvelope `json:"name"`
	Data         envelope.CipherEnvelope `json:"data"`
	Notes        *envelope.CipherEnvelope `json:"notes,omitempty"`
	Key          *envelope.CipherEnvelope `json:"key,omitempty"`
	CreatedAt    time.Time               `json:"createdAt"`
	UpdatedAt    time.Time               `json:"updatedAt"`
	RevisionDate time.Time               `json:"revisionDate"`
	DeletedAt    *time.Time              `json:"deletedAt,omitempty"`
}

// Folder is the persisted, partially-encrypted folder record from spec.md
// section 3. Only Name is protected; common folders share a closed set of
// eight well-known IDs across all users.
type Folder struct {
	ID        string                  `json:"id"`
	Name      envelope.CipherEnvelope `json:"name"`
	CreatedAt time.Time               `json:"createdAt"`
	UpdatedAt time.Time               `json:"updatedAt"`
}

// CommonFolderIDs is the closed set of eight well-known folder UUIDs shared
// across every user, per spec.md section 3.
var CommonFolderIDs = []string{
	"00000000-0000-4000-8000-000000000001",
	"00000000-0000-4000-8000-000000000002",
	"00000000-0000-4000-8000-000000000003",
	"00000000-0000-4000-8000-000000000004",
	"00000000-0000-4000-8000-000000000005",
	"00000000-0000-4000-8000-000000000006",
	"00000000-0000-4000-8000-000000000007",
	"00000000-0000-4000-8000-000000000008",
}

// IsCommonFolder reports whether id is one of the closed set of well-known
// folder IDs.
func IsCommonFolder(id string) bool {
	for _, common := range CommonFolderIDs {
		if id == common {
			return true
		}
	}
	return false
}
