// Package vault implements the vault codec (spec.md section 4.4): encoding
// domain CredentialRecord/Folder values into encrypted, persistence-ready
// EncryptedCipher/Folder envelopes and back, against a live user key.
package vault

import (
	"encoding/json"
	"time"

	"github.com/mitchellh/mapstructure"
)

// CipherType enumerates the EncryptedCipher.Type values from spec.md
// section 3.
type CipherType int

const (
	CipherTypeCredential CipherType = 0
	CipherTypeNote       CipherType = 1
	CipherTypeCard       CipherType = 2
	CipherTypeIdentity   CipherType = 3
)

// CustomFieldKind is the closed enum of known custom-field shapes, plus an
// Extension variant that preserves unrecognized shapes as raw JSON for
// forward compatibility. Grounded on the teacher's
// ServiceInfoOperation.RawParams / UnmarshalParams pattern in cmd/config.go.
type CustomFieldKind string

const (
	CustomFieldText    CustomFieldKind = "text"
	CustomFieldHidden  CustomFieldKind = "hidden"
	CustomFieldBoolean CustomFieldKind = "boolean"
	CustomFieldLinked  CustomFieldKind = "linked"

	// CustomFieldExtension marks a field whose kind this build does not
	// recognize. Its original JSON is preserved verbatim in Raw so a
	// decode-then-encode round trip never drops data.
	CustomFieldExtension CustomFieldKind = "extension"
)

// CustomField is one (name, kind, value) row of a credential's custom
// fields bag.
type CustomField struct {
	Name  string          `mapstructure:"name" json:"name"`
	Kind  CustomFieldKind `mapstructure:"kind" json:"kind"`
	Value string          `mapstructure:"value" json:"value,omitempty"`
	Bool  bool            `mapstructure:"bool" json:"bool,omitempty"`

	// Raw holds the original JSON object for CustomFieldExtension rows, and
	// for any row this build fails to decode into the typed shape above.
	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes a custom field, routing known kinds through
// mapstructure (as the teacher does for FSIM params) and preserving unknown
// kinds verbatim.
func (f *CustomField) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	kind, _ := raw["kind"].(string)
	switch CustomFieldKind(kind) {
	case CustomFieldText, CustomFieldHidden, CustomFieldBoolean, CustomFieldLinked:
		var decoded CustomField
		if err := mapstructure.Decode(raw, &decoded); err != nil {
			// Decoding into the known shape failed; fall back to treating
			// it as an extension rather than losing the row.
			f.Name, _ = raw["name"].(string)
			f.Kind = CustomFieldExtension
			f.Raw = append([]byte{}, data...)
			return nil
		}
		*f = decoded
		return nil
	default:
		f.Name, _ = raw["name"].(string)
		f.Kind = CustomFieldExtension
		f.Raw = append([]byte{}, data...)
		return nil
	}
}

// MarshalJSON re-emits an extension field's original bytes verbatim, and
// marshals known-kind fields through the normal struct tags.
func (f CustomField) MarshalJSON() ([]byte, error) {
	if f.Kind == CustomFieldExtension && len(f.Raw) > 0 {
		return f.Raw, nil
	}
	type alias CustomField
	return json.Marshal(alias(f))
}

// CredentialRecord is the pre-encryption domain record from spec.md
// section 3.
type CredentialRecord struct {
	ID           string
	FolderID     string
	Title        string
	Username     string
	Password     string
	Website      string
	Notes        string
	CustomFields []CustomField
	Tags         []string
	Favorite     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// credentialPayload is the JSON object bundled into EncryptedCipher.Data,
// per spec.md section 4.4 step 2. Field names are stable across releases;
// Extra preserves any field this build does not know about so forward
// compatibility holds even for whole new payload keys, not just custom
// field kinds.
type credentialPayload struct {
	Username     string          `json:"username"`
	Password     string          `json:"password"`
	Website      string          `json:"website"`
	CustomFields []CustomField   `json:"customFields"`
	Tags         []string        `json:"tags"`
	PasswordType string          `json:"passwordType"`
	Extra        map[string]any  `json:"-"`
}

const defaultPasswordType = "password"

// MarshalJSON merges the known fields with any preserved Extra fields.
func (p credentialPayload) MarshalJSON() ([]byte, error) {
	type alias credentialPayload
	base, err := json.Marshal(alias(p))
	if err != nil {
		return nil, err
	}
	if len(p.Extra) == 0 {
		return base, nil
	}
	var merged map[string]any
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range p.Extra {
		if _, known := merged[k]; !known {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes known fields and stashes anything else in Extra.
func (p *credentialPayload) UnmarshalJSON(data []byte) error {
	type alias credentialPayload
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, known := range []string{"username", "password", "website", "customFields", "tags", "passwordType"} {
		delete(all, known)
	}
	a.Extra = all
	*p = credentialPayload(a)
	return nil
}
