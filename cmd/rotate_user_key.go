package cmd

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/leon6002/keybox-sub000/internal/crypto"
	"github.com/leon6002/keybox-sub000/internal/envelope"
	"github.com/leon6002/keybox-sub000/internal/keyhierarchy"
	"github.com/leon6002/keybox-sub000/internal/store"
	"github.com/leon6002/keybox-sub000/internal/vault"
)

var (
	rotateEmail      string
	rotatePassphrase string
)

// rotateUserKeyCmd is a supplemented operator tool: spec.md's key
// hierarchy supports rotating a user's random user key independently of
// their passphrase (section 4.3), but the distilled spec never gives
// that operation an owning command. Grounded on the teacher's
// manufacturing.go-style "read inputs, do one privileged operation,
// exit" CLI shape.
var rotateUserKeyCmd = &cobra.Command{
	Use:   "rotate-user-key",
	Short: "Rotate a user's user key, re-encrypting every stored cipher under it",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if rotateEmail == "" || rotatePassphrase == "" {
			return errors.New("--email and --passphrase are required")
		}
		return rootCmdLoadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := store.InitDB(cfg.DB.Type, cfg.DB.DSN)
		if err != nil {
			return err
		}
		users := store.NewUserRepo(state.DB)
		ciphers := store.NewCipherRepo(state.DB)

		persisted, err := users.ByEmail(rotateEmail)
		if err != nil {
			return fmt.Errorf("look up user: %w", err)
		}

		sessionUser, err := toSessionUser(persisted)
		if err != nil {
			return fmt.Errorf("decode persisted user: %w", err)
		}
		session, err := keyhierarchy.Unlock(rotatePassphrase, sessionUser)
		if err != nil {
			return fmt.Errorf("unlock: %w", err)
		}
		defer session.Lock()

		oldUserKey, err := session.GetUserKey()
		if err != nil {
			return err
		}
		oldUserKeyCopy := append([]byte(nil), oldUserKey...)
		defer crypto.Zeroize(oldUserKeyCopy)

		rows, err := ciphers.List(persisted.ID)
		if err != nil {
			return fmt.Errorf("list ciphers: %w", err)
		}

		result, err := keyhierarchy.RotateUserKey(session, map[string]envelope.CipherEnvelope{})
		if err != nil {
			return fmt.Errorf("rotate user key: %w", err)
		}
		newUserKey, err := session.GetUserKey()
		if err != nil {
			return err
		}

		rewrapped := 0
		for _, row := range rows {
			ec, err := store.RowToCipher(row)
			if err != nil {
				slog.Warn("skipping unreadable cipher during rotation", "id", row.ID, "error", err)
				continue
			}
			record, err := vault.DecodeCredential(ec, oldUserKeyCopy)
			if err != nil {
				slog.Warn("skipping undecryptable cipher during rotation", "id", row.ID, "error", err)
				continue
			}
			newEC, err := vault.EncodeCredential(record, persisted.ID, newUserKey)
			if err != nil {
				return fmt.Errorf("re-encode cipher %s: %w", row.ID, err)
			}
			newRow, err := store.CipherToRow(newEC)
			if err != nil {
				return fmt.Errorf("convert re-encoded cipher %s: %w", row.ID, err)
			}
			if err := ciphers.Save(newRow); err != nil {
				return fmt.Errorf("save re-encoded cipher %s: %w", row.ID, err)
			}
			rewrapped++
		}

		wrappedJSON, err := envelope.CanonicalJSON(result.WrappedUserKey)
		if err != nil {
			return fmt.Errorf("marshal wrapped user key: %w", err)
		}
		persisted.WrappedUserKeyJSON = string(wrappedJSON)
		if err := users.Save(persisted); err != nil {
			return fmt.Errorf("persist rewrapped user key: %w", err)
		}

		slog.Info("Rotated user key", "email", rotateEmail, "ciphersRewrapped", rewrapped)
		return nil
	},
}

// toSessionUser reconstructs the keyhierarchy.PersistedUser Unlock needs
// from the flat row store.UserRepo persists, decoding its KDF tagged
// union and base64-encoded key material.
func toSessionUser(u store.PersistedUser) (keyhierarchy.PersistedUser, error) {
	var kdf crypto.KDFParams
	switch crypto.KDFKind(u.KDFType) {
	case crypto.KDFPBKDF2:
		if u.KDFIterations == crypto.LegacyPBKDF2Iterations {
			kdf = crypto.NewLegacyPBKDF2Params()
			break
		}
		var err error
		kdf, err = crypto.NewPBKDF2Params(u.KDFIterations)
		if err != nil {
			return keyhierarchy.PersistedUser{}, fmt.Errorf("decode pbkdf2 params: %w", err)
		}
	case crypto.KDFArgon2id:
		var err error
		kdf, err = crypto.NewArgon2idParams(u.KDFIterations, u.KDFMemoryKiB, u.KDFParallelism)
		if err != nil {
			return keyhierarchy.PersistedUser{}, fmt.Errorf("decode argon2id params: %w", err)
		}
	default:
		return keyhierarchy.PersistedUser{}, fmt.Errorf("unknown kdf kind %q", u.KDFType)
	}

	salt, err := base64.StdEncoding.DecodeString(u.KDFSaltB64)
	if err != nil {
		return keyhierarchy.PersistedUser{}, fmt.Errorf("decode kdf salt: %w", err)
	}
	authHash, err := base64.StdEncoding.DecodeString(u.AuthHashB64)
	if err != nil {
		return keyhierarchy.PersistedUser{}, fmt.Errorf("decode auth hash: %w", err)
	}
	wrapped, err := envelope.ParseCanonicalJSON([]byte(u.WrappedUserKeyJSON))
	if err != nil {
		return keyhierarchy.PersistedUser{}, fmt.Errorf("decode wrapped user key: %w", err)
	}

	return keyhierarchy.PersistedUser{
		ID:             u.ID,
		Email:          u.Email,
		Name:           u.Name,
		KDF:            kdf,
		KDFSalt:        salt,
		AuthHash:       authHash,
		WrappedUserKey: wrapped,
	}, nil
}

func init() {
	rootCmd.AddCommand(rotateUserKeyCmd)
	rotateUserKeyCmd.Flags().StringVar(&rotateEmail, "email", "", "Account email")
	rotateUserKeyCmd.Flags().StringVar(&rotatePassphrase, "passphrase", "", "Account passphrase")
}
