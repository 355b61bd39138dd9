package cmd

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leon6002/keybox-sub000/internal/backup"
	"github.com/leon6002/keybox-sub000/internal/keyhierarchy"
	"github.com/leon6002/keybox-sub000/internal/store"
	"github.com/leon6002/keybox-sub000/internal/vault"
)

var (
	exportEmail      string
	exportPassphrase string
	exportOutPath    string
)

// exportCmd is a supplemented operator tool producing the .kbx file
// format spec.md section 6 describes, against the reference server's
// own store. Grounded on the same "read inputs, do one privileged
// operation, exit" CLI shape as rotate-user-key.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a user's vault to a .kbx backup file",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if exportEmail == "" || exportPassphrase == "" || exportOutPath == "" {
			return fmt.Errorf("--email, --passphrase, and --out are required")
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
		folders := store.NewFolderRepo(state.DB)

		persisted, err := users.ByEmail(exportEmail)
		if err != nil {
			return fmt.Errorf("look up user: %w", err)
		}
		sessionUser, err := toSessionUser(persisted)
		if err != nil {
			return fmt.Errorf("decode persisted user: %w", err)
		}
		session, err := keyhierarchy.Unlock(exportPassphrase, sessionUser)
		if err != nil {
			return fmt.Errorf("unlock: %w", err)
		}
		defer session.Lock()

		userKey, err := session.GetUserKey()
		if err != nil {
			return err
		}

		cipherRows, err := ciphers.List(persisted.ID)
		if err != nil {
			return fmt.Errorf("list ciphers: %w", err)
		}
		cipherVals, err := rowsToCiphers(cipherRows)
		if err != nil {
			return err
		}

		folderRows, err := folders.List(persisted.ID)
		if err != nil {
			return fmt.Errorf("list folders: %w", err)
		}
		folderVals, err := rowsToFolders(folderRows)
		if err != nil {
			return err
		}

		file, err := backup.Export("keyboxd", backup.EncryptionUserKey, "", 0, 0, 0,
			base64.StdEncoding.EncodeToString(nil), userKey, cipherVals, folderVals)
		if err != nil {
			return fmt.Errorf("build backup: %w", err)
		}

		out, err := json.MarshalIndent(file, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal backup: %w", err)
		}
		if err := os.WriteFile(exportOutPath, out, 0o600); err != nil {
			return fmt.Errorf("write backup: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportEmail, "email", "", "Account email")
	exportCmd.Flags().StringVar(&exportPassphrase, "passphrase", "", "Account passphrase")
	exportCmd.Flags().StringVar(&exportOutPath, "out", "", "Path to write the .kbx file")
}

// rowsToCiphers converts persisted cipher rows to their wire shape,
// skipping any row that fails to decode rather than aborting the whole
// export, matching the tolerant-skip behavior rotate-user-key already
// uses for unreadable rows.
func rowsToCiphers(rows []store.EncryptedCipherRow) ([]vault.EncryptedCipher, error) {
	out := make([]vault.EncryptedCipher, 0, len(rows))
	for _, row := range rows {
		ec, err := store.RowToCipher(row)
		if err != nil {
			return nil, fmt.Errorf("convert cipher %s: %w", row.ID, err)
		}
		out = append(out, ec)
	}
	return out, nil
}

func rowsToFolders(rows []store.FolderRow) ([]vault.Folder, error) {
	out := make([]vault.Folder, 0, len(rows))
	for _, row := range rows {
		f, err := store.RowToFolder(row)
		if err != nil {
			return nil, fmt.Errorf("convert folder %s: %w", row.ID, err)
		}
		out = append(out, f)
	}
	return out, nil
}
