package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"hermannm.dev/devlog"

	"github.com/leon6002/keybox-sub000/internal/config"
)

var (
	cfgPath  string
	debug    bool
	logLevel slog.LevelVar
	cfg      *config.Config
)

var rootCmd = &cobra.Command{
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	Use:   "keyboxd",
	Short: "Reference server and CLI for the zero-knowledge password vault engine",
	Long: `keyboxd runs the reference REST server exposing the vault's sync
	surface, and provides operator subcommands (migrate, rotate-user-key,
	export, import) for managing the backing store directly.
`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. It is called by main.main and only needs to happen
// once.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	slog.SetDefault(slog.New(devlog.NewHandler(os.Stdout, &devlog.Options{
		Level: &logLevel,
	})))

	rootCmd.PersistentFlags().Bool("debug", false, "Print debug contents")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to the configuration file")
	rootCmd.PersistentFlags().String("db-type", "", "Database driver: sqlite or postgres")
	rootCmd.PersistentFlags().String("db-dsn", "", "Database data source name")
}

// rootCmdLoadConfig binds persistent flags into viper, loads the
// configuration file (if any), and enforces the required values are
// present. Subcommands call this in their PreRunE, mirroring the
// teacher's rootCmdLoadConfig in cmd/root.go.
func rootCmdLoadConfig(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return err
	}

	loaded, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if dbType := viper.GetString("db-type"); dbType != "" {
		loaded.DB.Type = dbType
	}
	if dbDSN := viper.GetString("db-dsn"); dbDSN != "" {
		loaded.DB.DSN = dbDSN
	}
	if err := loaded.Validate(); err != nil {
		return err
	}
	cfg = loaded

	debug = viper.GetBool("debug")
	if debug {
		logLevel.Set(slog.LevelDebug)
	}
	return nil
}
