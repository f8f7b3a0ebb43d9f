package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"paperbot/internal/app"
	"paperbot/internal/config"
	"paperbot/internal/fireworks"
)

// Exit codes.
const (
	ExitSuccess          = 0
	ExitGenericError     = 1
	ExitConfigInvalid    = 2
	ExitRootInaccessible = 3
	ExitStateLoadFailure = 4
)

// GlobalFlags holds flags shared across all commands.
type GlobalFlags struct {
	Dir        string
	ConfigPath string
	StateDir   string
	Quiet      bool
}

var globalFlags GlobalFlags

var rootCmd = &cobra.Command{
	Use:   "paperbot",
	Short: "Question answering over a local library of PDF documents",
	Long: "paperbot ingests a directory of PDF papers into an embedding index and " +
		"answers questions grounded in their content, with page-level references.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalFlags.Dir, "dir", "", "library directory with PDF documents")
	rootCmd.PersistentFlags().StringVar(&globalFlags.ConfigPath, "config", "paperbot.toml", "config file path")
	rootCmd.PersistentFlags().StringVar(&globalFlags.StateDir, "state-dir", "", "state directory (default: ./.paperbot)")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.Quiet, "quiet", false, "reduce output")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(doiCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command and returns an error; exit code is set by RunE.
func Execute() error {
	return rootCmd.Execute()
}

// exitWith prints message to stderr and exits with code.
func exitWith(code int, msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(code)
}

// loadConfig resolves configuration from file, environment, and flags.
func loadConfig() config.Config {
	cfg, err := config.Load(globalFlags.ConfigPath)
	if err != nil {
		exitWith(ExitConfigInvalid, err.Error())
	}
	if globalFlags.Dir != "" {
		cfg.RootDir = globalFlags.Dir
	}
	if globalFlags.StateDir != "" {
		cfg.StateDir = globalFlags.StateDir
	}
	if strings.TrimSpace(cfg.Provider.APIKey) == "" {
		if key, ok := promptAPIKey(); ok {
			cfg.Provider.APIKey = key
		}
	}
	if err := config.Validate(cfg); err != nil {
		exitWith(ExitConfigInvalid, err.Error())
	}
	return cfg
}

// promptAPIKey asks for the provider key without echoing it. Only possible
// when stdin is a terminal; otherwise the missing-key validation error
// stands.
func promptAPIKey() (string, bool) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", false
	}
	fmt.Fprint(os.Stderr, "Fireworks API key: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", false
	}
	key := strings.TrimSpace(string(raw))
	return key, key != ""
}

// mustService builds the application service or exits.
func mustService() (*app.Service, config.Config) {
	cfg := loadConfig()
	client := fireworks.New(cfg.Provider)
	svc, err := app.New(cfg, client, client)
	if err != nil {
		exitWith(ExitStateLoadFailure, err.Error())
	}
	return svc, cfg
}
