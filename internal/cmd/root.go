// Package cmd implements the sracatch command tree.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seqport/sracatch/internal/config"
	"github.com/seqport/sracatch/internal/observability"
)

// versionInfo holds build metadata injected through main's ldflags.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata for the version command.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// Identity names the binary and its configuration namespace. Commands
// read it for banners and on-disk locations instead of hardcoding the
// name, so a rename stays a one-line change.
type Identity struct {
	BinaryName string
	ConfigName string
}

var appIdentity *Identity

// GetAppIdentity returns the identity set during command startup. It is
// nil before the first command runs.
func GetAppIdentity() *Identity {
	return appIdentity
}

var rootCmd = &cobra.Command{
	Use:   "sracatch",
	Short: "Fetch sequencing run data from the public archives",
	Long: `sracatch downloads sequencing runs from the INSDC archives (SRA, ENA
and their cloud mirrors) and extracts them into analysis-ready formats.

Downloads fall back across an ordered method chain until one delivers;
extraction converts the delivered artifact into every requested format.

Examples:
  sracatch get SRR1574565
  sracatch get --bioproject PRJNA621514 -f fasta.gz -O reads/
  sracatch extract SRR1574565.sra -f fastq
  sracatch annotate SRR1574565 --output-format tsv`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	rootConfigPath string
	rootLogLevel   string
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config", "", "Config file (default: $SRACATCH_CONFIG, then <user config dir>/sracatch/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "", "Log level: debug, info, warn, or error")
}

// Execute runs the command tree. The returned error carries the exit
// code for main to decode.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// initConfig loads configuration and rebuilds the logger before any
// RunE fires. Failures here are fatal: every command depends on both.
func initConfig() {
	appIdentity = &Identity{BinaryName: "sracatch", ConfigName: "sracatch"}

	if rootConfigPath != "" {
		// The loader's search order starts at $SRACATCH_CONFIG; the
		// flag is just the spelled-out form of the same override.
		_ = os.Setenv("SRACATCH_CONFIG", rootConfigPath)
	}

	cfg, err := config.Load(context.Background(), rootOverrides())
	if err != nil {
		ExitWithCode(observability.CLILogger, foundry.ExitInvalidArgument, "Failed to load configuration", err)
	}

	if err := observability.Init(observability.Config{
		Level:          cfg.Logging.Level,
		Profile:        cfg.Logging.Profile,
		FilePath:       cfg.Logging.File,
		FileMaxSizeMB:  cfg.Logging.FileMaxSizeMB,
		FileMaxBackups: cfg.Logging.FileMaxBackups,
	}); err != nil {
		ExitWithCode(observability.CLILogger, foundry.ExitInvalidArgument, "Failed to initialize logging", err)
	}
}

// rootOverrides maps persistent flags into the loader's
// highest-precedence layer.
func rootOverrides() map[string]any {
	logging := map[string]any{}
	if rootLogLevel != "" {
		logging["level"] = rootLogLevel
	}
	if len(logging) == 0 {
		return nil
	}
	return map[string]any{"logging": logging}
}

// exitError creates an error that will cause the CLI to exit with the
// given code. main decodes the code from the message suffix.
func exitError(code int, message string, err error) error {
	return fmt.Errorf("%s: %w (exit code %d)", message, err, code)
}

// ExitWithCode logs message and terminates the process immediately.
// Deferred cleanup does not run; commands with resources to release
// should return exitError instead.
func ExitWithCode(logger *zap.Logger, code int, message string, err error) {
	if err != nil {
		logger.Error(message, zap.Error(err))
	} else {
		logger.Error(message)
	}
	observability.Sync()
	os.Exit(code)
}
