// Package cmd implements the sensiscan command-line interface.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/sensiscan/internal/observability"
)

// Process exit codes not covered by a specific foundry.Exit* constant.
const (
	exitCodeOK      = 0
	exitCodeGeneral = 1
)

var rootCmd = &cobra.Command{
	Use:   "sensiscan",
	Short: "Reverse-engineer a gateway's sensitive-word dictionary",
	Long: `sensiscan discovers the sensitive-word dictionary enforced by an LLM
gateway service by adaptively probing it with candidate text and narrowing
in on exactly which substrings trigger a block.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return observability.Init(logLevel, verbose)
	},
}

var (
	logLevel string
	verbose  bool
)

// versionInfo holds build metadata set by main via SetVersionInfo.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{Version: "dev", Commit: "none", BuildDate: "unknown"}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose (debug) console logging")
	rootCmd.Version = versionInfo.Version
}

// SetVersionInfo records build metadata reported by --version.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildDate)
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	defer observability.Sync()

	if err := rootCmd.Execute(); err != nil {
		if ce, ok := err.(*cliError); ok {
			observability.CLILogger.Error(ce.message, zap.Error(ce.cause))
			return ce.code
		}
		observability.CLILogger.Error(err.Error())
		return exitCodeGeneral
	}
	return exitCodeOK
}

// cliError pairs a process exit code with a human message and cause,
// letting subcommands report failures with the right exit semantics
// without cobra printing a redundant "Error:" line.
type cliError struct {
	code    int
	message string
	cause   error
}

func (e *cliError) Error() string {
	return fmt.Sprintf("%s: %v", e.message, e.cause)
}

func (e *cliError) Unwrap() error { return e.cause }

func exitError(code int, message string, cause error) error {
	return &cliError{code: code, message: message, cause: cause}
}
