package cmd

import (
	"net/http"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/sensiscan/internal/httpapi"
	"github.com/3leaps/sensiscan/internal/observability"
	"github.com/3leaps/sensiscan/pkg/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP control surface for starting and cancelling scans",
	Long: `Serve starts a small HTTP server exposing POST /v1/scans,
POST /v1/scans/{id}/cancel, and GET /healthz, so a remote caller can
drive scans without embedding the CLI in a shell pipeline.`,
	RunE: runServe,
}

var (
	serveConfigPath string
	serveAddr       string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "Path to config file (required)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8090", "Address to listen on")

	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "invalid config", err)
	}

	srv := httpapi.NewServer(cfg, versionInfo.Version)

	observability.CLILogger.Info("http control surface listening", zap.String("addr", serveAddr))
	if err := http.ListenAndServe(serveAddr, srv.Handler()); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "http server failed", err)
	}
	return nil
}
