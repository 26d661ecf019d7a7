// Command sensiscan reverse-engineers the sensitive-word dictionary
// enforced by an LLM gateway service.
package main

import (
	"os"

	"github.com/3leaps/sensiscan/internal/cmd"
)

// version, commit, and buildDate are set at build time via
// -ldflags "-X main.version=... -X main.commit=... -X main.buildDate=...".
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	os.Exit(cmd.Execute())
}
