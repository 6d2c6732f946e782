// Command sracatch downloads sequencing runs from the INSDC archives
// and extracts them into analysis-ready formats.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/seqport/sracatch/internal/cmd"
	"github.com/seqport/sracatch/internal/observability"
)

// Populated at build time via -ldflags.
var (
	version   = "dev"
	commit    = "HEAD"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx)
	observability.Sync()
	if err == nil {
		return
	}

	if code, ok := exitCode(err); ok {
		// Already logged where it happened.
		os.Exit(code)
	}

	// Flag and usage errors arrive without a code and have not been
	// logged yet.
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}

// exitCode extracts the trailing "(exit code N)" marker command
// handlers attach to their errors.
func exitCode(err error) (int, bool) {
	msg := err.Error()
	const marker = "(exit code "
	i := strings.LastIndex(msg, marker)
	if i < 0 || !strings.HasSuffix(msg, ")") {
		return 0, false
	}
	n, convErr := strconv.Atoi(msg[i+len(marker) : len(msg)-1])
	if convErr != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
