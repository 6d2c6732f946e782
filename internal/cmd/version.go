package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run:   runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) {
	name := "sracatch"
	if identity := GetAppIdentity(); identity != nil && identity.BinaryName != "" {
		name = identity.BinaryName
	}

	_, _ = fmt.Fprintf(os.Stdout, "%s %s\n", name, versionInfo.Version)
	_, _ = fmt.Fprintf(os.Stdout, "  commit:     %s\n", versionInfo.Commit)
	_, _ = fmt.Fprintf(os.Stdout, "  built:      %s\n", versionInfo.BuildDate)
	_, _ = fmt.Fprintf(os.Stdout, "  go version: %s\n", runtime.Version())
	_, _ = fmt.Fprintf(os.Stdout, "  platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)

	if v := crucible.GetVersion(); v.Gofulmen != "" {
		_, _ = fmt.Fprintf(os.Stdout, "  gofulmen:   v%s\n", v.Gofulmen)
	}
}
