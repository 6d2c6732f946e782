package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seqport/sracatch/internal/observability"
	"github.com/seqport/sracatch/pkg/backend"
	"github.com/seqport/sracatch/pkg/toolrun"
)

var doctorMethods []string

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the system and suggest fixes for common issues.

Checks cover the external tools the configured download methods call,
extraction helpers, proxy environment, and cloud credentials.

Examples:
  sracatch doctor                      # Checks for the default method chain
  sracatch doctor --methods aws-cp     # Include AWS credential checks`,
	Run: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().StringSliceVar(&doctorMethods, "methods", nil, "Download methods to check (default: the default chain)")
}

// toolCheck is one external binary the environment may need.
type toolCheck struct {
	Name     string
	Hint     string
	Optional bool
}

func runDoctor(cmd *cobra.Command, args []string) {
	identity := GetAppIdentity()
	bannerName := "doctor"
	if identity != nil && identity.BinaryName != "" {
		bannerName = identity.BinaryName + " doctor"
	}
	observability.CLILogger.Info("=== " + bannerName + " ===")
	observability.CLILogger.Info("")
	observability.CLILogger.Info("Running diagnostic checks...")
	observability.CLILogger.Info("")

	methods, err := doctorMethodChain()
	if err != nil {
		ExitWithCode(observability.CLILogger, foundry.ExitInvalidArgument, "Invalid --methods", err)
	}

	tools := doctorTools(methods)
	awsActive := methodsContain(methods, backend.MethodAWSCP)

	allChecks := true
	checkNum := 1
	totalChecks := 5 + len(tools)
	if awsActive {
		totalChecks += 2
	}

	// Check 1: Go version
	goVersion := runtime.Version()
	if goVersion >= "go1.25" {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking Go version... ✅ %s", checkNum, totalChecks, goVersion),
			zap.String("go_version", goVersion))
	} else {
		observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking Go version... ⚠️  %s (recommended: go1.25+)", checkNum, totalChecks, goVersion),
			zap.String("go_version", goVersion))
		allChecks = false
	}
	checkNum++

	// Check 2: Gofulmen access
	version := crucible.GetVersion()
	if version.Gofulmen != "" {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking Gofulmen access... ✅ v%s", checkNum, totalChecks, version.Gofulmen),
			zap.String("gofulmen_version", version.Gofulmen))
	} else {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking Gofulmen access... ❌ Cannot access Gofulmen", checkNum, totalChecks))
		allChecks = false
	}
	checkNum++

	// Check 3: Config directory
	configDir, err := os.UserConfigDir()
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking config directory... ❌ Cannot find config directory", checkNum, totalChecks),
			zap.Error(err))
		allChecks = false
	} else {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking config directory... ✅ %s", checkNum, totalChecks, configDir),
			zap.String("config_dir", configDir))
	}
	checkNum++

	// Check 4: Environment
	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking environment... ✅ %s/%s", checkNum, totalChecks, runtime.GOOS, runtime.GOARCH),
		zap.String("os", runtime.GOOS),
		zap.String("arch", runtime.GOARCH))
	checkNum++

	// Check 5: Proxy environment
	if proxies := proxyEnv(); len(proxies) > 0 {
		observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking proxy environment... ⚠️  %s", checkNum, totalChecks, strings.Join(proxies, ", ")),
			zap.Strings("proxies", proxies))
		observability.CLILogger.Info("       Note: ascp does not honor HTTP proxies; prefer ena-ftp or aws-http behind one.")
	} else {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking proxy environment... ✅ none set", checkNum, totalChecks))
	}
	checkNum++

	// Tool checks for the method chain and extraction pipeline.
	runner := toolrun.NewExecRunner()
	for _, tc := range tools {
		path, err := runner.LookPath(tc.Name)
		if err == nil {
			observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking for %s... ✅ %s", checkNum, totalChecks, tc.Name, path),
				zap.String("tool", tc.Name),
				zap.String("path", path))
		} else if tc.Optional {
			observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking for %s... ⚠️  not found (optional)", checkNum, totalChecks, tc.Name),
				zap.String("tool", tc.Name))
			observability.CLILogger.Info("       " + tc.Hint)
		} else {
			observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking for %s... ⚠️  not found", checkNum, totalChecks, tc.Name),
				zap.String("tool", tc.Name))
			observability.CLILogger.Info("       " + tc.Hint)
			allChecks = false
		}
		checkNum++
	}

	// AWS-specific checks
	if awsActive {
		allChecks = runAWSChecks(cmd.Context(), checkNum, totalChecks) && allChecks
	}

	observability.CLILogger.Info("")
	if allChecks {
		observability.CLILogger.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", bannerName))
	} else {
		observability.CLILogger.Warn("⚠️  Some checks failed. Review the output above for details.")
	}
	observability.CLILogger.Info("")
	observability.CLILogger.Info("=== End Diagnostics ===")
}

// doctorMethodChain resolves the method set under diagnosis.
func doctorMethodChain() ([]backend.Method, error) {
	if len(doctorMethods) == 0 {
		return backend.DefaultMethods(), nil
	}
	return backend.ParseMethodList(doctorMethods)
}

// doctorTools lists the binaries the chain and the extraction pipeline
// would call, method tools first, in a stable order.
func doctorTools(methods []backend.Method) []toolCheck {
	var tools []toolCheck
	seen := map[string]bool{}
	add := func(tc toolCheck) {
		if !seen[tc.Name] {
			seen[tc.Name] = true
			tools = append(tools, tc)
		}
	}

	container := false
	for _, m := range methods {
		switch m {
		case backend.MethodENAAscp:
			add(toolCheck{Name: "ascp", Hint: "Install IBM Aspera Connect or the conda aspera-cli package; without it the chain falls through to ena-ftp."})
		case backend.MethodPrefetch:
			add(toolCheck{Name: "prefetch", Hint: "Part of the NCBI SRA Toolkit: https://github.com/ncbi/sra-tools"})
		case backend.MethodGCPCP:
			add(toolCheck{Name: "gcloud", Hint: "Install the Google Cloud CLI and run 'gcloud auth login'."})
		}
		if cap, ok := backend.Capabilities(m); ok && cap.Artifact == backend.KindRawContainer {
			container = true
		}
	}

	if container {
		add(toolCheck{Name: "fasterq-dump", Hint: "Part of the NCBI SRA Toolkit; required to extract .sra containers."})
		add(toolCheck{Name: "sracat", Hint: "Needed for --unsorted and --stdout extraction from containers.", Optional: true})
	}
	add(toolCheck{Name: "pigz", Hint: "Parallel gzip; plain gzip is used when absent.", Optional: true})
	add(toolCheck{Name: "seqtk", Hint: "Used to derive fasta outputs from direct-FASTQ downloads.", Optional: true})

	return tools
}

func methodsContain(methods []backend.Method, m backend.Method) bool {
	for _, have := range methods {
		if have == m {
			return true
		}
	}
	return false
}

// proxyEnv returns the proxy variables that are set, as NAME=value.
func proxyEnv() []string {
	var found []string
	for _, name := range []string{"http_proxy", "HTTP_PROXY", "https_proxy", "HTTPS_PROXY", "ftp_proxy", "FTP_PROXY", "no_proxy", "NO_PROXY"} {
		if v := os.Getenv(name); v != "" {
			found = append(found, name+"="+v)
		}
	}
	return found
}

// runAWSChecks verifies the default credential chain resolves. aws-cp
// needs credentials only for requester-pays placements, so a failure
// here is a warning, not a hard stop.
func runAWSChecks(ctx context.Context, checkNum, totalChecks int) bool {
	observability.CLILogger.Info("")
	observability.CLILogger.Info("AWS Checks (aws-cp):")

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking AWS credentials... ❌ Cannot load AWS config", checkNum, totalChecks),
			zap.Error(err))
		printAWSCredentialsHelp()
		return false
	}

	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking AWS credentials... ⚠️  Cannot retrieve credentials", checkNum, totalChecks),
			zap.Error(err))
		observability.CLILogger.Info("       Public placements still work anonymously; requester-pays needs credentials.")
		printAWSCredentialsHelp()
		return false
	}

	maskedKey := maskAccessKey(creds.AccessKeyID)
	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking AWS credentials... ✅ Found credentials", checkNum, totalChecks),
		zap.String("access_key", maskedKey),
		zap.String("source", creds.Source))
	checkNum++

	source := creds.Source
	if source == "" {
		source = "unknown"
	}
	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking credential source... ✅ %s", checkNum, totalChecks, source),
		zap.String("credential_source", source))

	return true
}

// maskAccessKey masks all but the last 4 characters of an access key.
func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// printAWSCredentialsHelp prints help for configuring AWS credentials.
func printAWSCredentialsHelp() {
	observability.CLILogger.Info("")
	observability.CLILogger.Info("To configure AWS credentials:")
	observability.CLILogger.Info("  1. Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY environment variables, or")
	observability.CLILogger.Info("  2. Run 'aws configure' to set up a profile, or")
	observability.CLILogger.Info("  3. Use an IAM role when running on AWS infrastructure")
	observability.CLILogger.Info("")
}
