package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/seqport/sracatch/pkg/ena"
	"github.com/seqport/sracatch/pkg/manifest"
)

var (
	configMu  sync.RWMutex
	appConfig *Config
)

// Load reads configuration and caches the result for GetConfig.
//
// Precedence: runtime overrides > environment > config file > defaults.
// Later override maps win over earlier ones.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	_ = ctx

	v := viper.New()
	setDefaults(v)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	bindEnv(v)

	// Explicit Set puts overrides in viper's highest-precedence layer,
	// above environment variables.
	for _, o := range overrides {
		applyOverrides(v, "", o)
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()
	return &cfg, nil
}

// GetConfig returns the most recently loaded config, or nil before the
// first Load.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "cli")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.file_max_size_mb", 20)
	v.SetDefault("logging.file_max_backups", 5)

	v.SetDefault("download.methods", manifest.DefaultMethodNames())
	v.SetDefault("download.allow_paid", false)
	v.SetDefault("download.ascp_key", "")
	v.SetDefault("download.gcp_project", "")
	v.SetDefault("download.aws_profile", "")

	v.SetDefault("extract.formats", manifest.DefaultFormats())
	v.SetDefault("extract.threads", manifest.DefaultThreads)

	v.SetDefault("output.dir", manifest.DefaultDir)
	v.SetDefault("output.report", "")
	v.SetDefault("output.ledger", "")

	v.SetDefault("batch.concurrency", manifest.DefaultConcurrency)

	v.SetDefault("ena.portal_base", ena.DefaultPortalBase)
	v.SetDefault("ena.sdl_base", ena.DefaultSDLBase)
	v.SetDefault("ena.eutils_base", ena.DefaultEutilsBase)
	v.SetDefault("ena.requests_per_second", 2.0)
	v.SetDefault("ena.timeout", "60s")
}

// readConfigFile reads the optional config file. A missing file is not
// an error; a malformed one is.
func readConfigFile(v *viper.Viper) error {
	if explicit := strings.TrimSpace(os.Getenv("SRACATCH_CONFIG")); explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", explicit, err)
		}
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "sracatch"))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config file: %w", err)
		}
	}
	return nil
}

// envBinding maps an operator-facing environment variable to its
// config key.
type envBinding struct {
	Name string
	Path string
}

// envBindings lists the short-form environment variables. Longer forms
// derived from the key path (SRACATCH_LOGGING_LEVEL) work through the
// automatic prefix binding.
func envBindings() []envBinding {
	return []envBinding{
		{Name: "SRACATCH_LOG_LEVEL", Path: "logging.level"},
		{Name: "SRACATCH_LOG_PROFILE", Path: "logging.profile"},
		{Name: "SRACATCH_LOG_FILE", Path: "logging.file"},
		{Name: "SRACATCH_METHODS", Path: "download.methods"},
		{Name: "SRACATCH_ASCP_KEY", Path: "download.ascp_key"},
		{Name: "SRACATCH_GCP_PROJECT", Path: "download.gcp_project"},
		{Name: "SRACATCH_AWS_PROFILE", Path: "download.aws_profile"},
		{Name: "SRACATCH_FORMATS", Path: "extract.formats"},
		{Name: "SRACATCH_THREADS", Path: "extract.threads"},
		{Name: "SRACATCH_OUTDIR", Path: "output.dir"},
		{Name: "SRACATCH_REPORT", Path: "output.report"},
		{Name: "SRACATCH_LEDGER", Path: "output.ledger"},
		{Name: "SRACATCH_CONCURRENCY", Path: "batch.concurrency"},
		{Name: "SRACATCH_ENA_TIMEOUT", Path: "ena.timeout"},
	}
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("SRACATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, b := range envBindings() {
		_ = v.BindEnv(b.Path, b.Name)
	}
}

// applyOverrides flattens nested override maps into dotted keys set at
// viper's override layer.
func applyOverrides(v *viper.Viper, prefix string, values map[string]any) {
	for key, val := range values {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			applyOverrides(v, full, nested)
			continue
		}
		v.Set(full, val)
	}
}
