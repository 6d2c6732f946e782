// Package config loads sracatch configuration with precedence:
// runtime overrides > environment > config file > defaults.
//
// The config file is optional. Search order:
//
//  1. $SRACATCH_CONFIG (explicit path)
//  2. <user config dir>/sracatch/config.yaml
//
// Environment variables use the SRACATCH_ prefix with underscores
// (SRACATCH_LOG_LEVEL, SRACATCH_OUTDIR, ...).
package config

import "time"

// Config is the full application configuration.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Download DownloadConfig `mapstructure:"download"`
	Extract  ExtractConfig  `mapstructure:"extract"`
	Output   OutputConfig   `mapstructure:"output"`
	Batch    BatchConfig    `mapstructure:"batch"`
	ENA      ENAConfig      `mapstructure:"ena"`
}

// LoggingConfig controls the CLI logger.
type LoggingConfig struct {
	// Level is the minimum level: debug, info, warn, error.
	Level string `mapstructure:"level"`

	// Profile selects the output shape: "cli" for human terminals,
	// "structured" for JSON.
	Profile string `mapstructure:"profile"`

	// File is an optional rotating log file sink. Empty disables it.
	File string `mapstructure:"file"`

	// FileMaxSizeMB rotates the file sink after this many megabytes.
	FileMaxSizeMB int `mapstructure:"file_max_size_mb"`

	// FileMaxBackups bounds retained rotated files.
	FileMaxBackups int `mapstructure:"file_max_backups"`
}

// DownloadConfig sets download chain defaults overridable per command.
type DownloadConfig struct {
	Methods    []string `mapstructure:"methods"`
	AllowPaid  bool     `mapstructure:"allow_paid"`
	AscpKey    string   `mapstructure:"ascp_key"`
	AscpArgs   []string `mapstructure:"ascp_args"`
	GCPProject string   `mapstructure:"gcp_project"`
	AWSProfile string   `mapstructure:"aws_profile"`
}

// ExtractConfig sets conversion defaults.
type ExtractConfig struct {
	Formats []string `mapstructure:"formats"`
	Threads int      `mapstructure:"threads"`
}

// OutputConfig sets destination defaults.
type OutputConfig struct {
	Dir    string `mapstructure:"dir"`
	Report string `mapstructure:"report"`
	Ledger string `mapstructure:"ledger"`
}

// BatchConfig sets scheduling defaults.
type BatchConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// ENAConfig tunes the metadata clients.
type ENAConfig struct {
	// PortalBase overrides the ENA portal API base URL.
	PortalBase string `mapstructure:"portal_base"`

	// SDLBase overrides the NCBI SDL retrieve URL.
	SDLBase string `mapstructure:"sdl_base"`

	// EutilsBase overrides the NCBI eutils base URL.
	EutilsBase string `mapstructure:"eutils_base"`

	// RequestsPerSecond bounds the client-side request rate.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`

	// Timeout bounds each metadata HTTP request.
	Timeout time.Duration `mapstructure:"timeout"`
}
