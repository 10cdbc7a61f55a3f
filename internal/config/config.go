// Package config holds the run configuration for the pipeline. The
// configuration is captured from the environment exactly once at process
// start and is read-only afterwards; nothing reads the environment ad hoc
// at use sites.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/unosaa/datapipe/internal/errs"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultTarget      = "dev"
	DefaultGateway     = "local"
	DefaultUIPort      = 8080
	DefaultRegion      = "us-east-1"
	DefaultEndpointURL = "https://s3.amazonaws.com"
	DefaultDBPath      = "/app/sqlMesh/unosaa_data_pipeline.db"
	DefaultRunDBPath   = "/app/data/runs.db"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "console"

	// DefaultDryRunRawDataDir is handed to the ingest job in dry-run mode
	// when RAW_DATA_DIR is not set, pointing at the sample data baked into
	// the image.
	DefaultDryRunRawDataDir = "/app/data/raw"

	// fallbackUsername substitutes for an unset USERNAME in the S3
	// environment prefix, never in the configuration itself.
	fallbackUsername = "default"
)

// Config is the immutable run configuration. Secret fields are masked via
// Masked before any marshaling or printing.
type Config struct {
	Target      string `yaml:"target"`
	Gateway     string `yaml:"gateway"`
	RawDataDir  string `yaml:"raw_data_dir"`
	DryRun      bool   `yaml:"dry_run"`
	SkipSQLMesh bool   `yaml:"skip_sqlmesh"`
	UIPort      int    `yaml:"ui_port"`

	AWSAccessKeyID     string `yaml:"aws_access_key_id"`
	AWSSecretAccessKey string `yaml:"aws_secret_access_key"`
	AWSSessionToken    string `yaml:"aws_session_token"`
	AWSRegion          string `yaml:"aws_default_region"`
	AWSRoleARN         string `yaml:"aws_role_arn"`
	AWSEndpointURL     string `yaml:"aws_endpoint_url"`

	BucketName string `yaml:"s3_bucket_name"`
	Username   string `yaml:"username"`

	DBPath         string `yaml:"db_path"`
	RunDBPath      string `yaml:"run_db_path"`
	PushgatewayURL string `yaml:"pushgateway_url"`
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
}

// Load reads an optional .env file (existing environment wins) and then
// snapshots the environment into a Config.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv snapshots the recognized environment variables, applying the
// documented defaults. It performs no I/O and no validation beyond parsing.
func FromEnv() (Config, error) {
	port, err := intFromEnv("UI_PORT", DefaultUIPort)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Target:      strings.ToLower(stringFromEnv("TARGET", DefaultTarget)),
		Gateway:     stringFromEnv("GATEWAY", DefaultGateway),
		RawDataDir:  os.Getenv("RAW_DATA_DIR"),
		DryRun:      boolFromEnv("DRY_RUN_FLG"),
		SkipSQLMesh: boolFromEnv("SKIP_SQLMESH"),
		UIPort:      port,

		AWSAccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		AWSSessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		AWSRegion:          stringFromEnv("AWS_DEFAULT_REGION", DefaultRegion),
		AWSRoleARN:         os.Getenv("AWS_ROLE_ARN"),
		AWSEndpointURL:     stringFromEnv("AWS_ENDPOINT_URL", DefaultEndpointURL),

		BucketName: os.Getenv("S3_BUCKET_NAME"),
		Username:   strings.ToLower(os.Getenv("USERNAME")),

		DBPath:         stringFromEnv("DB_PATH", DefaultDBPath),
		RunDBPath:      stringFromEnv("RUN_DB_PATH", DefaultRunDBPath),
		PushgatewayURL: os.Getenv("PUSHGATEWAY_URL"),
		LogLevel:       stringFromEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:      stringFromEnv("LOG_FORMAT", DefaultLogFormat),
	}
	return cfg, nil
}

func stringFromEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// boolFromEnv treats exactly "true" (case-insensitive) as true, matching
// the shell-level contract of DRY_RUN_FLG and SKIP_SQLMESH.
func boolFromEnv(key string) bool {
	return strings.EqualFold(os.Getenv(key), "true")
}

func intFromEnv(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &errs.ConfigError{Field: key, Reason: fmt.Sprintf("not an integer: %q", v)}
	}
	return n, nil
}

// S3Env returns the environment prefix inside the bucket: "prod" for the
// prod target, otherwise "dev/{target}_{username}". Everything that is not
// production lives under dev/, including qa.
func (c Config) S3Env() string {
	if c.Target == "prod" {
		return "prod"
	}
	return fmt.Sprintf("dev/%s_%s", c.Target, c.usernameOrFallback())
}

func (c Config) usernameOrFallback() string {
	if c.Username == "" {
		return fallbackUsername
	}
	return c.Username
}

// LandingPrefix is the S3 prefix raw ingested artifacts land under.
func (c Config) LandingPrefix() string { return c.S3Env() + "/landing" }

// StagingPrefix is the S3 prefix staged artifacts live under.
func (c Config) StagingPrefix() string { return c.S3Env() + "/staging" }

// TransformedPrefix is the S3 prefix transformed outputs are written under.
func (c Config) TransformedPrefix() string { return c.S3Env() + "/transformed" }

// StateKey is the object key of the state blob inside the bucket.
func (c Config) StateKey() string {
	return c.S3Env() + "/" + filepath.Base(c.DBPath)
}

// SQLMeshDir is the SQLMesh project directory, colocated with the state blob.
func (c Config) SQLMeshDir() string { return filepath.Dir(c.DBPath) }

// UploadAllowed reports whether state uploads are permitted for the target.
// Only prod and qa publish state; dev runs keep their state local.
func (c Config) UploadAllowed() bool {
	return c.Target == "prod" || c.Target == "qa"
}

// DryRunRawDataDir is the ingest input dir handed to the job in dry-run mode.
func (c Config) DryRunRawDataDir() string {
	if c.RawDataDir != "" {
		return c.RawDataDir
	}
	return DefaultDryRunRawDataDir
}

// HasStaticCredentials reports whether a static key pair is configured.
func (c Config) HasStaticCredentials() bool {
	return c.AWSAccessKeyID != "" && c.AWSSecretAccessKey != ""
}

// Validate checks that the configuration can run a pipeline and creates the
// local directories the pipeline writes into. Dry runs skip the
// remote-storage requirements.
func (c Config) Validate() error {
	switch c.Target {
	case "dev", "qa", "prod":
	default:
		return &errs.ConfigError{Field: "TARGET", Reason: fmt.Sprintf("%q is not one of dev, qa, prod", c.Target)}
	}
	if c.UIPort < 1 || c.UIPort > 65535 {
		return &errs.ConfigError{Field: "UI_PORT", Reason: fmt.Sprintf("%d is not a valid TCP port", c.UIPort)}
	}
	if c.DBPath == "" {
		return &errs.ConfigError{Field: "DB_PATH", Reason: "state blob path is empty"}
	}

	dirs := []string{filepath.Dir(c.DBPath)}
	if c.RawDataDir != "" {
		dirs = append(dirs, c.RawDataDir)
	}
	if c.RunDBPath != "" {
		dirs = append(dirs, filepath.Dir(c.RunDBPath))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &errs.ConfigError{Field: dir, Reason: fmt.Sprintf("cannot create directory: %v", err)}
		}
	}

	if c.DryRun {
		return nil
	}

	if c.BucketName == "" {
		return &errs.ConfigError{Field: "S3_BUCKET_NAME", Reason: "required unless DRY_RUN_FLG=true"}
	}
	if !c.HasStaticCredentials() && c.AWSRoleARN == "" {
		return &errs.ConfigError{Reason: "no AWS credentials: set AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY or AWS_ROLE_ARN"}
	}
	// Temporary STS keys are prefixed ASIA and unusable without the
	// matching session token.
	if strings.HasPrefix(c.AWSAccessKeyID, "ASIA") && c.AWSSessionToken == "" {
		return &errs.ConfigError{Field: "AWS_SESSION_TOKEN", Reason: "temporary credentials (ASIA key) require a session token"}
	}
	return nil
}

// Masked returns a copy with every secret field run through Mask, safe for
// printing and marshaling.
func (c Config) Masked() Config {
	c.AWSAccessKeyID = Mask(c.AWSAccessKeyID)
	c.AWSSecretAccessKey = Mask(c.AWSSecretAccessKey)
	c.AWSSessionToken = Mask(c.AWSSessionToken)
	return c
}

// Mask hides a sensitive value: short values collapse to "***", longer
// ones keep the first and last four characters.
func Mask(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 8 {
		return "***"
	}
	return value[:4] + "..." + value[len(value)-4:]
}

// Item is one resolved configuration entry for display.
type Item struct {
	Name   string
	Value  string
	Secret bool
}

// Items lists every recognized variable with defaults applied, in the
// documented order. Secret values are already masked.
func (c Config) Items() []Item {
	return []Item{
		{Name: "TARGET", Value: c.Target},
		{Name: "GATEWAY", Value: c.Gateway},
		{Name: "RAW_DATA_DIR", Value: c.RawDataDir},
		{Name: "DRY_RUN_FLG", Value: strconv.FormatBool(c.DryRun)},
		{Name: "SKIP_SQLMESH", Value: strconv.FormatBool(c.SkipSQLMesh)},
		{Name: "UI_PORT", Value: strconv.Itoa(c.UIPort)},
		{Name: "AWS_ACCESS_KEY_ID", Value: Mask(c.AWSAccessKeyID), Secret: true},
		{Name: "AWS_SECRET_ACCESS_KEY", Value: Mask(c.AWSSecretAccessKey), Secret: true},
		{Name: "AWS_SESSION_TOKEN", Value: Mask(c.AWSSessionToken), Secret: true},
		{Name: "AWS_DEFAULT_REGION", Value: c.AWSRegion},
		{Name: "AWS_ROLE_ARN", Value: c.AWSRoleARN},
		{Name: "AWS_ENDPOINT_URL", Value: c.AWSEndpointURL},
		{Name: "S3_BUCKET_NAME", Value: c.BucketName},
		{Name: "USERNAME", Value: c.Username},
		{Name: "DB_PATH", Value: c.DBPath},
		{Name: "RUN_DB_PATH", Value: c.RunDBPath},
		{Name: "PUSHGATEWAY_URL", Value: c.PushgatewayURL},
		{Name: "LOG_LEVEL", Value: c.LogLevel},
		{Name: "LOG_FORMAT", Value: c.LogFormat},
	}
}

// CredentialItems lists the cloud-credential variables for debug output,
// secrets masked.
func (c Config) CredentialItems() []Item {
	return []Item{
		{Name: "AWS_ACCESS_KEY_ID", Value: Mask(c.AWSAccessKeyID), Secret: true},
		{Name: "AWS_SECRET_ACCESS_KEY", Value: Mask(c.AWSSecretAccessKey), Secret: true},
		{Name: "AWS_SESSION_TOKEN", Value: Mask(c.AWSSessionToken), Secret: true},
		{Name: "AWS_DEFAULT_REGION", Value: c.AWSRegion},
		{Name: "AWS_ROLE_ARN", Value: c.AWSRoleARN},
	}
}
