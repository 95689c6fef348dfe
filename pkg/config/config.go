// Package config loads qaflow configuration from qaflow.yaml and QAFLOW_*
// environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/qaflow/pkg/engine"
	"github.com/ormasoftchile/qaflow/pkg/trace"
)

// DefaultFile is read when no path is given and it exists in the working
// directory.
const DefaultFile = "qaflow.yaml"

// Config controls every qaflow command.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Browser   BrowserConfig   `yaml:"browser"`
	Timeouts  engine.Timeouts `yaml:"timeouts"`
	Run       RunConfig       `yaml:"run"`
	Compile   CompileConfig   `yaml:"compile"`
	Logging   LoggingConfig   `yaml:"logging"`
	Trace     TraceConfig     `yaml:"trace"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	NATS      NATSConfig      `yaml:"nats"`
}

type StoreConfig struct {
	Backend       string `yaml:"backend" validate:"oneof=file memory redis"`
	Dir           string `yaml:"dir" validate:"required_if=Backend file"`
	RedisAddr     string `yaml:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db" validate:"min=0"`
	RedisPrefix   string `yaml:"redis_prefix"`
}

type ArtifactsConfig struct {
	Backend     string `yaml:"backend" validate:"oneof=file s3 none"`
	Dir         string `yaml:"dir" validate:"required_if=Backend file"`
	S3Bucket    string `yaml:"s3_bucket" validate:"required_if=Backend s3"`
	S3Prefix    string `yaml:"s3_prefix"`
	S3Region    string `yaml:"s3_region"`
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3AccessKey string `yaml:"s3_access_key"`
	S3SecretKey string `yaml:"s3_secret_key"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

type BrowserConfig struct {
	Driver   string `yaml:"driver" validate:"oneof=chrome memory"`
	Headless bool   `yaml:"headless"`
	ExecPath string `yaml:"exec_path"`
	Width    int    `yaml:"width" validate:"min=0"`
	Height   int    `yaml:"height" validate:"min=0"`
	// Fixture is the page fixture served by the memory driver.
	Fixture string `yaml:"fixture" validate:"required_if=Driver memory"`
}

type RunConfig struct {
	Parallelism int           `yaml:"parallel" validate:"min=1"`
	TestTimeout time.Duration `yaml:"test_timeout" validate:"gt=0"`
	Retries     int           `yaml:"retries" validate:"min=0,max=10"`
	ResultsDir  string        `yaml:"results_dir" validate:"required"`
	FailWhen    string        `yaml:"fail_when"`
	Target      string        `yaml:"target" validate:"omitempty,url"`
}

type CompileConfig struct {
	Mode        string `yaml:"mode" validate:"oneof=strict lossy"`
	OllamaHost  string `yaml:"ollama_host" validate:"omitempty,url"`
	OllamaModel string `yaml:"ollama_model"`
}

type LoggingConfig struct {
	Format string `yaml:"format" validate:"oneof=json console"`
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
}

type TraceConfig struct {
	Enabled    bool                  `yaml:"enabled"`
	Redactions []trace.RedactionRule `yaml:"redactions" validate:"dive"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen" validate:"omitempty,hostname_port"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Store:     StoreConfig{Backend: "file", Dir: ".qaflow/testcases", RedisPrefix: "qaflow:"},
		Artifacts: ArtifactsConfig{Backend: "file", Dir: ".qaflow/artifacts"},
		Browser:   BrowserConfig{Driver: "chrome", Headless: true, Width: 1280, Height: 800},
		Timeouts:  engine.DefaultTimeouts(),
		Run: RunConfig{
			Parallelism: 1,
			TestTimeout: 5 * time.Minute,
			ResultsDir:  ".qaflow/results",
			FailWhen:    "failed > 0",
		},
		Compile: CompileConfig{Mode: "lossy"},
		Logging: LoggingConfig{Format: "console", Level: "info"},
		Metrics: MetricsConfig{Enabled: true},
		NATS:    NATSConfig{Subject: "qaflow.reports"},
	}
}

// Load reads path (or DefaultFile when path is empty and present), applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Store.Backend = envOrDefault("QAFLOW_STORE", c.Store.Backend)
	c.Store.Dir = envOrDefault("QAFLOW_STORE_DIR", c.Store.Dir)
	c.Store.RedisAddr = envOrDefault("QAFLOW_REDIS_ADDR", c.Store.RedisAddr)
	c.Store.RedisPassword = envOrDefault("QAFLOW_REDIS_PASSWORD", c.Store.RedisPassword)
	c.Store.RedisDB = envOrDefaultInt("QAFLOW_REDIS_DB", c.Store.RedisDB)

	c.Artifacts.Backend = envOrDefault("QAFLOW_ARTIFACTS", c.Artifacts.Backend)
	c.Artifacts.Dir = envOrDefault("QAFLOW_ARTIFACTS_DIR", c.Artifacts.Dir)
	c.Artifacts.S3Bucket = envOrDefault("QAFLOW_S3_BUCKET", c.Artifacts.S3Bucket)
	c.Artifacts.S3Prefix = envOrDefault("QAFLOW_S3_PREFIX", c.Artifacts.S3Prefix)
	c.Artifacts.S3Region = envOrDefault("QAFLOW_S3_REGION", c.Artifacts.S3Region)
	c.Artifacts.S3Endpoint = envOrDefault("QAFLOW_S3_ENDPOINT", c.Artifacts.S3Endpoint)
	c.Artifacts.S3AccessKey = envOrDefault("QAFLOW_S3_ACCESS_KEY", c.Artifacts.S3AccessKey)
	c.Artifacts.S3SecretKey = envOrDefault("QAFLOW_S3_SECRET_KEY", c.Artifacts.S3SecretKey)
	c.Artifacts.S3PathStyle = envOrDefaultBool("QAFLOW_S3_PATH_STYLE", c.Artifacts.S3PathStyle)

	c.Browser.Driver = envOrDefault("QAFLOW_BROWSER", c.Browser.Driver)
	c.Browser.Headless = envOrDefaultBool("QAFLOW_HEADLESS", c.Browser.Headless)
	c.Browser.ExecPath = envOrDefault("QAFLOW_CHROME_PATH", c.Browser.ExecPath)
	c.Browser.Fixture = envOrDefault("QAFLOW_BROWSER_FIXTURE", c.Browser.Fixture)

	c.Timeouts.Navigation = envOrDefaultDuration("QAFLOW_TIMEOUT_NAVIGATION", c.Timeouts.Navigation)
	c.Timeouts.Interaction = envOrDefaultDuration("QAFLOW_TIMEOUT_INTERACTION", c.Timeouts.Interaction)
	c.Timeouts.Assertion = envOrDefaultDuration("QAFLOW_TIMEOUT_ASSERTION", c.Timeouts.Assertion)

	c.Run.Parallelism = envOrDefaultInt("QAFLOW_PARALLEL", c.Run.Parallelism)
	c.Run.TestTimeout = envOrDefaultDuration("QAFLOW_TEST_TIMEOUT", c.Run.TestTimeout)
	c.Run.Retries = envOrDefaultInt("QAFLOW_RETRIES", c.Run.Retries)
	c.Run.ResultsDir = envOrDefault("QAFLOW_RESULTS_DIR", c.Run.ResultsDir)
	c.Run.FailWhen = envOrDefault("QAFLOW_FAIL_WHEN", c.Run.FailWhen)
	c.Run.Target = envOrDefault("QAFLOW_TARGET", c.Run.Target)

	c.Compile.Mode = envOrDefault("QAFLOW_MODE", c.Compile.Mode)
	c.Compile.OllamaHost = envOrDefault("OLLAMA_HOST", c.Compile.OllamaHost)
	c.Compile.OllamaModel = envOrDefault("OLLAMA_MODEL", c.Compile.OllamaModel)

	c.Logging.Format = envOrDefault("QAFLOW_LOG_FORMAT", c.Logging.Format)
	c.Logging.Level = envOrDefault("QAFLOW_LOG_LEVEL", c.Logging.Level)

	c.Trace.Enabled = envOrDefaultBool("QAFLOW_TRACE", c.Trace.Enabled)
	c.Metrics.Enabled = envOrDefaultBool("QAFLOW_METRICS", c.Metrics.Enabled)
	c.Metrics.Listen = envOrDefault("QAFLOW_METRICS_LISTEN", c.Metrics.Listen)
	c.NATS.URL = envOrDefault("QAFLOW_NATS_URL", c.NATS.URL)
	c.NATS.Subject = envOrDefault("QAFLOW_NATS_SUBJECT", c.NATS.Subject)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		t := sl.Current().Interface().(engine.Timeouts)
		if err := t.Validate(); err != nil {
			sl.ReportError(t.Navigation, "Navigation", "navigation", "timeout_order", "")
		}
	}, engine.Timeouts{})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		r := sl.Current().Interface().(trace.RedactionRule)
		if strings.TrimSpace(r.Pattern) == "" {
			sl.ReportError(r.Pattern, "Pattern", "pattern", "required", "")
		}
	}, trace.RedactionRule{})
	return v
}

// Validate checks field constraints and the timeout ordering.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(c, fe))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func describe(c *Config, fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "timeout_order":
		return c.Timeouts.Validate().Error()
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "required", "required_if":
		return fmt.Sprintf("%s is required", field)
	default:
		return fmt.Sprintf("%s fails %s %s (got %v)", field, fe.Tag(), fe.Param(), fe.Value())
	}
}

func envOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed := 0
	if _, err := fmt.Sscanf(value, "%d", &parsed); err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes", "y":
		return true
	case "0", "false", "no", "n":
		return false
	default:
		return fallback
	}
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
