package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"fabricclaim/services/claim"
)

// Platform configures the management platform client.
type Platform struct {
	KeyID        string        `env:"KEY_ID" yaml:"key_id"`
	KeyFile      string        `env:"KEY_FILE" yaml:"key_file"`
	BaseURL      string        `env:"BASE_URL,default=https://intersight.com/api/v1" yaml:"base_url"`
	VerifyTLS    bool          `env:"VERIFY_TLS,default=true" yaml:"verify_tls"`
	Organization string        `env:"ORGANIZATION,default=default" yaml:"organization"`
	Timeout      time.Duration `env:"TIMEOUT,default=60s" yaml:"timeout"`
}

// Console configures the device console client. Every address shares the
// same credentials.
type Console struct {
	Addresses []string      `env:"ADDRESSES" yaml:"addresses"`
	Username  string        `env:"USERNAME" yaml:"username"`
	Password  string        `env:"PASSWORD" yaml:"password"`
	Timeout   time.Duration `env:"TIMEOUT,default=30s" yaml:"timeout"`
}

// Storage configures the S3-compatible report archive.
type Storage struct {
	Endpoint       string `env:"ENDPOINT" yaml:"endpoint"`
	Region         string `env:"REGION,default=us-east-1" yaml:"region"`
	AccessKey      string `env:"ACCESS_KEY" yaml:"access_key"`
	SecretKey      string `env:"SECRET_KEY" yaml:"secret_key"`
	DisableTLS     bool   `env:"DISABLE_TLS,default=false" yaml:"disable_tls"`
	ForcePathStyle bool   `env:"FORCE_PATH_STYLE,default=true" yaml:"force_path_style"`
}

// Config holds runtime configuration for the fabricclaim CLI.
type Config struct {
	Platform     Platform `env:", prefix=PLATFORM_" yaml:"platform"`
	Console      Console  `env:", prefix=CONSOLE_" yaml:"console"`
	Storage      Storage  `env:", prefix=S3_" yaml:"storage"`
	AgeSecretKey string   `env:"AGE_SECRET_KEY" yaml:"age_secret_key"`

	DBDSN          string `env:"DB_DSN" yaml:"db_dsn"`
	NATSURL        string `env:"NATS_URL" yaml:"nats_url"`
	ReportBucket   string `env:"REPORT_BUCKET" yaml:"report_bucket"`
	PushgatewayURL string `env:"PUSHGATEWAY_URL" yaml:"pushgateway_url"`
	OTLPEndpoint   string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" yaml:"otlp_endpoint"`

	LogLevel      string `env:"LOG_LEVEL,default=info" yaml:"log_level"`
	LogFormat     string `env:"LOG_FORMAT,default=console" yaml:"log_format"`
	FailOnPartial bool   `env:"FAIL_ON_PARTIAL,default=false" yaml:"fail_on_partial"`
}

// Load reads the environment, then overlays the YAML file at path when one
// is given. Keys present in the file win over the environment.
func Load(ctx context.Context, path string) (Config, error) {
	return load(ctx, envconfig.OsLookuper(), path)
}

func load(ctx context.Context, lookuper envconfig.Lookuper, path string) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return Config{}, fmt.Errorf("%w: %v", claim.ErrConfiguration, err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("%w: read config file: %v", claim.ErrConfiguration, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: parse config file %s: %v", claim.ErrConfiguration, path, err)
		}
	}

	cfg.Console.Addresses = CleanAddresses(cfg.Console.Addresses)
	return cfg, nil
}

// CleanAddresses trims each address and drops empty ones. The result is never nil.
func CleanAddresses(in []string) []string {
	out := make([]string, 0, len(in))
	for _, a := range in {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// ValidateConsole checks what every console-facing command needs.
func (c Config) ValidateConsole() error {
	return wrap(c.consoleErrors())
}

func (c Config) consoleErrors() []error {
	var errs []error
	if c.Console.Username == "" {
		errs = append(errs, errors.New("CONSOLE_USERNAME is required"))
	}
	if c.Console.Password == "" {
		errs = append(errs, errors.New("CONSOLE_PASSWORD is required"))
	}
	if c.Console.Timeout <= 0 {
		errs = append(errs, errors.New("CONSOLE_TIMEOUT must be positive"))
	}
	return errs
}

// ValidateClaim checks what a claim run needs.
func (c Config) ValidateClaim() error {
	errs := c.consoleErrors()
	if c.Platform.KeyID == "" {
		errs = append(errs, errors.New("PLATFORM_KEY_ID is required"))
	}
	if c.Platform.KeyFile == "" {
		errs = append(errs, errors.New("PLATFORM_KEY_FILE is required"))
	}
	if c.Platform.BaseURL == "" {
		errs = append(errs, errors.New("PLATFORM_BASE_URL is required"))
	}
	if c.Platform.Timeout <= 0 {
		errs = append(errs, errors.New("PLATFORM_TIMEOUT must be positive"))
	}
	switch c.LogFormat {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q must be json or console", c.LogFormat))
	}
	return wrap(errs)
}

// ValidateHistory checks what the history command needs.
func (c Config) ValidateHistory() error {
	if c.DBDSN == "" {
		return wrap([]error{errors.New("DB_DSN is required")})
	}
	return nil
}

func wrap(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", claim.ErrConfiguration, errors.Join(errs...))
}
