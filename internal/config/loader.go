package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	// Capture timing
	if cfg.Capture.TargetDuration < 0 {
		errs = append(errs, fmt.Errorf("capture.target_duration %v must not be negative", cfg.Capture.TargetDuration.Std()))
	}
	if cfg.Capture.MinValidDuration < 0 {
		errs = append(errs, fmt.Errorf("capture.min_valid_duration %v must not be negative", cfg.Capture.MinValidDuration.Std()))
	}
	if cfg.Capture.SampleCadence < 0 {
		errs = append(errs, fmt.Errorf("capture.sample_cadence %v must not be negative", cfg.Capture.SampleCadence.Std()))
	}
	if cfg.Capture.TargetDuration > 0 && cfg.Capture.MinValidDuration > cfg.Capture.TargetDuration {
		errs = append(errs, fmt.Errorf("capture.min_valid_duration %v exceeds capture.target_duration %v",
			cfg.Capture.MinValidDuration.Std(), cfg.Capture.TargetDuration.Std()))
	}
	if cfg.Capture.CountdownFrom < 0 {
		errs = append(errs, fmt.Errorf("capture.countdown_from %d must not be negative", cfg.Capture.CountdownFrom))
	}

	// Feed
	if cfg.Feed.PageSize < 0 {
		errs = append(errs, fmt.Errorf("feed.page_size %d must not be negative", cfg.Feed.PageSize))
	}
	if cfg.Feed.PageSize > 50 {
		errs = append(errs, fmt.Errorf("feed.page_size %d exceeds the maximum of 50", cfg.Feed.PageSize))
	}

	// Upload
	if cfg.Upload.DailyPostLimit < 0 {
		errs = append(errs, fmt.Errorf("upload.daily_post_limit %d must not be negative", cfg.Upload.DailyPostLimit))
	}

	// Blob credentials come in pairs.
	if (cfg.Blob.AccessKeyID == "") != (cfg.Blob.SecretAccessKey == "") {
		errs = append(errs, errors.New("blob.access_key_id and blob.secret_access_key must be set together"))
	}

	// Availability warnings — these keep the server bootable for local
	// development without a full backing stack.
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; sets and votes will not be persisted")
	}
	if cfg.Blob.Bucket == "" {
		slog.Warn("blob.bucket is empty; audio uploads will not be stored")
	}

	return errors.Join(errs...)
}
