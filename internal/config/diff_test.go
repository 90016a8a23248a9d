package config_test

import (
	"testing"

	"github.com/areufunny/areufunny/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server:  config.ServerConfig{LogLevel: config.LogInfo},
		Capture: config.CaptureConfig{CountdownFrom: 3},
		Feed:    config.FeedConfig{PageSize: 10},
	}
	d := config.Diff(cfg, cfg)
	if d.Any() {
		t.Errorf("expected no changes for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if d.CaptureChanged || d.FeedChanged || d.UploadChanged {
		t.Errorf("unrelated sections flagged: %+v", d)
	}
}

func TestDiff_CaptureChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Capture: config.CaptureConfig{CountdownFrom: 3}}
	new := &config.Config{Capture: config.CaptureConfig{CountdownFrom: 5}}

	d := config.Diff(old, new)
	if !d.CaptureChanged {
		t.Error("expected CaptureChanged=true")
	}
	if d.NewCapture.CountdownFrom != 5 {
		t.Errorf("NewCapture.CountdownFrom: got %d, want 5", d.NewCapture.CountdownFrom)
	}
}

func TestDiff_UploadLimitChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Upload: config.UploadConfig{DailyPostLimit: 0}}
	new := &config.Config{Upload: config.UploadConfig{DailyPostLimit: 3}}

	d := config.Diff(old, new)
	if !d.UploadChanged {
		t.Error("expected UploadChanged=true")
	}
	if d.NewUpload.DailyPostLimit != 3 {
		t.Errorf("NewUpload.DailyPostLimit: got %d, want 3", d.NewUpload.DailyPostLimit)
	}
}

func TestDiff_RestartOnlyFieldsIgnored(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Server:  config.ServerConfig{ListenAddr: ":8080"},
		Storage: config.StorageConfig{PostgresDSN: "postgres://a"},
		Blob:    config.BlobConfig{Bucket: "one"},
	}
	new := &config.Config{
		Server:  config.ServerConfig{ListenAddr: ":9090"},
		Storage: config.StorageConfig{PostgresDSN: "postgres://b"},
		Blob:    config.BlobConfig{Bucket: "two"},
	}

	d := config.Diff(old, new)
	if d.Any() {
		t.Errorf("restart-only fields should not appear in the diff, got %+v", d)
	}
}

func TestDiff_MultipleChanges(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Feed:   config.FeedConfig{PageSize: 10},
	}
	new := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogWarn},
		Feed:   config.FeedConfig{PageSize: 25},
	}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if !d.FeedChanged {
		t.Error("expected FeedChanged=true")
	}
	if d.NewFeed.PageSize != 25 {
		t.Errorf("NewFeed.PageSize: got %d, want 25", d.NewFeed.PageSize)
	}
}
