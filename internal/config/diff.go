package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; network, storage,
// and blob settings require a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	CaptureChanged bool
	NewCapture     CaptureConfig

	FeedChanged bool
	NewFeed     FeedConfig

	UploadChanged bool
	NewUpload     UploadConfig
}

// Any reports whether the diff contains any change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.CaptureChanged || d.FeedChanged || d.UploadChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Capture != new.Capture {
		d.CaptureChanged = true
		d.NewCapture = new.Capture
	}

	if old.Feed != new.Feed {
		d.FeedChanged = true
		d.NewFeed = new.Feed
	}

	if old.Upload != new.Upload {
		d.UploadChanged = true
		d.NewUpload = new.Upload
	}

	return d
}
