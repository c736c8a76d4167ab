package config

const (
	defaultDataDir              = "~/.local/share/slicerd"
	defaultLogDir               = "~/.local/share/slicerd/logs"
	defaultAPIBind              = "127.0.0.1:8745"
	defaultSlicerBinary         = "/usr/local/bin/orcaslicer"
	defaultSlicerDataDir        = "~/.config/slicerd/orca"
	defaultSlicerTimeoutSeconds = 1800
	defaultUploadMaxSizeMiB     = 512
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Slicer: Slicer{
			Binary:         defaultSlicerBinary,
			DataDir:        defaultSlicerDataDir,
			TimeoutSeconds: defaultSlicerTimeoutSeconds,
		},
		Uploads: Uploads{
			MaxSizeMiB: defaultUploadMaxSizeMiB,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
