package config

const (
	defaultDataDir  = "~/.local/share/shuttle/data"
	defaultSpoolDir = "~/.local/share/shuttle/spool"
	defaultLogDir   = "~/.local/share/shuttle/logs"

	// Segments under this size are almost always a container header with no
	// audio frames, produced when the capture source suspends mid-record.
	defaultMinValidSize = 1000

	defaultStoreMaxTotalMiB   = 2048
	defaultStoreRetentionDays = 14

	defaultUploaderMaxConcurrent  = 3
	defaultUploaderMaxRetries     = 5
	defaultUploaderBaseDelay      = 1
	defaultUploaderMaxDelay       = 60
	defaultUploaderAttemptTimeout = 45
	defaultUploaderPollInterval   = 2

	defaultPresignRequestTimeout = 15

	defaultSpoolPollInterval = 1
	defaultSpoolContentType  = "audio/webm"

	defaultNetworkProbeInterval = 10
	defaultNetworkProbeTimeout  = 5

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			SpoolDir: defaultSpoolDir,
			LogDir:   defaultLogDir,
		},
		Gate: Gate{
			MinValidSize: defaultMinValidSize,
		},
		Store: Store{
			MaxTotalMiB:   defaultStoreMaxTotalMiB,
			RetentionDays: defaultStoreRetentionDays,
		},
		Uploader: Uploader{
			MaxConcurrent:         defaultUploaderMaxConcurrent,
			MaxRetries:            defaultUploaderMaxRetries,
			BaseDelaySeconds:      defaultUploaderBaseDelay,
			MaxDelaySeconds:       defaultUploaderMaxDelay,
			AttemptTimeoutSeconds: defaultUploaderAttemptTimeout,
			PollIntervalSeconds:   defaultUploaderPollInterval,
		},
		Presign: Presign{
			RequestTimeoutSeconds: defaultPresignRequestTimeout,
		},
		Spool: Spool{
			Enabled:             true,
			PollIntervalSeconds: defaultSpoolPollInterval,
			DefaultContentType:  defaultSpoolContentType,
		},
		Network: Network{
			ProbeIntervalSeconds: defaultNetworkProbeInterval,
			ProbeTimeoutSeconds:  defaultNetworkProbeTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
