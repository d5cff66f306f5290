package config

const (
	defaultRecordsDir = "~/.local/share/shepherd/records"
	defaultLogDir     = "~/.local/share/shepherd/logs"
	defaultStateDir   = "~/.local/share/shepherd/state"

	defaultFullCheckInterval  = 300
	defaultHookInterval       = 1
	defaultStatusInterval     = 5
	defaultMetricsInterval    = 30
	defaultErrorRetryInterval = 5
	defaultMaxRunners         = 5
	defaultZombieTimeout      = 7200

	defaultLockTimeout      = 30
	defaultLockRetryDelayMS = 100

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			RecordsDir: defaultRecordsDir,
			LogDir:     defaultLogDir,
			StateDir:   defaultStateDir,
		},
		Scheduler: Scheduler{
			FullCheckInterval:  defaultFullCheckInterval,
			HookInterval:       defaultHookInterval,
			StatusInterval:     defaultStatusInterval,
			MetricsInterval:    defaultMetricsInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			MaxRunners:         defaultMaxRunners,
			ZombieTimeout:      defaultZombieTimeout,
		},
		Locking: Locking{
			TimeoutSeconds: defaultLockTimeout,
			RetryDelayMS:   defaultLockRetryDelayMS,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
