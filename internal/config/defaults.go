package config

// Default returns the baseline configuration applied before the file and
// environment overrides.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: "~/.local/share/marquee",
			LogDir:  "~/.local/share/marquee/logs",
			APIBind: "127.0.0.1:7810",
		},
		Server: Server{
			HealthPath:     "/healthz",
			RequestTimeout: 30,
		},
		Cache: Cache{
			MaxMiB:         2048,
			FreeSpaceFloor: 0.10,
			SweepInterval:  60,
		},
		Sync: Sync{
			Workers:           2,
			QueuePollInterval: 5,
			BaseDelay:         2,
			MaxDelay:          300,
			MaxAttempts:       6,
			SucceededGrace:    3600,
			DeadLetterCap:     50,
		},
		Connectivity: Connectivity{
			ProbeInterval: 15,
			ProbeTimeout:  5,
		},
		Logging: Logging{
			Format:     "console",
			Level:      "info",
			MaxSizeMB:  20,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			DeadLetter:     true,
			Integrity:      true,
		},
	}
}
