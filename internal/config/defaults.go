package config

// MaxUploadBytesDefault caps accepted uploads at 10 MiB.
const MaxUploadBytesDefault = 10 * 1024 * 1024

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/policyd/data/policyd.db"
	}
	if cfg.Storage.UploadDir == "" {
		cfg.Storage.UploadDir = "/usr/local/var/policyd/uploads/policies"
	}
	if cfg.Ingest.MaxUploadBytes == 0 {
		cfg.Ingest.MaxUploadBytes = MaxUploadBytesDefault
	}
	if cfg.List.DefaultLimit == 0 {
		cfg.List.DefaultLimit = 20
	}
	if cfg.List.MaxLimit == 0 {
		cfg.List.MaxLimit = 100
	}
}
