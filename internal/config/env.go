package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig       = "ONEDRIVE_BACKUP_CONFIG"
	EnvClientID     = "ONEDRIVE_BACKUP_CLIENT_ID"
	EnvClientSecret = "ONEDRIVE_BACKUP_CLIENT_SECRET"
	EnvRedirectURI  = "ONEDRIVE_BACKUP_REDIRECT_URI"
	EnvCertFile     = "ONEDRIVE_BACKUP_CERT_FILE"
)

// EnvOverrides holds values derived from environment variables. Empty
// fields mean "not set".
type EnvOverrides struct {
	ConfigPath   string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	CertFile     string
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:   os.Getenv(EnvConfig),
		ClientID:     os.Getenv(EnvClientID),
		ClientSecret: os.Getenv(EnvClientSecret),
		RedirectURI:  os.Getenv(EnvRedirectURI),
		CertFile:     os.Getenv(EnvCertFile),
	}
}

// apply copies every set override into cfg.
func (e EnvOverrides) apply(cfg *Config) {
	setIfNonEmpty(&cfg.Auth.ClientID, e.ClientID)
	setIfNonEmpty(&cfg.Auth.ClientSecret, e.ClientSecret)
	setIfNonEmpty(&cfg.Auth.RedirectURI, e.RedirectURI)
	setIfNonEmpty(&cfg.Auth.CertFile, e.CertFile)
}

func setIfNonEmpty(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
