// Package config loads the secrets and settings described in spec §6:
// environment-selected secrets binding supplying DB credentials, the TLS
// certificate/key/trust bundle, and the issuer subject DN, following the
// viper-backed flag/env/file layering the concierge tool uses.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config is the resolved runtime configuration for one process.
type Config struct {
	Env string

	DatabaseURL string
	RedisAddr   string

	ClientCertPath string
	ClientKeyPath  string
	TrustedCAsPath string

	SenderHCID   string
	IssuerSubject string

	HTTPPort int
}

// Load reads configuration from flags (already bound into v by the caller),
// environment variables, and an optional config file, the way the teacher
// CLI's initConfig does.
func Load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("HIE")
	v.AutomaticEnv()

	cfg := &Config{
		Env:            v.GetString("env"),
		DatabaseURL:    v.GetString("database-url"),
		RedisAddr:      v.GetString("redis-addr"),
		ClientCertPath: v.GetString("client-cert"),
		ClientKeyPath:  v.GetString("client-key"),
		TrustedCAsPath: v.GetString("trusted-cas"),
		SenderHCID:     v.GetString("sender-hcid"),
		IssuerSubject:  v.GetString("issuer-subject"),
		HTTPPort:       v.GetInt("port"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: database-url is required")
	}
	if cfg.ClientCertPath == "" || cfg.ClientKeyPath == "" || cfg.TrustedCAsPath == "" {
		return nil, fmt.Errorf("config: client-cert, client-key, and trusted-cas are all required")
	}
	if cfg.SenderHCID == "" {
		return nil, fmt.Errorf("config: sender-hcid is required")
	}

	return cfg, nil
}
