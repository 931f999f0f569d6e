// Package config loads the template-module configuration from a YAML file
// and WISER_* environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/wiserhq/templates/internal/branch"
	"github.com/wiserhq/templates/internal/storage"
)

// Config is everything the service needs to run against one tenant.
type Config struct {
	Database storage.ConnParams

	// CDNBaseURL prefixes relative external-file names from converted
	// legacy templates.
	CDNBaseURL string

	// Actor is recorded as changed_by when no explicit actor is given.
	Actor string

	// CacheTTL bounds how long rendered template state may be served
	// without hitting the database.
	CacheTTL time.Duration

	// BranchAccess grants branch deployments: either everyone, or an
	// explicit username -> branch id list.
	BranchAccess branch.ConfigAccess
}

// Load reads configuration from path (or the default search path when path
// is empty) and applies environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("wiser")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.wiser")
		v.AddConfigPath("/etc/wiser")
	}
	v.SetEnvPrefix("WISER")
	v.AutomaticEnv()

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("actor", "wiser")

	if err := v.ReadInConfig(); err != nil {
		// A missing default config file is fine; env vars and defaults
		// still apply. An explicit path must exist.
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound || path != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		Database: storage.ConnParams{
			Host:     v.GetString("database.host"),
			Port:     v.GetInt("database.port"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			Database: v.GetString("database.name"),
			Timeout:  v.GetDuration("database.timeout"),
		},
		CDNBaseURL: v.GetString("cdn.base_url"),
		Actor:      v.GetString("actor"),
		CacheTTL:   v.GetDuration("cache.ttl"),
		BranchAccess: branch.ConfigAccess{
			AllowAll: v.GetBool("branches.allow_all"),
			Grants:   loadGrants(v),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadGrants(v *viper.Viper) map[string][]int64 {
	raw := v.GetStringMap("branches.grants")
	if len(raw) == 0 {
		return nil
	}
	grants := make(map[string][]int64, len(raw))
	for user := range raw {
		ids := v.GetIntSlice("branches.grants." + user)
		out := make([]int64, 0, len(ids))
		for _, id := range ids {
			out = append(out, int64(id))
		}
		grants[user] = out
	}
	return grants
}

func (c *Config) validate() error {
	if c.Database.Database == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	return nil
}
