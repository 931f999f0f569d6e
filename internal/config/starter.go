package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// starterConfig is the shape written by Starter. Kept separate from Config
// so the file shows every key a fresh installation needs, in a stable
// order.
type starterConfig struct {
	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		Timeout  string `yaml:"timeout"`
	} `yaml:"database"`
	CDN struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"cdn"`
	Actor string `yaml:"actor"`
	Cache struct {
		TTL string `yaml:"ttl"`
	} `yaml:"cache"`
	Branches struct {
		AllowAll bool               `yaml:"allow_all"`
		Grants   map[string][]int64 `yaml:"grants"`
	} `yaml:"branches"`
}

// Starter renders a commented-out-of-the-box wiser.yaml with defaults
// filled in, for `wisertpl config-init`.
func Starter() ([]byte, error) {
	var s starterConfig
	s.Database.Host = "localhost"
	s.Database.Port = 3306
	s.Database.User = "wiser"
	s.Database.Name = "wiser_main"
	s.Database.Timeout = "30s"
	s.Actor = "wiser"
	s.Cache.TTL = "5m"
	s.Branches.Grants = map[string][]int64{}

	out, err := yaml.Marshal(&s)
	if err != nil {
		return nil, fmt.Errorf("failed to render starter config: %w", err)
	}
	return out, nil
}
