// Package config loads service configuration from the environment and an optional file.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr string
	}
	Log struct {
		Level string
	}
	Database struct {
		Driver string // postgres or sqlite
		DSN    string
		Path   string
	}
	Content struct {
		Root     string
		Bucket   string
		Prefix   string
		Region   string
		Endpoint string
	}
	Tokens struct {
		Secret string
		Legacy bool
	}
	Generation struct {
		MaxAttempts int
	}
	// Clients maps client id to client secret.
	Clients map[string]string `mapstructure:"-"`
}

// Load reads configuration from ACCOUNTD_* environment variables and an optional
// config file. An empty file argument searches for config.{yaml,json,toml} in the
// working directory.
func Load(file string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ACCOUNTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.path", "data/accountd.db")
	v.SetDefault("content.root", "storage")
	v.SetDefault("content.bucket", "")
	v.SetDefault("content.prefix", "")
	v.SetDefault("content.region", "us-east-1")
	v.SetDefault("content.endpoint", "")
	v.SetDefault("tokens.secret", "")
	v.SetDefault("tokens.legacy", false)
	v.SetDefault("generation.maxattempts", 1000)
	v.SetDefault("clients", "")

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		_ = v.ReadInConfig() // optional file
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	clients, err := parseClients(v.Get("clients"))
	if err != nil {
		return Config{}, err
	}
	cfg.Clients = clients

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	if c.Content.Root == "" && c.Content.Bucket == "" {
		return fmt.Errorf("one of content.root or content.bucket is required")
	}
	if c.Generation.MaxAttempts <= 0 {
		return fmt.Errorf("generation.maxattempts must be positive")
	}
	return nil
}

// parseClients accepts a map from a config file or an "id=secret,id=secret" string
// from the environment.
func parseClients(raw any) (map[string]string, error) {
	out := map[string]string{}
	switch v := raw.(type) {
	case nil:
	case string:
		for _, pair := range strings.Split(v, ",") {
			pair = strings.TrimSpace(pair)
			if pair == "" {
				continue
			}
			id, secret, ok := strings.Cut(pair, "=")
			if !ok {
				return nil, fmt.Errorf("clients: entry %q is not id=secret", pair)
			}
			out[strings.TrimSpace(id)] = strings.TrimSpace(secret)
		}
	case map[string]any:
		for id, secret := range v {
			s, ok := secret.(string)
			if !ok {
				return nil, fmt.Errorf("clients: secret for %q is not a string", id)
			}
			out[id] = s
		}
	case map[string]string:
		for id, secret := range v {
			out[id] = secret
		}
	default:
		return nil, fmt.Errorf("clients: unsupported value of type %T", raw)
	}
	return out, nil
}
