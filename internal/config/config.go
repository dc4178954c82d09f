// Package config loads the loader's configuration via Viper: built-in
// defaults, then an optional config file, then KAIJS_-prefixed environment
// variables, each overriding the one before. The only command-line flag
// involved is --config, which names the file; no other flag is bound.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DocStoreBackend selects which DocStore adapter the loader wires up.
type DocStoreBackend string

const (
	BackendMongo      DocStoreBackend = "mongo"
	BackendOpenSearch DocStoreBackend = "opensearch"
)

// Config is the loader's complete runtime configuration.
type Config struct {
	FileQueueDir      string        `mapstructure:"file_queue_dir"`
	FileQueuePoll     time.Duration `mapstructure:"file_queue_poll"`

	BrokerURL        string `mapstructure:"broker_url"`
	BrokerQueueName  string `mapstructure:"broker_queue_name"`
	BrokerProvider   string `mapstructure:"broker_provider"`

	DocStoreBackend     DocStoreBackend `mapstructure:"docstore_backend"`
	DocStoreURL         string          `mapstructure:"docstore_url"`
	DocStoreDatabase    string          `mapstructure:"docstore_database"`
	DocStoreUser        string          `mapstructure:"docstore_user"`
	DocStorePassword    string          `mapstructure:"docstore_password"`
	ArtifactsCollection string          `mapstructure:"artifacts_collection"`
	InvalidCollection   string          `mapstructure:"invalid_collection"`
	UnknownCollection   string          `mapstructure:"unknown_collection"`

	BulkEnabled  bool `mapstructure:"bulk_enabled"`
	BulkMaxOps   int  `mapstructure:"bulk_max_ops"`
	BulkMaxBytes int  `mapstructure:"bulk_max_bytes"`

	SchemaRefreshCron string `mapstructure:"schema_refresh_cron"`
	SchemasURL        string `mapstructure:"schemas_url"`

	KojiHubURL string `mapstructure:"koji_hub_url"`
	BrewHubURL string `mapstructure:"brew_hub_url"`

	MaxUpdateAttempts int `mapstructure:"max_update_attempts"`

	LogLevel string `mapstructure:"log_level"`
}

// Defaults sets every option to the value the bridge runs with out of the
// box, matching spec.md's stated bounds (100-op/3s bulk triggers, 30-attempt
// CAS retry, 12h schema refresh).
func Defaults(v *viper.Viper) {
	v.SetDefault("file_queue_dir", "./data/fqueue")
	v.SetDefault("file_queue_poll", "1s")

	v.SetDefault("broker_queue_name", "kaijs-bridge")
	v.SetDefault("broker_provider", "kaijs-bridge")

	v.SetDefault("docstore_backend", string(BackendMongo))
	v.SetDefault("docstore_database", "kaijs")
	v.SetDefault("artifacts_collection", "artifacts")
	v.SetDefault("invalid_collection", "invalid")
	v.SetDefault("unknown_collection", "unknown-topic")

	v.SetDefault("bulk_enabled", false)
	v.SetDefault("bulk_max_ops", 100)
	v.SetDefault("bulk_max_bytes", 4*1024*1024)

	v.SetDefault("schema_refresh_cron", "0 */12 * * *")

	v.SetDefault("max_update_attempts", 30)
	v.SetDefault("log_level", "info")
}

// Load reads configFile (if non-empty) plus KAIJS_-prefixed environment
// variables into a Config, applying Defaults first.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	Defaults(v)

	v.SetEnvPrefix("KAIJS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DocStoreURL == "" {
		return fmt.Errorf("config: docstore_url is required")
	}
	switch c.DocStoreBackend {
	case BackendMongo, BackendOpenSearch:
	default:
		return fmt.Errorf("config: unknown docstore_backend %q", c.DocStoreBackend)
	}
	return nil
}
