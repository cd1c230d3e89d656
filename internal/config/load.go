package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// PathEnvVar names the environment variable holding an explicit config file.
const PathEnvVar = "SHOPSIGHT_CONFIG"

// DefaultPath is consulted when PathEnvVar is unset.
const DefaultPath = "shopsight.yaml"

// Options controls where Load looks.
type Options struct {
	// Path is an explicit YAML file; it must exist when set.
	Path string
	// DotEnv is the .env file merged into the environment. Missing is fine.
	DotEnv string
}

// Load builds a Config from defaults, the optional YAML file and the
// environment, then validates it.
func Load(opts Options) (*Config, error) {
	dotenv := opts.DotEnv
	if dotenv == "" {
		dotenv = ".env"
	}
	// godotenv.Load never overrides variables that are already set.
	if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", dotenv, err)
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	path, err := resolvePath(opts.Path)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	if err := splitLists(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func resolvePath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return explicit, nil
	}
	if p := os.Getenv(PathEnvVar); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("config file from %s: %w", PathEnvVar, err)
		}
		return p, nil
	}
	if _, err := os.Stat(DefaultPath); err == nil {
		return DefaultPath, nil
	}
	return "", nil
}

// envKeys maps recognised environment variables to config paths. Anything
// else in the environment is ignored.
var envKeys = map[string]string{
	"openai_api_key":  "llm.api_key",
	"openai_model":    "llm.model",
	"openai_base_url": "llm.base_url",

	"shopsight_data_dir":         "data.dir",
	"shopsight_keep_generations": "data.keep_generations",

	"shopsight_bucket":              "source.bucket",
	"shopsight_region":              "source.region",
	"shopsight_s3_endpoint":         "source.endpoint",
	"shopsight_articles_prefix":     "source.articles_prefix",
	"shopsight_transactions_prefix": "source.transactions_prefix",
	"shopsight_anonymous":           "source.anonymous",
	"shopsight_download_dir":        "source.download_dir",
	"shopsight_articles_path":       "source.articles_path",
	"shopsight_transactions_paths":  "source.transactions_paths",

	"shopsight_batch_size":         "pipeline.batch_size",
	"shopsight_target_count":       "pipeline.target_count",
	"shopsight_per_category_quota": "pipeline.per_category_quota",
	"shopsight_seed":               "pipeline.seed",
	"shopsight_tolerate_missing":   "pipeline.tolerate_missing",

	"host":                   "server.host",
	"port":                   "server.port",
	"shopsight_cors_origins": "server.cors_origins",
	"shopsight_rate_limit":   "server.rate_limit",

	"log_level":  "logging.level",
	"log_format": "logging.human",
}

func envKey(key string) string {
	return envKeys[strings.ToLower(key)]
}

// listKeys are parsed from comma-separated strings when they come from env.
var listKeys = []string{"server.cors_origins", "source.transactions_paths"}

func splitLists(k *koanf.Koanf) error {
	for _, key := range listKeys {
		s, ok := k.Get(key).(string)
		if !ok {
			continue
		}
		var parts []string
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(key, parts); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	// LOG_FORMAT=console|human switches to the console writer.
	if s, ok := k.Get("logging.human").(string); ok {
		human := s == "console" || s == "human" || s == "true"
		if err := k.Set("logging.human", human); err != nil {
			return fmt.Errorf("set logging.human: %w", err)
		}
	}
	return nil
}
