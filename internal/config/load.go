package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/raoulx24/dir-archiver/internal/apperr"
)

// EnvPrefix marks environment variables that override file values,
// e.g. BACKUP_DAILY_KEEP=10.
const EnvPrefix = "BACKUP_"

// matches $(VAR_NAME)
var envPattern = regexp.MustCompile(`\$\(([A-Za-z0-9_]+)\)`)

// replaces $(VAR) with os.Getenv(VAR)
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(m string) string {
		key := mapEnvKey(envPattern.FindStringSubmatch(m)[1])
		return os.Getenv(key)
	})
}

// Load layers built-in defaults, the YAML file at path and BACKUP_*
// environment variables, in that order. A missing file is recovered: the
// returned config runs on defaults and the error wraps ErrConfigMissing so
// the caller can log it.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	var missing error
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
			missing = fmt.Errorf("%w: %s", apperr.ErrConfigMissing, path)
		} else if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: parsing %s: %v", apperr.ErrInvalidArguments, path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshalling config: %v", apperr.ErrInvalidArguments, err)
	}
	if missing == nil {
		cfg.Path = path
	}
	cfg.expand()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, missing
}

// envKey maps BACKUP_DAILY_KEEP to daily_keep.
func envKey(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
}

// expand applies $(VAR) substitution to every path-like value.
func (c *Config) expand() {
	for _, p := range []*string{
		&c.Destination, &c.Exclude, &c.SnapshotFile, &c.Prefix,
		&c.LockFile, &c.LogFile, &c.MetricsTextfile,
	} {
		*p = expandEnvVars(*p)
	}
}
