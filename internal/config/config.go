package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// DefaultEnv is the environment used when none is given.
const DefaultEnv = "development"

const (
	BackendMongo = "mongo"
	BackendMeili = "meili"
)

var (
	// ErrInvalidEnv is returned for environment names that cannot name a
	// settings file.
	ErrInvalidEnv = errors.New("invalid environment name")
	// ErrSettingsNotFound is returned when .env.<env> does not exist.
	ErrSettingsNotFound = errors.New("settings file not found")
)

var envNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Config holds the settings of one run. It is loaded once and passed by
// value to the components that need it.
type Config struct {
	// Env is the environment name the settings were loaded for.
	Env string `ignored:"true"`

	// MongoDB
	MongoURL      string `envconfig:"MONGODB_URL"`
	MongoPort     int    `envconfig:"MONGODB_PORT"`
	MongoUser     string `envconfig:"MONGODB_USER"`
	MongoPassword string `envconfig:"MONGODB_PASSWORD"`

	// MeiliSearch, used when StoreBackend is "meili"
	MeiliURL string `envconfig:"MEILI_URL"`
	MeiliKey string `envconfig:"MEILI_KEY"`

	StoreBackend string `envconfig:"STORE_BACKEND" default:"mongo"`

	// Tokenizer is the path of the model file: a SentencePiece .model, or
	// a BPE ranks file for the tiktoken encodings.
	Tokenizer         string `envconfig:"TOKENIZER" required:"true"`
	TokenizerEncoding string `envconfig:"TOKENIZER_ENCODING" default:"sentencepiece"`

	PromptsDir string `envconfig:"PROMPTS_DIR" default:"prompts"`

	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"console"`
}

// SettingsPath returns the settings file for env inside dir.
func SettingsPath(dir, env string) string {
	return filepath.Join(dir, ".env."+env)
}

// Load reads <dir>/.env.<env> into the process environment and decodes
// the configuration from it. Variables already set in the environment take
// precedence over the file.
func Load(env, dir string) (*Config, error) {
	if !envNamePattern.MatchString(env) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEnv, env)
	}

	path := SettingsPath(dir, env)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSettingsNotFound, path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if err := loadSettings(path); err != nil {
		return nil, err
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env vars: %w", err)
	}
	cfg.Env = env

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadSettings copies the settings file into the process environment under
// upper-cased keys, so files written with lowercase keys (mongodb_url,
// tokenizer, ...) decode the same way. Keys already set in the environment
// are left alone.
func loadSettings(path string) error {
	vars, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	// Upper-case spellings win over lowercase ones for the same key.
	sort.Slice(keys, func(i, j int) bool {
		return keys[i] == strings.ToUpper(keys[i]) && keys[j] != strings.ToUpper(keys[j])
	})
	for _, k := range keys {
		key := strings.ToUpper(k)
		if _, ok := os.LookupEnv(key); ok {
			continue
		}
		if err := os.Setenv(key, vars[k]); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}

// Validate checks the values the selected backend needs.
func (c *Config) Validate() error {
	if c.Tokenizer == "" {
		return missing("TOKENIZER")
	}
	switch c.StoreBackend {
	case BackendMongo:
		if c.MongoURL == "" {
			return missing("MONGODB_URL")
		}
		if c.MongoPort <= 0 {
			return missing("MONGODB_PORT")
		}
		if c.MongoUser == "" {
			return missing("MONGODB_USER")
		}
		if c.MongoPassword == "" {
			return missing("MONGODB_PASSWORD")
		}
	case BackendMeili:
		if c.MeiliURL == "" {
			return missing("MEILI_URL")
		}
	default:
		return fmt.Errorf("STORE_BACKEND: unknown backend %q (want %s or %s)", c.StoreBackend, BackendMongo, BackendMeili)
	}
	return nil
}

// DatabaseName is the database the run writes to.
func (c *Config) DatabaseName() string {
	return c.Env + "_prompts"
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	if c.MongoPassword != "" {
		c.MongoPassword = "********"
	}
	if c.MeiliKey != "" {
		c.MeiliKey = "********"
	}
	return c
}

func missing(key string) error {
	return fmt.Errorf("required key %s missing value", key)
}
