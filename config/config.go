package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/o2lab/parbam/frontier"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// FileName is the config file looked up in the working directory.
const FileName = "parbam.yml"

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Workers             int      `yaml:"workers"`
	MissingBlockRetries int      `yaml:"missingBlockRetries"`
	Traversal           string   `yaml:"traversal"`
	MinBlockSize        int      `yaml:"minBlockSize"`
	Entry               string   `yaml:"entry"`
	TargetFunctions     []string `yaml:"targetFunctions"`
	PanicIsTarget       bool     `yaml:"panicIsTarget"`
	TimeLimit           string   `yaml:"timeLimit"`
	LogLevel            string   `yaml:"logLevel"`
}

func Default() Config {
	return Config{
		MissingBlockRetries: 3,
		Traversal:           "dfs",
		Entry:               "main",
		TargetFunctions:     []string{"reach_error"},
		LogLevel:            "info",
	}
}

// DecodeYmlFile reads the config at path. Keys missing from the file keep
// their default values.
func DecodeYmlFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("yml decode error in %s: %w", path, err)
	}
	log.Debugf("Config loaded from %s: %+v", path, cfg)
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.MissingBlockRetries < 0 {
		return fmt.Errorf("%w: missingBlockRetries must not be negative", ErrInvalid)
	}
	if c.MinBlockSize < 0 {
		return fmt.Errorf("%w: minBlockSize must not be negative", ErrInvalid)
	}
	if c.Entry == "" {
		return fmt.Errorf("%w: entry function is empty", ErrInvalid)
	}
	if _, err := c.Order(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := c.Duration(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := c.Level(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Duration parses TimeLimit. Zero means no limit.
func (c Config) Duration() (time.Duration, error) {
	if c.TimeLimit == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.TimeLimit)
	if err != nil {
		return 0, fmt.Errorf("timeLimit: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("timeLimit %s is negative", c.TimeLimit)
	}
	return d, nil
}

func (c Config) Order() (frontier.Order, error) {
	return frontier.ParseOrder(c.Traversal)
}

func (c Config) Level() (log.Level, error) {
	if c.LogLevel == "" {
		return log.InfoLevel, nil
	}
	return log.ParseLevel(c.LogLevel)
}
