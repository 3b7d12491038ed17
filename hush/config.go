package hush

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/TheusHen/hush/hush/crypto"
	"github.com/TheusHen/hush/hush/errdefs"
	"github.com/TheusHen/hush/hush/stream"
)

// Config is the engine configuration. The zero value is valid.
//
//	stream:
//	  cipher: chacha20-poly1305
//	  chunk_size: 65536
//	  kdf_hash: sha-384
//	  kdf_iterations: 100000
//	  compression: false
//	signing:
//	  hash: sha-384
//	session:
//	  additional_data: my-app/v1
//	log:
//	  level: info
//	  development: false
type Config struct {
	Stream  stream.Config `yaml:"stream"`
	Signing SigningConfig `yaml:"signing"`
	Session SessionConfig `yaml:"session"`
	Log     LogConfig     `yaml:"log"`
}

type SigningConfig struct {
	Hash string `yaml:"hash"`
}

// SessionConfig holds PFS settings. AdditionalData is bound into every
// session key derived by the engine; both parties must use the same value.
type SessionConfig struct {
	AdditionalData string `yaml:"additional_data"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Validate reports every problem in c at once.
func (c Config) Validate() error {
	var result *multierror.Error
	if err := c.Stream.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if _, err := crypto.ParseHash(c.Signing.Hash); err != nil {
		result = multierror.Append(result, fmt.Errorf("signing.hash: %w", err))
	}
	if c.Log.Level != "" {
		if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
			result = multierror.Append(result, fmt.Errorf("log.level: %w", err))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return errdefs.New(errdefs.ErrConfiguration, "hush.Config", err)
	}
	return nil
}

// ParseConfig decodes YAML configuration and validates it. Unknown keys are
// rejected.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errdefs.New(errdefs.ErrConfiguration, "hush.ParseConfig", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdefs.New(errdefs.ErrConfiguration, "hush.LoadConfig", err)
	}
	return ParseConfig(data)
}

// NewLogger builds a zap logger from the log section: production JSON
// output by default, console output in development mode.
func (c LogConfig) NewLogger() (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if c.Level != "" {
		lvl, err := zap.ParseAtomicLevel(c.Level)
		if err != nil {
			return nil, errdefs.New(errdefs.ErrConfiguration, "hush.NewLogger", err)
		}
		zc.Level = lvl
	}
	return zc.Build()
}
