// Package config loads muxctl's CLI/server configuration from a YAML file
// and environment overrides, the way the teacher's session configuration
// layers are loaded, generalized to this protocol's "serve" listener.
package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Accepter describes a named channel this process should pre-register an
// accepter for as soon as a Session is established, so that a remote Offer
// for that name is matched without the caller having to poll.
type Accepter struct {
	// Name is the channel name to accept (spec.md §4.4's AcceptChannelByName).
	Name string `yaml:"name"`
	// InboundQueueCapacity overrides ChannelOptions.InboundQueueCapacity for
	// channels accepted under this name. Zero means use the default.
	InboundQueueCapacity int `yaml:"inboundQueueCapacity"`
}

// Config is the root of a muxctl YAML configuration file.
type Config struct {
	// ListenAddress is the TCP address "serve" listens on.
	ListenAddress string `yaml:"listenAddress"`
	// LogLevel names a logging.Level understood by logging.NameToLevel.
	LogLevel string `yaml:"logLevel"`
	// Accepters lists the named channels "serve" pre-registers accepters for
	// on every incoming connection.
	Accepters []Accepter `yaml:"accepters"`
}

// Load reads a YAML configuration file from path. A missing file is not an
// error; it yields a zero-value Config so that muxctl can run with flags
// alone.
func Load(path string) (*Config, error) {
	config := &Config{}
	if path == "" {
		return config, nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, errors.Wrap(err, "unable to read configuration file")
	}

	if err := yaml.Unmarshal(contents, config); err != nil {
		return nil, errors.Wrap(err, "unable to parse configuration file")
	}

	return config, nil
}

// LoadEnvironment loads a .env file (if present) into the process
// environment, mirroring how the teacher's debug flag is toggled by an
// environment variable rather than a flag. It is not an error for no .env
// file to exist.
func LoadEnvironment(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "unable to load environment file")
	}
	return nil
}
