// Package config reads and validates the configuration of one
// replica process: its own identity, the statically known peers
// and the timing knobs of replication and recovery.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Structs

// Config holds all information parsed from the supplied
// config file.
type Config struct {
	Replica  Replica
	Timeouts Timeouts
	Limits   Limits
}

// Replica identifies this process within the replica group. Addr
// doubles as the member name in the view and as the dimension of
// this replica in every vector clock, so it has to be the address
// peers can actually reach.
type Replica struct {
	Addr           string
	ListenAddr     string
	PrometheusAddr string
	Peers          []string
}

// Timeouts bundles the timing policy of the replication layer.
// All durations are given in milliseconds.
type Timeouts struct {
	ConnectMS      int
	RetryBackoffMS int
	RetryAttempts  int
	PollIntervalMS int
}

// Limits bounds client-supplied keys and values, mirroring the
// protocol contract all replicas validate against.
type Limits struct {
	KeyBytes   int
	ValueBytes int
}

// Functions

// LoadConfig takes in the path to the config file of one replica
// in TOML syntax and places the values from the file in the
// corresponding struct. Unset knobs fall back to defaults, only
// the replica's own address is mandatory.
func LoadConfig(configFile string) (*Config, error) {

	conf := new(Config)

	// Parse values from TOML file into struct.
	_, err := toml.DecodeFile(configFile, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to read in TOML config file at '%s' with: %v", configFile, err)
	}

	conf.applyDefaults()

	if err := conf.Validate(); err != nil {
		return nil, err
	}

	return conf, nil
}

// applyDefaults fills every unset knob with its default value.
func (conf *Config) applyDefaults() {

	if conf.Replica.ListenAddr == "" {
		conf.Replica.ListenAddr = conf.Replica.Addr
	}

	if conf.Timeouts.ConnectMS == 0 {
		conf.Timeouts.ConnectMS = 5000
	}

	if conf.Timeouts.RetryBackoffMS == 0 {
		conf.Timeouts.RetryBackoffMS = 1000
	}

	if conf.Timeouts.RetryAttempts == 0 {
		conf.Timeouts.RetryAttempts = 3
	}

	if conf.Timeouts.PollIntervalMS == 0 {
		conf.Timeouts.PollIntervalMS = 1000
	}

	if conf.Limits.KeyBytes == 0 {
		conf.Limits.KeyBytes = 50
	}

	if conf.Limits.ValueBytes == 0 {
		conf.Limits.ValueBytes = 1000
	}
}

// Validate checks the invariants a usable replica config has
// to satisfy.
func (conf *Config) Validate() error {

	if conf.Replica.Addr == "" {
		return fmt.Errorf("replica address is required, set it in the config file or via SOCKET_ADDRESS")
	}

	// A replica must never list itself as its own peer, that
	// would make it broadcast to itself.
	for _, peer := range conf.Replica.Peers {

		if peer == conf.Replica.Addr {
			return fmt.Errorf("replica '%s' lists itself in its peer set", conf.Replica.Addr)
		}

		if peer == "" {
			return fmt.Errorf("replica '%s' lists an empty peer address", conf.Replica.Addr)
		}
	}

	return nil
}
