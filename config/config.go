// Package config loads CargoNetSim client and manager settings from YAML
// or JSON files, environment variables and command-line flags.
package config

import (
	"time"

	"github.com/spf13/pflag"
	"go.bryk.io/x/cargonetsim/errors"
	"go.bryk.io/x/cargonetsim/manager"
)

// envPrefix namespaces the environment variables evaluated during load,
// e.g. CARGONETSIM_BROKER_HOST.
const envPrefix = "CARGONETSIM"

// Broker points every client at the AMQP endpoint.
type Broker struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

// Timeouts tunes the shared client behavior.
type Timeouts struct {
	// HeartbeatIntervalSec is the period between heartbeat publishes.
	HeartbeatIntervalSec int `yaml:"heartbeat_interval" json:"heartbeat_interval"`
	// CommandTimeoutMs bounds every synchronous command.
	CommandTimeoutMs int `yaml:"command_timeout_ms" json:"command_timeout_ms"`
}

// HeartbeatInterval returns the configured heartbeat period.
func (t Timeouts) HeartbeatInterval() time.Duration {
	if t.HeartbeatIntervalSec <= 0 {
		return 5 * time.Second
	}
	return time.Duration(t.HeartbeatIntervalSec) * time.Second
}

// CommandTimeout returns the configured per-command deadline.
func (t Timeouts) CommandTimeout() time.Duration {
	if t.CommandTimeoutMs <= 0 {
		return 0 // client default applies
	}
	return time.Duration(t.CommandTimeoutMs) * time.Millisecond
}

// TruckClient describes one managed truck simulator instance.
type TruckClient struct {
	Name           string            `yaml:"name" json:"name"`
	ExePath        string            `yaml:"exe_path" json:"exe_path"`
	MasterFilePath string            `yaml:"master_file_path" json:"master_file_path"`
	SimTime        float64           `yaml:"sim_time" json:"sim_time"`
	ConfigUpdates  map[string]string `yaml:"config_updates" json:"config_updates"`
	ArgsUpdates    []string          `yaml:"args_updates" json:"args_updates"`
}

// Settings is the root configuration document.
type Settings struct {
	Broker   Broker        `yaml:"broker" json:"broker"`
	Timeouts Timeouts      `yaml:"timeouts" json:"timeouts"`
	Trucks   []TruckClient `yaml:"trucks" json:"trucks"`
}

// ManagerConfig converts one truck entry into the manager's client
// configuration, filling the broker endpoint from the shared section.
func (s Settings) ManagerConfig(tc TruckClient) manager.ClientConfig {
	return manager.ClientConfig{
		ExePath:        tc.ExePath,
		Host:           s.Broker.Host,
		Port:           s.Broker.Port,
		MasterFilePath: tc.MasterFilePath,
		SimTime:        tc.SimTime,
		ConfigUpdates:  tc.ConfigUpdates,
		ArgsUpdates:    tc.ArgsUpdates,
	}
}

// Validate rejects documents that cannot produce a working manager.
func (s Settings) Validate() error {
	if s.Broker.Host == "" {
		return errors.New("broker host is required")
	}
	if s.Broker.Port <= 0 {
		return errors.New("broker port is required")
	}
	seen := make(map[string]bool, len(s.Trucks))
	for _, tc := range s.Trucks {
		if tc.Name == "" {
			return errors.New("truck client name cannot be empty")
		}
		if seen[tc.Name] {
			return errors.New("duplicate truck client name: " + tc.Name)
		}
		seen[tc.Name] = true
		if tc.ExePath == "" || tc.MasterFilePath == "" {
			return errors.New("truck client " + tc.Name + " is missing exe_path or master_file_path")
		}
	}
	return nil
}

// Load reads settings from the first valid file in locations, layered with
// CARGONETSIM_* environment variables and, when provided, command-line
// flags.
func Load(locations []string, flags *pflag.FlagSet) (*Settings, error) {
	cfg, err := load(locations, flags)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read configuration")
	}
	settings := &Settings{}
	if err := cfg.Unmarshal("", settings); err != nil {
		return nil, errors.Wrap(err, "failed to decode configuration")
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}
