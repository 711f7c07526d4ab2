// Package scenario loads the YAML scenario-file format into the plain
// structs cmd/xedgesim uses to build a coordinator.Config. It is consumed
// exclusively by cmd/xedgesim; internal/coordinator never imports this
// package or yaml.v3 (see SPEC_FULL.md §2.3).
package scenario

import (
	"fmt"
	"os"

	"github.com/docker/go-connections/nat"
	"gopkg.in/yaml.v3"
)

// AdapterKind selects which concrete adapter a NodeSpec builds.
type AdapterKind string

const (
	AdapterSocket    AdapterKind = "socket"
	AdapterInProcess AdapterKind = "in_process"
	AdapterContainer AdapterKind = "container"
	AdapterEmulator  AdapterKind = "emulator"
)

// NetworkKind selects which NetworkModel the scenario builds.
type NetworkKind string

const (
	NetworkDirect  NetworkKind = "direct"
	NetworkLatency NetworkKind = "latency"
)

// LinkConfig overrides the default latency/loss for one ordered (src, dst)
// pair.
type LinkConfig struct {
	Src       string  `yaml:"src"`
	Dst       string  `yaml:"dst"`
	LatencyUs int64   `yaml:"latency_us"`
	LossRate  float64 `yaml:"loss_rate"`
}

// NetworkConfig describes the scenario's NetworkModel.
type NetworkConfig struct {
	Model            NetworkKind  `yaml:"model"`
	DefaultLatencyUs int64        `yaml:"default_latency_us"`
	DefaultLossRate  float64      `yaml:"default_loss_rate"`
	Links            []LinkConfig `yaml:"links"`
}

// NodeSpec describes one node and the parameters its adapter needs to
// connect to it. Only the fields relevant to Adapter are meaningful; the
// rest are zero-valued.
type NodeSpec struct {
	NodeID  string      `yaml:"node_id"`
	Adapter AdapterKind `yaml:"adapter"`

	// AdapterSocket
	Address string `yaml:"address,omitempty"`

	// AdapterContainer
	ContainerName string   `yaml:"container_name,omitempty"`
	Cmd           []string `yaml:"cmd,omitempty"`
	// DebugPorts documents host:container port specs the operator exposed
	// (or should expose) on the container for attaching a debugger or
	// inspecting the node's monitor port from outside; xedgesim never
	// creates the container itself, so these are validated for shape at
	// load time and otherwise left for the operator's own launcher.
	DebugPorts []string `yaml:"debug_ports,omitempty"`

	// AdapterEmulator
	WorkingDir              string `yaml:"working_dir,omitempty"`
	EmulatorBinary          string `yaml:"emulator_binary,omitempty"`
	PlatformDescriptionPath string `yaml:"platform_description_path,omitempty"`
	FirmwareELFPath         string `yaml:"firmware_elf_path,omitempty"`
	MachineName             string `yaml:"machine_name,omitempty"`
	SerialUartName          string `yaml:"serial_uart_name,omitempty"`
	MonitorHost             string `yaml:"monitor_host,omitempty"`
	MonitorPort             int    `yaml:"monitor_port,omitempty"`

	// Params is handed through to the node's INIT message verbatim,
	// regardless of adapter kind.
	Params map[string]any `yaml:"params,omitempty"`
}

// Config is the top-level scenario file.
type Config struct {
	ScenarioSeed uint64        `yaml:"scenario_seed"`
	DurationUs   int64         `yaml:"duration_us"`
	QuantumUs    int64         `yaml:"quantum_us"`
	Network      NetworkConfig `yaml:"network"`
	Nodes        []NodeSpec    `yaml:"nodes"`
}

// Load reads and parses a scenario file, then validates it against the
// constraints coordinator.New would otherwise reject so cmd/xedgesim can
// report a file-and-field error instead of an opaque coordinator one.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the fields Load cannot delegate to the coordinator
// because they are specific to the YAML surface (adapter kind, per-kind
// required fields).
func (c *Config) Validate() error {
	if c.QuantumUs <= 0 {
		return fmt.Errorf("quantum_us must be positive, got %d", c.QuantumUs)
	}
	if c.DurationUs < 0 {
		return fmt.Errorf("duration_us must be non-negative, got %d", c.DurationUs)
	}
	switch c.Network.Model {
	case NetworkDirect, NetworkLatency, "":
	default:
		return fmt.Errorf("network.model %q not recognized", c.Network.Model)
	}
	if len(c.Nodes) == 0 {
		return fmt.Errorf("at least one node is required")
	}

	seen := make(map[string]bool, len(c.Nodes))
	for i, n := range c.Nodes {
		if n.NodeID == "" {
			return fmt.Errorf("nodes[%d]: node_id is required", i)
		}
		if seen[n.NodeID] {
			return fmt.Errorf("nodes[%d]: duplicate node_id %q", i, n.NodeID)
		}
		seen[n.NodeID] = true

		switch n.Adapter {
		case AdapterSocket:
			if n.Address == "" {
				return fmt.Errorf("node %q: adapter socket requires address", n.NodeID)
			}
		case AdapterContainer:
			if n.ContainerName == "" {
				return fmt.Errorf("node %q: adapter container requires container_name", n.NodeID)
			}
			if len(n.DebugPorts) > 0 {
				if _, _, err := nat.ParsePortSpecs(n.DebugPorts); err != nil {
					return fmt.Errorf("node %q: invalid debug_ports: %w", n.NodeID, err)
				}
			}
		case AdapterEmulator:
			if n.EmulatorBinary == "" || n.FirmwareELFPath == "" {
				return fmt.Errorf("node %q: adapter emulator requires emulator_binary and firmware_elf_path", n.NodeID)
			}
		case AdapterInProcess:
			// no required fields; cmd/xedgesim builds a syntheticnode whose
			// settings come from params, with defaults for anything unset.
		default:
			return fmt.Errorf("node %q: adapter %q not recognized", n.NodeID, n.Adapter)
		}
	}
	return nil
}
