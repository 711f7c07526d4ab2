package emulator

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"time"
)

// Config describes one emulator-backed node: where its emulator binary,
// platform description, and firmware live, and how to reach its monitor
// socket.
type Config struct {
	NodeID string

	WorkingDir     string
	EmulatorBinary string
	EmulatorArgs   []string

	PlatformDescriptionPath string
	FirmwareELFPath         string
	MachineName             string
	SerialUartName          string

	MonitorHost string
	MonitorPort int

	ConnectRetries    int
	ConnectBackoffMin time.Duration
	ConnectBackoffMax time.Duration
	StartupTimeout    time.Duration
	AdvanceTimeout    time.Duration
	ShutdownGrace     time.Duration
}

func (c *Config) setDefaults() {
	if c.SerialUartName == "" {
		c.SerialUartName = "sysbus.uart0"
	}
	if c.MonitorHost == "" {
		c.MonitorHost = "127.0.0.1"
	}
	if c.ConnectRetries <= 0 {
		c.ConnectRetries = 10
	}
	if c.ConnectBackoffMin <= 0 {
		c.ConnectBackoffMin = 100 * time.Millisecond
	}
	if c.ConnectBackoffMax <= 0 {
		c.ConnectBackoffMax = 2 * time.Second
	}
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = 30 * time.Second
	}
	if c.AdvanceTimeout <= 0 {
		c.AdvanceTimeout = 30 * time.Second
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 5 * time.Second
	}
}

func (c Config) monitorAddress() string {
	return net.JoinHostPort(c.MonitorHost, strconv.Itoa(c.MonitorPort))
}

// SerialOutputPath is the file the emulator's file backend appends the
// primary serial port's bytes to.
func (c Config) SerialOutputPath() string {
	return filepath.Join(c.WorkingDir, fmt.Sprintf("%s.serial.log", c.NodeID))
}
