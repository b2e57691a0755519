package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

var ErrInvalidConfig = errors.New("invalid config")

func DefaultExporterConfig() *ExporterConfig {
	return &ExporterConfig{
		Hostname:                 "smartmeter-1",
		SerialDevice:             "/dev/ttyUSB0",
		Baudrate:                 9600,
		DataBits:                 7,
		Parity:                   "even",
		StopBits:                 1,
		ListenAddress:            "0.0.0.0",
		ListenPort:               9039,
		Debug:                    false,
		BroadcastIntervalSeconds: 1,
		SolarInverterIp:          "",
		SolarInverterModbusPort:  502,
	}
}

// LoadExporterConfig reads the config at configPath.
// A missing file is created with the defaults.
func LoadExporterConfig(configPath string) (*ExporterConfig, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultExporterConfig()
		if err := writeConfig(configPath, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	// Unset keys keep their defaults
	cfg := DefaultExporterConfig()
	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func writeConfig(configPath string, cfg *ExporterConfig) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	cfgFile, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer cfgFile.Close()
	if err := toml.NewEncoder(cfgFile).Encode(cfg); err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}
	return nil
}

func (c *ExporterConfig) Validate() error {
	switch {
	case c.SerialDevice == "":
		return fmt.Errorf("%w: serial_device is empty", ErrInvalidConfig)
	case c.Baudrate == 0:
		return fmt.Errorf("%w: baudrate must be positive", ErrInvalidConfig)
	case c.DataBits < 5 || c.DataBits > 8:
		return fmt.Errorf("%w: data_bits must be between 5 and 8, got %d", ErrInvalidConfig, c.DataBits)
	case c.StopBits != 1 && c.StopBits != 2:
		return fmt.Errorf("%w: stop_bits must be 1 or 2, got %d", ErrInvalidConfig, c.StopBits)
	case c.Parity != "none" && c.Parity != "odd" && c.Parity != "even":
		return fmt.Errorf("%w: parity must be none, odd or even, got %q", ErrInvalidConfig, c.Parity)
	case c.ListenPort < 1 || c.ListenPort > 65535:
		return fmt.Errorf("%w: listen_port out of range: %d", ErrInvalidConfig, c.ListenPort)
	case c.BroadcastIntervalSeconds < 1:
		return fmt.Errorf("%w: broadcast_interval_seconds must be at least 1", ErrInvalidConfig)
	}
	return nil
}

func (c *ExporterConfig) ListenAddr() string {
	return net.JoinHostPort(c.ListenAddress, strconv.Itoa(c.ListenPort))
}

func (c *ExporterConfig) BroadcastInterval() time.Duration {
	return time.Duration(c.BroadcastIntervalSeconds) * time.Second
}

func (c *ExporterConfig) SolarInverterAddr() string {
	if c.SolarInverterIp == "" || c.SolarInverterModbusPort == 0 {
		return ""
	}
	return net.JoinHostPort(c.SolarInverterIp, strconv.Itoa(c.SolarInverterModbusPort))
}
