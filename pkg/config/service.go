package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/pathing"
)

var (
	ActiveIssuerConfig      *IssuerConfig
	ActiveDeviceAgentConfig *DeviceAgentConfig
	ActiveAckMonitorConfig  *AckMonitorConfig
)

var ErrInvalidConfig = errors.New("invalid config")

func DefaultIssuerConfig() *IssuerConfig {
	return &IssuerConfig{
		ListenAddress:      "0.0.0.0",
		ListenPort:         9041,
		ProtocolVersion:    "1.0",
		IncludeMode:        true,
		DefaultMaxPowerKW:  50,
		PublishCron:        "0 14 * * *",
		RepublishCron:      "@every 1m",
		AckTimeoutSeconds:  300,
		MaxPublishAttempts: 5,
		PlanDaysAhead:      1,
		MQTT: MQTTConfig{
			Broker:                "tcp://localhost:1883",
			ClientID:              "bsx-issuer",
			QoS:                   1,
			OrderMatters:          true,
			ConnectTimeoutSeconds: 30,
			PublishTimeoutSeconds: 10,
		},
		Devices: []DeviceConfig{
			{DeviceID: "battery-001", MaxPowerKW: 50, Model: "generic"},
		},
		Plan: []PlanWindow{
			{Start: "02:00:00", End: "06:00:00", PowerKW: 10},
			{Start: "18:00:00", End: "21:00:00", PowerKW: -15},
		},
	}
}

func DefaultDeviceAgentConfig() *DeviceAgentConfig {
	return &DeviceAgentConfig{
		DeviceID:          "battery-001",
		SupportedVersions: []string{"1.0", "1.1"},
		DefaultMaxPowerKW: 50,
		Controller:        "mock",
		MQTT: MQTTConfig{
			Broker:                "tcp://localhost:1883",
			ClientID:              "bsx-device-battery-001",
			QoS:                   1,
			OrderMatters:          true,
			ConnectTimeoutSeconds: 30,
			PublishTimeoutSeconds: 10,
		},
		Modbus: ModbusConfig{
			Host:           "192.168.200.1",
			Port:           502,
			SlaveID:        1,
			TimeoutSeconds: 5,
			Retries:        3,
		},
		Serial: SerialConfig{
			Device:         "/dev/ttyUSB0",
			Baudrate:       115200,
			TimeoutSeconds: 5,
		},
	}
}

func DefaultAckMonitorConfig() *AckMonitorConfig {
	return &AckMonitorConfig{
		IssuerAPIHost:          "localhost:9041",
		TLSEnabled:             false,
		SummaryIntervalSeconds: 60,
	}
}

func LoadIssuerConfig() error {
	cfg, err := LoadIssuerConfigFrom(filepath.Join(pathing.GetConfigDir(), "issuer.toml"))
	if err != nil {
		return err
	}
	ActiveIssuerConfig = cfg
	return nil
}

func LoadDeviceAgentConfig() error {
	cfg, err := LoadDeviceAgentConfigFrom(filepath.Join(pathing.GetConfigDir(), "device_agent.toml"))
	if err != nil {
		return err
	}
	ActiveDeviceAgentConfig = cfg
	return nil
}

func LoadAckMonitorConfig() error {
	cfg, err := LoadAckMonitorConfigFrom(filepath.Join(pathing.GetConfigDir(), "ack_monitor.toml"))
	if err != nil {
		return err
	}
	ActiveAckMonitorConfig = cfg
	return nil
}

func LoadIssuerConfigFrom(configPath string) (*IssuerConfig, error) {
	cfg := DefaultIssuerConfig()
	if err := loadOrCreate(configPath, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", configPath, err)
	}
	return cfg, nil
}

func LoadDeviceAgentConfigFrom(configPath string) (*DeviceAgentConfig, error) {
	cfg := DefaultDeviceAgentConfig()
	if err := loadOrCreate(configPath, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", configPath, err)
	}
	return cfg, nil
}

func LoadAckMonitorConfigFrom(configPath string) (*AckMonitorConfig, error) {
	cfg := DefaultAckMonitorConfig()
	if err := loadOrCreate(configPath, cfg); err != nil {
		return nil, err
	}
	if cfg.IssuerAPIHost == "" {
		return nil, fmt.Errorf("%s: %w: issuer_api_host is required", configPath, ErrInvalidConfig)
	}
	return cfg, nil
}

// loadOrCreate decodes configPath into cfg, which holds the defaults.
// A missing file is created from those defaults.
func loadOrCreate(configPath string, cfg any) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfgFile, err := os.Create(configPath)
		if err != nil {
			return err
		}
		defer cfgFile.Close()
		return toml.NewEncoder(cfgFile).Encode(cfg)
	}

	_, err := toml.DecodeFile(configPath, cfg)
	return err
}
