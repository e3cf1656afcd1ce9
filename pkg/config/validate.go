package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

func (c *IssuerConfig) Validate() error {
	var errs []error
	if c.ProtocolVersion == "" {
		errs = append(errs, errors.New("protocol_version is required"))
	}
	if c.DefaultMaxPowerKW <= 0 {
		errs = append(errs, errors.New("default_max_power_kw must be positive"))
	}
	if c.AckTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("ack_timeout_seconds must be positive"))
	}
	if c.MaxPublishAttempts < 1 {
		errs = append(errs, errors.New("max_publish_attempts must be at least 1"))
	}
	if c.PlanDaysAhead < 0 {
		errs = append(errs, errors.New("plan_days_ahead cannot be negative"))
	}
	for name, spec := range map[string]string{"publish_cron": c.PublishCron, "republish_cron": c.RepublishCron} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %v", name, err))
		}
	}

	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		switch {
		case d.DeviceID == "" || strings.ContainsAny(d.DeviceID, "/+#"):
			errs = append(errs, fmt.Errorf("devices[%d]: invalid device_id %q", i, d.DeviceID))
		case seen[d.DeviceID]:
			errs = append(errs, fmt.Errorf("devices[%d]: duplicate device_id %q", i, d.DeviceID))
		}
		seen[d.DeviceID] = true
		if d.MaxPowerKW < 0 {
			errs = append(errs, fmt.Errorf("devices[%d]: max_power_kw cannot be negative", i))
		}
	}

	for i, w := range c.Plan {
		start, err1 := time.Parse(time.TimeOnly, w.Start)
		end, err2 := time.Parse(time.TimeOnly, w.End)
		if err1 != nil || err2 != nil {
			errs = append(errs, fmt.Errorf("plan[%d]: start and end must be HH:MM:SS", i))
			continue
		}
		if !end.After(start) {
			errs = append(errs, fmt.Errorf("plan[%d]: end must be after start", i))
		}
	}

	errs = append(errs, c.MQTT.validate()...)
	return joinInvalid(errs)
}

func (c *DeviceAgentConfig) Validate() error {
	var errs []error
	if c.DeviceID == "" || strings.ContainsAny(c.DeviceID, "/+#") {
		errs = append(errs, fmt.Errorf("invalid device_id %q", c.DeviceID))
	}
	if len(c.SupportedVersions) == 0 {
		errs = append(errs, errors.New("supported_versions cannot be empty"))
	}
	if c.DefaultMaxPowerKW <= 0 {
		errs = append(errs, errors.New("default_max_power_kw must be positive"))
	}
	switch c.Controller {
	case "mock":
	case "modbus":
		if c.Modbus.Host == "" || c.Modbus.Port <= 0 {
			errs = append(errs, errors.New("modbus controller needs host and port"))
		}
	case "serial":
		if c.Serial.Device == "" || c.Serial.Baudrate == 0 {
			errs = append(errs, errors.New("serial controller needs device and baudrate"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown controller %q", c.Controller))
	}
	errs = append(errs, c.MQTT.validate()...)
	return joinInvalid(errs)
}

func (m MQTTConfig) validate() []error {
	var errs []error
	if m.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required"))
	}
	if m.QoS < 0 || m.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", m.QoS))
	}
	return errs
}

func joinInvalid(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}
