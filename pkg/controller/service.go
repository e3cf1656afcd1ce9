// Package controller holds the battery hardware backends behind
// executor.Controller.
package controller

import (
	"fmt"

	"github.com/NotCoffee418/battery_schedule_exchange/pkg/config"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/executor"
)

// New builds the controller selected in the device agent config.
func New(cfg *config.DeviceAgentConfig) (executor.Controller, error) {
	if cfg == nil {
		return nil, ErrControllerNotConfigured
	}
	switch cfg.Controller {
	case "mock", "":
		return NewMockController(), nil
	case "modbus":
		return NewModbusController(cfg.Modbus), nil
	case "serial":
		return NewSerialController(cfg.Serial), nil
	default:
		return nil, fmt.Errorf("%w: unknown controller %q", ErrControllerNotConfigured, cfg.Controller)
	}
}
