package controller

import (
	"fmt"
)

var (
	ErrControllerNotConfigured = fmt.Errorf("controller not configured")
	ErrModbusWriteFailed       = fmt.Errorf("modbus write failed")
	ErrModbusNotConnected      = fmt.Errorf("modbus not connected")
	ErrSerialNotConnected      = fmt.Errorf("serial port not connected")
	ErrTelegramRejected        = fmt.Errorf("telegram rejected by device")
)

// Modbus register map of the battery inverter.
const (
	RegStatus      uint16 = 1000 // read: 0 idle, 1 accepted, 2 rejected
	RegCommit      uint16 = 1001 // write: number of intervals to activate
	RegScheduleRef uint16 = 1002 // write: yyyymmdd of the schedule id, 2 registers
	RegIntervals   uint16 = 1010 // 4 registers per interval

	RegistersPerInterval = 4
	// Protocol limit for a single write multiple registers request is 123
	maxRegistersPerWrite = 120
)

const (
	StatusIdle     uint16 = 0
	StatusAccepted uint16 = 1
	StatusRejected uint16 = 2
)
