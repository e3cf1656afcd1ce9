package controller

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/NotCoffee418/battery_schedule_exchange/pkg/config"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/schedule"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/units"
	"github.com/goburrow/modbus"
	probing "github.com/prometheus-community/pro-bing"
)

// registerClient is the part of modbus.Client used here.
type registerClient interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error)
}

type ModbusController struct {
	cfg        config.ModbusConfig
	retryDelay time.Duration
	// Time the inverter needs after connect before it answers reliably
	settleDelay time.Duration
	// Time between commit and status read
	statusDelay time.Duration

	ping    func(host string) error
	connect func(cfg config.ModbusConfig) (registerClient, io.Closer, error)
}

func NewModbusController(cfg config.ModbusConfig) *ModbusController {
	return &ModbusController{
		cfg:         cfg,
		retryDelay:  2 * time.Second,
		settleDelay: 2 * time.Second,
		statusDelay: 500 * time.Millisecond,
		ping:        ping,
		connect:     connectTCP,
	}
}

func (m *ModbusController) isConfigured() bool {
	return m.cfg.Host != "" && m.cfg.Port != 0
}

// Apply uploads the schedule, commits it and reads back whether the
// inverter accepted it.
func (m *ModbusController) Apply(ctx context.Context, s *schedule.Schedule) (bool, error) {
	if !m.isConfigured() {
		return false, ErrControllerNotConfigured
	}

	data, err := EncodeIntervalRegisters(s.Intervals)
	if err != nil {
		return false, err
	}

	maxRetries := m.cfg.Retries
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, m.retryDelay); err != nil {
				return false, errors.Join(ErrModbusWriteFailed, lastErr, err)
			}
		}

		if !m.cfg.SkipPing {
			if err := m.ping(m.cfg.Host); err != nil {
				lastErr = fmt.Errorf("ping failed on attempt %d: %w", attempt+1, err)
				continue
			}
		}

		accepted, err := m.upload(ctx, s, data)
		if err != nil {
			lastErr = fmt.Errorf("attempt %d: %w", attempt+1, err)
			log.Printf("[MODBUS] Upload of %s failed: %v", s.ScheduleID, lastErr)
			continue
		}
		return accepted, nil
	}

	return false, errors.Join(ErrModbusWriteFailed, lastErr)
}

func (m *ModbusController) upload(ctx context.Context, s *schedule.Schedule, data []byte) (bool, error) {
	client, conn, err := m.connect(m.cfg)
	if err != nil {
		return false, errors.Join(ErrModbusNotConnected, err)
	}
	defer conn.Close()

	if err := sleepCtx(ctx, m.settleDelay); err != nil {
		return false, err
	}

	for offset := 0; offset < len(data); offset += maxRegistersPerWrite * 2 {
		end := min(offset+maxRegistersPerWrite*2, len(data))
		chunk := data[offset:end]
		address := RegIntervals + uint16(offset/2)
		if _, err := client.WriteMultipleRegisters(address, uint16(len(chunk)/2), chunk); err != nil {
			return false, fmt.Errorf("write intervals at %d: %w", address, err)
		}
	}

	ref := make([]byte, 4)
	binary.BigEndian.PutUint32(ref, scheduleRef(s.ScheduleID))
	if _, err := client.WriteMultipleRegisters(RegScheduleRef, 2, ref); err != nil {
		return false, fmt.Errorf("write schedule ref: %w", err)
	}

	commit := make([]byte, 2)
	binary.BigEndian.PutUint16(commit, uint16(len(s.Intervals)))
	if _, err := client.WriteMultipleRegisters(RegCommit, 1, commit); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}

	if err := sleepCtx(ctx, m.statusDelay); err != nil {
		return false, err
	}
	result, err := client.ReadHoldingRegisters(RegStatus, 1)
	if err != nil {
		return false, fmt.Errorf("read status: %w", err)
	}
	if len(result) < 2 {
		return false, fmt.Errorf("read status: short response")
	}

	switch status := binary.BigEndian.Uint16(result); status {
	case StatusAccepted:
		return true, nil
	case StatusRejected:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected status register value %d", status)
	}
}

// EncodeIntervalRegisters lays out intervals as big endian register data:
// start time in seconds since midnight (uint32) followed by power in watts
// (int32, negative is discharge).
func EncodeIntervalRegisters(intervals []schedule.Interval) ([]byte, error) {
	data := make([]byte, 0, len(intervals)*RegistersPerInterval*2)
	for i, iv := range intervals {
		if iv.StartTime == nil || iv.PowerKW == nil {
			return nil, fmt.Errorf("interval %d is incomplete", i)
		}
		data = binary.BigEndian.AppendUint32(data, uint32(iv.StartTime.Seconds()))
		data = binary.BigEndian.AppendUint32(data, uint32(units.KwToW(*iv.PowerKW)))
	}
	return data, nil
}

// scheduleRef turns a YYYY-MM-DD schedule id into yyyymmdd, 0 otherwise.
func scheduleRef(scheduleID string) uint32 {
	t, err := time.Parse(time.DateOnly, scheduleID)
	if err != nil {
		return 0
	}
	return uint32(t.Year()*10000 + int(t.Month())*100 + t.Day())
}

func connectTCP(cfg config.ModbusConfig) (registerClient, io.Closer, error) {
	handler := modbus.NewTCPClientHandler(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port))
	handler.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	if handler.Timeout <= 0 {
		handler.Timeout = 10 * time.Second
	}
	handler.SlaveId = byte(cfg.SlaveID)

	if err := handler.Connect(); err != nil {
		handler.Close()
		return nil, nil, err
	}
	return modbus.NewClient(handler), handler, nil
}

func ping(host string) error {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return err
	}

	pinger.Count = 1
	pinger.Timeout = 2 * time.Second
	pinger.SetPrivileged(false) // UDP-based, no root needed

	if err := pinger.Run(); err != nil {
		return err
	}
	if pinger.Statistics().PacketsRecv == 0 {
		return fmt.Errorf("no response from %s", host)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
