package controller

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/NotCoffee418/battery_schedule_exchange/pkg/config"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/schedule"
	"github.com/jacobsa/go-serial/serial"
)

// SerialController sends schedule telegrams to a battery on a serial line
// and waits for its single line reply.
type SerialController struct {
	cfg  config.SerialConfig
	open func(cfg config.SerialConfig) (io.ReadWriteCloser, error)
}

func NewSerialController(cfg config.SerialConfig) *SerialController {
	return &SerialController{cfg: cfg, open: openPort}
}

func (c *SerialController) Apply(ctx context.Context, s *schedule.Schedule) (bool, error) {
	if c.cfg.Device == "" {
		return false, ErrControllerNotConfigured
	}

	telegram, err := EncodeTelegram(s)
	if err != nil {
		return false, err
	}

	port, err := c.open(c.cfg)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrSerialNotConnected, err)
	}
	defer port.Close()

	type reply struct {
		line string
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		if _, err := io.WriteString(port, telegram); err != nil {
			done <- reply{err: fmt.Errorf("write telegram: %w", err)}
			return
		}
		line, err := bufio.NewReader(port).ReadString('\n')
		if err != nil && line == "" {
			done <- reply{err: fmt.Errorf("read reply: %w", err)}
			return
		}
		done <- reply{line: line}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return false, r.err
		}
		log.Printf("[SERIAL] %s replied %q to %s", c.cfg.Device, r.line, s.ScheduleID)
		return parseReply(r.line, s.ScheduleID)
	case <-ctx.Done():
		// closing the port unblocks the pending read
		return false, ctx.Err()
	}
}

func openPort(cfg config.SerialConfig) (io.ReadWriteCloser, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	// InterCharacterTimeout is in ms, rounded to 100ms, at most 25.5s
	interChar := min(uint(timeout.Milliseconds()), 25500)

	options := serial.OpenOptions{
		PortName:              cfg.Device,
		BaudRate:              cfg.Baudrate,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       0,
		InterCharacterTimeout: interChar,
	}

	port, err := serial.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	return port, nil
}
