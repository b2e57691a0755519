// Package solarinverter reads the active power of a Modbus TCP inverter
// sitting next to the meter. The feature is optional.
package solarinverter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	probing "github.com/prometheus-community/pro-bing"
)

var (
	ErrModbusNotConfigured = errors.New("modbus not configured")
	ErrModbusReadFailed    = errors.New("modbus read failed")
	ErrInverterUnreachable = errors.New("inverter unreachable")
)

const (
	// Holding register pair with the signed active power in W.
	activePowerRegister = 32080

	cacheTTL   = 10 * time.Second
	maxRetries = 3
	retryPause = 2 * time.Second
)

type Inverter struct {
	addr   string
	logger *slog.Logger

	mu            sync.Mutex
	lastReadWatt  int32
	lastReadTime  time.Time
	readRegisters func(ctx context.Context) ([]byte, error)
}

// New returns an inverter client for host:port. An empty addr disables it.
func New(addr string, logger *slog.Logger) *Inverter {
	if logger == nil {
		logger = slog.Default()
	}
	inv := &Inverter{addr: addr, logger: logger}
	inv.readRegisters = inv.readModbus
	return inv
}

// IsConfigured checks if an inverter address is set.
// This feature is optional, an empty address is acceptable.
func (inv *Inverter) IsConfigured() bool {
	return inv != nil && inv.addr != ""
}

// ReadPower returns the current production in W.
// Reads are cached to avoid spamming the poor inverter.
func (inv *Inverter) ReadPower(ctx context.Context) (int32, error) {
	if !inv.IsConfigured() {
		return 0, ErrModbusNotConfigured
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()
	if time.Since(inv.lastReadTime) < cacheTTL {
		return inv.lastReadWatt, nil
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 && !sleepWithContext(ctx, retryPause) {
			lastErr = ctx.Err()
			break
		}

		result, err := inv.readRegisters(ctx)
		if err != nil {
			lastErr = fmt.Errorf("attempt %d: %w", attempt+1, err)
			inv.logger.Debug("inverter read failed", "addr", inv.addr, "err", lastErr)
			continue
		}
		if len(result) < 4 {
			lastErr = fmt.Errorf("attempt %d: short register read (%d bytes)", attempt+1, len(result))
			continue
		}

		power := int32(result[0])<<24 | int32(result[1])<<16 | int32(result[2])<<8 | int32(result[3])
		inv.lastReadWatt = power
		inv.lastReadTime = time.Now()
		return power, nil
	}

	return 0, errors.Join(ErrModbusReadFailed, lastErr)
}

func (inv *Inverter) readModbus(ctx context.Context) ([]byte, error) {
	host, _, err := net.SplitHostPort(inv.addr)
	if err != nil {
		return nil, err
	}
	// Ping check before attempting modbus connection
	if err := ping(ctx, host); err != nil {
		return nil, err
	}

	handler := modbus.NewTCPClientHandler(inv.addr)
	handler.Timeout = 10 * time.Second
	handler.SlaveId = 0
	if err := handler.Connect(); err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	defer handler.Close()

	// The 2s delay after connecting causes everything to not implode as much
	if !sleepWithContext(ctx, 2*time.Second) {
		return nil, ctx.Err()
	}

	client := modbus.NewClient(handler)
	result, err := client.ReadHoldingRegisters(activePowerRegister, 2)
	if err != nil {
		return nil, fmt.Errorf("read power failed: %w", err)
	}
	return result, nil
}

func ping(ctx context.Context, host string) error {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return err
	}

	pinger.Count = 1
	pinger.Timeout = 2 * time.Second
	pinger.SetPrivileged(false) // UDP-based, no root needed

	if err := pinger.RunWithContext(ctx); err != nil {
		return err
	}
	if pinger.Statistics().PacketsRecv == 0 {
		return ErrInverterUnreachable
	}
	return nil
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
