package port_reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jacobsa/go-serial/serial"
)

const (
	readChunkSize = 256

	// Tolerance before the port is considered broken and reopened.
	maxConsecutiveErrors = 10

	// Deciseconds resolution on Linux; a read returns empty after this much silence.
	interCharacterTimeoutMs = 100

	idlePause       = 50 * time.Millisecond
	errorPause      = time.Second
	baseReopenDelay = 2 * time.Second
	maxReopenDelay  = 60 * time.Second
)

var ErrPortBroken = errors.New("too many consecutive read errors")

// Initialize a new P1Reader feeding drainer.
func NewP1Reader(opts Options, drainer Drainer, logger *slog.Logger) (*P1Reader, error) {
	parity, err := parityMode(opts.Parity)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &P1Reader{
		options: serial.OpenOptions{
			PortName:              opts.Device,
			BaudRate:              opts.Baudrate,
			DataBits:              opts.DataBits,
			StopBits:              opts.StopBits,
			ParityMode:            parity,
			InterCharacterTimeout: interCharacterTimeoutMs,
			MinimumReadSize:       0,
		},
		drainer:  drainer,
		logger:   logger,
		openPort: serial.Open,
	}, nil
}

func parityMode(name string) (serial.ParityMode, error) {
	switch name {
	case "none":
		return serial.PARITY_NONE, nil
	case "odd":
		return serial.PARITY_ODD, nil
	case "even":
		return serial.PARITY_EVEN, nil
	}
	return serial.PARITY_NONE, fmt.Errorf("unknown parity %q", name)
}

// StartReading drains the port until ctx is cancelled. Open failures and
// broken ports are retried with exponential backoff, so it only returns
// once ctx is done.
func (p *P1Reader) StartReading(ctx context.Context) error {
	retryCount := 0
	for ctx.Err() == nil {
		if retryCount > 0 {
			delay := reopenDelay(retryCount)
			p.logger.Info("reopening serial port", "device", p.options.PortName, "delay", delay, "attempt", retryCount+1)
			if !sleepWithContext(ctx, delay) {
				break
			}
		}

		port, err := p.connect()
		if err != nil {
			p.logger.Error("failed to open serial port", "device", p.options.PortName, "err", err)
			retryCount++
			continue
		}

		err = p.stream(ctx, port)
		p.disconnect(port)
		if ctx.Err() != nil {
			break
		}
		p.logger.Error("serial port stopped delivering", "device", p.options.PortName, "err", err)
		retryCount = 1
	}
	return ctx.Err()
}

// Open the connection to the P1 port.
func (p *P1Reader) connect() (io.ReadWriteCloser, error) {
	port, err := p.openPort(p.options)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	p.logger.Info("connected to P1 port",
		"device", p.options.PortName,
		"baudrate", p.options.BaudRate,
		"framing", fmt.Sprintf("%d%s%d", p.options.DataBits, parityLetter(p.options.ParityMode), p.options.StopBits))
	return port, nil
}

func (p *P1Reader) disconnect(port io.Closer) {
	if err := port.Close(); err != nil {
		p.logger.Debug("closing serial port", "err", err)
	}
	p.logger.Info("disconnected from P1 port", "device", p.options.PortName)
}

func (p *P1Reader) stream(ctx context.Context, port io.ReadWriteCloser) error {
	// Unblock a pending read on shutdown.
	stop := context.AfterFunc(ctx, func() { port.Close() })
	defer stop()

	buf := make([]byte, readChunkSize)
	consecutiveErrors := 0
	var lastError error

	for consecutiveErrors < maxConsecutiveErrors {
		n, err := p.drainer.Drain(port, buf)
		if ctx.Err() != nil {
			return nil
		}

		switch {
		case err == nil || errors.Is(err, io.EOF):
			// With a read timeout an idle port reports EOF.
			consecutiveErrors = 0
			if n == 0 && !sleepWithContext(ctx, idlePause) {
				return nil
			}
		default:
			consecutiveErrors++
			lastError = err
			p.logger.Warn("error reading serial port",
				"attempt", consecutiveErrors, "max", maxConsecutiveErrors, "err", err)
			if !sleepWithContext(ctx, errorPause) {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: %w", ErrPortBroken, lastError)
}

// reopenDelay doubles from baseReopenDelay up to maxReopenDelay.
func reopenDelay(attempt int) time.Duration {
	delay := baseReopenDelay
	for i := 1; i < attempt && delay < maxReopenDelay; i++ {
		delay *= 2
	}
	return min(delay, maxReopenDelay)
}

func parityLetter(mode serial.ParityMode) string {
	switch mode {
	case serial.PARITY_ODD:
		return "O"
	case serial.PARITY_EVEN:
		return "E"
	}
	return "N"
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
