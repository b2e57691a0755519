package telegram

import (
	"errors"
	"io"
	"log/slog"

	"github.com/NotCoffee418/smartmeter_exporter/pkg/metrics"
)

// Ingester wires an Assembler to a Decoder writing into one snapshot.
type Ingester struct {
	assembler *Assembler
	decoder   *Decoder
	logger    *slog.Logger
}

func NewIngester(snapshot *metrics.Snapshot, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	i := &Ingester{
		decoder: NewDecoder(snapshot),
		logger:  logger,
	}
	i.assembler = NewAssembler(i.handleLine)
	i.assembler.OnOverflow(func() {
		i.logger.Warn("telegram line overflow, dropping partial line", "capacity", LineCapacity)
	})
	i.assembler.OnActivity(func(active bool) {
		i.logger.Debug("serial activity", "active", active)
	})
	return i
}

func (i *Ingester) handleLine(line string) {
	err := i.decoder.Decode(line)
	switch {
	case err == nil:
	case errors.Is(err, ErrFieldTooLong):
		i.logger.Warn("dropping oversized field", "line", line, "err", err)
	default:
		i.logger.Debug("ignoring telegram line", "line", line, "err", err)
	}
}

func (i *Ingester) Write(p []byte) (int, error) {
	return i.assembler.Write(p)
}

func (i *Ingester) Drain(r io.Reader, buf []byte) (int, error) {
	return i.assembler.Drain(r, buf)
}

func (i *Ingester) Activity() Activity {
	return i.assembler.Activity()
}

func (i *Ingester) Stats() Stats {
	s := i.decoder.Stats()
	s.LinesCompleted = i.assembler.lines.Load()
	s.Overflows = i.assembler.overflows.Load()
	return s
}
