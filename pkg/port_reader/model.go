package port_reader

import (
	"io"
	"log/slog"

	"github.com/jacobsa/go-serial/serial"
)

// Drainer consumes bytes read from the port.
type Drainer interface {
	Drain(r io.Reader, buf []byte) (int, error)
}

// Options describe the serial framing of the P1 port.
type Options struct {
	Device   string
	Baudrate uint
	DataBits uint
	Parity   string
	StopBits uint
}

type P1Reader struct {
	options serial.OpenOptions
	drainer Drainer
	logger  *slog.Logger

	// Replaced in tests.
	openPort func(serial.OpenOptions) (io.ReadWriteCloser, error)
}
