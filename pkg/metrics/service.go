// Package metrics holds the live meter snapshot shared between the telegram
// ingestion path and the HTTP readers, and renders it as a Prometheus text
// exposition document.
//
// Every field is stored in its own atomic slot. A reader always sees a whole
// value for a given field, but a render running next to an ingest may mix old
// and new fields; the next telegram supersedes such a read.
package metrics

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

var (
	ErrNoContent = errors.New("no telegram decoded yet")
	ErrWrongKind = errors.New("field does not hold this kind of value")
)

type Snapshot struct {
	floats         [floatFieldCount]atomic.Uint64
	statusCode     atomic.Uint32
	serialNumber   atomic.Pointer[string]
	customerNumber atomic.Pointer[string]

	// Unix nanoseconds of the last write, 0 before the first one.
	updatedAt atomic.Int64
}

func NewSnapshot() *Snapshot {
	return &Snapshot{}
}

// Ready reports whether a serial number has been stored at least once.
func (s *Snapshot) Ready() bool {
	return s.serialNumber.Load() != nil
}

func (s *Snapshot) SetFloat(f Field, v float64) error {
	if f.Kind() != KindFloat {
		return fmt.Errorf("set %s: %w", f, ErrWrongKind)
	}
	s.floats[f].Store(math.Float64bits(v))
	s.touch()
	return nil
}

func (s *Snapshot) SetUint8(f Field, v uint8) error {
	if f.Kind() != KindUint8 {
		return fmt.Errorf("set %s: %w", f, ErrWrongKind)
	}
	s.statusCode.Store(uint32(v))
	s.touch()
	return nil
}

func (s *Snapshot) SetText(f Field, v string) error {
	slot := s.textSlot(f)
	if slot == nil {
		return fmt.Errorf("set %s: %w", f, ErrWrongKind)
	}
	slot.Store(&v)
	s.touch()
	return nil
}

func (s *Snapshot) Float(f Field) float64 {
	if f.Kind() != KindFloat {
		return 0
	}
	return math.Float64frombits(s.floats[f].Load())
}

func (s *Snapshot) StatusCode() uint8 {
	return uint8(s.statusCode.Load())
}

// Text returns the stored value, or "" when the field was never written.
func (s *Snapshot) Text(f Field) string {
	slot := s.textSlot(f)
	if slot == nil {
		return ""
	}
	if v := slot.Load(); v != nil {
		return *v
	}
	return ""
}

// UpdatedAt is the time of the last field write, zero before the first one.
func (s *Snapshot) UpdatedAt() time.Time {
	ns := s.updatedAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Reading copies the current field values. Returns nil before the snapshot is ready.
func (s *Snapshot) Reading() *Reading {
	if !s.Ready() {
		return nil
	}
	return &Reading{
		Timestamp:         s.UpdatedAt().UTC().Format(time.RFC3339),
		SerialNumber:      s.Text(SerialNumber),
		CustomerNumber:    s.Text(CustomerNumber),
		EnergyUsedKWH:     s.Float(EnergyUsed),
		EnergyProducedKWH: s.Float(EnergyProduced),
		PowerPhase1W:      s.Float(PowerPhase1),
		PowerPhase2W:      s.Float(PowerPhase2),
		PowerPhase3W:      s.Float(PowerPhase3),
		PowerTotalW:       s.Float(PowerTotal),
		StatusCode:        s.StatusCode(),
	}
}

func (s *Snapshot) textSlot(f Field) *atomic.Pointer[string] {
	switch f {
	case SerialNumber:
		return &s.serialNumber
	case CustomerNumber:
		return &s.customerNumber
	}
	return nil
}

func (s *Snapshot) touch() {
	s.updatedAt.Store(time.Now().UnixNano())
}
