package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/NotCoffee418/smartmeter_exporter/pkg/metrics"
)

// Decoder turns single telegram lines into snapshot updates.
type Decoder struct {
	snapshot *metrics.Snapshot

	decoded   atomic.Uint64
	malformed atomic.Uint64
	unknown   atomic.Uint64
	oversized atomic.Uint64
}

func NewDecoder(snapshot *metrics.Snapshot) *Decoder {
	return &Decoder{snapshot: snapshot}
}

// Decode applies one line of the form `key(value)` to the snapshot.
// A non-nil error means the line was dropped and nothing was written;
// callers are expected to carry on with the next line.
func (d *Decoder) Decode(line string) error {
	key, value, err := tokenize(line)
	if err != nil {
		d.malformed.Add(1)
		return err
	}

	id, ok := identifiers[key]
	if !ok {
		d.unknown.Add(1)
		return fmt.Errorf("%w: %q", ErrUnknownIdentifier, key)
	}

	switch id.kind {
	case metrics.KindText:
		if len(value) > id.maxLen {
			d.oversized.Add(1)
			return fmt.Errorf("%s: %w (%d > %d)", id.field, ErrFieldTooLong, len(value), id.maxLen)
		}
		err = d.snapshot.SetText(id.field, value)
	case metrics.KindFloat:
		err = d.snapshot.SetFloat(id.field, parseFloat(stripUnit(value)))
	case metrics.KindUint8:
		err = d.snapshot.SetUint8(id.field, parseUint8(stripUnit(value)))
	}
	if err != nil {
		return err
	}

	d.decoded.Add(1)
	return nil
}

// tokenize splits `key(value)...` into key and value. Anything after the
// first closing parenthesis, such as a second group, is ignored.
func tokenize(line string) (string, string, error) {
	key, rest, ok := strings.Cut(line, "(")
	if !ok || key == "" {
		return "", "", ErrMalformedLine
	}
	value, _, ok := strings.Cut(rest, ")")
	if !ok || value == "" {
		return "", "", ErrMalformedLine
	}
	return key, value, nil
}

// stripUnit drops a `*unit` suffix, e.g. "001234.567*kWh" -> "001234.567".
func stripUnit(value string) string {
	if i := strings.IndexByte(value, '*'); i >= 0 {
		return value[:i]
	}
	return value
}

// parseFloat reads the longest numeric prefix of s; 0 when there is none.
func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(numericPrefix(s, true), 64)
	if err != nil {
		return 0
	}
	return v
}

// parseUint8 reads a base-10 prefix of s; 0 when absent or above 255.
func parseUint8(s string) uint8 {
	v, err := strconv.ParseUint(numericPrefix(s, false), 10, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func numericPrefix(s string, float bool) string {
	s = strings.TrimLeft(s, " \t")
	i := 0
	if i < len(s) && (s[i] == '+' || (float && s[i] == '-')) {
		i++
	}
	i = skipDigits(s, i)
	if !float {
		return strings.TrimPrefix(s[:i], "+")
	}
	if i < len(s) && s[i] == '.' {
		i = skipDigits(s, i+1)
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if k := skipDigits(s, j); k > j {
			i = k
		}
	}
	return s[:i]
}

func skipDigits(s string, i int) int {
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return i
}

func (d *Decoder) Stats() Stats {
	return Stats{
		FieldsDecoded: d.decoded.Load(),
		Malformed:     d.malformed.Load(),
		Unknown:       d.unknown.Load(),
		Oversized:     d.oversized.Load(),
	}
}
