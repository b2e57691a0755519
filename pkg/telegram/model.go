package telegram

import (
	"errors"
	"time"

	"github.com/NotCoffee418/smartmeter_exporter/pkg/metrics"
)

const (
	// LineCapacity is the size of the line buffer; one slot stays reserved,
	// so a line holds at most LineCapacity-1 bytes.
	LineCapacity = 64

	// MaxTextLength bounds text fields such as the meter serial number.
	MaxTextLength = 20
)

var (
	ErrLineOverflow      = errors.New("line exceeds buffer capacity")
	ErrMalformedLine     = errors.New("line is not of the form key(value)")
	ErrUnknownIdentifier = errors.New("unknown identifier")
	ErrFieldTooLong      = errors.New("text value exceeds field capacity")
)

// identifier describes where a telegram line value goes.
type identifier struct {
	field  metrics.Field
	kind   metrics.Kind
	maxLen int
}

// identifiers maps the OBIS code in front of the parenthesis to its snapshot slot.
var identifiers = map[string]identifier{
	"1-0:0.0.0*255":    {field: metrics.CustomerNumber, kind: metrics.KindText, maxLen: MaxTextLength},
	"1-0:1.8.0*255":    {field: metrics.EnergyUsed, kind: metrics.KindFloat},
	"1-0:2.8.0*255":    {field: metrics.EnergyProduced, kind: metrics.KindFloat},
	"1-0:21.7.0*255":   {field: metrics.PowerPhase1, kind: metrics.KindFloat},
	"1-0:41.7.0*255":   {field: metrics.PowerPhase2, kind: metrics.KindFloat},
	"1-0:61.7.0*255":   {field: metrics.PowerPhase3, kind: metrics.KindFloat},
	"1-0:1.7.0*255":    {field: metrics.PowerTotal, kind: metrics.KindFloat},
	"1-0:96.5.5*255":   {field: metrics.StatusCode, kind: metrics.KindUint8},
	"0-0:96.1.255*255": {field: metrics.SerialNumber, kind: metrics.KindText, maxLen: MaxTextLength},
}

// Stats are the ingestion diagnostics counters.
type Stats struct {
	LinesCompleted uint64 `json:"lines_completed"`
	Overflows      uint64 `json:"overflows"`
	FieldsDecoded  uint64 `json:"fields_decoded"`
	Malformed      uint64 `json:"malformed"`
	Unknown        uint64 `json:"unknown"`
	Oversized      uint64 `json:"oversized"`
}

// Activity tells whether bytes are currently arriving from the source.
type Activity struct {
	Active   bool      `json:"active"`
	LastByte time.Time `json:"last_byte"`
}
